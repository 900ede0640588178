package processor

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"cao/internal/config"
	"cao/internal/logging"
	"cao/internal/patterns"
	"cao/internal/tools/toolstest"
	"cao/pkg/assetutil"
)

func writeFile(t *testing.T, path string, data []byte) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, data, 0o644))
}

func readFile(t *testing.T, path string) string {
	t.Helper()
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	return string(data)
}

func nativeMesh() []byte {
	return assetutil.NifHeaderBytes(assetutil.NifHeader{
		Version:       assetutil.NifVersion20207,
		UserVersion:   assetutil.UserSkyrim,
		StreamVersion: assetutil.StreamNative,
		BlockTypes:    []string{"BSFadeNode", "BSTriShape"},
	})
}

func legacyMesh() []byte {
	return assetutil.NifHeaderBytes(assetutil.NifHeader{
		Version:       assetutil.NifVersion20207,
		UserVersion:   assetutil.UserSkyrim,
		StreamVersion: assetutil.StreamLegacy,
		BlockTypes:    []string{"BSFadeNode", "NiTriShape"},
	})
}

func testOptions(t *testing.T, input string, fake *toolstest.Fake) Options {
	t.Helper()
	settings := config.Default()
	settings.InputPath = input
	settings.ResourcesDir = t.TempDir()
	settings.Workers = 2

	m := patterns.New()
	require.NoError(t, m.PatchDefault([]byte(`{
		"meshes": {"optimization_level": 1, "headparts": true},
		"textures": {"optimization_level": 1},
		"animations": {"optimization_level": 1}
	}`)))

	return Options{Settings: settings, Patterns: m, Tools: fake, Log: logging.Discard()}
}

// drain sums every update sent during a run.
func drain(updates chan ProgressUpdate) ProgressUpdate {
	close(updates)
	var total ProgressUpdate
	for u := range updates {
		total.TotalDelta += u.TotalDelta
		total.ProcessedDelta += u.ProcessedDelta
		total.ErrorDelta += u.ErrorDelta
		total.ModifiedDelta += u.ModifiedDelta
		total.BytesSavedDelta += u.BytesSavedDelta
	}
	return total
}

func TestRunSingleMod(t *testing.T) {
	mod := filepath.Join(t.TempDir(), "Mod")
	writeFile(t, filepath.Join(mod, "textures", "a.tga"), []byte("tga"))
	writeFile(t, filepath.Join(mod, "meshes", "old.nif"), legacyMesh())
	writeFile(t, filepath.Join(mod, "meshes", "actors", "walk.hkx"), assetutil.HKXHeader(4))
	writeFile(t, filepath.Join(mod, "readme.txt"), []byte("hello"))

	fake := toolstest.New()
	updates := make(chan ProgressUpdate, 64)
	summary, err := Run(context.Background(), testOptions(t, mod, fake), updates)
	require.NoError(t, err)

	assert.Equal(t, 1, summary.Mods)
	assert.Equal(t, 3, summary.Total)
	assert.Equal(t, 3, summary.Processed)
	assert.Equal(t, 3, summary.Modified)
	assert.Zero(t, summary.Errors)

	total := drain(updates)
	assert.Equal(t, 3, total.TotalDelta)
	assert.Equal(t, 3, total.ProcessedDelta)
	assert.Equal(t, 3, total.ModifiedDelta)
	assert.Equal(t, summary.BytesSaved, total.BytesSavedDelta)

	assert.NoFileExists(t, filepath.Join(mod, "textures", "a.tga"))
	assert.Contains(t, readFile(t, filepath.Join(mod, "textures", "a.dds")), "|texconv")
	assert.Contains(t, readFile(t, filepath.Join(mod, "meshes", "old.nif")), "|mesh")
	assert.Contains(t, readFile(t, filepath.Join(mod, "meshes", "actors", "walk.hkx")), "|anim")
	assert.Equal(t, "hello", readFile(t, filepath.Join(mod, "readme.txt")))
}

func TestRunMatchesPatternsRelativeToModRoot(t *testing.T) {
	// The folder holding the mod must not take part in pattern matching.
	mod := filepath.Join(t.TempDir(), "texturesmods", "Mod")
	writeFile(t, filepath.Join(mod, "meshes", "old.nif"), legacyMesh())
	writeFile(t, filepath.Join(mod, "textures", "a.tga"), []byte("tga"))

	fake := toolstest.New()
	opts := testOptions(t, mod, fake)
	p, err := patterns.NewPattern(1, []byte(`{"meshes":{"optimization_level":0},"textures":{"optimization_level":0}}`), "textures*")
	require.NoError(t, err)
	opts.Patterns.AddPattern(p)

	summary, err := Run(context.Background(), opts, nil)
	require.NoError(t, err)
	assert.Len(t, fake.Calls("mesh"), 1)
	assert.Empty(t, fake.Calls("texconv"))
	assert.Equal(t, 1, summary.Modified)
	assert.Equal(t, "tga", readFile(t, filepath.Join(mod, "textures", "a.tga")))
}

func TestRunSeveralModsContinuesAfterFailure(t *testing.T) {
	root := t.TempDir()
	writeFile(t, filepath.Join(root, "ModA", "textures", "a.tga"), []byte("a"))
	writeFile(t, filepath.Join(root, "ModB", "textures", "b.tga"), []byte("b"))

	fake := toolstest.New()
	fake.Fail["texconv"] = []string{"a.tga"}
	opts := testOptions(t, root, fake)
	opts.Settings.Mode = config.ModeSeveral

	summary, err := Run(context.Background(), opts, nil)
	require.NoError(t, err)

	assert.Equal(t, 2, summary.Mods)
	assert.Equal(t, 2, summary.Processed)
	assert.Equal(t, 1, summary.Errors)
	assert.Equal(t, 1, summary.Modified)
	assert.Equal(t, "a", readFile(t, filepath.Join(root, "ModA", "textures", "a.tga")))
	assert.FileExists(t, filepath.Join(root, "ModB", "textures", "b.dds"))
}

func TestRunDryRunTouchesNothing(t *testing.T) {
	mod := filepath.Join(t.TempDir(), "Mod")
	writeFile(t, filepath.Join(mod, "textures", "a.tga"), []byte("tga"))
	writeFile(t, filepath.Join(mod, "meshes", "old.nif"), legacyMesh())
	writeFile(t, filepath.Join(mod, "Mod.bsa"), []byte("textures/b.tga=b\n"))

	fake := toolstest.New()
	opts := testOptions(t, mod, fake)
	opts.Settings.DryRun = true
	opts.Settings.Archive.Extract = true
	opts.Settings.Archive.Create = true

	summary, err := Run(context.Background(), opts, nil)
	require.NoError(t, err)
	assert.Equal(t, 2, summary.Processed)
	assert.Zero(t, summary.Modified)

	for _, op := range []string{"mesh", "texconv", "unpack", "pack", "animation"} {
		assert.Empty(t, fake.Calls(op), op)
	}
	assert.Equal(t, "tga", readFile(t, filepath.Join(mod, "textures", "a.tga")))
	assert.Equal(t, string(legacyMesh()), readFile(t, filepath.Join(mod, "meshes", "old.nif")))
	assert.FileExists(t, filepath.Join(mod, "Mod.bsa"))
}

func TestRunArchiveRoundTrip(t *testing.T) {
	mod := filepath.Join(t.TempDir(), "Mod")
	writeFile(t, filepath.Join(mod, "Mod.bsa"), []byte("textures/a.tga=tga\nscripts/a.pex=script\n"))

	fake := toolstest.New()
	opts := testOptions(t, mod, fake)
	opts.Settings.Archive.Extract = true
	opts.Settings.Archive.Create = true
	writeFile(t, filepath.Join(opts.Settings.ResourcesDir, opts.Settings.Tools.BlankPlugin), []byte("TES4"))

	summary, err := Run(context.Background(), opts, nil)
	require.NoError(t, err)
	assert.Equal(t, 1, summary.Modified)
	assert.Zero(t, summary.Errors)

	assert.Equal(t, "textures/a.tga=tga\nscripts/a.pex=script\n", readFile(t, filepath.Join(mod, "Mod.bsa.bak")))
	assert.Contains(t, readFile(t, filepath.Join(mod, "Mod - Textures.bsa")), "textures/a.dds=tga|texconv")
	assert.Equal(t, "scripts/a.pex=script\n", readFile(t, filepath.Join(mod, "Mod.bsa")))
	assert.Equal(t, "TES4", readFile(t, filepath.Join(mod, "Mod.esp")))

	assert.NoDirExists(t, filepath.Join(mod, "textures"))
	assert.NoDirExists(t, filepath.Join(mod, "scripts"))
}

func TestRunCancelledBeforeStart(t *testing.T) {
	mod := filepath.Join(t.TempDir(), "Mod")
	writeFile(t, filepath.Join(mod, "textures", "a.tga"), []byte("tga"))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	fake := toolstest.New()
	summary, err := Run(ctx, testOptions(t, mod, fake), nil)
	require.NoError(t, err)
	assert.Zero(t, summary.Processed)
	assert.Empty(t, fake.Calls("texconv"))
	assert.Equal(t, "tga", readFile(t, filepath.Join(mod, "textures", "a.tga")))
}

func TestRunReportsDeadline(t *testing.T) {
	mod := filepath.Join(t.TempDir(), "Mod")
	writeFile(t, filepath.Join(mod, "textures", "a.tga"), []byte("tga"))

	ctx, cancel := context.WithTimeout(context.Background(), -time.Second)
	defer cancel()

	_, err := Run(ctx, testOptions(t, mod, toolstest.New()), nil)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestRunRejectsInvalidSettings(t *testing.T) {
	opts := testOptions(t, "", toolstest.New())
	_, err := Run(context.Background(), opts, nil)
	assert.ErrorContains(t, err, "input path is required")

	opts = testOptions(t, filepath.Join(t.TempDir(), "missing"), toolstest.New())
	_, err = Run(context.Background(), opts, nil)
	assert.Error(t, err)
}

func TestListMods(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, os.Mkdir(filepath.Join(root, "B"), 0o755))
	require.NoError(t, os.Mkdir(filepath.Join(root, "A"), 0o755))
	writeFile(t, filepath.Join(root, "notes.txt"), []byte("x"))

	mods, err := ListMods(root, true)
	require.NoError(t, err)
	assert.Equal(t, []string{filepath.Join(root, "A"), filepath.Join(root, "B")}, mods)

	mods, err = ListMods(root, false)
	require.NoError(t, err)
	assert.Equal(t, []string{root}, mods)

	_, err = ListMods(filepath.Join(root, "notes.txt"), false)
	assert.Error(t, err)
}

func TestAnimationsEnabled(t *testing.T) {
	assert.False(t, animationsEnabled(nil))
	assert.False(t, animationsEnabled(patterns.New()))

	m := patterns.New()
	require.NoError(t, m.PatchDefault([]byte(`{"animations":{"optimization_level":1}}`)))
	assert.True(t, animationsEnabled(m))
}

func TestScanReportsMeshes(t *testing.T) {
	mod := filepath.Join(t.TempDir(), "Mod")
	writeFile(t, filepath.Join(mod, "meshes", "a.nif"), nativeMesh())
	writeFile(t, filepath.Join(mod, "meshes", "b.nif"), legacyMesh())
	writeFile(t, filepath.Join(mod, "meshes", "actors", "head.nif"), nativeMesh())
	writeFile(t, filepath.Join(mod, "meshes", "broken.nif"), []byte("junk"))

	fake := toolstest.New()
	fake.Report = []string{`meshes\a.nif`, `meshes\b.nif`, "  Block NiTriStrips is unsupported"}
	fake.Headparts = []string{`meshes\actors\head.nif`}

	reports, err := Scan(context.Background(), testOptions(t, mod, fake))
	require.NoError(t, err)
	require.Len(t, reports, 1)

	report := reports[0]
	assert.Equal(t, "Mod", report.Mod)

	details := map[string][]string{}
	for _, d := range report.Details {
		details[d.Category] = d.Values
	}
	assert.Equal(t, []string{"meshes/actors/head.nif"}, details["Headpart meshes"])
	assert.Equal(t, []string{"meshes/b.nif"}, details["Risky meshes"])
	assert.Equal(t, []string{"meshes/a.nif"}, details["Other meshes"])
	assert.ElementsMatch(t, []string{
		"meshes/actors/head.nif (headpart, necessary optimization)",
		"meshes/b.nif (necessary optimization)",
	}, details["Would be optimized"])

	require.Len(t, report.Insights, 1)
	assert.Equal(t, "Unsafe", report.Insights[0].Kind)
	assert.Contains(t, report.Insights[0].Message, "meshes/broken.nif")

	// Scanning changes nothing.
	assert.Empty(t, fake.Calls("mesh"))
	assert.Equal(t, string(legacyMesh()), readFile(t, filepath.Join(mod, "meshes", "b.nif")))
}
