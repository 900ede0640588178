package archive

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"cao/internal/config"
	"cao/internal/logging"
	"cao/internal/tools"
	"cao/internal/tools/toolstest"
)

func writeFiles(t *testing.T, root string, files map[string]string) {
	t.Helper()
	for rel, content := range files {
		path := filepath.Join(root, filepath.FromSlash(rel))
		require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
		require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	}
}

func readFile(t *testing.T, path string) string {
	t.Helper()
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	return string(data)
}

func testSettings(t *testing.T) config.Settings {
	t.Helper()
	settings := config.Default()
	settings.ResourcesDir = t.TempDir()
	return settings
}

func TestSplitBudgetAndBalance(t *testing.T) {
	root := filepath.Join(t.TempDir(), "Mod")
	files := map[string]string{"Mod.esp": ""}
	for _, name := range []string{"a", "b", "c", "d", "e", "f", "g", "h", "i", "j"} {
		files["textures/mod/"+name+".dds"] = strings.Repeat("x", 100)
	}
	writeFiles(t, root, files)

	settings := config.Default().Archive
	settings.TextureBudget = 300
	buckets, err := NewSplitter(settings).Split(root, PluginName(root))
	require.NoError(t, err)

	require.Len(t, buckets, 4)
	assert.Equal(t, "Mod - Textures.bsa.extracted", buckets[0].Name)
	assert.Equal(t, "Mod1 - Textures.bsa.extracted", buckets[1].Name)
	assert.Equal(t, "Mod3 - Textures.bsa", buckets[3].ArchiveName())

	total := 0
	for _, b := range buckets {
		assert.True(t, b.Textures)
		assert.InDelta(t, len(buckets[0].Files), len(b.Files), 1)
		total += len(b.Files)
	}
	assert.Equal(t, 10, total)
}

func TestSplitSeparatesStreams(t *testing.T) {
	root := filepath.Join(t.TempDir(), "Armor")
	writeFiles(t, root, map[string]string{
		"readme.txt":          "docs",
		"meshes/armor/a.nif":  "mesh",
		"meshes/armor/a.txt":  "ignored",
		"textures/a.dds":      "tex",
		"textures/a.tga":      "not archived",
		"meshes/.cao-1-b.nif": "temp",
	})

	buckets, err := NewSplitter(config.Default().Archive).Split(root, PluginName(root))
	require.NoError(t, err)
	require.Len(t, buckets, 2)

	assert.Equal(t, "Armor - Textures.bsa.extracted", buckets[0].Name)
	assert.Equal(t, []string{"textures/a.dds"}, buckets[0].Files)
	assert.Equal(t, "Armor.bsa.extracted", buckets[1].Name)
	assert.Equal(t, []string{"meshes/armor/a.nif"}, buckets[1].Files)
	assert.False(t, buckets[1].Incompressible)
}

func TestSplitFlagsSoundAsIncompressible(t *testing.T) {
	root := t.TempDir()
	writeFiles(t, root, map[string]string{"Sound/FX/boom.xwm": "x"})

	buckets, err := NewSplitter(config.Default().Archive).Split(root, "Mod")
	require.NoError(t, err)
	require.Len(t, buckets, 1)
	assert.True(t, buckets[0].Incompressible)
}

func TestSplitRejectsLongPaths(t *testing.T) {
	root := t.TempDir()
	writeFiles(t, root, map[string]string{"meshes/a_rather_long_name.nif": "x"})

	settings := config.Default().Archive
	settings.MaxPathLength = len(root) + 20
	_, err := NewSplitter(settings).Split(root, "Mod")

	var modErr *ModError
	require.ErrorAs(t, err, &modErr)
	assert.Equal(t, PathTooLong, modErr.Kind)
}

func TestExtractMovesFilesAndKeepsBackup(t *testing.T) {
	root := t.TempDir()
	writeFiles(t, root, map[string]string{
		"Mod.bsa":      "meshes/a.nif=packed a\nmeshes/b.nif=packed b\n",
		"meshes/a.nif": "loose a",
	})

	fake := toolstest.New()
	m := NewManager(fake, testSettings(t), logging.Discard())
	require.NoError(t, m.Extract(context.Background(), root))

	assert.Equal(t, "loose a", readFile(t, filepath.Join(root, "meshes", "a.nif")))
	assert.Equal(t, "packed b", readFile(t, filepath.Join(root, "meshes", "b.nif")))
	assert.FileExists(t, filepath.Join(root, "Mod.bsa"+BackupExt))
	assert.NoFileExists(t, filepath.Join(root, "Mod.bsa"))
	assert.NoDirExists(t, filepath.Join(root, "Mod.bsa.extracted"))
}

func TestExtractDeletesBackupWhenAsked(t *testing.T) {
	root := t.TempDir()
	writeFiles(t, root, map[string]string{"Mod.bsa": "meshes/a.nif=a\n"})

	settings := testSettings(t)
	settings.Archive.DeleteBackup = true
	m := NewManager(toolstest.New(), settings, logging.Discard())
	require.NoError(t, m.Extract(context.Background(), root))

	assert.NoFileExists(t, filepath.Join(root, "Mod.bsa"))
	assert.NoFileExists(t, filepath.Join(root, "Mod.bsa"+BackupExt))
	assert.FileExists(t, filepath.Join(root, "meshes", "a.nif"))
}

func TestExtractFailureIsModError(t *testing.T) {
	root := t.TempDir()
	writeFiles(t, root, map[string]string{"Mod.bsa": "meshes/a.nif=a\n"})

	fake := toolstest.New()
	fake.Fail["unpack"] = []string{"Mod.bsa"}
	err := NewManager(fake, testSettings(t), logging.Discard()).Extract(context.Background(), root)

	var modErr *ModError
	require.ErrorAs(t, err, &modErr)
	assert.Equal(t, ExtractFailed, modErr.Kind)
	assert.ErrorIs(t, err, tools.ErrNoSuccessMarker)
	assert.FileExists(t, filepath.Join(root, "Mod.bsa"))
}

func TestCreatePacksLooseAssets(t *testing.T) {
	root := filepath.Join(t.TempDir(), "Mod")
	writeFiles(t, root, map[string]string{
		"Mod.esp":                        "",
		"meshes/a.nif":                   "mesh",
		"textures/a.dds":                 "tex",
		"Mod.bsa.extracted/meshes/b.nif": "old extract",
	})

	fake := toolstest.New()
	require.NoError(t, NewManager(fake, testSettings(t), logging.Discard()).Create(context.Background(), root))

	assert.Equal(t, "meshes/a.nif=mesh\nmeshes/b.nif=old extract\n", readFile(t, filepath.Join(root, "Mod.bsa")))
	assert.Equal(t, "textures/a.dds=tex\n", readFile(t, filepath.Join(root, "Mod - Textures.bsa")))
	assert.NoFileExists(t, filepath.Join(root, "meshes", "a.nif"))
	assert.NoDirExists(t, filepath.Join(root, "Mod.bsa.extracted"))

	packs := fake.Calls("pack")
	require.Len(t, packs, 2)
	opts := packs[0].Args.(tools.PackOptions)
	assert.True(t, opts.Compress)
	assert.True(t, opts.ShareData)

	require.NoError(t, RemoveEmptyDirs(root))
	assert.NoDirExists(t, filepath.Join(root, "meshes"))
}

func TestCreateOversizedArchiveFallsBackToLooseFiles(t *testing.T) {
	root := filepath.Join(t.TempDir(), "Mod")
	writeFiles(t, root, map[string]string{"Mod.esp": "", "meshes/a.nif": "mesh"})

	settings := testSettings(t)
	settings.Archive.MaxSize = 50
	fake := toolstest.New()
	fake.ArchiveSize = 100

	require.NoError(t, NewManager(fake, settings, logging.Discard()).Create(context.Background(), root))
	assert.NoFileExists(t, filepath.Join(root, "Mod.bsa"))
	assert.Equal(t, "mesh", readFile(t, filepath.Join(root, "meshes", "a.nif")))
	assert.NoDirExists(t, filepath.Join(root, "Mod.bsa.extracted"))
}

func TestCreateLeavesFilesLooseWhenArchiveExists(t *testing.T) {
	root := filepath.Join(t.TempDir(), "Mod")
	writeFiles(t, root, map[string]string{"Mod.esp": "", "Mod.bsa": "original", "meshes/a.nif": "mesh"})

	fake := toolstest.New()
	require.NoError(t, NewManager(fake, testSettings(t), logging.Discard()).Create(context.Background(), root))

	assert.Equal(t, "original", readFile(t, filepath.Join(root, "Mod.bsa")))
	assert.Equal(t, "mesh", readFile(t, filepath.Join(root, "meshes", "a.nif")))
	assert.Empty(t, fake.Calls("pack"))
}

func TestCreatePackFailureMovesFilesBack(t *testing.T) {
	root := filepath.Join(t.TempDir(), "Mod")
	writeFiles(t, root, map[string]string{"Mod.esp": "", "meshes/a.nif": "mesh"})

	fake := toolstest.New()
	fake.Fail["pack"] = []string{"Mod.bsa"}
	err := NewManager(fake, testSettings(t), logging.Discard()).Create(context.Background(), root)

	var modErr *ModError
	require.ErrorAs(t, err, &modErr)
	assert.Equal(t, PackFailed, modErr.Kind)
	assert.Equal(t, "mesh", readFile(t, filepath.Join(root, "meshes", "a.nif")))
}

func TestCreateDummyPlugins(t *testing.T) {
	root := filepath.Join(t.TempDir(), "Loose")
	writeFiles(t, root, map[string]string{"meshes/a.nif": "mesh", "textures/a.dds": "tex"})

	settings := testSettings(t)
	writeFiles(t, settings.ResourcesDir, map[string]string{settings.Tools.BlankPlugin: "TES4"})

	require.NoError(t, NewManager(toolstest.New(), settings, logging.Discard()).Create(context.Background(), root))
	assert.Equal(t, "TES4", readFile(t, filepath.Join(root, "Loose.esp")))
}

func TestRemoveEmptyDirsKeepsFiles(t *testing.T) {
	root := t.TempDir()
	writeFiles(t, root, map[string]string{"keep/a.txt": "a"})
	require.NoError(t, os.MkdirAll(filepath.Join(root, "empty", "deeper", "deepest"), 0o755))

	require.NoError(t, RemoveEmptyDirs(root))
	assert.NoDirExists(t, filepath.Join(root, "empty"))
	assert.FileExists(t, filepath.Join(root, "keep", "a.txt"))
	assert.DirExists(t, root)
}
