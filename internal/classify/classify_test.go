package classify

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"cao/internal/logging"
	"cao/pkg/assetutil"
)

type fakeScanner struct {
	report    []string
	headparts []string
	scanErr   error
	// block makes ScanMeshes wait for its context after emitting the report.
	block bool
}

func (f *fakeScanner) ScanMeshes(ctx context.Context, dir string, line func(string)) error {
	for _, l := range f.report {
		line(l)
	}
	if f.block {
		<-ctx.Done()
		return ctx.Err()
	}
	return f.scanErr
}

func (f *fakeScanner) ListHeadparts(ctx context.Context, dir string) ([]string, error) {
	return f.headparts, nil
}

func assertExclusive(t *testing.T, l *Lists) {
	t.Helper()
	for _, p := range l.Headparts.Sorted() {
		assert.False(t, l.Risky.Contains(p), "headpart %s also risky", p)
		assert.False(t, l.Other.Contains(p), "headpart %s also other", p)
	}
	for _, p := range l.Risky.Sorted() {
		assert.False(t, l.Other.Contains(p), "risky %s also other", p)
	}
}

func TestClassifyParsesScannerReport(t *testing.T) {
	root := "/mods/Lux"
	scanner := &fakeScanner{
		report: []string{
			"Scanning...",
			`Checking meshes\armor\iron\cuirass.nif`,
			`Checking meshes\clutter\broken.nif`,
			"  block NiTriStrips is unsupported",
			`Checking Meshes/Actors/Character/FaceGenData/FaceGeom/Skyrim.esm/00013BA2.NIF`,
			"",
			`Checking meshes\clutter\other.nif`,
			"  havok layer NOT SUPPORTED",
		},
		headparts: []string{`meshes\actors\character\hair\long.nif`, `meshes\clutter\broken.nif`},
	}

	c := New(scanner, []string{"meshes/armor/iron/cuirass.nif"}, time.Second, logging.Discard())
	lists, err := c.Classify(context.Background(), root)
	require.NoError(t, err)

	assertExclusive(t, lists)
	assert.Equal(t, 0, lists.Other.Len())
	assert.True(t, lists.Risky.Contains(filepath.Join(root, "meshes/clutter/other.nif")))
	assert.True(t, lists.Headparts.Contains(filepath.Join(root, "meshes/armor/iron/cuirass.nif")))
	assert.True(t, lists.Headparts.Contains(filepath.Join(root, "meshes/actors/character/facegendata/facegeom/skyrim.esm/00013ba2.nif")))
	assert.True(t, lists.Headparts.Contains(filepath.Join(root, "meshes/actors/character/hair/long.nif")))

	broken := filepath.Join(root, "meshes/clutter/broken.nif")
	assert.False(t, lists.Risky.Contains(broken))
	assert.True(t, lists.RiskyHeadparts.Contains(broken))
	assert.True(t, lists.Lookup(broken).Headpart)
}

func TestClassifyKeepsPartialResultsOnTimeout(t *testing.T) {
	scanner := &fakeScanner{
		report: []string{`meshes\a.nif`, "unsupported", `meshes\b.nif`},
		block:  true,
	}

	c := New(scanner, nil, 10*time.Millisecond, logging.Discard())
	lists, err := c.Classify(context.Background(), "/mods/m")
	require.NoError(t, err)

	assert.True(t, lists.Risky.Contains("/mods/m/meshes/a.nif"))
	assert.True(t, lists.Other.Contains("/mods/m/meshes/b.nif"))
}

func TestClassifyScannerFailureIsSoft(t *testing.T) {
	scanner := &fakeScanner{report: []string{`meshes\a.nif`}, scanErr: errors.New("exit status 3")}

	c := New(scanner, nil, time.Second, logging.Discard())
	lists, err := c.Classify(context.Background(), "/mods/m")
	require.NoError(t, err)
	assert.Equal(t, 1, lists.Other.Len())
}

func TestClassifyStopsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	c := New(&fakeScanner{}, nil, time.Second, logging.Discard())
	_, err := c.Classify(ctx, "/mods/m")
	assert.ErrorIs(t, err, context.Canceled)
}

func TestPathSetDeduplicatesAndDropsEmpty(t *testing.T) {
	s := NewPathSet(`/m/Meshes\A.nif`, "/m/meshes/a.nif", "", "   ")
	assert.Equal(t, 1, s.Len())
	s.Remove("/M/MESHES/A.NIF")
	assert.Equal(t, 0, s.Len())
}

func TestLoadCustomHeadparts(t *testing.T) {
	path := filepath.Join(t.TempDir(), "customHeadparts.txt")
	content := "# custom headparts\n\nmeshes/actor/special.nif\n  meshes\\actor\\other.nif  \n"
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))

	got, err := LoadCustomHeadparts(path)
	require.NoError(t, err)
	assert.Equal(t, []string{"meshes/actor/special.nif", `meshes\actor\other.nif`}, got)

	_, err = LoadCustomHeadparts(filepath.Join(t.TempDir(), "missing.txt"))
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func TestHeaderRisk(t *testing.T) {
	native := assetutil.NifHeader{Version: assetutil.NifVersion20207, UserVersion: 12, StreamVersion: 100}
	risk, ok := HeaderRisk(native)
	assert.Equal(t, Good, risk)
	assert.True(t, ok)

	legacy := native
	legacy.StreamVersion = 83
	risk, ok = HeaderRisk(legacy)
	assert.Equal(t, CriticalIssue, risk)
	assert.False(t, ok)

	strips := native
	strips.BlockTypes = []string{"NiNode", "NiTriStrips"}
	risk, _ = HeaderRisk(strips)
	assert.Equal(t, CriticalIssue, risk)

	for _, block := range []string{"NiParticleSystem", "NiParticles", "NiParticlesData"} {
		particles := native
		particles.BlockTypes = []string{"NiNode", block}
		risk, _ = HeaderRisk(particles)
		assert.Equal(t, DoNotProcess, risk, block)
	}

	// Readable, neither legacy nor native: nothing to flag.
	older := native
	older.Version = 0x14000005
	older.UserVersion = 11
	older.StreamVersion = 34
	risk, ok = HeaderRisk(older)
	assert.Equal(t, Good, risk)
	assert.False(t, ok)
}

func TestInspectMeshUnreadableIsDoNotProcess(t *testing.T) {
	path := filepath.Join(t.TempDir(), "garbage.nif")
	require.NoError(t, os.WriteFile(path, []byte("not a mesh"), 0644))

	risk, native := InspectMesh(path)
	assert.Equal(t, DoNotProcess, risk)
	assert.False(t, native)
}

func TestWorst(t *testing.T) {
	assert.Equal(t, Good, Worst())
	assert.Equal(t, DoNotProcess, Worst(LightIssue, DoNotProcess, CriticalIssue))
}
