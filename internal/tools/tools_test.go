package tools

import (
	"context"
	"os"
	"path/filepath"
	"runtime"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"cao/internal/config"
)

const texdiagReport = `D:\mods\Lux\textures\sky.dds
        width = 2048
       height = 1024
        depth = 1
    mipLevels = 12
    arraySize = 1
       format = B8G8R8A8_UNORM
    dimension = 2D
   alpha mode = Unknown
       images = 12
   pixel size = 10922 (KB)
   compressed = no
`

func TestParseTextureInfo(t *testing.T) {
	info, err := ParseTextureInfo(texdiagReport)
	require.NoError(t, err)
	assert.Equal(t, TextureInfo{Width: 2048, Height: 1024, MipLevels: 12, Format: "B8G8R8A8_UNORM", Compressed: false}, info)
}

func TestParseTextureInfoInfersCompression(t *testing.T) {
	info, err := ParseTextureInfo("width = 4\nheight = 4\nformat = BC3_UNORM\n")
	require.NoError(t, err)
	assert.True(t, info.Compressed)
	assert.Equal(t, 1, info.MipLevels)
}

func TestParseTextureInfoRejectsGarbage(t *testing.T) {
	_, err := ParseTextureInfo("FAILED (80070002)")
	assert.Error(t, err)
}

// scriptTools writes shell scripts standing in for the external tools and
// runs them through "sh" as the launcher.
func scriptTools(t *testing.T, scripts map[string]string) *Exec {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("shell scripts stand in for the tools")
	}
	dir := t.TempDir()
	for name, body := range scripts {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(body), 0o644))
	}

	settings := config.Default()
	settings.ResourcesDir = dir
	settings.Launcher = []string{"sh"}
	settings.Tools.MeshScanner = "scan.sh"
	settings.Tools.Archiver = "archive.sh"
	settings.Tools.AnimationPatcher = "anim.sh"
	settings.Tools.MeshOptimizer = "opt.sh"
	settings.Tools.MeshSuccessMarker = "Saved"
	return NewExec(settings)
}

func TestExecScanMeshesStreamsLines(t *testing.T) {
	e := scriptTools(t, map[string]string{
		"scan.sh": "echo \"scanning $1 $2\"\nprintf '%s\\n' 'meshes\\a.nif'\necho 'unsupported block' 1>&2\n",
	})

	var lines []string
	err := e.ScanMeshes(context.Background(), "/mods/m", func(l string) { lines = append(lines, l) })
	require.NoError(t, err)
	assert.Equal(t, []string{"scanning /mods/m -fixdds", `meshes\a.nif`, "unsupported block"}, lines)
}

func TestExecScanMeshesTimeoutKeepsPartialLines(t *testing.T) {
	e := scriptTools(t, map[string]string{
		"scan.sh": "printf '%s\\n' 'meshes\\early.nif'\nsleep 5\nprintf '%s\\n' 'meshes\\late.nif'\n",
	})

	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()

	var lines []string
	err := e.ScanMeshes(ctx, "/mods/m", func(l string) { lines = append(lines, l) })
	assert.Error(t, err)
	assert.Equal(t, []string{`meshes\early.nif`}, lines)
}

func TestExecArchiverSuccessMarker(t *testing.T) {
	e := scriptTools(t, map[string]string{
		"archive.sh": "if [ \"$1\" = unpack ]; then echo 'Unpacking... Done'; else echo 'Packing failed'; fi\n",
	})

	require.NoError(t, e.UnpackArchive(context.Background(), "a.bsa", "a.bsa.extracted"))

	err := e.PackArchive(context.Background(), PackOptions{InputDir: "dir", Output: "a.bsa", ShareData: true})
	assert.ErrorIs(t, err, ErrNoSuccessMarker)
	var toolErr *Error
	require.ErrorAs(t, err, &toolErr)
	assert.Equal(t, "archive.sh", toolErr.Tool)
	assert.Contains(t, toolErr.Output, "Packing failed")
}

func TestExecMeshOptimizerArguments(t *testing.T) {
	e := scriptTools(t, map[string]string{
		"opt.sh": "[ \"$2 $3 $4 $5\" = \"-head 1 -bsTriShape 1\" ] && echo Saved\n",
	})

	require.NoError(t, e.OptimizeMesh(context.Background(), "x.nif", MeshOptions{Headpart: true, CompactShape: true}))
	assert.Error(t, e.OptimizeMesh(context.Background(), "x.nif", MeshOptions{}))
}

func TestExecMeshOptimizerWithoutMarkerUsesExitStatus(t *testing.T) {
	e := scriptTools(t, map[string]string{
		"opt.sh": "[ \"$3\" = 1 ] || exit 1\n",
	})
	e.settings.Tools.MeshSuccessMarker = ""

	require.NoError(t, e.OptimizeMesh(context.Background(), "x.nif", MeshOptions{Headpart: true}))
	err := e.OptimizeMesh(context.Background(), "x.nif", MeshOptions{})
	assert.Error(t, err)
	assert.NotErrorIs(t, err, ErrNoSuccessMarker)
}

func TestExecAnimationPatchNeedsEmptyOutput(t *testing.T) {
	e := scriptTools(t, map[string]string{
		"anim.sh": "[ \"$1\" = --platformamd64 ] || echo \"bad platform $1\"\n",
	})

	require.NoError(t, e.PatchAnimation(context.Background(), "a.hkx", PlatformAMD64))
	assert.Error(t, e.PatchAnimation(context.Background(), "a.hkx", "win32"))
}

func TestExecMissing(t *testing.T) {
	e := scriptTools(t, map[string]string{"scan.sh": "", "archive.sh": ""})
	missing := e.Missing(false)
	assert.Contains(t, missing, "opt.sh")
	assert.NotContains(t, missing, "scan.sh")
	assert.NotContains(t, missing, "anim.sh")
	assert.Contains(t, e.Missing(true), "anim.sh")
}
