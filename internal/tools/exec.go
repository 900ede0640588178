package tools

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"cao/internal/config"
	"cao/pkg/assetutil"
)

// waitDelay bounds how long a killed tool may keep its output pipes open.
const waitDelay = 2 * time.Second

// Exec runs the external tools found in the resources directory.
type Exec struct {
	settings config.Settings
}

func NewExec(settings config.Settings) *Exec {
	return &Exec{settings: settings}
}

// Missing lists the configured executables that do not exist on disk.
func (e *Exec) Missing(withAnimations bool) []string {
	t := e.settings.Tools
	required := []string{t.MeshScanner, t.HeadpartLister, t.MeshOptimizer, t.TextureInfo, t.TextureConverter, t.Archiver}
	if withAnimations {
		required = append(required, t.AnimationPatcher)
	}

	var missing []string
	for _, name := range required {
		if name == "" {
			continue
		}
		if _, err := os.Stat(e.settings.ToolPath(name)); err != nil {
			missing = append(missing, name)
		}
	}
	return missing
}

func (e *Exec) command(ctx context.Context, tool string, args ...string) *exec.Cmd {
	path := e.settings.ToolPath(tool)
	if launcher := e.settings.Launcher; len(launcher) > 0 {
		args = append(append(append([]string{}, launcher[1:]...), path), args...)
		path = launcher[0]
	}
	cmd := exec.CommandContext(ctx, path, args...)
	cmd.WaitDelay = waitDelay
	return cmd
}

func (e *Exec) run(ctx context.Context, tool string, args ...string) (string, error) {
	cmd := e.command(ctx, tool, args...)
	var out bytes.Buffer
	cmd.Stdout = &out
	cmd.Stderr = &out
	if err := cmd.Run(); err != nil {
		return out.String(), &Error{Tool: tool, Output: strings.TrimSpace(out.String()), Err: err}
	}
	return out.String(), nil
}

func (e *Exec) runWithMarker(ctx context.Context, marker, tool string, args ...string) error {
	out, err := e.run(ctx, tool, args...)
	if err != nil {
		return err
	}
	if marker != "" && !strings.Contains(out, marker) {
		return &Error{Tool: tool, Output: strings.TrimSpace(out), Err: ErrNoSuccessMarker}
	}
	return nil
}

// ScanMeshes streams the scanner report line by line. When ctx expires the
// tool is killed and the lines read so far have already been delivered.
func (e *Exec) ScanMeshes(ctx context.Context, dir string, line func(string)) error {
	tool := e.settings.Tools.MeshScanner
	cmd := e.command(ctx, tool, dir, "-fixdds")

	pr, pw := io.Pipe()
	cmd.Stdout = pw
	cmd.Stderr = pw
	if err := cmd.Start(); err != nil {
		return &Error{Tool: tool, Err: err}
	}

	waitErr := make(chan error, 1)
	go func() {
		err := cmd.Wait()
		_ = pw.Close()
		waitErr <- err
	}()

	scanner := bufio.NewScanner(pr)
	buf := make([]byte, 0, 64*1024)
	scanner.Buffer(buf, 1024*1024)
	for scanner.Scan() {
		line(scanner.Text())
	}
	// Drain so Wait can finish if the scanner stopped early.
	_, _ = io.Copy(io.Discard, pr)

	if err := <-waitErr; err != nil {
		return &Error{Tool: tool, Err: err}
	}
	return scanner.Err()
}

func (e *Exec) ListHeadparts(ctx context.Context, dir string) ([]string, error) {
	out, err := e.run(ctx, e.settings.Tools.HeadpartLister, dir)
	if err != nil {
		return nil, err
	}

	var paths []string
	for _, l := range strings.Split(out, "\n") {
		l = strings.TrimSpace(l)
		if l == "" || strings.HasPrefix(l, "#") {
			continue
		}
		paths = append(paths, l)
	}
	return paths, nil
}

func (e *Exec) OptimizeMesh(ctx context.Context, path string, opts MeshOptions) error {
	return e.runWithMarker(ctx, e.settings.Tools.MeshSuccessMarker, e.settings.Tools.MeshOptimizer,
		path, "-head", boolArg(opts.Headpart), "-bsTriShape", boolArg(opts.CompactShape))
}

func (e *Exec) TextureInfo(ctx context.Context, path string) (TextureInfo, error) {
	out, err := e.run(ctx, e.settings.Tools.TextureInfo, "info", path)
	if err != nil {
		return TextureInfo{}, err
	}
	return ParseTextureInfo(out)
}

func (e *Exec) ConvertTexture(ctx context.Context, path string, opts TextureOptions) (string, error) {
	ext := opts.OutputExt
	if ext == "" {
		ext = ".dds"
	}
	mips := "1"
	if opts.Mipmaps {
		mips = "0"
	}

	args := []string{"-nologo", "-y", "-m", mips, "-pow2", "-if", "FANT", "-f", opts.Format}
	if opts.Width > 0 && opts.Height > 0 {
		args = append(args, "-w", strconv.Itoa(opts.Width), "-h", strconv.Itoa(opts.Height))
	}
	args = append(args, "-ft", strings.TrimPrefix(ext, "."), "-o", filepath.Dir(path), path)

	tool := e.settings.Tools.TextureConverter
	out, err := e.run(ctx, tool, args...)
	if err != nil {
		return "", err
	}

	converted := assetutil.SwapExt(path, ext)
	if _, err := os.Stat(converted); err != nil {
		return "", &Error{Tool: tool, Output: strings.TrimSpace(out), Err: fmt.Errorf("converted texture missing: %w", err)}
	}
	return converted, nil
}

func (e *Exec) UnpackArchive(ctx context.Context, archive, dest string) error {
	return e.runWithMarker(ctx, e.settings.Tools.ArchiverSuccessMarker, e.settings.Tools.Archiver,
		"unpack", archive, dest)
}

func (e *Exec) PackArchive(ctx context.Context, opts PackOptions) error {
	args := []string{"pack", opts.InputDir, opts.Output, "-sse"}
	if opts.ShareData {
		args = append(args, "-share")
	}
	if opts.Compress {
		args = append(args, "-z")
	}
	return e.runWithMarker(ctx, e.settings.Tools.ArchiverSuccessMarker, e.settings.Tools.Archiver, args...)
}

// PatchAnimation succeeds only when the patcher prints nothing.
func (e *Exec) PatchAnimation(ctx context.Context, path, platform string) error {
	tool := e.settings.Tools.AnimationPatcher
	out, err := e.run(ctx, tool, "--platform"+platform, path, path)
	if err != nil {
		return err
	}
	if strings.TrimSpace(out) != "" {
		return &Error{Tool: tool, Output: strings.TrimSpace(out), Err: errors.New("unexpected output")}
	}
	return nil
}

func boolArg(b bool) string {
	if b {
		return "1"
	}
	return "0"
}

// ParseTextureInfo reads the "key = value" report of the texture inspection tool.
func ParseTextureInfo(report string) (TextureInfo, error) {
	values := map[string]string{}
	for _, l := range strings.Split(report, "\n") {
		key, value, ok := strings.Cut(l, "=")
		if !ok {
			continue
		}
		values[strings.ToLower(strings.TrimSpace(key))] = strings.TrimSpace(value)
	}

	width, err := strconv.Atoi(values["width"])
	if err != nil {
		return TextureInfo{}, fmt.Errorf("texture info: width: %w", err)
	}
	height, err := strconv.Atoi(values["height"])
	if err != nil {
		return TextureInfo{}, fmt.Errorf("texture info: height: %w", err)
	}

	info := TextureInfo{
		Width:      width,
		Height:     height,
		MipLevels:  1,
		Format:     values["format"],
		Compressed: strings.EqualFold(values["compressed"], "yes"),
	}
	if mips, err := strconv.Atoi(values["miplevels"]); err == nil {
		info.MipLevels = mips
	}
	if _, ok := values["compressed"]; !ok {
		info.Compressed = assetutil.IsBlockCompressed(info.Format)
	}
	return info, nil
}
