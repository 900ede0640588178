// Package toolstest provides an in-memory tools.Toolbox for tests.
package toolstest

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"cao/internal/tools"
	"cao/pkg/assetutil"
)

// Call records one toolbox invocation.
type Call struct {
	Op   string
	Path string
	Args any
}

// Fake scripts tool behavior and records calls. Transforms append a marker
// to files so tests can see that a file was rewritten.
type Fake struct {
	mu    sync.Mutex
	calls []Call

	Report    []string
	Headparts []string
	ScanErr   error
	Infos     map[string]tools.TextureInfo
	// Fail maps an operation name to the base names it fails for.
	Fail map[string][]string
	// ArchiveSize, when set, is the size written for packed archives.
	ArchiveSize int64
}

func New() *Fake {
	return &Fake{Infos: map[string]tools.TextureInfo{}, Fail: map[string][]string{}}
}

func (f *Fake) record(op, path string, args any) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, Call{Op: op, Path: path, Args: args})
}

func (f *Fake) fails(op, path string) bool {
	for _, name := range f.Fail[op] {
		if SameName(path, name) {
			return true
		}
	}
	return false
}

// SameName reports whether path names the file name, also when path is a
// working copy that carries name as its suffix.
func SameName(path, name string) bool {
	base := strings.ToLower(filepath.Base(path))
	name = strings.ToLower(name)
	return base == name || strings.HasSuffix(base, "-"+name)
}

// Calls returns the recorded calls for op, or all calls when op is empty.
func (f *Fake) Calls(op string) []Call {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []Call
	for _, c := range f.calls {
		if op == "" || c.Op == op {
			out = append(out, c)
		}
	}
	return out
}

func (f *Fake) ScanMeshes(ctx context.Context, dir string, line func(string)) error {
	f.record("scan", dir, nil)
	for _, l := range f.Report {
		line(l)
	}
	return f.ScanErr
}

func (f *Fake) ListHeadparts(ctx context.Context, dir string) ([]string, error) {
	f.record("headparts", dir, nil)
	return f.Headparts, nil
}

func (f *Fake) OptimizeMesh(ctx context.Context, path string, opts tools.MeshOptions) error {
	f.record("mesh", path, opts)
	if f.fails("mesh", path) {
		return &tools.Error{Tool: "mesh", Err: tools.ErrNoSuccessMarker}
	}
	return appendMarker(path, fmt.Sprintf("|mesh head=%v compact=%v", opts.Headpart, opts.CompactShape))
}

func (f *Fake) TextureInfo(ctx context.Context, path string) (tools.TextureInfo, error) {
	f.record("texinfo", path, nil)
	for name, info := range f.Infos {
		if SameName(path, name) {
			return info, nil
		}
	}
	h, err := assetutil.ReadTextureFile(path)
	if err != nil {
		return tools.TextureInfo{}, err
	}
	return tools.TextureInfo{Width: h.Width, Height: h.Height, MipLevels: h.MipLevels, Format: h.Format, Compressed: h.Compressed}, nil
}

func (f *Fake) ConvertTexture(ctx context.Context, path string, opts tools.TextureOptions) (string, error) {
	f.record("texconv", path, opts)
	if f.fails("texconv", path) {
		return "", &tools.Error{Tool: "texconv", Err: fmt.Errorf("conversion failed")}
	}
	ext := opts.OutputExt
	if ext == "" {
		ext = ".dds"
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return "", err
	}
	out := assetutil.SwapExt(path, ext)
	data = append(data, []byte("|texconv "+opts.Format)...)
	if err := os.WriteFile(out, data, 0o644); err != nil {
		return "", err
	}
	return out, nil
}

// UnpackArchive treats the archive as a text file of "relative/path=content" lines.
func (f *Fake) UnpackArchive(ctx context.Context, archive, dest string) error {
	f.record("unpack", archive, dest)
	if f.fails("unpack", archive) {
		return &tools.Error{Tool: "unpack", Err: tools.ErrNoSuccessMarker}
	}
	data, err := os.ReadFile(archive)
	if err != nil {
		return err
	}
	for _, l := range strings.Split(strings.TrimSpace(string(data)), "\n") {
		rel, content, ok := strings.Cut(l, "=")
		if !ok {
			continue
		}
		target := filepath.Join(dest, filepath.FromSlash(rel))
		if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
			return err
		}
		if err := os.WriteFile(target, []byte(content), 0o644); err != nil {
			return err
		}
	}
	return nil
}

// PackArchive writes the sorted file list of the input dir, in the format
// UnpackArchive reads, or a file of ArchiveSize bytes when set.
func (f *Fake) PackArchive(ctx context.Context, opts tools.PackOptions) error {
	f.record("pack", opts.Output, opts)
	if f.fails("pack", opts.Output) {
		return &tools.Error{Tool: "pack", Err: tools.ErrNoSuccessMarker}
	}
	if f.ArchiveSize > 0 {
		file, err := os.Create(opts.Output)
		if err != nil {
			return err
		}
		defer file.Close()
		return file.Truncate(f.ArchiveSize)
	}

	var lines []string
	err := filepath.WalkDir(opts.InputDir, func(path string, d os.DirEntry, err error) error {
		if err != nil || d.IsDir() {
			return err
		}
		rel, err := filepath.Rel(opts.InputDir, path)
		if err != nil {
			return err
		}
		content, err := os.ReadFile(path)
		if err != nil {
			return err
		}
		lines = append(lines, filepath.ToSlash(rel)+"="+string(content))
		return nil
	})
	if err != nil {
		return err
	}
	sort.Strings(lines)
	return os.WriteFile(opts.Output, []byte(strings.Join(lines, "\n")+"\n"), 0o644)
}

func (f *Fake) PatchAnimation(ctx context.Context, path, platform string) error {
	f.record("animation", path, platform)
	if f.fails("animation", path) {
		return &tools.Error{Tool: "animation", Output: "Unrecognized platform", Err: fmt.Errorf("unexpected output")}
	}
	return appendMarker(path, "|anim "+platform)
}

func appendMarker(path, marker string) error {
	file, err := os.OpenFile(path, os.O_APPEND|os.O_WRONLY, 0)
	if err != nil {
		return err
	}
	defer file.Close()
	_, err = file.WriteString(marker)
	return err
}

var _ tools.Toolbox = (*Fake)(nil)
