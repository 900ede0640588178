package tools

import (
	"context"
	"errors"
	"fmt"
)

// MeshOptions select the shape the mesh optimizer writes.
type MeshOptions struct {
	Headpart     bool
	CompactShape bool
	// Target is the version triple the mesh must end up in.
	Target string
}

// TargetSSE is the version triple of the special edition mesh format.
const TargetSSE = "20.2.0.7/12/100"

// TextureInfo is the report of the texture inspection tool.
type TextureInfo struct {
	Width      int
	Height     int
	MipLevels  int
	Format     string
	Compressed bool
}

// TextureOptions drive one texture conversion.
type TextureOptions struct {
	Format  string
	Width   int
	Height  int
	Mipmaps bool
	// OutputExt is the extension of the converted file, ".dds" when empty.
	OutputExt string
}

// PackOptions drive one archive creation.
type PackOptions struct {
	InputDir  string
	Output    string
	Compress  bool
	ShareData bool
}

// PlatformAMD64 is the animation platform of the special edition.
const PlatformAMD64 = "amd64"

// Toolbox is every external operation the optimizer delegates. Transform
// calls block until the tool exits; scan calls honor ctx deadlines.
type Toolbox interface {
	ScanMeshes(ctx context.Context, dir string, line func(string)) error
	ListHeadparts(ctx context.Context, dir string) ([]string, error)
	OptimizeMesh(ctx context.Context, path string, opts MeshOptions) error
	TextureInfo(ctx context.Context, path string) (TextureInfo, error)
	// ConvertTexture writes the converted texture next to path and returns
	// its path, which differs from path when the extension changes.
	ConvertTexture(ctx context.Context, path string, opts TextureOptions) (string, error)
	UnpackArchive(ctx context.Context, archive, dest string) error
	PackArchive(ctx context.Context, opts PackOptions) error
	PatchAnimation(ctx context.Context, path, platform string) error
}

// ErrNoSuccessMarker is returned when a tool exits without printing the
// marker that signals success.
var ErrNoSuccessMarker = errors.New("no success marker in tool output")

// Error carries the output of a failed tool run.
type Error struct {
	Tool   string
	Output string
	Err    error
}

func (e *Error) Error() string {
	if e.Output == "" {
		return fmt.Sprintf("%s: %v", e.Tool, e.Err)
	}
	return fmt.Sprintf("%s: %v: %s", e.Tool, e.Err, e.Output)
}

func (e *Error) Unwrap() error {
	return e.Err
}
