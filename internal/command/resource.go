package command

import (
	"cao/internal/decision"
	"cao/pkg/assetutil"
)

// Resource is what a File holds. Commands switch on the concrete type to
// decide whether they apply.
type Resource interface {
	resource()
}

type Mesh struct{}

type Texture struct {
	// Ext is the lowercased extension of the original file.
	Ext string
}

type Animation struct{}

// ArchiveFolder stands for a whole mod during an archive step.
type ArchiveFolder struct {
	Root string
	Op   decision.ArchiveOp
}

func (Mesh) resource()          {}
func (Texture) resource()       {}
func (Animation) resource()     {}
func (ArchiveFolder) resource() {}

// ResourceFor returns the resource of an asset path, or nil when no command
// handles files of that kind.
func ResourceFor(path string) Resource {
	switch assetutil.KindOf(path) {
	case assetutil.KindMesh:
		return Mesh{}
	case assetutil.KindTexture:
		return Texture{Ext: assetutil.Ext(path)}
	case assetutil.KindAnimation:
		return Animation{}
	default:
		return nil
	}
}
