package command

import (
	"context"
	"os"
	"regexp"

	"github.com/sirupsen/logrus"

	"cao/internal/classify"
	"cao/internal/decision"
	"cao/internal/logging"
)

// MeshConvert runs the mesh optimizer with the options the decision engine
// picks from the classification lists and the mesh header.
type MeshConvert struct {
	env *Env
}

func (c *MeshConvert) Name() string       { return "Optimize mesh" }
func (c *MeshConvert) Priority() Priority { return High }

func (c *MeshConvert) decide(f *File) decision.MeshAction {
	var class classify.MeshClass
	if c.env.Lists != nil {
		class = c.env.Lists.Lookup(f.Path)
	}
	class.Risk, class.Native = classify.InspectMesh(f.WorkPath())
	return decision.Mesh(class, f.Settings.Meshes)
}

func (c *MeshConvert) IsApplicable(ctx context.Context, f *File) bool {
	if _, ok := f.Resource.(Mesh); !ok {
		return false
	}
	return c.decide(f).Verdict == decision.Transform
}

func (c *MeshConvert) noteSkipped(ctx context.Context, f *File, log logrus.FieldLogger) {
	if _, ok := f.Resource.(Mesh); !ok {
		return
	}
	if c.decide(f).Verdict == decision.DoNotProcess {
		log.Warn("This mesh cannot be processed safely and was left unchanged. Check it in a mesh editor")
	}
}

func (c *MeshConvert) Process(ctx context.Context, f *File) Result {
	action := c.decide(f)
	if action.Verdict != decision.Transform {
		return failed(ErrNoWorkRequired)
	}
	c.env.Log.WithField(logging.FieldFile, f.RelPath).Debugf("optimizing mesh: %s", action.Reason)
	if err := c.env.Tools.OptimizeMesh(ctx, f.WorkPath(), action.Options); err != nil {
		return failed(err)
	}
	return done()
}

// tgaRef matches a texture path ending in .tga inside mesh data.
var tgaRef = regexp.MustCompile(`(?i)\.tga\b`)

// MeshRenameTextures points texture references of a mesh at the .dds files
// the texture commands produce from .tga ones. It patches bytes in place and
// keeps string lengths, so it runs after the mesh optimizer.
type MeshRenameTextures struct {
	env *Env
}

func (c *MeshRenameTextures) Name() string       { return "Rename referenced textures" }
func (c *MeshRenameTextures) Priority() Priority { return Low }

func (c *MeshRenameTextures) IsApplicable(ctx context.Context, f *File) bool {
	if _, ok := f.Resource.(Mesh); !ok {
		return false
	}
	if f.Settings.Textures.OptimizationLevel < decision.TextureNecessary {
		return false
	}
	if risk, _ := classify.InspectMesh(f.WorkPath()); risk == classify.DoNotProcess {
		return false
	}
	data, err := os.ReadFile(f.WorkPath())
	return err == nil && tgaRef.Match(data)
}

func (c *MeshRenameTextures) Process(ctx context.Context, f *File) Result {
	data, err := os.ReadFile(f.WorkPath())
	if err != nil {
		return failed(err)
	}
	if !tgaRef.Match(data) {
		return failed(ErrNoWorkRequired)
	}
	data = tgaRef.ReplaceAll(data, []byte(".dds"))
	if err := os.WriteFile(f.WorkPath(), data, 0o644); err != nil {
		return failed(err)
	}
	return done()
}
