package command

import (
	"context"
	"os"

	"cao/internal/decision"
	"cao/internal/logging"
	"cao/internal/tools"
	"cao/pkg/assetutil"
)

// TextureConvert recompresses, resizes or converts a texture to DDS.
type TextureConvert struct {
	env *Env
}

func (c *TextureConvert) Name() string       { return "Convert texture" }
func (c *TextureConvert) Priority() Priority { return High }

// inspect reads the header natively and falls back to the texture
// inspection tool for DDS variants the reader does not know.
func (c *TextureConvert) inspect(ctx context.Context, f *File, ext string) *tools.TextureInfo {
	if h, err := assetutil.ReadTextureFile(f.WorkPath()); err == nil {
		return &tools.TextureInfo{
			Width:      h.Width,
			Height:     h.Height,
			MipLevels:  h.MipLevels,
			Format:     h.Format,
			Compressed: h.Compressed,
		}
	}
	if ext != ".dds" {
		return nil
	}
	info, err := c.env.Tools.TextureInfo(ctx, f.WorkPath())
	if err != nil {
		c.env.Log.WithField(logging.FieldFile, f.RelPath).WithError(err).Debug("texture info unavailable")
		return nil
	}
	return &info
}

func (c *TextureConvert) decide(ctx context.Context, f *File) decision.TextureAction {
	tex, ok := f.Resource.(Texture)
	if !ok {
		return decision.TextureAction{Verdict: decision.Skip}
	}
	if tex.Ext != ".dds" && tex.Ext != ".tga" {
		return decision.TextureAction{Verdict: decision.Skip}
	}
	return decision.Texture(decision.TextureInput{
		Path: f.RelPath,
		Ext:  tex.Ext,
		Info: c.inspect(ctx, f, tex.Ext),
	}, f.Settings.Textures)
}

func (c *TextureConvert) IsApplicable(ctx context.Context, f *File) bool {
	return c.decide(ctx, f).Verdict == decision.Transform
}

func (c *TextureConvert) Process(ctx context.Context, f *File) Result {
	action := c.decide(ctx, f)
	if action.Verdict != decision.Transform {
		return failed(ErrNoWorkRequired)
	}
	c.env.Log.WithField(logging.FieldFile, f.RelPath).Debugf("converting texture to %s: %s", action.Options.Format, action.Reason)

	out, err := c.env.Tools.ConvertTexture(ctx, f.WorkPath(), action.Options)
	if err != nil {
		return failed(err)
	}
	if out != f.WorkPath() {
		f.Replace(out)
	}
	return done()
}

// TextureStripMetadata drops text, time and EXIF chunks from PNG textures.
type TextureStripMetadata struct {
	env *Env
}

func (c *TextureStripMetadata) Name() string       { return "Strip texture metadata" }
func (c *TextureStripMetadata) Priority() Priority { return Low }

func (c *TextureStripMetadata) metadata(f *File) (pngMetadata, bool) {
	tex, ok := f.Resource.(Texture)
	if !ok || tex.Ext != ".png" {
		return pngMetadata{}, false
	}
	s := f.Settings.Textures
	if s.OptimizationLevel < decision.TextureFull || !s.StripMetadata {
		return pngMetadata{}, false
	}

	file, err := os.Open(f.WorkPath())
	if err != nil {
		return pngMetadata{}, false
	}
	defer file.Close()

	meta, err := scanPNG(file)
	if err != nil {
		return pngMetadata{}, false
	}
	return meta, true
}

func (c *TextureStripMetadata) IsApplicable(ctx context.Context, f *File) bool {
	meta, ok := c.metadata(f)
	return ok && !meta.Empty()
}

func (c *TextureStripMetadata) Process(ctx context.Context, f *File) Result {
	meta, ok := c.metadata(f)
	if !ok || meta.Empty() {
		return failed(ErrNoWorkRequired)
	}

	scratch, err := f.Scratch()
	if err != nil {
		return failed(err)
	}
	if err := stripFile(f.WorkPath(), scratch); err != nil {
		return failed(err)
	}
	c.env.Log.WithField(logging.FieldFile, f.RelPath).
		Debugf("stripped %d text chunks and %d EXIF tags", meta.TextChunks, meta.ExifTags)
	f.Replace(scratch)
	return done()
}

func stripFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.OpenFile(dst, os.O_WRONLY|os.O_TRUNC, 0)
	if err != nil {
		return err
	}
	if err := stripPNG(in, out); err != nil {
		_ = out.Close()
		return err
	}
	if err := out.Sync(); err != nil {
		_ = out.Close()
		return err
	}
	return out.Close()
}
