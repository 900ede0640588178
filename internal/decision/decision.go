package decision

import (
	"strings"

	"cao/internal/classify"
	"cao/internal/config"
	"cao/internal/patterns"
	"cao/internal/tools"
)

// Verdict is the outcome of a decision.
type Verdict int

const (
	Skip Verdict = iota
	Transform
	DoNotProcess
)

func (v Verdict) String() string {
	switch v {
	case Transform:
		return "transform"
	case DoNotProcess:
		return "do not process"
	default:
		return "skip"
	}
}

// Mesh optimization tiers.
const (
	MeshNecessary = 1
	MeshMedium    = 2
	MeshFull      = 3
)

// Texture optimization tiers.
const (
	TextureNecessary = 1
	TextureFull      = 2
)

type MeshAction struct {
	Verdict Verdict
	Options tools.MeshOptions
	Reason  string
}

// Mesh decides how to treat one mesh. Tier 0 skips everything, then
// DoNotProcess wins over every other rule; the remaining rules are tried in
// order and the first match wins.
func Mesh(c classify.MeshClass, s patterns.MeshSettings) MeshAction {
	level := s.OptimizationLevel
	transform := func(headpart, compact bool, reason string) MeshAction {
		return MeshAction{
			Verdict: Transform,
			Options: tools.MeshOptions{Headpart: headpart, CompactShape: compact, Target: tools.TargetSSE},
			Reason:  reason,
		}
	}

	switch {
	case level <= 0:
		return MeshAction{Verdict: Skip, Reason: "mesh optimization disabled"}
	case c.Risk == classify.DoNotProcess:
		return MeshAction{Verdict: DoNotProcess, Reason: "mesh cannot be processed safely"}
	case s.Headparts && c.Headpart:
		return transform(true, true, "headpart, necessary optimization")
	case c.Risky || c.RiskyHeadpart || c.Risk >= classify.CriticalIssue:
		return transform(false, true, "necessary optimization")
	case level >= MeshFull && c.Other && !alreadyCompatible(c):
		return transform(false, true, "full optimization")
	case level >= MeshMedium && c.Other && !alreadyCompatible(c):
		return transform(false, false, "medium optimization")
	case level >= MeshFull && !c.Other && !alreadyCompatible(c):
		return transform(false, true, "full optimization of unlisted mesh")
	default:
		return MeshAction{Verdict: Skip, Reason: "no optimization required"}
	}
}

// alreadyCompatible is the shortcut for meshes already in the target
// representation that nothing has flagged.
func alreadyCompatible(c classify.MeshClass) bool {
	return c.Native && c.Risk == classify.Good && !c.Headpart && !c.Risky && !c.RiskyHeadpart
}

// TextureInput is what is known about a texture before deciding.
type TextureInput struct {
	// Path is relative to the mod root.
	Path string
	// Ext is the lowercased extension.
	Ext string
	// Info is nil when the header could not be read.
	Info *tools.TextureInfo
}

type TextureAction struct {
	Verdict Verdict
	Options tools.TextureOptions
	Reason  string
}

// minConvertArea is the pixel count at or below which uncompressed textures
// are left alone.
const minConvertArea = 16

// Texture decides whether a DDS or TGA texture is converted.
func Texture(in TextureInput, s patterns.TextureSettings) TextureAction {
	level := s.OptimizationLevel
	if level <= 0 {
		return TextureAction{Verdict: Skip, Reason: "texture optimization disabled"}
	}
	if len(s.Landscape) > 0 && patterns.MatchAny(s.Landscape, in.Path) {
		return TextureAction{Verdict: Skip, Reason: "landscape texture"}
	}

	target := s.Format
	if target == "" {
		target = patterns.DefaultTextureFormat
	}
	opts := tools.TextureOptions{Format: target, Mipmaps: s.Mipmaps, OutputExt: ".dds"}
	if in.Info != nil {
		opts.Width, opts.Height = resize(in.Info.Width, in.Info.Height, s.Resizing)
	}
	resized := in.Info != nil && opts.Width > 0 && (opts.Width != in.Info.Width || opts.Height != in.Info.Height)

	switch in.Ext {
	case ".tga":
		if level < TextureFull {
			opts.Format = "R8G8B8A8_UNORM"
		}
		return TextureAction{Verdict: Transform, Options: opts, Reason: "tga converted to dds"}
	case ".dds":
	default:
		return TextureAction{Verdict: Skip, Reason: "not a convertible texture"}
	}

	if in.Info == nil {
		return TextureAction{Verdict: Skip, Reason: "texture header unreadable"}
	}
	info := in.Info

	switch {
	case containsFold(s.UnwantedFormats, info.Format):
		return TextureAction{Verdict: Transform, Options: opts, Reason: "unwanted format " + info.Format}
	case resized:
		opts.Format = info.Format
		if !info.Compressed && level >= TextureFull && info.Width*info.Height > minConvertArea {
			opts.Format = target
		}
		return TextureAction{Verdict: Transform, Options: opts, Reason: "resized"}
	case level >= TextureFull && !info.Compressed && info.Width*info.Height > minConvertArea:
		return TextureAction{Verdict: Transform, Options: opts, Reason: "uncompressed texture"}
	case level >= TextureFull && s.ForceConvert && !strings.EqualFold(info.Format, target):
		return TextureAction{Verdict: Transform, Options: opts, Reason: "forced conversion"}
	default:
		return TextureAction{Verdict: Skip, Reason: "no optimization required"}
	}
}

// resize returns the target size, or 0, 0 when no resize applies.
func resize(width, height int, r patterns.Resizing) (int, int) {
	var w, h int
	switch r.Mode {
	case patterns.ResizeRatio:
		if r.Width <= 0 || r.Height <= 0 {
			return 0, 0
		}
		w, h = width/r.Width, height/r.Height
	case patterns.ResizeFixed:
		w, h = r.Width, r.Height
	default:
		return 0, 0
	}
	if w < r.MinimumWidth {
		w = r.MinimumWidth
	}
	if h < r.MinimumHeight {
		h = r.MinimumHeight
	}
	// Never upscale.
	if w <= 0 || h <= 0 || w > width || h > height || (w == width && h == height) {
		return 0, 0
	}
	return w, h
}

type AnimationAction struct {
	Verdict  Verdict
	Platform string
}

// Animation patches every animation once the tier is at least 1.
func Animation(s patterns.AnimationSettings) AnimationAction {
	if s.OptimizationLevel >= 1 {
		return AnimationAction{Verdict: Transform, Platform: tools.PlatformAMD64}
	}
	return AnimationAction{Verdict: Skip}
}

// ArchiveOp names the two archive steps.
type ArchiveOp int

const (
	ArchiveExtract ArchiveOp = iota
	ArchiveCreate
)

// Archive decides whether an archive step runs for the mod.
func Archive(op ArchiveOp, s config.ArchiveSettings, dryRun bool) Verdict {
	if dryRun {
		return Skip
	}
	switch {
	case op == ArchiveExtract && s.Extract:
		return Transform
	case op == ArchiveCreate && s.Create:
		return Transform
	default:
		return Skip
	}
}

func containsFold(list []string, s string) bool {
	for _, item := range list {
		if strings.EqualFold(item, s) {
			return true
		}
	}
	return false
}
