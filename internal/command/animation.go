package command

import (
	"context"
	"io"
	"os"

	"cao/internal/decision"
	"cao/pkg/assetutil"
)

// AnimationConvert patches legacy 32-bit animations for the amd64 layout.
type AnimationConvert struct {
	env *Env
}

func (c *AnimationConvert) Name() string       { return "Convert animation" }
func (c *AnimationConvert) Priority() Priority { return High }

func (c *AnimationConvert) IsApplicable(ctx context.Context, f *File) bool {
	if _, ok := f.Resource.(Animation); !ok {
		return false
	}
	if decision.Animation(f.Settings.Animations).Verdict != decision.Transform {
		return false
	}
	// Files already in the 64-bit layout are left alone.
	return pointerSize(f.WorkPath()) != 8
}

func (c *AnimationConvert) Process(ctx context.Context, f *File) Result {
	action := decision.Animation(f.Settings.Animations)
	if action.Verdict != decision.Transform {
		return failed(ErrNoWorkRequired)
	}
	if err := c.env.Tools.PatchAnimation(ctx, f.WorkPath(), action.Platform); err != nil {
		return failed(err)
	}
	return done()
}

func pointerSize(path string) int {
	file, err := os.Open(path)
	if err != nil {
		return 0
	}
	defer file.Close()

	header := make([]byte, 32)
	n, err := io.ReadFull(file, header)
	if err != nil && err != io.ErrUnexpectedEOF {
		return 0
	}
	return assetutil.HKXPointerSize(header[:n])
}
