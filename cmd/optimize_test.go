package cmd

import (
	"testing"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func parsedOptimize(t *testing.T, args ...string) *cobra.Command {
	t.Helper()
	cmd := &cobra.Command{Use: "optimize"}
	f := cmd.Flags()
	f.IntVar(&optMeshes, "meshes", 0, "")
	f.IntVar(&optTextures, "textures", 0, "")
	f.BoolVar(&optAnimations, "animations", false, "")
	f.BoolVar(&optHeadparts, "headparts", false, "")
	f.BoolVar(&optExtract, "extract", false, "")
	require.NoError(t, f.Parse(args))
	return cmd
}

func TestPatternFlagsOnlyPatchesGivenFlags(t *testing.T) {
	assert.Nil(t, patternFlags(parsedOptimize(t)))

	got := patternFlags(parsedOptimize(t, "--meshes", "2", "--animations"))
	assert.JSONEq(t, `{"meshes":{"optimization_level":2},"animations":{"optimization_level":1}}`, string(got))

	got = patternFlags(parsedOptimize(t, "--textures=0", "--headparts"))
	assert.JSONEq(t, `{"meshes":{"headparts":true},"textures":{"optimization_level":0}}`, string(got))
}

func TestSetIfChanged(t *testing.T) {
	cmd := parsedOptimize(t, "--extract")

	target := false
	setIfChanged(cmd, "extract", &target, true)
	assert.True(t, target)

	target = true
	setIfChanged(cmd, "headparts", &target, false)
	assert.True(t, target)
}
