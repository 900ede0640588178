package tui

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"cao/internal/processor"
)

func TestModelAccumulatesUpdates(t *testing.T) {
	updates := make(chan processor.ProgressUpdate, 4)
	var m Model = NewModel(updates)

	apply := func(u processor.ProgressUpdate) {
		next, cmd := m.Update(updateMsg(u))
		require.NotNil(t, cmd)
		m = next.(Model)
	}
	apply(processor.ProgressUpdate{TotalDelta: 4, Mod: "Mod"})
	apply(processor.ProgressUpdate{ProcessedDelta: 1, ModifiedDelta: 1, BytesSavedDelta: 1500, File: "textures/a.dds"})
	apply(processor.ProgressUpdate{ProcessedDelta: 1, ErrorDelta: 1, File: "meshes/a.nif"})

	assert.Equal(t, 4, m.total)
	assert.Equal(t, 2, m.processed)
	assert.Equal(t, 1, m.modified)
	assert.Equal(t, 1, m.errors)
	assert.Equal(t, "Mod", m.mod)
	assert.Equal(t, "meshes/a.nif", m.file)

	view := m.View()
	assert.Contains(t, view, "Files: 2/4")
	assert.Contains(t, view, "1.5 kB")
}

func TestModelQuitsWhenUpdatesClose(t *testing.T) {
	updates := make(chan processor.ProgressUpdate)
	close(updates)
	m := NewModel(updates)

	msg := m.Init()()
	assert.IsType(t, doneMsg{}, msg)

	next, cmd := m.Update(msg)
	assert.NotNil(t, cmd)
	assert.Empty(t, next.(Model).View())
}

func TestRatio(t *testing.T) {
	assert.Zero(t, Ratio(3, 0))
	assert.InDelta(t, 0.5, Ratio(1, 2), 1e-9)
	assert.Equal(t, 1.0, Ratio(5, 2))
}

func TestSignedBytes(t *testing.T) {
	assert.Equal(t, "2.0 kB", SignedBytes(2000))
	assert.Equal(t, "-2.0 kB", SignedBytes(-2000))
	assert.Equal(t, "0 B", SignedBytes(0))
}

func TestRenderSummary(t *testing.T) {
	out := RenderSummary(SummaryRows(processor.Summary{Mods: 1, Total: 1200, Processed: 1200, Modified: 3, BytesSaved: 1500}, true))
	lines := strings.Split(out, "\n")
	require.Len(t, lines, 8)
	assert.Equal(t, lines[0], lines[len(lines)-1])
	assert.Contains(t, out, "1,200/1,200")
	assert.Contains(t, out, "1.5 kB")
	assert.Contains(t, out, "nothing was written")
}
