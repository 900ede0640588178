package tui

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/progress"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/dustin/go-humanize"

	"cao/internal/processor"
)

type Model struct {
	updates    <-chan processor.ProgressUpdate
	bar        progress.Model
	started    time.Time
	width      int
	total      int
	processed  int
	errors     int
	modified   int
	bytesSaved int64
	mod        string
	file       string
	quitting   bool
}

type doneMsg struct{}

type updateMsg processor.ProgressUpdate

func NewModel(updates <-chan processor.ProgressUpdate) Model {
	bar := progress.New(
		progress.WithGradient(string(ColorAccentAlt), string(ColorSuccess)),
		progress.WithWidth(40),
	)
	return Model{updates: updates, bar: bar, started: time.Now()}
}

func (m Model) Init() tea.Cmd {
	return listenForUpdates(m.updates)
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case updateMsg:
		m.total += msg.TotalDelta
		m.processed += msg.ProcessedDelta
		m.errors += msg.ErrorDelta
		m.modified += msg.ModifiedDelta
		m.bytesSaved += msg.BytesSavedDelta
		if msg.Mod != "" {
			m.mod = msg.Mod
			m.file = ""
		}
		if msg.File != "" {
			m.file = msg.File
		}
		return m, listenForUpdates(m.updates)
	case doneMsg:
		m.quitting = true
		return m, tea.Quit
	case tea.KeyMsg:
		// The caller cancels the run once the program exits.
		if msg.String() == "ctrl+c" {
			m.quitting = true
			return m, tea.Quit
		}
		return m, nil
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.bar.Width = barWidth(msg.Width)
		return m, nil
	default:
		return m, nil
	}
}

func (m Model) View() string {
	if m.quitting {
		return ""
	}

	elapsed := time.Since(m.started).Round(time.Second)
	lines := []string{
		titleStyle.Render("cao"),
		labelStyle.Render(fmt.Sprintf("Mod: %s", orNone(m.mod))),
		dimStyle.Render(truncate(orNone(m.file), m.width)),
		labelStyle.Render(fmt.Sprintf("Files: %d/%d", m.processed, m.total)) +
			dimStyle.Render(fmt.Sprintf("  modified:%d", m.modified)) +
			errorCount(m.errors),
		labelStyle.Render(fmt.Sprintf("Space saved: %s", SignedBytes(m.bytesSaved))),
		dimStyle.Render(fmt.Sprintf("Elapsed: %s", elapsed)),
		m.bar.ViewAs(Ratio(m.processed, m.total)),
	}

	return strings.Join(lines, "\n")
}

func listenForUpdates(updates <-chan processor.ProgressUpdate) tea.Cmd {
	return func() tea.Msg {
		update, ok := <-updates
		if !ok {
			return doneMsg{}
		}
		return updateMsg(update)
	}
}

// Ratio is processed/total clamped to [0, 1].
func Ratio(processed, total int) float64 {
	if total <= 0 {
		return 0
	}
	ratio := float64(processed) / float64(total)
	if ratio > 1 {
		return 1
	}
	return ratio
}

// SignedBytes renders a byte delta; growth shows as a negative saving.
func SignedBytes(n int64) string {
	if n < 0 {
		return "-" + humanize.Bytes(uint64(-n))
	}
	return humanize.Bytes(uint64(n))
}

func barWidth(termWidth int) int {
	w := termWidth - 10
	if w > 60 {
		w = 60
	}
	if w < 20 {
		w = 20
	}
	return w
}

func errorCount(n int) string {
	if n == 0 {
		return dimStyle.Render("  errors:0")
	}
	return errorStyle.Render(fmt.Sprintf("  errors:%d", n))
}

func orNone(s string) string {
	if s == "" {
		return "-"
	}
	return s
}

func truncate(s string, width int) string {
	if width <= 3 || len(s) <= width {
		return s
	}
	return "..." + s[len(s)-width+3:]
}

var (
	titleStyle = lipgloss.NewStyle().Bold(true).Foreground(ColorAccent)
	labelStyle = lipgloss.NewStyle().Foreground(ColorInk)
	dimStyle   = lipgloss.NewStyle().Foreground(ColorDim)
	errorStyle = lipgloss.NewStyle().Foreground(ColorError).Bold(true)
)
