package tui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/dustin/go-humanize"

	"cao/internal/processor"
)

type SummaryRow struct {
	Label string
	Value string
}

// SummaryRows lists the totals of a finished run.
func SummaryRows(s processor.Summary, dryRun bool) []SummaryRow {
	rows := []SummaryRow{
		{Label: "Mods", Value: humanize.Comma(int64(s.Mods))},
		{Label: "Files processed", Value: fmt.Sprintf("%s/%s", humanize.Comma(int64(s.Processed)), humanize.Comma(int64(s.Total)))},
		{Label: "Files modified", Value: humanize.Comma(int64(s.Modified))},
		{Label: "Errors", Value: humanize.Comma(int64(s.Errors))},
		{Label: "Space saved", Value: SignedBytes(s.BytesSaved)},
	}
	if dryRun {
		rows = append(rows, SummaryRow{Label: "Dry run", Value: "nothing was written"})
	}
	return rows
}

func RenderSummary(rows []SummaryRow) string {
	labelWidth := 0
	valueWidth := 0
	for _, row := range rows {
		if len(row.Label) > labelWidth {
			labelWidth = len(row.Label)
		}
		if len(row.Value) > valueWidth {
			valueWidth = len(row.Value)
		}
	}

	hline := strings.Repeat("-", labelWidth+valueWidth+3)
	lines := []string{hline}

	for _, row := range rows {
		label := padRight(row.Label, labelWidth)
		value := padRight(row.Value, valueWidth)
		line := fmt.Sprintf("%s | %s", labelStyle.Render(label), valueStyle.Render(value))
		lines = append(lines, line)
	}

	lines = append(lines, hline)
	return strings.Join(lines, "\n")
}

func padRight(s string, width int) string {
	if len(s) >= width {
		return s
	}
	return s + strings.Repeat(" ", width-len(s))
}

var (
	valueStyle = lipgloss.NewStyle().Foreground(ColorInk).Bold(true)
)
