package cmd

import (
	"context"
	"fmt"
	"os"

	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"

	"cao/internal/logging"
	"cao/internal/processor"
	"cao/internal/tools"
	"cao/internal/tui"
)

var scanCmd = &cobra.Command{
	Use:   "scan <path>",
	Short: "Classify the meshes of a mod without modifying files",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		settings, err := loadSettings(args[0])
		if err != nil {
			return err
		}
		log, closeLog, err := logging.New(settings.Log, os.Stderr)
		if err != nil {
			return err
		}
		defer closeLog()

		m, err := loadPatterns(settings, log)
		if err != nil {
			return err
		}
		headparts, err := loadCustomHeadparts(settings, log)
		if err != nil {
			return fmt.Errorf("custom headparts: %w", err)
		}

		reports, err := processor.Scan(context.Background(), processor.Options{
			Settings:        *settings,
			Patterns:        m,
			Tools:           tools.NewExec(*settings),
			CustomHeadparts: headparts,
			Log:             log,
		})
		if err != nil {
			return err
		}

		for i, report := range reports {
			if i > 0 {
				fmt.Fprintln(os.Stdout)
			}
			fmt.Fprintf(os.Stdout, "%s\n", scanFileStyle.Render(report.Mod))
			for _, detail := range report.Details {
				fmt.Fprintf(os.Stdout, "  %s\n", scanCategoryStyle.Render(detail.Category+":"))
				if len(detail.Values) == 0 {
					fmt.Fprintf(os.Stdout, "    %s %s\n",
						scanBulletStyle.Render("-"),
						scanDimStyle.Render("none"),
					)
					continue
				}
				for _, value := range detail.Values {
					fmt.Fprintf(os.Stdout, "    %s %s\n", scanBulletStyle.Render("-"), scanValueStyle.Render(value))
				}
			}
			for _, insight := range report.Insights {
				fmt.Fprintf(os.Stdout, "  %s %s\n", scanWarnStyle.Render(insight.Kind+":"), scanValueStyle.Render(insight.Message))
			}
		}
		return nil
	},
}

var (
	scanFileStyle     = lipgloss.NewStyle().Bold(true).Foreground(tui.ColorAccent)
	scanCategoryStyle = lipgloss.NewStyle().Foreground(tui.ColorAccentAlt)
	scanValueStyle    = lipgloss.NewStyle().Foreground(tui.ColorInk)
	scanDimStyle      = lipgloss.NewStyle().Foreground(tui.ColorDim)
	scanBulletStyle   = lipgloss.NewStyle().Foreground(tui.ColorDim)
	scanWarnStyle     = lipgloss.NewStyle().Foreground(tui.ColorWarn)
)

func init() {
	rootCmd.AddCommand(scanCmd)
}
