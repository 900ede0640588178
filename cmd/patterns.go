package cmd

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"cao/internal/logging"
	"cao/internal/patterns"
)

var patternsCmd = &cobra.Command{
	Use:   "patterns",
	Short: "Inspect and maintain the pattern file",
}

var patternsShowCmd = &cobra.Command{
	Use:   "show <file>",
	Short: "Print the merged settings that apply to a file",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		settings, err := loadSettings("")
		if err != nil {
			return err
		}
		m, err := loadPatterns(settings, logging.Discard())
		if err != nil {
			return err
		}

		effective := m.Settings(args[0])
		var out bytes.Buffer
		if err := json.Indent(&out, effective.JSON(), "", "    "); err != nil {
			return err
		}
		fmt.Fprintln(os.Stdout, out.String())
		return nil
	},
}

var patternsCleanCmd = &cobra.Command{
	Use:   "clean",
	Short: "Merge redundant patterns and rewrite the pattern file",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		settings, err := loadSettings("")
		if err != nil {
			return err
		}
		if settings.PatternsFile == "" {
			return errors.New("no pattern file configured, use --patterns")
		}

		m, err := patterns.LoadFile(settings.PatternsFile)
		if err != nil {
			return err
		}
		// LoadFile folds redundant patterns.
		if err := m.SaveFile(settings.PatternsFile); err != nil {
			return err
		}
		fmt.Fprintf(os.Stdout, "%s: %d patterns after cleaning\n", settings.PatternsFile, m.Len())
		return nil
	},
}

func init() {
	patternsCmd.AddCommand(patternsShowCmd, patternsCleanCmd)
	rootCmd.AddCommand(patternsCmd)
}
