package cmd

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"

	"cao/internal/logging"
	"cao/internal/processor"
	"cao/internal/tools"
	"cao/internal/tui"
)

var (
	optMeshes       int
	optTextures     int
	optAnimations   bool
	optHeadparts    bool
	optExtract      bool
	optCreate       bool
	optDeleteBackup bool
	optDummyPlugins bool
	optDryRun       bool
	optWorkers      int
	optNoTUI        bool
)

var optimizeCmd = &cobra.Command{
	Use:   "optimize [flags] <path>",
	Short: "Optimize the meshes, textures, animations and archives of one or several mods",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		settings, err := loadSettings(args[0])
		if err != nil {
			return err
		}
		setIfChanged(cmd, "extract", &settings.Archive.Extract, optExtract)
		setIfChanged(cmd, "create", &settings.Archive.Create, optCreate)
		setIfChanged(cmd, "delete-backup", &settings.Archive.DeleteBackup, optDeleteBackup)
		setIfChanged(cmd, "dummy-plugins", &settings.Archive.DummyPlugins, optDummyPlugins)
		setIfChanged(cmd, "dry-run", &settings.DryRun, optDryRun)
		if cmd.Flags().Changed("workers") {
			settings.Workers = optWorkers
		}
		if err := settings.Validate(); err != nil {
			return err
		}

		// With the progress UI on, the run log is held back until the UI is gone.
		var held bytes.Buffer
		var human io.Writer = os.Stdout
		if !optNoTUI {
			human = &held
		}
		log, closeLog, err := logging.New(settings.Log, human)
		if err != nil {
			return err
		}
		defer closeLog()

		m, err := loadPatterns(settings, log)
		if err != nil {
			return err
		}
		if fragment := patternFlags(cmd); fragment != nil {
			if err := m.PatchDefault(fragment); err != nil {
				return err
			}
		}
		headparts, err := loadCustomHeadparts(settings, log)
		if err != nil {
			return fmt.Errorf("custom headparts: %w", err)
		}

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
		defer stop()

		opts := processor.Options{
			Settings:        *settings,
			Patterns:        m,
			Tools:           tools.NewExec(*settings),
			CustomHeadparts: headparts,
			Log:             log,
		}

		var summary processor.Summary
		if optNoTUI {
			summary, err = processor.Run(ctx, opts, nil)
		} else {
			summary, err = runWithProgress(ctx, opts)
			os.Stdout.Write(held.Bytes())
		}
		if err != nil {
			return err
		}

		fmt.Fprintln(os.Stdout, tui.RenderSummary(tui.SummaryRows(summary, settings.DryRun)))
		return nil
	},
}

// runWithProgress runs the batch behind the progress UI. Quitting the UI
// cancels the run.
func runWithProgress(ctx context.Context, opts processor.Options) (processor.Summary, error) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	updates := make(chan processor.ProgressUpdate, 64)
	program := tea.NewProgram(tui.NewModel(updates))

	uiDone := make(chan struct{})
	go func() {
		_, _ = program.Run()
		cancel()
		for range updates {
		}
		close(uiDone)
	}()

	summary, err := processor.Run(ctx, opts, updates)
	close(updates)
	<-uiDone
	return summary, err
}

// setIfChanged lets a flag given on the command line win over the settings
// file.
func setIfChanged(cmd *cobra.Command, name string, target *bool, value bool) {
	if cmd.Flags().Changed(name) {
		*target = value
	}
}

// patternFlags turns the per-file flags that were set into a merge patch for
// the default pattern.
func patternFlags(cmd *cobra.Command) []byte {
	fragment := map[string]map[string]any{}
	set := func(section, key string, value any) {
		if fragment[section] == nil {
			fragment[section] = map[string]any{}
		}
		fragment[section][key] = value
	}

	flags := cmd.Flags()
	if flags.Changed("meshes") {
		set("meshes", "optimization_level", optMeshes)
	}
	if flags.Changed("headparts") {
		set("meshes", "headparts", optHeadparts)
	}
	if flags.Changed("textures") {
		set("textures", "optimization_level", optTextures)
	}
	if flags.Changed("animations") {
		level := 0
		if optAnimations {
			level = 1
		}
		set("animations", "optimization_level", level)
	}
	if len(fragment) == 0 {
		return nil
	}
	data, _ := json.Marshal(fragment)
	return data
}

func init() {
	f := optimizeCmd.Flags()
	f.IntVar(&optMeshes, "meshes", 0, "mesh optimization level (0 off, 1 necessary, 2 medium, 3 full)")
	f.IntVar(&optTextures, "textures", 0, "texture optimization level (0 off, 1 necessary, 2 full)")
	f.BoolVar(&optAnimations, "animations", false, "convert animations to the target platform")
	f.BoolVar(&optHeadparts, "headparts", false, "optimize headpart meshes")
	f.BoolVar(&optExtract, "extract", false, "extract the archives of each mod first")
	f.BoolVar(&optCreate, "create", false, "pack loose files into archives at the end")
	f.BoolVar(&optDeleteBackup, "delete-backup", false, "delete extracted archives instead of keeping a .bak copy")
	f.BoolVar(&optDummyPlugins, "dummy-plugins", true, "create blank plugins for archives no plugin loads")
	f.BoolVar(&optDryRun, "dry-run", false, "log what would be processed without writing anything")
	f.IntVar(&optWorkers, "workers", 0, "number of files processed in parallel")
	f.BoolVar(&optNoTUI, "no-tui", false, "print the run log instead of the progress UI")

	rootCmd.AddCommand(optimizeCmd)
}
