package cmd

import (
	"errors"
	"fmt"
	"os"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"cao/internal/classify"
	"cao/internal/config"
	"cao/internal/logging"
	"cao/internal/patterns"
)

var (
	configPath   string
	patternsPath string
	modeFlag     string
)

var rootCmd = &cobra.Command{
	Use:   "cao",
	Short: "cao - batch asset optimizer for game mods",
	Long: "cao converts the meshes, textures and animations of game mods to the formats " +
		"the target engine loads, and repacks loose files into archives.",
	SilenceUsage: true,
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.SetHelpCommand(&cobra.Command{Hidden: true})
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "YAML settings file")
	rootCmd.PersistentFlags().StringVar(&patternsPath, "patterns", "", "JSON pattern file (overrides the settings file)")
	rootCmd.PersistentFlags().StringVar(&modeFlag, "mode", "", "single: the path is one mod; several: every subfolder is a mod")
}

// loadSettings reads the settings file and applies the persistent flags.
func loadSettings(input string) (*config.Settings, error) {
	settings, err := config.LoadFromEnv(configPath)
	if err != nil {
		return nil, err
	}
	if input != "" {
		settings.InputPath = input
	}
	if modeFlag != "" {
		settings.Mode = config.Mode(modeFlag)
	}
	if patternsPath != "" {
		settings.PatternsFile = patternsPath
	}
	return settings, nil
}

// loadPatterns reads the pattern file of settings. A missing file falls back
// to the default pattern.
func loadPatterns(settings *config.Settings, log logrus.FieldLogger) (*patterns.Map, error) {
	if settings.PatternsFile == "" {
		return patterns.New(), nil
	}
	m, err := patterns.LoadFile(settings.PatternsFile)
	if errors.Is(err, os.ErrNotExist) {
		logging.Note(log, "No pattern file at %s, using the default pattern", settings.PatternsFile)
		return m, nil
	}
	return m, err
}

// loadCustomHeadparts reads the custom headparts file of settings. A missing
// file means no custom headparts.
func loadCustomHeadparts(settings *config.Settings, log logrus.FieldLogger) ([]string, error) {
	if settings.CustomHeadpartsFile == "" {
		return nil, nil
	}
	headparts, err := classify.LoadCustomHeadparts(settings.CustomHeadpartsFile)
	if errors.Is(err, os.ErrNotExist) {
		logging.Note(log, "No custom headparts file found at %s", settings.CustomHeadpartsFile)
		return nil, nil
	}
	return headparts, err
}
