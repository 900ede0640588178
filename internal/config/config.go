package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Mode selects whether the input path is one mod or a folder of mods.
type Mode string

const (
	ModeSingle  Mode = "single"
	ModeSeveral Mode = "several"
)

type Settings struct {
	InputPath           string          `yaml:"input_path"`
	Mode                Mode            `yaml:"mode"`
	DryRun              bool            `yaml:"dry_run"`
	Workers             int             `yaml:"workers"`
	ResourcesDir        string          `yaml:"resources_dir"`
	Launcher            []string        `yaml:"launcher"`
	ScanTimeoutSeconds  int             `yaml:"scan_timeout_seconds"`
	CustomHeadpartsFile string          `yaml:"custom_headparts_file"`
	PatternsFile        string          `yaml:"patterns_file"`
	Tools               ToolSettings    `yaml:"tools"`
	Archive             ArchiveSettings `yaml:"archive"`
	Log                 LogSettings     `yaml:"log"`
}

// ScanTimeout bounds the mesh scanner and the headpart lister.
func (s Settings) ScanTimeout() time.Duration {
	return time.Duration(s.ScanTimeoutSeconds) * time.Second
}

// ToolSettings names the external executables, relative to ResourcesDir
// unless absolute.
type ToolSettings struct {
	MeshScanner      string `yaml:"mesh_scanner"`
	HeadpartLister   string `yaml:"headpart_lister"`
	MeshOptimizer    string `yaml:"mesh_optimizer"`
	TextureInfo      string `yaml:"texture_info"`
	TextureConverter string `yaml:"texture_converter"`
	Archiver         string `yaml:"archiver"`
	AnimationPatcher string `yaml:"animation_patcher"`
	BlankPlugin      string `yaml:"blank_plugin"`

	// Empty means the exit status alone decides success. The mesh optimizer
	// prints no fixed line on success, so it has no default marker.
	MeshSuccessMarker     string `yaml:"mesh_success_marker"`
	ArchiverSuccessMarker string `yaml:"archiver_success_marker"`
}

type ArchiveSettings struct {
	Extract       bool   `yaml:"extract"`
	Create        bool   `yaml:"create"`
	DeleteBackup  bool   `yaml:"delete_backup"`
	DummyPlugins  bool   `yaml:"dummy_plugins"`
	Compress      bool   `yaml:"compress"`
	Extension     string `yaml:"extension"`
	TextureBudget int64  `yaml:"texture_budget"`
	OtherBudget   int64  `yaml:"other_budget"`
	MaxSize       int64  `yaml:"max_size"`
	MaxPathLength int    `yaml:"max_path_length"`
}

// ExtractedSuffix is the directory suffix marking an unpacked archive.
func (a ArchiveSettings) ExtractedSuffix() string {
	return a.Extension + ".extracted"
}

type LogSettings struct {
	Level    string `yaml:"level"`
	HumanLog string `yaml:"human_log"`
	JSONLog  string `yaml:"json_log"`
}

// Default returns the settings used when no file overrides them.
func Default() Settings {
	return Settings{
		Mode:               ModeSingle,
		Workers:            4,
		ResourcesDir:       "resources",
		ScanTimeoutSeconds: 180,
		Tools: ToolSettings{
			MeshScanner:           "NifScan.exe",
			HeadpartLister:        "ListHeadParts.exe",
			MeshOptimizer:         "NifOpt.exe",
			TextureInfo:           "texdiag.exe",
			TextureConverter:      "texconv.exe",
			Archiver:              "bsarch.exe",
			AnimationPatcher:      "HavokBehaviorPostProcess.exe",
			BlankPlugin:           "BlankSSEPlugin.esp",
			ArchiverSuccessMarker: "Done",
		},
		Archive: ArchiveSettings{
			Compress:      true,
			DummyPlugins:  true,
			Extension:     ".bsa",
			TextureBudget: 2_900_000_000,
			OtherBudget:   2_076_980_377,
			MaxSize:       2_147_483_648,
			MaxPathLength: 259,
		},
		Log: LogSettings{
			Level: "info",
		},
	}
}

// Load reads a YAML settings file on top of Default.
func Load(path string) (*Settings, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}

	cfg.applyDefaults()
	return &cfg, nil
}

// LoadFromEnv loads a .env file if present, then the YAML file at path (when
// non-empty) and finally applies CAO_* environment overrides.
func LoadFromEnv(path string) (*Settings, error) {
	_ = godotenv.Load()

	var cfg *Settings
	if path != "" {
		loaded, err := Load(path)
		if err != nil {
			return nil, err
		}
		cfg = loaded
	} else {
		def := Default()
		cfg = &def
	}

	if dir := os.Getenv("CAO_RESOURCES_DIR"); dir != "" {
		cfg.ResourcesDir = dir
	}
	if workers := os.Getenv("CAO_WORKERS"); workers != "" {
		n, err := strconv.Atoi(workers)
		if err != nil {
			return nil, fmt.Errorf("CAO_WORKERS: %w", err)
		}
		cfg.Workers = n
	}
	if level := os.Getenv("CAO_LOG_LEVEL"); level != "" {
		cfg.Log.Level = level
	}
	if launcher := os.Getenv("CAO_LAUNCHER"); launcher != "" {
		cfg.Launcher = strings.Fields(launcher)
	}

	cfg.applyDefaults()
	return cfg, nil
}

func (s *Settings) applyDefaults() {
	def := Default()
	if s.Mode == "" {
		s.Mode = def.Mode
	}
	if s.ScanTimeoutSeconds == 0 {
		s.ScanTimeoutSeconds = def.ScanTimeoutSeconds
	}
	if s.Archive.Extension == "" {
		s.Archive.Extension = def.Archive.Extension
	}
	if s.Archive.TextureBudget == 0 {
		s.Archive.TextureBudget = def.Archive.TextureBudget
	}
	if s.Archive.OtherBudget == 0 {
		s.Archive.OtherBudget = def.Archive.OtherBudget
	}
	if s.Archive.MaxSize == 0 {
		s.Archive.MaxSize = def.Archive.MaxSize
	}
	if s.Archive.MaxPathLength == 0 {
		s.Archive.MaxPathLength = def.Archive.MaxPathLength
	}
	if s.Log.Level == "" {
		s.Log.Level = def.Log.Level
	}
}

// Validate rejects settings the run cannot start with.
func (s Settings) Validate() error {
	var errs []error
	if s.InputPath == "" {
		errs = append(errs, errors.New("input path is required"))
	}
	switch s.Mode {
	case ModeSingle, ModeSeveral:
	default:
		errs = append(errs, fmt.Errorf("unknown mode %q", s.Mode))
	}
	if s.Workers < 1 {
		errs = append(errs, fmt.Errorf("workers must be at least 1, got %d", s.Workers))
	}
	if s.ScanTimeoutSeconds < 1 {
		errs = append(errs, fmt.Errorf("scan timeout must be positive, got %d", s.ScanTimeoutSeconds))
	}
	return errors.Join(errs...)
}

// ToolPath resolves a tool name against the resources directory.
func (s Settings) ToolPath(name string) string {
	if name == "" || filepath.IsAbs(name) {
		return name
	}
	return filepath.Join(s.ResourcesDir, name)
}
