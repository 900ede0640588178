package processor

import (
	"github.com/sirupsen/logrus"

	"cao/internal/command"
	"cao/internal/config"
	"cao/internal/patterns"
	"cao/internal/tools"
)

type Options struct {
	Settings config.Settings
	Patterns *patterns.Map
	Tools    tools.Toolbox
	// CustomHeadparts are relative mesh paths treated as headparts in
	// every mod.
	CustomHeadparts []string
	Log             *logrus.Logger
}

type Job struct {
	Path     string
	RelPath  string
	Resource command.Resource
}

type Result struct {
	Job     Job
	Outcome command.Outcome
	Err     error
}

type Summary struct {
	Mods       int
	Total      int
	Processed  int
	Modified   int
	Errors     int
	BytesSaved int64
}

type ScanReport struct {
	Mod      string
	Details  []ScanDetail
	Insights []ScanInsight
}

type ScanDetail struct {
	Category string
	Values   []string
}

type ScanInsight struct {
	Kind    string
	Message string
}

type ProgressUpdate struct {
	TotalDelta      int
	ProcessedDelta  int
	ErrorDelta      int
	ModifiedDelta   int
	BytesSavedDelta int64
	Mod             string
	File            string
}
