package logging

import (
	"errors"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/sirupsen/logrus"

	"cao/internal/config"
)

// Structured field names shared by every component.
const (
	FieldRun     = "run"
	FieldMod     = "mod"
	FieldFile    = "file"
	FieldCommand = "command"
	FieldEvent   = "event"
)

// Event values that change how a line renders in the human log.
const (
	EventStep = "step"
	EventMod  = "mod"
	EventNote = "note"
)

// Completed is the last line of every run.
const Completed = "Completed. Check the log for errors (displayed in red)."

var (
	colorError = lipgloss.Color("#BF616A")
	colorWarn  = lipgloss.Color("#EBCB8B")
	colorStep  = lipgloss.Color("#A3BE8C")
	colorMod   = lipgloss.Color("#D08770")
	colorNote  = lipgloss.Color("#7A8291")
)

// New builds the run logger. Structured entries go to cfg.JSONLog as JSON;
// the human run log goes to cfg.HumanLog, or to human when no file is set.
// The returned func closes any opened files.
func New(cfg config.LogSettings, human io.Writer) (*logrus.Logger, func() error, error) {
	level, err := logrus.ParseLevel(cfg.Level)
	if err != nil {
		return nil, nil, fmt.Errorf("log level: %w", err)
	}

	logger := logrus.New()
	logger.SetLevel(level)
	logger.SetFormatter(&logrus.JSONFormatter{TimestampFormat: time.RFC3339})
	logger.SetOutput(io.Discard)

	var files []*os.File
	closeAll := func() error {
		var errs []error
		for _, f := range files {
			errs = append(errs, f.Close())
		}
		return errors.Join(errs...)
	}

	if cfg.JSONLog != "" {
		f, err := os.OpenFile(cfg.JSONLog, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o644)
		if err != nil {
			return nil, nil, err
		}
		files = append(files, f)
		logger.SetOutput(f)
	}

	if cfg.HumanLog != "" {
		f, err := os.OpenFile(cfg.HumanLog, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o644)
		if err != nil {
			_ = closeAll()
			return nil, nil, err
		}
		files = append(files, f)
		human = f
	}

	if human != nil {
		logger.AddHook(NewHumanHook(human))
	}

	return logger, closeAll, nil
}

// HumanHook renders entries as colored, one-line run log messages.
type HumanHook struct {
	mu         sync.Mutex
	w          io.Writer
	errorStyle lipgloss.Style
	warnStyle  lipgloss.Style
	stepStyle  lipgloss.Style
	modStyle   lipgloss.Style
	noteStyle  lipgloss.Style
	plainStyle lipgloss.Style
}

// NewHumanHook colors output only when w is a terminal.
func NewHumanHook(w io.Writer) *HumanHook {
	r := lipgloss.NewRenderer(w)
	return &HumanHook{
		w:          w,
		errorStyle: r.NewStyle().Foreground(colorError).Bold(true),
		warnStyle:  r.NewStyle().Foreground(colorWarn),
		stepStyle:  r.NewStyle().Foreground(colorStep),
		modStyle:   r.NewStyle().Foreground(colorMod).Bold(true),
		noteStyle:  r.NewStyle().Foreground(colorNote),
		plainStyle: r.NewStyle(),
	}
}

func (h *HumanHook) Levels() []logrus.Level {
	return logrus.AllLevels
}

func (h *HumanHook) Fire(entry *logrus.Entry) error {
	line := h.render(entry)

	h.mu.Lock()
	defer h.mu.Unlock()
	_, err := fmt.Fprintln(h.w, line)
	return err
}

func (h *HumanHook) render(entry *logrus.Entry) string {
	msg := entry.Message
	if file, ok := entry.Data[FieldFile]; ok {
		msg = fmt.Sprintf("%s: %v", file, msg)
	}
	if err, ok := entry.Data[logrus.ErrorKey]; ok {
		msg = fmt.Sprintf("%s (%v)", msg, err)
	}
	if extra := extraFields(entry.Data); extra != "" && entry.Level >= logrus.DebugLevel {
		msg += " " + extra
	}

	style := h.plainStyle
	switch {
	case entry.Level <= logrus.ErrorLevel:
		style = h.errorStyle
	case entry.Level == logrus.WarnLevel:
		style = h.warnStyle
	default:
		switch entry.Data[FieldEvent] {
		case EventStep:
			style = h.stepStyle
		case EventMod:
			style = h.modStyle
		case EventNote:
			style = h.noteStyle
		}
	}

	return style.Render(msg)
}

func extraFields(data logrus.Fields) string {
	keys := make([]string, 0, len(data))
	for k := range data {
		switch k {
		case FieldFile, FieldEvent, FieldRun, FieldMod, logrus.ErrorKey:
			continue
		}
		keys = append(keys, k)
	}
	sort.Strings(keys)

	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, fmt.Sprintf("%s=%v", k, data[k]))
	}
	return strings.Join(parts, " ")
}

// Step logs the start of a processing stage.
func Step(log logrus.FieldLogger, format string, args ...any) {
	log.WithField(FieldEvent, EventStep).Infof(format, args...)
}

// Mod logs the mod currently being processed.
func Mod(log logrus.FieldLogger, name string) {
	log.WithField(FieldEvent, EventMod).Infof("Current mod: %s", name)
}

// Note logs low-importance information.
func Note(log logrus.FieldLogger, format string, args ...any) {
	log.WithField(FieldEvent, EventNote).Infof(format, args...)
}

// Discard returns a logger that writes nowhere, for tests and dry callers.
func Discard() *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	return logger
}
