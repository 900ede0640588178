// Package command holds the per-file transforms and the pipeline that runs
// them in priority order on a working copy.
package command

import (
	"context"
	"errors"
	"sort"

	"github.com/sirupsen/logrus"

	"cao/internal/archive"
	"cao/internal/classify"
	"cao/internal/config"
	"cao/internal/tools"
)

// Priority orders the commands of one file. Lower runs first.
type Priority int

const (
	High Priority = iota
	Medium
	Low
)

// ErrNoWorkRequired is returned by a command that found nothing to do once
// it looked closer. The pipeline treats it as not applicable.
var ErrNoWorkRequired = errors.New("no work required")

// Result is what one command did to a file.
type Result struct {
	Processed bool
	Err       error
}

func (r Result) Failed() bool {
	return r.Err != nil && !errors.Is(r.Err, ErrNoWorkRequired)
}

func done() Result {
	return Result{Processed: true}
}

func failed(err error) Result {
	return Result{Err: err}
}

// Command is one transform. IsApplicable must not change anything on disk.
type Command interface {
	Name() string
	Priority() Priority
	IsApplicable(ctx context.Context, f *File) bool
	Process(ctx context.Context, f *File) Result
}

// Env is what commands share while one mod is processed. Lists must not be
// modified once workers started.
type Env struct {
	Tools    tools.Toolbox
	Lists    *classify.Lists
	Archives *archive.Manager
	Archive  config.ArchiveSettings
	Log      logrus.FieldLogger
}

// Book holds the registered commands sorted by priority.
type Book struct {
	commands []Command
}

// NewBook registers every command of the optimizer.
func NewBook(env *Env) *Book {
	b := &Book{}
	b.Register(
		&MeshConvert{env: env},
		&MeshRenameTextures{env: env},
		&TextureConvert{env: env},
		&TextureStripMetadata{env: env},
		&AnimationConvert{env: env},
		&ArchiveExtract{env: env},
		&ArchiveCreate{env: env},
	)
	return b
}

func (b *Book) Register(commands ...Command) {
	b.commands = append(b.commands, commands...)
	sort.SliceStable(b.commands, func(i, j int) bool {
		return b.commands[i].Priority() < b.commands[j].Priority()
	})
}

func (b *Book) Commands() []Command {
	return append([]Command(nil), b.commands...)
}
