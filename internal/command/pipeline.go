package command

import (
	"context"
	"errors"
	"os"

	"github.com/sirupsen/logrus"

	"cao/internal/logging"
)

// Outcome is what the pipeline did to one file.
type Outcome struct {
	// Path is where the file ended up, which differs from the input path
	// when a command changed its extension.
	Path string
	// Commands are the names of the commands found applicable.
	Commands []string
	Modified bool
	// Failed names the command that stopped the chain.
	Failed     string
	Err        error
	BytesSaved int64
}

// Skipped reports whether no command applied to the file.
func (o Outcome) Skipped() bool {
	return len(o.Commands) == 0
}

// skipNoter is implemented by commands with something to report when they
// leave a file alone.
type skipNoter interface {
	noteSkipped(ctx context.Context, f *File, log logrus.FieldLogger)
}

type Pipeline struct {
	book   *Book
	dryRun bool
	log    logrus.FieldLogger
}

func NewPipeline(book *Book, dryRun bool, log logrus.FieldLogger) *Pipeline {
	return &Pipeline{book: book, dryRun: dryRun, log: log}
}

// Process runs the applicable commands of f in priority order on a working
// copy. The first failure stops the chain and the original file is left as
// it was. The copy replaces the original only when a command changed it.
func (p *Pipeline) Process(ctx context.Context, f *File) Outcome {
	out := Outcome{Path: f.Path}
	log := p.log.WithField(logging.FieldFile, f.RelPath)

	var applicable []Command
	for _, c := range p.book.commands {
		if c.IsApplicable(ctx, f) {
			applicable = append(applicable, c)
			out.Commands = append(out.Commands, c.Name())
		} else if n, ok := c.(skipNoter); ok {
			n.noteSkipped(ctx, f, log)
		}
	}
	if len(applicable) == 0 {
		return out
	}

	if p.dryRun {
		for _, c := range applicable {
			log.WithField(logging.FieldCommand, c.Name()).Info("would be processed")
		}
		return out
	}

	before := fileSize(f.Path)
	if err := f.load(); err != nil {
		log.WithError(err).Error("Cannot read file")
		out.Err = err
		return out
	}
	defer f.discard()

	for i, c := range applicable {
		// Earlier commands may have made later ones pointless.
		if i > 0 && !c.IsApplicable(ctx, f) {
			continue
		}
		clog := log.WithField(logging.FieldCommand, c.Name())
		res := c.Process(ctx, f)
		if errors.Is(res.Err, ErrNoWorkRequired) {
			continue
		}
		if res.Failed() {
			clog.WithError(res.Err).Error("An error occurred, the file was left unchanged")
			out.Failed = c.Name()
			out.Err = res.Err
			return out
		}
		if res.Processed {
			f.MarkModified()
			clog.Debug("processed")
		}
	}

	if !f.Modified() {
		return out
	}
	target, err := f.save()
	if err != nil {
		log.WithError(err).Error("Cannot save file")
		out.Err = err
		return out
	}
	out.Path = target
	out.Modified = true
	out.BytesSaved = before - fileSize(target)
	return out
}

func fileSize(path string) int64 {
	info, err := os.Stat(path)
	if err != nil || info.IsDir() {
		return 0
	}
	return info.Size()
}
