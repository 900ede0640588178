package processor

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"cao/internal/archive"
	"cao/internal/classify"
	"cao/internal/command"
	"cao/internal/config"
	"cao/internal/decision"
	"cao/internal/logging"
	"cao/internal/patterns"
)

// Run optimizes every mod of the input path. Failures of single files and of
// archive steps are logged and counted; only setup problems and a context
// deadline are returned as errors.
func Run(ctx context.Context, opts Options, updates chan<- ProgressUpdate) (Summary, error) {
	summary := Summary{}
	log := opts.Log.WithField(logging.FieldRun, uuid.NewString())

	mods, err := setup(opts)
	if err != nil {
		return summary, err
	}
	if opts.Patterns == nil {
		opts.Patterns = patterns.New()
	}

	r := &runner{
		opts:       opts,
		classifier: classify.New(opts.Tools, opts.CustomHeadparts, opts.Settings.ScanTimeout(), log),
		updates:    updates,
		summary:    &summary,
	}

	for _, mod := range mods {
		if ctx.Err() != nil {
			break
		}
		summary.Mods++
		modLog := log.WithField(logging.FieldMod, filepath.Base(mod))
		if err := r.processMod(ctx, mod, modLog); err != nil {
			if ctx.Err() != nil {
				break
			}
			summary.Errors++
			modLog.WithError(err).Error("An error occurred, the remaining steps of this mod were skipped")
		}
	}

	log.WithField(logging.FieldEvent, logging.EventStep).Info(logging.Completed)

	if err := ctx.Err(); err != nil && !errors.Is(err, context.Canceled) {
		return summary, err
	}
	return summary, nil
}

// setup runs the checks that abort the whole run and lists the mods.
func setup(opts Options) ([]string, error) {
	if err := opts.Settings.Validate(); err != nil {
		return nil, err
	}
	if checker, ok := opts.Tools.(interface{ Missing(bool) []string }); ok && !opts.Settings.DryRun {
		if missing := checker.Missing(animationsEnabled(opts.Patterns)); len(missing) > 0 {
			return nil, fmt.Errorf("missing tools in %s: %s", opts.Settings.ResourcesDir, strings.Join(missing, ", "))
		}
	}
	return ListMods(opts.Settings.InputPath, opts.Settings.Mode == config.ModeSeveral)
}

// ListMods returns root itself, or its direct subdirectories when several
// is set.
func ListMods(root string, several bool) ([]string, error) {
	info, err := os.Stat(root)
	if err != nil {
		return nil, err
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("%s is not a directory", root)
	}
	if !several {
		return []string{root}, nil
	}

	entries, err := os.ReadDir(root)
	if err != nil {
		return nil, err
	}
	var mods []string
	for _, e := range entries {
		if e.IsDir() {
			mods = append(mods, filepath.Join(root, e.Name()))
		}
	}
	return mods, nil
}

// animationsEnabled reports whether any pattern turns animation patching on.
func animationsEnabled(m *patterns.Map) bool {
	if m == nil {
		return false
	}
	for _, p := range m.Patterns() {
		var s patterns.FileSettings
		if err := json.Unmarshal(p.Overrides, &s); err == nil && s.Animations.OptimizationLevel > 0 {
			return true
		}
	}
	return false
}

type runner struct {
	opts       Options
	classifier *classify.Classifier
	updates    chan<- ProgressUpdate
	summary    *Summary
}

func (r *runner) send(update ProgressUpdate) {
	if r.updates != nil {
		r.updates <- update
	}
}

// processMod runs the archive extraction, the per-file transforms and the
// archive creation of one mod, in that order. Archive creation starts only
// after every file is done.
func (r *runner) processMod(ctx context.Context, mod string, log logrus.FieldLogger) error {
	name := filepath.Base(mod)
	logging.Mod(log, name)

	settings := r.opts.Settings
	env := &command.Env{
		Tools:    r.opts.Tools,
		Archives: archive.NewManager(r.opts.Tools, settings, log),
		Archive:  settings.Archive,
		Log:      log,
	}
	pipeline := command.NewPipeline(command.NewBook(env), settings.DryRun, log)

	if out := pipeline.Process(ctx, command.NewFolder(mod, decision.ArchiveExtract)); out.Err != nil {
		return out.Err
	}

	logging.Step(log, "Classifying meshes")
	lists, err := r.classifier.Classify(ctx, mod)
	if err != nil {
		return err
	}
	env.Lists = lists

	jobs, err := collect(mod)
	if err != nil {
		return err
	}
	logging.Step(log, "Processing %d files", len(jobs))
	r.summary.Total += len(jobs)
	r.send(ProgressUpdate{TotalDelta: len(jobs), Mod: name})

	if err := r.processFiles(ctx, jobs, pipeline, log); err != nil {
		return err
	}

	if out := pipeline.Process(ctx, command.NewFolder(mod, decision.ArchiveCreate)); out.Err != nil {
		return out.Err
	}
	if settings.DryRun {
		return nil
	}
	return archive.RemoveEmptyDirs(mod)
}

// collect lists the files of a mod some command may handle.
func collect(mod string) ([]Job, error) {
	var jobs []Job
	err := filepath.WalkDir(mod, func(path string, d fs.DirEntry, walkErr error) error {
		if walkErr != nil {
			return walkErr
		}
		if d.IsDir() || !d.Type().IsRegular() || strings.HasPrefix(d.Name(), archive.TempPrefix) {
			return nil
		}
		res := command.ResourceFor(path)
		if res == nil {
			return nil
		}
		rel, err := filepath.Rel(mod, path)
		if err != nil {
			return err
		}
		jobs = append(jobs, Job{Path: path, RelPath: filepath.ToSlash(rel), Resource: res})
		return nil
	})
	return jobs, err
}

func (r *runner) processFiles(ctx context.Context, jobs []Job, pipeline *command.Pipeline, log logrus.FieldLogger) error {
	queue := make(chan Job)
	results := make(chan Result)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		defer close(queue)
		for _, job := range jobs {
			select {
			case queue <- job:
			case <-gctx.Done():
				return gctx.Err()
			}
		}
		return nil
	})

	workers := r.opts.Settings.Workers
	if workers < 1 {
		workers = 1
	}
	for i := 0; i < workers; i++ {
		g.Go(func() error {
			for job := range queue {
				// Cancellation takes effect between files.
				if err := gctx.Err(); err != nil {
					return err
				}
				results <- r.processFile(gctx, job, pipeline, log)
			}
			return nil
		})
	}

	collectorDone := make(chan struct{})
	go func() {
		defer close(collectorDone)
		for res := range results {
			update := ProgressUpdate{ProcessedDelta: 1, File: res.Job.RelPath}
			r.summary.Processed++
			if res.Err != nil {
				r.summary.Errors++
				update.ErrorDelta = 1
			}
			if res.Outcome.Modified {
				r.summary.Modified++
				r.summary.BytesSaved += res.Outcome.BytesSaved
				update.ModifiedDelta = 1
				update.BytesSavedDelta = res.Outcome.BytesSaved
			}
			r.send(update)
		}
	}()

	err := g.Wait()
	close(results)
	<-collectorDone
	return err
}

func (r *runner) processFile(ctx context.Context, job Job, pipeline *command.Pipeline, log logrus.FieldLogger) Result {
	res := Result{Job: job}
	settings, err := r.opts.Patterns.Settings(job.RelPath).Decode()
	if err != nil {
		log.WithField(logging.FieldFile, job.RelPath).WithError(err).Error("Invalid settings for this file")
		res.Err = err
		return res
	}
	res.Outcome = pipeline.Process(ctx, command.NewFile(job.Path, job.RelPath, job.Resource, settings))
	res.Err = res.Outcome.Err
	return res
}
