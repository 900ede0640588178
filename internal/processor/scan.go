package processor

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/google/uuid"

	"cao/internal/classify"
	"cao/internal/command"
	"cao/internal/config"
	"cao/internal/decision"
	"cao/internal/logging"
	"cao/internal/patterns"
)

// Scan classifies the meshes of every mod and reports what an optimization
// run would do with them. Nothing is modified.
func Scan(ctx context.Context, opts Options) ([]ScanReport, error) {
	if err := opts.Settings.Validate(); err != nil {
		return nil, err
	}
	mods, err := ListMods(opts.Settings.InputPath, opts.Settings.Mode == config.ModeSeveral)
	if err != nil {
		return nil, err
	}
	if opts.Patterns == nil {
		opts.Patterns = patterns.New()
	}

	log := opts.Log.WithField(logging.FieldRun, uuid.NewString())
	classifier := classify.New(opts.Tools, opts.CustomHeadparts, opts.Settings.ScanTimeout(), log)

	var reports []ScanReport
	for _, mod := range mods {
		lists, err := classifier.Classify(ctx, mod)
		if err != nil {
			return reports, err
		}
		report, err := scanMod(mod, lists, opts.Patterns)
		if err != nil {
			return reports, err
		}
		reports = append(reports, report)
	}
	return reports, nil
}

func scanMod(mod string, lists *classify.Lists, m *patterns.Map) (ScanReport, error) {
	report := ScanReport{Mod: filepath.Base(mod)}
	rel := func(paths []string) []string {
		out := make([]string, 0, len(paths))
		for _, p := range paths {
			if r, err := filepath.Rel(mod, p); err == nil {
				p = filepath.ToSlash(r)
			}
			out = append(out, p)
		}
		return out
	}

	report.Details = append(report.Details,
		ScanDetail{Category: "Headpart meshes", Values: rel(lists.Headparts.Sorted())},
		ScanDetail{Category: "Risky meshes", Values: rel(lists.Risky.Sorted())},
		ScanDetail{Category: "Other meshes", Values: rel(lists.Other.Sorted())},
	)

	jobs, err := collect(mod)
	if err != nil {
		return report, err
	}
	optimized := ScanDetail{Category: "Would be optimized"}
	for _, job := range jobs {
		if _, ok := job.Resource.(command.Mesh); !ok {
			continue
		}
		settings, err := m.Settings(job.RelPath).Decode()
		if err != nil {
			report.Insights = append(report.Insights, ScanInsight{Kind: "Settings", Message: fmt.Sprintf("%s: %v", job.RelPath, err)})
			continue
		}

		class := lists.Lookup(job.Path)
		class.Risk, class.Native = classify.InspectMesh(job.Path)
		action := decision.Mesh(class, settings.Meshes)
		switch action.Verdict {
		case decision.Transform:
			optimized.Values = append(optimized.Values, fmt.Sprintf("%s (%s)", job.RelPath, action.Reason))
		case decision.DoNotProcess:
			report.Insights = append(report.Insights, ScanInsight{
				Kind:    "Unsafe",
				Message: job.RelPath + " cannot be processed safely. Check it in a mesh editor.",
			})
		}
	}
	report.Details = append(report.Details, optimized)
	return report, nil
}
