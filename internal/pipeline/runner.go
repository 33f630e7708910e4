// Package pipeline applies an ordered list of named transforms to a dataset,
// keeping every intermediate snapshot and the provenance of each step.
package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"strconv"
	"strings"

	"github.com/animus-labs/labkit/internal/platform/logging"
	"github.com/animus-labs/labkit/internal/table"
)

// TransformFunc returns the transformed dataset. An empty dataset means the
// transform had nothing to do.
type TransformFunc func(ctx context.Context, data Dataset) (Dataset, error)

type Transform struct {
	Name       string
	Annotation Annotation
	Apply      TransformFunc
}

type StepStatus string

const (
	StepApplied StepStatus = "applied"
	StepNoOp    StepStatus = "no_op"
	StepSkipped StepStatus = "skipped"
)

// Step is the provenance of one transform. Modifies is empty unless the
// transform was applied.
type Step struct {
	Index       int
	Name        string
	Snapshot    string
	Status      StepStatus
	Modifies    string
	PlotAgainst string
	SkipPlot    bool
}

// StepObserver is told about every step once its snapshot exists.
type StepObserver interface {
	ObserveStep(ctx context.Context, runID string, step Step, snapshot Dataset) error
}

type Runner struct {
	Transforms []Transform
	Observers  []StepObserver
	Logger     *slog.Logger
}

type Options struct {
	RunID string
	Skip  []string
	// SaveAll persists every snapshot under a fresh data_saver directory in Dest.
	SaveAll bool
	Dest    string
	Mirror  SnapshotMirror
}

type Result struct {
	Final     Dataset
	Snapshots []Dataset
	Steps     []Step
	SaveDir   string
}

func SnapshotName(i int) string {
	return "data" + strconv.Itoa(i)
}

func (r *Runner) Validate() error {
	seen := make(map[string]struct{}, len(r.Transforms))
	for i, t := range r.Transforms {
		name := strings.TrimSpace(t.Name)
		if name == "" {
			return fmt.Errorf("transform %d has no name", i)
		}
		if t.Apply == nil {
			return fmt.Errorf("transform %q has no function", name)
		}
		if _, ok := seen[name]; ok {
			return fmt.Errorf("transform %q listed twice", name)
		}
		seen[name] = struct{}{}
	}
	return nil
}

// Run applies the transforms in order to a copy of input. The final dataset
// is a copy of input carrying the one field written by the last applied
// transform that declares Modifies.
func (r *Runner) Run(ctx context.Context, input Dataset, opts Options) (Result, error) {
	if err := r.Validate(); err != nil {
		return Result{}, err
	}
	if opts.SaveAll && strings.TrimSpace(opts.Dest) == "" {
		return Result{}, fmt.Errorf("save-all requires a destination")
	}
	logger := logging.OrDiscard(r.Logger)
	if opts.RunID != "" {
		logger = logger.With("run_id", opts.RunID)
	}

	skip := make(map[string]bool, len(opts.Skip))
	for _, name := range opts.Skip {
		skip[name] = true
		if !slices.ContainsFunc(r.Transforms, func(t Transform) bool { return t.Name == name }) {
			logger.Warn("skip requested for unknown transform", "transform", name)
		}
	}

	current := input.Clone()
	res := Result{Snapshots: []Dataset{current}}
	lastModifies := ""
	for i, t := range r.Transforms {
		if err := ctx.Err(); err != nil {
			return res, err
		}
		step := Step{
			Index:       i + 1,
			Name:        t.Name,
			Snapshot:    SnapshotName(i + 1),
			PlotAgainst: t.Annotation.PlotAgainst,
			SkipPlot:    t.Annotation.SkipPlot,
		}
		switch {
		case skip[t.Name]:
			step.Status = StepSkipped
			logger.Info("transform skipped", "transform", t.Name)
		default:
			out, err := t.Apply(ctx, current.Clone())
			if err != nil {
				return res, fmt.Errorf("transform %q: %w", t.Name, err)
			}
			if out.Empty() {
				step.Status = StepNoOp
				logger.Info("transform returned no data", "transform", t.Name)
				break
			}
			step.Status = StepApplied
			step.Modifies = t.Annotation.Modifies
			current = out
			if step.Modifies != "" {
				lastModifies = step.Modifies
			}
			logger.Debug("transform applied", "transform", t.Name, "modifies", step.Modifies)
		}
		res.Snapshots = append(res.Snapshots, current)
		res.Steps = append(res.Steps, step)
		r.notify(ctx, logger, opts.RunID, step, current)
	}

	final, err := mergeField(input, current, lastModifies)
	if err != nil {
		return res, err
	}
	res.Final = final
	if lastModifies == "" {
		logger.Warn("no applied transform declares a modified field, result equals input")
	}

	if opts.SaveAll {
		dir, err := SaveAll(ctx, opts.Dest, opts.RunID, res.Snapshots, opts.Mirror, logger)
		if err != nil {
			return res, err
		}
		res.SaveDir = dir
	}
	return res, nil
}

func (r *Runner) notify(ctx context.Context, logger *slog.Logger, runID string, step Step, snap Dataset) {
	for _, o := range r.Observers {
		if o == nil {
			continue
		}
		if err := o.ObserveStep(ctx, runID, step, snap); err != nil {
			logger.Warn("step observer failed", "step", step.Snapshot, "error", err)
		}
	}
}

// mergeField copies field from every record of last into the matching
// record of a copy of original.
func mergeField(original, last Dataset, field string) (Dataset, error) {
	out := original.Clone()
	if field == "" {
		return out, nil
	}
	for i, rec := range out.Records {
		src, ok := last.Get(rec.Key)
		if !ok || !src.Data.HasColumn(field) {
			continue
		}
		values, _ := src.Data.Column(field)
		if rec.Data == nil {
			rec.Data = table.New()
			out.Records[i] = rec
		}
		if err := rec.Data.SetColumn(field, values); err != nil {
			return Dataset{}, fmt.Errorf("merge %q into %s: %w", field, rec.Key, err)
		}
	}
	return out, nil
}
