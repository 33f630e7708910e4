// Package sweep drives a measurement over the Cartesian product of scanned
// parameters, recording every trial and leaving the hardware idle afterwards.
package sweep

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/animus-labs/labkit/internal/domain"
	"github.com/animus-labs/labkit/internal/platform/logging"
	"github.com/animus-labs/labkit/internal/trial"
)

const DefaultDelay = time.Second

// Progress is reported before every trial.
type Progress struct {
	SweepID     string
	Iteration   int
	Total       int
	Trial       int
	Combination domain.Combination
}

func (p Progress) String() string {
	return fmt.Sprintf("Scan %d of %d. %s", p.Iteration, p.Total, p.Combination)
}

type Experiment struct {
	Run      trial.RunFunc
	Recorder *trial.Recorder
	Hooks    Hooks
	// Delay is the pause between iterations; zero disables pacing.
	Delay    time.Duration
	Progress func(Progress)
	Logger   *slog.Logger

	newID func() string
	sleep func(ctx context.Context, d time.Duration) error
}

// Scan is one invocation of Experiment.Sweep.
type Scan struct {
	Params domain.ParameterSet
	Trials int
	Plot   bool
}

type Summary struct {
	SweepID  string
	Total    int
	Outcomes []trial.Outcome
}

// Validate reports every configuration problem at once.
func (e *Experiment) Validate(scan Scan) (Plan, error) {
	issues := &ConfigError{}
	if e.Run == nil {
		issues.Add("run function is required")
	}
	if e.Hooks.Terminate == nil {
		issues.Add("terminate hook is required")
	}
	if scan.Plot && e.Hooks.Plot == nil {
		issues.Add("plotting requested but no plot hook configured")
	}
	if err := e.Recorder.Validate(); err != nil {
		issues.Add(err.Error())
	}
	plan, err := BuildPlan(scan.Params, scan.Trials)
	if err != nil {
		var cfg *ConfigError
		if errors.As(err, &cfg) {
			issues.Issues = append(issues.Issues, cfg.Issues...)
		} else {
			issues.Add(err.Error())
		}
	}
	if err := issues.OrNil(); err != nil {
		return Plan{}, err
	}
	return plan, nil
}

// Sweep runs every combination scan.Trials times. Once validation and the
// pre-flight check pass, Terminate runs exactly once however the sweep ends.
func (e *Experiment) Sweep(ctx context.Context, scan Scan) (summary Summary, err error) {
	plan, err := e.Validate(scan)
	if err != nil {
		return Summary{}, err
	}

	params := domain.Metadata{}
	for name, values := range scan.Params.Scan {
		params[name] = values
	}
	params = params.Merge(scan.Params.Fixed)
	if err := e.Hooks.check(params); err != nil {
		return Summary{}, fmt.Errorf("pre-flight check: %w", err)
	}

	logger := logging.OrDiscard(e.Logger)
	newID := e.newID
	if newID == nil {
		newID = uuid.NewString
	}
	summary = Summary{SweepID: newID(), Total: plan.Total()}
	logger = logger.With("sweep_id", summary.SweepID)

	defer func() {
		if terr := e.Hooks.Terminate(context.WithoutCancel(ctx)); terr != nil {
			logger.Error("terminate failed", "error", terr)
			err = errors.Join(err, fmt.Errorf("terminate: %w", terr))
		}
	}()

	logger.Info("sweep started", "combinations", plan.Size(), "trials", plan.Trials, "total", summary.Total)
	delay := max(e.Delay, 0)

	iteration := 0
	for _, combo := range plan.Combinations() {
		for n := 0; n < plan.Trials; n++ {
			if err := ctx.Err(); err != nil {
				return summary, err
			}
			if iteration > 0 && delay > 0 {
				if err := e.wait(ctx, delay); err != nil {
					return summary, err
				}
			}
			iteration++
			e.report(logger, Progress{
				SweepID:     summary.SweepID,
				Iteration:   iteration,
				Total:       summary.Total,
				Trial:       n,
				Combination: combo,
			})

			outcome, err := e.Recorder.Record(ctx, trial.Request{
				SweepID: summary.SweepID,
				Run:     e.Run,
				Params:  scan.Params.Fixed.Merge(combo.Metadata()),
			})
			if err != nil {
				return summary, fmt.Errorf("trial %d (%s): %w", iteration, combo, err)
			}
			summary.Outcomes = append(summary.Outcomes, outcome)

			if scan.Plot {
				if err := e.Hooks.Plot(ctx, outcome, combo); err != nil {
					return summary, fmt.Errorf("plot trial %d: %w", iteration, err)
				}
			} else {
				e.Hooks.clear()
			}
		}
	}
	logger.Info("sweep finished", "trials", len(summary.Outcomes))
	return summary, nil
}

func (e *Experiment) report(logger *slog.Logger, p Progress) {
	if e.Progress != nil {
		e.Progress(p)
		return
	}
	logger.Info(p.String())
}

func (e *Experiment) wait(ctx context.Context, d time.Duration) error {
	if e.sleep != nil {
		return e.sleep(ctx, d)
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
