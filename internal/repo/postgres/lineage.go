package postgres

import (
	"context"
	"fmt"
	"strings"

	"github.com/animus-labs/labkit/internal/pipeline"
	"github.com/animus-labs/labkit/internal/platform/lineageevent"
)

// LineageStore writes one provenance event per pipeline step.
type LineageStore struct {
	db    DB
	actor string
}

func NewLineageStore(db DB, actor string) *LineageStore {
	if db == nil {
		return nil
	}
	actor = strings.TrimSpace(actor)
	if actor == "" {
		actor = "labkit"
	}
	return &LineageStore{db: db, actor: actor}
}

func (s *LineageStore) ObserveStep(ctx context.Context, runID string, step pipeline.Step, _ pipeline.Dataset) error {
	if s == nil || s.db == nil {
		return fmt.Errorf("lineage store not initialized")
	}
	if _, err := lineageevent.Insert(ctx, s.db, stepEvent(s.actor, runID, step)); err != nil {
		return err
	}
	return nil
}

func stepEvent(actor, runID string, step pipeline.Step) lineageevent.Event {
	meta := map[string]any{
		"transform": step.Name,
		"status":    string(step.Status),
	}
	if step.Modifies != "" {
		meta["modifies"] = step.Modifies
	}
	if step.PlotAgainst != "" {
		meta["plot_against"] = step.PlotAgainst
	}
	if step.SkipPlot {
		meta["skip_plot"] = true
	}
	return lineageevent.SnapshotEvent(
		actor,
		runID,
		pipeline.SnapshotName(step.Index-1),
		step.Snapshot,
		step.Status != pipeline.StepApplied,
		meta,
	)
}
