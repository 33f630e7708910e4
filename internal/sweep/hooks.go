package sweep

import (
	"context"

	"github.com/animus-labs/labkit/internal/domain"
	"github.com/animus-labs/labkit/internal/trial"
)

// Hooks are the instrument-facing callbacks of a sweep. Terminate is
// required; the others are optional.
type Hooks struct {
	// Check inspects the merged parameters before anything runs.
	Check func(params domain.Metadata) error
	// Terminate returns the hardware to a safe idle state. It runs once.
	Terminate func(ctx context.Context) error
	Plot      func(ctx context.Context, outcome trial.Outcome, combo domain.Combination) error
	Clear     func()
}

func (h Hooks) check(params domain.Metadata) error {
	if h.Check == nil {
		return nil
	}
	return h.Check(params)
}

func (h Hooks) clear() {
	if h.Clear != nil {
		h.Clear()
	}
}
