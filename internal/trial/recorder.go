// Package trial runs one measurement and persists what it returns: a data
// file with a metadata header and a row in the directory's run index.
package trial

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"os"
	"path/filepath"
	"strings"

	"github.com/animus-labs/labkit/internal/domain"
	"github.com/animus-labs/labkit/internal/platform/logging"
	"github.com/animus-labs/labkit/internal/table"
)

// Result is what a run function hands back for one trial.
type Result struct {
	BaseName string
	Metadata domain.Metadata
	Data     *table.Table
}

func (r Result) Validate() error {
	if strings.TrimSpace(r.BaseName) == "" {
		return errors.New("base name is required")
	}
	if r.Data == nil {
		return errors.New("tabular result is required")
	}
	return nil
}

// RunFunc performs one measurement with the merged sweep parameters.
type RunFunc func(ctx context.Context, params domain.Metadata) (Result, error)

// NamePrompt supplies a file name by hand when one cannot be derived.
type NamePrompt func(base string, cause error) (string, error)

// Mirror receives every persisted trial file. Mirror failures are logged and
// never fail the trial.
type Mirror interface {
	MirrorTrial(ctx context.Context, path string, record domain.RunRecord) error
}

type Recorder struct {
	Dir         string
	Prompt      NamePrompt
	BinaryIndex bool
	Mirrors     []Mirror
	Logger      *slog.Logger

	writeData func(path string, t *table.Table, meta domain.Metadata) error
}

// Request is one trial: the run function and the parameters it receives.
type Request struct {
	SweepID string
	Run     RunFunc
	Params  domain.Metadata
}

type Outcome struct {
	Path     string
	Record   domain.RunRecord
	Result   Result
	Fallback bool
}

func (r *Recorder) Validate() error {
	if r == nil {
		return errors.New("recorder is required")
	}
	if strings.TrimSpace(r.Dir) == "" {
		return errors.New("no save directory configured")
	}
	info, err := os.Stat(r.Dir)
	if err != nil {
		return fmt.Errorf("save directory: %w", err)
	}
	if !info.IsDir() {
		return fmt.Errorf("save directory %s is not a directory", r.Dir)
	}
	return nil
}

// Record runs req.Run once and persists its result. The data file is kept
// even when the index append is rejected.
func (r *Recorder) Record(ctx context.Context, req Request) (Outcome, error) {
	if req.Run == nil {
		return Outcome{}, errors.New("run function is required")
	}
	if err := r.Validate(); err != nil {
		return Outcome{}, err
	}
	logger := logging.OrDiscard(r.Logger)

	res, err := req.Run(ctx, req.Params.Clone())
	if err != nil {
		return Outcome{}, fmt.Errorf("run: %w", err)
	}
	if err := res.Validate(); err != nil {
		return Outcome{}, fmt.Errorf("run returned invalid result: %w", err)
	}

	name, index, err := r.saveName(res.BaseName, logger)
	if err != nil {
		return Outcome{}, err
	}
	path := filepath.Join(r.Dir, name)

	meta := res.Metadata.Clone()
	meta[domain.MetaTrial] = index
	meta[domain.MetaFilename] = name
	record := domain.RunRecord{
		SweepID:  req.SweepID,
		Trial:    math.NaN(),
		Filename: name,
		Metadata: meta,
	}
	if i, ok := index.(int); ok {
		record.Trial = float64(i)
	}

	out := Outcome{Path: path, Record: record, Result: res}
	write := r.writeData
	if write == nil {
		write = table.WriteFile
	}
	if err := write(path, res.Data, meta); err != nil {
		logger.Warn("header write failed, saving plain csv", "path", path, "error", err)
		if err := table.WriteCSVFile(path, res.Data); err != nil {
			return out, fmt.Errorf("save %s: %w", path, err)
		}
		out.Fallback = true
	}

	if _, err := AppendIndex(r.Dir, meta, path, r.BinaryIndex); err != nil {
		return out, err
	}
	logger.Info("trial saved", "path", path, "rows", res.Data.Len(), "fallback", out.Fallback)

	for _, m := range r.Mirrors {
		if m == nil {
			continue
		}
		if err := m.MirrorTrial(ctx, path, record); err != nil {
			logger.Warn("mirror trial failed", "path", path, "error", err)
		}
	}
	return out, nil
}

// saveName returns the file name and the trial index, which is NaN when the
// name came from the prompt.
func (r *Recorder) saveName(base string, logger *slog.Logger) (string, any, error) {
	name, n, err := NextSaveName(r.Dir, base)
	if err == nil {
		return name, n, nil
	}
	logger.Warn("could not derive save name", "base", base, "error", err)
	if r.Prompt == nil {
		return "", nil, fmt.Errorf("derive save name for %q: %w", base, err)
	}
	manual, perr := r.Prompt(base, err)
	if perr != nil {
		return "", nil, fmt.Errorf("prompt for save name: %w", perr)
	}
	manual = strings.TrimSpace(manual)
	if manual == "" || manual != filepath.Base(manual) {
		return "", nil, fmt.Errorf("invalid manual save name %q", manual)
	}
	return manual, math.NaN(), nil
}
