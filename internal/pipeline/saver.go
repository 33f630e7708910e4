package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"

	"github.com/animus-labs/labkit/internal/platform/logging"
	"github.com/animus-labs/labkit/internal/table"
)

const (
	SaveDirName     = "data_saver"
	MaxSaveDirTries = 1000
)

var ErrSaveDirExhausted = errors.New("no free data_saver directory")

// SnapshotMirror receives every persisted snapshot file.
type SnapshotMirror interface {
	MirrorSnapshot(ctx context.Context, runID, snapshot, path string, rec Record) error
}

// CreateSaveDir creates dest/data_saver, or the first free data_saver_<n>.
func CreateSaveDir(dest string) (string, error) {
	if err := os.MkdirAll(dest, 0o755); err != nil {
		return "", fmt.Errorf("create destination: %w", err)
	}
	for i := 0; i < MaxSaveDirTries; i++ {
		name := SaveDirName
		if i > 0 {
			name += "_" + strconv.Itoa(i)
		}
		dir := filepath.Join(dest, name)
		err := os.Mkdir(dir, 0o755)
		if err == nil {
			return dir, nil
		}
		if !errors.Is(err, os.ErrExist) {
			return "", fmt.Errorf("create %s: %w", dir, err)
		}
	}
	return "", fmt.Errorf("%w in %s after %d attempts", ErrSaveDirExhausted, dest, MaxSaveDirTries)
}

// SaveAll writes each snapshot to <save dir>/data<i>/<record>.csv.
func SaveAll(ctx context.Context, dest, runID string, snapshots []Dataset, mirror SnapshotMirror, logger *slog.Logger) (string, error) {
	logger = logging.OrDiscard(logger)
	dir, err := CreateSaveDir(dest)
	if err != nil {
		return "", err
	}
	for i, snap := range snapshots {
		name := SnapshotName(i)
		snapDir := filepath.Join(dir, name)
		if err := os.Mkdir(snapDir, 0o755); err != nil {
			return dir, fmt.Errorf("create %s: %w", snapDir, err)
		}
		for _, rec := range snap.Records {
			if rec.Key == "" || rec.Key != filepath.Base(rec.Key) {
				return dir, fmt.Errorf("record key %q is not a valid file name", rec.Key)
			}
			path := filepath.Join(snapDir, rec.Key+".csv")
			data := rec.Data
			if data == nil {
				data = table.New()
			}
			if err := table.WriteFile(path, data, rec.Meta); err != nil {
				return dir, fmt.Errorf("save snapshot %s: %w", name, err)
			}
			if mirror == nil {
				continue
			}
			if err := mirror.MirrorSnapshot(ctx, runID, name, path, rec); err != nil {
				logger.Warn("mirror snapshot failed", "path", path, "error", err)
			}
		}
	}
	logger.Info("snapshots saved", "dir", dir, "snapshots", len(snapshots))
	return dir, nil
}
