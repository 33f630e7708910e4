// Package archive mirrors trial files and pipeline snapshots into
// S3-compatible object storage.
package archive

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	"github.com/animus-labs/labkit/internal/domain"
	"github.com/animus-labs/labkit/internal/pipeline"
	"github.com/animus-labs/labkit/internal/platform/logging"
	"github.com/animus-labs/labkit/internal/platform/objectstore"
)

const contentTypeCSV = "text/csv"

// Object describes one mirrored file.
type Object struct {
	Key        string
	SHA256     string
	SizeBytes  int64
	UploadedAt time.Time
}

type Archive struct {
	bucket string
	store  objectstore.Store
	logger *slog.Logger
	now    func() time.Time
}

func New(store objectstore.Store, bucket string, logger *slog.Logger) (*Archive, error) {
	if store == nil {
		return nil, errors.New("object store is required")
	}
	bucket = strings.TrimSpace(bucket)
	if bucket == "" {
		return nil, errors.New("bucket is required")
	}
	return &Archive{bucket: bucket, store: store, logger: logging.OrDiscard(logger), now: time.Now}, nil
}

func TrialKey(sweepID, filename string) string {
	if strings.TrimSpace(sweepID) == "" {
		sweepID = "unassigned"
	}
	return path.Join("sweeps", sweepID, filename)
}

func SnapshotKey(runID, snapshot, record string) string {
	if strings.TrimSpace(runID) == "" {
		runID = "unassigned"
	}
	return path.Join("pipelines", runID, snapshot, record+".csv")
}

// PutFile uploads the file at localPath under key.
func (a *Archive) PutFile(ctx context.Context, key, localPath string) (Object, error) {
	if a == nil || a.store == nil {
		return Object{}, errors.New("archive not initialized")
	}
	body, err := os.ReadFile(localPath)
	if err != nil {
		return Object{}, fmt.Errorf("read %s: %w", localPath, err)
	}
	sum := sha256.Sum256(body)
	size := int64(len(body))
	if err := a.store.Put(ctx, a.bucket, key, bytes.NewReader(body), size, contentTypeCSV); err != nil {
		return Object{}, fmt.Errorf("put %s: %w", key, err)
	}
	obj := Object{
		Key:        key,
		SHA256:     hex.EncodeToString(sum[:]),
		SizeBytes:  size,
		UploadedAt: a.now().UTC(),
	}
	a.logger.Info("object archived", "bucket", a.bucket, "key", key, "sha256", obj.SHA256, "size_bytes", size)
	return obj, nil
}

func (a *Archive) MirrorTrial(ctx context.Context, localPath string, record domain.RunRecord) error {
	name := record.Filename
	if name == "" {
		name = filepath.Base(localPath)
	}
	_, err := a.PutFile(ctx, TrialKey(record.SweepID, name), localPath)
	return err
}

func (a *Archive) MirrorSnapshot(ctx context.Context, runID, snapshot, localPath string, rec pipeline.Record) error {
	_, err := a.PutFile(ctx, SnapshotKey(runID, snapshot, rec.Key), localPath)
	return err
}
