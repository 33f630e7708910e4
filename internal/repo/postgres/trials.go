package postgres

import (
	"context"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/animus-labs/labkit/internal/domain"
)

// TrialRow is one persisted trial as stored in sweep_trials.
type TrialRow struct {
	SweepID    string
	Trial      *int
	Filename   string
	DataDir    string
	Metadata   domain.Metadata
	FileSHA256 string
	RecordedAt time.Time
}

func (r TrialRow) Validate() error {
	if strings.TrimSpace(r.SweepID) == "" {
		return errors.New("sweep id is required")
	}
	if strings.TrimSpace(r.Filename) == "" {
		return errors.New("filename is required")
	}
	return nil
}

type TrialFilter struct {
	SweepID string
	Limit   int
}

type TrialStore struct {
	db  DB
	now func() time.Time
}

func NewTrialStore(db DB) *TrialStore {
	if db == nil {
		return nil
	}
	return &TrialStore{db: db, now: time.Now}
}

func (s *TrialStore) Insert(ctx context.Context, row TrialRow) error {
	if s == nil || s.db == nil {
		return fmt.Errorf("trial store not initialized")
	}
	if err := row.Validate(); err != nil {
		return err
	}
	if row.RecordedAt.IsZero() {
		row.RecordedAt = s.now()
	}
	metaJSON, err := encodeMetadata(row.Metadata)
	if err != nil {
		return fmt.Errorf("encode metadata: %w", err)
	}
	integrity, err := trialIntegritySHA256(row, metaJSON)
	if err != nil {
		return err
	}
	var trial sql.NullInt64
	if row.Trial != nil {
		trial = sql.NullInt64{Int64: int64(*row.Trial), Valid: true}
	}
	_, err = s.db.ExecContext(
		ctx,
		`INSERT INTO sweep_trials (
			sweep_id,
			trial,
			filename,
			data_dir,
			metadata,
			file_sha256,
			recorded_at,
			integrity_sha256
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8)`,
		strings.TrimSpace(row.SweepID),
		trial,
		strings.TrimSpace(row.Filename),
		nullIfEmpty(row.DataDir),
		metaJSON,
		nullIfEmpty(row.FileSHA256),
		row.RecordedAt.UTC(),
		integrity,
	)
	if err != nil {
		return fmt.Errorf("insert trial: %w", err)
	}
	return nil
}

// MirrorTrial records a freshly written trial file.
func (s *TrialStore) MirrorTrial(ctx context.Context, path string, record domain.RunRecord) error {
	body, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read %s: %w", path, err)
	}
	sum := sha256.Sum256(body)
	row := TrialRow{
		SweepID:    record.SweepID,
		Filename:   record.Filename,
		DataDir:    filepath.Dir(path),
		Metadata:   record.Metadata,
		FileSHA256: hex.EncodeToString(sum[:]),
	}
	if record.HasTrialIndex() {
		n := int(record.Trial)
		row.Trial = &n
	}
	return s.Insert(ctx, row)
}

func (s *TrialStore) List(ctx context.Context, filter TrialFilter) ([]TrialRow, error) {
	if s == nil || s.db == nil {
		return nil, fmt.Errorf("trial store not initialized")
	}
	query, args, err := buildTrialListQuery(filter)
	if err != nil {
		return nil, err
	}
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list trials: %w", err)
	}
	defer rows.Close()

	var out []TrialRow
	for rows.Next() {
		var (
			row      TrialRow
			trial    sql.NullInt64
			dataDir  sql.NullString
			fileSHA  sql.NullString
			metaJSON []byte
		)
		if err := rows.Scan(&row.SweepID, &trial, &row.Filename, &dataDir, &metaJSON, &fileSHA, &row.RecordedAt); err != nil {
			return nil, fmt.Errorf("scan trial: %w", err)
		}
		if trial.Valid {
			n := int(trial.Int64)
			row.Trial = &n
		}
		row.DataDir = dataDir.String
		row.FileSHA256 = fileSHA.String
		if row.Metadata, err = decodeMetadata(metaJSON); err != nil {
			return nil, fmt.Errorf("decode metadata: %w", err)
		}
		out = append(out, row)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate trials: %w", err)
	}
	return out, nil
}

func buildTrialListQuery(filter TrialFilter) (string, []any, error) {
	sweepID := strings.TrimSpace(filter.SweepID)
	if sweepID == "" {
		return "", nil, errors.New("sweep id is required")
	}
	query := `SELECT sweep_id, trial, filename, data_dir, metadata, file_sha256, recorded_at
		FROM sweep_trials
		WHERE sweep_id = $1
		ORDER BY trial_row_id`
	args := []any{sweepID}
	if filter.Limit > 0 {
		query += " LIMIT $2"
		args = append(args, filter.Limit)
	}
	return query, args, nil
}

func trialIntegritySHA256(row TrialRow, metaJSON []byte) (string, error) {
	type integrityInput struct {
		SweepID    string          `json:"sweep_id"`
		Trial      *int            `json:"trial"`
		Filename   string          `json:"filename"`
		Metadata   json.RawMessage `json:"metadata"`
		FileSHA256 string          `json:"file_sha256"`
		RecordedAt time.Time       `json:"recorded_at"`
	}
	blob, err := json.Marshal(integrityInput{
		SweepID:    strings.TrimSpace(row.SweepID),
		Trial:      row.Trial,
		Filename:   strings.TrimSpace(row.Filename),
		Metadata:   metaJSON,
		FileSHA256: strings.TrimSpace(row.FileSHA256),
		RecordedAt: row.RecordedAt.UTC(),
	})
	if err != nil {
		return "", fmt.Errorf("marshal integrity input: %w", err)
	}
	sum := sha256.Sum256(blob)
	return hex.EncodeToString(sum[:]), nil
}
