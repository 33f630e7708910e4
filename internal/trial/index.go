package trial

import (
	"encoding/gob"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"slices"
	"sort"

	"github.com/animus-labs/labkit/internal/domain"
	"github.com/animus-labs/labkit/internal/table"
)

const (
	IndexFile       = "meta_data.csv"
	BinaryIndexFile = "meta_data"
)

// ColumnMismatchError rejects an index row whose keys differ from the
// columns already present in the directory's index.
type ColumnMismatchError struct {
	IndexPath string
	DataPath  string
	Existing  []string
	Got       []string
}

func (e *ColumnMismatchError) Error() string {
	return fmt.Sprintf(
		"metadata columns %v do not match existing index %s columns %v; data was saved to %s but not added to the index",
		e.Got, e.IndexPath, e.Existing, e.DataPath,
	)
}

// AppendIndex adds meta as one row to dir's index, creating it when absent.
// The whole file is read and rewritten; a rejected row leaves it untouched.
func AppendIndex(dir string, meta domain.Metadata, dataPath string, binary bool) (*table.Table, error) {
	indexPath := filepath.Join(dir, IndexFile)
	keys := meta.Keys()

	existing, err := readIndex(indexPath)
	switch {
	case errors.Is(err, fs.ErrNotExist), err == nil && len(existing.ColumnNames()) == 0:
		existing = table.New(keys...)
	case err != nil:
		return nil, err
	default:
		if !sameColumns(existing.ColumnNames(), keys) {
			return nil, &ColumnMismatchError{
				IndexPath: indexPath,
				DataPath:  dataPath,
				Existing:  existing.ColumnNames(),
				Got:       keys,
			}
		}
	}

	columns := existing.ColumnNames()
	row := make([]any, len(columns))
	for i, col := range columns {
		row[i] = meta[col]
	}
	if err := existing.Append(row...); err != nil {
		return nil, err
	}

	if err := replaceFile(indexPath, func(path string) error {
		return table.WriteCSVFile(path, existing)
	}); err != nil {
		return nil, fmt.Errorf("write index %s: %w", indexPath, err)
	}
	if binary {
		if err := writeBinaryIndex(filepath.Join(dir, BinaryIndexFile), existing); err != nil {
			return nil, err
		}
	}
	return existing, nil
}

// LoadIndex reads dir's index, preferring the CSV and falling back to the
// binary duplicate.
func LoadIndex(dir string) (*table.Table, error) {
	t, err := readIndex(filepath.Join(dir, IndexFile))
	if err == nil {
		return t, nil
	}
	if !errors.Is(err, fs.ErrNotExist) {
		return nil, err
	}
	return readBinaryIndex(filepath.Join(dir, BinaryIndexFile))
}

func readIndex(path string) (*table.Table, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	t, err := table.ReadCSV(f)
	if err != nil {
		return nil, fmt.Errorf("read index %s: %w", path, err)
	}
	return t, nil
}

type binaryIndex struct {
	Columns []string
	Rows    [][]string
}

func writeBinaryIndex(path string, t *table.Table) error {
	snap := binaryIndex{Columns: t.ColumnNames(), Rows: make([][]string, t.Len())}
	for i := range snap.Rows {
		snap.Rows[i] = t.Row(i)
	}
	return replaceFile(path, func(tmp string) error {
		f, err := os.Create(tmp)
		if err != nil {
			return err
		}
		if err := gob.NewEncoder(f).Encode(snap); err != nil {
			_ = f.Close()
			return fmt.Errorf("encode binary index: %w", err)
		}
		return f.Close()
	})
}

func readBinaryIndex(path string) (*table.Table, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	var snap binaryIndex
	if err := gob.NewDecoder(f).Decode(&snap); err != nil {
		return nil, fmt.Errorf("decode binary index %s: %w", path, err)
	}
	t := table.New(snap.Columns...)
	for _, row := range snap.Rows {
		vals := make([]any, len(row))
		for i, cell := range row {
			vals[i] = cell
		}
		if err := t.Append(vals...); err != nil {
			return nil, fmt.Errorf("decode binary index %s: %w", path, err)
		}
	}
	return t, nil
}

// replaceFile writes through a temporary sibling and renames it into place.
func replaceFile(path string, write func(tmp string) error) error {
	tmp := path + ".tmp"
	if err := write(tmp); err != nil {
		_ = os.Remove(tmp)
		return err
	}
	return os.Rename(tmp, path)
}

func sameColumns(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	x := slices.Clone(a)
	y := slices.Clone(b)
	sort.Strings(x)
	sort.Strings(y)
	for i := range x {
		if x[i] != y[i] {
			return false
		}
	}
	return true
}
