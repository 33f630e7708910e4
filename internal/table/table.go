// Package table holds the rows-by-named-columns results produced by
// measurements and consumed by analysis pipelines, plus their file format.
package table

import (
	"fmt"
	"slices"
	"strconv"

	"github.com/animus-labs/labkit/internal/domain"
)

// Table stores cells as the strings they are written as. Numeric views are
// parsed on demand.
type Table struct {
	columns []string
	rows    [][]string
}

func New(columns ...string) *Table {
	return &Table{columns: slices.Clone(columns)}
}

// FromFloats builds a table from equally sized numeric columns.
func FromFloats(columns []string, values ...[]float64) (*Table, error) {
	if len(columns) != len(values) {
		return nil, fmt.Errorf("got %d columns and %d value slices", len(columns), len(values))
	}
	t := New(columns...)
	n := 0
	if len(values) > 0 {
		n = len(values[0])
	}
	for i, col := range values {
		if len(col) != n {
			return nil, fmt.Errorf("column %q has %d values, want %d", columns[i], len(col), n)
		}
	}
	for r := 0; r < n; r++ {
		row := make([]string, len(values))
		for c := range values {
			row[c] = domain.FormatValue(values[c][r])
		}
		t.rows = append(t.rows, row)
	}
	return t, nil
}

func (t *Table) ColumnNames() []string {
	if t == nil {
		return nil
	}
	return slices.Clone(t.columns)
}

func (t *Table) Len() int {
	if t == nil {
		return 0
	}
	return len(t.rows)
}

// Empty reports whether the table carries neither columns nor rows.
func (t *Table) Empty() bool {
	return t == nil || (len(t.columns) == 0 && len(t.rows) == 0)
}

func (t *Table) Append(values ...any) error {
	if len(values) != len(t.columns) {
		return fmt.Errorf("row has %d values, table has %d columns", len(values), len(t.columns))
	}
	row := make([]string, len(values))
	for i, v := range values {
		row[i] = domain.FormatValue(v)
	}
	t.rows = append(t.rows, row)
	return nil
}

func (t *Table) Row(i int) []string {
	return slices.Clone(t.rows[i])
}

func (t *Table) index(name string) int {
	return slices.Index(t.columns, name)
}

func (t *Table) HasColumn(name string) bool {
	return t != nil && t.index(name) >= 0
}

func (t *Table) Column(name string) ([]string, bool) {
	if t == nil {
		return nil, false
	}
	idx := t.index(name)
	if idx < 0 {
		return nil, false
	}
	out := make([]string, len(t.rows))
	for i, row := range t.rows {
		out[i] = row[idx]
	}
	return out, true
}

func (t *Table) Floats(name string) ([]float64, error) {
	col, ok := t.Column(name)
	if !ok {
		return nil, fmt.Errorf("column %q not found", name)
	}
	out := make([]float64, len(col))
	for i, cell := range col {
		f, err := strconv.ParseFloat(cell, 64)
		if err != nil {
			return nil, fmt.Errorf("column %q row %d: %w", name, i, err)
		}
		out[i] = f
	}
	return out, nil
}

// SetColumn replaces an existing column or appends a new one.
func (t *Table) SetColumn(name string, values []string) error {
	if len(t.columns) > 0 && len(values) != len(t.rows) {
		return fmt.Errorf("column %q has %d values, table has %d rows", name, len(values), len(t.rows))
	}
	if len(t.columns) == 0 {
		t.rows = make([][]string, len(values))
	}
	idx := t.index(name)
	if idx < 0 {
		t.columns = append(t.columns, name)
		for i := range t.rows {
			t.rows[i] = append(t.rows[i], values[i])
		}
		return nil
	}
	for i := range t.rows {
		t.rows[i][idx] = values[i]
	}
	return nil
}

func (t *Table) SetFloats(name string, values []float64) error {
	cells := make([]string, len(values))
	for i, v := range values {
		cells[i] = domain.FormatValue(v)
	}
	return t.SetColumn(name, cells)
}

func (t *Table) Clone() *Table {
	if t == nil {
		return nil
	}
	out := &Table{columns: slices.Clone(t.columns), rows: make([][]string, len(t.rows))}
	for i, row := range t.rows {
		out.rows[i] = slices.Clone(row)
	}
	return out
}

func (t *Table) Equal(other *Table) bool {
	if t.Empty() || other.Empty() {
		return t.Empty() && other.Empty()
	}
	if !slices.Equal(t.columns, other.columns) || len(t.rows) != len(other.rows) {
		return false
	}
	for i := range t.rows {
		if !slices.Equal(t.rows[i], other.rows[i]) {
			return false
		}
	}
	return true
}
