package table

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
)

// WriteCSV writes the header row followed by every data row.
func WriteCSV(w io.Writer, t *Table) error {
	cw := csv.NewWriter(w)
	if err := writeRecord(w, cw, t.ColumnNames()); err != nil {
		return err
	}
	for _, row := range t.rows {
		if err := writeRecord(w, cw, row); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

// writeRecord quotes a lone empty field. csv.Writer would emit a blank line,
// which readers skip.
func writeRecord(w io.Writer, cw *csv.Writer, rec []string) error {
	if len(rec) != 1 || rec[0] != "" {
		return cw.Write(rec)
	}
	cw.Flush()
	if err := cw.Error(); err != nil {
		return err
	}
	_, err := io.WriteString(w, "\"\"\n")
	return err
}

// ReadCSV parses a header row and data rows. Blank lines are skipped.
func ReadCSV(r io.Reader) (*Table, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = 0
	header, err := cr.Read()
	if errors.Is(err, io.EOF) {
		return New(), nil
	}
	if err != nil {
		return nil, fmt.Errorf("read header: %w", err)
	}
	t := New(header...)
	for {
		rec, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read row %d: %w", t.Len()+1, err)
		}
		t.rows = append(t.rows, rec)
	}
	return t, nil
}

// WriteCSVFile writes t as plain CSV without a metadata header.
func WriteCSVFile(path string, t *Table) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := WriteCSV(f, t); err != nil {
		_ = f.Close()
		return err
	}
	return f.Close()
}
