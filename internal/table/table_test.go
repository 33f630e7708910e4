package table

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/animus-labs/labkit/internal/domain"
)

func sampleTable(t *testing.T) *Table {
	t.Helper()
	tbl, err := FromFloats([]string{"time", "voltage"}, []float64{0, 1e-6, 2e-6}, []float64{0.5, -0.25, 1})
	if err != nil {
		t.Fatalf("FromFloats: %v", err)
	}
	return tbl
}

func TestRoundTripWithMetadata(t *testing.T) {
	path := filepath.Join(t.TempDir(), "trace_0.csv")
	tbl := sampleTable(t)
	meta := domain.Metadata{
		"identifier": "D0",
		"frequency":  "147hz",
		"nave":       5,
		"trial":      0,
		"filename":   "trace_0.csv",
	}
	if err := WriteFile(path, tbl, meta); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	got, gotMeta, err := ReadFileWithMeta(path)
	if err != nil {
		t.Fatalf("ReadFileWithMeta: %v", err)
	}
	if !got.Equal(tbl) {
		t.Fatalf("table mismatch: %+v vs %+v", got, tbl)
	}
	want := meta.Strings()
	if len(gotMeta) != len(want) {
		t.Fatalf("metadata mismatch: %v vs %v", gotMeta, want)
	}
	for k, v := range want {
		if gotMeta[k] != v {
			t.Fatalf("metadata[%s]=%q, want %q", k, gotMeta[k], v)
		}
	}

	plain, err := ReadFile(path)
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	if !plain.Equal(tbl) {
		t.Fatalf("ReadFile skipped header incorrectly")
	}
}

func TestEncodeLayout(t *testing.T) {
	var buf bytes.Buffer
	tbl := New("X", "Y")
	if err := tbl.Append(1.5, 2); err != nil {
		t.Fatalf("Append: %v", err)
	}
	if err := Encode(&buf, tbl, domain.Metadata{"b": "2", "a": 1}); err != nil {
		t.Fatalf("Encode: %v", err)
	}
	want := "ekpy_heading\na:::1\nb:::2\nekpy_heading_complete\nX,Y\n1.5,2\n"
	if buf.String() != want {
		t.Fatalf("Encode()=%q, want %q", buf.String(), want)
	}
}

func TestDecodePlainCSV(t *testing.T) {
	tbl, meta, err := Decode(strings.NewReader("X,Y\n1,2\n3,4\n"), true)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if meta != nil {
		t.Fatalf("expected no metadata, got %v", meta)
	}
	if tbl.Len() != 2 || !tbl.HasColumn("Y") {
		t.Fatalf("unexpected table %+v", tbl)
	}
}

func TestDecodeUnterminatedHeader(t *testing.T) {
	in := "ekpy_heading\na:::1\nX,Y\n1,2\n"
	if _, _, err := Decode(strings.NewReader(in), true); !errors.Is(err, ErrHeaderUnterminated) {
		t.Fatalf("expected ErrHeaderUnterminated, got %v", err)
	}
	if _, _, err := Decode(strings.NewReader(in), false); err != nil {
		t.Fatalf("expected plain fallback without metadata, got %v", err)
	}
}

func TestDecodeCRLFAndValueWithSeparator(t *testing.T) {
	in := "ekpy_heading\r\nnote:::a:::b\r\n\r\nekpy_heading_complete\r\nX\r\n1\r\n"
	tbl, meta, err := Decode(strings.NewReader(in), true)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if meta["note"] != "a:::b" {
		t.Fatalf("unexpected metadata %v", meta)
	}
	if tbl.Len() != 1 {
		t.Fatalf("expected 1 row, got %d", tbl.Len())
	}
}

func TestEncodeRejectsMultilineValue(t *testing.T) {
	var buf bytes.Buffer
	if err := Encode(&buf, New("X"), domain.Metadata{"note": "a\nb"}); err == nil {
		t.Fatalf("expected error for multiline value")
	}
}

func TestSetColumnAndFloats(t *testing.T) {
	tbl := sampleTable(t)
	v, err := tbl.Floats("voltage")
	if err != nil {
		t.Fatalf("Floats: %v", err)
	}
	for i := range v {
		v[i] *= 2
	}
	if err := tbl.SetFloats("voltage_x2", v); err != nil {
		t.Fatalf("SetFloats: %v", err)
	}
	if got := tbl.ColumnNames(); len(got) != 3 || got[2] != "voltage_x2" {
		t.Fatalf("unexpected columns %v", got)
	}
	if err := tbl.SetFloats("short", []float64{1}); err == nil {
		t.Fatalf("expected length mismatch error")
	}
	clone := tbl.Clone()
	if err := clone.SetFloats("voltage", []float64{0, 0, 0}); err != nil {
		t.Fatalf("SetFloats on clone: %v", err)
	}
	if clone.Equal(tbl) {
		t.Fatalf("clone shares rows with original")
	}
}

func TestWriteCSVFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "plain.csv")
	if err := WriteCSVFile(path, sampleTable(t)); err != nil {
		t.Fatalf("WriteCSVFile: %v", err)
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if strings.HasPrefix(string(raw), HeaderStart) {
		t.Fatalf("plain dump should not carry a header")
	}
}

func TestRoundTripLoneEmptyCell(t *testing.T) {
	tbl := New("note")
	if err := tbl.Append(""); err != nil {
		t.Fatalf("Append: %v", err)
	}
	if err := tbl.Append("x"); err != nil {
		t.Fatalf("Append: %v", err)
	}
	var buf bytes.Buffer
	if err := Encode(&buf, tbl, domain.Metadata{"k": "v"}); err != nil {
		t.Fatalf("Encode: %v", err)
	}
	got, _, err := Decode(&buf, true)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if got.Len() != 2 {
		t.Fatalf("rows=%d, want 2\n%s", got.Len(), buf.String())
	}
	col, ok := got.Column("note")
	if !ok || col[0] != "" || col[1] != "x" {
		t.Fatalf("note column=%q", col)
	}
}

func TestDecodeKeepsVeryLongLines(t *testing.T) {
	tbl := New("blob", "n")
	big := strings.Repeat("z", 17<<20)
	if err := tbl.Append(big, 1); err != nil {
		t.Fatalf("Append: %v", err)
	}
	if err := tbl.Append("short", 2); err != nil {
		t.Fatalf("Append: %v", err)
	}
	var buf bytes.Buffer
	if err := Encode(&buf, tbl, domain.Metadata{"k": "v"}); err != nil {
		t.Fatalf("Encode: %v", err)
	}
	got, meta, err := Decode(&buf, true)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if meta["k"] != "v" {
		t.Fatalf("meta=%v", meta)
	}
	if got.Len() != 2 {
		t.Fatalf("rows=%d, want 2", got.Len())
	}
	if col, ok := got.Column("blob"); !ok || len(col[0]) != len(big) || col[1] != "short" {
		t.Fatalf("blob column lost data: len=%d second=%q", len(col[0]), col[1])
	}
}
