package trial

import (
	"bytes"
	"context"
	"errors"
	"math"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/animus-labs/labkit/internal/domain"
	"github.com/animus-labs/labkit/internal/table"
)

func lockinRun(base string, extra domain.Metadata) RunFunc {
	return func(_ context.Context, params domain.Metadata) (Result, error) {
		data := table.New("X", "Y")
		if err := data.Append(1e-6, -2e-7); err != nil {
			return Result{}, err
		}
		meta := params.Merge(extra)
		return Result{BaseName: base, Metadata: meta, Data: data}, nil
	}
}

type fakeMirror struct {
	paths []string
	err   error
}

func (m *fakeMirror) MirrorTrial(_ context.Context, path string, _ domain.RunRecord) error {
	m.paths = append(m.paths, path)
	return m.err
}

func TestRecordAssignsIncreasingSuffixes(t *testing.T) {
	dir := t.TempDir()
	rec := &Recorder{Dir: dir}
	params := domain.Metadata{"frequency": "147hz"}

	first, err := rec.Record(context.Background(), Request{Run: lockinRun("trial", nil), Params: params})
	if err != nil {
		t.Fatalf("first record: %v", err)
	}
	second, err := rec.Record(context.Background(), Request{Run: lockinRun("trial", nil), Params: params})
	if err != nil {
		t.Fatalf("second record: %v", err)
	}
	if filepath.Base(first.Path) != "trial_0.csv" || filepath.Base(second.Path) != "trial_1.csv" {
		t.Fatalf("unexpected names %s, %s", first.Path, second.Path)
	}
	if first.Record.Trial != 0 || second.Record.Trial != 1 {
		t.Fatalf("unexpected trial indices %v, %v", first.Record.Trial, second.Record.Trial)
	}

	_, meta, err := table.ReadFileWithMeta(second.Path)
	if err != nil {
		t.Fatalf("read back: %v", err)
	}
	if meta["trial"] != "1" || meta["filename"] != "trial_1.csv" || meta["frequency"] != "147hz" {
		t.Fatalf("unexpected header %v", meta)
	}

	index, err := LoadIndex(dir)
	if err != nil {
		t.Fatalf("LoadIndex: %v", err)
	}
	if index.Len() != 2 {
		t.Fatalf("expected 2 index rows, got %d", index.Len())
	}
	if _, ok := params["trial"]; ok {
		t.Fatalf("caller params were mutated")
	}
}

func TestNextSaveNameFillsGaps(t *testing.T) {
	dir := t.TempDir()
	for _, name := range []string{"trace_0.csv", "trace_2.csv", "trace_x.csv", "other_1.csv"} {
		if err := os.WriteFile(filepath.Join(dir, name), nil, 0o644); err != nil {
			t.Fatalf("seed: %v", err)
		}
	}
	name, n, err := NextSaveName(dir, "trace")
	if err != nil {
		t.Fatalf("NextSaveName: %v", err)
	}
	if name != "trace_1.csv" || n != 1 {
		t.Fatalf("NextSaveName()=%s,%d", name, n)
	}
}

func TestIndexColumnMismatch(t *testing.T) {
	dir := t.TempDir()
	rec := &Recorder{Dir: dir}
	if _, err := rec.Record(context.Background(), Request{Run: lockinRun("trial", nil), Params: domain.Metadata{"a": 1}}); err != nil {
		t.Fatalf("first record: %v", err)
	}
	indexPath := filepath.Join(dir, IndexFile)
	before, err := os.ReadFile(indexPath)
	if err != nil {
		t.Fatalf("read index: %v", err)
	}

	out, err := rec.Record(context.Background(), Request{Run: lockinRun("trial", domain.Metadata{"b": 2}), Params: domain.Metadata{"a": 1}})
	var mismatch *ColumnMismatchError
	if !errors.As(err, &mismatch) {
		t.Fatalf("expected ColumnMismatchError, got %v", err)
	}
	if mismatch.IndexPath != indexPath || !strings.Contains(err.Error(), indexPath) {
		t.Fatalf("error should name the index file: %v", err)
	}
	if _, statErr := os.Stat(out.Path); statErr != nil {
		t.Fatalf("data file should be kept: %v", statErr)
	}

	after, err := os.ReadFile(indexPath)
	if err != nil {
		t.Fatalf("read index: %v", err)
	}
	if !bytes.Equal(before, after) {
		t.Fatalf("index changed on rejected append")
	}
}

func TestIndexColumnsCompareExactly(t *testing.T) {
	dir := t.TempDir()
	indexPath := filepath.Join(dir, IndexFile)
	if err := os.WriteFile(indexPath, []byte(" a\n1\n"), 0o644); err != nil {
		t.Fatalf("seed index: %v", err)
	}
	_, err := AppendIndex(dir, domain.Metadata{"a": 2}, filepath.Join(dir, "trial_1.csv"), false)
	var mismatch *ColumnMismatchError
	if !errors.As(err, &mismatch) {
		t.Fatalf("expected ColumnMismatchError for \" a\" vs \"a\", got %v", err)
	}
	after, err := os.ReadFile(indexPath)
	if err != nil {
		t.Fatalf("read index: %v", err)
	}
	if string(after) != " a\n1\n" {
		t.Fatalf("index changed: %q", after)
	}
}

func TestRecordPromptsWhenNameCannotBeDerived(t *testing.T) {
	dir := t.TempDir()
	var prompted string
	rec := &Recorder{
		Dir: dir,
		Prompt: func(base string, cause error) (string, error) {
			prompted = base
			return "manual.csv", nil
		},
	}
	out, err := rec.Record(context.Background(), Request{Run: lockinRun("bad/base", nil)})
	if err != nil {
		t.Fatalf("Record: %v", err)
	}
	if prompted != "bad/base" {
		t.Fatalf("prompt not called with base, got %q", prompted)
	}
	if filepath.Base(out.Path) != "manual.csv" {
		t.Fatalf("unexpected path %s", out.Path)
	}
	if out.Record.HasTrialIndex() {
		t.Fatalf("expected NaN trial index, got %v", out.Record.Trial)
	}
	if v, ok := out.Record.Metadata["trial"].(float64); !ok || !math.IsNaN(v) {
		t.Fatalf("expected NaN trial metadata, got %v", out.Record.Metadata["trial"])
	}
}

func TestRecordWithoutPromptFails(t *testing.T) {
	rec := &Recorder{Dir: t.TempDir()}
	if _, err := rec.Record(context.Background(), Request{Run: lockinRun("", nil)}); err == nil {
		t.Fatalf("expected error for empty base name")
	}
	if _, err := rec.Record(context.Background(), Request{Run: lockinRun("a/b", nil)}); err == nil {
		t.Fatalf("expected naming error without prompt")
	}
}

func TestRecordFallsBackToPlainCSV(t *testing.T) {
	dir := t.TempDir()
	rec := &Recorder{
		Dir: dir,
		writeData: func(string, *table.Table, domain.Metadata) error {
			return errors.New("disk says no")
		},
	}
	out, err := rec.Record(context.Background(), Request{Run: lockinRun("trial", nil), Params: domain.Metadata{"a": 1}})
	if err != nil {
		t.Fatalf("Record: %v", err)
	}
	if !out.Fallback {
		t.Fatalf("expected fallback write")
	}
	raw, err := os.ReadFile(out.Path)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if !strings.HasPrefix(string(raw), "X,Y\n") {
		t.Fatalf("expected plain csv, got %q", raw)
	}
}

func TestRecordMirrorsAndBinaryIndex(t *testing.T) {
	dir := t.TempDir()
	ok := &fakeMirror{}
	failing := &fakeMirror{err: errors.New("bucket offline")}
	rec := &Recorder{Dir: dir, BinaryIndex: true, Mirrors: []Mirror{failing, ok}}

	out, err := rec.Record(context.Background(), Request{SweepID: "sweep-1", Run: lockinRun("trial", nil), Params: domain.Metadata{"a": 1}})
	if err != nil {
		t.Fatalf("Record: %v", err)
	}
	if out.Record.SweepID != "sweep-1" {
		t.Fatalf("sweep id not carried: %+v", out.Record)
	}
	if len(ok.paths) != 1 || len(failing.paths) != 1 {
		t.Fatalf("expected every mirror called once")
	}

	if err := os.Remove(filepath.Join(dir, IndexFile)); err != nil {
		t.Fatalf("remove csv index: %v", err)
	}
	index, err := LoadIndex(dir)
	if err != nil {
		t.Fatalf("LoadIndex from binary: %v", err)
	}
	if index.Len() != 1 || !index.HasColumn("filename") {
		t.Fatalf("unexpected binary index %+v", index)
	}
}

func TestRecorderValidate(t *testing.T) {
	if err := (&Recorder{}).Validate(); err == nil {
		t.Fatalf("expected error without directory")
	}
	if err := (&Recorder{Dir: filepath.Join(t.TempDir(), "missing")}).Validate(); err == nil {
		t.Fatalf("expected error for missing directory")
	}
}
