package main

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/fatih/color"

	"github.com/animus-labs/labkit/internal/table"
	"github.com/animus-labs/labkit/internal/trial"
)

func runCLI(t *testing.T, args ...string) (string, error) {
	t.Helper()
	return runCLIWithEnv(t, nil, args...)
}

func runCLIWithEnv(t *testing.T, env map[string]string, args ...string) (string, error) {
	t.Helper()
	color.NoColor = true
	t.Setenv("LABKIT_MINIO_ENABLED", "false")
	t.Setenv("LABKIT_DATABASE_URL", "")
	t.Setenv("LABKIT_LOG_LEVEL", "error")
	for k, v := range env {
		t.Setenv(k, v)
	}

	var out, errOut bytes.Buffer
	root := newRootCommand()
	root.SetArgs(args)
	root.SetOut(&out)
	root.SetErr(&errOut)
	root.SetIn(strings.NewReader(""))
	err := root.Execute()
	return out.String(), err
}

func writeFile(t *testing.T, dir, name, body string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("write %s: %v", name, err)
	}
	return path
}

const syntheticSweep = `
schema: labkit.sweep.v1
measurement: synthetic
order: [amplitude]
scan:
  amplitude: [1, 2]
fixed:
  frequency: 10
  points: 8
`

func TestSweepThenAnalyze(t *testing.T) {
	work := t.TempDir()
	dataDir := filepath.Join(work, "data")
	sweepFile := writeFile(t, work, "sweep.yaml", syntheticSweep)

	out, err := runCLI(t, "sweep", "-f", sweepFile, "--dir", dataDir, "--delay", "0", "--plot")
	if err != nil {
		t.Fatalf("sweep: %v\n%s", err, out)
	}
	if !strings.Contains(out, "Scan 1 of 2. {amplitude:1}") || !strings.Contains(out, "Scan 2 of 2. {amplitude:2}") {
		t.Fatalf("missing progress lines:\n%s", out)
	}
	if !strings.Contains(out, "synthetic_1.csv") {
		t.Fatalf("missing plot line:\n%s", out)
	}
	index, err := trial.LoadIndex(dataDir)
	if err != nil || index.Len() != 2 {
		t.Fatalf("index: %v", err)
	}

	pipelineFile := writeFile(t, work, "pipeline.yaml", `
schema: labkit.pipeline.v1
steps:
  - name: rectify
    transform: abs
    args: {column: signal, into: abs_signal}
  - name: peak
    transform: normalize
    args: {column: abs_signal}
    plot_against: time
`)
	out, err = runCLI(t, "analyze", "-f", pipelineFile, "--data", dataDir, "--save-all", "--skip", "missing")
	if err != nil {
		t.Fatalf("analyze: %v\n%s", err, out)
	}
	if !strings.Contains(out, "modifies=abs_signal plot_against=time") {
		t.Fatalf("missing step summary:\n%s", out)
	}
	saved := filepath.Join(dataDir, "data_saver", "data2", "synthetic_0.csv")
	got, err := table.ReadFile(saved)
	if err != nil {
		t.Fatalf("read %s: %v", saved, err)
	}
	peak, _ := got.Floats("abs_signal")
	max := 0.0
	for _, v := range peak {
		if v > max {
			max = v
		}
	}
	if max != 1 {
		t.Fatalf("normalized peak = %v", max)
	}
}

func TestInspectAndIndex(t *testing.T) {
	dir := t.TempDir()
	data := table.New("X")
	if err := data.Append(1.5); err != nil {
		t.Fatalf("Append: %v", err)
	}
	path := filepath.Join(dir, "lockin_0.csv")
	if err := table.WriteFile(path, data, map[string]any{"frequency": "147hz"}); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	out, err := runCLI(t, "inspect", path)
	if err != nil {
		t.Fatalf("inspect: %v", err)
	}
	if !strings.Contains(out, "frequency: 147hz") || !strings.Contains(out, "rows: 1") {
		t.Fatalf("unexpected inspect output:\n%s", out)
	}
	if _, err := runCLI(t, "index", dir); err == nil {
		t.Fatalf("expected error for directory without index")
	}
}

func TestOfflineCommandsSkipMirrors(t *testing.T) {
	dir := t.TempDir()
	data := table.New("X")
	if err := data.Append(2); err != nil {
		t.Fatalf("Append: %v", err)
	}
	path := filepath.Join(dir, "lockin_0.csv")
	if err := table.WriteFile(path, data, map[string]any{"trial": 0}); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	if _, err := trial.AppendIndex(dir, map[string]any{"trial": 0, "filename": "lockin_0.csv"}, path, false); err != nil {
		t.Fatalf("AppendIndex: %v", err)
	}

	unreachable := map[string]string{
		"LABKIT_DATABASE_URL":          "postgres://labkit@127.0.0.1:1/labkit?sslmode=disable&connect_timeout=1",
		"LABKIT_DATABASE_PING_TIMEOUT": "1s",
	}
	if out, err := runCLIWithEnv(t, unreachable, "inspect", path); err != nil || !strings.Contains(out, "rows: 1") {
		t.Fatalf("inspect with database down: err=%v out=%s", err, out)
	}
	if _, err := runCLIWithEnv(t, unreachable, "index", dir); err != nil {
		t.Fatalf("index with database down: %v", err)
	}

	sweepFile := writeFile(t, dir, "sweep.yaml", syntheticSweep)
	if _, err := runCLIWithEnv(t, unreachable, "sweep", "-f", sweepFile, "--dir", filepath.Join(dir, "out"), "--delay", "0"); err == nil {
		t.Fatalf("sweep should fail when the configured database is unreachable")
	}
}

func TestSweepRequiresInstrumentAddress(t *testing.T) {
	work := t.TempDir()
	sweepFile := writeFile(t, work, "sweep.yaml", "schema: labkit.sweep.v1\nmeasurement: lockin-xy\n")
	if _, err := runCLI(t, "sweep", "-f", sweepFile, "--dir", work); err == nil || !strings.Contains(err.Error(), "lock-in address") {
		t.Fatalf("expected missing address error, got %v", err)
	}
}

func TestColumnMeans(t *testing.T) {
	data, _ := table.FromFloats([]string{"X", "Y"}, []float64{1, 2}, []float64{-4, 0})
	if got := columnMeans(data); got != "X=1.5 Y=-2" {
		t.Fatalf("columnMeans = %q", got)
	}
}
