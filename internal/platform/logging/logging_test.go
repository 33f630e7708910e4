package logging

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"strings"
	"testing"
)

func TestParseLevel(t *testing.T) {
	tests := []struct {
		raw     string
		want    slog.Level
		wantErr bool
	}{
		{raw: "", want: slog.LevelInfo},
		{raw: "DEBUG", want: slog.LevelDebug},
		{raw: "warning", want: slog.LevelWarn},
		{raw: "error", want: slog.LevelError},
		{raw: "loud", wantErr: true},
	}
	for _, tt := range tests {
		got, err := ParseLevel(tt.raw)
		if (err != nil) != tt.wantErr {
			t.Fatalf("ParseLevel(%q) err=%v, wantErr=%v", tt.raw, err, tt.wantErr)
		}
		if !tt.wantErr && got != tt.want {
			t.Fatalf("ParseLevel(%q)=%v, want %v", tt.raw, got, tt.want)
		}
	}
}

func TestConfigFromEnvRejectsUnknownFormat(t *testing.T) {
	t.Setenv("LABKIT_LOG_FORMAT", "xml")
	if _, err := ConfigFromEnv(); err == nil {
		t.Fatalf("expected error for unknown format")
	}
}

func TestNewJSON(t *testing.T) {
	var buf bytes.Buffer
	logger := New(&buf, Config{Level: slog.LevelInfo, Format: FormatJSON})
	logger.Debug("hidden")
	logger.Info("trial saved", "filename", "trial_0.csv")

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 1 {
		t.Fatalf("expected one record, got %d: %q", len(lines), buf.String())
	}
	var rec map[string]any
	if err := json.Unmarshal([]byte(lines[0]), &rec); err != nil {
		t.Fatalf("decode record: %v", err)
	}
	if rec["filename"] != "trial_0.csv" {
		t.Fatalf("unexpected record %v", rec)
	}
}
