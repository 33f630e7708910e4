package instrument

import (
	"context"
	"fmt"
	"slices"
	"strconv"
	"strings"
)

// LockIn drives a Stanford Research SR830 lock-in amplifier.
type LockIn struct {
	Bus Bus
}

const (
	MinAmplitude = 0.004
	MaxAmplitude = 5.0
	MinFrequency = 0.001
	MaxFrequency = 102000.0
)

var timeConstants = []string{
	"10us", "30us", "100us", "300us",
	"1ms", "3ms", "10ms", "30ms", "100ms", "300ms",
	"1s", "3s", "10s", "30s", "100s", "300s",
	"1ks", "3ks", "10ks", "30ks",
}

var sensitivities = []string{
	"2nv/fa", "5nv/fa", "10nv/fa", "20nv/fa", "50nv/fa", "100nv/fa", "200nv/fa", "500nv/fa",
	"1uv/pa", "2uv/pa", "5uv/pa", "10uv/pa", "20uv/pa", "50uv/pa", "100uv/pa", "200uv/pa", "500uv/pa",
	"1mv/na", "2mv/na", "5mv/na", "10mv/na", "20mv/na", "50mv/na", "100mv/na", "200mv/na", "500mv/na",
	"1v/ua",
}

// XY reads X and Y in one snapshot.
func (l LockIn) XY(ctx context.Context) (float64, float64, error) {
	raw, err := l.Bus.Query(ctx, "SNAP? 1,2")
	if err != nil {
		return 0, 0, err
	}
	xs, ys, ok := strings.Cut(strings.TrimSpace(raw), ",")
	if !ok {
		return 0, 0, fmt.Errorf("unexpected SNAP? reply %q", raw)
	}
	x, err := strconv.ParseFloat(strings.TrimSpace(xs), 64)
	if err != nil {
		return 0, 0, fmt.Errorf("parse X: %w", err)
	}
	y, err := strconv.ParseFloat(strings.TrimSpace(ys), 64)
	if err != nil {
		return 0, 0, fmt.Errorf("parse Y: %w", err)
	}
	return x, y, nil
}

// SetInternalAmplitude sets the sine output in volts rms.
func (l LockIn) SetInternalAmplitude(ctx context.Context, volts float64) error {
	if volts < MinAmplitude || volts > MaxAmplitude {
		return fmt.Errorf("amplitude %s V outside %s-%s V", num(volts), num(MinAmplitude), num(MaxAmplitude))
	}
	return l.Bus.Write(ctx, "SLVL "+num(volts))
}

func (l LockIn) SetFrequency(ctx context.Context, hz float64) error {
	if hz < MinFrequency || hz > MaxFrequency {
		return fmt.Errorf("frequency %s Hz outside %s-%s Hz", num(hz), num(MinFrequency), num(MaxFrequency))
	}
	return l.Bus.Write(ctx, "FREQ "+num(hz))
}

// SetTimeConstant accepts the front-panel label, e.g. "3s" or "300ms".
func (l LockIn) SetTimeConstant(ctx context.Context, label string) error {
	i := slices.Index(timeConstants, normalizeLabel(label))
	if i < 0 {
		return fmt.Errorf("unknown time constant %q", label)
	}
	return l.Bus.Write(ctx, "OFLT "+strconv.Itoa(i))
}

// SetSensitivity accepts the front-panel label, e.g. "10uv/pa".
func (l LockIn) SetSensitivity(ctx context.Context, label string) error {
	i := slices.Index(sensitivities, normalizeLabel(label))
	if i < 0 {
		return fmt.Errorf("unknown sensitivity %q", label)
	}
	return l.Bus.Write(ctx, "SENS "+strconv.Itoa(i))
}

func normalizeLabel(label string) string {
	return strings.ToLower(strings.ReplaceAll(strings.TrimSpace(label), " ", ""))
}

// ParseFrequency reads values like "147hz", "1khz" or a bare number of Hz.
func ParseFrequency(raw string) (float64, error) {
	s := normalizeLabel(raw)
	mult := 1.0
	switch {
	case strings.HasSuffix(s, "khz"):
		mult, s = 1e3, strings.TrimSuffix(s, "khz")
	case strings.HasSuffix(s, "hz"):
		s = strings.TrimSuffix(s, "hz")
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, fmt.Errorf("parse frequency %q: %w", raw, err)
	}
	return v * mult, nil
}
