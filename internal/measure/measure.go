// Package measure holds the named run functions a sweep file can select,
// each paired with the routine that leaves its instruments idle.
package measure

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"

	"github.com/animus-labs/labkit/internal/domain"
	"github.com/animus-labs/labkit/internal/instrument"
	"github.com/animus-labs/labkit/internal/table"
	"github.com/animus-labs/labkit/internal/trial"
)

type Measurement struct {
	Name      string
	Run       trial.RunFunc
	Check     func(params domain.Metadata) error
	Terminate func(ctx context.Context) error
}

// Instruments are the connected devices a measurement may use.
type Instruments struct {
	LockIn *instrument.LockIn
	Scope  *instrument.Scope
	Pulse  *instrument.PulseGenerator
}

type factory func(inst Instruments) (Measurement, error)

var registry = map[string]factory{
	"lockin-xy":   lockinXY,
	"scope-trace": scopeTrace,
	"synthetic":   synthetic,
}

func Names() []string {
	names := make([]string, 0, len(registry))
	for name := range registry {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Needs reports which instruments a measurement drives.
func Needs(name string) (lockin, scope bool) {
	switch name {
	case "lockin-xy":
		return true, false
	case "scope-trace":
		return false, true
	}
	return false, false
}

func Lookup(name string, inst Instruments) (Measurement, error) {
	f, ok := registry[name]
	if !ok {
		return Measurement{}, fmt.Errorf("unknown measurement %q (known: %s)", name, strings.Join(Names(), ", "))
	}
	m, err := f(inst)
	if err != nil {
		return Measurement{}, fmt.Errorf("measurement %s: %w", name, err)
	}
	m.Name = name
	return m, nil
}

func noop(context.Context) error { return nil }

func lockinXY(inst Instruments) (Measurement, error) {
	if inst.LockIn == nil {
		return Measurement{}, errors.New("lock-in amplifier is required")
	}
	l := *inst.LockIn
	run := func(ctx context.Context, params domain.Metadata) (trial.Result, error) {
		freq, err := frequencyParam(params, "frequency")
		if err != nil {
			return trial.Result{}, err
		}
		amp, err := floatParam(params, "amplitude", instrument.MinAmplitude)
		if err != nil {
			return trial.Result{}, err
		}
		nave, err := floatParam(params, "nave", 1)
		if err != nil {
			return trial.Result{}, err
		}
		if nave < 1 {
			return trial.Result{}, fmt.Errorf("nave must be >= 1, got %v", nave)
		}
		if freq > 0 {
			if err := l.SetFrequency(ctx, freq); err != nil {
				return trial.Result{}, err
			}
		}
		if err := l.SetInternalAmplitude(ctx, amp); err != nil {
			return trial.Result{}, err
		}
		if tc, ok := params["time_constant"].(string); ok && tc != "" {
			if err := l.SetTimeConstant(ctx, tc); err != nil {
				return trial.Result{}, err
			}
		}
		if sens, ok := params["sensitivity"].(string); ok && sens != "" {
			if err := l.SetSensitivity(ctx, sens); err != nil {
				return trial.Result{}, err
			}
		}
		var sx, sy float64
		n := int(nave)
		for i := 0; i < n; i++ {
			x, y, err := l.XY(ctx)
			if err != nil {
				return trial.Result{}, err
			}
			sx += x
			sy += y
		}
		data, err := table.FromFloats([]string{"X", "Y"}, []float64{sx / float64(n)}, []float64{sy / float64(n)})
		if err != nil {
			return trial.Result{}, err
		}
		return trial.Result{BaseName: "lockin", Metadata: params, Data: data}, nil
	}
	return Measurement{
		Run:       run,
		Check:     checkAmplitudes,
		Terminate: func(ctx context.Context) error { return l.SetInternalAmplitude(ctx, instrument.MinAmplitude) },
	}, nil
}

func scopeTrace(inst Instruments) (Measurement, error) {
	if inst.Scope == nil {
		return Measurement{}, errors.New("oscilloscope is required")
	}
	scope := *inst.Scope
	pulse := inst.Pulse
	run := func(ctx context.Context, params domain.Metadata) (trial.Result, error) {
		ch, err := floatParam(params, "channel", 1)
		if err != nil {
			return trial.Result{}, err
		}
		points, err := floatParam(params, "points", 500)
		if err != nil {
			return trial.Result{}, err
		}
		setup := instrument.DefaultScopeSetup()
		setup.Channel = int(ch)
		if err := scope.Setup(ctx, setup); err != nil {
			return trial.Result{}, err
		}
		if pulse != nil {
			if err := pulse.Output(ctx, 1, true); err != nil {
				return trial.Result{}, err
			}
		}
		acq := instrument.DefaultAcquisition()
		acq.Channel = int(ch)
		acq.Points = int(points)
		data, err := scope.Acquire(ctx, acq)
		if err != nil {
			return trial.Result{}, err
		}
		return trial.Result{BaseName: "trace", Metadata: params, Data: data}, nil
	}
	terminate := noop
	if pulse != nil {
		terminate = func(ctx context.Context) error { return pulse.Output(ctx, 1, false) }
	}
	return Measurement{Run: run, Terminate: terminate}, nil
}

// synthetic produces one period of a sine wave without touching hardware.
func synthetic(Instruments) (Measurement, error) {
	run := func(ctx context.Context, params domain.Metadata) (trial.Result, error) {
		freq, err := frequencyParam(params, "frequency")
		if err != nil {
			return trial.Result{}, err
		}
		if freq <= 0 {
			freq = 1
		}
		amp, err := floatParam(params, "amplitude", 1)
		if err != nil {
			return trial.Result{}, err
		}
		points, err := floatParam(params, "points", 100)
		if err != nil {
			return trial.Result{}, err
		}
		n := int(points)
		if n < 1 {
			return trial.Result{}, fmt.Errorf("points must be >= 1, got %d", n)
		}
		times := make([]float64, n)
		signal := make([]float64, n)
		for i := range times {
			times[i] = float64(i) / (freq * float64(n))
			signal[i] = amp * math.Sin(2*math.Pi*freq*times[i])
		}
		data, err := table.FromFloats([]string{"time", "signal"}, times, signal)
		if err != nil {
			return trial.Result{}, err
		}
		return trial.Result{BaseName: "synthetic", Metadata: params, Data: data}, nil
	}
	return Measurement{Run: run, Terminate: noop}, nil
}

// checkAmplitudes rejects out-of-range lock-in amplitudes, scanned or fixed,
// before the sweep writes anything.
func checkAmplitudes(params domain.Metadata) error {
	raw, ok := params["amplitude"]
	if !ok {
		return nil
	}
	values, err := domain.AsCandidates("amplitude", raw)
	if err != nil {
		values = []any{raw}
	}
	for _, v := range values {
		amp, err := floatParam(domain.Metadata{"amplitude": v}, "amplitude", 0)
		if err != nil {
			return err
		}
		if amp < instrument.MinAmplitude || amp > instrument.MaxAmplitude {
			return fmt.Errorf("amplitude %v V outside %v-%v V", amp, instrument.MinAmplitude, instrument.MaxAmplitude)
		}
	}
	return nil
}

func floatParam(params domain.Metadata, name string, def float64) (float64, error) {
	raw, ok := params[name]
	if !ok || raw == nil {
		return def, nil
	}
	switch v := raw.(type) {
	case float64:
		return v, nil
	case int:
		return float64(v), nil
	case int64:
		return float64(v), nil
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
		if err != nil {
			return 0, fmt.Errorf("parameter %q: %w", name, err)
		}
		return f, nil
	default:
		return 0, fmt.Errorf("parameter %q must be numeric, got %T", name, raw)
	}
}

// frequencyParam also accepts labels such as "147hz"; absent means 0.
func frequencyParam(params domain.Metadata, name string) (float64, error) {
	if s, ok := params[name].(string); ok {
		return instrument.ParseFrequency(s)
	}
	return floatParam(params, name, 0)
}
