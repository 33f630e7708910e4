package pipeline

import (
	"context"
	"fmt"
	"math"
	"sort"

	"github.com/animus-labs/labkit/internal/table"
)

// PerRecord lifts a table function over every record of a dataset. Records
// for which fn returns a nil table are dropped; if all are dropped the
// result is empty and the step counts as a no-op.
func PerRecord(fn func(rec Record) (*table.Table, error)) TransformFunc {
	return func(ctx context.Context, data Dataset) (Dataset, error) {
		var out Dataset
		for _, rec := range data.Records {
			if err := ctx.Err(); err != nil {
				return Dataset{}, err
			}
			t, err := fn(rec)
			if err != nil {
				return Dataset{}, fmt.Errorf("record %s: %w", rec.Key, err)
			}
			if t == nil {
				continue
			}
			rec.Data = t
			out.Records = append(out.Records, rec)
		}
		return out, nil
	}
}

// Args are the parameters of a built-in transform as given in a pipeline file.
type Args map[string]any

func (a Args) String(name, def string) (string, error) {
	raw, ok := a[name]
	if !ok || raw == nil {
		return def, nil
	}
	s, ok := raw.(string)
	if !ok {
		return "", fmt.Errorf("argument %q must be a string, got %T", name, raw)
	}
	return s, nil
}

func (a Args) Float(name string, def float64) (float64, error) {
	raw, ok := a[name]
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
	default:
		return 0, fmt.Errorf("argument %q must be a number, got %T", name, raw)
	}
}

func (a Args) required(name string) (string, error) {
	s, err := a.String(name, "")
	if err != nil {
		return "", err
	}
	if s == "" {
		return "", fmt.Errorf("argument %q is required", name)
	}
	return s, nil
}

// Builder makes a transform function from its arguments and reports the
// field it writes.
type Builder func(args Args) (fn TransformFunc, modifies string, err error)

var builtins = map[string]Builder{
	"scale":      buildScale,
	"offset":     buildOffset,
	"abs":        buildAbs,
	"normalize":  buildNormalize,
	"derivative": buildDerivative,
	"magnitude":  buildMagnitude,
	"drop-empty": buildDropEmpty,
}

func Builtin(name string) (Builder, bool) {
	b, ok := builtins[name]
	return b, ok
}

func BuiltinNames() []string {
	names := make([]string, 0, len(builtins))
	for name := range builtins {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// mapColumn applies f to column (writing into, default column) of each record.
func mapColumn(args Args, f func([]float64) []float64) (TransformFunc, string, error) {
	column, err := args.required("column")
	if err != nil {
		return nil, "", err
	}
	into, err := args.String("into", column)
	if err != nil {
		return nil, "", err
	}
	fn := PerRecord(func(rec Record) (*table.Table, error) {
		values, err := rec.Data.Floats(column)
		if err != nil {
			return nil, err
		}
		out := rec.Data.Clone()
		if err := out.SetFloats(into, f(values)); err != nil {
			return nil, err
		}
		return out, nil
	})
	return fn, into, nil
}

func buildScale(args Args) (TransformFunc, string, error) {
	factor, err := args.Float("factor", 1)
	if err != nil {
		return nil, "", err
	}
	return mapColumn(args, func(v []float64) []float64 {
		out := make([]float64, len(v))
		for i, x := range v {
			out[i] = x * factor
		}
		return out
	})
}

func buildOffset(args Args) (TransformFunc, string, error) {
	offset, err := args.Float("value", 0)
	if err != nil {
		return nil, "", err
	}
	return mapColumn(args, func(v []float64) []float64 {
		out := make([]float64, len(v))
		for i, x := range v {
			out[i] = x + offset
		}
		return out
	})
}

func buildAbs(args Args) (TransformFunc, string, error) {
	return mapColumn(args, func(v []float64) []float64 {
		out := make([]float64, len(v))
		for i, x := range v {
			out[i] = math.Abs(x)
		}
		return out
	})
}

// buildNormalize divides by the largest magnitude; an all-zero column is
// left as is.
func buildNormalize(args Args) (TransformFunc, string, error) {
	return mapColumn(args, func(v []float64) []float64 {
		peak := 0.0
		for _, x := range v {
			peak = math.Max(peak, math.Abs(x))
		}
		out := make([]float64, len(v))
		for i, x := range v {
			if peak == 0 {
				out[i] = x
				continue
			}
			out[i] = x / peak
		}
		return out
	})
}

// buildDerivative writes d(column)/d(against) using central differences in
// the interior and one-sided differences at the ends.
func buildDerivative(args Args) (TransformFunc, string, error) {
	column, err := args.required("column")
	if err != nil {
		return nil, "", err
	}
	against, err := args.required("against")
	if err != nil {
		return nil, "", err
	}
	into, err := args.String("into", "d"+column)
	if err != nil {
		return nil, "", err
	}
	fn := PerRecord(func(rec Record) (*table.Table, error) {
		y, err := rec.Data.Floats(column)
		if err != nil {
			return nil, err
		}
		x, err := rec.Data.Floats(against)
		if err != nil {
			return nil, err
		}
		if len(y) < 2 {
			return nil, nil
		}
		out := rec.Data.Clone()
		if err := out.SetFloats(into, gradient(y, x)); err != nil {
			return nil, err
		}
		return out, nil
	})
	return fn, into, nil
}

func gradient(y, x []float64) []float64 {
	n := len(y)
	out := make([]float64, n)
	out[0] = (y[1] - y[0]) / (x[1] - x[0])
	out[n-1] = (y[n-1] - y[n-2]) / (x[n-1] - x[n-2])
	for i := 1; i < n-1; i++ {
		out[i] = (y[i+1] - y[i-1]) / (x[i+1] - x[i-1])
	}
	return out
}

// buildMagnitude writes sqrt(x^2 + y^2), e.g. R from lock-in X and Y.
func buildMagnitude(args Args) (TransformFunc, string, error) {
	xName, err := args.String("x", "X")
	if err != nil {
		return nil, "", err
	}
	yName, err := args.String("y", "Y")
	if err != nil {
		return nil, "", err
	}
	into, err := args.String("into", "R")
	if err != nil {
		return nil, "", err
	}
	fn := PerRecord(func(rec Record) (*table.Table, error) {
		x, err := rec.Data.Floats(xName)
		if err != nil {
			return nil, err
		}
		y, err := rec.Data.Floats(yName)
		if err != nil {
			return nil, err
		}
		r := make([]float64, len(x))
		for i := range x {
			r[i] = math.Hypot(x[i], y[i])
		}
		out := rec.Data.Clone()
		if err := out.SetFloats(into, r); err != nil {
			return nil, err
		}
		return out, nil
	})
	return fn, into, nil
}

// buildDropEmpty removes records without rows. It writes no field.
func buildDropEmpty(Args) (TransformFunc, string, error) {
	fn := PerRecord(func(rec Record) (*table.Table, error) {
		if rec.Data.Len() == 0 {
			return nil, nil
		}
		return rec.Data, nil
	})
	return fn, "", nil
}
