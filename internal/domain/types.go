package domain

import (
	"fmt"
	"math"
	"sort"
	"strconv"
)

// Metadata is free-form scalar data attached to a trial or record.
type Metadata map[string]any

func (m Metadata) Clone() Metadata {
	if m == nil {
		return Metadata{}
	}
	copy := make(Metadata, len(m))
	for k, v := range m {
		copy[k] = v
	}
	return copy
}

// Merge returns a copy of m overlaid with other.
func (m Metadata) Merge(other Metadata) Metadata {
	out := m.Clone()
	for k, v := range other {
		out[k] = v
	}
	return out
}

// Keys returns the keys in sorted order.
func (m Metadata) Keys() []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Strings renders every value with FormatValue.
func (m Metadata) Strings() map[string]string {
	out := make(map[string]string, len(m))
	for k, v := range m {
		out[k] = FormatValue(v)
	}
	return out
}

// FormatValue renders a scalar the way it is written to data files.
func FormatValue(v any) string {
	switch x := v.(type) {
	case nil:
		return ""
	case string:
		return x
	case float64:
		return formatFloat(x, 64)
	case float32:
		return formatFloat(float64(x), 32)
	case int:
		return strconv.Itoa(x)
	case int64:
		return strconv.FormatInt(x, 10)
	case bool:
		return strconv.FormatBool(x)
	case fmt.Stringer:
		return x.String()
	default:
		return fmt.Sprint(v)
	}
}

func formatFloat(f float64, bits int) string {
	switch {
	case math.IsNaN(f):
		return "NaN"
	case math.IsInf(f, 1):
		return "Inf"
	case math.IsInf(f, -1):
		return "-Inf"
	}
	return strconv.FormatFloat(f, 'g', -1, bits)
}
