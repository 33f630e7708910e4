package domain

import (
	"fmt"
	"reflect"
	"sort"
	"strings"
)

// ParameterSet is the input of a sweep: scanned candidates, fixed values and
// the declared evaluation order of the scanned names.
type ParameterSet struct {
	Scan  map[string]any
	Fixed Metadata
	Order []string
}

// Combination assigns one candidate to every scanned parameter.
type Combination struct {
	Names  []string
	Values []any
}

func (c Combination) Metadata() Metadata {
	out := make(Metadata, len(c.Names))
	for i, name := range c.Names {
		out[name] = c.Values[i]
	}
	return out
}

// String renders the combination in declared order, e.g. {a:1 b:10}.
func (c Combination) String() string {
	parts := make([]string, 0, len(c.Names))
	for i, name := range c.Names {
		parts = append(parts, name+":"+FormatValue(c.Values[i]))
	}
	return "{" + strings.Join(parts, " ") + "}"
}

// Candidates returns the candidate list for a scanned parameter. Strings and
// non-sequence values are rejected.
func (p ParameterSet) Candidates(name string) ([]any, error) {
	raw, ok := p.Scan[name]
	if !ok {
		return nil, fmt.Errorf("scan parameter %q not declared", name)
	}
	return AsCandidates(name, raw)
}

func AsCandidates(name string, raw any) ([]any, error) {
	if raw == nil {
		return nil, fmt.Errorf("scan parameter %q must be a list of values, got nil", name)
	}
	if list, ok := raw.([]any); ok {
		return list, nil
	}
	v := reflect.ValueOf(raw)
	switch v.Kind() {
	case reflect.Slice, reflect.Array:
		out := make([]any, v.Len())
		for i := range out {
			out[i] = v.Index(i).Interface()
		}
		return out, nil
	default:
		return nil, fmt.Errorf("scan parameter %q must be a list of values, got %T", name, raw)
	}
}

// ScanNames returns the scanned parameter names sorted.
func (p ParameterSet) ScanNames() []string {
	names := make([]string, 0, len(p.Scan))
	for name := range p.Scan {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
