// Package env reads labkit settings from the process environment.
//
// Every key is looked up under the LABKIT_ prefix, so callers pass the
// short name ("DATA_DIR") and the variable read is LABKIT_DATA_DIR. Blank
// values count as unset.
package env

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

const Prefix = "LABKIT_"

// Key returns the full variable name for a short key.
func Key(name string) string {
	return Prefix + strings.ToUpper(strings.TrimSpace(name))
}

func lookup(name string) (string, bool) {
	v, ok := os.LookupEnv(Key(name))
	if !ok {
		return "", false
	}
	v = strings.TrimSpace(v)
	if v == "" {
		return "", false
	}
	return v, true
}

func String(name string, def string) string {
	if v, ok := lookup(name); ok {
		return v
	}
	return def
}

func Duration(name string, def time.Duration) (time.Duration, error) {
	v, ok := lookup(name)
	if !ok {
		return def, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("parse %s: %w", Key(name), err)
	}
	return d, nil
}

func Bool(name string, def bool) (bool, error) {
	v, ok := lookup(name)
	if !ok {
		return def, nil
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return false, fmt.Errorf("parse %s: %w", Key(name), err)
	}
	return b, nil
}

func Int(name string, def int) (int, error) {
	v, ok := lookup(name)
	if !ok {
		return def, nil
	}
	i, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("parse %s: %w", Key(name), err)
	}
	return i, nil
}

func Float(name string, def float64) (float64, error) {
	v, ok := lookup(name)
	if !ok {
		return def, nil
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return 0, fmt.Errorf("parse %s: %w", Key(name), err)
	}
	return f, nil
}
