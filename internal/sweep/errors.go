package sweep

import "strings"

// ConfigError aggregates problems found before a sweep touches hardware.
type ConfigError struct {
	Issues []string
}

func (e *ConfigError) Error() string {
	if len(e.Issues) == 0 {
		return "sweep configuration invalid"
	}
	return "sweep configuration invalid: " + strings.Join(e.Issues, "; ")
}

func (e *ConfigError) Add(issue string) {
	if strings.TrimSpace(issue) == "" {
		return
	}
	e.Issues = append(e.Issues, issue)
}

func (e *ConfigError) OrNil() error {
	if e == nil || len(e.Issues) == 0 {
		return nil
	}
	return e
}
