package sweep

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/animus-labs/labkit/internal/domain"
)

const FileSchemaV1 = "labkit.sweep.v1"

// File is a sweep definition on disk.
type File struct {
	Schema      string         `yaml:"schema"`
	Measurement string         `yaml:"measurement"`
	Dir         string         `yaml:"dir,omitempty"`
	Trials      int            `yaml:"trials,omitempty"`
	Order       []string       `yaml:"order,omitempty"`
	Scan        map[string]any `yaml:"scan,omitempty"`
	Fixed       map[string]any `yaml:"fixed,omitempty"`
	Plot        bool           `yaml:"plot,omitempty"`
	Delay       string         `yaml:"delay,omitempty"`
}

func ParseFile(input []byte) (File, error) {
	var f File
	if err := yaml.Unmarshal(input, &f); err != nil {
		return File{}, fmt.Errorf("decode sweep file: %w", err)
	}
	if f.Trials == 0 {
		f.Trials = 1
	}
	if err := f.Validate(); err != nil {
		return File{}, err
	}
	return f, nil
}

func LoadFile(path string) (File, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return File{}, fmt.Errorf("read sweep file: %w", err)
	}
	return ParseFile(data)
}

func (f File) Validate() error {
	if strings.TrimSpace(f.Schema) != FileSchemaV1 {
		return fmt.Errorf("schema must be %q", FileSchemaV1)
	}
	if strings.TrimSpace(f.Measurement) == "" {
		return errors.New("measurement is required")
	}
	if f.Trials < 1 {
		return fmt.Errorf("trials must be >= 1, got %d", f.Trials)
	}
	if _, err := f.PacingDelay(); err != nil {
		return err
	}
	_, err := BuildPlan(f.ParameterSet(), f.Trials)
	return err
}

func (f File) ParameterSet() domain.ParameterSet {
	return domain.ParameterSet{
		Scan:  f.Scan,
		Fixed: domain.Metadata(f.Fixed).Clone(),
		Order: f.Order,
	}
}

// PacingDelay parses Delay, defaulting to DefaultDelay when unset.
func (f File) PacingDelay() (time.Duration, error) {
	raw := strings.TrimSpace(f.Delay)
	if raw == "" {
		return DefaultDelay, nil
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		return 0, fmt.Errorf("delay: %w", err)
	}
	if d < 0 {
		return 0, fmt.Errorf("delay must be >= 0, got %s", d)
	}
	return d, nil
}
