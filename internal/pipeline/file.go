package pipeline

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

const FileSchemaV1 = "labkit.pipeline.v1"

// File is a pipeline definition on disk. Steps run in the listed order.
type File struct {
	Schema string     `yaml:"schema"`
	Steps  []FileStep `yaml:"steps"`
}

type FileStep struct {
	Name      string `yaml:"name"`
	Transform string `yaml:"transform"`
	Args      Args   `yaml:"args,omitempty"`
	// Doc is the legacy free-text annotation; explicit fields win over it.
	Doc         string `yaml:"doc,omitempty"`
	PlotAgainst string `yaml:"plot_against,omitempty"`
	SkipPlot    bool   `yaml:"skip_plot,omitempty"`
}

func ParseFile(input []byte) (File, error) {
	var f File
	if err := yaml.Unmarshal(input, &f); err != nil {
		return File{}, fmt.Errorf("decode pipeline file: %w", err)
	}
	if err := f.Validate(); err != nil {
		return File{}, err
	}
	return f, nil
}

func LoadFile(path string) (File, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return File{}, fmt.Errorf("read pipeline file: %w", err)
	}
	return ParseFile(data)
}

func (f File) Validate() error {
	if strings.TrimSpace(f.Schema) != FileSchemaV1 {
		return fmt.Errorf("schema must be %q", FileSchemaV1)
	}
	if len(f.Steps) == 0 {
		return errors.New("steps must be non-empty")
	}
	seen := make(map[string]struct{}, len(f.Steps))
	for i, s := range f.Steps {
		name := strings.TrimSpace(s.Name)
		if name == "" {
			return fmt.Errorf("steps[%d].name is required", i)
		}
		if _, ok := seen[name]; ok {
			return fmt.Errorf("steps[%d].name duplicate: %q", i, name)
		}
		seen[name] = struct{}{}
		if _, ok := Builtin(s.Transform); !ok {
			return fmt.Errorf("steps[%d].transform unsupported: %q (known: %s)", i, s.Transform, strings.Join(BuiltinNames(), ", "))
		}
	}
	return nil
}

// Transforms builds the runnable transform list.
func (f File) Transforms() ([]Transform, error) {
	out := make([]Transform, 0, len(f.Steps))
	for i, s := range f.Steps {
		build, _ := Builtin(s.Transform)
		fn, modifies, err := build(s.Args)
		if err != nil {
			return nil, fmt.Errorf("steps[%d] %s: %w", i, s.Name, err)
		}
		ann := ParseAnnotation(s.Doc)
		if modifies != "" {
			ann.Modifies = modifies
		}
		if s.PlotAgainst != "" {
			ann.PlotAgainst = s.PlotAgainst
		}
		if s.SkipPlot {
			ann.SkipPlot = true
		}
		out = append(out, Transform{Name: s.Name, Annotation: ann, Apply: fn})
	}
	return out, nil
}
