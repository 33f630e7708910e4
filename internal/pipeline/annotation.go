package pipeline

import (
	"strings"
	"unicode"
)

// Annotation declares what a transform changes and how its output is viewed.
type Annotation struct {
	Modifies    string `yaml:"modifies,omitempty"`
	PlotAgainst string `yaml:"plot_against,omitempty"`
	SkipPlot    bool   `yaml:"skip_plot,omitempty"`
}

const (
	tagModifies    = "MODIFIES:"
	tagPlotAgainst = "PLOT_AGAINST:"
	tagSkipPlot    = "SKIP_PLOT"
)

// ParseAnnotation reads the legacy free-text form, where a transform's
// documentation carries MODIFIES:<field>, PLOT_AGAINST:<field> and SKIP_PLOT.
func ParseAnnotation(doc string) Annotation {
	return Annotation{
		Modifies:    tagValue(doc, tagModifies),
		PlotAgainst: tagValue(doc, tagPlotAgainst),
		SkipPlot:    strings.Contains(doc, tagSkipPlot),
	}
}

func tagValue(doc, tag string) string {
	_, rest, ok := strings.Cut(doc, tag)
	if !ok {
		return ""
	}
	rest = strings.TrimLeftFunc(rest, unicode.IsSpace)
	end := strings.IndexFunc(rest, func(r rune) bool {
		return unicode.IsSpace(r) || r == ',' || r == ';'
	})
	if end >= 0 {
		rest = rest[:end]
	}
	return rest
}
