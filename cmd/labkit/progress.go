package main

import (
	"fmt"
	"io"
	"strings"

	"github.com/fatih/color"

	"github.com/animus-labs/labkit/internal/domain"
	"github.com/animus-labs/labkit/internal/sweep"
	"github.com/animus-labs/labkit/internal/table"
	"github.com/animus-labs/labkit/internal/trial"
)

var (
	scanColor  = color.New(color.FgCyan, color.Bold)
	comboColor = color.New(color.FgYellow)
	okColor    = color.New(color.FgGreen)
	warnColor  = color.New(color.FgRed, color.Bold)
)

func progressPrinter(w io.Writer) func(sweep.Progress) {
	return func(p sweep.Progress) {
		scanColor.Fprintf(w, "Scan %d of %d.", p.Iteration, p.Total)
		fmt.Fprint(w, " ")
		comboColor.Fprintln(w, p.Combination.String())
	}
}

// columnMeans renders the mean of every numeric column, e.g. "X=1.5 Y=-2".
// Columns with non-numeric cells are left out.
func columnMeans(t *table.Table) string {
	var parts []string
	for _, col := range t.ColumnNames() {
		values, err := t.Floats(col)
		if err != nil || len(values) == 0 {
			continue
		}
		sum := 0.0
		for _, v := range values {
			sum += v
		}
		parts = append(parts, col+"="+domain.FormatValue(sum/float64(len(values))))
	}
	return strings.Join(parts, " ")
}

func trialPlotter(w io.Writer) func(trial.Outcome, domain.Combination) {
	return func(o trial.Outcome, combo domain.Combination) {
		okColor.Fprintf(w, "  %s", o.Record.Filename)
		fmt.Fprintf(w, " %s %s\n", combo, columnMeans(o.Result.Data))
	}
}

func warnf(w io.Writer, format string, args ...any) {
	warnColor.Fprintf(w, format+"\n", args...)
}
