package main

import (
	"fmt"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/animus-labs/labkit/internal/pipeline"
)

type analyzeFlags struct {
	file    string
	data    string
	dest    string
	saveAll bool
	skip    []string
}

func newAnalyzeCommand(get func() *app) *cobra.Command {
	var f analyzeFlags
	cmd := &cobra.Command{
		Use:   "analyze",
		Short: "Run an analysis pipeline over a directory of trial files",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runAnalyze(cmd, get(), f)
		},
	}
	cmd.Flags().StringVarP(&f.file, "file", "f", "", "pipeline definition (YAML)")
	cmd.Flags().StringVar(&f.data, "data", "", "directory of trial files (default: LABKIT_DATA_DIR)")
	cmd.Flags().StringVar(&f.dest, "dest", "", "where data_saver directories go (default: --data)")
	cmd.Flags().BoolVar(&f.saveAll, "save-all", false, "persist every intermediate snapshot")
	cmd.Flags().StringArrayVar(&f.skip, "skip", nil, "transform to skip (repeatable)")
	_ = cmd.MarkFlagRequired("file")
	return cmd
}

func runAnalyze(cmd *cobra.Command, a *app, f analyzeFlags) error {
	out := cmd.OutOrStdout()
	def, err := pipeline.LoadFile(f.file)
	if err != nil {
		return err
	}
	transforms, err := def.Transforms()
	if err != nil {
		return err
	}
	dataDir := firstNonEmpty(f.data, a.dataDir)
	input, err := pipeline.LoadDir(dataDir)
	if err != nil {
		return err
	}
	if input.Empty() {
		return fmt.Errorf("no trial files in %s", dataDir)
	}

	runner := &pipeline.Runner{Transforms: transforms, Logger: a.logger}
	if a.lineage != nil {
		runner.Observers = append(runner.Observers, a.lineage)
	}
	opts := pipeline.Options{
		RunID:   uuid.NewString(),
		Skip:    f.skip,
		SaveAll: f.saveAll,
		Dest:    firstNonEmpty(f.dest, dataDir),
	}
	if a.archive != nil {
		opts.Mirror = a.archive
	}

	res, err := runner.Run(cmd.Context(), input, opts)
	if err != nil {
		return err
	}
	for _, step := range res.Steps {
		line := fmt.Sprintf("%-8s %-20s %-8s", step.Snapshot, step.Name, step.Status)
		if step.Modifies != "" {
			line += " modifies=" + step.Modifies
		}
		if step.PlotAgainst != "" {
			line += " plot_against=" + step.PlotAgainst
		}
		if step.Status == pipeline.StepApplied {
			okColor.Fprintln(out, line)
		} else {
			fmt.Fprintln(out, line)
		}
	}
	for _, rec := range res.Final.Records {
		fmt.Fprintf(out, "%s: %s\n", rec.Key, columnMeans(rec.Data))
	}
	if res.SaveDir != "" {
		fmt.Fprintf(out, "snapshots saved to %s\n", res.SaveDir)
	}
	return nil
}
