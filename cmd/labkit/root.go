package main

import (
	"github.com/spf13/cobra"
)

// mirrorsAnnotation marks commands that write to the object store and
// database mirrors.
const mirrorsAnnotation = "labkit/mirrors"

func withMirrors(cmd *cobra.Command) *cobra.Command {
	if cmd.Annotations == nil {
		cmd.Annotations = map[string]string{}
	}
	cmd.Annotations[mirrorsAnnotation] = "true"
	return cmd
}

func newRootCommand() *cobra.Command {
	var a *app
	root := &cobra.Command{
		Use:   "labkit",
		Short: "labkit runs parameter sweeps on bench instruments and analyzes the results",
		Long: `labkit drives lab instruments through parameter sweeps, records every
trial with its metadata, and runs analysis pipelines over recorded data.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			var err error
			a, err = loadApp(cmd.Context(), cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			if cmd.Annotations[mirrorsAnnotation] != "true" {
				return nil
			}
			if err := a.openMirrors(cmd.Context()); err != nil {
				_ = a.Close()
				a = nil
				return err
			}
			return nil
		},
		PersistentPostRunE: func(*cobra.Command, []string) error {
			if a == nil {
				return nil
			}
			return a.Close()
		},
	}
	get := func() *app { return a }
	root.AddCommand(
		withMirrors(newSweepCommand(get)),
		withMirrors(newAnalyzeCommand(get)),
		newInspectCommand(),
		newIndexCommand(),
		newIDNCommand(get),
	)
	return root
}
