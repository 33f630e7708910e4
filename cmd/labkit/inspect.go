package main

import (
	"fmt"
	"sort"
	"strings"

	"github.com/spf13/cobra"

	"github.com/animus-labs/labkit/internal/instrument"
	"github.com/animus-labs/labkit/internal/table"
	"github.com/animus-labs/labkit/internal/trial"
)

func newInspectCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "inspect FILE",
		Short: "Print a data file's metadata header and shape",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			data, meta, err := table.ReadFileWithMeta(args[0])
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			keys := make([]string, 0, len(meta))
			for k := range meta {
				keys = append(keys, k)
			}
			sort.Strings(keys)
			for _, k := range keys {
				fmt.Fprintf(out, "%s: %s\n", k, meta[k])
			}
			fmt.Fprintf(out, "columns: %s\nrows: %d\n", strings.Join(data.ColumnNames(), ","), data.Len())
			return nil
		},
	}
}

func newIndexCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "index DIR",
		Short: "Print the run index of a data directory",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			index, err := trial.LoadIndex(args[0])
			if err != nil {
				return err
			}
			return table.WriteCSV(cmd.OutOrStdout(), index)
		},
	}
}

func newIDNCommand(get func() *app) *cobra.Command {
	var addr string
	cmd := &cobra.Command{
		Use:   "idn",
		Short: "Query an instrument's identity string",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			bus, err := instrument.Open(cmd.Context(), addr, get().instrument)
			if err != nil {
				return err
			}
			defer bus.Close()
			idn, err := instrument.IDN(cmd.Context(), bus)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), idn)
			return nil
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "", "instrument address, gpib:PORT:ADDR or host[:port]")
	_ = cmd.MarkFlagRequired("addr")
	return cmd
}
