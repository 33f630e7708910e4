package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/animus-labs/labkit/internal/domain"
	"github.com/animus-labs/labkit/internal/instrument"
	"github.com/animus-labs/labkit/internal/measure"
	"github.com/animus-labs/labkit/internal/sweep"
	"github.com/animus-labs/labkit/internal/trial"
)

type sweepFlags struct {
	file   string
	dir    string
	plot   bool
	delay  time.Duration
	lockin string
	scope  string
	pulse  string
}

func newSweepCommand(get func() *app) *cobra.Command {
	var f sweepFlags
	cmd := &cobra.Command{
		Use:   "sweep",
		Short: "Run a parameter sweep described by a YAML file",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runSweep(cmd, get(), f)
		},
	}
	cmd.Flags().StringVarP(&f.file, "file", "f", "", "sweep definition (YAML)")
	cmd.Flags().StringVar(&f.dir, "dir", "", "directory for trial files (default: file's dir, then LABKIT_DATA_DIR)")
	cmd.Flags().BoolVar(&f.plot, "plot", false, "print per-trial column means as trials complete")
	cmd.Flags().DurationVar(&f.delay, "delay", 0, "pause between iterations (default: file's delay, then LABKIT_SWEEP_DELAY)")
	cmd.Flags().StringVar(&f.lockin, "lockin", "", "SR830 lock-in address, gpib:PORT:ADDR or host[:port]")
	cmd.Flags().StringVar(&f.scope, "scope", "", "DSOX3024A oscilloscope address, gpib:PORT:ADDR or host[:port]")
	cmd.Flags().StringVar(&f.pulse, "pulse", "", "81150A pulse generator address, gpib:PORT:ADDR or host[:port]")
	_ = cmd.MarkFlagRequired("file")
	return cmd
}

func runSweep(cmd *cobra.Command, a *app, f sweepFlags) error {
	ctx := cmd.Context()
	out := cmd.OutOrStdout()

	def, err := sweep.LoadFile(f.file)
	if err != nil {
		return err
	}
	dir := firstNonEmpty(f.dir, def.Dir, a.dataDir)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create data dir: %w", err)
	}

	delay := a.delay
	if strings.TrimSpace(def.Delay) != "" {
		if delay, err = def.PacingDelay(); err != nil {
			return err
		}
	}
	if cmd.Flags().Changed("delay") {
		delay = f.delay
	}

	inst, closeAll, err := connectInstruments(ctx, a.instrument, def.Measurement, f)
	if err != nil {
		return err
	}
	defer closeAll()

	m, err := measure.Lookup(def.Measurement, inst)
	if err != nil {
		return err
	}

	rec := &trial.Recorder{
		Dir:         dir,
		Prompt:      stdinPrompt(cmd.InOrStdin(), out),
		BinaryIndex: a.binaryIndex,
		Logger:      a.logger,
	}
	if a.archive != nil {
		rec.Mirrors = append(rec.Mirrors, a.archive)
	}
	if a.trials != nil {
		rec.Mirrors = append(rec.Mirrors, a.trials)
	}

	plot := f.plot || def.Plot
	plotter := trialPlotter(out)
	exp := &sweep.Experiment{
		Run:      m.Run,
		Recorder: rec,
		Hooks: sweep.Hooks{
			Check:     m.Check,
			Terminate: m.Terminate,
			Plot: func(_ context.Context, o trial.Outcome, combo domain.Combination) error {
				plotter(o, combo)
				return nil
			},
		},
		Delay:    delay,
		Progress: progressPrinter(out),
		Logger:   a.logger,
	}

	summary, err := exp.Sweep(ctx, sweep.Scan{Params: def.ParameterSet(), Trials: def.Trials, Plot: plot})
	if err != nil {
		warnf(cmd.ErrOrStderr(), "terminating: %v", err)
		return err
	}
	okColor.Fprintf(out, "done. sweep %s recorded %d trials in %s\n", summary.SweepID, len(summary.Outcomes), dir)
	return nil
}

func connectInstruments(ctx context.Context, cfg instrument.Config, measurement string, f sweepFlags) (measure.Instruments, func(), error) {
	var (
		inst  measure.Instruments
		buses []instrument.Bus
	)
	closeAll := func() {
		for _, b := range buses {
			_ = b.Close()
		}
	}
	dial := func(addr, what string, required bool) (instrument.Bus, error) {
		if strings.TrimSpace(addr) == "" {
			if required {
				return nil, fmt.Errorf("measurement %s needs a %s address", measurement, what)
			}
			return nil, nil
		}
		bus, err := instrument.Open(ctx, addr, cfg)
		if err != nil {
			return nil, err
		}
		buses = append(buses, bus)
		return bus, nil
	}

	needLockin, needScope := measure.Needs(measurement)
	bus, err := dial(f.lockin, "lock-in", needLockin)
	if err != nil {
		closeAll()
		return inst, nil, err
	}
	if bus != nil {
		inst.LockIn = &instrument.LockIn{Bus: bus}
	}
	if bus, err = dial(f.scope, "scope", needScope); err != nil {
		closeAll()
		return inst, nil, err
	}
	if bus != nil {
		inst.Scope = &instrument.Scope{Bus: bus}
	}
	if bus, err = dial(f.pulse, "pulse generator", false); err != nil {
		closeAll()
		return inst, nil, err
	}
	if bus != nil {
		inst.Pulse = &instrument.PulseGenerator{Bus: bus}
	}
	return inst, closeAll, nil
}

// stdinPrompt asks the operator for a file name when one cannot be derived.
func stdinPrompt(in io.Reader, out io.Writer) trial.NamePrompt {
	reader := bufio.NewReader(in)
	return func(base string, cause error) (string, error) {
		warnf(out, "there was an error generating a save name for %q: %v", base, cause)
		fmt.Fprint(out, "please enter a unique name: ")
		line, err := reader.ReadString('\n')
		if err != nil && !errors.Is(err, io.EOF) {
			return "", err
		}
		return strings.TrimSpace(line), nil
	}
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return "."
}
