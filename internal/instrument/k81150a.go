package instrument

import (
	"context"
	"fmt"
)

// PulseGenerator drives a Keysight 81150A pulse/arbitrary waveform
// generator.
type PulseGenerator struct {
	Bus Bus
}

func checkOutput(ch int) error {
	if ch != 1 && ch != 2 {
		return fmt.Errorf("pulse generator channel %d out of range 1-2", ch)
	}
	return nil
}

func (p PulseGenerator) ConfigureImpedance(ctx context.Context, ch int, output, load float64) error {
	if err := checkOutput(ch); err != nil {
		return err
	}
	return writeAll(ctx, p.Bus,
		fmt.Sprintf(":OUTPut%d:IMPedance:EXTernal %s", ch, num(load)),
		fmt.Sprintf(":OUTPut%d:IMPedance %s", ch, num(output)),
	)
}

// ConfigureOutputAmplifier selects HIV (maximum amplitude) or HIB (maximum
// bandwidth).
func (p PulseGenerator) ConfigureOutputAmplifier(ctx context.Context, ch int, kind string) error {
	if err := checkOutput(ch); err != nil {
		return err
	}
	if err := oneOf("amplifier", kind, "HIV", "HIB"); err != nil {
		return err
	}
	return p.Bus.Write(ctx, fmt.Sprintf(":OUTPut%d:ROUTe %s", ch, kind))
}

type PulseTrigger struct {
	Channel int
	Source  string
	Mode    string
	Slope   string
}

func (p PulseGenerator) ConfigureTrigger(ctx context.Context, t PulseTrigger) error {
	if err := checkOutput(t.Channel); err != nil {
		return err
	}
	if err := oneOf("trigger source", t.Source, "IMM", "INT2", "EXT", "MAN"); err != nil {
		return err
	}
	if err := oneOf("trigger mode", t.Mode, "EDGE", "LEV"); err != nil {
		return err
	}
	if err := oneOf("trigger slope", t.Slope, "POS", "NEG", "EIT"); err != nil {
		return err
	}
	return writeAll(ctx, p.Bus,
		fmt.Sprintf(":ARM:SOURce%d %s", t.Channel, t.Source),
		fmt.Sprintf(":ARM:SENSe%d %s", t.Channel, t.Mode),
		fmt.Sprintf(":ARM:SLOPe %s", t.Slope),
	)
}

type Pulse struct {
	Channel   int
	Period    float64
	Width     float64
	Amplitude float64
	Offset    float64
}

func (p PulseGenerator) ConfigurePulse(ctx context.Context, pulse Pulse) error {
	if err := checkOutput(pulse.Channel); err != nil {
		return err
	}
	if pulse.Period <= 0 || pulse.Width <= 0 || pulse.Width >= pulse.Period {
		return fmt.Errorf("pulse width %s must be positive and shorter than period %s", num(pulse.Width), num(pulse.Period))
	}
	ch := pulse.Channel
	return writeAll(ctx, p.Bus,
		fmt.Sprintf(":FUNCtion%d PULSe", ch),
		fmt.Sprintf(":PULSe:PERiod%d %s", ch, num(pulse.Period)),
		fmt.Sprintf(":PULSe:WIDTh%d %s", ch, num(pulse.Width)),
		fmt.Sprintf(":VOLTage%d %s", ch, num(pulse.Amplitude)),
		fmt.Sprintf(":VOLTage%d:OFFSet %s", ch, num(pulse.Offset)),
	)
}

func (p PulseGenerator) Output(ctx context.Context, ch int, on bool) error {
	if err := checkOutput(ch); err != nil {
		return err
	}
	return p.Bus.Write(ctx, fmt.Sprintf(":OUTPut%d %s", ch, onOff(on)))
}
