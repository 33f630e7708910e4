package instrument

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/animus-labs/labkit/internal/table"
)

// Scope drives a Keysight DSOX3024A oscilloscope.
type Scope struct {
	Bus Bus
}

func checkChannel(ch int) error {
	if ch < 1 || ch > 4 {
		return fmt.Errorf("scope channel %d out of range 1-4", ch)
	}
	return nil
}

type ScopeSetup struct {
	Autoscale     bool
	Channel       int
	VoltageRange  float64
	VoltageOffset float64
	Delay         float64
	TimeRange     float64
}

func DefaultScopeSetup() ScopeSetup {
	return ScopeSetup{
		Autoscale:     true,
		Channel:       1,
		VoltageRange:  16,
		VoltageOffset: 1,
		Delay:         100e-6,
		TimeRange:     1e-3,
	}
}

// Setup resets the scope, then autoscales or applies the manual ranges.
func (s Scope) Setup(ctx context.Context, cfg ScopeSetup) error {
	if !cfg.Autoscale {
		if err := checkChannel(cfg.Channel); err != nil {
			return err
		}
	}
	if err := Reset(ctx, s.Bus); err != nil {
		return err
	}
	if cfg.Autoscale {
		if err := s.Bus.Write(ctx, ":AUToscale"); err != nil {
			return err
		}
	} else {
		ch := cfg.Channel
		if err := writeAll(ctx, s.Bus,
			fmt.Sprintf("CHANnel%d:RANGe %s", ch, num(cfg.VoltageRange)),
			fmt.Sprintf("CHANnel%d:OFFSet %s", ch, num(cfg.VoltageOffset)),
			fmt.Sprintf(":TIMebase:RANGe %s", num(cfg.TimeRange)),
			fmt.Sprintf(":TIMebase:DELay %s", num(cfg.Delay)),
		); err != nil {
			return err
		}
	}
	return s.Bus.Write(ctx, ":ACQuire:TYPE NORMal")
}

type Timebase struct {
	Mode      string
	Position  float64
	Range     float64
	Reference string
	Scale     float64
	Vernier   bool
	RefClock  bool
}

func (s Scope) ConfigureTimebase(ctx context.Context, tb Timebase) error {
	if err := oneOf("timebase mode", tb.Mode, "MAIN", "WINDow", "XY", "ROLL"); err != nil {
		return err
	}
	if err := oneOf("timebase reference", tb.Reference, "LEFT", "CENTer", "RIGHt"); err != nil {
		return err
	}
	return writeAll(ctx, s.Bus,
		"TIMebase:MODE "+tb.Mode,
		"TIMebase:POSition "+num(tb.Position),
		"TIMebase:RANGe "+num(tb.Range),
		"TIMebase:REFerence "+tb.Reference,
		"TIMebase:SCALe "+num(tb.Scale),
		"TIMebase:VERNier "+onOff(tb.Vernier),
		"TIMebase:REFClock "+onOff(tb.RefClock),
	)
}

type Channel struct {
	Channel int
	// UseScale selects Scale (V/div) over Range (full screen volts).
	UseScale  bool
	Scale     float64
	Range     float64
	Offset    float64
	Coupling  string
	Probe     float64
	Impedance string
	DisplayOn bool
}

func (s Scope) ConfigureChannel(ctx context.Context, c Channel) error {
	if err := checkChannel(c.Channel); err != nil {
		return err
	}
	if err := oneOf("coupling", c.Coupling, "AC", "DC"); err != nil {
		return err
	}
	if err := oneOf("impedance", c.Impedance, "ONEMeg", "FIFTy"); err != nil {
		return err
	}
	prefix := fmt.Sprintf("CHANnel%d:", c.Channel)
	vertical := prefix + "RANGe " + num(c.Range)
	if c.UseScale {
		vertical = prefix + "SCALe " + num(c.Scale)
	}
	return writeAll(ctx, s.Bus,
		vertical,
		prefix+"OFFSet "+num(c.Offset),
		prefix+"COUPling "+c.Coupling,
		prefix+"PROBe "+num(c.Probe),
		prefix+"IMPedance "+c.Impedance,
		prefix+"DISPlay "+onOff(c.DisplayOn),
	)
}

type EdgeTrigger struct {
	Source   string
	Coupling string
	Slope    string
	Level    float64
	Reject   string
}

func (s Scope) ConfigureTriggerEdge(ctx context.Context, t EdgeTrigger) error {
	if err := oneOf("trigger coupling", t.Coupling, "AC", "DC", "LFReject"); err != nil {
		return err
	}
	if err := oneOf("trigger slope", t.Slope, "POSitive", "NEGative", "EITHer", "ALTernate"); err != nil {
		return err
	}
	if err := oneOf("trigger reject", t.Reject, "OFF", "LFReject", "HFReject"); err != nil {
		return err
	}
	if strings.TrimSpace(t.Source) == "" {
		return fmt.Errorf("trigger source is required")
	}
	return writeAll(ctx, s.Bus,
		":TRIGger:SOURce "+t.Source,
		":TRIGger:COUPling "+t.Coupling,
		":TRIGger:LEVel "+num(t.Level),
		":TRIGger:REJect "+t.Reject,
		":TRIGger:SLOPe "+t.Slope,
	)
}

type Acquisition struct {
	Channel  int
	Type     string
	Complete int
	Count    int
	Points   int
}

func DefaultAcquisition() Acquisition {
	return Acquisition{Channel: 1, Type: "NORMal", Complete: 100, Count: 10, Points: 500}
}

// Preamble is the scaling information returned by :WAVeform:PREamble?.
type Preamble struct {
	Points     int
	XIncrement float64
	XOrigin    float64
	XReference float64
}

func ParsePreamble(raw string) (Preamble, error) {
	fields := strings.Split(strings.TrimSpace(raw), ",")
	if len(fields) != 10 {
		return Preamble{}, fmt.Errorf("preamble has %d fields, want 10", len(fields))
	}
	vals := make([]float64, len(fields))
	for i, f := range fields {
		v, err := strconv.ParseFloat(strings.TrimSpace(f), 64)
		if err != nil {
			return Preamble{}, fmt.Errorf("preamble field %d: %w", i, err)
		}
		vals[i] = v
	}
	return Preamble{Points: int(vals[2]), XIncrement: vals[4], XOrigin: vals[5], XReference: vals[6]}, nil
}

// ParseASCIIWaveform decodes :WAVeform:DATA? in ASCii format, with or
// without the leading IEEE 488.2 block header.
func ParseASCIIWaveform(raw string) ([]float64, error) {
	raw = strings.TrimSpace(raw)
	if strings.HasPrefix(raw, "#") && len(raw) >= 2 {
		n, err := strconv.Atoi(raw[1:2])
		if err != nil || len(raw) < 2+n {
			return nil, fmt.Errorf("malformed block header in waveform data")
		}
		raw = raw[2+n:]
	}
	raw = strings.TrimRight(raw, ",")
	if raw == "" {
		return nil, nil
	}
	parts := strings.Split(raw, ",")
	out := make([]float64, len(parts))
	for i, p := range parts {
		v, err := strconv.ParseFloat(strings.TrimSpace(p), 64)
		if err != nil {
			return nil, fmt.Errorf("waveform point %d: %w", i, err)
		}
		out[i] = v
	}
	return out, nil
}

// Acquire digitizes one channel and returns a time,voltage table.
func (s Scope) Acquire(ctx context.Context, a Acquisition) (*table.Table, error) {
	if err := checkChannel(a.Channel); err != nil {
		return nil, err
	}
	if err := oneOf("acquisition type", a.Type, "NORMal", "AVERage", "PEAK", "HRESolution"); err != nil {
		return nil, err
	}
	if err := writeAll(ctx, s.Bus,
		":ACQuire:TYPE "+a.Type,
		":ACQuire:COMPlete "+strconv.Itoa(a.Complete),
		":ACQuire:COUNt "+strconv.Itoa(a.Count),
		fmt.Sprintf(":DIGitize CHANnel%d", a.Channel),
		fmt.Sprintf(":WAVeform:SOURce CHANnel%d", a.Channel),
		":WAVeform:FORMat ASCii",
		":WAVeform:POINts "+strconv.Itoa(a.Points),
	); err != nil {
		return nil, err
	}
	rawPre, err := s.Bus.Query(ctx, ":WAVeform:PREamble?")
	if err != nil {
		return nil, err
	}
	pre, err := ParsePreamble(rawPre)
	if err != nil {
		return nil, err
	}
	rawData, err := s.Bus.Query(ctx, ":WAVeform:DATA?")
	if err != nil {
		return nil, err
	}
	volts, err := ParseASCIIWaveform(rawData)
	if err != nil {
		return nil, err
	}
	times := make([]float64, len(volts))
	for i := range volts {
		times[i] = (float64(i)-pre.XReference)*pre.XIncrement + pre.XOrigin
	}
	return table.FromFloats([]string{"time", "voltage"}, times, volts)
}

func num(v float64) string {
	return strconv.FormatFloat(v, 'g', -1, 64)
}
