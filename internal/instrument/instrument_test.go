package instrument

import (
	"bufio"
	"context"
	"net"
	"strings"
	"testing"
	"time"
)

func TestInitializeAndIDN(t *testing.T) {
	bus := NewFakeBus()
	bus.Reply("*IDN?", "Stanford_Research_Systems,SR830,s/n12345,ver1.07")
	if err := Initialize(context.Background(), bus); err != nil {
		t.Fatalf("Initialize: %v", err)
	}
	idn, err := IDN(context.Background(), bus)
	if err != nil {
		t.Fatalf("IDN: %v", err)
	}
	if !strings.Contains(idn, "SR830") {
		t.Fatalf("idn = %q", idn)
	}
	if strings.Join(bus.Writes, "|") != "*RST|*CLS|*IDN?" {
		t.Fatalf("writes = %v", bus.Writes)
	}
}

func TestScopeSetupManual(t *testing.T) {
	bus := NewFakeBus()
	cfg := DefaultScopeSetup()
	cfg.Autoscale = false
	cfg.Channel = 2
	if err := (Scope{Bus: bus}).Setup(context.Background(), cfg); err != nil {
		t.Fatalf("Setup: %v", err)
	}
	want := []string{"*RST", "CHANnel2:RANGe 16", "CHANnel2:OFFSet 1", ":TIMebase:RANGe 0.001", ":TIMebase:DELay 0.0001", ":ACQuire:TYPE NORMal"}
	if strings.Join(bus.Writes, "|") != strings.Join(want, "|") {
		t.Fatalf("writes = %v", bus.Writes)
	}
}

func TestScopeRejectsBadParametersBeforeWriting(t *testing.T) {
	bus := NewFakeBus()
	s := Scope{Bus: bus}
	if err := s.ConfigureChannel(context.Background(), Channel{Channel: 5, Coupling: "DC", Impedance: "ONEMeg"}); err == nil {
		t.Fatalf("expected channel error")
	}
	if err := s.ConfigureChannel(context.Background(), Channel{Channel: 1, Coupling: "GND", Impedance: "ONEMeg"}); err == nil {
		t.Fatalf("expected coupling error")
	}
	if err := s.ConfigureTimebase(context.Background(), Timebase{Mode: "FAST", Reference: "CENTer"}); err == nil {
		t.Fatalf("expected mode error")
	}
	if len(bus.Writes) != 0 {
		t.Fatalf("writes issued for invalid parameters: %v", bus.Writes)
	}
}

func TestScopeConfigureChannelAndTrigger(t *testing.T) {
	bus := NewFakeBus()
	s := Scope{Bus: bus}
	err := s.ConfigureChannel(context.Background(), Channel{
		Channel: 3, UseScale: true, Scale: 0.5, Offset: 0, Coupling: "dc", Probe: 10, Impedance: "FIFTy", DisplayOn: true,
	})
	if err != nil {
		t.Fatalf("ConfigureChannel: %v", err)
	}
	if bus.Writes[0] != "CHANnel3:SCALe 0.5" || bus.Writes[5] != "CHANnel3:DISPlay ON" {
		t.Fatalf("writes = %v", bus.Writes)
	}
	err = s.ConfigureTriggerEdge(context.Background(), EdgeTrigger{Source: "CHANnel1", Coupling: "DC", Slope: "POSitive", Level: 0.25, Reject: "OFF"})
	if err != nil {
		t.Fatalf("ConfigureTriggerEdge: %v", err)
	}
	if bus.Writes[len(bus.Writes)-1] != ":TRIGger:SLOPe POSitive" {
		t.Fatalf("writes = %v", bus.Writes)
	}
}

func TestScopeAcquireDecodesPreamble(t *testing.T) {
	bus := NewFakeBus()
	bus.Reply(":WAVeform:PREamble?", "+4,+0,+3,+1,+1.0E-03,-1.0E-03,+0,+1.0E-02,+0,+128")
	bus.Reply(":WAVeform:DATA?", "#800000029 1.0e-01,2.0e-01,-3.0e-01")
	data, err := (Scope{Bus: bus}).Acquire(context.Background(), DefaultAcquisition())
	if err != nil {
		t.Fatalf("Acquire: %v", err)
	}
	times, _ := data.Floats("time")
	volts, _ := data.Floats("voltage")
	if len(times) != 3 || times[0] != -1e-3 || times[2] != 1e-3 {
		t.Fatalf("times = %v", times)
	}
	if volts[2] != -0.3 {
		t.Fatalf("volts = %v", volts)
	}
	if !strings.Contains(strings.Join(bus.Writes, "|"), ":DIGitize CHANnel1") {
		t.Fatalf("no digitize in %v", bus.Writes)
	}
}

func TestParsePreambleRejectsShortReply(t *testing.T) {
	if _, err := ParsePreamble("1,2,3"); err == nil {
		t.Fatalf("expected error")
	}
}

func TestPulseGenerator(t *testing.T) {
	bus := NewFakeBus()
	p := PulseGenerator{Bus: bus}
	ctx := context.Background()
	if err := p.ConfigureImpedance(ctx, 1, 50, 1e6); err != nil {
		t.Fatalf("ConfigureImpedance: %v", err)
	}
	if err := p.ConfigureTrigger(ctx, PulseTrigger{Channel: 2, Source: "EXT", Mode: "EDGE", Slope: "NEG"}); err != nil {
		t.Fatalf("ConfigureTrigger: %v", err)
	}
	if err := p.ConfigurePulse(ctx, Pulse{Channel: 1, Period: 1e-3, Width: 1e-6, Amplitude: 2.5}); err != nil {
		t.Fatalf("ConfigurePulse: %v", err)
	}
	if err := p.Output(ctx, 1, false); err != nil {
		t.Fatalf("Output: %v", err)
	}
	want := []string{
		":OUTPut1:IMPedance:EXTernal 1e+06", ":OUTPut1:IMPedance 50",
		":ARM:SOURce2 EXT", ":ARM:SENSe2 EDGE", ":ARM:SLOPe NEG",
		":FUNCtion1 PULSe", ":PULSe:PERiod1 0.001", ":PULSe:WIDTh1 1e-06", ":VOLTage1 2.5", ":VOLTage1:OFFSet 0",
		":OUTPut1 OFF",
	}
	if strings.Join(bus.Writes, "|") != strings.Join(want, "|") {
		t.Fatalf("writes = %v", bus.Writes)
	}
	if err := p.ConfigureOutputAmplifier(ctx, 3, "HIV"); err == nil {
		t.Fatalf("expected channel error")
	}
	if err := p.ConfigurePulse(ctx, Pulse{Channel: 1, Period: 1e-6, Width: 1e-3}); err == nil {
		t.Fatalf("expected width error")
	}
}

func TestLockIn(t *testing.T) {
	bus := NewFakeBus()
	bus.Reply("SNAP? 1,2", "1.5e-06,-2.0e-07")
	l := LockIn{Bus: bus}
	ctx := context.Background()
	x, y, err := l.XY(ctx)
	if err != nil {
		t.Fatalf("XY: %v", err)
	}
	if x != 1.5e-6 || y != -2e-7 {
		t.Fatalf("x=%v y=%v", x, y)
	}
	if err := l.SetTimeConstant(ctx, "3s"); err != nil {
		t.Fatalf("SetTimeConstant: %v", err)
	}
	if err := l.SetSensitivity(ctx, "10uV/pA"); err != nil {
		t.Fatalf("SetSensitivity: %v", err)
	}
	if err := l.SetInternalAmplitude(ctx, MinAmplitude); err != nil {
		t.Fatalf("SetInternalAmplitude: %v", err)
	}
	if got := strings.Join(bus.Writes[1:], "|"); got != "OFLT 11|SENS 11|SLVL 0.004" {
		t.Fatalf("writes = %s", got)
	}
	if err := l.SetInternalAmplitude(ctx, 6); err == nil {
		t.Fatalf("expected amplitude range error")
	}
	if err := l.SetTimeConstant(ctx, "2s"); err == nil {
		t.Fatalf("expected unknown time constant error")
	}
}

func TestParseFrequency(t *testing.T) {
	cases := map[string]float64{"147hz": 147, "1khz": 1000, "2.5 kHz": 2500, "47": 47}
	for in, want := range cases {
		got, err := ParseFrequency(in)
		if err != nil || got != want {
			t.Fatalf("ParseFrequency(%q) = %v, %v", in, got, err)
		}
	}
	if _, err := ParseFrequency("fast"); err == nil {
		t.Fatalf("expected error")
	}
}

func TestSocketBusRoundTrip(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	defer ln.Close()

	got := make(chan string, 2)
	go func() {
		conn, err := ln.Accept()
		if err != nil {
			return
		}
		defer conn.Close()
		r := bufio.NewReader(conn)
		for i := 0; i < 2; i++ {
			line, err := r.ReadString('\n')
			if err != nil {
				return
			}
			got <- strings.TrimSpace(line)
			if strings.HasSuffix(strings.TrimSpace(line), "?") {
				_, _ = conn.Write([]byte("KEYSIGHT,DSO-X 3024A,MY1,07.50\n"))
			}
		}
	}()

	bus, err := Dial(context.Background(), ln.Addr().String(), Config{Timeout: 2 * time.Second})
	if err != nil {
		t.Fatalf("Dial: %v", err)
	}
	defer bus.Close()
	if err := bus.Write(context.Background(), "*CLS"); err != nil {
		t.Fatalf("Write: %v", err)
	}
	idn, err := IDN(context.Background(), bus)
	if err != nil {
		t.Fatalf("IDN: %v", err)
	}
	if idn != "KEYSIGHT,DSO-X 3024A,MY1,07.50" {
		t.Fatalf("idn = %q", idn)
	}
	if a, b := <-got, <-got; a != "*CLS" || b != "*IDN?" {
		t.Fatalf("server saw %q, %q", a, b)
	}
}

func TestConfigValidate(t *testing.T) {
	if err := (Config{}).Validate(); err == nil {
		t.Fatalf("expected error for zero timeout")
	}
	if _, err := Dial(context.Background(), "", Config{Timeout: time.Second}); err == nil {
		t.Fatalf("expected error for empty address")
	}
}
