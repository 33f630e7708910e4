package instrument

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"sync"

	"github.com/gotmc/prologix"
	"github.com/gotmc/prologix/driver/vcp"
)

// GPIBScheme prefixes addresses of instruments reached through a Prologix
// GPIB-USB controller, as in gpib:/dev/ttyUSB0:8.
const GPIBScheme = "gpib:"

// Address is a parsed instrument address. SocketAddr is empty for GPIB targets.
type Address struct {
	GPIB       bool
	Serial     string
	GPIBAddr   int
	SocketAddr string
}

// ParseAddress reads gpib:<serial-port>:<primary-address> or host[:port].
func ParseAddress(raw string) (Address, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return Address{}, errors.New("instrument address is required")
	}
	if !strings.HasPrefix(strings.ToLower(raw), GPIBScheme) {
		return Address{SocketAddr: raw}, nil
	}
	rest := raw[len(GPIBScheme):]
	i := strings.LastIndex(rest, ":")
	if i <= 0 {
		return Address{}, fmt.Errorf("gpib address %q: want gpib:<port>:<address>", raw)
	}
	n, err := strconv.Atoi(rest[i+1:])
	if err != nil || n < 0 || n > 30 {
		return Address{}, fmt.Errorf("gpib address %q: primary address must be 0-30", raw)
	}
	return Address{GPIB: true, Serial: rest[:i], GPIBAddr: n}, nil
}

// Open connects to raw, choosing the GPIB controller or a TCP socket from the
// address form.
func Open(ctx context.Context, raw string, cfg Config) (Bus, error) {
	addr, err := ParseAddress(raw)
	if err != nil {
		return nil, err
	}
	if addr.GPIB {
		return DialGPIB(ctx, addr.Serial, addr.GPIBAddr)
	}
	return Dial(ctx, addr.SocketAddr, cfg)
}

// PrologixBus reaches one GPIB instrument through a Prologix controller on a
// serial port. The controller has no deadline support, so ctx is only
// checked between commands.
type PrologixBus struct {
	mu      sync.Mutex
	command func(string) error
	query   func(string) (string, error)
	close   func() error
}

// DialGPIB opens the controller's serial port and addresses the instrument
// at gpibAddr. The device is not cleared on connect.
func DialGPIB(ctx context.Context, serialPort string, gpibAddr int) (*PrologixBus, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	port, err := vcp.NewVCP(serialPort)
	if err != nil {
		return nil, fmt.Errorf("open serial port %s: %w", serialPort, err)
	}
	gpib, err := prologix.NewController(port, gpibAddr, false)
	if err != nil {
		_ = port.Close()
		return nil, fmt.Errorf("gpib controller on %s (address %d): %w", serialPort, gpibAddr, err)
	}
	return newPrologixBus(
		func(cmd string) error { return gpib.Command(cmd) },
		func(cmd string) (string, error) { return gpib.Query(cmd) },
		func() error {
			return errors.Join(gpib.FrontPanel(true), port.Flush(), port.Close())
		},
	), nil
}

func newPrologixBus(command func(string) error, query func(string) (string, error), closeFn func() error) *PrologixBus {
	return &PrologixBus{command: command, query: query, close: closeFn}
}

func (b *PrologixBus) Write(ctx context.Context, cmd string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	if err := b.command(strings.TrimRight(cmd, "\r\n")); err != nil {
		return fmt.Errorf("write %q: %w", cmd, err)
	}
	return nil
}

// Query sends cmd and returns the reply. A reply terminated by EOF rather
// than a newline still counts.
func (b *PrologixBus) Query(ctx context.Context, cmd string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	reply, err := b.query(strings.TrimRight(cmd, "\r\n"))
	if err != nil && !(errors.Is(err, io.EOF) && reply != "") {
		return "", fmt.Errorf("query %q: %w", cmd, err)
	}
	return strings.TrimRight(reply, "\r\n"), nil
}

// Close hands the front panel back to the operator and releases the port.
func (b *PrologixBus) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.close()
}
