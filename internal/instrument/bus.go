// Package instrument drives bench instruments by exchanging SCPI commands
// over a Bus.
package instrument

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"net"
	"strings"
	"sync"
	"time"

	"github.com/animus-labs/labkit/internal/platform/env"
)

// Bus carries newline-terminated SCPI commands to one instrument.
type Bus interface {
	Write(ctx context.Context, cmd string) error
	Query(ctx context.Context, cmd string) (string, error)
	Close() error
}

const DefaultPort = "5025"

type Config struct {
	Timeout time.Duration
}

func ConfigFromEnv() (Config, error) {
	timeout, err := env.Duration("INSTRUMENT_TIMEOUT", 5*time.Second)
	if err != nil {
		return Config{}, err
	}
	cfg := Config{Timeout: timeout}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) Validate() error {
	if c.Timeout <= 0 {
		return errors.New("LABKIT_INSTRUMENT_TIMEOUT must be positive")
	}
	return nil
}

// SocketBus talks raw SCPI over TCP, the LAN interface most bench
// instruments expose on port 5025.
type SocketBus struct {
	mu      sync.Mutex
	conn    net.Conn
	reader  *bufio.Reader
	timeout time.Duration
}

// Dial connects to addr. A bare host gets DefaultPort.
func Dial(ctx context.Context, addr string, cfg Config) (*SocketBus, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	addr = strings.TrimSpace(addr)
	if addr == "" {
		return nil, errors.New("instrument address is required")
	}
	if _, _, err := net.SplitHostPort(addr); err != nil {
		addr = net.JoinHostPort(addr, DefaultPort)
	}
	d := net.Dialer{Timeout: cfg.Timeout}
	conn, err := d.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("dial instrument %s: %w", addr, err)
	}
	return NewSocketBus(conn, cfg.Timeout), nil
}

func NewSocketBus(conn net.Conn, timeout time.Duration) *SocketBus {
	return &SocketBus{conn: conn, reader: bufio.NewReader(conn), timeout: timeout}
}

func (b *SocketBus) deadline(ctx context.Context) time.Time {
	dl := time.Now().Add(b.timeout)
	if ctxDL, ok := ctx.Deadline(); ok && ctxDL.Before(dl) {
		return ctxDL
	}
	return dl
}

func (b *SocketBus) write(ctx context.Context, cmd string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := b.conn.SetDeadline(b.deadline(ctx)); err != nil {
		return err
	}
	if _, err := b.conn.Write([]byte(strings.TrimRight(cmd, "\r\n") + "\n")); err != nil {
		return fmt.Errorf("write %q: %w", cmd, err)
	}
	return nil
}

func (b *SocketBus) Write(ctx context.Context, cmd string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.write(ctx, cmd)
}

func (b *SocketBus) Query(ctx context.Context, cmd string) (string, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if err := b.write(ctx, cmd); err != nil {
		return "", err
	}
	line, err := b.reader.ReadString('\n')
	if err != nil {
		return "", fmt.Errorf("read reply to %q: %w", cmd, err)
	}
	return strings.TrimRight(line, "\r\n"), nil
}

func (b *SocketBus) Close() error {
	return b.conn.Close()
}

// FakeBus records writes and answers queries from a script. It stands in
// for hardware in dry runs and tests.
type FakeBus struct {
	mu      sync.Mutex
	Writes  []string
	Replies map[string][]string
	Closed  bool
}

func NewFakeBus() *FakeBus {
	return &FakeBus{Replies: map[string][]string{}}
}

// Reply queues answers for cmd. The last answer repeats once the queue is
// drained.
func (f *FakeBus) Reply(cmd string, answers ...string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Replies[cmd] = append(f.Replies[cmd], answers...)
}

func (f *FakeBus) Write(ctx context.Context, cmd string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Writes = append(f.Writes, cmd)
	return nil
}

func (f *FakeBus) Query(ctx context.Context, cmd string) (string, error) {
	if err := f.Write(ctx, cmd); err != nil {
		return "", err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	queue := f.Replies[cmd]
	if len(queue) == 0 {
		return "", fmt.Errorf("no scripted reply for %q", cmd)
	}
	answer := queue[0]
	if len(queue) > 1 {
		f.Replies[cmd] = queue[1:]
	}
	return answer, nil
}

func (f *FakeBus) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Closed = true
	return nil
}

// writeAll sends cmds in order, stopping at the first failure.
func writeAll(ctx context.Context, bus Bus, cmds ...string) error {
	for _, cmd := range cmds {
		if err := bus.Write(ctx, cmd); err != nil {
			return err
		}
	}
	return nil
}

func IDN(ctx context.Context, bus Bus) (string, error) {
	return bus.Query(ctx, "*IDN?")
}

func Reset(ctx context.Context, bus Bus) error {
	return bus.Write(ctx, "*RST")
}

// Initialize resets the instrument and clears its status registers.
func Initialize(ctx context.Context, bus Bus) error {
	return writeAll(ctx, bus, "*RST", "*CLS")
}

func onOff(on bool) string {
	if on {
		return "ON"
	}
	return "OFF"
}

func oneOf(field, value string, allowed ...string) error {
	for _, a := range allowed {
		if strings.EqualFold(value, a) {
			return nil
		}
	}
	return fmt.Errorf("%s %q not one of %s", field, value, strings.Join(allowed, ", "))
}
