// Package bridge talks to the motor and sensor brick over a serial line.
//
// The brick speaks a newline-terminated ASCII protocol with one request in
// flight at a time. Every request starts with a sequence number that the brick
// echoes in front of its single reply line: a value, "OK", or "ERR <message>".
// Replies carrying another number are late answers to a timed-out request and
// are dropped.
//
//	<id> PING                               -> <id> PONG
//	<id> MOTOR <port> <power>               -> <id> OK
//	<id> DRIVE <left> <right> <lpow> <rpow> -> <id> OK
//	<id> STOP <0|1> <port>...               -> <id> OK     (1 = brake, 0 = coast)
//	<id> TOUCH <port>                       -> <id> 0|1
//	<id> PROX <port>                        -> <id> float
//	<id> REMOTE <port> <channel>            -> <id> int
//	<id> SOUND <volume> <name>              -> <id> OK     (starts playback)
//	<id> PLAYING                            -> <id> 0|1
//	<id> BUTTON <ENTER|ESCAPE>              -> <id> 0|1
//	<id> TEXT <x> <y> <color> <font> <0|1> <text> -> <id> OK
//
// Timed runs and waiting for a sound are done on the host, so no request
// holds the line for longer than one reply.
package bridge

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"

	"go.bug.st/serial"

	"github.com/gwillem/robodozer/internal/log"
	"github.com/gwillem/robodozer/pkg/robot"
)

// ErrTimeout is returned when the brick does not answer in time.
var ErrTimeout = errors.New("bridge: reply timeout")

// DefaultTimeout is the reply timeout used when none is configured.
const DefaultTimeout = 500 * time.Millisecond

// soundTimeout bounds how long a blocking sound may take.
const soundTimeout = 15 * time.Second

// soundPoll is the pause between two PLAYING requests.
const soundPoll = 20 * time.Millisecond

// Bridge is a connection to the brick.
type Bridge struct {
	mu      sync.Mutex
	rw      io.ReadWriteCloser
	pending []byte
	seq     uint64
	timeout time.Duration
	logger  *slog.Logger
}

// Option configures a Bridge.
type Option func(*Bridge)

// WithTimeout sets the reply timeout.
func WithTimeout(d time.Duration) Option {
	return func(b *Bridge) { b.timeout = d }
}

// WithLogger sets the logger used by the device adapters.
func WithLogger(l *slog.Logger) Option {
	return func(b *Bridge) { b.logger = l }
}

// New wraps an open connection to the brick.
func New(rw io.ReadWriteCloser, opts ...Option) *Bridge {
	b := &Bridge{
		rw:      rw,
		timeout: DefaultTimeout,
	}
	for _, opt := range opts {
		opt(b)
	}
	if b.logger == nil {
		b.logger = log.L()
	}
	return b
}

// Open opens the serial port from cfg and checks that a brick answers.
func Open(cfg robot.BridgeConfig) (*Bridge, error) {
	port, err := serial.Open(cfg.Port, &serial.Mode{
		BaudRate: cfg.BaudRate,
		DataBits: 8,
		Parity:   serial.NoParity,
		StopBits: serial.OneStopBit,
	})
	if err != nil {
		return nil, fmt.Errorf("open serial port: %w", err)
	}

	timeout := cfg.ReadTimeout.Duration()
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	// Short reads so the reply deadline is checked often.
	if err := port.SetReadTimeout(20 * time.Millisecond); err != nil {
		port.Close()
		return nil, fmt.Errorf("set read timeout: %w", err)
	}

	b := New(port, WithTimeout(timeout), WithLogger(log.With("bridge", cfg.Port)))
	if err := b.Ping(); err != nil {
		port.Close()
		return nil, fmt.Errorf("ping brick on %s: %w", cfg.Port, err)
	}
	return b, nil
}

// Probe reports whether a brick answers on port.
func Probe(port string, baudRate int) bool {
	b, err := Open(robot.BridgeConfig{Port: port, BaudRate: baudRate})
	if err != nil {
		return false
	}
	b.Close()
	return true
}

// Close closes the connection.
func (b *Bridge) Close() error {
	return b.rw.Close()
}

// Do sends one request and returns the reply line.
func (b *Bridge) Do(args ...any) (string, error) {
	return b.do(b.timeout, args...)
}

func (b *Bridge) do(timeout time.Duration, args ...any) (string, error) {
	parts := make([]string, len(args))
	for i, a := range args {
		parts[i] = fmt.Sprint(a)
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	b.seq++
	id := b.seq
	req := strconv.FormatUint(id, 10) + " " + strings.Join(parts, " ")
	if _, err := io.WriteString(b.rw, req+"\n"); err != nil {
		return "", fmt.Errorf("write %q: %w", parts[0], err)
	}

	deadline := time.Now().Add(timeout)
	for {
		line, err := b.readLine(deadline)
		if err != nil {
			b.resync()
			return "", fmt.Errorf("read %q reply: %w", parts[0], err)
		}
		reply, ok := matchReply(line, id)
		if !ok {
			b.logger.Debug("dropping stale reply", "line", line, "want", id)
			continue
		}
		if msg, ok := strings.CutPrefix(reply, "ERR"); ok {
			return "", fmt.Errorf("%s: %s", parts[0], strings.TrimSpace(msg))
		}
		return reply, nil
	}
}

// matchReply strips the sequence number from line if it is id.
func matchReply(line string, id uint64) (string, bool) {
	head, reply, _ := strings.Cut(line, " ")
	got, err := strconv.ParseUint(head, 10, 64)
	if err != nil || got != id {
		return "", false
	}
	return strings.TrimSpace(reply), true
}

type readDeadliner interface {
	SetReadDeadline(t time.Time) error
}

// readLine reads up to the next newline. Serial ports return empty reads on
// their short read timeout, so the deadline is checked between reads.
func (b *Bridge) readLine(deadline time.Time) (string, error) {
	if d, ok := b.rw.(readDeadliner); ok {
		d.SetReadDeadline(deadline)
		defer d.SetReadDeadline(time.Time{})
	}

	buf := make([]byte, 64)
	for {
		if i := bytes.IndexByte(b.pending, '\n'); i >= 0 {
			line := string(b.pending[:i])
			b.pending = b.pending[i+1:]
			return strings.TrimSpace(line), nil
		}
		if time.Now().After(deadline) {
			return "", ErrTimeout
		}
		n, err := b.rw.Read(buf)
		b.pending = append(b.pending, buf[:n]...)
		if err != nil {
			if errors.Is(err, os.ErrDeadlineExceeded) {
				return "", ErrTimeout
			}
			return "", err
		}
	}
}

// resync drops any partial reply so the next request starts clean.
func (b *Bridge) resync() {
	b.pending = b.pending[:0]
	if r, ok := b.rw.(interface{ ResetInputBuffer() error }); ok {
		r.ResetInputBuffer()
	}
}

// Ping checks that the brick answers.
func (b *Bridge) Ping() error {
	reply, err := b.Do("PING")
	if err != nil {
		return err
	}
	if reply != "PONG" {
		return fmt.Errorf("unexpected ping reply %q", reply)
	}
	return nil
}
