package transport

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"sync/atomic"
	"time"

	goserial "github.com/jacobsa/go-serial/serial"

	"github.com/automatedchemistry/flowchem/logger"
	"github.com/automatedchemistry/flowchem/protocol"
)

// interCharacterTimeoutMs bounds the blocking time of a single port read so
// the overall exchange deadline stays responsive.
const interCharacterTimeoutMs = 100

// SerialTransport drives a device (or daisy chain) behind a serial port.
// Hamilton chains run 9600 8N1 by default; the ML600 manual also documents
// 7E1, configurable through WithDataBits/WithParity.
type SerialTransport struct {
	portName string
	cfg      *Config
	logger   logger.Logger

	mu         sync.Mutex
	port       io.ReadWriteCloser
	generation atomic.Uint64
}

var _ Transport = (*SerialTransport)(nil)

// NewSerial creates a transport for the given serial port name
// (e.g. "/dev/ttyUSB0" or "COM3"). The port is not opened until Open.
func NewSerial(portName string, opts ...Option) (*SerialTransport, error) {
	if portName == "" {
		return nil, errors.New("transport: serial port name must not be empty")
	}

	cfg, err := newConfig(opts...)
	if err != nil {
		return nil, err
	}

	return &SerialTransport{
		portName: portName,
		cfg:      cfg,
		logger:   cfg.logger.With("transport", "serial", "port", portName),
	}, nil
}

// Open opens the serial port. A no-op when already open.
func (t *SerialTransport) Open(_ context.Context) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.port != nil {
		return nil
	}

	return t.openLocked()
}

func (t *SerialTransport) openLocked() error {
	options := goserial.OpenOptions{
		PortName:              t.portName,
		BaudRate:              t.cfg.baudRate,
		DataBits:              t.cfg.dataBits,
		StopBits:              t.cfg.stopBits,
		ParityMode:            toParityMode(t.cfg.parity),
		InterCharacterTimeout: interCharacterTimeoutMs,
		MinimumReadSize:       0,
	}

	port, err := goserial.Open(options)
	if err != nil {
		return fmt.Errorf("%w: open %s: %w", protocol.ErrConnection, t.portName, err)
	}

	t.port = port
	t.generation.Add(1)
	t.logger.Debug("port opened", "generation", t.generation.Load())

	return nil
}

// Exchange writes req and reads one reply per rule, holding the channel lock
// for the full round trip. On a port fault it reopens the port once and
// retries; a second fault surfaces protocol.ErrConnection.
func (t *SerialTransport) Exchange(ctx context.Context, req []byte, rule ReadRule) ([]byte, error) {
	if !rule.valid() {
		return nil, errors.New("transport: read rule needs a terminator or a length")
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	if t.port == nil {
		return nil, fmt.Errorf("%w: transport not open", protocol.ErrConnection)
	}

	reply, err := t.exchangeLocked(ctx, req, rule)
	if err == nil || errors.Is(err, protocol.ErrExchangeTimeout) || ctx.Err() != nil {
		return reply, err
	}

	t.logger.Warn("port fault during exchange, reopening", "error", err)
	_ = t.port.Close()
	t.port = nil

	if rerr := t.openLocked(); rerr != nil {
		return nil, rerr
	}

	reply, err = t.exchangeLocked(ctx, req, rule)
	if err != nil && !errors.Is(err, protocol.ErrExchangeTimeout) {
		return nil, fmt.Errorf("%w: exchange after reopen: %w", protocol.ErrConnection, err)
	}

	return reply, err
}

// Send writes req without reading a reply (Hamilton broadcast commands
// produce no response).
func (t *SerialTransport) Send(_ context.Context, req []byte) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.port == nil {
		return fmt.Errorf("%w: transport not open", protocol.ErrConnection)
	}

	return writeAll(t.port, req)
}

// Generation returns the open counter.
func (t *SerialTransport) Generation() uint64 { return t.generation.Load() }

// Close releases the port.
func (t *SerialTransport) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.port == nil {
		return nil
	}

	err := t.port.Close()
	t.port = nil

	return err
}

func (t *SerialTransport) exchangeLocked(ctx context.Context, req []byte, rule ReadRule) ([]byte, error) {
	if err := writeAll(t.port, req); err != nil {
		return nil, err
	}

	deadline := time.Now().Add(t.cfg.exchangeTimeout)
	if ctxDeadline, ok := ctx.Deadline(); ok && ctxDeadline.Before(deadline) {
		deadline = ctxDeadline
	}

	var reply []byte
	chunk := make([]byte, 256)

	for {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		default:
		}

		n, err := t.port.Read(chunk)
		reply = append(reply, chunk[:n]...)

		if done, out := ruleSatisfied(reply, rule); done {
			return out, nil
		}

		// The port read blocks for at most the inter-character timeout;
		// a zero-byte read (io.EOF from the os.File wrapper) is an idle
		// tick, not a lost port.
		if err != nil && !(n == 0 && errors.Is(err, io.EOF)) {
			return nil, fmt.Errorf("transport: read: %w", err)
		}

		if time.Now().After(deadline) {
			return nil, fmt.Errorf("%w: %d bytes read", protocol.ErrExchangeTimeout, len(reply))
		}
	}
}

func ruleSatisfied(reply []byte, rule ReadRule) (bool, []byte) {
	if rule.Length > 0 {
		if len(reply) >= rule.Length {
			return true, reply[:rule.Length]
		}

		return false, nil
	}

	if idx := bytes.Index(reply, rule.Terminator); idx >= 0 {
		return true, reply[:idx+len(rule.Terminator)]
	}

	return false, nil
}

func writeAll(w io.Writer, data []byte) error {
	for written := 0; written < len(data); {
		n, err := w.Write(data[written:])
		written += n

		if err != nil {
			return fmt.Errorf("transport: write: %w", err)
		}
	}

	return nil
}

func toParityMode(p Parity) goserial.ParityMode {
	switch p {
	case ParityOdd:
		return goserial.PARITY_ODD
	case ParityEven:
		return goserial.PARITY_EVEN
	default:
		return goserial.PARITY_NONE
	}
}
