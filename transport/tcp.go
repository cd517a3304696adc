package transport

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/automatedchemistry/flowchem/logger"
	"github.com/automatedchemistry/flowchem/protocol"
)

// TCPTransport drives a device behind a raw TCP socket (Knauer valves and
// pumps listen on port 10001, the autosampler on 2101).
type TCPTransport struct {
	addr   string
	cfg    *Config
	logger logger.Logger

	mu         sync.Mutex
	conn       net.Conn
	generation atomic.Uint64
}

var _ Transport = (*TCPTransport)(nil)

// NewTCP creates a transport for the device at host:port. The connection is
// not established until Open is called.
func NewTCP(host string, port int, opts ...Option) (*TCPTransport, error) {
	if host == "" {
		return nil, errors.New("transport: host must not be empty")
	}
	if port <= 0 || port > 65535 {
		return nil, fmt.Errorf("transport: port %d out of range [1, 65535]", port)
	}

	cfg, err := newConfig(opts...)
	if err != nil {
		return nil, err
	}

	return &TCPTransport{
		addr:   fmt.Sprintf("%s:%d", host, port),
		cfg:    cfg,
		logger: cfg.logger.With("transport", "tcp", "addr", fmt.Sprintf("%s:%d", host, port)),
	}, nil
}

// Open dials the device. A no-op when already connected.
func (t *TCPTransport) Open(ctx context.Context) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.conn != nil {
		return nil
	}

	return t.connectLocked(ctx)
}

func (t *TCPTransport) connectLocked(ctx context.Context) error {
	dialer := net.Dialer{Timeout: t.cfg.connectTimeout}

	conn, err := dialer.DialContext(ctx, "tcp", t.addr)
	if err != nil {
		return fmt.Errorf("%w: dial %s: %w", protocol.ErrConnection, t.addr, err)
	}

	t.conn = conn
	t.generation.Add(1)
	t.logger.Debug("connected", "generation", t.generation.Load())

	return nil
}

// Exchange writes req and reads one reply per rule, holding the channel lock
// for the full round trip. On a connection fault it reconnects once and
// retries the exchange; a second fault surfaces protocol.ErrConnection.
func (t *TCPTransport) Exchange(ctx context.Context, req []byte, rule ReadRule) ([]byte, error) {
	if !rule.valid() {
		return nil, errors.New("transport: read rule needs a terminator or a length")
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	if t.conn == nil {
		return nil, fmt.Errorf("%w: transport not open", protocol.ErrConnection)
	}

	reply, err := t.exchangeLocked(ctx, req, rule)
	if err == nil || errors.Is(err, protocol.ErrExchangeTimeout) || ctx.Err() != nil {
		return reply, err
	}

	// Connection fault mid-exchange: one reconnect attempt, one retry.
	t.logger.Warn("connection lost during exchange, reconnecting", "error", err)
	_ = t.conn.Close()
	t.conn = nil

	if rerr := t.connectLocked(ctx); rerr != nil {
		return nil, rerr
	}

	reply, err = t.exchangeLocked(ctx, req, rule)
	if err != nil && !errors.Is(err, protocol.ErrExchangeTimeout) {
		return nil, fmt.Errorf("%w: exchange after reconnect: %w", protocol.ErrConnection, err)
	}

	return reply, err
}

// Send writes req without reading a reply.
func (t *TCPTransport) Send(ctx context.Context, req []byte) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.conn == nil {
		return fmt.Errorf("%w: transport not open", protocol.ErrConnection)
	}

	return t.writeAll(ctx, req)
}

// Generation returns the connect counter.
func (t *TCPTransport) Generation() uint64 { return t.generation.Load() }

// Close releases the socket.
func (t *TCPTransport) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.conn == nil {
		return nil
	}

	err := t.conn.Close()
	t.conn = nil

	return err
}

func (t *TCPTransport) exchangeLocked(ctx context.Context, req []byte, rule ReadRule) ([]byte, error) {
	if err := t.writeAll(ctx, req); err != nil {
		return nil, err
	}

	deadline := time.Now().Add(t.cfg.exchangeTimeout)
	if ctxDeadline, ok := ctx.Deadline(); ok && ctxDeadline.Before(deadline) {
		deadline = ctxDeadline
	}

	if rule.Length > 0 {
		return t.readFixed(rule.Length, deadline)
	}

	return t.readUntil(rule.Terminator, deadline)
}

func (t *TCPTransport) writeAll(ctx context.Context, data []byte) error {
	deadline := time.Now().Add(t.cfg.exchangeTimeout)
	if ctxDeadline, ok := ctx.Deadline(); ok && ctxDeadline.Before(deadline) {
		deadline = ctxDeadline
	}
	if err := t.conn.SetWriteDeadline(deadline); err != nil {
		return err
	}

	for written := 0; written < len(data); {
		n, err := t.conn.Write(data[written:])
		written += n

		if err != nil {
			return fmt.Errorf("transport: write: %w", err)
		}
	}

	return nil
}

// readUntil reads until terminator has been received, returning everything
// read including the terminator. The deadline is absolute for the whole
// reply, not per chunk.
func (t *TCPTransport) readUntil(terminator []byte, deadline time.Time) ([]byte, error) {
	var reply []byte
	chunk := make([]byte, 256)

	for {
		if err := t.conn.SetReadDeadline(deadline); err != nil {
			return nil, err
		}

		n, err := t.conn.Read(chunk)
		reply = append(reply, chunk[:n]...)

		if idx := bytes.Index(reply, terminator); idx >= 0 {
			return reply[:idx+len(terminator)], nil
		}

		if err != nil {
			if isTimeout(err) {
				return nil, fmt.Errorf("%w: %d bytes read, terminator %q not seen", protocol.ErrExchangeTimeout, len(reply), terminator)
			}

			return nil, fmt.Errorf("transport: read: %w", err)
		}
	}
}

// readFixed reads exactly length bytes.
func (t *TCPTransport) readFixed(length int, deadline time.Time) ([]byte, error) {
	reply := make([]byte, length)

	for read := 0; read < length; {
		if err := t.conn.SetReadDeadline(deadline); err != nil {
			return nil, err
		}

		n, err := t.conn.Read(reply[read:])
		read += n

		if err != nil {
			if isTimeout(err) {
				return nil, fmt.Errorf("%w: %d of %d bytes read", protocol.ErrExchangeTimeout, read, length)
			}

			return nil, fmt.Errorf("transport: read: %w", err)
		}
	}

	return reply, nil
}

func isTimeout(err error) bool {
	var netErr net.Error

	return errors.As(err, &netErr) && netErr.Timeout()
}
