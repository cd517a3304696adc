// Package engine implements the acknowledge/retry/busy request loop common
// to all flowchem devices.
//
// Each request walks a small state machine: the command is encoded and sent,
// the reply is read and classified, and only a BUSY classification is
// retried, every retry interval up to a bounded time budget. NACK and
// malformed replies fail immediately: the command itself was invalid or the
// wire is broken, and retrying would only mask real protocol bugs or device
// faults.
package engine

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/automatedchemistry/flowchem/internal/pool"
	"github.com/automatedchemistry/flowchem/logger"
	"github.com/automatedchemistry/flowchem/protocol"
	"github.com/automatedchemistry/flowchem/transport"
)

// Defaults for the busy-retry loop.
const (
	DefaultBusyRetryInterval = 10 * time.Millisecond
	DefaultBusyBudget        = 10 * time.Second
)

// Engine wraps one transport and one vendor codec and runs the
// send/classify/retry loop for every request.
type Engine struct {
	tr    transport.Transport
	codec protocol.Codec
	rule  transport.ReadRule

	interval time.Duration
	budget   time.Duration
	logger   logger.Logger
}

// Option configures an Engine.
type Option func(*Engine)

// WithBusyRetryInterval sets the pause between busy retries.
func WithBusyRetryInterval(d time.Duration) Option {
	return func(e *Engine) { e.interval = d }
}

// WithBusyBudget sets the total time budget for busy retries of one request.
func WithBusyBudget(d time.Duration) Option {
	return func(e *Engine) { e.budget = d }
}

// WithLogger sets the engine logger.
func WithLogger(l logger.Logger) Option {
	return func(e *Engine) { e.logger = l }
}

// New creates an engine over tr using codec. rule describes how a complete
// reply is recognized on the wire for this vendor.
func New(tr transport.Transport, codec protocol.Codec, rule transport.ReadRule, opts ...Option) *Engine {
	e := &Engine{
		tr:       tr,
		codec:    codec,
		rule:     rule,
		interval: DefaultBusyRetryInterval,
		budget:   DefaultBusyBudget,
		logger:   logger.GetLogger(),
	}

	for _, opt := range opts {
		opt(e)
	}

	return e
}

// Do sends cmd and returns its classified reply.
//
// BUSY replies are retried every retry interval until the busy budget is
// exhausted, then fail with protocol.ErrBusyTimeout. NACK fails immediately
// with protocol.ErrCommandRejected, malformed replies with
// protocol.ErrProtocol. All errors carry the command for context.
func (e *Engine) Do(ctx context.Context, cmd protocol.Command) (protocol.Reply, error) {
	wire, err := e.codec.Encode(cmd)
	if err != nil {
		return protocol.Reply{}, fmt.Errorf("command %s: %w", cmd, err)
	}

	deadline := time.Now().Add(e.budget)

	for {
		raw, err := e.tr.Exchange(ctx, wire, e.rule)
		if err != nil {
			return protocol.Reply{}, fmt.Errorf("command %s: %w", cmd, err)
		}

		reply, err := e.codec.Decode(raw)
		if err != nil {
			return reply, fmt.Errorf("command %s: %w", cmd, err)
		}

		switch reply.Outcome {
		case protocol.OutcomeACK, protocol.OutcomeData:
			return reply, nil

		case protocol.OutcomeNACK:
			if reply.Payload != "" {
				return reply, fmt.Errorf("command %s: %w: %s", cmd, protocol.ErrCommandRejected, reply.Payload)
			}

			return reply, fmt.Errorf("command %s: %w", cmd, protocol.ErrCommandRejected)

		case protocol.OutcomeBusy:
			if time.Now().Add(e.interval).After(deadline) {
				return reply, fmt.Errorf("command %s: %w (budget %v)", cmd, protocol.ErrBusyTimeout, e.budget)
			}

			e.logger.Debug("device busy, retrying", "command", cmd.String())

			if err := sleep(ctx, e.interval); err != nil {
				return reply, fmt.Errorf("command %s: %w", cmd, err)
			}

		case protocol.OutcomeMalformed:
			return reply, fmt.Errorf("command %s: %w: %q", cmd, protocol.ErrProtocol, raw)

		default:
			return reply, fmt.Errorf("command %s: unknown reply outcome %d", cmd, reply.Outcome)
		}
	}
}

// Send encodes cmd and writes it without reading a reply. Used for
// broadcast commands that produce no response.
func (e *Engine) Send(ctx context.Context, cmd protocol.Command) error {
	wire, err := e.codec.Encode(cmd)
	if err != nil {
		return fmt.Errorf("command %s: %w", cmd, err)
	}

	return e.tr.Send(ctx, wire)
}

// ErrPollTimeout is returned by Poll when cond does not hold within the
// timeout.
var ErrPollTimeout = errors.New("poll timeout")

// Poll re-evaluates cond every interval until it reports true, the timeout
// elapses, or ctx is cancelled. Device drivers use it for bounded
// wait-until-idle loops; it never blocks indefinitely.
func Poll(ctx context.Context, interval, timeout time.Duration, cond func(context.Context) (bool, error)) error {
	deadline := time.Now().Add(timeout)

	for {
		done, err := cond(ctx)
		if err != nil {
			return err
		}
		if done {
			return nil
		}

		if time.Now().Add(interval).After(deadline) {
			return fmt.Errorf("%w after %v", ErrPollTimeout, timeout)
		}

		if err := sleep(ctx, interval); err != nil {
			return err
		}
	}
}

// sleep waits for d or until ctx is cancelled, using the shared timer pool.
func sleep(ctx context.Context, d time.Duration) error {
	timer := pool.GetTimer(d)
	defer pool.PutTimer(timer)

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
