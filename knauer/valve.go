package knauer

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/automatedchemistry/flowchem/device"
	"github.com/automatedchemistry/flowchem/engine"
	"github.com/automatedchemistry/flowchem/logger"
	"github.com/automatedchemistry/flowchem/protocol"
	"github.com/automatedchemistry/flowchem/transport"
)

// ValveHead identifies the rotor head reported by the valve's T command.
type ValveHead string

const (
	// SixPortTwoPosition is the injection-style head with positions L and I.
	SixPortTwoPosition ValveHead = "LI"

	SixPortSixPosition       ValveHead = "6"
	TwelvePortTwelvePosition ValveHead = "12"
	SixteenPortSixteenPos    ValveHead = "16"
)

// Valve is a Knauer motorized valve. Connect detects the mounted head and
// derives the selectable positions from it.
//
// The valve has no position readback cache on the instrument side worth
// trusting across reconnects, so the last confirmed position is cached
// together with the transport generation; a reconnect invalidates it.
type Valve struct {
	tr     transport.Transport
	eng    *engine.Engine
	logger logger.Logger

	head  ValveHead
	ports []string

	mu         sync.Mutex
	position   string
	generation uint64
}

var _ device.Valve = (*Valve)(nil)

// NewValve creates a valve over tr. Call Connect before use.
func NewValve(tr transport.Transport, opts ...Option) *Valve {
	cfg := newOptions(opts...)

	v := &Valve{
		tr:     tr,
		logger: cfg.logger.With("device", "knauer-valve"),
	}

	v.eng = engine.New(tr, LineCodec{EOL: ValveEOL}, transport.UntilTerminator(ReplyTerminator...),
		engine.WithLogger(v.logger),
		engine.WithBusyRetryInterval(lineBusyRetryInterval),
		engine.WithBusyBudget(lineBusyBudget),
	)

	return v
}

// Connect opens the channel and detects the valve head type. It fails early
// when the device does not identify as a supported valve.
func (v *Valve) Connect(ctx context.Context) error {
	if err := v.tr.Open(ctx); err != nil {
		return err
	}

	reply, err := v.eng.Do(ctx, protocol.Command{Mnemonic: "T"})
	if err != nil {
		return err
	}

	head, ok := strings.CutPrefix(reply.Payload, "VALVE ")
	if !ok {
		return fmt.Errorf("%w: device identifies as %q, not a valve", protocol.ErrProtocol, reply.Payload)
	}

	switch ValveHead(head) {
	case SixPortTwoPosition:
		v.ports = []string{"L", "I"}
	case SixPortSixPosition:
		v.ports = numberedPorts(6)
	case TwelvePortTwelvePosition:
		v.ports = numberedPorts(12)
	case SixteenPortSixteenPos:
		v.ports = numberedPorts(16)
	default:
		return fmt.Errorf("%w: unsupported valve head %q", protocol.ErrProtocol, head)
	}

	v.head = ValveHead(head)
	v.logger.Info("valve connected", "head", head)

	return nil
}

// Head returns the detected head type.
func (v *Valve) Head() ValveHead { return v.head }

// Ports returns the selectable positions.
func (v *Valve) Ports() []string {
	out := make([]string, len(v.ports))
	copy(out, v.ports)

	return out
}

// Position returns the current position, from cache when the connection has
// not been re-established since it was last confirmed.
func (v *Valve) Position(ctx context.Context) (string, error) {
	v.mu.Lock()
	if v.position != "" && v.generation == v.tr.Generation() {
		pos := v.position
		v.mu.Unlock()

		return pos, nil
	}
	v.mu.Unlock()

	reply, err := v.eng.Do(ctx, protocol.Command{Mnemonic: "P"})
	if err != nil {
		return "", v.wrapError(err)
	}

	v.cachePosition(reply.Payload)

	return reply.Payload, nil
}

// SetPosition rotates the valve. Selecting the already confirmed position on
// the same connection is a no-op.
func (v *Valve) SetPosition(ctx context.Context, port string) error {
	port = strings.ToUpper(port)

	if !v.validPort(port) {
		return fmt.Errorf("%w: %q not in %v", protocol.ErrInvalidPosition, port, v.ports)
	}

	v.mu.Lock()
	if v.position == port && v.generation == v.tr.Generation() {
		v.mu.Unlock()
		return nil
	}
	v.mu.Unlock()

	if _, err := v.eng.Do(ctx, protocol.Command{Mnemonic: port}); err != nil {
		return v.wrapError(err)
	}

	v.cachePosition(port)

	return nil
}

// Close releases the channel.
func (v *Valve) Close() error { return v.tr.Close() }

func (v *Valve) cachePosition(pos string) {
	v.mu.Lock()
	v.position = pos
	v.generation = v.tr.Generation()
	v.mu.Unlock()
}

func (v *Valve) validPort(port string) bool {
	for _, p := range v.ports {
		if p == port {
			return true
		}
	}

	return false
}

// wrapError attaches the E-code meaning to rejection errors.
func (v *Valve) wrapError(err error) error {
	msg := err.Error()
	for code := range valveErrors {
		if strings.Contains(msg, code) {
			return fmt.Errorf("%w: %s", err, ErrorDescription(code))
		}
	}

	return err
}

func numberedPorts(n int) []string {
	ports := make([]string, n)
	for i := range ports {
		ports[i] = fmt.Sprintf("%d", i+1)
	}

	return ports
}
