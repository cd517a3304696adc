package hamilton

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/puzpuzpuz/xsync/v3"

	"github.com/automatedchemistry/flowchem/device"
	"github.com/automatedchemistry/flowchem/engine"
	"github.com/automatedchemistry/flowchem/logger"
	"github.com/automatedchemistry/flowchem/protocol"
	"github.com/automatedchemistry/flowchem/store"
	"github.com/automatedchemistry/flowchem/transport"
)

// autoAddressFrame assigns chain addresses in daisy-chain order. Every pump
// takes the next letter and forwards the incremented frame downstream, so
// the first pump becomes 'a', the second 'b', and so on.
var autoAddressFrame = []byte("1a\r")

// firmwareMarker appears in the firmware string of ML600-family pumps.
var firmwareMarker = "NV01"

// Bus owns the serial channel shared by a Hamilton daisy chain. It assigns
// chain addresses, discovers how many pumps answer, and hands out pump
// handles bound to those addresses.
//
// Addresses are stable for the life of the physical connection; after a bus
// power cycle, Probe must run again.
type Bus struct {
	tr     transport.Transport
	eng    *engine.Engine
	logger logger.Logger

	name  string
	cal   *store.Store
	pumps *xsync.MapOf[byte, *ML600]

	addresses []protocol.Address
}

// BusOption configures a Bus.
type BusOption func(*Bus)

// WithBusLogger sets the bus logger.
func WithBusLogger(l logger.Logger) BusOption {
	return func(b *Bus) { b.logger = l }
}

// WithCalibration attaches a calibration store. name keys the bus entries
// (typically the serial port name); per-pump offset calibrations override
// the syringe default when a pump handle is created.
func WithCalibration(cal *store.Store, name string) BusOption {
	return func(b *Bus) {
		b.cal = cal
		b.name = name
	}
}

// NewBus creates a bus over tr. The transport must be open before Probe.
func NewBus(tr transport.Transport, opts ...BusOption) *Bus {
	b := &Bus{
		tr:     tr,
		logger: logger.GetLogger(),
		pumps:  xsync.NewMapOf[byte, *ML600](),
	}

	for _, opt := range opts {
		opt(b)
	}

	b.logger = b.logger.With("bus", "hamilton")
	b.eng = engine.New(tr, Codec{}, transport.UntilTerminator(Terminator...), engine.WithLogger(b.logger))

	return b
}

// Probe auto-addresses the chain, then asks each address in order for its
// firmware version until one stays silent. It returns the number of pumps
// found. The resulting address book is immutable until the next Probe.
func (b *Bus) Probe(ctx context.Context) (int, error) {
	if err := b.tr.Send(ctx, autoAddressFrame); err != nil {
		return 0, fmt.Errorf("auto-addressing: %w", err)
	}

	var found []protocol.Address

	for c := byte(firstAddress); c <= lastAddress; c++ {
		cmd := protocol.Command{
			Address:  protocol.CharAddress(c),
			Mnemonic: "U",
			Execute:  true,
		}

		reply, err := b.eng.Do(ctx, cmd)
		if err != nil {
			// The first silent address marks the end of the chain.
			if errors.Is(err, protocol.ErrExchangeTimeout) {
				break
			}

			return 0, fmt.Errorf("probing address %c: %w", c, err)
		}

		if !strings.Contains(reply.Payload, firmwareMarker) {
			b.logger.Warn("unexpected firmware on chain", "address", string(c), "firmware", reply.Payload)
		}

		b.logger.Info("pump found", "address", string(c), "firmware", reply.Payload)
		found = append(found, protocol.CharAddress(c))
	}

	b.addresses = found

	if b.cal != nil {
		if err := b.cal.PutChainLength(b.name, len(found)); err != nil {
			b.logger.Warn("cannot persist chain length", "error", err)
		}
	}

	return len(found), nil
}

// Addresses returns a copy of the probed address book.
func (b *Bus) Addresses() []protocol.Address {
	out := make([]protocol.Address, len(b.addresses))
	copy(out, b.addresses)

	return out
}

// Pump returns the handle for the index-th pump on the chain (0-based, in
// daisy-chain order) with the given syringe mounted. Handles are cached per
// address; repeated calls return the same handle.
//
// When a calibration store is attached and holds an offset for this pump,
// it overrides the syringe's default offset.
func (b *Bus) Pump(index int, syr device.Syringe) (*ML600, error) {
	if index < 0 || index >= len(b.addresses) {
		return nil, fmt.Errorf("pump index %d outside probed chain of %d", index, len(b.addresses))
	}

	if err := syr.Validate(); err != nil {
		return nil, err
	}

	addr := b.addresses[index]

	if b.cal != nil {
		if offset, ok, err := b.cal.OffsetSteps(b.pumpKey(addr.Char)); err != nil {
			b.logger.Warn("cannot read offset calibration", "error", err)
		} else if ok {
			syr.OffsetSteps = offset
		}
	}

	pump := newML600(b.eng, addr, syr, b.logger)
	actual, _ := b.pumps.LoadOrStore(addr.Char, pump)

	return actual, nil
}

// HomeAll broadcasts an initialize to every pump on the chain. Broadcast
// frames produce no reply; callers poll the individual pumps for idleness.
func (b *Bus) HomeAll(ctx context.Context) error {
	return b.eng.Send(ctx, protocol.Command{
		Address:  protocol.Broadcast(),
		Mnemonic: "X",
		Execute:  true,
	})
}

// Close releases the serial channel.
func (b *Bus) Close() error {
	return b.tr.Close()
}

func (b *Bus) pumpKey(addr byte) string {
	return fmt.Sprintf("%s/%c", b.name, addr)
}
