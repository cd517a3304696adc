package hamilton

import (
	"context"
	"fmt"

	"github.com/automatedchemistry/flowchem/device"
	"github.com/automatedchemistry/flowchem/protocol"
)

// Rotor geometries of the two valve heads mounted on ML600 instruments.
// The left head indexes in 45-degree slots starting at the rotor zero; the
// right head indexes in 90-degree slots and sits two slots ahead of its
// logical zero.
var (
	leftValveMapping  = device.AngularMapping{DegreesPerSlot: 45, SlotOffset: 0}
	rightValveMapping = device.AngularMapping{DegreesPerSlot: 90, SlotOffset: 2}
)

// Valve exposes one ML600 valve head through the vendor-neutral valve
// interface. Port names map 1:1 onto rotor slots in rotor order.
type Valve struct {
	pump    *ML600
	mapping device.AngularMapping
	ports   []string
}

var _ device.Valve = (*Valve)(nil)

// NewLeftValve wraps the pump's left valve head. ports names the rotor
// slots in order; when empty, slots are named "1".."8".
func NewLeftValve(pump *ML600, ports ...string) (*Valve, error) {
	return newValve(pump, leftValveMapping, ports)
}

// NewRightValve wraps the pump's right valve head. ports names the rotor
// slots in order; when empty, slots are named "1".."4".
func NewRightValve(pump *ML600, ports ...string) (*Valve, error) {
	return newValve(pump, rightValveMapping, ports)
}

func newValve(pump *ML600, mapping device.AngularMapping, ports []string) (*Valve, error) {
	n := mapping.Slots()

	if len(ports) == 0 {
		ports = make([]string, n)
		for i := range ports {
			ports[i] = fmt.Sprintf("%d", i+1)
		}
	}

	if len(ports) != n {
		return nil, fmt.Errorf("valve head has %d slots, got %d port names", n, len(ports))
	}

	seen := make(map[string]struct{}, n)
	for _, p := range ports {
		if _, dup := seen[p]; dup {
			return nil, fmt.Errorf("duplicate port name %q", p)
		}
		seen[p] = struct{}{}
	}

	return &Valve{pump: pump, mapping: mapping, ports: ports}, nil
}

// Ports returns the port names in rotor order.
func (v *Valve) Ports() []string {
	out := make([]string, len(v.ports))
	copy(out, v.ports)

	return out
}

// Position returns the currently selected port, read back from the rotor
// angle.
func (v *Valve) Position(ctx context.Context) (string, error) {
	degrees, err := v.pump.ValveAngle(ctx)
	if err != nil {
		return "", err
	}

	slot, err := v.mapping.FromDegrees(degrees)
	if err != nil {
		return "", err
	}

	return v.ports[slot], nil
}

// SetPosition rotates the valve to the named port.
func (v *Valve) SetPosition(ctx context.Context, port string) error {
	slot := -1

	for i, p := range v.ports {
		if p == port {
			slot = i
			break
		}
	}

	if slot < 0 {
		return fmt.Errorf("%w: unknown port %q", protocol.ErrInvalidPosition, port)
	}

	degrees, err := v.mapping.ToDegrees(slot)
	if err != nil {
		return err
	}

	return v.pump.SetValveAngle(ctx, degrees)
}
