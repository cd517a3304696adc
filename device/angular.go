package device

import (
	"fmt"

	"github.com/automatedchemistry/flowchem/protocol"
)

// AngularMapping is the affine bijection between a valve's logical slot
// numbers and the rotor angle in degrees. Both directions validate before
// any I/O happens, so an out-of-range slot never reaches the wire.
type AngularMapping struct {
	// DegreesPerSlot is the rotor angle between adjacent slots. Must divide
	// 360 evenly.
	DegreesPerSlot int

	// SlotOffset rotates the logical scale relative to the rotor zero.
	SlotOffset int
}

// Slots returns the number of logical slots on the rotor.
func (m AngularMapping) Slots() int { return 360 / m.DegreesPerSlot }

// ToDegrees maps a logical slot to the rotor angle.
func (m AngularMapping) ToDegrees(slot int) (int, error) {
	n := m.Slots()
	if slot < 0 || slot >= n {
		return 0, fmt.Errorf("%w: slot %d outside [0, %d)", protocol.ErrInvalidPosition, slot, n)
	}

	return ((slot + m.SlotOffset) % n) * m.DegreesPerSlot, nil
}

// FromDegrees maps a rotor angle back to the logical slot. The angle must be
// an exact slot multiple in [0, 360).
func (m AngularMapping) FromDegrees(degrees int) (int, error) {
	if degrees < 0 || degrees >= 360 || degrees%m.DegreesPerSlot != 0 {
		return 0, fmt.Errorf("%w: angle %d not a %d-degree slot position",
			protocol.ErrInvalidPosition, degrees, m.DegreesPerSlot)
	}

	n := m.Slots()
	slot := (degrees/m.DegreesPerSlot - m.SlotOffset) % n
	if slot < 0 {
		slot += n
	}

	return slot, nil
}
