package device

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/automatedchemistry/flowchem/protocol"
)

func TestAngularMappingRoundTrip(t *testing.T) {
	mappings := []struct {
		name string
		m    AngularMapping
	}{
		{"8 slots no offset", AngularMapping{DegreesPerSlot: 45, SlotOffset: 0}},
		{"4 slots offset 2", AngularMapping{DegreesPerSlot: 90, SlotOffset: 2}},
		{"6 slots offset 1", AngularMapping{DegreesPerSlot: 60, SlotOffset: 1}},
	}

	for _, tt := range mappings {
		t.Run(tt.name, func(t *testing.T) {
			seen := make(map[int]bool)

			for slot := 0; slot < tt.m.Slots(); slot++ {
				degrees, err := tt.m.ToDegrees(slot)
				require.NoError(t, err)

				assert.GreaterOrEqual(t, degrees, 0)
				assert.Less(t, degrees, 360)
				assert.False(t, seen[degrees], "angle %d mapped twice", degrees)
				seen[degrees] = true

				back, err := tt.m.FromDegrees(degrees)
				require.NoError(t, err)
				assert.Equal(t, slot, back)
			}
		})
	}
}

func TestAngularMappingKnownPositions(t *testing.T) {
	m := AngularMapping{DegreesPerSlot: 90, SlotOffset: 2}

	degrees, err := m.ToDegrees(0)
	require.NoError(t, err)
	assert.Equal(t, 180, degrees)

	degrees, err = m.ToDegrees(3)
	require.NoError(t, err)
	assert.Equal(t, 90, degrees)
}

func TestAngularMappingInvalidSlot(t *testing.T) {
	m := AngularMapping{DegreesPerSlot: 45, SlotOffset: 0}

	for _, slot := range []int{-1, 8, 100} {
		_, err := m.ToDegrees(slot)
		assert.ErrorIs(t, err, protocol.ErrInvalidPosition, "slot %d", slot)
	}
}

func TestAngularMappingInvalidAngle(t *testing.T) {
	m := AngularMapping{DegreesPerSlot: 45, SlotOffset: 0}

	for _, degrees := range []int{-45, 360, 30, 91} {
		_, err := m.FromDegrees(degrees)
		assert.ErrorIs(t, err, protocol.ErrInvalidPosition, "angle %d", degrees)
	}
}
