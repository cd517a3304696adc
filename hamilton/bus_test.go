package hamilton

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBusProbe(t *testing.T) {
	tr := &scriptTransport{replies: []string{
		data("NV01.02.05"),
		data("NV01.02.05"),
	}}
	bus := NewBus(tr)

	n, err := bus.Probe(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 2, n)
	require.Len(t, bus.Addresses(), 2)
	assert.Equal(t, byte('a'), bus.Addresses()[0].Char)
	assert.Equal(t, byte('b'), bus.Addresses()[1].Char)

	// Auto-address broadcast first, then one firmware query per address
	// until the first silent one.
	require.Len(t, tr.sent, 4)
	assert.Equal(t, "1a\r", tr.sent[0])
	assert.Equal(t, "aUR\r", tr.sent[1])
	assert.Equal(t, "bUR\r", tr.sent[2])
	assert.Equal(t, "cUR\r", tr.sent[3])
}

func TestBusProbeEmptyChain(t *testing.T) {
	tr := &scriptTransport{}
	bus := NewBus(tr)

	n, err := bus.Probe(context.Background())
	require.NoError(t, err)

	assert.Zero(t, n)
	assert.Empty(t, bus.Addresses())
}

func TestBusPump(t *testing.T) {
	tr := &scriptTransport{replies: []string{data("NV01.02.05")}}
	bus := NewBus(tr)

	_, err := bus.Probe(context.Background())
	require.NoError(t, err)

	pump, err := bus.Pump(0, NewSyringe(5))
	require.NoError(t, err)
	assert.Equal(t, byte('a'), pump.Address().Char)

	// Handles are cached per address.
	again, err := bus.Pump(0, NewSyringe(5))
	require.NoError(t, err)
	assert.Same(t, pump, again)

	_, err = bus.Pump(1, NewSyringe(5))
	assert.Error(t, err, "index beyond probed chain")

	_, err = bus.Pump(0, NewSyringe(-1))
	assert.Error(t, err, "invalid syringe geometry")
}

func TestBusHomeAll(t *testing.T) {
	tr := &scriptTransport{}
	bus := NewBus(tr)

	require.NoError(t, bus.HomeAll(context.Background()))

	require.Len(t, tr.sent, 1)
	assert.Equal(t, ":XR\r", tr.sent[0])
}
