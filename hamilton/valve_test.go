package hamilton

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/automatedchemistry/flowchem/protocol"
)

func TestNewLeftValveDefaultPorts(t *testing.T) {
	valve, err := NewLeftValve(testPump(&scriptTransport{}))
	require.NoError(t, err)

	assert.Equal(t, []string{"1", "2", "3", "4", "5", "6", "7", "8"}, valve.Ports())
}

func TestNewRightValveNamedPorts(t *testing.T) {
	valve, err := NewRightValve(testPump(&scriptTransport{}), "source", "waste", "column", "loop")
	require.NoError(t, err)

	assert.Equal(t, []string{"source", "waste", "column", "loop"}, valve.Ports())
}

func TestNewValveRejectsBadPortNames(t *testing.T) {
	pump := testPump(&scriptTransport{})

	_, err := NewRightValve(pump, "a", "b")
	assert.Error(t, err, "wrong port count")

	_, err = NewRightValve(pump, "a", "b", "a", "c")
	assert.Error(t, err, "duplicate name")
}

func TestValveSetPosition(t *testing.T) {
	tr := &scriptTransport{replies: []string{ack()}}
	valve, err := NewRightValve(testPump(tr), "source", "waste", "column", "loop")
	require.NoError(t, err)

	// Slot 0 of the right head sits two 90-degree slots past rotor zero.
	require.NoError(t, valve.SetPosition(context.Background(), "source"))
	assert.Equal(t, "aLP0180R\r", tr.sent[0])
}

func TestValveSetPositionUnknownPort(t *testing.T) {
	tr := &scriptTransport{}
	valve, err := NewRightValve(testPump(tr), "source", "waste", "column", "loop")
	require.NoError(t, err)

	err = valve.SetPosition(context.Background(), "nowhere")
	assert.ErrorIs(t, err, protocol.ErrInvalidPosition)
	assert.Empty(t, tr.sent)
}

func TestValvePosition(t *testing.T) {
	tr := &scriptTransport{replies: []string{data("90")}}
	valve, err := NewRightValve(testPump(tr), "source", "waste", "column", "loop")
	require.NoError(t, err)

	port, err := valve.Position(context.Background())
	require.NoError(t, err)

	// 90 degrees is one slot past rotor zero, logical slot 3 on this head.
	assert.Equal(t, "loop", port)
}
