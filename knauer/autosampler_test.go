package knauer

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/automatedchemistry/flowchem/protocol"
)

const asAckReply = "\x06"

// asReply builds a framed query reply for the default device id.
func asReply(pfc string, value string) string {
	return "\x02" + "061" + "00" + pfc + value + "\x03"
}

func TestAutosamplerConnect(t *testing.T) {
	tr := newScript(
		asReply(pfcErrors, "000000"), // error register clean
		asAckReply,                   // reset errors
		asAckReply,                   // needle up
		asAckReply,                   // needle to waste
		asAckReply,                   // syringe valve to waste
		asAckReply,                   // injector valve to load
	)
	as := NewAutosampler(tr)

	require.NoError(t, as.Connect(context.Background()))

	require.Len(t, tr.sent, 6)
	assert.Equal(t, "\x0206100101A\x03", tr.sent[0])
	assert.Equal(t, "\x0206100102000000\x03", tr.sent[1])
	assert.Equal(t, "\x0206100141000000\x03", tr.sent[2], "needle UP is index 0")
	assert.Equal(t, "\x0206100140000000\x03", tr.sent[3], "needle arm WASTE is index 0")
	assert.Equal(t, "\x0206100130000002\x03", tr.sent[4], "syringe valve WASTE is index 2")
	assert.Equal(t, "\x0206100131000000\x03", tr.sent[5], "injector LOAD is index 0")
}

func TestAutosamplerErrors(t *testing.T) {
	tr := newScript(asReply(pfcErrors, "000298"))
	as := NewAutosampler(tr)

	code, err := as.Errors(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 298, code)
	assert.Equal(t, "tray position is unknown", ASErrorDescription(code))
}

func TestAutosamplerInjectionVolume(t *testing.T) {
	tr := newScript(asAckReply, asReply(pfcInjectionVolume, "000025"))
	as := NewAutosampler(tr)

	ctx := context.Background()

	require.NoError(t, as.SetInjectionVolume(ctx, 25))
	assert.Equal(t, "\x0206100150000025\x03", tr.sent[0])

	ul, err := as.InjectionVolume(ctx)
	require.NoError(t, err)
	assert.Equal(t, 25, ul)
	assert.Equal(t, "\x0206100150R\x03", tr.sent[1], "setpoints read back the programmed value")
}

func TestAutosamplerAspirateDispense(t *testing.T) {
	tr := newScript(asAckReply, asAckReply)
	as := NewAutosampler(tr)

	ctx := context.Background()

	require.NoError(t, as.Aspirate(ctx, 0.05))
	assert.Equal(t, "\x0206100123000050\x03", tr.sent[0], "0.05 ml is 50 ul")

	require.NoError(t, as.Dispense(ctx, 0.05))
	assert.Equal(t, "\x0206100124000050\x03", tr.sent[1])

	assert.ErrorIs(t, as.Aspirate(ctx, -1), protocol.ErrOutOfRange)
}

func TestAutosamplerNeedleMoves(t *testing.T) {
	tr := newScript(asAckReply, asAckReply)
	as := NewAutosampler(tr)

	ctx := context.Background()

	require.NoError(t, as.MoveNeedleVertical(ctx, "DOWN"))
	assert.Equal(t, "\x0206100141000001\x03", tr.sent[0])

	require.NoError(t, as.MoveNeedleHorizontal(ctx, "PLATE"))
	assert.Equal(t, "\x0206100140000003\x03", tr.sent[1])

	assert.ErrorIs(t, as.MoveNeedleVertical(ctx, "SIDEWAYS"), protocol.ErrInvalidPosition)
}

func TestAutosamplerValves(t *testing.T) {
	tr := newScript(asAckReply, asReply(pfcSyringeValve, "000001"))
	as := NewAutosampler(tr)

	ctx := context.Background()
	valve := as.SyringeValve()

	assert.Equal(t, []string{"NEEDLE", "WASH", "WASTE"}, valve.Ports())

	require.NoError(t, valve.SetPosition(ctx, "WASH"))
	assert.Equal(t, "\x0206100130000001\x03", tr.sent[0])

	pos, err := valve.Position(ctx)
	require.NoError(t, err)
	assert.Equal(t, "WASH", pos)

	assert.ErrorIs(t, valve.SetPosition(ctx, "COLUMN"), protocol.ErrInvalidPosition)
}

func TestAutosamplerTrayCooler(t *testing.T) {
	tr := newScript(
		asAckReply, // temperature setpoint
		asAckReply, // cooling on
		asReply(pfcTrayTemperature, "000005"), // actual
		asReply(pfcTrayTemperature, "000004"), // programmed
	)
	as := NewAutosampler(tr)

	ctx := context.Background()
	cooler := as.TrayCooler()

	require.NoError(t, cooler.SetTemperature(ctx, 4))
	assert.Equal(t, "\x0206100110000004\x03", tr.sent[0])
	assert.Equal(t, "\x0206100111000001\x03", tr.sent[1])

	reached, err := cooler.TargetReached(ctx)
	require.NoError(t, err)
	assert.True(t, reached, "one degree off still counts as reached")
}

func TestAutosamplerBusySetRetried(t *testing.T) {
	tr := newScript("\x10", asAckReply)
	as := NewAutosampler(tr)

	require.NoError(t, as.ResetErrors(context.Background()))
	assert.Equal(t, 2, tr.exchanges)
}
