package knauer

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/automatedchemistry/flowchem/protocol"
)

func TestASCodecEncode(t *testing.T) {
	codec := ASCodec{ID: 61}

	t.Run("query", func(t *testing.T) {
		frame, err := codec.Encode(protocol.Command{Mnemonic: "110", Value: "A"})
		require.NoError(t, err)
		assert.Equal(t, "\x0206100110A\x03", string(frame))
	})

	t.Run("setting", func(t *testing.T) {
		frame, err := codec.Encode(protocol.Command{Mnemonic: "150", Value: setBody(25)})
		require.NoError(t, err)
		assert.Equal(t, "\x0206100150000025\x03", string(frame))
	})

	t.Run("bad function code", func(t *testing.T) {
		_, err := codec.Encode(protocol.Command{Mnemonic: "15"})
		assert.ErrorIs(t, err, protocol.ErrInvalidCommand)
	})
}

func TestASCodecDecodeControlBytes(t *testing.T) {
	codec := ASCodec{ID: 61}

	tests := []struct {
		name    string
		raw     byte
		outcome protocol.Outcome
	}{
		{"ack", asACK, protocol.OutcomeACK},
		{"try again", asTryAgain, protocol.OutcomeBusy},
		{"nak", asNAK, protocol.OutcomeNACK},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			reply, err := codec.Decode([]byte{tt.raw})
			require.NoError(t, err)
			assert.Equal(t, tt.outcome, reply.Outcome)
		})
	}

	t.Run("unknown control byte", func(t *testing.T) {
		reply, err := codec.Decode([]byte{0x7f})
		require.Error(t, err)
		assert.ErrorIs(t, err, protocol.ErrProtocol)
		assert.Equal(t, protocol.OutcomeMalformed, reply.Outcome)
	})
}

func TestASCodecDecodeQueryReply(t *testing.T) {
	codec := ASCodec{ID: 61}

	t.Run("value with leading zeros", func(t *testing.T) {
		reply, err := codec.Decode([]byte("\x0206100110000025\x03"))
		require.NoError(t, err)
		assert.Equal(t, protocol.OutcomeData, reply.Outcome)
		assert.Equal(t, "25", reply.Payload)
	})

	t.Run("all-zero value means zero", func(t *testing.T) {
		reply, err := codec.Decode([]byte("\x0206100101000000\x03"))
		require.NoError(t, err)
		assert.Equal(t, "0", reply.Payload)
	})

	t.Run("wrong device id", func(t *testing.T) {
		reply, err := codec.Decode([]byte("\x0204200110000025\x03"))
		require.Error(t, err)
		assert.ErrorIs(t, err, protocol.ErrProtocol)
		assert.Equal(t, protocol.OutcomeMalformed, reply.Outcome)
	})

	t.Run("short body", func(t *testing.T) {
		reply, err := codec.Decode([]byte("\x02061001100025\x03"))
		require.Error(t, err)
		assert.ErrorIs(t, err, protocol.ErrProtocol)
		assert.Equal(t, protocol.OutcomeMalformed, reply.Outcome)
	})

	t.Run("missing framing", func(t *testing.T) {
		reply, err := codec.Decode([]byte("06100110000025"))
		require.Error(t, err)
		assert.ErrorIs(t, err, protocol.ErrProtocol)
		assert.Equal(t, protocol.OutcomeMalformed, reply.Outcome)
	})
}
