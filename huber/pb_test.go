package huber

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/automatedchemistry/flowchem/protocol"
)

func TestCodecEncode(t *testing.T) {
	t.Run("write setpoint", func(t *testing.T) {
		frame, err := Codec{}.Encode(protocol.Command{Mnemonic: "00", Value: "0932"})
		require.NoError(t, err)
		assert.Equal(t, "{M000932\r\n", string(frame))
	})

	t.Run("read internal temperature", func(t *testing.T) {
		frame, err := Codec{}.Encode(protocol.Command{Mnemonic: "01"})
		require.NoError(t, err)
		assert.Equal(t, "{M01****\r\n", string(frame))
	})

	t.Run("bad address", func(t *testing.T) {
		_, err := Codec{}.Encode(protocol.Command{Mnemonic: "0"})
		assert.ErrorIs(t, err, protocol.ErrInvalidCommand)

		_, err = Codec{}.Encode(protocol.Command{Mnemonic: "ZZ"})
		assert.ErrorIs(t, err, protocol.ErrInvalidCommand)
	})

	t.Run("bad value", func(t *testing.T) {
		_, err := Codec{}.Encode(protocol.Command{Mnemonic: "00", Value: "93"})
		assert.ErrorIs(t, err, protocol.ErrInvalidCommand)
	})
}

func TestCodecDecode(t *testing.T) {
	t.Run("slave reply", func(t *testing.T) {
		reply, err := Codec{}.Decode([]byte("{S000932\r\n"))
		require.NoError(t, err)
		assert.Equal(t, protocol.OutcomeData, reply.Outcome)
		assert.Equal(t, "0932", reply.Payload)
	})

	malformed := []struct {
		name string
		raw  string
	}{
		{"too short", "{S0932\r\n"},
		{"too long", "{S0009320\r\n"},
		{"master source", "{M000932\r\n"},
		{"no brace", "?S000932\r\n"},
		{"non-hex value", "{S00zzzz\r\n"},
		{"missing line end", "{S000932\r\r"},
	}

	for _, tt := range malformed {
		t.Run(tt.name, func(t *testing.T) {
			reply, err := Codec{}.Decode([]byte(tt.raw))
			require.Error(t, err)
			assert.ErrorIs(t, err, protocol.ErrProtocol)
			assert.Equal(t, protocol.OutcomeMalformed, reply.Outcome)
		})
	}
}

func TestTempHexConversion(t *testing.T) {
	tests := []struct {
		celsius float64
		hex     string
	}{
		{23.5, "0932"},
		{0, "0000"},
		{-10, "FC18"},
		{-151, "C504"},
		{327, "7FBC"},
	}

	for _, tt := range tests {
		hex, err := TempToHex(tt.celsius)
		require.NoError(t, err)
		assert.Equal(t, tt.hex, hex, "%v degC", tt.celsius)

		back, err := HexToTemp(tt.hex)
		require.NoError(t, err)
		assert.InDelta(t, tt.celsius, back, 1e-9, "%v degC", tt.celsius)
	}
}

func TestTempToHexOutOfRange(t *testing.T) {
	for _, c := range []float64{-152, 328, 1000} {
		_, err := TempToHex(c)
		assert.ErrorIs(t, err, protocol.ErrOutOfRange, "%v degC", c)
	}
}

func TestHexToTempInvalid(t *testing.T) {
	_, err := HexToTemp("zz32")
	assert.ErrorIs(t, err, protocol.ErrProtocol)
}

func TestSignedIntConversion(t *testing.T) {
	n, err := HexToSignedInt("FFFF")
	require.NoError(t, err)
	assert.Equal(t, -1, n)

	n, err = HexToSignedInt("0190")
	require.NoError(t, err)
	assert.Equal(t, 400, n)
}

func TestIntToHex(t *testing.T) {
	hex, err := IntToHex(1500)
	require.NoError(t, err)
	assert.Equal(t, "05DC", hex)

	_, err = IntToHex(-1)
	assert.ErrorIs(t, err, protocol.ErrOutOfRange)

	_, err = IntToHex(0x10000)
	assert.ErrorIs(t, err, protocol.ErrOutOfRange)
}
