// Package huber drives Huber temperature control units (Unistat and
// compatible chillers) over the PB command protocol, 9600 8N1 serial.
package huber

import (
	"fmt"
	"math"
	"strconv"

	"github.com/automatedchemistry/flowchem/protocol"
)

// PB frames are exactly ten bytes:
//
//	'{' + source + two hex address digits + four hex value digits + CR LF
//
// The source is 'M' for master requests and 'S' for slave replies. A request
// with value "****" reads the addressed variable; any other value writes it.
// The reply echoes the address with the current value, which doubles as the
// acknowledgment.
const (
	FrameLen = 10

	queryValue = "****"

	masterSource = 'M'
	slaveSource  = 'S'
)

// Temperature range representable by the protocol's 16-bit centidegree
// encoding.
const (
	MinTemperature = -151.0
	MaxTemperature = 327.0
)

// Codec implements PB framing. Commands carry the variable address in
// Mnemonic (two hex digits) and the value in Value (four hex digits, or
// empty for a read).
type Codec struct{}

var _ protocol.Codec = Codec{}

// Encode renders cmd as a PB master frame.
func (Codec) Encode(cmd protocol.Command) ([]byte, error) {
	if len(cmd.Mnemonic) != 2 || !isHex(cmd.Mnemonic) {
		return nil, fmt.Errorf("%w: address %q must be two hex digits", protocol.ErrInvalidCommand, cmd.Mnemonic)
	}

	value := cmd.Value
	if value == "" {
		value = queryValue
	}

	if value != queryValue && (len(value) != 4 || !isHex(value)) {
		return nil, fmt.Errorf("%w: value %q must be four hex digits or a read", protocol.ErrInvalidCommand, cmd.Value)
	}

	return []byte(fmt.Sprintf("{%c%s%s\r\n", masterSource, cmd.Mnemonic, value)), nil
}

// Decode validates a PB slave frame structurally before touching any field.
// The echoed value is returned as the four-hex-digit payload.
func (Codec) Decode(raw []byte) (protocol.Reply, error) {
	reply := protocol.Reply{Raw: raw}

	if len(raw) != FrameLen || raw[0] != '{' || raw[8] != '\r' || raw[9] != '\n' {
		reply.Outcome = protocol.OutcomeMalformed
		return reply, fmt.Errorf("%w: %q is not a ten-byte PB frame", protocol.ErrProtocol, raw)
	}

	if raw[1] != slaveSource {
		reply.Outcome = protocol.OutcomeMalformed
		return reply, fmt.Errorf("%w: frame source %q, want slave", protocol.ErrProtocol, raw[1])
	}

	addr, value := string(raw[2:4]), string(raw[4:8])
	if !isHex(addr) || !isHex(value) {
		reply.Outcome = protocol.OutcomeMalformed
		return reply, fmt.Errorf("%w: non-hex fields in frame %q", protocol.ErrProtocol, raw)
	}

	reply.Outcome = protocol.OutcomeData
	reply.Payload = value

	return reply, nil
}

// TempToHex encodes a temperature as a 16-bit two's-complement centidegree
// value.
func TempToHex(celsius float64) (string, error) {
	if celsius < MinTemperature || celsius > MaxTemperature {
		return "", fmt.Errorf("%w: %v degC outside [%v, %v]",
			protocol.ErrOutOfRange, celsius, MinTemperature, MaxTemperature)
	}

	v := int(math.Round(celsius * 100))
	if v < 0 {
		v += 0x10000
	}

	return fmt.Sprintf("%04X", v), nil
}

// HexToTemp decodes a 16-bit two's-complement centidegree value.
func HexToTemp(hex string) (float64, error) {
	v, err := strconv.ParseUint(hex, 16, 16)
	if err != nil {
		return 0, fmt.Errorf("%w: %q is not a hex value", protocol.ErrProtocol, hex)
	}

	n := int(v)
	if n > 0x7FFF {
		n -= 0x10000
	}

	return float64(n) / 100, nil
}

// IntToHex encodes an unsigned 16-bit value.
func IntToHex(n int) (string, error) {
	if n < 0 || n > 0xFFFF {
		return "", fmt.Errorf("%w: %d outside [0, 65535]", protocol.ErrOutOfRange, n)
	}

	return fmt.Sprintf("%04X", n), nil
}

// HexToInt decodes an unsigned 16-bit value.
func HexToInt(hex string) (int, error) {
	v, err := strconv.ParseUint(hex, 16, 16)
	if err != nil {
		return 0, fmt.Errorf("%w: %q is not a hex value", protocol.ErrProtocol, hex)
	}

	return int(v), nil
}

// HexToSignedInt decodes a 16-bit two's-complement value (e.g. heating
// power, negative while cooling).
func HexToSignedInt(hex string) (int, error) {
	v, err := HexToInt(hex)
	if err != nil {
		return 0, err
	}

	if v > 0x7FFF {
		v -= 0x10000
	}

	return v, nil
}

func isHex(s string) bool {
	for i := 0; i < len(s); i++ {
		c := s[i]
		switch {
		case c >= '0' && c <= '9', c >= 'A' && c <= 'F', c >= 'a' && c <= 'f':
		default:
			return false
		}
	}

	return len(s) > 0
}
