package knauer

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/automatedchemistry/flowchem/protocol"
)

// AS 6.1L framed protocol constants. The autosampler listens on TCP port
// 2101 (or speaks 9600 8N1 over serial) and frames every request and every
// query reply between STX and ETX. Setting commands are answered with a
// single control byte instead of a frame.
const (
	DefaultAutosamplerPort = 2101
	DefaultAutosamplerID   = 61

	asSTX      = 0x02
	asETX      = 0x03
	asACK      = 0x06
	asTryAgain = 0x10
	asNAK      = 0x15

	// asAdditionalInfo is the fixed filler field between the device id and
	// the function code; the instrument ignores it on requests.
	asAdditionalInfo = "00"

	// asReplyBodyLen is the exact length of a stripped query reply. Any
	// other length is a framing violation regardless of content.
	asReplyBodyLen = 14

	// Reply body field widths: id(3) + info(2) + function code(3) + value(6).
	asIDEnd    = 3
	asInfoEnd  = 5
	asPFCEnd   = 8
	asValueEnd = 14
)

// ASReplyTerminator completes a framed query reply.
var ASReplyTerminator = []byte{asETX}

// Function codes of the autosampler operations used by this driver.
const (
	pfcStatus      = "100"
	pfcErrors      = "101"
	pfcResetErrors = "102"

	pfcTrayTemperature = "110"
	pfcTrayCooling     = "111"
	pfcMoveTray        = "112"

	pfcSyringeVolume = "120"
	pfcSyringeSpeed  = "121"
	pfcMoveSyringe   = "122"
	pfcAspirate      = "123"
	pfcDispense      = "124"

	pfcSyringeValve  = "130"
	pfcInjectorValve = "131"

	pfcNeedleHorizontal = "140"
	pfcNeedleVertical   = "141"

	pfcInjectionVolume = "150"
	pfcLoopVolume      = "151"
	pfcFlushVolume     = "152"
	pfcTubingVolume    = "153"
	pfcHeadspace       = "154"
	pfcCompressor      = "155"
)

// Request modus markers. A setting carries a six-digit value instead.
const (
	asReadProgrammed = "R"
	asReadActual     = "A"
)

// ASQueryReply is the decomposed body of a framed query reply.
type ASQueryReply struct {
	ID       int
	Function string
	Value    int
}

// ASCodec frames autosampler requests and classifies replies. ID is the
// configured device id; replies carrying a different id are rejected.
//
// Commands map onto the frame as Mnemonic = function code and Value = the
// pre-formatted request body remainder (modus marker or six-digit value).
type ASCodec struct {
	ID int
}

var _ protocol.Codec = ASCodec{}

// Encode renders cmd as a framed request.
func (c ASCodec) Encode(cmd protocol.Command) ([]byte, error) {
	if len(cmd.Mnemonic) != 3 {
		return nil, fmt.Errorf("%w: function code %q must be three digits", protocol.ErrInvalidCommand, cmd.Mnemonic)
	}

	frame := fmt.Sprintf("%c%03d%s%s%s%c", asSTX, c.ID, asAdditionalInfo, cmd.Mnemonic, cmd.Value, asETX)

	return []byte(frame), nil
}

// Decode classifies a reply. Single control bytes acknowledge settings;
// framed bodies answer queries and must be exactly 14 characters between
// STX and ETX.
func (c ASCodec) Decode(raw []byte) (protocol.Reply, error) {
	reply := protocol.Reply{Raw: raw}

	if len(raw) == 1 {
		switch raw[0] {
		case asACK:
			reply.Outcome = protocol.OutcomeACK
		case asTryAgain:
			reply.Outcome = protocol.OutcomeBusy
		case asNAK:
			reply.Outcome = protocol.OutcomeNACK
		default:
			reply.Outcome = protocol.OutcomeMalformed
			return reply, fmt.Errorf("%w: unknown control byte %#x", protocol.ErrProtocol, raw[0])
		}

		return reply, nil
	}

	if len(raw) < 2 || raw[0] != asSTX || raw[len(raw)-1] != asETX {
		reply.Outcome = protocol.OutcomeMalformed
		return reply, fmt.Errorf("%w: reply %q not STX/ETX framed", protocol.ErrProtocol, raw)
	}

	body := string(raw[1 : len(raw)-1])
	if len(body) != asReplyBodyLen {
		reply.Outcome = protocol.OutcomeMalformed
		return reply, fmt.Errorf("%w: reply body %q is %d chars, want %d",
			protocol.ErrProtocol, body, len(body), asReplyBodyLen)
	}

	parsed, err := parseASBody(body)
	if err != nil {
		reply.Outcome = protocol.OutcomeMalformed
		return reply, err
	}

	if parsed.ID != c.ID {
		reply.Outcome = protocol.OutcomeMalformed
		return reply, fmt.Errorf("%w: reply from device %d, expected %d", protocol.ErrProtocol, parsed.ID, c.ID)
	}

	reply.Outcome = protocol.OutcomeData
	reply.Payload = strconv.Itoa(parsed.Value)

	return reply, nil
}

// parseASBody decomposes a 14-character reply body. The value field is a
// zero-padded ASCII integer; an all-zero field means zero.
func parseASBody(body string) (ASQueryReply, error) {
	id, err := strconv.Atoi(body[:asIDEnd])
	if err != nil {
		return ASQueryReply{}, fmt.Errorf("%w: reply id %q is not a number", protocol.ErrProtocol, body[:asIDEnd])
	}

	valueField := body[asPFCEnd:asValueEnd]

	stripped := strings.TrimLeft(valueField, "0")
	if stripped == "" {
		stripped = "0"
	}

	value, err := strconv.Atoi(stripped)
	if err != nil {
		return ASQueryReply{}, fmt.Errorf("%w: reply value %q is not a number", protocol.ErrProtocol, valueField)
	}

	return ASQueryReply{
		ID:       id,
		Function: body[asInfoEnd:asPFCEnd],
		Value:    value,
	}, nil
}

// setBody formats a setting request body.
func setBody(value int) string {
	return fmt.Sprintf("%06d", value)
}
