// Package knauer drives Knauer instruments: V 2.1S/AZURA valves and AZURA
// Compact pumps over their ASCII line protocol (TCP port 10001), and the
// AS 6.1L autosampler over its framed protocol (TCP port 2101 or serial).
package knauer

import (
	"bytes"
	"fmt"
	"strings"
	"time"

	"github.com/automatedchemistry/flowchem/protocol"
)

// Line protocol defaults. The instruments listen on TCP port 10001 and
// answer within a line terminated by CR.
const (
	DefaultPort = 10001

	// lineBusyRetryInterval and lineBusyBudget give the "?" reply exactly
	// one retry: valves answer "?" transiently right after a position
	// command, and a single resend usually succeeds.
	lineBusyRetryInterval = 100 * time.Millisecond
	lineBusyBudget        = 150 * time.Millisecond
)

// Line terminators. The pumps want NL+CR at the end of a command, the
// valves CR+NL; replies always end with CR.
var (
	ValveEOL = []byte("\r\n")
	PumpEOL  = []byte("\n\r")

	ReplyTerminator = []byte{'\r'}
)

// valveErrors maps the valve's fatal E-codes to their meaning. These signal
// hardware faults (worn rotor seals, DIP switch misconfiguration), so they
// are never retried.
var valveErrors = map[string]string{
	"E0": "valve refused to switch, replace rotor seals or motor drive unit",
	"E1": "skipped switch, motor current too high, replace rotor seals",
	"E2": "position change took too long, replace rotor seals",
	"E3": "DIP switches 3 and 4 set incorrectly",
	"E4": "homing position not recognized, readjust sensor board",
	"E5": "DIP switches 1 and 2 set incorrectly",
	"E6": "memory error, power-cycle the valve",
}

// ErrorDescription returns the human-readable meaning of a valve E-code.
func ErrorDescription(code string) string {
	if desc, ok := valveErrors[code]; ok {
		return desc
	}

	return "unspecified device error"
}

// LineCodec implements the shared ASCII line protocol. A command is the
// mnemonic, optionally followed by ":" and a value, terminated by EOL.
// Replies are classified from their text:
//
//	"?"                  device busy, worth one retry
//	"E<n>" / "ERROR:<n>" command or setpoint rejected
//	"OK" / "<CMD>:OK"    acknowledged
//	anything else        data payload
type LineCodec struct {
	// EOL terminates outgoing commands (ValveEOL or PumpEOL).
	EOL []byte
}

var _ protocol.Codec = LineCodec{}

// Encode renders cmd as a protocol line.
func (c LineCodec) Encode(cmd protocol.Command) ([]byte, error) {
	if cmd.Mnemonic == "" {
		return nil, fmt.Errorf("%w: empty mnemonic", protocol.ErrInvalidCommand)
	}
	if cmd.Address.Kind != protocol.AddressNone {
		return nil, fmt.Errorf("%w: line protocol devices are point-to-point", protocol.ErrInvalidCommand)
	}

	var frame bytes.Buffer

	frame.WriteString(cmd.Mnemonic)

	if cmd.Value != "" {
		frame.WriteByte(':')
		frame.WriteString(cmd.Value)
	}

	frame.Write(c.EOL)

	return frame.Bytes(), nil
}

// Decode classifies a protocol line reply.
func (c LineCodec) Decode(raw []byte) (protocol.Reply, error) {
	reply := protocol.Reply{Raw: raw}

	body := strings.TrimSpace(string(raw))
	if body == "" {
		reply.Outcome = protocol.OutcomeMalformed
		return reply, fmt.Errorf("%w: empty reply", protocol.ErrProtocol)
	}

	switch {
	case body == "?":
		reply.Outcome = protocol.OutcomeBusy

	case isValveError(body), strings.HasPrefix(body, "ERROR:"):
		reply.Outcome = protocol.OutcomeNACK
		reply.Payload = body

	case body == "OK", strings.HasSuffix(body, ":OK"):
		reply.Outcome = protocol.OutcomeACK

	default:
		reply.Outcome = protocol.OutcomeData
		reply.Payload = body
	}

	return reply, nil
}

// isValveError reports whether body is a valve E-code ("E" plus one digit).
func isValveError(body string) bool {
	return len(body) == 2 && body[0] == 'E' && body[1] >= '0' && body[1] <= '9'
}
