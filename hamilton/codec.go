// Package hamilton drives Hamilton syringe pumps (ML600 family) over the
// vendor's ASCII protocol 1. Pumps sit on an RS-485 daisy chain behind one
// serial port; each pump is addressed by a single letter assigned at
// bus-probe time.
package hamilton

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/automatedchemistry/flowchem/protocol"
)

// Protocol 1 control bytes.
const (
	ackByte  = 0x06
	nackByte = 0x15

	// broadcastChar addresses every pump on the chain at once. Broadcast
	// frames produce no reply.
	broadcastChar = ':'

	// firstAddress..lastAddress are the chain addresses handed out in
	// daisy-chain order during auto-addressing.
	firstAddress = 'a'
	lastAddress  = 'p'
)

// Terminator is the frame terminator for both directions.
var Terminator = []byte{'\r'}

// Codec implements protocol 1 framing:
//
//	<address><mnemonic><value>[<param><argument>]['R']<CR>
//
// The trailing 'R' executes the pump's command buffer; frames without it are
// queued. Replies start with ACK (0x06) or NACK (0x15), optionally followed
// by a data payload.
type Codec struct{}

var _ protocol.Codec = Codec{}

// Encode renders cmd as a protocol 1 frame.
func (Codec) Encode(cmd protocol.Command) ([]byte, error) {
	var addr byte

	switch cmd.Address.Kind {
	case protocol.AddressChar:
		if cmd.Address.Char < firstAddress || cmd.Address.Char > lastAddress {
			return nil, fmt.Errorf("%w: chain address %q outside %q..%q",
				protocol.ErrInvalidCommand, cmd.Address.Char, firstAddress, lastAddress)
		}

		addr = cmd.Address.Char

	case protocol.AddressBroadcast:
		addr = broadcastChar

	default:
		return nil, fmt.Errorf("%w: command needs a chain or broadcast address", protocol.ErrInvalidCommand)
	}

	if cmd.Mnemonic == "" {
		return nil, fmt.Errorf("%w: empty mnemonic", protocol.ErrInvalidCommand)
	}

	var frame bytes.Buffer

	frame.WriteByte(addr)
	frame.WriteString(cmd.Mnemonic)
	frame.WriteString(cmd.Value)

	if cmd.Argument != "" {
		frame.WriteString(cmd.Param)
		frame.WriteString(cmd.Argument)
	}

	if cmd.Execute {
		frame.WriteByte('R')
	}

	frame.Write(Terminator)

	return frame.Bytes(), nil
}

// Decode classifies a protocol 1 reply. The leading byte decides the
// outcome; anything after it is the data payload.
func (Codec) Decode(raw []byte) (protocol.Reply, error) {
	reply := protocol.Reply{Raw: raw}

	body := bytes.TrimRight(raw, "\r\n")
	if len(body) == 0 {
		reply.Outcome = protocol.OutcomeMalformed
		return reply, fmt.Errorf("%w: empty reply", protocol.ErrProtocol)
	}

	switch body[0] {
	case ackByte:
		payload := strings.TrimSpace(string(body[1:]))
		if payload == "" {
			reply.Outcome = protocol.OutcomeACK
		} else {
			reply.Outcome = protocol.OutcomeData
			reply.Payload = payload
		}

		return reply, nil

	case nackByte:
		reply.Outcome = protocol.OutcomeNACK
		return reply, nil

	default:
		reply.Outcome = protocol.OutcomeMalformed
		return reply, fmt.Errorf("%w: reply %q starts with neither ACK nor NACK", protocol.ErrProtocol, body)
	}
}
