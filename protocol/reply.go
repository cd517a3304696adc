package protocol

// Outcome classifies a decoded device reply.
type Outcome uint8

const (
	// OutcomeACK is a positive acknowledgement with no payload.
	OutcomeACK Outcome = iota

	// OutcomeNACK is a negative acknowledgement: the device refused the
	// command or value. Never retried.
	OutcomeNACK

	// OutcomeBusy means the device cannot process the command yet but may
	// accept it shortly. The engine retries busy replies up to its budget.
	OutcomeBusy

	// OutcomeData is a positive acknowledgement carrying a payload.
	OutcomeData

	// OutcomeMalformed means the reply failed structural validation.
	OutcomeMalformed
)

func (o Outcome) String() string {
	switch o {
	case OutcomeACK:
		return "ACK"
	case OutcomeNACK:
		return "NACK"
	case OutcomeBusy:
		return "BUSY"
	case OutcomeData:
		return "DATA"
	case OutcomeMalformed:
		return "MALFORMED"
	default:
		return "UNKNOWN"
	}
}

// Reply is the decoded form of a raw device response. It is owned
// transiently by the engine call that produced it.
type Reply struct {
	// Raw is the reply exactly as read from the wire.
	Raw []byte

	// Outcome is the classification of the reply.
	Outcome Outcome

	// Payload is the data portion for OutcomeData replies, with vendor
	// framing (status byte, terminators, padding) stripped.
	Payload string
}

// OK reports whether the reply is a positive acknowledgement.
func (r Reply) OK() bool {
	return r.Outcome == OutcomeACK || r.Outcome == OutcomeData
}

// Codec translates between semantic commands and a vendor's exact wire
// format. Implementations are pure and stateless.
type Codec interface {
	// Encode renders cmd into wire bytes per the vendor framing rule.
	// Commands the vendor cannot express fail with ErrInvalidCommand.
	Encode(cmd Command) ([]byte, error)

	// Decode parses raw reply bytes into a classified Reply. Frames that
	// fail structural validation yield a Reply with OutcomeMalformed and a
	// wrapped ErrProtocol; Decode never returns partial data silently.
	Decode(data []byte) (Reply, error)
}
