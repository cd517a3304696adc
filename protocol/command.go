package protocol

import "fmt"

// AddressKind discriminates the addressing scheme of a Command target.
type AddressKind uint8

const (
	// AddressNone is used on point-to-point links where the device needs no
	// explicit address (e.g. a Huber chiller on its own serial line).
	AddressNone AddressKind = iota

	// AddressChar is a single-letter daisy-chain address ('a'..'p' on a
	// Hamilton bus), assigned once at bus-probe time.
	AddressChar

	// AddressNumeric is a numeric device id rendered as ASCII digits
	// (Knauer autosampler style).
	AddressNumeric

	// AddressBroadcast targets every device on the chain. Broadcast commands
	// produce no reply.
	AddressBroadcast
)

// Address identifies a device on a shared physical channel. The zero value
// is the no-address form used on point-to-point links.
//
// An Address is stable for the life of the physical connection and must be
// re-derived after a bus power cycle.
type Address struct {
	Kind AddressKind
	Char byte // valid when Kind == AddressChar
	Num  int  // valid when Kind == AddressNumeric
}

// NoAddress returns the point-to-point address.
func NoAddress() Address { return Address{} }

// CharAddress returns a single-letter daisy-chain address.
func CharAddress(c byte) Address { return Address{Kind: AddressChar, Char: c} }

// NumericAddress returns a numeric device id address.
func NumericAddress(n int) Address { return Address{Kind: AddressNumeric, Num: n} }

// Broadcast returns the broadcast address.
func Broadcast() Address { return Address{Kind: AddressBroadcast} }

func (a Address) String() string {
	switch a.Kind {
	case AddressChar:
		return string(a.Char)
	case AddressNumeric:
		return fmt.Sprintf("%d", a.Num)
	case AddressBroadcast:
		return "broadcast"
	default:
		return "-"
	}
}

// Command is a semantic device request. It is immutable once built; drivers
// construct a fresh Command per wire request.
//
// Mnemonic, Value, Param and Argument are vendor vocabulary: the codec
// concatenates them per the vendor's framing rule. Execute distinguishes
// "run now" commands from commands that are merely queued in the device's
// command buffer (Hamilton protocol 1 'R' suffix).
type Command struct {
	Address  Address
	Mnemonic string
	Value    string
	Param    string
	Argument string
	Execute  bool
}

// WithAddress returns a copy of the command targeted at addr.
func (c Command) WithAddress(addr Address) Command {
	c.Address = addr
	return c
}

func (c Command) String() string {
	return fmt.Sprintf("%s%s@%s", c.Mnemonic, c.Value, c.Address)
}
