package protocol

import "errors"

var (
	// ErrConnection indicates that the physical channel is unavailable: the
	// port or socket could not be opened, or the device did not answer the
	// initial handshake. Fatal, never retried.
	ErrConnection = errors.New("connection unavailable")

	// ErrExchangeTimeout indicates that a reply was not received within the
	// transport's exchange timeout.
	ErrExchangeTimeout = errors.New("exchange timeout")

	// ErrProtocol indicates that a reply violates the vendor's framing
	// invariants (wrong length, bad delimiters, unknown status byte).
	// It signals a real wire or firmware issue and is surfaced immediately.
	ErrProtocol = errors.New("malformed reply")

	// ErrCommandRejected indicates that the device understood the frame but
	// refused the command or value (NACK). Caller error, never retried.
	ErrCommandRejected = errors.New("command rejected by device")

	// ErrBusyTimeout indicates that the device kept signaling busy past the
	// engine's retry budget.
	ErrBusyTimeout = errors.New("device busy past retry budget")

	// ErrOutOfRange indicates a volume or rate outside the device's
	// documented range. Raised by local validation before any I/O.
	ErrOutOfRange = errors.New("value out of device range")

	// ErrInvalidPosition indicates a logical valve position outside the
	// valve's declared port count. Raised before any I/O.
	ErrInvalidPosition = errors.New("invalid valve position")

	// ErrInvalidCommand indicates a Command that the vendor codec cannot
	// express (missing address, unsupported mnemonic).
	ErrInvalidCommand = errors.New("invalid command")
)
