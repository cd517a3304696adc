package transport

import "context"

// ReadRule tells Exchange when a reply is complete.
//
// Exactly one of Terminator or Length should be set. A Terminator rule reads
// until the terminator sequence has been received (the terminator is included
// in the returned bytes); a Length rule reads exactly Length bytes.
type ReadRule struct {
	Terminator []byte
	Length     int
}

// UntilTerminator returns a rule that reads until seq has been received.
func UntilTerminator(seq ...byte) ReadRule {
	return ReadRule{Terminator: seq}
}

// FixedLength returns a rule that reads exactly n bytes.
func FixedLength(n int) ReadRule {
	return ReadRule{Length: n}
}

// valid reports whether the rule can terminate a read.
func (r ReadRule) valid() bool {
	return len(r.Terminator) > 0 || r.Length > 0
}

// Transport is one exclusive physical channel to a device or device chain.
//
// Implementations serialize Exchange and Send calls internally; callers on
// multiple goroutines never interleave bytes on the wire.
type Transport interface {
	// Open establishes the physical connection. Calling Open on an open
	// transport is a no-op.
	Open(ctx context.Context) error

	// Exchange writes req and reads one reply per rule. It fails with
	// protocol.ErrExchangeTimeout when the reply does not complete within
	// the configured exchange timeout, and with protocol.ErrConnection when
	// the channel is lost and a single reconnect attempt also fails.
	Exchange(ctx context.Context, req []byte, rule ReadRule) ([]byte, error)

	// Send writes req without reading a reply. Used for broadcast commands
	// that produce no response.
	Send(ctx context.Context, req []byte) error

	// Generation returns a counter incremented every time the physical
	// connection is (re)established. Device caches keyed on device state
	// (e.g. a valve position cache) compare generations to detect staleness
	// after a reconnect.
	Generation() uint64

	// Close releases the channel.
	Close() error
}
