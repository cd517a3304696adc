// Package transport owns one physical channel per device: a serial port or a
// TCP socket.
//
// A Transport exposes a single operation, Exchange, which writes a request
// and reads the reply according to a ReadRule (read until a terminator
// sequence, or read a fixed number of bytes). Exchanges are serialized by an
// internal exclusive lock so that two requests are never interleaved on one
// wire, which also makes it safe to multiplex several logical devices
// (a Hamilton daisy chain) over one Transport.
//
// Connection loss during an exchange triggers exactly one reconnect attempt;
// if that also fails the exchange surfaces protocol.ErrConnection and the
// caller must re-open explicitly. Reply timeouts surface
// protocol.ErrExchangeTimeout and do not consume the reconnect attempt.
package transport
