package hamilton

import (
	"context"

	"github.com/automatedchemistry/flowchem/engine"
	"github.com/automatedchemistry/flowchem/logger"
	"github.com/automatedchemistry/flowchem/protocol"
	"github.com/automatedchemistry/flowchem/transport"
)

// scriptTransport replays a fixed reply sequence and records everything
// written. An exhausted script answers like a silent device.
type scriptTransport struct {
	replies   []string
	exchanges int
	sent      []string
}

func (s *scriptTransport) Open(context.Context) error { return nil }
func (s *scriptTransport) Generation() uint64         { return 1 }
func (s *scriptTransport) Close() error               { return nil }

func (s *scriptTransport) Exchange(_ context.Context, req []byte, _ transport.ReadRule) ([]byte, error) {
	s.sent = append(s.sent, string(req))

	if s.exchanges >= len(s.replies) {
		return nil, protocol.ErrExchangeTimeout
	}

	reply := []byte(s.replies[s.exchanges])
	s.exchanges++

	return reply, nil
}

func (s *scriptTransport) Send(_ context.Context, req []byte) error {
	s.sent = append(s.sent, string(req))
	return nil
}

// ack and data build protocol 1 reply frames for scripts.
func ack() string { return string([]byte{ackByte, '\r'}) }

func data(payload string) string {
	return string([]byte{ackByte}) + payload + "\r"
}

// testPump wires an ML600 with a 5 ml syringe over a scripted transport.
func testPump(tr *scriptTransport) *ML600 {
	eng := engine.New(tr, Codec{}, transport.UntilTerminator(Terminator...))

	return newML600(eng, protocol.CharAddress('a'), NewSyringe(5), logger.GetLogger())
}
