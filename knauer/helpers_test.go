package knauer

import (
	"context"

	"github.com/automatedchemistry/flowchem/protocol"
	"github.com/automatedchemistry/flowchem/transport"
)

// scriptTransport replays a fixed reply sequence and records everything
// written. An exhausted script answers like a silent device. generation is
// mutable so tests can simulate a reconnect.
type scriptTransport struct {
	replies    []string
	exchanges  int
	sent       []string
	generation uint64
}

func newScript(replies ...string) *scriptTransport {
	return &scriptTransport{replies: replies, generation: 1}
}

func (s *scriptTransport) Open(context.Context) error { return nil }
func (s *scriptTransport) Generation() uint64         { return s.generation }
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
