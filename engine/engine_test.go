package engine

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/automatedchemistry/flowchem/protocol"
	"github.com/automatedchemistry/flowchem/transport"
)

// scriptTransport replays a fixed reply sequence and records everything
// written. The last reply repeats when the script runs out.
type scriptTransport struct {
	replies   []string
	exchanges int
	sent      [][]byte
}

func (s *scriptTransport) Open(context.Context) error { return nil }
func (s *scriptTransport) Generation() uint64         { return 1 }
func (s *scriptTransport) Close() error               { return nil }

func (s *scriptTransport) Exchange(_ context.Context, req []byte, _ transport.ReadRule) ([]byte, error) {
	s.sent = append(s.sent, append([]byte(nil), req...))

	idx := s.exchanges
	if idx >= len(s.replies) {
		idx = len(s.replies) - 1
	}
	s.exchanges++

	return []byte(s.replies[idx]), nil
}

func (s *scriptTransport) Send(_ context.Context, req []byte) error {
	s.sent = append(s.sent, append([]byte(nil), req...))
	return nil
}

// lineCodec is a minimal test codec: the mnemonic is the frame, replies are
// classified by prefix.
type lineCodec struct{}

func (lineCodec) Encode(cmd protocol.Command) ([]byte, error) {
	if cmd.Mnemonic == "" {
		return nil, fmt.Errorf("%w: empty mnemonic", protocol.ErrInvalidCommand)
	}

	return []byte(cmd.Mnemonic + "\r"), nil
}

func (lineCodec) Decode(raw []byte) (protocol.Reply, error) {
	reply := protocol.Reply{Raw: raw}
	body := strings.TrimRight(string(raw), "\r")

	switch {
	case body == "ok":
		reply.Outcome = protocol.OutcomeACK
	case body == "busy":
		reply.Outcome = protocol.OutcomeBusy
	case strings.HasPrefix(body, "nack"):
		reply.Outcome = protocol.OutcomeNACK
		reply.Payload = strings.TrimPrefix(body, "nack:")
		if reply.Payload == "nack" {
			reply.Payload = ""
		}
	case strings.HasPrefix(body, "data:"):
		reply.Outcome = protocol.OutcomeData
		reply.Payload = strings.TrimPrefix(body, "data:")
	default:
		reply.Outcome = protocol.OutcomeMalformed
		return reply, fmt.Errorf("%w: %q", protocol.ErrProtocol, raw)
	}

	return reply, nil
}

func TestDoReturnsData(t *testing.T) {
	tr := &scriptTransport{replies: []string{"data:42\r"}}
	eng := New(tr, lineCodec{}, transport.UntilTerminator('\r'))

	reply, err := eng.Do(context.Background(), protocol.Command{Mnemonic: "Q"})
	require.NoError(t, err)

	assert.Equal(t, protocol.OutcomeData, reply.Outcome)
	assert.Equal(t, "42", reply.Payload)
	assert.Equal(t, 1, tr.exchanges)
	assert.Equal(t, []byte("Q\r"), tr.sent[0])
}

func TestDoNACKFailsWithoutRetry(t *testing.T) {
	tr := &scriptTransport{replies: []string{"nack:E1\r"}}
	eng := New(tr, lineCodec{}, transport.UntilTerminator('\r'))

	_, err := eng.Do(context.Background(), protocol.Command{Mnemonic: "V"})
	require.Error(t, err)

	assert.ErrorIs(t, err, protocol.ErrCommandRejected)
	assert.Contains(t, err.Error(), "E1")
	assert.Equal(t, 1, tr.exchanges, "rejected commands must not be retried")
}

func TestDoRetriesBusyUntilACK(t *testing.T) {
	tr := &scriptTransport{replies: []string{"busy\r", "busy\r", "ok\r"}}
	eng := New(tr, lineCodec{}, transport.UntilTerminator('\r'),
		WithBusyRetryInterval(time.Millisecond),
		WithBusyBudget(time.Second),
	)

	reply, err := eng.Do(context.Background(), protocol.Command{Mnemonic: "M"})
	require.NoError(t, err)

	assert.Equal(t, protocol.OutcomeACK, reply.Outcome)
	assert.Equal(t, 3, tr.exchanges)
}

func TestDoBusyBudgetExhausted(t *testing.T) {
	tr := &scriptTransport{replies: []string{"busy\r"}}
	eng := New(tr, lineCodec{}, transport.UntilTerminator('\r'),
		WithBusyRetryInterval(10*time.Millisecond),
		WithBusyBudget(35*time.Millisecond),
	)

	start := time.Now()
	_, err := eng.Do(context.Background(), protocol.Command{Mnemonic: "M"})
	require.Error(t, err)

	assert.ErrorIs(t, err, protocol.ErrBusyTimeout)
	assert.LessOrEqual(t, tr.exchanges, 5, "retries must stay within the budget")
	assert.Less(t, time.Since(start), 500*time.Millisecond)
}

func TestDoMalformedReply(t *testing.T) {
	tr := &scriptTransport{replies: []string{"garbage\r"}}
	eng := New(tr, lineCodec{}, transport.UntilTerminator('\r'))

	_, err := eng.Do(context.Background(), protocol.Command{Mnemonic: "Q"})
	require.Error(t, err)

	assert.ErrorIs(t, err, protocol.ErrProtocol)
	assert.Equal(t, 1, tr.exchanges)
}

func TestDoEncodeErrorBeforeIO(t *testing.T) {
	tr := &scriptTransport{replies: []string{"ok\r"}}
	eng := New(tr, lineCodec{}, transport.UntilTerminator('\r'))

	_, err := eng.Do(context.Background(), protocol.Command{})
	require.Error(t, err)

	assert.ErrorIs(t, err, protocol.ErrInvalidCommand)
	assert.Zero(t, tr.exchanges, "invalid commands must never reach the wire")
}

func TestDoContextCancelledDuringBusyWait(t *testing.T) {
	tr := &scriptTransport{replies: []string{"busy\r"}}
	eng := New(tr, lineCodec{}, transport.UntilTerminator('\r'),
		WithBusyRetryInterval(50*time.Millisecond),
		WithBusyBudget(10*time.Second),
	)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := eng.Do(ctx, protocol.Command{Mnemonic: "M"})
	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestSendWritesWithoutReply(t *testing.T) {
	tr := &scriptTransport{}
	eng := New(tr, lineCodec{}, transport.UntilTerminator('\r'))

	require.NoError(t, eng.Send(context.Background(), protocol.Command{Mnemonic: "X"}))

	assert.Zero(t, tr.exchanges)
	require.Len(t, tr.sent, 1)
	assert.Equal(t, []byte("X\r"), tr.sent[0])
}

func TestPoll(t *testing.T) {
	t.Run("condition becomes true", func(t *testing.T) {
		calls := 0

		err := Poll(context.Background(), time.Millisecond, time.Second, func(context.Context) (bool, error) {
			calls++
			return calls >= 3, nil
		})

		require.NoError(t, err)
		assert.Equal(t, 3, calls)
	})

	t.Run("timeout", func(t *testing.T) {
		err := Poll(context.Background(), 10*time.Millisecond, 30*time.Millisecond, func(context.Context) (bool, error) {
			return false, nil
		})

		require.Error(t, err)
		assert.ErrorIs(t, err, ErrPollTimeout)
	})

	t.Run("condition error aborts", func(t *testing.T) {
		wantErr := errors.New("probe failed")
		calls := 0

		err := Poll(context.Background(), time.Millisecond, time.Second, func(context.Context) (bool, error) {
			calls++
			return false, wantErr
		})

		assert.ErrorIs(t, err, wantErr)
		assert.Equal(t, 1, calls)
	})
}
