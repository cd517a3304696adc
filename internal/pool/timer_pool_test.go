package pool

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGetTimerFires(t *testing.T) {
	timer := GetTimer(10 * time.Millisecond)
	require.NotNil(t, timer)

	select {
	case <-timer.C:
	case <-time.After(time.Second):
		t.Fatal("timer never fired")
	}

	PutTimer(timer)
}

func TestReusedTimerIsRearmed(t *testing.T) {
	// Return an expired timer, then get one again; whatever the pool hands
	// back must fire after the full new duration.
	first := GetTimer(time.Millisecond)
	<-first.C
	PutTimer(first)

	begin := time.Now()
	second := GetTimer(100 * time.Millisecond)
	<-second.C
	assert.GreaterOrEqual(t, time.Since(begin), 90*time.Millisecond)

	PutTimer(second)
}

func TestPutTimerDrainsActiveTimer(t *testing.T) {
	// An active timer put back must not deliver its stale tick to the next
	// borrower.
	active := GetTimer(20 * time.Millisecond)
	time.Sleep(30 * time.Millisecond)
	PutTimer(active)

	next := GetTimer(200 * time.Millisecond)
	select {
	case <-next.C:
		t.Fatal("received a stale tick from the previous borrower")
	case <-time.After(50 * time.Millisecond):
	}

	PutTimer(next)
}

func TestTimerPoolConcurrentBorrowers(t *testing.T) {
	var wg sync.WaitGroup
	for i := 0; i < 100; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()

			timer := GetTimer(5 * time.Millisecond)
			<-timer.C
			PutTimer(timer)
		}()
	}
	wg.Wait()
}
