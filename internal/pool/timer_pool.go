// Package pool recycles timers for the bounded waits in the retry and
// polling loops. Busy retries fire every few milliseconds per device, so
// allocating a fresh timer per wait would churn the heap for nothing.
package pool

import (
	"sync"
	"time"
)

var timerPool sync.Pool

// GetTimer returns a timer armed with duration d. Hand it back with PutTimer
// once its channel has been consumed or the wait was abandoned.
func GetTimer(d time.Duration) *time.Timer {
	if v := timerPool.Get(); v != nil {
		t, _ := v.(*time.Timer) // only *time.Timer ever enters the pool
		if t.Reset(d) {
			// Timer was still active, drain the stale tick.
			select {
			case <-t.C:
			default:
			}
		}
		return t
	}
	return time.NewTimer(d)
}

// PutTimer stops t and returns it to the pool. t must not be used afterwards.
func PutTimer(t *time.Timer) {
	if !t.Stop() {
		// Drain t.C if the caller never received the tick.
		select {
		case <-t.C:
		default:
		}
	}
	timerPool.Put(t)
}
