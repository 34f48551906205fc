package mdsession

import (
	"sync"
	"testing"
	"time"
)

// TestLockOrderPipeAndTimerNeverBlockOnUserLock is a stress exercise of
// P4: the Pipe Lock and Timer Lock are leaf locks that never call back
// into Session code, so hammering them concurrently with a goroutine
// that holds a stand-in "User Lock" for an extended period must never
// deadlock or even measurably slow down -- wakeupPipe.Notify/Drain and
// timerWheel.schedule/cancel/executeDue are structurally incapable of
// trying to acquire it.
func TestLockOrderPipeAndTimerNeverBlockOnUserLock(t *testing.T) {
	pipe, err := newWakeupPipe()
	if err != nil {
		t.Fatalf("newWakeupPipe: %v", err)
	}
	defer pipe.Close()

	timers := newTimerWheel()

	var userLock sync.Mutex
	userLock.Lock()
	defer userLock.Unlock()

	done := make(chan struct{})
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				select {
				case <-done:
					return
				default:
				}
				_ = pipe.Notify()
				_ = pipe.Drain()
				h := timers.schedule(time.Hour, func() {})
				timers.cancel(h)
			}
		}()
	}

	// Give the goroutines a window to run while the stand-in User Lock
	// is held by this goroutine -- if Pipe/Timer locks ever tried to
	// acquire it, this whole test would hang past its own return.
	time.Sleep(20 * time.Millisecond)
	close(done)
	wg.Wait()
}
