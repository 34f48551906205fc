package mdsession

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestRunDispatchOnceDrainsPipeAndRunsTimers(t *testing.T) {
	pipe, err := newWakeupPipe()
	if err != nil {
		t.Fatalf("newWakeupPipe: %v", err)
	}
	defer pipe.Close()
	if err := pipe.Notify(); err != nil {
		t.Fatalf("Notify: %v", err)
	}

	timers := newTimerWheel()
	fired := false
	timers.schedule(0, func() { fired = true })

	reactor := newFakeReactor(0)
	poller := newFakePoller(fakePollerResult{pipeReady: true})

	time.Sleep(time.Millisecond) // ensure the zero-delay timer is due

	outcome := runDispatchOnce(context.Background(), poller, pipe, reactor, timers, func() bool { return false })
	if outcome.Err != nil {
		t.Fatalf("unexpected error: %v", outcome.Err)
	}
	if pipe.Pending() {
		t.Fatal("want pipe drained")
	}
	if !fired {
		t.Fatal("want due timer to have fired")
	}
}

func TestRunDispatchOnceReturnsAtExitImmediately(t *testing.T) {
	timers := newTimerWheel()
	outcome := runDispatchOnce(context.Background(), newFakePoller(), nil, nil, timers, func() bool { return true })
	if !outcome.AtExit {
		t.Fatal("want AtExit true")
	}
}

// TestRunDispatchOnceStopsAfterFirstDispatchedMessage proves step 4's
// "repeat ... while a message has not yet been dispatched to the user"
// stop condition: once a single bounded Dispatch call delivers anything,
// one runDispatchOnce call must not keep calling Dispatch to drain the
// rest. 25 enqueued messages at maxReactorMessagesPerDispatch (10) per
// call therefore take three separate runDispatchOnce calls, each
// performing exactly one Dispatch call.
func TestRunDispatchOnceStopsAfterFirstDispatchedMessage(t *testing.T) {
	timers := newTimerWheel()
	reactor := newFakeReactor(0)
	calls := 0
	for i := 0; i < 25; i++ {
		reactor.enqueue(func() { calls++ })
	}
	poller := newFakePoller(
		fakePollerResult{reactorReady: true},
		fakePollerResult{reactorReady: true},
		fakePollerResult{reactorReady: true},
	)

	for i := 0; i < 3; i++ {
		outcome := runDispatchOnce(context.Background(), poller, &wakeupPipe{}, reactor, timers, func() bool { return false })
		if outcome.Err != nil {
			t.Fatalf("call %d: unexpected error: %v", i, outcome.Err)
		}
	}

	if calls != 25 {
		t.Fatalf("calls = %d, want 25", calls)
	}
	if got := reactor.dispatchCalls.Load(); got != 3 {
		t.Fatalf("dispatchCalls = %d, want exactly 3 (one per runDispatchOnce call)", got)
	}
}

// TestRunDispatchOnceBoundsRetryWhenNothingDispatched exercises the
// other half of step 4's rule: when the reactor keeps reporting more
// work pending but never actually dispatches a message, the inner retry
// must still stop once the bounded loop counter (10) is reached, rather
// than spinning forever.
func TestRunDispatchOnceBoundsRetryWhenNothingDispatched(t *testing.T) {
	timers := newTimerWheel()
	reactor := newFakeReactor(0)
	reactor.forcedDispatchResult = &ReactorDispatchResult{MorePending: true}
	poller := newFakePoller(fakePollerResult{reactorReady: true})

	outcome := runDispatchOnce(context.Background(), poller, &wakeupPipe{}, reactor, timers, func() bool { return false })
	if outcome.Err != nil {
		t.Fatalf("unexpected error: %v", outcome.Err)
	}
	if got := reactor.dispatchCalls.Load(); got != maxReactorMessagesPerDispatch {
		t.Fatalf("dispatchCalls = %d, want exactly %d (bounded retry exhausted)", got, maxReactorMessagesPerDispatch)
	}
}

// TestRunDispatchOncePipeOnlyWakeupStillDrivesReactor proves the other
// half of step 4's gating rule: a pipe-only wakeup, with the reactor fd
// not reported readable at all, must still invoke a pending reactor
// dispatch.
func TestRunDispatchOncePipeOnlyWakeupStillDrivesReactor(t *testing.T) {
	pipe, err := newWakeupPipe()
	if err != nil {
		t.Fatalf("newWakeupPipe: %v", err)
	}
	defer pipe.Close()
	if err := pipe.Notify(); err != nil {
		t.Fatalf("Notify: %v", err)
	}

	timers := newTimerWheel()
	reactor := newFakeReactor(0)
	dispatched := false
	reactor.enqueue(func() { dispatched = true })
	poller := newFakePoller(fakePollerResult{pipeReady: true, reactorReady: false})

	outcome := runDispatchOnce(context.Background(), poller, pipe, reactor, timers, func() bool { return false })
	if outcome.Err != nil {
		t.Fatalf("unexpected error: %v", outcome.Err)
	}
	if !dispatched {
		t.Fatal("want a pipe-only wakeup to still drive the pending reactor dispatch")
	}
}

func TestRunDispatchOnceSurfacesReactorError(t *testing.T) {
	timers := newTimerWheel()
	reactor := newFakeReactor(0)
	reactor.dispatchErr = errors.New("boom")
	poller := newFakePoller(fakePollerResult{reactorReady: true})

	outcome := runDispatchOnce(context.Background(), poller, &wakeupPipe{}, reactor, timers, func() bool { return false })
	if outcome.Err == nil {
		t.Fatal("want dispatch error surfaced")
	}
}

func TestRunDispatchOnceSurfacesPollerError(t *testing.T) {
	timers := newTimerWheel()
	poller := newFakePoller(fakePollerResult{err: errors.New("epoll died")})
	outcome := runDispatchOnce(context.Background(), poller, &wakeupPipe{}, newFakeReactor(0), timers, func() bool { return false })
	if outcome.Err == nil {
		t.Fatal("want poller error surfaced")
	}
}
