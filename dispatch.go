package mdsession

import (
	"context"
	"time"
)

// maxReactorMessagesPerDispatch bounds a single reactor dispatch call
// within one dispatch-loop iteration (spec §4.4's "bounded inner loop").
// Grounded on the reactor dispatch call's own max_messages parameter
// (§6.2); 10 matches the scenario-6 stub's dispatch-call counting and
// keeps one iteration from starving the timer/pipe checks that follow
// it under sustained reactor traffic.
const maxReactorMessagesPerDispatch = 10

// dispatchOutcome reports why one dispatchOnce call returned, for the
// caller (Session.Dispatch / the internal dispatch goroutine) to decide
// whether to loop again.
type dispatchOutcome struct {
	// Err is set on a fatal reactor dispatch failure (scenario 6); the
	// loop must stop.
	Err error
	// AtExit is true if the at-exit latch was observed set at an
	// iteration boundary.
	AtExit bool
}

// runDispatchOnce executes exactly one iteration of the dispatch loop
// (spec §4.4): readiness-wait bounded by the timer wheel's next
// deadline, pipe drain, bounded reactor dispatch, then run due timers.
//
// Grounded on eventloop/loop.go's calculateTimeout/runTimers poll
// cycle, generalized from "one task queue" to a three-stage
// pipe -> reactor -> timer sequence. Takes its collaborators as
// parameters rather than a *Session receiver so it can be driven
// directly by dispatch_test.go's deterministic fakes without
// constructing a full Session.
func runDispatchOnce(ctx context.Context, poller readinessPoller, pipe *wakeupPipe, reactor Reactor, timers *timerWheel, atExit func() bool) dispatchOutcome {
	if atExit != nil && atExit() {
		return dispatchOutcome{AtExit: true}
	}

	timeout := time.Duration(-1)
	if deadline, ok := timers.nextDeadline(); ok {
		if d := time.Until(deadline); d > 0 {
			timeout = d
		} else {
			timeout = 0
		}
	}

	pipeReady, reactorReady, err := poller.wait(timeout)
	if err != nil {
		return dispatchOutcome{Err: err}
	}

	if pipeReady {
		if err := pipe.Drain(); err != nil {
			return dispatchOutcome{Err: err}
		}
	}

	// Step 4: the reactor fd being readable or the pipe having just been
	// drained both independently justify invoking the reactor's dispatch
	// -- a pipe-only wakeup (e.g. a user thread enqueuing a submit) must
	// still drive any reactor work that was already pending. Repeat while
	// more work is pending, no message has yet been dispatched to the
	// user, and the bounded loop counter (10) hasn't been reached.
	if reactorReady || pipeReady {
		for attempt := 0; attempt < maxReactorMessagesPerDispatch; attempt++ {
			result := reactor.Dispatch(ctx, ReactorDispatchOptions{MaxMessages: maxReactorMessagesPerDispatch})
			if result.Err != nil {
				return dispatchOutcome{Err: result.Err}
			}
			if result.Dispatched > 0 {
				break
			}
			if result.Done || !result.MorePending {
				break
			}
		}
	}

	timers.executeDue(time.Now())

	return dispatchOutcome{}
}
