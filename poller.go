// Package mdsession's readiness multiplexer is deliberately narrow: the
// dispatch loop (dispatch.go) only ever needs to know whether exactly two
// descriptors are readable -- the wakeup pipe's read end (wakeup.go) and
// the reactor's event descriptor (reactor.go's Reactor.EventFD) -- so the
// poller does not expose general FD registration the way a reusable
// event-loop library would. It is grounded on eventloop's FastPoller
// (poller_linux.go/poller_darwin.go/poller_windows.go), with the
// registration API, version counters and direct-indexed fd arrays
// trimmed away since there are never more than two descriptors to track.
package mdsession

import (
	"math"
	"time"
)

// readinessPoller blocks until one or both of its two registered
// descriptors are readable, or the timeout elapses. Implementations live
// in poller_linux.go, poller_darwin.go and poller_windows.go.
type readinessPoller interface {
	// wait blocks for at most timeout (a negative timeout blocks
	// indefinitely) and reports which of the two descriptors were
	// observed readable. Interrupted waits are retried internally and
	// never surface as an error (spec §4.4).
	wait(timeout time.Duration) (pipeReady, reactorReady bool, err error)
	close() error
}

// millisTimeout converts a wait duration into the integer millisecond
// value the underlying syscalls expect, rounding a partial millisecond up
// rather than down -- a deadline of 200us must not collapse to an
// immediate, busy-looping return. Grounded on loop.go's calculateTimeout
// ceiling-rounding.
func millisTimeout(d time.Duration) int {
	if d < 0 {
		return -1
	}
	if d == 0 {
		return 0
	}
	ms := d.Milliseconds()
	if d%time.Millisecond != 0 {
		ms++
	}
	if ms > math.MaxInt32 {
		ms = math.MaxInt32
	}
	return int(ms)
}
