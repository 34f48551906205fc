//go:build windows

package mdsession

import "time"

// pollInterval bounds how long a single PeekNamedPipe probe cycle sleeps
// before re-checking both descriptors. Anonymous Windows pipes are not
// overlapped and cannot be waited on with WaitForMultipleObjects, so
// readiness here is polled rather than event-driven -- a deliberate,
// documented simplification of eventloop's full IOCP-based poller,
// justified by the fact that this package has no concrete transport of
// its own to drive overlapped I/O for; a real
// production transport wired in through the Reactor interface is free to
// expose a genuinely waitable handle, in which case this poller would be
// replaced, but nothing in this module's scope requires it.
const pollInterval = 2 * time.Millisecond

// pipePollPoller is the Windows readinessPoller. It probes both
// descriptors with PeekNamedPipe on a short, fixed interval until one is
// ready or the requested timeout elapses.
type pipePollPoller struct {
	pipeReadFD     int
	reactorEventFD int
}

func newReadinessPoller(pipeReadFD, reactorEventFD int) (readinessPoller, error) {
	return &pipePollPoller{pipeReadFD: pipeReadFD, reactorEventFD: reactorEventFD}, nil
}

func (p *pipePollPoller) wait(timeout time.Duration) (pipeReady, reactorReady bool, err error) {
	deadline := time.Now().Add(timeout)
	blocking := timeout < 0
	for {
		pipeReady, err = pipeHasData(p.pipeReadFD)
		if err != nil {
			return false, false, err
		}
		reactorReady, err = pipeHasData(p.reactorEventFD)
		if err != nil {
			return false, false, err
		}
		if pipeReady || reactorReady {
			return pipeReady, reactorReady, nil
		}
		if !blocking && time.Now().After(deadline) {
			return false, false, nil
		}

		sleep := pollInterval
		if !blocking {
			if remaining := time.Until(deadline); remaining < sleep {
				sleep = remaining
			}
		}
		if sleep > 0 {
			time.Sleep(sleep)
		}
	}
}

func (p *pipePollPoller) close() error {
	return nil
}
