//go:build darwin

package mdsession

import (
	"time"

	"golang.org/x/sys/unix"
)

// kqueuePoller is the Darwin readinessPoller, grounded on eventloop's
// FastPoller (poller_darwin.go) with the registration machinery dropped:
// the two descriptors are registered once, at construction, and never
// change for the life of a Session.
type kqueuePoller struct {
	kq             int
	pipeReadFD     int
	reactorEventFD int
	eventBuf       [2]unix.Kevent_t
}

func newReadinessPoller(pipeReadFD, reactorEventFD int) (readinessPoller, error) {
	kq, err := unix.Kqueue()
	if err != nil {
		return nil, err
	}
	unix.CloseOnExec(kq)

	changes := make([]unix.Kevent_t, 0, 2)
	for _, fd := range [2]int{pipeReadFD, reactorEventFD} {
		changes = append(changes, unix.Kevent_t{
			Ident:  uint64(fd),
			Filter: unix.EVFILT_READ,
			Flags:  unix.EV_ADD | unix.EV_ENABLE,
		})
	}
	if _, err := unix.Kevent(kq, changes, nil, nil); err != nil {
		_ = unix.Close(kq)
		return nil, err
	}

	return &kqueuePoller{kq: kq, pipeReadFD: pipeReadFD, reactorEventFD: reactorEventFD}, nil
}

func (p *kqueuePoller) wait(timeout time.Duration) (pipeReady, reactorReady bool, err error) {
	timeoutMs := millisTimeout(timeout)
	var ts *unix.Timespec
	if timeoutMs >= 0 {
		ts = &unix.Timespec{
			Sec:  int64(timeoutMs / 1000),
			Nsec: int64((timeoutMs % 1000) * 1000000),
		}
	}
	for {
		n, err := unix.Kevent(p.kq, nil, p.eventBuf[:], ts)
		if err != nil {
			if err == unix.EINTR {
				continue
			}
			return false, false, err
		}
		for i := 0; i < n; i++ {
			switch int(p.eventBuf[i].Ident) {
			case p.pipeReadFD:
				pipeReady = true
			case p.reactorEventFD:
				reactorReady = true
			}
		}
		return pipeReady, reactorReady, nil
	}
}

func (p *kqueuePoller) close() error {
	return unix.Close(p.kq)
}
