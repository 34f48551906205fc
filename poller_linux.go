//go:build linux

package mdsession

import (
	"time"

	"golang.org/x/sys/unix"
)

// epollPoller is the Linux readinessPoller, grounded on eventloop's
// FastPoller (poller_linux.go) with the registration machinery dropped:
// the two descriptors are registered once, at construction, and never
// change for the life of a Session.
type epollPoller struct {
	epfd           int
	pipeReadFD     int
	reactorEventFD int
	eventBuf       [2]unix.EpollEvent
}

func newReadinessPoller(pipeReadFD, reactorEventFD int) (readinessPoller, error) {
	epfd, err := unix.EpollCreate1(unix.EPOLL_CLOEXEC)
	if err != nil {
		return nil, err
	}
	p := &epollPoller{epfd: epfd, pipeReadFD: pipeReadFD, reactorEventFD: reactorEventFD}
	for _, fd := range [2]int{pipeReadFD, reactorEventFD} {
		ev := &unix.EpollEvent{Events: unix.EPOLLIN, Fd: int32(fd)}
		if err := unix.EpollCtl(epfd, unix.EPOLL_CTL_ADD, fd, ev); err != nil {
			_ = unix.Close(epfd)
			return nil, err
		}
	}
	return p, nil
}

func (p *epollPoller) wait(timeout time.Duration) (pipeReady, reactorReady bool, err error) {
	timeoutMs := millisTimeout(timeout)
	for {
		n, err := unix.EpollWait(p.epfd, p.eventBuf[:], timeoutMs)
		if err != nil {
			if err == unix.EINTR {
				continue
			}
			return false, false, err
		}
		for i := 0; i < n; i++ {
			switch int(p.eventBuf[i].Fd) {
			case p.pipeReadFD:
				pipeReady = true
			case p.reactorEventFD:
				reactorReady = true
			}
		}
		return pipeReady, reactorReady, nil
	}
}

func (p *epollPoller) close() error {
	return unix.Close(p.epfd)
}
