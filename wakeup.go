package mdsession

import "sync"

// wakeupPipe is the cross-thread wakeup primitive described by spec §4.2
// and the "Wakeup Pipe State" data model of §3.
//
// Grounded on eventloop's wakePipe/wakePipeWrite loop fields and the
// platform createWakeFD/closeWakeFD/readRaw/writeRaw primitives
// (wakeup_linux.go, wakeup_darwin.go, wakeup_windows.go), but promoted
// here into its own type holding an explicit write-count counter,
// matching spec §3's "(write_count: int, lock: Mutex)" state model.
//
// Invariant (P1): write_count >= 0; a byte is present in the underlying
// OS pipe iff write_count > 0; every non-zero->zero transition consumes
// exactly one byte. At most one byte is ever buffered, regardless of how
// many concurrent Notify calls race -- this coalescing is what prevents
// sustained user traffic from filling (and eventually blocking on) the
// pipe's kernel buffer.
type wakeupPipe struct {
	mu         sync.Mutex
	writeCount int

	readFD, writeFD int
}

// newWakeupPipe creates the platform pipe and wraps it.
func newWakeupPipe() (*wakeupPipe, error) {
	readFD, writeFD, err := createWakeFD()
	if err != nil {
		return nil, err
	}
	return &wakeupPipe{readFD: readFD, writeFD: writeFD}, nil
}

// Notify increments the write count under the pipe lock; if the counter
// transitioned from 0 to 1, exactly one byte is written to the pipe.
// Safe to call concurrently from any number of goroutines (spec §4.2).
func (p *wakeupPipe) Notify() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.writeCount++
	if p.writeCount == 1 {
		return writeWakeByte(p.writeFD)
	}
	return nil
}

// Drain decrements the write count under the pipe lock; if it reached
// zero, exactly one byte is read from the pipe. A Drain call with a
// write count already at zero is a no-op (idempotent, matching the
// dispatch loop's "if the pipe is readable, call pipe.drain()" step,
// which may race with a concurrent Notify that has not yet landed).
func (p *wakeupPipe) Drain() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.writeCount == 0 {
		return nil
	}
	p.writeCount--
	if p.writeCount == 0 {
		return readWakeByte(p.readFD)
	}
	return nil
}

// Pending reports whether a wakeup byte is currently outstanding. Exposed
// for tests verifying P1.
func (p *wakeupPipe) Pending() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.writeCount > 0
}

// ReadFD exposes the readable end for inclusion in the readiness set
// (spec §4.2 read_fd()).
func (p *wakeupPipe) ReadFD() int {
	return p.readFD
}

// Close releases the underlying platform pipe. Not safe to call
// concurrently with Notify/Drain.
func (p *wakeupPipe) Close() error {
	return closeWakeFD(p.readFD, p.writeFD)
}
