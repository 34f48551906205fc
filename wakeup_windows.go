//go:build windows

package mdsession

import (
	"golang.org/x/sys/windows"
)

// createWakeFD creates an anonymous Windows pipe for wake-up
// notifications. Unlike Linux/Darwin, the two ends are genuinely
// distinct handles, so the wakeupPipe type's readFD/writeFD fields carry
// uintptr-compatible handle values stuffed into an int (safe on both
// 32- and 64-bit Windows since handles are small kernel object indices
// in practice, and this package never arithmetic's on them).
func createWakeFD() (readFD, writeFD int, err error) {
	var r, w windows.Handle
	if err := windows.CreatePipe(&r, &w, nil, 0); err != nil {
		return -1, -1, err
	}
	return int(r), int(w), nil
}

// closeWakeFD closes both pipe handles.
func closeWakeFD(readFD, writeFD int) error {
	if readFD >= 0 {
		_ = windows.CloseHandle(windows.Handle(readFD))
	}
	if writeFD >= 0 && writeFD != readFD {
		_ = windows.CloseHandle(windows.Handle(writeFD))
	}
	return nil
}

// writeWakeByte writes a single byte to the pipe's write handle.
func writeWakeByte(writeFD int) error {
	var written uint32
	buf := [1]byte{1}
	return windows.WriteFile(windows.Handle(writeFD), buf[:], &written, nil)
}

// readWakeByte reads (and discards) a single byte from the pipe's read
// handle.
func readWakeByte(readFD int) error {
	var read uint32
	var buf [1]byte
	return windows.ReadFile(windows.Handle(readFD), buf[:], &read, nil)
}

// pipeHasData reports whether the pipe's read handle currently has
// buffered, unread data, using PeekNamedPipe -- Windows anonymous pipes
// don't support overlapped I/O, so readiness is polled rather than
// event-driven (see poller_windows.go).
func pipeHasData(readFD int) (bool, error) {
	var avail uint32
	if err := windows.PeekNamedPipe(windows.Handle(readFD), nil, 0, nil, &avail, nil); err != nil {
		return false, err
	}
	return avail > 0, nil
}
