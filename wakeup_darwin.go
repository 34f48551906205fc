//go:build darwin

package mdsession

import (
	"syscall"
)

// createWakeFD creates a self-pipe for wake-up notifications (Darwin has
// no eventfd equivalent), grounded on eventloop's wakeup_darwin.go.
func createWakeFD() (readFD, writeFD int, err error) {
	var fds [2]int
	if err := syscall.Pipe(fds[:]); err != nil {
		return -1, -1, err
	}

	cleanup := func() {
		_ = syscall.Close(fds[0])
		_ = syscall.Close(fds[1])
	}

	syscall.CloseOnExec(fds[0])
	syscall.CloseOnExec(fds[1])

	if err := syscall.SetNonblock(fds[0], true); err != nil {
		cleanup()
		return -1, -1, err
	}
	if err := syscall.SetNonblock(fds[1], true); err != nil {
		cleanup()
		return -1, -1, err
	}

	return fds[0], fds[1], nil
}

// closeWakeFD closes both ends of the self-pipe.
func closeWakeFD(readFD, writeFD int) error {
	if readFD >= 0 {
		_ = syscall.Close(readFD)
	}
	if writeFD >= 0 && writeFD != readFD {
		_ = syscall.Close(writeFD)
	}
	return nil
}

// writeWakeByte writes a single byte to the pipe.
func writeWakeByte(writeFD int) error {
	_, err := syscall.Write(writeFD, []byte{1})
	return err
}

// readWakeByte reads (and discards) a single byte from the pipe.
func readWakeByte(readFD int) error {
	var buf [1]byte
	_, err := syscall.Read(readFD, buf[:])
	return err
}
