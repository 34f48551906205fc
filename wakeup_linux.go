//go:build linux

package mdsession

import (
	"golang.org/x/sys/unix"
)

// createWakeFD creates an eventfd for wake-up notifications (Linux).
// The single eventfd serves as both the read and write end, matching
// eventloop's wakeup_linux.go.
func createWakeFD() (readFD, writeFD int, err error) {
	fd, err := unix.Eventfd(0, unix.EFD_CLOEXEC|unix.EFD_NONBLOCK)
	if err != nil {
		return -1, -1, err
	}
	return fd, fd, nil
}

// closeWakeFD closes the wake eventfd.
func closeWakeFD(readFD, writeFD int) error {
	if readFD >= 0 {
		return unix.Close(readFD)
	}
	return nil
}

// writeWakeByte writes the eventfd's 8-byte counter increment.
func writeWakeByte(writeFD int) error {
	var buf [8]byte
	buf[0] = 1
	_, err := unix.Write(writeFD, buf[:])
	return err
}

// readWakeByte drains the eventfd counter back to zero.
func readWakeByte(readFD int) error {
	var buf [8]byte
	_, err := unix.Read(readFD, buf[:])
	return err
}
