//go:build unix

package ioworker

import (
	"net"
	"syscall"

	"golang.org/x/sys/unix"
)

// dupSocketFD duplicates the file descriptor backing conn via its RawConn,
// the way the teacher's dupconn did with syscall.Dup — widened here to
// golang.org/x/sys/unix for parity with the selector implementations. The
// duplicate is set nonblocking so the Worker can drive it directly without
// Go's runtime netpoller getting involved.
func dupSocketFD(conn net.Conn) (int, error) {
	sc, ok := conn.(interface {
		SyscallConn() (syscall.RawConn, error)
	})
	if !ok {
		return -1, ErrUnsupportedConn
	}
	rc, err := sc.SyscallConn()
	if err != nil {
		return -1, err
	}
	var newfd int
	var dupErr error
	ctrlErr := rc.Control(func(fd uintptr) {
		newfd, dupErr = unix.Dup(int(fd))
	})
	if ctrlErr != nil {
		return -1, ctrlErr
	}
	if dupErr != nil {
		return -1, dupErr
	}
	if err := unix.SetNonblock(newfd, true); err != nil {
		unix.Close(newfd)
		return -1, err
	}
	return newfd, nil
}
