//go:build unix

package ioworker

import (
	"net"
	"time"

	"golang.org/x/sys/unix"
)

// dialResult is the outcome of beginDial: either a pending nonblocking
// connect (EINPROGRESS) or one that completed immediately, which happens on
// some platforms for loopback addresses (spec.md §4.5).
type dialResult struct {
	fd        int
	conn      net.Conn
	immediate bool
}

// beginDial opens a nonblocking TCP socket and starts connecting to addr.
// Address resolution itself uses net.ResolveTCPAddr, a bounded local lookup
// for literal host:port pairs; it is not the unbounded suspension point
// spec.md §5 reserves for the selector poll.
func beginDial(addr string) (dialResult, error) {
	raddr, err := net.ResolveTCPAddr("tcp", addr)
	if err != nil {
		return dialResult{}, err
	}

	domain := unix.AF_INET
	var sa unix.Sockaddr
	if ip4 := raddr.IP.To4(); ip4 != nil {
		var a [4]byte
		copy(a[:], ip4)
		sa = &unix.SockaddrInet4{Port: raddr.Port, Addr: a}
	} else {
		domain = unix.AF_INET6
		var a [16]byte
		copy(a[:], raddr.IP.To16())
		sa = &unix.SockaddrInet6{Port: raddr.Port, Addr: a}
	}

	fd, err := unix.Socket(domain, unix.SOCK_STREAM, unix.IPPROTO_TCP)
	if err != nil {
		return dialResult{}, err
	}
	if err := unix.SetNonblock(fd, true); err != nil {
		unix.Close(fd)
		return dialResult{}, err
	}

	err = unix.Connect(fd, sa)
	conn := newFdConn(fd, nil, raddr)
	switch err {
	case nil:
		return dialResult{fd: fd, conn: conn, immediate: true}, nil
	case unix.EINPROGRESS:
		return dialResult{fd: fd, conn: conn, immediate: false}, nil
	default:
		unix.Close(fd)
		return dialResult{}, err
	}
}

// connectError reads SO_ERROR off fd to determine whether a pending
// nonblocking connect succeeded or failed.
func connectError(fd int) error {
	errno, err := unix.GetsockoptInt(fd, unix.SOL_SOCKET, unix.SO_ERROR)
	if err != nil {
		return err
	}
	if errno != 0 {
		return unix.Errno(errno)
	}
	return nil
}

// fdConn is a minimal net.Conn wrapper around a raw, Worker-owned fd. The
// Worker itself reads/writes the fd directly via golang.org/x/sys/unix;
// this type exists so Connection can still report addresses and be closed
// through the ordinary net.Conn surface the rest of the package expects.
type fdConn struct {
	fd    int
	local net.Addr
	remote net.Addr
}

func newFdConn(fd int, local, remote net.Addr) *fdConn {
	return &fdConn{fd: fd, local: local, remote: remote}
}

func (c *fdConn) Read(b []byte) (int, error)  { return unix.Read(c.fd, b) }
func (c *fdConn) Write(b []byte) (int, error) { return unix.Write(c.fd, b) }
func (c *fdConn) Close() error                { return unix.Close(c.fd) }
func (c *fdConn) LocalAddr() net.Addr         { return c.local }
func (c *fdConn) RemoteAddr() net.Addr        { return c.remote }
func (c *fdConn) SetDeadline(time.Time) error      { return nil }
func (c *fdConn) SetReadDeadline(time.Time) error  { return nil }
func (c *fdConn) SetWriteDeadline(time.Time) error { return nil }
