//go:build linux

package ioworker

import (
	"time"

	"golang.org/x/sys/unix"
)

// epollPoller is the Linux poller implementation, grounded on the teacher's
// openPoll()/pfd.Watch()/pfd.Wait() shape but built directly on
// golang.org/x/sys/unix rather than raw syscall numbers, for portability
// across the kernel ABI surface x/sys already normalizes.
type epollPoller struct {
	epfd   int
	events []unix.EpollEvent
}

func openPoller() (poller, error) {
	fd, err := unix.EpollCreate1(unix.EPOLL_CLOEXEC)
	if err != nil {
		return nil, err
	}
	return &epollPoller{epfd: fd, events: make([]unix.EpollEvent, maxPollerEvents)}, nil
}

func (p *epollPoller) Watch(fd int) error {
	ev := unix.EpollEvent{Events: unix.EPOLLIN, Fd: int32(fd)}
	return unix.EpollCtl(p.epfd, unix.EPOLL_CTL_ADD, fd, &ev)
}

func (p *epollPoller) SetInterest(fd int, read, write, connect bool) error {
	var mask uint32
	if read {
		mask |= unix.EPOLLIN
	}
	if write || connect {
		mask |= unix.EPOLLOUT
	}
	ev := unix.EpollEvent{Events: mask, Fd: int32(fd)}
	return unix.EpollCtl(p.epfd, unix.EPOLL_CTL_MOD, fd, &ev)
}

func (p *epollPoller) Remove(fd int) error {
	// Linux ignores the event pointer on EPOLL_CTL_DEL, but some older
	// kernels require a non-nil one; pass a scratch value for safety.
	err := unix.EpollCtl(p.epfd, unix.EPOLL_CTL_DEL, fd, &unix.EpollEvent{})
	if err == unix.ENOENT || err == unix.EBADF {
		return nil
	}
	return err
}

func (p *epollPoller) Wait(timeout time.Duration) ([]readinessEvent, error) {
	ms := int(timeout / time.Millisecond)
	if ms <= 0 && timeout > 0 {
		ms = 1
	}
	n, err := unix.EpollWait(p.epfd, p.events, ms)
	if err == unix.EINTR {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	out := make([]readinessEvent, 0, n)
	for i := 0; i < n; i++ {
		e := p.events[i]
		out = append(out, readinessEvent{
			fd:        int(e.Fd),
			readable:  e.Events&(unix.EPOLLIN|unix.EPOLLHUP|unix.EPOLLERR) != 0,
			writable:  e.Events&unix.EPOLLOUT != 0,
			connected: e.Events&unix.EPOLLOUT != 0,
		})
	}
	return out, nil
}

func (p *epollPoller) Close() error {
	return unix.Close(p.epfd)
}
