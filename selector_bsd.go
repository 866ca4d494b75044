//go:build darwin || freebsd || netbsd || openbsd || dragonfly

package ioworker

import (
	"time"

	"golang.org/x/sys/unix"
)

// kqueuePoller is the BSD-family poller implementation (darwin included),
// mirroring epollPoller's shape so worker.go stays platform-agnostic.
type kqueuePoller struct {
	kq     int
	events []unix.Kevent_t
}

func openPoller() (poller, error) {
	kq, err := unix.Kqueue()
	if err != nil {
		return nil, err
	}
	return &kqueuePoller{kq: kq, events: make([]unix.Kevent_t, maxPollerEvents)}, nil
}

func (p *kqueuePoller) register(fd int, filter int16, flags uint16) error {
	ev := unix.Kevent_t{
		Ident:  uint64(fd),
		Filter: filter,
		Flags:  flags,
	}
	_, err := unix.Kevent(p.kq, []unix.Kevent_t{ev}, nil, nil)
	return err
}

func (p *kqueuePoller) Watch(fd int) error {
	return p.register(fd, unix.EVFILT_READ, unix.EV_ADD|unix.EV_CLEAR)
}

func (p *kqueuePoller) SetInterest(fd int, read, write, connect bool) error {
	if read {
		if err := p.register(fd, unix.EVFILT_READ, unix.EV_ADD|unix.EV_CLEAR); err != nil {
			return err
		}
	} else {
		_ = p.register(fd, unix.EVFILT_READ, unix.EV_DELETE)
	}
	if write || connect {
		return p.register(fd, unix.EVFILT_WRITE, unix.EV_ADD|unix.EV_CLEAR)
	}
	_ = p.register(fd, unix.EVFILT_WRITE, unix.EV_DELETE)
	return nil
}

func (p *kqueuePoller) Remove(fd int) error {
	_ = p.register(fd, unix.EVFILT_READ, unix.EV_DELETE)
	_ = p.register(fd, unix.EVFILT_WRITE, unix.EV_DELETE)
	return nil
}

func (p *kqueuePoller) Wait(timeout time.Duration) ([]readinessEvent, error) {
	ts := unix.NsecToTimespec(timeout.Nanoseconds())
	n, err := unix.Kevent(p.kq, nil, p.events, &ts)
	if err == unix.EINTR {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	byFd := make(map[int]*readinessEvent, n)
	out := make([]readinessEvent, 0, n)
	get := func(fd int) *readinessEvent {
		if e, ok := byFd[fd]; ok {
			return e
		}
		out = append(out, readinessEvent{fd: fd})
		e := &out[len(out)-1]
		byFd[fd] = e
		return e
	}
	for i := 0; i < n; i++ {
		e := p.events[i]
		fd := int(e.Ident)
		switch e.Filter {
		case unix.EVFILT_READ:
			get(fd).readable = true
		case unix.EVFILT_WRITE:
			re := get(fd)
			re.writable = true
			re.connected = true
		}
	}
	return out, nil
}

func (p *kqueuePoller) Close() error {
	return unix.Close(p.kq)
}
