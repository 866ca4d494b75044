package ioworker

import "time"

// readinessEvent is a single fd's readiness report from one poll iteration.
// Grouping events into a batch (rather than one channel send per fd) is what
// lets a single Worker tick amortize the cost of many tiny ready sockets.
type readinessEvent struct {
	fd         int
	readable   bool
	writable   bool
	connected  bool // OP_CONNECT completion (client sockets only)
	invalidKey bool // the fd was unregistered by the OS out from under us
}

// poller is the thin wrapper around the OS readiness primitive (epoll on
// Linux, kqueue on the BSD family). It never blocks longer than the timeout
// passed to Wait, and it is exclusively driven from the owning Worker's
// goroutine.
type poller interface {
	// Watch begins monitoring fd for read readiness. Every watched fd starts
	// interested in reads only; writes are armed via SetInterest.
	Watch(fd int) error
	// SetInterest updates which readiness classes fd is monitored for.
	SetInterest(fd int, read, write, connect bool) error
	// Remove stops monitoring fd. It is not an error to remove an fd the OS
	// has already silently dropped (e.g. after close(2) elsewhere).
	Remove(fd int) error
	// Wait blocks up to timeout and returns the events ready since the last
	// call. A zero-length, nil-error result means the timeout elapsed.
	Wait(timeout time.Duration) ([]readinessEvent, error)
	// Close releases the underlying OS resource.
	Close() error
}

// maxPollerEvents bounds how many events a single Wait() call returns, to
// keep per-tick processing latency predictable under a connection storm.
const maxPollerEvents = 1024
