package ioworker

import "time"

// CancelFunc cancels a previously scheduled callback. Calling it after the
// callback has already fired is a no-op.
type CancelFunc func()

// Scheduler is the external collaborator Schedule commands are forwarded
// to. The Worker's own blocking select (bounded by select-timeout) makes it
// an unreliable self-timer, so scheduling is always delegated (spec.md
// §4.7); this package never implements a timer wheel itself.
type Scheduler interface {
	Schedule(delay time.Duration, fn func()) CancelFunc
}
