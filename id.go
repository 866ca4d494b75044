package ioworker

import "sync/atomic"

// IDGenerator mints process-unique, monotonically increasing item ids. It is
// owned by the parent I/O system, never by a Worker — a Worker only ever
// consumes ids handed to it (see Context).
type IDGenerator struct {
	next int64
}

// NewIDGenerator returns a generator whose first Next() call yields 1.
func NewIDGenerator() *IDGenerator {
	return &IDGenerator{}
}

// Next returns the next process-unique id.
func (g *IDGenerator) Next() int64 {
	return atomic.AddInt64(&g.next, 1)
}

// WorkerID is a small integer unique within the parent I/O system.
type WorkerID int
