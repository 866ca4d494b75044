package ioworker

import "time"

// WorkerReady is emitted once, to the configured Notify sink, when a
// Worker's event loop goroutine has started.
type WorkerReady struct {
	Worker *Worker
}

// ServerRegistered acknowledges a successful RegisterServer call.
type ServerRegistered struct {
	Server any
}

// RegistrationFailed acknowledges a failed RegisterServer call.
type RegistrationFailed struct {
	Server any
	Err    error
}

// IdleCheckExecuted is emitted after every periodic idle sweep. No command
// triggers a sweep on demand.
type IdleCheckExecuted struct {
	Worker   WorkerID
	Checked  int
	TimedOut int
	At       time.Time
}

// ConnectionSummary replies to a summary request with a point-in-time
// snapshot of every active connection.
type ConnectionSummary struct {
	Worker      WorkerID
	Connections []ConnectionSnapshot
}
