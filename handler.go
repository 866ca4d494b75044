package ioworker

import "time"

// Handler is the user-supplied per-connection behavior. Every Connection
// holds exactly one Handler; Handler methods are only ever called from the
// owning Worker's goroutine. Handler embeds WorkerItem: its ID() is the item
// id under which it is bound in the item registry, and must be preserved
// across a SwapHandler (spec.md §4.6, invariant 5).
type Handler interface {
	WorkerItem

	// OnBytes is called with a view of bytes read from the socket. The slice
	// is only valid for the duration of the call; handlers must copy
	// anything they need to retain.
	OnBytes(data []byte)
	// OnConnected is called once the connection reaches the Open state.
	OnConnected(conn *Connection)
	// OnDisconnected is called exactly once, when the connection closes.
	OnDisconnected(cause DisconnectCause)
	// OnWritable is handed the shared output buffer to fill with bytes to
	// flush. It returns the number of bytes written into out.
	OnWritable(out []byte) int
}

// IdleCheckHandler is an optional Handler capability: periodic idle sweeps
// invoke OnIdleCheck in addition to the Connection's own timeout test.
type IdleCheckHandler interface {
	OnIdleCheck(period time.Duration)
}

// ShutdownRequestHandler is an optional Handler capability invoked by
// ServerShutdownRequest; the handler decides when (or whether) to close.
type ShutdownRequestHandler interface {
	ShutdownRequest()
}

// WatchedHandler is an optional Handler capability: the handler exposes an
// external liveness token whose death forces the connection closed with
// CauseDisconnect.
type WatchedHandler interface {
	// LivenessDone returns a channel that is closed when this handler's
	// external liveness token has died.
	LivenessDone() <-chan struct{}
}

// ManualUnbindHandler is an optional Handler capability: on error-class
// disconnects (DisconnectCause.IsError()) for a client connection, the item
// remains bound instead of being unbound, so the caller can reconnect it.
type ManualUnbindHandler interface {
	ManualUnbind() bool
}

// ClientConnectionHandler is an optional Handler capability required of any
// item targeted by a WorkerCommand Connect.
type ClientConnectionHandler interface {
	IsClientHandler() bool
}
