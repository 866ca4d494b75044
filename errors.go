package ioworker

import "errors"

var (
	// ErrAlreadyBound is returned by the item registry when binding an id that is already bound.
	ErrAlreadyBound = errors.New("ioworker: item already bound")
	// ErrNotBound is returned by the item registry when unbinding or replacing an unknown id.
	ErrNotBound = errors.New("ioworker: item not bound")
	// ErrNotClientHandler is returned when Connect is requested for an item lacking client capability.
	ErrNotClientHandler = errors.New("ioworker: item is not a client connection handler")
	// ErrWorkerClosed is returned when a command is submitted to a stopped Worker.
	ErrWorkerClosed = errors.New("ioworker: worker closed")
	// ErrUnknownServer is logged by the worker when UnregisterServer names an unregistered server.
	ErrUnknownServer = errors.New("ioworker: server not registered")
	// ErrInitFailed is returned when an Initializer factory returns a nil
	// Initializer without an error; a factory's own error is passed through unwrapped.
	ErrInitFailed = errors.New("ioworker: initializer construction failed")
	// ErrOutputOverflow is returned by Connection.Send when queuing data
	// would exceed the worker's configured output-buffer-size.
	ErrOutputOverflow = errors.New("ioworker: output buffer full")
	// ErrConnectionClosed is returned by operations against a Connection
	// that has already transitioned to Closed.
	ErrConnectionClosed = errors.New("ioworker: connection closed")
	// ErrUnsupportedConn is returned when a net.Conn does not expose
	// SyscallConn, so its fd cannot be duplicated for direct control.
	ErrUnsupportedConn = errors.New("ioworker: connection does not implement SyscallConn")
)
