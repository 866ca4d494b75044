package ioworker

import "time"

// WorkerItem is anything bound to a Worker by id. A Connection is the
// built-in variant; callers may bind other items (e.g. pure message sinks)
// that never touch a socket.
type WorkerItem interface {
	ID() int64
}

// ItemMessageReceiver is the optional WorkerItem capability backing
// WorkerCommand Message delivery.
type ItemMessageReceiver interface {
	// OnMessage delivers payload to the item. reply, if non-nil, is the
	// sender's one-shot reply channel.
	OnMessage(payload any, reply func(any))
}

// ItemBindHook is invoked once, synchronously, when the item transitions
// isBound false -> true.
type ItemBindHook interface {
	OnBind(ctx Context)
}

// ItemUnbindHook is invoked once, synchronously, when the item transitions
// isBound true -> false.
type ItemUnbindHook interface {
	OnUnbind()
}

// ItemIdleCheck is the optional WorkerItem capability invoked on every idle
// sweep, independent of Connection.isTimedOut.
type ItemIdleCheck interface {
	OnItemIdleCheck(period time.Duration)
}
