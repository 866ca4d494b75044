package ioworker

// Initializer is the per-registered-server factory the Worker invokes on
// accept to obtain a Handler, plus its shutdown and inbound-message hooks.
type Initializer struct {
	// OnConnect produces a Handler for a newly accepted connection. A
	// non-nil error (or a nil Handler) causes the socket to be refused.
	OnConnect func(ctx Context) (Handler, error)
	// OnShutdown is invoked once, when the server is unregistered.
	OnShutdown func()
	// OnMessage is the server's inbound message hook. The Worker stores it
	// but never calls it: Message commands are delivered only to bound items.
	OnMessage func(payload any, reply func(any))
}

// initializerRegistry maps a server identity to its registered Initializer.
// Like itemRegistry, it is single-threaded by construction: only ever
// touched from the owning Worker's goroutine.
type initializerRegistry struct {
	entries map[any]*Initializer
}

func newInitializerRegistry() *initializerRegistry {
	return &initializerRegistry{entries: make(map[any]*Initializer)}
}

// register invokes factory and stores its result under server, unless
// server is already registered (idempotent: returns ok=true without
// re-invoking factory).
func (r *initializerRegistry) register(server any, factory func() (*Initializer, error)) (alreadyPresent, ok bool, err error) {
	if _, present := r.entries[server]; present {
		return true, true, nil
	}
	init, err := factory()
	if err != nil {
		return false, false, err
	}
	if init == nil {
		return false, false, ErrInitFailed
	}
	r.entries[server] = init
	return false, true, nil
}

func (r *initializerRegistry) get(server any) (*Initializer, bool) {
	init, ok := r.entries[server]
	return init, ok
}

// unregister drops server's Initializer and returns it, if present, so the
// caller can invoke OnShutdown after closing matching connections.
func (r *initializerRegistry) unregister(server any) (*Initializer, bool) {
	init, ok := r.entries[server]
	if ok {
		delete(r.entries, server)
	}
	return init, ok
}
