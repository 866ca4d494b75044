package ioworker

import (
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/sys/unix"
)

const mailboxCapacity = 4096

// Worker is a single-threaded event loop owning a set of nonblocking TCP
// connections. All of its internal state — registries, connection maps,
// selector interest — is mutated only from the goroutine running its loop;
// external callers interact with it exclusively through the command
// mailbox (SubmitIO / SubmitWorker / RegisterServer / ...).
type Worker struct {
	id  WorkerID
	cfg Config
	log *logrus.Entry

	pfd poller

	mailbox chan envelope
	die     chan struct{}
	closer  sync.Once

	items  *itemRegistry
	inits  *initializerRegistry
	bridge *watchedBridge
	idGen  *IDGenerator

	scheduler Scheduler
	metrics   MetricsRecorder
	notify    func(any)

	conns     map[int64]*Connection
	connsByFd map[int]*Connection

	readBuf  []byte
	writeBuf []byte

	cbMu    sync.Mutex
	cbQueue []func()

	lastIdleCheck time.Time

	wg sync.WaitGroup
}

// NewWorker constructs a Worker. idGen, scheduler, metrics, and notify are
// collaborators the parent I/O system supplies; metrics and notify may be
// nil (metrics calls become no-ops, notifications are dropped after a log
// line).
func NewWorker(id WorkerID, cfg Config, logger *logrus.Logger, idGen *IDGenerator, scheduler Scheduler, metrics MetricsRecorder, notify func(any)) (*Worker, error) {
	pfd, err := openPoller()
	if err != nil {
		return nil, fmt.Errorf("ioworker: open poller: %w", err)
	}
	if metrics == nil {
		metrics = noopMetrics{}
	}
	if idGen == nil {
		idGen = NewIDGenerator()
	}
	w := &Worker{
		id:        id,
		cfg:       cfg,
		log:       newWorkerLogger(logger, id),
		pfd:       pfd,
		mailbox:   make(chan envelope, mailboxCapacity),
		die:       make(chan struct{}),
		items:     newItemRegistry(),
		inits:     newInitializerRegistry(),
		bridge:    newWatchedBridge(),
		idGen:     idGen,
		scheduler: scheduler,
		metrics:   metrics,
		notify:    notify,
		conns:     make(map[int64]*Connection),
		connsByFd: make(map[int]*Connection),
		readBuf:   make([]byte, cfg.ReadBufferSize),
		writeBuf:  make([]byte, cfg.OutputBufferSize),
	}
	w.lastIdleCheck = time.Now()
	return w, nil
}

// ID returns this worker's id.
func (w *Worker) ID() WorkerID { return w.id }

// Start launches the event loop on its own goroutine and emits WorkerReady.
func (w *Worker) Start() {
	w.wg.Add(1)
	go func() {
		defer w.wg.Done()
		defer w.shutdownResources()
		w.emit(WorkerReady{Worker: w})
		for {
			select {
			case <-w.die:
				return
			default:
			}
			w.Step()
		}
	}()
}

// Stop cancels selector polling, forcibly closes every active connection,
// invokes every registered Initializer's OnShutdown, and waits for the loop
// goroutine to exit.
func (w *Worker) Stop() {
	w.closer.Do(func() {
		close(w.die)
	})
	w.wg.Wait()
}

func (w *Worker) shutdownResources() {
	for _, conn := range w.conns {
		w.unregisterConnection(conn, terminatedCause())
	}
	w.bridge.closeAll()
	for _, init := range w.inits.entries {
		if init.OnShutdown != nil {
			init.OnShutdown()
		}
	}
	_ = w.pfd.Close()
}

// emit forwards an outbound notification to the configured sink, logging it
// if none is configured so nothing is silently lost.
func (w *Worker) emit(event any) {
	if w.notify != nil {
		w.notify(event)
		return
	}
	w.log.WithField("event", fmt.Sprintf("%T", event)).Debug("unrouted notification")
}

func (w *Worker) enqueue(e envelope) error {
	select {
	case <-w.die:
		return ErrWorkerClosed
	default:
	}
	select {
	case w.mailbox <- e:
		return nil
	case <-w.die:
		return ErrWorkerClosed
	}
}

// SubmitIO enqueues an IOCommand.
func (w *Worker) SubmitIO(cmd IOCommand) error { return w.enqueue(envelope{io: cmd}) }

// SubmitWorker enqueues a WorkerCommand.
func (w *Worker) SubmitWorker(cmd WorkerCommand) error { return w.enqueue(envelope{worker: cmd}) }

// RegisterServer registers factory under server's identity, blocking until
// the worker acknowledges it (success, idempotent success, or failure).
func (w *Worker) RegisterServer(server any, factory func() (*Initializer, error)) (bool, error) {
	type result struct {
		ok  bool
		err error
	}
	replyCh := make(chan result, 1)
	cmd := RegisterServer{
		Server:  server,
		Factory: factory,
		Reply:   func(ok bool, err error) { replyCh <- result{ok, err} },
	}
	if err := w.enqueue(envelope{admin: cmd}); err != nil {
		return false, err
	}
	select {
	case r := <-replyCh:
		return r.ok, r.err
	case <-w.die:
		return false, ErrWorkerClosed
	}
}

// UnregisterServer enqueues server teardown; it does not block on it
// completing, mirroring the async-mailbox model of every other command.
func (w *Worker) UnregisterServer(server any) error {
	return w.enqueue(envelope{admin: UnregisterServer{Server: server}})
}

// ServerShutdownRequest enqueues a cooperative shutdown request for every
// connection owned by server.
func (w *Worker) ServerShutdownRequest(server any) error {
	return w.enqueue(envelope{admin: ServerShutdownRequest{Server: server}})
}

// NewConnection hands an accepted socket to this worker on behalf of
// server.
func (w *Worker) NewConnection(server any, conn net.Conn, attempt int) error {
	return w.enqueue(envelope{admin: NewConnectionCmd{Server: server, Conn: conn, Attempt: attempt}})
}

// RunLater schedules fn to run on this worker's goroutine on a future
// Step() — the explicit, worker-tagged continuation mechanism design note
// §9 calls for in place of an implicit ambient executor.
func (w *Worker) RunLater(fn func()) {
	w.cbMu.Lock()
	w.cbQueue = append(w.cbQueue, fn)
	w.cbMu.Unlock()
}

// ConnectionSummary requests a point-in-time snapshot of every active
// connection, built on the worker's own goroutine and delivered back over a
// reply channel — the same blocking round-trip RegisterServer uses — so an
// external caller never touches live Connection state directly.
func (w *Worker) ConnectionSummary() (ConnectionSummary, error) {
	replyCh := make(chan ConnectionSummary, 1)
	cmd := SummaryRequest{Reply: func(s ConnectionSummary) { replyCh <- s }}
	if err := w.enqueue(envelope{worker: cmd}); err != nil {
		return ConnectionSummary{}, err
	}
	select {
	case s := <-replyCh:
		return s, nil
	case <-w.die:
		return ConnectionSummary{}, ErrWorkerClosed
	}
}

func (w *Worker) buildConnectionSummary() ConnectionSummary {
	now := time.Now()
	out := make([]ConnectionSnapshot, 0, len(w.conns))
	for _, c := range w.conns {
		out = append(out, c.snapshot(now))
	}
	return ConnectionSummary{Worker: w.id, Connections: out}
}

// Step runs exactly one iteration of the event loop: selector poll, ready
// key processing (OP_CONNECT -> OP_READ -> OP_WRITE per key), watched-token
// deaths, mailbox drain, due callbacks, and a gated idle sweep. It is the
// Worker's only blocking operation (bounded by cfg.SelectTimeout).
func (w *Worker) Step() {
	events, err := w.pfd.Wait(w.cfg.SelectTimeout)
	if err != nil {
		w.log.WithError(err).Warn("selector wait failed")
	}
	for _, ev := range events {
		w.processEvent(ev)
	}

	w.drainWatchedDeaths()
	w.drainMailbox()
	w.runCallbacks()

	now := time.Now()
	if w.cfg.IdleCheckFrequency > 0 && now.Sub(w.lastIdleCheck) >= w.cfg.IdleCheckFrequency {
		w.idleSweep(now)
		w.lastIdleCheck = now
	}
}

func (w *Worker) drainWatchedDeaths() {
	for {
		select {
		case id := <-w.bridge.deaths:
			if conn, ok := w.conns[id]; ok {
				w.unregisterConnection(conn, disconnectCause())
			}
		default:
			return
		}
	}
}

func (w *Worker) drainMailbox() {
	for i := 0; i < mailboxCapacity; i++ {
		select {
		case e := <-w.mailbox:
			w.dispatch(e)
		default:
			return
		}
	}
}

func (w *Worker) runCallbacks() {
	w.cbMu.Lock()
	pending := w.cbQueue
	w.cbQueue = nil
	w.cbMu.Unlock()
	for _, fn := range pending {
		w.safeCall(fn)
	}
}

func (w *Worker) safeCall(fn func()) {
	defer func() {
		if r := recover(); r != nil {
			w.log.WithField("panic", r).Error("callback panic")
		}
	}()
	fn()
}

// guardHandlerCall invokes fn, a handler call that can reach the connection's
// OnConnected outside the selector readiness loop (an immediate synchronous
// connect, or an accept). It applies the same selector dispatch boundary
// processEvent's own deferred recover applies to processRead/processWrite/
// finishConnect: a panicking handler closes the connection with Error(cause)
// instead of leaving it open (spec.md §4.1/§7).
func (w *Worker) guardHandlerCall(conn *Connection, fn func()) {
	defer func() {
		if r := recover(); r != nil {
			w.log.WithField("panic", r).Error("handler panic")
			if conn.state != StateClosed {
				w.unregisterConnection(conn, errorCause(fmt.Errorf("panic: %v", r)))
			}
		}
	}()
	fn()
}

func (w *Worker) idleSweep(now time.Time) {
	// Connections are never bound into itemRegistry directly (only their
	// handler is), so items.idleCheck only reaches non-connection items
	// (pure message sinks). Connections get their own pass here, which
	// bridges to the handler's optional IdleCheckHandler capability.
	w.items.idleCheck(w.cfg.IdleCheckFrequency)
	timedOut := 0
	for _, conn := range w.conns {
		conn.OnItemIdleCheck(w.cfg.IdleCheckFrequency)
		if conn.isTimedOut(now) {
			w.unregisterConnection(conn, timedOutCause())
			timedOut++
		}
	}
	w.emit(IdleCheckExecuted{Worker: w.id, Checked: len(w.conns) + timedOut, TimedOut: timedOut, At: now})
}

// processEvent implements the strict per-key ordering of spec.md §4.1.
func (w *Worker) processEvent(ev readinessEvent) {
	conn, ok := w.connsByFd[ev.fd]
	if !ok {
		if ev.invalidKey {
			w.log.WithField("fd", ev.fd).Warn("selector key invalid, skipping")
		}
		return
	}

	defer func() {
		if r := recover(); r != nil {
			w.log.WithField("panic", r).Error("handler panic during readiness processing")
			if conn.state != StateClosed {
				w.unregisterConnection(conn, errorCause(fmt.Errorf("panic: %v", r)))
			}
		}
	}()

	if conn.state == StateConnecting && ev.connected {
		w.finishConnect(conn)
	}
	if conn.state != StateOpen {
		return
	}
	if ev.readable {
		w.processRead(conn)
	}
	if conn.state == StateOpen && ev.writable {
		w.processWrite(conn)
	}
}

func (w *Worker) finishConnect(conn *Connection) {
	if err := connectError(conn.fd); err != nil {
		w.unregisterConnection(conn, connectFailed(err))
		return
	}
	conn.state = StateOpen
	w.updateInterest(conn)
	w.metrics.IncConnections(w.id)
	w.log.WithField("trace_id", conn.traceID).Debug("connect completed")
	conn.handler.OnConnected(conn)
}

func (w *Worker) processRead(conn *Connection) {
	n, err := unix.Read(conn.fd, w.readBuf)
	if err == unix.EAGAIN {
		return
	}
	if err != nil {
		w.unregisterConnection(conn, closedCause())
		return
	}
	if n == 0 {
		w.unregisterConnection(conn, closedCause())
		return
	}
	conn.lastRead = time.Now()
	conn.bytesIn += uint64(n)
	w.metrics.ObserveBytesIn(w.id, n)
	conn.handler.OnBytes(w.readBuf[:n])
	if conn.state == StateOpen {
		// OnBytes may have queued outbound data (Connection.Send); arm
		// OP_WRITE now rather than waiting for a write-readiness event that
		// will never come without it.
		w.updateInterest(conn)
	}
}

func (w *Worker) processWrite(conn *Connection) {
	if len(conn.outbound) > 0 {
		n, err := unix.Write(conn.fd, conn.outbound)
		switch {
		case err == unix.EAGAIN:
			// socket not ready yet despite the event; wait for the next tick.
		case err != nil:
			w.unregisterConnection(conn, errorCause(err))
			return
		default:
			conn.outbound = conn.outbound[:copy(conn.outbound, conn.outbound[n:])]
			conn.lastWrite = time.Now()
			conn.bytesOut += uint64(n)
			w.metrics.ObserveBytesOut(w.id, n)
		}
	}
	if len(conn.outbound) == 0 {
		n := conn.handler.OnWritable(w.writeBuf)
		if n > 0 {
			conn.outbound = append(conn.outbound, w.writeBuf[:n]...)
		}
	}
	w.updateInterest(conn)
}

func (w *Worker) updateInterest(conn *Connection) {
	if err := w.pfd.SetInterest(conn.fd, true, conn.hasPendingWrite(), false); err != nil {
		w.log.WithError(err).WithField("fd", conn.fd).Warn("set interest failed")
	}
}

// unregisterConnection implements the strict sequence of spec.md §4.8.
func (w *Worker) unregisterConnection(conn *Connection, cause DisconnectCause) {
	if conn.state == StateClosed {
		return
	}
	delete(w.conns, conn.id)
	delete(w.connsByFd, conn.fd)
	conn.state = StateClosed

	_ = w.pfd.Remove(conn.fd)
	w.bridge.unwatch(conn.id)
	// conn.fd is always the Worker-owned duplicate (see dupSocketFD /
	// beginDial); conn.conn may be the caller's original, already-closed
	// socket for server-accepted connections, so it is never used for
	// teardown here.
	_ = unix.Close(conn.fd)
	w.metrics.DecConnections(w.id)

	w.log.WithField("trace_id", conn.traceID).WithField("cause", cause.String()).Debug("connection closed")
	w.safeCall(func() { conn.handler.OnDisconnected(cause) })

	unbind := true
	if conn.role == RoleClient && conn.manualUnbind() && cause.IsError() {
		unbind = false
	}
	if unbind {
		_ = w.items.unbind(conn.id)
	}
}

func (w *Worker) dispatch(e envelope) {
	switch {
	case e.io != nil:
		w.dispatchIO(e.io)
	case e.worker != nil:
		w.dispatchWorkerCommand(e.worker)
	case e.admin != nil:
		w.dispatchAdmin(e.admin)
	}
}

func (w *Worker) dispatchIO(cmd IOCommand) {
	switch c := cmd.(type) {
	case BindItem:
		id := w.idGen.Next()
		ctx := NewContext(id, w)
		item := c.Factory(ctx)
		if err := w.items.bind(item, ctx); err != nil {
			w.log.WithError(err).Error("bind item failed")
		}
	case BindAndConnect:
		id := w.idGen.Next()
		ctx := NewContext(id, w)
		item := c.Factory(ctx)
		if err := w.items.bind(item, ctx); err != nil {
			w.log.WithError(err).Error("bind item failed")
			return
		}
		w.dispatchWorkerCommand(Connect{Addr: c.Addr, ID: id})
	case BindWithContext:
		item := c.Factory(c.Ctx)
		if err := w.items.bind(item, c.Ctx); err != nil {
			w.log.WithError(err).Error("bind item failed")
		}
	default:
		w.log.Warn("unknown IOCommand")
	}
}

func (w *Worker) dispatchWorkerCommand(cmd WorkerCommand) {
	switch c := cmd.(type) {
	case Bind:
		if err := w.items.bind(c.Item, c.Ctx); err != nil {
			w.log.WithError(err).Error("bind failed")
		}
	case Connect:
		w.handleConnect(c)
	case UnbindItem:
		if err := w.items.unbind(c.ID); err != nil {
			w.log.WithField("item_id", c.ID).Error("unbind unknown item")
		}
	case Schedule:
		if w.scheduler != nil {
			target, msg := c.Target, c.Msg
			w.scheduler.Schedule(c.Delay, func() {
				_ = w.SubmitWorker(Message{ID: target, Payload: msg})
			})
		} else {
			w.log.Warn("schedule requested with no scheduler configured")
		}
	case Message:
		item, ok := w.items.get(c.ID)
		if !ok {
			w.log.WithField("item_id", c.ID).Warn("message to unknown item")
			if c.Reply != nil {
				c.Reply(MessageDeliveryFailed{ID: c.ID, Payload: c.Payload})
			}
			return
		}
		recv, ok := item.(ItemMessageReceiver)
		if !ok {
			w.log.WithField("item_id", c.ID).Warn("message to item without receiver capability")
			if c.Reply != nil {
				c.Reply(MessageDeliveryFailed{ID: c.ID, Payload: c.Payload})
			}
			return
		}
		recv.OnMessage(c.Payload, c.Reply)
	case Disconnect:
		if conn, ok := w.conns[c.ID]; ok {
			w.unregisterConnection(conn, disconnectCause())
		} else {
			w.log.WithField("item_id", c.ID).Warn("disconnect: unknown connection")
		}
	case Kill:
		if conn, ok := w.conns[c.ID]; ok {
			w.unregisterConnection(conn, errorCause(c.Err))
		} else {
			w.log.WithField("item_id", c.ID).Warn("kill: unknown connection")
		}
	case SwapHandler:
		w.handleSwapHandler(c)
	case SummaryRequest:
		if c.Reply != nil {
			c.Reply(w.buildConnectionSummary())
		}
	default:
		w.log.Warn("unknown WorkerCommand")
	}
}

func (w *Worker) handleConnect(c Connect) {
	item, ok := w.items.get(c.ID)
	if !ok {
		w.log.WithField("item_id", c.ID).Error("connect: unknown item")
		return
	}
	handler, ok := item.(Handler)
	if !ok {
		w.log.WithField("item_id", c.ID).Error("connect: item is not a handler")
		return
	}
	if ch, ok := handler.(ClientConnectionHandler); !ok || !ch.IsClientHandler() {
		w.log.WithField("item_id", c.ID).Error("connect: item lacks client connection capability")
		if c.Reply != nil {
			c.Reply(ErrNotClientHandler)
		}
		return
	}

	res, err := beginDial(c.Addr)
	if err != nil {
		// No fd/selector registration ever happened, so unregisterConnection's
		// teardown doesn't apply — but the unbind table of spec.md §4.8 still
		// does, applied directly against the bound item (mirrors
		// unregisterConnection's own Client/ManualUnbind/IsError check).
		cause := connectFailed(err)
		w.safeCall(func() { handler.OnDisconnected(cause) })
		manual := false
		if mh, ok := handler.(ManualUnbindHandler); ok {
			manual = mh.ManualUnbind()
		}
		if !manual {
			_ = w.items.unbind(c.ID)
		}
		if c.Reply != nil {
			c.Reply(err)
		}
		return
	}

	conn := newConnection(c.ID, res.fd, res.conn, RoleClient, handler, w.cfg.MaxIdleTime, w.cfg.OutputBufferSize)
	conn.state = StateConnecting
	w.conns[c.ID] = conn
	w.connsByFd[res.fd] = conn
	if wh, ok := handler.(WatchedHandler); ok {
		w.bridge.watch(c.ID, wh.LivenessDone())
	}

	if err := w.pfd.Watch(res.fd); err != nil {
		w.unregisterConnection(conn, connectFailed(err))
		if c.Reply != nil {
			c.Reply(err)
		}
		return
	}

	if res.immediate {
		w.guardHandlerCall(conn, func() { w.finishConnect(conn) })
		if c.Reply != nil {
			c.Reply(nil)
		}
		return
	}
	if err := w.pfd.SetInterest(res.fd, false, false, true); err != nil {
		w.unregisterConnection(conn, connectFailed(err))
		if c.Reply != nil {
			c.Reply(err)
		}
	}
}

func (w *Worker) handleSwapHandler(c SwapHandler) {
	conn, ok := w.conns[c.NewHandler.ID()]
	if !ok {
		w.log.WithField("item_id", c.NewHandler.ID()).Error("swap handler: no active connection")
		return
	}
	ctx := NewContext(c.NewHandler.ID(), w)
	if _, err := w.items.replace(c.NewHandler, ctx); err != nil {
		w.log.WithError(err).Error("swap handler: replace failed")
		return
	}
	conn.handler = c.NewHandler
	if wh, ok := c.NewHandler.(WatchedHandler); ok {
		w.bridge.watch(conn.id, wh.LivenessDone())
	} else {
		w.bridge.unwatch(conn.id)
	}
}

func (w *Worker) dispatchAdmin(cmd adminCommand) {
	switch c := cmd.(type) {
	case RegisterServer:
		w.handleRegisterServer(c)
	case UnregisterServer:
		w.handleUnregisterServer(c)
	case ServerShutdownRequest:
		w.handleServerShutdownRequest(c)
	case NewConnectionCmd:
		w.handleNewConnectionCmd(c)
	default:
		w.log.Warn("unknown admin command")
	}
}

func (w *Worker) handleRegisterServer(c RegisterServer) {
	already, ok, err := w.inits.register(c.Server, c.Factory)
	if err != nil {
		w.log.WithError(err).WithField("server", c.Server).Error("initializer construction failed")
		w.emit(RegistrationFailed{Server: c.Server, Err: err})
		if c.Reply != nil {
			c.Reply(false, err)
		}
		return
	}
	if already {
		w.log.WithField("server", c.Server).Warn("re-registering already-registered server")
	}
	w.emit(ServerRegistered{Server: c.Server})
	if c.Reply != nil {
		c.Reply(ok, nil)
	}
}

func (w *Worker) handleUnregisterServer(c UnregisterServer) {
	for _, conn := range w.conns {
		if conn.role == RoleServer && conn.server == c.Server {
			w.unregisterConnection(conn, terminatedCause())
		}
	}
	if init, ok := w.inits.unregister(c.Server); ok {
		if init.OnShutdown != nil {
			init.OnShutdown()
		}
	} else {
		w.log.WithError(ErrUnknownServer).WithField("server", c.Server).Warn("unregister failed")
	}
}

func (w *Worker) handleServerShutdownRequest(c ServerShutdownRequest) {
	for _, conn := range w.conns {
		if conn.role == RoleServer && conn.server == c.Server {
			if sh, ok := conn.handler.(ShutdownRequestHandler); ok {
				w.safeCall(sh.ShutdownRequest)
			}
		}
	}
}

func (w *Worker) handleNewConnectionCmd(c NewConnectionCmd) {
	init, ok := w.inits.get(c.Server)
	if !ok {
		w.log.WithField("server", c.Server).Warn("accept onto unregistered server")
		w.emit(ConnectionRefused{Conn: c.Conn, Attempt: c.Attempt})
		return
	}

	id := w.idGen.Next()
	ctx := NewContext(id, w)

	var handler Handler
	var err error
	func() {
		defer func() {
			if r := recover(); r != nil {
				err = fmt.Errorf("initializer panic: %v", r)
			}
		}()
		handler, err = init.OnConnect(ctx)
	}()
	if err != nil || handler == nil {
		_ = c.Conn.Close()
		w.emit(ConnectionRefused{Conn: c.Conn, Attempt: c.Attempt})
		return
	}

	fd, derr := dupSocketFD(c.Conn)
	if derr != nil {
		_ = c.Conn.Close()
		w.emit(ConnectionRefused{Conn: c.Conn, Attempt: c.Attempt})
		return
	}
	_ = c.Conn.Close()

	conn := newConnection(id, fd, c.Conn, RoleServer, handler, w.cfg.MaxIdleTime, w.cfg.OutputBufferSize)
	conn.server = c.Server

	if err := w.pfd.Watch(fd); err != nil {
		w.log.WithError(err).Error("watch failed")
		_ = unix.Close(fd)
		return
	}

	w.conns[id] = conn
	w.connsByFd[fd] = conn
	if err := w.items.bind(handler, ctx); err != nil {
		w.log.WithError(err).Error("bind handler failed")
	}
	if wh, ok := handler.(WatchedHandler); ok {
		w.bridge.watch(id, wh.LivenessDone())
	}
	w.metrics.IncConnections(w.id)
	w.log.WithField("trace_id", conn.traceID).WithField("remote", conn.RemoteAddr()).Debug("accepted connection")
	w.guardHandlerCall(conn, func() { handler.OnConnected(conn) })
}
