package ioworker

import (
	"net"
	"time"
)

// ItemFactory produces a WorkerItem once its Context (id + owning Worker) is
// known. It is how IOCommand variants defer item construction until they
// reach the worker that will own it.
type ItemFactory func(ctx Context) WorkerItem

// IOCommand is the tagged sum of commands an external caller (the parent I/O
// system) addresses to "a worker" rather than to an already-bound item —
// each variant ends with the worker invoking a factory inside itself, with a
// freshly minted Context (BindItem, BindAndConnect) or the caller-supplied
// one (BindWithContext).
type IOCommand interface {
	isIOCommand()
}

// BindItem asks a worker to mint an id, construct an item via Factory, and
// bind it.
type BindItem struct {
	Factory ItemFactory
}

func (BindItem) isIOCommand() {}

// BindAndConnect asks a worker to bind a freshly constructed item and then
// immediately begin a client Connect to Addr.
type BindAndConnect struct {
	Addr    string
	Factory ItemFactory
}

func (BindAndConnect) isIOCommand() {}

// BindWithContext asks a worker to bind an item built with a caller-supplied
// Context (e.g. one whose id was already minted by the I/O system for
// cross-referencing before bind completes).
type BindWithContext struct {
	Ctx     Context
	Factory ItemFactory
}

func (BindWithContext) isIOCommand() {}

// WorkerCommand is the tagged sum of commands addressed to an already-bound
// item on a specific worker.
type WorkerCommand interface {
	isWorkerCommand()
}

// Bind binds an already-constructed item (used when the caller, not the
// worker, minted the Context).
type Bind struct {
	Item WorkerItem
	Ctx  Context
}

func (Bind) isWorkerCommand() {}

// Connect begins a client connection to Addr on behalf of the bound item ID.
type Connect struct {
	Addr string
	ID   int64
	// Reply, if set, is called only when the outcome is known while the
	// command is handled: ErrNotClientHandler for an item without client
	// capability, the dial or selector-registration error for an attempt
	// that fails before it is pending, or nil for an immediate completion.
	// A connect left pending on the selector does not call Reply; its outcome
	// reaches the handler through OnConnected or OnDisconnected. Reply is not
	// called when ID names no bound Handler.
	Reply func(error)
}

func (Connect) isWorkerCommand() {}

// UnbindItem removes a non-connection item from the registry.
type UnbindItem struct {
	ID int64
}

func (UnbindItem) isWorkerCommand() {}

// Schedule forwards (delay, msg) to the external Scheduler collaborator; the
// Worker never runs its own timers (spec.md §4.7). When the scheduler fires,
// Msg is delivered back to Target as an ordinary Message command, re-entering
// this same worker's mailbox rather than running inline on the scheduler's
// own goroutine.
type Schedule struct {
	Delay  time.Duration
	Msg    any
	Target int64
}

func (Schedule) isWorkerCommand() {}

// Message delivers Payload to the bound item with ID, or notifies Reply of
// MessageDeliveryFailed if no such item is bound.
type Message struct {
	ID      int64
	Payload any
	Reply   func(any)
}

func (Message) isWorkerCommand() {}

// Disconnect closes the connection bound to ID with CauseDisconnect.
type Disconnect struct {
	ID int64
}

func (Disconnect) isWorkerCommand() {}

// Kill closes the connection bound to ID with CauseError wrapping Err.
type Kill struct {
	ID  int64
	Err error
}

func (Kill) isWorkerCommand() {}

// SwapHandler replaces the handler bound to the connection whose id equals
// NewHandler.ID() (spec.md §4.6).
type SwapHandler struct {
	NewHandler Handler
}

func (SwapHandler) isWorkerCommand() {}

// SummaryRequest asks the worker to build a ConnectionSummary and deliver it
// to Reply. Like every other WorkerCommand, it is only ever handled on the
// worker's own goroutine (spec.md §6's "ConnectionSummary reply on summary
// request" is a mailbox round-trip, not a direct read of live Connection
// state from outside the worker).
type SummaryRequest struct {
	Reply func(ConnectionSummary)
}

func (SummaryRequest) isWorkerCommand() {}

// adminCommand is the tagged sum of server/Initializer lifecycle operations
// (spec.md §4.4). These are not part of §3's Command types because they
// address a server identity rather than a bound item, but they still cross
// the mailbox to preserve single-threaded execution.
type adminCommand interface {
	isAdminCommand()
}

// RegisterServer registers Factory under Server's identity, invoking it
// inside the worker goroutine. Reply receives (true, nil) on success,
// (true, nil) again on an idempotent re-register, or (false, err) on
// construction failure.
type RegisterServer struct {
	Server  any
	Factory func() (*Initializer, error)
	Reply   func(ok bool, err error)
}

func (RegisterServer) isAdminCommand() {}

// UnregisterServer closes every active connection owned by Server, then
// drops its Initializer and invokes its OnShutdown.
type UnregisterServer struct {
	Server any
}

func (UnregisterServer) isAdminCommand() {}

// ServerShutdownRequest invokes ShutdownRequest() on every handler whose
// connection is owned by Server, without forcing closure.
type ServerShutdownRequest struct {
	Server any
}

func (ServerShutdownRequest) isAdminCommand() {}

// NewConnectionCmd hands an accepted socket to the worker on behalf of
// Server. Attempt is opaque data echoed back in ConnectionRefused.
type NewConnectionCmd struct {
	Server  any
	Conn    net.Conn
	Attempt int
}

func (NewConnectionCmd) isAdminCommand() {}

// envelope is the internal mailbox unit: exactly one field is set.
type envelope struct {
	io     IOCommand
	worker WorkerCommand
	admin  adminCommand
}

// MessageDeliveryFailed is delivered to a Message sender's Reply when no
// item is bound under the addressed id.
type MessageDeliveryFailed struct {
	ID      int64
	Payload any
}

// ConnectionRefused is delivered to a server whose acceptor handed the
// worker a socket it could not accept (unregistered server, a failed or nil
// OnConnect, or an fd that could not be duplicated). For an unregistered
// server the socket is left open for the caller to retry elsewhere, per
// spec.md §9's resolution of the ambiguity in the source; in the other cases
// the worker has already closed it.
type ConnectionRefused struct {
	Conn    net.Conn
	Attempt int
}
