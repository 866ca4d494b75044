package ioworker

import (
	"net"
	"time"

	"github.com/google/uuid"
)

// ConnState is a Connection's position in the state machine described by
// spec.md §4.2.
type ConnState int

const (
	// StateConnecting is a client socket awaiting OP_CONNECT completion.
	StateConnecting ConnState = iota
	// StateOpen is reading/writing.
	StateOpen
	// StateClosing is never entered by this implementation: a connection goes
	// straight to StateClosed on unregister, and queued outbound bytes are
	// dropped rather than flushed.
	StateClosing
	// StateClosed is terminal.
	StateClosed
)

// ConnRole distinguishes server-accepted sockets from client-initiated ones,
// which drives the unbind-on-disconnect table in spec.md §4.8.
type ConnRole int

const (
	// RoleServer is a socket handed to the Worker by an external acceptor.
	RoleServer ConnRole = iota
	// RoleClient is a socket the Worker itself dialed via Connect.
	RoleClient
)

// Connection is the per-socket I/O state machine: a WorkerItem variant
// carrying a nonblocking fd, a handler, read/write bookkeeping, and an
// outbound byte queue.
type Connection struct {
	id      int64
	traceID string
	fd      int
	conn    net.Conn
	role    ConnRole
	state   ConnState
	server  any // identity of the owning Initializer/server, for RoleServer only

	handler Handler

	createdAt  time.Time
	lastRead   time.Time
	lastWrite  time.Time
	maxIdle    time.Duration
	bytesIn    uint64
	bytesOut   uint64

	outbound []byte
	outCap   int

	manualUnbindOverride *bool // test/forced override; nil means ask the handler
}

func newConnection(id int64, fd int, conn net.Conn, role ConnRole, handler Handler, maxIdle time.Duration, outCap int) *Connection {
	now := time.Now()
	return &Connection{
		id:        id,
		traceID:   uuid.NewString(),
		fd:        fd,
		conn:      conn,
		role:      role,
		state:     StateOpen,
		handler:   handler,
		createdAt: now,
		lastRead:  now,
		lastWrite: now,
		maxIdle:   maxIdle,
		outCap:    outCap,
	}
}

// ID satisfies WorkerItem.
func (c *Connection) ID() int64 { return c.id }

// TraceID returns the connection's process-unique correlation id, minted
// once at accept/dial time and stable for the connection's lifetime.
func (c *Connection) TraceID() string { return c.traceID }

// State reports the connection's current lifecycle state.
func (c *Connection) State() ConnState { return c.state }

// Role reports whether this connection was server-accepted or client-dialed.
func (c *Connection) Role() ConnRole { return c.role }

// Handler returns the connection's current handler.
func (c *Connection) Handler() Handler { return c.handler }

// RemoteAddr proxies net.Conn.RemoteAddr; empty if the underlying conn is nil
// (never true for a registered connection, but kept defensive for tests).
func (c *Connection) RemoteAddr() net.Addr {
	if c.conn == nil {
		return nil
	}
	return c.conn.RemoteAddr()
}

// LocalAddr proxies net.Conn.LocalAddr.
func (c *Connection) LocalAddr() net.Addr {
	if c.conn == nil {
		return nil
	}
	return c.conn.LocalAddr()
}

// Send queues data for the next writable tick and reports whether the
// connection was previously idle for writes (i.e. OP_WRITE interest must now
// be armed). It fails with ErrConnectionClosed or ErrOutputOverflow.
func (c *Connection) Send(data []byte) (armed bool, err error) {
	if c.state != StateOpen {
		return false, ErrConnectionClosed
	}
	if len(data) == 0 {
		return len(c.outbound) > 0, nil
	}
	if c.outCap > 0 && len(c.outbound)+len(data) > c.outCap {
		return false, ErrOutputOverflow
	}
	wasEmpty := len(c.outbound) == 0
	c.outbound = append(c.outbound, data...)
	return wasEmpty, nil
}

// hasPendingWrite reports whether OP_WRITE interest should be armed — the
// direct implementation of invariant 4 in spec.md §8.
func (c *Connection) hasPendingWrite() bool {
	return len(c.outbound) > 0
}

// isTimedOut implements the idle policy of spec.md §4.2: maxIdle <= 0 means
// infinite, i.e. never times out.
func (c *Connection) isTimedOut(now time.Time) bool {
	if c.maxIdle <= 0 {
		return false
	}
	return now.Sub(c.lastActivity()) > c.maxIdle
}

func (c *Connection) lastActivity() time.Time {
	if c.lastWrite.After(c.lastRead) {
		return c.lastWrite
	}
	return c.lastRead
}

func (c *Connection) idleTime(now time.Time) time.Duration {
	return now.Sub(c.lastActivity())
}

func (c *Connection) age(now time.Time) time.Duration {
	return now.Sub(c.createdAt)
}

// manualUnbind resolves whether this connection's handler requests
// ManualUnbind semantics (spec.md §4.8's disconnect table).
func (c *Connection) manualUnbind() bool {
	if c.manualUnbindOverride != nil {
		return *c.manualUnbindOverride
	}
	if mh, ok := c.handler.(ManualUnbindHandler); ok {
		return mh.ManualUnbind()
	}
	return false
}

// snapshot produces the point-in-time summary used by ConnectionSummary.
func (c *Connection) snapshot(now time.Time) ConnectionSnapshot {
	var local, remote string
	if c.conn != nil {
		if a := c.conn.LocalAddr(); a != nil {
			local = a.String()
		}
		if a := c.conn.RemoteAddr(); a != nil {
			remote = a.String()
		}
	}
	return ConnectionSnapshot{
		ID:        c.id,
		TraceID:   c.traceID,
		LocalAddr: local,
		RemoteAddr: remote,
		Role:      c.role,
		BytesIn:   c.bytesIn,
		BytesOut:  c.bytesOut,
		Age:       c.age(now),
		IdleTime:  c.idleTime(now),
	}
}

// ConnectionSnapshot is the immutable view returned by a ConnectionSummary
// request; it never aliases live Connection state.
type ConnectionSnapshot struct {
	ID         int64
	TraceID    string
	LocalAddr  string
	RemoteAddr string
	Role       ConnRole
	BytesIn    uint64
	BytesOut   uint64
	Age        time.Duration
	IdleTime   time.Duration
}

// OnItemIdleCheck satisfies ItemIdleCheck by forwarding to the handler's own
// optional IdleCheckHandler capability, if any.
func (c *Connection) OnItemIdleCheck(period time.Duration) {
	if h, ok := c.handler.(IdleCheckHandler); ok {
		h.OnIdleCheck(period)
	}
}
