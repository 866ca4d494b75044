// Package ioworker implements the core of a high-throughput TCP I/O engine: a
// single-threaded event loop (Worker) that owns a set of nonblocking socket
// connections, drives reads and writes against an OS readiness selector, and
// dispatches bytes to per-connection handlers.
//
// A Worker never shares its internal state across goroutines. External callers
// interact with it exclusively through its command mailbox; everything else —
// registries, connection maps, selector interest bits — is mutated only on the
// Worker's own goroutine.
package ioworker
