package ioworker

import (
	"net"
	"sync/atomic"

	"github.com/sirupsen/logrus"
)

// WorkerPool owns num-workers Workers and fans server/connection lifecycle
// operations across them round-robin. It is additive over the single-Worker
// core spec.md describes: every Worker-internal invariant is unaffected by
// which pool, if any, owns it.
type WorkerPool struct {
	workers []*Worker
	next    uint64
}

// NewWorkerPool constructs cfg.NumWorkers Workers sharing idGen, scheduler,
// metrics, and notify.
func NewWorkerPool(cfg Config, logger *logrus.Logger, scheduler Scheduler, metrics MetricsRecorder, notify func(any)) (*WorkerPool, error) {
	idGen := NewIDGenerator()
	n := cfg.NumWorkers
	if n <= 0 {
		n = 1
	}
	p := &WorkerPool{workers: make([]*Worker, 0, n)}
	for i := 0; i < n; i++ {
		w, err := NewWorker(WorkerID(i), cfg, logger, idGen, scheduler, metrics, notify)
		if err != nil {
			p.Stop()
			return nil, err
		}
		p.workers = append(p.workers, w)
	}
	return p, nil
}

// Start launches every Worker's event loop.
func (p *WorkerPool) Start() {
	for _, w := range p.workers {
		w.Start()
	}
}

// Stop stops every Worker and waits for their loops to exit.
func (p *WorkerPool) Stop() {
	for _, w := range p.workers {
		w.Stop()
	}
}

// Workers returns the pool's Workers, indexed by WorkerID.
func (p *WorkerPool) Workers() []*Worker { return p.workers }

// pick returns the next Worker in round-robin order.
func (p *WorkerPool) pick() *Worker {
	i := atomic.AddUint64(&p.next, 1) - 1
	return p.workers[i%uint64(len(p.workers))]
}

// RegisterServer registers factory with every Worker in the pool, so an
// acceptor can hand accepted sockets to any of them.
func (p *WorkerPool) RegisterServer(server any, factory func() (*Initializer, error)) error {
	for _, w := range p.workers {
		if _, err := w.RegisterServer(server, factory); err != nil {
			return err
		}
	}
	return nil
}

// UnregisterServer tears server down on every Worker.
func (p *WorkerPool) UnregisterServer(server any) error {
	for _, w := range p.workers {
		if err := w.UnregisterServer(server); err != nil {
			return err
		}
	}
	return nil
}

// NewConnection hands an accepted socket to the next Worker in round-robin
// order.
func (p *WorkerPool) NewConnection(server any, conn net.Conn, attempt int) error {
	return p.pick().NewConnection(server, conn, attempt)
}

// BindAndConnect submits a BindAndConnect IOCommand to the next Worker in
// round-robin order.
func (p *WorkerPool) BindAndConnect(addr string, factory ItemFactory) error {
	return p.pick().SubmitIO(BindAndConnect{Addr: addr, Factory: factory})
}
