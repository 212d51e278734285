package scanner

import (
	"context"
	"sync"
)

// pool runs submitted units with at most limit in flight. Units may submit
// more units. done is closed once nothing is pending and nothing is active.
type pool struct {
	ctx   context.Context
	limit int

	mu      sync.Mutex
	pending []func()
	active  int
	closed  bool
	done    chan struct{}
}

func newPool(ctx context.Context, limit int) *pool {
	return &pool{ctx: ctx, limit: limit, done: make(chan struct{})}
}

// submit queues fn. Work submitted after cancellation is dropped.
func (p *pool) submit(fn func()) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return
	}
	if p.ctx.Err() != nil {
		p.closeIfIdleLocked()
		return
	}
	p.pending = append(p.pending, fn)
	p.pumpLocked()
}

func (p *pool) closeIfIdleLocked() {
	if !p.closed && len(p.pending) == 0 && p.active == 0 {
		p.closed = true
		close(p.done)
	}
}

func (p *pool) pumpLocked() {
	for p.active < p.limit && len(p.pending) > 0 {
		fn := p.pending[0]
		p.pending[0] = nil
		p.pending = p.pending[1:]
		p.active++
		go p.run(fn)
	}
}

func (p *pool) run(fn func()) {
	if p.ctx.Err() == nil {
		fn()
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	p.active--
	if p.ctx.Err() != nil {
		// Abandon queued work; in-flight units finish on their own.
		p.pending = nil
	}
	p.pumpLocked()
	p.closeIfIdleLocked()
}

// wait blocks until the pool drains.
func (p *pool) wait() {
	<-p.done
}
