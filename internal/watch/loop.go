package watch

import (
	"context"
	"sync"
)

// loop is a FIFO of closures executed one at a time. The queue is unbounded so
// a closure may post further work without deadlocking.
type loop struct {
	mu     sync.Mutex
	queue  []func()
	wake   chan struct{}
	closed bool
}

func newLoop() *loop {
	return &loop{wake: make(chan struct{}, 1)}
}

// post enqueues fn. It never blocks and reports false once the loop is closed.
func (l *loop) post(fn func()) bool {
	l.mu.Lock()
	if l.closed {
		l.mu.Unlock()
		return false
	}
	l.queue = append(l.queue, fn)
	l.mu.Unlock()

	select {
	case l.wake <- struct{}{}:
	default:
	}
	return true
}

// drain runs queued closures until the queue is empty and returns how many ran.
func (l *loop) drain() int {
	n := 0
	for {
		l.mu.Lock()
		if len(l.queue) == 0 {
			l.mu.Unlock()
			return n
		}
		fn := l.queue[0]
		l.queue[0] = nil
		l.queue = l.queue[1:]
		l.mu.Unlock()

		fn()
		n++
	}
}

// run drains the queue whenever work arrives, until ctx is done.
func (l *loop) run(ctx context.Context) {
	for {
		l.drain()
		select {
		case <-ctx.Done():
			return
		case <-l.wake:
		}
	}
}

// close rejects further posts; closures already queued are discarded.
func (l *loop) close() {
	l.mu.Lock()
	l.closed = true
	l.queue = nil
	l.mu.Unlock()
}
