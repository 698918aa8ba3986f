package queue

import (
	"context"
	"sync"
)

// Delivery runs completion callbacks. Implementations choose the goroutine.
type Delivery interface {
	Deliver(fn func())
}

// Immediate runs callbacks on the worker that finished the request.
type Immediate struct{}

func (Immediate) Deliver(fn func()) { fn() }

// LoopDelivery queues callbacks until the owner drains them, so listeners
// run on the goroutine that calls Run or Drain. Deliver never blocks.
type LoopDelivery struct {
	mu      sync.Mutex
	pending []func()
	notify  chan struct{}
}

func NewLoopDelivery() *LoopDelivery {
	return &LoopDelivery{notify: make(chan struct{}, 1)}
}

func (l *LoopDelivery) Deliver(fn func()) {
	l.mu.Lock()
	l.pending = append(l.pending, fn)
	l.mu.Unlock()

	select {
	case l.notify <- struct{}{}:
	default:
	}
}

// Drain runs every queued callback and returns how many ran.
func (l *LoopDelivery) Drain() int {
	l.mu.Lock()
	batch := l.pending
	l.pending = nil
	l.mu.Unlock()

	for _, fn := range batch {
		fn()
	}
	return len(batch)
}

// Run drains callbacks as they arrive until ctx is done.
func (l *LoopDelivery) Run(ctx context.Context) error {
	for {
		l.Drain()
		select {
		case <-l.notify:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// RunUntil drains callbacks until done is closed, then drains once more.
func (l *LoopDelivery) RunUntil(ctx context.Context, done <-chan struct{}) error {
	for {
		l.Drain()
		select {
		case <-l.notify:
		case <-done:
			l.Drain()
			return nil
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}
