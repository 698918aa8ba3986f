package queue

import (
	"context"

	"golang.org/x/time/rate"
)

// DefaultConcurrency is the number of requests in flight at once.
const DefaultConcurrency = 4

// scheduler bounds concurrency and, optionally, the attempt rate.
type scheduler struct {
	limiter *rate.Limiter
	sem     chan struct{}
}

func newScheduler(concurrency int, rps float64) *scheduler {
	if concurrency < 1 {
		concurrency = DefaultConcurrency
	}
	s := &scheduler{sem: make(chan struct{}, concurrency)}
	if rps > 0 {
		s.limiter = rate.NewLimiter(rate.Limit(rps), 1)
	}
	return s
}

// Wait blocks until the rate limiter admits another attempt.
func (s *scheduler) Wait(ctx context.Context) error {
	if s.limiter != nil {
		return s.limiter.Wait(ctx)
	}
	return ctx.Err()
}

// Acquire takes a concurrency slot.
func (s *scheduler) Acquire(ctx context.Context) error {
	select {
	case s.sem <- struct{}{}:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *scheduler) Release() {
	<-s.sem
}

// InUse returns the number of held slots.
func (s *scheduler) InUse() int {
	return len(s.sem)
}
