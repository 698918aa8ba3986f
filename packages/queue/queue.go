package queue

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/abdul-hamid-achik/imagic/packages/http"
)

// ErrQueueStopped is returned by Add after Stop.
var ErrQueueStopped = errors.New("queue stopped")

// Doer performs a single exchange for a request. *http.Client satisfies it.
type Doer interface {
	Execute(ctx context.Context, req *http.UploadRequest, timeout time.Duration) (*http.Response, error)
}

// Outcome describes a delivered request.
type Outcome struct {
	RequestID  string
	Tag        string
	URL        string
	Attempts   int
	Duration   time.Duration
	StatusCode int
	Kind       http.ErrorKind
	Err        error
}

// Succeeded reports whether the success listener was called.
func (o Outcome) Succeeded() bool {
	return o.Err == nil
}

// Observer is notified after each delivery, on the delivery goroutine.
type Observer func(Outcome)

// Queue runs upload requests on a pool of workers.
type Queue struct {
	doer       Doer
	scheduler  *scheduler
	delivery   Delivery
	metrics    *Metrics
	observers  []Observer
	logger     *slog.Logger
	retryDelay time.Duration

	concurrency int
	rps         float64

	ctx    context.Context
	cancel context.CancelFunc

	mu       sync.Mutex
	inflight map[string]*entry
	stopped  bool
	wg       sync.WaitGroup
}

type entry struct {
	req    *http.UploadRequest
	cancel context.CancelFunc
}

type Option func(*Queue)

// WithConcurrency sets the number of requests executed at once.
func WithConcurrency(n int) Option {
	return func(q *Queue) {
		q.concurrency = n
	}
}

// WithRate limits attempts per second. Zero means unlimited.
func WithRate(rps float64) Option {
	return func(q *Queue) {
		q.rps = rps
	}
}

// WithRetryDelay sets the pause between attempts.
func WithRetryDelay(d time.Duration) Option {
	return func(q *Queue) {
		q.retryDelay = d
	}
}

func WithDelivery(d Delivery) Option {
	return func(q *Queue) {
		if d != nil {
			q.delivery = d
		}
	}
}

func WithMetrics(m *Metrics) Option {
	return func(q *Queue) {
		if m != nil {
			q.metrics = m
		}
	}
}

// WithObserver adds an observer. Observers run in registration order.
func WithObserver(o Observer) Option {
	return func(q *Queue) {
		if o != nil {
			q.observers = append(q.observers, o)
		}
	}
}

func WithLogger(logger *slog.Logger) Option {
	return func(q *Queue) {
		if logger != nil {
			q.logger = logger
		}
	}
}

func New(doer Doer, opts ...Option) *Queue {
	q := &Queue{
		doer:        doer,
		delivery:    Immediate{},
		metrics:     NewMetrics(),
		logger:      slog.Default(),
		concurrency: DefaultConcurrency,
		inflight:    make(map[string]*entry),
	}
	for _, opt := range opts {
		opt(q)
	}
	q.scheduler = newScheduler(q.concurrency, q.rps)
	q.ctx, q.cancel = context.WithCancel(context.Background())
	return q
}

func (q *Queue) Metrics() *Metrics {
	return q.metrics
}

// Add validates the URL of req, encodes it on the calling goroutine, marks it
// enqueued and schedules it. Configuration, encoding and enqueue errors are
// returned here and never reach the request's listeners.
func (q *Queue) Add(ctx context.Context, req *http.UploadRequest) error {
	q.mu.Lock()
	stopped := q.stopped
	q.mu.Unlock()
	if stopped {
		return ErrQueueStopped
	}

	if err := http.ValidateURL(req.URL()); err != nil {
		return err
	}
	if _, err := req.Body(ctx); err != nil {
		return err
	}
	if err := req.MarkEnqueued(); err != nil {
		return err
	}

	reqCtx, cancel := context.WithCancel(q.ctx)
	e := &entry{req: req, cancel: cancel}

	q.mu.Lock()
	if q.stopped {
		q.mu.Unlock()
		cancel()
		q.finish(e, nil, context.Canceled, 0, time.Now())
		return nil
	}
	q.inflight[req.ID()] = e
	q.wg.Add(1)
	q.mu.Unlock()

	q.logger.Debug("upload enqueued",
		slog.String("id", req.ID()),
		slog.String("tag", req.Tag()),
		slog.String("url", req.URL()),
		slog.String("retry", req.RetryPolicy().String()))

	go q.run(reqCtx, e)
	return nil
}

func (q *Queue) run(ctx context.Context, e *entry) {
	defer q.wg.Done()
	defer q.forget(e.req.ID())
	defer e.cancel()

	start := time.Now()
	if err := q.scheduler.Acquire(ctx); err != nil {
		q.finish(e, nil, err, 0, start)
		return
	}
	defer q.scheduler.Release()

	resp, attempts, err := q.attempt(ctx, e.req)
	q.finish(e, resp, err, attempts, start)
}

// attempt runs the retry loop for req.
func (q *Queue) attempt(ctx context.Context, req *http.UploadRequest) (*http.Response, int, error) {
	policy := req.RetryPolicy()

	var (
		resp     *http.Response
		err      error
		attempts int
	)
	for n := 0; n < policy.Attempts(); n++ {
		if werr := q.scheduler.Wait(ctx); werr != nil {
			return nil, attempts, werr
		}

		attempts++
		q.metrics.RecordAttempt()
		resp, err = q.doer.Execute(ctx, req, policy.AttemptTimeout(n))

		te := http.Classify(resp, err)
		if te == nil {
			return resp, attempts, nil
		}
		if ctx.Err() != nil {
			return nil, attempts, ctx.Err()
		}
		if !te.Retryable() || n == policy.Attempts()-1 {
			break
		}

		q.metrics.RecordRetry()
		q.logger.Debug("retrying upload",
			slog.String("id", req.ID()),
			slog.Int("attempt", attempts),
			slog.String("kind", te.Kind.String()),
			slog.Int("status", te.StatusCode))

		if serr := sleepWithContext(ctx, q.retryDelay); serr != nil {
			return nil, attempts, serr
		}
	}
	return resp, attempts, err
}

func (q *Queue) finish(e *entry, resp *http.Response, err error, attempts int, start time.Time) {
	duration := time.Since(start)
	q.metrics.Record(duration, http.Classify(resp, err))

	q.delivery.Deliver(func() {
		if !e.req.Deliver(resp, err) {
			return
		}
		_, final := e.req.Result()
		outcome := Outcome{
			RequestID: e.req.ID(),
			Tag:       e.req.Tag(),
			URL:       e.req.URL(),
			Attempts:  attempts,
			Duration:  duration,
			Err:       final,
		}
		if resp != nil {
			outcome.StatusCode = resp.StatusCode
		}
		var te *http.TransportError
		if errors.As(final, &te) {
			outcome.Kind = te.Kind
		}

		if final != nil {
			q.logger.Warn("upload failed",
				slog.String("id", outcome.RequestID),
				slog.Int("attempts", attempts),
				slog.String("error", final.Error()))
		} else {
			q.logger.Info("upload succeeded",
				slog.String("id", outcome.RequestID),
				slog.Int("attempts", attempts),
				slog.Duration("duration", duration))
		}

		for _, o := range q.observers {
			o(outcome)
		}
	})
}

func (q *Queue) forget(id string) {
	q.mu.Lock()
	delete(q.inflight, id)
	q.mu.Unlock()
}

// Cancel abandons the request with the given ID. Its error listener receives
// an Unknown transport error wrapping context.Canceled.
func (q *Queue) Cancel(id string) bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	e, ok := q.inflight[id]
	if ok {
		e.cancel()
	}
	return ok
}

// CancelAll cancels every in-flight request carrying tag and returns how many
// were cancelled.
func (q *Queue) CancelAll(tag string) int {
	q.mu.Lock()
	defer q.mu.Unlock()
	n := 0
	for _, e := range q.inflight {
		if e.req.Tag() == tag {
			e.cancel()
			n++
		}
	}
	return n
}

// Pending returns the number of requests not yet handed to the delivery.
func (q *Queue) Pending() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.inflight)
}

// Wait blocks until every added request has been handed to the delivery.
func (q *Queue) Wait() {
	q.wg.Wait()
}

// Stop cancels all in-flight requests and waits for their workers.
func (q *Queue) Stop() {
	q.mu.Lock()
	q.stopped = true
	q.mu.Unlock()

	q.cancel()
	q.wg.Wait()
}

func sleepWithContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
