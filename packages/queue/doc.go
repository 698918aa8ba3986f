// Package queue executes upload requests off the caller's goroutine.
//
// A Queue owns a bounded pool of workers, an optional rate limit and the
// retry loop driven by each request's RetryPolicy. Completion is handed to
// a Delivery, which decides on which goroutine the request's listeners run.
package queue
