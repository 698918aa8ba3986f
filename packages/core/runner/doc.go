// Package runner executes imagic upload jobs.
//
// It provides functionality for:
//   - Building the endpoint URL and the multipart request for each job
//   - Loading and converting the image files concurrently
//   - Running the uploads on a queue with retries and rate limiting
//   - Writing the returned images and recording them in the history
//
// Completion callbacks run on the goroutine that called Run, so results are
// collected without locks.
package runner
