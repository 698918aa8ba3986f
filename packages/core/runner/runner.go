package runner

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"maps"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/abdul-hamid-achik/imagic/packages/core/config"
	"github.com/abdul-hamid-achik/imagic/packages/history"
	"github.com/abdul-hamid-achik/imagic/packages/http"
	"github.com/abdul-hamid-achik/imagic/packages/imagecodec"
	"github.com/abdul-hamid-achik/imagic/packages/queue"
)

// HealthPath is the readiness route of the compositing server.
const HealthPath = "/healthz"

// OutputSuffix is appended to the depth file name when a job has no output path.
const OutputSuffix = "-stereogram.png"

// Runner uploads image pairs to the configured endpoint.
type Runner struct {
	cfg       *config.Config
	client    *http.Client
	store     *history.Store
	logger    *slog.Logger
	observers []queue.Observer
}

type Option func(*Runner)

// WithHistory records every delivered upload in store.
func WithHistory(store *history.Store) Option {
	return func(r *Runner) {
		r.store = store
	}
}

func WithLogger(logger *slog.Logger) Option {
	return func(r *Runner) {
		if logger != nil {
			r.logger = logger
		}
	}
}

// WithObserver adds a queue observer, called after the runner's own.
func WithObserver(o queue.Observer) Option {
	return func(r *Runner) {
		if o != nil {
			r.observers = append(r.observers, o)
		}
	}
}

// WithClient replaces the HTTP client built from the configuration.
func WithClient(c *http.Client) Option {
	return func(r *Runner) {
		r.client = c
	}
}

// NewRunner validates cfg and builds a runner for it.
func NewRunner(cfg *config.Config, opts ...Option) (*Runner, error) {
	if cfg == nil {
		cfg = config.DefaultConfig()
	}
	if err := cfg.Check(); err != nil {
		return nil, err
	}

	r := &Runner{
		cfg:    cfg,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(r)
	}

	if r.client == nil {
		clientOpts := []http.ClientOption{
			http.WithFollowRedirects(cfg.GetFollowRedirects()),
			http.WithValidateSSL(cfg.GetValidateSSL()),
			http.WithClientLogger(r.logger),
		}
		if cfg.Proxy != "" {
			clientOpts = append(clientOpts, http.WithProxy(cfg.Proxy))
		}
		r.client = http.NewClient(clientOpts...)
	}
	return r, nil
}

// Job is one background/depth pair.
type Job struct {
	Name           string
	BackgroundPath string
	DepthPath      string
	OutputPath     string
}

// Output returns where the result is written, relative to outputDir when
// the job does not name a path.
func (j Job) Output(outputDir string) string {
	if j.OutputPath != "" {
		return j.OutputPath
	}
	base := filepath.Base(j.DepthPath)
	base = strings.TrimSuffix(base, filepath.Ext(base))
	return filepath.Join(outputDir, base+OutputSuffix)
}

func (j Job) tag() string {
	if j.Name != "" {
		return j.Name
	}
	return filepath.Base(j.DepthPath)
}

type RunResult struct {
	URL      string
	Results  []*UploadResult
	Duration time.Duration
	Passed   int
	Failed   int
	Metrics  queue.Summary
}

type UploadResult struct {
	Name       string
	RequestID  string
	Background string
	Depth      string
	Output     string
	Bytes      int
	StatusCode int
	Attempts   int
	Duration   time.Duration
	Kind       http.ErrorKind
	Error      error
}

// Passed reports whether the image was received and written.
func (u *UploadResult) Passed() bool {
	return u.Error == nil
}

// URL builds the endpoint URL from the configuration.
func (r *Runner) URL() (string, error) {
	return r.cfg.URLBuilder().Build()
}

// HealthURL returns the readiness route on the configured host.
func (r *Runner) HealthURL() (string, error) {
	return http.NewURLBuilder().
		SetScheme(r.cfg.Endpoint.Scheme).
		SetHost(r.cfg.Endpoint.Host).
		SetPath(HealthPath).
		Build()
}

// Run uploads every job and waits for all of them to complete. A
// configuration error fails the whole run; per-job failures are reported in
// the result. If ctx ends first, outstanding uploads are cancelled and the
// partial result is returned with ctx's error.
func (r *Runner) Run(ctx context.Context, jobs []Job) (*RunResult, error) {
	start := time.Now()

	endpoint, err := r.URL()
	if err != nil {
		return nil, err
	}

	result := &RunResult{URL: endpoint, Results: make([]*UploadResult, len(jobs))}
	byID := make(map[string]*UploadResult, len(jobs))

	delivery := queue.NewLoopDelivery()
	metrics := queue.NewMetrics()
	queueOpts := []queue.Option{
		queue.WithConcurrency(r.cfg.Concurrency),
		queue.WithRate(r.cfg.Rate),
		queue.WithRetryDelay(time.Duration(r.cfg.RetryDelay) * time.Millisecond),
		queue.WithDelivery(delivery),
		queue.WithMetrics(metrics),
		queue.WithLogger(r.logger),
		queue.WithObserver(func(o queue.Outcome) {
			if res, ok := byID[o.RequestID]; ok {
				res.StatusCode = o.StatusCode
				res.Attempts = o.Attempts
				res.Duration = o.Duration
				res.Kind = o.Kind
				if o.Err != nil {
					res.Error = o.Err
				}
			}
		}),
	}
	if r.store != nil {
		queueOpts = append(queueOpts, queue.WithObserver(r.store.Observer()))
	}
	for _, o := range r.observers {
		queueOpts = append(queueOpts, queue.WithObserver(o))
	}
	q := queue.New(r.client, queueOpts...)

	for i, job := range jobs {
		res := &UploadResult{
			Name:       job.tag(),
			Background: job.BackgroundPath,
			Depth:      job.DepthPath,
		}
		result.Results[i] = res

		req, err := r.buildRequest(ctx, endpoint, job, res)
		if err != nil {
			res.Error = err
			continue
		}
		res.RequestID = req.ID()
		byID[req.ID()] = res

		if err := q.Add(ctx, req); err != nil {
			res.Error = err
		}
	}

	allHandedOff := make(chan struct{})
	go func() {
		q.Wait()
		close(allHandedOff)
	}()

	runErr := delivery.RunUntil(ctx, allHandedOff)
	if runErr != nil {
		r.logger.Warn("run interrupted, cancelling uploads", "error", runErr)
		q.Stop()
		delivery.Drain()
	}
	q.Stop()

	if r.store != nil {
		r.recordOutputs(result.Results)
	}

	for _, res := range result.Results {
		if res.Passed() {
			result.Passed++
		} else {
			result.Failed++
		}
	}
	result.Metrics = metrics.Summary()
	result.Duration = time.Since(start)
	return result, runErr
}

func (r *Runner) buildRequest(ctx context.Context, endpoint string, job Job, res *UploadResult) (*http.UploadRequest, error) {
	fields := r.cfg.Fields
	parts, err := imagecodec.LoadParts(ctx,
		[]string{fields.Background, fields.Depth},
		map[string]string{fields.Background: job.BackgroundPath, fields.Depth: job.DepthPath},
		r.cfg.GetConvertPNG(),
	)
	if err != nil {
		return nil, fmt.Errorf("loading images: %w", err)
	}

	output := job.Output(r.cfg.OutputDir)
	opts := []http.RequestOption{
		http.WithRetryPolicy(r.cfg.RetryPolicy()),
		http.WithTag(job.tag()),
		http.WithEncoderOptions(
			http.WithCharset(r.cfg.Charset),
			http.WithEncoderLogger(r.logger),
		),
		http.OnSuccess(func(p *http.ParsedResponse) {
			if err := writeImage(output, p); err != nil {
				res.Error = err
				return
			}
			res.Output = output
			res.Bytes = len(p.Body)
		}),
		http.OnError(func(err error) {
			var te *http.TransportError
			if errors.As(err, &te) && te.Kind == http.KindServerError {
				r.logger.Debug("server error body", "job", job.tag(), "body", te.Message())
			}
		}),
	}
	if len(r.cfg.Headers) > 0 {
		headers := http.DefaultHeaders()
		maps.Copy(headers, r.cfg.Headers)
		opts = append(opts, http.WithHeaders(headers))
	}

	return http.NewMultipartPost(endpoint, r.cfg.Form.Values(), parts, opts...), nil
}

// writeImage stores the response body at path. Bodies that are not images
// are rejected so an HTML error page is never saved as a PNG.
func writeImage(path string, p *http.ParsedResponse) error {
	if !p.IsImage() {
		return fmt.Errorf("unexpected response content type %q", p.MediaType)
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("creating output directory: %w", err)
		}
	}
	if err := os.WriteFile(path, p.Body, 0644); err != nil {
		return fmt.Errorf("writing output: %w", err)
	}
	return nil
}

func (r *Runner) recordOutputs(results []*UploadResult) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	for _, res := range results {
		if res.Output == "" || res.RequestID == "" {
			continue
		}
		if err := r.store.SetOutput(ctx, res.RequestID, res.Output); err != nil {
			r.logger.Warn("recording output", "request", res.RequestID, "error", err)
		}
	}
}
