// Package mock provides a local compositing server that accepts the same
// multipart uploads as the remote imagic endpoint and answers with a PNG
// autostereogram.
package mock

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/abdul-hamid-achik/imagic/packages/stereogram"
)

const (
	// DefaultPort is the port used when none is configured.
	DefaultPort = 3000
	// MaxUploadSize bounds the multipart form accepted by /uploads.
	MaxUploadSize = 10 << 20
	// UploadPath is the route that accepts uploads.
	UploadPath = "/uploads"
)

// Server is the local compositing endpoint.
type Server struct {
	port     int
	delay    time.Duration
	verbose  bool
	palette  int
	defaults stereogram.Config
	logger   *slog.Logger
	registry *prometheus.Registry
	metrics  *serverMetrics
	failures atomic.Int64
	rng      *rand.Rand
	router   chi.Router
}

// Option is a functional option for Server
type Option func(*Server)

// WithPort sets the server port
func WithPort(port int) Option {
	return func(s *Server) {
		s.port = port
	}
}

// WithDelay adds a delay to all uploads
func WithDelay(delay time.Duration) Option {
	return func(s *Server) {
		s.delay = delay
	}
}

// WithVerbose enables per-request logging
func WithVerbose(verbose bool) Option {
	return func(s *Server) {
		s.verbose = verbose
	}
}

// WithFailures makes the first n uploads answer 503 Service Unavailable.
func WithFailures(n int) Option {
	return func(s *Server) {
		s.failures.Store(int64(n))
	}
}

// WithPalette dithers every result to n random colors. Zero disables it.
func WithPalette(n int, seed uint64) Option {
	return func(s *Server) {
		s.palette = n
		s.rng = rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))
	}
}

// WithDefaults sets the config used for form fields that are absent or invalid.
func WithDefaults(cfg stereogram.Config) Option {
	return func(s *Server) {
		s.defaults = cfg
	}
}

func WithLogger(logger *slog.Logger) Option {
	return func(s *Server) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithRegistry registers the server metrics on reg instead of a private registry.
func WithRegistry(reg *prometheus.Registry) Option {
	return func(s *Server) {
		if reg != nil {
			s.registry = reg
		}
	}
}

// NewServer creates a new compositing server
func NewServer(opts ...Option) *Server {
	s := &Server{
		port:     DefaultPort,
		defaults: stereogram.DefaultConfig(),
		logger:   slog.Default(),
		registry: prometheus.NewRegistry(),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.metrics = newServerMetrics(s.registry)
	s.router = s.routes()
	return s
}

// Handler returns the server's router.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Addr returns the listen address.
func (s *Server) Addr() string {
	return fmt.Sprintf(":%d", s.port)
}

func (s *Server) routes() chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(s.logRequests)
	r.Use(middleware.Recoverer)

	r.Get("/", s.handleIndex)
	r.Get("/healthz", s.handleHealth)
	r.Post(UploadPath, s.handleUpload)
	r.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(s.registry, promhttp.HandlerOpts{}))
	return r
}

func (s *Server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !s.verbose {
			next.ServeHTTP(w, r)
			return
		}
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		s.logger.Info("request",
			slog.String("method", r.Method),
			slog.String("path", r.URL.Path),
			slog.Int("status", ww.Status()),
			slog.Int("bytes", ww.BytesWritten()),
			slog.Duration("duration", time.Since(start)),
			slog.String("request_id", middleware.GetReqID(r.Context())))
	})
}

// Start starts the server and blocks until it fails.
func (s *Server) Start() error {
	return s.StartWithContext(context.Background())
}

// StartWithContext starts the server with context for graceful shutdown
func (s *Server) StartWithContext(ctx context.Context) error {
	server := &http.Server{
		Addr:              s.Addr(),
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = server.Shutdown(shutdownCtx)
	}()

	s.logger.Info("compositing server starting",
		slog.String("url", fmt.Sprintf("http://localhost:%d", s.port)),
		slog.String("upload", UploadPath))

	err := server.ListenAndServe()
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}
