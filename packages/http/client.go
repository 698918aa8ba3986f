package http

import (
	"bytes"
	"context"
	"crypto/tls"
	"fmt"
	"log/slog"
	"net/http"
	neturl "net/url"
	"time"
)

const (
	// DefaultTimeout bounds an attempt when Execute is given none.
	DefaultTimeout = 30 * time.Second
	// maxRedirects caps redirect chains when redirects are followed.
	maxRedirects = 10
)

// Client performs single exchanges for upload requests. Retries are the
// queue's business; Execute makes exactly one attempt.
type Client struct {
	httpClient *http.Client
	timeout    time.Duration
	follow     bool
	insecure   bool
	proxy      string
	headers    map[string]string
	logger     *slog.Logger
}

type ClientOption func(*Client)

func NewClient(opts ...ClientOption) *Client {
	c := &Client{
		timeout: DefaultTimeout,
		follow:  true,
		headers: make(map[string]string),
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}

	// Attempt deadlines come from the request context, not the client.
	c.httpClient = &http.Client{
		Transport:     c.newTransport(),
		CheckRedirect: c.checkRedirect,
	}
	return c
}

func (c *Client) newTransport() *http.Transport {
	transport := http.DefaultTransport.(*http.Transport).Clone()
	if c.insecure {
		transport.TLSClientConfig = &tls.Config{InsecureSkipVerify: true}
	}
	if c.proxy != "" {
		u, err := neturl.Parse(c.proxy)
		if err != nil {
			c.logger.Warn("ignoring invalid proxy URL", "proxy", c.proxy, "error", err)
		} else {
			transport.Proxy = http.ProxyURL(u)
		}
	}
	return transport
}

func (c *Client) checkRedirect(req *http.Request, via []*http.Request) error {
	if !c.follow || len(via) >= maxRedirects {
		return http.ErrUseLastResponse
	}
	return nil
}

// WithTimeout sets the attempt timeout used when Execute gets none.
func WithTimeout(d time.Duration) ClientOption {
	return func(c *Client) {
		c.timeout = d
	}
}

func WithFollowRedirects(follow bool) ClientOption {
	return func(c *Client) {
		c.follow = follow
	}
}

// WithDefaultHeaders sets headers sent with every request, below the
// request's own headers.
func WithDefaultHeaders(headers map[string]string) ClientOption {
	return func(c *Client) {
		for k, v := range headers {
			c.headers[k] = v
		}
	}
}

// WithValidateSSL enables or disables SSL certificate validation
func WithValidateSSL(validate bool) ClientOption {
	return func(c *Client) {
		c.insecure = !validate
	}
}

// WithProxy sends every request through proxyURL.
func WithProxy(proxyURL string) ClientOption {
	return func(c *Client) {
		c.proxy = proxyURL
	}
}

func WithClientLogger(logger *slog.Logger) ClientOption {
	return func(c *Client) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// Execute performs one attempt of req bounded by timeout. A non-2xx status is
// returned as a Response with a nil error; classification is left to the
// caller.
func (c *Client) Execute(ctx context.Context, req *UploadRequest, timeout time.Duration) (*Response, error) {
	if err := ValidateURL(req.URL()); err != nil {
		return nil, err
	}

	if timeout <= 0 {
		timeout = c.timeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	body, err := req.Body(ctx)
	if err != nil {
		return nil, err
	}

	httpReq, err := http.NewRequestWithContext(ctx, req.Method(), req.URL(), bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	for k, v := range c.headers {
		httpReq.Header.Set(k, v)
	}
	for k, v := range req.Headers() {
		httpReq.Header.Set(k, v)
	}
	// Last, so the boundary always matches the body.
	httpReq.Header.Set("Content-Type", req.BodyContentType())

	c.logger.Debug("sending upload", "id", req.ID(), "url", req.URL(), "bytes", len(body), "timeout", timeout)

	start := time.Now()
	httpResp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, err
	}
	return readResponse(httpResp, time.Since(start))
}

// ValidateURL accepts absolute http and https URLs with a host.
func ValidateURL(rawURL string) error {
	u, err := neturl.Parse(rawURL)
	if err != nil {
		return &ConfigurationError{Field: "url", Reason: fmt.Sprintf("is invalid: %v", err)}
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return &ConfigurationError{Field: "url", Reason: fmt.Sprintf("has unsupported scheme %q (only http and https are allowed)", u.Scheme)}
	}
	if u.Host == "" {
		return &ConfigurationError{Field: "url", Reason: "must have a host"}
	}
	return nil
}
