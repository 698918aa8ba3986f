package http

import (
	"context"
	"errors"
	"maps"
	"sync"

	"github.com/google/uuid"
)

// UserAgent is sent by DefaultHeaders. The CLI sets it from the build version.
var UserAgent = "imagic/dev"

// State is the lifecycle position of an UploadRequest.
type State int

const (
	StateCreated State = iota
	StateEnqueued
	StateSucceeded
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateCreated:
		return "created"
	case StateEnqueued:
		return "enqueued"
	case StateSucceeded:
		return "succeeded"
	case StateFailed:
		return "failed"
	default:
		return "invalid"
	}
}

// SuccessListener receives the parsed response of a successful request.
type SuccessListener func(*ParsedResponse)

// ErrorListener receives the classified error of a failed request.
type ErrorListener func(error)

// UploadRequest is one outgoing multipart request. It is created and filled
// by the caller, enqueued exactly once, and completes by calling exactly one
// of its listeners.
type UploadRequest struct {
	id      string
	tag     string
	method  string
	url     string
	headers map[string]string
	policy  RetryPolicy

	fields  *OrderedMap[string]
	parts   *OrderedMap[*Part]
	encoder *MultipartEncoder

	onSuccess SuccessListener
	onError   ErrorListener

	mu     sync.Mutex
	state  State
	body   []byte
	result *ParsedResponse
	err    error
	done   chan struct{}
}

type RequestOption func(*UploadRequest)

// WithHeaders replaces the default header set.
func WithHeaders(headers map[string]string) RequestOption {
	return func(r *UploadRequest) {
		if headers != nil {
			r.headers = maps.Clone(headers)
		}
	}
}

func WithRetryPolicy(p RetryPolicy) RequestOption {
	return func(r *UploadRequest) {
		r.policy = p
	}
}

// WithTag groups requests for bulk cancellation.
func WithTag(tag string) RequestOption {
	return func(r *UploadRequest) {
		r.tag = tag
	}
}

// WithEncoderOptions configures the request's body encoder.
func WithEncoderOptions(opts ...EncoderOption) RequestOption {
	return func(r *UploadRequest) {
		r.encoder = NewMultipartEncoder(opts...)
	}
}

func OnSuccess(fn SuccessListener) RequestOption {
	return func(r *UploadRequest) {
		r.onSuccess = fn
	}
}

func OnError(fn ErrorListener) RequestOption {
	return func(r *UploadRequest) {
		r.onError = fn
	}
}

func NewUploadRequest(method, url string, opts ...RequestOption) *UploadRequest {
	r := &UploadRequest{
		id:     uuid.NewString(),
		method: method,
		url:    url,
		policy: DefaultRetryPolicy(),
		fields: NewOrderedMap[string](),
		parts:  NewOrderedMap[*Part](),
		done:   make(chan struct{}),
	}
	for _, opt := range opts {
		opt(r)
	}
	if r.encoder == nil {
		r.encoder = NewMultipartEncoder()
	}
	return r
}

// NewMultipartPost builds a POST request carrying the given fields and parts.
func NewMultipartPost(url string, fields *OrderedMap[string], parts *OrderedMap[*Part], opts ...RequestOption) *UploadRequest {
	r := NewUploadRequest("POST", url, opts...)
	for name, value := range fields.All() {
		r.fields.Set(name, value)
	}
	for name, part := range parts.All() {
		r.parts.Set(name, part)
	}
	return r
}

func (r *UploadRequest) ID() string               { return r.id }
func (r *UploadRequest) Tag() string              { return r.tag }
func (r *UploadRequest) Method() string           { return r.method }
func (r *UploadRequest) URL() string              { return r.url }
func (r *UploadRequest) RetryPolicy() RetryPolicy { return r.policy }

// Done is closed once a listener has been invoked.
func (r *UploadRequest) Done() <-chan struct{} { return r.done }

func (r *UploadRequest) State() State {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.state
}

// SetParam adds or replaces a text field.
func (r *UploadRequest) SetParam(name, value string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.state != StateCreated {
		return ErrRequestFrozen
	}
	r.fields.Set(name, value)
	r.body = nil
	return nil
}

// PutPart adds or replaces a binary part.
func (r *UploadRequest) PutPart(name string, part *Part) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.state != StateCreated {
		return ErrRequestFrozen
	}
	r.parts.Set(name, part)
	r.body = nil
	return nil
}

// Headers returns the caller supplied headers, or DefaultHeaders when none
// were given.
func (r *UploadRequest) Headers() map[string]string {
	if r.headers == nil {
		return DefaultHeaders()
	}
	return maps.Clone(r.headers)
}

// DefaultHeaders is the header set used when a request supplies none.
func DefaultHeaders() map[string]string {
	return map[string]string{
		"User-Agent": UserAgent,
		"Accept":     "image/png, */*",
	}
}

// BodyContentType returns the boundary-bearing content type of Body.
func (r *UploadRequest) BodyContentType() string {
	return r.encoder.ContentType()
}

// Body encodes the request once and returns the cached bytes on later calls.
// A failed encode is not cached.
func (r *UploadRequest) Body(ctx context.Context) ([]byte, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.body != nil {
		return r.body, nil
	}
	body, err := r.encoder.EncodeBytes(ctx, r.fields, r.parts)
	if err != nil {
		return nil, err
	}
	r.body = body
	return body, nil
}

// MarkEnqueued moves the request from Created to Enqueued. After this the
// fields and parts are read-only.
func (r *UploadRequest) MarkEnqueued() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.state != StateCreated {
		return ErrAlreadyEnqueued
	}
	r.state = StateEnqueued
	return nil
}

// ParseResponse validates a successful exchange. Failures are returned as
// *ParseError.
func (r *UploadRequest) ParseResponse(resp *Response) (*ParsedResponse, error) {
	return parseResponse(resp)
}

// Deliver completes the request with the outcome of the exchange. Exactly
// one listener is called over the request's lifetime; Deliver returns false
// when the request was not enqueued or already completed.
func (r *UploadRequest) Deliver(resp *Response, err error) bool {
	r.mu.Lock()
	if r.state != StateEnqueued {
		r.mu.Unlock()
		return false
	}

	var failure error
	var ce *ConfigurationError
	if resp == nil && errors.As(err, &ce) {
		failure = ce
	} else if te := Classify(resp, err); te != nil {
		failure = te
	} else if parsed, perr := r.ParseResponse(resp); perr != nil {
		failure = perr
	} else {
		r.result = parsed
	}

	if failure != nil {
		r.state = StateFailed
		r.err = failure
	} else {
		r.state = StateSucceeded
	}
	result, onSuccess, onError := r.result, r.onSuccess, r.onError
	r.mu.Unlock()
	defer close(r.done)

	if failure != nil {
		if onError != nil {
			onError(failure)
		}
	} else if onSuccess != nil {
		onSuccess(result)
	}
	return true
}

// Result returns the outcome once the request has completed.
func (r *UploadRequest) Result() (*ParsedResponse, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.result, r.err
}

// Fields returns a copy of the text fields.
func (r *UploadRequest) Fields() *OrderedMap[string] {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.fields.Clone()
}

// Parts returns a copy of the part map. The parts themselves are shared.
func (r *UploadRequest) Parts() *OrderedMap[*Part] {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.parts.Clone()
}
