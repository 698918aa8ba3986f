package http

import (
	"bytes"
	"context"
	"io"
	"log/slog"
	"strings"

	"github.com/google/uuid"
)

const (
	// MaxChunkSize is the largest copy buffer used for binary part data.
	MaxChunkSize = 1 << 20
	// DefaultCharset is the charset declared on text sections.
	DefaultCharset = "UTF-8"
	// BoundaryPrefix starts every generated boundary.
	BoundaryPrefix = "imagic-"

	crlf = "\r\n"
)

// MultipartEncoder serializes text fields and binary parts into one
// multipart/form-data body. The boundary is generated once per encoder, so
// every body it produces matches the value returned by ContentType.
type MultipartEncoder struct {
	boundary  string
	charset   string
	chunkSize int
	logger    *slog.Logger
}

type EncoderOption func(*MultipartEncoder)

// WithBoundary fixes the boundary instead of generating one.
func WithBoundary(boundary string) EncoderOption {
	return func(e *MultipartEncoder) {
		if boundary != "" {
			e.boundary = boundary
		}
	}
}

// WithCharset sets the charset of text sections. Blank means UTF-8.
func WithCharset(charset string) EncoderOption {
	return func(e *MultipartEncoder) {
		e.charset = charset
	}
}

// WithChunkSize sets the copy buffer size for part data, capped at MaxChunkSize.
func WithChunkSize(n int) EncoderOption {
	return func(e *MultipartEncoder) {
		if n > 0 && n <= MaxChunkSize {
			e.chunkSize = n
		}
	}
}

// WithEncoderLogger sets the logger used for boundary collision warnings.
func WithEncoderLogger(logger *slog.Logger) EncoderOption {
	return func(e *MultipartEncoder) {
		if logger != nil {
			e.logger = logger
		}
	}
}

func NewMultipartEncoder(opts ...EncoderOption) *MultipartEncoder {
	e := &MultipartEncoder{
		boundary:  NewBoundary(),
		chunkSize: MaxChunkSize,
		logger:    slog.Default(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// NewBoundary returns a fresh boundary token.
func NewBoundary() string {
	return BoundaryPrefix + strings.ReplaceAll(uuid.NewString(), "-", "")
}

func (e *MultipartEncoder) Boundary() string {
	return e.boundary
}

// ContentType returns the header value that must accompany the body.
func (e *MultipartEncoder) ContentType() string {
	return "multipart/form-data;boundary=" + e.boundary
}

func (e *MultipartEncoder) Charset() string {
	if strings.TrimSpace(e.charset) == "" {
		return DefaultCharset
	}
	return e.charset
}

// Encode writes the body to w. All text fields are written before all parts.
// Failures are returned as *BodyEncodingError.
func (e *MultipartEncoder) Encode(ctx context.Context, w io.Writer, fields *OrderedMap[string], parts *OrderedMap[*Part]) error {
	for name, value := range fields.All() {
		if err := e.writeText(ctx, w, name, value); err != nil {
			return &BodyEncodingError{Section: name, Err: err}
		}
	}
	for name, part := range parts.All() {
		if err := e.writePart(ctx, w, name, part); err != nil {
			return &BodyEncodingError{Section: name, Err: err}
		}
	}
	if err := ctx.Err(); err != nil {
		return &BodyEncodingError{Err: err}
	}
	if _, err := io.WriteString(w, "--"+e.boundary+"--"+crlf); err != nil {
		return &BodyEncodingError{Err: err}
	}
	return nil
}

// EncodeBytes returns the complete body. On failure it returns a nil slice,
// never a partial body.
func (e *MultipartEncoder) EncodeBytes(ctx context.Context, fields *OrderedMap[string], parts *OrderedMap[*Part]) ([]byte, error) {
	var buf bytes.Buffer
	if err := e.Encode(ctx, &buf, fields, parts); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func (e *MultipartEncoder) writeText(ctx context.Context, w io.Writer, name, value string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	e.checkCollision(name, []byte(value))

	var sb strings.Builder
	sb.WriteString("--" + e.boundary + crlf)
	sb.WriteString(`Content-Disposition: form-data; name="` + escapeQuotes(name) + `"` + crlf)
	sb.WriteString("Content-Type: text/plain; charset=" + e.Charset() + crlf)
	sb.WriteString(crlf)
	sb.WriteString(value + crlf)
	_, err := io.WriteString(w, sb.String())
	return err
}

func (e *MultipartEncoder) writePart(ctx context.Context, w io.Writer, name string, part *Part) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if part == nil {
		part = &Part{}
	}
	e.checkCollision(name, part.data)

	var sb strings.Builder
	sb.WriteString("--" + e.boundary + crlf)
	sb.WriteString(`Content-Disposition: form-data; name="` + escapeQuotes(name) + `"; filename="` + escapeQuotes(part.filename) + `"` + crlf)
	if strings.TrimSpace(part.mimeType) != "" {
		sb.WriteString("Content-Type: " + part.mimeType + crlf)
	}
	sb.WriteString(crlf)
	if _, err := io.WriteString(w, sb.String()); err != nil {
		return err
	}
	if err := e.copyChunked(ctx, w, part.data); err != nil {
		return err
	}
	_, err := io.WriteString(w, crlf)
	return err
}

// copyChunked writes data in slices of at most chunkSize bytes.
func (e *MultipartEncoder) copyChunked(ctx context.Context, w io.Writer, data []byte) error {
	for len(data) > 0 {
		if err := ctx.Err(); err != nil {
			return err
		}
		n := min(len(data), e.chunkSize)
		if _, err := w.Write(data[:n]); err != nil {
			return err
		}
		data = data[n:]
	}
	return nil
}

// checkCollision logs when the boundary occurs inside a payload. The body is
// still produced unchanged.
func (e *MultipartEncoder) checkCollision(name string, payload []byte) {
	if bytes.Contains(payload, []byte("--"+e.boundary)) {
		e.logger.Warn("multipart boundary found inside payload",
			slog.String("field", name),
			slog.String("boundary", e.boundary))
	}
}

var quoteEscaper = strings.NewReplacer(`\`, `\\`, `"`, `\"`)

func escapeQuotes(s string) string {
	return quoteEscaper.Replace(s)
}
