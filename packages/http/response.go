package http

import (
	"io"
	"mime"
	"net/http"
	"strings"
	"time"
)

// Response is the raw result of one exchange.
type Response struct {
	StatusCode int
	Status     string
	Headers    map[string]string
	Body       []byte
	Duration   time.Duration
}

// readResponse drains resp into a Response.
func readResponse(resp *http.Response, duration time.Duration) (*Response, error) {
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}

	headers := make(map[string]string, len(resp.Header))
	for k := range resp.Header {
		headers[k] = resp.Header.Get(k)
	}

	return &Response{
		StatusCode: resp.StatusCode,
		Status:     resp.Status,
		Headers:    headers,
		Body:       body,
		Duration:   duration,
	}, nil
}

func (r *Response) Header(key string) string {
	for k, v := range r.Headers {
		if strings.EqualFold(k, key) {
			return v
		}
	}
	return ""
}

func (r *Response) ContentType() string {
	return r.Header("Content-Type")
}

func (r *Response) IsSuccess() bool {
	return r.StatusCode >= 200 && r.StatusCode < 300
}

func (r *Response) IsClientError() bool {
	return r.StatusCode >= 400 && r.StatusCode < 500
}

func (r *Response) IsServerError() bool {
	return r.StatusCode >= 500
}

// ParsedResponse is a successful exchange after its headers were validated.
type ParsedResponse struct {
	*Response
	MediaType string
	Params    map[string]string
}

// IsImage reports whether the body declares an image media type.
func (p *ParsedResponse) IsImage() bool {
	return strings.HasPrefix(p.MediaType, "image/")
}

func parseResponse(resp *Response) (*ParsedResponse, error) {
	if resp == nil {
		return nil, &ParseError{Err: errNilResponse}
	}
	parsed := &ParsedResponse{Response: resp}
	ct := resp.ContentType()
	if ct == "" {
		if len(resp.Body) > 0 {
			parsed.MediaType = http.DetectContentType(resp.Body)
		}
		return parsed, nil
	}
	mediaType, params, err := mime.ParseMediaType(ct)
	if err != nil {
		return nil, &ParseError{Err: err}
	}
	parsed.MediaType = mediaType
	parsed.Params = params
	return parsed, nil
}
