package http

import (
	"net/url"
	"strings"
)

// URLBuilder assembles an endpoint URL from scheme, host, path and query
// parameters. Parameters are percent-encoded when added, never when read.
//
// Build is read-only over the builder's state, so it may be called any
// number of times and parameters may keep being added between calls.
type URLBuilder struct {
	scheme string
	host   string
	path   string
	params *OrderedMap[[]string]
}

func NewURLBuilder() *URLBuilder {
	return &URLBuilder{params: NewOrderedMap[[]string]()}
}

// SetScheme sets the scheme prefix, including its separator (e.g. "https://").
// A bare scheme such as "https" gets "://" appended.
func (b *URLBuilder) SetScheme(scheme string) *URLBuilder {
	if scheme != "" && !strings.Contains(scheme, "://") {
		scheme += "://"
	}
	b.scheme = scheme
	return b
}

func (b *URLBuilder) SetHost(host string) *URLBuilder {
	b.host = host
	return b
}

func (b *URLBuilder) SetPath(path string) *URLBuilder {
	b.path = path
	return b
}

// AddParam encodes name and value and appends value to the values already
// stored under the encoded name.
func (b *URLBuilder) AddParam(name, value string) *URLBuilder {
	key := url.QueryEscape(name)
	values, _ := b.params.Get(key)
	b.params.Set(key, append(values, url.QueryEscape(value)))
	return b
}

// Params returns the encoded name/value pairs in emission order.
func (b *URLBuilder) Params() [][2]string {
	var out [][2]string
	for name, values := range b.params.All() {
		for _, v := range values {
			out = append(out, [2]string{name, v})
		}
	}
	return out
}

// Build returns scheme+host+path followed by "?name=value&..." when any
// parameters exist.
func (b *URLBuilder) Build() (string, error) {
	if b.scheme == "" {
		return "", &ConfigurationError{Field: "scheme", Reason: "must be set"}
	}
	if b.host == "" {
		return "", &ConfigurationError{Field: "host", Reason: "must be set"}
	}

	var sb strings.Builder
	sb.WriteString(b.scheme)
	sb.WriteString(b.host)
	sb.WriteString(b.path)

	for i, p := range b.Params() {
		if i == 0 {
			sb.WriteByte('?')
		} else {
			sb.WriteByte('&')
		}
		sb.WriteString(p[0])
		sb.WriteByte('=')
		sb.WriteString(p[1])
	}
	return sb.String(), nil
}
