package httpclient

import (
	"fmt"
	"net/http"

	"github.com/google/uuid"
)

// Policy is a step of the request pipeline
type Policy interface {
	// Do handles req and calls next to continue the chain
	Do(req *http.Request, next func(*http.Request) (*http.Response, error)) (*http.Response, error)
}

// PolicyFunc adapts a function to Policy
type PolicyFunc func(req *http.Request, next func(*http.Request) (*http.Response, error)) (*http.Response, error)

// Do implements Policy
func (f PolicyFunc) Do(req *http.Request, next func(*http.Request) (*http.Response, error)) (*http.Response, error) {
	return f(req, next)
}

// ErrorPolicy adds the request URL to transport errors
type ErrorPolicy struct{}

// NewErrorPolicy creates an ErrorPolicy
func NewErrorPolicy() *ErrorPolicy {
	return &ErrorPolicy{}
}

// Do implements Policy
func (p *ErrorPolicy) Do(req *http.Request, next func(*http.Request) (*http.Response, error)) (*http.Response, error) {
	resp, err := next(req)
	if err != nil {
		return resp, fmt.Errorf("request to %s failed: %w", req.URL.Redacted(), err)
	}
	return resp, nil
}

// RequestIDHeader carries the request id. hexpipe servers echo it back.
const RequestIDHeader = "X-Request-Id"

// RequestIDPolicy sets a fresh UUID request id unless the caller set one
type RequestIDPolicy struct {
	headerName string
}

// NewRequestIDPolicy creates a RequestIDPolicy for headerName (RequestIDHeader when empty)
func NewRequestIDPolicy(headerName string) *RequestIDPolicy {
	if headerName == "" {
		headerName = RequestIDHeader
	}
	return &RequestIDPolicy{headerName: headerName}
}

// Do implements Policy
func (p *RequestIDPolicy) Do(req *http.Request, next func(*http.Request) (*http.Response, error)) (*http.Response, error) {
	if req.Header.Get(p.headerName) == "" {
		req.Header.Set(p.headerName, uuid.NewString())
	}
	return next(req)
}

// UserAgentPolicy sets the User-Agent header
type UserAgentPolicy struct {
	userAgent string
}

// NewUserAgentPolicy creates a UserAgentPolicy
func NewUserAgentPolicy(userAgent string) *UserAgentPolicy {
	if userAgent == "" {
		userAgent = defaultUserAgent
	}
	return &UserAgentPolicy{userAgent: userAgent}
}

// Do implements Policy
func (p *UserAgentPolicy) Do(req *http.Request, next func(*http.Request) (*http.Response, error)) (*http.Response, error) {
	req.Header.Set("User-Agent", p.userAgent)
	return next(req)
}
