package httpclient

import (
	"fmt"
	"net/http"
	"slices"
	"strings"
	"time"

	"github.com/julienstroheker/hexpipe/internal/logging"
)

// LoggingPolicy logs requests and responses at debug level
type LoggingPolicy struct {
	logger        *logging.Logger
	headerFilters []string
}

// LoggingOptions configures a LoggingPolicy
type LoggingOptions struct {
	// HeaderFilters names headers whose values are redacted, e.g. "Authorization"
	HeaderFilters []string
}

// NewLoggingPolicy creates a LoggingPolicy
func NewLoggingPolicy(logger *logging.Logger, opts *LoggingOptions) *LoggingPolicy {
	if opts == nil {
		opts = &LoggingOptions{}
	}
	filters := make([]string, 0, len(opts.HeaderFilters))
	for _, h := range opts.HeaderFilters {
		filters = append(filters, http.CanonicalHeaderKey(h))
	}
	return &LoggingPolicy{logger: logger, headerFilters: filters}
}

// Do implements Policy
func (p *LoggingPolicy) Do(req *http.Request, next func(*http.Request) (*http.Response, error)) (*http.Response, error) {
	p.logger.Debug("HTTP Request",
		logging.String("method", req.Method),
		logging.String("url", req.URL.Redacted()),
		p.formatHeaders("request_headers", req.Header))

	start := time.Now()
	resp, err := next(req)
	duration := time.Since(start)

	if err != nil {
		p.logger.Debug("HTTP Request failed",
			logging.String("method", req.Method),
			logging.String("url", req.URL.Redacted()),
			logging.Error(err),
			logging.Duration("duration", duration))
		return resp, err
	}

	p.logger.Debug("HTTP Response",
		logging.String("method", req.Method),
		logging.String("url", req.URL.Redacted()),
		logging.Int("status", resp.StatusCode),
		logging.Duration("duration", duration),
		p.formatHeaders("response_headers", resp.Header))
	return resp, nil
}

// formatHeaders renders headers in a stable order, redacting filtered ones
func (p *LoggingPolicy) formatHeaders(key string, headers http.Header) logging.Field {
	names := make([]string, 0, len(headers))
	for name := range headers {
		names = append(names, name)
	}
	slices.Sort(names)

	parts := make([]string, 0, len(names))
	for _, name := range names {
		value := strings.Join(headers[name], ", ")
		if slices.Contains(p.headerFilters, http.CanonicalHeaderKey(name)) {
			value = "[REDACTED]"
		}
		parts = append(parts, fmt.Sprintf("%s: %s", name, value))
	}
	return logging.String(key, strings.Join(parts, "; "))
}
