package httpclient

import (
	"io"
	"net/http"
	"slices"
	"time"

	"github.com/julienstroheker/hexpipe/internal/logging"
)

// RetryPolicy retries transport errors and retryable status codes with
// exponential backoff. Waiting stops when the request context is done.
type RetryPolicy struct {
	maxRetries       int
	retryDelay       time.Duration
	retryStatusCodes []int
	logger           *logging.Logger
}

// RetryOptions configures a RetryPolicy
type RetryOptions struct {
	// MaxRetries is the number of additional attempts (default: 3)
	MaxRetries int

	// RetryDelay is the first backoff delay (default: 500ms)
	RetryDelay time.Duration

	// RetryStatusCodes trigger a retry (default: 429, 500, 502, 503, 504)
	RetryStatusCodes []int

	// Logger for debug logging (optional)
	Logger *logging.Logger
}

// NewRetryPolicy creates a RetryPolicy
func NewRetryPolicy(opts *RetryOptions) *RetryPolicy {
	if opts == nil {
		opts = &RetryOptions{}
	}

	p := &RetryPolicy{
		maxRetries:       opts.MaxRetries,
		retryDelay:       opts.RetryDelay,
		retryStatusCodes: opts.RetryStatusCodes,
		logger:           opts.Logger,
	}
	if p.maxRetries <= 0 {
		p.maxRetries = 3
	}
	if p.retryDelay <= 0 {
		p.retryDelay = 500 * time.Millisecond
	}
	if len(p.retryStatusCodes) == 0 {
		p.retryStatusCodes = []int{
			http.StatusTooManyRequests,
			http.StatusInternalServerError,
			http.StatusBadGateway,
			http.StatusServiceUnavailable,
			http.StatusGatewayTimeout,
		}
	}
	return p
}

// Do implements Policy
func (p *RetryPolicy) Do(req *http.Request, next func(*http.Request) (*http.Response, error)) (*http.Response, error) {
	var (
		resp *http.Response
		err  error
	)

	for attempt := 0; ; attempt++ {
		if attempt > 0 && req.GetBody != nil {
			body, bodyErr := req.GetBody()
			if bodyErr != nil {
				return nil, bodyErr
			}
			req.Body = body
		}

		resp, err = next(req)
		if err == nil && !p.shouldRetry(resp) {
			return resp, nil
		}
		if attempt == p.maxRetries {
			return resp, err
		}

		// the response is discarded before the next attempt
		if resp != nil {
			_, _ = io.Copy(io.Discard, resp.Body)
			_ = resp.Body.Close()
		}

		p.logger.Debug("Retrying request",
			logging.Int("attempt", attempt+1),
			logging.Int("max_retries", p.maxRetries),
			logging.String("url", req.URL.Redacted()))

		timer := time.NewTimer(p.retryDelay << attempt)
		select {
		case <-req.Context().Done():
			timer.Stop()
			return nil, req.Context().Err()
		case <-timer.C:
		}
	}
}

func (p *RetryPolicy) shouldRetry(resp *http.Response) bool {
	return resp == nil || slices.Contains(p.retryStatusCodes, resp.StatusCode)
}
