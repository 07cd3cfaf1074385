package httpclient

import (
	"context"
	"fmt"
	"net/http"
	"runtime"
	"time"

	"github.com/julienstroheker/hexpipe/internal/logging"
)

var defaultUserAgent = fmt.Sprintf("hexpipe/1.0 (Go/%s; %s/%s)", runtime.Version(), runtime.GOOS, runtime.GOARCH)

// Client is an HTTP client running every request through a policy chain
type Client struct {
	httpClient *http.Client
	policies   []Policy
}

// Options configures a Client
type Options struct {
	// Timeout bounds a single attempt
	Timeout time.Duration

	// MaxRetries is the number of additional attempts (0 disables retries)
	MaxRetries int

	// RetryDelay is the first backoff delay, doubled after every attempt
	RetryDelay time.Duration

	// Logger receives request logs at debug level (optional)
	Logger *logging.Logger

	// UserAgent overrides the default User-Agent header
	UserAgent string

	// Transport replaces http.DefaultTransport
	Transport http.RoundTripper
}

// DefaultOptions returns the options used by NewClient(nil)
func DefaultOptions() *Options {
	return &Options{
		Timeout:    10 * time.Second,
		MaxRetries: 3,
		RetryDelay: 500 * time.Millisecond,
		UserAgent:  defaultUserAgent,
	}
}

// NewClient creates a client. Policies run in order: error wrapping,
// retries, request id, user agent, logging.
func NewClient(opts *Options) *Client {
	if opts == nil {
		opts = DefaultOptions()
	}

	httpClient := &http.Client{Timeout: opts.Timeout}
	if opts.Transport != nil {
		httpClient.Transport = opts.Transport
	}

	policies := []Policy{NewErrorPolicy()}
	if opts.MaxRetries > 0 {
		policies = append(policies, NewRetryPolicy(&RetryOptions{
			MaxRetries: opts.MaxRetries,
			RetryDelay: opts.RetryDelay,
			Logger:     opts.Logger,
		}))
	}
	policies = append(policies, NewRequestIDPolicy(""), NewUserAgentPolicy(opts.UserAgent))

	// logging sees the request as sent
	if opts.Logger != nil {
		policies = append(policies, NewLoggingPolicy(opts.Logger, &LoggingOptions{
			HeaderFilters: []string{"Authorization"},
		}))
	}

	return &Client{httpClient: httpClient, policies: policies}
}

// Do sends req through the policy chain
func (c *Client) Do(req *http.Request) (*http.Response, error) {
	next := c.httpClient.Do
	for i := len(c.policies) - 1; i >= 0; i-- {
		policy, inner := c.policies[i], next
		next = func(r *http.Request) (*http.Response, error) {
			return policy.Do(r, inner)
		}
	}
	return next(req)
}

// Get sends a GET request
func (c *Client) Get(ctx context.Context, url string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	return c.Do(req)
}
