package api

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/julienstroheker/hexpipe/internal/httpclient"
	"github.com/julienstroheker/hexpipe/internal/logging"
)

// Client queries the status API of a hexpipe server
type Client struct {
	baseURL    string
	httpClient *httpclient.Client
}

// Options contains configuration for the API client
type Options struct {
	// BaseURL is the server address, e.g. http://localhost:8080
	BaseURL string

	// Timeout is the HTTP request timeout
	Timeout time.Duration

	// MaxRetries is the maximum number of retry attempts
	MaxRetries int

	// Logger is used for debug logging (optional)
	Logger *logging.Logger
}

// DefaultOptions returns default options for the API client
func DefaultOptions() *Options {
	return &Options{
		BaseURL:    "http://localhost:8080",
		Timeout:    10 * time.Second,
		MaxRetries: 3,
	}
}

// NewClient creates a new status API client
func NewClient(opts *Options) *Client {
	if opts == nil {
		opts = DefaultOptions()
	}

	return &Client{
		baseURL: strings.TrimSuffix(opts.BaseURL, "/"),
		httpClient: httpclient.NewClient(&httpclient.Options{
			Timeout:    opts.Timeout,
			MaxRetries: opts.MaxRetries,
			RetryDelay: 200 * time.Millisecond,
			Logger:     opts.Logger,
		}),
	}
}

// Health checks that the server answers its health endpoint
func (c *Client) Health(ctx context.Context) error {
	resp, err := c.httpClient.Get(ctx, c.baseURL+"/healthz")
	if err != nil {
		return err
	}
	defer func() {
		_ = resp.Body.Close()
	}()
	return checkStatus(resp)
}

// Tunnels lists the tunnels open on the server
func (c *Client) Tunnels(ctx context.Context) (*TunnelList, error) {
	resp, err := c.httpClient.Get(ctx, c.baseURL+"/api/tunnels")
	if err != nil {
		return nil, err // already wrapped by the error policy
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	if err := checkStatus(resp); err != nil {
		return nil, err
	}

	var list TunnelList
	if err := json.NewDecoder(resp.Body).Decode(&list); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}
	return &list, nil
}

func checkStatus(resp *http.Response) error {
	if resp.StatusCode == http.StatusOK {
		return nil
	}
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
	return fmt.Errorf("API returned status %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
}
