package httpclient

import (
	"bytes"
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/julienstroheker/hexpipe/internal/logging"
)

func TestNewClient(t *testing.T) {
	client := NewClient(nil)
	if client == nil {
		t.Fatal("Expected non-nil client")
	}
	// error, retry, request id, user agent
	if len(client.policies) != 4 {
		t.Errorf("Expected 4 policies, got %d", len(client.policies))
	}
}

func TestClientDo(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get(RequestIDHeader) == "" {
			t.Error("Expected request id header to be set")
		}
		if !strings.HasPrefix(r.Header.Get("User-Agent"), "hexpipe/") {
			t.Errorf("unexpected User-Agent %q", r.Header.Get("User-Agent"))
		}
		_, _ = w.Write([]byte("success"))
	}))
	defer server.Close()

	resp, err := NewClient(DefaultOptions()).Get(context.Background(), server.URL)
	if err != nil {
		t.Fatalf("Request failed: %v", err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	body, _ := io.ReadAll(resp.Body)
	if string(body) != "success" {
		t.Errorf("Expected body 'success', got '%s'", string(body))
	}
}

func TestRequestIDPolicy_KeepsCallerID(t *testing.T) {
	var seen string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = r.Header.Get(RequestIDHeader)
	}))
	defer server.Close()

	req, _ := http.NewRequest(http.MethodGet, server.URL, nil)
	req.Header.Set(RequestIDHeader, "fixed")
	resp, err := NewClient(&Options{}).Do(req)
	if err != nil {
		t.Fatalf("Request failed: %v", err)
	}
	_ = resp.Body.Close()

	if seen != "fixed" {
		t.Errorf("Expected request id 'fixed', got %q", seen)
	}
}

func TestRetryPolicy(t *testing.T) {
	tests := []struct {
		name     string
		failures int32
		status   int
		attempts int32
	}{
		{"success first time", 0, http.StatusOK, 1},
		{"recovers after two failures", 2, http.StatusOK, 3},
		{"gives up after max retries", 10, http.StatusServiceUnavailable, 4},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var attempts atomic.Int32
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				if attempts.Add(1) <= tt.failures {
					w.WriteHeader(http.StatusServiceUnavailable)
					return
				}
				w.WriteHeader(http.StatusOK)
			}))
			defer server.Close()

			client := NewClient(&Options{MaxRetries: 3, RetryDelay: time.Millisecond})
			resp, err := client.Get(context.Background(), server.URL)
			if err != nil {
				t.Fatalf("Request failed: %v", err)
			}
			_ = resp.Body.Close()

			if resp.StatusCode != tt.status {
				t.Errorf("Expected status %d, got %d", tt.status, resp.StatusCode)
			}
			if got := attempts.Load(); got != tt.attempts {
				t.Errorf("Expected %d attempts, got %d", tt.attempts, got)
			}
		})
	}
}

func TestRetryPolicy_StopsOnContextCancel(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer server.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	client := NewClient(&Options{MaxRetries: 5, RetryDelay: time.Second})
	start := time.Now()
	_, err := client.Get(ctx, server.URL)
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("Expected context.DeadlineExceeded, got %v", err)
	}
	if time.Since(start) > 900*time.Millisecond {
		t.Error("retry backoff ignored the context")
	}
}

func TestErrorPolicy_WrapsTransportErrors(t *testing.T) {
	client := NewClient(&Options{
		Transport: roundTripFunc(func(*http.Request) (*http.Response, error) {
			return nil, io.ErrUnexpectedEOF
		}),
	})

	_, err := client.Get(context.Background(), "http://example.invalid/api/tunnels")
	if !errors.Is(err, io.ErrUnexpectedEOF) {
		t.Fatalf("Expected wrapped io.ErrUnexpectedEOF, got %v", err)
	}
	if !strings.Contains(err.Error(), "example.invalid/api/tunnels") {
		t.Errorf("Expected the URL in the error, got %v", err)
	}
}

func TestLoggingPolicy_RedactsHeaders(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	}))
	defer server.Close()

	var logBuf bytes.Buffer
	client := NewClient(&Options{Logger: logging.NewWithOutput(logging.DebugLevel, &logBuf)})

	req, _ := http.NewRequest(http.MethodGet, server.URL, nil)
	req.Header.Set("Authorization", "Bearer secret")
	resp, err := client.Do(req)
	if err != nil {
		t.Fatalf("Request failed: %v", err)
	}
	_ = resp.Body.Close()

	output := logBuf.String()
	if strings.Contains(output, "secret") {
		t.Errorf("Expected Authorization to be redacted, got: %s", output)
	}
	for _, want := range []string{"HTTP Request", "HTTP Response", "[REDACTED]", "418"} {
		if !strings.Contains(output, want) {
			t.Errorf("Expected log to contain %q, got: %s", want, output)
		}
	}
}

type roundTripFunc func(*http.Request) (*http.Response, error)

func (f roundTripFunc) RoundTrip(r *http.Request) (*http.Response, error) {
	return f(r)
}
