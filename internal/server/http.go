package server

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/julienstroheker/hexpipe/internal/endpoint"
	"github.com/julienstroheker/hexpipe/internal/logging"
)

// DefaultTunnelPath is where WebSocket clients are upgraded
const DefaultTunnelPath = "/tunnel"

// HTTPOptions configures an HTTPServer
type HTTPOptions struct {
	// Addr is the listen address, e.g. ":8080"
	Addr string

	// Path is the WebSocket upgrade path (DefaultTunnelPath when empty)
	Path string

	// Server tunnels the upgraded clients
	Server *Server
}

// HTTPServer upgrades WebSocket clients at Path and tunnels each of them.
// It also serves /healthz and /api/tunnels.
type HTTPServer struct {
	server *http.Server
	tunnel *Server
	cancel context.CancelFunc
}

// NewHTTPServer creates an HTTP server around s
func NewHTTPServer(opts *HTTPOptions) *HTTPServer {
	path := opts.Path
	if path == "" {
		path = DefaultTunnelPath
	}

	// hijacked connections outlive request contexts
	ctx, cancel := context.WithCancel(context.Background())

	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", HealthHandler)
	mux.HandleFunc("/api/tunnels", TunnelsHandler(opts.Server))
	mux.Handle(path, opts.Server.WebSocketHandler(ctx))

	handler := Telemetry(Logger(opts.Server.logger)(mux))

	return &HTTPServer{
		server: &http.Server{
			Addr:              opts.Addr,
			Handler:           handler,
			ReadHeaderTimeout: 10 * time.Second,
		},
		tunnel: opts.Server,
		cancel: cancel,
	}
}

// ListenAndServe starts the HTTP server
func (s *HTTPServer) ListenAndServe() error {
	return s.server.ListenAndServe()
}

// Serve serves HTTP on ln
func (s *HTTPServer) Serve(ln net.Listener) error {
	return s.server.Serve(ln)
}

// Handler returns the root handler
func (s *HTTPServer) Handler() http.Handler {
	return s.server.Handler
}

// Shutdown stops accepting requests, then interrupts the open tunnels
func (s *HTTPServer) Shutdown(ctx context.Context) error {
	err := s.server.Shutdown(ctx)
	s.cancel()
	s.tunnel.Shutdown()
	return err
}

// Close immediately closes the server and its tunnels
func (s *HTTPServer) Close() error {
	err := s.server.Close()
	s.cancel()
	s.tunnel.Shutdown()
	return err
}

// WebSocketHandler upgrades requests and tunnels the WebSocket to the target.
// Tunnels are interrupted when ctx is cancelled.
func (s *Server) WebSocketHandler(ctx context.Context) http.Handler {
	upgrader := websocket.Upgrader{
		ReadBufferSize:  s.bufferSize,
		WriteBufferSize: s.bufferSize,
		CheckOrigin:     func(*http.Request) bool { return true },
	}

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		logger := logging.FromContext(r.Context())

		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			// Upgrade already replied with an HTTP error
			logger.Warn("WebSocket upgrade failed", logging.Error(err))
			return
		}

		s.wg.Add(1)
		defer s.wg.Done()
		_ = s.Handle(ctx, endpoint.NewWSConn(conn))
	})
}

// HealthHandler handles health check requests
func HealthHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("OK"))
}

// TunnelsHandler lists the open tunnels of s
func TunnelsHandler(s *Server) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}

		data, err := json.Marshal(s.Tunnels())
		if err != nil {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write(data)
	}
}

type contextKey string

// RequestIDKey is the context key for the request id
const RequestIDKey contextKey = "x-request-id"

// Telemetry assigns a request id, echoes it in the X-Request-Id response
// header and stores it in the request context
func Telemetry(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestID := r.Header.Get("X-Request-Id")
		if requestID == "" {
			requestID = uuid.NewString()
		}
		w.Header().Set("X-Request-Id", requestID)
		ctx := context.WithValue(r.Context(), RequestIDKey, requestID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// GetRequestID retrieves the request id from ctx
func GetRequestID(ctx context.Context) string {
	if id, ok := ctx.Value(RequestIDKey).(string); ok {
		return id
	}
	return ""
}

// responseWriter captures the status code. It keeps http.Hijacker reachable
// for WebSocket upgrades.
type responseWriter struct {
	http.ResponseWriter

	statusCode int
	written    bool
}

func (rw *responseWriter) WriteHeader(code int) {
	if !rw.written {
		rw.statusCode = code
		rw.written = true
		rw.ResponseWriter.WriteHeader(code)
	}
}

func (rw *responseWriter) Write(b []byte) (int, error) {
	if !rw.written {
		rw.WriteHeader(http.StatusOK)
	}
	return rw.ResponseWriter.Write(b)
}

func (rw *responseWriter) Unwrap() http.ResponseWriter {
	return rw.ResponseWriter
}

func (rw *responseWriter) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	h, ok := rw.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, errors.New("server: response writer does not support hijacking")
	}
	rw.statusCode = http.StatusSwitchingProtocols
	rw.written = true
	return h.Hijack()
}

// Logger logs every request and stores logger in the request context
func Logger(logger *logging.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			reqLogger := logger.With(logging.String("request_id", GetRequestID(r.Context())))
			r = r.WithContext(logging.WithContext(r.Context(), reqLogger))
			start := time.Now()

			reqLogger.Debug("Request received",
				logging.String("method", r.Method),
				logging.String("path", r.URL.Path),
				logging.String("remote_addr", r.RemoteAddr))

			rw := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}
			next.ServeHTTP(rw, r)

			reqLogger.Info("Response sent",
				logging.String("method", r.Method),
				logging.String("path", r.URL.Path),
				logging.Int("status", rw.statusCode),
				logging.Duration("duration", time.Since(start)))
		})
	}
}
