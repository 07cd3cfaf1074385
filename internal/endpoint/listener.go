package endpoint

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/julienstroheker/hexpipe/internal/logging"
)

// DefaultBacklog is the number of accepted rendezvous connections waiting for Accept
const DefaultBacklog = 16

// HybridListenerOptions configures a HybridListener
type HybridListenerOptions struct {
	// Namespace and HybridConnection locate the hybrid connection
	Namespace        string
	HybridConnection string

	// Token is a SAS token with Listen rights
	Token string

	// ControlURL replaces the control channel URL derived from Namespace
	ControlURL string

	// Timeout bounds the control and rendezvous handshakes (DefaultDialTimeout when zero)
	Timeout time.Duration

	// Backlog bounds pending connections; further ones are refused (DefaultBacklog when zero)
	Backlog int

	// Logger receives listener logs
	Logger *logging.Logger
}

// HybridListener accepts the senders of an Azure Relay hybrid connection.
// It keeps a control channel open and dials the rendezvous address of every
// accept notification; each rendezvous becomes one net.Conn.
type HybridListener struct {
	id      string
	addr    hybridAddr
	control *websocket.Conn
	dialer  websocket.Dialer
	queue   chan net.Conn
	logger  *logging.Logger

	ctx    context.Context
	cancel context.CancelFunc

	mu     sync.Mutex
	closed bool
	err    error
}

// acceptMessage is the control channel notification for a new sender
type acceptMessage struct {
	Accept *struct {
		Address        string            `json:"address"`
		ID             string            `json:"id"`
		ConnectHeaders map[string]string `json:"connectHeaders"`
	} `json:"accept"`
}

// ListenHybrid opens the control channel of a hybrid connection
func ListenHybrid(ctx context.Context, opts *HybridListenerOptions) (*HybridListener, error) {
	if opts == nil {
		return nil, errors.New("endpoint: listener options are required")
	}
	if opts.Token == "" {
		return nil, errors.New("endpoint: listener token is required")
	}

	id := uuid.NewString()
	controlURL := opts.ControlURL
	if controlURL == "" {
		if opts.Namespace == "" || opts.HybridConnection == "" {
			return nil, errors.New("endpoint: namespace and hybrid connection are required")
		}
		controlURL = HybridConnectionListenURL(opts.Namespace, opts.HybridConnection, id)
	}

	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = DefaultDialTimeout
	}
	backlog := opts.Backlog
	if backlog <= 0 {
		backlog = DefaultBacklog
	}

	dialer := websocket.Dialer{
		HandshakeTimeout: timeout,
		Proxy:            http.ProxyFromEnvironment,
	}

	// the token travels in a header, never in the URL
	header := http.Header{}
	header.Set("ServiceBusAuthorization", opts.Token)

	u, err := url.Parse(controlURL)
	if err != nil {
		return nil, fmt.Errorf("endpoint: invalid control URL: %w", err)
	}

	conn, resp, err := dialer.DialContext(ctx, controlURL, header)
	if resp != nil && resp.Body != nil {
		_ = resp.Body.Close()
	}
	if err != nil {
		if resp != nil {
			return nil, fmt.Errorf("failed to connect to relay control channel %s (status %d): %w", redact(u), resp.StatusCode, err)
		}
		return nil, fmt.Errorf("failed to connect to relay control channel %s: %w", redact(u), err)
	}

	lctx, cancel := context.WithCancel(context.Background())
	l := &HybridListener{
		id:      id,
		addr:    hybridAddr(redact(u)),
		control: conn,
		dialer:  dialer,
		queue:   make(chan net.Conn, backlog),
		logger:  opts.Logger.WithComponent("hybrid-listener").With(logging.String("listener_id", id)),
		ctx:     lctx,
		cancel:  cancel,
	}
	l.logger.Info("Control channel connected", logging.String("address", l.addr.String()))

	go l.handleControlChannel()
	return l, nil
}

// HybridConnectionListenURL builds the control channel URL of a hybrid connection listener
func HybridConnectionListenURL(namespace, hybridConnection, listenerID string) string {
	u := url.URL{
		Scheme: "wss",
		Host:   Namespace(namespace),
		Path:   "/$hc/" + hybridConnection,
	}
	q := url.Values{}
	q.Set("sb-hc-action", "listen")
	q.Set("sb-hc-id", listenerID)
	u.RawQuery = q.Encode()
	return u.String()
}

// Accept waits for the next sender. It returns net.ErrClosed after Close
// and the control channel error once the relay dropped the listener.
func (l *HybridListener) Accept() (net.Conn, error) {
	select {
	case conn := <-l.queue:
		return conn, nil
	case <-l.ctx.Done():
		l.mu.Lock()
		err := l.err
		l.mu.Unlock()
		if err != nil {
			return nil, fmt.Errorf("relay control channel lost: %w", err)
		}
		return nil, net.ErrClosed
	}
}

// Addr returns the control channel URL without its query
func (l *HybridListener) Addr() net.Addr {
	return l.addr
}

// Close closes the control channel and the connections not yet accepted
func (l *HybridListener) Close() error {
	return l.shutdown(nil)
}

func (l *HybridListener) shutdown(cause error) error {
	l.mu.Lock()
	if l.closed {
		l.mu.Unlock()
		return nil
	}
	l.closed = true
	l.err = cause
	l.mu.Unlock()

	l.cancel()
	err := l.control.Close()

	for {
		select {
		case conn := <-l.queue:
			_ = conn.Close()
		default:
			return err
		}
	}
}

func (l *HybridListener) handleControlChannel() {
	for {
		messageType, data, err := l.control.ReadMessage()
		if err != nil {
			if l.ctx.Err() == nil {
				l.logger.Error("Control channel read error", logging.Error(err))
				_ = l.shutdown(err)
			}
			return
		}
		if messageType != websocket.TextMessage {
			continue
		}

		var msg acceptMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			l.logger.Warn("Failed to parse control message", logging.Error(err))
			continue
		}
		if msg.Accept == nil || msg.Accept.Address == "" {
			l.logger.Debug("Ignoring control message", logging.Int("bytes", len(data)))
			continue
		}

		go l.rendezvous(msg.Accept.Address, msg.Accept.ID)
	}
}

// rendezvous dials the address of an accept notification and queues the connection
func (l *HybridListener) rendezvous(address, connectionID string) {
	logger := l.logger.With(logging.String("connection_id", connectionID))

	ctx, cancel := context.WithTimeout(l.ctx, l.dialer.HandshakeTimeout)
	defer cancel()

	conn, resp, err := l.dialer.DialContext(ctx, address, nil)
	if resp != nil && resp.Body != nil {
		_ = resp.Body.Close()
	}
	if err != nil {
		logger.Error("Rendezvous connection failed", logging.Error(err))
		return
	}
	logger.Debug("Rendezvous connection established")

	ws := NewWSConn(conn)
	if l.ctx.Err() != nil {
		_ = ws.Close()
		return
	}
	select {
	case l.queue <- ws:
	case <-l.ctx.Done():
		_ = ws.Close()
	default:
		logger.Warn("Accept queue full, dropping connection")
		_ = ws.Close()
	}
}

type hybridAddr string

func (a hybridAddr) Network() string { return "hc" }
func (a hybridAddr) String() string  { return string(a) }

var _ net.Listener = (*HybridListener)(nil)
