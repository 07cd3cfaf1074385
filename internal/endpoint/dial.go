package endpoint

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/gorilla/websocket"
	"github.com/julienstroheker/hexpipe/internal/logging"
)

// DefaultDialTimeout bounds connection establishment when Dialer.Timeout is unset
const DefaultDialTimeout = 10 * time.Second

// ErrUnsupportedScheme is returned for targets that are not tcp, ws or wss URLs
var ErrUnsupportedScheme = errors.New("endpoint: unsupported target scheme")

// Dialer opens duplex connections to targets of the form tcp://host:port,
// ws://host/path or wss://host/path. A bare host:port is treated as tcp.
type Dialer struct {
	// Timeout bounds the TCP connect and the WebSocket handshake
	Timeout time.Duration

	// Token authenticates WebSocket targets. SAS tokens travel in the
	// sb-hc-token query parameter, other tokens as a bearer header.
	Token string

	// Logger receives debug logs
	Logger *logging.Logger
}

// Dial connects to target
func (d *Dialer) Dial(ctx context.Context, target string) (net.Conn, error) {
	u, err := parseTarget(target)
	if err != nil {
		return nil, err
	}

	timeout := d.Timeout
	if timeout <= 0 {
		timeout = DefaultDialTimeout
	}

	switch u.Scheme {
	case "tcp":
		var dialer net.Dialer
		dialer.Timeout = timeout
		conn, err := dialer.DialContext(ctx, "tcp", u.Host)
		if err != nil {
			return nil, fmt.Errorf("failed to dial %s: %w", u.Host, err)
		}
		d.Logger.Debug("dialed tcp target", logging.String("target", u.Host))
		return conn, nil
	case "ws", "wss":
		return d.dialWebSocket(ctx, u, timeout)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedScheme, u.Scheme)
	}
}

func (d *Dialer) dialWebSocket(ctx context.Context, u *url.URL, timeout time.Duration) (net.Conn, error) {
	headers := http.Header{}
	if d.Token != "" {
		if strings.HasPrefix(d.Token, "SharedAccessSignature") {
			q := u.Query()
			if q.Get("sb-hc-token") == "" {
				q.Set("sb-hc-token", d.Token)
				u.RawQuery = q.Encode()
			}
		} else {
			headers.Set("Authorization", "Bearer "+d.Token)
		}
	}

	dialer := websocket.Dialer{
		HandshakeTimeout: timeout,
		Proxy:            http.ProxyFromEnvironment,
	}
	conn, resp, err := dialer.DialContext(ctx, u.String(), headers)
	if resp != nil && resp.Body != nil {
		_ = resp.Body.Close()
	}
	if err != nil {
		if resp != nil {
			return nil, fmt.Errorf("failed to connect to %s (status %d): %w", redact(u), resp.StatusCode, err)
		}
		return nil, fmt.Errorf("failed to connect to %s: %w", redact(u), err)
	}

	d.Logger.Debug("dialed websocket target", logging.String("target", redact(u)))
	return NewWSConn(conn), nil
}

func parseTarget(target string) (*url.URL, error) {
	if target == "" {
		return nil, errors.New("endpoint: empty target")
	}
	if !strings.Contains(target, "://") {
		target = "tcp://" + target
	}
	u, err := url.Parse(target)
	if err != nil {
		return nil, fmt.Errorf("endpoint: invalid target %q: %w", target, err)
	}
	if u.Host == "" {
		return nil, fmt.Errorf("endpoint: target %q has no host", target)
	}
	return u, nil
}

// redact strips the query so tokens never reach logs
func redact(u *url.URL) string {
	c := *u
	c.RawQuery = ""
	return c.String()
}
