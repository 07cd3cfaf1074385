package tunnel

import (
	"fmt"
	"net"
)

// ConnectConns tunnels two network connections. Both are closed once the
// tunnel terminates, before listener is notified.
func ConnectConns(a, b net.Conn, listener Listener, opts *Options) (*Tunnel, error) {
	if a == nil || b == nil {
		return Connect(nil, nil, opts)
	}

	o := Options{}
	if opts != nil {
		o = *opts
	}
	if o.UpName == "" {
		o.UpName = fmt.Sprintf("%s=>%s", addr(a), addr(b))
	}
	if o.DownName == "" {
		o.DownName = fmt.Sprintf("%s=>%s", addr(b), addr(a))
	}
	o.Listener = NewListeners(CloseOnExit(a, b), listener)
	return Connect(a, b, &o)
}

func addr(c net.Conn) string {
	if ra := c.RemoteAddr(); ra != nil {
		return ra.String()
	}
	return "?"
}
