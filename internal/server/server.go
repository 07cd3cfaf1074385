package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/julienstroheker/hexpipe/internal/api"
	"github.com/julienstroheker/hexpipe/internal/endpoint"
	"github.com/julienstroheker/hexpipe/internal/logging"
	"github.com/julienstroheker/hexpipe/pipe"
	"github.com/julienstroheker/hexpipe/tunnel"
	"golang.org/x/sync/semaphore"
)

// DefaultMaxTunnels bounds concurrent tunnels when Options.MaxTunnels is unset
const DefaultMaxTunnels = 64

// Dialer opens the upstream side of a tunnel
type Dialer interface {
	Dial(ctx context.Context, target string) (net.Conn, error)
}

// Options configures a Server
type Options struct {
	// Target is the upstream every accepted client is tunnelled to
	Target string

	// Dialer opens upstream connections (an endpoint.Dialer when nil)
	Dialer Dialer

	// MaxTunnels bounds concurrent tunnels; further clients wait for a slot
	MaxTunnels int64

	// BufferSize is the relay chunk size
	BufferSize int

	// MaxLifetime interrupts tunnels still open after this long (0 = unbounded)
	MaxLifetime time.Duration

	// Logger receives server logs
	Logger *logging.Logger
}

// Server turns inbound connections into tunnels to a fixed target
type Server struct {
	target      string
	dialer      Dialer
	limit       int64
	sem         *semaphore.Weighted
	bufferSize  int
	maxLifetime time.Duration
	logger      *logging.Logger

	mu      sync.RWMutex
	tunnels map[string]*entry
	wg      sync.WaitGroup
}

type entry struct {
	tunnel  *tunnel.Tunnel
	client  string
	started time.Time
}

// New creates a server
func New(opts *Options) (*Server, error) {
	if opts == nil || opts.Target == "" {
		return nil, errors.New("server: target is required")
	}

	limit := opts.MaxTunnels
	if limit <= 0 {
		limit = DefaultMaxTunnels
	}
	dialer := opts.Dialer
	if dialer == nil {
		dialer = &endpoint.Dialer{Logger: opts.Logger}
	}

	return &Server{
		target:      opts.Target,
		dialer:      dialer,
		limit:       limit,
		sem:         semaphore.NewWeighted(limit),
		bufferSize:  opts.BufferSize,
		maxLifetime: opts.MaxLifetime,
		logger:      opts.Logger.WithComponent("server"),
		tunnels:     make(map[string]*entry),
	}, nil
}

// Serve accepts clients from ln until ctx is cancelled or ln fails, then
// interrupts the open tunnels and waits for them
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	s.logger.Info("Accepting clients",
		logging.String("listen", ln.Addr().String()),
		logging.String("target", s.target))

	stop := make(chan struct{})
	defer close(stop)
	go func() {
		select {
		case <-ctx.Done():
			_ = ln.Close()
		case <-stop:
		}
	}()

	for {
		conn, err := ln.Accept()
		if err != nil {
			if ctx.Err() != nil {
				s.logger.Info("Accept loop stopped")
				s.Shutdown()
				return ctx.Err()
			}
			s.Shutdown()
			if errors.Is(err, net.ErrClosed) {
				return nil
			}
			s.logger.Error("Failed to accept connection", logging.Error(err))
			return err
		}

		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			_ = s.Handle(ctx, conn)
		}()
	}
}

// Handle tunnels client to the target and blocks until the tunnel ends.
// It waits for a free slot first and takes ownership of client.
func (s *Server) Handle(ctx context.Context, client net.Conn) error {
	if err := s.sem.Acquire(ctx, 1); err != nil {
		_ = client.Close()
		return err
	}
	defer s.sem.Release(1)

	upstream, err := s.dialer.Dial(ctx, s.target)
	if err != nil {
		_ = client.Close()
		s.logger.Error("Failed to dial target", logging.String("target", s.target), logging.Error(err))
		return err
	}

	name := uuid.NewString()
	logger := s.logger.With(logging.String("tunnel", name))

	t, err := tunnel.ConnectConns(client, upstream, nil, &tunnel.Options{
		Name:       name,
		BufferSize: s.bufferSize,
		Logger:     logger,
	})
	if err != nil {
		_ = client.Close()
		_ = upstream.Close()
		return err
	}

	s.register(name, t, client)
	defer s.unregister(name)
	logger.Debug("Tunnel opened", logging.String("client", addr(client)))

	err = s.await(ctx, t)
	switch {
	case err == nil:
		logger.Debug("Tunnel finished", logging.String("state", t.State().String()))
	case endpoint.IsExpectedClose(err):
		logger.Debug("Tunnel closed by peer", logging.Error(err))
		err = nil
	case errors.Is(err, pipe.ErrInterrupted):
		logger.Debug("Tunnel interrupted")
	default:
		logger.Warn("Tunnel broken", logging.Error(err))
	}
	return err
}

func (s *Server) await(ctx context.Context, t *tunnel.Tunnel) error {
	if s.maxLifetime <= 0 {
		return t.AwaitContext(ctx)
	}

	lifetime, cancel := context.WithTimeout(ctx, s.maxLifetime)
	defer cancel()

	err := t.AwaitContext(lifetime)
	if errors.Is(err, pipe.ErrTimeout) {
		s.logger.Info("Tunnel lifetime exceeded", logging.String("tunnel", t.Name()),
			logging.Duration("max_lifetime", s.maxLifetime))
		t.Interrupt()
		return t.Await()
	}
	return err
}

func (s *Server) register(name string, t *tunnel.Tunnel, client net.Conn) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tunnels[name] = &entry{tunnel: t, client: addr(client), started: time.Now().UTC()}
}

func (s *Server) unregister(name string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.tunnels, name)
}

// Active returns the number of open tunnels
func (s *Server) Active() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.tunnels)
}

// Tunnels describes the open tunnels, oldest first
func (s *Server) Tunnels() api.TunnelList {
	s.mu.RLock()
	list := api.TunnelList{Limit: s.limit, Tunnels: make([]api.TunnelInfo, 0, len(s.tunnels))}
	for name, e := range s.tunnels {
		list.Tunnels = append(list.Tunnels, api.TunnelInfo{
			Name:    name,
			Client:  e.client,
			Target:  s.target,
			State:   e.tunnel.State().String(),
			Started: e.started,
		})
	}
	s.mu.RUnlock()

	list.Active = len(list.Tunnels)
	sort.Slice(list.Tunnels, func(i, j int) bool {
		return list.Tunnels[i].Started.Before(list.Tunnels[j].Started)
	})
	return list
}

// Shutdown interrupts every open tunnel and waits for the handlers started
// by Serve
func (s *Server) Shutdown() {
	s.mu.RLock()
	open := make([]*tunnel.Tunnel, 0, len(s.tunnels))
	for _, e := range s.tunnels {
		open = append(open, e.tunnel)
	}
	s.mu.RUnlock()

	if len(open) > 0 {
		s.logger.Info("Interrupting open tunnels", logging.Int("count", len(open)))
	}
	for _, t := range open {
		t.Interrupt()
	}
	s.wg.Wait()
}

func addr(c net.Conn) string {
	if ra := c.RemoteAddr(); ra != nil {
		return ra.String()
	}
	return fmt.Sprintf("%T", c)
}
