// Package platform is the TCP front of the server: the acceptor, the
// per-connection workers, and the request dispatcher.
package platform

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"sync"
	"sync/atomic"

	"github.com/udisondev/playhub/internal/auth"
	"github.com/udisondev/playhub/internal/config"
	"github.com/udisondev/playhub/internal/games"
	"github.com/udisondev/playhub/internal/lobby"
	"github.com/udisondev/playhub/internal/metrics"
	"github.com/udisondev/playhub/internal/protocol"
	"github.com/udisondev/playhub/internal/store"
)

// Server accepts platform connections and runs one worker per connection.
type Server struct {
	cfg     config.Platform
	auth    *auth.Manager
	games   *games.Manager
	metrics *metrics.Metrics
	subs    *Subscriptions
	handler *Handler

	nextConnID atomic.Uint64

	listener net.Listener
	mu       sync.Mutex
}

// NewServer wires the dispatcher over the managers and installs the push
// layer as the lobby's notifier.
func NewServer(
	cfg config.Platform,
	st store.Store,
	am *auth.Manager,
	gm *games.Manager,
	lm *lobby.Manager,
	m *metrics.Metrics,
) *Server {
	subs := NewSubscriptions()
	lm.SetNotifier(subs)

	return &Server{
		cfg:     cfg,
		auth:    am,
		games:   gm,
		metrics: m,
		subs:    subs,
		handler: NewHandler(st, am, gm, lm, subs, m),
	}
}

// Addr returns the listener address, or nil before Run.
func (s *Server) Addr() net.Addr {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener == nil {
		return nil
	}
	return s.listener.Addr()
}

// Close closes the listener and stops the accept loop.
func (s *Server) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener != nil {
		return s.listener.Close()
	}
	return nil
}

// Run listens on the configured address and serves until ctx is canceled.
func (s *Server) Run(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.cfg.Addr())
	if err != nil {
		return fmt.Errorf("listening on %s: %w", s.cfg.Addr(), err)
	}

	s.mu.Lock()
	s.listener = ln
	s.mu.Unlock()

	return s.Serve(ctx, ln)
}

// Serve accepts connections from a ready listener. Split out so tests can
// serve on an ephemeral port.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	go func() {
		<-ctx.Done()
		ln.Close()
	}()

	var wg sync.WaitGroup
	wg.Go(func() {
		slog.Info("platform server started", "address", ln.Addr())
		s.acceptLoop(ctx, &wg, ln)
	})
	wg.Wait()

	return nil
}

func (s *Server) acceptLoop(ctx context.Context, wg *sync.WaitGroup, ln net.Listener) {
	for {
		select {
		case <-ctx.Done():
			return
		default:
			conn, err := ln.Accept()
			if err != nil {
				if errors.Is(err, net.ErrClosed) {
					return
				}
				slog.Error("failed to accept connection", "error", err)
				continue
			}
			wg.Go(func() {
				s.handleConnection(ctx, conn)
			})
		}
	}
}

func (s *Server) handleConnection(ctx context.Context, conn net.Conn) {
	done := make(chan struct{})
	defer close(done)

	go func() {
		select {
		case <-ctx.Done():
			conn.Close()
		case <-done:
		}
	}()

	client := newClient(s.nextConnID.Add(1), conn)

	s.metrics.ActiveConnections.Inc()
	slog.Info("new connection", "remote", client.Remote(), "conn_id", client.ConnID())

	defer func() {
		s.teardown(client)
		conn.Close()
		s.metrics.ActiveConnections.Dec()
		slog.Info("connection closed", "remote", client.Remote(), "conn_id", client.ConnID())
	}()

	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		raw, err := protocol.ReadFrame(conn)
		if err != nil {
			if errors.Is(err, protocol.ErrConnectionClosed) {
				return
			}
			if errors.Is(err, protocol.ErrFrameTooLarge) {
				// The payload was never read, the stream is desynced; tell
				// the client and drop the connection.
				_ = client.Send(protocol.Error("Frame too large"))
				return
			}
			slog.Warn("frame read failed", "conn_id", client.ConnID(), "err", err)
			return
		}

		if err := s.handler.Handle(ctx, client, raw); err != nil {
			// Only a dead socket propagates here.
			return
		}
	}
}

// teardown clears everything a connection owns: its session, its in-flight
// uploads, and its room subscription. Rooms outlive connections.
func (s *Server) teardown(client *Client) {
	s.auth.Logout(client.ConnID())
	s.metrics.ActiveSessions.Set(float64(s.auth.Count()))
	s.games.AbortConnection(client.ConnID())
	s.subs.Unsubscribe(client.ConnID())
}
