// Package server exposes a read-only HTTP monitor of a running node: the
// connected peers, transport counters and a websocket stream of mesh events.
package server

import (
	"context"
	"errors"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/zeusync/meshsync/internal/core/events/bus"
	"github.com/zeusync/meshsync/internal/core/observability/log"
	"github.com/zeusync/meshsync/internal/core/protocol/tcp"
)

// PeerSource reports the state of the transport. tcp.Retranslator
// implements it.
type PeerSource interface {
	Peers() []tcp.PeerInfo
	Stats() tcp.Stats
}

// Config holds monitor configuration
type Config struct {
	ListenAddr string
	// Token, when set, must be presented as a bearer token or a token query
	// parameter.
	Token string
	// ClientBuffer is the number of events queued per websocket client
	// before the client is cut off.
	ClientBuffer int
}

// Monitor serves /peers, /stats and /ws.
type Monitor struct {
	config Config
	logger log.Log
	peers  PeerSource
	events bus.EventBus

	mu       sync.Mutex
	server   *http.Server
	listener net.Listener
	wg       sync.WaitGroup

	// Websocket connections are hijacked, so http.Server.Shutdown does not
	// see them; Stop closes them itself.
	stopping bool
	clients  map[*websocket.Conn]struct{}
	handlers sync.WaitGroup
}

func NewMonitor(config Config, peers PeerSource, events bus.EventBus, logger log.Log) *Monitor {
	if logger == nil {
		logger = log.Nop()
	}
	if config.ClientBuffer <= 0 {
		config.ClientBuffer = 64
	}
	return &Monitor{
		config:  config,
		logger:  logger.With(log.String("component", "monitor")),
		peers:   peers,
		events:  events,
		clients: make(map[*websocket.Conn]struct{}),
	}
}

// Start listens on the configured address and serves in the background.
func (m *Monitor) Start() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.server != nil {
		return ErrServerAlreadyRunning
	}

	ln, err := net.Listen("tcp", m.config.ListenAddr)
	if err != nil {
		return err
	}
	m.listener = ln
	m.stopping = false
	m.server = &http.Server{
		Handler:           m.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	srv := m.server
	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			m.logger.Error("Monitor stopped serving", log.Error(err))
		}
	}()

	m.logger.Info("Monitor listening", log.String("addr", ln.Addr().String()))
	return nil
}

// Addr returns the bound address, or nil when stopped.
func (m *Monitor) Addr() net.Addr {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.listener == nil {
		return nil
	}
	return m.listener.Addr()
}

// Stop shuts the server down, closes every websocket client and waits for
// their handlers to cancel their bus subscriptions.
func (m *Monitor) Stop(ctx context.Context) error {
	m.mu.Lock()
	srv := m.server
	m.server, m.listener = nil, nil
	if srv != nil {
		m.stopping = true
	}
	m.mu.Unlock()

	if srv == nil {
		return ErrServerNotRunning
	}
	err := srv.Shutdown(ctx)
	m.wg.Wait()

	m.mu.Lock()
	for conn := range m.clients {
		_ = conn.Close()
	}
	m.mu.Unlock()
	m.handlers.Wait()

	m.logger.Info("Monitor stopped")
	return err
}

// track registers a websocket client. It reports false once Stop began.
func (m *Monitor) track(conn *websocket.Conn) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.stopping {
		return false
	}
	m.clients[conn] = struct{}{}
	m.handlers.Add(1)
	return true
}

func (m *Monitor) untrack(conn *websocket.Conn) {
	m.mu.Lock()
	delete(m.clients, conn)
	m.mu.Unlock()
	m.handlers.Done()
}

// Clients returns the number of connected websocket clients.
func (m *Monitor) Clients() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.clients)
}
