// Package tcp implements the retranslator: a full mesh of TCP peers that
// exchange flush frames.
//
// Every pair of peers holds two sockets, one per direction. The dialing side
// writes a handshake carrying its own listen endpoint; the accepting side
// uses it to find the record created by its own Connect, or creates a record
// and dials back. A peer counts as connected once both sockets exist.
package tcp

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"net"
	"strconv"
	"sync"
	"time"

	"github.com/cespare/xxhash/v2"
	"golang.org/x/sync/errgroup"

	"github.com/zeusync/meshsync/internal/config"
	"github.com/zeusync/meshsync/internal/core/observability/log"
	"github.com/zeusync/meshsync/internal/core/protocol"
)

const readBufferSize = 64 * 1024

// Accept retry backoff, as net/http uses for temporary accept errors.
const (
	minAcceptDelay = 5 * time.Millisecond
	maxAcceptDelay = time.Second
)

// Retranslator owns the listening socket, the peer records and the two
// buffers shared with the tick loop: staged outbound items and received
// items.
type Retranslator struct {
	cfg    *config.Network
	logger log.Log

	mu       sync.Mutex
	running  bool
	listener net.Listener
	local    protocol.Handshake
	group    *errgroup.Group
	peers    map[uint64]*peer

	// ctx is cancelled by Stop to abandon dials in flight; pending holds
	// sockets whose handshake is still being read or written.
	ctx     context.Context
	cancel  context.CancelFunc
	pending map[net.Conn]struct{}

	stage    staging
	received inbox
	notes    notifications

	stats counters
}

// New creates a stopped retranslator. cfg is shared, not copied.
func New(cfg *config.Network, logger log.Log) *Retranslator {
	if logger == nil {
		logger = log.Nop()
	}
	return &Retranslator{
		cfg:    cfg,
		logger: logger.With(log.String("component", "retranslator")),
		peers:  make(map[uint64]*peer),
	}
}

// Start binds address:port and spawns the accept loop. Port 0 picks a free
// port; Local reports the one chosen.
func (r *Retranslator) Start(address string, port uint16) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.running {
		return protocol.ErrAlreadyRunning
	}

	ln, err := net.Listen("tcp", net.JoinHostPort(address, strconv.Itoa(int(port))))
	if err != nil {
		return fmt.Errorf("%w: %w", protocol.ErrListenFailed, err)
	}
	if tcpAddr, ok := ln.Addr().(*net.TCPAddr); ok {
		port = uint16(tcpAddr.Port)
	}

	r.listener = ln
	r.local = protocol.Handshake{Address: address, Port: port}
	r.group = &errgroup.Group{}
	r.ctx, r.cancel = context.WithCancel(context.Background())
	r.pending = make(map[net.Conn]struct{})
	r.running = true

	ctx, listener, group := r.ctx, ln, r.group
	group.Go(func() error {
		r.acceptLoop(ctx, listener, group)
		return nil
	})

	r.logger.Info("Retranslator started", log.String("local", r.local.Key()))
	return nil
}

// Stop closes the listener, every socket still in handshake and every peer
// socket, cancels dials in flight, emits a disconnect for each connected
// peer and waits for all background workers to exit.
func (r *Retranslator) Stop() error {
	r.mu.Lock()
	if !r.running {
		r.mu.Unlock()
		return protocol.ErrNotRunning
	}
	r.running = false
	r.cancel()
	_ = r.listener.Close()
	for conn := range r.pending {
		_ = conn.Close()
	}
	clear(r.pending)

	peers := make([]*peer, 0, len(r.peers))
	for _, p := range r.peers {
		peers = append(peers, p)
	}
	group := r.group
	r.mu.Unlock()

	for _, p := range peers {
		r.dropPeer(p, protocol.ErrConnectionClosed)
	}

	err := group.Wait()
	r.logger.Info("Retranslator stopped", log.String("local", r.local.Key()))
	return err
}

// Running reports whether Start succeeded and Stop has not been called since.
func (r *Retranslator) Running() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.running
}

// Local returns the endpoint advertised in handshakes.
func (r *Retranslator) Local() protocol.Handshake {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.local
}

// Connect records peer address:port as send-only and dials it in the
// background, so it never waits on the network. A failed dial is logged and
// removes the record; the caller may Connect again. The peer becomes
// connected once its reciprocal connection arrives.
func (r *Retranslator) Connect(address string, port uint16) error {
	remote := protocol.Handshake{Address: address, Port: port}
	key := peerKey(remote)

	r.mu.Lock()
	defer r.mu.Unlock()

	if !r.running {
		return protocol.ErrNotRunning
	}
	if _, ok := r.peers[key]; ok {
		return fmt.Errorf("%w: %s", protocol.ErrPeerExists, remote)
	}
	// The record goes in before the handshake is written so that the
	// reciprocal connection always finds it.
	p := newPeer(key, remote, r.queueSize())
	r.peers[key] = p

	ctx, local := r.ctx, r.local
	r.group.Go(func() error {
		conn, err := r.dial(ctx, remote, local)
		if err != nil {
			r.stats.dialsFailed.Add(1)
			r.logger.Warn("Connect failed", log.String("peer", remote.Key()), log.Error(err))
			r.dropPeer(p, err)
			return nil
		}
		if r.attachSend(p, conn) {
			r.logger.Debug("Outbound connection established", log.String("peer", remote.Key()))
		}
		return nil
	})
	return nil
}

// dial connects to remote and writes our handshake. Both steps are bounded
// by the connect timeout and abandoned when ctx is cancelled by Stop.
func (r *Retranslator) dial(ctx context.Context, remote, local protocol.Handshake) (net.Conn, error) {
	timeout := r.connectTimeout()
	dialer := net.Dialer{Timeout: timeout}
	conn, err := dialer.DialContext(ctx, "tcp", remote.Key())
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %w", protocol.ErrDialFailed, remote, err)
	}
	if !r.track(conn) {
		_ = conn.Close()
		return nil, protocol.ErrNotRunning
	}
	defer r.untrack(conn)

	_ = conn.SetWriteDeadline(time.Now().Add(timeout))
	if err = protocol.WriteHandshake(conn, local); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("handshake with %s: %w", remote, err)
	}
	_ = conn.SetWriteDeadline(time.Time{})
	return conn, nil
}

func (r *Retranslator) acceptLoop(ctx context.Context, ln net.Listener, group *errgroup.Group) {
	var delay time.Duration
	for {
		conn, err := ln.Accept()
		if err != nil {
			if !r.Running() {
				return
			}
			if delay == 0 {
				delay = minAcceptDelay
			} else {
				delay *= 2
			}
			delay = min(delay, maxAcceptDelay)
			r.logger.Error("Accept failed", log.Error(err), log.Duration("retry_in", delay))

			timer := time.NewTimer(delay)
			select {
			case <-timer.C:
			case <-ctx.Done():
				timer.Stop()
				return
			}
			continue
		}
		delay = 0
		group.Go(func() error {
			r.handleInbound(ctx, conn)
			return nil
		})
	}
}

// handleInbound reads the remote handshake and attaches conn as the receive
// side of the matching peer, dialing back when the peer is new. Until the
// handshake arrives conn is tracked as pending so that Stop can close it.
func (r *Retranslator) handleInbound(ctx context.Context, conn net.Conn) {
	if !r.track(conn) {
		_ = conn.Close()
		return
	}
	_ = conn.SetReadDeadline(time.Now().Add(r.connectTimeout()))
	reader := protocol.NewReader(bufio.NewReaderSize(conn, readBufferSize))
	remote, err := protocol.ReadHandshake(reader)
	r.untrack(conn)
	if err != nil {
		r.logger.Warn("Inbound handshake failed",
			log.String("remote_addr", conn.RemoteAddr().String()), log.Error(err))
		_ = conn.Close()
		return
	}
	_ = conn.SetReadDeadline(time.Time{})
	key := peerKey(remote)

	r.mu.Lock()
	if !r.running {
		r.mu.Unlock()
		_ = conn.Close()
		return
	}
	if p, ok := r.peers[key]; ok {
		if p.recv != nil {
			r.mu.Unlock()
			r.logger.Warn("Duplicate inbound connection", log.String("peer", remote.Key()))
			_ = conn.Close()
			return
		}
		p.recv, p.reader = conn, reader
		r.activateLocked(p)
		r.mu.Unlock()
		return
	}

	p := newPeer(key, remote, r.queueSize())
	p.recv, p.reader = conn, reader
	r.peers[key] = p
	local := r.local
	r.mu.Unlock()

	out, err := r.dial(ctx, remote, local)
	if err != nil {
		r.stats.dialsFailed.Add(1)
		r.logger.Warn("Reciprocal dial failed", log.String("peer", remote.Key()), log.Error(err))
		r.dropPeer(p, err)
		return
	}
	r.attachSend(p, out)
}

// attachSend installs conn as the send side of p and starts watching it. It
// reports false, closing conn, when p was dropped or the retranslator stopped
// meanwhile.
func (r *Retranslator) attachSend(p *peer, conn net.Conn) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	if !r.running || r.peers[p.key] != p {
		_ = conn.Close()
		return false
	}
	p.send = conn
	r.group.Go(func() error {
		r.watchSend(p, conn)
		return nil
	})
	r.activateLocked(p)
	return true
}

// watchSend blocks reading the send socket, on which the remote never
// writes, and drops p once the remote closes it. This is the only way a
// send-only record learns that its peer went away.
func (r *Retranslator) watchSend(p *peer, conn net.Conn) {
	_, err := io.Copy(io.Discard, conn)
	if err == nil {
		err = protocol.ErrConnectionClosed
	}
	r.dropPeer(p, protocol.WrapError(err, "watch send socket"))
}

// track registers a connection whose handshake is in flight. It reports
// false once the retranslator is stopped.
func (r *Retranslator) track(conn net.Conn) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.running {
		return false
	}
	r.pending[conn] = struct{}{}
	return true
}

func (r *Retranslator) untrack(conn net.Conn) {
	r.mu.Lock()
	delete(r.pending, conn)
	r.mu.Unlock()
}

func (r *Retranslator) queueSize() int {
	if r.cfg != nil && r.cfg.PeerQueue > 0 {
		return r.cfg.PeerQueue
	}
	return config.Default().PeerQueue
}

func (r *Retranslator) connectTimeout() time.Duration {
	if r.cfg != nil && r.cfg.ConnectTimeout > 0 {
		return r.cfg.ConnectTimeout
	}
	return config.Default().ConnectTimeout
}

func peerKey(h protocol.Handshake) uint64 {
	return xxhash.Sum64String(h.Key())
}
