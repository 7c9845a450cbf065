package tcp

import (
	"errors"
	"net"
	"sync"

	"github.com/google/uuid"

	"github.com/zeusync/meshsync/internal/core/observability/log"
	"github.com/zeusync/meshsync/internal/core/protocol"
)

// PeerInfo describes a peer in connect/disconnect notifications.
type PeerInfo struct {
	Address string    `json:"address"`
	Port    uint16    `json:"port"`
	ConnID  uuid.UUID `json:"conn_id"`
}

func (i PeerInfo) Key() string {
	return protocol.Handshake{Address: i.Address, Port: i.Port}.Key()
}

// peer is one record of the mesh. Fields other than queue, done and once
// are guarded by Retranslator.mu.
type peer struct {
	key    uint64
	remote protocol.Handshake
	connID uuid.UUID

	send   net.Conn
	recv   net.Conn
	reader *protocol.Reader
	active bool

	queue chan []byte
	done  chan struct{}
	once  sync.Once
}

func newPeer(key uint64, remote protocol.Handshake, queue int) *peer {
	return &peer{
		key:    key,
		remote: remote,
		queue:  make(chan []byte, queue),
		done:   make(chan struct{}),
	}
}

func (p *peer) info() PeerInfo {
	return PeerInfo{Address: p.remote.Address, Port: p.remote.Port, ConnID: p.connID}
}

// activateLocked marks p connected once both sockets are present and spawns
// its receive and write workers. r.mu must be held.
func (r *Retranslator) activateLocked(p *peer) {
	if p.active || p.send == nil || p.recv == nil {
		return
	}
	p.active = true
	p.connID = uuid.New()
	r.notes.connected(p.info())
	r.stats.peersConnected.Add(1)

	r.group.Go(func() error {
		r.receiveLoop(p)
		return nil
	})
	r.group.Go(func() error {
		r.writeLoop(p)
		return nil
	})

	r.logger.Info("Peer connected",
		log.String("peer", p.remote.Key()), log.String("conn_id", p.connID.String()))
}

// receiveLoop decodes frames from the peer's receive socket until it fails.
func (r *Retranslator) receiveLoop(p *peer) {
	for {
		frame, err := protocol.DecodeFrame(p.reader)
		if err != nil {
			r.dropPeer(p, protocol.WrapError(err, "receive frame"))
			return
		}
		r.stats.framesReceived.Add(1)
		r.stats.bytesReceived.Add(uint64(frame.Size()))
		r.received.push(frame.Items())
	}
}

// writeLoop writes queued frames to the peer's send socket in order.
func (r *Retranslator) writeLoop(p *peer) {
	for {
		select {
		case <-p.done:
			return
		case data := <-p.queue:
			if _, err := p.send.Write(data); err != nil {
				r.dropPeer(p, protocol.WrapError(err, "write frame"))
				return
			}
			r.stats.framesSent.Add(1)
			r.stats.bytesSent.Add(uint64(len(data)))
		}
	}
}

// dropPeer closes both sockets of p and removes its record. A connected
// peer yields exactly one disconnect notification however many workers
// observe the failure.
func (r *Retranslator) dropPeer(p *peer, cause error) {
	p.once.Do(func() {
		close(p.done)

		r.mu.Lock()
		if r.peers[p.key] == p {
			delete(r.peers, p.key)
		}
		wasActive := p.active
		p.active = false
		send, recv := p.send, p.recv
		r.mu.Unlock()

		if send != nil {
			_ = send.Close()
		}
		if recv != nil {
			_ = recv.Close()
		}

		if !wasActive {
			return
		}
		r.notes.disconnected(p.info())
		r.stats.peersDropped.Add(1)

		fields := []log.Field{log.String("peer", p.remote.Key()), log.String("conn_id", p.connID.String())}
		if errors.Is(cause, protocol.ErrConnectionClosed) || errors.Is(cause, net.ErrClosed) {
			r.logger.Info("Peer disconnected", fields...)
		} else {
			fields = append(fields, log.Int("code", int(protocol.GetErrorCode(cause))), log.Error(cause))
			r.logger.Warn("Peer dropped", fields...)
		}
	})
}

// Peers returns the currently connected peers.
func (r *Retranslator) Peers() []PeerInfo {
	r.mu.Lock()
	defer r.mu.Unlock()

	infos := make([]PeerInfo, 0, len(r.peers))
	for _, p := range r.peers {
		if p.active {
			infos = append(infos, p.info())
		}
	}
	return infos
}
