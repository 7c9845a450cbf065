package tcp

import (
	"fmt"
	"sync"

	"github.com/zeusync/meshsync/internal/core/observability/log"
	"github.com/zeusync/meshsync/internal/core/protocol"
)

// staging is the outbound buffer filled by the tick loop between flushes.
// Component items are coalesced per (entity, type); events are kept in
// order.
type staging struct {
	mu       sync.Mutex
	events   []protocol.Item
	entities map[protocol.NetworkID][]protocol.Item
	order    []protocol.NetworkID
}

func (s *staging) add(item protocol.Item) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if item.Flags.IsEvent() {
		item.NetworkID = protocol.NoEntity
		s.events = append(s.events, item)
		return
	}

	if s.entities == nil {
		s.entities = make(map[protocol.NetworkID][]protocol.Item)
	}
	items, ok := s.entities[item.NetworkID]
	if !ok {
		s.order = append(s.order, item.NetworkID)
	}
	for i := range items {
		if items[i].TypeID == item.TypeID {
			items[i] = item
			return
		}
	}
	s.entities[item.NetworkID] = append(items, item)
}

// take snapshots the buffer into a frame and clears it.
func (s *staging) take() *protocol.Frame {
	s.mu.Lock()
	defer s.mu.Unlock()

	f := &protocol.Frame{Events: s.events}
	if len(s.order) > 0 {
		f.Entities = make([]protocol.EntityBlock, 0, len(s.order))
		for _, id := range s.order {
			f.Entities = append(f.Entities, protocol.EntityBlock{NetworkID: id, Components: s.entities[id]})
		}
	}

	s.events = nil
	s.order = nil
	clear(s.entities)
	return f
}

type inbox struct {
	mu    sync.Mutex
	items []protocol.Item
}

func (b *inbox) push(items []protocol.Item) {
	b.mu.Lock()
	b.items = append(b.items, items...)
	b.mu.Unlock()
}

func (b *inbox) drain() []protocol.Item {
	b.mu.Lock()
	defer b.mu.Unlock()
	items := b.items
	b.items = nil
	return items
}

type notifications struct {
	mu   sync.Mutex
	up   []PeerInfo
	down []PeerInfo
}

func (n *notifications) connected(info PeerInfo) {
	n.mu.Lock()
	n.up = append(n.up, info)
	n.mu.Unlock()
}

func (n *notifications) disconnected(info PeerInfo) {
	n.mu.Lock()
	n.down = append(n.down, info)
	n.mu.Unlock()
}

func (n *notifications) drainUp() []PeerInfo {
	n.mu.Lock()
	defer n.mu.Unlock()
	up := n.up
	n.up = nil
	return up
}

func (n *notifications) drainDown() []PeerInfo {
	n.mu.Lock()
	defer n.mu.Unlock()
	down := n.down
	n.down = nil
	return down
}

// StageComponent adds item to the outbound buffer. Events (FlagEvent) are
// appended; a component item replaces an earlier staged item of the same
// type for the same entity.
func (r *Retranslator) StageComponent(item protocol.Item) error {
	if err := protocol.ValidateItem(item); err != nil {
		return err
	}
	if limit := r.maxPayload(); len(item.Payload) > limit {
		return fmt.Errorf("%w: type %d carries %d bytes (limit %d)",
			protocol.ErrPayloadTooLarge, item.TypeID, len(item.Payload), limit)
	}
	if !item.Flags.IsEvent() && item.NetworkID == protocol.NoEntity {
		return fmt.Errorf("%w: component of type %d has no entity", protocol.ErrInvalidFrame, item.TypeID)
	}
	r.stage.add(item)
	r.stats.itemsStaged.Add(1)
	return nil
}

// Flush snapshots and clears the outbound buffer and queues the encoded
// frame for every connected peer. It never waits on the network: a peer
// whose queue is full is dropped.
func (r *Retranslator) Flush() error {
	frame := r.stage.take()
	if frame.Empty() {
		return nil
	}
	r.stats.flushes.Add(1)

	parts := frame.Split()
	encoded := make([][]byte, 0, len(parts))
	for _, part := range parts {
		data, err := protocol.MarshalFrame(part)
		if err != nil {
			return fmt.Errorf("encode frame: %w", err)
		}
		encoded = append(encoded, data)
	}

	var overflow []*peer
	r.mu.Lock()
	for _, p := range r.peers {
		if !p.active {
			continue
		}
	enqueue:
		for _, data := range encoded {
			select {
			case p.queue <- data:
			default:
				overflow = append(overflow, p)
				break enqueue
			}
		}
	}
	r.mu.Unlock()

	for _, p := range overflow {
		r.dropPeer(p, protocol.ErrPeerQueueFull)
	}

	r.logger.Debug("Flushed",
		log.Int("items", frame.Len()), log.Int("frames", len(encoded)), log.Int("overflow", len(overflow)))
	return nil
}

// DrainReceived returns and clears the items decoded since the last call.
func (r *Retranslator) DrainReceived() []protocol.Item {
	return r.received.drain()
}

// DrainConnected returns and clears the peers connected since the last call.
func (r *Retranslator) DrainConnected() []PeerInfo {
	return r.notes.drainUp()
}

// DrainDisconnected returns and clears the peers lost since the last call.
func (r *Retranslator) DrainDisconnected() []PeerInfo {
	return r.notes.drainDown()
}

func (r *Retranslator) maxPayload() int {
	if r.cfg != nil && r.cfg.MaxPayload > 0 {
		return min(r.cfg.MaxPayload, protocol.MaxCount)
	}
	return protocol.MaxCount
}
