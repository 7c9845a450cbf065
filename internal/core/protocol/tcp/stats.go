package tcp

import "sync/atomic"

// Stats is a snapshot of the retranslator counters.
type Stats struct {
	ActivePeers    int    `json:"active_peers"`
	PeersConnected uint64 `json:"peers_connected"`
	PeersDropped   uint64 `json:"peers_dropped"`
	DialsFailed    uint64 `json:"dials_failed"`
	ItemsStaged    uint64 `json:"items_staged"`
	Flushes        uint64 `json:"flushes"`
	FramesSent     uint64 `json:"frames_sent"`
	BytesSent      uint64 `json:"bytes_sent"`
	FramesReceived uint64 `json:"frames_received"`
	BytesReceived  uint64 `json:"bytes_received"`
}

type counters struct {
	peersConnected atomic.Uint64
	peersDropped   atomic.Uint64
	dialsFailed    atomic.Uint64
	itemsStaged    atomic.Uint64
	flushes        atomic.Uint64
	framesSent     atomic.Uint64
	bytesSent      atomic.Uint64
	framesReceived atomic.Uint64
	bytesReceived  atomic.Uint64
}

func (r *Retranslator) Stats() Stats {
	r.mu.Lock()
	active := 0
	for _, p := range r.peers {
		if p.active {
			active++
		}
	}
	r.mu.Unlock()

	return Stats{
		ActivePeers:    active,
		PeersConnected: r.stats.peersConnected.Load(),
		PeersDropped:   r.stats.peersDropped.Load(),
		DialsFailed:    r.stats.dialsFailed.Load(),
		ItemsStaged:    r.stats.itemsStaged.Load(),
		Flushes:        r.stats.flushes.Load(),
		FramesSent:     r.stats.framesSent.Load(),
		BytesSent:      r.stats.bytesSent.Load(),
		FramesReceived: r.stats.framesReceived.Load(),
		BytesReceived:  r.stats.bytesReceived.Load(),
	}
}
