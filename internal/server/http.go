package server

import (
	"crypto/subtle"
	"encoding/json"
	"net/http"
	"strings"

	"github.com/zeusync/meshsync/internal/core/observability/log"
	"github.com/zeusync/meshsync/internal/core/protocol/tcp"
)

type peersResponse struct {
	Peers []tcp.PeerInfo `json:"peers"`
	Stats tcp.Stats      `json:"stats"`
}

// Handler returns the monitor routes, usable without Start.
func (m *Monitor) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /peers", m.authorized(m.handlePeers))
	mux.HandleFunc("GET /stats", m.authorized(m.handleStats))
	mux.HandleFunc("GET /ws", m.authorized(m.handleWebSocket))
	return mux
}

func (m *Monitor) handlePeers(w http.ResponseWriter, _ *http.Request) {
	peers := m.peers.Peers()
	if peers == nil {
		peers = []tcp.PeerInfo{}
	}
	m.writeJSON(w, peersResponse{Peers: peers, Stats: m.peers.Stats()})
}

func (m *Monitor) handleStats(w http.ResponseWriter, _ *http.Request) {
	m.writeJSON(w, m.peers.Stats())
}

func (m *Monitor) writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		m.logger.Warn("Failed to write response", log.Error(err))
	}
}

func (m *Monitor) authorized(next http.HandlerFunc) http.HandlerFunc {
	if m.config.Token == "" {
		return next
	}
	want := []byte(m.config.Token)
	return func(w http.ResponseWriter, r *http.Request) {
		token := r.URL.Query().Get("token")
		if h := r.Header.Get("Authorization"); strings.HasPrefix(h, "Bearer ") {
			token = strings.TrimPrefix(h, "Bearer ")
		}
		if subtle.ConstantTimeCompare([]byte(token), want) != 1 {
			http.Error(w, ErrUnauthorized.Error(), http.StatusUnauthorized)
			return
		}
		next(w, r)
	}
}
