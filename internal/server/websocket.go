package server

import (
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/zeusync/meshsync/internal/core/events/bus"
	"github.com/zeusync/meshsync/internal/core/observability/log"
)

const writeWait = 5 * time.Second

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
}

// handleWebSocket streams every bus event to the client as a JSON envelope
// until either side closes. Clients that fall behind are disconnected.
func (m *Monitor) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		m.logger.Warn("Websocket upgrade failed", log.Error(err))
		return
	}
	defer conn.Close()
	if !m.track(conn) {
		return
	}
	defer m.untrack(conn)

	clientLogger := m.logger.With(log.String("remote_addr", conn.RemoteAddr().String()))
	clientLogger.Debug("Monitor client connected")

	out := make(chan []byte, m.config.ClientBuffer)
	overflow := make(chan struct{})
	var overflowOnce sync.Once
	sub, err := m.events.Subscribe(bus.Wildcard, func(e bus.Event) error {
		data, err := bus.Marshal(e)
		if err != nil {
			return err
		}
		select {
		case out <- data:
		default:
			overflowOnce.Do(func() { close(overflow) })
		}
		return nil
	})
	if err != nil {
		clientLogger.Error("Subscribe failed", log.Error(err))
		return
	}
	defer func() { _ = m.events.Unsubscribe(sub) }()

	// The read loop only notices the client going away.
	closed := make(chan struct{})
	go func() {
		defer close(closed)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	for {
		select {
		case data := <-out:
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.TextMessage, data); err != nil {
				clientLogger.Debug("Monitor client write failed", log.Error(err))
				return
			}
		case <-overflow:
			clientLogger.Warn("Monitor client too slow, disconnecting")
			return
		case <-closed:
			clientLogger.Debug("Monitor client disconnected")
			return
		case <-r.Context().Done():
			return
		}
	}
}
