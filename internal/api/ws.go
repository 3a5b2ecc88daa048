package api

import (
	"log"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/ossuary-dev/ossuary-pi/internal/services/pubsub"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		// Same trust model as the REST surface: the portal runs on-device.
		return true
	},
}

const (
	wsWriteTimeout = 10 * time.Second
	wsPingInterval = 30 * time.Second
	// Buffer sized so a burst of transitions during AP failover does not
	// drop events for a healthy client.
	wsEventBuffer = 16
)

// wsEvent is the envelope pushed to WebSocket clients.
type wsEvent struct {
	Type      string      `json:"type"`
	Payload   interface{} `json:"payload"`
	Timestamp time.Time   `json:"timestamp"`
}

// handleWebSocket upgrades the connection and streams network status events
// until the client disconnects.
func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("WebSocket upgrade failed: %v", err)
		return
	}

	clientID := uuid.NewString()
	log.Printf("WebSocket client %s connected from %s", clientID, r.RemoteAddr)

	sub := s.events.Subscribe(pubsub.TopicNetworkStatus, wsEventBuffer)
	defer func() {
		s.events.Unsubscribe(sub)
		_ = conn.Close()
		log.Printf("WebSocket client %s disconnected", clientID)
	}()

	// Clients render from the first frame, so send the current snapshot
	// before any deltas.
	if err := writeEvent(conn, "network_status", s.manager.Status()); err != nil {
		return
	}

	// Reader goroutine exists only to detect the client going away.
	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	ping := time.NewTicker(wsPingInterval)
	defer ping.Stop()

	for {
		select {
		case msg, ok := <-sub.Channel:
			if !ok {
				return
			}
			if err := writeEvent(conn, "network_status", msg); err != nil {
				return
			}
		case <-ping.C:
			_ = conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case <-done:
			return
		case <-r.Context().Done():
			return
		}
	}
}

func writeEvent(conn *websocket.Conn, eventType string, payload interface{}) error {
	_ = conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout))
	return conn.WriteJSON(wsEvent{
		Type:      eventType,
		Payload:   payload,
		Timestamp: time.Now().UTC(),
	})
}
