package api

import (
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ossuary-dev/ossuary-pi/internal/services/pubsub"
)

func dialWebSocket(t *testing.T, server *httptest.Server) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(server.URL, "http") + "/ws"
	conn, resp, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	if resp != nil && resp.Body != nil {
		_ = resp.Body.Close()
	}
	return conn
}

func TestWebSocketSendsInitialSnapshot(t *testing.T) {
	h := newAPIHarness(t)
	server := httptest.NewServer(h.router)
	defer server.Close()

	conn := dialWebSocket(t, server)
	defer func() { _ = conn.Close() }()

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	var event wsEvent
	require.NoError(t, conn.ReadJSON(&event))
	assert.Equal(t, "network_status", event.Type)

	payload, ok := event.Payload.(map[string]interface{})
	require.True(t, ok)
	assert.Equal(t, "DISCONNECTED", payload["state"])
}

func TestWebSocketStreamsPublishedEvents(t *testing.T) {
	h := newAPIHarness(t)
	server := httptest.NewServer(h.router)
	defer server.Close()

	conn := dialWebSocket(t, server)
	defer func() { _ = conn.Close() }()

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))

	// Skip the initial snapshot.
	var event wsEvent
	require.NoError(t, conn.ReadJSON(&event))

	// The subscription registers during the handshake; give it a moment
	// before publishing.
	require.Eventually(t, func() bool {
		return h.events.SubscriberCount(pubsub.TopicNetworkStatus) == 1
	}, time.Second, 10*time.Millisecond)

	h.events.Publish(pubsub.TopicNetworkStatus, map[string]interface{}{"state": "CONNECTED"})

	require.NoError(t, conn.ReadJSON(&event))
	assert.Equal(t, "network_status", event.Type)
	payload, ok := event.Payload.(map[string]interface{})
	require.True(t, ok)
	assert.Equal(t, "CONNECTED", payload["state"])
}
