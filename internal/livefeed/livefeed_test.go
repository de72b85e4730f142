package livefeed

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Santhosh-zeta/RAKSHAK-AI/internal/bus"
)

func TestFeedDeliversBusEventsToWebSocketClient(t *testing.T) {
	b := bus.NewInProcessBus()
	defer b.Close()

	feed := New(nil)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go feed.Run(ctx, b)

	srv := httptest.NewServer(http.HandlerFunc(feed.HandleWebSocket))
	defer srv.Close()

	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	defer conn.Close()

	// Give the hub a beat to register the client before publishing.
	time.Sleep(50 * time.Millisecond)
	b.Publish("risk.output", []byte(`{"truck_id":"TRUCK-001"}`))

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var ev Event
	require.NoError(t, conn.ReadJSON(&ev))
	assert.Equal(t, "risk.output", ev.Topic)
	assert.Equal(t, json.RawMessage(`{"truck_id":"TRUCK-001"}`), ev.Payload)
}

func TestFeedIgnoresUpstreamTopics(t *testing.T) {
	b := bus.NewInProcessBus()
	defer b.Close()

	feed := New(nil)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go feed.Run(ctx, b)

	time.Sleep(20 * time.Millisecond)
	b.Publish("camera.frames", []byte(`{}`))
	time.Sleep(20 * time.Millisecond)

	stats := feed.Statistics()
	assert.Equal(t, 0, stats["broadcast_queue"])
}

func TestBroadcastDropsWhenQueueFull(t *testing.T) {
	feed := New(nil) // hub not running, queue fills
	for i := 0; i < 300; i++ {
		feed.Broadcast("risk.output", []byte(`{}`))
	}
	stats := feed.Statistics()
	assert.Equal(t, 256, stats["broadcast_queue"])
}
