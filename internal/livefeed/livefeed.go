// Package livefeed streams pipeline outputs (risk.output, decision.output,
// explain.output) to connected operator frontends over WebSocket and
// Socket.IO. It is a read-only fan-out: the feed subscribes like any other
// processor and owns no pipeline state.
package livefeed

import (
	"context"
	"encoding/json"
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/Santhosh-zeta/RAKSHAK-AI/internal/bus"
)

// Subscriber is the slice of the Bus contract the feed needs. bus.Bus
// satisfies it.
type Subscriber interface {
	Subscribe(topic string) *bus.Subscription
	Unsubscribe(sub *bus.Subscription)
}

type subscription struct {
	topic string
	sub   *bus.Subscription
}

// Event is one pipeline output delivered to frontends. Payload is the
// JSON-encoded record exactly as it crossed the bus.
type Event struct {
	Topic     string          `json:"topic"`
	Timestamp time.Time       `json:"timestamp"`
	Payload   json.RawMessage `json:"payload"`
}

// topics are the downstream channels frontends care about. Upstream
// sensor topics stay off the feed — they are high-rate and carry no
// operator-facing verdicts.
var topics = []string{"risk.output", "decision.output", "explain.output"}

// Feed manages WebSocket connections plus an optional Socket.IO bridge
// for live pipeline updates.
type Feed struct {
	clients    map[*websocket.Conn]bool
	broadcast  chan Event
	register   chan *websocket.Conn
	unregister chan *websocket.Conn
	mu         sync.RWMutex
	upgrader   websocket.Upgrader

	io     Emitter
	logger *log.Logger
}

// Emitter is the Socket.IO side of the feed. *socketio.Server satisfies it
// through the adapter in socketio.go; nil disables that transport.
type Emitter interface {
	Emit(event string, v interface{})
}

// New creates a live feed. emitter may be nil when only the plain
// WebSocket transport is wanted.
func New(emitter Emitter) *Feed {
	return &Feed{
		clients:    make(map[*websocket.Conn]bool),
		broadcast:  make(chan Event, 256),
		register:   make(chan *websocket.Conn),
		unregister: make(chan *websocket.Conn),
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				return true // operator dashboards connect cross-origin
			},
		},
		io:     emitter,
		logger: log.New(log.Writer(), "[LIVEFEED] ", log.LstdFlags),
	}
}

// HandleWebSocket upgrades an HTTP request and registers the connection.
func (f *Feed) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := f.upgrader.Upgrade(w, r, nil)
	if err != nil {
		f.logger.Printf("websocket upgrade error: %v", err)
		return
	}

	f.register <- conn

	go func() {
		defer func() {
			f.unregister <- conn
		}()
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				break
			}
		}
	}()
}

// Broadcast queues an event for delivery to every connected client. Full
// queue drops the event — the feed is advisory, never backpressure on the
// pipeline.
func (f *Feed) Broadcast(topic string, payload []byte) {
	ev := Event{Topic: topic, Timestamp: time.Now(), Payload: json.RawMessage(payload)}
	select {
	case f.broadcast <- ev:
	default:
		f.logger.Printf("feed queue full, dropping %s event", topic)
	}
}

// Statistics returns connection and queue gauges for the stats endpoint.
func (f *Feed) Statistics() map[string]interface{} {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return map[string]interface{}{
		"connected_clients": len(f.clients),
		"broadcast_queue":   len(f.broadcast),
	}
}

// Run subscribes to the downstream topics and pumps the hub until ctx is
// canceled. It is supervised like every other processor task.
func (f *Feed) Run(ctx context.Context, b Subscriber) error {
	subs := make([]*subscription, 0, len(topics))
	for _, topic := range topics {
		subs = append(subs, &subscription{topic: topic, sub: b.Subscribe(topic)})
	}
	defer func() {
		for _, s := range subs {
			b.Unsubscribe(s.sub)
		}
	}()

	for _, s := range subs {
		go f.pump(ctx, s)
	}

	f.runHub(ctx)
	return nil
}

func (f *Feed) pump(ctx context.Context, s *subscription) {
	for {
		select {
		case <-ctx.Done():
			return
		case payload, ok := <-s.sub.C():
			if !ok {
				return
			}
			f.Broadcast(s.topic, payload)
		}
	}
}

// runHub is the register/unregister/broadcast select loop.
func (f *Feed) runHub(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			f.closeAll()
			return

		case client := <-f.register:
			f.mu.Lock()
			f.clients[client] = true
			n := len(f.clients)
			f.mu.Unlock()
			f.logger.Printf("client connected (total: %d)", n)

		case client := <-f.unregister:
			f.mu.Lock()
			if _, ok := f.clients[client]; ok {
				delete(f.clients, client)
				client.Close()
			}
			n := len(f.clients)
			f.mu.Unlock()
			f.logger.Printf("client disconnected (total: %d)", n)

		case event := <-f.broadcast:
			f.mu.RLock()
			for client := range f.clients {
				if err := client.WriteJSON(event); err != nil {
					f.logger.Printf("websocket write error: %v", err)
					client.Close()
					delete(f.clients, client)
				}
			}
			f.mu.RUnlock()

			if f.io != nil {
				f.io.Emit("pipeline_event", event)
			}
		}
	}
}

func (f *Feed) closeAll() {
	f.mu.Lock()
	defer f.mu.Unlock()
	for client := range f.clients {
		client.Close()
		delete(f.clients, client)
	}
}
