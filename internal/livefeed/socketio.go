package livefeed

import (
	"encoding/json"
	"log"

	socketio "github.com/googollee/go-socket.io"
)

// NewSocketIOServer builds the Socket.IO side of the feed. Dashboards that
// speak Socket.IO rather than raw WebSocket attach here; both transports
// carry the same Event stream.
func NewSocketIOServer() (*socketio.Server, error) {
	server := socketio.NewServer(nil)

	server.OnConnect("/", func(s socketio.Conn) error {
		s.SetContext("")
		// A dashboard scoped to one truck joins that truck's room. Every
		// connection still gets the full namespace feed; room members also
		// get their truck's events through the room, so those arrive twice.
		u := s.URL()
		if truck := u.Query().Get("truck_id"); truck != "" {
			s.Join("fleet:" + truck)
		}
		return nil
	})

	server.OnDisconnect("/", func(s socketio.Conn, reason string) {
	})

	server.OnError("/", func(s socketio.Conn, err error) {
		log.Printf("[LIVEFEED] socket.io error: %v", err)
	})

	go func() {
		if err := server.Serve(); err != nil {
			log.Printf("[LIVEFEED] socket.io serve error: %v", err)
		}
	}()

	return server, nil
}

// SocketIOEmitter adapts *socketio.Server to the Emitter interface.
type SocketIOEmitter struct {
	Server *socketio.Server
}

func (e *SocketIOEmitter) Emit(event string, v interface{}) {
	e.Server.BroadcastToNamespace("/", event, v)

	if ev, ok := v.(Event); ok {
		if truck := truckIDFromPayload(ev.Payload); truck != "" {
			e.Server.BroadcastToRoom("/", "fleet:"+truck, event, v)
		}
	}
}

// truckIDFromPayload peeks the truck_id field every pipeline output
// carries, for room-scoped delivery.
func truckIDFromPayload(payload []byte) string {
	var peek struct {
		TruckID string `json:"truck_id"`
	}
	if err := json.Unmarshal(payload, &peek); err != nil {
		return ""
	}
	return peek.TruckID
}
