// Package realtime exposes the Event Bus (events.Bus) to WebSocket
// clients, grounded on the original mediasysbackend realtime/hub.go's
// global pubsub Hub, generalized from a single untyped []byte broadcast
// channel to per-connection subscriptions against a typed events.Bus
// so each client gets its own bounded queue and Lagged(n) signal
// instead of sharing one global broadcast buffer.
package realtime

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/watchtower-nvr/core/events"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// Hub serves the Event Bus over WebSocket. It holds no client registry
// of its own: every connection is just a subscription against the
// shared events.Bus, so registration and fan-out logic live in one
// place (events.Bus) instead of two.
type Hub struct {
	bus *events.Bus
	log *zap.SugaredLogger
}

func NewHub(bus *events.Bus, log *zap.SugaredLogger) *Hub {
	return &Hub{bus: bus, log: log}
}

// laggedMessage is what a client receives in place of a dropped run of
// events, so it knows to reconcile from the REST/Identity Store.
type laggedMessage struct {
	Type    string `json:"type"`
	Dropped int    `json:"dropped"`
}

// ServeWS upgrades the connection, subscribes it to the Event Bus
// under a per-connection id, and streams DomainEvents until the client
// disconnects.
func (h *Hub) ServeWS(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Warnw("realtime: websocket upgrade error", "error", err)
		return
	}

	subscriberID := r.RemoteAddr + "-" + r.URL.Path
	ch, unsub := h.bus.Subscribe(subscriberID)
	defer unsub()

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	// reader: just consumes pings/close so the connection's read
	// deadline machinery keeps working; clients never send us events.
	go func() {
		defer cancel()
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	for {
		select {
		case <-ctx.Done():
			conn.Close()
			return
		case env, ok := <-ch:
			if !ok {
				conn.Close()
				return
			}
			if err := h.write(conn, env); err != nil {
				conn.Close()
				return
			}
		}
	}
}

func (h *Hub) write(conn *websocket.Conn, env events.Envelope) error {
	if env.Event == nil {
		return conn.WriteJSON(laggedMessage{Type: "lagged", Dropped: env.Lagged})
	}
	body, err := json.Marshal(env.Event)
	if err != nil {
		h.log.Errorw("realtime: marshal event", "error", err)
		return nil
	}
	return conn.WriteMessage(websocket.TextMessage, body)
}
