package events

import (
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"storefront-gateway/internal/bus"
)

// Envelope is the wire shape pushed to connected UI clients.
type Envelope struct {
	Event     string      `json:"event"`
	Payload   interface{} `json:"payload,omitempty"`
	Timestamp time.Time   `json:"timestamp"`
}

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// Hub fans identity events out to WebSocket clients so every open UI
// surface reacts to a login or logout, not just the tab that caused it.
type Hub struct {
	clients    map[*websocket.Conn]bool
	clientsMux sync.Mutex
	broadcast  chan Envelope
	disposers  []func()
	done       chan struct{}
	closeOnce  sync.Once
}

func NewHub() *Hub {
	h := &Hub{
		clients:   make(map[*websocket.Conn]bool),
		broadcast: make(chan Envelope, 16),
		done:      make(chan struct{}),
	}
	go h.handleBroadcast()
	return h
}

// Start subscribes the hub to the identity events. The returned
// disposers are released by Close.
func (h *Hub) Start(b *bus.Bus) {
	for _, event := range []string{bus.EventLoginRequired, bus.EventLoginCompleted, bus.EventLogoutCompleted} {
		event := event
		h.disposers = append(h.disposers, b.Subscribe(event, func(payload interface{}) {
			h.push(Envelope{Event: event, Payload: payload, Timestamp: time.Now()})
		}))
	}
}

func (h *Hub) push(env Envelope) {
	select {
	case h.broadcast <- env:
	case <-h.done:
	default:
		// Slow consumers drop events rather than block publishers.
	}
}

// HandleWS upgrades the connection and keeps it registered until the
// client goes away.
func (h *Hub) HandleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Println("[Events] WebSocket upgrade error:", err)
		return
	}
	defer conn.Close()

	h.clientsMux.Lock()
	h.clients[conn] = true
	h.clientsMux.Unlock()

	for {
		_, _, err := conn.ReadMessage()
		if err != nil {
			h.clientsMux.Lock()
			delete(h.clients, conn)
			h.clientsMux.Unlock()
			break
		}
	}
}

func (h *Hub) handleBroadcast() {
	for {
		select {
		case env := <-h.broadcast:
			h.clientsMux.Lock()
			for client := range h.clients {
				if err := client.WriteJSON(env); err != nil {
					client.Close()
					delete(h.clients, client)
				}
			}
			h.clientsMux.Unlock()
		case <-h.done:
			return
		}
	}
}

// Close unsubscribes from the bus and drops all clients.
func (h *Hub) Close() {
	h.closeOnce.Do(func() {
		for _, dispose := range h.disposers {
			dispose()
		}
		close(h.done)

		h.clientsMux.Lock()
		for client := range h.clients {
			client.Close()
			delete(h.clients, client)
		}
		h.clientsMux.Unlock()
	})
}
