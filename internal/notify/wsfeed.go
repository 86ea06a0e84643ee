package notify

import (
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// Envelope is the generic event envelope broadcast to every connected
// client, matching the teacher's WSMessage[T] shape.
type Envelope struct {
	Type      string      `json:"type"`
	Version   int         `json:"version"`
	EmittedAt time.Time   `json:"emittedAt"`
	Data      interface{} `json:"data"`
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// WSBroadcaster fans scaling/health events out to every connected `/events`
// client. A slow or disconnected client never blocks a publisher: writes go
// through a small per-client buffered channel and are dropped if full.
type WSBroadcaster struct {
	mu      sync.Mutex
	clients map[*websocket.Conn]chan Envelope
}

// NewWSBroadcaster creates an empty broadcaster.
func NewWSBroadcaster() *WSBroadcaster {
	return &WSBroadcaster{clients: make(map[*websocket.Conn]chan Envelope)}
}

// ServeHTTP upgrades the request to a websocket and registers it as a
// subscriber until the connection closes.
func (b *WSBroadcaster) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}

	out := make(chan Envelope, 32)
	b.mu.Lock()
	b.clients[conn] = out
	b.mu.Unlock()

	defer func() {
		b.mu.Lock()
		delete(b.clients, conn)
		b.mu.Unlock()
		conn.Close()
	}()

	for env := range out {
		if err := conn.WriteJSON(env); err != nil {
			return
		}
	}
}

func (b *WSBroadcaster) broadcast(env Envelope) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, ch := range b.clients {
		select {
		case ch <- env:
		default:
			// client is behind; drop rather than block the publisher.
		}
	}
}

func (b *WSBroadcaster) OnPoolScaled(e ScalingEvent) {
	b.broadcast(Envelope{Type: "pool_scaled", Version: 1, EmittedAt: time.Now(), Data: e})
}

func (b *WSBroadcaster) OnSlowRequest(e SlowRequestEvent) {
	b.broadcast(Envelope{Type: "slow_request", Version: 1, EmittedAt: time.Now(), Data: e})
}

func (b *WSBroadcaster) OnHighUtilization(e HighUtilizationEvent) {
	b.broadcast(Envelope{Type: "high_utilization", Version: 1, EmittedAt: time.Now(), Data: e})
}
