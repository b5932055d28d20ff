// Package gateway fans the throttled candle feed out to frontend websocket
// clients. Every client gets a full series snapshot on connect, then
// incremental bar updates; clients can also switch the streamed target,
// which tears the upstream session down and reseeds everyone.
package gateway

import (
	"encoding/json"
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"market-feedv1/internal/model"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 4096,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// initEnvelope is the snapshot sent to every client on connect and after a
// reseed. The shape mirrors what the chart frontend renders directly.
type initEnvelope struct {
	Type   string            `json:"type"`
	Target string            `json:"target"`
	OHLC   []model.Candle    `json:"ohlc"`
	Volume []model.VolumeBar `json:"volume"`
}

// updateEnvelope carries one bar update.
type updateEnvelope struct {
	Type   string          `json:"type"`
	Candle model.Candle    `json:"candle"`
	Volume model.VolumeBar `json:"volume"`
}

// statusEnvelope carries connection status lines for the frontend banner.
type statusEnvelope struct {
	Type    string `json:"type"`
	State   string `json:"state"`
	Message string `json:"message"`
}

// Hub manages websocket clients and caches the current series so a client
// connecting mid-stream still receives the full chart. It implements the
// candle sink interface; the throttled feed drives it.
type Hub struct {
	mu      sync.RWMutex
	clients map[*Client]bool
	target  string
	candles []model.Candle
	volumes []model.VolumeBar
	status  statusEnvelope

	// targets receives target-switch requests from clients; the session
	// manager consumes it. Nil disables switching.
	targets chan<- model.SubscriptionTarget

	// Hooks, all optional.
	OnClientCount func(n int)
	OnDrop        func(client string)
}

// NewHub creates a hub. targets may be nil if target switching is disabled.
func NewHub(target model.SubscriptionTarget, targets chan<- model.SubscriptionTarget) *Hub {
	return &Hub{
		clients: make(map[*Client]bool),
		target:  target.String(),
		targets: targets,
		status:  statusEnvelope{Type: "status", State: "disconnected"},
	}
}

// Initialize caches the seeded series and resends the snapshot to every
// connected client.
func (h *Hub) Initialize(candles []model.Candle, volumes []model.VolumeBar) {
	h.mu.Lock()
	h.candles = append(h.candles[:0], candles...)
	h.volumes = append(h.volumes[:0], volumes...)
	env := h.initEnvelopeLocked()
	h.mu.Unlock()

	h.broadcast(env)
}

// PushUpdate applies one bar to the cached series and broadcasts it.
func (h *Hub) PushUpdate(candle model.Candle, volume model.VolumeBar) {
	h.mu.Lock()
	if n := len(h.candles); n > 0 && h.candles[n-1].Time == candle.Time {
		h.candles[n-1] = candle
		h.volumes[n-1] = volume
	} else {
		h.candles = append(h.candles, candle)
		h.volumes = append(h.volumes, volume)
	}
	h.mu.Unlock()

	b, _ := json.Marshal(updateEnvelope{Type: "update", Candle: candle, Volume: volume})
	h.broadcast(b)
}

// PushStatus broadcasts a connection status line and caches it for new
// clients.
func (h *Hub) PushStatus(state, message string) {
	env := statusEnvelope{Type: "status", State: state, Message: message}
	h.mu.Lock()
	h.status = env
	h.mu.Unlock()

	b, _ := json.Marshal(env)
	h.broadcast(b)
}

// SetTarget records the currently streamed target for snapshots.
func (h *Hub) SetTarget(t model.SubscriptionTarget) {
	h.mu.Lock()
	h.target = t.String()
	h.mu.Unlock()
}

func (h *Hub) initEnvelopeLocked() []byte {
	env := initEnvelope{
		Type:   "init",
		Target: h.target,
		OHLC:   h.candles,
		Volume: h.volumes,
	}
	if env.OHLC == nil {
		env.OHLC = []model.Candle{}
	}
	if env.Volume == nil {
		env.Volume = []model.VolumeBar{}
	}
	b, _ := json.Marshal(env)
	return b
}

func (h *Hub) broadcast(msg []byte) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for c := range h.clients {
		select {
		case c.send <- msg:
		default:
			// Slow client: drop rather than stall the feed.
			if h.OnDrop != nil {
				h.OnDrop(c.remote)
			}
		}
	}
}

// ServeWS upgrades an HTTP request and registers the client.
func (h *Hub) ServeWS(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("[gateway] upgrade failed: %v", err)
		return
	}

	client := &Client{
		conn:   conn,
		send:   make(chan []byte, 256),
		hub:    h,
		remote: conn.RemoteAddr().String(),
	}

	h.mu.Lock()
	h.clients[client] = true
	count := len(h.clients)
	snapshot := h.initEnvelopeLocked()
	status, _ := json.Marshal(h.status)
	h.mu.Unlock()

	log.Printf("[gateway] ws client connected (%d total)", count)
	if h.OnClientCount != nil {
		h.OnClientCount(count)
	}

	client.send <- snapshot
	client.send <- status
	go client.writePump()
	go client.readPump()
}

// removeClient unregisters a client and closes its send queue.
func (h *Hub) removeClient(c *Client) {
	h.mu.Lock()
	if !h.clients[c] {
		h.mu.Unlock()
		return
	}
	delete(h.clients, c)
	count := len(h.clients)
	h.mu.Unlock()

	close(c.send)
	if h.OnClientCount != nil {
		h.OnClientCount(count)
	}
}

// requestTarget forwards a client's target switch to the session manager.
func (h *Hub) requestTarget(t model.SubscriptionTarget) {
	if h.targets == nil {
		return
	}
	if err := t.Validate(); err != nil {
		log.Printf("[gateway] rejecting target switch: %v", err)
		return
	}
	select {
	case h.targets <- t:
		log.Printf("[gateway] target switch requested: %s", t)
	case <-time.After(time.Second):
		log.Printf("[gateway] target switch dropped, manager busy: %s", t)
	}
}

// ClientCount returns the number of connected clients.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}
