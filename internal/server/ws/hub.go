// Package ws pushes engine events to WebSocket clients.
package ws

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/alanyoungcy/dumpsniper/internal/domain"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 4096,
	// Origin policy is enforced by the CORS and auth middleware.
	CheckOrigin: func(*http.Request) bool { return true },
}

// Config describes the hub.
type Config struct {
	Mode      string
	Channels  []string // bus channels bridged to clients
	StartedAt time.Time
}

type frame struct {
	channel string
	data    []byte
}

// Hub fans bus messages out to connected clients. Messages arrive either
// from bus subscriptions or through Publish, so the hub doubles as the
// in-process domain.SignalBus when no broker is configured.
type Hub struct {
	bus       domain.SignalBus
	bridged   []string
	mode      string
	startedAt time.Time
	logger    *slog.Logger
	inbox     chan frame
	done      chan struct{}

	mu         sync.Mutex
	clients    map[*client]struct{}
	closing    bool
	lastStatus []byte
}

// NewHub creates a hub. bus may be nil.
func NewHub(bus domain.SignalBus, cfg Config, logger *slog.Logger) *Hub {
	h := &Hub{
		bus:       bus,
		bridged:   cfg.Channels,
		mode:      strings.ToLower(strings.TrimSpace(cfg.Mode)),
		startedAt: cfg.StartedAt,
		logger:    logger.With(slog.String("component", "ws_hub")),
		inbox:     make(chan frame, 256),
		done:      make(chan struct{}),
		clients:   make(map[*client]struct{}),
	}
	if len(h.bridged) == 0 {
		h.bridged = []string{domain.ChannelStatus, domain.ChannelEvent}
	}
	if h.startedAt.IsZero() {
		h.startedAt = time.Now().UTC()
	}
	return h
}

// Publish queues payload for every client subscribed to channel. After
// the hub stops, payloads are discarded.
func (h *Hub) Publish(ctx context.Context, channel string, payload []byte) error {
	select {
	case h.inbox <- frame{channel: channel, data: payload}:
	case <-h.done:
	case <-ctx.Done():
		return ctx.Err()
	}
	return nil
}

// Subscribe is not supported; clients subscribe over the socket.
func (h *Hub) Subscribe(context.Context, string) (<-chan []byte, error) {
	return nil, domain.ErrNotFound
}

// StreamAppend is a no-op; the hub keeps no history.
func (h *Hub) StreamAppend(context.Context, string, []byte) error { return nil }

var _ domain.SignalBus = (*Hub)(nil)

// Run delivers queued frames until ctx is cancelled, then disconnects
// every client.
func (h *Hub) Run(ctx context.Context) error {
	if h.bus != nil {
		for _, ch := range h.bridged {
			go h.bridge(ctx, ch)
		}
	}
	for {
		select {
		case f := <-h.inbox:
			h.deliver(f)
		case <-ctx.Done():
			h.shutdown()
			return nil
		}
	}
}

func (h *Hub) shutdown() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.closing = true
	for c := range h.clients {
		delete(h.clients, c)
		close(c.send)
	}
	close(h.done)
}

func (h *Hub) deliver(f frame) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if f.channel == domain.ChannelStatus {
		h.lastStatus = f.data
	}
	for c := range h.clients {
		if c.subs.match(f.channel) && !c.offer(f.data) {
			h.logger.Warn("client too slow, frame dropped", slog.String("channel", f.channel))
		}
	}
}

// bridge copies one bus subscription into the hub.
func (h *Hub) bridge(ctx context.Context, channel string) {
	msgs, err := h.bus.Subscribe(ctx, channel)
	if err != nil {
		h.logger.Error("bridge subscribe failed", slog.String("channel", channel), slog.String("error", err.Error()))
		return
	}
	for data := range msgs {
		if err := h.Publish(ctx, channel, data); err != nil {
			return
		}
	}
	if ctx.Err() == nil {
		h.logger.Warn("bridge subscription ended", slog.String("channel", channel))
	}
}

// attach registers c and queues the greeting ahead of any broadcast.
func (h *Hub) attach(c *client, hello []byte) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closing {
		return false
	}
	h.clients[c] = struct{}{}
	c.offer(hello)
	if h.lastStatus != nil {
		c.offer(h.lastStatus)
	}
	h.logger.Info("client connected", slog.Int("clients", len(h.clients)))
	return true
}

func (h *Hub) detach(c *client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.clients[c]; !ok {
		return
	}
	delete(h.clients, c)
	close(c.send)
	h.logger.Info("client disconnected", slog.Int("clients", len(h.clients)))
}

// HandleWS upgrades the request. New clients listen on every bridged
// channel until they send a subscription change.
// GET /ws
func (h *Hub) HandleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("upgrade failed", slog.String("error", err.Error()))
		return
	}
	c := newClient(h, conn, h.bridged...)
	if !h.attach(c, h.hello()) {
		_ = conn.Close()
		return
	}
	go c.writeLoop()
	go c.readLoop()
}

func (h *Hub) hello() []byte {
	b, _ := json.Marshal(struct {
		Type string `json:"type"`
		Data any    `json:"data"`
	}{
		Type: "hello",
		Data: map[string]any{
			"mode":           h.mode,
			"uptime_seconds": int64(time.Since(h.startedAt).Seconds()),
			"channels":       h.bridged,
		},
	})
	return b
}
