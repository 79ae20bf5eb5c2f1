package ws

import (
	"encoding/json"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

const (
	writeTimeout  = 10 * time.Second
	idleTimeout   = 60 * time.Second
	pingEvery     = idleTimeout * 9 / 10
	maxInboundMsg = 4096
	clientBacklog = 256
)

// subscribeMsg changes a client's channel set:
// {"action":"subscribe","channels":["ch:sniper:event"]}.
type subscribeMsg struct {
	Action   string   `json:"action"`
	Channels []string `json:"channels"`
}

// subscriptions is a client's channel filter. Names ending in "*" match
// by prefix.
type subscriptions struct {
	mu    sync.RWMutex
	names map[string]struct{}
}

func newSubscriptions(names ...string) *subscriptions {
	s := &subscriptions{names: make(map[string]struct{}, len(names))}
	s.add(names)
	return s
}

func (s *subscriptions) add(names []string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, n := range names {
		s.names[n] = struct{}{}
	}
}

func (s *subscriptions) remove(names []string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, n := range names {
		delete(s.names, n)
	}
}

func (s *subscriptions) match(channel string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if _, ok := s.names[channel]; ok {
		return true
	}
	for n := range s.names {
		if prefix, wild := strings.CutSuffix(n, "*"); wild && strings.HasPrefix(channel, prefix) {
			return true
		}
	}
	return false
}

func (s *subscriptions) apply(msg subscribeMsg) {
	switch msg.Action {
	case "subscribe":
		s.add(msg.Channels)
	case "unsubscribe":
		s.remove(msg.Channels)
	}
}

type client struct {
	hub  *Hub
	conn *websocket.Conn
	send chan []byte
	subs *subscriptions
}

func newClient(h *Hub, conn *websocket.Conn, channels ...string) *client {
	return &client{
		hub:  h,
		conn: conn,
		send: make(chan []byte, clientBacklog),
		subs: newSubscriptions(channels...),
	}
}

// offer queues data without blocking. Callers hold the hub lock, which
// also guards send against being closed underneath them.
func (c *client) offer(data []byte) bool {
	select {
	case c.send <- data:
		return true
	default:
		return false
	}
}

// readLoop handles subscription changes and pongs. Any read error ends
// the connection.
func (c *client) readLoop() {
	defer func() {
		c.hub.detach(c)
		_ = c.conn.Close()
	}()
	c.conn.SetReadLimit(maxInboundMsg)
	_ = c.conn.SetReadDeadline(time.Now().Add(idleTimeout))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(idleTimeout))
	})

	for {
		var msg subscribeMsg
		_, raw, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.hub.logger.Debug("client read ended", slog.String("error", err.Error()))
			}
			return
		}
		if json.Unmarshal(raw, &msg) == nil {
			c.subs.apply(msg)
		}
	}
}

// writeLoop owns all writes on the connection. A closed send channel
// means the hub dropped the client.
func (c *client) writeLoop() {
	ping := time.NewTicker(pingEvery)
	defer ping.Stop()
	defer c.conn.Close()

	for {
		select {
		case data, open := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
			if !open {
				_ = c.conn.WriteMessage(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseGoingAway, "server shutting down"))
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				return
			}
		case <-ping.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
