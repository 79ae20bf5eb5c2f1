package polymarket

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/alanyoungcy/dumpsniper/internal/domain"
	"github.com/gorilla/websocket"
)

const (
	// writeWait is the time allowed to write a message to the peer.
	writeWait = 10 * time.Second

	// readWait bounds the silence between frames; the venue answers every
	// PING, so a healthy connection never gets close to it.
	readWait = 30 * time.Second

	// PingPeriod is how often callers should send a keep-alive.
	PingPeriod = 10 * time.Second

	handshakeTimeout = 15 * time.Second
)

// MarketConn is one connection to the CLOB market channel. It does not
// reconnect; the owner decides when to dial again.
type MarketConn struct {
	conn    *websocket.Conn
	writeMu sync.Mutex
}

// DialMarket connects to the market channel, e.g.
// "wss://ws-subscriptions-clob.polymarket.com/ws/market".
func DialMarket(ctx context.Context, wsURL string) (*MarketConn, error) {
	dialer := websocket.Dialer{HandshakeTimeout: handshakeTimeout}
	conn, _, err := dialer.DialContext(ctx, wsURL, nil)
	if err != nil {
		return nil, fmt.Errorf("polymarket/ws: connect: %w", err)
	}
	return &MarketConn{conn: conn}, nil
}

// Subscribe asks for book, price_change and last_trade_price events of
// the given tokens.
func (c *MarketConn) Subscribe(assetIDs []string) error {
	data, err := json.Marshal(marketSubscription{AssetIDs: assetIDs, Type: "market"})
	if err != nil {
		return fmt.Errorf("polymarket/ws: marshal subscription: %w", err)
	}
	if err := c.write(websocket.TextMessage, data); err != nil {
		return fmt.Errorf("polymarket/ws: subscribe: %w", err)
	}
	return nil
}

// Ping sends the text keep-alive the market channel expects.
func (c *MarketConn) Ping() error {
	return c.write(websocket.TextMessage, []byte("PING"))
}

// Read blocks for the next data frame. Keep-alive replies are skipped.
func (c *MarketConn) Read() ([]byte, error) {
	for {
		c.conn.SetReadDeadline(time.Now().Add(readWait))
		_, msg, err := c.conn.ReadMessage()
		if err != nil {
			return nil, fmt.Errorf("polymarket/ws: read: %w: %v", domain.ErrWSDisconnect, err)
		}
		if string(msg) == "PONG" {
			continue
		}
		return msg, nil
	}
}

// Close sends a close frame and drops the connection. Safe to call from
// another goroutine to unblock Read.
func (c *MarketConn) Close() error {
	_ = c.write(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
	return c.conn.Close()
}

func (c *MarketConn) write(kind int, data []byte) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	c.conn.SetWriteDeadline(time.Now().Add(writeWait))
	return c.conn.WriteMessage(kind, data)
}
