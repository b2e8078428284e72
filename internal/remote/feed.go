package remote

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"github.com/brewkit/brewsync/internal/logging"
	"github.com/brewkit/brewsync/internal/models"
)

const (
	feedReadDeadline = 60 * time.Second
	feedPingInterval = 30 * time.Second
	feedWriteTimeout = 10 * time.Second
	feedBuffer       = 256
)

// WSFeed subscribes to the cloud change feed over a websocket and
// delivers decoded ChangeEvents. One feed covers all tables of a
// tenant; events carry the table identifier.
type WSFeed struct {
	url    string
	tenant string
	tables []models.Table

	mu      sync.Mutex
	conn    *websocket.Conn
	events  chan ChangeEvent
	healthy atomic.Bool
	closed  atomic.Bool
}

// NewWSFeed creates a feed for the tenant covering the given tables.
func NewWSFeed(url, tenant string, tables []models.Table) *WSFeed {
	return &WSFeed{
		url:    url,
		tenant: tenant,
		tables: tables,
		events: make(chan ChangeEvent, feedBuffer),
	}
}

// subscribeMsg is the handshake sent after the dial.
type subscribeMsg struct {
	Action string   `json:"action"`
	Tenant string   `json:"tenant"`
	Tables []string `json:"tables"`
}

// Subscribe dials the feed and starts the read and keepalive pumps.
// The context bounds the dial; a deadline exceeded is a connect failure.
func (f *WSFeed) Subscribe(ctx context.Context) error {
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, f.url, nil)
	if err != nil {
		return fmt.Errorf("failed to subscribe to change feed: %w", err)
	}

	tables := make([]string, len(f.tables))
	for i, t := range f.tables {
		tables[i] = string(t)
	}
	msg := subscribeMsg{Action: "subscribe", Tenant: f.tenant, Tables: tables}
	conn.SetWriteDeadline(time.Now().Add(feedWriteTimeout))
	if err := conn.WriteJSON(msg); err != nil {
		conn.Close()
		return fmt.Errorf("failed to send subscribe message: %w", err)
	}

	f.mu.Lock()
	f.conn = conn
	f.mu.Unlock()
	f.healthy.Store(true)

	go f.readPump(conn)
	go f.pingLoop(conn)
	return nil
}

// readPump reads feed envelopes until the connection drops. It is the
// only sender on the event channel and closes it on exit so consumers
// ranging over Events terminate.
func (f *WSFeed) readPump(conn *websocket.Conn) {
	defer func() {
		f.healthy.Store(false)
		conn.Close()
		close(f.events)
	}()

	conn.SetReadDeadline(time.Now().Add(feedReadDeadline))
	conn.SetPongHandler(func(string) error {
		conn.SetReadDeadline(time.Now().Add(feedReadDeadline))
		return nil
	})

	for {
		_, message, err := conn.ReadMessage()
		if err != nil {
			if !f.closed.Load() && websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				logging.Warn("Change feed read error", map[string]interface{}{
					"error": err.Error(),
				})
			}
			return
		}

		var ev ChangeEvent
		if err := json.Unmarshal(message, &ev); err != nil {
			logging.Warn("Invalid change feed message", map[string]interface{}{
				"error": err.Error(),
			})
			continue
		}
		if ev.EventType == "" {
			// Acks and pongs share the socket; skip anything that is
			// not a change event.
			continue
		}

		select {
		case f.events <- ev:
		default:
			logging.Warn("Change feed buffer full, dropping event", map[string]interface{}{
				"table": ev.Table,
			})
		}
	}
}

// pingLoop keeps the connection alive until it drops.
func (f *WSFeed) pingLoop(conn *websocket.Conn) {
	ticker := time.NewTicker(feedPingInterval)
	defer ticker.Stop()

	for range ticker.C {
		if f.closed.Load() || !f.healthy.Load() {
			return
		}
		conn.SetWriteDeadline(time.Now().Add(feedWriteTimeout))
		if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
			f.healthy.Store(false)
			return
		}
	}
}

// Events returns the inbound event channel.
func (f *WSFeed) Events() <-chan ChangeEvent {
	return f.events
}

// Healthy reports whether the feed connection is still live.
func (f *WSFeed) Healthy() bool {
	return f.healthy.Load()
}

// Close tears the feed down.
func (f *WSFeed) Close() error {
	if !f.closed.CompareAndSwap(false, true) {
		return nil
	}
	f.healthy.Store(false)

	f.mu.Lock()
	conn := f.conn
	f.conn = nil
	f.mu.Unlock()

	if conn != nil {
		conn.SetWriteDeadline(time.Now().Add(feedWriteTimeout))
		conn.WriteMessage(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
		return conn.Close()
	}
	return nil
}
