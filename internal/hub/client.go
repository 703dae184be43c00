// Package hub fans out derived and raw odds payloads to WebSocket
// subscribers, applying per-connection product-type, threshold, and filter
// preferences before each send.
package hub

import (
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/vTajae/oddsgateway/pkg/models"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 1 << 16
	sendBufferSize = 256
)

// Prefs is one connection's current product-type, threshold, and filter
// preferences, mutated by control frames and read by the broadcast loop.
type Prefs struct {
	ProdType                models.ProdType
	EVThreshold             float64
	ArbThreshold            float64
	Sports                  map[string]struct{}
	Markets                 map[string]struct{}
	Sportsbooks             map[string]struct{}
	Leagues                 map[string]struct{}
	QuietControls           bool
	DebugScope              bool
	IncludeFiltersInPayload bool
}

// DefaultPrefs returns the zero-value connection state: prod_type "all", no
// thresholds, no filters.
func DefaultPrefs() Prefs {
	return Prefs{ProdType: models.ProdAll}
}

// Client represents one registered WebSocket subscriber.
type Client struct {
	ID   string
	conn *websocket.Conn
	Send chan []byte

	prefsMu sync.RWMutex
	prefs   Prefs

	hub *Hub
}

// NewClient wraps an upgraded connection for registration with a Hub.
func NewClient(id string, conn *websocket.Conn, h *Hub) *Client {
	return &Client{
		ID:    id,
		conn:  conn,
		Send:  make(chan []byte, sendBufferSize),
		prefs: DefaultPrefs(),
		hub:   h,
	}
}

// Prefs returns a copy of the client's current preferences.
func (c *Client) Prefs() Prefs {
	c.prefsMu.RLock()
	defer c.prefsMu.RUnlock()
	return c.prefs
}

// UpdatePrefs applies fn to the client's preferences under lock and returns
// the updated copy.
func (c *Client) UpdatePrefs(fn func(*Prefs)) Prefs {
	c.prefsMu.Lock()
	defer c.prefsMu.Unlock()
	fn(&c.prefs)
	return c.prefs
}

// TrySend enqueues a frame for delivery, non-blocking; returns false if the
// client's send buffer is full (the caller should evict a slow client).
func (c *Client) TrySend(frame []byte) bool {
	select {
	case c.Send <- frame:
		return true
	default:
		return false
	}
}

// WritePump drains Send to the underlying connection and pings on idle,
// wrapped in a recover guard so one malformed frame cannot crash the
// process.
func (c *Client) WritePump() {
	defer func() {
		if r := recover(); r != nil {
			_ = r
		}
	}()
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case frame, ok := <-c.Send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, frame); err != nil {
				return
			}
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// ReadPump drains inbound control frames to onFrame until the connection
// closes, then unregisters the client. Wrapped in a recover guard so one
// malformed frame cannot crash the process.
func (c *Client) ReadPump(onFrame func([]byte)) {
	defer func() {
		if r := recover(); r != nil {
			_ = r
		}
		c.hub.Unregister(c)
		c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			return
		}
		onFrame(data)
	}
}
