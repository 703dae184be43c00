package hub

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/vTajae/oddsgateway/internal/telemetry"
	"github.com/vTajae/oddsgateway/pkg/models"
)

// Hub maintains the set of registered subscribers and fans out derived and
// raw odds payloads, applying each subscriber's prod_type, threshold, and
// filter preferences before sending.
type Hub struct {
	clientsMu sync.RWMutex
	clients   map[*Client]struct{}

	register   chan *Client
	unregister chan *Client
	broadcast  chan any

	participants *ParticipantCache

	// OnEvict, if set, is called once per client evicted for a full send
	// buffer, for metrics.
	OnEvict func()

	// OnDispatch, if set, is called with the wall-clock duration of one
	// broadcast dispatch across every registered client.
	OnDispatch func(time.Duration)
}

// NewHub returns an empty hub ready to Run.
func NewHub() *Hub {
	return &Hub{
		clients:      make(map[*Client]struct{}),
		register:     make(chan *Client),
		unregister:   make(chan *Client),
		broadcast:    make(chan any, 1024),
		participants: NewParticipantCache(),
	}
}

// Run drives the hub's register/unregister/broadcast loop until ctx is
// cancelled.
func (h *Hub) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			h.shutdown()
			return
		case c := <-h.register:
			h.clientsMu.Lock()
			h.clients[c] = struct{}{}
			h.clientsMu.Unlock()
		case c := <-h.unregister:
			h.clientsMu.Lock()
			if _, ok := h.clients[c]; ok {
				delete(h.clients, c)
				close(c.Send)
			}
			h.clientsMu.Unlock()
		case msg := <-h.broadcast:
			h.dispatch(msg)
		}
	}
}

// Register adds a client to the hub.
func (h *Hub) Register(c *Client) { h.register <- c }

// Unregister removes a client from the hub.
func (h *Hub) Unregister(c *Client) { h.unregister <- c }

// Broadcast enqueues a payload for fan-out; non-blocking, drops on a full
// queue (logged) rather than stalling the worker that produced it.
func (h *Hub) Broadcast(payload any) {
	select {
	case h.broadcast <- payload:
	default:
		telemetry.Warnf("hub: broadcast queue full, dropping payload")
	}
}

type controlAck struct {
	Control string `json:"control"`
	Filters any    `json:"filters,omitempty"`
	Note    string `json:"note,omitempty"`
}

// SendControl delivers a control ack to one client unless it has requested
// quiet_controls.
func (h *Hub) SendControl(c *Client, control string, extra any) {
	if c.Prefs().QuietControls {
		return
	}
	frame, err := json.Marshal(controlAck{Control: control, Filters: extra})
	if err != nil {
		return
	}
	h.send(c, frame)
}

func (h *Hub) dispatch(msg any) {
	if h.OnDispatch != nil {
		start := time.Now()
		defer func() { h.OnDispatch(time.Since(start)) }()
	}
	h.clientsMu.RLock()
	clients := make([]*Client, 0, len(h.clients))
	for c := range h.clients {
		clients = append(clients, c)
	}
	h.clientsMu.RUnlock()

	var toEvict []*Client
	for _, c := range clients {
		prefs := c.Prefs()
		frame, ok := h.buildFrame(prefs, msg)
		if !ok {
			continue
		}
		if !c.TrySend(frame) {
			toEvict = append(toEvict, c)
		}
	}
	for _, c := range toEvict {
		telemetry.Warnf("hub: evicting slow client %s", c.ID)
		if h.OnEvict != nil {
			h.OnEvict()
		}
		h.Unregister(c)
	}
}

func (h *Hub) buildFrame(p Prefs, msg any) ([]byte, bool) {
	switch v := msg.(type) {
	case models.EVPayload:
		return h.buildEVFrame(p, v)
	case models.ArbPayload:
		return h.buildArbFrame(p, v)
	case models.RawOddsPayload:
		return h.buildRawFrame(p, v)
	default:
		return nil, false
	}
}

func (h *Hub) buildEVFrame(p Prefs, v models.EVPayload) ([]byte, bool) {
	if p.ProdType == models.ProdArbitrage {
		return nil, false
	}
	applyThreshold := p.ProdType == models.ProdEV
	survivors := make([]models.EVRecord, 0, len(v.EV))
	for _, rec := range v.EV {
		if evMatches(p, rec, applyThreshold) {
			survivors = append(survivors, rec)
		}
	}
	if len(survivors) == 0 {
		return nil, false
	}
	grouped := groupEVList(survivors, h.participants)
	return h.encode(p, grouped)
}

func (h *Hub) buildArbFrame(p Prefs, v models.ArbPayload) ([]byte, bool) {
	if p.ProdType == models.ProdEV {
		return nil, false
	}
	applyThreshold := p.ProdType == models.ProdArbitrage
	if !arbMatches(p, v.Arbitrage, applyThreshold) {
		return nil, false
	}
	return h.encode(p, v)
}

func (h *Hub) buildRawFrame(p Prefs, v models.RawOddsPayload) ([]byte, bool) {
	if p.ProdType != models.ProdAll {
		return nil, false
	}
	filtered, ok := filterRawPayload(p, v)
	if !ok {
		return nil, false
	}
	return h.encode(p, filtered)
}

func (h *Hub) encode(p Prefs, payload any) ([]byte, bool) {
	frame, err := json.Marshal(payload)
	if err != nil {
		return nil, false
	}
	if !p.IncludeFiltersInPayload {
		return frame, true
	}
	var body map[string]any
	if err := json.Unmarshal(frame, &body); err != nil {
		return frame, true
	}
	body["filters"] = filterSnapshot(p)
	out, err := json.Marshal(body)
	if err != nil {
		return frame, true
	}
	return out, true
}

func filterSnapshot(p Prefs) map[string][]string {
	toSlice := func(m map[string]struct{}) []string {
		out := make([]string, 0, len(m))
		for k := range m {
			out = append(out, k)
		}
		return out
	}
	return map[string][]string{
		"sport":      toSlice(p.Sports),
		"market":     toSlice(p.Markets),
		"sportsbook": toSlice(p.Sportsbooks),
		"league":     toSlice(p.Leagues),
	}
}

func (h *Hub) send(c *Client, frame []byte) {
	if !c.TrySend(frame) {
		telemetry.Warnf("hub: evicting slow client %s", c.ID)
		if h.OnEvict != nil {
			h.OnEvict()
		}
		h.Unregister(c)
	}
}

func (h *Hub) shutdown() {
	h.clientsMu.Lock()
	defer h.clientsMu.Unlock()
	for c := range h.clients {
		close(c.Send)
		delete(h.clients, c)
	}
}
