// Package handlers mounts the gateway's HTTP and WebSocket surface: health
// and readiness probes, Prometheus exposition, and the control-plane
// WebSocket endpoint that lazily starts a per-connection worker fleet.
package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/vTajae/oddsgateway/internal/audit"
	"github.com/vTajae/oddsgateway/internal/catalogue"
	"github.com/vTajae/oddsgateway/internal/hub"
	"github.com/vTajae/oddsgateway/internal/metrics"
	"github.com/vTajae/oddsgateway/internal/publisher"
	"github.com/vTajae/oddsgateway/internal/state"
	"github.com/vTajae/oddsgateway/internal/subscription"
	"github.com/vTajae/oddsgateway/internal/telemetry"
	"github.com/vTajae/oddsgateway/pkg/models"
)

const restartJoinTimeout = 5 * time.Second

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// Deps bundles the collaborators the stream handler needs per connection.
type Deps struct {
	Catalogue                 *catalogue.Client
	BaseURL                   string
	APIKey                    string
	MaxWorkers                int
	SportsbookChunkSize       int
	LeagueChunkSize           int
	SportsbookChunkSizeSoccer int
	LeagueChunkSizeSoccer     int
	DefaultOddsFormat         string

	// DefaultEVThreshold and DefaultArbThreshold seed a connection's
	// thresholds before any control frame sets them explicitly.
	DefaultEVThreshold  float64
	DefaultArbThreshold float64

	// DefaultIncludeFixtures is passed to every spawned worker; there is no
	// per-connection override in the control-frame wire contract.
	DefaultIncludeFixtures bool

	// DefaultAllowedMarkets is the server-wide ingestion market allowlist
	// (nil means unrestricted), applied regardless of a connection's own
	// market filter — the latter is enforced at hub fan-out instead.
	DefaultAllowedMarkets []string

	// DefaultSportsAllowlist seeds the ingestion sport scope when a
	// connection requests no sport filter of its own.
	DefaultSportsAllowlist []string

	// IngestFiltersEnabled gates whether a connection's own sport,
	// sportsbook, and league filters are applied at ingestion (spawning
	// only the matching worker fleet) versus left to hub-level filtering
	// of an unrestricted, broader ingest.
	IngestFiltersEnabled bool

	Metrics   *metrics.Metrics
	Publisher *publisher.StreamPublisher
	Audit     *audit.Sink
}

// Handler owns the HTTP and WebSocket surface.
type Handler struct {
	deps Deps
}

// NewHandler constructs a Handler from its collaborators.
func NewHandler(deps Deps) *Handler {
	return &Handler{deps: deps}
}

// Health reports process liveness unconditionally.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain")
	w.Write([]byte("ok"))
}

// Ready reports whether the upstream catalogue is reachable, distinct from
// process liveness.
func (h *Handler) Ready(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()
	if _, err := h.deps.Catalogue.Sports(ctx); err != nil {
		w.WriteHeader(http.StatusServiceUnavailable)
		json.NewEncoder(w).Encode(map[string]any{"status": "degraded", "catalogue_reachable": false})
		return
	}
	json.NewEncoder(w).Encode(map[string]any{"status": "ready", "catalogue_reachable": true})
}

// Metrics serves the private registry's Prometheus exposition.
func (h *Handler) Metrics() http.Handler {
	return promhttp.HandlerFor(h.deps.Metrics.Registry(), promhttp.HandlerOpts{})
}

// Stream upgrades the connection and drives one subscriber's control
// session: default prefs, lazy fleet start on first control frame, and
// fleet restart when the scope-affecting filter axes change.
func (h *Handler) Stream(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		telemetry.Warnf("handlers: websocket upgrade failed: %v", err)
		return
	}

	hb := hub.NewHub()
	hb.OnEvict = func() { h.deps.Metrics.WSEvictions.Inc() }
	hb.OnDispatch = func(d time.Duration) { h.deps.Metrics.BroadcastLatency.Observe(d.Seconds()) }
	ctx, cancel := context.WithCancel(context.Background())
	go hb.Run(ctx)

	c := hub.NewClient(uuid.New().String(), conn, hb)
	c.UpdatePrefs(func(p *hub.Prefs) {
		p.EVThreshold = h.deps.DefaultEVThreshold
		p.ArbThreshold = h.deps.DefaultArbThreshold
	})
	hb.Register(c)
	h.deps.Metrics.WSConnections.Inc()

	sess := &session{
		handler:    h,
		hub:        hb,
		client:     c,
		oddsFormat: models.NewOddsFormatHolder(h.deps.DefaultOddsFormat),
	}

	go c.WritePump()
	c.ReadPump(func(frame []byte) {
		sess.handleFrame(frame)
	})

	cancel()
	sess.stopFleet()
	h.deps.Metrics.WSConnections.Dec()
}

type session struct {
	handler    *Handler
	hub        *hub.Hub
	client     *hub.Client
	oddsFormat *models.OddsFormatHolder

	mu           sync.Mutex
	manager      *subscription.Manager
	managerDone  chan struct{}
	lastSnapshot scopeSnapshot
}

type scopeSnapshot struct {
	sports      []string
	markets     []string
	sportsbooks []string
	leagues     []string
}

func (s scopeSnapshot) equal(o scopeSnapshot) bool {
	return sliceEq(s.sports, o.sports) && sliceEq(s.markets, o.markets) &&
		sliceEq(s.sportsbooks, o.sportsbooks) && sliceEq(s.leagues, o.leagues)
}

func sliceEq(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

type controlFrame struct {
	ProdType       *string         `json:"prod_type"`
	OddsFormat     *string         `json:"odds_format"`
	EVThreshold    *float64        `json:"ev_threshold"`
	ArbThreshold   *float64        `json:"arb_threshold"`
	Sport          []string        `json:"sport"`
	Market         []string        `json:"market"`
	Sportsbook     []string        `json:"sportsbook"`
	Sportbook      []string        `json:"sportbook"`
	League         []string        `json:"league"`
	Filters        json.RawMessage `json:"filters"`
	FiltersReplace *bool           `json:"filters_replace"`
	FiltersClear   *bool           `json:"filters_clear"`
	ClearFilters   *bool           `json:"clear_filters"`
	Quiet          *bool           `json:"quiet"`
	Ack            *bool           `json:"ack"`
	DebugScope     *bool           `json:"debug_scope"`
}

type filtersObject struct {
	Sport      []string `json:"sport"`
	Market     []string `json:"market"`
	Sportsbook []string `json:"sportsbook"`
	Sportbook  []string `json:"sportbook"`
	League     []string `json:"league"`
	Replace    *bool    `json:"replace"`
	Clear      *bool    `json:"clear"`
	Reset      *bool    `json:"reset"`
}

func (s *session) handleFrame(raw []byte) {
	var frame controlFrame
	if err := json.Unmarshal(raw, &frame); err != nil {
		telemetry.Debugf("handlers: malformed control frame, ignored")
		return
	}

	resetAll := truthy(frame.FiltersReplace) || truthy(frame.FiltersClear) || truthy(frame.ClearFilters)

	var filtersBody filtersObject
	hasFiltersObject := len(frame.Filters) > 0
	if hasFiltersObject {
		if err := json.Unmarshal(frame.Filters, &filtersBody); err == nil {
			if truthy(filtersBody.Replace) || truthy(filtersBody.Clear) || truthy(filtersBody.Reset) {
				resetAll = true
			}
		}
	}

	prefs := s.client.UpdatePrefs(func(p *hub.Prefs) {
		if resetAll {
			p.Sports = nil
			p.Markets = nil
			p.Sportsbooks = nil
			p.Leagues = nil
		}
		if frame.ProdType != nil {
			p.ProdType = models.ProdType(*frame.ProdType)
		}
		if frame.EVThreshold != nil {
			p.EVThreshold = *frame.EVThreshold
		}
		if frame.ArbThreshold != nil {
			p.ArbThreshold = *frame.ArbThreshold
		}
		if frame.Quiet != nil {
			p.QuietControls = *frame.Quiet
		}
		if frame.Ack != nil {
			p.QuietControls = !*frame.Ack
		}
		if frame.DebugScope != nil {
			p.DebugScope = *frame.DebugScope
		}
		if len(frame.Sport) > 0 {
			p.Sports = toSet(frame.Sport)
		}
		if len(frame.Market) > 0 {
			p.Markets = toSet(frame.Market)
		}
		if len(frame.Sportsbook) > 0 {
			p.Sportsbooks = toSet(frame.Sportsbook)
		}
		if len(frame.Sportbook) > 0 {
			p.Sportsbooks = toSet(frame.Sportbook)
		}
		if len(frame.League) > 0 {
			p.Leagues = toSet(frame.League)
		}
		if hasFiltersObject {
			if len(filtersBody.Sport) > 0 {
				p.Sports = toSet(filtersBody.Sport)
			}
			if len(filtersBody.Market) > 0 {
				p.Markets = toSet(filtersBody.Market)
			}
			if len(filtersBody.Sportsbook) > 0 {
				p.Sportsbooks = toSet(filtersBody.Sportsbook)
			}
			if len(filtersBody.Sportbook) > 0 {
				p.Sportsbooks = toSet(filtersBody.Sportbook)
			}
			if len(filtersBody.League) > 0 {
				p.Leagues = toSet(filtersBody.League)
			}
		}
	})

	if frame.OddsFormat != nil {
		s.oddsFormat.Set(*frame.OddsFormat)
	}

	snapshot := scopeSnapshot{
		sports:      sortedKeys(prefs.Sports),
		markets:     sortedKeys(prefs.Markets),
		sportsbooks: sortedKeys(prefs.Sportsbooks),
		leagues:     sortedKeys(prefs.Leagues),
	}

	s.mu.Lock()
	needsRestart := s.manager == nil || !snapshot.equal(s.lastSnapshot)
	s.mu.Unlock()

	if needsRestart {
		s.restartFleet(snapshot)
	}

	if !prefs.QuietControls {
		s.hub.SendControl(s.client, "filters_updated", filterSnapshotPayload(snapshot))
	}
}

func (s *session) restartFleet(snapshot scopeSnapshot) {
	s.mu.Lock()
	prevManager := s.manager
	prevDone := s.managerDone
	s.mu.Unlock()

	if prevManager != nil {
		prevManager.Stop()
		if prevDone != nil {
			select {
			case <-prevDone:
			case <-time.After(restartJoinTimeout):
				telemetry.Warnf("handlers: previous fleet join timed out, continuing")
			}
		}
	}

	engine := state.NewEngine()
	pub := s.handler.deps.Publisher
	sink := s.handler.deps.Audit
	cat := s.handler.deps.Catalogue
	engine.FetchFixtureMeta = func(sport, fixtureID string) (*models.FixtureMetaEntry, bool) {
		meta, ok := cat.FixtureMeta(context.Background(), sport, fixtureID)
		if !ok {
			return nil, false
		}
		return &meta, true
	}
	engine.OnEV = func(rec models.EVRecord) {
		s.handler.deps.Metrics.EVDerived.WithLabelValues(rec.Sport).Inc()
		ctx := context.Background()
		pub.PublishEV(ctx, rec)
		if err := sink.LogEV(ctx, rec); err != nil {
			telemetry.Warnf("handlers: audit log ev: %v", err)
		}
	}
	engine.OnArbitrage = func(rec models.ArbRecord) {
		s.handler.deps.Metrics.ArbitrageFound.WithLabelValues(rec.Sport).Inc()
		ctx := context.Background()
		pub.PublishArbitrage(ctx, rec)
		if err := sink.LogArbitrage(ctx, rec); err != nil {
			telemetry.Warnf("handlers: audit log arbitrage: %v", err)
		}
	}

	mgr := &subscription.Manager{
		Catalogue:                 s.handler.deps.Catalogue,
		BaseURL:                   s.handler.deps.BaseURL,
		APIKey:                    s.handler.deps.APIKey,
		MaxWorkers:                s.handler.deps.MaxWorkers,
		OddsFormat:                s.oddsFormat,
		Engine:                    engine,
		Sink:                      func(p any) { s.hub.Broadcast(p) },
		SportsbookChunkSize:       s.handler.deps.SportsbookChunkSize,
		LeagueChunkSize:           s.handler.deps.LeagueChunkSize,
		SportsbookChunkSizeSoccer: s.handler.deps.SportsbookChunkSizeSoccer,
		LeagueChunkSizeSoccer:     s.handler.deps.LeagueChunkSizeSoccer,
		OnScope: func(e subscription.ScopeEvent) {
			s.hub.SendControl(s.client, "stream_scope", e)
		},
		OnObserved: func(e subscription.ObservedEvent) {
			prefs := s.client.Prefs()
			if prefs.DebugScope {
				s.hub.SendControl(s.client, "observed_scope", e)
			}
		},
		OnReconnect: func(sport string) {
			s.handler.deps.Metrics.SSEReconnects.WithLabelValues(sport).Inc()
		},
		OnBisect: func(sport string) {
			s.handler.deps.Metrics.SSEBisections.WithLabelValues(sport).Inc()
		},
		OnQuotes: func(sport string, n int) {
			s.handler.deps.Metrics.QuotesIngested.WithLabelValues(sport).Add(float64(n))
		},
		OnActiveWorkers: func(count int) {
			s.handler.deps.Metrics.ActiveWorkers.Set(float64(count))
		},
	}

	prefs := s.client.Prefs()
	filters := s.buildIngestFilters(prefs)

	done := make(chan struct{})
	s.mu.Lock()
	s.manager = mgr
	s.managerDone = done
	s.lastSnapshot = snapshot
	s.mu.Unlock()

	go func() {
		defer close(done)
		if err := mgr.Start(context.Background(), filters); err != nil {
			telemetry.Warnf("handlers: subscription manager exited: %v", err)
		}
	}()

	if !prefs.QuietControls {
		s.hub.SendControl(s.client, "stream_restarted", filterSnapshotPayload(snapshot))
	}
}

// buildIngestFilters resolves the scope passed to the worker fleet: the
// connection's own sport/sportsbook/league filters only take effect at
// ingestion when IngestFiltersEnabled, falling back to the server-wide
// sports allowlist when the connection requests none. The market allowlist
// is always the server-wide default; per-connection market filtering
// happens at hub fan-out instead.
func (s *session) buildIngestFilters(prefs hub.Prefs) subscription.Filters {
	deps := s.handler.deps

	sports := sortedKeys(prefs.Sports)
	sportsbooks := sortedKeys(prefs.Sportsbooks)
	leagues := sortedKeys(prefs.Leagues)
	if !deps.IngestFiltersEnabled {
		sports = nil
		sportsbooks = nil
		leagues = nil
	}
	if len(sports) == 0 {
		sports = deps.DefaultSportsAllowlist
	}

	return subscription.Filters{
		Sports:          sports,
		Sportsbooks:     sportsbooks,
		Leagues:         leagues,
		AllowedMarkets:  deps.DefaultAllowedMarkets,
		IncludeFixtures: deps.DefaultIncludeFixtures,
	}
}

func (s *session) stopFleet() {
	s.mu.Lock()
	mgr := s.manager
	s.mu.Unlock()
	if mgr != nil {
		mgr.Stop()
	}
}

func truthy(b *bool) bool { return b != nil && *b }

func toSet(items []string) map[string]struct{} {
	out := make(map[string]struct{}, len(items))
	for _, it := range items {
		if it != "" {
			out[it] = struct{}{}
		}
	}
	return out
}

func sortedKeys(m map[string]struct{}) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

func filterSnapshotPayload(s scopeSnapshot) map[string][]string {
	return map[string][]string{
		"sport":      s.sports,
		"market":     s.markets,
		"sportsbook": s.sportsbooks,
		"league":     s.leagues,
	}
}

