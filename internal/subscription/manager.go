// Package subscription resolves the sport/sportsbook/league scope the
// gateway streams and owns the worker fleet lifecycle for one connection's
// control session.
package subscription

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/vTajae/oddsgateway/internal/catalogue"
	"github.com/vTajae/oddsgateway/internal/normalize"
	"github.com/vTajae/oddsgateway/internal/sse"
	"github.com/vTajae/oddsgateway/internal/telemetry"
	"github.com/vTajae/oddsgateway/pkg/models"
)

// Filters carries the control-plane's requested scope before resolution
// against the live catalogue.
type Filters struct {
	Sports          []string
	Sportsbooks     []string
	Leagues         []string
	AllowedMarkets  []string
	IncludeFixtures bool
}

// ScopeEvent mirrors one stream_scope control message.
type ScopeEvent struct {
	Sports      []string `json:"sports"`
	Sportsbooks []string `json:"sportsbooks"`
	Leagues     map[string][]string `json:"leagues"`
	Note        string   `json:"note,omitempty"`
}

// ObservedEvent mirrors one observed_scope control message.
type ObservedEvent struct {
	Markets     []string `json:"markets"`
	Leagues     []string `json:"leagues"`
	Sportsbooks []string `json:"sportsbooks"`
}

// Catalogue is the subset of catalogue.Client the manager depends on.
type Catalogue interface {
	Sports(ctx context.Context) ([]catalogue.Item, error)
	Sportsbooks(ctx context.Context) ([]catalogue.Item, error)
	Leagues(ctx context.Context, sport string) ([]catalogue.Item, error)
}

// Manager resolves scope, spawns the worker fleet, and relays control
// messages for one subscriber session.
type Manager struct {
	Catalogue   Catalogue
	BaseURL     string
	APIKey      string
	MaxWorkers  int
	OddsFormat  *models.OddsFormatHolder
	Engine      sse.Engine
	Sink        func(payload any)
	OnScope     func(ScopeEvent)
	OnObserved  func(ObservedEvent)

	SportsbookChunkSize       int
	LeagueChunkSize           int
	SportsbookChunkSizeSoccer int
	LeagueChunkSizeSoccer     int

	// OnReconnect and OnBisect, if set, are wired into every spawned
	// worker for metrics; OnActiveWorkers reports the live worker count
	// whenever it changes.
	OnReconnect     func(sport string)
	OnBisect        func(sport string)
	OnQuotes        func(sport string, n int)
	OnActiveWorkers func(count int)

	mu      sync.Mutex
	workers []*sse.Worker
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

// Start resolves scope against the live catalogue and spawns one worker per
// surviving (sport, leagues) pair, capped at MaxWorkers. It blocks until ctx
// is cancelled, then joins every spawned worker before returning.
func (m *Manager) Start(ctx context.Context, filters Filters) error {
	runCtx, cancel := context.WithCancel(ctx)
	m.mu.Lock()
	m.cancel = cancel
	m.mu.Unlock()
	defer cancel()

	sports, err := m.Catalogue.Sports(runCtx)
	if err != nil {
		return fmt.Errorf("subscription: fetch sports: %w", err)
	}
	sportbooks, err := m.Catalogue.Sportsbooks(runCtx)
	if err != nil {
		return fmt.Errorf("subscription: fetch sportsbooks: %w", err)
	}

	resolvedSports := applyAllowWithFallback(sports, filters.Sports)
	resolvedBooks := applyAllowWithFallback(sportbooks, filters.Sportsbooks)
	if len(filters.Sportsbooks) > 0 && len(matchAllow(sportbooks, filters.Sportsbooks)) == 0 {
		if m.OnScope != nil {
			m.OnScope(ScopeEvent{Note: "no_sportsbooks_matched"})
		}
		return nil
	}

	leaguesBySport := make(map[string][]string)
	for _, sport := range resolvedSports {
		leagues, err := m.Catalogue.Leagues(runCtx, sport)
		if err != nil {
			telemetry.Warnf("subscription: leagues fetch failed for %s: %v", sport, err)
			continue
		}
		resolved := resolveLeagues(leagues, filters.Leagues)
		if len(resolved) == 0 {
			continue
		}
		leaguesBySport[sport] = resolved
	}

	pairs := make([]string, 0, len(leaguesBySport))
	for sport := range leaguesBySport {
		pairs = append(pairs, sport)
	}
	if m.MaxWorkers > 0 && len(pairs) > m.MaxWorkers {
		pairs = pairs[:m.MaxWorkers]
	}

	if m.OnScope != nil {
		m.OnScope(ScopeEvent{Sports: pairs, Sportsbooks: resolvedBooks, Leagues: leaguesBySport})
	}

	observer := sse.NewScopeObserver(func(markets, leagues, sportsbooks []string) {
		if m.OnObserved != nil {
			m.OnObserved(ObservedEvent{Markets: markets, Leagues: leagues, Sportsbooks: sportsbooks})
		}
	})

	m.mu.Lock()
	for _, sport := range pairs {
		chunkSize := sse.DefaultChunkSize(sport, m.SportsbookChunkSize, m.LeagueChunkSize, m.SportsbookChunkSizeSoccer, m.LeagueChunkSizeSoccer)
		sportCopy := sport
		w := &sse.Worker{
			Sport:                 sport,
			Leagues:               leaguesBySport[sport],
			Sportsbooks:           resolvedBooks,
			ChunkSize:             chunkSize,
			BaseURL:               m.BaseURL,
			APIKey:                m.APIKey,
			IncludeFixtureUpdates: filters.IncludeFixtures,
			AllowedMarkets:        filters.AllowedMarkets,
			OddsFormat:            m.OddsFormat,
			Observer:              observer,
			Engine:                m.Engine,
			Sink:                  m.Sink,
		}
		if m.OnReconnect != nil {
			w.OnReconnect = func() { m.OnReconnect(sportCopy) }
		}
		if m.OnBisect != nil {
			w.OnBisect = func() { m.OnBisect(sportCopy) }
		}
		if m.OnQuotes != nil {
			w.OnQuotes = func(n int) { m.OnQuotes(sportCopy, n) }
		}
		m.workers = append(m.workers, w)
		m.wg.Add(1)
		go func(w *sse.Worker) {
			defer m.wg.Done()
			w.Run(runCtx)
		}(w)
	}
	if m.OnActiveWorkers != nil {
		m.OnActiveWorkers(len(m.workers))
	}
	m.mu.Unlock()

	<-runCtx.Done()
	if m.OnActiveWorkers != nil {
		m.OnActiveWorkers(0)
	}
	m.wg.Wait()
	return nil
}

// Stop cancels the running worker fleet, if any, and waits for it to exit.
func (m *Manager) Stop() {
	m.mu.Lock()
	cancel := m.cancel
	m.mu.Unlock()
	if cancel != nil {
		cancel()
	}
	m.wg.Wait()
}

func itemIDs(items []catalogue.Item) []string {
	out := make([]string, 0, len(items))
	for _, it := range items {
		out = append(out, it.ID)
	}
	return out
}

// itemMatches reports whether an allow token matches a catalogue item by id
// or by display name, in either substring direction.
func itemMatches(item catalogue.Item, allow []string) bool {
	lid := strings.ToLower(item.ID)
	lname := strings.ToLower(item.DisplayName())
	for _, a := range allow {
		la := strings.ToLower(strings.TrimSpace(a))
		if la == "" {
			continue
		}
		if strings.Contains(lid, la) || strings.Contains(la, lid) {
			return true
		}
		if lname != "" && (strings.Contains(lname, la) || strings.Contains(la, lname)) {
			return true
		}
	}
	return false
}

// matchAllow returns the ids of candidates whose id or display name
// contains, or is contained by, any allow token (case-insensitive).
func matchAllow(candidates []catalogue.Item, allow []string) []string {
	if len(allow) == 0 {
		return itemIDs(candidates)
	}
	out := make([]string, 0, len(candidates))
	for _, c := range candidates {
		if itemMatches(c, allow) {
			out = append(out, c.ID)
		}
	}
	return out
}

// applyAllowWithFallback keeps the matched subset, or the full candidate
// list when nothing matched — noisy beats empty for sports/sportsbooks.
func applyAllowWithFallback(candidates []catalogue.Item, allow []string) []string {
	if len(allow) == 0 {
		return itemIDs(candidates)
	}
	matched := matchAllow(candidates, allow)
	if len(matched) == 0 {
		return itemIDs(candidates)
	}
	return matched
}

// resolveLeagues matches allow tokens against a sport's leagues by id,
// display name, or alias-resolved alnum form, in either substring direction.
// If the filter is non-empty but nothing matches, the filter tokens
// themselves become the league id list.
func resolveLeagues(candidates []catalogue.Item, allow []string) []string {
	if len(allow) == 0 {
		return itemIDs(candidates)
	}
	out := make([]string, 0, len(candidates))
	seen := make(map[string]struct{})
	for _, c := range candidates {
		if itemMatches(c, allow) {
			if _, dup := seen[c.ID]; !dup {
				seen[c.ID] = struct{}{}
				out = append(out, c.ID)
			}
			continue
		}
		normC := normalize.NormalizeLeagueAlias(c.ID)
		for _, a := range allow {
			la := strings.ToLower(strings.TrimSpace(a))
			normA := normalize.NormalizeLeagueAlias(a)
			if la == "" {
				continue
			}
			if strings.Contains(normC, normA) || strings.Contains(normA, normC) {
				if _, dup := seen[c.ID]; !dup {
					seen[c.ID] = struct{}{}
					out = append(out, c.ID)
				}
				break
			}
		}
	}
	if len(out) == 0 {
		return allow
	}
	return out
}
