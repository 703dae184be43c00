// Package state holds the odds state engine: the best-price book, fixture
// metadata cache, and EV cache, plus the derivation pass that turns a batch
// of quotes into expected-value and arbitrage records.
package state

import (
	"sort"
	"strings"
	"sync"

	"github.com/vTajae/oddsgateway/internal/normalize"
	"github.com/vTajae/oddsgateway/internal/telemetry"
	"github.com/vTajae/oddsgateway/pkg/models"
	"github.com/vTajae/oddsgateway/pkg/oddsmath"
)

var h2hMarketTokens = []string{"moneyline", "match winner", "ml", "winner"}
var excludedTeamTokens = map[string]struct{}{"draw": {}, "tie": {}, "over": {}, "under": {}}

// Engine owns MarketBook, FixtureMeta, and EVCache behind a single mutex, as
// prescribed for a system whose per-batch work dominates lock contention.
// Callers construct one Engine per worker fleet so fleet restarts start from
// a clean slate.
type Engine struct {
	mu sync.Mutex

	book        map[models.MarketKey]map[string]*models.OutcomeRecord
	fixtureMeta map[string]*models.FixtureMetaEntry
	evCache     map[models.EVCacheKey]float64

	// FetchFixtureMeta is called, at most once per fixture, when a
	// derivation needs metadata this engine has never seen. Nil is a valid
	// no-op (catalogue access is optional in tests).
	FetchFixtureMeta func(sport, fixtureID string) (*models.FixtureMetaEntry, bool)
	fetched          map[string]struct{}

	// OnEV and OnArbitrage, if set, are called once per derived record
	// for side-channel fan-out (derived-event streams, audit persistence).
	// They run synchronously at the end of ProcessBatch, before it returns
	// the records to its caller.
	OnEV        func(models.EVRecord)
	OnArbitrage func(models.ArbRecord)
}

// NewEngine returns an empty engine ready to process batches.
func NewEngine() *Engine {
	return &Engine{
		book:        make(map[models.MarketKey]map[string]*models.OutcomeRecord),
		fixtureMeta: make(map[string]*models.FixtureMetaEntry),
		evCache:     make(map[models.EVCacheKey]float64),
		fetched:     make(map[string]struct{}),
	}
}

// EVLookup returns the cached EV% for a (fixture, sportsbook, market,
// outcome) tuple, used to annotate raw payloads even when no recomputation
// fired for this batch.
func (e *Engine) EVLookup(fixtureID, sportsbook, market, outcome string) (float64, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	v, ok := e.evCache[models.EVCacheKey{FixtureID: fixtureID, Sportsbook: sportsbook, Market: market, Outcome: outcome}]
	return v, ok
}

// FixtureMetaFor returns a copy of the cached metadata for a fixture, if any.
func (e *Engine) FixtureMetaFor(fixtureID string) (models.FixtureMetaEntry, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	m, ok := e.fixtureMeta[fixtureID]
	if !ok {
		return models.FixtureMetaEntry{}, false
	}
	return *m, true
}

// RefreshFixtureMeta merges newly observed fields into the cache. A
// non-empty field once set is never overwritten with an empty value.
func (e *Engine) RefreshFixtureMeta(fixtureID string, incoming models.FixtureMetaEntry) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.mergeFixtureMetaLocked(fixtureID, incoming)
}

func (e *Engine) mergeFixtureMetaLocked(fixtureID string, incoming models.FixtureMetaEntry) {
	cur, ok := e.fixtureMeta[fixtureID]
	if !ok {
		cur = &models.FixtureMetaEntry{}
		e.fixtureMeta[fixtureID] = cur
	}
	if cur.HomeTeam == "" && incoming.HomeTeam != "" {
		cur.HomeTeam = incoming.HomeTeam
	}
	if cur.AwayTeam == "" && incoming.AwayTeam != "" {
		cur.AwayTeam = incoming.AwayTeam
	}
	if cur.StartDate == nil && incoming.StartDate != nil {
		cur.StartDate = incoming.StartDate
	}
	if cur.League == "" && incoming.League != "" {
		cur.League = incoming.League
	}
}

// ProcessBatch is the state engine's single entry point: it mutates the
// best-price book for every admissible quote, then derives EV and
// arbitrage records for every MarketKey touched by this batch.
func (e *Engine) ProcessBatch(sport string, quotes []models.Quote) (evList []models.EVRecord, arbList []models.ArbRecord) {
	e.mu.Lock()

	affected := make(map[models.MarketKey]struct{})
	for _, q := range quotes {
		if q.FixtureID == "" || q.MarketRaw == "" || q.OutcomeRaw == "" || q.Sportsbook == "" {
			continue
		}
		decOdds, ok := extractQuoteOdds(q)
		if !ok {
			continue
		}
		key := models.MarketKey{
			Sport:         sport,
			FixtureID:     q.FixtureID,
			ComposedLower: strings.ToLower(q.MarketRaw),
			IsLive:        q.IsLive,
		}
		outcomes, ok := e.book[key]
		if !ok {
			outcomes = make(map[string]*models.OutcomeRecord)
			e.book[key] = outcomes
		}
		rec, ok := outcomes[q.OutcomeRaw]
		if !ok {
			rec = &models.OutcomeRecord{}
			outcomes[q.OutcomeRaw] = rec
		}
		rec.Prices = append(rec.Prices, decOdds)
		if decOdds >= rec.BestPrice {
			rec.BestPrice = decOdds
			rec.BestBook = q.Sportsbook
		}
		affected[key] = struct{}{}

		if q.HomeTeam != "" || q.AwayTeam != "" || q.League != "" || q.StartDate != nil {
			e.mergeFixtureMetaLocked(q.FixtureID, models.FixtureMetaEntry{
				HomeTeam: q.HomeTeam, AwayTeam: q.AwayTeam, League: q.League, StartDate: q.StartDate,
			})
		}
	}

	type derivation struct {
		key  models.MarketKey
		best []oddsmath.BestPrice
		fair map[string]float64
	}
	derivations := make([]derivation, 0, len(affected))

	for key := range affected {
		outcomes := e.book[key]
		best := make([]oddsmath.BestPrice, 0, len(outcomes))
		for name, rec := range outcomes {
			if rec.BestPrice >= 1.01 {
				best = append(best, oddsmath.BestPrice{Outcome: name, Price: rec.BestPrice, Book: rec.BestBook})
			}
		}
		if len(best) == 0 {
			continue
		}

		if arb, ok := oddsmath.ComputeArbitrage(best); ok {
			outs := make([]models.ArbOutcome, len(arb.Legs))
			for i, leg := range arb.Legs {
				outs[i] = models.ArbOutcome{Name: leg.Outcome, Sportsbook: leg.Book, Price: leg.Price}
			}
			arbList = append(arbList, models.ArbRecord{
				Sport:               key.Sport,
				FixtureID:           key.FixtureID,
				MarketName:          key.ComposedLower,
				IsLive:              key.IsLive,
				Outcomes:            outs,
				TotalImpliedPercent: arb.TotalImpliedPercent,
				ArbitragePercent:    arb.ArbitragePercent,
			})
		}

		canonical := normalize.CanonicalMarket(key.ComposedLower)
		nonexclusive := normalize.IsNonexclusiveMarket(canonical)
		keyOf := func(outcome string) string {
			return strings.ToLower(normalize.CleanOutcomeTeamName(outcome))
		}
		fair, ok := oddsmath.FairProbabilities(best, keyOf, nonexclusive)
		if !ok {
			continue
		}
		derivations = append(derivations, derivation{key: key, best: best, fair: fair})
	}

	for _, d := range derivations {
		for _, q := range quotes {
			if q.FixtureID != d.key.FixtureID || q.IsLive != d.key.IsLive {
				continue
			}
			if strings.ToLower(q.MarketRaw) != d.key.ComposedLower {
				continue
			}
			fairProb, ok := d.fair[q.OutcomeRaw]
			if !ok {
				continue
			}
			decOdds, ok := extractQuoteOdds(q)
			if !ok {
				continue
			}
			evPct := oddsmath.ComputeEVPct(fairProb, decOdds)

			e.evCache[models.EVCacheKey{
				FixtureID: q.FixtureID, Sportsbook: q.Sportsbook, Market: d.key.ComposedLower, Outcome: q.OutcomeRaw,
			}] = evPct

			canonical := normalize.CanonicalMarket(d.key.ComposedLower)
			rec := models.EVRecord{
				Sport:      sport,
				FixtureID:  q.FixtureID,
				Market:     d.key.ComposedLower,
				MarketBase: d.key.ComposedLower,
				MarketType: canonical,
				Name:       q.OutcomeRaw,
				Price:      decOdds,
				Sportsbook: q.Sportsbook,
				IsLive:     q.IsLive,
				EVValue:    evPct,
				DeepLink:   q.DeepLink,
			}
			if meta, ok := e.fixtureMeta[q.FixtureID]; ok {
				rec.HomeTeam = meta.HomeTeam
				rec.AwayTeam = meta.AwayTeam
				rec.StartDate = meta.StartDate
				rec.League = meta.League
			}
			evList = append(evList, rec)
		}
	}

	e.backfillTeamNamesLocked(sport, quotes, evList)

	needsFetch := make([]string, 0)
	for i := range evList {
		rec := &evList[i]
		if rec.HomeTeam == "" || rec.AwayTeam == "" {
			if _, done := e.fetched[rec.FixtureID]; !done {
				e.fetched[rec.FixtureID] = struct{}{}
				needsFetch = append(needsFetch, rec.FixtureID)
			}
		}
	}

	e.mu.Unlock()

	if e.FetchFixtureMeta != nil {
		for _, fx := range needsFetch {
			meta, ok := e.FetchFixtureMeta(sport, fx)
			if !ok {
				telemetry.Debugf("state: fixture meta fetch miss for %s", fx)
				continue
			}
			e.RefreshFixtureMeta(fx, *meta)
		}
	}

	if e.OnEV != nil {
		for _, rec := range evList {
			e.OnEV(rec)
		}
	}
	if e.OnArbitrage != nil {
		for _, rec := range arbList {
			e.OnArbitrage(rec)
		}
	}

	return evList, arbList
}

// backfillTeamNamesLocked fills missing home/away names on EV records using,
// in order: per-sportsbook H2H pairs from this batch, an aggregated pair
// over the whole batch, and finally outcome-name inference. Must be called
// with e.mu held.
func (e *Engine) backfillTeamNamesLocked(sport string, quotes []models.Quote, evList []models.EVRecord) {
	perBookPair := make(map[string]map[string][2]string) // fixture -> sportsbook -> [home, away]
	aggregatePair := make(map[string][2]string)

	for _, q := range quotes {
		if q.FixtureID == "" || !isH2HMarket(q.MarketRaw) {
			continue
		}
		if q.HomeTeam == "" || q.AwayTeam == "" {
			continue
		}
		if perBookPair[q.FixtureID] == nil {
			perBookPair[q.FixtureID] = make(map[string][2]string)
		}
		perBookPair[q.FixtureID][q.Sportsbook] = [2]string{q.HomeTeam, q.AwayTeam}
		if _, ok := aggregatePair[q.FixtureID]; !ok {
			aggregatePair[q.FixtureID] = [2]string{q.HomeTeam, q.AwayTeam}
		}
	}

	for i := range evList {
		rec := &evList[i]
		if rec.HomeTeam != "" && rec.AwayTeam != "" {
			continue
		}
		if byBook, ok := perBookPair[rec.FixtureID]; ok {
			if pair, ok := byBook[rec.Sportsbook]; ok {
				rec.HomeTeam, rec.AwayTeam = pair[0], pair[1]
				continue
			}
		}
		if pair, ok := aggregatePair[rec.FixtureID]; ok {
			rec.HomeTeam, rec.AwayTeam = pair[0], pair[1]
			continue
		}
		if home, away, ok := inferTeamsFromOutcomes(quotes, rec.FixtureID); ok {
			rec.HomeTeam, rec.AwayTeam = home, away
			e.mergeFixtureMetaLocked(rec.FixtureID, models.FixtureMetaEntry{HomeTeam: home, AwayTeam: away})
		}
	}
}

func isH2HMarket(marketRaw string) bool {
	lower := strings.ToLower(marketRaw)
	for _, tok := range h2hMarketTokens {
		if strings.Contains(lower, tok) {
			return true
		}
	}
	return false
}

// inferTeamsFromOutcomes takes up to two distinct cleaned outcome names for
// a fixture, excluding non-team placeholders, as a last-resort team pair.
func inferTeamsFromOutcomes(quotes []models.Quote, fixtureID string) (home, away string, ok bool) {
	seen := make(map[string]struct{})
	names := make([]string, 0, 2)
	for _, q := range quotes {
		if q.FixtureID != fixtureID {
			continue
		}
		cleaned := normalize.CleanOutcomeTeamName(q.OutcomeRaw)
		lower := strings.ToLower(cleaned)
		if _, excluded := excludedTeamTokens[lower]; excluded || cleaned == "" {
			continue
		}
		if normalize.IsGenericLabel(cleaned) {
			continue
		}
		if _, dup := seen[cleaned]; dup {
			continue
		}
		seen[cleaned] = struct{}{}
		names = append(names, cleaned)
		if len(names) == 2 {
			break
		}
	}
	if len(names) < 2 {
		return "", "", false
	}
	return names[0], names[1], true
}

// extractQuoteOdds reads the already-parsed decimal price off a Quote, or
// falls back to re-deriving it from the raw payload for quotes constructed
// directly (bypassing the SSE worker's parse step, as in tests).
func extractQuoteOdds(q models.Quote) (float64, bool) {
	if q.DecimalOdds >= 1.01 {
		return q.DecimalOdds, true
	}
	return oddsmath.ParseDecimalOdds(q.Extra)
}

// sortedKeys is a small test helper kept here because MarketBook snapshots
// are otherwise non-deterministic map iteration.
func sortedKeys(m map[string]*models.OutcomeRecord) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Snapshot returns the current best price and book for an outcome of a
// MarketKey, primarily for tests asserting monotonicity.
func (e *Engine) Snapshot(key models.MarketKey, outcome string) (models.OutcomeRecord, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	outcomes, ok := e.book[key]
	if !ok {
		return models.OutcomeRecord{}, false
	}
	rec, ok := outcomes[outcome]
	if !ok {
		return models.OutcomeRecord{}, false
	}
	return *rec, true
}

// Outcomes lists the outcome names currently tracked for a MarketKey, sorted
// for deterministic test assertions.
func (e *Engine) Outcomes(key models.MarketKey) []string {
	e.mu.Lock()
	defer e.mu.Unlock()
	outcomes, ok := e.book[key]
	if !ok {
		return nil
	}
	return sortedKeys(outcomes)
}
