package hub

import (
	"strings"
	"sync"

	"github.com/vTajae/oddsgateway/internal/normalize"
	"github.com/vTajae/oddsgateway/pkg/models"
)

var h2hSports = map[string]struct{}{
	"tennis": {}, "table_tennis": {}, "table tennis": {}, "mma": {}, "boxing": {},
}

// ParticipantCache remembers successfully inferred home/away pairs per
// fixture so later broadcasts stay consistent even when a given batch's EV
// records don't carry fixture metadata.
type ParticipantCache struct {
	mu    sync.Mutex
	pairs map[string][2]string
}

// NewParticipantCache returns an empty cache.
func NewParticipantCache() *ParticipantCache {
	return &ParticipantCache{pairs: make(map[string][2]string)}
}

func (c *ParticipantCache) get(fixtureID string) (string, string, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	pair, ok := c.pairs[fixtureID]
	return pair[0], pair[1], ok
}

func (c *ParticipantCache) put(fixtureID, home, away string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.pairs[fixtureID] = [2]string{home, away}
}

// titleSport converts a sport id like "table_tennis" into "Table Tennis".
func titleSport(s string) string {
	s = strings.ReplaceAll(s, "_", " ")
	words := strings.Fields(s)
	for i, w := range words {
		if len(w) == 0 {
			continue
		}
		words[i] = strings.ToUpper(w[:1]) + w[1:]
	}
	return strings.Join(words, " ")
}

func displayLeague(league string) string {
	if len(league) <= 6 {
		return strings.ToUpper(league)
	}
	return league
}

// groupEVList assembles EV records into the grouped-by-sportsbook wire
// shape, suppressing generic outcome labels and inferring H2H team pairs
// from the accumulated odds for sports where FixtureMeta carries neither.
func groupEVList(records []models.EVRecord, cache *ParticipantCache) models.RawOddsPayload {
	type gameKey struct {
		book      string
		fixtureID string
	}
	games := make(map[gameKey]*models.Game)
	order := make([]gameKey, 0)

	for _, rec := range records {
		if normalize.IsGenericLabel(rec.Name) {
			continue
		}
		key := gameKey{book: rec.Sportsbook, fixtureID: rec.FixtureID}
		g, ok := games[key]
		if !ok {
			g = &models.Game{
				ID:        rec.FixtureID,
				HomeTeam:  rec.HomeTeam,
				AwayTeam:  rec.AwayTeam,
				Sport:     titleSport(rec.Sport),
				League:    displayLeague(rec.League),
				StartDate: rec.StartDate,
			}
			games[key] = g
			order = append(order, key)
		}
		evVal := rec.EVValue
		price := rec.Price
		name := rec.Name
		g.Odds = append(g.Odds, models.OddsEntry{
			Market:         rec.Market,
			SportsBookName: rec.Sportsbook,
			DeepLink:       rec.DeepLink,
			EVValue:        &evVal,
			Name:           &name,
			Price:          &price,
			IsLive:         rec.IsLive,
		})
	}

	for _, key := range order {
		g := games[key]
		if g.HomeTeam != "" || g.AwayTeam != "" {
			continue
		}
		sportKey := strings.ToLower(g.Sport)
		if _, isH2H := h2hSports[sportKey]; !isH2H {
			continue
		}
		if home, away, ok := cache.get(g.ID); ok {
			g.HomeTeam, g.AwayTeam = home, away
			continue
		}
		if home, away, ok := inferFromOdds(g.Odds); ok {
			g.HomeTeam, g.AwayTeam = home, away
			cache.put(g.ID, home, away)
		}
	}

	payload := make(map[string]models.BookBlock)
	for _, key := range order {
		g := games[key]
		block := payload[key.book]
		block.Data = append(block.Data, *g)
		payload[key.book] = block
	}
	return models.RawOddsPayload{Payload: payload}
}

var h2hOddsMarketTokens = []string{"moneyline", "match winner", "ml", "winner"}

func inferFromOdds(odds []models.OddsEntry) (home, away string, ok bool) {
	names := make([]string, 0, 2)
	seen := make(map[string]struct{})

	pick := func(preferH2H bool) {
		for _, o := range odds {
			if o.Name == nil {
				continue
			}
			if preferH2H && !isH2HMarketName(o.Market) {
				continue
			}
			cleaned := normalize.CleanOutcomeTeamName(*o.Name)
			if cleaned == "" || normalize.IsGenericLabel(cleaned) {
				continue
			}
			if _, dup := seen[cleaned]; dup {
				continue
			}
			seen[cleaned] = struct{}{}
			names = append(names, cleaned)
			if len(names) == 2 {
				return
			}
		}
	}
	pick(true)
	if len(names) < 2 {
		pick(false)
	}
	if len(names) < 2 {
		return "", "", false
	}
	return names[0], names[1], true
}

func isH2HMarketName(market string) bool {
	lower := strings.ToLower(market)
	for _, tok := range h2hOddsMarketTokens {
		if strings.Contains(lower, tok) {
			return true
		}
	}
	return false
}
