package hub

import (
	"strings"

	"github.com/vTajae/oddsgateway/internal/normalize"
	"github.com/vTajae/oddsgateway/pkg/models"
)

func setMatches(set map[string]struct{}, value string, matcher func(token, value string) bool) bool {
	if len(set) == 0 {
		return true
	}
	for token := range set {
		if matcher(token, value) {
			return true
		}
	}
	return false
}

func sportMatches(p Prefs, sport string) bool {
	return setMatches(p.Sports, sport, func(token, value string) bool {
		return strings.EqualFold(token, value)
	})
}

func marketMatches(p Prefs, marketRaw string) bool {
	return setMatches(p.Markets, marketRaw, func(token, value string) bool {
		return strings.Contains(normalize.CanonicalMarket(value), normalize.CanonicalMarket(token))
	})
}

func sportsbookMatches(p Prefs, sportsbook string) bool {
	return setMatches(p.Sportsbooks, sportsbook, func(token, value string) bool {
		return strings.Contains(normalize.AlnumLower(value), normalize.AlnumLower(token))
	})
}

func leagueMatches(p Prefs, league string) bool {
	return setMatches(p.Leagues, league, func(token, value string) bool {
		a, b := normalize.NormalizeLeagueAlias(token), normalize.NormalizeLeagueAlias(value)
		return strings.Contains(a, b) || strings.Contains(b, a)
	})
}

// evMatches reports whether an EV record survives a connection's filter
// sets and (when prod_type is "ev") its EV threshold.
func evMatches(p Prefs, rec models.EVRecord, applyThreshold bool) bool {
	if !sportMatches(p, rec.Sport) || !marketMatches(p, rec.Market) || !sportsbookMatches(p, rec.Sportsbook) || !leagueMatches(p, rec.League) {
		return false
	}
	if applyThreshold && p.EVThreshold > 0 && rec.EVValue < p.EVThreshold {
		return false
	}
	return true
}

// arbMatches reports whether an arbitrage record survives a connection's
// filter sets and (when prod_type is "arbitrage") its arb threshold.
func arbMatches(p Prefs, rec models.ArbRecord, applyThreshold bool) bool {
	if !sportMatches(p, rec.Sport) || !marketMatches(p, rec.MarketName) {
		return false
	}
	anyBookMatches := len(rec.Outcomes) == 0
	for _, leg := range rec.Outcomes {
		if sportsbookMatches(p, leg.Sportsbook) {
			anyBookMatches = true
			break
		}
	}
	if !anyBookMatches {
		return false
	}
	if applyThreshold && rec.ArbitragePercent < p.ArbThreshold {
		return false
	}
	return true
}

// filterRawPayload walks a grouped raw payload, retaining only books,
// games, and odds entries that survive the connection's filter sets.
// Returns ok=false when nothing survives.
func filterRawPayload(p Prefs, payload models.RawOddsPayload) (models.RawOddsPayload, bool) {
	out := make(map[string]models.BookBlock, len(payload.Payload))
	for book, block := range payload.Payload {
		if !sportsbookMatches(p, book) {
			continue
		}
		games := make([]models.Game, 0, len(block.Data))
		for _, g := range block.Data {
			if !sportMatches(p, g.Sport) || !leagueMatches(p, g.League) {
				continue
			}
			odds := make([]models.OddsEntry, 0, len(g.Odds))
			for _, o := range g.Odds {
				if !marketMatches(p, o.Market) {
					continue
				}
				odds = append(odds, o)
			}
			if len(odds) == 0 {
				continue
			}
			g.Odds = odds
			games = append(games, g)
		}
		if len(games) == 0 {
			continue
		}
		out[book] = models.BookBlock{Data: games}
	}
	if len(out) == 0 {
		return models.RawOddsPayload{}, false
	}
	return models.RawOddsPayload{Payload: out}, true
}
