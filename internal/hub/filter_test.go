package hub

import (
	"testing"

	"github.com/vTajae/oddsgateway/pkg/models"
)

func TestEvMatches_EmptyFiltersAcceptAll(t *testing.T) {
	p := DefaultPrefs()
	rec := models.EVRecord{Sport: "baseball_mlb", Market: "moneyline", Sportsbook: "DraftKings", League: "mlb", EVValue: 2.0}
	if !evMatches(p, rec, false) {
		t.Errorf("expected match with no filters")
	}
}

func TestEvMatches_ThresholdGatesWhenProdTypeEV(t *testing.T) {
	p := DefaultPrefs()
	p.EVThreshold = 3.0
	rec := models.EVRecord{EVValue: 2.0}
	if evMatches(p, rec, true) {
		t.Errorf("record below threshold should not match")
	}
	rec.EVValue = 3.5
	if !evMatches(p, rec, true) {
		t.Errorf("record above threshold should match")
	}
}

func TestEvMatches_MarketFilterUsesCanonicalSubstring(t *testing.T) {
	p := DefaultPrefs()
	p.Markets = map[string]struct{}{"1st half moneyline": {}}
	rec := models.EVRecord{Market: "h1 moneyline"}
	if !evMatches(p, rec, false) {
		t.Errorf("expected canonical market match across ordinal forms")
	}
}

func TestSportsbookMatches_AlnumCompacted(t *testing.T) {
	p := DefaultPrefs()
	p.Sportsbooks = map[string]struct{}{"draft-kings": {}}
	if !sportsbookMatches(p, "DraftKings") {
		t.Errorf("expected alnum-compacted sportsbook match")
	}
}

func TestLeagueMatches_AliasAware(t *testing.T) {
	p := DefaultPrefs()
	p.Leagues = map[string]struct{}{"ncaaf": {}}
	if !leagueMatches(p, "ncaafootball") {
		t.Errorf("expected alias-aware league match")
	}
}

func TestArbMatches_ThresholdGatesWhenProdTypeArbitrage(t *testing.T) {
	p := DefaultPrefs()
	p.ArbThreshold = 4.0
	rec := models.ArbRecord{ArbitragePercent: 3.6}
	if arbMatches(p, rec, true) {
		t.Errorf("3.6%% arb should not clear a 4.0%% threshold")
	}
	rec.ArbitragePercent = 4.1
	if !arbMatches(p, rec, true) {
		t.Errorf("4.1%% arb should clear a 4.0%% threshold")
	}
}

func TestFilterRawPayload_DropsNonMatchingBooksAndMarkets(t *testing.T) {
	p := DefaultPrefs()
	p.Sportsbooks = map[string]struct{}{"draftkings": {}}
	name := "Home Team"
	price := 1.91
	payload := models.RawOddsPayload{Payload: map[string]models.BookBlock{
		"DraftKings": {Data: []models.Game{{ID: "fx1", Sport: "baseball_mlb", Odds: []models.OddsEntry{{Market: "moneyline", Name: &name, Price: &price}}}}},
		"FanDuel":    {Data: []models.Game{{ID: "fx2", Sport: "baseball_mlb", Odds: []models.OddsEntry{{Market: "moneyline", Name: &name, Price: &price}}}}},
	}}
	out, ok := filterRawPayload(p, payload)
	if !ok {
		t.Fatalf("expected at least one surviving book")
	}
	if _, has := out.Payload["FanDuel"]; has {
		t.Errorf("FanDuel should have been filtered out")
	}
	if _, has := out.Payload["DraftKings"]; !has {
		t.Errorf("DraftKings should have survived")
	}
}

func TestFilterRawPayload_EmptyResultReportsNotOK(t *testing.T) {
	p := DefaultPrefs()
	p.Sportsbooks = map[string]struct{}{"zzz": {}}
	payload := models.RawOddsPayload{Payload: map[string]models.BookBlock{
		"DraftKings": {Data: []models.Game{{ID: "fx1"}}},
	}}
	if _, ok := filterRawPayload(p, payload); ok {
		t.Errorf("expected no survivors")
	}
}
