package subscription

import (
	"context"
	"testing"
	"time"

	"github.com/vTajae/oddsgateway/internal/catalogue"
	"github.com/vTajae/oddsgateway/pkg/models"
)

type fakeCatalogue struct {
	sports      []catalogue.Item
	sportsbooks []catalogue.Item
	leagues     map[string][]catalogue.Item
}

func (f *fakeCatalogue) Sports(context.Context) ([]catalogue.Item, error)      { return f.sports, nil }
func (f *fakeCatalogue) Sportsbooks(context.Context) ([]catalogue.Item, error) { return f.sportsbooks, nil }
func (f *fakeCatalogue) Leagues(_ context.Context, sport string) ([]catalogue.Item, error) {
	return f.leagues[sport], nil
}

type noopEngine struct{}

func (noopEngine) ProcessBatch(string, []models.Quote) ([]models.EVRecord, []models.ArbRecord) {
	return nil, nil
}
func (noopEngine) EVLookup(string, string, string, string) (float64, bool) { return 0, false }
func (noopEngine) FixtureMetaFor(string) (models.FixtureMetaEntry, bool)   { return models.FixtureMetaEntry{}, false }
func (noopEngine) RefreshFixtureMeta(string, models.FixtureMetaEntry)      {}

func leagueItems(ids ...string) []catalogue.Item {
	items := make([]catalogue.Item, len(ids))
	for i, id := range ids {
		items[i] = catalogue.Item{ID: id}
	}
	return items
}

func TestResolveLeagues_FallsBackToFilterTokensWhenNoMatch(t *testing.T) {
	out := resolveLeagues(leagueItems("nfl", "nba"), []string{"zzz_no_such_league"})
	if len(out) != 1 || out[0] != "zzz_no_such_league" {
		t.Errorf("resolveLeagues = %v, want fallback to filter tokens", out)
	}
}

func TestResolveLeagues_MatchesByAlias(t *testing.T) {
	out := resolveLeagues(leagueItems("ncaafootball", "nfl"), []string{"ncaaf"})
	if len(out) != 1 || out[0] != "ncaafootball" {
		t.Errorf("resolveLeagues = %v, want [ncaafootball]", out)
	}
}

func TestResolveLeagues_MatchesByDisplayName(t *testing.T) {
	out := resolveLeagues([]catalogue.Item{{ID: "epl", Name: "English Premier League"}}, []string{"premier league"})
	if len(out) != 1 || out[0] != "epl" {
		t.Errorf("resolveLeagues = %v, want [epl] matched by display name", out)
	}
}

func TestApplyAllowWithFallback_FallsBackToFullListWhenNothingMatches(t *testing.T) {
	out := applyAllowWithFallback(leagueItems("basketball_nba", "baseball_mlb"), []string{"zzz"})
	if len(out) != 2 {
		t.Errorf("applyAllowWithFallback = %v, want full fallback list", out)
	}
}

func TestApplyAllowWithFallback_MatchesByDisplayName(t *testing.T) {
	out := applyAllowWithFallback([]catalogue.Item{{ID: "dk", Name: "DraftKings"}, {ID: "fd", Name: "FanDuel"}}, []string{"draftkings"})
	if len(out) != 1 || out[0] != "dk" {
		t.Errorf("applyAllowWithFallback = %v, want [dk] matched by display name", out)
	}
}

func TestStart_EmitsNoSportsbooksMatchedAndSpawnsNoWorkers(t *testing.T) {
	cat := &fakeCatalogue{
		sports:      []catalogue.Item{{ID: "baseball_mlb"}},
		sportsbooks: []catalogue.Item{{ID: "draftkings"}},
		leagues:     map[string][]catalogue.Item{"baseball_mlb": {{ID: "mlb"}}},
	}
	var scopeEvents []ScopeEvent
	m := &Manager{
		Catalogue:  cat,
		OddsFormat: models.NewOddsFormatHolder("decimal"),
		Engine:     noopEngine{},
		Sink:       func(any) {},
		OnScope:    func(e ScopeEvent) { scopeEvents = append(scopeEvents, e) },
	}

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	if err := m.Start(ctx, Filters{Sportsbooks: []string{"fanduel"}}); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if len(scopeEvents) != 1 || scopeEvents[0].Note != "no_sportsbooks_matched" {
		t.Fatalf("scopeEvents = %+v, want a single no_sportsbooks_matched note", scopeEvents)
	}
}

func TestStart_ResolvesScopeAndCapsWorkersByMaxWorkers(t *testing.T) {
	cat := &fakeCatalogue{
		sports:      []catalogue.Item{{ID: "baseball_mlb"}, {ID: "basketball_nba"}},
		sportsbooks: []catalogue.Item{{ID: "draftkings"}},
		leagues: map[string][]catalogue.Item{
			"baseball_mlb":   {{ID: "mlb"}},
			"basketball_nba": {{ID: "nba"}},
		},
	}
	var scopeEvents []ScopeEvent
	m := &Manager{
		Catalogue:  cat,
		MaxWorkers: 1,
		OddsFormat: models.NewOddsFormatHolder("decimal"),
		Engine:     noopEngine{},
		Sink:       func(any) {},
		OnScope:    func(e ScopeEvent) { scopeEvents = append(scopeEvents, e) },
	}

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	if err := m.Start(ctx, Filters{}); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if len(scopeEvents) != 1 {
		t.Fatalf("scopeEvents = %+v, want exactly one", scopeEvents)
	}
	if len(scopeEvents[0].Sports) != 1 {
		t.Errorf("resolved sports = %v, want exactly 1 (max_workers cap)", scopeEvents[0].Sports)
	}
}
