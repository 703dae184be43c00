package handlers

import (
	"reflect"
	"testing"

	"github.com/vTajae/oddsgateway/internal/hub"
)

func TestBuildIngestFilters_IgnoresConnectionScopeWhenIngestFiltersDisabled(t *testing.T) {
	s := &session{handler: &Handler{deps: Deps{
		IngestFiltersEnabled:   false,
		DefaultSportsAllowlist: []string{"baseball_mlb"},
		DefaultAllowedMarkets:  []string{"moneyline"},
		DefaultIncludeFixtures: true,
	}}}
	prefs := hub.DefaultPrefs()
	prefs.Sports = map[string]struct{}{"basketball_nba": {}}
	prefs.Sportsbooks = map[string]struct{}{"draftkings": {}}

	got := s.buildIngestFilters(prefs)

	if !reflect.DeepEqual(got.Sports, []string{"baseball_mlb"}) {
		t.Errorf("expected connection sport filter ignored in favor of allowlist, got %v", got.Sports)
	}
	if got.Sportsbooks != nil {
		t.Errorf("expected connection sportsbook filter dropped when ingest filters disabled, got %v", got.Sportsbooks)
	}
	if !reflect.DeepEqual(got.AllowedMarkets, []string{"moneyline"}) {
		t.Errorf("expected server-wide market allowlist regardless of connection filters, got %v", got.AllowedMarkets)
	}
	if !got.IncludeFixtures {
		t.Errorf("expected server-wide include_fixture_updates default")
	}
}

func TestBuildIngestFilters_AppliesConnectionScopeWhenIngestFiltersEnabled(t *testing.T) {
	s := &session{handler: &Handler{deps: Deps{
		IngestFiltersEnabled:   true,
		DefaultSportsAllowlist: []string{"baseball_mlb"},
	}}}
	prefs := hub.DefaultPrefs()
	prefs.Sports = map[string]struct{}{"basketball_nba": {}}
	prefs.Sportsbooks = map[string]struct{}{"draftkings": {}}

	got := s.buildIngestFilters(prefs)

	if !reflect.DeepEqual(got.Sports, []string{"basketball_nba"}) {
		t.Errorf("expected connection sport filter honored, got %v", got.Sports)
	}
	if !reflect.DeepEqual(got.Sportsbooks, []string{"draftkings"}) {
		t.Errorf("expected connection sportsbook filter honored, got %v", got.Sportsbooks)
	}
}

func TestBuildIngestFilters_FallsBackToSportsAllowlistWhenConnectionRequestsNone(t *testing.T) {
	s := &session{handler: &Handler{deps: Deps{
		IngestFiltersEnabled:   true,
		DefaultSportsAllowlist: []string{"baseball_mlb", "basketball_nba"},
	}}}
	prefs := hub.DefaultPrefs()

	got := s.buildIngestFilters(prefs)

	if !reflect.DeepEqual(got.Sports, []string{"baseball_mlb", "basketball_nba"}) {
		t.Errorf("expected fallback to sports allowlist, got %v", got.Sports)
	}
}
