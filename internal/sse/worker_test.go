package sse

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/vTajae/oddsgateway/pkg/models"
)

type fakeEngine struct {
	mu        sync.Mutex
	batches   int
	lastQuote []models.Quote
}

func (f *fakeEngine) ProcessBatch(sport string, quotes []models.Quote) ([]models.EVRecord, []models.ArbRecord) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.batches++
	f.lastQuote = quotes
	ev := []models.EVRecord{{Sport: sport, FixtureID: quotes[0].FixtureID, EVValue: 1.5}}
	return ev, nil
}

func (f *fakeEngine) EVLookup(string, string, string, string) (float64, bool) { return 0, false }
func (f *fakeEngine) FixtureMetaFor(string) (models.FixtureMetaEntry, bool)   { return models.FixtureMetaEntry{}, false }
func (f *fakeEngine) RefreshFixtureMeta(string, models.FixtureMetaEntry)     {}

func sseBody(events ...string) string {
	return strings.Join(events, "\n\n") + "\n\n"
}

func oddsEvent(entryID, fixtureID string) string {
	data := fmt.Sprintf(`{"entry_id":%q,"data":[{"fixture_id":%q,"market":"Moneyline","name":"Home Team","sportsbook":"DraftKings","decimal":1.91,"home_team_display":"Home Team","away_team_display":"Away Team"}]}`, entryID, fixtureID)
	return "event: odds\ndata: " + data
}

func TestWorker_ParsesOddsEventAndEmitsPayloads(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		w.WriteHeader(http.StatusOK)
		fmt.Fprint(w, sseBody(oddsEvent("e1", "fx1")))
	}))
	defer srv.Close()

	var mu sync.Mutex
	var sunk []any
	engine := &fakeEngine{}

	w := &Worker{
		Sport:       "baseball_mlb",
		Leagues:     []string{"mlb"},
		Sportsbooks: []string{"draftkings"},
		ChunkSize:   ChunkSize{Sportsbook: 10, League: 10},
		BaseURL:     srv.URL,
		APIKey:      "key",
		OddsFormat:  models.NewOddsFormatHolder("decimal"),
		Observer:    NewScopeObserver(nil),
		Engine:      engine,
		Sink: func(p any) {
			mu.Lock()
			sunk = append(sunk, p)
			mu.Unlock()
		},
	}

	status, err := w.connectAndStream(contextBackground(), w.Leagues, w.Sportsbooks, "", func(string) {})
	if err == nil {
		t.Fatalf("expected stream-closed error after body drains, got nil")
	}
	if status != 200 {
		t.Fatalf("status = %d, want 200", status)
	}

	mu.Lock()
	defer mu.Unlock()
	if len(sunk) == 0 {
		t.Fatalf("expected at least one emitted payload")
	}
	foundRaw, foundEV := false, false
	for _, p := range sunk {
		switch p.(type) {
		case models.RawOddsPayload:
			foundRaw = true
		case models.EVPayload:
			foundEV = true
		}
	}
	if !foundRaw {
		t.Errorf("expected a RawOddsPayload to be emitted")
	}
	if !foundEV {
		t.Errorf("expected an EVPayload to be emitted")
	}
	if engine.batches != 1 {
		t.Errorf("batches = %d, want 1", engine.batches)
	}
}

func TestWorker_BuildURLIncludesOddsFormatAndDeepLink(t *testing.T) {
	w := &Worker{
		Sport:      "basketball_nba",
		BaseURL:    "https://example.test",
		APIKey:     "secret",
		OddsFormat: models.NewOddsFormatHolder("american"),
	}
	u := w.buildURL([]string{"nba"}, []string{"fanduel"}, "")
	if !strings.Contains(u, "odds_format=american") {
		t.Errorf("url missing odds_format: %s", u)
	}
	if !strings.Contains(u, "include_deep_link=true") {
		t.Errorf("url missing include_deep_link: %s", u)
	}
	if !strings.Contains(u, "/stream/odds/basketball_nba") {
		t.Errorf("url missing sport path: %s", u)
	}
}

func TestWorker_ConnectAndStreamReturnsStatusOnBadRequest(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
	}))
	defer srv.Close()

	w := &Worker{
		Sport:      "soccer",
		BaseURL:    srv.URL,
		APIKey:     "key",
		OddsFormat: models.NewOddsFormatHolder("decimal"),
		Engine:     &fakeEngine{},
	}
	status, err := w.connectAndStream(contextBackground(), []string{"epl"}, []string{"dk"}, "", func(string) {})
	if err == nil {
		t.Fatalf("expected error on 400 status")
	}
	if status != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", status)
	}
}

func TestWorker_FixtureStatusEventRefreshesMetaOnly(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		w.WriteHeader(http.StatusOK)
		data := `{"data":[{"fixture_id":"fx9","home_team_display":"A","away_team_display":"B"}]}`
		fmt.Fprint(w, "event: fixture-status\ndata: "+data+"\n\n")
	}))
	defer srv.Close()

	var refreshed models.FixtureMetaEntry
	var gotRefresh bool
	engine := &refreshOnlyEngine{onRefresh: func(id string, m models.FixtureMetaEntry) {
		gotRefresh = true
		refreshed = m
	}}

	w := &Worker{
		Sport:      "baseball_mlb",
		BaseURL:    srv.URL,
		APIKey:     "key",
		OddsFormat: models.NewOddsFormatHolder("decimal"),
		Engine:     engine,
		Sink:       func(any) {},
	}
	_, _ = w.connectAndStream(contextBackground(), []string{"mlb"}, []string{"dk"}, "", func(string) {})

	if !gotRefresh {
		t.Fatalf("expected RefreshFixtureMeta to be called")
	}
	if refreshed.HomeTeam != "A" || refreshed.AwayTeam != "B" {
		t.Errorf("refreshed meta = %+v", refreshed)
	}
}

type refreshOnlyEngine struct {
	onRefresh func(string, models.FixtureMetaEntry)
}

func (r *refreshOnlyEngine) ProcessBatch(string, []models.Quote) ([]models.EVRecord, []models.ArbRecord) {
	return nil, nil
}
func (r *refreshOnlyEngine) EVLookup(string, string, string, string) (float64, bool) { return 0, false }
func (r *refreshOnlyEngine) FixtureMetaFor(string) (models.FixtureMetaEntry, bool)   { return models.FixtureMetaEntry{}, false }
func (r *refreshOnlyEngine) RefreshFixtureMeta(id string, m models.FixtureMetaEntry) {
	r.onRefresh(id, m)
}

func contextBackground() context.Context { return context.Background() }
