// Package sse runs one upstream SSE subscription per sport: it chunks the
// league/sportsbook axes to keep a single URL bounded, parses the event
// stream, calls into the odds state engine, and emits derived payloads.
package sse

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/vTajae/oddsgateway/internal/normalize"
	"github.com/vTajae/oddsgateway/internal/telemetry"
	"github.com/vTajae/oddsgateway/pkg/models"
	"github.com/vTajae/oddsgateway/pkg/oddsmath"
)

const (
	connectTimeout = 5 * time.Second
	readTimeout    = 45 * time.Second

	backoffStart = 2 * time.Second
	backoffCap   = 30 * time.Second
)

// Engine is the subset of the state engine the worker depends on, so tests
// can substitute a fake.
type Engine interface {
	ProcessBatch(sport string, quotes []models.Quote) (ev []models.EVRecord, arb []models.ArbRecord)
	EVLookup(fixtureID, sportsbook, market, outcome string) (float64, bool)
	FixtureMetaFor(fixtureID string) (models.FixtureMetaEntry, bool)
	RefreshFixtureMeta(fixtureID string, meta models.FixtureMetaEntry)
}

// Worker streams odds for one sport, chunking leagues and sportsbooks into
// bounded-size URL pieces and recovering from transport failures.
type Worker struct {
	Sport       string
	Leagues     []string
	Sportsbooks []string
	ChunkSize   ChunkSize

	BaseURL string
	APIKey  string

	IncludeFixtureUpdates bool
	AllowedMarkets        []string

	OddsFormat *models.OddsFormatHolder
	Observer   *ScopeObserver
	Engine     Engine
	Sink       func(payload any)

	// OnReconnect, OnBisect, and OnQuotes, if set, are called once per
	// occurrence for metrics, keeping this package free of a hard
	// Prometheus dependency.
	OnReconnect func()
	OnBisect    func()
	OnQuotes    func(n int)

	httpClient *http.Client
}

// Run drives the worker until ctx is cancelled, reconnecting with
// exponential backoff and rotating through league/sportsbook chunk pairs on
// transport failure, bisecting the offending chunk on an over-long URL.
func (w *Worker) Run(ctx context.Context) {
	if w.httpClient == nil {
		w.httpClient = &http.Client{}
	}

	leagueChunks := ChunkList(DedupePreserveOrder(w.Leagues), w.ChunkSize.League)
	sportsbookChunks := ChunkList(DedupePreserveOrder(w.Sportsbooks), w.ChunkSize.Sportsbook)
	pairIdx := 0

	backoff := backoffStart
	var lastEventID string

	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		li := pairIdx % len(leagueChunks)
		si := (pairIdx / len(leagueChunks)) % len(sportsbookChunks)
		leagueChunk := leagueChunks[li]
		sportsbookChunk := sportsbookChunks[si]

		status, err := w.connectAndStream(ctx, leagueChunk, sportsbookChunk, lastEventID, func(id string) { lastEventID = id })
		if ctx.Err() != nil {
			return
		}

		if status == http.StatusOK {
			backoff = backoffStart
		}

		switch {
		case err == nil:
			backoff = backoffStart
			pairIdx++
		case status == http.StatusBadRequest || status == http.StatusRequestURITooLong:
			telemetry.Warnf("sse worker %s: bisecting oversized request (status %d)", w.Sport, status)
			if w.OnBisect != nil {
				w.OnBisect()
			}
			if len(leagueChunk) > len(sportsbookChunk) && len(leagueChunk) > 1 {
				a, b := Bisect(leagueChunk)
				leagueChunks = replaceChunk(leagueChunks, li, a, b)
			} else if len(sportsbookChunk) > 1 {
				a, b := Bisect(sportsbookChunk)
				sportsbookChunks = replaceChunk(sportsbookChunks, si, a, b)
			}
		default:
			telemetry.Warnf("sse worker %s: connection failed, backing off %s: %v", w.Sport, backoff, err)
			if w.OnReconnect != nil {
				w.OnReconnect()
			}
			select {
			case <-ctx.Done():
				return
			case <-time.After(backoff):
			}
			backoff *= 2
			if backoff > backoffCap {
				backoff = backoffCap
			}
			pairIdx++
		}
	}
}

func replaceChunk(chunks [][]string, idx int, a, b []string) [][]string {
	out := make([][]string, 0, len(chunks)+1)
	out = append(out, chunks[:idx]...)
	out = append(out, a)
	if len(b) > 0 {
		out = append(out, b)
	}
	out = append(out, chunks[idx+1:]...)
	return out
}

func (w *Worker) buildURL(leagues, sportsbooks []string, lastEventID string) string {
	q := url.Values{}
	q.Set("key", w.APIKey)
	if len(leagues) > 0 {
		q.Set("league", strings.Join(leagues, ","))
	}
	if len(sportsbooks) > 0 {
		q.Set("sportsbook", strings.Join(sportsbooks, ","))
	}
	q.Set("include_deep_link", "true")
	q.Set("odds_format", w.OddsFormat.Get())
	q.Set("include_fixture_updates", strconv.FormatBool(w.IncludeFixtureUpdates))
	return fmt.Sprintf("%s/stream/odds/%s?%s", w.BaseURL, w.Sport, q.Encode())
}

// connectAndStream opens one SSE connection and drains it until it ends,
// errors, or ctx fires. Returns the HTTP status observed (0 if the
// connection itself failed) and an error describing the failure, if any.
func (w *Worker) connectAndStream(ctx context.Context, leagues, sportsbooks []string, lastEventID string, onEventID func(string)) (int, error) {
	if w.httpClient == nil {
		w.httpClient = &http.Client{}
	}
	connectCtx, cancel := context.WithTimeout(ctx, connectTimeout)
	req, err := http.NewRequestWithContext(connectCtx, http.MethodGet, w.buildURL(leagues, sportsbooks, lastEventID), nil)
	if err != nil {
		cancel()
		return 0, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Accept", "text/event-stream")
	if lastEventID != "" {
		req.Header.Set("Last-Event-ID", lastEventID)
	}

	resp, err := w.httpClient.Do(req)
	cancel()
	if err != nil {
		return 0, fmt.Errorf("connect: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return resp.StatusCode, fmt.Errorf("upstream status %d", resp.StatusCode)
	}

	telemetry.Infof("sse worker %s: connected (leagues=%d sportsbooks=%d)", w.Sport, len(leagues), len(sportsbooks))

	scanner := bufio.NewScanner(resp.Body)
	scanner.Buffer(make([]byte, 64*1024), 1<<20)

	var eventType, dataBuf string
	for scanner.Scan() {
		select {
		case <-ctx.Done():
			return 200, nil
		default:
		}

		line := scanner.Text()
		switch {
		case line == "":
			if dataBuf != "" {
				w.handleEvent(eventType, dataBuf, onEventID)
			}
			eventType, dataBuf = "", ""
		case strings.HasPrefix(line, "event:"):
			eventType = strings.TrimSpace(strings.TrimPrefix(line, "event:"))
		case strings.HasPrefix(line, "data:"):
			if dataBuf != "" {
				dataBuf += "\n"
			}
			dataBuf += strings.TrimSpace(strings.TrimPrefix(line, "data:"))
		}
	}
	if err := scanner.Err(); err != nil {
		return 200, fmt.Errorf("read stream: %w", err)
	}
	return 200, fmt.Errorf("stream closed")
}

type ssePayload struct {
	EntryID string           `json:"entry_id"`
	Data    []map[string]any `json:"data"`
}

func (w *Worker) handleEvent(eventType, data string, onEventID func(string)) {
	switch eventType {
	case "odds", "locked-odds":
		var payload ssePayload
		if err := json.Unmarshal([]byte(data), &payload); err != nil {
			telemetry.Debugf("sse worker %s: malformed event body, skipped", w.Sport)
			return
		}
		if payload.EntryID != "" {
			onEventID(payload.EntryID)
		}
		w.processOddsItems(payload.Data)
	case "fixture-status":
		var payload ssePayload
		if err := json.Unmarshal([]byte(data), &payload); err != nil {
			return
		}
		for _, item := range payload.Data {
			w.refreshFixtureFromItem(item)
		}
	default:
		// ignored event type
	}
}

func (w *Worker) refreshFixtureFromItem(item map[string]any) {
	fixtureID, ok := item["fixture_id"].(string)
	if !ok {
		if id, ok := item["id"].(string); ok {
			fixtureID = id
		}
	}
	if fixtureID == "" {
		return
	}
	home, away := oddsmath.ExtractHomeAway(item)
	league := oddsmath.ExtractLeagueName(item)
	var start *int64
	if ts, ok := oddsmath.ExtractStartTime(item); ok {
		start = &ts
	}
	w.Engine.RefreshFixtureMeta(fixtureID, models.FixtureMetaEntry{HomeTeam: home, AwayTeam: away, League: league, StartDate: start})
}

func (w *Worker) processOddsItems(items []map[string]any) {
	if len(w.AllowedMarkets) > 0 {
		filtered := items[:0:0]
		for _, item := range items {
			if AllowedMarket(item, w.AllowedMarkets) {
				filtered = append(filtered, item)
			}
		}
		items = filtered
	}

	quotes := make([]models.Quote, 0, len(items))
	for _, item := range items {
		q, ok := w.quoteFromItem(item)
		if !ok {
			continue
		}
		quotes = append(quotes, q)
		w.Observer.Observe(normalize.CanonicalMarket(q.MarketRaw), q.League, q.Sportsbook)
	}
	if len(quotes) == 0 {
		return
	}
	if w.OnQuotes != nil {
		w.OnQuotes(len(quotes))
	}

	evList, arbList := w.Engine.ProcessBatch(w.Sport, quotes)

	raw := w.buildRawPayload(quotes)
	if len(raw.Payload) > 0 {
		w.Sink(raw)
	}
	if len(evList) > 0 {
		w.Sink(models.EVPayload{EV: evList})
	}
	for _, arb := range arbList {
		w.Sink(models.ArbPayload{Arbitrage: arb})
	}
}

func (w *Worker) quoteFromItem(item map[string]any) (models.Quote, bool) {
	fixtureID, _ := item["fixture_id"].(string)
	if fixtureID == "" {
		if id, ok := item["id"].(string); ok {
			fixtureID = id
		}
	}
	market, _ := item["market"].(string)
	outcome, _ := item["name"].(string)
	if outcome == "" {
		outcome, _ = item["outcome"].(string)
	}
	sportsbook, _ := item["sportsbook"].(string)
	if sportsbook == "" {
		sportsbook, _ = item["sports_book_name"].(string)
	}
	if fixtureID == "" || market == "" || outcome == "" || sportsbook == "" {
		return models.Quote{}, false
	}

	dec, ok := oddsmath.ParseDecimalOdds(item)
	if !ok {
		return models.Quote{}, false
	}

	segment, _ := item["period"].(string)
	if segment == "" {
		segment, _ = item["segment"].(string)
	}
	composed := normalize.ComposeMarket(market, segment)

	isLive, _ := item["is_live"].(bool)
	home, away := oddsmath.ExtractHomeAway(item)
	league := oddsmath.ExtractLeagueName(item)
	var start *int64
	if ts, ok := oddsmath.ExtractStartTime(item); ok {
		start = &ts
	}

	q := models.Quote{
		Sport:       w.Sport,
		FixtureID:   fixtureID,
		MarketRaw:   composed,
		OutcomeRaw:  outcome,
		Sportsbook:  sportsbook,
		IsLive:      isLive,
		DeepLink:    oddsmath.ExtractDeepLink(item),
		HomeTeam:    home,
		AwayTeam:    away,
		League:      league,
		StartDate:   start,
		DecimalOdds: dec,
		Extra:       item,
	}
	return q, true
}

func (w *Worker) buildRawPayload(quotes []models.Quote) models.RawOddsPayload {
	books := make(map[string]map[string]*models.Game)
	for _, q := range quotes {
		bookGames, ok := books[q.Sportsbook]
		if !ok {
			bookGames = make(map[string]*models.Game)
			books[q.Sportsbook] = bookGames
		}
		game, ok := bookGames[q.FixtureID]
		if !ok {
			home, away := q.HomeTeam, q.AwayTeam
			var start *int64 = q.StartDate
			league := q.League
			if meta, ok := w.Engine.FixtureMetaFor(q.FixtureID); ok {
				if home == "" {
					home = meta.HomeTeam
				}
				if away == "" {
					away = meta.AwayTeam
				}
				if start == nil {
					start = meta.StartDate
				}
				if league == "" {
					league = meta.League
				}
			}
			game = &models.Game{
				HomeTeam: home, AwayTeam: away, ID: q.FixtureID,
				StartDate: start, Sport: w.Sport, League: league,
			}
			bookGames[q.FixtureID] = game
		}

		evValue, hasEV := w.Engine.EVLookup(q.FixtureID, q.Sportsbook, q.MarketRaw, q.OutcomeRaw)
		entry := models.OddsEntry{
			ID:             fmt.Sprintf("%s:%s:%s:%s", q.FixtureID, strings.ToLower(q.Sportsbook), strings.ToLower(q.MarketRaw), strings.ReplaceAll(strings.ToLower(q.OutcomeRaw), " ", "_")),
			Market:         q.MarketRaw,
			SportsBookName: q.Sportsbook,
			DeepLink:       q.DeepLink,
			HasBeenPosted:  false,
			IsLive:         q.IsLive,
		}
		name := q.OutcomeRaw
		entry.Name = &name
		price := q.DecimalOdds
		entry.Price = &price
		if hasEV {
			entry.EVValue = &evValue
		}
		game.Odds = append(game.Odds, entry)
	}

	payload := make(map[string]models.BookBlock, len(books))
	for book, games := range books {
		data := make([]models.Game, 0, len(games))
		for _, g := range games {
			data = append(data, *g)
		}
		payload[book] = models.BookBlock{Data: data}
	}
	return models.RawOddsPayload{Payload: payload}
}
