package sse

import "sync"

const observedCap = 50

// ScopeObserver maintains rolling sets of observed markets, leagues, and
// sportsbooks (capped for announcement purposes) and fires a callback
// whenever any of the three counts changes.
type ScopeObserver struct {
	mu         sync.Mutex
	markets    map[string]struct{}
	leagues    map[string]struct{}
	sportsbooks map[string]struct{}
	onChange   func(markets, leagues, sportsbooks []string)
}

// NewScopeObserver constructs an observer that invokes onChange (if
// non-nil) whenever an Observe call grows one of the tracked sets.
func NewScopeObserver(onChange func(markets, leagues, sportsbooks []string)) *ScopeObserver {
	return &ScopeObserver{
		markets:     make(map[string]struct{}),
		leagues:     make(map[string]struct{}),
		sportsbooks: make(map[string]struct{}),
		onChange:    onChange,
	}
}

// Observe records one item's market/league/sportsbook and fires onChange if
// any set grew (subject to the announcement cap).
func (s *ScopeObserver) Observe(market, league, sportsbook string) {
	s.mu.Lock()
	changed := false
	if market != "" {
		if _, ok := s.markets[market]; !ok && len(s.markets) < observedCap {
			s.markets[market] = struct{}{}
			changed = true
		}
	}
	if league != "" {
		if _, ok := s.leagues[league]; !ok && len(s.leagues) < observedCap {
			s.leagues[league] = struct{}{}
			changed = true
		}
	}
	if sportsbook != "" {
		if _, ok := s.sportsbooks[sportsbook]; !ok && len(s.sportsbooks) < observedCap {
			s.sportsbooks[sportsbook] = struct{}{}
			changed = true
		}
	}
	var markets, leagues, sportsbooks []string
	if changed {
		markets = keys(s.markets)
		leagues = keys(s.leagues)
		sportsbooks = keys(s.sportsbooks)
	}
	s.mu.Unlock()

	if changed && s.onChange != nil {
		s.onChange(markets, leagues, sportsbooks)
	}
}

func keys(m map[string]struct{}) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	return out
}
