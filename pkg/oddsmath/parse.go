package oddsmath

import (
	"strconv"
	"strings"
	"time"
)

// AmericanToDecimal converts American odds to decimal odds per the strict
// precedence used by the rest of the parsing pipeline: a >= 100 is treated
// as an underdog price, a <= -100 as a favourite price.
// Values strictly between -100 and 100 are not valid American odds and
// report ok=false.
func AmericanToDecimal(a float64) (decimal float64, ok bool) {
	switch {
	case a >= 100:
		return 1.0 + (a / 100.0), true
	case a <= -100:
		return 1.0 + (100.0 / -a), true
	default:
		return 0, false
	}
}

// asFloat coerces common JSON-decoded numeric shapes (float64, int, int64,
// string) into a float64.
func asFloat(v any) (float64, bool) {
	switch t := v.(type) {
	case float64:
		return t, true
	case int:
		return float64(t), true
	case int64:
		return float64(t), true
	case string:
		s := strings.TrimSpace(t)
		if s == "" {
			return 0, false
		}
		f, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return 0, false
		}
		return f, true
	default:
		return 0, false
	}
}

func lookupFloat(m map[string]any, keys ...string) (float64, bool) {
	if m == nil {
		return 0, false
	}
	for _, k := range keys {
		if v, present := m[k]; present {
			if f, ok := asFloat(v); ok {
				return f, true
			}
		}
	}
	return 0, false
}

// ParseDecimalOdds applies the fixed extraction precedence over a
// polymorphic quote payload:
//
//  1. explicit decimal fields, top-level or nested under "price"
//  2. explicit American fields, same two roots, converted to decimal
//  3. generic "odds"/"price": American if |x| >= 100, else decimal
//
// The first admissible value (>= 1.01 once in decimal form) wins.
func ParseDecimalOdds(item map[string]any) (float64, bool) {
	var priceObj map[string]any
	if p, ok := item["price"].(map[string]any); ok {
		priceObj = p
	}
	roots := []map[string]any{item}
	if priceObj != nil {
		roots = append(roots, priceObj)
	}

	for _, root := range roots {
		if f, ok := lookupFloat(root, "decimal", "odds_decimal", "price_decimal", "decimal_price"); ok && f >= 1.01 {
			return f, true
		}
	}
	for _, root := range roots {
		if f, ok := lookupFloat(root, "american", "odds_american"); ok {
			if dec, ok := AmericanToDecimal(f); ok {
				return dec, true
			}
		}
	}
	if f, ok := lookupFloat(item, "odds", "price"); ok {
		if f >= 100 || f <= -100 {
			if dec, ok := AmericanToDecimal(f); ok {
				return dec, true
			}
		}
		if f >= 1.01 {
			return f, true
		}
	}
	return 0, false
}

var genericOutcomeTokens = map[string]struct{}{
	"over": {}, "under": {}, "yes": {}, "no": {}, "odd": {}, "even": {},
}

// IsGenericLabel reports whether s is a non-team placeholder outcome such as
// "Over", "Under 35", "Yes"; real team/player names never match.
func IsGenericLabel(s string) bool {
	t := strings.ToLower(strings.TrimSpace(s))
	if t == "" {
		return false
	}
	if _, ok := genericOutcomeTokens[t]; ok {
		return true
	}
	if strings.HasPrefix(t, "over") || strings.HasPrefix(t, "under") {
		rest := strings.TrimSpace(strings.TrimPrefix(strings.TrimPrefix(t, "over"), "under"))
		if rest == "" {
			return true
		}
		rest = strings.TrimPrefix(rest, "+")
		rest = strings.TrimPrefix(rest, "-")
		if _, err := strconv.ParseFloat(rest, 64); err == nil {
			return true
		}
	}
	return false
}

func normName(v string) string {
	s := strings.TrimSpace(v)
	if s == "" {
		return ""
	}
	low := strings.ToLower(s)
	if low == "none" || low == "null" || low == "n/a" || low == "na" {
		return ""
	}
	return s
}

func pickFirstString(m map[string]any, keys ...string) string {
	if m == nil {
		return ""
	}
	for _, k := range keys {
		if v, ok := m[k]; ok {
			if s, ok := v.(string); ok && strings.TrimSpace(s) != "" {
				return s
			}
		}
	}
	return ""
}

// ExtractHomeAway tolerates polymorphic feeds: explicit display fields first,
// then a two-or-more element participants/competitors/teams/sides array, with
// an extra pass over player-style fields for individual sports. Generic
// labels ("Over", "Yes") are never returned as a team/player name.
func ExtractHomeAway(item map[string]any) (home, away string) {
	h, a := extractHomeAwayFrom(item)
	if h != "" || a != "" {
		return h, a
	}
	for _, k := range []string{"fixture", "event", "match", "game"} {
		if sub, ok := item[k].(map[string]any); ok {
			h, a := extractHomeAwayFrom(sub)
			if h != "" || a != "" {
				return h, a
			}
		}
	}
	return "", ""
}

func extractHomeAwayFrom(obj map[string]any) (home, away string) {
	if obj == nil {
		return "", ""
	}
	home = pickFirstString(obj, "home_team_display")
	away = pickFirstString(obj, "away_team_display")

	if home == "" || away == "" {
		for _, key := range []string{"participants", "participant", "competitors", "teams", "sides"} {
			coll, ok := obj[key].([]any)
			if !ok || len(coll) < 2 {
				continue
			}
			nameOf := func(x any) string {
				d, ok := x.(map[string]any)
				if !ok {
					return ""
				}
				return pickFirstString(d, "name", "team", "team_name", "full_name", "short_name", "displayName", "home_team", "away_team", "homeTeam", "awayTeam")
			}
			n0, n1 := nameOf(coll[0]), nameOf(coll[1])
			if home == "" {
				home = n0
			}
			if away == "" {
				away = n1
			}
			break
		}
	}

	sportVal := strings.ToLower(strings.TrimSpace(pickFirstString(obj, "sport", "sport_name")))
	if (home == "" || away == "") && (sportVal == "tennis" || sportVal == "table_tennis" || sportVal == "table-tennis" || sportVal == "volleyball") {
		for _, key := range []string{"participants", "participant", "competitors", "teams", "sides"} {
			coll, ok := obj[key].([]any)
			if !ok || len(coll) < 2 {
				continue
			}
			nameOf := func(x any) string {
				d, ok := x.(map[string]any)
				if !ok {
					return ""
				}
				return pickFirstString(d, "name", "full_name", "short_name", "displayName", "player", "team")
			}
			n0, n1 := nameOf(coll[0]), nameOf(coll[1])
			if n0 != "" && n1 != "" {
				if home == "" {
					home = n0
				}
				if away == "" {
					away = n1
				}
			}
			break
		}
	}

	if IsGenericLabel(home) {
		home = ""
	}
	if IsGenericLabel(away) {
		away = ""
	}
	return normName(home), normName(away)
}

// ToEpochSeconds best-effort converts common timestamp shapes (epoch
// seconds, epoch milliseconds, ISO-8601 with optional "Z") to epoch seconds.
func ToEpochSeconds(v any) (int64, bool) {
	switch t := v.(type) {
	case nil:
		return 0, false
	case float64:
		return epochFromNumber(t), true
	case int64:
		return epochFromNumber(float64(t)), true
	case int:
		return epochFromNumber(float64(t)), true
	case string:
		s := strings.TrimSpace(t)
		if s == "" {
			return 0, false
		}
		if n, err := strconv.ParseInt(s, 10, 64); err == nil {
			return n, true
		}
		iso := strings.Replace(s, "Z", "+00:00", 1)
		if ts, err := time.Parse("2006-01-02T15:04:05.999999999-07:00", iso); err == nil {
			return ts.Unix(), true
		}
		if ts, err := time.Parse(time.RFC3339, s); err == nil {
			return ts.Unix(), true
		}
		return 0, false
	default:
		return 0, false
	}
}

func epochFromNumber(v float64) int64 {
	if v > 1_000_000_000_000 {
		return int64(v) / 1000
	}
	return int64(v)
}

// ExtractStartTime looks for a commence-time field at the top level, falling
// back to a nested fixture/event/match object.
func ExtractStartTime(item map[string]any) (int64, bool) {
	keys := []string{"start_time", "commence_time", "start_date", "kickoff", "event_date", "game_time", "fixture_start", "start_at", "timestamp"}
	for _, k := range keys {
		if v, ok := item[k]; ok {
			if ts, ok := ToEpochSeconds(v); ok {
				return ts, true
			}
		}
	}
	for _, k := range []string{"fixture", "event", "match"} {
		if sub, ok := item[k].(map[string]any); ok {
			for _, kk := range []string{"start_time", "commence_time", "start_date", "kickoff", "start_at", "timestamp"} {
				if v, ok := sub[kk]; ok {
					if ts, ok := ToEpochSeconds(v); ok {
						return ts, true
					}
				}
			}
		}
	}
	return 0, false
}

// ExtractLeagueName reads "league" as either a plain string or an object
// bearing name/title/id.
func ExtractLeagueName(item map[string]any) string {
	switch lg := item["league"].(type) {
	case string:
		return lg
	case map[string]any:
		return pickFirstString(lg, "name", "title", "id")
	default:
		return ""
	}
}

// ExtractDeepLink walks the object tree to bounded depth looking for a deep
// link URL, either a plain string or a {desktop|Desktop} object, nested
// under any of the common envelope keys.
func ExtractDeepLink(item map[string]any) string {
	return searchDeepLink(item, 0)
}

const deepLinkMaxDepth = 12

func searchDeepLink(obj any, depth int) string {
	if depth > deepLinkMaxDepth {
		return ""
	}
	switch v := obj.(type) {
	case map[string]any:
		if dl, ok := v["deep_link"].(map[string]any); ok {
			if s := pickFirstString(dl, "desktop", "Desktop"); s != "" {
				return s
			}
		}
		if s, ok := v["deep_link"].(string); ok && s != "" {
			return s
		}
		for _, k := range []string{"raw", "raw_data", "data", "attributes", "payload"} {
			if sub, ok := v[k]; ok {
				if r := searchDeepLink(sub, depth+1); r != "" {
					return r
				}
			}
		}
		for _, sub := range v {
			if r := searchDeepLink(sub, depth+1); r != "" {
				return r
			}
		}
	case []any:
		for _, item := range v {
			if r := searchDeepLink(item, depth+1); r != "" {
				return r
			}
		}
	}
	return ""
}
