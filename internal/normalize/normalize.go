// Package normalize canonicalises the fuzzy identifiers that arrive on
// upstream odds feeds — market names, league aliases, and outcome labels —
// into forms stable enough to key state and match subscriber filters on.
package normalize

import (
	"regexp"
	"strings"
)

var ordinalPeriod = []struct {
	pattern *regexp.Regexp
	replace string
}{
	{regexp.MustCompile(`\b(first|1st)\s+quarter\b`), "q1"},
	{regexp.MustCompile(`\b(second|2nd)\s+quarter\b`), "q2"},
	{regexp.MustCompile(`\b(third|3rd)\s+quarter\b`), "q3"},
	{regexp.MustCompile(`\b(fourth|4th)\s+quarter\b`), "q4"},
	{regexp.MustCompile(`\bq1\b`), "q1"},
	{regexp.MustCompile(`\bq2\b`), "q2"},
	{regexp.MustCompile(`\bq3\b`), "q3"},
	{regexp.MustCompile(`\bq4\b`), "q4"},
	{regexp.MustCompile(`\b(first|1st)\s+half\b`), "h1"},
	{regexp.MustCompile(`\b(second|2nd)\s+half\b`), "h2"},
	{regexp.MustCompile(`\b1h\b`), "h1"},
	{regexp.MustCompile(`\b2h\b`), "h2"},
}

var ignorableTokens = regexp.MustCompile(`\b(quarter|half|points?|pts)\b`)
var teamPointsAlias = regexp.MustCompile(`\bteam\s+(total\s+)?points\b`)
var nonAlnum = regexp.MustCompile(`[^a-z0-9]+`)

// CanonicalMarket reduces a raw market string (plus any extra period/segment
// tokens) to an alnum-only, period-collapsed form used for fuzzy filter
// matching. It is distinct from ComposeMarket's lower-cased-but-spaced form,
// which the state engine uses for bookkeeping.
func CanonicalMarket(raw string, extras ...string) string {
	s := strings.ToLower(strings.TrimSpace(raw))
	for _, e := range extras {
		e = strings.ToLower(strings.TrimSpace(e))
		if e != "" {
			s = s + " " + e
		}
	}
	for _, rule := range ordinalPeriod {
		s = rule.pattern.ReplaceAllString(s, rule.replace)
	}
	s = teamPointsAlias.ReplaceAllString(s, "team total")
	s = ignorableTokens.ReplaceAllString(s, "")
	s = nonAlnum.ReplaceAllString(s, "")
	return s
}

// ComposeMarket builds the state-engine bookkeeping key for a quote: the
// lower-cased base market, prefixed with the period/segment/type token when
// that token's canonical form is not already reflected in the base string.
func ComposeMarket(base string, segment string) string {
	base = strings.TrimSpace(base)
	lowerBase := strings.ToLower(base)
	segment = strings.TrimSpace(segment)
	if segment == "" {
		return lowerBase
	}
	canonSeg := CanonicalMarket(segment)
	if canonSeg == "" {
		return lowerBase
	}
	if strings.Contains(CanonicalMarket(base), canonSeg) {
		return lowerBase
	}
	return strings.ToLower(segment) + " " + lowerBase
}

// AlnumLower lower-cases s and strips every non-alphanumeric character,
// used for fuzzy sportsbook-name filter matching.
func AlnumLower(s string) string {
	return nonAlnum.ReplaceAllString(strings.ToLower(strings.TrimSpace(s)), "")
}

var leagueAliasMap = map[string]string{
	"ncaaf":  "ncaafootball",
	"ncaafb": "ncaafootball",
	"ncaam":  "ncaabasketball",
	"ncaab":  "ncaabasketball",
	"ncaaw":  "ncaawbasketball",
}

// NormalizeLeagueAlias strips non-alphanumerics and lower-cases a league
// identifier, then folds known abbreviation variants onto a single
// canonical spelling.
func NormalizeLeagueAlias(raw string) string {
	s := nonAlnum.ReplaceAllString(strings.ToLower(strings.TrimSpace(raw)), "")
	s = strings.ReplaceAll(s, "collegefootball", "ncaafootball")
	if alias, ok := leagueAliasMap[s]; ok {
		return alias
	}
	return s
}

var genericTokens = map[string]struct{}{
	"over": {}, "under": {}, "yes": {}, "no": {}, "odd": {}, "even": {},
}

var overUnderSigned = regexp.MustCompile(`^(over|under)\s*[+-]?\d+(\.\d+)?$`)

// IsGenericLabel reports whether s is a placeholder outcome label rather
// than a team or player name.
func IsGenericLabel(s string) bool {
	t := strings.ToLower(strings.TrimSpace(s))
	if t == "" {
		return false
	}
	if _, ok := genericTokens[t]; ok {
		return true
	}
	return overUnderSigned.MatchString(t)
}

var nonexclusiveKeywords = []string{"scorer", "to score", "touchdown", "goalscorer", "home run"}
var firstTokens = []string{"first", "1st"}
var anytimeKeywords = []string{"td", "touchdown", "goal", "home run", "scorer"}

// IsNonexclusiveMarket reports whether a canonical market's outcomes do not
// form a probability simplex (e.g. "anytime touchdown scorer" admits many
// simultaneous winners), in which case whole-market fair-probability
// normalisation must not be applied.
func IsNonexclusiveMarket(canonical string) bool {
	c := strings.ToLower(canonical)
	for _, kw := range nonexclusiveKeywords {
		if strings.Contains(c, kw) {
			hasFirst := false
			for _, f := range firstTokens {
				if strings.Contains(c, f) {
					hasFirst = true
					break
				}
			}
			if !hasFirst {
				return true
			}
		}
	}
	if strings.Contains(c, "anytime") {
		for _, kw := range anytimeKeywords {
			if strings.Contains(c, kw) {
				return true
			}
		}
	}
	return false
}

var trailingOverUnder = regexp.MustCompile(`(?i)\s+(over|under)\s*[+-]?\d+(\.\d+)?\s*$`)
var trailingMoneyline = regexp.MustCompile(`(?i)\s+moneyline\s*$`)
var trailingParen = regexp.MustCompile(`\s*\([^()]*\)\s*$`)

// CleanOutcomeTeamName strips trailing over/under and moneyline suffixes and
// a trailing parenthesised annotation from an outcome label, leaving (when
// the label names a team or player) a bare name suitable for grouping.
func CleanOutcomeTeamName(s string) string {
	out := s
	out = trailingOverUnder.ReplaceAllString(out, "")
	out = trailingMoneyline.ReplaceAllString(out, "")
	out = trailingParen.ReplaceAllString(out, "")
	return strings.TrimSpace(out)
}
