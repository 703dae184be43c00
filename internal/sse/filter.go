package sse

import (
	"strings"

	"github.com/vTajae/oddsgateway/internal/normalize"
)

var marketFieldNames = []string{"market", "market_name", "marketType", "type", "market_type", "period", "bet_period", "segment", "scope"}

// AllowedMarket reports whether item's market-ish fields match any of the
// allowed terms, either as an alnum-compacted substring or as a whole-word
// match against a field's tokens. An empty allowed list matches everything.
func AllowedMarket(item map[string]any, allowed []string) bool {
	if len(allowed) == 0 {
		return true
	}

	var fields []string
	for _, name := range marketFieldNames {
		if v, ok := item[name].(string); ok && v != "" {
			fields = append(fields, v)
		}
	}
	if len(fields) == 0 {
		return false
	}

	for _, term := range allowed {
		termCanon := normalize.CanonicalMarket(term)
		if termCanon == "" {
			continue
		}
		termWords := strings.Fields(strings.ToLower(term))
		for _, field := range fields {
			fieldCanon := normalize.CanonicalMarket(field)
			if fieldCanon != "" && strings.Contains(fieldCanon, termCanon) {
				return true
			}
			if wholeWordMatch(strings.ToLower(field), termWords) {
				return true
			}
		}
	}
	return false
}

func wholeWordMatch(field string, termWords []string) bool {
	if len(termWords) == 0 {
		return false
	}
	fieldWords := strings.Fields(strings.ReplaceAll(field, "_", " "))
	fieldSet := make(map[string]struct{}, len(fieldWords))
	for _, w := range fieldWords {
		fieldSet[w] = struct{}{}
	}
	for _, tw := range termWords {
		if _, ok := fieldSet[tw]; !ok {
			return false
		}
	}
	return true
}
