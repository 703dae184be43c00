package oddsmath

import (
	"math"
	"testing"
)

func TestAmericanToDecimal(t *testing.T) {
	cases := []struct {
		american float64
		want     float64
		ok       bool
	}{
		{-300, 1.3333333333, true},
		{-100, 2.0, true},
		{100, 2.0, true},
		{150, 2.5, true},
		{200, 3.0, true},
		{50, 0, false},
		{-50, 0, false},
	}
	for _, c := range cases {
		got, ok := AmericanToDecimal(c.american)
		if ok != c.ok {
			t.Errorf("AmericanToDecimal(%v) ok = %v, want %v", c.american, ok, c.ok)
			continue
		}
		if ok && math.Abs(got-c.want) > 1e-9 {
			t.Errorf("AmericanToDecimal(%v) = %v, want %v", c.american, got, c.want)
		}
	}
}

func TestParseDecimalOdds_PrefersExplicitDecimal(t *testing.T) {
	item := map[string]any{
		"decimal":  2.5,
		"american": -300.0,
		"odds":     150.0,
	}
	got, ok := ParseDecimalOdds(item)
	if !ok || got != 2.5 {
		t.Errorf("ParseDecimalOdds = (%v, %v), want (2.5, true)", got, ok)
	}
}

func TestParseDecimalOdds_FallsBackToAmerican(t *testing.T) {
	item := map[string]any{"american": 150.0}
	got, ok := ParseDecimalOdds(item)
	if !ok || math.Abs(got-2.5) > 1e-9 {
		t.Errorf("ParseDecimalOdds = (%v, %v), want (2.5, true)", got, ok)
	}
}

func TestParseDecimalOdds_GenericFieldInfersAmerican(t *testing.T) {
	item := map[string]any{"odds": -200.0}
	got, ok := ParseDecimalOdds(item)
	if !ok || math.Abs(got-1.5) > 1e-9 {
		t.Errorf("ParseDecimalOdds = (%v, %v), want (1.5, true)", got, ok)
	}
}

func TestParseDecimalOdds_GenericFieldInfersDecimal(t *testing.T) {
	item := map[string]any{"price": 1.91}
	got, ok := ParseDecimalOdds(item)
	if !ok || got != 1.91 {
		t.Errorf("ParseDecimalOdds = (%v, %v), want (1.91, true)", got, ok)
	}
}

func TestParseDecimalOdds_NestedPriceObject(t *testing.T) {
	item := map[string]any{
		"price": map[string]any{"decimal": 3.2},
	}
	got, ok := ParseDecimalOdds(item)
	if !ok || got != 3.2 {
		t.Errorf("ParseDecimalOdds = (%v, %v), want (3.2, true)", got, ok)
	}
}

func TestParseDecimalOdds_NoneExtractable(t *testing.T) {
	item := map[string]any{"foo": "bar"}
	if _, ok := ParseDecimalOdds(item); ok {
		t.Errorf("expected no extractable decimal odds")
	}
}

func TestIsGenericLabel(t *testing.T) {
	cases := map[string]bool{
		"Over":       true,
		"Under 35.5": true,
		"Yes":        true,
		"No":         true,
		"Lakers":     false,
		"":           false,
	}
	for in, want := range cases {
		if got := IsGenericLabel(in); got != want {
			t.Errorf("IsGenericLabel(%q) = %v, want %v", in, got, want)
		}
	}
}

func TestExtractHomeAway_ExplicitFields(t *testing.T) {
	item := map[string]any{
		"home_team_display": "Lakers",
		"away_team_display": "Celtics",
	}
	home, away := ExtractHomeAway(item)
	if home != "Lakers" || away != "Celtics" {
		t.Errorf("ExtractHomeAway = (%q, %q)", home, away)
	}
}

func TestExtractHomeAway_ParticipantsArray(t *testing.T) {
	item := map[string]any{
		"participants": []any{
			map[string]any{"name": "Lakers"},
			map[string]any{"name": "Celtics"},
		},
	}
	home, away := ExtractHomeAway(item)
	if home != "Lakers" || away != "Celtics" {
		t.Errorf("ExtractHomeAway = (%q, %q)", home, away)
	}
}

func TestExtractHomeAway_GenericLabelsDiscarded(t *testing.T) {
	item := map[string]any{
		"participants": []any{
			map[string]any{"name": "Over"},
			map[string]any{"name": "Under"},
		},
	}
	home, away := ExtractHomeAway(item)
	if home != "" || away != "" {
		t.Errorf("expected generic labels discarded, got (%q, %q)", home, away)
	}
}

func TestExtractHomeAway_NestedFixture(t *testing.T) {
	item := map[string]any{
		"fixture": map[string]any{
			"home_team_display": "Real Madrid",
			"away_team_display": "Barcelona",
		},
	}
	home, away := ExtractHomeAway(item)
	if home != "Real Madrid" || away != "Barcelona" {
		t.Errorf("ExtractHomeAway = (%q, %q)", home, away)
	}
}

func TestToEpochSeconds(t *testing.T) {
	if got, ok := ToEpochSeconds(float64(1700000000)); !ok || got != 1700000000 {
		t.Errorf("ToEpochSeconds(seconds) = (%v, %v)", got, ok)
	}
	if got, ok := ToEpochSeconds(float64(1700000000000)); !ok || got != 1700000000 {
		t.Errorf("ToEpochSeconds(millis) = (%v, %v)", got, ok)
	}
	if got, ok := ToEpochSeconds("2023-11-14T22:13:20Z"); !ok || got != 1700000000 {
		t.Errorf("ToEpochSeconds(iso) = (%v, %v)", got, ok)
	}
}

func TestExtractDeepLink_NestedDesktopField(t *testing.T) {
	item := map[string]any{
		"raw_data": map[string]any{
			"deep_link": map[string]any{"desktop": "https://example.com/bet"},
		},
	}
	if got := ExtractDeepLink(item); got != "https://example.com/bet" {
		t.Errorf("ExtractDeepLink = %q", got)
	}
}

func TestExtractLeagueName(t *testing.T) {
	if got := ExtractLeagueName(map[string]any{"league": "NBA"}); got != "NBA" {
		t.Errorf("ExtractLeagueName(string) = %q", got)
	}
	if got := ExtractLeagueName(map[string]any{"league": map[string]any{"name": "NBA"}}); got != "NBA" {
		t.Errorf("ExtractLeagueName(object) = %q", got)
	}
}
