package normalize

import "testing"

func TestCanonicalMarket_CollapsesOrdinalPeriods(t *testing.T) {
	cases := map[string]string{
		"First Quarter Moneyline": "q1moneyline",
		"2nd Half Total Points":   "h2total",
		"1H Spread":               "h1spread",
	}
	for in, want := range cases {
		if got := CanonicalMarket(in); got != want {
			t.Errorf("CanonicalMarket(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestCanonicalMarket_StripsIgnorableTokensAndNonAlnum(t *testing.T) {
	got := CanonicalMarket("Team Total Points - Over/Under")
	if got != "teamtotaloverunder" {
		t.Errorf("CanonicalMarket = %q", got)
	}
}

func TestComposeMarket_PrependsSegmentWhenNotRedundant(t *testing.T) {
	got := ComposeMarket("Moneyline", "1st Quarter")
	if got != "1st quarter moneyline" {
		t.Errorf("ComposeMarket = %q", got)
	}
}

func TestComposeMarket_SkipsRedundantSegment(t *testing.T) {
	got := ComposeMarket("First Quarter Moneyline", "1st Quarter")
	if got != "first quarter moneyline" {
		t.Errorf("ComposeMarket = %q, want lower-cased base unchanged", got)
	}
}

func TestComposeMarket_NoSegment(t *testing.T) {
	if got := ComposeMarket("Moneyline", ""); got != "moneyline" {
		t.Errorf("ComposeMarket = %q", got)
	}
}

func TestNormalizeLeagueAlias(t *testing.T) {
	cases := map[string]string{
		"NCAAF":           "ncaafootball",
		"ncaafb":          "ncaafootball",
		"NCAAM":           "ncaabasketball",
		"ncaab":           "ncaabasketball",
		"NCAAW":           "ncaawbasketball",
		"College Football": "ncaafootball",
		"NBA":             "nba",
	}
	for in, want := range cases {
		if got := NormalizeLeagueAlias(in); got != want {
			t.Errorf("NormalizeLeagueAlias(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestIsGenericLabel(t *testing.T) {
	for in, want := range map[string]bool{
		"Over":       true,
		"under -3.5": true,
		"Yes":        true,
		"Odd":        true,
		"Lakers":     false,
	} {
		if got := IsGenericLabel(in); got != want {
			t.Errorf("IsGenericLabel(%q) = %v, want %v", in, got, want)
		}
	}
}

func TestIsNonexclusiveMarket(t *testing.T) {
	for in, want := range map[string]bool{
		"anytime touchdown scorer":       true,
		"first touchdown scorer":         false,
		"goalscorer":                     true,
		"moneyline":                      false,
		"anytime goal scorer":            true,
	} {
		if got := IsNonexclusiveMarket(in); got != want {
			t.Errorf("IsNonexclusiveMarket(%q) = %v, want %v", in, got, want)
		}
	}
}

func TestCleanOutcomeTeamName(t *testing.T) {
	cases := map[string]string{
		"Los Angeles Lakers Over 220.5":  "Los Angeles Lakers",
		"Boston Celtics Under -3.5":      "Boston Celtics",
		"New York Yankees Moneyline":     "New York Yankees",
		"Kansas City Chiefs (Home)":      "Kansas City Chiefs",
	}
	for in, want := range cases {
		if got := CleanOutcomeTeamName(in); got != want {
			t.Errorf("CleanOutcomeTeamName(%q) = %q, want %q", in, got, want)
		}
	}
}
