// Package config loads the gateway's runtime configuration from environment
// variables, with .env support for local development.
package config

import (
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

// Config holds every environment-driven setting the gateway recognises.
type Config struct {
	Port string

	OddsFormat           string
	EVThresholdPercent   float64
	ARBThresholdPercent  float64
	WSDebug              bool
	IngestFilters        bool
	IncludeFixtureUpdate bool
	MaxWorkers           int

	SportsbookChunkSize      int
	LeagueChunkSize          int
	SportsbookChunkSizeSoccer int
	LeagueChunkSizeSoccer     int

	ARBMarkets      string
	SportsAllowlist []string

	OpticOddsAPIKey string

	Trace     bool
	TraceFile string

	LogLevel string

	RedisAddr                string
	RedisPassword            string
	OpportunityStreamEnabled bool

	AuditDatabaseURL string
}

// Load reads Config from the environment, applying a best-effort .env load
// first (ignored if no .env file is present).
func Load() *Config {
	_ = godotenv.Load()

	sportsRaw := envStr("SPORTS_ALLOWLIST", envStr("SPORTS", ""))
	var sports []string
	for _, s := range strings.Split(sportsRaw, ",") {
		if s = strings.TrimSpace(s); s != "" {
			sports = append(sports, s)
		}
	}

	return &Config{
		Port: envStr("PORT", "8080"),

		OddsFormat:           envStr("ODDS_FORMAT", "decimal"),
		EVThresholdPercent:   envFloat("EV_THRESHOLD_PERCENT", 3.0),
		ARBThresholdPercent:  envFloat("ARB_THRESHOLD_PERCENT", 3.0),
		WSDebug:              envBool("WS_DEBUG", false),
		IngestFilters:        envBool("INGEST_FILTERS", false),
		IncludeFixtureUpdate: envBool("INCLUDE_FIXTURE_UPDATES", true),
		MaxWorkers:           envInt("MAX_WORKERS", 8),

		SportsbookChunkSize:       envInt("SPORTSBOOK_CHUNK_SIZE", 10),
		LeagueChunkSize:           envInt("LEAGUE_CHUNK_SIZE", 10),
		SportsbookChunkSizeSoccer: envInt("SPORTSBOOK_CHUNK_SIZE_SOCCER", 3),
		LeagueChunkSizeSoccer:     envInt("LEAGUE_CHUNK_SIZE_SOCCER", 6),

		ARBMarkets:      envStr("ARB_MARKETS", "all"),
		SportsAllowlist: sports,

		OpticOddsAPIKey: envStr("OPTICODDS_API_KEY", ""),

		Trace:     envBool("TRACE", false),
		TraceFile: envStr("TRACE_FILE", ""),

		LogLevel: envStr("LOG_LEVEL", "info"),

		RedisAddr:                envStr("REDIS_ADDR", ""),
		RedisPassword:            envStr("REDIS_PASSWORD", ""),
		OpportunityStreamEnabled: envBool("OPPORTUNITY_STREAM_ENABLED", false),

		AuditDatabaseURL: envStr("AUDIT_DATABASE_URL", ""),
	}
}

func envStr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func envFloat(key string, fallback float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return fallback
}

func envBool(key string, fallback bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return fallback
}
