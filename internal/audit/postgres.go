// Package audit optionally persists derived EV and arbitrage records to
// Postgres for downstream analysis, independent of the in-process hub
// fan-out and the Redis derived-event stream.
package audit

import (
	"context"
	"database/sql"
	"fmt"

	_ "github.com/lib/pq"

	"github.com/vTajae/oddsgateway/pkg/models"
)

// Sink writes derived records to the odds_derivation_log table. A Sink with a
// nil db (from NewSink with an empty dsn, or the zero value) is a valid no-op,
// so callers can wire it unconditionally and only pay for Postgres when
// AUDIT_DATABASE_URL is set.
type Sink struct {
	db *sql.DB
}

// NewSink opens a connection pool against dsn. Pass an empty dsn to get a
// no-op sink.
func NewSink(dsn string) (*Sink, error) {
	if dsn == "" {
		return &Sink{}, nil
	}
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("audit: open: %w", err)
	}
	return &Sink{db: db}, nil
}

// Close releases the underlying connection pool, if any.
func (s *Sink) Close() error {
	if s.db == nil {
		return nil
	}
	return s.db.Close()
}

// LogEV persists one EV record. A nil db makes this a no-op.
func (s *Sink) LogEV(ctx context.Context, rec models.EVRecord) error {
	if s.db == nil {
		return nil
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO odds_derivation_log (
			kind, sport, fixture_id, market, sportsbook, outcome_name, price, ev_value
		) VALUES ('ev', $1, $2, $3, $4, $5, $6, $7)
	`, rec.Sport, rec.FixtureID, rec.Market, rec.Sportsbook, rec.Name, rec.Price, rec.EVValue)
	if err != nil {
		return fmt.Errorf("audit: log ev: %w", err)
	}
	return nil
}

// LogArbitrage persists one arbitrage record. A nil db makes this a no-op.
func (s *Sink) LogArbitrage(ctx context.Context, rec models.ArbRecord) error {
	if s.db == nil {
		return nil
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO odds_derivation_log (
			kind, sport, fixture_id, market, total_implied_percent, arbitrage_percent
		) VALUES ('arbitrage', $1, $2, $3, $4, $5)
	`, rec.Sport, rec.FixtureID, rec.MarketName, rec.TotalImpliedPercent, rec.ArbitragePercent)
	if err != nil {
		return fmt.Errorf("audit: log arbitrage: %w", err)
	}
	return nil
}
