// Package storage persists price samples and analysis run summaries in
// SQLite. Historical price-per-share samples are immutable, so caching them
// makes repeated analyses of the same vault cheap.
package storage

import (
	"context"
	"database/sql"
	"fmt"
	"math/big"
	"time"

	_ "modernc.org/sqlite"

	"github.com/yourorg/vault-yield/internal/model"
)

const schema = `
CREATE TABLE IF NOT EXISTS price_samples (
    vault TEXT    NOT NULL,
    block INTEGER NOT NULL,
    price TEXT    NOT NULL,
    PRIMARY KEY (vault, block)
);

CREATE TABLE IF NOT EXISTS runs (
    id             TEXT PRIMARY KEY,
    vault          TEXT NOT NULL,
    user           TEXT NOT NULL,
    computed_at    DATETIME NOT NULL,
    period_count   INTEGER NOT NULL,
    total_interest TEXT NOT NULL,
    total_apy      REAL NOT NULL,
    diagnostics    INTEGER NOT NULL DEFAULT 0
);

CREATE INDEX IF NOT EXISTS idx_runs_vault ON runs(vault, computed_at DESC);
`

// runRetention bounds how long analysis run summaries are kept.
const runRetention = 90 * 24 * time.Hour

// Store wraps the SQLite handle.
type Store struct {
	db *sql.DB
}

// Open opens (or creates) the database at path, applies the schema and prunes
// expired runs. Use ":memory:" for tests.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("storage.Open %q: %w", path, err)
	}
	// SQLite is single-writer.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("storage.Open: apply schema: %w", err)
	}

	s := &Store{db: db}
	s.pruneRuns(context.Background())
	return s, nil
}

// Close releases the database handle.
func (s *Store) Close() error {
	return s.db.Close()
}

// Price returns the cached sample for (vault, block), if present.
func (s *Store) Price(ctx context.Context, vault string, block uint64) (*big.Int, bool, error) {
	var raw string
	err := s.db.QueryRowContext(ctx,
		`SELECT price FROM price_samples WHERE vault = ? AND block = ?`, vault, block,
	).Scan(&raw)
	if err == sql.ErrNoRows {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("storage.Price: %w", err)
	}
	price, ok := new(big.Int).SetString(raw, 10)
	if !ok {
		return nil, false, fmt.Errorf("storage.Price: corrupt sample %q at (%s, %d)", raw, vault, block)
	}
	return price, true, nil
}

// PutPrice caches one sample. Re-inserting the same key is a no-op.
func (s *Store) PutPrice(ctx context.Context, vault string, block uint64, price *big.Int) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT OR IGNORE INTO price_samples (vault, block, price) VALUES (?, ?, ?)`,
		vault, block, price.String(),
	)
	if err != nil {
		return fmt.Errorf("storage.PutPrice: %w", err)
	}
	return nil
}

// SaveRun appends one analysis summary to the run history.
func (s *Store) SaveRun(ctx context.Context, a *model.Analysis) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO runs (id, vault, user, computed_at, period_count, total_interest, total_apy, diagnostics)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		a.RunID, a.Vault, a.User, a.ComputedAt.UTC(), a.Aggregate.PeriodCount,
		a.Aggregate.TotalInterest.String(), a.Aggregate.WeightedTotalAPY, len(a.Diagnostics),
	)
	if err != nil {
		return fmt.Errorf("storage.SaveRun: %w", err)
	}
	return nil
}

// RunSummary is one row of the persisted run history.
type RunSummary struct {
	RunID         string
	Vault         string
	User          string
	ComputedAt    time.Time
	PeriodCount   int
	TotalInterest string
	TotalAPY      float64
	Diagnostics   int
}

// RecentRuns lists the newest runs for a vault, newest first.
func (s *Store) RecentRuns(ctx context.Context, vault string, limit int) ([]RunSummary, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, vault, user, computed_at, period_count, total_interest, total_apy, diagnostics
		 FROM runs WHERE vault = ? ORDER BY computed_at DESC LIMIT ?`, vault, limit)
	if err != nil {
		return nil, fmt.Errorf("storage.RecentRuns: %w", err)
	}
	defer rows.Close()

	var out []RunSummary
	for rows.Next() {
		var r RunSummary
		if err := rows.Scan(&r.RunID, &r.Vault, &r.User, &r.ComputedAt, &r.PeriodCount,
			&r.TotalInterest, &r.TotalAPY, &r.Diagnostics); err != nil {
			return nil, fmt.Errorf("storage.RecentRuns: scan: %w", err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// pruneRuns deletes run summaries older than the retention window.
func (s *Store) pruneRuns(ctx context.Context) {
	cutoff := time.Now().UTC().Add(-runRetention)
	_, _ = s.db.ExecContext(ctx, `DELETE FROM runs WHERE computed_at < ?`, cutoff)
}
