// Package repository implements the Persistent Store (§4.B): latest-state
// upsert plus append-only history, transactional where the spec requires
// it. Grounded on the teacher's internal/repository/postgres.go (pgxpool
// construction, env-tunable pool sizing, Migrate/Close shape) and
// internal/repository/market_prices.go (insert/query shape for
// time-series price rows).
package repository

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"splpulse/internal/models"
)

// Repository is the Persistent Store (§4.B) backed by PostgreSQL.
type Repository struct {
	db *pgxpool.Pool
}

// NewRepository connects to dbURL and applies pool-sizing overrides from
// the environment, exactly as the teacher's NewRepository does.
func NewRepository(ctx context.Context, dbURL string) (*Repository, error) {
	cfg, err := pgxpool.ParseConfig(dbURL)
	if err != nil {
		return nil, fmt.Errorf("unable to parse db url: %w", err)
	}

	if v := os.Getenv("DB_MAX_OPEN_CONNS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.MaxConns = int32(n)
		}
	}
	if v := os.Getenv("DB_MAX_IDLE_CONNS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.MinConns = int32(n)
		}
	}

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("unable to connect to database: %w", err)
	}

	return &Repository{db: pool}, nil
}

// Migrate executes the schema file in its entirety, mirroring the
// teacher's single-shot schema application.
func (r *Repository) Migrate(ctx context.Context, schemaPath string) error {
	content, err := os.ReadFile(schemaPath)
	if err != nil {
		return fmt.Errorf("failed to read schema file: %w", err)
	}
	if _, err := r.db.Exec(ctx, string(content)); err != nil {
		return fmt.Errorf("failed to execute schema: %w", err)
	}
	return nil
}

// Close releases the underlying connection pool.
func (r *Repository) Close() {
	r.db.Close()
}

// Ping checks connectivity for the health endpoint (§6.1 /health).
func (r *Repository) Ping(ctx context.Context) error {
	return r.db.Ping(ctx)
}

// UpsertLatest atomically inserts-or-replaces the latest row for a mint.
// Concurrent upserts for the same mint leave the row equal to exactly one
// caller's payload because the PRIMARY KEY conflict target makes the
// statement itself the unit of atomicity (§4.B).
func (r *Repository) UpsertLatest(ctx context.Context, snap models.PriceSnapshot) error {
	_, err := r.db.Exec(ctx, `
		INSERT INTO token_price (mint, price_usd, price_native, market_cap, total_supply, last_updated)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (mint) DO UPDATE SET
			price_usd = EXCLUDED.price_usd,
			price_native = EXCLUDED.price_native,
			market_cap = EXCLUDED.market_cap,
			total_supply = EXCLUDED.total_supply,
			last_updated = EXCLUDED.last_updated
	`, snap.Mint, snap.PriceUsd, snap.PriceNative, snap.MarketCap, snap.TotalSupply, snap.AsOf)
	return err
}

// AppendHistory appends one history row. id is strictly increasing under
// concurrent appends because it is a database-assigned serial/identity
// column (§4.B).
func (r *Repository) AppendHistory(ctx context.Context, snap models.PriceSnapshot) error {
	_, err := r.db.Exec(ctx, `
		INSERT INTO price_history (mint, price_usd, price_native, market_cap, at)
		VALUES ($1, $2, $3, $4, $5)
	`, snap.Mint, snap.PriceUsd, snap.PriceNative, snap.MarketCap, snap.AsOf)
	return err
}

// UpsertLatestAndAppendHistory performs both writes in a single
// transaction, as required whenever the pricing engine issues them
// together (§4.B): either both take effect or neither does.
func (r *Repository) UpsertLatestAndAppendHistory(ctx context.Context, snap models.PriceSnapshot) error {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, `
		INSERT INTO token_price (mint, price_usd, price_native, market_cap, total_supply, last_updated)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (mint) DO UPDATE SET
			price_usd = EXCLUDED.price_usd,
			price_native = EXCLUDED.price_native,
			market_cap = EXCLUDED.market_cap,
			total_supply = EXCLUDED.total_supply,
			last_updated = EXCLUDED.last_updated
	`, snap.Mint, snap.PriceUsd, snap.PriceNative, snap.MarketCap, snap.TotalSupply, snap.AsOf); err != nil {
		return fmt.Errorf("upsert latest: %w", err)
	}

	if _, err := tx.Exec(ctx, `
		INSERT INTO price_history (mint, price_usd, price_native, market_cap, at)
		VALUES ($1, $2, $3, $4, $5)
	`, snap.Mint, snap.PriceUsd, snap.PriceNative, snap.MarketCap, snap.AsOf); err != nil {
		return fmt.Errorf("append history: %w", err)
	}

	return tx.Commit(ctx)
}

// GetLatest returns the latest snapshot for a mint, or (nil, nil) if none
// exists.
func (r *Repository) GetLatest(ctx context.Context, mint string) (*models.LatestState, error) {
	var s models.LatestState
	err := r.db.QueryRow(ctx, `
		SELECT mint, price_usd, price_native, market_cap, total_supply, last_updated
		FROM token_price WHERE mint = $1
	`, mint).Scan(&s.Mint, &s.PriceUsd, &s.PriceNative, &s.MarketCap, &s.TotalSupply, &s.LastUpdated)
	if err == pgx.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &s, nil
}

// ListLatest returns a page of latest rows ordered by last_updated
// descending, plus the total row count.
func (r *Repository) ListLatest(ctx context.Context, pageOffset, pageLimit int) ([]models.LatestState, int, error) {
	var total int
	if err := r.db.QueryRow(ctx, `SELECT COUNT(*) FROM token_price`).Scan(&total); err != nil {
		return nil, 0, err
	}

	rows, err := r.db.Query(ctx, `
		SELECT mint, price_usd, price_native, market_cap, total_supply, last_updated
		FROM token_price
		ORDER BY last_updated DESC
		OFFSET $1 LIMIT $2
	`, pageOffset, pageLimit)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var out []models.LatestState
	for rows.Next() {
		var s models.LatestState
		if err := rows.Scan(&s.Mint, &s.PriceUsd, &s.PriceNative, &s.MarketCap, &s.TotalSupply, &s.LastUpdated); err != nil {
			return nil, 0, err
		}
		out = append(out, s)
	}
	return out, total, rows.Err()
}

// HistoryInRange returns history entries for mint with at in [from, to],
// ordered ascending, capped at cap rows (§4.B, §8 property 5).
func (r *Repository) HistoryInRange(ctx context.Context, mint string, from, to time.Time, cap int) ([]models.HistoryEntry, error) {
	if cap <= 0 || cap > 1000 {
		cap = 1000
	}
	rows, err := r.db.Query(ctx, `
		SELECT id, mint, price_usd, price_native, market_cap, at
		FROM price_history
		WHERE mint = $1 AND at >= $2 AND at <= $3
		ORDER BY at ASC
		LIMIT $4
	`, mint, from, to, cap)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []models.HistoryEntry
	for rows.Next() {
		var h models.HistoryEntry
		if err := rows.Scan(&h.ID, &h.Mint, &h.PriceUsd, &h.PriceNative, &h.MarketCap, &h.At); err != nil {
			return nil, err
		}
		out = append(out, h)
	}
	return out, rows.Err()
}

// PurgeMint deletes the latest row and all history for a mint atomically
// (§4.B).
func (r *Repository) PurgeMint(ctx context.Context, mint string) error {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, `DELETE FROM price_history WHERE mint = $1`, mint); err != nil {
		return err
	}
	if _, err := tx.Exec(ctx, `DELETE FROM token_price WHERE mint = $1`, mint); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

// ListAllMints returns every mint with a LatestState row, used by the
// scheduler's bootstrap reconciliation (§4.H).
func (r *Repository) ListAllMints(ctx context.Context) ([]string, error) {
	rows, err := r.db.Query(ctx, `SELECT mint FROM token_price`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var m string
		if err := rows.Scan(&m); err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

// IsNoRows reports whether err is pgx's no-rows sentinel, mirroring the
// teacher's repository.IsNoRows helper.
func IsNoRows(err error) bool {
	return err == pgx.ErrNoRows
}
