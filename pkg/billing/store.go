// Copyright 2025 SubSync Authors
// SPDX-License-Identifier: Apache-2.0

// Package billing reads eligible accounts from and settles traffic into the
// billing (xmplus) MySQL database.
package billing

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/LeeDigitalWorks/subsync/pkg/types"

	_ "github.com/go-sql-driver/mysql"
)

const (
	defaultMaxOpenConns    = 5
	defaultMaxIdleConns    = 2
	defaultConnMaxLifetime = 5 * time.Minute

	activeAccountsQuery = `SELECT uuid FROM service WHERE status = 1 AND traffic - total_used > ?`

	// All billing writes are relative increments: the same row may be
	// mutated concurrently by the panel and other operational tooling, and
	// increments from independent writers compose where overwrites would not.
	applyUsageStmt = `UPDATE service SET u = u + ?, d = d + ?, total_used = total_used + ? WHERE uuid = ?`
)

// Config holds billing store connection and settlement settings.
type Config struct {
	// DSN in go-sql-driver format, e.g. "user:pass@tcp(host:3306)/xmplus"
	DSN string `mapstructure:"dsn"`

	// GraceBytes is the minimum remaining quota (traffic - total_used) for
	// an account to be considered eligible. Must be positive to avoid
	// oscillation around a zero floor.
	GraceBytes int64 `mapstructure:"grace_bytes"`

	// DiscountFactor converts raw panel bytes to billed bytes:
	// billed = raw / factor, truncated per direction. 1.0 disables it.
	DiscountFactor float64 `mapstructure:"discount_factor"`

	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
}

// DefaultConfig returns a Config with sensible defaults for the given DSN.
func DefaultConfig(dsn string) Config {
	return Config{
		DSN:             dsn,
		GraceBytes:      200_000_000,
		DiscountFactor:  1.0,
		MaxOpenConns:    defaultMaxOpenConns,
		MaxIdleConns:    defaultMaxIdleConns,
		ConnMaxLifetime: defaultConnMaxLifetime,
	}
}

// Store is the billing store client.
type Store struct {
	db  *sql.DB
	cfg Config
}

// NewStore opens a connection pool against the billing database. Opening is
// lazy: reachability surfaces per query as types.ErrStoreUnavailable, so an
// unreachable store degrades a run (settlement retries later, reconciliation
// falls back to a cached eligible set) instead of preventing it.
func NewStore(cfg Config) (*Store, error) {
	db, err := sql.Open("mysql", cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("%w: open: %v", types.ErrStoreUnavailable, err)
	}

	db.SetMaxOpenConns(cfg.MaxOpenConns)
	db.SetMaxIdleConns(cfg.MaxIdleConns)
	db.SetConnMaxLifetime(cfg.ConnMaxLifetime)

	return &Store{db: db, cfg: cfg}, nil
}

// Ping verifies the store is reachable.
func (s *Store) Ping(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := s.db.PingContext(ctx); err != nil {
		return fmt.Errorf("%w: ping: %v", types.ErrStoreUnavailable, err)
	}
	return nil
}

// NewStoreWithDB wraps an existing database handle. Used in tests and by
// callers that manage the pool themselves.
func NewStoreWithDB(db *sql.DB, cfg Config) *Store {
	return &Store{db: db, cfg: cfg}
}

// Close closes the underlying connection pool.
func (s *Store) Close() error {
	return s.db.Close()
}

// ActiveAccounts returns the identifiers of accounts that are active and
// retain more than the configured grace threshold of quota. Any query
// failure wraps types.ErrStoreUnavailable: the caller must not reconcile
// against a partial or empty eligible set.
func (s *Store) ActiveAccounts(ctx context.Context) (map[string]struct{}, error) {
	rows, err := s.db.QueryContext(ctx, activeAccountsQuery, s.cfg.GraceBytes)
	if err != nil {
		return nil, fmt.Errorf("%w: query active accounts: %v", types.ErrStoreUnavailable, err)
	}
	defer rows.Close()

	accounts := make(map[string]struct{})
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("%w: scan account: %v", types.ErrStoreUnavailable, err)
		}
		accounts[id] = struct{}{}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: iterate accounts: %v", types.ErrStoreUnavailable, err)
	}
	return accounts, nil
}

// ApplyUsage credits down/up raw bytes to the account in a single relative
// UPDATE. Returns false when no row matched the identifier, which is expected
// when an account churns between settlement read and write and must not abort
// the batch. Errors wrap types.ErrStoreUnavailable.
func (s *Store) ApplyUsage(ctx context.Context, id string, down, up int64) (bool, error) {
	billedDown := billedBytes(down, s.cfg.DiscountFactor)
	billedUp := billedBytes(up, s.cfg.DiscountFactor)
	// Total is the sum of the truncated parts, never a re-truncation of the
	// raw sum, so the per-direction counters and total_used stay reconcilable.
	total := billedDown + billedUp

	res, err := s.db.ExecContext(ctx, applyUsageStmt, billedUp, billedDown, total, id)
	if err != nil {
		return false, fmt.Errorf("%w: apply usage for %s: %v", types.ErrStoreUnavailable, id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("%w: rows affected for %s: %v", types.ErrStoreUnavailable, id, err)
	}
	return n == 1, nil
}

// billedBytes converts a raw byte count to billed bytes with integer
// truncation.
func billedBytes(raw int64, factor float64) int64 {
	if factor == 1.0 {
		return raw
	}
	return int64(float64(raw) / factor)
}
