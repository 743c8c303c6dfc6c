// Copyright 2025 SubSync Authors
// SPDX-License-Identifier: Apache-2.0

package directory

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os/exec"
	"time"

	"github.com/LeeDigitalWorks/subsync/pkg/logger"
	"github.com/LeeDigitalWorks/subsync/pkg/types"

	_ "modernc.org/sqlite"
)

const (
	listClientsQuery = `SELECT id, enable, name, config, inbounds, links, volume, expiry, down, up, "desc", "group" FROM clients`

	insertClientStmt = `INSERT INTO clients (enable, name, config, inbounds, links, volume, expiry, down, up, "desc", "group")
		VALUES (?, ?, ?, ?, ?, 0, 0, 0, 0, '', '')`

	deleteClientStmt = `DELETE FROM clients WHERE id = ?`

	// Counter reset is a plain partial update here: unlike the API's edit
	// action, a direct row update cannot drop sub-objects.
	resetCountersStmt = `UPDATE clients SET down = 0, up = 0 WHERE id = ?`
)

// SQLiteConfig configures the embedded-database backend.
type SQLiteConfig struct {
	// Path to the panel's database file, e.g. "/usr/local/s-ui/db/s-ui.db"
	Path string `mapstructure:"path"`

	// RestartCommand is run through the shell after a settlement pass that
	// reset at least one entry: the panel only reloads direct database
	// writes on restart. Empty disables the hook.
	RestartCommand string `mapstructure:"restart_command"`

	// Inbounds assigned to newly created entries.
	Inbounds []int `mapstructure:"inbounds"`
}

// SQLiteClient manipulates the panel's embedded database directly. The panel
// process must be the only other writer, and it only increments counters;
// everything else on a row is single-writer per run.
type SQLiteClient struct {
	db  *sql.DB
	cfg SQLiteConfig
}

var (
	_ Client      = (*SQLiteClient)(nil)
	_ PostSettler = (*SQLiteClient)(nil)
)

// NewSQLiteClient opens the panel database.
func NewSQLiteClient(cfg SQLiteConfig) (*SQLiteClient, error) {
	db, err := sql.Open("sqlite", cfg.Path)
	if err != nil {
		return nil, fmt.Errorf("%w: open %s: %v", types.ErrTransport, cfg.Path, err)
	}
	// The panel holds its own connection; one writer on our side keeps
	// SQLITE_BUSY contention to a minimum.
	db.SetMaxOpenConns(1)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("%w: ping %s: %v", types.ErrTransport, cfg.Path, err)
	}

	return &SQLiteClient{db: db, cfg: cfg}, nil
}

// NewSQLiteClientWithDB wraps an existing handle. Used in tests.
func NewSQLiteClientWithDB(db *sql.DB, cfg SQLiteConfig) *SQLiteClient {
	return &SQLiteClient{db: db, cfg: cfg}
}

// Close closes the database handle.
func (c *SQLiteClient) Close() error {
	return c.db.Close()
}

// List reads all rows from the clients table.
func (c *SQLiteClient) List(ctx context.Context) ([]Entry, error) {
	rows, err := c.db.QueryContext(ctx, listClientsQuery)
	if err != nil {
		return nil, fmt.Errorf("%w: list clients: %v", types.ErrTransport, err)
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		var e Entry
		var config, inbounds, links string
		if err := rows.Scan(&e.ID, &e.Enable, &e.Name, &config, &inbounds, &links,
			&e.Volume, &e.Expiry, &e.Down, &e.Up, &e.Desc, &e.Group); err != nil {
			return nil, fmt.Errorf("%w: scan client row: %v", types.ErrTransport, err)
		}
		e.Config = json.RawMessage(config)
		e.Inbounds = json.RawMessage(inbounds)
		e.Links = json.RawMessage(links)
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: iterate client rows: %v", types.ErrTransport, err)
	}
	return entries, nil
}

// Create inserts a new row with zero counters. A uniqueness violation on the
// name counts as already satisfied.
func (c *SQLiteClient) Create(ctx context.Context, name string, cfg types.ClientConfig, links []types.Link) bool {
	configJSON, err := json.Marshal(cfg)
	if err != nil {
		logger.Error().Err(err).Str("name", name).Msg("marshal client config")
		return false
	}
	if links == nil {
		links = []types.Link{}
	}
	linksJSON, err := json.Marshal(links)
	if err != nil {
		logger.Error().Err(err).Str("name", name).Msg("marshal client links")
		return false
	}
	inbounds := c.cfg.Inbounds
	if inbounds == nil {
		inbounds = []int{}
	}
	inboundsJSON, _ := json.Marshal(inbounds)

	_, err = c.db.ExecContext(ctx, insertClientStmt,
		true, name, string(configJSON), string(inboundsJSON), string(linksJSON))
	if err != nil {
		if isAlreadyExists(err) {
			logger.Debug().Str("name", name).Msg("entry already exists, create satisfied")
			return true
		}
		logger.Error().Err(err).Str("name", name).Msg("insert directory entry")
		return false
	}
	return true
}

// Delete removes the row with the given id. A missing row is a no-op.
func (c *SQLiteClient) Delete(ctx context.Context, id int64) bool {
	if _, err := c.db.ExecContext(ctx, deleteClientStmt, id); err != nil {
		logger.Error().Err(err).Int64("id", id).Msg("delete directory entry")
		return false
	}
	return true
}

// ResetCounters zeroes the counters for the snapshot's row.
func (c *SQLiteClient) ResetCounters(ctx context.Context, entry Entry) bool {
	if _, err := c.db.ExecContext(ctx, resetCountersStmt, entry.ID); err != nil {
		logger.Error().Err(err).Str("name", entry.Name).Msg("reset directory counters")
		return false
	}
	return true
}

// PostSettlement restarts the panel so it picks up the direct writes.
func (c *SQLiteClient) PostSettlement(ctx context.Context) error {
	if c.cfg.RestartCommand == "" {
		return nil
	}
	logger.Info().Str("command", c.cfg.RestartCommand).Msg("restarting panel after settlement")
	out, err := exec.CommandContext(ctx, "sh", "-c", c.cfg.RestartCommand).CombinedOutput()
	if err != nil {
		return fmt.Errorf("restart panel: %v: %s", err, out)
	}
	return nil
}
