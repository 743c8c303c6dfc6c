// Copyright 2025 SubSync Authors
// SPDX-License-Identifier: Apache-2.0

// Package directory provides clients for the proxy-panel user directory.
// Two backends implement the same Client contract: the panel's management
// HTTP API and its embedded SQLite database, selected at startup by
// configuration.
package directory

import (
	"context"
	"encoding/json"

	"github.com/LeeDigitalWorks/subsync/pkg/types"
)

// Entry is one directory record as the panel stores it. Config, Inbounds and
// Links are kept as raw JSON so edit-style writes round-trip the complete
// record byte-faithfully; the panel rejects partial records that omit
// protocol sub-objects.
type Entry struct {
	ID       int64           `json:"id"`
	Enable   bool            `json:"enable"`
	Name     string          `json:"name"`
	Config   json.RawMessage `json:"config"`
	Inbounds json.RawMessage `json:"inbounds"`
	Links    json.RawMessage `json:"links"`
	Volume   int64           `json:"volume"`
	Expiry   int64           `json:"expiry"`
	Down     int64           `json:"down"`
	Up       int64           `json:"up"`
	Desc     string          `json:"desc"`
	Group    string          `json:"group"`
}

// HasTraffic reports whether the entry has unsettled counters.
func (e Entry) HasTraffic() bool {
	return e.Down > 0 || e.Up > 0
}

// Client is the uniform directory contract.
//
// Write operations report success as a bool and never propagate errors:
// failures are logged by the implementation and the identifier stays
// divergent until a later run corrects it.
type Client interface {
	// List returns all directory entries. A backend reporting zero entries
	// yields an empty slice, not an error; transport and protocol failures
	// wrap types.ErrTransport.
	List(ctx context.Context) ([]Entry, error)

	// Create adds one entry with zero counters. A duplicate-identifier
	// rejection from the backend counts as already satisfied.
	Create(ctx context.Context, name string, cfg types.ClientConfig, links []types.Link) bool

	// Delete removes the entry with the given internal id.
	Delete(ctx context.Context, id int64) bool

	// ResetCounters writes back the complete entry record from the given
	// snapshot with down/up forced to zero. Implementations must not
	// re-fetch the record: traffic accrued between snapshot and reset
	// belongs to the next settlement pass.
	ResetCounters(ctx context.Context, entry Entry) bool

	Close() error
}

// PostSettler is implemented by backends that need a hook after a settlement
// pass, such as the embedded database backend whose panel only picks up
// direct writes on restart.
type PostSettler interface {
	PostSettlement(ctx context.Context) error
}
