// Copyright 2025 SubSync Authors
// SPDX-License-Identifier: Apache-2.0

package engine

import (
	"context"

	"github.com/LeeDigitalWorks/subsync/pkg/directory"
	"github.com/LeeDigitalWorks/subsync/pkg/types"
)

// Directory is the subset of the directory client contract the engine
// drives. Satisfied by both panel backends.
type Directory interface {
	List(ctx context.Context) ([]directory.Entry, error)
	Create(ctx context.Context, name string, cfg types.ClientConfig, links []types.Link) bool
	Delete(ctx context.Context, id int64) bool
	ResetCounters(ctx context.Context, entry directory.Entry) bool
}

// Billing is the billing store contract the engine drives. Satisfied by
// billing.Store.
type Billing interface {
	ActiveAccounts(ctx context.Context) (map[string]struct{}, error)
	ApplyUsage(ctx context.Context, id string, down, up int64) (bool, error)
}

// EligibleCache stores the last-known eligible set for use when the billing
// store is unreachable. Satisfied by billing.EligibleCache.
type EligibleCache interface {
	Save(ctx context.Context, eligible map[string]struct{}) error
	Load(ctx context.Context) (map[string]struct{}, bool)
}

// CredentialSource produces the credential bundle and share links for a new
// directory entry. Satisfied by credentials.Generator.
type CredentialSource interface {
	Generate(name, token string) (types.ClientConfig, []types.Link)
}
