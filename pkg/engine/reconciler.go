// Copyright 2025 SubSync Authors
// SPDX-License-Identifier: Apache-2.0

package engine

import (
	"context"
	"errors"
	"fmt"

	"github.com/LeeDigitalWorks/subsync/pkg/logger"
	"github.com/LeeDigitalWorks/subsync/pkg/types"
)

// Reconciler converges the directory on the billing-eligible set.
//
// Failure bias: a directory read failure degrades to "nothing present",
// which re-attempts creates (safe, creates are idempotent) rather than
// deletes. Only billing unavailability aborts the run, and only when no
// cached eligible set exists: reconciling against an empty eligible set
// would mass-delete the directory.
type Reconciler struct {
	billing Billing
	dir     Directory
	creds   CredentialSource

	// cache, when non-nil, is refreshed on every successful billing read
	// and consulted as a fallback when the billing store is unreachable.
	cache EligibleCache

	// dryRun computes and logs the plan without mutating the directory.
	dryRun bool
}

// NewReconciler builds a Reconciler. cache may be nil for strict fail-fast
// behavior.
func NewReconciler(billing Billing, dir Directory, creds CredentialSource, cache EligibleCache, dryRun bool) *Reconciler {
	return &Reconciler{
		billing: billing,
		dir:     dir,
		creds:   creds,
		cache:   cache,
		dryRun:  dryRun,
	}
}

// Run performs one reconciliation pass and returns the number of entries
// created and removed. Per-identifier failures are logged, excluded from the
// counts, and left for a later run; only a missing eligible set is fatal.
func (r *Reconciler) Run(ctx context.Context) (created, removed int, err error) {
	eligible, err := r.eligibleSet(ctx)
	if err != nil {
		return 0, 0, err
	}

	present := make(map[string]int64)
	entries, err := r.dir.List(ctx)
	if err != nil {
		logger.Warn().Err(err).Msg("directory list failed, degrading to creation-only recovery")
	} else {
		for _, e := range entries {
			present[e.Name] = e.ID
		}
	}

	plan := BuildPlan(eligible, present)
	if plan.Empty() {
		logger.Debug().Msg("directory already converged")
		return 0, 0, nil
	}
	logger.Info().
		Int("to_create", len(plan.ToCreate)).
		Int("to_remove", len(plan.ToRemove)).
		Bool("dry_run", r.dryRun).
		Msg("reconciliation plan computed")
	if r.dryRun {
		for _, id := range plan.ToCreate {
			logger.Info().Str("id", id).Msg("dry-run: would create")
		}
		for _, id := range plan.ToRemove {
			logger.Info().Str("id", id).Msg("dry-run: would remove")
		}
		return 0, 0, nil
	}

	for _, name := range plan.ToRemove {
		internalID, ok := present[name]
		if !ok {
			// Vanished between list and delete; converged either way.
			continue
		}
		if r.dir.Delete(ctx, internalID) {
			removed++
			usersRemovedTotal.Inc()
		}
	}

	for _, name := range plan.ToCreate {
		// The account identifier doubles as display name and bearer token
		// across all protocol sub-configs in this deployment.
		cfg, links := r.creds.Generate(name, name)
		if r.dir.Create(ctx, name, cfg, links) {
			created++
			usersCreatedTotal.Inc()
		}
	}

	return created, removed, nil
}

// eligibleSet reads the eligible identifiers from billing, falling back to
// the cached set when the store is unreachable.
func (r *Reconciler) eligibleSet(ctx context.Context) (map[string]struct{}, error) {
	eligible, err := r.billing.ActiveAccounts(ctx)
	if err == nil {
		if r.cache != nil {
			if cerr := r.cache.Save(ctx, eligible); cerr != nil {
				logger.Warn().Err(cerr).Msg("failed to cache eligible set")
			}
		}
		return eligible, nil
	}

	if !errors.Is(err, types.ErrStoreUnavailable) || r.cache == nil {
		return nil, err
	}
	cached, ok := r.cache.Load(ctx)
	if !ok {
		return nil, fmt.Errorf("no cached eligible set: %w", err)
	}
	logger.Warn().Err(err).Int("cached", len(cached)).
		Msg("billing store unreachable, reconciling against cached eligible set")
	return cached, nil
}
