// Copyright 2025 SubSync Authors
// SPDX-License-Identifier: Apache-2.0

package engine

import (
	"context"
	"time"

	"github.com/LeeDigitalWorks/subsync/pkg/logger"
)

// Summary reports the outcome of one sync invocation. It is always produced,
// even when every count is zero.
type Summary struct {
	TrafficUpdated int
	UsersAdded     int
	UsersRemoved   int
}

// Orchestrator runs one settlement pass followed by one reconciliation pass.
//
// Settlement runs first in every invocation: an account that just exhausted
// its quota must have its final usage burst credited before reconciliation
// removes its directory entry for falling under the eligibility floor.
type Orchestrator struct {
	settler    *Settler
	reconciler *Reconciler

	// postSettlement, when non-nil, runs after a settlement pass that
	// reset at least one entry (embedded-database backends need a panel
	// restart to pick up direct writes).
	postSettlement func(ctx context.Context) error
}

// NewOrchestrator builds an Orchestrator. postSettlement may be nil.
func NewOrchestrator(settler *Settler, reconciler *Reconciler, postSettlement func(ctx context.Context) error) *Orchestrator {
	return &Orchestrator{
		settler:        settler,
		reconciler:     reconciler,
		postSettlement: postSettlement,
	}
}

// Run executes one full sync. The returned Summary is valid even when err is
// non-nil: settlement counts survive a fatal reconciliation abort.
func (o *Orchestrator) Run(ctx context.Context) (Summary, error) {
	start := time.Now()
	var summary Summary

	settled, err := o.settler.Run(ctx)
	if err != nil {
		logger.Error().Err(err).Msg("settlement pass failed")
	}
	summary.TrafficUpdated = settled

	if settled > 0 && o.postSettlement != nil {
		if err := o.postSettlement(ctx); err != nil {
			logger.Error().Err(err).Msg("post-settlement hook failed")
		}
	}

	created, removed, err := o.reconciler.Run(ctx)
	summary.UsersAdded = created
	summary.UsersRemoved = removed

	status := "ok"
	if err != nil {
		status = "error"
	}
	syncRunsTotal.WithLabelValues(status).Inc()
	syncRunDuration.Observe(time.Since(start).Seconds())

	logger.Info().
		Int("traffic_updated", summary.TrafficUpdated).
		Int("users_added", summary.UsersAdded).
		Int("users_removed", summary.UsersRemoved).
		Dur("elapsed", time.Since(start)).
		Msg("sync completed")

	return summary, err
}
