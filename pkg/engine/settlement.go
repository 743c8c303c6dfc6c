// Copyright 2025 SubSync Authors
// SPDX-License-Identifier: Apache-2.0

package engine

import (
	"context"

	"github.com/LeeDigitalWorks/subsync/pkg/logger"

	"github.com/dustin/go-humanize"
)

// Settler moves accrued panel counters into the billing ledger.
//
// Ordering per entry: credit billing first, then reset the panel counters
// from the snapshot taken at list time. A failed billing write leaves the
// counters in place for a later retry; a failed reset after a successful
// credit leaves the bytes double-owned, which is logged as a reconciliation
// gap and resolved in favor of the subscriber on the next pass.
type Settler struct {
	billing Billing
	dir     Directory
}

// NewSettler builds a Settler.
func NewSettler(billing Billing, dir Directory) *Settler {
	return &Settler{billing: billing, dir: dir}
}

// Run performs one settlement pass and returns the number of entries whose
// billing credit and counter reset both succeeded.
func (s *Settler) Run(ctx context.Context) (settled int, err error) {
	entries, err := s.dir.List(ctx)
	if err != nil {
		return 0, err
	}

	for _, entry := range entries {
		if !entry.HasTraffic() {
			continue
		}

		ok, err := s.billing.ApplyUsage(ctx, entry.Name, entry.Down, entry.Up)
		if err != nil {
			logger.Error().Err(err).Str("name", entry.Name).
				Msg("billing write failed, leaving counters for retry")
			continue
		}
		if !ok {
			// Account churned between snapshot and write.
			logger.Debug().Str("name", entry.Name).
				Msg("no billing row matched, leaving counters for retry")
			continue
		}

		if !s.dir.ResetCounters(ctx, entry) {
			settlementGapsTotal.Inc()
			logger.Error().Str("name", entry.Name).
				Int64("down", entry.Down).Int64("up", entry.Up).
				Msg("counters not reset after billing credit, bytes double-owned until next pass")
			continue
		}

		settled++
		settledBytesTotal.WithLabelValues("down").Add(float64(entry.Down))
		settledBytesTotal.WithLabelValues("up").Add(float64(entry.Up))
		logger.Info().Str("name", entry.Name).
			Str("down", humanize.Bytes(uint64(entry.Down))).
			Str("up", humanize.Bytes(uint64(entry.Up))).
			Msg("traffic settled")
	}

	return settled, nil
}
