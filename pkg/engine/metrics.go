// Copyright 2025 SubSync Authors
// SPDX-License-Identifier: Apache-2.0

package engine

import "github.com/prometheus/client_golang/prometheus"

// Metrics for sync runs
var (
	syncRunsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "subsync_runs_total",
			Help: "Total number of sync runs by outcome",
		},
		[]string{"status"},
	)

	syncRunDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "subsync_run_duration_seconds",
			Help:    "Duration of full sync runs in seconds",
			Buckets: []float64{0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60},
		},
	)

	usersCreatedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "subsync_users_created_total",
			Help: "Total directory entries created by reconciliation",
		},
	)

	usersRemovedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "subsync_users_removed_total",
			Help: "Total directory entries removed by reconciliation",
		},
	)

	settledBytesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "subsync_settled_bytes_total",
			Help: "Raw bytes settled into the billing store by direction",
		},
		[]string{"direction"},
	)

	settlementGapsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "subsync_settlement_gaps_total",
			Help: "Entries credited to billing whose counter reset failed",
		},
	)
)

func init() {
	prometheus.MustRegister(
		syncRunsTotal,
		syncRunDuration,
		usersCreatedTotal,
		usersRemovedTotal,
		settledBytesTotal,
		settlementGapsTotal,
	)
}
