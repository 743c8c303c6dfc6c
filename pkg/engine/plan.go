// Copyright 2025 SubSync Authors
// SPDX-License-Identifier: Apache-2.0

// Package engine implements the reconciliation and traffic-settlement core:
// converging the panel directory on billing eligibility, and moving consumed
// bytes from panel counters into the billing ledger.
package engine

import "sort"

// Plan is the set of directory mutations needed to match billing
// eligibility. ToCreate and ToRemove are disjoint by construction; a plan is
// computed fresh each run and never persisted.
type Plan struct {
	ToCreate []string
	ToRemove []string
}

// Empty reports whether the plan requires no mutations.
func (p Plan) Empty() bool {
	return len(p.ToCreate) == 0 && len(p.ToRemove) == 0
}

// BuildPlan computes the symmetric difference between the billing-eligible
// identifiers and the identifiers present in the directory. present maps
// identifier to the directory's internal id. Output is sorted for
// deterministic logs; batch order carries no dependency between identifiers.
func BuildPlan(eligible map[string]struct{}, present map[string]int64) Plan {
	var plan Plan
	for id := range eligible {
		if _, ok := present[id]; !ok {
			plan.ToCreate = append(plan.ToCreate, id)
		}
	}
	for id := range present {
		if _, ok := eligible[id]; !ok {
			plan.ToRemove = append(plan.ToRemove, id)
		}
	}
	sort.Strings(plan.ToCreate)
	sort.Strings(plan.ToRemove)
	return plan
}
