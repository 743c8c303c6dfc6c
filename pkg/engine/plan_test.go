// Copyright 2025 SubSync Authors
// SPDX-License-Identifier: Apache-2.0

package engine

import (
	"testing"

	"github.com/google/go-cmp/cmp"
)

func set(ids ...string) map[string]struct{} {
	out := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		out[id] = struct{}{}
	}
	return out
}

func presentSet(ids ...string) map[string]int64 {
	out := make(map[string]int64, len(ids))
	for i, id := range ids {
		out[id] = int64(i + 1)
	}
	return out
}

func TestBuildPlan(t *testing.T) {
	tests := []struct {
		name     string
		eligible map[string]struct{}
		present  map[string]int64
		want     Plan
	}{
		{
			name:     "overlapping sets",
			eligible: set("A", "B"),
			present:  presentSet("B", "C"),
			want:     Plan{ToCreate: []string{"A"}, ToRemove: []string{"C"}},
		},
		{
			name:     "already converged",
			eligible: set("A", "B"),
			present:  presentSet("A", "B"),
			want:     Plan{},
		},
		{
			name:     "empty directory",
			eligible: set("A", "B"),
			present:  presentSet(),
			want:     Plan{ToCreate: []string{"A", "B"}},
		},
		{
			name:     "empty eligible set",
			eligible: set(),
			present:  presentSet("A", "B"),
			want:     Plan{ToRemove: []string{"A", "B"}},
		},
		{
			name:     "both empty",
			eligible: set(),
			present:  presentSet(),
			want:     Plan{},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := BuildPlan(tt.eligible, tt.present)
			if diff := cmp.Diff(tt.want, got); diff != "" {
				t.Errorf("BuildPlan() mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestBuildPlan_Disjoint(t *testing.T) {
	plan := BuildPlan(set("A", "B", "C"), presentSet("B", "C", "D", "E"))

	seen := make(map[string]struct{})
	for _, id := range plan.ToCreate {
		seen[id] = struct{}{}
	}
	for _, id := range plan.ToRemove {
		if _, ok := seen[id]; ok {
			t.Errorf("identifier %q present in both ToCreate and ToRemove", id)
		}
	}
}
