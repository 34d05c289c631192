// Copyright (C) 2025-2026, ShardKV Authors. All rights reserved.
// See the file LICENSE for licensing terms.

package ballot

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestNewPacksCounterAndReplica(t *testing.T) {
	b := New(3, 2)
	require.Equal(t, uint32(3), b.Counter())
	require.Equal(t, uint8(2), b.Replica())
}

func TestOriginatedBallotsCarryMyIndex(t *testing.T) {
	// Testable property 4: the low 8 bits of every ballot a replica
	// originates equal my_index.
	for idx := uint8(0); idx < 5; idx++ {
		local := Zero
		for i := 0; i < 10; i++ {
			local = Mint(local, idx)
			require.Equal(t, idx, local.Replica())
		}
	}
}

func TestObserveRuleIsMonotonic(t *testing.T) {
	local := New(1, 0)
	local2 := ObserveRule(local, New(1, 3), 0)
	require.False(t, local2.Less(local) && local2 != local, "ballot must never decrease")
	require.True(t, local <= local2)
}

func TestObserveRuleAdvancesPastSeen(t *testing.T) {
	local := Zero
	seen := New(4, 1)
	local = ObserveRule(local, seen, 0)
	require.Equal(t, New(5, 0), local)
}

func TestScenarioEReordering(t *testing.T) {
	// spec.md §8 Scenario E: ballots observed out of order must still
	// leave the local ballot monotonic, and equal to the computed max.
	local := Zero
	seen := []Ballot{0x305, 0x102, 0x408, 0x107}
	var prev Ballot
	for _, b := range seen {
		prev = local
		local = ObserveRule(local, b, 1)
		require.True(t, prev <= local, "ballot must be non-decreasing across the sequence")
	}
	require.Equal(t, New(Ballot(0x408).Counter()+1, 1), local)
}

func TestMaxIsCommutative(t *testing.T) {
	a, b := New(1, 0), New(1, 1)
	require.Equal(t, Max(a, b), Max(b, a))
}
