// Copyright (C) 2025-2026, ShardKV Authors. All rights reserved.
// See the file LICENSE for licensing terms.

// Package ballot implements the 32-bit ballot numbers used to totally
// order proposals in the KE-Paxos protocol engine.
//
// A ballot packs a monotonically non-decreasing counter into its upper 24
// bits and the originating replica's index into its low 8 bits. Packing
// replica identity into the low bits guarantees that two replicas never
// mint the same ballot for the same counter value, while plain numeric
// comparison keeps ballots totally ordered.
package ballot

// Ballot is a totally-ordered proposal number: counter in bits [8,32),
// originating replica index in bits [0,8).
type Ballot uint32

// Zero is the ballot below which no real proposal ever falls.
const Zero Ballot = 0

// New packs a counter and replica index into a ballot.
func New(counter uint32, replica uint8) Ballot {
	return Ballot(counter<<8 | uint32(replica))
}

// Counter returns the upper 24 bits.
func (b Ballot) Counter() uint32 {
	return uint32(b) >> 8
}

// Replica returns the low 8 bits: the index of the replica that minted b.
func (b Ballot) Replica() uint8 {
	return uint8(b)
}

// Less reports whether b sorts strictly before other. Ballots are totally
// ordered by their plain numeric value.
func (b Ballot) Less(other Ballot) bool {
	return b < other
}

// Max returns the numerically larger of two ballots.
func Max(a, b Ballot) Ballot {
	if a < b {
		return b
	}
	return a
}

// ObserveRule advances local past any ballot seen on the wire, per spec:
// local <- max(local, (seen.Counter()+1)<<8 | myIndex). It never lowers
// local — observing an old ballot is a no-op.
func ObserveRule(local, seen Ballot, myIndex uint8) Ballot {
	candidate := New(seen.Counter()+1, myIndex)
	return Max(local, candidate)
}

// Mint produces a fresh ballot for a new proposal: advance the counter
// past local's own counter and re-embed myIndex in the low bits. This is
// the "advance high-24, re-embed index" transform from spec.md §4.4 step 5.
func Mint(local Ballot, myIndex uint8) Ballot {
	return New(local.Counter()+1, myIndex)
}
