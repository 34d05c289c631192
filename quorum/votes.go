// Copyright (C) 2025-2026, ShardKV Authors. All rights reserved.
// See the file LICENSE for licensing terms.

// Package quorum aggregates PRE_ACCEPT_RESP / ACCEPT_RESP votes for a
// single in-flight command and answers whether a quorum has been reached
// (spec.md §4.4, §9 "duplicate votes" open question).
package quorum

import "sync"

// Vote is one peer's reported (ballot, seq) for the command being voted
// on. Committed is set from a PRE_ACCEPT_RESP's committed_flag (spec.md
// §4.1) and drives the recovery-path branch of PRE_ACCEPT_RESP
// aggregation.
type Vote struct {
	Peer      int
	Ballot    uint32
	Seq       uint32
	Committed bool
}

// Box collects votes for a single in-flight command, keyed by peer index
// so that a redelivered response overwrites rather than double-counts —
// spec.md §9's recommended mitigation for the "duplicate votes" open
// question.
type Box struct {
	mu        sync.Mutex
	votes     map[int]Vote
	maxSeq    uint32
	maxVoter  int
	hasMaxSeq bool
}

// NewBox returns an empty vote box.
func NewBox() *Box {
	return &Box{votes: make(map[int]Vote)}
}

// Add records (or overwrites) peer's vote and updates the running maximum
// seq seen across all votes plus the peer that reported it.
func (b *Box) Add(v Vote) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.votes[v.Peer] = v
	if !b.hasMaxSeq || v.Seq > b.maxSeq {
		b.maxSeq = v.Seq
		b.maxVoter = v.Peer
		b.hasMaxSeq = true
	}
}

// Len returns the number of distinct peers that have voted.
func (b *Box) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.votes)
}

// MaxSeq returns the highest seq reported by any voter so far.
func (b *Box) MaxSeq() uint32 {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.maxSeq
}

// MaxVoter returns the peer index that reported MaxSeq.
func (b *Box) MaxVoter() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.maxVoter
}

// CountMatching returns the number of votes whose (ballot, seq) equal the
// given values — used by the ACCEPT_RESP aggregation to count how many
// peers actually agreed with the proposed value (spec.md §4.4).
func (b *Box) CountMatching(ballot, seq uint32) int {
	b.mu.Lock()
	defer b.mu.Unlock()

	n := 0
	for _, v := range b.votes {
		if v.Ballot == ballot && v.Seq == seq {
			n++
		}
	}
	return n
}

// HighestCommittedVote returns the vote with the highest Seq among votes
// whose Committed flag is set, used by PRE_ACCEPT_RESP aggregation to
// detect that some peer is already ahead and a recovery hand-off, not a
// slow-path retry, is needed (spec.md §4.4 "recovery path").
func (b *Box) HighestCommittedVote() (Vote, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()

	var best Vote
	found := false
	for _, v := range b.votes {
		if !v.Committed {
			continue
		}
		if !found || v.Seq > best.Seq {
			best = v
			found = true
		}
	}
	return best, found
}

// Reset clears all recorded votes, used when the initiator retries at a
// higher ballot.
func (b *Box) Reset() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.votes = make(map[int]Vote)
	b.maxSeq = 0
	b.maxVoter = 0
	b.hasMaxSeq = false
}

// Quorum returns threshold = floor(numPeers/2), the bare-majority
// fast-path quorum this module preserves from the source implementation
// (SPEC_FULL.md §13, DESIGN.md open-question decision 1).
func Quorum(numPeers int) int {
	return numPeers / 2
}
