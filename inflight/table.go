// Copyright (C) 2025-2026, ShardKV Authors. All rights reserved.
// See the file LICENSE for licensing terms.

// Package inflight holds the process-local table of in-flight commands,
// one entry per key currently being driven through the protocol (spec.md
// §4.3). Access is serialized by a single mutex, owned by the caller
// (normally engine.Engine) rather than sharded — spec.md §5 requires all
// table access to go through one engine-wide lock, so this type does not
// take its own lock; callers must hold engine.Engine's mutex while
// calling into it.
package inflight

import (
	"time"

	"github.com/shardkv/kepaxos/ballot"
	"github.com/shardkv/kepaxos/command"
	"github.com/shardkv/kepaxos/quorum"
)

// Status is the lifecycle state of an in-flight command (spec.md §3).
type Status int

const (
	None Status = iota
	PreAccepted
	Accepted
	Committed
)

func (s Status) String() string {
	switch s {
	case PreAccepted:
		return "PRE_ACCEPTED"
	case Accepted:
		return "ACCEPTED"
	case Committed:
		return "COMMITTED"
	default:
		return "NONE"
	}
}

// Entry is the in-flight state for a single key.
type Entry struct {
	Type   command.Type
	Status Status
	Ballot ballot.Ballot
	Seq    uint32
	Key    []byte
	Data   []byte

	// Started marks when this key entered the table via RunCommand or an
	// inbound PRE_ACCEPT, used to report the PRE_ACCEPT-to-COMMIT round
	// trip. Zero on entries created by an inbound ACCEPT and on entries
	// synthesized purely to apply an inbound COMMIT.
	Started time.Time

	Votes *quorum.Box
}

// Table is the process-local map from key bytes to the current in-flight
// entry for that key. Invariant 1 (spec.md §3): at most one entry per key.
type Table struct {
	entries map[string]*Entry
}

// New returns an empty table.
func New() *Table {
	return &Table{entries: make(map[string]*Entry)}
}

// Get returns the entry for key, or nil if none exists.
func (t *Table) Get(key []byte) *Entry {
	return t.entries[string(key)]
}

// InsertOrReplace installs entry as the current in-flight command for
// key, discarding any previous entry for that key (spec.md §4.4 step 4 —
// the displaced command, if uncommitted, silently fails).
func (t *Table) InsertOrReplace(key []byte, entry *Entry) {
	t.entries[string(key)] = entry
}

// Remove deletes and returns the entry for key, if any.
func (t *Table) Remove(key []byte) *Entry {
	k := string(key)
	e, ok := t.entries[k]
	if !ok {
		return nil
	}
	delete(t.entries, k)
	return e
}

// Len returns the number of keys with an in-flight entry.
func (t *Table) Len() int {
	return len(t.entries)
}
