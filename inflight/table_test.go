// Copyright (C) 2025-2026, ShardKV Authors. All rights reserved.
// See the file LICENSE for licensing terms.

package inflight

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestTableGetMissing(t *testing.T) {
	tb := New()
	require.Nil(t, tb.Get([]byte("k")))
	require.Equal(t, 0, tb.Len())
}

func TestTableInsertOrReplace(t *testing.T) {
	tb := New()
	e1 := &Entry{Status: PreAccepted, Seq: 1}
	tb.InsertOrReplace([]byte("k"), e1)
	require.Same(t, e1, tb.Get([]byte("k")))
	require.Equal(t, 1, tb.Len())

	// A second insert for the same key discards the displaced entry
	// (spec.md §4.4 step 4 — the displaced command silently fails if
	// uncommitted).
	e2 := &Entry{Status: Accepted, Seq: 2}
	tb.InsertOrReplace([]byte("k"), e2)
	require.Same(t, e2, tb.Get([]byte("k")))
	require.Equal(t, 1, tb.Len())
}

func TestTableRemove(t *testing.T) {
	tb := New()
	e := &Entry{Status: Committed, Seq: 3}
	tb.InsertOrReplace([]byte("k"), e)

	got := tb.Remove([]byte("k"))
	require.Same(t, e, got)
	require.Nil(t, tb.Get([]byte("k")))
	require.Equal(t, 0, tb.Len())

	require.Nil(t, tb.Remove([]byte("k")))
}

func TestTableKeysAreIndependent(t *testing.T) {
	tb := New()
	tb.InsertOrReplace([]byte("a"), &Entry{Seq: 1})
	tb.InsertOrReplace([]byte("b"), &Entry{Seq: 2})
	require.Equal(t, 2, tb.Len())

	tb.Remove([]byte("a"))
	require.Equal(t, 1, tb.Len())
	require.NotNil(t, tb.Get([]byte("b")))
}

func TestStatusString(t *testing.T) {
	require.Equal(t, "NONE", None.String())
	require.Equal(t, "PRE_ACCEPTED", PreAccepted.String())
	require.Equal(t, "ACCEPTED", Accepted.String())
	require.Equal(t, "COMMITTED", Committed.String())
}
