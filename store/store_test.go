// Copyright (C) 2025-2026, ShardKV Authors. All rights reserved.
// See the file LICENSE for licensing terms.

package store

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestMemStoreMaxSeqDefaultsToZero(t *testing.T) {
	s := NewMemStore()
	seq, err := s.MaxSeq(context.Background(), []byte("k"))
	require.NoError(t, err)
	require.Equal(t, uint32(0), seq)
}

func TestMemStoreRecordOverwrites(t *testing.T) {
	s := NewMemStore()
	ctx := context.Background()

	require.NoError(t, s.Record(ctx, []byte("k"), 1, 5))
	seq, err := s.MaxSeq(ctx, []byte("k"))
	require.NoError(t, err)
	require.Equal(t, uint32(5), seq)

	require.NoError(t, s.Record(ctx, []byte("k"), 2, 9))
	seq, err = s.MaxSeq(ctx, []byte("k"))
	require.NoError(t, err)
	require.Equal(t, uint32(9), seq, "later record must overwrite earlier one")
}

func TestKeyHashesAreStableAndDistinctSalts(t *testing.T) {
	h1a, h2a := keyHashes([]byte("alpha"))
	h1b, h2b := keyHashes([]byte("alpha"))
	require.Equal(t, h1a, h1b)
	require.Equal(t, h2a, h2b)
	require.NotEqual(t, h1a, h2a, "the two salts must produce different hashes for the same key")
}

func TestKeyHashesDifferByKey(t *testing.T) {
	h1a, h2a := keyHashes([]byte("alpha"))
	h1b, h2b := keyHashes([]byte("beta"))
	require.False(t, h1a == h1b && h2a == h2b)
}
