// Copyright (C) 2025-2026, ShardKV Authors. All rights reserved.
// See the file LICENSE for licensing terms.

package store

import "hash/fnv"

// Two distinct fixed salts standing in for the "two distinct fixed
// 128-bit keys" spec.md §3 calls for. Two independent keyed FNV-1a runs
// over salt||key give a pair of 64-bit values with effectively
// independent collision behavior, which is all the durable log's
// composite primary key needs (Non-goals: byzantine tolerance, so this
// does not need to be cryptographically keyed) — adapted from
// wavefpc/sharded_map.go's hash/fnv sharding use.
var (
	salt1 = [16]byte{0x9e, 0x37, 0x79, 0xb9, 0x7f, 0x4a, 0x7c, 0x15, 0xf3, 0x9c, 0xc0, 0x60, 0x5c, 0xed, 0xc8, 0x34}
	salt2 = [16]byte{0xff, 0x51, 0xaf, 0xd7, 0xed, 0x55, 0x8c, 0xcd, 0xc4, 0xce, 0xb9, 0xfe, 0x1a, 0x85, 0xec, 0x53}
)

// keyHashes computes the two independent keyed hashes over key used as
// the durable log's composite primary key (keyhash1, keyhash2).
func keyHashes(key []byte) (h1, h2 int64) {
	f1 := fnv.New64a()
	f1.Write(salt1[:])
	f1.Write(key)

	f2 := fnv.New64a()
	f2.Write(salt2[:])
	f2.Write(key)

	return int64(f1.Sum64()), int64(f2.Sum64())
}
