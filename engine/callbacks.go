// Copyright (C) 2025-2026, ShardKV Authors. All rights reserved.
// See the file LICENSE for licensing terms.

package engine

import (
	"context"

	"github.com/shardkv/kepaxos/command"
)

// Sender delivers an opaque protocol message to one peer, identified by
// its index into the engine's peer list (spec.md §6 "send"). Best-effort:
// a failing send is reported to the caller of RunCommand/OnMessage as a
// TransportError but never retried by the engine itself.
type Sender interface {
	Send(ctx context.Context, peer int, msg []byte) error
}

// Committer applies a committed mutation to the cache the engine is
// ordering commands for (spec.md §6 "commit"). MUST be idempotent per
// (key, seq): a crash between Committer.Commit and the log record can
// replay the same commit.
type Committer interface {
	Commit(ctx context.Context, cmdType command.Type, key, data []byte) error
}

// Recoverer fetches the latest state for key from peer, invoked when the
// initiator learns a peer is already ahead (spec.md §6 "recover").
type Recoverer interface {
	Recover(ctx context.Context, peer int, key []byte) error
}
