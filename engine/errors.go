// Copyright (C) 2025-2026, ShardKV Authors. All rights reserved.
// See the file LICENSE for licensing terms.

package engine

import "errors"

// Error kinds the engine can surface (spec.md §7). A decode error is
// logged at Debug and returned from OnMessage wrapping the wire package's
// sentinel, with no response sent. StaleBallot/StaleState never reach a
// caller: such a message is dropped and OnMessage returns nil, consistent
// with "dropped silently; no response". Storage errors are returned,
// since the command aborts.
var (
	// ErrStaleBallot names the condition of an incoming message whose
	// ballot is older than the locally stored ballot for its key. The
	// engine drops such messages; it neither returns nor logs this value.
	ErrStaleBallot = errors.New("engine: stale ballot")
	// ErrStaleCommit names the condition of a COMMIT whose seq is below
	// the last seq already recorded for its key. The engine drops such
	// messages; it neither returns nor logs this value.
	ErrStaleCommit = errors.New("engine: stale commit")
	// ErrUnknownMessageType is returned for a wire message whose Type
	// byte does not match any handled kind.
	ErrUnknownMessageType = errors.New("engine: unknown message type")
)
