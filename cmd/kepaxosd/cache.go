// Copyright (C) 2025-2026, ShardKV Authors. All rights reserved.
// See the file LICENSE for licensing terms.

package main

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/shardkv/kepaxos/command"
	"github.com/shardkv/kepaxos/wire"
)

// cacheEntry is the demo CLI's host-side notion of "current value",
// separate from the engine's own (ballot, seq) durable log — the engine
// only ever hands this process a (cmd_type, key, data) tuple to apply.
type cacheEntry struct {
	cmdType command.Type
	data    []byte
	seq     uint32
}

// cache is a toy in-memory key/value store playing the role of "the
// thing kepaxosd is actually keeping consistent" (spec.md §2's
// "shard of a distributed cache"). It implements engine.Committer.
type cache struct {
	mu      sync.Mutex
	entries map[string]cacheEntry
	seq     uint32
}

func newCache() *cache {
	return &cache{entries: make(map[string]cacheEntry)}
}

// Commit implements engine.Committer. MUST be idempotent per (key, seq);
// applying the same mutation twice just overwrites with the same value.
func (c *cache) Commit(_ context.Context, cmdType command.Type, key, data []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.seq++
	k := string(key)
	switch cmdType {
	case command.Set:
		c.entries[k] = cacheEntry{cmdType: cmdType, data: append([]byte(nil), data...), seq: c.seq}
		slog.Info("commit", "op", "SET", "key", k, "value", string(data))
	case command.Delete, command.Evict:
		delete(c.entries, k)
		slog.Info("commit", "op", cmdType.String(), "key", k)
	default:
		return fmt.Errorf("cache: unknown command type %d", cmdType)
	}
	return nil
}

func (c *cache) get(key []byte) (cacheEntry, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.entries[string(key)]
	return e, ok
}

// recoverResult is what a RECOVER_RESP frame resolves a pending wait to.
type recoverResult struct {
	cmdType command.Type
	data    []byte
	seq     uint32
}

// recoveryWaiters bridges the engine.Recoverer callback (which must
// block until the peer's value arrives) to the transport's asynchronous
// read loop (which delivers that value as a RECOVER_RESP frame on a
// different goroutine).
type recoveryWaiters struct {
	cache *cache

	mu      sync.Mutex
	pending map[string]chan recoverResult
}

func newRecoveryWaiters(c *cache) *recoveryWaiters {
	return &recoveryWaiters{cache: c, pending: make(map[string]chan recoverResult)}
}

// handleRecoverRequest answers an inbound RECOVER for key with whatever
// this replica currently has committed, sent back over the same
// transport as a RECOVER_RESP. If the key has no local value, no reply
// is sent.
func (rw *recoveryWaiters) handleRecoverRequest(ctx context.Context, t *tcpTransport, from int, key []byte) {
	entry, ok := rw.cache.get(key)
	if !ok {
		slog.Debug("recover: no local value for key", "key", string(key))
		return
	}

	resp := wire.Encode(wire.Message{
		Seq:     entry.seq,
		Type:    wire.RecoverResp,
		CmdType: uint8(entry.cmdType),
		Key:     key,
		Data:    entry.data,
	})
	if err := t.Send(ctx, from, resp); err != nil {
		slog.Warn("recover: failed to reply", "to", from, "key", string(key), "error", err)
	}
}

// handleRecoverResponse delivers an inbound RECOVER_RESP to whichever
// Recover call is waiting on this key, if any.
func (rw *recoveryWaiters) handleRecoverResponse(key []byte, cmdType uint8, data []byte, seq uint32) {
	rw.mu.Lock()
	ch, ok := rw.pending[string(key)]
	if ok {
		delete(rw.pending, string(key))
	}
	rw.mu.Unlock()

	if !ok {
		return
	}
	ch <- recoverResult{cmdType: command.Type(cmdType), data: data, seq: seq}
}

// recoverer implements engine.Recoverer by sending a RECOVER request to
// peer and waiting (with a timeout) for the matching RECOVER_RESP, then
// applying the result directly to the local cache — mirroring what a
// real host would do with the recovered value (spec.md §6 "recover").
type recoverer struct {
	transport *tcpTransport
	waiters   *recoveryWaiters
	cache     *cache
	timeout   time.Duration
}

func newRecoverer(t *tcpTransport, rw *recoveryWaiters, c *cache) *recoverer {
	return &recoverer{transport: t, waiters: rw, cache: c, timeout: 2 * time.Second}
}

// Recover implements engine.Recoverer.
func (r *recoverer) Recover(ctx context.Context, peer int, key []byte) error {
	ch := make(chan recoverResult, 1)
	r.waiters.mu.Lock()
	r.waiters.pending[string(key)] = ch
	r.waiters.mu.Unlock()

	req := wire.Encode(wire.Message{Type: wire.Recover, Key: key})
	if err := r.transport.Send(ctx, peer, req); err != nil {
		return fmt.Errorf("recover: send request to peer %d: %w", peer, err)
	}

	select {
	case res := <-ch:
		return r.cache.Commit(ctx, res.cmdType, key, res.data)
	case <-time.After(r.timeout):
		return fmt.Errorf("recover: timed out waiting for peer %d", peer)
	case <-ctx.Done():
		return ctx.Err()
	}
}
