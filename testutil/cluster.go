// Copyright (C) 2025-2026, ShardKV Authors. All rights reserved.
// See the file LICENSE for licensing terms.

package testutil

import (
	"context"
	"fmt"

	"github.com/shardkv/kepaxos/engine"
	"github.com/shardkv/kepaxos/metrics"
	"github.com/shardkv/kepaxos/store"

	"github.com/prometheus/client_golang/prometheus"
)

// Cluster wires N engine.Engine instances together over an in-memory
// transport, so Scenario-style tests (spec.md §8) can run the real
// protocol state machine without a network or a database.
type Cluster struct {
	Engines    []*engine.Engine
	Senders    []*FakeSender
	Committers []*FakeCommitter
	Recoverers []*FakeRecoverer
}

// NewCluster builds a cluster of n replicas, each backed by a MemStore
// and wired so every Send call is delivered synchronously to the
// addressed peer's OnMessage.
func NewCluster(n int) *Cluster {
	peers := make([]string, n)
	for i := range peers {
		peers[i] = fmt.Sprintf("replica-%d", i)
	}

	c := &Cluster{
		Engines:    make([]*engine.Engine, n),
		Senders:    make([]*FakeSender, n),
		Committers: make([]*FakeCommitter, n),
		Recoverers: make([]*FakeRecoverer, n),
	}

	for i := 0; i < n; i++ {
		c.Senders[i] = NewFakeSender()
		c.Committers[i] = NewFakeCommitter()
		c.Recoverers[i] = NewFakeRecoverer()
	}

	for i := 0; i < n; i++ {
		idx := i
		c.Senders[idx].Deliver = func(ctx context.Context, peer int, data []byte) error {
			return c.Engines[peer].OnMessage(ctx, idx, data)
		}

		e, err := engine.New(engine.Config{
			MyIndex:   uint8(idx),
			Peers:     peers,
			Store:     store.NewMemStore(),
			Sender:    c.Senders[idx],
			Committer: c.Committers[idx],
			Recoverer: c.Recoverers[idx],
			Metrics:   metrics.New(prometheus.NewRegistry()),
		})
		if err != nil {
			panic(err) // construction with valid fixed config never fails
		}
		c.Engines[idx] = e
	}

	return c
}
