// Copyright (C) 2025-2026, ShardKV Authors. All rights reserved.
// See the file LICENSE for licensing terms.

// Package testutil provides call-recording fakes and a small in-memory
// cluster harness for exercising engine.Engine end-to-end without a real
// transport or database, adapted from the teacher's
// networking/sender/sendermock.MockSender pattern.
package testutil

import (
	"context"
	"sync"

	"github.com/shardkv/kepaxos/command"
)

// SentMessage records one call to FakeSender.Send.
type SentMessage struct {
	Peer int
	Data []byte
}

// FakeSender is a call-recording Sender, grounded on
// networking/sender/sendermock.MockSender: it appends every send to a
// slice instead of touching a network.
type FakeSender struct {
	mu   sync.Mutex
	sent []SentMessage

	// Deliver, when set, is invoked synchronously for every Send instead
	// of just recording it — this is what lets Cluster wire N engines
	// together without a real transport.
	Deliver func(ctx context.Context, peer int, data []byte) error
}

// NewFakeSender returns an empty FakeSender.
func NewFakeSender() *FakeSender {
	return &FakeSender{}
}

// Send implements engine.Sender.
func (f *FakeSender) Send(ctx context.Context, peer int, msg []byte) error {
	f.mu.Lock()
	f.sent = append(f.sent, SentMessage{Peer: peer, Data: append([]byte(nil), msg...)})
	f.mu.Unlock()

	if f.Deliver != nil {
		return f.Deliver(ctx, peer, msg)
	}
	return nil
}

// Sent returns every message recorded so far.
func (f *FakeSender) Sent() []SentMessage {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]SentMessage, len(f.sent))
	copy(out, f.sent)
	return out
}

// Clear discards recorded messages.
func (f *FakeSender) Clear() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = nil
}

// CommittedEntry records one call to FakeCommitter.Commit.
type CommittedEntry struct {
	CmdType command.Type
	Key     []byte
	Data    []byte
}

// FakeCommitter is a call-recording Committer.
type FakeCommitter struct {
	mu        sync.Mutex
	committed []CommittedEntry
}

// NewFakeCommitter returns an empty FakeCommitter.
func NewFakeCommitter() *FakeCommitter {
	return &FakeCommitter{}
}

// Commit implements engine.Committer.
func (f *FakeCommitter) Commit(_ context.Context, cmdType command.Type, key, data []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.committed = append(f.committed, CommittedEntry{
		CmdType: cmdType,
		Key:     append([]byte(nil), key...),
		Data:    append([]byte(nil), data...),
	})
	return nil
}

// Committed returns every commit recorded so far.
func (f *FakeCommitter) Committed() []CommittedEntry {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]CommittedEntry, len(f.committed))
	copy(out, f.committed)
	return out
}

// RecoverCall records one call to FakeRecoverer.Recover.
type RecoverCall struct {
	Peer int
	Key  []byte
}

// FakeRecoverer is a call-recording Recoverer.
type FakeRecoverer struct {
	mu    sync.Mutex
	calls []RecoverCall
}

// NewFakeRecoverer returns an empty FakeRecoverer.
func NewFakeRecoverer() *FakeRecoverer {
	return &FakeRecoverer{}
}

// Recover implements engine.Recoverer.
func (f *FakeRecoverer) Recover(_ context.Context, peer int, key []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, RecoverCall{Peer: peer, Key: append([]byte(nil), key...)})
	return nil
}

// Calls returns every recovery hand-off recorded so far.
func (f *FakeRecoverer) Calls() []RecoverCall {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]RecoverCall, len(f.calls))
	copy(out, f.calls)
	return out
}
