// Copyright (C) 2025-2026, ShardKV Authors. All rights reserved.
// See the file LICENSE for licensing terms.

// Package engine implements the KE-Paxos protocol state machine
// (spec.md §4.4): RunCommand drives a new command through PRE_ACCEPT to
// either a fast-path or slow-path COMMIT; OnMessage feeds inbound wire
// messages from the transport and advances whichever in-flight command
// they belong to.
//
// Open question (spec.md §9, DESIGN.md decision 1): this engine preserves
// the source's bare-majority fast-path quorum (floor(N/2) votes) rather
// than raising it to EPaxos-canonical ceil(3N/4). For N=5 this accepts
// weaker interference-safety guarantees than canonical EPaxos in exchange
// for matching the distilled specification's documented source behavior.
package engine

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	lxlog "github.com/luxfi/log"
	"go.uber.org/zap"

	"github.com/shardkv/kepaxos/ballot"
	"github.com/shardkv/kepaxos/command"
	"github.com/shardkv/kepaxos/inflight"
	kelog "github.com/shardkv/kepaxos/log"
	"github.com/shardkv/kepaxos/metrics"
	"github.com/shardkv/kepaxos/quorum"
	"github.com/shardkv/kepaxos/store"
	"github.com/shardkv/kepaxos/utils/wrappers"
	"github.com/shardkv/kepaxos/wire"
)

// Config wires an Engine to its host and peers.
type Config struct {
	// MyIndex is this replica's index into Peers.
	MyIndex uint8
	// Peers is the ordered list of peer labels, including this replica's
	// own label at index MyIndex (spec.md §3 "Peer identity").
	Peers []string

	Store     store.Store
	Sender    Sender
	Committer Committer
	Recoverer Recoverer

	Logger  lxlog.Logger
	Metrics *metrics.Metrics
}

// Engine is a single replica's protocol state machine. All exported
// methods are safe to call concurrently (spec.md §5).
type Engine struct {
	myIndex uint8
	peers   []string

	store     store.Store
	sender    Sender
	committer Committer
	recoverer Recoverer

	log     lxlog.Logger
	metrics *metrics.Metrics

	// localBallot supports the atomic "set-if-less-than" update spec.md
	// §5 requires so ballot advancement from message parsing can proceed
	// before mu is taken.
	localBallot atomic.Uint32

	mu    sync.Mutex
	table *inflight.Table
}

// New constructs an Engine from cfg.
func New(cfg Config) (*Engine, error) {
	if int(cfg.MyIndex) >= len(cfg.Peers) {
		return nil, fmt.Errorf("engine: my_index %d out of range for %d peers", cfg.MyIndex, len(cfg.Peers))
	}
	if cfg.Store == nil || cfg.Sender == nil || cfg.Committer == nil || cfg.Recoverer == nil {
		return nil, fmt.Errorf("engine: store, sender, committer and recoverer are all required")
	}

	log := cfg.Logger
	if log == nil {
		log = kelog.NewNoOpLogger()
	}

	return &Engine{
		myIndex:   cfg.MyIndex,
		peers:     cfg.Peers,
		store:     cfg.Store,
		sender:    cfg.Sender,
		committer: cfg.Committer,
		recoverer: cfg.Recoverer,
		log:       log,
		metrics:   cfg.Metrics,
		table:     inflight.New(),
	}, nil
}

// Close releases the engine's durable log. Not part of spec.md's core
// contract; supplemented (SPEC_FULL.md §12.1) because any embedder that
// constructs engines repeatedly needs a teardown hook.
func (e *Engine) Close() {
	e.store.Close()
}

func (e *Engine) numPeers() int { return len(e.peers) }

func (e *Engine) quorum() int { return quorum.Quorum(e.numPeers()) }

// observeBallot applies the max-and-reembed rule from spec.md §3 against
// seen, without acquiring mu, and returns the (possibly unchanged) new
// local ballot.
func (e *Engine) observeBallot(seen ballot.Ballot) ballot.Ballot {
	for {
		cur := ballot.Ballot(e.localBallot.Load())
		next := ballot.ObserveRule(cur, seen, e.myIndex)
		if next == cur {
			return cur
		}
		if e.localBallot.CompareAndSwap(uint32(cur), uint32(next)) {
			return next
		}
	}
}

// mintBallot advances past the current local ballot and re-embeds
// myIndex, installing the result as the new local ballot.
func (e *Engine) mintBallot() ballot.Ballot {
	for {
		cur := ballot.Ballot(e.localBallot.Load())
		next := ballot.Mint(cur, e.myIndex)
		if e.localBallot.CompareAndSwap(uint32(cur), uint32(next)) {
			return next
		}
	}
}

func (e *Engine) recordMsgSent(t wire.Type) {
	if e.metrics != nil {
		e.metrics.MessagesSent.WithLabelValues(t.String()).Inc()
	}
}

func (e *Engine) recordMsgReceived(t wire.Type) {
	if e.metrics != nil {
		e.metrics.MessagesReceived.WithLabelValues(t.String()).Inc()
	}
}

// broadcast sends msg to every peer except self, collecting send errors
// with the teacher's Errs aggregator (utils/wrappers.Errs) rather than
// failing fast, since a single unreachable peer must not stop delivery to
// the others (spec.md §4.4 "failing to reply simply fails to contribute
// a vote").
func (e *Engine) broadcast(ctx context.Context, msg wire.Message) error {
	buf := wire.Encode(msg)
	e.recordMsgSent(msg.Type)

	var errs wrappers.Errs
	for i := range e.peers {
		if i == int(e.myIndex) {
			continue
		}
		if err := e.sender.Send(ctx, i, buf); err != nil {
			errs.Add(fmt.Errorf("send to peer %d: %w", i, err))
		}
	}
	return errs.Err()
}

func (e *Engine) unicast(ctx context.Context, peer int, msg wire.Message) error {
	buf := wire.Encode(msg)
	e.recordMsgSent(msg.Type)
	return e.sender.Send(ctx, peer, buf)
}

// RunCommand starts agreement on a new command for key (spec.md §4.4).
// originPeer is the peer that originally asked this replica to run the
// command; the protocol itself never branches on it; it exists purely
// for host-side logging/attribution (spec.md §6 lists it in the
// run_command signature without using it in the algorithm).
func (e *Engine) RunCommand(ctx context.Context, originPeer int, cmdType command.Type, key, data []byte) error {
	e.mu.Lock()

	localSeq, err := e.store.MaxSeq(ctx, key)
	if err != nil {
		e.mu.Unlock()
		return fmt.Errorf("engine: run_command: %w", err)
	}

	existing := e.table.Get(key)
	newSeq := localSeq
	if existing != nil && existing.Seq > newSeq {
		newSeq = existing.Seq
	}

	b := e.mintBallot()
	entry := &inflight.Entry{
		Type:    cmdType,
		Status:  inflight.PreAccepted,
		Ballot:  b,
		Seq:     newSeq,
		Key:     append([]byte(nil), key...),
		Data:    append([]byte(nil), data...),
		Started: time.Now(),
		Votes:   quorum.NewBox(),
	}
	e.table.InsertOrReplace(key, entry)
	e.mu.Unlock()

	e.log.Debug("run_command: pre-accepting",
		zap.Int("origin_peer", originPeer),
		zap.Uint32("ballot", uint32(b)),
		zap.Uint32("seq", newSeq),
	)

	return e.broadcast(ctx, wire.Message{
		Ballot: b,
		Seq:    newSeq,
		Type:   wire.PreAccept,
		Key:    key,
	})
}

// OnMessage feeds an inbound message from the transport (spec.md §4.4).
func (e *Engine) OnMessage(ctx context.Context, from int, payload []byte) error {
	m, err := wire.Decode(payload)
	if err != nil {
		e.log.Debug("on_message: decode error", zap.Int("from", from), zap.Error(err))
		return fmt.Errorf("engine: decode: %w", err)
	}
	e.recordMsgReceived(m.Type)

	switch m.Type {
	case wire.PreAccept:
		return e.handlePreAccept(ctx, from, m)
	case wire.PreAcceptResp:
		return e.handlePreAcceptResp(ctx, from, m)
	case wire.Accept:
		return e.handleAccept(ctx, from, m)
	case wire.AcceptResp:
		return e.handleAcceptResp(ctx, from, m)
	case wire.Commit:
		return e.handleCommit(ctx, from, m)
	default:
		e.log.Debug("on_message: unhandled type", zap.Stringer("type", m.Type))
		return fmt.Errorf("engine: %w: %s", ErrUnknownMessageType, m.Type)
	}
}

func maxU32(a, b uint32) uint32 {
	if a > b {
		return a
	}
	return b
}

func (e *Engine) handlePreAccept(ctx context.Context, from int, m wire.Message) error {
	local := e.observeBallot(m.Ballot)

	e.mu.Lock()
	localSeq, err := e.store.MaxSeq(ctx, m.Key)
	if err != nil {
		e.mu.Unlock()
		return fmt.Errorf("engine: pre_accept: %w", err)
	}

	entry := e.table.Get(m.Key)
	if entry != nil && m.Ballot.Less(entry.Ballot) {
		e.mu.Unlock()
		e.log.Debug("pre_accept: stale ballot, dropped", zap.Int("from", from))
		return nil
	}

	var interfering uint32
	if entry != nil {
		entry.Ballot = ballot.Max(entry.Ballot, m.Ballot)
		interfering = entry.Seq
	}
	interfering = maxU32(interfering, localSeq)
	maxSeq := maxU32(m.Seq, interfering)

	if maxSeq == m.Seq {
		if entry == nil {
			entry = &inflight.Entry{Key: append([]byte(nil), m.Key...), Started: time.Now(), Votes: quorum.NewBox()}
		}
		entry.Status = inflight.PreAccepted
		entry.Seq = maxSeq
		if entry.Ballot == 0 {
			entry.Ballot = m.Ballot
		}
		e.table.InsertOrReplace(m.Key, entry)
	}

	committedFlag := maxSeq == localSeq
	e.mu.Unlock()

	return e.unicast(ctx, from, wire.Message{
		Ballot:    local,
		Seq:       maxSeq,
		Type:      wire.PreAcceptResp,
		Committed: committedFlag,
		Key:       m.Key,
	})
}

func (e *Engine) handlePreAcceptResp(ctx context.Context, from int, m wire.Message) error {
	e.mu.Lock()

	entry := e.table.Get(m.Key)
	if entry == nil || m.Ballot.Less(entry.Ballot) || entry.Status != inflight.PreAccepted {
		e.mu.Unlock()
		return nil
	}

	entry.Votes.Add(quorum.Vote{Peer: from, Ballot: uint32(m.Ballot), Seq: m.Seq, Committed: m.Committed})

	if entry.Votes.Len() < e.quorum() {
		e.mu.Unlock()
		return nil // NoQuorumYet
	}

	maxSeq := entry.Votes.MaxSeq()

	if entry.Seq >= maxSeq {
		// Fast path. finishCommit releases e.mu before returning.
		e.table.Remove(m.Key)
		return e.finishCommit(ctx, entry, true)
	}

	if hv, ok := entry.Votes.HighestCommittedVote(); ok && hv.Seq > entry.Seq {
		// Recovery path.
		e.table.Remove(m.Key)
		e.mu.Unlock()
		if e.metrics != nil {
			e.metrics.Recoveries.Inc()
		}
		return e.recoverer.Recover(ctx, hv.Peer, m.Key)
	}

	// Slow path.
	entry.Votes.Reset()
	entry.Seq = maxSeq + 1
	entry.Status = inflight.Accepted
	acceptBallot := entry.Ballot
	acceptSeq := entry.Seq
	e.mu.Unlock()

	if e.metrics != nil {
		e.metrics.SlowPathRetries.Inc()
	}

	return e.broadcast(ctx, wire.Message{
		Ballot: acceptBallot,
		Seq:    acceptSeq,
		Type:   wire.Accept,
		Key:    m.Key,
	})
}

func (e *Engine) handleAccept(ctx context.Context, from int, m wire.Message) error {
	e.observeBallot(m.Ballot)

	e.mu.Lock()
	entry := e.table.Get(m.Key)
	if entry != nil && m.Ballot.Less(entry.Ballot) {
		e.mu.Unlock()
		e.log.Debug("accept: stale ballot, dropped", zap.Int("from", from))
		return nil
	}

	if entry != nil && m.Seq < entry.Seq {
		respBallot, respSeq := entry.Ballot, entry.Seq
		e.mu.Unlock()
		return e.unicast(ctx, from, wire.Message{
			Ballot: respBallot,
			Seq:    respSeq,
			Type:   wire.AcceptResp,
			Key:    m.Key,
		})
	}

	if entry == nil {
		entry = &inflight.Entry{Key: append([]byte(nil), m.Key...), Votes: quorum.NewBox()}
	}
	entry.Seq = m.Seq
	entry.Ballot = m.Ballot
	entry.Status = inflight.Accepted
	e.table.InsertOrReplace(m.Key, entry)
	e.mu.Unlock()

	return e.unicast(ctx, from, wire.Message{
		Ballot: m.Ballot,
		Seq:    m.Seq,
		Type:   wire.AcceptResp,
		Key:    m.Key,
	})
}

func (e *Engine) handleAcceptResp(ctx context.Context, from int, m wire.Message) error {
	e.mu.Lock()

	entry := e.table.Get(m.Key)
	if entry == nil || entry.Status != inflight.Accepted || m.Ballot.Less(entry.Ballot) {
		e.mu.Unlock()
		return nil
	}

	entry.Votes.Add(quorum.Vote{Peer: from, Ballot: uint32(m.Ballot), Seq: m.Seq})

	ok := entry.Votes.CountMatching(uint32(entry.Ballot), entry.Seq)
	q := e.quorum()

	if ok < q {
		if entry.Votes.Len() >= q {
			// Retry at a higher ballot.
			if entry.Seq <= entry.Votes.MaxSeq() {
				entry.Seq++
			}
			newBallot := ballot.Ballot(e.localBallot.Load())
			entry.Ballot = newBallot
			entry.Votes.Reset()
			seq := entry.Seq
			e.mu.Unlock()

			if e.metrics != nil {
				e.metrics.SlowPathRetries.Inc()
			}
			return e.broadcast(ctx, wire.Message{
				Ballot: newBallot,
				Seq:    seq,
				Type:   wire.Accept,
				Key:    m.Key,
			})
		}
		e.mu.Unlock()
		return nil // NoQuorumYet
	}

	// finishCommit releases e.mu before returning.
	e.table.Remove(m.Key)
	return e.finishCommit(ctx, entry, true)
}

func (e *Engine) handleCommit(ctx context.Context, from int, m wire.Message) error {
	e.observeBallot(m.Ballot)

	e.mu.Lock()
	entry := e.table.Get(m.Key)
	if entry != nil && entry.Seq == m.Seq && entry.Ballot > m.Ballot {
		e.mu.Unlock()
		e.log.Debug("commit: local in-flight on newer ballot, dropped", zap.Int("from", from))
		return nil
	}

	last, err := e.store.MaxSeq(ctx, m.Key)
	if err != nil {
		e.mu.Unlock()
		return fmt.Errorf("engine: commit: %w", err)
	}
	if m.Seq < last {
		e.log.Debug("commit: stale, dropped", zap.Int("from", from), zap.Uint32("seq", m.Seq), zap.Uint32("last", last))
		e.mu.Unlock()
		return nil
	}

	synthetic := &inflight.Entry{
		Type:   command.Type(m.CmdType),
		Ballot: m.Ballot,
		Seq:    m.Seq,
		Key:    m.Key,
		Data:   m.Data,
	}
	if entry != nil && entry.Seq == m.Seq {
		e.table.Remove(m.Key)
	}
	// finishCommit releases e.mu before returning.
	return e.finishCommit(ctx, synthetic, false)
}

// finishCommit invokes the host commit callback, durably records the new
// seq, and — when broadcast is true — announces the commit to every
// peer. broadcast is false when this commit was itself driven by an
// inbound COMMIT, so replicas never echo commits back onto the network.
//
// Callers must hold e.mu when calling finishCommit; it releases the
// mutex before returning, matching spec.md §4.4's grouping of the
// stale-check, host commit callback, and log record under a single
// mutex critical section, and §5's rule that only `send` (not `commit`)
// is safe to invoke with the mutex released.
func (e *Engine) finishCommit(ctx context.Context, entry *inflight.Entry, broadcast bool) error {
	if err := e.committer.Commit(ctx, entry.Type, entry.Key, entry.Data); err != nil {
		e.mu.Unlock()
		return fmt.Errorf("engine: commit callback: %w", err)
	}
	if err := e.store.Record(ctx, entry.Key, uint32(entry.Ballot), entry.Seq); err != nil {
		e.mu.Unlock()
		return fmt.Errorf("engine: record: %w", err)
	}

	if e.metrics != nil {
		e.metrics.Commits.Inc()
		if broadcast && !entry.Started.IsZero() {
			e.metrics.RoundTrip.Observe(time.Since(entry.Started).Seconds())
		}
	}
	e.log.Info("committed",
		zap.Uint32("ballot", uint32(entry.Ballot)),
		zap.Uint32("seq", entry.Seq),
		zap.Int("key_len", len(entry.Key)),
	)
	e.mu.Unlock()

	if !broadcast {
		return nil
	}
	return e.broadcast(ctx, wire.Message{
		Ballot:  entry.Ballot,
		Seq:     entry.Seq,
		Type:    wire.Commit,
		CmdType: uint8(entry.Type),
		Key:     entry.Key,
		Data:    entry.Data,
	})
}

// Stats is a point-in-time snapshot used by Health and by tests that want
// to assert table occupancy without reaching into engine internals
// (SPEC_FULL.md §12.3).
type Stats struct {
	InFlight    int
	LocalBallot uint32
}

// Stats returns a snapshot of the engine's current state.
func (e *Engine) Stats() Stats {
	e.mu.Lock()
	defer e.mu.Unlock()
	return Stats{
		InFlight:    e.table.Len(),
		LocalBallot: e.localBallot.Load(),
	}
}
