// Copyright (C) 2025-2026, ShardKV Authors. All rights reserved.
// See the file LICENSE for licensing terms.

// Package store implements the durable per-key map from key to (ballot,
// seq) described in spec.md §4.2/§6, backed by PostgreSQL via pgx —
// adapted from postgres-postgres/oltp_clients/storage/postgres.go's
// pgxpool usage.
package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"
)

// ErrNotFound names the "key never recorded" condition. No function in
// this package returns it: MaxSeq reports an absent key as seq 0
// (spec.md §4.2), so "never recorded" and "recorded at seq 0" are not
// distinguished.
var ErrNotFound = errors.New("store: key not recorded")

// Store is the durable key log contract engine.Engine depends on.
type Store interface {
	// MaxSeq returns the largest seq previously recorded for key, or 0
	// if none.
	MaxSeq(ctx context.Context, key []byte) (uint32, error)
	// Record atomically upserts (ballot, seq) for key. Later calls
	// overwrite earlier ones (last-writer-wins on the (keyhash1,
	// keyhash2) primary key).
	Record(ctx context.Context, key []byte, ballot uint32, seq uint32) error
	// Close releases the store's resources.
	Close()
}

// PGStore is a Store backed by a single PostgreSQL table.
type PGStore struct {
	pool *pgxpool.Pool
}

const schema = `
CREATE TABLE IF NOT EXISTS kepaxos_log (
	ballot   BIGINT NOT NULL,
	keyhash1 BIGINT NOT NULL,
	keyhash2 BIGINT NOT NULL,
	seq      BIGINT NOT NULL,
	PRIMARY KEY (keyhash1, keyhash2)
)`

// Open connects to dsn and ensures the log table exists.
func Open(ctx context.Context, dsn string) (*PGStore, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("store: parse dsn: %w", err)
	}

	pool, err := pgxpool.ConnectConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("store: connect: %w", err)
	}

	if _, err := pool.Exec(ctx, schema); err != nil {
		pool.Close()
		return nil, fmt.Errorf("store: create schema: %w", err)
	}

	return &PGStore{pool: pool}, nil
}

// MaxSeq implements Store.
func (s *PGStore) MaxSeq(ctx context.Context, key []byte) (uint32, error) {
	h1, h2 := keyHashes(key)

	var seq int64
	err := s.pool.QueryRow(ctx,
		`SELECT seq FROM kepaxos_log WHERE keyhash1 = $1 AND keyhash2 = $2`,
		h1, h2,
	).Scan(&seq)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("store: max_seq: %w", err)
	}
	return uint32(seq), nil
}

// Record implements Store. The upsert runs as a single statement, so the
// recorded seq is durable once this returns. A crash between host.commit()
// and this call leaves that seq unrecorded, which is why the host's commit
// must be idempotent (see engine.Committer).
func (s *PGStore) Record(ctx context.Context, key []byte, ballotVal uint32, seq uint32) error {
	h1, h2 := keyHashes(key)

	_, err := s.pool.Exec(ctx, `
		INSERT INTO kepaxos_log (ballot, keyhash1, keyhash2, seq)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (keyhash1, keyhash2)
		DO UPDATE SET ballot = excluded.ballot, seq = excluded.seq
	`, int64(ballotVal), h1, h2, int64(seq))
	if err != nil {
		return fmt.Errorf("store: record: %w", err)
	}
	return nil
}

// Close implements Store.
func (s *PGStore) Close() {
	s.pool.Close()
}
