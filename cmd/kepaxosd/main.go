// Copyright (C) 2025-2026, ShardKV Authors. All rights reserved.
// See the file LICENSE for licensing terms.

// Command kepaxosd runs one replica of a key-level Egalitarian-Paxos
// cache shard (spec.md §2). It reads an operator's YAML config, opens a
// durable log, listens for peer connections, and drives a line-oriented
// stdin command loop (`set key value`, `del key`, `evict key`) through
// the protocol engine.
package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/shardkv/kepaxos/command"
	"github.com/shardkv/kepaxos/config"
	"github.com/shardkv/kepaxos/engine"
	"github.com/shardkv/kepaxos/metrics"
	"github.com/shardkv/kepaxos/store"
)

func main() {
	configPath := flag.String("config", "", "path to a kepaxosd YAML config file")
	listenAddr := flag.String("listen", "", "override the listen address (defaults to peers[my_index])")
	metricsAddr := flag.String("metrics-addr", "", "address to serve Prometheus metrics on; empty disables it")
	memStore := flag.Bool("mem-store", false, "use an in-memory log instead of Postgres (local testing only)")
	flag.Parse()

	if *configPath == "" {
		fmt.Fprintln(os.Stderr, "kepaxosd: -config is required")
		os.Exit(1)
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	var log store.Store
	if *memStore {
		log = store.NewMemStore()
	} else {
		log, err = store.Open(ctx, cfg.DBDSN)
		if err != nil {
			slog.Error("failed to open durable log", "error", err)
			os.Exit(1)
		}
	}

	reg := prometheus.NewRegistry()
	m := metrics.New(reg)

	c := newCache()
	waiters := newRecoveryWaiters(c)
	transport := newTCPTransport(cfg.MyIndex, cfg.Peers, waiters)
	rec := newRecoverer(transport, waiters, c)

	eng, err := engine.New(engine.Config{
		MyIndex:   cfg.MyIndex,
		Peers:     cfg.Peers,
		Store:     log,
		Sender:    transport,
		Committer: c,
		Recoverer: rec,
		Metrics:   m,
	})
	if err != nil {
		slog.Error("failed to construct engine", "error", err)
		os.Exit(1)
	}
	transport.setEngine(eng)

	addr := *listenAddr
	if addr == "" {
		addr = cfg.Peers[cfg.MyIndex]
	}
	go func() {
		if err := transport.Listen(ctx, addr); err != nil {
			slog.Error("transport listener exited", "error", err)
		}
	}()

	if *metricsAddr != "" {
		go serveMetrics(*metricsAddr, reg)
	}

	slog.Info("kepaxosd started", "my_index", cfg.MyIndex, "listen", addr, "peers", len(cfg.Peers))

	runREPL(ctx, eng)
}

func serveMetrics(addr string, reg *prometheus.Registry) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	if err := http.ListenAndServe(addr, mux); err != nil {
		slog.Warn("metrics server exited", "error", err)
	}
}

// runREPL reads line-oriented commands from stdin until ctx is canceled
// or stdin closes: "set key value", "del key", "evict key".
func runREPL(ctx context.Context, eng *engine.Engine) {
	scanner := bufio.NewScanner(os.Stdin)
	for scanner.Scan() {
		if ctx.Err() != nil {
			return
		}
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}

		fields := strings.SplitN(line, " ", 3)
		op := strings.ToLower(fields[0])

		var cmdType command.Type
		var key, data []byte
		switch op {
		case "set":
			if len(fields) != 3 {
				fmt.Fprintln(os.Stderr, "usage: set key value")
				continue
			}
			cmdType, key, data = command.Set, []byte(fields[1]), []byte(fields[2])
		case "del", "delete":
			if len(fields) < 2 {
				fmt.Fprintln(os.Stderr, "usage: del key")
				continue
			}
			cmdType, key = command.Delete, []byte(fields[1])
		case "evict":
			if len(fields) < 2 {
				fmt.Fprintln(os.Stderr, "usage: evict key")
				continue
			}
			cmdType, key = command.Evict, []byte(fields[1])
		default:
			fmt.Fprintf(os.Stderr, "unknown command %q\n", op)
			continue
		}

		if err := eng.RunCommand(ctx, -1, cmdType, key, data); err != nil {
			fmt.Fprintf(os.Stderr, "run_command failed: %v\n", err)
		}
	}
}
