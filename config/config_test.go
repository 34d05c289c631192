// Copyright (C) 2025-2026, ShardKV Authors. All rights reserved.
// See the file LICENSE for licensing terms.

package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, contents string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "kepaxosd.yaml")
	require.NoError(t, os.WriteFile(path, []byte(contents), 0o600))
	return path
}

func TestLoadValidConfig(t *testing.T) {
	path := writeConfig(t, `
my_index: 1
peers:
  - 127.0.0.1:9001
  - 127.0.0.1:9002
  - 127.0.0.1:9003
db_dsn: postgres://localhost/kepaxos
`)

	cfg, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, uint8(1), cfg.MyIndex)
	require.Len(t, cfg.Peers, 3)
	require.Equal(t, "postgres://localhost/kepaxos", cfg.DBDSN)
	require.Equal(t, 0, cfg.FastPathQuorum)
}

func TestLoadRejectsMyIndexOutOfRange(t *testing.T) {
	path := writeConfig(t, `
my_index: 5
peers: [127.0.0.1:9001]
db_dsn: postgres://localhost/kepaxos
`)

	_, err := Load(path)
	require.Error(t, err)
}

func TestLoadRejectsMissingDSN(t *testing.T) {
	path := writeConfig(t, `
my_index: 0
peers: [127.0.0.1:9001]
`)

	_, err := Load(path)
	require.Error(t, err)
}

func TestLoadRejectsMissingFile(t *testing.T) {
	_, err := Load("/nonexistent/kepaxosd.yaml")
	require.Error(t, err)
}
