package main

import (
	"bytes"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xycloo/zephyr-go/types"
)

const tokenFixture = `
name: token
genesis:
  sequence: 1
  timestamp: 1000
  entries:
    - key: balance
      u64: 100
transitions:
  - invocation: 7
    timestamp: 1010
    ops:
      - key: balance
        u64: 90
      - key: owner
        string: bob
`

// exports on_close, which returns immediately
var noopModule = []byte{
	0x00, 0x61, 0x73, 0x6d, 0x01, 0x00, 0x00, 0x00,
	0x01, 0x04, 0x01, 0x60, 0x00, 0x00,
	0x03, 0x02, 0x01, 0x00,
	0x07, 0x0c, 0x01, 0x08, 'o', 'n', '_', 'c', 'l', 'o', 's', 'e', 0x00, 0x00,
	0x0a, 0x04, 0x01, 0x02, 0x00, 0x0b,
}

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	cmd := newRootCmd()
	cmd.SetOut(&out)
	cmd.SetErr(io.Discard)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func TestSeedAndQuery(t *testing.T) {
	dir := t.TempDir()
	fixturePath := filepath.Join(dir, "token.yaml")
	require.NoError(t, os.WriteFile(fixturePath, []byte(tokenFixture), 0o644))
	db := []string{"--store", "sqlite", "--path", filepath.Join(dir, "ledger.db")}

	out, err := execute(t, append(db, "seed", "-f", fixturePath)...)
	require.NoError(t, err)
	assert.Contains(t, out, "sequence 1: 1 changes")
	assert.Contains(t, out, "sequence 2: 2 changes")

	out, err = execute(t, append(db, "get", "balance")...)
	require.NoError(t, err)
	assert.Equal(t, "0x5a00000000000000\n", out)

	out, err = execute(t, append(db, "get", "balance", "--at", "1")...)
	require.NoError(t, err)
	assert.Equal(t, "0x6400000000000000\n", out)

	_, err = execute(t, append(db, "get", "missing")...)
	assert.ErrorContains(t, err, "not found")

	out, err = execute(t, append(db, "history", "--from", "2")...)
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(out), "\n")
	require.Len(t, lines, 2)
	assert.Contains(t, lines[0], "Updated\tbalance")
	assert.Contains(t, lines[1], "Created\towner")

	out, err = execute(t, append(db, "history", "--prefix", "own")...)
	require.NoError(t, err)
	assert.Equal(t, 1, strings.Count(out, "\n"))

	_, err = execute(t, append(db, "history", "--from", "3", "--to", "2")...)
	assert.Error(t, err)

	out, err = execute(t, append(db, "ops", "2")...)
	require.NoError(t, err)
	assert.Contains(t, out, "0\twrite\tbalance")
	assert.Contains(t, out, "1\twrite\towner")
}

func TestRunAndInspect(t *testing.T) {
	dir := t.TempDir()
	modulePath := filepath.Join(dir, "noop.wasm")
	require.NoError(t, os.WriteFile(modulePath, noopModule, 0o644))

	out, err := execute(t, "run", modulePath, "--invocation", "3")
	require.NoError(t, err)
	assert.Contains(t, out, "invocation 3 committed")

	_, err = execute(t, "run", modulePath, "--entry", "missing")
	assert.ErrorContains(t, err, "entry point not exported")

	out, err = execute(t, "inspect", modulePath)
	require.NoError(t, err)
	assert.Contains(t, out, "on_close() -> ()")
}

func TestInvalidConfig(t *testing.T) {
	_, err := execute(t, "--store", "sqlite", "get", "k")
	assert.ErrorContains(t, err, "needs a path")

	_, err = execute(t, "--log-level", "loud", "get", "k")
	assert.Error(t, err)
}

func TestRenderChange(t *testing.T) {
	assert.Equal(t, "Removed", renderKind(types.ChangeRemoved))
	assert.Equal(t, "0x00ff", renderBytes([]byte{0x00, 0xff}))
	assert.Equal(t, "-", renderBytes(nil))

	line := renderChange(types.EntryChange{Sequence: 4, Timestamp: 9, Key: []byte("k"), Kind: types.ChangeRemoved})
	assert.Equal(t, "4\t9\tRemoved\tk\t-", line)
}
