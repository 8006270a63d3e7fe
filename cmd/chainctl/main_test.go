package main

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func runCmd(t *testing.T, dir string, args ...string) (string, string, int) {
	t.Helper()
	var stdout, stderr bytes.Buffer
	full := append([]string{"--data-dir", dir}, args...)
	code := run(full, &stdout, &stderr)
	return stdout.String(), stderr.String(), code
}

func TestRun_OperationsPersistAcrossInvocations(t *testing.T) {
	dir := t.TempDir()

	_, stderr, code := runCmd(t, dir, "put", "a", "1")
	require.Equal(t, 0, code, stderr)
	_, stderr, code = runCmd(t, dir, "putifabsent", "a", "2")
	require.Equal(t, 0, code, stderr)
	_, stderr, code = runCmd(t, dir, "cas", "a", "1", "3")
	require.Equal(t, 0, code, stderr)
	_, stderr, code = runCmd(t, dir, "put", "b", "x")
	require.Equal(t, 0, code, stderr)
	_, stderr, code = runCmd(t, dir, "cremove", "b", "y")
	require.Equal(t, 0, code, stderr)

	out, stderr, code := runCmd(t, dir, "get", "a")
	require.Equal(t, 0, code, stderr)
	assert.Equal(t, "3\n", out)

	out, _, code = runCmd(t, dir, "get", "b")
	require.Equal(t, 0, code)
	assert.Equal(t, "x\n", out)

	out, _, code = runCmd(t, dir, "keys")
	require.Equal(t, 0, code)
	assert.Equal(t, "a\nb\n", out)

	out, _, code = runCmd(t, dir, "dump")
	require.Equal(t, 0, code)
	assert.Equal(t, "a\t3\nb\tx\n", out)
}

func TestRun_GetMissingKeyFails(t *testing.T) {
	dir := t.TempDir()
	_, _, code := runCmd(t, dir, "put", "a", "1")
	require.Equal(t, 0, code)
	_, _, code = runCmd(t, dir, "remove", "a")
	require.Equal(t, 0, code)

	_, stderr, code := runCmd(t, dir, "get", "a")
	assert.Equal(t, 1, code)
	assert.Contains(t, stderr, "has no entry")
}

func TestRun_CompactWithCheckpoint(t *testing.T) {
	dir := t.TempDir()
	for _, v := range []string{"1", "2", "3"} {
		_, stderr, code := runCmd(t, dir, "put", "k", v)
		require.Equal(t, 0, code, stderr)
	}

	out, stderr, code := runCmd(t, dir, "--checkpoint", "compact")
	require.Equal(t, 0, code, stderr)
	assert.Equal(t, "compacted 1 chain(s)\n", out)

	out, _, code = runCmd(t, dir, "stats")
	require.Equal(t, 0, code)
	assert.Contains(t, out, "chains\t1\n")
	assert.Contains(t, out, "chain_length_max\t1\n")

	out, _, code = runCmd(t, dir, "get", "k")
	require.Equal(t, 0, code)
	assert.Equal(t, "3\n", out)
}

func TestRun_UsageErrors(t *testing.T) {
	dir := t.TempDir()

	_, stderr, code := runCmd(t, dir, "bogus")
	assert.Equal(t, 2, code)
	assert.Contains(t, stderr, "unknown command")
	assert.Contains(t, stderr, "usage: chainctl")

	_, stderr, code = runCmd(t, dir, "put", "only-key")
	assert.Equal(t, 2, code)
	assert.Contains(t, stderr, "put takes 2 argument(s)")

	var stdout, errOut bytes.Buffer
	assert.Equal(t, 2, run(nil, &stdout, &errOut))
	assert.True(t, strings.HasPrefix(errOut.String(), "usage:"))
}

func TestRun_ConfigFile(t *testing.T) {
	dir := t.TempDir()
	cfgPath := filepath.Join(dir, "chain.yaml")
	cfg := "chain:\n  data_dir: " + filepath.Join(dir, "data") + "\nwal:\n  compression: zstd\nlogging:\n  output: none\n"
	require.NoError(t, os.WriteFile(cfgPath, []byte(cfg), 0o644))

	var stdout, stderr bytes.Buffer
	require.Equal(t, 0, run([]string{"--config", cfgPath, "put", "a", "z"}, &stdout, &stderr), stderr.String())

	stdout.Reset()
	require.Equal(t, 0, run([]string{"--config", cfgPath, "get", "a"}, &stdout, &stderr), stderr.String())
	assert.Equal(t, "z\n", stdout.String())

	_, err := os.Stat(filepath.Join(dir, "data", "LOCK"))
	assert.NoError(t, err)
}

func TestRun_InvalidCompression(t *testing.T) {
	_, stderr, code := runCmd(t, t.TempDir(), "--compression", "brotli", "keys")
	assert.Equal(t, 1, code)
	assert.Contains(t, stderr, "compression")
}
