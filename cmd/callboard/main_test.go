package main

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func run(t *testing.T, args ...string) string {
	t.Helper()
	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&out)
	rootCmd.SetArgs(args)
	require.NoError(t, rootCmd.Execute())
	return out.String()
}

func TestVersionCommand(t *testing.T) {
	assert.Regexp(t, `^callboard version \d+\.\d+\.\d+`, run(t, "version"))
}

func TestStatusCommand(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "callboard.yaml")
	require.NoError(t, os.WriteFile(path, []byte("lines: 3\nlog:\n  level: error\n"), 0o644))

	out := run(t, "status", "--config", path)
	assert.Contains(t, out, "Swap lines 1 and 2")
	assert.Contains(t, out, "Recent calls:")
}

func TestLoadConfig_Overrides(t *testing.T) {
	require.NoError(t, statusCmd.ParseFlags([]string{"--lines", "4", "--log-level", "debug"}))

	cfg, err := loadConfig(statusCmd)
	require.NoError(t, err)
	assert.Equal(t, 4, cfg.Lines)
	assert.Equal(t, "debug", cfg.Log.Level)
}
