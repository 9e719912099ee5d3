package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefault(t *testing.T) {
	cfg := Default()

	assert.True(t, cfg.IsSpawnable("shell"))
	assert.True(t, cfg.IsSpawnable("SHELL"))
	assert.False(t, cfg.IsSpawnable("python"))
	assert.Equal(t, int64(defaultMaxFetchBytes), cfg.MaxFetchBytes)
	assert.Equal(t, defaultRecursionLimit, cfg.RecursionLimit)
}

func TestLoadFromPathNoFile(t *testing.T) {
	dir := t.TempDir()

	cfg, err := LoadFromPath(dir)
	require.NoError(t, err)
	assert.Equal(t, int64(defaultMaxFetchBytes), cfg.MaxFetchBytes)
}

func TestLoadFromPathWithFile(t *testing.T) {
	dir := t.TempDir()
	content := []byte(`
max_fetch_bytes: 2048
recursion_limit: 3
spawnable_languages:
  - python
  - shell
`)
	require.NoError(t, os.WriteFile(filepath.Join(dir, ConfigFileName), content, 0o644))

	cfg, err := LoadFromPath(dir)
	require.NoError(t, err)
	assert.Equal(t, int64(2048), cfg.MaxFetchBytes)
	assert.Equal(t, 3, cfg.RecursionLimit)
	assert.True(t, cfg.IsSpawnable("python"))
	assert.True(t, cfg.IsSpawnable("shell"))
}

func TestLoadFromPathWalksUp(t *testing.T) {
	root := t.TempDir()
	content := []byte("recursion_limit: 5\n")
	require.NoError(t, os.WriteFile(filepath.Join(root, ConfigFileName), content, 0o644))

	sub := filepath.Join(root, "a", "b")
	require.NoError(t, os.MkdirAll(sub, 0o755))

	cfg, err := LoadFromPath(sub)
	require.NoError(t, err)
	assert.Equal(t, 5, cfg.RecursionLimit)
	assert.Equal(t, root, cfg.ProjectRoot)
}

func TestLoadFromPathInvalidDuration(t *testing.T) {
	dir := t.TempDir()
	content := []byte("fetch_timeout: not-a-duration\n")
	require.NoError(t, os.WriteFile(filepath.Join(dir, ConfigFileName), content, 0o644))

	_, err := LoadFromPath(dir)
	require.Error(t, err)
}
