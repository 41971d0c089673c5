package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaults(t *testing.T) {
	cfg := Default()
	assert.Equal(t, "0.0.0.0:8000", cfg.Server.Addr())
	assert.Equal(t, int64(42), cfg.Engine.Seed)
	assert.InDelta(t, 0.7, cfg.Engine.DefaultThreshold, 1e-9)
	assert.True(t, cfg.Engine.CacheEnabled)
}

func TestLoadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
server:
  port: 9001
engine:
  seed: 7
  default_threshold: 0.5
  compute_timeout: 30s
`), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 9001, cfg.Server.Port)
	assert.Equal(t, int64(7), cfg.Engine.Seed)
	assert.InDelta(t, 0.5, cfg.Engine.DefaultThreshold, 1e-9)
	assert.Equal(t, 30*time.Second, cfg.Engine.ComputeTimeout)
	// Untouched values keep defaults.
	assert.Equal(t, 1000, cfg.Engine.DefaultMaxEdges)
}

func TestEnvOverridesFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("server:\n  port: 9001\n"), 0o644))

	t.Setenv("PAPERGRAPH_PORT", "9002")
	t.Setenv("PAPERGRAPH_SEED", "99")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 9002, cfg.Server.Port)
	assert.Equal(t, int64(99), cfg.Engine.Seed)
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load("/does/not/exist.yaml")
	assert.Error(t, err)
}

func TestLoadEmptyPathUsesDefaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, 8000, cfg.Server.Port)
}
