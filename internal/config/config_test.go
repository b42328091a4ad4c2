package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, ":8080", cfg.HTTP.Addr)
	assert.Equal(t, 0.95, cfg.Decision.ConfidenceThreshold)
	assert.Equal(t, 2*time.Hour, cfg.Decision.TimedLimit)
	assert.False(t, cfg.Auth.Enabled)
}

func TestLoadFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	data := []byte(`
http:
  addr: ":9090"
decision:
  confidence_threshold: 0.8
  timed_limit: 30m
auth:
  enabled: true
  secret: test-secret
`)
	require.NoError(t, os.WriteFile(path, data, 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, ":9090", cfg.HTTP.Addr)
	assert.Equal(t, 0.8, cfg.Decision.ConfidenceThreshold)
	assert.Equal(t, 30*time.Minute, cfg.Decision.TimedLimit)
	assert.True(t, cfg.Auth.Enabled)
}

func TestLoadRejectsAuthWithoutSecret(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("auth:\n  enabled: true\n"), 0o644))

	_, err := Load(path)
	assert.Error(t, err)
}

func TestLoadRejectsBadThreshold(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("decision:\n  confidence_threshold: 1.5\n"), 0o644))

	_, err := Load(path)
	assert.Error(t, err)
}
