package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)

	require.Equal(t, 7474, cfg.Server.Port)
	require.Equal(t, "sqlite", cfg.Storage.Engine)
	require.Equal(t, "ollama", cfg.Embedding.Provider)
	require.Equal(t, 0.15, cfg.Routing.Threshold)
	require.Equal(t, 7*24*time.Hour, cfg.Trails.FadingAfter.Std())
	require.Equal(t, 0.5, cfg.Trails.ArchivedMultiplier)
	require.Equal(t, "memory", cfg.Cache.Backend)
	require.Equal(t, 24*time.Hour, cfg.Cache.CheckpointTTL.Std())
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("BOSWELL_PORT", "9000")
	t.Setenv("BOSWELL_STORAGE_ENGINE", "postgres")
	t.Setenv("BOSWELL_POSTGRES_DSN", "postgres://localhost/boswell")
	t.Setenv("BOSWELL_ROUTING_THRESHOLD", "0.3")
	t.Setenv("BOSWELL_TRAIL_FADING_AFTER", "48h")
	t.Setenv("BOSWELL_TENANTS", "tenant-a, tenant-b,")

	cfg, err := Load()
	require.NoError(t, err)

	require.Equal(t, 9000, cfg.Server.Port)
	require.Equal(t, "postgres", cfg.Storage.Engine)
	require.Equal(t, "postgres://localhost/boswell", cfg.Storage.PostgresDSN)
	require.Equal(t, 0.3, cfg.Routing.Threshold)
	require.Equal(t, 48*time.Hour, cfg.Trails.FadingAfter.Std())
	require.Equal(t, []string{"tenant-a", "tenant-b"}, cfg.Nightly.Tenants)
}

func TestInvalidEnvFallsBackToDefault(t *testing.T) {
	t.Setenv("BOSWELL_PORT", "not-a-number")
	t.Setenv("BOSWELL_TRAIL_FADING_AFTER", "soon")

	cfg, err := Load()
	require.NoError(t, err)
	require.Equal(t, 7474, cfg.Server.Port)
	require.Equal(t, 7*24*time.Hour, cfg.Trails.FadingAfter.Std())
}

func TestYAMLOverlay(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "boswell.yaml")
	err := os.WriteFile(path, []byte(`
server:
  port: 8123
trails:
  fading_after: 24h
  fading_multiplier: 0.8
`), 0o644)
	require.NoError(t, err)
	t.Setenv("BOSWELL_CONFIG", path)

	cfg, err := Load()
	require.NoError(t, err)
	require.Equal(t, 8123, cfg.Server.Port)
	require.Equal(t, 24*time.Hour, cfg.Trails.FadingAfter.Std())
	require.Equal(t, 0.8, cfg.Trails.FadingMultiplier)
	// Untouched values keep their defaults.
	require.Equal(t, "sqlite", cfg.Storage.Engine)
}

func TestEnvWinsOverYAML(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "boswell.yaml")
	require.NoError(t, os.WriteFile(path, []byte("server:\n  port: 8123\n"), 0o644))
	t.Setenv("BOSWELL_CONFIG", path)
	t.Setenv("BOSWELL_PORT", "9999")

	cfg, err := Load()
	require.NoError(t, err)
	require.Equal(t, 9999, cfg.Server.Port)
}

func TestExplicitConfigFileMustExist(t *testing.T) {
	t.Setenv("BOSWELL_CONFIG", filepath.Join(t.TempDir(), "missing.yaml"))

	_, err := Load()
	require.Error(t, err)
}
