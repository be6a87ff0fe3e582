package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadFromFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.json")
	require.NoError(t, os.WriteFile(path, []byte(`{
		"server": {"port": "9090"},
		"database": {"path": "/tmp/watcher.db"},
		"smtp": {"host": "smtp.example.com", "from": "reports@example.com"},
		"scheduler": {"sweep_interval": "30s"}
	}`), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "9090", cfg.Server.Port)
	assert.Equal(t, "/tmp/watcher.db", cfg.Database.Path)
	assert.Equal(t, "smtp.example.com", cfg.SMTP.Host)
	// defaults fill the gaps
	assert.Equal(t, 587, cfg.SMTP.Port)
	assert.Equal(t, 30*time.Second, cfg.SweepInterval())
}

func TestLoadFallsBackToEnv(t *testing.T) {
	t.Setenv("PORT", "7070")
	t.Setenv("SMTP_PORT", "2525")

	cfg, err := Load(filepath.Join(t.TempDir(), "missing.json"))
	require.NoError(t, err)

	assert.Equal(t, "7070", cfg.Server.Port)
	assert.Equal(t, 2525, cfg.SMTP.Port)
	assert.Equal(t, 60*time.Second, cfg.SweepInterval())
}

func TestLoadRejectsMalformedFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.json")
	require.NoError(t, os.WriteFile(path, []byte(`{not json`), 0o644))

	_, err := Load(path)
	assert.Error(t, err)
}

func TestSweepIntervalUnparsable(t *testing.T) {
	cfg := &Config{Scheduler: SchedulerConfig{SweepInterval: "soon"}}
	assert.Equal(t, 60*time.Second, cfg.SweepInterval())
}

func TestLoadPlatformCatalogFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "platforms.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`platforms:
  - id: google_ads
    display_name: Google Ads
  - id: meta_ads
    display_name: Meta Ads
`), 0o644))

	catalog, err := LoadPlatformCatalogFile(path)
	require.NoError(t, err)
	require.Len(t, catalog.Platforms, 2)

	assert.Equal(t, "Google Ads", catalog.DisplayName("google_ads"))
	assert.Equal(t, "snapchat_ads", catalog.DisplayName("snapchat_ads"))
}
