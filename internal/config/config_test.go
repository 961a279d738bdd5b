package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadConfigMissingFile(t *testing.T) {
	cfg, err := LoadConfig(filepath.Join(t.TempDir(), "nope.yaml"))
	require.NoError(t, err)

	assert.Equal(t, DefaultSync(), cfg.Sync)
	assert.Equal(t, "info", cfg.Log.Level)
	assert.Equal(t, ":8484", cfg.Relay.Addr)
	assert.Empty(t, cfg.Remote.URL)
}

func TestLoadConfigFromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	content := `
database:
  path: /tmp/boards.db
sync:
  debounce: 500ms
  throttle: 0s
user:
  id: u1
  email: ann@example.com
  name: Ann
remote:
  url: http://localhost:8484
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	cfg, err := LoadConfig(path)
	require.NoError(t, err)

	assert.Equal(t, "/tmp/boards.db", cfg.Database.Path)
	assert.Equal(t, 500*time.Millisecond, cfg.Sync.Debounce)
	assert.Equal(t, 5*time.Second, cfg.Sync.Throttle, "non-positive falls back to default")
	assert.Equal(t, 50*time.Millisecond, cfg.Sync.PriorityDelay)
	assert.Equal(t, "ann@example.com", cfg.User.Email)
	assert.Equal(t, "http://localhost:8484", cfg.Remote.URL)
}

func TestLoadConfigInvalidYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("sync: [unclosed"), 0o644))

	_, err := LoadConfig(path)
	assert.Error(t, err)
}

func TestLoadConfigEnvOverride(t *testing.T) {
	t.Setenv("KANBAN_USER_EMAIL", "env@example.com")

	cfg, err := LoadConfig(filepath.Join(t.TempDir(), "nope.yaml"))
	require.NoError(t, err)
	assert.Equal(t, "env@example.com", cfg.User.Email)
}

func TestSaveConfigRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "config.yaml")
	cfg := Default()
	cfg.User = UserConfig{ID: "u1", Email: "ann@example.com", Name: "Ann"}
	cfg.Sync.Debounce = 750 * time.Millisecond

	require.NoError(t, SaveConfig(path, cfg))

	loaded, err := LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, cfg.User, loaded.User)
	assert.Equal(t, 750*time.Millisecond, loaded.Sync.Debounce)
	assert.Equal(t, cfg.Database.Path, loaded.Database.Path)
}
