package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadFromEnv(t *testing.T) {
	t.Setenv("DATABASE_URL", "postgres://dc:dc@localhost:5432/drivecast")
	t.Setenv("REDIS_URL", "redis://localhost:6379/0")
	t.Setenv("SERVER_PORT", "9090")
	t.Setenv("DRIVE_API_URL", "https://drive.example")
	t.Setenv("DRIVE_API_KEY", "drive-key")
	t.Setenv("PUBLISH_API_URL", "https://social.example")
	t.Setenv("PUBLISH_API_KEY", "social-key")
	t.Setenv("HTTP_TIMEOUT", "5s")
	t.Setenv("SCHEDULE_POLL_INTERVAL", "30s")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "postgres://dc:dc@localhost:5432/drivecast", cfg.DatabaseURL)
	assert.Equal(t, "redis://localhost:6379/0", cfg.RedisURL)
	assert.Equal(t, "9090", cfg.ServerPort)
	assert.Equal(t, "https://drive.example", cfg.DriveAPIURL)
	assert.Equal(t, "drive-key", cfg.DriveAPIKey)
	assert.Equal(t, "https://social.example", cfg.PublishAPIURL)
	assert.Equal(t, "social-key", cfg.PublishAPIKey)
	assert.Equal(t, 5*time.Second, cfg.Timeout)
	assert.Equal(t, 30*time.Second, cfg.SchedulePoll)
}

func TestLoadDefaults(t *testing.T) {
	t.Setenv("DATABASE_URL", "postgres://localhost/drivecast")
	t.Setenv("SERVER_PORT", "")
	t.Setenv("REDIS_URL", "")
	t.Setenv("HTTP_TIMEOUT", "")
	t.Setenv("SCHEDULE_POLL_INTERVAL", "")
	t.Setenv("DRIVE_USER_AGENT", "")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "8080", cfg.ServerPort)
	assert.Equal(t, "DriveCast/1.0", cfg.UserAgent)
	assert.Equal(t, 30*time.Second, cfg.Timeout)
	assert.Equal(t, time.Minute, cfg.SchedulePoll)
	assert.Empty(t, cfg.RedisURL)
}

func TestLoadMissingDatabaseURL(t *testing.T) {
	t.Setenv("DATABASE_URL", "")
	// Run from an empty dir so no stray .env file can supply the DSN.
	t.Chdir(t.TempDir())

	_, err := Load()
	assert.ErrorIs(t, err, ErrMissingDatabaseURL)
}

func TestLoadFromFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	content := `database_url: postgres://localhost/drivecast
redis_url: redis://localhost:6379
server_port: "3000"
drive_api_url: https://drive.example
timeout: 10s
schedule_poll: 2m
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	cfg, err := LoadFromFile(path)
	require.NoError(t, err)

	assert.Equal(t, "postgres://localhost/drivecast", cfg.DatabaseURL)
	assert.Equal(t, "redis://localhost:6379", cfg.RedisURL)
	assert.Equal(t, "3000", cfg.ServerPort)
	assert.Equal(t, "https://drive.example", cfg.DriveAPIURL)
	assert.Equal(t, 10*time.Second, cfg.Timeout)
	assert.Equal(t, 2*time.Minute, cfg.SchedulePoll)
	// Unset fields still pick up defaults.
	assert.Equal(t, "DriveCast/1.0", cfg.UserAgent)
}

func TestLoadFromFileMissingDatabaseURL(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("server_port: \"3000\"\n"), 0o644))

	_, err := LoadFromFile(path)
	assert.ErrorIs(t, err, ErrMissingDatabaseURL)
}

func TestLoadFromFileNotFound(t *testing.T) {
	_, err := LoadFromFile(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}
