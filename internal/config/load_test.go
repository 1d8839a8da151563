package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const mebibyte = 1 << 20

func writeTestConfig(t *testing.T, content string) string {
	t.Helper()

	path := filepath.Join(t.TempDir(), "config.toml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

	return path
}

func TestLoad_ValidFullConfig(t *testing.T) {
	path := writeTestConfig(t, `
[sync]
local_dir = "/srv/outbox"
remote_root = "/Backup/outbox"
drive_id = "b!abc"
initial_scan = true
debounce = "1s"
ignore = ["*.log", "build/"]

[transfers]
max_concurrency = 5
chunk_size = "10MiB"

[auth]
client_id = "00000000-0000-0000-0000-000000000001"
token_file = "/etc/push/token.json"

[logging]
log_level = "debug"
log_format = "json"

[network]
connect_timeout = "5s"
metadata_timeout = "30s"
user_agent = "push-test/1.0"

[feed]
listen = "127.0.0.1:8765"

[journal]
path = "/var/lib/push/journal.db"
retention = 500
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "/srv/outbox", cfg.Sync.LocalDir)
	assert.Equal(t, "/Backup/outbox", cfg.Sync.RemoteRoot)
	assert.Equal(t, "b!abc", cfg.Sync.DriveID)
	assert.True(t, cfg.Sync.InitialScan)
	assert.Equal(t, []string{"*.log", "build/"}, cfg.Sync.Ignore)
	assert.Equal(t, time.Second, cfg.DebounceDuration())

	assert.Equal(t, 5, cfg.Transfers.MaxConcurrency)
	assert.Equal(t, int64(10*mebibyte), cfg.ChunkBytes())

	assert.Equal(t, "00000000-0000-0000-0000-000000000001", cfg.Auth.ClientID)
	assert.Equal(t, "/etc/push/token.json", cfg.TokenPath())

	assert.Equal(t, "debug", cfg.Logging.LogLevel)
	assert.Equal(t, "json", cfg.Logging.LogFormat)

	assert.Equal(t, 5*time.Second, cfg.ConnectTimeoutDuration())
	assert.Equal(t, 30*time.Second, cfg.MetadataTimeoutDuration())
	assert.Equal(t, "push-test/1.0", cfg.Network.UserAgent)

	assert.Equal(t, "127.0.0.1:8765", cfg.Feed.Listen)
	assert.Equal(t, "/var/lib/push/journal.db", cfg.JournalPath())
	assert.Equal(t, 500, cfg.Journal.Retention)
}

func TestLoad_PartialKeepsDefaults(t *testing.T) {
	path := writeTestConfig(t, "[transfers]\nmax_concurrency = 8\n")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 8, cfg.Transfers.MaxConcurrency)
	assert.Equal(t, defaultChunkSize, cfg.Transfers.ChunkSize)
	assert.Equal(t, defaultDebounce, cfg.Sync.Debounce)
	assert.Equal(t, defaultRemoteRoot, cfg.Sync.RemoteRoot)
}

func TestLoad_InvalidTOML(t *testing.T) {
	path := writeTestConfig(t, "[sync\nlocal_dir = ")

	_, err := Load(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "parsing config file")
}

func TestLoad_ValidationFailure(t *testing.T) {
	path := writeTestConfig(t, "[transfers]\nmax_concurrency = 0\nchunk_size = \"100KiB\"\n")

	_, err := Load(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "max_concurrency")
	assert.Contains(t, err.Error(), "chunk_size")
}

func TestLoadOrDefault_MissingFile(t *testing.T) {
	cfg, err := LoadOrDefault(filepath.Join(t.TempDir(), "missing.toml"))
	require.NoError(t, err)
	assert.Equal(t, DefaultConfig(), cfg)
}

func TestResolve_Precedence(t *testing.T) {
	path := writeTestConfig(t, "[sync]\nlocal_dir = \"/from/file\"\n\n[logging]\nlog_level = \"warn\"\n")

	// File only.
	cfg, err := Resolve(EnvOverrides{ConfigPath: path}, CLIOverrides{})
	require.NoError(t, err)
	assert.Equal(t, "/from/file", cfg.Sync.LocalDir)
	assert.Equal(t, "warn", cfg.Logging.LogLevel)

	// Env beats file.
	cfg, err = Resolve(EnvOverrides{ConfigPath: path, LocalDir: "/from/env", LogLevel: "error"}, CLIOverrides{})
	require.NoError(t, err)
	assert.Equal(t, "/from/env", cfg.Sync.LocalDir)
	assert.Equal(t, "error", cfg.Logging.LogLevel)

	// CLI beats env.
	dir, level := "/from/cli", "debug"
	cfg, err = Resolve(
		EnvOverrides{ConfigPath: "/nonexistent/config.toml", LocalDir: "/from/env"},
		CLIOverrides{ConfigPath: path, LocalDir: &dir, LogLevel: &level},
	)
	require.NoError(t, err)
	assert.Equal(t, "/from/cli", cfg.Sync.LocalDir)
	assert.Equal(t, "debug", cfg.Logging.LogLevel)
}

func TestResolve_ExpandsTilde(t *testing.T) {
	t.Setenv("HOME", "/home/testuser")

	dir := "~/outbox"
	cfg, err := Resolve(EnvOverrides{ConfigPath: filepath.Join(t.TempDir(), "none.toml")}, CLIOverrides{LocalDir: &dir})
	require.NoError(t, err)
	assert.Equal(t, "/home/testuser/outbox", cfg.Sync.LocalDir)
}

func TestResolve_RejectsRelativeDir(t *testing.T) {
	dir := "relative/dir"
	_, err := Resolve(EnvOverrides{ConfigPath: filepath.Join(t.TempDir(), "none.toml")}, CLIOverrides{LocalDir: &dir})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "must be absolute")
}

func TestResolve_InvalidEnvLevel(t *testing.T) {
	_, err := Resolve(EnvOverrides{ConfigPath: filepath.Join(t.TempDir(), "none.toml"), LogLevel: "loud"}, CLIOverrides{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "log_level")
}
