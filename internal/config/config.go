// Package config implements TOML configuration loading, validation, and
// platform-specific path resolution for onedrive-push. Values come from a
// four-layer override chain: defaults -> config file -> environment -> CLI
// flags.
package config

import (
	"os"
	"path/filepath"
	"strings"
	"time"
)

// Config is the top-level configuration structure parsed from a TOML file.
type Config struct {
	Sync      SyncConfig      `toml:"sync"`
	Transfers TransfersConfig `toml:"transfers"`
	Auth      AuthConfig      `toml:"auth"`
	Logging   LoggingConfig   `toml:"logging"`
	Network   NetworkConfig   `toml:"network"`
	Feed      FeedConfig      `toml:"feed"`
	Journal   JournalConfig   `toml:"journal"`
}

// SyncConfig selects what is mirrored and where it goes.
type SyncConfig struct {
	LocalDir    string   `toml:"local_dir"`
	RemoteRoot  string   `toml:"remote_root"`
	DriveID     string   `toml:"drive_id"` // empty = the signed-in user's drive
	InitialScan bool     `toml:"initial_scan"`
	Debounce    string   `toml:"debounce"`
	Ignore      []string `toml:"ignore"` // gitignore syntax
}

// TransfersConfig bounds concurrent work and sizes upload chunks. chunk_size
// must be a multiple of 320 KiB.
type TransfersConfig struct {
	MaxConcurrency int    `toml:"max_concurrency"`
	ChunkSize      string `toml:"chunk_size"`
}

// AuthConfig selects the OAuth application and where its token is kept.
type AuthConfig struct {
	ClientID  string `toml:"client_id"`
	TokenFile string `toml:"token_file"`
}

// LoggingConfig controls log level and handler format.
type LoggingConfig struct {
	LogLevel  string `toml:"log_level"`
	LogFormat string `toml:"log_format"`
}

// NetworkConfig controls HTTP client timeouts and the User-Agent header.
// metadata_timeout bounds non-upload Graph calls; chunk PUTs are bounded
// only by the caller's context.
type NetworkConfig struct {
	ConnectTimeout  string `toml:"connect_timeout"`
	MetadataTimeout string `toml:"metadata_timeout"`
	UserAgent       string `toml:"user_agent"`
}

// FeedConfig enables the websocket record feed. An empty listen address
// disables it.
type FeedConfig struct {
	Listen string `toml:"listen"`
}

// JournalConfig controls the local record journal.
type JournalConfig struct {
	Path      string `toml:"path"`
	Retention int    `toml:"retention"`
}

// CLIOverrides holds values from CLI flags. Pointer fields distinguish "not
// specified" (nil) from an explicit empty value.
type CLIOverrides struct {
	ConfigPath string  // --config flag (empty = use default)
	LocalDir   *string // positional directory of watch
	LogLevel   *string // --log-level flag
}

// ChunkBytes returns chunk_size in bytes. Call only on a validated config.
func (c *Config) ChunkBytes() int64 {
	n, err := ParseSize(c.Transfers.ChunkSize)
	if err != nil {
		return 0
	}

	return n
}

// DebounceDuration returns sync.debounce. Call only on a validated config.
func (c *Config) DebounceDuration() time.Duration {
	return mustDuration(c.Sync.Debounce)
}

// ConnectTimeoutDuration returns network.connect_timeout.
func (c *Config) ConnectTimeoutDuration() time.Duration {
	return mustDuration(c.Network.ConnectTimeout)
}

// MetadataTimeoutDuration returns network.metadata_timeout.
func (c *Config) MetadataTimeoutDuration() time.Duration {
	return mustDuration(c.Network.MetadataTimeout)
}

// TokenPath returns the token file, defaulting into the data directory.
func (c *Config) TokenPath() string {
	if c.Auth.TokenFile != "" {
		return expandTilde(c.Auth.TokenFile)
	}

	dir := DefaultDataDir()
	if dir == "" {
		return ""
	}

	return filepath.Join(dir, tokenFileName)
}

// JournalPath returns the journal database, defaulting into the data
// directory.
func (c *Config) JournalPath() string {
	if c.Journal.Path != "" {
		return expandTilde(c.Journal.Path)
	}

	dir := DefaultDataDir()
	if dir == "" {
		return ""
	}

	return filepath.Join(dir, journalFileName)
}

// PIDPath returns the lock file held by a running watch, next to the
// journal.
func (c *Config) PIDPath() string {
	journalPath := c.JournalPath()
	if journalPath == "" {
		return ""
	}

	return filepath.Join(filepath.Dir(journalPath), pidFileName)
}

func mustDuration(s string) time.Duration {
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0
	}

	return d
}

// expandTilde replaces a leading "~/" with the user's home directory.
func expandTilde(path string) string {
	if !strings.HasPrefix(path, "~/") {
		return path
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return path
	}

	return filepath.Join(home, path[2:])
}
