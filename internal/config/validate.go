package config

import (
	"errors"
	"fmt"
	"net"
	"path/filepath"
	"strings"
	"time"
)

// Validation range constants.
const (
	minConcurrency    = 1
	maxConcurrency    = 16
	chunkAlignBytes   = 327680     // 320 KiB alignment for upload chunks
	maxChunkBytes     = 62_914_560 // 60 MiB
	maxDebounce       = time.Minute
	minConnectTimeout = 1 * time.Second
	minMetaTimeout    = 5 * time.Second
)

// Validate checks all configuration values and returns every error found,
// joined.
func Validate(cfg *Config) error {
	var errs []error

	errs = append(errs, validateSync(&cfg.Sync)...)
	errs = append(errs, validateTransfers(&cfg.Transfers)...)
	errs = append(errs, validateLogging(&cfg.Logging)...)
	errs = append(errs, validateNetwork(&cfg.Network)...)
	errs = append(errs, validateFeed(&cfg.Feed)...)
	errs = append(errs, validateJournal(&cfg.Journal)...)

	return errors.Join(errs...)
}

// ValidateResolved checks constraints that only make sense after the env and
// CLI layers have been applied.
func ValidateResolved(cfg *Config) error {
	if cfg.Sync.LocalDir != "" && !filepath.IsAbs(cfg.Sync.LocalDir) {
		return fmt.Errorf("local_dir: must be absolute after expansion, got %q", cfg.Sync.LocalDir)
	}

	return nil
}

func validateSync(s *SyncConfig) []error {
	var errs []error

	if strings.Contains(s.RemoteRoot, `\`) {
		errs = append(errs, fmt.Errorf("remote_root: must use forward slashes, got %q", s.RemoteRoot))
	}

	if d, err := time.ParseDuration(s.Debounce); err != nil {
		errs = append(errs, fmt.Errorf("debounce: invalid duration %q: %w", s.Debounce, err))
	} else if d < 0 || d > maxDebounce {
		errs = append(errs, fmt.Errorf("debounce: must be between 0 and %s, got %s", maxDebounce, d))
	}

	return errs
}

func validateTransfers(t *TransfersConfig) []error {
	var errs []error

	if t.MaxConcurrency < minConcurrency || t.MaxConcurrency > maxConcurrency {
		errs = append(errs, fmt.Errorf("max_concurrency: must be between %d and %d, got %d",
			minConcurrency, maxConcurrency, t.MaxConcurrency))
	}

	errs = append(errs, validateChunkSize(t.ChunkSize)...)

	return errs
}

func validateChunkSize(s string) []error {
	bytes, err := ParseSize(s)
	if err != nil {
		return []error{fmt.Errorf("chunk_size: %w", err)}
	}

	if bytes <= 0 || bytes > maxChunkBytes {
		return []error{fmt.Errorf("chunk_size: must be between 320KiB and 60MiB, got %s", s)}
	}

	if bytes%chunkAlignBytes != 0 {
		return []error{fmt.Errorf(
			"chunk_size: must be a multiple of 320 KiB (%d bytes), got %s (%d bytes)",
			chunkAlignBytes, s, bytes)}
	}

	return nil
}

var validLogLevels = map[string]bool{
	"debug": true,
	"info":  true,
	"warn":  true,
	"error": true,
}

var validLogFormats = map[string]bool{
	"auto": true,
	"text": true,
	"json": true,
}

func validateLogging(l *LoggingConfig) []error {
	var errs []error

	if !validLogLevels[l.LogLevel] {
		errs = append(errs, fmt.Errorf("log_level: must be one of debug, info, warn, error; got %q", l.LogLevel))
	}

	if !validLogFormats[l.LogFormat] {
		errs = append(errs, fmt.Errorf("log_format: must be one of auto, text, json; got %q", l.LogFormat))
	}

	return errs
}

func validateNetwork(n *NetworkConfig) []error {
	var errs []error

	errs = append(errs, validateDurationMin("connect_timeout", n.ConnectTimeout, minConnectTimeout)...)
	errs = append(errs, validateDurationMin("metadata_timeout", n.MetadataTimeout, minMetaTimeout)...)

	return errs
}

func validateDurationMin(field, value string, minimum time.Duration) []error {
	d, err := time.ParseDuration(value)
	if err != nil {
		return []error{fmt.Errorf("%s: invalid duration %q: %w", field, value, err)}
	}

	if d < minimum {
		return []error{fmt.Errorf("%s: must be >= %s, got %s", field, minimum, d)}
	}

	return nil
}

func validateFeed(f *FeedConfig) []error {
	if f.Listen == "" {
		return nil
	}

	if _, _, err := net.SplitHostPort(f.Listen); err != nil {
		return []error{fmt.Errorf("feed listen: %w", err)}
	}

	return nil
}

func validateJournal(j *JournalConfig) []error {
	if j.Retention < 0 {
		return []error{fmt.Errorf("retention: must be >= 0, got %d", j.Retention)}
	}

	return nil
}
