package config

// Default values for configuration options: layer 0 of the override chain.
const (
	defaultRemoteRoot      = "/"
	defaultDebounce        = "300ms"
	defaultMaxConcurrency  = 3
	defaultChunkSize       = "6400KiB"
	defaultLogLevel        = "info"
	defaultLogFormat       = "auto"
	defaultConnectTimeout  = "10s"
	defaultMetadataTimeout = "60s"
	defaultRetention       = 10000
)

// DefaultConfig returns a Config populated with all default values. It is
// the starting point for TOML decoding, so unset fields keep defaults.
func DefaultConfig() *Config {
	return &Config{
		Sync: SyncConfig{
			RemoteRoot: defaultRemoteRoot,
			Debounce:   defaultDebounce,
		},
		Transfers: TransfersConfig{
			MaxConcurrency: defaultMaxConcurrency,
			ChunkSize:      defaultChunkSize,
		},
		Logging: LoggingConfig{
			LogLevel:  defaultLogLevel,
			LogFormat: defaultLogFormat,
		},
		Network: NetworkConfig{
			ConnectTimeout:  defaultConnectTimeout,
			MetadataTimeout: defaultMetadataTimeout,
		},
		Journal: JournalConfig{
			Retention: defaultRetention,
		},
	}
}
