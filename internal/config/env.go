package config

import "os"

// Environment variable names for overrides.
const (
	EnvConfig       = "ONEDRIVE_PUSH_CONFIG"
	EnvLocalDir     = "ONEDRIVE_PUSH_LOCAL_DIR"
	EnvLogLevel     = "ONEDRIVE_PUSH_LOG_LEVEL"
	EnvRefreshToken = "ONEDRIVE_PUSH_REFRESH_TOKEN"
)

// EnvOverrides holds values derived from environment variables.
type EnvOverrides struct {
	ConfigPath   string // ONEDRIVE_PUSH_CONFIG: config file path
	LocalDir     string // ONEDRIVE_PUSH_LOCAL_DIR: watched directory
	LogLevel     string // ONEDRIVE_PUSH_LOG_LEVEL: log level
	RefreshToken string // ONEDRIVE_PUSH_REFRESH_TOKEN: seeds a missing token file
}

// ReadEnvOverrides reads environment variables and returns any overrides
// found. It does not modify a Config.
func ReadEnvOverrides() EnvOverrides {
	return EnvOverrides{
		ConfigPath:   os.Getenv(EnvConfig),
		LocalDir:     os.Getenv(EnvLocalDir),
		LogLevel:     os.Getenv(EnvLogLevel),
		RefreshToken: os.Getenv(EnvRefreshToken),
	}
}
