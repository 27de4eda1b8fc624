package config

import "time"

// Backend names accepted in Config.Backend.
const (
	BackendSQLite   = "sqlite"
	BackendPostgres = "postgres"
)

// Config holds runtime settings for the otpkeeper CLI.
type Config struct {
	// VaultPath is the local SQLite vault file (sqlite backend).
	VaultPath string
	// Backend selects the vault backend, sqlite or postgres.
	Backend string
	// DatabaseDSN is the Postgres connection string (postgres backend).
	DatabaseDSN string
	// ElevationTTL bounds how long an unlock of locked entries lasts.
	ElevationTTL time.Duration

	// Object storage settings for encrypted backups.
	S3Region       string
	S3AccessKey    string
	S3SecretKey    string
	S3BaseEndpoint string
	S3Bucket       string
}

// LoadDefaults populates c with sensible defaults.
func (c *Config) LoadDefaults() {
	c.VaultPath = "otpkeeper.db"
	c.Backend = BackendSQLite
	c.ElevationTTL = 5 * time.Minute
	c.S3Bucket = "otpkeeper"
}

// LoadConfig constructs a Config, applies defaults, then overlays values from
// JSON (if present) and command-line flags (if present). Later sources take
// precedence over earlier ones.
func LoadConfig() *Config {
	cfg := &Config{}
	cfg.LoadDefaults()
	parseJson(cfg)
	parseFlags(cfg)
	return cfg
}
