package config

import (
	"encoding/json"
	"os"

	"otpkeeper/internal/flagx"
	"otpkeeper/internal/timex"
)

// JsonConfig is a DTO used exclusively for JSON unmarshalling. It relies on
// timex.Duration so intervals can be strings like "5m" or integer
// nanoseconds. After parsing, set values are copied into the runtime Config.
type JsonConfig struct {
	VaultPath      string         `json:"vault_path"`
	Backend        string         `json:"backend"`
	DatabaseDSN    string         `json:"database_dsn"`
	ElevationTTL   timex.Duration `json:"elevation_ttl"`
	S3Region       string         `json:"s3_region"`
	S3AccessKey    string         `json:"s3_access_key"`
	S3SecretKey    string         `json:"s3_secret_key"`
	S3BaseEndpoint string         `json:"s3_base_endpoint"`
	S3Bucket       string         `json:"s3_bucket"`
}

// parseJson overlays Config with values loaded from a JSON file selected
// via the -c or -config flags. Keys absent from the file keep their current
// values. Read or unmarshal errors panic; configuration is loaded once at
// startup and a broken file should stop the program.
func parseJson(cfg *Config) {
	jsonConfigFile := flagx.JsonConfigFlags()
	if jsonConfigFile == "" {
		return
	}

	var jc JsonConfig

	data, err := os.ReadFile(jsonConfigFile)
	if err != nil {
		panic(err)
	}
	if err := json.Unmarshal(data, &jc); err != nil {
		panic(err)
	}

	if jc.VaultPath != "" {
		cfg.VaultPath = jc.VaultPath
	}
	if jc.Backend != "" {
		cfg.Backend = jc.Backend
	}
	if jc.DatabaseDSN != "" {
		cfg.DatabaseDSN = jc.DatabaseDSN
	}
	if jc.ElevationTTL.Duration != 0 {
		cfg.ElevationTTL = jc.ElevationTTL.Duration
	}
	if jc.S3Region != "" {
		cfg.S3Region = jc.S3Region
	}
	if jc.S3AccessKey != "" {
		cfg.S3AccessKey = jc.S3AccessKey
	}
	if jc.S3SecretKey != "" {
		cfg.S3SecretKey = jc.S3SecretKey
	}
	if jc.S3BaseEndpoint != "" {
		cfg.S3BaseEndpoint = jc.S3BaseEndpoint
	}
	if jc.S3Bucket != "" {
		cfg.S3Bucket = jc.S3Bucket
	}
}
