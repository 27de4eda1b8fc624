// Package config loads runtime configuration for the otpkeeper CLI.
//
// Sources & precedence
//
//  1. Built-in defaults (see (*Config).LoadDefaults).
//  2. Optional JSON file (see parseJson) selected via flags: -c or -config.
//  3. Command-line flags (see parseFlags), which override earlier values.
//
// Supported flags
//
//	-v string   path to the local SQLite vault file
//	-b string   vault backend: sqlite or postgres
//	-d string   Postgres DSN (postgres backend only)
//	-e int      elevation session lifetime (seconds)
//
// # JSON schema
//
// The JSON loader uses timex.Duration for intervals, so values can be either
// strings like "5m" or integer nanoseconds:
//
//	{
//	  "vault_path": "otpkeeper.db",
//	  "backend": "sqlite",
//	  "database_dsn": "",
//	  "elevation_ttl": "5m",
//	  "s3_region": "us-east-1",
//	  "s3_access_key": "...",
//	  "s3_secret_key": "...",
//	  "s3_base_endpoint": "http://127.0.0.1:9000",
//	  "s3_bucket": "otpkeeper"
//	}
//
// The S3 settings are only needed for the backup and restore commands and
// have no flag equivalents.
package config
