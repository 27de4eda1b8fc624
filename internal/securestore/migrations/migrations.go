// Package migrations embeds the goose migration files for the database
// vault backends, one directory per dialect.
package migrations

import "embed"

//go:embed sqlite/*.sql postgres/*.sql
var Migrations embed.FS
