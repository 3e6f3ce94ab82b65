// Package migrations embeds the SQL migrations for the portal database.
package migrations

import "embed"

// FS holds the *.up.sql and *.down.sql files read by cmd/migrate.
//
//go:embed *.sql
var FS embed.FS
