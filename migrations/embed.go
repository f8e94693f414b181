// Package migrations embeds the SQL schema migrations into the binary.
package migrations

import "embed"

//go:embed *.sql
var files embed.FS

// FS holds the migration files at its root, in the form accepted by
// database.DB.Migrate.
var FS = files
