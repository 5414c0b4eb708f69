package migrations

import "embed"

// FS contains embedded SQLite migrations for the quote cache.
//
//go:embed *.sql
var FS embed.FS
