package migrations

import "embed"

// FS contains embedded SQLite migrations for the quota ledger.
//
//go:embed *.sql
var FS embed.FS
