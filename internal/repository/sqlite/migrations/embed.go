package migrations

import "embed"

// FS contains the embedded account schema migrations.
//
//go:embed *.sql
var FS embed.FS
