package migrations

import "embed"

// FS holds the SQL migrations applied at startup when flows are stored in PostgreSQL.
//
//go:embed *.sql
var FS embed.FS
