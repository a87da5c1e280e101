package migrations

import "embed"

// FS embeds the numbered .sql migration scripts executed by Run.
//
//go:embed scripts/*.sql
var FS embed.FS
