package migrations

import "embed"

// Postgres contains the Postgres migration files in ascending order by filename.
//
//go:embed postgres/*.sql
var Postgres embed.FS

// SQLite contains the SQLite migration files in ascending order by filename.
//
//go:embed sqlite/*.sql
var SQLite embed.FS
