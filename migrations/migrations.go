// Package migrations embeds the SQL schema for every relational backend.
// Files follow golang-migrate naming: <version>_<title>.{up,down}.sql.
package migrations

import "embed"

//go:embed postgres/*.sql sqlite/*.sql
var FS embed.FS

const (
	PostgresDir = "postgres"
	SQLiteDir   = "sqlite"
)
