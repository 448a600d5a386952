package migrations

import "embed"

// FS contains the embedded Postgres migrations, named for golang-migrate.
//
//go:embed *.sql
var FS embed.FS
