// Package migrations embeds the avrctl SQL schema into the binary.
//
//	db.Migrate(ctx, migrations.FS, migrations.Dir)
package migrations

import "embed"

//go:embed *.sql
var FS embed.FS

// Dir is the directory inside FS holding the migration files.
const Dir = "."
