// Package database provides the SQLite store shared by the command catalog
// and the device registry.
//
// It manages:
//   - Connection setup with busy timeout, foreign keys and optional WAL mode
//   - A single-connection pool (SQLite has one writer)
//   - Versioned schema migrations read from any fs.FS
//
// Usage:
//
//	db, err := database.Open(cfg.Database)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer db.Close()
//
//	if err := db.Migrate(ctx, migrations.FS, "."); err != nil {
//	    log.Fatal(err)
//	}
//
// Migration files are named YYYYMMDD_HHMMSS_description.up.sql with an
// optional matching .down.sql. All queries use parameterised statements.
package database
