// Package database provides SQLite connectivity for the astroconsole command log.
//
// This package manages:
//   - Opening the database file with WAL mode and a busy timeout
//   - Applying embedded schema migrations in version order
//   - Health checks for the HTTP health endpoint
//
// Usage:
//
//	db, err := database.Open(ctx, database.Config{Path: cfg.Database.Path, WALMode: true})
//	if err != nil {
//	    return err
//	}
//	defer db.Close()
//
//	if err := db.Migrate(ctx, migrations.FS); err != nil {
//	    return err
//	}
//
// Migrations are additive: new columns must be NULLABLE or carry a DEFAULT,
// and every .up.sql ships with a .down.sql.
package database
