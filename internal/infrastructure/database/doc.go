// Package database provides the SQLite connection behind the bridge's
// optional audit trail.
//
// It manages:
//   - the connection, with WAL mode and a busy timeout
//   - versioned schema migrations read from an fs.FS
//   - file permissions (0600) and lifecycle
//
// Usage:
//
//	db, err := database.Open(ctx, cfg.Database)
//	if err != nil {
//	    return err
//	}
//	defer db.Close()
//
//	if err := db.Migrate(ctx, migrations.FS); err != nil {
//	    return err
//	}
package database
