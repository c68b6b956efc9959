// Package database opens and migrates the SQLite store behind the
// Farsight device directory.
//
// The directory is the broker's only durable state: which identities
// have registered, when they first and last appeared, and how many
// sessions each has held. Everything else (live sessions, routing) is
// in-memory and rebuilt from reconnections, so the database sits off
// the hot path; signalling never waits on it.
//
// The pool is deliberately a single connection. SQLite allows one
// writer, and with WAL mode enabled readers are not blocked by it, so
// one connection serves the directory's light write load without lock
// contention errors.
//
// Schema changes ship as paired YYYYMMDD_HHMMSS_description.up.sql and
// .down.sql files embedded into the binary via the migrations package.
// Keep them additive (nullable columns, no drops or renames) so a
// rollback of the binary never meets a schema it cannot read.
//
//	db, err := database.Open(database.Config{Path: path, WALMode: true, BusyTimeout: 5})
//	if err != nil {
//	    return err
//	}
//	defer db.Close()
//	if err := db.Migrate(ctx); err != nil {
//	    return err
//	}
package database
