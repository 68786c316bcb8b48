// Package repositories implements SQLite persistence for the run log.
//
// A run is the summary of one created playlist: the mode that built it, the request and resolution counts,
// and the ordered tracks that were added. The log is write-once: runs are inserted with their tracks in a
// single transaction and are never updated.
//
// Key Implementations:
//   - [RunRepository] : run summaries and their ordered tracks
//
// Schemas live in internal/shared/sql and are applied by [shared.RunMigrations].
package repositories
