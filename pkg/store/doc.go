// Package store persists pipeline output in a local SQLite database.
//
// There is one table per stage: stage1 (boards per search term), stage2
// (pins per board) and stage3 (globally unique pins). The generic Exists,
// Insert, Update and Upsert operations validate table and column names
// against the schema before building SQL, so callers pass plain Row maps.
//
// The driver is modernc.org/sqlite, which needs no cgo. WAL mode and a busy
// timeout are applied through the DSN so concurrent download workers and a
// second process can share one database file.
package store
