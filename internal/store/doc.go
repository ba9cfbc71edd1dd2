// Package store provides SQL-backed durable storage for shares, scheduled
// tasks and user accounts.
//
// Two drivers are supported: SQLite (mattn/go-sqlite3, the default) and
// PostgreSQL (pgx stdlib). Queries are written with "?" placeholders and
// rebound to "$n" for PostgreSQL.
//
// # Share mutations
//
// Every change to status, view_count or a terminal timestamp is a single
// conditional UPDATE. A write whose precondition no longer holds matches
// zero rows and is reported as a normal "not applied" result, never as an
// error. This is the only concurrency control for shares: there are no
// in-memory locks.
//
// # Time
//
// Timestamps are stored as unix milliseconds (BIGINT) in UTC.
//
// # SQLite configuration
//
//   - WAL mode: Concurrent reads during writes
//   - synchronous=NORMAL: Balance durability/performance
//   - busy_timeout=5000: Wait for locks up to 5 seconds
//   - foreign_keys=ON: Enforce referential integrity
//   - single open connection: one writer at a time
package store
