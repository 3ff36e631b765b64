// Package sqlstore persists accounts, refresh-token records and audit events
// in PostgreSQL (through pgx) or SQLite (through mattn/go-sqlite3).
//
// Queries are written once with ? placeholders and rebound to $n for
// PostgreSQL. Timestamps are stored as unix milliseconds so both dialects
// share one schema. Backend failures unwrap to authcore.ErrStoreUnavailable.
package sqlstore
