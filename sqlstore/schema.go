package sqlstore

import (
	"context"
	"fmt"
)

var schema = []string{
	`CREATE TABLE IF NOT EXISTS accounts (
		id TEXT PRIMARY KEY,
		username TEXT NOT NULL UNIQUE,
		email TEXT NOT NULL UNIQUE,
		password_hash TEXT NOT NULL,
		role TEXT NOT NULL,
		active BOOLEAN NOT NULL,
		last_login_at BIGINT NOT NULL DEFAULT 0,
		created_at BIGINT NOT NULL,
		updated_at BIGINT NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS refresh_tokens (
		id TEXT PRIMARY KEY,
		account_id TEXT NOT NULL,
		token_hash TEXT NOT NULL UNIQUE,
		type TEXT NOT NULL,
		status TEXT NOT NULL,
		expires_at BIGINT NOT NULL,
		created_at BIGINT NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_refresh_tokens_account ON refresh_tokens(account_id, status)`,
	`CREATE INDEX IF NOT EXISTS idx_refresh_tokens_expires ON refresh_tokens(expires_at)`,
}

func auditTable(d Dialect) string {
	id := "BIGSERIAL PRIMARY KEY"
	if d == SQLite {
		id = "INTEGER PRIMARY KEY AUTOINCREMENT"
	}
	return `CREATE TABLE IF NOT EXISTS audit_logs (
		id ` + id + `,
		occurred_at BIGINT NOT NULL,
		event_type TEXT NOT NULL,
		severity TEXT NOT NULL,
		account_id TEXT,
		success BOOLEAN NOT NULL,
		error_code TEXT,
		ip_address TEXT,
		user_agent TEXT,
		metadata TEXT
	)`
}

// EnsureSchema creates the tables and indexes when missing.
func EnsureSchema(ctx context.Context, db *DB) error {
	stmts := append(append([]string(nil), schema...),
		auditTable(db.dialect),
		`CREATE INDEX IF NOT EXISTS idx_audit_logs_occurred ON audit_logs(occurred_at)`,
		`CREATE INDEX IF NOT EXISTS idx_audit_logs_account ON audit_logs(account_id)`,
	)

	for _, stmt := range stmts {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("ensuring schema: %w", err)
		}
	}
	return nil
}
