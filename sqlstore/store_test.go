package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	authcore "github.com/munyaradzichiondegwa/vision-2030-platform"
	"github.com/munyaradzichiondegwa/vision-2030-platform/refresh"
	"github.com/munyaradzichiondegwa/vision-2030-platform/session"
)

var accountCols = []string{"id", "username", "email", "password_hash", "role", "active", "last_login_at", "created_at", "updated_at"}

func setupMockDB(t *testing.T) (*DB, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return Wrap(db, Postgres), mock
}

func TestRebind(t *testing.T) {
	pg := Wrap(nil, Postgres)
	lite := Wrap(nil, SQLite)

	q := `UPDATE t SET a = ? WHERE b = ? AND c = ?`
	assert.Equal(t, `UPDATE t SET a = $1 WHERE b = $2 AND c = $3`, pg.rebind(q))
	assert.Equal(t, q, lite.rebind(q))
}

func TestIsUniqueViolation(t *testing.T) {
	assert.True(t, isUniqueViolation(&pgconn.PgError{Code: "23505"}))
	assert.False(t, isUniqueViolation(&pgconn.PgError{Code: "23503"}))
	assert.True(t, isUniqueViolation(errors.New("UNIQUE constraint failed: accounts.email")))
	assert.False(t, isUniqueViolation(errors.New("connection reset")))
}

func TestEnsureSchema(t *testing.T) {
	db, mock := setupMockDB(t)

	mock.ExpectExec("CREATE TABLE IF NOT EXISTS accounts").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec("CREATE TABLE IF NOT EXISTS refresh_tokens").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec("CREATE INDEX IF NOT EXISTS idx_refresh_tokens_account").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec("CREATE INDEX IF NOT EXISTS idx_refresh_tokens_expires").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec("CREATE TABLE IF NOT EXISTS audit_logs .+BIGSERIAL").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec("CREATE INDEX IF NOT EXISTS idx_audit_logs_occurred").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec("CREATE INDEX IF NOT EXISTS idx_audit_logs_account").WillReturnResult(sqlmock.NewResult(0, 0))

	require.NoError(t, EnsureSchema(context.Background(), db))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestEnsureSchemaError(t *testing.T) {
	db, mock := setupMockDB(t)
	mock.ExpectExec("CREATE TABLE IF NOT EXISTS accounts").WillReturnError(errors.New("permission denied"))

	err := EnsureSchema(context.Background(), db)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "ensuring schema")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestAccountStoreFindByEmail(t *testing.T) {
	t.Run("found", func(t *testing.T) {
		db, mock := setupMockDB(t)
		store := NewAccountStore(db)
		created := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)

		rows := sqlmock.NewRows(accountCols).
			AddRow("acc-1", "alice", "alice@example.com", "$argon2id$...", "USER", true, int64(0), created.UnixMilli(), created.UnixMilli())
		mock.ExpectQuery(`SELECT .+ FROM accounts WHERE email = \$1`).
			WithArgs("alice@example.com").
			WillReturnRows(rows)

		acc, err := store.FindByEmail(context.Background(), "Alice@Example.com")
		require.NoError(t, err)
		assert.Equal(t, "acc-1", acc.ID)
		assert.Equal(t, "USER", acc.Role)
		assert.True(t, acc.Active)
		assert.True(t, acc.LastLoginAt.IsZero())
		assert.True(t, acc.CreatedAt.Equal(created))
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("not found", func(t *testing.T) {
		db, mock := setupMockDB(t)
		store := NewAccountStore(db)

		mock.ExpectQuery(`SELECT .+ FROM accounts WHERE email = \$1`).
			WithArgs("nobody@example.com").
			WillReturnError(sql.ErrNoRows)

		_, err := store.FindByEmail(context.Background(), "nobody@example.com")
		assert.ErrorIs(t, err, authcore.ErrAccountNotFound)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("database error", func(t *testing.T) {
		db, mock := setupMockDB(t)
		store := NewAccountStore(db)

		mock.ExpectQuery(`SELECT .+ FROM accounts WHERE id = \$1`).
			WillReturnError(errors.New("connection refused"))

		_, err := store.FindByID(context.Background(), "acc-1")
		assert.ErrorIs(t, err, authcore.ErrStoreUnavailable)
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestAccountStoreSave(t *testing.T) {
	now := time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)
	acc := &authcore.Account{
		ID:           "acc-1",
		Username:     "alice",
		Email:        "Alice@Example.com",
		PasswordHash: "hash",
		Role:         "USER",
		Active:       true,
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	t.Run("upsert", func(t *testing.T) {
		db, mock := setupMockDB(t)
		mock.ExpectExec(`INSERT INTO accounts .+ ON CONFLICT \(id\) DO UPDATE`).
			WithArgs("acc-1", "alice", "alice@example.com", "hash", "USER", true, int64(0), now.UnixMilli(), now.UnixMilli()).
			WillReturnResult(sqlmock.NewResult(0, 1))

		require.NoError(t, NewAccountStore(db).Save(context.Background(), acc))
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("duplicate", func(t *testing.T) {
		db, mock := setupMockDB(t)
		mock.ExpectExec(`INSERT INTO accounts`).
			WillReturnError(&pgconn.PgError{Code: "23505", ConstraintName: "accounts_email_key"})

		err := NewAccountStore(db).Save(context.Background(), acc)
		assert.ErrorIs(t, err, authcore.ErrDuplicateAccount)
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestAccountStoreExists(t *testing.T) {
	db, mock := setupMockDB(t)
	mock.ExpectQuery(`SELECT COUNT\(\*\) FROM accounts WHERE username = \$1 OR email = \$2`).
		WithArgs("alice", "alice@example.com").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(1))

	exists, err := NewAccountStore(db).ExistsByUsernameOrEmail(context.Background(), "alice", "ALICE@example.com")
	require.NoError(t, err)
	assert.True(t, exists)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestAccountStoreNarrowUpdates(t *testing.T) {
	at := time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)

	t.Run("record login touches only timestamps", func(t *testing.T) {
		db, mock := setupMockDB(t)
		mock.ExpectExec(`UPDATE accounts SET last_login_at = \$1, updated_at = \$2 WHERE id = \$3`).
			WithArgs(at.UnixMilli(), at.UnixMilli(), "acc-1").
			WillReturnResult(sqlmock.NewResult(0, 1))

		require.NoError(t, NewAccountStore(db).RecordLogin(context.Background(), "acc-1", at))
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("record login missing account", func(t *testing.T) {
		db, mock := setupMockDB(t)
		mock.ExpectExec(`UPDATE accounts SET last_login_at`).
			WillReturnResult(sqlmock.NewResult(0, 0))

		err := NewAccountStore(db).RecordLogin(context.Background(), "acc-1", at)
		assert.ErrorIs(t, err, authcore.ErrAccountNotFound)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("role swap", func(t *testing.T) {
		db, mock := setupMockDB(t)
		mock.ExpectExec(`UPDATE accounts SET role = \$1, updated_at = \$2 WHERE id = \$3 AND role = \$4`).
			WithArgs("USER", at.UnixMilli(), "acc-1", "ADMIN").
			WillReturnResult(sqlmock.NewResult(0, 1))

		swapped, err := NewAccountStore(db).CompareAndSetRole(context.Background(), "acc-1", "ADMIN", "USER", at)
		require.NoError(t, err)
		assert.True(t, swapped)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("role changed underneath", func(t *testing.T) {
		db, mock := setupMockDB(t)
		mock.ExpectExec(`UPDATE accounts SET role`).
			WillReturnResult(sqlmock.NewResult(0, 0))
		mock.ExpectQuery(`SELECT COUNT\(\*\) FROM accounts WHERE id = \$1`).
			WithArgs("acc-1").
			WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(1))

		swapped, err := NewAccountStore(db).CompareAndSetRole(context.Background(), "acc-1", "ADMIN", "USER", at)
		require.NoError(t, err)
		assert.False(t, swapped)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("hash swap on missing account", func(t *testing.T) {
		db, mock := setupMockDB(t)
		mock.ExpectExec(`UPDATE accounts SET password_hash = \$1, updated_at = \$2 WHERE id = \$3 AND password_hash = \$4`).
			WithArgs("new", at.UnixMilli(), "acc-1", "old").
			WillReturnResult(sqlmock.NewResult(0, 0))
		mock.ExpectQuery(`SELECT COUNT\(\*\) FROM accounts WHERE id = \$1`).
			WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(0))

		_, err := NewAccountStore(db).CompareAndSetPasswordHash(context.Background(), "acc-1", "old", "new", at)
		assert.ErrorIs(t, err, authcore.ErrAccountNotFound)
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestTokenStoreCompareAndSetStatus(t *testing.T) {
	t.Run("winner", func(t *testing.T) {
		db, mock := setupMockDB(t)
		mock.ExpectExec(`UPDATE refresh_tokens SET status = \$1 WHERE id = \$2 AND status = \$3`).
			WithArgs("CONSUMED", "tok-1", "ACTIVE").
			WillReturnResult(sqlmock.NewResult(0, 1))

		ok, err := NewTokenStore(db, nil).CompareAndSetStatus(context.Background(), "tok-1", session.StatusActive, session.StatusConsumed)
		require.NoError(t, err)
		assert.True(t, ok)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("lost race", func(t *testing.T) {
		db, mock := setupMockDB(t)
		mock.ExpectExec(`UPDATE refresh_tokens SET status`).
			WillReturnResult(sqlmock.NewResult(0, 0))
		mock.ExpectQuery(`SELECT COUNT\(\*\) FROM refresh_tokens WHERE id = \$1`).
			WithArgs("tok-1").
			WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(1))

		ok, err := NewTokenStore(db, nil).CompareAndSetStatus(context.Background(), "tok-1", session.StatusActive, session.StatusConsumed)
		require.NoError(t, err)
		assert.False(t, ok)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("missing", func(t *testing.T) {
		db, mock := setupMockDB(t)
		mock.ExpectExec(`UPDATE refresh_tokens SET status`).
			WillReturnResult(sqlmock.NewResult(0, 0))
		mock.ExpectQuery(`SELECT COUNT\(\*\) FROM refresh_tokens WHERE id = \$1`).
			WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(0))

		_, err := NewTokenStore(db, nil).CompareAndSetStatus(context.Background(), "tok-1", session.StatusActive, session.StatusConsumed)
		assert.ErrorIs(t, err, session.ErrRecordNotFound)
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestTokenStoreRevokeAll(t *testing.T) {
	db, mock := setupMockDB(t)
	mock.ExpectExec(`UPDATE refresh_tokens SET status = \$1 WHERE account_id = \$2 AND status = \$3`).
		WithArgs("REVOKED", "acc-1", "ACTIVE").
		WillReturnResult(sqlmock.NewResult(0, 3))

	n, err := NewTokenStore(db, nil).RevokeAllForAccount(context.Background(), "acc-1")
	require.NoError(t, err)
	assert.Equal(t, 3, n)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestTokenStoreFindByHash(t *testing.T) {
	cols := []string{"id", "account_id", "token_hash", "type", "status", "expires_at", "created_at"}
	hash := refresh.Hash("raw")

	t.Run("not found", func(t *testing.T) {
		db, mock := setupMockDB(t)
		mock.ExpectQuery(`FROM refresh_tokens WHERE token_hash = \$1`).
			WithArgs(hash).
			WillReturnError(sql.ErrNoRows)

		_, err := NewTokenStore(db, nil).FindByHash(context.Background(), hash)
		assert.ErrorIs(t, err, session.ErrRecordNotFound)
	})

	t.Run("corrupt status", func(t *testing.T) {
		db, mock := setupMockDB(t)
		mock.ExpectQuery(`FROM refresh_tokens WHERE token_hash = \$1`).
			WillReturnRows(sqlmock.NewRows(cols).AddRow("tok-1", "acc-1", hash, "REFRESH", "BOGUS", int64(1), int64(1)))

		_, err := NewTokenStore(db, nil).FindByHash(context.Background(), hash)
		assert.ErrorIs(t, err, session.ErrRecordCorrupt)
	})
}

func TestTokenStoreCreateRejectsIncompleteRecord(t *testing.T) {
	db, mock := setupMockDB(t)
	err := NewTokenStore(db, nil).Create(context.Background(), &session.Record{ID: "tok-1", AccountID: "acc-1", TokenHash: "short"})
	assert.ErrorIs(t, err, session.ErrRecordCorrupt)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestTokenStorePurgeExpired(t *testing.T) {
	now := time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)
	db, mock := setupMockDB(t)
	mock.ExpectExec(`DELETE FROM refresh_tokens WHERE expires_at < \$1`).
		WithArgs(now.Add(-time.Hour).UnixMilli()).
		WillReturnResult(sqlmock.NewResult(0, 4))

	store := NewTokenStore(db, func() time.Time { return now })
	n, err := store.PurgeExpired(context.Background(), time.Hour)
	require.NoError(t, err)
	assert.Equal(t, int64(4), n)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestAuditSinkEmit(t *testing.T) {
	t.Run("nil database", func(t *testing.T) {
		sink, err := NewAuditSink(nil)
		assert.Error(t, err)
		assert.Nil(t, sink)
		assert.Contains(t, err.Error(), "database connection is required")
	})

	t.Run("insert", func(t *testing.T) {
		db, mock := setupMockDB(t)
		sink, err := NewAuditSink(db)
		require.NoError(t, err)

		ts := time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)
		mock.ExpectExec(`INSERT INTO audit_logs`).
			WithArgs(ts.UnixMilli(), "refresh_reuse_detected", "critical", "acc-1", false,
				"refresh_reuse", "10.0.0.1", nil, `{"revoked":"2"}`).
			WillReturnResult(sqlmock.NewResult(1, 1))

		err = sink.Emit(context.Background(), authcore.AuditEvent{
			Timestamp: ts,
			EventType: "refresh_reuse_detected",
			Severity:  authcore.SeverityCritical,
			AccountID: "acc-1",
			Error:     "refresh_reuse",
			IP:        "10.0.0.1",
			Metadata:  map[string]string{"revoked": "2"},
		})
		require.NoError(t, err)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("database error", func(t *testing.T) {
		db, mock := setupMockDB(t)
		sink, err := NewAuditSink(db)
		require.NoError(t, err)

		mock.ExpectExec(`INSERT INTO audit_logs`).WillReturnError(errors.New("disk full"))

		err = sink.Emit(context.Background(), authcore.AuditEvent{EventType: "logout", Severity: authcore.SeverityInfo})
		assert.ErrorIs(t, err, authcore.ErrStoreUnavailable)
	})
}

func TestTokenStorePing(t *testing.T) {
	raw, mock, err := sqlmock.New(sqlmock.MonitorPingsOption(true))
	require.NoError(t, err)
	t.Cleanup(func() { raw.Close() })
	store := NewTokenStore(Wrap(raw, Postgres), nil)

	mock.ExpectPing()
	_, err = store.Ping(context.Background())
	require.NoError(t, err)

	mock.ExpectPing().WillReturnError(errors.New("connection refused"))
	_, err = store.Ping(context.Background())
	assert.ErrorIs(t, err, authcore.ErrStoreUnavailable)
	assert.NoError(t, mock.ExpectationsWereMet())
}
