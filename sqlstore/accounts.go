package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"

	authcore "github.com/munyaradzichiondegwa/vision-2030-platform"
)

const accountColumns = `id, username, email, password_hash, role, active, last_login_at, created_at, updated_at`

// AccountStore implements authcore.AccountStore.
type AccountStore struct {
	db *DB
}

func NewAccountStore(db *DB) *AccountStore {
	return &AccountStore{db: db}
}

func (s *AccountStore) FindByEmail(ctx context.Context, email string) (*authcore.Account, error) {
	return s.findOne(ctx, `SELECT `+accountColumns+` FROM accounts WHERE email = ?`, strings.ToLower(email))
}

func (s *AccountStore) FindByID(ctx context.Context, id string) (*authcore.Account, error) {
	return s.findOne(ctx, `SELECT `+accountColumns+` FROM accounts WHERE id = ?`, id)
}

func (s *AccountStore) findOne(ctx context.Context, query string, arg any) (*authcore.Account, error) {
	var a authcore.Account
	var lastLogin, createdAt, updatedAt int64
	err := s.db.queryRow(ctx, query, arg).Scan(
		&a.ID, &a.Username, &a.Email, &a.PasswordHash, &a.Role, &a.Active,
		&lastLogin, &createdAt, &updatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, authcore.ErrAccountNotFound
		}
		return nil, unavailable(err)
	}

	a.LastLoginAt = fromMillis(lastLogin)
	a.CreatedAt = fromMillis(createdAt)
	a.UpdatedAt = fromMillis(updatedAt)
	return &a, nil
}

// Save inserts account or updates the row with the same id. A username or
// email owned by another row returns authcore.ErrDuplicateAccount.
func (s *AccountStore) Save(ctx context.Context, a *authcore.Account) error {
	_, err := s.db.exec(ctx,
		`INSERT INTO accounts (`+accountColumns+`)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT (id) DO UPDATE SET
			username = excluded.username,
			email = excluded.email,
			password_hash = excluded.password_hash,
			role = excluded.role,
			active = excluded.active,
			last_login_at = excluded.last_login_at,
			updated_at = excluded.updated_at`,
		a.ID, a.Username, strings.ToLower(a.Email), a.PasswordHash, a.Role, a.Active,
		toMillis(a.LastLoginAt), toMillis(a.CreatedAt), toMillis(a.UpdatedAt),
	)
	if err != nil {
		if isUniqueViolation(err) {
			return authcore.ErrDuplicateAccount
		}
		return unavailable(err)
	}
	return nil
}

func (s *AccountStore) ExistsByUsernameOrEmail(ctx context.Context, username, email string) (bool, error) {
	var n int
	err := s.db.queryRow(ctx,
		`SELECT COUNT(*) FROM accounts WHERE username = ? OR email = ?`,
		username, strings.ToLower(email),
	).Scan(&n)
	if err != nil {
		return false, unavailable(err)
	}
	return n > 0, nil
}

func (s *AccountStore) RecordLogin(ctx context.Context, id string, at time.Time) error {
	res, err := s.db.exec(ctx,
		`UPDATE accounts SET last_login_at = ?, updated_at = ? WHERE id = ?`,
		toMillis(at), toMillis(at), id,
	)
	if err != nil {
		return unavailable(err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return unavailable(err)
	}
	if n == 0 {
		return authcore.ErrAccountNotFound
	}
	return nil
}

// CompareAndSetPasswordHash swaps password_hash only while it equals expected.
func (s *AccountStore) CompareAndSetPasswordHash(ctx context.Context, id, expected, next string, at time.Time) (bool, error) {
	return s.compareAndSet(ctx,
		`UPDATE accounts SET password_hash = ?, updated_at = ? WHERE id = ? AND password_hash = ?`,
		id, next, toMillis(at), id, expected,
	)
}

// CompareAndSetRole swaps role only while it equals expected.
func (s *AccountStore) CompareAndSetRole(ctx context.Context, id, expected, next string, at time.Time) (bool, error) {
	return s.compareAndSet(ctx,
		`UPDATE accounts SET role = ?, updated_at = ? WHERE id = ? AND role = ?`,
		id, next, toMillis(at), id, expected,
	)
}

func (s *AccountStore) compareAndSet(ctx context.Context, query, id string, args ...any) (bool, error) {
	res, err := s.db.exec(ctx, query, args...)
	if err != nil {
		return false, unavailable(err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, unavailable(err)
	}
	if n == 1 {
		return true, nil
	}

	var exists int
	if err := s.db.queryRow(ctx, `SELECT COUNT(*) FROM accounts WHERE id = ?`, id).Scan(&exists); err != nil {
		return false, unavailable(err)
	}
	if exists == 0 {
		return false, authcore.ErrAccountNotFound
	}
	return false, nil
}
