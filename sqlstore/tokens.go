package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/munyaradzichiondegwa/vision-2030-platform/session"
)

// TokenStore implements session.Store over the refresh_tokens table.
type TokenStore struct {
	db  *DB
	now func() time.Time
}

// NewTokenStore returns a TokenStore. now defaults to time.Now.
func NewTokenStore(db *DB, now func() time.Time) *TokenStore {
	if now == nil {
		now = time.Now
	}
	return &TokenStore{db: db, now: now}
}

func (s *TokenStore) Create(ctx context.Context, rec *session.Record) error {
	if rec == nil || rec.ID == "" || rec.AccountID == "" || len(rec.TokenHash) != 64 {
		return fmt.Errorf("%w: incomplete record", session.ErrRecordCorrupt)
	}
	if !rec.Status.Valid() {
		return fmt.Errorf("%w: status %q", session.ErrRecordCorrupt, rec.Status)
	}

	_, err := s.db.exec(ctx,
		`INSERT INTO refresh_tokens (id, account_id, token_hash, type, status, expires_at, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		rec.ID, rec.AccountID, rec.TokenHash, rec.Type, string(rec.Status),
		toMillis(rec.ExpiresAt), toMillis(rec.CreatedAt),
	)
	if err != nil {
		return unavailable(err)
	}
	return nil
}

func (s *TokenStore) FindByHash(ctx context.Context, tokenHash string) (*session.Record, error) {
	var (
		rec                  session.Record
		status               string
		expiresAt, createdAt int64
	)
	err := s.db.queryRow(ctx,
		`SELECT id, account_id, token_hash, type, status, expires_at, created_at
		 FROM refresh_tokens WHERE token_hash = ?`,
		tokenHash,
	).Scan(&rec.ID, &rec.AccountID, &rec.TokenHash, &rec.Type, &status, &expiresAt, &createdAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, session.ErrRecordNotFound
		}
		return nil, unavailable(err)
	}

	rec.Status = session.Status(status)
	if !rec.Status.Valid() {
		return nil, fmt.Errorf("%w: status %q", session.ErrRecordCorrupt, status)
	}
	rec.ExpiresAt = fromMillis(expiresAt)
	rec.CreatedAt = fromMillis(createdAt)
	return &rec, nil
}

// CompareAndSetStatus is a conditional UPDATE; the row count decides the
// winner. A missing record returns session.ErrRecordNotFound.
func (s *TokenStore) CompareAndSetStatus(ctx context.Context, id string, expected, next session.Status) (bool, error) {
	if !expected.Valid() || !next.Valid() {
		return false, fmt.Errorf("invalid status transition %q -> %q", expected, next)
	}

	res, err := s.db.exec(ctx,
		`UPDATE refresh_tokens SET status = ? WHERE id = ? AND status = ?`,
		string(next), id, string(expected),
	)
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
	if err := s.db.queryRow(ctx, `SELECT COUNT(*) FROM refresh_tokens WHERE id = ?`, id).Scan(&exists); err != nil {
		return false, unavailable(err)
	}
	if exists == 0 {
		return false, session.ErrRecordNotFound
	}
	return false, nil
}

func (s *TokenStore) RevokeAllForAccount(ctx context.Context, accountID string) (int, error) {
	res, err := s.db.exec(ctx,
		`UPDATE refresh_tokens SET status = ? WHERE account_id = ? AND status = ?`,
		string(session.StatusRevoked), accountID, string(session.StatusActive),
	)
	if err != nil {
		return 0, unavailable(err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return 0, unavailable(err)
	}
	return int(n), nil
}

// CountActive returns how many unexpired ACTIVE records accountID has.
func (s *TokenStore) CountActive(ctx context.Context, accountID string) (int, error) {
	var n int
	err := s.db.queryRow(ctx,
		`SELECT COUNT(*) FROM refresh_tokens WHERE account_id = ? AND status = ? AND expires_at > ?`,
		accountID, string(session.StatusActive), toMillis(s.now()),
	).Scan(&n)
	if err != nil {
		return 0, unavailable(err)
	}
	return n, nil
}

// PurgeExpired deletes records that expired before now minus grace and
// returns how many rows were removed. Spent records are kept for grace so
// late reuse is still detected.
func (s *TokenStore) PurgeExpired(ctx context.Context, grace time.Duration) (int64, error) {
	cutoff := s.now().Add(-grace)
	res, err := s.db.exec(ctx, `DELETE FROM refresh_tokens WHERE expires_at < ?`, toMillis(cutoff))
	if err != nil {
		return 0, unavailable(err)
	}
	return res.RowsAffected()
}

// Ping checks the database connection and returns its round-trip time.
func (s *TokenStore) Ping(ctx context.Context) (time.Duration, error) {
	start := time.Now()
	if err := s.db.PingContext(ctx); err != nil {
		return time.Since(start), unavailable(err)
	}
	return time.Since(start), nil
}
