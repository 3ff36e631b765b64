package session

import (
	"context"
	"errors"
	"time"
)

// Status is the lifecycle state of a refresh-token record.
type Status string

const (
	StatusActive   Status = "ACTIVE"
	StatusConsumed Status = "CONSUMED"
	StatusRevoked  Status = "REVOKED"
)

// TypeRefresh is the only record type issued today.
const TypeRefresh = "REFRESH"

var (
	// ErrRecordNotFound is returned when no record matches the lookup.
	ErrRecordNotFound = errors.New("refresh record not found")
	// ErrRecordCorrupt is returned when a stored record cannot be decoded.
	ErrRecordCorrupt = errors.New("refresh record corrupt")
	// ErrRedisUnavailable wraps every Redis transport failure.
	ErrRedisUnavailable = errors.New("redis unavailable")
)

// Record is the persisted form of one refresh token.
type Record struct {
	ID        string
	AccountID string
	TokenHash string
	Type      string
	Status    Status
	ExpiresAt time.Time
	CreatedAt time.Time
}

// Valid reports whether s is one of the known statuses.
func (s Status) Valid() bool {
	switch s {
	case StatusActive, StatusConsumed, StatusRevoked:
		return true
	default:
		return false
	}
}

// Expired reports whether the record is past its expiry at now.
func (r *Record) Expired(now time.Time) bool {
	return !now.Before(r.ExpiresAt)
}

// Store is the refresh-token persistence contract used by the engine.
// Implementations must make CompareAndSetStatus atomic per record id.
type Store interface {
	Create(ctx context.Context, rec *Record) error
	FindByHash(ctx context.Context, tokenHash string) (*Record, error)
	// CompareAndSetStatus moves record id from expected to next and reports
	// whether this call performed the transition.
	CompareAndSetStatus(ctx context.Context, id string, expected, next Status) (bool, error)
	// RevokeAllForAccount marks every ACTIVE record of the account REVOKED and
	// returns how many were changed.
	RevokeAllForAccount(ctx context.Context, accountID string) (int, error)
}
