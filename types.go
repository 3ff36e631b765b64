package authcore

import (
	"context"
	"time"

	"github.com/munyaradzichiondegwa/vision-2030-platform/internal/audit"
	"github.com/munyaradzichiondegwa/vision-2030-platform/internal/rate"
	"github.com/munyaradzichiondegwa/vision-2030-platform/session"
)

// Account is a registered identity. Email is stored lower-case.
type Account struct {
	ID           string    `json:"id"`
	Username     string    `json:"username"`
	Email        string    `json:"email"`
	PasswordHash string    `json:"-"`
	Role         string    `json:"role"`
	Active       bool      `json:"active"`
	LastLoginAt  time.Time `json:"last_login_at,omitempty"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// AccountStore persists accounts.
//
// Lookups and updates return ErrAccountNotFound when nothing matches. Save
// upserts by ID and returns ErrDuplicateAccount when the username or email
// belongs to a different account.
//
// Save is only used for new accounts. Updates to existing accounts go through
// the narrow methods, which leave every other column untouched so concurrent
// writers cannot undo each other.
type AccountStore interface {
	FindByEmail(ctx context.Context, email string) (*Account, error)
	FindByID(ctx context.Context, id string) (*Account, error)
	Save(ctx context.Context, account *Account) error
	ExistsByUsernameOrEmail(ctx context.Context, username, email string) (bool, error)

	// RecordLogin sets LastLoginAt and UpdatedAt to at.
	RecordLogin(ctx context.Context, id string, at time.Time) error
	// CompareAndSetPasswordHash replaces the hash only while it still equals
	// expected. It reports whether the swap happened.
	CompareAndSetPasswordHash(ctx context.Context, id, expected, next string, at time.Time) (bool, error)
	// CompareAndSetRole replaces the role only while it still equals expected.
	CompareAndSetRole(ctx context.Context, id, expected, next string, at time.Time) (bool, error)
}

// RefreshTokenStore persists refresh-token records. See package session.
type RefreshTokenStore = session.Store

// RateCounterStore is the atomic counter backend of the rate limiter.
type RateCounterStore = rate.CounterStore

// AuditEvent is one append-only audit record.
type AuditEvent = audit.Event

// AuditSink receives audit events from the engine's dispatcher goroutine.
type AuditSink = audit.Sink

// AuditSeverity grades audit events.
type AuditSeverity = audit.Severity

const (
	SeverityInfo     = audit.SeverityInfo
	SeverityWarning  = audit.SeverityWarning
	SeverityCritical = audit.SeverityCritical
)

// NewJSONAuditSink writes one JSON audit event per line to w.
var NewJSONAuditSink = audit.NewJSONWriterSink

// NewChannelAuditSink buffers audit events in a channel, mostly for tests.
var NewChannelAuditSink = audit.NewChannelSink

// RegisterRequest is the input of Engine.Register.
type RegisterRequest struct {
	Username string `json:"username"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

// TokenPair is an access token plus its rotating refresh token.
type TokenPair struct {
	AccessToken      string    `json:"access_token"`
	AccessExpiresAt  time.Time `json:"access_expires_at"`
	RefreshToken     string    `json:"refresh_token"`
	RefreshExpiresAt time.Time `json:"refresh_expires_at"`
	TokenType        string    `json:"token_type"`
}

// LoginResult is returned by Engine.Login.
type LoginResult struct {
	Account *Account  `json:"account"`
	Tokens  TokenPair `json:"tokens"`
}

// Claims is a verified access token.
type Claims struct {
	AccountID string
	Email     string
	Role      string
	TokenID   string
	IssuedAt  time.Time
	ExpiresAt time.Time
}

// RateDecision is the outcome of a throttled attempt.
type RateDecision struct {
	Allowed     bool
	Count       int64
	LockedUntil time.Time
}
