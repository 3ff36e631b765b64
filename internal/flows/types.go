package flows

import (
	"context"
	"time"

	"github.com/munyaradzichiondegwa/vision-2030-platform/internal/rate"
)

// AccountRecord is the flow-local account model.
type AccountRecord struct {
	ID           string
	Username     string
	Email        string
	PasswordHash string
	Role         string
	Active       bool
	LastLoginAt  time.Time
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// TokenPair is the flow-local issuance result.
type TokenPair struct {
	AccessToken      string
	AccessExpiresAt  time.Time
	RefreshToken     string
	RefreshExpiresAt time.Time
}

// Limiter is the subset of the rate limiter used by flows.
type Limiter interface {
	Attempt(ctx context.Context, class rate.Class, subject string) (rate.Decision, error)
	Reset(ctx context.Context, class rate.Class, subject string) error
}

// RoleEvaluator is the subset of the role hierarchy used by flows.
type RoleEvaluator interface {
	Known(role string) bool
	Rank(role string) (int, bool)
	CanModifyRole(actor, targetCurrent, targetNew string) bool
	HasPermission(role, perm string) bool
}
