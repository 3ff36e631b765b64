package authcore

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/munyaradzichiondegwa/vision-2030-platform/password"
	"github.com/munyaradzichiondegwa/vision-2030-platform/permission"
)

var (
	// ErrInvalidCredentials is returned for an unknown account or a wrong password.
	ErrInvalidCredentials = errors.New("invalid credentials")
	// ErrAccountInactive is returned when a deactivated account is used.
	ErrAccountInactive = errors.New("account inactive")
	// ErrDuplicateAccount is returned when the username or email is taken.
	ErrDuplicateAccount = errors.New("account already exists")
	// ErrRateLimited is the sentinel behind every *RateLimitError.
	ErrRateLimited = errors.New("rate limited")
	// ErrTokenExpired is returned for an expired access or refresh token.
	ErrTokenExpired = errors.New("token expired")
	// ErrInvalidToken is returned for a token that is malformed, unknown or fails verification.
	ErrInvalidToken = errors.New("invalid token")
	// ErrTokenReuseDetected is returned when a spent refresh token is presented again.
	ErrTokenReuseDetected = errors.New("refresh token reuse detected")
	// ErrInsufficientPermission is returned when the actor may not perform the operation.
	ErrInsufficientPermission = errors.New("insufficient permission")
	// ErrStoreUnavailable wraps backend failures. Callers may retry.
	ErrStoreUnavailable = errors.New("store unavailable")
	// ErrAccountNotFound is the AccountStore not-found sentinel.
	ErrAccountNotFound = errors.New("account not found")
	// ErrEngineNotReady is returned by a zero or closed Engine.
	ErrEngineNotReady = errors.New("engine not ready")

	ErrWeakInput     = password.ErrWeakInput
	ErrCorruptRecord = password.ErrCorruptRecord
	ErrUnknownRole   = permission.ErrUnknownRole
)

// Error is returned by Engine operations. It never carries secrets.
type Error struct {
	Op        string
	AccountID string
	Time      time.Time
	Err       error
}

func (e *Error) Error() string {
	if e.AccountID != "" {
		return fmt.Sprintf("authcore: %s (account %s): %v", e.Op, e.AccountID, e.Err)
	}
	return fmt.Sprintf("authcore: %s: %v", e.Op, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// RateLimitError reports a throttled attempt and when it may be retried.
type RateLimitError struct {
	Scope       string
	LockedUntil time.Time
}

func (e *RateLimitError) Error() string {
	return fmt.Sprintf("rate limited (%s) until %s", e.Scope, e.LockedUntil.UTC().Format(time.RFC3339))
}

func (e *RateLimitError) Unwrap() error {
	return ErrRateLimited
}

// RetryAfter returns the wait from now until the lock expires, rounded up to
// whole seconds.
func (e *RateLimitError) RetryAfter(now time.Time) time.Duration {
	d := e.LockedUntil.Sub(now)
	if d <= 0 {
		return 0
	}
	return ((d + time.Second - 1) / time.Second) * time.Second
}

// ValidationError lists rejected input fields. It unwraps to ErrWeakInput.
type ValidationError struct {
	Fields map[string]string
}

func (e *ValidationError) Error() string {
	keys := make([]string, 0, len(e.Fields))
	for k := range e.Fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, k+": "+e.Fields[k])
	}
	return "weak input: " + strings.Join(parts, "; ")
}

func (e *ValidationError) Unwrap() error {
	return ErrWeakInput
}

func (e *Engine) opError(op, accountID string, err error) error {
	return &Error{
		Op:        op,
		AccountID: accountID,
		Time:      e.clock.Now(),
		Err:       err,
	}
}

// storeError normalizes backend failures, including cancellation and
// timeouts, to ErrStoreUnavailable.
func storeError(err error) error {
	if err == nil || errors.Is(err, ErrStoreUnavailable) {
		return err
	}
	return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
}
