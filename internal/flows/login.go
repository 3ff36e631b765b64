package flows

import (
	"context"
	"errors"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/munyaradzichiondegwa/vision-2030-platform/internal/rate"
)

// LoginFailureKind classifies login flow failures for root-level mapping.
type LoginFailureKind int

const (
	LoginFailureNone LoginFailureKind = iota
	LoginFailureRateLimited
	LoginFailureUnknownAccount
	LoginFailureBadPassword
	LoginFailureInactive
	LoginFailureCorruptRecord
	LoginFailureStore
	LoginFailureIssue
)

// LoginRequest is the login input plus request origin.
type LoginRequest struct {
	Email    string
	Password string
	IP       string
}

// LoginResult carries issued tokens or failure metadata.
type LoginResult struct {
	Failure     LoginFailureKind
	Err         error
	Account     *AccountRecord
	Tokens      *TokenPair
	LockedUntil time.Time
	// LimitedBy is "identity" or "ip" for rate-limited results.
	LimitedBy string
	Rehashed  bool
}

// LoginDeps captures login flow dependencies.
type LoginDeps struct {
	EnableIPLimit  bool
	UpgradeOnLogin bool
	// DummyHash is verified against for unknown accounts so both paths cost
	// one password derivation.
	DummyHash       string
	AccountNotFound error

	Now            func() time.Time
	Limiter        Limiter
	FindByEmail    func(ctx context.Context, email string) (AccountRecord, error)
	FindByID       func(ctx context.Context, id string) (AccountRecord, error)
	RecordLogin    func(ctx context.Context, id string, at time.Time) error
	SwapHash       func(ctx context.Context, id, expected, next string, at time.Time) (bool, error)
	VerifyPassword func(password, record string) (bool, error)
	NeedsRehash    func(record string) (bool, error)
	HashPassword   func(string) (string, error)
	Issue          IssueDeps
	Logger         logrus.FieldLogger
}

// IdentitySubject is the limiter subject for an email address.
func IdentitySubject(email string) string {
	return "id:" + NormalizeEmail(email)
}

// IPSubject is the limiter subject for a client address.
func IPSubject(ip string) string {
	return "ip:" + ip
}

// RunLogin gates on the limiter, verifies the password and issues tokens.
func RunLogin(ctx context.Context, req LoginRequest, deps LoginDeps) LoginResult {
	email := NormalizeEmail(req.Email)

	subjects := []struct {
		name, subject string
	}{{"identity", IdentitySubject(email)}}
	if deps.EnableIPLimit && req.IP != "" {
		subjects = append(subjects, struct{ name, subject string }{"ip", IPSubject(req.IP)})
	}

	for _, s := range subjects {
		decision, err := deps.Limiter.Attempt(ctx, rate.ClassLogin, s.subject)
		if err != nil {
			return LoginResult{Failure: LoginFailureStore, Err: err}
		}
		if !decision.Allowed {
			return LoginResult{
				Failure:     LoginFailureRateLimited,
				LockedUntil: decision.LockedUntil,
				LimitedBy:   s.name,
			}
		}
	}

	account, err := deps.FindByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, deps.AccountNotFound) {
			_, _ = deps.VerifyPassword(req.Password, deps.DummyHash)
			return LoginResult{Failure: LoginFailureUnknownAccount, Err: err}
		}
		return LoginResult{Failure: LoginFailureStore, Err: err}
	}

	ok, err := deps.VerifyPassword(req.Password, account.PasswordHash)
	if err != nil {
		return LoginResult{Failure: LoginFailureCorruptRecord, Err: err, Account: &account}
	}
	if !ok {
		return LoginResult{Failure: LoginFailureBadPassword, Account: &account}
	}
	if !account.Active {
		return LoginResult{Failure: LoginFailureInactive, Account: &account}
	}

	for _, s := range subjects {
		if err := deps.Limiter.Reset(ctx, rate.ClassLogin, s.subject); err != nil {
			deps.Logger.WithError(err).WithField("account_id", account.ID).Warn("login limiter reset failed")
		}
	}

	now := deps.Now()
	rehashed := false
	if deps.UpgradeOnLogin {
		needs, err := deps.NeedsRehash(account.PasswordHash)
		if err == nil && needs {
			rehashed = upgradeHash(ctx, &account, req.Password, now, deps)
		}
	}

	if err := deps.RecordLogin(ctx, account.ID, now); err != nil {
		return LoginResult{Failure: LoginFailureStore, Err: err, Account: &account}
	}

	// Tokens carry the role and status as stored now, not as first read.
	current, err := deps.FindByID(ctx, account.ID)
	if err != nil {
		return LoginResult{Failure: LoginFailureStore, Err: err, Account: &account}
	}
	account = current
	if !account.Active {
		return LoginResult{Failure: LoginFailureInactive, Account: &account}
	}

	tokens, err := RunIssueTokens(ctx, account, deps.Issue)
	if err != nil {
		return LoginResult{Failure: LoginFailureIssue, Err: err, Account: &account}
	}

	return LoginResult{Account: &account, Tokens: tokens, Rehashed: rehashed}
}

// upgradeHash swaps in a hash with the current parameters. A concurrent
// password change wins; the upgrade is retried on the next login.
func upgradeHash(ctx context.Context, account *AccountRecord, password string, now time.Time, deps LoginDeps) bool {
	upgraded, err := deps.HashPassword(password)
	if err != nil {
		deps.Logger.WithError(err).WithField("account_id", account.ID).Warn("password rehash failed")
		return false
	}
	swapped, err := deps.SwapHash(ctx, account.ID, account.PasswordHash, upgraded, now)
	if err != nil {
		deps.Logger.WithError(err).WithField("account_id", account.ID).Warn("password rehash not stored")
		return false
	}
	if !swapped {
		return false
	}
	account.PasswordHash = upgraded
	return true
}
