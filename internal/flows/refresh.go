package flows

import (
	"context"
	"errors"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/munyaradzichiondegwa/vision-2030-platform/session"
)

// RefreshFailureKind classifies refresh flow failures for root-level mapping.
type RefreshFailureKind int

const (
	RefreshFailureNone RefreshFailureKind = iota
	RefreshFailureMalformed
	RefreshFailureNotFound
	RefreshFailureReuse
	RefreshFailureExpired
	RefreshFailureAccountMissing
	RefreshFailureAccountInactive
	RefreshFailureStore
	RefreshFailureIssue
)

// RefreshResult carries the rotated pair or failure metadata.
type RefreshResult struct {
	Failure   RefreshFailureKind
	Err       error
	AccountID string
	RecordID  string
	// Status is the record status seen at lookup.
	Status  session.Status
	Revoked int
	Account *AccountRecord
	Tokens  *TokenPair
}

// RefreshDeps captures refresh flow dependencies.
type RefreshDeps struct {
	Now             func() time.Time
	Validate        func(raw string) error
	Hash            func(raw string) string
	Tokens          session.Store
	FindByID        func(ctx context.Context, id string) (AccountRecord, error)
	AccountNotFound error
	Issue           IssueDeps
	Logger          logrus.FieldLogger
}

// RunRefresh rotates a refresh token. A token that is not ACTIVE, or whose
// compare-and-set is lost to a concurrent presenter, is reuse: every ACTIVE
// token of the account is revoked before the result is returned.
func RunRefresh(ctx context.Context, raw string, deps RefreshDeps) RefreshResult {
	if err := deps.Validate(raw); err != nil {
		return RefreshResult{Failure: RefreshFailureMalformed, Err: err}
	}

	rec, err := deps.Tokens.FindByHash(ctx, deps.Hash(raw))
	if err != nil {
		if errors.Is(err, session.ErrRecordNotFound) {
			return RefreshResult{Failure: RefreshFailureNotFound, Err: err}
		}
		return RefreshResult{Failure: RefreshFailureStore, Err: err}
	}

	base := RefreshResult{AccountID: rec.AccountID, RecordID: rec.ID, Status: rec.Status}

	if rec.Status != session.StatusActive {
		return reuseDetected(ctx, base, deps)
	}

	if rec.Expired(deps.Now()) {
		base.Failure = RefreshFailureExpired
		return base
	}

	account, err := deps.FindByID(ctx, rec.AccountID)
	if err != nil {
		if errors.Is(err, deps.AccountNotFound) {
			n, revokeErr := deps.Tokens.RevokeAllForAccount(context.WithoutCancel(ctx), rec.AccountID)
			base.Revoked = n
			if revokeErr != nil {
				base.Failure = RefreshFailureStore
				base.Err = revokeErr
				return base
			}
			base.Failure = RefreshFailureAccountMissing
			base.Err = err
			return base
		}
		base.Failure = RefreshFailureStore
		base.Err = err
		return base
	}
	base.Account = &account

	if !account.Active {
		n, revokeErr := deps.Tokens.RevokeAllForAccount(context.WithoutCancel(ctx), rec.AccountID)
		base.Revoked = n
		if revokeErr != nil {
			base.Failure = RefreshFailureStore
			base.Err = revokeErr
			return base
		}
		base.Failure = RefreshFailureAccountInactive
		return base
	}

	won, err := deps.Tokens.CompareAndSetStatus(ctx, rec.ID, session.StatusActive, session.StatusConsumed)
	if err != nil {
		// Expired out of the store between lookup and CAS.
		if errors.Is(err, session.ErrRecordNotFound) {
			base.Failure = RefreshFailureNotFound
			base.Err = err
			return base
		}
		base.Failure = RefreshFailureStore
		base.Err = err
		return base
	}
	if !won {
		return reuseDetected(ctx, base, deps)
	}

	// The presented token is spent; issuance must not be abandoned by a
	// cancelled caller.
	tokens, err := RunIssueTokens(context.WithoutCancel(ctx), account, deps.Issue)
	if err != nil {
		base.Failure = RefreshFailureIssue
		base.Err = err
		return base
	}

	base.Tokens = tokens
	return base
}

func reuseDetected(ctx context.Context, base RefreshResult, deps RefreshDeps) RefreshResult {
	n, err := deps.Tokens.RevokeAllForAccount(context.WithoutCancel(ctx), base.AccountID)
	if err != nil {
		deps.Logger.WithError(err).WithField("account_id", base.AccountID).Error("revoke after refresh reuse failed")
		base.Failure = RefreshFailureStore
		base.Err = err
		return base
	}

	base.Failure = RefreshFailureReuse
	base.Revoked = n
	return base
}
