package flows

import (
	"context"
	"fmt"
	"time"

	"github.com/munyaradzichiondegwa/vision-2030-platform/session"
)

// IssueDeps captures token issuance dependencies shared by login and refresh.
type IssueDeps struct {
	Now             func() time.Time
	RefreshTTL      time.Duration
	NewID           func() string
	GenerateRefresh func() (raw string, hash string, err error)
	CreateAccess    func(AccountRecord) (string, time.Time, error)
	Tokens          session.Store
}

// RunIssueTokens stores a fresh ACTIVE refresh record for account and signs
// an access token. The raw refresh value is only returned, never stored.
func RunIssueTokens(ctx context.Context, account AccountRecord, deps IssueDeps) (*TokenPair, error) {
	raw, hash, err := deps.GenerateRefresh()
	if err != nil {
		return nil, fmt.Errorf("generate refresh token: %w", err)
	}

	now := deps.Now()
	rec := &session.Record{
		ID:        deps.NewID(),
		AccountID: account.ID,
		TokenHash: hash,
		Type:      session.TypeRefresh,
		Status:    session.StatusActive,
		CreatedAt: now,
		ExpiresAt: now.Add(deps.RefreshTTL),
	}
	if err := deps.Tokens.Create(ctx, rec); err != nil {
		return nil, err
	}

	access, accessExp, err := deps.CreateAccess(account)
	if err != nil {
		return nil, fmt.Errorf("sign access token: %w", err)
	}

	return &TokenPair{
		AccessToken:      access,
		AccessExpiresAt:  accessExp,
		RefreshToken:     raw,
		RefreshExpiresAt: rec.ExpiresAt,
	}, nil
}
