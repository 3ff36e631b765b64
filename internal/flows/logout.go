package flows

import (
	"context"

	"github.com/munyaradzichiondegwa/vision-2030-platform/session"
)

// LogoutDeps captures logout flow dependencies.
type LogoutDeps struct {
	Tokens session.Store
}

// RunLogout revokes every ACTIVE refresh token of accountID.
func RunLogout(ctx context.Context, accountID string, deps LogoutDeps) (int, error) {
	return deps.Tokens.RevokeAllForAccount(ctx, accountID)
}
