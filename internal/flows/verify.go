package flows

import (
	"errors"

	"github.com/munyaradzichiondegwa/vision-2030-platform/jwt"
)

// VerifyFailureKind classifies access-token verification failures.
type VerifyFailureKind int

const (
	VerifyFailureNone VerifyFailureKind = iota
	VerifyFailureExpired
	VerifyFailureInvalid
	VerifyFailureUnknownRole
)

// VerifyResult carries decoded claims or failure metadata.
type VerifyResult struct {
	Failure VerifyFailureKind
	Err     error
	Claims  *jwt.AccessClaims
}

// VerifyDeps captures access-token verification dependencies.
type VerifyDeps struct {
	ParseAccess func(string) (*jwt.AccessClaims, error)
	Roles       RoleEvaluator
}

// RunVerify checks an access token and that its role is still part of the
// configured hierarchy.
func RunVerify(token string, deps VerifyDeps) VerifyResult {
	claims, err := deps.ParseAccess(token)
	if err != nil {
		if errors.Is(err, jwt.ErrExpired) {
			return VerifyResult{Failure: VerifyFailureExpired, Err: err}
		}
		return VerifyResult{Failure: VerifyFailureInvalid, Err: err}
	}

	if !deps.Roles.Known(claims.Role) {
		return VerifyResult{Failure: VerifyFailureUnknownRole, Claims: claims}
	}

	return VerifyResult{Claims: claims}
}
