package flows

import (
	"context"
	"errors"
	"time"

	"github.com/munyaradzichiondegwa/vision-2030-platform/session"
)

// ChangeRoleFailureKind classifies role-change failures for root-level mapping.
type ChangeRoleFailureKind int

const (
	ChangeRoleFailureNone ChangeRoleFailureKind = iota
	ChangeRoleFailureActorNotFound
	ChangeRoleFailureTargetNotFound
	ChangeRoleFailureUnknownRole
	ChangeRoleFailureForbidden
	ChangeRoleFailureStore
	// ChangeRoleFailureRevoke means the role was stored but the demoted
	// account's refresh tokens could not be revoked.
	ChangeRoleFailureRevoke
)

// maxRoleSwapAttempts bounds re-reads when the target's role keeps changing
// underneath a role change.
const maxRoleSwapAttempts = 3

// ErrRoleContended is returned when the target's role changed on every
// attempt.
var ErrRoleContended = errors.New("role changed concurrently")

// ChangeRoleRequest names who changes whose role to what.
type ChangeRoleRequest struct {
	ActorID  string
	TargetID string
	NewRole  string
}

// ChangeRoleResult carries the updated target or failure metadata.
type ChangeRoleResult struct {
	Failure ChangeRoleFailureKind
	Err     error
	Actor   *AccountRecord
	Target  *AccountRecord
	OldRole string
	Demoted bool
	Revoked int
}

// ChangeRoleDeps captures role-change dependencies.
type ChangeRoleDeps struct {
	// ManagePermission is the permission an actor must hold to change roles.
	ManagePermission string
	AccountNotFound  error

	Now      func() time.Time
	Roles    RoleEvaluator
	FindByID func(ctx context.Context, id string) (AccountRecord, error)
	SwapRole func(ctx context.Context, id, expected, next string, at time.Time) (bool, error)
	Tokens   session.Store
}

// RunChangeRole authorizes and persists a role change. The role is swapped
// only while it still holds the value the checks ran against. A demotion
// revokes the target's refresh tokens so the old role cannot be refreshed
// back.
func RunChangeRole(ctx context.Context, req ChangeRoleRequest, deps ChangeRoleDeps) ChangeRoleResult {
	if !deps.Roles.Known(req.NewRole) {
		return ChangeRoleResult{Failure: ChangeRoleFailureUnknownRole}
	}

	actor, err := deps.FindByID(ctx, req.ActorID)
	if err != nil {
		if errors.Is(err, deps.AccountNotFound) {
			return ChangeRoleResult{Failure: ChangeRoleFailureActorNotFound, Err: err}
		}
		return ChangeRoleResult{Failure: ChangeRoleFailureStore, Err: err}
	}

	if !actor.Active || !deps.Roles.HasPermission(actor.Role, deps.ManagePermission) {
		return ChangeRoleResult{Failure: ChangeRoleFailureForbidden, Actor: &actor}
	}

	for attempt := 0; attempt < maxRoleSwapAttempts; attempt++ {
		target, err := deps.FindByID(ctx, req.TargetID)
		if err != nil {
			if errors.Is(err, deps.AccountNotFound) {
				return ChangeRoleResult{Failure: ChangeRoleFailureTargetNotFound, Err: err, Actor: &actor}
			}
			return ChangeRoleResult{Failure: ChangeRoleFailureStore, Err: err, Actor: &actor}
		}

		oldRole := target.Role
		if !deps.Roles.CanModifyRole(actor.Role, oldRole, req.NewRole) {
			return ChangeRoleResult{Failure: ChangeRoleFailureForbidden, Actor: &actor, Target: &target, OldRole: oldRole}
		}

		now := deps.Now()
		swapped, err := deps.SwapRole(ctx, target.ID, oldRole, req.NewRole, now)
		if err != nil {
			if errors.Is(err, deps.AccountNotFound) {
				return ChangeRoleResult{Failure: ChangeRoleFailureTargetNotFound, Err: err, Actor: &actor}
			}
			return ChangeRoleResult{Failure: ChangeRoleFailureStore, Err: err, Actor: &actor, OldRole: oldRole}
		}
		if !swapped {
			continue
		}

		target.Role = req.NewRole
		target.UpdatedAt = now
		result := ChangeRoleResult{Actor: &actor, Target: &target, OldRole: oldRole}

		oldRank, _ := deps.Roles.Rank(oldRole)
		newRank, _ := deps.Roles.Rank(req.NewRole)
		// Re-applying the current role also revokes, so a change whose
		// revoke failed can be retried as is.
		if newRank <= oldRank {
			result.Demoted = newRank < oldRank
			n, err := deps.Tokens.RevokeAllForAccount(context.WithoutCancel(ctx), target.ID)
			result.Revoked = n
			if err != nil {
				result.Failure = ChangeRoleFailureRevoke
				result.Err = err
			}
		}
		return result
	}

	return ChangeRoleResult{Failure: ChangeRoleFailureStore, Err: ErrRoleContended, Actor: &actor}
}
