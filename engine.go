package authcore

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/munyaradzichiondegwa/vision-2030-platform/internal/audit"
	"github.com/munyaradzichiondegwa/vision-2030-platform/internal/flows"
	"github.com/munyaradzichiondegwa/vision-2030-platform/internal/rate"
	"github.com/munyaradzichiondegwa/vision-2030-platform/jwt"
	"github.com/munyaradzichiondegwa/vision-2030-platform/password"
	"github.com/munyaradzichiondegwa/vision-2030-platform/permission"
	"github.com/munyaradzichiondegwa/vision-2030-platform/session"
)

// Engine authenticates accounts, rotates refresh tokens and answers role
// questions. Build one with New().…Build(); methods are safe for concurrent
// use.
type Engine struct {
	config    Config
	clock     Clock
	logger    logrus.FieldLogger
	accounts  AccountStore
	tokens    session.Store
	limiter   *rate.Limiter
	counters  rate.CounterStore
	roles     *permission.Hierarchy
	hasher    *password.Hasher
	jwt       *jwt.Manager
	validator *inputValidator
	audit     *audit.Dispatcher
	metrics   *Metrics
	flows     flows.Service
	closed    atomic.Bool
}

// Close drains the audit dispatcher. Operations on a closed Engine return
// ErrEngineNotReady.
func (e *Engine) Close() {
	if e == nil {
		return
	}
	if e.closed.Swap(true) {
		return
	}
	if e.audit != nil {
		e.audit.Close()
	}
}

func (e *Engine) ready() error {
	if e == nil || !e.flows.Initialized() || e.closed.Load() {
		return ErrEngineNotReady
	}
	return nil
}

// SweepsRateCounters reports whether the rate counter store keeps expired
// counters until SweepRateCounters runs. The in-process store does; Redis
// expires keys itself.
func (e *Engine) SweepsRateCounters() bool {
	_, ok := e.counters.(rate.Sweeper)
	return ok
}

// SweepRateCounters drops expired rate counters and returns how many were
// removed.
func (e *Engine) SweepRateCounters() int {
	sw, ok := e.counters.(rate.Sweeper)
	if !ok {
		return 0
	}
	return sw.Sweep()
}

type pinger interface {
	Ping(ctx context.Context) (time.Duration, error)
}

// Health pings the refresh token store and returns its latency. Stores
// without a Ping method are reported healthy.
func (e *Engine) Health(ctx context.Context) (time.Duration, error) {
	if err := e.ready(); err != nil {
		return 0, err
	}
	p, ok := e.tokens.(pinger)
	if !ok {
		return 0, nil
	}
	latency, err := p.Ping(ctx)
	if err != nil {
		return latency, storeError(err)
	}
	return latency, nil
}

// AuditDropped returns the number of audit events discarded on a full buffer.
func (e *Engine) AuditDropped() uint64 {
	if e == nil || e.audit == nil {
		return 0
	}
	return e.audit.Dropped()
}

// AuditFailed returns the number of audit events the sink rejected.
func (e *Engine) AuditFailed() uint64 {
	if e == nil || e.audit == nil {
		return 0
	}
	return e.audit.Failed()
}

func (e *Engine) MetricsSnapshot() MetricsSnapshot {
	if e == nil || e.metrics == nil {
		return MetricsSnapshot{
			Counters:   map[MetricID]uint64{},
			Histograms: map[MetricID][]uint64{},
		}
	}
	return e.metrics.Snapshot()
}

// Register validates req, rejects a taken username or email and stores a new
// active account with the default role.
func (e *Engine) Register(ctx context.Context, req RegisterRequest) (*Account, error) {
	const op = "register"
	if err := e.ready(); err != nil {
		return nil, err
	}

	res := e.flows.Register(ctx, flows.RegisterInput{
		Username: req.Username,
		Email:    req.Email,
		Password: req.Password,
	})

	var err error
	switch res.Failure {
	case flows.RegisterFailureNone:
		account := fromRecord(*res.Account)
		e.metrics.Inc(MetricRegisterSuccess)
		e.emitAudit(ctx, auditEventAccountRegistered, SeverityInfo, true, account.ID, nil, func() map[string]string {
			return map[string]string{"role": account.Role}
		})
		return account, nil
	case flows.RegisterFailureInvalid:
		e.metrics.Inc(MetricRegisterInvalid)
		err = res.Err
	case flows.RegisterFailureDuplicate:
		e.metrics.Inc(MetricRegisterDuplicate)
		err = ErrDuplicateAccount
	case flows.RegisterFailureHash:
		err = res.Err
	default:
		e.metrics.Inc(MetricStoreFailure)
		err = storeError(res.Err)
	}

	e.emitAudit(ctx, auditEventRegisterFailure, SeverityInfo, false, "", err, nil)
	return nil, e.opError(op, "", err)
}

// Login authenticates email and password. The client IP attached with
// WithClientIP feeds the per-IP limiter.
//
// Unknown accounts and wrong passwords both return ErrInvalidCredentials. A
// correct password on an inactive account also returns ErrInvalidCredentials
// unless Login.RevealInactive is set.
func (e *Engine) Login(ctx context.Context, email, password string) (*LoginResult, error) {
	const op = "login"
	if err := e.ready(); err != nil {
		return nil, err
	}

	start := e.clock.Now()
	res := e.flows.Login(ctx, flows.LoginRequest{
		Email:    email,
		Password: password,
		IP:       ClientIPFromContext(ctx),
	})
	e.metrics.Observe(MetricLoginLatency, e.clock.Now().Sub(start))

	accountID := ""
	if res.Account != nil {
		accountID = res.Account.ID
	}

	var err error
	severity := SeverityWarning
	switch res.Failure {
	case flows.LoginFailureNone:
		if res.Rehashed {
			e.metrics.Inc(MetricPasswordRehashed)
			e.emitAudit(ctx, auditEventPasswordRehashed, SeverityInfo, true, accountID, nil, nil)
		}
		e.metrics.Inc(MetricLoginSuccess)
		e.emitAudit(ctx, auditEventLoginSuccess, SeverityInfo, true, accountID, nil, nil)

		account := fromRecord(*res.Account)
		return &LoginResult{
			Account: account,
			Tokens:  e.tokenPair(res.Tokens),
		}, nil

	case flows.LoginFailureRateLimited:
		e.metrics.Inc(MetricLoginRateLimited)
		rl := &RateLimitError{Scope: "login:" + res.LimitedBy, LockedUntil: res.LockedUntil}
		e.emitAudit(ctx, auditEventLoginRateLimited, SeverityWarning, false, "", rl, func() map[string]string {
			return map[string]string{
				"scope":        rl.Scope,
				"locked_until": rl.LockedUntil.UTC().Format(time.RFC3339),
			}
		})
		return nil, e.opError(op, "", rl)

	case flows.LoginFailureUnknownAccount, flows.LoginFailureBadPassword:
		err = ErrInvalidCredentials

	case flows.LoginFailureInactive:
		err = ErrInvalidCredentials
		if e.config.Login.RevealInactive {
			err = ErrAccountInactive
		}

	case flows.LoginFailureCorruptRecord:
		severity = SeverityCritical
		e.logger.WithFields(logrus.Fields{"op": op, "account_id": accountID}).WithError(res.Err).Error("stored password hash is unreadable")
		err = ErrCorruptRecord

	default:
		e.metrics.Inc(MetricStoreFailure)
		err = storeError(res.Err)
	}

	e.metrics.Inc(MetricLoginFailure)
	e.emitAudit(ctx, auditEventLoginFailure, severity, false, accountID, err, nil)
	// The account id is withheld so callers cannot tell unknown from inactive.
	return nil, e.opError(op, "", err)
}

// Refresh rotates a refresh token. The presented token is spent whether or
// not the call succeeds; presenting a spent token revokes every active token
// of its account and returns ErrTokenReuseDetected.
func (e *Engine) Refresh(ctx context.Context, raw string) (*TokenPair, error) {
	const op = "refresh"
	if err := e.ready(); err != nil {
		return nil, err
	}

	res := e.flows.Refresh(ctx, raw)

	var err error
	switch res.Failure {
	case flows.RefreshFailureNone:
		e.metrics.Inc(MetricRefreshSuccess)
		e.emitAudit(ctx, auditEventRefreshSuccess, SeverityInfo, true, res.AccountID, nil, nil)
		pair := e.tokenPair(res.Tokens)
		return &pair, nil

	case flows.RefreshFailureReuse:
		e.metrics.Inc(MetricRefreshReuseDetected)
		e.metrics.Add(MetricTokensRevoked, res.Revoked)
		e.logger.WithFields(logrus.Fields{
			"op":         op,
			"account_id": res.AccountID,
			"revoked":    res.Revoked,
		}).Warn("refresh token reuse detected")
		e.emitAudit(ctx, auditEventRefreshReuseDetected, SeverityCritical, false, res.AccountID, ErrTokenReuseDetected, func() map[string]string {
			return map[string]string{
				"record_id":     res.RecordID,
				"record_status": string(res.Status),
				"revoked":       strconv.Itoa(res.Revoked),
			}
		})
		return nil, e.opError(op, res.AccountID, ErrTokenReuseDetected)

	case flows.RefreshFailureMalformed, flows.RefreshFailureNotFound:
		err = ErrInvalidToken
	case flows.RefreshFailureExpired:
		err = ErrTokenExpired
	case flows.RefreshFailureAccountMissing:
		e.metrics.Add(MetricTokensRevoked, res.Revoked)
		err = ErrInvalidToken
	case flows.RefreshFailureAccountInactive:
		e.metrics.Add(MetricTokensRevoked, res.Revoked)
		err = ErrAccountInactive
	default:
		e.metrics.Inc(MetricStoreFailure)
		err = storeError(res.Err)
	}

	e.metrics.Inc(MetricRefreshFailure)
	e.emitAudit(ctx, auditEventRefreshFailure, SeverityWarning, false, res.AccountID, err, nil)
	return nil, e.opError(op, res.AccountID, err)
}

// Logout revokes every active refresh token of accountID. Issued access
// tokens stay valid until they expire.
func (e *Engine) Logout(ctx context.Context, accountID string) error {
	const op = "logout"
	if err := e.ready(); err != nil {
		return err
	}
	if accountID == "" {
		return e.opError(op, "", ErrAccountNotFound)
	}

	n, err := e.flows.Logout(ctx, accountID)
	if err != nil {
		e.metrics.Inc(MetricStoreFailure)
		err = storeError(err)
		e.emitAudit(ctx, auditEventLogout, SeverityWarning, false, accountID, err, nil)
		return e.opError(op, accountID, err)
	}

	e.metrics.Inc(MetricLogout)
	e.metrics.Add(MetricTokensRevoked, n)
	e.emitAudit(ctx, auditEventLogout, SeverityInfo, true, accountID, nil, func() map[string]string {
		return map[string]string{"revoked": strconv.Itoa(n)}
	})
	return nil
}

// ChangeRole sets targetID's role to newRole on behalf of actorID. The actor
// must be active, hold Roles.ManagePermission and pass CanModifyRole. A
// demotion revokes the target's refresh tokens.
func (e *Engine) ChangeRole(ctx context.Context, actorID, targetID, newRole string) (*Account, error) {
	const op = "change_role"
	if err := e.ready(); err != nil {
		return nil, err
	}

	res := e.flows.ChangeRole(ctx, flows.ChangeRoleRequest{
		ActorID:  actorID,
		TargetID: targetID,
		NewRole:  newRole,
	})

	meta := func() map[string]string {
		m := map[string]string{
			"changed_by": actorID,
			"new_role":   newRole,
		}
		if res.OldRole != "" {
			m["old_role"] = res.OldRole
		}
		if res.Demoted || res.Revoked > 0 {
			m["revoked"] = strconv.Itoa(res.Revoked)
		}
		if res.Failure == flows.ChangeRoleFailureRevoke {
			m["revoke_failed"] = "true"
		}
		return m
	}

	var err error
	switch res.Failure {
	case flows.ChangeRoleFailureNone:
		e.metrics.Inc(MetricRoleChanged)
		e.metrics.Add(MetricTokensRevoked, res.Revoked)
		e.emitAudit(ctx, auditEventRoleChanged, SeverityWarning, true, targetID, nil, meta)
		return fromRecord(*res.Target), nil
	case flows.ChangeRoleFailureUnknownRole:
		err = ErrUnknownRole
	case flows.ChangeRoleFailureActorNotFound, flows.ChangeRoleFailureForbidden:
		e.metrics.Inc(MetricRoleChangeDenied)
		err = ErrInsufficientPermission
	case flows.ChangeRoleFailureTargetNotFound:
		err = ErrAccountNotFound
	case flows.ChangeRoleFailureRevoke:
		// The role is stored; retrying the same change repeats the revoke.
		e.metrics.Inc(MetricRoleChanged)
		e.metrics.Inc(MetricStoreFailure)
		e.metrics.Add(MetricTokensRevoked, res.Revoked)
		e.logger.WithFields(logrus.Fields{"op": op, "account_id": targetID}).WithError(res.Err).Error("revoke after demotion failed")
		e.emitAudit(ctx, auditEventRoleChanged, SeverityCritical, true, targetID, res.Err, meta)
		return nil, e.opError(op, targetID, storeError(res.Err))
	default:
		e.metrics.Inc(MetricStoreFailure)
		err = storeError(res.Err)
	}

	e.emitAudit(ctx, auditEventRoleChangeDenied, SeverityWarning, false, targetID, err, meta)
	return nil, e.opError(op, targetID, err)
}

// VerifyAccessToken checks signature, expiry, issuer and audience of an
// access token without touching any store.
func (e *Engine) VerifyAccessToken(ctx context.Context, token string) (*Claims, error) {
	const op = "verify"
	if err := e.ready(); err != nil {
		return nil, err
	}

	start := e.clock.Now()
	res := e.flows.Verify(token)
	e.metrics.Observe(MetricVerifyLatency, e.clock.Now().Sub(start))

	var err error
	switch res.Failure {
	case flows.VerifyFailureNone:
		e.metrics.Inc(MetricVerifySuccess)
		c := res.Claims
		return &Claims{
			AccountID: c.Subject,
			Email:     c.Email,
			Role:      c.Role,
			TokenID:   c.ID,
			IssuedAt:  c.IssuedAt.Time,
			ExpiresAt: c.ExpiresAt.Time,
		}, nil
	case flows.VerifyFailureExpired:
		err = ErrTokenExpired
	case flows.VerifyFailureUnknownRole:
		err = fmt.Errorf("%w: %w", ErrInvalidToken, ErrUnknownRole)
	default:
		err = ErrInvalidToken
	}

	e.metrics.Inc(MetricVerifyFailure)
	return nil, e.opError(op, "", err)
}

// Satisfies reports whether actual ranks at or above required. Unknown roles
// never satisfy and are never satisfied.
func (e *Engine) Satisfies(actual, required string) bool {
	if e == nil || e.roles == nil {
		return false
	}
	return e.roles.Satisfies(actual, required)
}

// CanModifyRole reports whether actor may move a target from targetCurrent to
// targetNew.
func (e *Engine) CanModifyRole(actor, targetCurrent, targetNew string) bool {
	if e == nil || e.roles == nil {
		return false
	}
	return e.roles.CanModifyRole(actor, targetCurrent, targetNew)
}

// PermissionsOf lists the cumulative permissions of role.
func (e *Engine) PermissionsOf(role string) []string {
	if e == nil || e.roles == nil {
		return nil
	}
	return e.roles.PermissionsOf(role)
}

func (e *Engine) HasPermission(role, perm string) bool {
	if e == nil || e.roles == nil {
		return false
	}
	return e.roles.HasPermission(role, perm)
}

// Roles returns the configured roles, lowest first.
func (e *Engine) Roles() []string {
	if e == nil || e.roles == nil {
		return nil
	}
	return e.roles.Roles()
}

// AttemptAPI counts one request by subject against the api class. A denied
// attempt returns the decision together with a *RateLimitError.
func (e *Engine) AttemptAPI(ctx context.Context, subject string) (RateDecision, error) {
	const op = "attempt_api"
	if err := e.ready(); err != nil {
		return RateDecision{}, err
	}

	d, err := e.limiter.Attempt(ctx, rate.ClassAPI, subject)
	if err != nil {
		e.metrics.Inc(MetricStoreFailure)
		return RateDecision{}, e.opError(op, "", storeError(err))
	}

	decision := RateDecision{Allowed: d.Allowed, Count: d.Count, LockedUntil: d.LockedUntil}
	if d.Allowed {
		return decision, nil
	}

	e.metrics.Inc(MetricAPIRateLimited)
	rl := &RateLimitError{Scope: "api", LockedUntil: d.LockedUntil}
	// Only the first denial of a window is audited.
	if d.Count == int64(e.config.RateLimit.API.Threshold)+1 {
		e.emitAudit(ctx, auditEventAPIRateLimited, SeverityWarning, false, "", rl, func() map[string]string {
			return map[string]string{"subject": subject}
		})
	}
	return decision, e.opError(op, "", rl)
}

func (e *Engine) tokenPair(p *flows.TokenPair) TokenPair {
	return TokenPair{
		AccessToken:      p.AccessToken,
		AccessExpiresAt:  p.AccessExpiresAt,
		RefreshToken:     p.RefreshToken,
		RefreshExpiresAt: p.RefreshExpiresAt,
		TokenType:        "Bearer",
	}
}

// IsRetryable reports whether err came from an unavailable backend and the
// operation may be retried.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrStoreUnavailable)
}
