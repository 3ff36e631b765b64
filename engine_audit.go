package authcore

import (
	"context"
	"errors"
)

const (
	auditEventAccountRegistered    = "account_registered"
	auditEventRegisterFailure      = "register_failure"
	auditEventLoginSuccess         = "login_success"
	auditEventLoginFailure         = "login_failure"
	auditEventLoginRateLimited     = "login_rate_limited"
	auditEventPasswordRehashed     = "password_rehashed"
	auditEventRefreshSuccess       = "refresh_success"
	auditEventRefreshFailure       = "refresh_failure"
	auditEventRefreshReuseDetected = "refresh_reuse_detected"
	auditEventLogout               = "logout"
	auditEventRoleChanged          = "role_changed"
	auditEventRoleChangeDenied     = "role_change_denied"
	auditEventAPIRateLimited       = "api_rate_limited"
)

// AuditErrorCode is the stable error label written to AuditEvent.Error.
type AuditErrorCode string

const (
	auditErrInvalidCredentials AuditErrorCode = "invalid_credentials"
	auditErrAccountInactive    AuditErrorCode = "account_inactive"
	auditErrDuplicate          AuditErrorCode = "duplicate"
	auditErrRateLimited        AuditErrorCode = "rate_limited"
	auditErrTokenExpired       AuditErrorCode = "token_expired"
	auditErrInvalidToken       AuditErrorCode = "invalid_token"
	auditErrRefreshReuse       AuditErrorCode = "refresh_reuse"
	auditErrForbidden          AuditErrorCode = "insufficient_permission"
	auditErrWeakInput          AuditErrorCode = "weak_input"
	auditErrCorruptRecord      AuditErrorCode = "corrupt_record"
	auditErrNotFound           AuditErrorCode = "account_not_found"
	auditErrUnknownRole        AuditErrorCode = "unknown_role"
	auditErrUnavailable        AuditErrorCode = "backend_unavailable"
	auditErrInternal           AuditErrorCode = "internal_error"
)

func (e *Engine) emitAudit(
	ctx context.Context,
	eventType string,
	severity AuditSeverity,
	success bool,
	accountID string,
	err error,
	metadataBuilder func() map[string]string,
) {
	if e == nil || e.audit == nil {
		return
	}

	var metadata map[string]string
	if metadataBuilder != nil {
		metadata = metadataBuilder()
	}

	event := AuditEvent{
		Timestamp: e.clock.Now().UTC(),
		EventType: eventType,
		Severity:  severity,
		AccountID: accountID,
		Success:   success,
		IP:        ClientIPFromContext(ctx),
		UserAgent: UserAgentFromContext(ctx),
		Metadata:  metadata,
	}
	if code := auditErrorCode(err); code != "" {
		event.Error = string(code)
	}

	e.audit.Emit(ctx, event)
}

func auditErrorCode(err error) AuditErrorCode {
	if err == nil {
		return ""
	}

	switch {
	case errors.Is(err, ErrInvalidCredentials):
		return auditErrInvalidCredentials
	case errors.Is(err, ErrAccountInactive):
		return auditErrAccountInactive
	case errors.Is(err, ErrDuplicateAccount):
		return auditErrDuplicate
	case errors.Is(err, ErrRateLimited):
		return auditErrRateLimited
	case errors.Is(err, ErrTokenReuseDetected):
		return auditErrRefreshReuse
	case errors.Is(err, ErrTokenExpired):
		return auditErrTokenExpired
	case errors.Is(err, ErrInvalidToken):
		return auditErrInvalidToken
	case errors.Is(err, ErrInsufficientPermission):
		return auditErrForbidden
	case errors.Is(err, ErrWeakInput):
		return auditErrWeakInput
	case errors.Is(err, ErrCorruptRecord):
		return auditErrCorruptRecord
	case errors.Is(err, ErrAccountNotFound):
		return auditErrNotFound
	case errors.Is(err, ErrUnknownRole):
		return auditErrUnknownRole
	case errors.Is(err, ErrStoreUnavailable):
		return auditErrUnavailable
	default:
		return auditErrInternal
	}
}
