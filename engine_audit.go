package shopauth

import (
	"context"
	"errors"
	"time"
)

const (
	auditEventRegister              = "register"
	auditEventLoginSuccess          = "login_success"
	auditEventLoginFailure          = "login_failure"
	auditEventAccountLocked         = "account_locked"
	auditEventAccountUnlocked       = "account_unlocked"
	auditEventMFARequired           = "mfa_required"
	auditEventMFASuccess            = "mfa_success"
	auditEventMFAFailure            = "mfa_failure"
	auditEventSocialLogin           = "social_login"
	auditEventRefreshSuccess        = "refresh_success"
	auditEventRefreshInvalid        = "refresh_invalid"
	auditEventFingerprintMismatch   = "fingerprint_mismatch"
	auditEventTenantDenied          = "tenant_access_denied"
	auditEventLogout                = "logout"
	auditEventPasswordResetRequest  = "password_reset_request"
	auditEventPasswordResetConfirm  = "password_reset_confirm"
	auditEventPasswordChangeSuccess = "password_change_success"
	auditEventPasswordChangeFailure = "password_change_failure"
	auditEventTwoFactorEnabled      = "totp_enabled"
	auditEventTwoFactorDisabled     = "totp_disabled"
	auditEventPermissionsChanged    = "permissions_changed"
	auditEventRateLimitTriggered    = "rate_limit_triggered"
)

type AuditErrorCode string

const (
	auditErrInvalidCredentials  AuditErrorCode = "invalid_credentials"
	auditErrAccountLocked       AuditErrorCode = "account_locked"
	auditErrTenantDenied        AuditErrorCode = "tenant_access_denied"
	auditErrMFAInvalid          AuditErrorCode = "mfa_invalid"
	auditErrMFAAttemptsExceeded AuditErrorCode = "mfa_attempts_exceeded"
	auditErrTokenExpired        AuditErrorCode = "token_expired"
	auditErrTokenMalformed      AuditErrorCode = "token_malformed"
	auditErrTokenRevoked        AuditErrorCode = "token_revoked"
	auditErrFingerprintMismatch AuditErrorCode = "fingerprint_mismatch"
	auditErrDuplicate           AuditErrorCode = "duplicate"
	auditErrUserNotFound        AuditErrorCode = "user_not_found"
	auditErrInvalidResetToken   AuditErrorCode = "invalid_reset_token"
	auditErrIPNotAllowed        AuditErrorCode = "ip_not_allowed"
	auditErrPasswordPolicy      AuditErrorCode = "password_policy"
	auditErrRateLimited         AuditErrorCode = "rate_limited"
	auditErrUnavailable         AuditErrorCode = "backend_unavailable"
	auditErrInternal            AuditErrorCode = "internal_error"
)

func (e *Engine) emitAudit(
	ctx context.Context,
	eventType string,
	success bool,
	userID string,
	tenantID string,
	sessionID string,
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
		Timestamp: e.now().UTC(),
		EventType: eventType,
		UserID:    userID,
		TenantID:  tenantID,
		SessionID: sessionID,
		IP:        clientIPFromContext(ctx),
		Success:   success,
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
	case errors.Is(err, ErrAccountLocked):
		return auditErrAccountLocked
	case errors.Is(err, ErrTenantAccessDenied):
		return auditErrTenantDenied
	case errors.Is(err, ErrInvalidMFACode):
		return auditErrMFAInvalid
	case errors.Is(err, ErrMFAAttemptsExceeded):
		return auditErrMFAAttemptsExceeded
	case errors.Is(err, ErrTokenExpired):
		return auditErrTokenExpired
	case errors.Is(err, ErrTokenMalformed):
		return auditErrTokenMalformed
	case errors.Is(err, ErrTokenRevoked):
		return auditErrTokenRevoked
	case errors.Is(err, ErrFingerprintMismatch):
		return auditErrFingerprintMismatch
	case errors.Is(err, ErrEmailAlreadyUsed):
		return auditErrDuplicate
	case errors.Is(err, ErrUserNotFound):
		return auditErrUserNotFound
	case errors.Is(err, ErrInvalidResetToken):
		return auditErrInvalidResetToken
	case errors.Is(err, ErrIPNotAllowed):
		return auditErrIPNotAllowed
	case errors.Is(err, ErrPasswordPolicy), errors.Is(err, ErrPasswordReuse):
		return auditErrPasswordPolicy
	case errors.Is(err, ErrRateLimited):
		return auditErrRateLimited
	case errors.Is(err, ErrStoreUnavailable):
		return auditErrUnavailable
	default:
		return auditErrInternal
	}
}

// shortID truncates identifiers for theft-signal logs.
func shortID(id string) string {
	if len(id) <= 8 {
		return id
	}
	return id[:8] + "…"
}

func remaining(exp, now time.Time) time.Duration {
	if exp.IsZero() {
		return 0
	}
	return exp.Sub(now)
}
