package shopauth

import "errors"

var (
	// ErrInvalidCredentials covers unknown email, wrong password and
	// password-less accounts alike.
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrAccountLocked      = errors.New("account locked")
	ErrTenantAccessDenied = errors.New("tenant access denied")
	// ErrMFARequired marks the intermediate login state. Login reports it through
	// LoginResult.MFARequired; transports may use it to render the state.
	ErrMFARequired         = errors.New("mfa required")
	ErrInvalidMFACode      = errors.New("invalid mfa code")
	ErrMFAAttemptsExceeded = errors.New("mfa attempts exceeded")
	// ErrInvalidMFAChallenge means the challenge id is unknown, expired, already
	// used or was issued for another tenant. The login starts over.
	ErrInvalidMFAChallenge = errors.New("invalid mfa challenge")
	ErrTwoFactorEnabled    = errors.New("two-factor already enabled")
	ErrTokenExpired        = errors.New("token expired")
	ErrTokenMalformed      = errors.New("token malformed")
	ErrTokenRevoked        = errors.New("token revoked")
	ErrFingerprintMismatch = errors.New("fingerprint mismatch")
	ErrEmailAlreadyUsed    = errors.New("email already used")
	ErrUserNotFound        = errors.New("user not found")
	ErrInvalidResetToken   = errors.New("invalid reset token")
	ErrIPNotAllowed        = errors.New("ip not allowed")
	ErrPasswordPolicy      = errors.New("password policy violation")
	ErrPasswordReuse       = errors.New("new password must be different from current password")
	ErrRoleNotFound        = errors.New("role not found")
	ErrInvalidPermission   = errors.New("invalid permission")
	ErrRateLimited         = errors.New("rate limited")
	ErrStoreUnavailable    = errors.New("store unavailable")
	ErrEngineNotReady      = errors.New("engine not initialized")

	// ErrIdentityNotFound is what IdentityStore and TenantDirectory
	// implementations return for a missing record.
	ErrIdentityNotFound = errors.New("identity not found")
)
