package shopauth

import (
	"context"
	"errors"

	"go.uber.org/zap"

	"github.com/MrEthical07/shopauth/internal"
	"github.com/MrEthical07/shopauth/internal/metrics"
	"github.com/MrEthical07/shopauth/internal/rate"
	"github.com/MrEthical07/shopauth/jwt"
	"github.com/MrEthical07/shopauth/password"
	"github.com/MrEthical07/shopauth/permission"
	"github.com/MrEthical07/shopauth/revocation"
	"github.com/MrEthical07/shopauth/tenancy"
)

const (
	methodPassword = "password"
	methodTOTP     = "totp"
	methodSocial   = "social"
	methodRegister = "register"

	scopeLogin = "login"
	scopeReset = "reset"
)

// Register creates an account in tenant with the default role and logs it in.
func (e *Engine) Register(ctx context.Context, tenant *Tenant, req RegisterRequest) (*TokenPair, error) {
	if err := e.ready(); err != nil {
		return nil, err
	}
	if tenant == nil {
		return nil, ErrTenantAccessDenied
	}
	email := NormalizeEmail(req.Email)
	if email == "" {
		return nil, ErrInvalidCredentials
	}

	existing, err := e.identities.FindByEmailInTenant(ctx, tenant.ID, email)
	switch {
	case err == nil && existing != nil:
		e.emitAudit(ctx, auditEventRegister, false, "", tenant.ID, "", ErrEmailAlreadyUsed, nil)
		return nil, ErrEmailAlreadyUsed
	case err != nil && !errors.Is(err, ErrIdentityNotFound):
		return nil, storeError(err)
	}

	hash, err := e.hasher.Hash(req.Password)
	if err != nil {
		return nil, mapHashError(err)
	}

	role, err := e.ensureDefaultRole(ctx, tenant.ID)
	if err != nil {
		return nil, err
	}

	p := &Principal{
		TenantID:     tenant.ID,
		Email:        email,
		PasswordHash: hash,
		FirstName:    req.FirstName,
		LastName:     req.LastName,
		Phone:        req.Phone,
		Roles:        []string{role.Name},
	}
	if err := e.identities.Create(ctx, p); err != nil {
		e.emitAudit(ctx, auditEventRegister, false, "", tenant.ID, "", err, nil)
		return nil, storeError(err)
	}

	perms, err := e.permissions.Refresh(ctx, p.ID)
	if err != nil {
		return nil, storeError(err)
	}
	pair, err := e.issueSession(ctx, p, perms)
	if err != nil {
		return nil, err
	}

	e.metrics.Login(methodRegister, metrics.OutcomeSuccess)
	e.emitAudit(ctx, auditEventRegister, true, p.ID, p.TenantID, pair.SessionID, nil, nil)
	e.welcome(ctx, p)
	return pair, nil
}

// Login checks a password and either issues a session or reports that a TOTP
// code is required. Unknown emails, wrong passwords and password-less accounts
// all fail with ErrInvalidCredentials.
func (e *Engine) Login(ctx context.Context, tenant *Tenant, email, plaintext string) (*LoginResult, error) {
	if err := e.ready(); err != nil {
		return nil, err
	}
	ip := clientIPFromContext(ctx)
	if err := e.checkRate(ctx, scopeLogin, ip); err != nil {
		e.metrics.Login(methodPassword, metrics.OutcomeRateLimited)
		return nil, err
	}

	p, err := e.findLoginPrincipal(ctx, tenant, NormalizeEmail(email))
	if err != nil {
		if !errors.Is(err, ErrIdentityNotFound) {
			return nil, storeError(err)
		}
		e.burnHash(plaintext)
		return nil, e.loginFailed(ctx, nil, tenantID(tenant), ErrInvalidCredentials)
	}
	if p.IsDeleted() || p.PasswordHash == "" {
		e.burnHash(plaintext)
		return nil, e.loginFailed(ctx, p, p.TenantID, ErrInvalidCredentials)
	}

	now := e.now()
	if p.IsLocked(now) {
		e.metrics.Login(methodPassword, metrics.OutcomeLocked)
		e.emitAudit(ctx, auditEventLoginFailure, false, p.ID, p.TenantID, "", ErrAccountLocked, nil)
		return nil, ErrAccountLocked
	}

	ok, err := e.hasher.Verify(plaintext, p.PasswordHash)
	if err != nil {
		e.logger.Error("stored password hash unreadable", zap.String("user_id", p.ID), zap.Error(err))
		ok = false
	}
	if !ok {
		if e.admissible(ctx, tenant, p) {
			locked := p.RecordFailedLogin(now, e.lockoutPolicy())
			if err := e.identities.Save(ctx, p); err != nil {
				return nil, storeError(err)
			}
			if locked {
				e.logger.Warn("account locked after failed logins",
					zap.String("user_id", p.ID),
					zap.Int("attempts", p.FailedLoginAttempts),
				)
				e.emitAudit(ctx, auditEventAccountLocked, true, p.ID, p.TenantID, "", nil, nil)
			}
		}
		return nil, e.loginFailed(ctx, p, p.TenantID, ErrInvalidCredentials)
	}

	dirty := false
	if p.FailedLoginAttempts > 0 || !p.LockedUntil.IsZero() {
		p.ClearLockout()
		dirty = true
	}
	if e.config.Password.UpgradeOnLogin {
		if upgraded := e.upgradeHash(p, plaintext); upgraded {
			dirty = true
		}
	}
	if dirty {
		if err := e.identities.Save(ctx, p); err != nil {
			e.logger.Error("saving principal after login failed", zap.String("user_id", p.ID), zap.Error(err))
		}
	}
	e.resetRate(ctx, scopeLogin, ip)

	return e.completeLogin(ctx, tenant, p, methodPassword, true)
}

// findLoginPrincipal prefers the account registered in tenant. Without one,
// the global lookup finds accounts elsewhere so the tenancy guard can admit
// platform admins and deny everyone else.
func (e *Engine) findLoginPrincipal(ctx context.Context, tenant *Tenant, email string) (*Principal, error) {
	if tenant != nil {
		p, err := e.identities.FindByEmailInTenant(ctx, tenant.ID, email)
		switch {
		case err == nil && p != nil:
			return p, nil
		case err != nil && !errors.Is(err, ErrIdentityNotFound):
			return nil, err
		}
	}
	return e.identities.FindByEmailGlobal(ctx, email)
}

// admissible reports whether the tenancy guard could admit p to tenant: the
// account lives there or belongs to a platform admin. Only admissible logins
// touch lockout state, so an account cannot be locked from another tenant's
// portal.
func (e *Engine) admissible(ctx context.Context, tenant *Tenant, p *Principal) bool {
	if tenant != nil && p.TenantID == tenant.ID {
		return true
	}
	perms, err := e.permissions.Get(ctx, p.ID)
	if err != nil {
		return false
	}
	return e.guard.IsPlatformAdmin(subjectOf(p, perms))
}

// burnHash verifies plaintext against a fixed hash so a login for an unknown
// or password-less account costs as much as a wrong password.
func (e *Engine) burnHash(plaintext string) {
	e.dummyOnce.Do(func() {
		hash, err := e.hasher.Hash("shopauth-unknown-account")
		if err != nil {
			e.logger.Warn("dummy password hash unavailable", zap.Error(err))
			return
		}
		e.dummyHash = hash
	})
	if e.dummyHash != "" {
		_, _ = e.hasher.Verify(plaintext, e.dummyHash)
	}
}

// CompleteTwoFactor finishes a login that returned MFARequired. The challenge
// must come from a Login against the same tenant and is spent by the first
// valid code. Failed codes are counted per user and capped.
func (e *Engine) CompleteTwoFactor(ctx context.Context, tenant *Tenant, challengeID, code string) (*LoginResult, error) {
	if err := e.ready(); err != nil {
		return nil, err
	}
	if challengeID == "" {
		return nil, e.challengeFailed(ctx, "", tenantID(tenant), "missing")
	}
	challenge, ok, err := e.revocation.MFAChallenge(ctx, challengeID)
	if err != nil {
		e.logger.Error("mfa challenge lookup failed", zap.Error(err))
		return nil, ErrStoreUnavailable
	}
	if !ok {
		return nil, e.challengeFailed(ctx, "", tenantID(tenant), "unknown")
	}
	if challenge.TenantID != tenantID(tenant) {
		e.dropChallenge(ctx, challengeID)
		return nil, e.challengeFailed(ctx, challenge.UserID, tenantID(tenant), "tenant_mismatch")
	}

	p, err := e.identities.FindByID(ctx, challenge.UserID)
	if err != nil {
		if !errors.Is(err, ErrIdentityNotFound) {
			return nil, storeError(err)
		}
		e.dropChallenge(ctx, challengeID)
		return nil, e.challengeFailed(ctx, challenge.UserID, challenge.TenantID, "user_missing")
	}
	if p.IsDeleted() || !p.TwoFactorEnabled || p.TwoFactorSecret == "" {
		e.dropChallenge(ctx, challengeID)
		return nil, e.challengeFailed(ctx, p.ID, challenge.TenantID, "totp_unavailable")
	}
	if p.IsLocked(e.now()) {
		return nil, ErrAccountLocked
	}

	if err := e.verifyUserCode(ctx, p, code); err != nil {
		e.metrics.Login(methodTOTP, metrics.OutcomeFailure)
		e.emitAudit(ctx, auditEventMFAFailure, false, p.ID, p.TenantID, "", err, nil)
		return nil, err
	}
	_, consumed, err := e.revocation.ConsumeMFAChallenge(ctx, challengeID)
	if err != nil {
		e.logger.Error("mfa challenge consume failed", zap.String("user_id", p.ID), zap.Error(err))
		return nil, ErrStoreUnavailable
	}
	if !consumed {
		return nil, e.challengeFailed(ctx, p.ID, challenge.TenantID, "already_used")
	}
	e.emitAudit(ctx, auditEventMFASuccess, true, p.ID, p.TenantID, "", nil, nil)
	return e.completeLogin(ctx, tenant, p, methodTOTP, false)
}

func (e *Engine) challengeFailed(ctx context.Context, userID, tenant, reason string) error {
	e.metrics.Login(methodTOTP, metrics.OutcomeFailure)
	e.emitAudit(ctx, auditEventMFAFailure, false, userID, tenant, "", ErrInvalidMFAChallenge, func() map[string]string {
		return map[string]string{"reason": reason}
	})
	return ErrInvalidMFAChallenge
}

func (e *Engine) dropChallenge(ctx context.Context, challengeID string) {
	if err := e.revocation.DeleteMFAChallenge(ctx, challengeID); err != nil {
		e.logger.Warn("mfa challenge delete failed", zap.Error(err))
	}
}

// startChallenge stores a pending second-factor login for p and returns its
// opaque id.
func (e *Engine) startChallenge(ctx context.Context, tenant *Tenant, p *Principal) (string, error) {
	id, err := internal.NewOpaqueToken()
	if err != nil {
		return "", err
	}
	challenge := revocation.MFAChallenge{UserID: p.ID, TenantID: tenantID(tenant)}
	if err := e.revocation.SaveMFAChallenge(ctx, id, challenge, e.config.TOTP.ChallengeTTL); err != nil {
		e.logger.Error("mfa challenge write failed", zap.String("user_id", p.ID), zap.Error(err))
		return "", ErrStoreUnavailable
	}
	return id, nil
}

// LoginWithExternalIdentity logs in a provider-verified identity, creating a
// password-less account in tenant on first sight.
func (e *Engine) LoginWithExternalIdentity(ctx context.Context, tenant *Tenant, id ExternalIdentity) (*LoginResult, error) {
	if err := e.ready(); err != nil {
		return nil, err
	}
	email := NormalizeEmail(id.Email)
	if email == "" || !id.EmailVerified {
		return nil, ErrInvalidCredentials
	}

	p, err := e.findLoginPrincipal(ctx, tenant, email)
	if err == nil && tenant != nil && !e.admissible(ctx, tenant, p) {
		// same address, different shop: this tenant gets its own account
		p, err = nil, ErrIdentityNotFound
	}
	switch {
	case err == nil:
		if p.IsDeleted() {
			return nil, ErrInvalidCredentials
		}
		if p.IsLocked(e.now()) {
			return nil, ErrAccountLocked
		}
	case errors.Is(err, ErrIdentityNotFound):
		if tenant == nil {
			return nil, ErrTenantAccessDenied
		}
		role, err := e.ensureDefaultRole(ctx, tenant.ID)
		if err != nil {
			return nil, err
		}
		p = &Principal{
			TenantID:  tenant.ID,
			Email:     email,
			FirstName: id.FirstName,
			LastName:  id.LastName,
			Roles:     []string{role.Name},
		}
		if err := e.identities.Create(ctx, p); err != nil {
			return nil, storeError(err)
		}
		e.emitAudit(ctx, auditEventRegister, true, p.ID, p.TenantID, "", nil, func() map[string]string {
			return map[string]string{"provider": id.Provider}
		})
		e.welcome(ctx, p)
	default:
		return nil, storeError(err)
	}

	e.emitAudit(ctx, auditEventSocialLogin, true, p.ID, p.TenantID, "", nil, func() map[string]string {
		return map[string]string{"provider": id.Provider}
	})
	return e.completeLogin(ctx, tenant, p, methodSocial, true)
}

// completeLogin is the tail shared by every credential path: fresh permissions,
// tenancy guard, IP allow-list, then the MFA short-circuit or token issue.
func (e *Engine) completeLogin(ctx context.Context, tenant *Tenant, p *Principal, method string, allowMFA bool) (*LoginResult, error) {
	perms, err := e.permissions.Refresh(ctx, p.ID)
	if err != nil {
		return nil, storeError(err)
	}

	if err := e.checkTenant(ctx, tenant, p, perms); err != nil {
		e.metrics.Login(method, metrics.OutcomeDenied)
		return nil, err
	}

	if ip := clientIPFromContext(ctx); !p.IPAllowed(ip) {
		e.logger.Warn("login from address outside allow-list",
			zap.String("user_id", p.ID),
			zap.String("ip", ip),
		)
		e.metrics.Login(method, metrics.OutcomeDenied)
		e.emitAudit(ctx, auditEventLoginFailure, false, p.ID, p.TenantID, "", ErrIPNotAllowed, nil)
		return nil, ErrIPNotAllowed
	}

	if allowMFA && p.TwoFactorEnabled {
		challengeID, err := e.startChallenge(ctx, tenant, p)
		if err != nil {
			return nil, err
		}
		e.metrics.Login(method, metrics.OutcomeMFARequired)
		e.emitAudit(ctx, auditEventMFARequired, true, p.ID, p.TenantID, "", nil, nil)
		return &LoginResult{MFARequired: true, UserID: p.ID, ChallengeID: challengeID}, nil
	}

	pair, err := e.issueSession(ctx, p, perms)
	if err != nil {
		return nil, err
	}
	e.metrics.Login(method, metrics.OutcomeSuccess)
	e.emitAudit(ctx, auditEventLoginSuccess, true, p.ID, p.TenantID, pair.SessionID, nil, func() map[string]string {
		return map[string]string{"method": method}
	})
	return &LoginResult{UserID: p.ID, Tokens: pair}, nil
}

// checkTenant runs the tenancy guard. An inactive tenant admits platform
// admins only.
func (e *Engine) checkTenant(ctx context.Context, tenant *Tenant, p *Principal, perms permission.Set) error {
	subject := subjectOf(p, perms)
	var scope *tenancy.Context
	if tenant != nil {
		scope = &tenancy.Context{ID: tenant.ID}
	}
	decision := e.guard.Decide(subject, scope)
	if decision.Allowed && tenant != nil && !tenant.Active && !e.guard.IsPlatformAdmin(subject) {
		decision = tenancy.Decision{Reason: "tenant_inactive"}
	}
	if decision.Allowed {
		return nil
	}

	e.logger.Warn("tenant access denied",
		zap.String("user_id", p.ID),
		zap.String("user_tenant", p.TenantID),
		zap.String("tenant", tenantID(tenant)),
		zap.String("reason", decision.Reason),
	)
	e.emitAudit(ctx, auditEventTenantDenied, false, p.ID, tenantID(tenant), "", ErrTenantAccessDenied, func() map[string]string {
		return map[string]string{"reason": decision.Reason}
	})
	return ErrTenantAccessDenied
}

func subjectOf(p *Principal, perms permission.Set) tenancy.Subject {
	return tenancy.Subject{
		TenantID:    p.TenantID,
		Roles:       p.Roles,
		Permissions: perms.Sorted(),
	}
}

// issueSession signs a pair and makes its refresh token the user's only
// whitelisted one.
func (e *Engine) issueSession(ctx context.Context, p *Principal, perms permission.Set) (*TokenPair, error) {
	pair, err := e.signPair(ctx, p, perms)
	if err != nil {
		return nil, err
	}
	if err := e.revocation.SetRefresh(ctx, p.ID, pair.RefreshToken, e.config.JWT.RefreshTTL); err != nil {
		e.logger.Error("refresh whitelist write failed", zap.String("user_id", p.ID), zap.Error(err))
		return nil, ErrStoreUnavailable
	}
	return pair, nil
}

func (e *Engine) signPair(ctx context.Context, p *Principal, perms permission.Set) (*TokenPair, error) {
	fp := e.fingerprint(ctx)
	access, err := e.codec.IssueAccess(jwt.AccessClaims{
		UID:   p.ID,
		TID:   p.TenantID,
		Perms: perms.Sorted(),
		Roles: p.Roles,
		FP:    fp,
	}, e.config.JWT.AccessTTL)
	if err != nil {
		return nil, err
	}
	refresh, err := e.codec.IssueRefresh(jwt.RefreshClaims{
		UID: p.ID,
		TID: p.TenantID,
		FP:  fp,
		SID: access.ID,
	}, e.config.JWT.RefreshTTL)
	if err != nil {
		return nil, err
	}
	return &TokenPair{
		AccessToken:      access.Token,
		RefreshToken:     refresh.Token,
		SessionID:        access.ID,
		AccessExpiresAt:  access.ExpiresAt,
		RefreshExpiresAt: refresh.ExpiresAt,
	}, nil
}

func (e *Engine) loginFailed(ctx context.Context, p *Principal, tenant string, err error) error {
	var userID string
	if p != nil {
		userID = p.ID
	}
	if e.recordHit(ctx, scopeLogin, clientIPFromContext(ctx)) {
		e.emitAudit(ctx, auditEventRateLimitTriggered, false, userID, tenant, "", ErrRateLimited, nil)
	}
	e.metrics.Login(methodPassword, metrics.OutcomeFailure)
	e.emitAudit(ctx, auditEventLoginFailure, false, userID, tenant, "", err, nil)
	return err
}

// checkRate rejects a spent budget. Limiter faults are logged and ignored.
func (e *Engine) checkRate(ctx context.Context, scope, id string) error {
	err := e.limiter.Check(ctx, scope, id)
	switch {
	case err == nil:
		return nil
	case errors.Is(err, rate.ErrRateLimited):
		e.emitAudit(ctx, auditEventRateLimitTriggered, false, "", "", "", ErrRateLimited, func() map[string]string {
			return map[string]string{"scope": scope}
		})
		return ErrRateLimited
	default:
		e.logger.Error("rate limiter unavailable", zap.String("scope", scope), zap.Error(err))
		return nil
	}
}

// recordHit spends one unit of scope's budget for id and reports whether the
// budget is now gone. Limiter faults are logged and ignored.
func (e *Engine) recordHit(ctx context.Context, scope, id string) bool {
	err := e.limiter.Hit(ctx, scope, id)
	switch {
	case err == nil:
		return false
	case errors.Is(err, rate.ErrRateLimited):
		return true
	default:
		e.logger.Error("rate limiter hit failed", zap.String("scope", scope), zap.Error(err))
		return false
	}
}

func (e *Engine) resetRate(ctx context.Context, scope, id string) {
	if err := e.limiter.Reset(ctx, scope, id); err != nil {
		e.logger.Error("rate limiter reset failed", zap.String("scope", scope), zap.Error(err))
	}
}

// verifyUserCode checks a TOTP code against p's secret under the per-user
// failure cap. Each time step is accepted once per secret; a replayed code
// counts as a failure.
func (e *Engine) verifyUserCode(ctx context.Context, p *Principal, code string) error {
	if err := e.revocation.CheckMFAAttempts(ctx, p.ID); err != nil {
		return mapMFAError(err)
	}
	step, ok, err := e.totp.VerifyStep(code, p.TwoFactorSecret, e.now())
	if err == nil && ok {
		fresh, markErr := e.revocation.MarkTOTPStep(ctx, p.ID, p.TwoFactorSecret, step, e.totp.Window())
		if markErr != nil {
			e.logger.Error("totp replay guard unavailable", zap.String("user_id", p.ID), zap.Error(markErr))
			return ErrStoreUnavailable
		}
		if !fresh {
			e.logger.Warn("totp code replayed", zap.String("user_id", p.ID))
			ok = false
		}
	}
	if err != nil || !ok {
		if err := e.revocation.RecordMFAFailure(ctx, p.ID); err != nil && !errors.Is(err, revocation.ErrMFAAttemptsExceeded) {
			e.logger.Error("recording mfa failure", zap.String("user_id", p.ID), zap.Error(err))
		}
		return ErrInvalidMFACode
	}
	if err := e.revocation.ResetMFAFailures(ctx, p.ID); err != nil {
		e.logger.Error("resetting mfa failures", zap.String("user_id", p.ID), zap.Error(err))
	}
	return nil
}

func mapMFAError(err error) error {
	if errors.Is(err, revocation.ErrMFAAttemptsExceeded) {
		return ErrMFAAttemptsExceeded
	}
	return ErrStoreUnavailable
}

// upgradeHash rehashes plaintext when the stored hash uses old parameters or a
// legacy algorithm. Failures leave the old hash in place.
func (e *Engine) upgradeHash(p *Principal, plaintext string) bool {
	needs, err := e.hasher.NeedsUpgrade(p.PasswordHash)
	if err != nil || !needs {
		return false
	}
	hash, err := e.hasher.Hash(plaintext)
	if err != nil {
		e.logger.Warn("password rehash failed", zap.String("user_id", p.ID), zap.Error(err))
		return false
	}
	p.PasswordHash = hash
	return true
}

func (e *Engine) ensureDefaultRole(ctx context.Context, tenantID string) (*Role, error) {
	role, err := e.identities.EnsureRole(ctx, tenantID, e.config.Registration.DefaultRole, e.config.Registration.DefaultRolePermissions)
	if err != nil {
		return nil, storeError(err)
	}
	return role, nil
}

func (e *Engine) welcome(ctx context.Context, p *Principal) {
	if e.notifier == nil {
		return
	}
	if err := e.notifier.Welcome(ctx, p); err != nil {
		e.logger.Warn("welcome notification failed", zap.String("user_id", p.ID), zap.Error(err))
	}
}

func (e *Engine) lockoutPolicy() LockoutPolicy {
	return LockoutPolicy{
		MaxAttempts: e.config.Lockout.MaxAttempts,
		Duration:    e.config.Lockout.Duration,
	}
}

func mapHashError(err error) error {
	if errors.Is(err, password.ErrPolicy) {
		return ErrPasswordPolicy
	}
	return err
}

func tenantID(t *Tenant) string {
	if t == nil {
		return ""
	}
	return t.ID
}
