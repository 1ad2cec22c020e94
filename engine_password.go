package shopauth

import (
	"context"
	"errors"
	"strings"

	"go.uber.org/zap"

	"github.com/MrEthical07/shopauth/internal"
)

// ForgotPassword mails a single-use reset token when email belongs to an
// account in tenant. It returns nil for unknown emails and for store or mail
// faults so the response never reveals whether the account exists.
func (e *Engine) ForgotPassword(ctx context.Context, tenant *Tenant, email string) error {
	if err := e.ready(); err != nil {
		return err
	}
	if err := e.checkRate(ctx, scopeReset, clientIPFromContext(ctx)); err != nil {
		return err
	}
	e.recordHit(ctx, scopeReset, clientIPFromContext(ctx))

	email = NormalizeEmail(email)
	var (
		p   *Principal
		err error
	)
	if tenant != nil {
		p, err = e.identities.FindByEmailInTenant(ctx, tenant.ID, email)
	} else {
		p, err = e.identities.FindByEmailGlobal(ctx, email)
	}
	if err != nil {
		if !errors.Is(err, ErrIdentityNotFound) {
			e.logger.Error("password reset lookup failed", zap.Error(err))
		}
		e.emitAudit(ctx, auditEventPasswordResetRequest, false, "", tenantID(tenant), "", ErrUserNotFound, nil)
		return nil
	}
	if p.IsDeleted() {
		return nil
	}

	token, err := internal.NewOpaqueToken()
	if err != nil {
		e.logger.Error("generating reset token", zap.Error(err))
		return nil
	}
	if err := e.revocation.SaveResetToken(ctx, token, p.ID, e.config.PasswordReset.TokenTTL); err != nil {
		e.logger.Error("storing reset token", zap.String("user_id", p.ID), zap.Error(err))
		return nil
	}
	if e.mailer != nil {
		if err := e.mailer.SendPasswordReset(ctx, p, token); err != nil {
			e.logger.Error("sending reset mail", zap.String("user_id", p.ID), zap.Error(err))
		}
	}
	e.emitAudit(ctx, auditEventPasswordResetRequest, true, p.ID, p.TenantID, "", nil, nil)
	return nil
}

// ResetPassword consumes a reset token and sets newPassword. The token is only
// consumed once the new password passes policy, and it can be used once.
// Outstanding refresh tokens are revoked and any lockout is cleared.
func (e *Engine) ResetPassword(ctx context.Context, token, newPassword string) error {
	if err := e.ready(); err != nil {
		return err
	}
	token = strings.TrimSpace(token)
	if token == "" {
		return ErrInvalidResetToken
	}

	hash, err := e.hasher.Hash(newPassword)
	if err != nil {
		return mapHashError(err)
	}

	userID, ok, err := e.revocation.ConsumeResetToken(ctx, token)
	if err != nil {
		e.logger.Error("consuming reset token", zap.Error(err))
		return ErrStoreUnavailable
	}
	if !ok {
		e.emitAudit(ctx, auditEventPasswordResetConfirm, false, "", "", "", ErrInvalidResetToken, nil)
		return ErrInvalidResetToken
	}

	p, err := e.identities.FindByID(ctx, userID)
	if err != nil {
		if errors.Is(err, ErrIdentityNotFound) {
			return ErrInvalidResetToken
		}
		return storeError(err)
	}
	if p.IsDeleted() {
		return ErrInvalidResetToken
	}

	p.PasswordHash = hash
	p.ClearLockout()
	if err := e.identities.Save(ctx, p); err != nil {
		return storeError(err)
	}
	if err := e.revokeSessions(ctx, p.ID); err != nil {
		return err
	}

	if e.mailer != nil {
		if err := e.mailer.SendPasswordResetConfirmation(ctx, p); err != nil {
			e.logger.Warn("sending reset confirmation", zap.String("user_id", p.ID), zap.Error(err))
		}
	}
	e.emitAudit(ctx, auditEventPasswordResetConfirm, true, p.ID, p.TenantID, "", nil, nil)
	return nil
}

// ChangePassword replaces the password after checking the current one and
// revokes the refresh whitelist, ending sessions on other devices at their
// next refresh.
func (e *Engine) ChangePassword(ctx context.Context, userID, current, next string) error {
	if err := e.ready(); err != nil {
		return err
	}
	p, err := e.findActive(ctx, userID)
	if err != nil {
		return err
	}
	if p.PasswordHash == "" {
		return e.passwordChangeFailed(ctx, p, ErrInvalidCredentials)
	}

	ok, err := e.hasher.Verify(current, p.PasswordHash)
	if err != nil || !ok {
		return e.passwordChangeFailed(ctx, p, ErrInvalidCredentials)
	}
	if same, _ := e.hasher.Verify(next, p.PasswordHash); same {
		return e.passwordChangeFailed(ctx, p, ErrPasswordReuse)
	}

	hash, err := e.hasher.Hash(next)
	if err != nil {
		return e.passwordChangeFailed(ctx, p, mapHashError(err))
	}
	p.PasswordHash = hash
	if err := e.identities.Save(ctx, p); err != nil {
		return storeError(err)
	}
	if err := e.revokeSessions(ctx, p.ID); err != nil {
		return err
	}
	e.emitAudit(ctx, auditEventPasswordChangeSuccess, true, p.ID, p.TenantID, "", nil, nil)
	return nil
}

func (e *Engine) passwordChangeFailed(ctx context.Context, p *Principal, err error) error {
	e.emitAudit(ctx, auditEventPasswordChangeFailure, false, p.ID, p.TenantID, "", err, nil)
	return err
}

// UpdateProfile applies the non-nil fields of u.
func (e *Engine) UpdateProfile(ctx context.Context, userID string, u ProfileUpdate) (*Principal, error) {
	if err := e.ready(); err != nil {
		return nil, err
	}
	p, err := e.findActive(ctx, userID)
	if err != nil {
		return nil, err
	}
	if u.FirstName != nil {
		p.FirstName = strings.TrimSpace(*u.FirstName)
	}
	if u.LastName != nil {
		p.LastName = strings.TrimSpace(*u.LastName)
	}
	if u.Phone != nil {
		p.Phone = strings.TrimSpace(*u.Phone)
	}
	if err := e.identities.Save(ctx, p); err != nil {
		return nil, storeError(err)
	}
	return p, nil
}

// UnlockAccount clears the lockout state. Admin path.
func (e *Engine) UnlockAccount(ctx context.Context, userID string) error {
	if err := e.ready(); err != nil {
		return err
	}
	p, err := e.findActive(ctx, userID)
	if err != nil {
		return err
	}
	p.ClearLockout()
	if err := e.identities.Save(ctx, p); err != nil {
		return storeError(err)
	}
	e.emitAudit(ctx, auditEventAccountUnlocked, true, p.ID, p.TenantID, "", nil, nil)
	return nil
}

func (e *Engine) findActive(ctx context.Context, userID string) (*Principal, error) {
	p, err := e.identities.FindByID(ctx, userID)
	if err != nil {
		if errors.Is(err, ErrIdentityNotFound) {
			return nil, ErrUserNotFound
		}
		return nil, storeError(err)
	}
	if p.IsDeleted() {
		return nil, ErrUserNotFound
	}
	return p, nil
}
