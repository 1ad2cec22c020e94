package shopauth

import (
	"context"
	"strings"

	"go.uber.org/zap"
)

// TwoFactorSetup is an unconfirmed TOTP secret for an authenticator app.
type TwoFactorSetup struct {
	Secret string
	URI    string
}

// BeginTwoFactorSetup generates a secret for userID without storing it. The
// caller holds it until ConfirmTwoFactorSetup proves the user can produce
// codes from it. An enabled secret must be disabled before a new one is set up.
func (e *Engine) BeginTwoFactorSetup(ctx context.Context, userID string) (*TwoFactorSetup, error) {
	if err := e.ready(); err != nil {
		return nil, err
	}
	p, err := e.findActive(ctx, userID)
	if err != nil {
		return nil, err
	}
	if p.TwoFactorEnabled {
		return nil, ErrTwoFactorEnabled
	}
	setup, err := e.totp.GenerateSecret(p.Email)
	if err != nil {
		return nil, err
	}
	return &TwoFactorSetup{Secret: setup.Secret, URI: setup.URI}, nil
}

// ConfirmTwoFactorSetup persists secret and enables TOTP only when code is
// valid for it. An invalid code leaves the account untouched.
func (e *Engine) ConfirmTwoFactorSetup(ctx context.Context, userID, secret, code string) error {
	if err := e.ready(); err != nil {
		return err
	}
	p, err := e.findActive(ctx, userID)
	if err != nil {
		return err
	}
	if p.TwoFactorEnabled {
		e.emitAudit(ctx, auditEventMFAFailure, false, p.ID, p.TenantID, "", ErrTwoFactorEnabled, nil)
		return ErrTwoFactorEnabled
	}
	secret = strings.TrimSpace(secret)

	candidate := *p
	candidate.TwoFactorSecret = secret
	if err := e.verifyUserCode(ctx, &candidate, code); err != nil {
		e.emitAudit(ctx, auditEventMFAFailure, false, p.ID, p.TenantID, "", err, nil)
		return err
	}

	p.TwoFactorSecret = secret
	p.TwoFactorEnabled = true
	if err := e.identities.Save(ctx, p); err != nil {
		return storeError(err)
	}
	e.logger.Info("two-factor enabled", zap.String("user_id", p.ID))
	e.emitAudit(ctx, auditEventTwoFactorEnabled, true, p.ID, p.TenantID, "", nil, nil)
	return nil
}

// DisableTwoFactor turns TOTP off after checking a current code.
func (e *Engine) DisableTwoFactor(ctx context.Context, userID, code string) error {
	if err := e.ready(); err != nil {
		return err
	}
	p, err := e.findActive(ctx, userID)
	if err != nil {
		return err
	}
	if !p.TwoFactorEnabled {
		return nil
	}
	if err := e.verifyUserCode(ctx, p, code); err != nil {
		e.emitAudit(ctx, auditEventMFAFailure, false, p.ID, p.TenantID, "", err, nil)
		return err
	}

	p.TwoFactorEnabled = false
	p.TwoFactorSecret = ""
	if err := e.identities.Save(ctx, p); err != nil {
		return storeError(err)
	}
	e.emitAudit(ctx, auditEventTwoFactorDisabled, true, p.ID, p.TenantID, "", nil, nil)
	return nil
}
