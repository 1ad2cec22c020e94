package shopauth

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/MrEthical07/shopauth/fingerprint"
	"github.com/MrEthical07/shopauth/internal/metrics"
)

// Refresh rotates a refresh token into a new pair. The whitelist check fails
// closed: if Redis cannot confirm the token it is rejected with
// ErrTokenRevoked. Permissions and tenancy are re-evaluated from the store, so
// role changes take effect on the next refresh.
func (e *Engine) Refresh(ctx context.Context, tenant *Tenant, refreshToken string) (*TokenPair, error) {
	if err := e.ready(); err != nil {
		return nil, err
	}

	claims, err := e.codec.ParseRefresh(refreshToken)
	if err != nil {
		e.metrics.Refresh(metrics.OutcomeFailure)
		return nil, mapTokenError(err)
	}

	if !fingerprint.Equal(claims.FP, e.fingerprint(ctx)) {
		e.logger.Warn("refresh token fingerprint mismatch",
			zap.String("user_id", claims.UID),
			zap.String("session_id", shortID(claims.SID)),
			zap.String("ip", clientIPFromContext(ctx)),
		)
		e.metrics.Refresh(metrics.OutcomeFailure)
		e.emitAudit(ctx, auditEventFingerprintMismatch, false, claims.UID, claims.TID, claims.SID, ErrFingerprintMismatch, nil)
		return nil, ErrFingerprintMismatch
	}

	current, err := e.revocation.MatchRefresh(ctx, claims.UID, refreshToken)
	if err != nil {
		e.logger.Error("refresh whitelist unavailable, rejecting token",
			zap.String("user_id", claims.UID),
			zap.Error(err),
		)
		e.metrics.Refresh(metrics.OutcomeRevoked)
		return nil, ErrTokenRevoked
	}
	if !current {
		e.refreshRejected(ctx, claims.UID, claims.TID, claims.SID)
		return nil, ErrTokenRevoked
	}

	p, err := e.identities.FindByID(ctx, claims.UID)
	if err != nil {
		if errors.Is(err, ErrIdentityNotFound) {
			return nil, ErrUserNotFound
		}
		return nil, storeError(err)
	}
	if p.IsDeleted() {
		return nil, ErrUserNotFound
	}
	if p.IsLocked(e.now()) {
		return nil, ErrAccountLocked
	}

	perms, err := e.permissions.Refresh(ctx, p.ID)
	if err != nil {
		return nil, storeError(err)
	}
	if err := e.checkTenant(ctx, tenant, p, perms); err != nil {
		e.metrics.Refresh(metrics.OutcomeDenied)
		return nil, err
	}

	pair, err := e.signPair(ctx, p, perms)
	if err != nil {
		return nil, err
	}
	rotated, err := e.revocation.RotateRefresh(ctx, p.ID, refreshToken, pair.RefreshToken, e.config.JWT.RefreshTTL)
	if err != nil {
		e.logger.Error("refresh rotation failed", zap.String("user_id", p.ID), zap.Error(err))
		e.metrics.Refresh(metrics.OutcomeRevoked)
		return nil, ErrTokenRevoked
	}
	if !rotated {
		e.refreshRejected(ctx, claims.UID, claims.TID, claims.SID)
		return nil, ErrTokenRevoked
	}

	// the access token issued with the old refresh token dies with it
	if claims.IssuedAt != nil {
		ttl := remaining(claims.IssuedAt.Add(e.config.JWT.AccessTTL), e.now())
		if err := e.revocation.RevokeAccess(ctx, claims.SID, ttl); err != nil {
			e.logger.Error("revoking rotated access token", zap.String("session_id", shortID(claims.SID)), zap.Error(err))
		}
	}

	e.metrics.Refresh(metrics.OutcomeSuccess)
	e.emitAudit(ctx, auditEventRefreshSuccess, true, p.ID, p.TenantID, pair.SessionID, nil, nil)
	return pair, nil
}

// refreshRejected records a refresh token that verified but is no longer the
// whitelisted one: a replay, a lost race or a superseded session.
func (e *Engine) refreshRejected(ctx context.Context, userID, tenant, sessionID string) {
	e.logger.Warn("refresh token not whitelisted",
		zap.String("user_id", userID),
		zap.String("session_id", shortID(sessionID)),
	)
	e.metrics.Refresh(metrics.OutcomeRevoked)
	e.emitAudit(ctx, auditEventRefreshInvalid, false, userID, tenant, sessionID, ErrTokenRevoked, nil)
}

// Logout blacklists sessionID for the access token lifetime and drops the
// user's refresh token. Calling it twice is harmless.
func (e *Engine) Logout(ctx context.Context, userID, sessionID string) error {
	if err := e.ready(); err != nil {
		return err
	}
	return e.logout(ctx, userID, "", sessionID, e.config.JWT.AccessTTL)
}

// LogoutByAccessToken logs out the session an access token belongs to.
func (e *Engine) LogoutByAccessToken(ctx context.Context, accessToken string) error {
	if err := e.ready(); err != nil {
		return err
	}
	claims, err := e.codec.ParseAccess(accessToken)
	if err != nil {
		return mapTokenError(err)
	}
	return e.logout(ctx, claims.UID, claims.TID, claims.ID, remaining(claims.Expiry(), e.now()))
}

func (e *Engine) logout(ctx context.Context, userID, tenant, sessionID string, ttl time.Duration) error {
	if sessionID != "" {
		if err := e.revocation.RevokeAccess(ctx, sessionID, ttl); err != nil {
			e.logger.Error("access blacklist write failed", zap.String("session_id", shortID(sessionID)), zap.Error(err))
			return ErrStoreUnavailable
		}
	}
	if userID != "" {
		if err := e.revocation.DeleteRefresh(ctx, userID); err != nil {
			e.logger.Error("refresh whitelist delete failed", zap.String("user_id", userID), zap.Error(err))
			return ErrStoreUnavailable
		}
	}
	e.emitAudit(ctx, auditEventLogout, true, userID, tenant, sessionID, nil, nil)
	return nil
}

// revokeSessions drops the refresh whitelist so every outstanding refresh
// token for userID stops working. Live access tokens run out on their own.
func (e *Engine) revokeSessions(ctx context.Context, userID string) error {
	if err := e.revocation.DeleteRefresh(ctx, userID); err != nil {
		e.logger.Error("refresh whitelist delete failed", zap.String("user_id", userID), zap.Error(err))
		return ErrStoreUnavailable
	}
	return nil
}
