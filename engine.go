package shopauth

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/MrEthical07/shopauth/fingerprint"
	"github.com/MrEthical07/shopauth/internal/audit"
	"github.com/MrEthical07/shopauth/internal/metrics"
	"github.com/MrEthical07/shopauth/internal/rate"
	"github.com/MrEthical07/shopauth/jwt"
	"github.com/MrEthical07/shopauth/password"
	"github.com/MrEthical07/shopauth/permission"
	"github.com/MrEthical07/shopauth/revocation"
	"github.com/MrEthical07/shopauth/tenancy"
	"github.com/MrEthical07/shopauth/totp"
)

// Engine issues, validates, rotates and revokes sessions. Build it with New()
// and Builder.Build. All methods are safe for concurrent use; shared state lives
// in Redis and the IdentityStore.
type Engine struct {
	config Config

	identities IdentityStore
	tenants    TenantDirectory
	mailer     Mailer
	notifier   Notifier

	codec       *jwt.Codec
	revocation  *revocation.Store
	permissions *permission.Cache
	guard       *tenancy.Guard
	totp        *totp.Verifier
	hasher      password.Hasher
	limiter     *rate.Limiter
	audit       *audit.Dispatcher
	metrics     *metrics.Metrics

	logger *zap.Logger
	now    func() time.Time

	dummyOnce sync.Once
	dummyHash string
}

// Close flushes pending audit events. The Redis client belongs to the caller.
func (e *Engine) Close() {
	if e == nil {
		return
	}
	e.audit.Close()
}

// AuditDropped returns how many audit events were dropped on a full buffer.
func (e *Engine) AuditDropped() uint64 {
	if e == nil {
		return 0
	}
	return e.audit.Dropped()
}

// Ping checks the Redis connection behind the revocation store.
func (e *Engine) Ping(ctx context.Context) error {
	if e == nil || e.revocation == nil {
		return ErrEngineNotReady
	}
	if err := e.revocation.Ping(ctx); err != nil {
		return ErrStoreUnavailable
	}
	return nil
}

func (e *Engine) ready() error {
	if e == nil || e.codec == nil || e.identities == nil || e.revocation == nil {
		return ErrEngineNotReady
	}
	return nil
}

// Authenticate verifies an access token and returns its session. The blacklist
// check fails open: a Redis outage is logged and the signed token is trusted
// until it expires.
func (e *Engine) Authenticate(ctx context.Context, accessToken string) (*Session, error) {
	if err := e.ready(); err != nil {
		return nil, err
	}
	defer e.metrics.ObserveAuthenticate(time.Now())

	claims, err := e.codec.ParseAccess(accessToken)
	if err != nil {
		mapped := mapTokenError(err)
		e.metrics.TokenRejected(string(auditErrorCode(mapped)))
		return nil, mapped
	}

	revoked, err := e.revocation.IsAccessRevoked(ctx, claims.ID)
	if err != nil {
		e.logger.Error("access blacklist unavailable, allowing token",
			zap.String("session_id", shortID(claims.ID)),
			zap.Error(err),
		)
	} else if revoked {
		e.metrics.TokenRejected(string(auditErrTokenRevoked))
		return nil, ErrTokenRevoked
	}

	if !fingerprint.Equal(claims.FP, e.fingerprint(ctx)) {
		e.logger.Warn("access token fingerprint mismatch",
			zap.String("user_id", claims.UID),
			zap.String("session_id", shortID(claims.ID)),
			zap.String("ip", clientIPFromContext(ctx)),
		)
		e.metrics.TokenRejected(string(auditErrFingerprintMismatch))
		e.emitAudit(ctx, auditEventFingerprintMismatch, false, claims.UID, claims.TID, claims.ID, ErrFingerprintMismatch, nil)
		return nil, ErrFingerprintMismatch
	}

	return &Session{
		UserID:      claims.UID,
		TenantID:    claims.TID,
		SessionID:   claims.ID,
		Roles:       claims.Roles,
		Permissions: claims.Perms,
		Fingerprint: claims.FP,
		ExpiresAt:   claims.Expiry(),
	}, nil
}

func (e *Engine) fingerprint(ctx context.Context) string {
	return fingerprint.Derive(clientIPFromContext(ctx), userAgentFromContext(ctx))
}

func mapTokenError(err error) error {
	switch {
	case errors.Is(err, jwt.ErrExpired):
		return ErrTokenExpired
	default:
		return ErrTokenMalformed
	}
}

// storeError keeps engine sentinels and collapses everything else into
// ErrStoreUnavailable.
func storeError(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, ErrEmailAlreadyUsed) || errors.Is(err, ErrIdentityNotFound) || errors.Is(err, ErrRoleNotFound) {
		return err
	}
	return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
}
