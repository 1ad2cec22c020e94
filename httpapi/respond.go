package httpapi

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/MrEthical07/shopauth"
)

const maxBodyBytes = 1 << 16

type errorBody struct {
	Error string `json:"error"`
}

type tokenBody struct {
	AccessToken      string    `json:"access_token"`
	RefreshToken     string    `json:"refresh_token"`
	SessionID        string    `json:"session_id"`
	AccessExpiresAt  time.Time `json:"access_expires_at"`
	RefreshExpiresAt time.Time `json:"refresh_expires_at"`
}

type loginBody struct {
	MFARequired bool       `json:"mfa_required"`
	UserID      string     `json:"user_id,omitempty"`
	ChallengeID string     `json:"challenge_id,omitempty"`
	Tokens      *tokenBody `json:"tokens,omitempty"`
}

func toTokenBody(p *shopauth.TokenPair) *tokenBody {
	if p == nil {
		return nil
	}
	return &tokenBody{
		AccessToken:      p.AccessToken,
		RefreshToken:     p.RefreshToken,
		SessionID:        p.SessionID,
		AccessExpiresAt:  p.AccessExpiresAt,
		RefreshExpiresAt: p.RefreshExpiresAt,
	}
}

func toLoginBody(res *shopauth.LoginResult) loginBody {
	if res.MFARequired {
		return loginBody{MFARequired: true, UserID: res.UserID, ChallengeID: res.ChallengeID}
	}
	return loginBody{Tokens: toTokenBody(res.Tokens)}
}

func decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody{Error: "invalid request body"})
		return false
	}
	return true
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// statusFor maps engine errors to HTTP status codes. Messages are the sentinel
// text, never the wrapped cause.
func statusFor(err error) (int, string) {
	switch {
	case errors.Is(err, shopauth.ErrInvalidCredentials),
		errors.Is(err, shopauth.ErrInvalidMFACode),
		errors.Is(err, shopauth.ErrInvalidMFAChallenge),
		errors.Is(err, shopauth.ErrTokenExpired),
		errors.Is(err, shopauth.ErrTokenMalformed),
		errors.Is(err, shopauth.ErrTokenRevoked),
		errors.Is(err, shopauth.ErrFingerprintMismatch):
		return http.StatusUnauthorized, sentinelText(err)
	case errors.Is(err, shopauth.ErrAccountLocked):
		return http.StatusLocked, shopauth.ErrAccountLocked.Error()
	case errors.Is(err, shopauth.ErrTenantAccessDenied),
		errors.Is(err, shopauth.ErrIPNotAllowed):
		return http.StatusForbidden, sentinelText(err)
	case errors.Is(err, shopauth.ErrMFAAttemptsExceeded),
		errors.Is(err, shopauth.ErrRateLimited):
		return http.StatusTooManyRequests, sentinelText(err)
	case errors.Is(err, shopauth.ErrEmailAlreadyUsed),
		errors.Is(err, shopauth.ErrTwoFactorEnabled):
		return http.StatusConflict, sentinelText(err)
	case errors.Is(err, shopauth.ErrUserNotFound),
		errors.Is(err, shopauth.ErrRoleNotFound):
		return http.StatusNotFound, sentinelText(err)
	case errors.Is(err, shopauth.ErrPasswordPolicy),
		errors.Is(err, shopauth.ErrPasswordReuse),
		errors.Is(err, shopauth.ErrInvalidResetToken),
		errors.Is(err, shopauth.ErrInvalidPermission):
		return http.StatusBadRequest, sentinelText(err)
	default:
		return http.StatusServiceUnavailable, "service unavailable"
	}
}

var sentinels = []error{
	shopauth.ErrInvalidCredentials,
	shopauth.ErrInvalidMFACode,
	shopauth.ErrInvalidMFAChallenge,
	shopauth.ErrTokenExpired,
	shopauth.ErrTokenMalformed,
	shopauth.ErrTokenRevoked,
	shopauth.ErrFingerprintMismatch,
	shopauth.ErrTenantAccessDenied,
	shopauth.ErrIPNotAllowed,
	shopauth.ErrMFAAttemptsExceeded,
	shopauth.ErrRateLimited,
	shopauth.ErrEmailAlreadyUsed,
	shopauth.ErrTwoFactorEnabled,
	shopauth.ErrUserNotFound,
	shopauth.ErrRoleNotFound,
	shopauth.ErrPasswordPolicy,
	shopauth.ErrPasswordReuse,
	shopauth.ErrInvalidResetToken,
	shopauth.ErrInvalidPermission,
}

func sentinelText(err error) string {
	for _, s := range sentinels {
		if errors.Is(err, s) {
			return s.Error()
		}
	}
	return "request failed"
}

func (h *Handler) fail(w http.ResponseWriter, r *http.Request, err error) {
	status, msg := statusFor(err)
	if status >= http.StatusInternalServerError {
		h.logger.Error("request failed",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Error(err),
		)
	}
	writeJSON(w, status, errorBody{Error: msg})
}
