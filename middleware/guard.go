package middleware

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/MrEthical07/shopauth"
	"github.com/MrEthical07/shopauth/fingerprint"
)

type tenantContextKey struct{}

// ClientContext attaches the client IP (first X-Forwarded-For hop, else
// RemoteAddr) and the User-Agent to the request context.
func ClientContext(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		next.ServeHTTP(w, r.WithContext(withClient(r)))
	})
}

func withClient(r *http.Request) context.Context {
	ip := fingerprint.ResolveClientIP(r.Header.Get("X-Forwarded-For"), r.RemoteAddr)
	ctx := shopauth.WithClientIP(r.Context(), ip)
	return shopauth.WithUserAgent(ctx, r.UserAgent())
}

// Guard rejects requests without a valid access token and stores the session
// for downstream handlers.
func Guard(engine *shopauth.Engine) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if engine == nil {
				writeError(w, http.StatusUnauthorized, "unauthorized")
				return
			}
			token, ok := bearerToken(r.Header.Get("Authorization"))
			if !ok {
				writeError(w, http.StatusUnauthorized, "unauthorized")
				return
			}

			ctx := withClient(r)
			session, err := engine.Authenticate(ctx, token)
			if err != nil {
				writeError(w, http.StatusUnauthorized, reason(err))
				return
			}
			next.ServeHTTP(w, r.WithContext(shopauth.WithSession(ctx, session)))
		})
	}
}

// RequirePermission needs every listed permission in the token snapshot. It
// must run after Guard.
func RequirePermission(perms ...string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			session, ok := shopauth.SessionFromContext(r.Context())
			if !ok {
				writeError(w, http.StatusUnauthorized, "unauthorized")
				return
			}
			for _, p := range perms {
				if !session.Has(p) {
					writeError(w, http.StatusForbidden, "forbidden")
					return
				}
			}
			next.ServeHTTP(w, r)
		})
	}
}

// TenantFromHeader resolves the tenant named by header. Requests without the
// header pass through with no tenant; unknown tenants are rejected.
func TenantFromHeader(engine *shopauth.Engine, header string) func(http.Handler) http.Handler {
	if header == "" {
		header = "X-Tenant-ID"
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			id := strings.TrimSpace(r.Header.Get(header))
			if id == "" {
				next.ServeHTTP(w, r)
				return
			}
			tenant, err := engine.ResolveTenant(r.Context(), id)
			if err != nil {
				if errors.Is(err, shopauth.ErrTenantAccessDenied) {
					writeError(w, http.StatusNotFound, "unknown tenant")
					return
				}
				writeError(w, http.StatusServiceUnavailable, "unavailable")
				return
			}
			ctx := context.WithValue(r.Context(), tenantContextKey{}, tenant)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// TenantFromContext returns the tenant stored by TenantFromHeader, or nil.
func TenantFromContext(ctx context.Context) *shopauth.Tenant {
	t, _ := ctx.Value(tenantContextKey{}).(*shopauth.Tenant)
	return t
}

func bearerToken(value string) (string, bool) {
	const bearer = "Bearer "
	if len(value) < len(bearer) || !strings.EqualFold(value[:len(bearer)], bearer) {
		return "", false
	}
	token := strings.TrimSpace(value[len(bearer):])
	if token == "" {
		return "", false
	}
	return token, true
}

func reason(err error) string {
	switch {
	case errors.Is(err, shopauth.ErrTokenExpired):
		return "token expired"
	case errors.Is(err, shopauth.ErrTokenRevoked):
		return "token revoked"
	default:
		return "unauthorized"
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write([]byte(`{"error":"` + msg + `"}`))
}
