// Package httpapi serves the shopauth engine over JSON/HTTP with chi.
package httpapi

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/MrEthical07/shopauth"
	"github.com/MrEthical07/shopauth/middleware"
	"github.com/MrEthical07/shopauth/social"
)

type Options struct {
	// TenantHeader names the request header carrying the tenant ID.
	TenantHeader string
	RateLimit    middleware.RateLimitConfig
	Social       *social.Registry
	Logger       *zap.Logger
}

type Handler struct {
	engine *shopauth.Engine
	social *social.Registry
	logger *zap.Logger
}

// NewRouter mounts the auth routes. A zero RateLimit disables HTTP throttling;
// the engine still throttles failed logins per IP.
func NewRouter(engine *shopauth.Engine, opts Options) http.Handler {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	h := &Handler{engine: engine, social: opts.Social, logger: logger.Named("http")}

	r := chi.NewRouter()
	if opts.RateLimit.RequestsPerSecond > 0 {
		r.Use(middleware.RateLimit(opts.RateLimit))
	}
	r.Use(middleware.ClientContext)
	r.Use(middleware.TenantFromHeader(engine, opts.TenantHeader))

	r.Get("/healthz", h.Health)

	r.Route("/v1", func(r chi.Router) {
		r.Post("/register", h.Register)
		r.Post("/login", h.Login)
		r.Post("/login/2fa", h.CompleteTwoFactor)
		r.Post("/login/social/{provider}", h.SocialLogin)
		r.Post("/refresh", h.Refresh)
		r.Post("/password/forgot", h.ForgotPassword)
		r.Post("/password/reset", h.ResetPassword)

		r.Group(func(r chi.Router) {
			r.Use(middleware.Guard(engine))
			r.Post("/logout", h.Logout)
			r.Post("/password/change", h.ChangePassword)
			r.Patch("/me", h.UpdateProfile)
			r.Get("/me/permissions", h.Permissions)
			r.Post("/me/2fa/setup", h.BeginTwoFactorSetup)
			r.Post("/me/2fa/confirm", h.ConfirmTwoFactorSetup)
			r.Post("/me/2fa/disable", h.DisableTwoFactor)
			r.Get("/tenants", h.ListTenants)
		})
	})
	return r
}

func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()
	if err := h.engine.Ping(ctx); err != nil {
		h.logger.Warn("health check failed", zap.Error(err))
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
