package httpapi

import (
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/MrEthical07/shopauth"
	"github.com/MrEthical07/shopauth/middleware"
	"github.com/MrEthical07/shopauth/social"
)

type registerRequest struct {
	Email     string `json:"email"`
	Password  string `json:"password"`
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
	Phone     string `json:"phone"`
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type twoFactorRequest struct {
	ChallengeID string `json:"challenge_id"`
	Code        string `json:"code"`
}

type socialRequest struct {
	IDToken string `json:"id_token"`
}

type refreshRequest struct {
	RefreshToken string `json:"refresh_token"`
}

type forgotRequest struct {
	Email string `json:"email"`
}

type resetRequest struct {
	Token    string `json:"token"`
	Password string `json:"password"`
}

type changePasswordRequest struct {
	CurrentPassword string `json:"current_password"`
	NewPassword     string `json:"new_password"`
}

type profileRequest struct {
	FirstName *string `json:"first_name"`
	LastName  *string `json:"last_name"`
	Phone     *string `json:"phone"`
}

type profileBody struct {
	ID        string `json:"id"`
	TenantID  string `json:"tenant_id"`
	Email     string `json:"email"`
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
	Phone     string `json:"phone"`
}

type confirmTwoFactorRequest struct {
	Secret string `json:"secret"`
	Code   string `json:"code"`
}

type codeRequest struct {
	Code string `json:"code"`
}

// Register requires a tenant header.
func (h *Handler) Register(w http.ResponseWriter, r *http.Request) {
	tenant := middleware.TenantFromContext(r.Context())
	if tenant == nil {
		writeJSON(w, http.StatusBadRequest, errorBody{Error: "tenant required"})
		return
	}
	var req registerRequest
	if !decode(w, r, &req) {
		return
	}
	pair, err := h.engine.Register(r.Context(), tenant, shopauth.RegisterRequest{
		Email:     req.Email,
		Password:  req.Password,
		FirstName: req.FirstName,
		LastName:  req.LastName,
		Phone:     req.Phone,
	})
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, toTokenBody(pair))
}

// Login answers 202 when a TOTP code is still required.
func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if !decode(w, r, &req) {
		return
	}
	res, err := h.engine.Login(r.Context(), middleware.TenantFromContext(r.Context()), req.Email, req.Password)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeLogin(w, res)
}

func (h *Handler) CompleteTwoFactor(w http.ResponseWriter, r *http.Request) {
	var req twoFactorRequest
	if !decode(w, r, &req) {
		return
	}
	res, err := h.engine.CompleteTwoFactor(r.Context(), middleware.TenantFromContext(r.Context()), req.ChallengeID, req.Code)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeLogin(w, res)
}

func (h *Handler) SocialLogin(w http.ResponseWriter, r *http.Request) {
	if h.social == nil {
		writeJSON(w, http.StatusNotFound, errorBody{Error: social.ErrUnknownProvider.Error()})
		return
	}
	var req socialRequest
	if !decode(w, r, &req) {
		return
	}
	id, err := h.social.Verify(r.Context(), chi.URLParam(r, "provider"), req.IDToken)
	switch {
	case errors.Is(err, social.ErrUnknownProvider):
		writeJSON(w, http.StatusNotFound, errorBody{Error: err.Error()})
		return
	case err != nil:
		writeJSON(w, http.StatusUnauthorized, errorBody{Error: shopauth.ErrInvalidCredentials.Error()})
		return
	}
	res, err := h.engine.LoginWithExternalIdentity(r.Context(), middleware.TenantFromContext(r.Context()), id)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeLogin(w, res)
}

func writeLogin(w http.ResponseWriter, res *shopauth.LoginResult) {
	if res.MFARequired {
		writeJSON(w, http.StatusAccepted, toLoginBody(res))
		return
	}
	writeJSON(w, http.StatusOK, toLoginBody(res))
}

func (h *Handler) Refresh(w http.ResponseWriter, r *http.Request) {
	var req refreshRequest
	if !decode(w, r, &req) {
		return
	}
	pair, err := h.engine.Refresh(r.Context(), middleware.TenantFromContext(r.Context()), req.RefreshToken)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toTokenBody(pair))
}

// ForgotPassword always answers 202 so callers cannot tell which emails have accounts.
func (h *Handler) ForgotPassword(w http.ResponseWriter, r *http.Request) {
	var req forgotRequest
	if !decode(w, r, &req) {
		return
	}
	if err := h.engine.ForgotPassword(r.Context(), middleware.TenantFromContext(r.Context()), req.Email); err != nil {
		h.fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusAccepted)
}

func (h *Handler) ResetPassword(w http.ResponseWriter, r *http.Request) {
	var req resetRequest
	if !decode(w, r, &req) {
		return
	}
	if err := h.engine.ResetPassword(r.Context(), req.Token, req.Password); err != nil {
		h.fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) Logout(w http.ResponseWriter, r *http.Request) {
	s := session(r)
	if err := h.engine.Logout(r.Context(), s.UserID, s.SessionID); err != nil {
		h.fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) ChangePassword(w http.ResponseWriter, r *http.Request) {
	var req changePasswordRequest
	if !decode(w, r, &req) {
		return
	}
	if err := h.engine.ChangePassword(r.Context(), session(r).UserID, req.CurrentPassword, req.NewPassword); err != nil {
		h.fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) UpdateProfile(w http.ResponseWriter, r *http.Request) {
	var req profileRequest
	if !decode(w, r, &req) {
		return
	}
	p, err := h.engine.UpdateProfile(r.Context(), session(r).UserID, shopauth.ProfileUpdate{
		FirstName: req.FirstName,
		LastName:  req.LastName,
		Phone:     req.Phone,
	})
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, profileBody{
		ID:        p.ID,
		TenantID:  p.TenantID,
		Email:     p.Email,
		FirstName: p.FirstName,
		LastName:  p.LastName,
		Phone:     p.Phone,
	})
}

// Permissions reads the live permission set, not the token snapshot.
func (h *Handler) Permissions(w http.ResponseWriter, r *http.Request) {
	perms, err := h.engine.GetEffectivePermissions(r.Context(), session(r).UserID)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string][]string{"permissions": perms})
}

func (h *Handler) BeginTwoFactorSetup(w http.ResponseWriter, r *http.Request) {
	setup, err := h.engine.BeginTwoFactorSetup(r.Context(), session(r).UserID)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"secret": setup.Secret, "uri": setup.URI})
}

func (h *Handler) ConfirmTwoFactorSetup(w http.ResponseWriter, r *http.Request) {
	var req confirmTwoFactorRequest
	if !decode(w, r, &req) {
		return
	}
	if err := h.engine.ConfirmTwoFactorSetup(r.Context(), session(r).UserID, req.Secret, req.Code); err != nil {
		h.fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) DisableTwoFactor(w http.ResponseWriter, r *http.Request) {
	var req codeRequest
	if !decode(w, r, &req) {
		return
	}
	if err := h.engine.DisableTwoFactor(r.Context(), session(r).UserID, req.Code); err != nil {
		h.fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) ListTenants(w http.ResponseWriter, r *http.Request) {
	tenants, err := h.engine.ListTenants(r.Context(), session(r))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	out := make([]map[string]any, 0, len(tenants))
	for _, t := range tenants {
		out = append(out, map[string]any{
			"id":     t.ID,
			"domain": t.Domain,
			"active": t.Active,
			"plan":   t.Plan,
		})
	}
	writeJSON(w, http.StatusOK, map[string]any{"tenants": out})
}

// session is only called behind Guard.
func session(r *http.Request) *shopauth.Session {
	s, _ := shopauth.SessionFromContext(r.Context())
	return s
}
