package http

import (
	"log/slog"
	"net/http"

	"github.com/Dugo220203tg/storefront/internal/credential"
	"github.com/Dugo220203tg/storefront/internal/gateway"
	"github.com/Dugo220203tg/storefront/pkg/httputil"
	"github.com/Dugo220203tg/storefront/pkg/validator"
)

// AuthHandler handles session and account endpoints.
type AuthHandler struct {
	creds  *credential.Store
	gw     *gateway.Gateway
	logger *slog.Logger
}

// NewAuthHandler creates a new auth HTTP handler.
func NewAuthHandler(creds *credential.Store, gw *gateway.Gateway, logger *slog.Logger) *AuthHandler {
	return &AuthHandler{creds: creds, gw: gw, logger: logger}
}

// LoginRequest is the JSON request body for signing in.
type LoginRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

// SessionResponse reports the signed-in state and identity.
type SessionResponse struct {
	Authenticated bool                 `json:"authenticated"`
	Identity      *credential.Identity `json:"identity,omitempty"`
}

// Login handles POST /api/v1/auth/login.
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, 1<<20)
	var req LoginRequest
	if err := validator.DecodeAndValidate(r, &req); err != nil {
		httputil.WriteValidationError(w, err)
		return
	}

	if err := h.creds.Login(r.Context(), req.Email, req.Password); err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}
	h.writeSession(w)
}

// Logout handles POST /api/v1/auth/logout.
func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	h.creds.Logout(r.Context())
	w.WriteHeader(http.StatusNoContent)
}

// Session handles GET /api/v1/auth/session.
func (h *AuthHandler) Session(w http.ResponseWriter, r *http.Request) {
	h.writeSession(w)
}

func (h *AuthHandler) writeSession(w http.ResponseWriter) {
	resp := SessionResponse{Authenticated: h.creds.IsAuthenticated()}
	if identity, ok := h.creds.Identity(); ok {
		resp.Identity = &identity
	}
	httputil.WriteJSON(w, http.StatusOK, httputil.Response{Data: resp})
}

// Register handles POST /api/v1/auth/register.
func (h *AuthHandler) Register(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, 1<<20)
	var req credential.RegisterInput
	if err := validator.DecodeAndValidate(r, &req); err != nil {
		httputil.WriteValidationError(w, err)
		return
	}

	if err := h.creds.Register(r.Context(), req); err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}
	w.WriteHeader(http.StatusCreated)
}

// ForgotPasswordRequest is the JSON request body for requesting a
// password reset email.
type ForgotPasswordRequest struct {
	Email string `json:"email" validate:"required,email"`
}

// ForgotPassword handles POST /api/v1/auth/forgot-password.
func (h *AuthHandler) ForgotPassword(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, 1<<20)
	var req ForgotPasswordRequest
	if err := validator.DecodeAndValidate(r, &req); err != nil {
		httputil.WriteValidationError(w, err)
		return
	}

	if err := h.creds.ForgotPassword(r.Context(), req.Email); err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}
	w.WriteHeader(http.StatusAccepted)
}

// ResetPassword handles POST /api/v1/auth/reset-password.
func (h *AuthHandler) ResetPassword(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, 1<<20)
	var req credential.ResetPasswordInput
	if err := validator.DecodeAndValidate(r, &req); err != nil {
		httputil.WriteValidationError(w, err)
		return
	}

	if err := h.creds.ResetPassword(r.Context(), req); err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// ChangePassword handles POST /api/v1/auth/change-password.
func (h *AuthHandler) ChangePassword(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, 1<<20)
	var req credential.ChangePasswordInput
	if err := validator.DecodeAndValidate(r, &req); err != nil {
		httputil.WriteValidationError(w, err)
		return
	}

	if err := h.creds.ChangePassword(r.Context(), h.gw, req); err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Account handles GET /api/v1/auth/account.
func (h *AuthHandler) Account(w http.ResponseWriter, r *http.Request) {
	detail, err := h.creds.AccountDetail(r.Context(), h.gw)
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, httputil.Response{Data: detail})
}
