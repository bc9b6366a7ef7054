package http

import (
	"net/http"

	"github.com/keylet/keylet/internal/identity/service"
	"github.com/keylet/keylet/pkg/httpx"
)

// PasswordHandler serves the forgot/reset flow and in-session password change.
type PasswordHandler struct {
	Passwords *service.PasswordService
	Cookies   httpx.CookiePolicy
}

type forgotPasswordRequest struct {
	Email string `json:"email" validate:"required,email"`
}

// HandleForgotPassword handles POST /auth/forgot-password. The response is
// identical whether or not the email maps to an account.
func (h *PasswordHandler) HandleForgotPassword(w http.ResponseWriter, r *http.Request) {
	var req forgotPasswordRequest
	if !decodeValid(w, r, &req) {
		return
	}

	if err := h.Passwords.RequestReset(r.Context(), req.Email); err != nil {
		writeServiceError(w, r, err)
		return
	}

	httpx.WriteData(w, http.StatusOK, map[string]any{
		"message": "If that email is registered, a reset token has been sent.",
	})
}

type resetPasswordRequest struct {
	Token       string `json:"token" validate:"required"`
	NewPassword string `json:"newPassword" validate:"required,min=8,max=128"`
}

// HandleResetPassword handles POST /auth/reset-password. A successful reset
// revokes every session, so the browser's cookies are cleared too.
func (h *PasswordHandler) HandleResetPassword(w http.ResponseWriter, r *http.Request) {
	var req resetPasswordRequest
	if !decodeValid(w, r, &req) {
		return
	}

	if err := h.Passwords.CompleteReset(r.Context(), req.Token, req.NewPassword); err != nil {
		writeServiceError(w, r, err)
		return
	}

	h.Cookies.ClearAuthCookies(w)
	httpx.WriteData(w, http.StatusOK, map[string]any{"reset": true})
}

type changePasswordRequest struct {
	CurrentPassword string `json:"currentPassword" validate:"required"`
	NewPassword     string `json:"newPassword" validate:"required,min=8,max=128"`
}

// HandleChangePassword handles POST /auth/change-password for an
// authenticated account. Other sessions stay alive.
func (h *PasswordHandler) HandleChangePassword(w http.ResponseWriter, r *http.Request) {
	id, ok := accountID(w, r)
	if !ok {
		return
	}

	var req changePasswordRequest
	if !decodeValid(w, r, &req) {
		return
	}

	if err := h.Passwords.ChangePassword(r.Context(), id, req.CurrentPassword, req.NewPassword); err != nil {
		writeServiceError(w, r, err)
		return
	}

	httpx.WriteData(w, http.StatusOK, map[string]any{"changed": true})
}
