package http

import (
	"net/http"

	"github.com/keylet/keylet/internal/identity/service"
	"github.com/keylet/keylet/pkg/httpx"
)

// TwoFactorHandler serves TOTP enrollment and management. All endpoints
// require an authenticated account.
type TwoFactorHandler struct {
	TwoFactor *service.TwoFactorService
}

// HandleSetup handles POST /auth/2fa/setup. Returns the shared secret and an
// otpauth:// URL; nothing is enabled until the code is verified.
func (h *TwoFactorHandler) HandleSetup(w http.ResponseWriter, r *http.Request) {
	id, ok := accountID(w, r)
	if !ok {
		return
	}

	enrollment, err := h.TwoFactor.Setup(r.Context(), id)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}

	httpx.WriteData(w, http.StatusOK, enrollment)
}

type twoFactorTokenRequest struct {
	Token string `json:"token" validate:"required,len=6,numeric"`
}

// HandleVerifySetup handles POST /auth/2fa/verify. On success two-factor is
// enabled and the one-time backup codes are returned. They are not
// retrievable again; regeneration replaces the whole batch.
func (h *TwoFactorHandler) HandleVerifySetup(w http.ResponseWriter, r *http.Request) {
	id, ok := accountID(w, r)
	if !ok {
		return
	}

	var req twoFactorTokenRequest
	if !decodeValid(w, r, &req) {
		return
	}

	codes, err := h.TwoFactor.ConfirmEnable(r.Context(), id, req.Token)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}

	httpx.WriteData(w, http.StatusOK, map[string]any{
		"enabled":     true,
		"backupCodes": codes,
	})
}

type disableTwoFactorRequest struct {
	Password string `json:"password" validate:"required"`
	Token    string `json:"token" validate:"omitempty,min=6,max=64"`
}

// HandleDisable handles POST /auth/2fa/disable. Password is always required;
// the token requirement depends on server policy.
func (h *TwoFactorHandler) HandleDisable(w http.ResponseWriter, r *http.Request) {
	id, ok := accountID(w, r)
	if !ok {
		return
	}

	var req disableTwoFactorRequest
	if !decodeValid(w, r, &req) {
		return
	}

	if err := h.TwoFactor.Disable(r.Context(), id, req.Password, req.Token); err != nil {
		writeServiceError(w, r, err)
		return
	}

	httpx.WriteData(w, http.StatusOK, map[string]any{"disabled": true})
}

type regenerateBackupCodesRequest struct {
	Password string `json:"password" validate:"required"`
}

// HandleRegenerateBackupCodes handles POST /auth/2fa/backup-codes.
func (h *TwoFactorHandler) HandleRegenerateBackupCodes(w http.ResponseWriter, r *http.Request) {
	id, ok := accountID(w, r)
	if !ok {
		return
	}

	var req regenerateBackupCodesRequest
	if !decodeValid(w, r, &req) {
		return
	}

	codes, err := h.TwoFactor.RegenerateBackupCodes(r.Context(), id, req.Password)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}

	httpx.WriteData(w, http.StatusOK, map[string]any{"backupCodes": codes})
}

// HandleStatus handles GET /auth/2fa/status.
func (h *TwoFactorHandler) HandleStatus(w http.ResponseWriter, r *http.Request) {
	id, ok := accountID(w, r)
	if !ok {
		return
	}

	status, err := h.TwoFactor.Status(r.Context(), id)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}

	httpx.WriteData(w, http.StatusOK, status)
}
