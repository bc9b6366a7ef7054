package http

import (
	"net/http"
	"time"

	"github.com/keylet/keylet/internal/identity/domain"
	"github.com/keylet/keylet/internal/identity/service"
	"github.com/keylet/keylet/pkg/httpx"
)

// RegisterHandler serves signup and the verification code endpoints.
type RegisterHandler struct {
	Registration *service.RegistrationService
	Cookies      httpx.CookiePolicy
	AccessTTL    time.Duration
	RefreshTTL   time.Duration
}

type registerRequest struct {
	FullName string `json:"fullName" validate:"required,min=2,max=100"`
	Email    string `json:"email" validate:"required,email"`
	Phone    string `json:"phone" validate:"required,e164"`
	Password string `json:"password" validate:"required,min=8,max=128"`
	Role     string `json:"role" validate:"required,oneof=tenant landlord"`
}

// HandleRegister handles POST /auth/register.
func (h *RegisterHandler) HandleRegister(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if !decodeValid(w, r, &req) {
		return
	}

	account, err := h.Registration.Register(r.Context(),
		req.FullName, req.Email, req.Phone, req.Password, req.Role)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}

	httpx.WriteData(w, http.StatusCreated, map[string]any{
		"userId":               account.ID,
		"email":                account.Email,
		"verificationRequired": true,
	})
}

type verifyOTPRequest struct {
	UserID string `json:"userId" validate:"required"`
	OTP    string `json:"otp" validate:"required,len=6,numeric"`
	Type   string `json:"type" validate:"required,oneof=email phone"`
}

// HandleVerifyOTP handles POST /auth/verify-otp. Verifying the email channel
// activates the account and signs the caller in.
func (h *RegisterHandler) HandleVerifyOTP(w http.ResponseWriter, r *http.Request) {
	var req verifyOTPRequest
	if !decodeValid(w, r, &req) {
		return
	}

	result, err := h.Registration.VerifyCode(r.Context(), req.UserID, req.OTP, domain.Channel(req.Type))
	if err != nil {
		writeServiceError(w, r, err)
		return
	}

	if result.Tokens != nil {
		h.Cookies.SetAuthCookies(w,
			result.Tokens.AccessToken, result.Tokens.RefreshToken,
			h.AccessTTL, h.RefreshTTL)
	}

	httpx.WriteData(w, http.StatusOK, map[string]any{
		"verified":        true,
		"isFullyVerified": result.FullyVerified,
	})
}

type resendOTPRequest struct {
	UserID string `json:"userId" validate:"required"`
	Type   string `json:"type" validate:"required,oneof=email phone"`
}

// HandleResendOTP handles POST /auth/resend-otp.
func (h *RegisterHandler) HandleResendOTP(w http.ResponseWriter, r *http.Request) {
	var req resendOTPRequest
	if !decodeValid(w, r, &req) {
		return
	}

	ttl, err := h.Registration.ResendCode(r.Context(), req.UserID, domain.Channel(req.Type))
	if err != nil {
		writeServiceError(w, r, err)
		return
	}

	httpx.WriteData(w, http.StatusOK, map[string]any{
		"expiresIn": int(ttl.Seconds()),
	})
}
