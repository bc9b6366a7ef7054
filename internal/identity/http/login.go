package http

import (
	"net/http"
	"time"

	"github.com/keylet/keylet/internal/identity/service"
	"github.com/keylet/keylet/pkg/httpx"
)

// LoginHandler serves the password step and the optional second factor step.
type LoginHandler struct {
	Login      *service.LoginService
	Cookies    httpx.CookiePolicy
	AccessTTL  time.Duration
	RefreshTTL time.Duration
}

type loginRequest struct {
	Identifier string `json:"identifier" validate:"required,max=254"`
	Password   string `json:"password" validate:"required,max=128"`
}

type userPayload struct {
	ID       string `json:"id"`
	FullName string `json:"fullName"`
	Email    string `json:"email"`
	Role     string `json:"role"`
	Status   string `json:"status"`
}

// HandleLogin handles POST /auth/login.
func (h *LoginHandler) HandleLogin(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if !decodeValid(w, r, &req) {
		return
	}

	result, err := h.Login.Authenticate(r.Context(), req.Identifier, req.Password)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}

	if result.TwoFactorRequired {
		httpx.WriteData(w, http.StatusOK, map[string]any{
			"twoFactorRequired": true,
			"challengeToken":    result.ChallengeToken,
			"methods":           result.Methods,
		})
		return
	}

	h.writeSession(w, result)
}

type twoFactorLoginRequest struct {
	ChallengeToken string `json:"challengeToken" validate:"required"`
	Code           string `json:"code" validate:"required,min=6,max=64"`
}

// HandleTwoFactor handles POST /auth/login/2fa.
func (h *LoginHandler) HandleTwoFactor(w http.ResponseWriter, r *http.Request) {
	var req twoFactorLoginRequest
	if !decodeValid(w, r, &req) {
		return
	}

	result, err := h.Login.CompleteTwoFactor(r.Context(), req.ChallengeToken, req.Code)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}

	h.writeSession(w, result)
}

func (h *LoginHandler) writeSession(w http.ResponseWriter, result service.LoginResult) {
	h.Cookies.SetAuthCookies(w,
		result.Tokens.AccessToken, result.Tokens.RefreshToken,
		h.AccessTTL, h.RefreshTTL)

	httpx.WriteData(w, http.StatusOK, map[string]any{
		"expiresIn": int(result.Tokens.ExpiresIn.Seconds()),
		"user": userPayload{
			ID:       result.Account.ID,
			FullName: result.Account.FullName,
			Email:    result.Account.Email,
			Role:     result.Account.Role,
			Status:   string(result.Account.Status),
		},
	})
}
