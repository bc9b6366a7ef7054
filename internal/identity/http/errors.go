package http

import (
	"errors"
	"net/http"

	"github.com/keylet/keylet/internal/identity/service"
	"github.com/keylet/keylet/pkg/httpx"
	"github.com/keylet/keylet/pkg/slogx"
)

// writeServiceError maps a service-layer error onto the response envelope.
// Anything unmapped is a 500 with a generic message; the real error only goes
// to the log.
func writeServiceError(w http.ResponseWriter, r *http.Request, err error) {
	type mapping struct {
		target  error
		status  int
		message string
	}

	mappings := []mapping{
		{service.ErrInvalidCredentials, http.StatusUnauthorized, "invalid credentials"},
		{service.ErrAccountLocked, http.StatusLocked, "account temporarily locked, try again later"},
		{service.ErrAccountSuspended, http.StatusForbidden, "account suspended"},
		{service.ErrAccountBanned, http.StatusForbidden, "account banned"},
		{service.ErrAccountNotFound, http.StatusNotFound, "account not found"},
		{service.ErrEmailTaken, http.StatusConflict, "already registered"},
		{service.ErrPhoneTaken, http.StatusConflict, "already registered"},
		{service.ErrAlreadyVerified, http.StatusConflict, "already verified"},
		{service.ErrCodeExpired, http.StatusUnauthorized, "verification code expired"},
		{service.ErrCodeInvalid, http.StatusUnauthorized, "invalid verification code"},
		{service.ErrTooManyCodeAttempts, http.StatusTooManyRequests, "too many attempts, request a new code"},
		{service.ErrInvalidRefresh, http.StatusUnauthorized, "invalid or expired refresh token"},
		{service.ErrChallengeInvalid, http.StatusUnauthorized, "invalid or expired challenge"},
		{service.ErrTooManyTwoFactor, http.StatusTooManyRequests, "too many attempts, sign in again"},
		{service.ErrInvalidSecondFactor, http.StatusUnauthorized, "invalid two-factor code"},
		{service.ErrResetInvalid, http.StatusUnauthorized, "invalid or expired reset token"},
		{service.ErrNotifyFailed, http.StatusInternalServerError, "could not send email, try again later"},
		{service.ErrTwoFactorEnabled, http.StatusConflict, "two-factor authentication is already enabled"},
		{service.ErrTwoFactorNotSetup, http.StatusBadRequest, "two-factor authentication has not been set up"},
		{service.ErrTwoFactorNotEnabled, http.StatusBadRequest, "two-factor authentication is not enabled"},
		{service.ErrCodeRequired, http.StatusBadRequest, "a two-factor code is required"},
	}

	for _, m := range mappings {
		if errors.Is(err, m.target) {
			httpx.WriteError(w, m.status, m.message)
			return
		}
	}

	slogx.FromContext(r.Context()).Error("request failed", "err", err)
	httpx.WriteError(w, http.StatusInternalServerError, "internal server error")
}

// accountID pulls the authenticated account out of the request context. The
// authn middleware guarantees it on secured routes.
func accountID(w http.ResponseWriter, r *http.Request) (string, bool) {
	id, ok := httpx.AccountIDFromContext(r.Context())
	if !ok {
		httpx.WriteError(w, http.StatusUnauthorized, "authentication required")
		return "", false
	}
	return id, true
}
