package http

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/keylet/keylet/internal/identity/service"
	"github.com/keylet/keylet/pkg/httpx"
)

// SessionHandler serves token refresh and logout.
type SessionHandler struct {
	Sessions   *service.SessionService
	Cookies    httpx.CookiePolicy
	AccessTTL  time.Duration
	RefreshTTL time.Duration
}

// refreshTokenFromRequest prefers the cookie; non-browser clients may send
// the token in the body instead.
func refreshTokenFromRequest(r *http.Request) string {
	if c, err := r.Cookie(httpx.RefreshCookie); err == nil && c.Value != "" {
		return c.Value
	}

	var body struct {
		RefreshToken string `json:"refreshToken"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err == nil {
		return body.RefreshToken
	}
	return ""
}

// HandleRefresh handles POST /auth/refresh. Every refresh rotates the opaque
// token; the superseded one stops working immediately.
func (h *SessionHandler) HandleRefresh(w http.ResponseWriter, r *http.Request) {
	token := refreshTokenFromRequest(r)
	if token == "" {
		httpx.WriteError(w, http.StatusUnauthorized, "refresh token required")
		return
	}

	pair, err := h.Sessions.Refresh(r.Context(), token)
	if err != nil {
		h.Cookies.ClearAuthCookies(w)
		writeServiceError(w, r, err)
		return
	}

	h.Cookies.SetAuthCookies(w, pair.AccessToken, pair.RefreshToken, h.AccessTTL, h.RefreshTTL)
	httpx.WriteData(w, http.StatusOK, map[string]any{
		"expiresIn": int(pair.ExpiresIn.Seconds()),
	})
}

// HandleLogout handles POST /auth/logout. Always clears cookies; deleting an
// already-gone session is fine.
func (h *SessionHandler) HandleLogout(w http.ResponseWriter, r *http.Request) {
	if token := refreshTokenFromRequest(r); token != "" {
		if err := h.Sessions.Revoke(r.Context(), token); err != nil {
			writeServiceError(w, r, err)
			return
		}
	}

	h.Cookies.ClearAuthCookies(w)
	httpx.WriteData(w, http.StatusOK, map[string]any{"loggedOut": true})
}
