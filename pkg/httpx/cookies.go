package httpx

import (
	"net/http"
	"time"
)

const (
	// AccessCookie carries the signed access token.
	AccessCookie = "accessToken"
	// RefreshCookie carries the opaque refresh token.
	RefreshCookie = "refreshToken"
)

// CookiePolicy captures the environment-dependent cookie attributes.
type CookiePolicy struct {
	// Secure marks cookies as HTTPS-only. On in production.
	Secure bool
	// SameSite is Strict in production, Lax otherwise.
	SameSite http.SameSite
}

// SetAuthCookies writes the access and refresh token cookies. Both are
// httpOnly so scripts never see raw tokens.
func (p CookiePolicy) SetAuthCookies(w http.ResponseWriter, access, refresh string, accessTTL, refreshTTL time.Duration) {
	http.SetCookie(w, &http.Cookie{
		Name:     AccessCookie,
		Value:    access,
		Path:     "/",
		MaxAge:   int(accessTTL.Seconds()),
		HttpOnly: true,
		Secure:   p.Secure,
		SameSite: p.SameSite,
	})
	http.SetCookie(w, &http.Cookie{
		Name:     RefreshCookie,
		Value:    refresh,
		Path:     "/",
		MaxAge:   int(refreshTTL.Seconds()),
		HttpOnly: true,
		Secure:   p.Secure,
		SameSite: p.SameSite,
	})
}

// ClearAuthCookies expires both auth cookies (logout, reset).
func (p CookiePolicy) ClearAuthCookies(w http.ResponseWriter) {
	for _, name := range []string{AccessCookie, RefreshCookie} {
		http.SetCookie(w, &http.Cookie{
			Name:     name,
			Value:    "",
			Path:     "/",
			MaxAge:   -1,
			HttpOnly: true,
			Secure:   p.Secure,
			SameSite: p.SameSite,
		})
	}
}
