package http

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/keylet/keylet/internal/identity/service"
	"github.com/keylet/keylet/internal/identity/store"
	"github.com/keylet/keylet/pkg/httpx"
	"github.com/keylet/keylet/pkg/jwtx"
	"github.com/keylet/keylet/pkg/slogx"
)

// Router holds shared dependencies for HTTP handlers.
type Router struct {
	Mux         *http.ServeMux
	middlewares []httpx.Middleware

	keys         *jwtx.KeySet
	verifier     *jwtx.Verifier
	buildVersion string
	startTime    time.Time
	logger       *slog.Logger

	store      store.Store
	cookies    httpx.CookiePolicy
	accessTTL  time.Duration
	refreshTTL time.Duration

	Registration *service.RegistrationService
	Login        *service.LoginService
	Sessions     *service.SessionService
	Passwords    *service.PasswordService
	TwoFactor    *service.TwoFactorService
}

func NewRouter(
	keys *jwtx.KeySet,
	verifier *jwtx.Verifier,
	buildVersion string,
	st store.Store,
	cookies httpx.CookiePolicy,
	accessTTL, refreshTTL time.Duration,
	logger *slog.Logger,
) *Router {
	r := &Router{
		Mux:          http.NewServeMux(),
		keys:         keys,
		verifier:     verifier,
		buildVersion: buildVersion,
		startTime:    time.Now(),
		store:        st,
		cookies:      cookies,
		accessTTL:    accessTTL,
		refreshTTL:   refreshTTL,
		logger:       logger,
	}

	r.middlewares = []httpx.Middleware{
		slogx.HTTPMiddleware(r.logger),
	}

	return r
}

func (r *Router) ApplyRoutes() {
	r.registerRegistration()
	r.registerLogin()
	r.registerSessions()
	r.registerPasswords()
	r.registerTwoFactor()
	r.registerSystem()
}

// ServeHTTP implements http.Handler and applies the global middleware chain.
func (r *Router) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	httpx.Chain(r.Mux, r.middlewares...).ServeHTTP(w, req)
}

func (r *Router) registerRegistration() {
	h := &RegisterHandler{
		Registration: r.Registration,
		Cookies:      r.cookies,
		AccessTTL:    r.accessTTL,
		RefreshTTL:   r.refreshTTL,
	}

	// Public signup and OTP endpoints, strict IP limits against abuse.
	r.Mux.Handle("POST /auth/register",
		httpx.Chain(http.HandlerFunc(h.HandleRegister),
			httpx.RateLimitByIP(httpx.StrictLimit),
		),
	)
	r.Mux.Handle("POST /auth/verify-otp",
		httpx.Chain(http.HandlerFunc(h.HandleVerifyOTP),
			httpx.RateLimitByIP(httpx.StrictLimit),
		),
	)
	r.Mux.Handle("POST /auth/resend-otp",
		httpx.Chain(http.HandlerFunc(h.HandleResendOTP),
			httpx.RateLimitByIP(httpx.StrictLimit),
		),
	)
}

func (r *Router) registerLogin() {
	h := &LoginHandler{
		Login:      r.Login,
		Cookies:    r.cookies,
		AccessTTL:  r.accessTTL,
		RefreshTTL: r.refreshTTL,
	}

	// Keyed by IP + identifier so one address cannot burn another
	// account's budget.
	r.Mux.Handle("POST /auth/login",
		httpx.Chain(http.HandlerFunc(h.HandleLogin),
			httpx.RateLimitByIPAndJSONField(httpx.StrictLimit, "identifier"),
		),
	)
	r.Mux.Handle("POST /auth/login/2fa",
		httpx.Chain(http.HandlerFunc(h.HandleTwoFactor),
			httpx.RateLimitByIP(httpx.StrictLimit),
		),
	)
}

func (r *Router) registerSessions() {
	h := &SessionHandler{
		Sessions:   r.Sessions,
		Cookies:    r.cookies,
		AccessTTL:  r.accessTTL,
		RefreshTTL: r.refreshTTL,
	}

	r.Mux.Handle("POST /auth/refresh",
		httpx.Chain(http.HandlerFunc(h.HandleRefresh),
			httpx.RateLimitByIP(httpx.ModerateLimit),
		),
	)
	r.Mux.Handle("POST /auth/logout",
		httpx.Chain(http.HandlerFunc(h.HandleLogout),
			httpx.RateLimitByIP(httpx.ModerateLimit),
		),
	)
}

func (r *Router) registerPasswords() {
	h := &PasswordHandler{
		Passwords: r.Passwords,
		Cookies:   r.cookies,
	}

	r.Mux.Handle("POST /auth/forgot-password",
		httpx.Chain(http.HandlerFunc(h.HandleForgotPassword),
			httpx.RateLimitByIP(httpx.StrictLimit),
		),
	)
	r.Mux.Handle("POST /auth/reset-password",
		httpx.Chain(http.HandlerFunc(h.HandleResetPassword),
			httpx.RateLimitByIP(httpx.StrictLimit),
		),
	)

	securedChange := httpx.Chain(http.HandlerFunc(h.HandleChangePassword),
		httpx.AuthnMiddleware(r.verifier),
		httpx.RateLimitByAccount(httpx.ModerateLimit),
	)
	r.Mux.Handle("POST /auth/change-password", securedChange)
}

func (r *Router) registerTwoFactor() {
	h := &TwoFactorHandler{TwoFactor: r.TwoFactor}

	securedSetup := httpx.Chain(http.HandlerFunc(h.HandleSetup),
		httpx.AuthnMiddleware(r.verifier),
		httpx.RateLimitByAccount(httpx.ModerateLimit),
	)

	// Strict limit on verify: six digits brute-force fast otherwise.
	securedVerify := httpx.Chain(http.HandlerFunc(h.HandleVerifySetup),
		httpx.AuthnMiddleware(r.verifier),
		httpx.RateLimitByAccount(httpx.StrictLimit),
	)

	securedDisable := httpx.Chain(http.HandlerFunc(h.HandleDisable),
		httpx.AuthnMiddleware(r.verifier),
		httpx.RateLimitByAccount(httpx.StrictLimit),
	)

	securedRegenerate := httpx.Chain(http.HandlerFunc(h.HandleRegenerateBackupCodes),
		httpx.AuthnMiddleware(r.verifier),
		httpx.RateLimitByAccount(httpx.ModerateLimit),
	)

	securedStatus := httpx.Chain(http.HandlerFunc(h.HandleStatus),
		httpx.AuthnMiddleware(r.verifier),
		httpx.RateLimitByAccount(httpx.LenientLimit),
	)

	r.Mux.Handle("POST /auth/2fa/setup", securedSetup)
	r.Mux.Handle("POST /auth/2fa/verify", securedVerify)
	r.Mux.Handle("POST /auth/2fa/disable", securedDisable)
	r.Mux.Handle("POST /auth/2fa/backup-codes", securedRegenerate)
	r.Mux.Handle("GET /auth/2fa/status", securedStatus)
}

func (r *Router) registerSystem() {
	r.Mux.Handle("GET /livez",
		httpx.Chain(LivezHandler(r.startTime, r.buildVersion),
			httpx.RateLimitByIP(httpx.LenientLimit),
		),
	)
	r.Mux.Handle("GET /readyz",
		httpx.Chain(ReadyzHandler(r.startTime, r.buildVersion, r.store, r.keys),
			httpx.RateLimitByIP(httpx.LenientLimit),
		),
	)
}
