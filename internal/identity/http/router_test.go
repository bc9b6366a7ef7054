package http

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"regexp"
	"sync"
	"testing"
	"time"

	"github.com/pquerna/otp/totp"
	"github.com/stretchr/testify/require"

	"github.com/keylet/keylet/internal/identity/notify"
	"github.com/keylet/keylet/internal/identity/service"
	"github.com/keylet/keylet/internal/identity/store"
	"github.com/keylet/keylet/internal/identity/store/drivers/sqlite"
	"github.com/keylet/keylet/pkg/cryptox"
	"github.com/keylet/keylet/pkg/httpx"
	"github.com/keylet/keylet/pkg/jwtx"
)

func TestMain(m *testing.M) {
	dir, err := os.MkdirTemp("", "keylet-http-test")
	if err != nil {
		os.Exit(1)
	}
	cryptox.SetPepperPath(filepath.Join(dir, "pepper"))

	code := m.Run()
	_ = os.RemoveAll(dir)
	os.Exit(code)
}

// captureNotifier records deliveries so tests can read OTP codes back out.
type captureNotifier struct {
	mu     sync.Mutex
	emails []string
	sms    []string
}

func (c *captureNotifier) SendEmail(_ context.Context, _, _, body string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.emails = append(c.emails, body)
	return nil
}

func (c *captureNotifier) SendSMS(_ context.Context, _, body string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sms = append(c.sms, body)
	return nil
}

var codePattern = regexp.MustCompile(`\b(\d{6})\b`)

func (c *captureNotifier) lastEmailCode(t *testing.T) string {
	t.Helper()
	c.mu.Lock()
	defer c.mu.Unlock()
	require.NotEmpty(t, c.emails)
	m := codePattern.FindStringSubmatch(c.emails[len(c.emails)-1])
	require.NotNil(t, m)
	return m[1]
}

func (c *captureNotifier) lastSMSCode(t *testing.T) string {
	t.Helper()
	c.mu.Lock()
	defer c.mu.Unlock()
	require.NotEmpty(t, c.sms)
	m := codePattern.FindStringSubmatch(c.sms[len(c.sms)-1])
	require.NotNil(t, m)
	return m[1]
}

type testEnv struct {
	router   *Router
	notifier *captureNotifier
	dispatch *notify.Dispatcher
	store    store.Store
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	st, err := sqlite.NewStore(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })
	require.NoError(t, st.ApplyMigrations())

	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))

	signer, err := jwtx.GenerateSigner("test-key")
	require.NoError(t, err)
	keys := jwtx.NewKeySet()
	keys.Add(signer.KID(), signer.Public())
	verifier := &jwtx.Verifier{Keys: keys, Issuer: "keylet-identity"}

	notifier := &captureNotifier{}
	dispatcher := &notify.Dispatcher{Notifier: notifier, Logger: logger}

	sessions := &service.SessionService{
		Store:      st,
		Signer:     signer,
		Issuer:     "keylet-identity",
		AccessTTL:  7 * 24 * time.Hour,
		RefreshTTL: 30 * 24 * time.Hour,
	}

	router := NewRouter(keys, verifier, "test", st,
		httpx.CookiePolicy{SameSite: http.SameSiteLaxMode},
		sessions.AccessTTL, sessions.RefreshTTL, logger)

	router.Registration = &service.RegistrationService{Store: st, Sessions: sessions, Notify: dispatcher}
	router.Login = &service.LoginService{Store: st, Sessions: sessions}
	router.Sessions = sessions
	router.Passwords = &service.PasswordService{Store: st, Mail: notifier}
	router.TwoFactor = &service.TwoFactorService{Store: st, Issuer: "Keylet"}
	router.ApplyRoutes()

	return &testEnv{router: router, notifier: notifier, dispatch: dispatcher, store: st}
}

type envelope struct {
	Success bool              `json:"success"`
	Data    map[string]any    `json:"data"`
	Message string            `json:"message"`
	Errors  map[string]string `json:"errors"`
}

func (e *testEnv) do(t *testing.T, method, path string, body any, cookies ...*http.Cookie) (*http.Response, envelope) {
	t.Helper()

	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	for _, c := range cookies {
		req.AddCookie(c)
	}

	rec := httptest.NewRecorder()
	e.router.ServeHTTP(rec, req)

	res := rec.Result()
	t.Cleanup(func() { _ = res.Body.Close() })

	var env envelope
	_ = json.NewDecoder(res.Body).Decode(&env)
	return res, env
}

func authCookies(t *testing.T, res *http.Response) (access, refresh *http.Cookie) {
	t.Helper()
	for _, c := range res.Cookies() {
		switch c.Name {
		case httpx.AccessCookie:
			access = c
		case httpx.RefreshCookie:
			refresh = c
		}
	}
	require.NotNil(t, access)
	require.NotNil(t, refresh)
	require.True(t, access.HttpOnly)
	require.True(t, refresh.HttpOnly)
	return access, refresh
}

func registerAccount(t *testing.T, e *testEnv, email, phone string) string {
	t.Helper()

	res, env := e.do(t, http.MethodPost, "/auth/register", map[string]any{
		"fullName": "Avery Tenant",
		"email":    email,
		"phone":    phone,
		"password": "correct-horse-battery",
		"role":     "tenant",
	})
	require.Equal(t, http.StatusCreated, res.StatusCode)
	require.True(t, env.Success)
	require.Equal(t, true, env.Data["verificationRequired"])

	e.dispatch.Wait()
	return env.Data["userId"].(string)
}

func TestRegisterVerifyLoginFlow(t *testing.T) {
	e := newTestEnv(t)
	userID := registerAccount(t, e, "avery@example.com", "+61400000001")

	// Email verification activates the account and signs the caller in.
	res, env := e.do(t, http.MethodPost, "/auth/verify-otp", map[string]any{
		"userId": userID,
		"otp":    e.notifier.lastEmailCode(t),
		"type":   "email",
	})
	require.Equal(t, http.StatusOK, res.StatusCode)
	require.Equal(t, true, env.Data["verified"])
	require.Equal(t, false, env.Data["isFullyVerified"])
	authCookies(t, res)

	// Phone verification completes the pair but issues no session.
	res, env = e.do(t, http.MethodPost, "/auth/verify-otp", map[string]any{
		"userId": userID,
		"otp":    e.notifier.lastSMSCode(t),
		"type":   "phone",
	})
	require.Equal(t, http.StatusOK, res.StatusCode)
	require.Equal(t, true, env.Data["isFullyVerified"])
	require.Empty(t, res.Cookies())

	res, env = e.do(t, http.MethodPost, "/auth/login", map[string]any{
		"identifier": "avery@example.com",
		"password":   "correct-horse-battery",
	})
	require.Equal(t, http.StatusOK, res.StatusCode)
	user := env.Data["user"].(map[string]any)
	require.Equal(t, userID, user["id"])
	require.Equal(t, "active", user["status"])
	access, _ := authCookies(t, res)

	// The access cookie works on a secured route.
	res, env = e.do(t, http.MethodGet, "/auth/2fa/status", nil, access)
	require.Equal(t, http.StatusOK, res.StatusCode)
	require.Equal(t, false, env.Data["enabled"])
}

func TestVerifyOTPRejectsWrongCode(t *testing.T) {
	e := newTestEnv(t)
	userID := registerAccount(t, e, "wrong@example.com", "+61400000002")

	res, env := e.do(t, http.MethodPost, "/auth/verify-otp", map[string]any{
		"userId": userID,
		"otp":    "000000",
		"type":   "email",
	})
	require.Equal(t, http.StatusUnauthorized, res.StatusCode)
	require.False(t, env.Success)
}

func TestRefreshRotatesAndLogoutClears(t *testing.T) {
	e := newTestEnv(t)
	userID := registerAccount(t, e, "rotate@example.com", "+61400000003")

	res, _ := e.do(t, http.MethodPost, "/auth/verify-otp", map[string]any{
		"userId": userID,
		"otp":    e.notifier.lastEmailCode(t),
		"type":   "email",
	})
	_, refresh := authCookies(t, res)

	res, env := e.do(t, http.MethodPost, "/auth/refresh", nil, refresh)
	require.Equal(t, http.StatusOK, res.StatusCode)
	require.True(t, env.Success)
	_, rotated := authCookies(t, res)
	require.NotEqual(t, refresh.Value, rotated.Value)

	// The superseded token no longer refreshes.
	res, _ = e.do(t, http.MethodPost, "/auth/refresh", nil, refresh)
	require.Equal(t, http.StatusUnauthorized, res.StatusCode)

	res, _ = e.do(t, http.MethodPost, "/auth/logout", nil, rotated)
	require.Equal(t, http.StatusOK, res.StatusCode)
	for _, c := range res.Cookies() {
		require.Equal(t, -1, c.MaxAge)
	}
}

func TestRefreshWithoutTokenIsUnauthorized(t *testing.T) {
	e := newTestEnv(t)

	res, env := e.do(t, http.MethodPost, "/auth/refresh", nil)
	require.Equal(t, http.StatusUnauthorized, res.StatusCode)
	require.False(t, env.Success)
}

func TestRegisterValidation(t *testing.T) {
	e := newTestEnv(t)

	res, env := e.do(t, http.MethodPost, "/auth/register", map[string]any{
		"fullName": "A",
		"email":    "not-an-email",
		"phone":    "12345",
		"password": "short",
		"role":     "admin",
	})
	require.Equal(t, http.StatusBadRequest, res.StatusCode)
	require.False(t, env.Success)
	for _, field := range []string{"fullName", "email", "phone", "password", "role"} {
		require.Contains(t, env.Errors, field)
	}
}

func TestSecuredRoutesRequireAuth(t *testing.T) {
	e := newTestEnv(t)

	for _, route := range []struct{ method, path string }{
		{http.MethodGet, "/auth/2fa/status"},
		{http.MethodPost, "/auth/2fa/setup"},
		{http.MethodPost, "/auth/change-password"},
	} {
		res, _ := e.do(t, route.method, route.path, nil)
		require.Equal(t, http.StatusUnauthorized, res.StatusCode, route.path)
	}
}

func TestTwoFactorEnableAndDisableOverHTTP(t *testing.T) {
	e := newTestEnv(t)
	userID := registerAccount(t, e, "twofa@example.com", "+61400000004")

	res, _ := e.do(t, http.MethodPost, "/auth/verify-otp", map[string]any{
		"userId": userID,
		"otp":    e.notifier.lastEmailCode(t),
		"type":   "email",
	})
	access, _ := authCookies(t, res)

	res, env := e.do(t, http.MethodPost, "/auth/2fa/setup", nil, access)
	require.Equal(t, http.StatusOK, res.StatusCode)
	secret := env.Data["secret"].(string)

	code, err := totp.GenerateCode(secret, time.Now())
	require.NoError(t, err)

	// The enable step takes the TOTP value under "token".
	res, env = e.do(t, http.MethodPost, "/auth/2fa/verify", map[string]any{"token": code}, access)
	require.Equal(t, http.StatusOK, res.StatusCode)
	require.Len(t, env.Data["backupCodes"], 10)

	res, env = e.do(t, http.MethodGet, "/auth/2fa/status", nil, access)
	require.Equal(t, http.StatusOK, res.StatusCode)
	require.Equal(t, true, env.Data["enabled"])

	res, _ = e.do(t, http.MethodPost, "/auth/2fa/disable", map[string]any{
		"password": "correct-horse-battery",
		"token":    code,
	}, access)
	require.Equal(t, http.StatusOK, res.StatusCode)

	res, env = e.do(t, http.MethodGet, "/auth/2fa/status", nil, access)
	require.Equal(t, http.StatusOK, res.StatusCode)
	require.Equal(t, false, env.Data["enabled"])
}

func TestLoginRateLimit(t *testing.T) {
	e := newTestEnv(t)

	body := map[string]any{
		"identifier": "nobody@example.com",
		"password":   "whatever-wrong",
	}
	for i := 0; i < 5; i++ {
		res, _ := e.do(t, http.MethodPost, "/auth/login", body)
		require.Equal(t, http.StatusUnauthorized, res.StatusCode, fmt.Sprintf("attempt %d", i+1))
	}

	res, env := e.do(t, http.MethodPost, "/auth/login", body)
	require.Equal(t, http.StatusTooManyRequests, res.StatusCode)
	require.False(t, env.Success)
	require.NotEmpty(t, res.Header.Get("Retry-After"))
}

func TestForgotPasswordAlwaysSucceeds(t *testing.T) {
	e := newTestEnv(t)

	res, env := e.do(t, http.MethodPost, "/auth/forgot-password", map[string]any{
		"email": "ghost@example.com",
	})
	require.Equal(t, http.StatusOK, res.StatusCode)
	require.True(t, env.Success)
}

func TestHealthEndpoints(t *testing.T) {
	e := newTestEnv(t)

	res, env := e.do(t, http.MethodGet, "/livez", nil)
	require.Equal(t, http.StatusOK, res.StatusCode)
	require.Equal(t, "ok", env.Data["status"])

	res, env = e.do(t, http.MethodGet, "/readyz", nil)
	require.Equal(t, http.StatusOK, res.StatusCode)
	require.Equal(t, "ok", env.Data["status"])
}
