package middleware

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/nebryx/authz"
	"github.com/nebryx/authz/apikey"
	"github.com/nebryx/authz/internal/authztest"
	"github.com/nebryx/authz/rules"
	"github.com/redis/go-redis/v9"
)

const (
	base      = "/api/v2/nebryx"
	usersMe   = base + "/resource/users/me"
	userAgent = "middleware-test/1.0"
	password  = "correct horse battery"
)

type harness struct {
	engine *authz.Engine
	store  *authztest.Store
}

func newHarness(t *testing.T, mutate func(*authz.Config)) *harness {
	t.Helper()

	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis start failed: %v", err)
	}
	t.Cleanup(mr.Close)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	cfg := authztest.TestConfig(t)
	if mutate != nil {
		mutate(&cfg)
	}

	store := authztest.NewStore(base)
	engine, err := authz.New().
		WithConfig(cfg).
		WithRedis(rdb).
		WithDirectory(store).
		WithKeyStore(store).
		WithRuleStore(store).
		WithRules(rules.NewStaticStore(&rules.Set{Block: []string{base + "/resource/blocked"}})).
		Build()
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}
	t.Cleanup(engine.Close)
	return &harness{engine: engine, store: store}
}

func clientContext(ip string) context.Context {
	ctx := authz.WithClientIP(context.Background(), ip)
	return authz.WithUserAgent(ctx, userAgent)
}

// signIn registers a principal and logs in from ip. The returned recorder
// carries the session cookie.
func (h *harness) signIn(t *testing.T, email, ip string) (*authz.LoginResult, *http.Cookie) {
	t.Helper()
	if _, err := h.engine.Register(clientContext(ip), authz.RegisterInput{Email: email, Password: password}); err != nil {
		t.Fatalf("Register failed: %v", err)
	}
	res, err := h.engine.Login(clientContext(ip), authz.LoginInput{Email: email, Password: password})
	if err != nil {
		t.Fatalf("Login failed: %v", err)
	}
	rec := httptest.NewRecorder()
	SetSessionCookie(rec, h.engine.Config(), res)
	cookies := rec.Result().Cookies()
	if len(cookies) != 1 {
		t.Fatalf("expected one cookie, got %d", len(cookies))
	}
	return res, cookies[0]
}

func captureHandler(got **authz.AuthResult) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		res, _ := authz.AuthResultFromContext(r.Context())
		*got = res
		w.WriteHeader(http.StatusNoContent)
	})
}

func errorCodes(t *testing.T, rec *httptest.ResponseRecorder) []string {
	t.Helper()
	var body errorBody
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("invalid error body %q: %v", rec.Body.String(), err)
	}
	return body.Errors
}

func assertError(t *testing.T, rec *httptest.ResponseRecorder, want *authz.CodeError) {
	t.Helper()
	if rec.Code != want.Status {
		t.Fatalf("expected status %d, got %d (%s)", want.Status, rec.Code, rec.Body.String())
	}
	if codes := errorCodes(t, rec); len(codes) != 1 || codes[0] != want.Code {
		t.Fatalf("expected [%s], got %v", want.Code, codes)
	}
}

func TestAuthorizeSessionCookie(t *testing.T) {
	h := newHarness(t, nil)
	login, cookie := h.signIn(t, "alice@example.com", "10.1.2.3")

	var got *authz.AuthResult
	handler := Authorize(h.engine)(captureHandler(&got))

	req := httptest.NewRequest(http.MethodGet, usersMe, nil)
	req.RemoteAddr = "10.1.200.7:51234"
	req.Header.Set("User-Agent", userAgent)
	req.AddCookie(cookie)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusNoContent {
		t.Fatalf("expected 204, got %d: %s", rec.Code, rec.Body.String())
	}
	if got == nil || got.Principal.UID != login.Principal.UID || got.Method != authz.MethodSession {
		t.Fatalf("unexpected auth result: %+v", got)
	}
	if !strings.HasPrefix(rec.Header().Get("Authorization"), "Bearer ") {
		t.Fatalf("expected bearer token on response, got %q", rec.Header().Get("Authorization"))
	}
}

func TestAuthorizeRejections(t *testing.T) {
	h := newHarness(t, nil)
	_, cookie := h.signIn(t, "bob@example.com", "10.1.2.3")
	handler := Authorize(h.engine)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Fatalf("handler must not run")
	}))

	newReq := func(method, path string) *http.Request {
		req := httptest.NewRequest(method, path, nil)
		req.RemoteAddr = "10.1.2.3:40000"
		req.Header.Set("User-Agent", userAgent)
		return req
	}

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, newReq(http.MethodGet, usersMe))
	assertError(t, rec, authz.ErrInvalidSession)

	req := newReq(http.MethodPut, usersMe)
	req.AddCookie(cookie)
	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	assertError(t, rec, authz.ErrMissingCSRFToken)

	req = newReq(http.MethodGet, usersMe)
	req.AddCookie(cookie)
	req.RemoteAddr = "10.9.2.3:40000"
	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	assertError(t, rec, authz.ErrClientSessionMismatch)

	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, newReq(http.MethodGet, base+"/resource/blocked/x"))
	assertError(t, rec, authz.ErrPathBlocked)
}

func TestAuthorizeTrustedClientIPHeader(t *testing.T) {
	h := newHarness(t, func(c *authz.Config) { c.Network.TrustedClientIPHeader = "True-Client-IP" })
	login, cookie := h.signIn(t, "carol@example.com", "10.1.2.3")

	var got *authz.AuthResult
	handler := Authorize(h.engine)(captureHandler(&got))

	req := httptest.NewRequest(http.MethodPost, usersMe, nil)
	req.RemoteAddr = "192.168.0.10:443"
	req.Header.Set("True-Client-IP", "10.1.77.1, 172.16.0.1")
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set(HeaderCSRFToken, login.CSRFToken)
	req.AddCookie(cookie)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	// POST /users/me is not granted to members; reaching the permission check
	// proves the gateway address satisfied the session binding.
	assertError(t, rec, authz.ErrInvalidPermission)
}

func TestAuthorizeAPIKey(t *testing.T) {
	h := newHarness(t, nil)
	login, _ := h.signIn(t, "dave@example.com", "10.1.2.3")
	p := login.Principal
	key, err := h.engine.CreateAPIKey(clientContext("10.1.2.3"), p, "HS256", "")
	if err != nil {
		t.Fatalf("CreateAPIKey: %v", err)
	}

	var got *authz.AuthResult
	handler := Authorize(h.engine)(captureHandler(&got))
	signed := func() *http.Request {
		nonce := strconv.FormatInt(time.Now().UnixMilli(), 10)
		req := httptest.NewRequest(http.MethodGet, usersMe, nil)
		req.RemoteAddr = "203.0.113.9:1234"
		req.Header.Set(HeaderAPIKey, key.KID)
		req.Header.Set(HeaderNonce, nonce)
		req.Header.Set(HeaderSignature, apikey.Sign(key.Secret, http.MethodGet, usersMe, nonce))
		return req
	}

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, signed())
	assertError(t, rec, authz.ErrDisabled2FA)

	if err := h.store.SetOTP(context.Background(), p.ID, true); err != nil {
		t.Fatalf("SetOTP: %v", err)
	}
	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, signed())
	if rec.Code != http.StatusNoContent {
		t.Fatalf("expected 204, got %d: %s", rec.Code, rec.Body.String())
	}
	if got == nil || got.Method != authz.MethodAPIKey || got.KID != key.KID {
		t.Fatalf("unexpected auth result: %+v", got)
	}
}

func TestRequireRole(t *testing.T) {
	h := newHarness(t, nil)
	login, cookie := h.signIn(t, "erin@example.com", "10.1.2.3")

	// Mint a bearer through Authorize, as the gateway would.
	authReq := httptest.NewRequest(http.MethodGet, usersMe, nil)
	authReq.RemoteAddr = "10.1.2.3:1"
	authReq.Header.Set("User-Agent", userAgent)
	authReq.AddCookie(cookie)
	authRec := httptest.NewRecorder()
	Authorize(h.engine)(captureHandler(new(*authz.AuthResult))).ServeHTTP(authRec, authReq)
	bearer := authRec.Header().Get("Authorization")
	if bearer == "" {
		t.Fatalf("expected bearer from Authorize, got status %d", authRec.Code)
	}

	var got *authz.AuthResult
	admin := RequireRole(h.engine, authz.RoleAdmin, authz.RoleSuperAdmin)(captureHandler(&got))

	req := httptest.NewRequest(http.MethodGet, base+"/admin/permissions", nil)
	rec := httptest.NewRecorder()
	admin.ServeHTTP(rec, req)
	assertError(t, rec, authz.ErrInvalidSession)

	req.Header.Set("Authorization", bearer)
	rec = httptest.NewRecorder()
	admin.ServeHTTP(rec, req)
	assertError(t, rec, authz.ErrForbiddenRole)

	_ = h.store.Update(login.Principal.ID, func(p *authz.Principal) { p.Role = authz.RoleAdmin })
	rec = httptest.NewRecorder()
	admin.ServeHTTP(rec, req)
	if rec.Code != http.StatusNoContent || got == nil || got.Principal.Role != authz.RoleAdmin {
		t.Fatalf("expected admin admitted, got %d", rec.Code)
	}
}

func TestWriteErrorHidesInternalFailures(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	rec := httptest.NewRecorder()
	WriteError(rec, req, errors.New("dial tcp 10.0.0.5:5432: connection refused"))

	assertError(t, rec, authz.ErrInternal)
	if strings.Contains(rec.Body.String(), "5432") {
		t.Fatalf("internal detail leaked: %s", rec.Body.String())
	}
}

func TestSessionCookieRoundTrip(t *testing.T) {
	cfg := authz.DefaultConfig()
	res := &authz.LoginResult{
		Principal: &authz.Principal{UID: "ID00000000AB"},
		SessionID: "8f7c2b1e-3a7d-4a5b-9c1e-2f6e0d4b7a91",
		ExpiresAt: time.Now().Add(time.Hour),
	}
	rec := httptest.NewRecorder()
	SetSessionCookie(rec, cfg, res)

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	for _, c := range rec.Result().Cookies() {
		req.AddCookie(c)
	}
	uid, sid, ok := SessionFromCookie(req, cfg)
	if !ok || uid != res.Principal.UID || sid != res.SessionID {
		t.Fatalf("cookie round trip failed: %q %q %v", uid, sid, ok)
	}

	bad := httptest.NewRequest(http.MethodGet, "/", nil)
	bad.AddCookie(&http.Cookie{Name: cfg.Session.CookieName, Value: "no-separator"})
	if _, _, ok := SessionFromCookie(bad, cfg); ok {
		t.Fatalf("malformed cookie must be ignored")
	}
}
