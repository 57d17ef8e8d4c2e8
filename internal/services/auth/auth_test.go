package auth

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/ideaforge/ideaforge-go/internal/identity"
	cachemem "github.com/ideaforge/ideaforge-go/internal/platform/cache/memory"
	"github.com/ideaforge/ideaforge-go/internal/platform/config"
	"github.com/ideaforge/ideaforge-go/internal/platform/deps"
	authgate "github.com/ideaforge/ideaforge-go/internal/platform/http/auth"
	"github.com/ideaforge/ideaforge-go/internal/platform/http/realip"
)

// setupTestDeps creates minimal SharedDeps for testing.
func setupTestDeps(t *testing.T) *deps.Deps {
	t.Helper()
	deps.ResetDeps()
	d := &deps.Deps{
		PartyRepo:   identity.NewMemoryPartyRepo(),
		SessionRepo: identity.NewMemorySessionRepo(),
		UserAuth:    identity.NewUserAuthFast(),
		Cache:       cachemem.New(time.Minute, 0),
		RealIP:      realip.New(nil),
		Config:      config.DevConfig(),
	}
	deps.SetDeps(d)
	t.Cleanup(deps.ResetDeps)
	return d
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

// newGatedHandler wraps the service handler with the session auth gate, the
// way the server mounts it. Paths are service-relative here.
func newGatedHandler(t *testing.T, svc interface {
	Handler() http.Handler
	Unprotected() []string
}, d *deps.Deps) http.Handler {
	t.Helper()
	unprotected := make(map[string]bool)
	for _, p := range svc.Unprotected() {
		unprotected[p] = true
	}
	gate := authgate.NewAuthGate(authgate.AuthGateConfig{
		RequireAuth: func(path string) bool { return !unprotected[path] },
		Log:         quietLogger(),
		SessionRepo: d.SessionRepo,
		PartyRepo:   d.PartyRepo,
	})
	return gate(svc.Handler())
}

func postJSON(t *testing.T, h http.Handler, path, body, token string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	return w
}

func TestNew_FailsWithoutSharedDeps(t *testing.T) {
	deps.ResetDeps()
	defer deps.ResetDeps()

	if _, err := New(map[string]any{}, quietLogger()); err == nil {
		t.Error("expected error when SharedDeps not initialized")
	}
}

func TestService_PrefixAndUnprotected(t *testing.T) {
	setupTestDeps(t)

	svc, err := New(map[string]any{}, quietLogger())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if svc.Prefix() != "auth" {
		t.Errorf("expected prefix 'auth', got %q", svc.Prefix())
	}

	unprotected := map[string]bool{}
	for _, p := range svc.Unprotected() {
		unprotected[p] = true
	}
	if !unprotected["/login"] || !unprotected["/register"] {
		t.Errorf("expected /login and /register unprotected, got %v", svc.Unprotected())
	}
	if err := svc.Close(); err != nil {
		t.Errorf("unexpected error on Close: %v", err)
	}
}

func TestRegisterLoginFlow(t *testing.T) {
	d := setupTestDeps(t)

	svc, err := New(map[string]any{}, quietLogger())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	h := newGatedHandler(t, svc.(*Service), d)

	w := postJSON(t, h, "/register",
		`{"username":"alice","password":"correct horse","email":"alice@example.com"}`, "")
	if w.Code != http.StatusCreated {
		t.Fatalf("register: expected 201, got %d: %s", w.Code, w.Body.String())
	}
	var created identity.User
	if err := json.Unmarshal(w.Body.Bytes(), &created); err != nil {
		t.Fatalf("register: invalid JSON: %v", err)
	}
	if created.DisplayName != "alice" {
		t.Errorf("expected display name to default to username, got %q", created.DisplayName)
	}

	// Duplicate username conflicts
	w = postJSON(t, h, "/register",
		`{"username":"alice","password":"correct horse"}`, "")
	if w.Code != http.StatusConflict {
		t.Errorf("duplicate register: expected 409, got %d", w.Code)
	}

	// Login issues a session token and cookie
	w = postJSON(t, h, "/login", `{"username":"alice","password":"correct horse"}`, "")
	if w.Code != http.StatusOK {
		t.Fatalf("login: expected 200, got %d: %s", w.Code, w.Body.String())
	}
	var sess sessionResponse
	if err := json.Unmarshal(w.Body.Bytes(), &sess); err != nil {
		t.Fatalf("login: invalid JSON: %v", err)
	}
	if sess.Token == "" {
		t.Fatal("login: expected session token")
	}
	foundCookie := false
	for _, c := range w.Result().Cookies() {
		if c.Name == "session" && c.Value == sess.Token {
			foundCookie = true
			if !c.HttpOnly {
				t.Error("session cookie should be HttpOnly")
			}
		}
	}
	if !foundCookie {
		t.Error("expected session cookie matching response token")
	}

	// /me with the token
	req := httptest.NewRequest(http.MethodGet, "/me", nil)
	req.Header.Set("Authorization", "Bearer "+sess.Token)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("me: expected 200, got %d", rec.Code)
	}

	// Logout invalidates the session
	w = postJSON(t, h, "/logout", "", sess.Token)
	if w.Code != http.StatusNoContent {
		t.Fatalf("logout: expected 204, got %d", w.Code)
	}
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if rec.Code != http.StatusUnauthorized {
		t.Errorf("me after logout: expected 401, got %d", rec.Code)
	}
}

func TestRegister_Validation(t *testing.T) {
	d := setupTestDeps(t)

	svc, err := New(map[string]any{}, quietLogger())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	h := newGatedHandler(t, svc.(*Service), d)

	cases := []struct {
		name string
		body string
	}{
		{"missing username", `{"password":"long enough pw"}`},
		{"short password", `{"username":"bob","password":"short"}`},
		{"bad json", `{`},
	}
	for _, tc := range cases {
		w := postJSON(t, h, "/register", tc.body, "")
		if w.Code != http.StatusBadRequest {
			t.Errorf("%s: expected 400, got %d", tc.name, w.Code)
		}
	}
}

func TestLogin_InvalidCredentialsAreUniform(t *testing.T) {
	d := setupTestDeps(t)

	svc, err := New(map[string]any{}, quietLogger())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	h := newGatedHandler(t, svc.(*Service), d)

	w := postJSON(t, h, "/register", `{"username":"carol","password":"correct horse"}`, "")
	if w.Code != http.StatusCreated {
		t.Fatalf("register failed: %d", w.Code)
	}

	// Unknown user and wrong password produce the same status
	wrongPw := postJSON(t, h, "/login", `{"username":"carol","password":"wrong password"}`, "")
	unknown := postJSON(t, h, "/login", `{"username":"nobody","password":"wrong password"}`, "")
	if wrongPw.Code != http.StatusUnauthorized || unknown.Code != http.StatusUnauthorized {
		t.Errorf("expected 401 for both, got %d and %d", wrongPw.Code, unknown.Code)
	}
}

func TestLogin_Throttled(t *testing.T) {
	d := setupTestDeps(t)

	svc, err := New(map[string]any{"login_max_attempts": 3}, quietLogger())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	h := newGatedHandler(t, svc.(*Service), d)

	w := postJSON(t, h, "/register", `{"username":"dave","password":"correct horse"}`, "")
	if w.Code != http.StatusCreated {
		t.Fatalf("register failed: %d", w.Code)
	}

	for i := 0; i < 3; i++ {
		w = postJSON(t, h, "/login", `{"username":"dave","password":"wrong password"}`, "")
		if w.Code != http.StatusUnauthorized {
			t.Fatalf("attempt %d: expected 401, got %d", i+1, w.Code)
		}
	}

	// Even the right password is rejected inside the window
	w = postJSON(t, h, "/login", `{"username":"dave","password":"correct horse"}`, "")
	if w.Code != http.StatusTooManyRequests {
		t.Errorf("expected 429 after repeated failures, got %d", w.Code)
	}
}

func TestLogin_SuccessResetsThrottle(t *testing.T) {
	d := setupTestDeps(t)

	svc, err := New(map[string]any{"login_max_attempts": 3}, quietLogger())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	h := newGatedHandler(t, svc.(*Service), d)

	w := postJSON(t, h, "/register", `{"username":"erin","password":"correct horse"}`, "")
	if w.Code != http.StatusCreated {
		t.Fatalf("register failed: %d", w.Code)
	}

	for i := 0; i < 2; i++ {
		postJSON(t, h, "/login", `{"username":"erin","password":"wrong password"}`, "")
	}
	w = postJSON(t, h, "/login", `{"username":"erin","password":"correct horse"}`, "")
	if w.Code != http.StatusOK {
		t.Fatalf("expected successful login before limit, got %d", w.Code)
	}

	// Counter was reset, so two more failures stay under the limit
	for i := 0; i < 2; i++ {
		postJSON(t, h, "/login", `{"username":"erin","password":"wrong password"}`, "")
	}
	w = postJSON(t, h, "/login", `{"username":"erin","password":"correct horse"}`, "")
	if w.Code != http.StatusOK {
		t.Errorf("expected login to succeed after reset, got %d", w.Code)
	}
}

func TestNew_WarnsOnUnusedConfigKeys(t *testing.T) {
	setupTestDeps(t)

	var logBuf strings.Builder
	log := slog.New(slog.NewJSONHandler(&logBuf, &slog.HandlerOptions{Level: slog.LevelWarn}))

	if _, err := New(map[string]any{"unknown_key": "value"}, log); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.Contains(logBuf.String(), "unused config keys") {
		t.Error("expected warning about unused config keys")
	}
}
