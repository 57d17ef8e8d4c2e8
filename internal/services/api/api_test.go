package api

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/ideaforge/ideaforge-go/internal/contrib"
	"github.com/ideaforge/ideaforge-go/internal/feed"
	"github.com/ideaforge/ideaforge-go/internal/identity"
	"github.com/ideaforge/ideaforge-go/internal/matching"
	"github.com/ideaforge/ideaforge-go/internal/platform/config"
	"github.com/ideaforge/ideaforge-go/internal/platform/deps"
	authgate "github.com/ideaforge/ideaforge-go/internal/platform/http/auth"
	"github.com/ideaforge/ideaforge-go/internal/store"
	"github.com/ideaforge/ideaforge-go/internal/store/memory"
)

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

// setupTestDeps wires SharedDeps on top of the memory driver.
func setupTestDeps(t *testing.T) *deps.Deps {
	t.Helper()
	deps.ResetDeps()

	db, err := memory.NewDriver(&store.DriverConfig{Driver: "memory"})
	if err != nil {
		t.Fatalf("failed to create memory driver: %v", err)
	}
	if err := db.Init(context.Background()); err != nil {
		t.Fatalf("failed to init memory driver: %v", err)
	}

	emitter := feed.NewEmitter(db, quietLogger(), feed.EmitterConfig{})
	emitter.Start(context.Background())
	t.Cleanup(func() { _ = emitter.Close() })

	d := &deps.Deps{
		PartyRepo:   identity.NewMemoryPartyRepo(),
		SessionRepo: identity.NewMemorySessionRepo(),
		UserAuth:    identity.NewUserAuthFast(),
		Store:       db,
		Workflow:    contrib.NewEngine(db, emitter, quietLogger(), contrib.Config{}),
		Matcher:     matching.NewMatcher(db, nil, quietLogger(), matching.Config{}),
		Emitter:     emitter,
		Config:      config.DevConfig(),
	}
	deps.SetDeps(d)
	t.Cleanup(deps.ResetDeps)
	return d
}

// newGatedHandler wraps the service handler with the session auth gate, the
// way the server mounts it. Paths are service-relative here.
func newGatedHandler(t *testing.T, d *deps.Deps) http.Handler {
	t.Helper()
	svc, err := New(map[string]any{}, quietLogger())
	if err != nil {
		t.Fatalf("failed to create api service: %v", err)
	}
	gate := authgate.NewAuthGate(authgate.AuthGateConfig{
		RequireAuth: func(path string) bool { return path != "/healthz" },
		Log:         quietLogger(),
		SessionRepo: d.SessionRepo,
		PartyRepo:   d.PartyRepo,
	})
	return gate(svc.Handler())
}

// newUserToken creates a user and an active session, returning the bearer token.
func newUserToken(t *testing.T, d *deps.Deps, username string) (string, string) {
	t.Helper()
	user := &identity.User{
		ID:          identity.UUIDv7(),
		Username:    username,
		DisplayName: username,
		Role:        identity.RoleUser,
		CreatedAt:   time.Now(),
	}
	if err := d.PartyRepo.Create(context.Background(), user); err != nil {
		t.Fatalf("failed to create user: %v", err)
	}
	session, err := d.SessionRepo.Create(context.Background(), user.ID, time.Hour)
	if err != nil {
		t.Fatalf("failed to create session: %v", err)
	}
	return user.ID, session.Token
}

func doJSON(t *testing.T, h http.Handler, method, path, body, token string) *httptest.ResponseRecorder {
	t.Helper()
	var rd *strings.Reader
	if body == "" {
		rd = strings.NewReader("{}")
	} else {
		rd = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, rd)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	return w
}

func decodeBody(t *testing.T, w *httptest.ResponseRecorder, into any) {
	t.Helper()
	if err := json.Unmarshal(w.Body.Bytes(), into); err != nil {
		t.Fatalf("invalid JSON response %q: %v", w.Body.String(), err)
	}
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
	if svc.Prefix() != "api" {
		t.Errorf("expected prefix 'api', got %q", svc.Prefix())
	}
	if got := svc.Unprotected(); len(got) != 1 || got[0] != "/healthz" {
		t.Errorf("expected only /healthz unprotected, got %v", got)
	}
	if err := svc.Close(); err != nil {
		t.Errorf("unexpected error on Close: %v", err)
	}
}

func TestHealthzEndpoint(t *testing.T) {
	d := setupTestDeps(t)
	h := newGatedHandler(t, d)

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	var resp map[string]any
	decodeBody(t, w, &resp)
	if resp["status"] != "ok" {
		t.Errorf("expected status 'ok', got %v", resp["status"])
	}
}

func TestProtectedEndpointsRequireSession(t *testing.T) {
	d := setupTestDeps(t)
	h := newGatedHandler(t, d)

	paths := []struct {
		method string
		path   string
	}{
		{http.MethodGet, "/profile"},
		{http.MethodGet, "/ideas"},
		{http.MethodGet, "/contributions"},
		{http.MethodGet, "/matching/ideas"},
		{http.MethodGet, "/notifications"},
	}
	for _, p := range paths {
		w := doJSON(t, h, p.method, p.path, "", "")
		if w.Code != http.StatusUnauthorized {
			t.Errorf("%s %s: expected 401, got %d", p.method, p.path, w.Code)
		}
	}
}

func TestProfileRoundTrip(t *testing.T) {
	d := setupTestDeps(t)
	h := newGatedHandler(t, d)
	_, token := newUserToken(t, d, "alice")

	w := doJSON(t, h, http.MethodGet, "/profile", "", token)
	if w.Code != http.StatusNotFound {
		t.Fatalf("expected 404 before upsert, got %d", w.Code)
	}

	w = doJSON(t, h, http.MethodPut, "/profile",
		`{"headline":"backend dev","skills":[{"skill":"Go","level":"expert"},{"skill":"sql"}]}`, token)
	if w.Code != http.StatusOK {
		t.Fatalf("upsert: expected 200, got %d: %s", w.Code, w.Body.String())
	}

	w = doJSON(t, h, http.MethodGet, "/profile", "", token)
	if w.Code != http.StatusOK {
		t.Fatalf("get: expected 200, got %d", w.Code)
	}
	var profile store.Profile
	decodeBody(t, w, &profile)
	if len(profile.Skills) != 2 {
		t.Fatalf("expected 2 skills, got %d", len(profile.Skills))
	}
	// Skill names are normalized, missing level defaults to beginner
	byName := map[string]string{}
	for _, s := range profile.Skills {
		byName[s.Skill] = s.Level
	}
	if byName["go"] != store.LevelExpert {
		t.Errorf("expected go=expert, got %q", byName["go"])
	}
	if byName["sql"] != store.LevelBeginner {
		t.Errorf("expected sql to default to beginner, got %q", byName["sql"])
	}
}

func TestProfileValidation(t *testing.T) {
	d := setupTestDeps(t)
	h := newGatedHandler(t, d)
	_, token := newUserToken(t, d, "alice")

	cases := []struct {
		name string
		body string
	}{
		{"empty skill name", `{"skills":[{"skill":"  "}]}`},
		{"unknown level", `{"skills":[{"skill":"go","level":"wizard"}]}`},
		{"bad json", `{`},
	}
	for _, tc := range cases {
		w := doJSON(t, h, http.MethodPut, "/profile", tc.body, token)
		if w.Code != http.StatusBadRequest {
			t.Errorf("%s: expected 400, got %d", tc.name, w.Code)
		}
	}
}

func TestIdeaLifecycle(t *testing.T) {
	d := setupTestDeps(t)
	h := newGatedHandler(t, d)
	_, owner := newUserToken(t, d, "owner")
	_, other := newUserToken(t, d, "other")

	// Missing title
	w := doJSON(t, h, http.MethodPost, "/ideas", `{"summary":"no title"}`, owner)
	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for missing title, got %d", w.Code)
	}

	// Create a draft
	w = doJSON(t, h, http.MethodPost, "/ideas",
		`{"title":"Flashcards","summary":"spaced repetition","required_skills":["Go","go","  sql "]}`, owner)
	if w.Code != http.StatusCreated {
		t.Fatalf("create: expected 201, got %d: %s", w.Code, w.Body.String())
	}
	var idea store.Idea
	decodeBody(t, w, &idea)
	if len(idea.RequiredSkills) != 2 {
		t.Errorf("expected skills deduplicated and normalized, got %v", idea.RequiredSkills)
	}
	if idea.Published {
		t.Error("new idea should be a draft by default")
	}

	// Drafts are hidden from non-authors
	w = doJSON(t, h, http.MethodGet, "/ideas/"+idea.ID, "", other)
	if w.Code != http.StatusNotFound {
		t.Errorf("draft visible to stranger: expected 404, got %d", w.Code)
	}
	w = doJSON(t, h, http.MethodGet, "/ideas/"+idea.ID, "", owner)
	if w.Code != http.StatusOK {
		t.Errorf("draft hidden from author: expected 200, got %d", w.Code)
	}

	// Only the author can publish
	w = doJSON(t, h, http.MethodPost, "/ideas/"+idea.ID+"/publish", "", other)
	if w.Code != http.StatusForbidden {
		t.Errorf("foreign publish: expected 403, got %d", w.Code)
	}
	w = doJSON(t, h, http.MethodPost, "/ideas/"+idea.ID+"/publish", "", owner)
	if w.Code != http.StatusOK {
		t.Fatalf("publish: expected 200, got %d", w.Code)
	}

	// Publish is idempotent
	w = doJSON(t, h, http.MethodPost, "/ideas/"+idea.ID+"/publish", "", owner)
	if w.Code != http.StatusOK {
		t.Errorf("second publish: expected 200, got %d", w.Code)
	}

	// Now visible to everyone
	w = doJSON(t, h, http.MethodGet, "/ideas/"+idea.ID, "", other)
	if w.Code != http.StatusOK {
		t.Errorf("published idea: expected 200, got %d", w.Code)
	}

	w = doJSON(t, h, http.MethodGet, "/ideas", "", other)
	if w.Code != http.StatusOK {
		t.Fatalf("list: expected 200, got %d", w.Code)
	}
	var listing struct {
		Ideas []*store.Idea `json:"ideas"`
	}
	decodeBody(t, w, &listing)
	if len(listing.Ideas) != 1 {
		t.Errorf("expected 1 public idea, got %d", len(listing.Ideas))
	}
}

// publishIdea creates and publishes an idea, returning its ID.
func publishIdea(t *testing.T, h http.Handler, token, title string, skills []string) string {
	t.Helper()
	body := fmt.Sprintf(`{"title":%q,"required_skills":["%s"],"published":true}`,
		title, strings.Join(skills, `","`))
	w := doJSON(t, h, http.MethodPost, "/ideas", body, token)
	if w.Code != http.StatusCreated {
		t.Fatalf("failed to create idea: %d: %s", w.Code, w.Body.String())
	}
	var idea store.Idea
	decodeBody(t, w, &idea)
	return idea.ID
}

func TestContributionRequestFlow(t *testing.T) {
	d := setupTestDeps(t)
	h := newGatedHandler(t, d)
	_, owner := newUserToken(t, d, "owner")
	_, candidate := newUserToken(t, d, "candidate")

	ideaID := publishIdea(t, h, owner, "Flashcards", []string{"go"})

	// File a request
	w := doJSON(t, h, http.MethodPost, "/ideas/"+ideaID+"/requests",
		`{"message":"let me help","skills":["go"]}`, candidate)
	if w.Code != http.StatusCreated {
		t.Fatalf("request: expected 201, got %d: %s", w.Code, w.Body.String())
	}
	var req store.ContributionRequest
	decodeBody(t, w, &req)
	if req.Status != store.RequestStatusPending {
		t.Errorf("expected pending, got %q", req.Status)
	}

	// Second pending request conflicts
	w = doJSON(t, h, http.MethodPost, "/ideas/"+ideaID+"/requests",
		`{"message":"again"}`, candidate)
	if w.Code != http.StatusConflict {
		t.Errorf("duplicate request: expected 409, got %d", w.Code)
	}

	// Candidate-initiated requests are not respondable, by anyone
	w = doJSON(t, h, http.MethodPost, "/requests/"+req.ID+"/respond",
		`{"decision":"accepted"}`, owner)
	if w.Code != http.StatusForbidden {
		t.Errorf("owner respond to candidate request: expected 403, got %d", w.Code)
	}
	w = doJSON(t, h, http.MethodPost, "/requests/"+req.ID+"/respond",
		`{"decision":"accepted"}`, candidate)
	if w.Code != http.StatusForbidden {
		t.Errorf("candidate respond to own request: expected 403, got %d", w.Code)
	}

	// Pending request alone does not make a contributor
	w = doJSON(t, h, http.MethodGet, "/ideas/"+ideaID+"/membership", "", candidate)
	if w.Code != http.StatusOK {
		t.Fatalf("membership: expected 200, got %d", w.Code)
	}
	var membership struct {
		IsContributor bool `json:"is_contributor"`
	}
	decodeBody(t, w, &membership)
	if membership.IsContributor {
		t.Error("pending request should not grant contributor status")
	}
}

func TestInviteAcceptGrantsMembership(t *testing.T) {
	d := setupTestDeps(t)
	h := newGatedHandler(t, d)
	_, owner := newUserToken(t, d, "owner")
	candidateID, candidate := newUserToken(t, d, "candidate")

	ideaID := publishIdea(t, h, owner, "Flashcards", []string{"go"})

	body := fmt.Sprintf(`{"candidate_id":%q,"message":"join us","required_skills":["go"]}`, candidateID)
	w := doJSON(t, h, http.MethodPost, "/ideas/"+ideaID+"/invites", body, owner)
	if w.Code != http.StatusCreated {
		t.Fatalf("invite: expected 201, got %d: %s", w.Code, w.Body.String())
	}
	var invite store.ContributionRequest
	decodeBody(t, w, &invite)

	w = doJSON(t, h, http.MethodPost, "/requests/"+invite.ID+"/respond",
		`{"decision":"accepted"}`, candidate)
	if w.Code != http.StatusOK {
		t.Fatalf("respond: expected 200, got %d: %s", w.Code, w.Body.String())
	}
	var resolved store.ContributionRequest
	decodeBody(t, w, &resolved)
	if resolved.Status != store.RequestStatusAccepted {
		t.Errorf("expected accepted, got %q", resolved.Status)
	}
	if resolved.RespondedAt == 0 {
		t.Error("expected responded_at to be set")
	}

	// Responding twice conflicts
	w = doJSON(t, h, http.MethodPost, "/requests/"+invite.ID+"/respond",
		`{"decision":"rejected"}`, candidate)
	if w.Code != http.StatusConflict {
		t.Errorf("second respond: expected 409, got %d", w.Code)
	}

	// Membership reflects the accepted request
	w = doJSON(t, h, http.MethodGet, "/ideas/"+ideaID+"/membership", "", candidate)
	if w.Code != http.StatusOK {
		t.Fatalf("membership: expected 200, got %d", w.Code)
	}
	var membership struct {
		IsContributor bool `json:"is_contributor"`
	}
	decodeBody(t, w, &membership)
	if !membership.IsContributor {
		t.Error("expected candidate to be a contributor after acceptance")
	}
}

func TestWithdrawRequestFlow(t *testing.T) {
	d := setupTestDeps(t)
	h := newGatedHandler(t, d)
	_, owner := newUserToken(t, d, "owner")
	_, candidate := newUserToken(t, d, "candidate")

	ideaID := publishIdea(t, h, owner, "Flashcards", []string{"go"})

	w := doJSON(t, h, http.MethodPost, "/ideas/"+ideaID+"/requests",
		`{"message":"let me help"}`, candidate)
	if w.Code != http.StatusCreated {
		t.Fatalf("request: expected 201, got %d", w.Code)
	}

	w = doJSON(t, h, http.MethodDelete, "/ideas/"+ideaID+"/requests/mine", "", candidate)
	if w.Code != http.StatusNoContent {
		t.Fatalf("withdraw: expected 204, got %d: %s", w.Code, w.Body.String())
	}

	// Nothing left to withdraw
	w = doJSON(t, h, http.MethodDelete, "/ideas/"+ideaID+"/requests/mine", "", candidate)
	if w.Code != http.StatusNotFound {
		t.Errorf("second withdraw: expected 404, got %d", w.Code)
	}

	// A fresh request is allowed after withdrawal
	w = doJSON(t, h, http.MethodPost, "/ideas/"+ideaID+"/requests",
		`{"message":"changed my mind"}`, candidate)
	if w.Code != http.StatusCreated {
		t.Errorf("re-request: expected 201, got %d", w.Code)
	}
}

func TestInviteFlow(t *testing.T) {
	d := setupTestDeps(t)
	h := newGatedHandler(t, d)
	_, owner := newUserToken(t, d, "owner")
	candidateID, candidate := newUserToken(t, d, "candidate")
	_, stranger := newUserToken(t, d, "stranger")

	ideaID := publishIdea(t, h, owner, "Flashcards", []string{"go"})

	// Only the owner can invite
	body := fmt.Sprintf(`{"candidate_id":%q,"message":"join us","required_skills":["go"]}`, candidateID)
	w := doJSON(t, h, http.MethodPost, "/ideas/"+ideaID+"/invites", body, stranger)
	if w.Code != http.StatusForbidden {
		t.Errorf("foreign invite: expected 403, got %d", w.Code)
	}

	w = doJSON(t, h, http.MethodPost, "/ideas/"+ideaID+"/invites", body, owner)
	if w.Code != http.StatusCreated {
		t.Fatalf("invite: expected 201, got %d: %s", w.Code, w.Body.String())
	}
	var invite store.ContributionRequest
	decodeBody(t, w, &invite)

	// Only the invited candidate may respond
	w = doJSON(t, h, http.MethodPost, "/requests/"+invite.ID+"/respond",
		`{"decision":"accepted"}`, stranger)
	if w.Code != http.StatusForbidden {
		t.Errorf("foreign respond: expected 403, got %d", w.Code)
	}

	// Invalid decision
	w = doJSON(t, h, http.MethodPost, "/requests/"+invite.ID+"/respond",
		`{"decision":"maybe"}`, candidate)
	if w.Code != http.StatusBadRequest {
		t.Errorf("invalid decision: expected 400, got %d", w.Code)
	}

	// Owner cancels the invite
	w = doJSON(t, h, http.MethodDelete, "/requests/"+invite.ID, "", owner)
	if w.Code != http.StatusNoContent {
		t.Fatalf("cancel: expected 204, got %d", w.Code)
	}

	// Responding to a cancelled invite 404s
	w = doJSON(t, h, http.MethodPost, "/requests/"+invite.ID+"/respond",
		`{"decision":"accepted"}`, candidate)
	if w.Code != http.StatusNotFound {
		t.Errorf("respond after cancel: expected 404, got %d", w.Code)
	}
}

func TestListContributionsGroups(t *testing.T) {
	d := setupTestDeps(t)
	h := newGatedHandler(t, d)
	_, owner := newUserToken(t, d, "owner")
	_, candidate := newUserToken(t, d, "candidate")

	ideaID := publishIdea(t, h, owner, "Flashcards", []string{"go"})

	w := doJSON(t, h, http.MethodPost, "/ideas/"+ideaID+"/requests",
		`{"message":"let me help"}`, candidate)
	if w.Code != http.StatusCreated {
		t.Fatalf("request: expected 201, got %d", w.Code)
	}

	w = doJSON(t, h, http.MethodGet, "/contributions", "", candidate)
	if w.Code != http.StatusOK {
		t.Fatalf("contributions: expected 200, got %d", w.Code)
	}
	var groups map[string]json.RawMessage
	decodeBody(t, w, &groups)

	// The withdrawn bucket is present even when empty
	for _, key := range []string{"pending", "accepted", "rejected", "withdrawn"} {
		if _, ok := groups[key]; !ok {
			t.Errorf("expected %q bucket in contribution groups", key)
		}
	}
}

func TestRankCandidatesOwnerOnly(t *testing.T) {
	d := setupTestDeps(t)
	h := newGatedHandler(t, d)
	_, owner := newUserToken(t, d, "owner")
	_, other := newUserToken(t, d, "other")

	ideaID := publishIdea(t, h, owner, "Flashcards", []string{"go"})

	w := doJSON(t, h, http.MethodGet, "/ideas/"+ideaID+"/candidates", "", other)
	if w.Code != http.StatusForbidden {
		t.Errorf("foreign ranking: expected 403, got %d", w.Code)
	}

	w = doJSON(t, h, http.MethodGet, "/ideas/"+ideaID+"/candidates", "", owner)
	if w.Code != http.StatusOK {
		t.Fatalf("ranking: expected 200, got %d: %s", w.Code, w.Body.String())
	}
	var resp struct {
		Candidates []json.RawMessage `json:"candidates"`
	}
	decodeBody(t, w, &resp)
}

func TestRankIdeasForUser(t *testing.T) {
	d := setupTestDeps(t)
	h := newGatedHandler(t, d)
	_, owner := newUserToken(t, d, "owner")
	_, seeker := newUserToken(t, d, "seeker")

	publishIdea(t, h, owner, "Flashcards", []string{"go", "sql"})

	w := doJSON(t, h, http.MethodPut, "/profile",
		`{"skills":[{"skill":"go","level":"expert"}]}`, seeker)
	if w.Code != http.StatusOK {
		t.Fatalf("profile: expected 200, got %d", w.Code)
	}

	w = doJSON(t, h, http.MethodGet, "/matching/ideas?limit=5", "", seeker)
	if w.Code != http.StatusOK {
		t.Fatalf("matching: expected 200, got %d: %s", w.Code, w.Body.String())
	}
	var resp struct {
		Ideas []*matching.IdeaMatch `json:"ideas"`
	}
	decodeBody(t, w, &resp)
	if len(resp.Ideas) != 1 {
		t.Fatalf("expected 1 matched idea, got %d", len(resp.Ideas))
	}
	if resp.Ideas[0].Title != "Flashcards" {
		t.Errorf("unexpected match: %+v", resp.Ideas[0])
	}
}

func TestNotificationsFlow(t *testing.T) {
	d := setupTestDeps(t)
	h := newGatedHandler(t, d)
	_, owner := newUserToken(t, d, "owner")
	candidateID, candidate := newUserToken(t, d, "candidate")

	ideaID := publishIdea(t, h, owner, "Flashcards", []string{"go"})

	body := fmt.Sprintf(`{"candidate_id":%q,"message":"join us","required_skills":["go"]}`, candidateID)
	w := doJSON(t, h, http.MethodPost, "/ideas/"+ideaID+"/invites", body, owner)
	if w.Code != http.StatusCreated {
		t.Fatalf("invite: expected 201, got %d", w.Code)
	}

	// Drain the outbox so the notification is visible
	if err := d.Emitter.Close(); err != nil {
		t.Fatalf("emitter close failed: %v", err)
	}

	w = doJSON(t, h, http.MethodGet, "/notifications", "", candidate)
	if w.Code != http.StatusOK {
		t.Fatalf("notifications: expected 200, got %d", w.Code)
	}
	var resp struct {
		Notifications []*store.Notification `json:"notifications"`
	}
	decodeBody(t, w, &resp)
	if len(resp.Notifications) != 1 {
		t.Fatalf("expected 1 notification, got %d", len(resp.Notifications))
	}
	notif := resp.Notifications[0]
	if notif.ReadAt != 0 {
		t.Error("expected notification to start unread")
	}

	// A foreign user cannot mark it read
	w = doJSON(t, h, http.MethodPost, "/notifications/"+notif.ID+"/read", "", owner)
	if w.Code != http.StatusNotFound {
		t.Errorf("foreign read: expected 404, got %d", w.Code)
	}

	w = doJSON(t, h, http.MethodPost, "/notifications/"+notif.ID+"/read", "", candidate)
	if w.Code != http.StatusNoContent {
		t.Fatalf("mark read: expected 204, got %d", w.Code)
	}

	w = doJSON(t, h, http.MethodGet, "/notifications", "", candidate)
	decodeBody(t, w, &resp)
	if len(resp.Notifications) != 1 || resp.Notifications[0].ReadAt == 0 {
		t.Error("expected notification to be marked read")
	}
}

func TestActivitiesTimeline(t *testing.T) {
	d := setupTestDeps(t)
	h := newGatedHandler(t, d)
	_, owner := newUserToken(t, d, "owner")
	_, candidate := newUserToken(t, d, "candidate")

	ideaID := publishIdea(t, h, owner, "Flashcards", []string{"go"})

	w := doJSON(t, h, http.MethodPost, "/ideas/"+ideaID+"/requests",
		`{"message":"let me help"}`, candidate)
	if w.Code != http.StatusCreated {
		t.Fatalf("request: expected 201, got %d", w.Code)
	}
	w = doJSON(t, h, http.MethodDelete, "/ideas/"+ideaID+"/requests/mine", "", candidate)
	if w.Code != http.StatusNoContent {
		t.Fatalf("withdraw: expected 204, got %d", w.Code)
	}

	if err := d.Emitter.Close(); err != nil {
		t.Fatalf("emitter close failed: %v", err)
	}

	w = doJSON(t, h, http.MethodGet, "/activities", "", candidate)
	if w.Code != http.StatusOK {
		t.Fatalf("activities: expected 200, got %d", w.Code)
	}
	var resp struct {
		Activities []*store.Activity `json:"activities"`
	}
	decodeBody(t, w, &resp)
	if len(resp.Activities) < 2 {
		t.Fatalf("expected request and withdrawal activities, got %d", len(resp.Activities))
	}
}

func TestMessageTooLong(t *testing.T) {
	d := setupTestDeps(t)
	h := newGatedHandler(t, d)
	_, owner := newUserToken(t, d, "owner")
	_, candidate := newUserToken(t, d, "candidate")

	ideaID := publishIdea(t, h, owner, "Flashcards", []string{"go"})

	long := strings.Repeat("x", 50)
	svcConf := map[string]any{"max_message_length": 10}
	svc, err := New(svcConf, quietLogger())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	gate := authgate.NewAuthGate(authgate.AuthGateConfig{
		RequireAuth: func(path string) bool { return path != "/healthz" },
		Log:         quietLogger(),
		SessionRepo: d.SessionRepo,
		PartyRepo:   d.PartyRepo,
	})
	h = gate(svc.Handler())

	w := doJSON(t, h, http.MethodPost, "/ideas/"+ideaID+"/requests",
		fmt.Sprintf(`{"message":%q}`, long), candidate)
	if w.Code != http.StatusBadRequest {
		t.Errorf("expected 400 for oversized message, got %d", w.Code)
	}
}

func TestMessageBlank(t *testing.T) {
	d := setupTestDeps(t)
	h := newGatedHandler(t, d)
	_, owner := newUserToken(t, d, "owner")
	candidateID, candidate := newUserToken(t, d, "candidate")

	ideaID := publishIdea(t, h, owner, "Flashcards", []string{"go"})

	for _, body := range []string{`{}`, `{"message":"   "}`} {
		w := doJSON(t, h, http.MethodPost, "/ideas/"+ideaID+"/requests", body, candidate)
		if w.Code != http.StatusBadRequest {
			t.Errorf("request body %s: expected 400, got %d", body, w.Code)
		}
	}

	invite := fmt.Sprintf(`{"candidate_id":%q,"message":" ","required_skills":["go"]}`, candidateID)
	w := doJSON(t, h, http.MethodPost, "/ideas/"+ideaID+"/invites", invite, owner)
	if w.Code != http.StatusBadRequest {
		t.Errorf("blank invite message: expected 400, got %d", w.Code)
	}
}
