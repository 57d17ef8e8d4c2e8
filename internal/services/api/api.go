// Package api provides the /api/* endpoints: profiles, ideas, the
// contribution request lifecycle, matching, and the personal feed.
package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/ideaforge/ideaforge-go/internal/components/api"
	"github.com/ideaforge/ideaforge-go/internal/contrib"
	"github.com/ideaforge/ideaforge-go/internal/frameworks/service"
	svccfg "github.com/ideaforge/ideaforge-go/internal/frameworks/service/cfg"
	"github.com/ideaforge/ideaforge-go/internal/identity"
	"github.com/ideaforge/ideaforge-go/internal/platform/appctx"
	"github.com/ideaforge/ideaforge-go/internal/platform/deps"
	authgate "github.com/ideaforge/ideaforge-go/internal/platform/http/auth"
	"github.com/ideaforge/ideaforge-go/internal/store"
)

func init() {
	service.MustRegister("api", New)
}

// Config holds api service configuration.
type Config struct {
	// DefaultMatchLimit caps matching results when the request does not
	// carry a limit parameter.
	DefaultMatchLimit int `mapstructure:"default_match_limit"`

	// MaxMessageLength bounds request/invitation messages.
	MaxMessageLength int `mapstructure:"max_message_length"`
}

// ApplyDefaults implements cfg.Setter.
func (c *Config) ApplyDefaults() {
	if c.DefaultMatchLimit == 0 {
		c.DefaultMatchLimit = 20
	}
	if c.MaxMessageLength == 0 {
		c.MaxMessageLength = 2000
	}
}

// Service is the API service.
type Service struct {
	router chi.Router
	conf   *Config
	log    *slog.Logger
	d      *deps.Deps
	policy contrib.Policy
}

// New creates a new API service.
func New(m map[string]any, log *slog.Logger) (service.Service, error) {
	var c Config
	unused, err := svccfg.DecodeWithUnused(m, &c)
	if err != nil {
		return nil, err
	}
	if len(unused) > 0 {
		log.Warn("unused config keys", "service", "api", "unused_keys", unused)
	}

	d := deps.GetDeps()
	if d == nil {
		return nil, errors.New("shared deps not initialized")
	}

	s := &Service{conf: &c, log: log, d: d}

	r := chi.NewRouter()

	// Health endpoint (public)
	r.Get("/healthz", handleHealth)

	// Profile (session-gated)
	r.Put("/profile", s.handleUpsertProfile)
	r.Get("/profile", s.handleGetProfile)

	// Ideas and the request lifecycle (session-gated)
	r.Route("/ideas", func(r chi.Router) {
		r.Post("/", s.handleCreateIdea)
		r.Get("/", s.handleListIdeas)
		r.Route("/{ideaID}", func(r chi.Router) {
			r.Get("/", s.handleGetIdea)
			r.Post("/publish", s.handlePublishIdea)
			r.Post("/requests", s.handleRequestContribution)
			r.Get("/requests", s.handleListIdeaRequests)
			r.Delete("/requests/mine", s.handleWithdrawRequest)
			r.Post("/invites", s.handleInviteContribution)
			r.Get("/membership", s.handleMembership)
			r.Get("/candidates", s.handleRankCandidates)
		})
	})

	r.Route("/requests", func(r chi.Router) {
		r.Post("/{requestID}/respond", s.handleRespond)
		r.Delete("/{requestID}", s.handleCancelInvite)
	})

	r.Get("/contributions", s.handleListContributions)
	r.Get("/matching/ideas", s.handleRankIdeas)

	// Personal feed (session-gated)
	r.Get("/notifications", s.handleListNotifications)
	r.Post("/notifications/{notificationID}/read", s.handleMarkNotificationRead)
	r.Get("/activities", s.handleListActivities)

	s.router = r
	return s, nil
}

// Handler returns the service's HTTP handler.
func (s *Service) Handler() http.Handler {
	return s.router
}

// Prefix returns the URL prefix for this service.
func (s *Service) Prefix() string {
	return "api"
}

// Unprotected returns paths that don't require session authentication.
func (s *Service) Unprotected() []string {
	return []string{"/healthz"}
}

// Close releases any resources held by the service.
func (s *Service) Close() error {
	return nil
}

func handleHealth(w http.ResponseWriter, r *http.Request) {
	api.WriteJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// currentUser returns the authenticated user or writes a 401 and returns nil.
func (s *Service) currentUser(w http.ResponseWriter, r *http.Request) *identity.User {
	user := authgate.GetUserFromContext(r.Context())
	if user == nil {
		api.WriteUnauthorized(w, api.ReasonUnauthenticated, "authentication required")
		return nil
	}
	return user
}

// writeDomainError maps workflow sentinel errors onto the error envelope.
func (s *Service) writeDomainError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, contrib.ErrNotFound):
		api.WriteNotFound(w, "not found")
	case errors.Is(err, contrib.ErrForbidden):
		api.WriteForbidden(w, "you do not have access to this resource")
	case errors.Is(err, contrib.ErrValidation):
		api.WriteBadRequest(w, api.ReasonInvalidField, err.Error())
	case errors.Is(err, contrib.ErrDuplicateRequest):
		api.WriteConflict(w, api.ReasonDuplicateRequest, "a pending request already exists for this idea")
	case errors.Is(err, contrib.ErrConflict):
		api.WriteConflict(w, api.ReasonConflict, "the request has already been resolved")
	default:
		appctx.GetLogger(r.Context()).Error("unhandled error", "error", err)
		api.WriteInternalError(w, "internal error")
	}
}

// --- Profile ---

type profileRequest struct {
	DisplayName string              `json:"display_name"`
	Headline    string              `json:"headline"`
	Skills      []profileSkillInput `json:"skills"`
}

type profileSkillInput struct {
	Skill string `json:"skill"`
	Level string `json:"level"`
}

func validSkillLevel(level string) bool {
	switch level {
	case store.LevelBeginner, store.LevelIntermediate, store.LevelAdvanced, store.LevelExpert:
		return true
	}
	return false
}

func (s *Service) handleUpsertProfile(w http.ResponseWriter, r *http.Request) {
	user := s.currentUser(w, r)
	if user == nil {
		return
	}

	var req profileRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		api.WriteBadRequest(w, api.ReasonBadRequest, "invalid JSON body")
		return
	}

	profile := &store.Profile{
		UserID:      user.ID,
		DisplayName: strings.TrimSpace(req.DisplayName),
		Headline:    strings.TrimSpace(req.Headline),
	}
	if profile.DisplayName == "" {
		profile.DisplayName = user.DisplayName
	}

	seen := make(map[string]bool, len(req.Skills))
	for _, in := range req.Skills {
		name := strings.ToLower(strings.TrimSpace(in.Skill))
		if name == "" {
			api.WriteBadRequest(w, api.ReasonInvalidField, "skill name must not be empty")
			return
		}
		if seen[name] {
			continue
		}
		seen[name] = true
		level := strings.ToLower(strings.TrimSpace(in.Level))
		if level == "" {
			level = store.LevelBeginner
		}
		if !validSkillLevel(level) {
			api.WriteBadRequest(w, api.ReasonInvalidField,
				"skill level must be one of beginner, intermediate, advanced, expert")
			return
		}
		profile.Skills = append(profile.Skills, store.ProfileSkill{
			UserID: user.ID,
			Skill:  name,
			Level:  level,
		})
	}

	if err := s.d.Store.UpsertProfile(r.Context(), profile); err != nil {
		s.writeDomainError(w, r, err)
		return
	}

	// Skill edits should show up in rankings right away.
	if s.d.Matcher != nil {
		s.d.Matcher.InvalidateIdeasForUser(r.Context(), user.ID)
	}

	api.WriteJSON(w, http.StatusOK, profile)
}

func (s *Service) handleGetProfile(w http.ResponseWriter, r *http.Request) {
	user := s.currentUser(w, r)
	if user == nil {
		return
	}

	profile, err := s.d.Store.GetProfile(r.Context(), user.ID)
	if errors.Is(err, store.ErrNotFound) {
		api.WriteNotFound(w, "no profile yet")
		return
	}
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	api.WriteJSON(w, http.StatusOK, profile)
}

// --- Ideas ---

type ideaRequest struct {
	Title          string   `json:"title"`
	Summary        string   `json:"summary"`
	RequiredSkills []string `json:"required_skills"`
	Visibility     string   `json:"visibility"`
	Published      *bool    `json:"published"`
}

func (s *Service) handleCreateIdea(w http.ResponseWriter, r *http.Request) {
	user := s.currentUser(w, r)
	if user == nil {
		return
	}

	var req ideaRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		api.WriteBadRequest(w, api.ReasonBadRequest, "invalid JSON body")
		return
	}

	req.Title = strings.TrimSpace(req.Title)
	if req.Title == "" {
		api.WriteBadRequest(w, api.ReasonMissingField, "title is required")
		return
	}
	visibility := req.Visibility
	if visibility == "" {
		visibility = store.VisibilityPublic
	}
	if visibility != store.VisibilityPublic && visibility != store.VisibilityPrivate {
		api.WriteBadRequest(w, api.ReasonInvalidField, "visibility must be public or private")
		return
	}

	idea := &store.Idea{
		AuthorID:       user.ID,
		Title:          req.Title,
		Summary:        strings.TrimSpace(req.Summary),
		RequiredSkills: normalizeSkills(req.RequiredSkills),
		Visibility:     visibility,
		Published:      req.Published != nil && *req.Published,
	}
	if err := s.d.Store.CreateIdea(r.Context(), idea); err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	api.WriteJSON(w, http.StatusCreated, idea)
}

func normalizeSkills(in []string) []string {
	out := make([]string, 0, len(in))
	seen := make(map[string]bool, len(in))
	for _, s := range in {
		name := strings.ToLower(strings.TrimSpace(s))
		if name == "" || seen[name] {
			continue
		}
		seen[name] = true
		out = append(out, name)
	}
	return out
}

func (s *Service) handleListIdeas(w http.ResponseWriter, r *http.Request) {
	if s.currentUser(w, r) == nil {
		return
	}
	ideas, err := s.d.Store.ListPublicIdeas(r.Context())
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	api.WriteJSON(w, http.StatusOK, map[string]any{"ideas": ideas})
}

// loadVisibleIdea fetches an idea and applies the visibility policy:
// hidden ideas are indistinguishable from missing ones for non-authors.
func (s *Service) loadVisibleIdea(w http.ResponseWriter, r *http.Request, actorID string) *store.Idea {
	ideaID := chi.URLParam(r, "ideaID")
	idea, err := s.d.Store.GetIdea(r.Context(), ideaID)
	if errors.Is(err, store.ErrNotFound) {
		api.WriteNotFound(w, "idea not found")
		return nil
	}
	if err != nil {
		s.writeDomainError(w, r, err)
		return nil
	}
	if err := s.policy.CanViewIdea(idea, actorID); err != nil {
		api.WriteNotFound(w, "idea not found")
		return nil
	}
	return idea
}

func (s *Service) handleGetIdea(w http.ResponseWriter, r *http.Request) {
	user := s.currentUser(w, r)
	if user == nil {
		return
	}
	idea := s.loadVisibleIdea(w, r, user.ID)
	if idea == nil {
		return
	}
	api.WriteJSON(w, http.StatusOK, idea)
}

func (s *Service) handlePublishIdea(w http.ResponseWriter, r *http.Request) {
	user := s.currentUser(w, r)
	if user == nil {
		return
	}

	ideaID := chi.URLParam(r, "ideaID")
	idea, err := s.d.Store.GetIdea(r.Context(), ideaID)
	if errors.Is(err, store.ErrNotFound) {
		api.WriteNotFound(w, "idea not found")
		return
	}
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	if idea.AuthorID != user.ID {
		api.WriteForbidden(w, "only the author can publish an idea")
		return
	}

	if !idea.Published {
		idea.Published = true
		if err := s.d.Store.UpdateIdea(r.Context(), idea); err != nil {
			s.writeDomainError(w, r, err)
			return
		}
	}
	api.WriteJSON(w, http.StatusOK, idea)
}

// --- Contribution request lifecycle ---

type contributionRequestBody struct {
	Message string   `json:"message"`
	Skills  []string `json:"skills"`
}

type inviteBody struct {
	CandidateID    string   `json:"candidate_id"`
	Message        string   `json:"message"`
	RequiredSkills []string `json:"required_skills"`
}

type respondBody struct {
	Decision string `json:"decision"`
}

func (s *Service) handleRequestContribution(w http.ResponseWriter, r *http.Request) {
	user := s.currentUser(w, r)
	if user == nil {
		return
	}

	var body contributionRequestBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		api.WriteBadRequest(w, api.ReasonBadRequest, "invalid JSON body")
		return
	}
	if len(body.Message) > s.conf.MaxMessageLength {
		api.WriteBadRequest(w, api.ReasonInvalidField, "message too long")
		return
	}

	req, err := s.d.Workflow.RequestContribution(r.Context(),
		chi.URLParam(r, "ideaID"), user.ID, body.Message, normalizeSkills(body.Skills))
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	api.WriteJSON(w, http.StatusCreated, req)
}

func (s *Service) handleListIdeaRequests(w http.ResponseWriter, r *http.Request) {
	user := s.currentUser(w, r)
	if user == nil {
		return
	}

	reqs, err := s.d.Workflow.ListInvitesForIdea(r.Context(), chi.URLParam(r, "ideaID"), user.ID)
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	api.WriteJSON(w, http.StatusOK, map[string]any{"requests": reqs})
}

func (s *Service) handleWithdrawRequest(w http.ResponseWriter, r *http.Request) {
	user := s.currentUser(w, r)
	if user == nil {
		return
	}

	if err := s.d.Workflow.WithdrawRequest(r.Context(), chi.URLParam(r, "ideaID"), user.ID); err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Service) handleInviteContribution(w http.ResponseWriter, r *http.Request) {
	user := s.currentUser(w, r)
	if user == nil {
		return
	}

	var body inviteBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		api.WriteBadRequest(w, api.ReasonBadRequest, "invalid JSON body")
		return
	}
	if body.CandidateID == "" {
		api.WriteBadRequest(w, api.ReasonMissingField, "candidate_id is required")
		return
	}
	if len(body.Message) > s.conf.MaxMessageLength {
		api.WriteBadRequest(w, api.ReasonInvalidField, "message too long")
		return
	}

	req, err := s.d.Workflow.InviteContribution(r.Context(),
		chi.URLParam(r, "ideaID"), user.ID, body.CandidateID,
		body.Message, normalizeSkills(body.RequiredSkills))
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	api.WriteJSON(w, http.StatusCreated, req)
}

func (s *Service) handleRespond(w http.ResponseWriter, r *http.Request) {
	user := s.currentUser(w, r)
	if user == nil {
		return
	}

	var body respondBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		api.WriteBadRequest(w, api.ReasonBadRequest, "invalid JSON body")
		return
	}

	decision := store.RequestStatus(strings.ToLower(strings.TrimSpace(body.Decision)))
	req, err := s.d.Workflow.RespondToInvite(r.Context(), chi.URLParam(r, "requestID"), user.ID, decision)
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	api.WriteJSON(w, http.StatusOK, req)
}

func (s *Service) handleCancelInvite(w http.ResponseWriter, r *http.Request) {
	user := s.currentUser(w, r)
	if user == nil {
		return
	}

	if err := s.d.Workflow.CancelInvite(r.Context(), chi.URLParam(r, "requestID"), user.ID); err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Service) handleListContributions(w http.ResponseWriter, r *http.Request) {
	user := s.currentUser(w, r)
	if user == nil {
		return
	}

	groups, err := s.d.Workflow.ListContributionsForUser(r.Context(), user.ID)
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	api.WriteJSON(w, http.StatusOK, groups)
}

func (s *Service) handleMembership(w http.ResponseWriter, r *http.Request) {
	user := s.currentUser(w, r)
	if user == nil {
		return
	}
	idea := s.loadVisibleIdea(w, r, user.ID)
	if idea == nil {
		return
	}

	isContributor, err := s.d.Workflow.IsContributor(r.Context(), idea.ID, user.ID)
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	api.WriteJSON(w, http.StatusOK, map[string]any{
		"idea_id":        idea.ID,
		"user_id":        user.ID,
		"is_contributor": isContributor,
	})
}

// --- Matching ---

func (s *Service) matchLimit(r *http.Request) int {
	if raw := r.URL.Query().Get("limit"); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil && n > 0 {
			return n
		}
	}
	return s.conf.DefaultMatchLimit
}

func (s *Service) handleRankCandidates(w http.ResponseWriter, r *http.Request) {
	user := s.currentUser(w, r)
	if user == nil {
		return
	}

	ideaID := chi.URLParam(r, "ideaID")
	idea, err := s.d.Store.GetIdea(r.Context(), ideaID)
	if errors.Is(err, store.ErrNotFound) {
		api.WriteNotFound(w, "idea not found")
		return
	}
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	if idea.AuthorID != user.ID {
		api.WriteForbidden(w, "only the author can rank candidates")
		return
	}

	matches, err := s.d.Matcher.RankCandidates(r.Context(), idea, s.matchLimit(r))
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	api.WriteJSON(w, http.StatusOK, map[string]any{"candidates": matches})
}

func (s *Service) handleRankIdeas(w http.ResponseWriter, r *http.Request) {
	user := s.currentUser(w, r)
	if user == nil {
		return
	}

	matches, err := s.d.Matcher.RankIdeasForUser(r.Context(), user.ID, s.matchLimit(r))
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	api.WriteJSON(w, http.StatusOK, map[string]any{"ideas": matches})
}

// --- Feed ---

func (s *Service) handleListNotifications(w http.ResponseWriter, r *http.Request) {
	user := s.currentUser(w, r)
	if user == nil {
		return
	}

	notifs, err := s.d.Store.ListNotificationsForUser(r.Context(), user.ID)
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	api.WriteJSON(w, http.StatusOK, map[string]any{"notifications": notifs})
}

func (s *Service) handleMarkNotificationRead(w http.ResponseWriter, r *http.Request) {
	user := s.currentUser(w, r)
	if user == nil {
		return
	}

	id := chi.URLParam(r, "notificationID")
	err := s.d.Store.MarkNotificationRead(r.Context(), id, user.ID, time.Now().Unix())
	if errors.Is(err, store.ErrNotFound) {
		api.WriteNotFound(w, "notification not found")
		return
	}
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Service) handleListActivities(w http.ResponseWriter, r *http.Request) {
	user := s.currentUser(w, r)
	if user == nil {
		return
	}

	acts, err := s.d.Store.ListActivitiesForUser(r.Context(), user.ID)
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	api.WriteJSON(w, http.StatusOK, map[string]any{"activities": acts})
}
