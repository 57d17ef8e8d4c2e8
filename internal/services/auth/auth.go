// Package auth provides the /auth/* endpoints: register, login, logout.
package auth

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/ideaforge/ideaforge-go/internal/platform/appctx"
	"github.com/ideaforge/ideaforge-go/internal/components/api"
	"github.com/ideaforge/ideaforge-go/internal/frameworks/service"
	svccfg "github.com/ideaforge/ideaforge-go/internal/frameworks/service/cfg"
	"github.com/ideaforge/ideaforge-go/internal/identity"
	"github.com/ideaforge/ideaforge-go/internal/platform/cache"
	"github.com/ideaforge/ideaforge-go/internal/platform/deps"
	authgate "github.com/ideaforge/ideaforge-go/internal/platform/http/auth"
)

func init() {
	service.MustRegister("auth", New)
}

// Config holds auth service configuration.
type Config struct {
	// LoginMaxAttempts is the number of failed logins per client IP and
	// username before further attempts are rejected for the window.
	// 0 disables throttling.
	LoginMaxAttempts int `mapstructure:"login_max_attempts"`

	// MinPasswordLength is the minimum accepted password length.
	MinPasswordLength int `mapstructure:"min_password_length"`
}

// ApplyDefaults implements cfg.Setter.
func (c *Config) ApplyDefaults() {
	if c.LoginMaxAttempts == 0 {
		c.LoginMaxAttempts = 10
	}
	if c.MinPasswordLength == 0 {
		c.MinPasswordLength = 8
	}
}

// Service is the auth service.
type Service struct {
	router chi.Router
	conf   *Config
	log    *slog.Logger
	d      *deps.Deps
}

// New creates a new auth service.
func New(m map[string]any, log *slog.Logger) (service.Service, error) {
	var c Config
	unused, err := svccfg.DecodeWithUnused(m, &c)
	if err != nil {
		return nil, err
	}
	if len(unused) > 0 {
		log.Warn("unused config keys", "service", "auth", "unused_keys", unused)
	}

	d := deps.GetDeps()
	if d == nil {
		return nil, errors.New("shared deps not initialized")
	}

	s := &Service{conf: &c, log: log, d: d}

	r := chi.NewRouter()
	r.Post("/register", s.handleRegister)
	r.Post("/login", s.handleLogin)
	r.Post("/logout", s.handleLogout)
	r.Get("/me", s.handleMe)
	s.router = r

	return s, nil
}

// Handler returns the service's HTTP handler.
func (s *Service) Handler() http.Handler {
	return s.router
}

// Prefix returns the URL prefix for this service.
func (s *Service) Prefix() string {
	return "auth"
}

// Unprotected returns paths that don't require session authentication.
func (s *Service) Unprotected() []string {
	return []string{"/login", "/register"}
}

// Close releases any resources held by the service.
func (s *Service) Close() error {
	return nil
}

type registerRequest struct {
	Username    string `json:"username"`
	Password    string `json:"password"`
	Email       string `json:"email"`
	DisplayName string `json:"display_name"`
}

type loginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type sessionResponse struct {
	Token     string         `json:"token"`
	ExpiresAt time.Time      `json:"expires_at"`
	User      *identity.User `json:"user"`
}

func (s *Service) handleRegister(w http.ResponseWriter, r *http.Request) {
	log := appctx.GetLogger(r.Context())

	var req registerRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		api.WriteBadRequest(w, api.ReasonBadRequest, "invalid JSON body")
		return
	}

	req.Username = strings.TrimSpace(req.Username)
	if req.Username == "" {
		api.WriteBadRequest(w, api.ReasonMissingField, "username is required")
		return
	}
	if len(req.Password) < s.conf.MinPasswordLength {
		api.WriteBadRequest(w, api.ReasonInvalidField,
			fmt.Sprintf("password must be at least %d characters", s.conf.MinPasswordLength))
		return
	}

	hash, err := s.d.UserAuth.HashPassword(req.Password)
	if err != nil {
		log.Error("password hashing failed", "error", err)
		api.WriteInternalError(w, "registration failed")
		return
	}

	user := &identity.User{
		ID:           identity.UUIDv7(),
		Username:     req.Username,
		Email:        strings.TrimSpace(req.Email),
		DisplayName:  strings.TrimSpace(req.DisplayName),
		PasswordHash: hash,
		Role:         identity.RoleUser,
		CreatedAt:    time.Now(),
	}
	if user.DisplayName == "" {
		user.DisplayName = user.Username
	}

	if err := s.d.PartyRepo.Create(r.Context(), user); err != nil {
		switch {
		case errors.Is(err, identity.ErrUserExists):
			api.WriteConflict(w, api.ReasonConflict, "username is already taken")
		case errors.Is(err, identity.ErrEmailExists):
			api.WriteConflict(w, api.ReasonConflict, "email is already in use")
		default:
			log.Error("user creation failed", "error", err)
			api.WriteInternalError(w, "registration failed")
		}
		return
	}

	log.Info("user registered", "user_id", user.ID, "username", user.Username)
	api.WriteJSON(w, http.StatusCreated, user)
}

func (s *Service) handleLogin(w http.ResponseWriter, r *http.Request) {
	log := appctx.GetLogger(r.Context())

	var req loginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		api.WriteBadRequest(w, api.ReasonBadRequest, "invalid JSON body")
		return
	}
	if req.Username == "" || req.Password == "" {
		api.WriteBadRequest(w, api.ReasonMissingField, "username and password are required")
		return
	}

	throttleKey := s.throttleKey(r, req.Username)
	if s.throttled(r, throttleKey) {
		log.Warn("login throttled", "username", req.Username)
		api.WriteError(w, http.StatusTooManyRequests, api.ReasonBadRequest,
			"too many failed login attempts, try again later")
		return
	}

	user, err := s.d.UserAuth.Authenticate(r.Context(), s.d.PartyRepo, req.Username, req.Password)
	if err != nil {
		s.recordFailure(r, throttleKey)
		// Uniform response for unknown user and wrong password.
		api.WriteUnauthorized(w, api.ReasonInvalidCredentials, "invalid username or password")
		return
	}
	s.resetThrottle(r, throttleKey)

	ttl := time.Duration(s.d.Config.Sessions.TTLHours) * time.Hour
	session, err := s.d.SessionRepo.Create(r.Context(), user.ID, ttl)
	if err != nil {
		log.Error("session creation failed", "error", err)
		api.WriteInternalError(w, "login failed")
		return
	}

	http.SetCookie(w, &http.Cookie{
		Name:     "session",
		Value:    session.Token,
		Path:     "/",
		Expires:  session.ExpiresAt,
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
		Secure:   s.d.Config.TLS.Mode != "off",
	})

	log.Info("user logged in", "user_id", user.ID)
	api.WriteJSON(w, http.StatusOK, sessionResponse{
		Token:     session.Token,
		ExpiresAt: session.ExpiresAt,
		User:      user,
	})
}

func (s *Service) handleLogout(w http.ResponseWriter, r *http.Request) {
	session := authgate.GetSessionFromContext(r.Context())
	if session != nil {
		if err := s.d.SessionRepo.Delete(r.Context(), session.Token); err != nil {
			appctx.GetLogger(r.Context()).Warn("session delete failed", "error", err)
		}
	}

	http.SetCookie(w, &http.Cookie{
		Name:     "session",
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
	})
	w.WriteHeader(http.StatusNoContent)
}

func (s *Service) handleMe(w http.ResponseWriter, r *http.Request) {
	user := authgate.GetUserFromContext(r.Context())
	if user == nil {
		api.WriteUnauthorized(w, api.ReasonUnauthenticated, "not logged in")
		return
	}
	api.WriteJSON(w, http.StatusOK, user)
}

// throttleKey ties failed-login counting to the client IP and the target
// username so one address cannot burn through many accounts, and a
// distributed guess at one account still trips the counter.
func (s *Service) throttleKey(r *http.Request, username string) string {
	ip := "unknown"
	if s.d.RealIP != nil {
		ip = s.d.RealIP.GetClientIPString(r)
	}
	return "login:" + ip + ":" + strings.ToLower(username)
}

func (s *Service) throttled(r *http.Request, key string) bool {
	if s.d.Cache == nil || s.conf.LoginMaxAttempts <= 0 {
		return false
	}
	count, err := s.d.Cache.GetCount(r.Context(), key)
	if err != nil {
		return false
	}
	return count >= int64(s.conf.LoginMaxAttempts)
}

func (s *Service) recordFailure(r *http.Request, key string) {
	if s.d.Cache == nil || s.conf.LoginMaxAttempts <= 0 {
		return
	}
	if _, _, err := s.d.Cache.Increment(r.Context(), key, 1, cache.TTLLoginWindow); err != nil {
		appctx.GetLogger(r.Context()).Warn("login throttle increment failed", "error", err)
	}
}

func (s *Service) resetThrottle(r *http.Request, key string) {
	if s.d.Cache == nil {
		return
	}
	if err := s.d.Cache.Reset(r.Context(), key); err != nil {
		appctx.GetLogger(r.Context()).Warn("login throttle reset failed", "error", err)
	}
}
