package server

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/ideaforge/ideaforge-go/internal/frameworks/service"
	"github.com/ideaforge/ideaforge-go/internal/platform/deps"
	"github.com/ideaforge/ideaforge-go/internal/platform/http/auth"
	httpmw "github.com/ideaforge/ideaforge-go/internal/platform/http/middleware"
)

// RouteGroup defines an endpoint group with its auth requirements.
type RouteGroup struct {
	Name         string
	PathPrefix   string
	RequiresAuth bool
}

// routeGroups defines all endpoint groups and their auth requirements.
// This table is the single source of truth for routing decisions.
var routeGroups = []RouteGroup{
	{Name: "auth", PathPrefix: "/auth", RequiresAuth: true}, // exceptions (/login, /register) via Service.Unprotected()
	{Name: "api", PathPrefix: "/api", RequiresAuth: true},   // exceptions (/healthz) via Service.Unprotected()
}

// GetRouteGroups returns the route group definitions for testing.
func GetRouteGroups() []RouteGroup {
	return routeGroups
}

// IsAuthRequired checks if a given path requires authentication.
// This is used by the auth middleware to make gating decisions.
// The mountedServices slice is used to compute unprotected paths from Service.Unprotected().
func IsAuthRequired(path string, mountedServices []service.Service) bool {
	// Unprotected paths declared by mounted services win over group defaults
	for _, svc := range mountedServices {
		if svc == nil {
			continue
		}
		svcBase := ""
		if prefix := svc.Prefix(); prefix != "" {
			svcBase = "/" + prefix
		}
		for _, unprotected := range svc.Unprotected() {
			if pathMatchesPrefix(path, svcBase+unprotected) {
				return false
			}
		}
	}

	for _, rg := range routeGroups {
		if pathMatchesPrefix(path, rg.PathPrefix) {
			return rg.RequiresAuth
		}
	}

	// Default: require auth for unknown paths
	return true
}

// mountService mounts a service and tracks it for lifecycle management.
func (s *Server) mountService(r chi.Router, svc service.Service) {
	if svc == nil {
		return
	}

	var handler http.Handler = svc.Handler()
	prefix := svc.Prefix()

	if prefix == "" {
		r.Mount("/", handler)
	} else {
		r.Mount("/"+prefix, handler)
	}

	s.mountedServices = append(s.mountedServices, svc)
}

// pathMatchesPrefix checks if path equals or is a subpath of prefix.
func pathMatchesPrefix(path, prefix string) bool {
	if path == prefix {
		return true
	}
	if len(path) > len(prefix) && path[:len(prefix)] == prefix {
		// Check for path separator
		if path[len(prefix)] == '/' {
			return true
		}
	}
	return false
}

// setupRoutes creates the chi router with all route groups mounted.
func (s *Server) setupRoutes() chi.Router {
	d := deps.GetDeps()
	r := chi.NewRouter()

	// Always-on transport middleware (order is invariant):
	// RequestID -> request-scoped logger -> access log -> recoverer -> auth gate
	r.Use(chimw.RequestID)
	r.Use(httpmw.RequestLoggerMiddleware(s.logger, d.RealIP))
	r.Use(httpmw.AccessLogMiddleware(s.logger, d.RealIP))
	r.Use(chimw.Recoverer)

	// Auth gate: single middleware, checks requireAuth once per request.
	// The closure captures s.mountedServices which is evaluated at request time,
	// ensuring newly mounted services are always reflected.
	requireAuth := func(path string) bool {
		return IsAuthRequired(path, s.mountedServices)
	}
	r.Use(auth.NewAuthGate(auth.AuthGateConfig{
		RequireAuth: requireAuth,
		Log:         s.logger,
		SessionRepo: d.SessionRepo,
		PartyRepo:   d.PartyRepo,
	}))

	// Mount in registration order; shutdown closes in reverse.
	s.mountService(r, s.services["auth"])
	s.mountService(r, s.services["api"])

	return r
}
