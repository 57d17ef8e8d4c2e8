// Package deps provides shared dependencies for all services.
package deps

import (
	"sync"

	"github.com/ideaforge/ideaforge-go/internal/contrib"
	"github.com/ideaforge/ideaforge-go/internal/feed"
	"github.com/ideaforge/ideaforge-go/internal/identity"
	"github.com/ideaforge/ideaforge-go/internal/matching"
	"github.com/ideaforge/ideaforge-go/internal/platform/cache"
	"github.com/ideaforge/ideaforge-go/internal/platform/config"
	"github.com/ideaforge/ideaforge-go/internal/platform/http/realip"
	"github.com/ideaforge/ideaforge-go/internal/store"
)

var (
	sharedDeps     *Deps
	sharedDepsOnce sync.Once
)

// Deps holds shared dependencies for all services.
// Services are constructed from a name and a raw config map, so anything
// heavier than config travels through this singleton, set once at startup.
type Deps struct {
	// Identity (for session-gated endpoints)
	PartyRepo   identity.PartyRepo
	SessionRepo identity.SessionRepo
	UserAuth    *identity.UserAuth

	// Persistence
	Store store.Driver

	// Domain engines
	Workflow *contrib.Engine
	Matcher  *matching.Matcher
	Emitter  *feed.Emitter

	// Config (for handlers that need config values)
	Config *config.Config

	// Cache provides cache access (match rankings, login throttling)
	Cache cache.CacheWithCounter

	// RealIP provides trusted-proxy-aware client IP extraction.
	// This is the single source of truth for client identity in logging and rate limiting.
	RealIP *realip.TrustedProxies
}

// SetDeps sets the shared dependencies. Must be called once at startup
// before any services are constructed.
func SetDeps(d *Deps) {
	sharedDepsOnce.Do(func() {
		sharedDeps = d
	})
}

// GetDeps returns the shared dependencies.
// Returns nil if SetDeps has not been called.
func GetDeps() *Deps {
	return sharedDeps
}

// ResetDeps is for testing only. Resets the singleton.
func ResetDeps() {
	sharedDeps = nil
	sharedDepsOnce = sync.Once{}
}
