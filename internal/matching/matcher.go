package matching

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/ideaforge/ideaforge-go/internal/platform/cache"
	"github.com/ideaforge/ideaforge-go/internal/platform/logutil"
	"github.com/ideaforge/ideaforge-go/internal/store"
)

// Config holds matching engine settings.
type Config struct {
	// IdeaCacheTTL bounds how long a rank-ideas result may be served from
	// cache. Zero falls back to the platform default.
	IdeaCacheTTL time.Duration
}

// ApplyDefaults sets defaults for unset fields.
func (c *Config) ApplyDefaults() {
	if c.IdeaCacheTTL == 0 {
		c.IdeaCacheTTL = cache.TTLMatchRanking
	}
}

// Matcher answers the two ranking queries. Reads only; rank-ideas
// results may be served from cache within the configured TTL, so they
// can lag live request state slightly. Membership checks never go
// through here.
type Matcher struct {
	store store.Driver
	cache cache.Cache
	log   *slog.Logger
	cfg   Config
}

// NewMatcher creates a matcher. The cache may be nil, in which case
// every query hits the store.
func NewMatcher(st store.Driver, c cache.Cache, log *slog.Logger, cfg Config) *Matcher {
	cfg.ApplyDefaults()
	return &Matcher{
		store: st,
		cache: c,
		log:   logutil.NoopIfNil(log),
		cfg:   cfg,
	}
}

// RankCandidates ranks profiles against an idea's required skills. The
// idea's author and users with a live (pending or accepted) request for
// the idea are excluded. Always computed fresh: candidate lists feed
// invitations, so a stale exclusion would suggest users who already
// asked.
func (m *Matcher) RankCandidates(ctx context.Context, idea *store.Idea, limit int) ([]*SkillMatch, error) {
	profiles, err := m.store.ListProfilesBySkills(ctx, idea.RequiredSkills)
	if err != nil {
		return nil, fmt.Errorf("listing profiles: %w", err)
	}

	matches := make([]*SkillMatch, 0, len(profiles))
	for _, p := range profiles {
		if p.UserID == idea.AuthorID {
			continue
		}
		live, err := m.store.HasRequestWithStatus(ctx, idea.ID, p.UserID,
			store.RequestStatusPending, store.RequestStatusAccepted)
		if err != nil {
			return nil, fmt.Errorf("checking request state: %w", err)
		}
		if live {
			continue
		}

		score, matched, additional := scoreProfile(p, idea.RequiredSkills)
		matches = append(matches, &SkillMatch{
			UserID:           p.UserID,
			DisplayName:      p.DisplayName,
			Score:            score,
			MatchedSkills:    matched,
			AdditionalSkills: additional,
		})
	}

	return sortAndTruncate(matches, func(sm *SkillMatch) float64 { return sm.Score }, limit), nil
}

// RankIdeasForUser ranks published public ideas against the user's
// skills, excluding the user's own ideas and ideas where the user has a
// live request. Results are cached per user for the configured TTL.
func (m *Matcher) RankIdeasForUser(ctx context.Context, userID string, limit int) ([]*IdeaMatch, error) {
	// The full ranking is cached once per user; limits are applied on the
	// way out so invalidation has a single key to hit.
	cacheKey := ideaCacheKey(userID)
	if cached, ok := m.cachedIdeas(ctx, cacheKey); ok {
		return capMatches(cached, limit), nil
	}

	profile, err := m.store.GetProfile(ctx, userID)
	if errors.Is(err, store.ErrNotFound) {
		// No profile means no skills to match on.
		return []*IdeaMatch{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("loading profile: %w", err)
	}
	userSkills := make(map[string]bool, len(profile.Skills))
	for _, ps := range profile.Skills {
		userSkills[normalizeSkill(ps.Skill)] = true
	}

	ideas, err := m.store.ListPublicIdeas(ctx)
	if err != nil {
		return nil, fmt.Errorf("listing ideas: %w", err)
	}

	matches := []*IdeaMatch{}
	for _, idea := range ideas {
		if idea.AuthorID == userID {
			continue
		}
		score, matched := scoreIdea(idea, userSkills)
		if len(matched) == 0 {
			continue
		}
		live, err := m.store.HasRequestWithStatus(ctx, idea.ID, userID,
			store.RequestStatusPending, store.RequestStatusAccepted)
		if err != nil {
			return nil, fmt.Errorf("checking request state: %w", err)
		}
		if live {
			continue
		}
		matches = append(matches, &IdeaMatch{
			IdeaID:        idea.ID,
			Title:         idea.Title,
			Score:         score,
			MatchedSkills: matched,
		})
	}

	result := sortAndTruncate(matches, func(im *IdeaMatch) float64 { return im.Score }, 0)
	m.storeIdeas(ctx, cacheKey, result)
	return capMatches(result, limit), nil
}

func ideaCacheKey(userID string) string {
	return "matching:ideas:" + userID
}

func capMatches(matches []*IdeaMatch, limit int) []*IdeaMatch {
	if limit > 0 && len(matches) > limit {
		return matches[:limit]
	}
	return matches
}

// InvalidateIdeasForUser drops the user's cached rank-ideas results.
// Called after profile updates so skill edits show up immediately.
func (m *Matcher) InvalidateIdeasForUser(ctx context.Context, userID string) {
	if m.cache == nil {
		return
	}
	if err := m.cache.Delete(ctx, ideaCacheKey(userID)); err != nil {
		m.log.Debug("cache invalidation failed", "user_id", userID, "error", err)
	}
}

func (m *Matcher) cachedIdeas(ctx context.Context, key string) ([]*IdeaMatch, bool) {
	if m.cache == nil {
		return nil, false
	}
	raw, err := m.cache.Get(ctx, key)
	if err != nil {
		return nil, false
	}
	var matches []*IdeaMatch
	if err := json.Unmarshal(raw, &matches); err != nil {
		m.log.Warn("discarding corrupt cached ranking", "key", key, "error", err)
		return nil, false
	}
	return matches, true
}

func (m *Matcher) storeIdeas(ctx context.Context, key string, matches []*IdeaMatch) {
	if m.cache == nil {
		return
	}
	raw, err := json.Marshal(matches)
	if err != nil {
		return
	}
	if err := m.cache.Set(ctx, key, raw, m.cfg.IdeaCacheTTL); err != nil {
		m.log.Debug("ranking cache write failed", "key", key, "error", err)
	}
}
