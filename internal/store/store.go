// Package store provides persistence primitives and driver abstractions.
package store

import (
	"context"
	"errors"
)

// Common errors for store operations.
var (
	ErrNotFound      = errors.New("not found")
	ErrAlreadyExists = errors.New("already exists")
	ErrConflict      = errors.New("state precondition failed")
	ErrClosed        = errors.New("store closed")
)

// Driver defines the interface for a persistence backend.
// Implementations must be safe for concurrent use.
type Driver interface {
	// Init initializes the driver (create tables, load data, etc).
	Init(ctx context.Context) error

	// Close releases resources held by the driver.
	Close() error

	// Name returns the driver name (memory, sqlite).
	Name() string

	ProfileStore
	IdeaStore
	RequestStore
	FeedStore
}

// ProfileStore defines operations for user profile persistence.
// A profile is the matching-relevant projection of a user: display
// identity plus a skill set with proficiency levels.
type ProfileStore interface {
	// UpsertProfile creates or replaces the profile for profile.UserID,
	// including its skill rows.
	UpsertProfile(ctx context.Context, profile *Profile) error

	// GetProfile retrieves a profile with its skills.
	GetProfile(ctx context.Context, userID string) (*Profile, error)

	// ListProfilesBySkills returns profiles owning at least one of the
	// given skill names, with full skill sets loaded, in stable
	// creation order. An empty skill list yields an empty result.
	ListProfilesBySkills(ctx context.Context, skills []string) ([]*Profile, error)
}

// IdeaStore defines operations for idea persistence.
type IdeaStore interface {
	CreateIdea(ctx context.Context, idea *Idea) error
	GetIdea(ctx context.Context, id string) (*Idea, error)

	// UpdateIdea replaces the idea row and its required-skill rows.
	UpdateIdea(ctx context.Context, idea *Idea) error

	// ListPublicIdeas returns published, publicly visible ideas in
	// stable creation order.
	ListPublicIdeas(ctx context.Context) ([]*Idea, error)

	// ListIdeasByAuthor returns all ideas owned by the given user.
	ListIdeasByAuthor(ctx context.Context, authorID string) ([]*Idea, error)
}

// RequestStore defines operations for contribution request persistence.
//
// The store enforces the single-pending invariant: CreateRequest returns
// ErrAlreadyExists when a pending request for the same (idea, user) pair
// already exists. The check and the insert are atomic with respect to
// concurrent creators (mutex in the memory driver, partial unique index
// in the sqlite driver).
type RequestStore interface {
	CreateRequest(ctx context.Context, req *ContributionRequest) error
	GetRequest(ctx context.Context, id string) (*ContributionRequest, error)

	// GetRequestByIdeaAndUser returns the pending or accepted request
	// for the pair, preferring pending. Returns ErrNotFound when the
	// pair has neither.
	GetRequestByIdeaAndUser(ctx context.Context, ideaID, userID string) (*ContributionRequest, error)

	// ResolveRequest transitions a request out of pending. The update
	// carries a status precondition: it succeeds only while the row is
	// still pending. Returns ErrNotFound when no row exists and
	// ErrConflict when the row exists but is no longer pending.
	ResolveRequest(ctx context.Context, id string, status RequestStatus, respondedAt int64) error

	// DeletePendingRequest removes a request only while it is pending.
	// Returns ErrNotFound when no row exists and ErrConflict when the
	// row has already been resolved.
	DeletePendingRequest(ctx context.Context, id string) error

	// ListRequestsForIdea returns all requests targeting an idea.
	ListRequestsForIdea(ctx context.Context, ideaID string) ([]*ContributionRequest, error)

	// ListRequestsByUser returns all requests filed by or targeting a
	// candidate user.
	ListRequestsByUser(ctx context.Context, userID string) ([]*ContributionRequest, error)

	// HasRequestWithStatus reports whether a request with one of the
	// given statuses exists for the pair. Used for the contributor
	// predicate (accepted) and matching exclusions (pending, accepted);
	// always computed against live data, never cached.
	HasRequestWithStatus(ctx context.Context, ideaID, userID string, statuses ...RequestStatus) (bool, error)
}

// FeedStore defines append-only persistence for notifications and
// activities. Records are never mutated after the append, except for the
// read marker on notifications.
type FeedStore interface {
	AppendNotification(ctx context.Context, n *Notification) error
	ListNotificationsForUser(ctx context.Context, userID string) ([]*Notification, error)

	// MarkNotificationRead sets the read marker. Returns ErrNotFound
	// for an unknown id or a foreign recipient.
	MarkNotificationRead(ctx context.Context, id, userID string, readAt int64) error

	AppendActivity(ctx context.Context, a *Activity) error
	ListActivitiesForUser(ctx context.Context, userID string) ([]*Activity, error)
	ListActivitiesForIdea(ctx context.Context, ideaID string) ([]*Activity, error)
}
