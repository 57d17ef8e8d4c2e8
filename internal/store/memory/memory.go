// Package memory implements an in-memory persistence driver.
// It is the default driver in dev mode and the fixture driver in tests.
package memory

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/ideaforge/ideaforge-go/internal/store"
)

func init() {
	store.Register("memory", NewDriver)
}

// Driver implements the store.Driver interface with mutex-guarded maps.
// The single-pending invariant for contribution requests holds because
// the existence check and the insert run under the same write lock.
type Driver struct {
	mu sync.RWMutex

	profiles     map[string]*store.Profile
	profileOrder []string

	ideas     map[string]*store.Idea
	ideaOrder []string

	requests     map[string]*store.ContributionRequest
	requestOrder []string

	notifications []*store.Notification
	activities    []*store.Activity

	closed bool
}

// NewDriver creates a new memory driver instance.
func NewDriver(cfg *store.DriverConfig) (store.Driver, error) {
	return &Driver{
		profiles: make(map[string]*store.Profile),
		ideas:    make(map[string]*store.Idea),
		requests: make(map[string]*store.ContributionRequest),
	}, nil
}

// Name returns the driver name.
func (d *Driver) Name() string { return "memory" }

// Init is a no-op for the memory driver.
func (d *Driver) Init(ctx context.Context) error { return nil }

// Close marks the driver closed. Subsequent writes fail with ErrClosed.
func (d *Driver) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.closed = true
	return nil
}

func now() int64 { return time.Now().Unix() }

// ProfileStore implementation

func (d *Driver) UpsertProfile(ctx context.Context, profile *store.Profile) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.closed {
		return store.ErrClosed
	}

	p := cloneProfile(profile)
	p.UpdatedAt = now()
	if existing, ok := d.profiles[p.UserID]; ok {
		p.CreatedAt = existing.CreatedAt
	} else {
		p.CreatedAt = p.UpdatedAt
		d.profileOrder = append(d.profileOrder, p.UserID)
	}
	d.profiles[p.UserID] = p
	return nil
}

func (d *Driver) GetProfile(ctx context.Context, userID string) (*store.Profile, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	p, ok := d.profiles[userID]
	if !ok {
		return nil, store.ErrNotFound
	}
	return cloneProfile(p), nil
}

func (d *Driver) ListProfilesBySkills(ctx context.Context, skills []string) ([]*store.Profile, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	if len(skills) == 0 {
		return nil, nil
	}

	wanted := make(map[string]bool, len(skills))
	for _, s := range skills {
		wanted[s] = true
	}

	var result []*store.Profile
	for _, id := range d.profileOrder {
		p := d.profiles[id]
		for _, ps := range p.Skills {
			if wanted[ps.Skill] {
				result = append(result, cloneProfile(p))
				break
			}
		}
	}
	return result, nil
}

// IdeaStore implementation

func (d *Driver) CreateIdea(ctx context.Context, idea *store.Idea) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.closed {
		return store.ErrClosed
	}

	if idea.ID == "" {
		idea.ID = uuid.New().String()
	}
	if idea.CreatedAt == 0 {
		idea.CreatedAt = now()
	}
	idea.UpdatedAt = idea.CreatedAt

	if _, exists := d.ideas[idea.ID]; exists {
		return store.ErrAlreadyExists
	}

	d.ideas[idea.ID] = cloneIdea(idea)
	d.ideaOrder = append(d.ideaOrder, idea.ID)
	return nil
}

func (d *Driver) GetIdea(ctx context.Context, id string) (*store.Idea, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	idea, ok := d.ideas[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	return cloneIdea(idea), nil
}

func (d *Driver) UpdateIdea(ctx context.Context, idea *store.Idea) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.closed {
		return store.ErrClosed
	}

	existing, ok := d.ideas[idea.ID]
	if !ok {
		return store.ErrNotFound
	}

	updated := cloneIdea(idea)
	updated.CreatedAt = existing.CreatedAt
	updated.UpdatedAt = now()
	d.ideas[idea.ID] = updated
	return nil
}

func (d *Driver) ListPublicIdeas(ctx context.Context) ([]*store.Idea, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	var result []*store.Idea
	for _, id := range d.ideaOrder {
		idea := d.ideas[id]
		if idea.Published && idea.Visibility == store.VisibilityPublic {
			result = append(result, cloneIdea(idea))
		}
	}
	return result, nil
}

func (d *Driver) ListIdeasByAuthor(ctx context.Context, authorID string) ([]*store.Idea, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	var result []*store.Idea
	for _, id := range d.ideaOrder {
		idea := d.ideas[id]
		if idea.AuthorID == authorID {
			result = append(result, cloneIdea(idea))
		}
	}
	return result, nil
}

// RequestStore implementation

func (d *Driver) CreateRequest(ctx context.Context, req *store.ContributionRequest) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.closed {
		return store.ErrClosed
	}

	// Single-pending invariant: the check and the insert share this lock.
	for _, existing := range d.requests {
		if existing.IdeaID == req.IdeaID && existing.UserID == req.UserID &&
			existing.Status == store.RequestStatusPending {
			return store.ErrAlreadyExists
		}
	}

	if req.ID == "" {
		req.ID = uuid.New().String()
	}
	if req.CreatedAt == 0 {
		req.CreatedAt = now()
	}
	if req.Status == "" {
		req.Status = store.RequestStatusPending
	}

	d.requests[req.ID] = cloneRequest(req)
	d.requestOrder = append(d.requestOrder, req.ID)
	return nil
}

func (d *Driver) GetRequest(ctx context.Context, id string) (*store.ContributionRequest, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	req, ok := d.requests[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	return cloneRequest(req), nil
}

func (d *Driver) GetRequestByIdeaAndUser(ctx context.Context, ideaID, userID string) (*store.ContributionRequest, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	var accepted *store.ContributionRequest
	for _, id := range d.requestOrder {
		req, ok := d.requests[id]
		if !ok || req.IdeaID != ideaID || req.UserID != userID {
			continue
		}
		switch req.Status {
		case store.RequestStatusPending:
			return cloneRequest(req), nil
		case store.RequestStatusAccepted:
			accepted = req
		}
	}
	if accepted != nil {
		return cloneRequest(accepted), nil
	}
	return nil, store.ErrNotFound
}

func (d *Driver) ResolveRequest(ctx context.Context, id string, status store.RequestStatus, respondedAt int64) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.closed {
		return store.ErrClosed
	}

	req, ok := d.requests[id]
	if !ok {
		return store.ErrNotFound
	}
	if req.Status != store.RequestStatusPending {
		return store.ErrConflict
	}

	req.Status = status
	req.RespondedAt = respondedAt
	return nil
}

func (d *Driver) DeletePendingRequest(ctx context.Context, id string) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.closed {
		return store.ErrClosed
	}

	req, ok := d.requests[id]
	if !ok {
		return store.ErrNotFound
	}
	if req.Status != store.RequestStatusPending {
		return store.ErrConflict
	}

	delete(d.requests, id)
	for i, rid := range d.requestOrder {
		if rid == id {
			d.requestOrder = append(d.requestOrder[:i], d.requestOrder[i+1:]...)
			break
		}
	}
	return nil
}

func (d *Driver) ListRequestsForIdea(ctx context.Context, ideaID string) ([]*store.ContributionRequest, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	var result []*store.ContributionRequest
	for _, id := range d.requestOrder {
		req := d.requests[id]
		if req.IdeaID == ideaID {
			result = append(result, cloneRequest(req))
		}
	}
	return result, nil
}

func (d *Driver) ListRequestsByUser(ctx context.Context, userID string) ([]*store.ContributionRequest, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	var result []*store.ContributionRequest
	for _, id := range d.requestOrder {
		req := d.requests[id]
		if req.UserID == userID {
			result = append(result, cloneRequest(req))
		}
	}
	return result, nil
}

func (d *Driver) HasRequestWithStatus(ctx context.Context, ideaID, userID string, statuses ...store.RequestStatus) (bool, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	for _, req := range d.requests {
		if req.IdeaID != ideaID || req.UserID != userID {
			continue
		}
		for _, s := range statuses {
			if req.Status == s {
				return true, nil
			}
		}
	}
	return false, nil
}

// FeedStore implementation

func (d *Driver) AppendNotification(ctx context.Context, n *store.Notification) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.closed {
		return store.ErrClosed
	}

	if n.ID == "" {
		n.ID = uuid.New().String()
	}
	if n.CreatedAt == 0 {
		n.CreatedAt = now()
	}
	d.notifications = append(d.notifications, cloneNotification(n))
	return nil
}

func (d *Driver) ListNotificationsForUser(ctx context.Context, userID string) ([]*store.Notification, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	var result []*store.Notification
	for _, n := range d.notifications {
		if n.UserID == userID {
			result = append(result, cloneNotification(n))
		}
	}
	return result, nil
}

func (d *Driver) MarkNotificationRead(ctx context.Context, id, userID string, readAt int64) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.closed {
		return store.ErrClosed
	}

	for _, n := range d.notifications {
		if n.ID == id && n.UserID == userID {
			n.ReadAt = readAt
			return nil
		}
	}
	return store.ErrNotFound
}

func (d *Driver) AppendActivity(ctx context.Context, a *store.Activity) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.closed {
		return store.ErrClosed
	}

	if a.ID == "" {
		a.ID = uuid.New().String()
	}
	if a.CreatedAt == 0 {
		a.CreatedAt = now()
	}
	d.activities = append(d.activities, cloneActivity(a))
	return nil
}

func (d *Driver) ListActivitiesForUser(ctx context.Context, userID string) ([]*store.Activity, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	var result []*store.Activity
	for _, a := range d.activities {
		if a.UserID == userID {
			result = append(result, cloneActivity(a))
		}
	}
	return result, nil
}

func (d *Driver) ListActivitiesForIdea(ctx context.Context, ideaID string) ([]*store.Activity, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	var result []*store.Activity
	for _, a := range d.activities {
		if a.IdeaID == ideaID {
			result = append(result, cloneActivity(a))
		}
	}
	return result, nil
}

// clone helpers return deep copies so callers never alias stored state.

func cloneProfile(p *store.Profile) *store.Profile {
	c := *p
	c.Skills = append([]store.ProfileSkill(nil), p.Skills...)
	return &c
}

func cloneIdea(i *store.Idea) *store.Idea {
	c := *i
	c.RequiredSkills = append([]string(nil), i.RequiredSkills...)
	return &c
}

func cloneRequest(r *store.ContributionRequest) *store.ContributionRequest {
	c := *r
	c.Skills = append([]string(nil), r.Skills...)
	return &c
}

func cloneNotification(n *store.Notification) *store.Notification {
	c := *n
	c.Metadata = cloneMetadata(n.Metadata)
	return &c
}

func cloneActivity(a *store.Activity) *store.Activity {
	c := *a
	c.Metadata = cloneMetadata(a.Metadata)
	return &c
}

func cloneMetadata(m map[string]string) map[string]string {
	if m == nil {
		return nil
	}
	c := make(map[string]string, len(m))
	for k, v := range m {
		c[k] = v
	}
	return c
}

// Compile-time interface check
var _ store.Driver = (*Driver)(nil)
