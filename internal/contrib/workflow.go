package contrib

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/ideaforge/ideaforge-go/internal/feed"
	"github.com/ideaforge/ideaforge-go/internal/platform/logutil"
	"github.com/ideaforge/ideaforge-go/internal/store"
)

// Config holds workflow policy switches.
type Config struct {
	// NotifyOwnerOnRequest controls whether a candidate-initiated request
	// produces a notification for the idea owner. Off by default: the
	// request stays visible through the owner's request listing.
	NotifyOwnerOnRequest bool
}

// Engine drives the contribution request lifecycle. All mutations run the
// access policy first, apply the transition through the store, and only
// then enqueue feed emissions; a feed failure never rolls back a
// transition.
type Engine struct {
	store  store.Driver
	feed   *feed.Emitter
	policy Policy
	log    *slog.Logger
	cfg    Config
}

// NewEngine creates a workflow engine. The emitter may be nil, in which
// case transitions produce no notifications or activity entries.
func NewEngine(st store.Driver, emitter *feed.Emitter, log *slog.Logger, cfg Config) *Engine {
	return &Engine{
		store: st,
		feed:  emitter,
		log:   logutil.NoopIfNil(log),
		cfg:   cfg,
	}
}

// ContributionGroups is the grouped listing of a user's requests.
// Withdrawn requests are deleted on withdrawal, so that bucket reports
// only rows that still exist and is always empty; it is kept in the
// response shape for API stability. The withdrawal itself remains visible
// on the activity timeline.
type ContributionGroups struct {
	Pending   []*store.ContributionRequest `json:"pending"`
	Accepted  []*store.ContributionRequest `json:"accepted"`
	Rejected  []*store.ContributionRequest `json:"rejected"`
	Withdrawn []*store.ContributionRequest `json:"withdrawn"`
}

// RequestContribution creates a candidate-initiated pending request.
func (e *Engine) RequestContribution(ctx context.Context, ideaID, actorID, message string, skills []string) (*store.ContributionRequest, error) {
	idea, err := e.store.GetIdea(ctx, ideaID)
	if err != nil {
		return nil, mapStoreErr(err)
	}
	if err := e.policy.CanRequestContribution(idea, actorID); err != nil {
		return nil, err
	}
	message = strings.TrimSpace(message)
	if message == "" {
		return nil, fmt.Errorf("%w: message is required", ErrValidation)
	}

	accepted, err := e.store.HasRequestWithStatus(ctx, ideaID, actorID, store.RequestStatusAccepted)
	if err != nil {
		return nil, fmt.Errorf("checking contributor status: %w", err)
	}
	if accepted {
		return nil, fmt.Errorf("%w: already a contributor on this idea", ErrDuplicateRequest)
	}

	req := &store.ContributionRequest{
		IdeaID:           ideaID,
		UserID:           actorID,
		Message:          message,
		Skills:           skills,
		Status:           store.RequestStatusPending,
		InitiatedByOwner: false,
		CreatedAt:        time.Now().Unix(),
	}
	if err := e.store.CreateRequest(ctx, req); err != nil {
		return nil, mapStoreErr(err)
	}

	ev := feed.Event{
		Activity: &store.Activity{
			Type:        feed.ActivityContributionRequested,
			Description: "requested to contribute to " + idea.Title,
			UserID:      actorID,
			IdeaID:      ideaID,
			Metadata:    map[string]string{"request_id": req.ID, "idea_title": idea.Title},
		},
	}
	if e.cfg.NotifyOwnerOnRequest {
		ev.Notification = &store.Notification{
			UserID:   idea.AuthorID,
			Type:     feed.TypeContributionRequest,
			Title:    "New contribution request",
			Message:  "Someone asked to contribute to " + idea.Title,
			Metadata: map[string]string{"request_id": req.ID, "idea_id": ideaID},
		}
	}
	e.emit(ev)

	return req, nil
}

// InviteContribution creates an owner-initiated pending invitation for a
// candidate. Invitations must name the skills the owner is recruiting for.
func (e *Engine) InviteContribution(ctx context.Context, ideaID, actorID, candidateID, message string, requiredSkills []string) (*store.ContributionRequest, error) {
	idea, err := e.store.GetIdea(ctx, ideaID)
	if err != nil {
		return nil, mapStoreErr(err)
	}
	if err := e.policy.CanInvite(idea, actorID, candidateID); err != nil {
		return nil, err
	}
	if len(requiredSkills) == 0 {
		return nil, fmt.Errorf("%w: an invitation must name at least one required skill", ErrValidation)
	}
	message = strings.TrimSpace(message)
	if message == "" {
		return nil, fmt.Errorf("%w: message is required", ErrValidation)
	}

	accepted, err := e.store.HasRequestWithStatus(ctx, ideaID, candidateID, store.RequestStatusAccepted)
	if err != nil {
		return nil, fmt.Errorf("checking contributor status: %w", err)
	}
	if accepted {
		return nil, fmt.Errorf("%w: candidate is already a contributor on this idea", ErrDuplicateRequest)
	}

	req := &store.ContributionRequest{
		IdeaID:           ideaID,
		UserID:           candidateID,
		Message:          message,
		Skills:           requiredSkills,
		Status:           store.RequestStatusPending,
		InitiatedByOwner: true,
		CreatedAt:        time.Now().Unix(),
	}
	if err := e.store.CreateRequest(ctx, req); err != nil {
		return nil, mapStoreErr(err)
	}

	e.emit(feed.Event{
		Notification: &store.Notification{
			UserID:   candidateID,
			Type:     feed.TypeContributionInvitation,
			Title:    "Invitation to contribute",
			Message:  "You were invited to contribute to " + idea.Title,
			Metadata: map[string]string{"request_id": req.ID, "idea_id": ideaID},
		},
		Activity: &store.Activity{
			Type:        feed.ActivityContributionInvited,
			Description: "invited a collaborator to " + idea.Title,
			UserID:      actorID,
			IdeaID:      ideaID,
			Metadata:    map[string]string{"request_id": req.ID, "candidate_id": candidateID},
		},
	})

	return req, nil
}

// RespondToInvite resolves a pending invitation to accepted or rejected.
// The status precondition lives in the store update, so of two concurrent
// responders exactly one wins and the other gets ErrConflict.
func (e *Engine) RespondToInvite(ctx context.Context, requestID, actorID string, decision store.RequestStatus) (*store.ContributionRequest, error) {
	if !store.IsValidDecision(decision) {
		return nil, fmt.Errorf("%w: decision must be accepted or rejected", ErrValidation)
	}

	req, err := e.store.GetRequest(ctx, requestID)
	if err != nil {
		return nil, mapStoreErr(err)
	}
	if err := e.policy.CanRespond(req, actorID); err != nil {
		return nil, err
	}

	respondedAt := time.Now().Unix()
	if err := e.store.ResolveRequest(ctx, requestID, decision, respondedAt); err != nil {
		return nil, mapStoreErr(err)
	}
	req.Status = decision
	req.RespondedAt = respondedAt

	ideaTitle := req.IdeaID
	var ownerID string
	if idea, err := e.store.GetIdea(ctx, req.IdeaID); err == nil {
		ideaTitle = idea.Title
		ownerID = idea.AuthorID
	}

	activityType := feed.ActivityContributionAccepted
	verb := "accepted"
	if decision == store.RequestStatusRejected {
		activityType = feed.ActivityContributionRejected
		verb = "declined"
	}
	ev := feed.Event{
		Activity: &store.Activity{
			Type:        activityType,
			Description: verb + " an invitation to contribute to " + ideaTitle,
			UserID:      actorID,
			IdeaID:      req.IdeaID,
			Metadata:    map[string]string{"request_id": req.ID},
		},
	}
	if ownerID != "" {
		ev.Notification = &store.Notification{
			UserID:   ownerID,
			Type:     feed.TypeContributionResponse,
			Title:    "Invitation " + verb,
			Message:  "Your invitation for " + ideaTitle + " was " + verb,
			Metadata: map[string]string{"request_id": req.ID, "idea_id": req.IdeaID, "decision": string(decision)},
		}
	}
	e.emit(ev)

	return req, nil
}

// WithdrawRequest deletes the actor's own pending candidate-initiated
// request for the idea. The idea snapshot is taken before the delete so
// the activity entry can reference the title even if the idea changes.
func (e *Engine) WithdrawRequest(ctx context.Context, ideaID, actorID string) error {
	req, err := e.store.GetRequestByIdeaAndUser(ctx, ideaID, actorID)
	if err != nil {
		return mapStoreErr(err)
	}
	if err := e.policy.CanWithdraw(req, actorID); err != nil {
		return err
	}

	ideaTitle := ideaID
	ideaAuthor := ""
	if idea, err := e.store.GetIdea(ctx, ideaID); err == nil {
		ideaTitle = idea.Title
		ideaAuthor = idea.AuthorID
	}

	if err := e.store.DeletePendingRequest(ctx, req.ID); err != nil {
		return mapStoreErr(err)
	}

	e.emit(feed.Event{
		Activity: &store.Activity{
			Type:        feed.ActivityContributionWithdrawn,
			Description: "withdrew a contribution request for " + ideaTitle,
			UserID:      actorID,
			IdeaID:      ideaID,
			Metadata: map[string]string{
				"request_id":  req.ID,
				"idea_title":  ideaTitle,
				"idea_author": ideaAuthor,
			},
		},
	})
	return nil
}

// CancelInvite deletes a pending invitation. Only the idea owner may
// cancel; the candidate is notified.
func (e *Engine) CancelInvite(ctx context.Context, requestID, actorID string) error {
	req, err := e.store.GetRequest(ctx, requestID)
	if err != nil {
		return mapStoreErr(err)
	}
	idea, err := e.store.GetIdea(ctx, req.IdeaID)
	if err != nil {
		return mapStoreErr(err)
	}
	if err := e.policy.CanCancelInvite(idea, req, actorID); err != nil {
		return err
	}

	if err := e.store.DeletePendingRequest(ctx, req.ID); err != nil {
		return mapStoreErr(err)
	}

	e.emit(feed.Event{
		Notification: &store.Notification{
			UserID:   req.UserID,
			Type:     feed.TypeInvitationCancelled,
			Title:    "Invitation cancelled",
			Message:  "The invitation to contribute to " + idea.Title + " was cancelled",
			Metadata: map[string]string{"request_id": req.ID, "idea_id": idea.ID},
		},
		Activity: &store.Activity{
			Type:        feed.ActivityInvitationCancelled,
			Description: "cancelled an invitation for " + idea.Title,
			UserID:      actorID,
			IdeaID:      idea.ID,
			Metadata:    map[string]string{"request_id": req.ID, "candidate_id": req.UserID},
		},
	})
	return nil
}

// ListContributionsForUser returns the actor's requests grouped by status.
func (e *Engine) ListContributionsForUser(ctx context.Context, actorID string) (*ContributionGroups, error) {
	reqs, err := e.store.ListRequestsByUser(ctx, actorID)
	if err != nil {
		return nil, fmt.Errorf("listing requests: %w", err)
	}

	groups := &ContributionGroups{
		Pending:   []*store.ContributionRequest{},
		Accepted:  []*store.ContributionRequest{},
		Rejected:  []*store.ContributionRequest{},
		Withdrawn: []*store.ContributionRequest{},
	}
	for _, r := range reqs {
		switch r.Status {
		case store.RequestStatusPending:
			groups.Pending = append(groups.Pending, r)
		case store.RequestStatusAccepted:
			groups.Accepted = append(groups.Accepted, r)
		case store.RequestStatusRejected:
			groups.Rejected = append(groups.Rejected, r)
		}
	}
	return groups, nil
}

// ListInvitesForIdea returns all requests for an idea. Owner only.
func (e *Engine) ListInvitesForIdea(ctx context.Context, ideaID, actorID string) ([]*store.ContributionRequest, error) {
	idea, err := e.store.GetIdea(ctx, ideaID)
	if err != nil {
		return nil, mapStoreErr(err)
	}
	if err := e.policy.CanViewIdeaRequests(idea, actorID); err != nil {
		return nil, err
	}
	reqs, err := e.store.ListRequestsForIdea(ctx, ideaID)
	if err != nil {
		return nil, fmt.Errorf("listing requests: %w", err)
	}
	return reqs, nil
}

// IsContributor reports whether the user holds an accepted request on the
// idea. The answer is derived from the store on every call; it is never
// cached, so a membership check always reflects the latest transition.
func (e *Engine) IsContributor(ctx context.Context, ideaID, userID string) (bool, error) {
	ok, err := e.store.HasRequestWithStatus(ctx, ideaID, userID, store.RequestStatusAccepted)
	if err != nil {
		return false, fmt.Errorf("checking membership: %w", err)
	}
	return ok, nil
}

func (e *Engine) emit(ev feed.Event) {
	if e.feed == nil {
		return
	}
	e.feed.Enqueue(ev)
}

func mapStoreErr(err error) error {
	switch {
	case errors.Is(err, store.ErrNotFound):
		return ErrNotFound
	case errors.Is(err, store.ErrAlreadyExists):
		return ErrDuplicateRequest
	case errors.Is(err, store.ErrConflict):
		return ErrConflict
	}
	return err
}
