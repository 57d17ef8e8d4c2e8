package contrib

import (
	"fmt"

	"github.com/ideaforge/ideaforge-go/internal/store"
)

// Policy holds the pure access checks guarding workflow transitions.
// Checks operate on snapshots already loaded by the engine; they never
// touch the store themselves.
type Policy struct{}

// CanViewIdea reports whether the actor may see the idea at all.
// Hidden ideas are indistinguishable from missing ones.
func (Policy) CanViewIdea(idea *store.Idea, actorID string) error {
	if idea.AuthorID == actorID {
		return nil
	}
	if idea.Published && idea.Visibility == store.VisibilityPublic {
		return nil
	}
	return ErrNotFound
}

// CanRequestContribution checks the candidate side of request creation.
// The single-pending rule is enforced by the store on insert; this check
// covers the self-request and visibility rules.
func (p Policy) CanRequestContribution(idea *store.Idea, actorID string) error {
	if err := p.CanViewIdea(idea, actorID); err != nil {
		return err
	}
	if idea.AuthorID == actorID {
		return fmt.Errorf("%w: cannot request to contribute to your own idea", ErrValidation)
	}
	return nil
}

// CanInvite checks the owner side of invitation creation.
func (Policy) CanInvite(idea *store.Idea, actorID, candidateID string) error {
	if idea.AuthorID != actorID {
		return ErrForbidden
	}
	if candidateID == actorID {
		return fmt.Errorf("%w: cannot invite yourself", ErrValidation)
	}
	if candidateID == "" {
		return fmt.Errorf("%w: candidate is required", ErrValidation)
	}
	return nil
}

// CanRespond checks that the actor is the invited candidate and that the
// request is an invitation still open for a decision.
func (Policy) CanRespond(req *store.ContributionRequest, actorID string) error {
	if req.UserID != actorID {
		return ErrForbidden
	}
	if !req.InitiatedByOwner {
		return fmt.Errorf("%w: only owner invitations can be responded to", ErrForbidden)
	}
	if req.Status != store.RequestStatusPending {
		return ErrConflict
	}
	return nil
}

// CanWithdraw checks that the actor owns a pending candidate-initiated
// request.
func (Policy) CanWithdraw(req *store.ContributionRequest, actorID string) error {
	if req.UserID != actorID {
		return ErrForbidden
	}
	if req.InitiatedByOwner {
		return fmt.Errorf("%w: invitations are cancelled by the idea owner, not withdrawn", ErrValidation)
	}
	if req.Status != store.RequestStatusPending {
		return ErrConflict
	}
	return nil
}

// CanCancelInvite checks that the actor authored the idea and the request
// is a pending invitation.
func (Policy) CanCancelInvite(idea *store.Idea, req *store.ContributionRequest, actorID string) error {
	if idea.AuthorID != actorID {
		return ErrForbidden
	}
	if !req.InitiatedByOwner {
		return fmt.Errorf("%w: candidate requests cannot be cancelled by the owner", ErrValidation)
	}
	if req.Status != store.RequestStatusPending {
		return ErrConflict
	}
	return nil
}

// CanViewIdeaRequests restricts the per-idea request listing to the author.
func (Policy) CanViewIdeaRequests(idea *store.Idea, actorID string) error {
	if idea.AuthorID != actorID {
		return ErrForbidden
	}
	return nil
}
