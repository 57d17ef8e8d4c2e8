// Package contrib implements the contribution request lifecycle: the
// state machine for candidate requests and owner invitations, the access
// policy guarding every transition, and the derived contributor predicate.
package contrib

import "errors"

// Sentinel domain errors. Handlers map these to HTTP statuses; everything
// else surfaces as an internal error.
var (
	// ErrForbidden means the actor is authenticated but not allowed to
	// perform the operation on this resource.
	ErrForbidden = errors.New("operation not allowed for this user")

	// ErrNotFound means the referenced idea or request does not exist,
	// or is hidden from the actor.
	ErrNotFound = errors.New("resource not found")

	// ErrValidation means the input violates a domain rule.
	ErrValidation = errors.New("validation failed")

	// ErrDuplicateRequest means a pending request already exists between
	// the user and the idea.
	ErrDuplicateRequest = errors.New("a pending request already exists for this idea and user")

	// ErrConflict means the request reached a terminal state before the
	// operation could apply (lost race).
	ErrConflict = errors.New("request already resolved")
)
