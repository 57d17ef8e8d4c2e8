// Package feed delivers notifications and activity timeline entries.
//
// Workflow transitions enqueue emissions after the core mutation commits;
// a dispatcher goroutine drains the outbox and writes the records through
// the store with exponential-backoff retry. Delivery is best-effort: a
// failed emission is logged and dropped, it never rolls back a transition.
package feed

// Notification types.
const (
	TypeContributionRequest    = "CONTRIBUTION_REQUEST"    // to owner: new candidate request
	TypeContributionInvitation = "CONTRIBUTION_INVITATION" // to candidate: owner invited them
	TypeContributionResponse   = "CONTRIBUTION_RESPONSE"   // to owner: candidate responded
	TypeInvitationCancelled    = "CONTRIBUTION_INVITATION_CANCELLED"
)

// Activity types.
const (
	ActivityContributionRequested = "CONTRIBUTION_REQUESTED"
	ActivityContributionInvited   = "CONTRIBUTION_INVITED"
	ActivityContributionAccepted  = "CONTRIBUTION_ACCEPTED"
	ActivityContributionRejected  = "CONTRIBUTION_REJECTED"
	ActivityContributionWithdrawn = "CONTRIBUTION_WITHDRAWN"
	ActivityInvitationCancelled   = "CONTRIBUTION_INVITATION_CANCELLED"
)
