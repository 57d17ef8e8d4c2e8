package store

// RequestStatus represents the lifecycle status of a contribution request.
type RequestStatus string

const (
	RequestStatusPending  RequestStatus = "pending"
	RequestStatusAccepted RequestStatus = "accepted"
	RequestStatusRejected RequestStatus = "rejected"
)

// IsTerminal reports whether the status permits no further transition.
func (s RequestStatus) IsTerminal() bool {
	return s == RequestStatusAccepted || s == RequestStatusRejected
}

// IsValidDecision reports whether the status is a legal respond decision.
func IsValidDecision(s RequestStatus) bool {
	return s == RequestStatusAccepted || s == RequestStatusRejected
}

// Proficiency levels for profile skills.
const (
	LevelBeginner     = "beginner"
	LevelIntermediate = "intermediate"
	LevelAdvanced     = "advanced"
	LevelExpert       = "expert"
)

// Idea visibility values.
const (
	VisibilityPublic  = "public"
	VisibilityPrivate = "private"
)

// ContributionRequest records a candidate's ask to join an idea, or an
// owner's invitation to a candidate. Created pending; resolved to
// accepted/rejected by an explicit response; deleted on withdrawal or
// invite cancellation while still pending. Terminal rows are retained.
type ContributionRequest struct {
	ID               string        `json:"id" gorm:"primaryKey"`
	IdeaID           string        `json:"idea_id" gorm:"index;uniqueIndex:uniq_pending_request,where:status = 'pending'"`
	UserID           string        `json:"user_id" gorm:"index;uniqueIndex:uniq_pending_request,where:status = 'pending'"`
	Message          string        `json:"message"`
	Skills           []string      `json:"skills" gorm:"serializer:json"`
	Status           RequestStatus `json:"status" gorm:"index"`
	InitiatedByOwner bool          `json:"initiated_by_owner"`
	CreatedAt        int64         `json:"created_at"`
	// RespondedAt is a unix timestamp, zero until an explicit response
	// resolves the request. Withdrawal and cancellation delete the row
	// instead, so they never set it.
	RespondedAt int64 `json:"responded_at,omitempty"`
}

// Idea is a published proposal a user can recruit contributors for.
type Idea struct {
	ID             string   `json:"id" gorm:"primaryKey"`
	AuthorID       string   `json:"author_id" gorm:"index"`
	Title          string   `json:"title"`
	Summary        string   `json:"summary"`
	RequiredSkills []string `json:"required_skills" gorm:"-"` // idea_skills rows in sql drivers
	Visibility     string   `json:"visibility"`               // public, private
	Published      bool     `json:"published"`
	CreatedAt      int64    `json:"created_at"`
	UpdatedAt      int64    `json:"updated_at"`
}

// IdeaSkill is a required-skill row for an idea.
type IdeaSkill struct {
	IdeaID string `json:"idea_id" gorm:"primaryKey"`
	Skill  string `json:"skill" gorm:"primaryKey;index"`
}

// Profile is the matching-relevant projection of a user.
type Profile struct {
	UserID      string         `json:"user_id" gorm:"primaryKey"`
	DisplayName string         `json:"display_name"`
	Headline    string         `json:"headline"`
	Skills      []ProfileSkill `json:"skills" gorm:"-"` // profile_skills rows in sql drivers
	CreatedAt   int64          `json:"created_at"`
	UpdatedAt   int64          `json:"updated_at"`
}

// ProfileSkill is a skill row for a profile, with a proficiency level.
type ProfileSkill struct {
	UserID string `json:"user_id" gorm:"primaryKey"`
	Skill  string `json:"skill" gorm:"primaryKey;index"`
	Level  string `json:"level"` // beginner, intermediate, advanced, expert
}

// Notification is a recipient-targeted message describing an event that
// requires the recipient's attention. Append-only apart from ReadAt.
type Notification struct {
	ID        string            `json:"id" gorm:"primaryKey"`
	UserID    string            `json:"user_id" gorm:"index"`
	Type      string            `json:"type"`
	Title     string            `json:"title"`
	Message   string            `json:"message"`
	Metadata  map[string]string `json:"metadata,omitempty" gorm:"serializer:json"`
	CreatedAt int64             `json:"created_at"`
	ReadAt    int64             `json:"read_at,omitempty"`
}

// Activity is an append-only timeline entry describing an action for
// feed display.
type Activity struct {
	ID          string            `json:"id" gorm:"primaryKey"`
	Type        string            `json:"type"`
	Description string            `json:"description"`
	UserID      string            `json:"user_id" gorm:"index"`
	IdeaID      string            `json:"idea_id" gorm:"index"`
	Metadata    map[string]string `json:"metadata,omitempty" gorm:"serializer:json"`
	CreatedAt   int64             `json:"created_at"`
}
