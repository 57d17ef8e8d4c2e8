// Package sqlite implements a SQLite-based persistence driver using GORM.
package sqlite

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/ideaforge/ideaforge-go/internal/store"
)

func init() {
	store.Register("sqlite", NewDriver)
}

// Driver implements the store.Driver interface using SQLite via GORM.
type Driver struct {
	dataDir string
	db      *gorm.DB
}

// NewDriver creates a new SQLite driver instance.
func NewDriver(cfg *store.DriverConfig) (store.Driver, error) {
	if cfg.DataDir == "" {
		return nil, fmt.Errorf("data_dir is required for sqlite driver")
	}

	return &Driver{
		dataDir: cfg.DataDir,
	}, nil
}

// Name returns the driver name.
func (d *Driver) Name() string {
	return "sqlite"
}

// Init initializes the SQLite database and runs AutoMigrate.
func (d *Driver) Init(ctx context.Context) error {
	dbPath := filepath.Join(d.dataDir, "ideaforge.db")

	// Concurrent writers wait on the lock instead of failing with
	// SQLITE_BUSY, so constraint conflicts come back as such.
	db, err := gorm.Open(sqlite.Open(dbPath+"?_busy_timeout=5000"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}

	d.db = db

	// AutoMigrate creates/updates tables based on model structs
	if err := db.AutoMigrate(
		&store.Profile{},
		&store.ProfileSkill{},
		&store.Idea{},
		&store.IdeaSkill{},
		&store.ContributionRequest{},
		&store.Notification{},
		&store.Activity{},
	); err != nil {
		return fmt.Errorf("failed to migrate database: %w", err)
	}

	return nil
}

// Close closes the database connection.
func (d *Driver) Close() error {
	if d.db == nil {
		return nil
	}
	sqlDB, err := d.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// isUniqueViolation reports whether err is a SQLite unique-index failure.
// The go-sqlite3 driver surfaces these as plain errors, so match on the
// message the way gorm's sqlite translator does.
func isUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	return strings.Contains(err.Error(), "UNIQUE constraint failed")
}

// ProfileStore implementation

// UpsertProfile creates or replaces a profile and its skill rows.
func (d *Driver) UpsertProfile(ctx context.Context, profile *store.Profile) error {
	return d.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		now := time.Now().Unix()

		var existing store.Profile
		result := tx.First(&existing, "user_id = ?", profile.UserID)
		switch {
		case result.Error == nil:
			profile.CreatedAt = existing.CreatedAt
		case errors.Is(result.Error, gorm.ErrRecordNotFound):
			profile.CreatedAt = now
		default:
			return result.Error
		}
		profile.UpdatedAt = now

		if err := tx.Save(profile).Error; err != nil {
			return err
		}

		// Skill rows are replaced wholesale on every upsert.
		if err := tx.Delete(&store.ProfileSkill{}, "user_id = ?", profile.UserID).Error; err != nil {
			return err
		}
		for i := range profile.Skills {
			profile.Skills[i].UserID = profile.UserID
			if err := tx.Create(&profile.Skills[i]).Error; err != nil {
				return err
			}
		}
		return nil
	})
}

// GetProfile retrieves a profile with its skill rows.
func (d *Driver) GetProfile(ctx context.Context, userID string) (*store.Profile, error) {
	var profile store.Profile
	result := d.db.WithContext(ctx).First(&profile, "user_id = ?", userID)
	if result.Error != nil {
		if errors.Is(result.Error, gorm.ErrRecordNotFound) {
			return nil, store.ErrNotFound
		}
		return nil, result.Error
	}
	if err := d.loadProfileSkills(ctx, &profile); err != nil {
		return nil, err
	}
	return &profile, nil
}

// ListProfilesBySkills returns profiles having at least one of the given
// skills, in creation order.
func (d *Driver) ListProfilesBySkills(ctx context.Context, skills []string) ([]*store.Profile, error) {
	if len(skills) == 0 {
		return nil, nil
	}

	var userIDs []string
	result := d.db.WithContext(ctx).
		Model(&store.ProfileSkill{}).
		Distinct("user_id").
		Where("skill IN ?", skills).
		Pluck("user_id", &userIDs)
	if result.Error != nil {
		return nil, result.Error
	}
	if len(userIDs) == 0 {
		return nil, nil
	}

	var profiles []*store.Profile
	result = d.db.WithContext(ctx).
		Where("user_id IN ?", userIDs).
		Order("created_at, user_id").
		Find(&profiles)
	if result.Error != nil {
		return nil, result.Error
	}
	for _, p := range profiles {
		if err := d.loadProfileSkills(ctx, p); err != nil {
			return nil, err
		}
	}
	return profiles, nil
}

func (d *Driver) loadProfileSkills(ctx context.Context, profile *store.Profile) error {
	var rows []store.ProfileSkill
	result := d.db.WithContext(ctx).
		Where("user_id = ?", profile.UserID).
		Order("skill").
		Find(&rows)
	if result.Error != nil {
		return result.Error
	}
	profile.Skills = rows
	return nil
}

// IdeaStore implementation

// CreateIdea creates an idea and its required-skill rows.
func (d *Driver) CreateIdea(ctx context.Context, idea *store.Idea) error {
	if idea.ID == "" {
		idea.ID = uuid.New().String()
	}
	if idea.CreatedAt == 0 {
		idea.CreatedAt = time.Now().Unix()
	}
	idea.UpdatedAt = idea.CreatedAt

	return d.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(idea).Error; err != nil {
			if isUniqueViolation(err) {
				return store.ErrAlreadyExists
			}
			return err
		}
		return saveIdeaSkills(tx, idea)
	})
}

// GetIdea retrieves an idea with its required-skill rows.
func (d *Driver) GetIdea(ctx context.Context, id string) (*store.Idea, error) {
	var idea store.Idea
	result := d.db.WithContext(ctx).First(&idea, "id = ?", id)
	if result.Error != nil {
		if errors.Is(result.Error, gorm.ErrRecordNotFound) {
			return nil, store.ErrNotFound
		}
		return nil, result.Error
	}
	if err := d.loadIdeaSkills(ctx, &idea); err != nil {
		return nil, err
	}
	return &idea, nil
}

// UpdateIdea updates an existing idea and replaces its skill rows.
func (d *Driver) UpdateIdea(ctx context.Context, idea *store.Idea) error {
	return d.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var existing store.Idea
		result := tx.First(&existing, "id = ?", idea.ID)
		if result.Error != nil {
			if errors.Is(result.Error, gorm.ErrRecordNotFound) {
				return store.ErrNotFound
			}
			return result.Error
		}

		idea.CreatedAt = existing.CreatedAt
		idea.UpdatedAt = time.Now().Unix()
		if err := tx.Save(idea).Error; err != nil {
			return err
		}
		return saveIdeaSkills(tx, idea)
	})
}

// ListPublicIdeas returns published public ideas in creation order.
func (d *Driver) ListPublicIdeas(ctx context.Context) ([]*store.Idea, error) {
	var ideas []*store.Idea
	result := d.db.WithContext(ctx).
		Where("published = ? AND visibility = ?", true, store.VisibilityPublic).
		Order("created_at, id").
		Find(&ideas)
	if result.Error != nil {
		return nil, result.Error
	}
	for _, idea := range ideas {
		if err := d.loadIdeaSkills(ctx, idea); err != nil {
			return nil, err
		}
	}
	return ideas, nil
}

// ListIdeasByAuthor returns all ideas of an author in creation order.
func (d *Driver) ListIdeasByAuthor(ctx context.Context, authorID string) ([]*store.Idea, error) {
	var ideas []*store.Idea
	result := d.db.WithContext(ctx).
		Where("author_id = ?", authorID).
		Order("created_at, id").
		Find(&ideas)
	if result.Error != nil {
		return nil, result.Error
	}
	for _, idea := range ideas {
		if err := d.loadIdeaSkills(ctx, idea); err != nil {
			return nil, err
		}
	}
	return ideas, nil
}

func saveIdeaSkills(tx *gorm.DB, idea *store.Idea) error {
	if err := tx.Delete(&store.IdeaSkill{}, "idea_id = ?", idea.ID).Error; err != nil {
		return err
	}
	for _, skill := range idea.RequiredSkills {
		row := store.IdeaSkill{IdeaID: idea.ID, Skill: skill}
		if err := tx.Create(&row).Error; err != nil {
			return err
		}
	}
	return nil
}

func (d *Driver) loadIdeaSkills(ctx context.Context, idea *store.Idea) error {
	var rows []store.IdeaSkill
	result := d.db.WithContext(ctx).
		Where("idea_id = ?", idea.ID).
		Order("skill").
		Find(&rows)
	if result.Error != nil {
		return result.Error
	}
	skills := make([]string, 0, len(rows))
	for _, r := range rows {
		skills = append(skills, r.Skill)
	}
	idea.RequiredSkills = skills
	return nil
}

// RequestStore implementation

// CreateRequest creates a contribution request. The partial unique index
// on (idea_id, user_id) where status = 'pending' enforces the
// single-pending invariant at the database level.
func (d *Driver) CreateRequest(ctx context.Context, req *store.ContributionRequest) error {
	if req.ID == "" {
		req.ID = uuid.New().String()
	}
	if req.CreatedAt == 0 {
		req.CreatedAt = time.Now().Unix()
	}
	if req.Status == "" {
		req.Status = store.RequestStatusPending
	}

	result := d.db.WithContext(ctx).Create(req)
	if result.Error != nil {
		if isUniqueViolation(result.Error) {
			return store.ErrAlreadyExists
		}
		return result.Error
	}
	return nil
}

// GetRequest retrieves a contribution request by id.
func (d *Driver) GetRequest(ctx context.Context, id string) (*store.ContributionRequest, error) {
	var req store.ContributionRequest
	result := d.db.WithContext(ctx).First(&req, "id = ?", id)
	if result.Error != nil {
		if errors.Is(result.Error, gorm.ErrRecordNotFound) {
			return nil, store.ErrNotFound
		}
		return nil, result.Error
	}
	return &req, nil
}

// GetRequestByIdeaAndUser retrieves the live request between an idea and
// a user: the pending one if any, otherwise the accepted one.
func (d *Driver) GetRequestByIdeaAndUser(ctx context.Context, ideaID, userID string) (*store.ContributionRequest, error) {
	var req store.ContributionRequest
	result := d.db.WithContext(ctx).
		Where("idea_id = ? AND user_id = ? AND status IN ?",
			ideaID, userID,
			[]store.RequestStatus{store.RequestStatusPending, store.RequestStatusAccepted}).
		Order("CASE status WHEN 'pending' THEN 0 ELSE 1 END").
		First(&req)
	if result.Error != nil {
		if errors.Is(result.Error, gorm.ErrRecordNotFound) {
			return nil, store.ErrNotFound
		}
		return nil, result.Error
	}
	return &req, nil
}

// ResolveRequest moves a pending request to a terminal status. The
// status precondition rides in the WHERE clause so concurrent responders
// cannot both win.
func (d *Driver) ResolveRequest(ctx context.Context, id string, status store.RequestStatus, respondedAt int64) error {
	result := d.db.WithContext(ctx).
		Model(&store.ContributionRequest{}).
		Where("id = ? AND status = ?", id, store.RequestStatusPending).
		Updates(map[string]interface{}{
			"status":       status,
			"responded_at": respondedAt,
		})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		// Distinguish a missing row from a lost race.
		if _, err := d.GetRequest(ctx, id); err != nil {
			return err
		}
		return store.ErrConflict
	}
	return nil
}

// DeletePendingRequest removes a request that is still pending.
func (d *Driver) DeletePendingRequest(ctx context.Context, id string) error {
	result := d.db.WithContext(ctx).
		Delete(&store.ContributionRequest{}, "id = ? AND status = ?", id, store.RequestStatusPending)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		if _, err := d.GetRequest(ctx, id); err != nil {
			return err
		}
		return store.ErrConflict
	}
	return nil
}

// ListRequestsForIdea returns all requests for an idea in creation order.
func (d *Driver) ListRequestsForIdea(ctx context.Context, ideaID string) ([]*store.ContributionRequest, error) {
	var reqs []*store.ContributionRequest
	result := d.db.WithContext(ctx).
		Where("idea_id = ?", ideaID).
		Order("created_at, id").
		Find(&reqs)
	if result.Error != nil {
		return nil, result.Error
	}
	return reqs, nil
}

// ListRequestsByUser returns all requests of a user in creation order.
func (d *Driver) ListRequestsByUser(ctx context.Context, userID string) ([]*store.ContributionRequest, error) {
	var reqs []*store.ContributionRequest
	result := d.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("created_at, id").
		Find(&reqs)
	if result.Error != nil {
		return nil, result.Error
	}
	return reqs, nil
}

// HasRequestWithStatus reports whether any request between the idea and
// the user has one of the given statuses.
func (d *Driver) HasRequestWithStatus(ctx context.Context, ideaID, userID string, statuses ...store.RequestStatus) (bool, error) {
	if len(statuses) == 0 {
		return false, nil
	}
	var count int64
	result := d.db.WithContext(ctx).
		Model(&store.ContributionRequest{}).
		Where("idea_id = ? AND user_id = ? AND status IN ?", ideaID, userID, statuses).
		Count(&count)
	if result.Error != nil {
		return false, result.Error
	}
	return count > 0, nil
}

// FeedStore implementation

// AppendNotification appends a notification row.
func (d *Driver) AppendNotification(ctx context.Context, n *store.Notification) error {
	if n.ID == "" {
		n.ID = uuid.New().String()
	}
	if n.CreatedAt == 0 {
		n.CreatedAt = time.Now().Unix()
	}
	return d.db.WithContext(ctx).Create(n).Error
}

// ListNotificationsForUser returns a user's notifications in creation order.
func (d *Driver) ListNotificationsForUser(ctx context.Context, userID string) ([]*store.Notification, error) {
	var list []*store.Notification
	result := d.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("created_at, id").
		Find(&list)
	if result.Error != nil {
		return nil, result.Error
	}
	return list, nil
}

// MarkNotificationRead stamps the read receipt. The recipient check rides
// in the WHERE clause so users cannot mark each other's notifications.
func (d *Driver) MarkNotificationRead(ctx context.Context, id, userID string, readAt int64) error {
	result := d.db.WithContext(ctx).
		Model(&store.Notification{}).
		Where("id = ? AND user_id = ?", id, userID).
		Update("read_at", readAt)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return store.ErrNotFound
	}
	return nil
}

// AppendActivity appends an activity row.
func (d *Driver) AppendActivity(ctx context.Context, a *store.Activity) error {
	if a.ID == "" {
		a.ID = uuid.New().String()
	}
	if a.CreatedAt == 0 {
		a.CreatedAt = time.Now().Unix()
	}
	return d.db.WithContext(ctx).Create(a).Error
}

// ListActivitiesForUser returns a user's activities in creation order.
func (d *Driver) ListActivitiesForUser(ctx context.Context, userID string) ([]*store.Activity, error) {
	var list []*store.Activity
	result := d.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("created_at, id").
		Find(&list)
	if result.Error != nil {
		return nil, result.Error
	}
	return list, nil
}

// ListActivitiesForIdea returns an idea's activities in creation order.
func (d *Driver) ListActivitiesForIdea(ctx context.Context, ideaID string) ([]*store.Activity, error) {
	var list []*store.Activity
	result := d.db.WithContext(ctx).
		Where("idea_id = ?", ideaID).
		Order("created_at, id").
		Find(&list)
	if result.Error != nil {
		return nil, result.Error
	}
	return list, nil
}

// Compile-time interface check
var _ store.Driver = (*Driver)(nil)
