// Package testutil provides shared test helpers for store driver tests.
package testutil

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/ideaforge/ideaforge-go/internal/store"
)

// TestIdea creates a test idea.
func TestIdea() *store.Idea {
	return &store.Idea{
		AuthorID:       "author-1",
		Title:          "Community garden planner",
		Summary:        "Plan plots and watering schedules together",
		RequiredSkills: []string{"go", "sql"},
		Visibility:     store.VisibilityPublic,
		Published:      true,
		CreatedAt:      time.Now().Unix(),
	}
}

// TestProfile creates a test profile with skill rows.
func TestProfile(userID string) *store.Profile {
	return &store.Profile{
		UserID:      userID,
		DisplayName: "Test User",
		Headline:    "builds things",
		Skills: []store.ProfileSkill{
			{UserID: userID, Skill: "go", Level: store.LevelAdvanced},
			{UserID: userID, Skill: "sql", Level: store.LevelIntermediate},
		},
	}
}

// TestRequest creates a test contribution request.
func TestRequest(ideaID, userID string) *store.ContributionRequest {
	return &store.ContributionRequest{
		IdeaID:  ideaID,
		UserID:  userID,
		Message: "I would like to help",
		Skills:  []string{"go"},
	}
}

// RunDriverTests runs the standard conformance suite against a driver.
func RunDriverTests(t *testing.T, driverName string, cfg *store.DriverConfig) {
	ctx := context.Background()

	driver, err := store.New(cfg)
	if err != nil {
		t.Fatalf("failed to create %s driver: %v", driverName, err)
	}
	defer driver.Close()

	if err := driver.Init(ctx); err != nil {
		t.Fatalf("failed to init %s driver: %v", driverName, err)
	}

	if driver.Name() != driverName {
		t.Errorf("expected driver name %q, got %q", driverName, driver.Name())
	}

	t.Run("RequestLifecycle", func(t *testing.T) {
		RequestLifecycle(t, ctx, driver)
	})
	t.Run("PendingUniqueness", func(t *testing.T) {
		PendingUniqueness(t, ctx, driver)
	})
	t.Run("ConcurrentPendingCreation", func(t *testing.T) {
		ConcurrentPendingCreation(t, ctx, driver)
	})
	t.Run("ProfileRoundTrip", func(t *testing.T) {
		ProfileRoundTrip(t, ctx, driver)
	})
	t.Run("IdeaVisibility", func(t *testing.T) {
		IdeaVisibility(t, ctx, driver)
	})
	t.Run("FeedAppendAndRead", func(t *testing.T) {
		FeedAppendAndRead(t, ctx, driver)
	})
}

// RequestLifecycle exercises create, guarded resolve and guarded delete.
func RequestLifecycle(t *testing.T, ctx context.Context, d store.Driver) {
	req := TestRequest("lifecycle-idea", "lifecycle-user")
	if err := d.CreateRequest(ctx, req); err != nil {
		t.Fatalf("CreateRequest failed: %v", err)
	}
	if req.ID == "" {
		t.Fatal("expected generated request ID")
	}

	got, err := d.GetRequest(ctx, req.ID)
	if err != nil {
		t.Fatalf("GetRequest failed: %v", err)
	}
	if got.Status != store.RequestStatusPending {
		t.Errorf("expected pending, got %q", got.Status)
	}
	if len(got.Skills) != 1 || got.Skills[0] != "go" {
		t.Errorf("skills did not round-trip: %v", got.Skills)
	}

	if err := d.ResolveRequest(ctx, req.ID, store.RequestStatusAccepted, 99); err != nil {
		t.Fatalf("ResolveRequest failed: %v", err)
	}
	got, err = d.GetRequest(ctx, req.ID)
	if err != nil {
		t.Fatalf("GetRequest after resolve failed: %v", err)
	}
	if got.Status != store.RequestStatusAccepted || got.RespondedAt != 99 {
		t.Errorf("unexpected resolved request: %+v", got)
	}

	// Terminal rows cannot be resolved again or deleted.
	if err := d.ResolveRequest(ctx, req.ID, store.RequestStatusRejected, 100); !errors.Is(err, store.ErrConflict) {
		t.Errorf("expected ErrConflict on second resolve, got %v", err)
	}
	if err := d.DeletePendingRequest(ctx, req.ID); !errors.Is(err, store.ErrConflict) {
		t.Errorf("expected ErrConflict on delete of accepted, got %v", err)
	}

	// Unknown id is not found, not conflict.
	if err := d.ResolveRequest(ctx, "missing", store.RequestStatusAccepted, 1); !errors.Is(err, store.ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}

	// A pending request can be deleted, and then it is gone.
	pending := TestRequest("lifecycle-idea", "withdrawing-user")
	if err := d.CreateRequest(ctx, pending); err != nil {
		t.Fatalf("CreateRequest failed: %v", err)
	}
	if err := d.DeletePendingRequest(ctx, pending.ID); err != nil {
		t.Fatalf("DeletePendingRequest failed: %v", err)
	}
	if _, err := d.GetRequest(ctx, pending.ID); !errors.Is(err, store.ErrNotFound) {
		t.Errorf("expected ErrNotFound after delete, got %v", err)
	}
}

// PendingUniqueness verifies the single-pending invariant and that
// resolution frees the slot.
func PendingUniqueness(t *testing.T, ctx context.Context, d store.Driver) {
	first := TestRequest("unique-idea", "unique-user")
	if err := d.CreateRequest(ctx, first); err != nil {
		t.Fatalf("CreateRequest failed: %v", err)
	}

	dup := TestRequest("unique-idea", "unique-user")
	if err := d.CreateRequest(ctx, dup); !errors.Is(err, store.ErrAlreadyExists) {
		t.Fatalf("expected ErrAlreadyExists for duplicate pending, got %v", err)
	}

	if err := d.ResolveRequest(ctx, first.ID, store.RequestStatusRejected, 1); err != nil {
		t.Fatalf("ResolveRequest failed: %v", err)
	}

	again := TestRequest("unique-idea", "unique-user")
	if err := d.CreateRequest(ctx, again); err != nil {
		t.Fatalf("CreateRequest after rejection failed: %v", err)
	}

	// Lookup prefers the new pending over the old rejected.
	got, err := d.GetRequestByIdeaAndUser(ctx, "unique-idea", "unique-user")
	if err != nil {
		t.Fatalf("GetRequestByIdeaAndUser failed: %v", err)
	}
	if got.ID != again.ID {
		t.Errorf("expected pending request %s, got %s", again.ID, got.ID)
	}

	ok, err := d.HasRequestWithStatus(ctx, "unique-idea", "unique-user", store.RequestStatusRejected)
	if err != nil || !ok {
		t.Errorf("expected rejected row to remain, got ok=%v err=%v", ok, err)
	}
}

// ConcurrentPendingCreation races CreateRequest calls for the same
// (idea, user) pair. The driver must let exactly one insert through and
// surface the rest as ErrAlreadyExists.
func ConcurrentPendingCreation(t *testing.T, ctx context.Context, d store.Driver) {
	const racers = 8

	var wg sync.WaitGroup
	errs := make([]error, racers)
	start := make(chan struct{})
	for i := 0; i < racers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			<-start
			errs[i] = d.CreateRequest(ctx, TestRequest("race-idea", "race-user"))
		}(i)
	}
	close(start)
	wg.Wait()

	var created, conflicted int
	for i, err := range errs {
		switch {
		case err == nil:
			created++
		case errors.Is(err, store.ErrAlreadyExists):
			conflicted++
		default:
			t.Fatalf("racer %d: unexpected error: %v", i, err)
		}
	}
	if created != 1 || conflicted != racers-1 {
		t.Fatalf("expected 1 insert and %d conflicts, got %d and %d",
			racers-1, created, conflicted)
	}

	reqs, err := d.ListRequestsForIdea(ctx, "race-idea")
	if err != nil {
		t.Fatalf("ListRequestsForIdea failed: %v", err)
	}
	var pending int
	for _, r := range reqs {
		if r.UserID == "race-user" && r.Status == store.RequestStatusPending {
			pending++
		}
	}
	if pending != 1 {
		t.Fatalf("expected exactly one pending row after the race, got %d", pending)
	}
}

// ProfileRoundTrip verifies upsert semantics and skill-based lookup.
func ProfileRoundTrip(t *testing.T, ctx context.Context, d store.Driver) {
	p := TestProfile("profile-user")
	if err := d.UpsertProfile(ctx, p); err != nil {
		t.Fatalf("UpsertProfile failed: %v", err)
	}

	got, err := d.GetProfile(ctx, "profile-user")
	if err != nil {
		t.Fatalf("GetProfile failed: %v", err)
	}
	if len(got.Skills) != 2 {
		t.Fatalf("expected 2 skills, got %d", len(got.Skills))
	}

	// Replace skills on upsert.
	p.Skills = []store.ProfileSkill{{UserID: "profile-user", Skill: "design", Level: store.LevelExpert}}
	if err := d.UpsertProfile(ctx, p); err != nil {
		t.Fatalf("second UpsertProfile failed: %v", err)
	}
	got, err = d.GetProfile(ctx, "profile-user")
	if err != nil {
		t.Fatalf("GetProfile failed: %v", err)
	}
	if len(got.Skills) != 1 || got.Skills[0].Skill != "design" {
		t.Errorf("skills not replaced: %+v", got.Skills)
	}

	matches, err := d.ListProfilesBySkills(ctx, []string{"design"})
	if err != nil {
		t.Fatalf("ListProfilesBySkills failed: %v", err)
	}
	found := false
	for _, m := range matches {
		if m.UserID == "profile-user" {
			found = true
		}
	}
	if !found {
		t.Error("expected profile-user in skill lookup")
	}

	if _, err := d.GetProfile(ctx, "no-such-user"); !errors.Is(err, store.ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

// IdeaVisibility verifies the public listing filter and skill rows.
func IdeaVisibility(t *testing.T, ctx context.Context, d store.Driver) {
	public := TestIdea()
	if err := d.CreateIdea(ctx, public); err != nil {
		t.Fatalf("CreateIdea failed: %v", err)
	}

	draft := TestIdea()
	draft.ID = ""
	draft.Title = "Unlisted draft"
	draft.Published = false
	if err := d.CreateIdea(ctx, draft); err != nil {
		t.Fatalf("CreateIdea failed: %v", err)
	}

	got, err := d.GetIdea(ctx, public.ID)
	if err != nil {
		t.Fatalf("GetIdea failed: %v", err)
	}
	if len(got.RequiredSkills) != 2 {
		t.Errorf("required skills did not round-trip: %v", got.RequiredSkills)
	}

	list, err := d.ListPublicIdeas(ctx)
	if err != nil {
		t.Fatalf("ListPublicIdeas failed: %v", err)
	}
	for _, i := range list {
		if i.ID == draft.ID {
			t.Error("draft leaked into public listing")
		}
	}

	got.Published = false
	if err := d.UpdateIdea(ctx, got); err != nil {
		t.Fatalf("UpdateIdea failed: %v", err)
	}
	updated, err := d.GetIdea(ctx, public.ID)
	if err != nil {
		t.Fatalf("GetIdea after update failed: %v", err)
	}
	if updated.Published {
		t.Error("update did not persist")
	}
}

// FeedAppendAndRead verifies notification and activity append semantics.
func FeedAppendAndRead(t *testing.T, ctx context.Context, d store.Driver) {
	n := &store.Notification{
		UserID:   "feed-user",
		Type:     "CONTRIBUTION_REQUEST",
		Title:    "New contribution request",
		Metadata: map[string]string{"idea_id": "feed-idea"},
	}
	if err := d.AppendNotification(ctx, n); err != nil {
		t.Fatalf("AppendNotification failed: %v", err)
	}

	if err := d.MarkNotificationRead(ctx, n.ID, "someone-else", 5); !errors.Is(err, store.ErrNotFound) {
		t.Errorf("expected ErrNotFound for foreign read receipt, got %v", err)
	}
	if err := d.MarkNotificationRead(ctx, n.ID, "feed-user", 5); err != nil {
		t.Fatalf("MarkNotificationRead failed: %v", err)
	}

	list, err := d.ListNotificationsForUser(ctx, "feed-user")
	if err != nil {
		t.Fatalf("ListNotificationsForUser failed: %v", err)
	}
	if len(list) != 1 || list[0].ReadAt != 5 || list[0].Metadata["idea_id"] != "feed-idea" {
		t.Fatalf("unexpected notifications: %+v", list)
	}

	a := &store.Activity{
		Type:        "CONTRIBUTION_REQUESTED",
		Description: "requested to contribute",
		UserID:      "feed-user",
		IdeaID:      "feed-idea",
	}
	if err := d.AppendActivity(ctx, a); err != nil {
		t.Fatalf("AppendActivity failed: %v", err)
	}

	byUser, err := d.ListActivitiesForUser(ctx, "feed-user")
	if err != nil {
		t.Fatalf("ListActivitiesForUser failed: %v", err)
	}
	byIdea, err := d.ListActivitiesForIdea(ctx, "feed-idea")
	if err != nil {
		t.Fatalf("ListActivitiesForIdea failed: %v", err)
	}
	if len(byUser) != 1 || len(byIdea) != 1 {
		t.Fatalf("expected activity in both views, got %d/%d", len(byUser), len(byIdea))
	}
}
