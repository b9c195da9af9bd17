package sqlite

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"padisave.org/internal/circle"
	"padisave.org/internal/rotation"
	"padisave.org/internal/user"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	store, err := New(filepath.Join(t.TempDir(), "padisave.db"))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	return store
}

func seedUser(t *testing.T, store *Store, id, email string) {
	t.Helper()
	err := store.CreateUser(context.Background(), &user.User{
		ID:           id,
		FullName:     "Test User",
		Email:        email,
		PasswordHash: "x",
		TrustScore:   450,
		CreatedAt:    time.Now(),
	})
	if err != nil {
		t.Fatalf("CreateUser: %v", err)
	}
}

func TestUsers(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	seedUser(t, store, "u1", "ada@example.com")

	t.Run("duplicate email rejected", func(t *testing.T) {
		err := store.CreateUser(ctx, &user.User{
			ID: "u2", FullName: "Other", Email: "ada@example.com",
			PasswordHash: "y", TrustScore: 450, CreatedAt: time.Now(),
		})
		if !errors.Is(err, user.ErrDuplicateEmail) {
			t.Fatalf("want ErrDuplicateEmail, got %v", err)
		}
	})

	t.Run("lookup by email", func(t *testing.T) {
		u, err := store.GetUserByEmail(ctx, "ada@example.com")
		if err != nil {
			t.Fatalf("GetUserByEmail: %v", err)
		}
		if u.ID != "u1" || u.TrustScore != 450 {
			t.Fatalf("unexpected user: %+v", u)
		}
	})

	t.Run("stats update", func(t *testing.T) {
		if err := store.UpdateUserStats(ctx, "u1", 465, 50000); err != nil {
			t.Fatalf("UpdateUserStats: %v", err)
		}
		u, err := store.GetUser(ctx, "u1")
		if err != nil {
			t.Fatalf("GetUser: %v", err)
		}
		if u.TrustScore != 465 || u.TotalSaved != 50000 {
			t.Fatalf("stats not applied: %+v", u)
		}
	})

	t.Run("unknown user", func(t *testing.T) {
		if _, err := store.GetUser(ctx, "nope"); !errors.Is(err, user.ErrNotFound) {
			t.Fatalf("want ErrNotFound, got %v", err)
		}
		if err := store.UpdateUserStats(ctx, "nope", 400, 0); !errors.Is(err, user.ErrNotFound) {
			t.Fatalf("want ErrNotFound, got %v", err)
		}
	})
}

func TestCircleLifecycle(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	seedUser(t, store, "u1", "admin@example.com")
	seedUser(t, store, "u2", "member@example.com")

	now := time.Now()
	c := &circle.Circle{
		ID: "c1", Name: "Office Ajo", Amount: 50000,
		Frequency: rotation.Monthly, JoinCode: "AB12CD",
		AdminUserID: "u1", Status: circle.StatusPending, CreatedAt: now,
	}
	admin := &circle.Membership{ID: "m1", CircleID: "c1", UserID: "u1", Position: 0, JoinedAt: now}
	if err := store.CreateCircle(ctx, c, admin); err != nil {
		t.Fatalf("CreateCircle: %v", err)
	}

	t.Run("join code resolves while not completed", func(t *testing.T) {
		got, err := store.GetCircleByJoinCode(ctx, "AB12CD")
		if err != nil {
			t.Fatalf("GetCircleByJoinCode: %v", err)
		}
		if got.ID != "c1" || got.Frequency != rotation.Monthly {
			t.Fatalf("unexpected circle: %+v", got)
		}
	})

	t.Run("roster ordered by position", func(t *testing.T) {
		m2 := &circle.Membership{ID: "m2", CircleID: "c1", UserID: "u2", Position: 1, JoinedAt: now}
		if err := store.AddMembership(ctx, m2); err != nil {
			t.Fatalf("AddMembership: %v", err)
		}
		members, err := store.ListMemberships(ctx, "c1")
		if err != nil {
			t.Fatalf("ListMemberships: %v", err)
		}
		if len(members) != 2 || members[0].ID != "m1" || members[1].ID != "m2" {
			t.Fatalf("unexpected roster: %+v", members)
		}
	})

	t.Run("duplicate member rejected", func(t *testing.T) {
		err := store.AddMembership(ctx, &circle.Membership{
			ID: "m3", CircleID: "c1", UserID: "u2", Position: 2, JoinedAt: now,
		})
		if !errors.Is(err, circle.ErrAlreadyMember) {
			t.Fatalf("want ErrAlreadyMember, got %v", err)
		}
	})

	t.Run("cycle with contributions is atomic and current", func(t *testing.T) {
		cy := &circle.Cycle{
			ID: "cy0", CircleID: "c1", Sequence: 0,
			StartedAt: now, Deadline: now.Add(30 * 24 * time.Hour),
		}
		contribs := []*circle.Contribution{
			{CycleID: "cy0", MembershipID: "m1", Amount: 50000, Status: circle.ContributionPending},
			{CycleID: "cy0", MembershipID: "m2", Amount: 50000, Status: circle.ContributionPending},
		}
		if err := store.CreateCycle(ctx, cy, contribs); err != nil {
			t.Fatalf("CreateCycle: %v", err)
		}
		cur, err := store.CurrentCycle(ctx, "c1")
		if err != nil {
			t.Fatalf("CurrentCycle: %v", err)
		}
		if cur.ID != "cy0" || cur.Sequence != 0 {
			t.Fatalf("unexpected current cycle: %+v", cur)
		}
		list, err := store.ListContributions(ctx, "cy0")
		if err != nil {
			t.Fatalf("ListContributions: %v", err)
		}
		if len(list) != 2 {
			t.Fatalf("want 2 contributions, got %d", len(list))
		}
	})

	t.Run("current cycle tracks highest sequence", func(t *testing.T) {
		cy := &circle.Cycle{
			ID: "cy1", CircleID: "c1", Sequence: 1,
			StartedAt: now, Deadline: now.Add(30 * 24 * time.Hour),
		}
		if err := store.CreateCycle(ctx, cy, nil); err != nil {
			t.Fatalf("CreateCycle: %v", err)
		}
		cur, err := store.CurrentCycle(ctx, "c1")
		if err != nil {
			t.Fatalf("CurrentCycle: %v", err)
		}
		if cur.Sequence != 1 {
			t.Fatalf("want sequence 1, got %d", cur.Sequence)
		}
	})

	t.Run("contribution update and totals", func(t *testing.T) {
		paidAt := now.Add(time.Hour)
		err := store.UpdateContribution(ctx, &circle.Contribution{
			CycleID: "cy0", MembershipID: "m1", Amount: 50000,
			Status: circle.ContributionPaid, PaidAt: &paidAt,
		})
		if err != nil {
			t.Fatalf("UpdateContribution: %v", err)
		}
		got, err := store.GetContribution(ctx, "cy0", "m1")
		if err != nil {
			t.Fatalf("GetContribution: %v", err)
		}
		if got.Status != circle.ContributionPaid || got.PaidAt == nil {
			t.Fatalf("unexpected contribution: %+v", got)
		}
		paid, total, err := store.ContributionTotals(ctx, "c1")
		if err != nil {
			t.Fatalf("ContributionTotals: %v", err)
		}
		if paid != 1 || total != 2 {
			t.Fatalf("want 1/2, got %d/%d", paid, total)
		}
	})

	t.Run("completed circles retire join codes", func(t *testing.T) {
		if err := store.UpdateCircleStatus(ctx, "c1", circle.StatusCompleted); err != nil {
			t.Fatalf("UpdateCircleStatus: %v", err)
		}
		if _, err := store.GetCircleByJoinCode(ctx, "AB12CD"); !errors.Is(err, circle.ErrNotFound) {
			t.Fatalf("want ErrNotFound, got %v", err)
		}
	})
}
