package pg

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jackc/pgx/v5/pgconn"

	"padisave.org/internal/circle"
	"padisave.org/internal/rotation"
	"padisave.org/internal/user"
)

func newMockStore(t *testing.T) (*Store, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return NewFromDB(db), mock
}

func TestCreateUserDuplicateEmail(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectExec("insert into users").
		WithArgs("u1", "Ada", "ada@example.com", "hash", 450, int64(0), sqlmock.AnyArg()).
		WillReturnError(&pgconn.PgError{Code: "23505", ConstraintName: "users_email_key"})

	err := store.CreateUser(context.Background(), &user.User{
		ID: "u1", FullName: "Ada", Email: "ada@example.com",
		PasswordHash: "hash", TrustScore: 450, CreatedAt: time.Now(),
	})
	if !errors.Is(err, user.ErrDuplicateEmail) {
		t.Fatalf("want ErrDuplicateEmail, got %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestGetCircleNotFound(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectQuery("select id, name, amount, frequency, join_code, admin_user_id, status, created_at.*from circles where id=").
		WithArgs("missing").
		WillReturnRows(sqlmock.NewRows([]string{"id"}))

	if _, err := store.GetCircle(context.Background(), "missing"); !errors.Is(err, circle.ErrNotFound) {
		t.Fatalf("want ErrNotFound, got %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestCreateCircleCommitsAdminMembership(t *testing.T) {
	store, mock := newMockStore(t)

	now := time.Now()
	mock.ExpectBegin()
	mock.ExpectExec("insert into circles").
		WithArgs("c1", "Office Ajo", int64(50000), "monthly", "AB12CD", "u1", "pending", sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("insert into memberships").
		WithArgs("m1", "c1", "u1", 0, sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	err := store.CreateCircle(context.Background(),
		&circle.Circle{
			ID: "c1", Name: "Office Ajo", Amount: 50000,
			Frequency: rotation.Monthly, JoinCode: "AB12CD",
			AdminUserID: "u1", Status: circle.StatusPending, CreatedAt: now,
		},
		&circle.Membership{ID: "m1", CircleID: "c1", UserID: "u1", Position: 0, JoinedAt: now},
	)
	if err != nil {
		t.Fatalf("CreateCircle: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestCreateCycleRollsBackOnContributionError(t *testing.T) {
	store, mock := newMockStore(t)

	now := time.Now()
	mock.ExpectBegin()
	mock.ExpectExec("insert into cycles").
		WithArgs("cy0", "c1", uint64(0), sqlmock.AnyArg(), sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("insert into contributions").
		WillReturnError(errors.New("boom"))
	mock.ExpectRollback()

	err := store.CreateCycle(context.Background(),
		&circle.Cycle{ID: "cy0", CircleID: "c1", Sequence: 0, StartedAt: now, Deadline: now.Add(7 * 24 * time.Hour)},
		[]*circle.Contribution{
			{CycleID: "cy0", MembershipID: "m1", Amount: 50000, Status: circle.ContributionPending},
		},
	)
	if err == nil {
		t.Fatal("expected error")
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestUpdateContributionNotFound(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectExec("update contributions set status=").
		WithArgs("cy0", "m9", "paid", sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 0))

	paidAt := time.Now()
	err := store.UpdateContribution(context.Background(), &circle.Contribution{
		CycleID: "cy0", MembershipID: "m9", Amount: 50000,
		Status: circle.ContributionPaid, PaidAt: &paidAt,
	})
	if !errors.Is(err, circle.ErrNotFound) {
		t.Fatalf("want ErrNotFound, got %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestContributionTotals(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectQuery("select coalesce").
		WithArgs("c1", "paid").
		WillReturnRows(sqlmock.NewRows([]string{"paid", "total"}).AddRow(3, 8))

	paid, total, err := store.ContributionTotals(context.Background(), "c1")
	if err != nil {
		t.Fatalf("ContributionTotals: %v", err)
	}
	if paid != 3 || total != 8 {
		t.Fatalf("want 3/8, got %d/%d", paid, total)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}
