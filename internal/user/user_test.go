package user_test

import (
	"context"
	"errors"
	"testing"

	"padisave.org/internal/storage/memory"
	"padisave.org/internal/trust"
	"padisave.org/internal/user"
)

func TestSignup(t *testing.T) {
	svc := user.NewService(memory.New())
	ctx := context.Background()

	u, err := svc.Signup(ctx, "Ada Obi", "Ada@Example.com ", "s3cret")
	if err != nil {
		t.Fatalf("Signup: %v", err)
	}
	if u.Email != "ada@example.com" {
		t.Fatalf("email should be normalized, got %q", u.Email)
	}
	if u.TrustScore != user.DefaultTrustScore {
		t.Fatalf("want default trust score %d, got %d", user.DefaultTrustScore, u.TrustScore)
	}
	if u.TotalSaved != 0 {
		t.Fatalf("new accounts save nothing yet, got %d", u.TotalSaved)
	}
	if u.PasswordHash == "" || u.PasswordHash == "s3cret" {
		t.Fatal("password must be stored hashed")
	}

	t.Run("duplicate email", func(t *testing.T) {
		if _, err := svc.Signup(ctx, "Other", "ada@example.com", "pw"); !errors.Is(err, user.ErrDuplicateEmail) {
			t.Fatalf("want ErrDuplicateEmail, got %v", err)
		}
	})

	t.Run("missing fields", func(t *testing.T) {
		for _, in := range [][3]string{
			{"", "x@example.com", "pw"},
			{"Name", "", "pw"},
			{"Name", "x@example.com", ""},
		} {
			if _, err := svc.Signup(ctx, in[0], in[1], in[2]); !errors.Is(err, user.ErrInvalidInput) {
				t.Fatalf("%v: want ErrInvalidInput, got %v", in, err)
			}
		}
	})
}

func TestLogin(t *testing.T) {
	svc := user.NewService(memory.New())
	ctx := context.Background()

	created, err := svc.Signup(ctx, "Ada Obi", "ada@example.com", "s3cret")
	if err != nil {
		t.Fatalf("Signup: %v", err)
	}

	u, err := svc.Login(ctx, " ADA@example.com", "s3cret")
	if err != nil {
		t.Fatalf("Login: %v", err)
	}
	if u.ID != created.ID {
		t.Fatalf("want %s, got %s", created.ID, u.ID)
	}

	// Wrong password and unknown email look identical to the caller.
	if _, err := svc.Login(ctx, "ada@example.com", "wrong"); !errors.Is(err, user.ErrInvalidCredentials) {
		t.Fatalf("wrong password: want ErrInvalidCredentials, got %v", err)
	}
	if _, err := svc.Login(ctx, "nobody@example.com", "s3cret"); !errors.Is(err, user.ErrInvalidCredentials) {
		t.Fatalf("unknown email: want ErrInvalidCredentials, got %v", err)
	}
}

func TestSettleContribution(t *testing.T) {
	store := memory.New()
	svc := user.NewService(store)
	ctx := context.Background()

	u, err := svc.Signup(ctx, "Ada Obi", "ada@example.com", "s3cret")
	if err != nil {
		t.Fatalf("Signup: %v", err)
	}

	if err := svc.SettleContribution(ctx, u.ID, trust.OnTime, 50000); err != nil {
		t.Fatalf("SettleContribution: %v", err)
	}
	got, err := svc.Get(ctx, u.ID)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got.TrustScore != user.DefaultTrustScore+15 {
		t.Fatalf("want %d, got %d", user.DefaultTrustScore+15, got.TrustScore)
	}
	if got.TotalSaved != 50000 {
		t.Fatalf("want 50000 saved, got %d", got.TotalSaved)
	}

	if err := svc.SettleContribution(ctx, u.ID, trust.Missed, 0); err != nil {
		t.Fatalf("SettleContribution: %v", err)
	}
	got, err = svc.Get(ctx, u.ID)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got.TrustScore != user.DefaultTrustScore+15-30 {
		t.Fatalf("missed payment should cost 30 points, got %d", got.TrustScore)
	}
	if got.TotalSaved != 50000 {
		t.Fatalf("missed settlements add no savings, got %d", got.TotalSaved)
	}

	if err := svc.SettleContribution(ctx, "ghost", trust.OnTime, 1); !errors.Is(err, user.ErrNotFound) {
		t.Fatalf("want ErrNotFound, got %v", err)
	}
}
