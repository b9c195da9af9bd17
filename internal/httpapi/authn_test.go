package httpapi

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"padisave.org/internal/auth"
	"padisave.org/internal/circle"
	"padisave.org/internal/storage/memory"
	"padisave.org/internal/user"
)

func TestExtractBearerToken(t *testing.T) {
	cases := []struct {
		header string
		want   string
		ok     bool
	}{
		{"Bearer abc123", "abc123", true},
		{"bearer abc123", "abc123", true},
		{"Bearer   abc123  ", "abc123", true},
		{"", "", false},
		{"Bearer ", "", false},
		{"Basic abc123", "", false},
		{"abc123", "", false},
	}
	for _, tc := range cases {
		got, err := extractBearerToken(tc.header)
		if tc.ok && (err != nil || got != tc.want) {
			t.Fatalf("%q: want %q, got %q (%v)", tc.header, tc.want, got, err)
		}
		if !tc.ok && err == nil {
			t.Fatalf("%q: expected error", tc.header)
		}
	}
}

func TestPublicPathsSkipAuth(t *testing.T) {
	for _, path := range []string{"/api/Login", "/api/Signup", "/healthz", "/readyz", "/v1/info", "/metrics"} {
		if !isPublicPath(path) {
			t.Fatalf("%s should be public", path)
		}
	}
	for _, path := range []string{"/api/CreateCircle", "/api/GetUserData", "/api/RecordPayment"} {
		if isPublicPath(path) {
			t.Fatalf("%s should require auth", path)
		}
	}
}

func TestWithAuth(t *testing.T) {
	t.Setenv("PADISAVE_AUTH_SECRET", "authn-test-secret")
	auth.ResetSecretForTests()

	store := memory.New()
	api := New(ReadyProbe{}, "test", user.NewService(store), circle.NewService(store))

	reached := false
	handler := api.withAuth(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if _, ok := auth.UserIDFromContext(r.Context()); r.URL.Path == "/api/GetUserData" && !ok {
			t.Fatal("expected user identity in context")
		}
		reached = true
		w.WriteHeader(http.StatusOK)
	}))

	t.Run("missing token", func(t *testing.T) {
		rr := httptest.NewRecorder()
		handler.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/api/GetUserData", nil))
		if rr.Code != http.StatusUnauthorized {
			t.Fatalf("want 401, got %d", rr.Code)
		}
	})

	t.Run("garbage token", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/api/GetUserData", nil)
		req.Header.Set("Authorization", "Bearer not-a-jwt")
		rr := httptest.NewRecorder()
		handler.ServeHTTP(rr, req)
		if rr.Code != http.StatusUnauthorized {
			t.Fatalf("want 401, got %d", rr.Code)
		}
	})

	t.Run("valid token", func(t *testing.T) {
		token, err := auth.GenerateToken("u1", "Ada", time.Minute)
		if err != nil {
			t.Fatalf("GenerateToken: %v", err)
		}
		req := httptest.NewRequest(http.MethodGet, "/api/GetUserData", nil)
		req.Header.Set("Authorization", "Bearer "+token)
		rr := httptest.NewRecorder()
		reached = false
		handler.ServeHTTP(rr, req)
		if rr.Code != http.StatusOK || !reached {
			t.Fatalf("want 200 and handler reached, got %d (%v)", rr.Code, reached)
		}
	})

	t.Run("public path passes without token", func(t *testing.T) {
		rr := httptest.NewRecorder()
		reached = false
		handler.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/healthz", nil))
		if rr.Code != http.StatusOK || !reached {
			t.Fatalf("public path should pass, got %d", rr.Code)
		}
	})
}
