package auth

import (
	"context"
	"errors"
	"testing"

	"github.com/alphabot-ai/hnews/internal/session"
	"github.com/alphabot-ai/hnews/internal/store/sqlite"
)

func newTestService(t *testing.T, dsn string) *Service {
	t.Helper()
	st, err := sqlite.Open(dsn)
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { _ = st.Close() })
	if _, err := st.CreateUser(context.Background(), "alice", "secret"); err != nil {
		t.Fatalf("create user: %v", err)
	}
	return NewService(st, session.NewMemory())
}

func TestLoginLogout(t *testing.T) {
	svc := newTestService(t, "file:auth_login?mode=memory&cache=shared")
	ctx := context.Background()

	token, user, err := svc.Login(ctx, "alice", "secret")
	if err != nil {
		t.Fatalf("login: %v", err)
	}
	if token == "" {
		t.Fatalf("expected token")
	}
	if user.Username != "alice" || user.PasswordHash != "" {
		t.Fatalf("unexpected identity: %+v", user)
	}

	resolved, err := svc.Authenticate(ctx, token)
	if err != nil {
		t.Fatalf("authenticate: %v", err)
	}
	if resolved.ID != user.ID {
		t.Fatalf("expected user %d, got %d", user.ID, resolved.ID)
	}

	if err := svc.Logout(ctx, token); err != nil {
		t.Fatalf("logout: %v", err)
	}
	if _, err := svc.Authenticate(ctx, token); !errors.Is(err, ErrUnauthenticated) {
		t.Fatalf("expected ErrUnauthenticated after logout, got %v", err)
	}
	if err := svc.Logout(ctx, token); !errors.Is(err, session.ErrNotFound) {
		t.Fatalf("expected session.ErrNotFound on second logout, got %v", err)
	}
}

func TestLoginRejectsBadCredentials(t *testing.T) {
	svc := newTestService(t, "file:auth_bad?mode=memory&cache=shared")
	ctx := context.Background()

	cases := []struct {
		name     string
		username string
		password string
		want     error
	}{
		{"wrong password", "alice", "nope", ErrInvalidCredentials},
		{"unknown user", "mallory", "secret", ErrInvalidCredentials},
		{"missing password", "alice", "", ErrMissingCredentials},
		{"missing username", "  ", "secret", ErrMissingCredentials},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if _, _, err := svc.Login(ctx, tc.username, tc.password); !errors.Is(err, tc.want) {
				t.Fatalf("expected %v, got %v", tc.want, err)
			}
		})
	}
}

func TestAuthenticateEmptyKey(t *testing.T) {
	svc := newTestService(t, "file:auth_empty?mode=memory&cache=shared")
	if _, err := svc.Authenticate(context.Background(), ""); !errors.Is(err, ErrUnauthenticated) {
		t.Fatalf("expected ErrUnauthenticated, got %v", err)
	}
}

func TestEachLoginGetsItsOwnKey(t *testing.T) {
	svc := newTestService(t, "file:auth_twice?mode=memory&cache=shared")
	ctx := context.Background()

	first, _, err := svc.Login(ctx, "alice", "secret")
	if err != nil {
		t.Fatalf("first login: %v", err)
	}
	second, _, err := svc.Login(ctx, "alice", "secret")
	if err != nil {
		t.Fatalf("second login: %v", err)
	}
	if first == second {
		t.Fatalf("expected distinct keys")
	}
	if err := svc.Logout(ctx, first); err != nil {
		t.Fatalf("logout: %v", err)
	}
	if _, err := svc.Authenticate(ctx, second); err != nil {
		t.Fatalf("second key should survive logout of the first: %v", err)
	}
}

func TestKeyWhitespaceIgnored(t *testing.T) {
	svc := newTestService(t, "file:auth_trim?mode=memory&cache=shared")
	ctx := context.Background()

	token, _, err := svc.Login(ctx, "alice", "secret")
	if err != nil {
		t.Fatalf("login: %v", err)
	}
	padded := "  " + token + "\n"
	if _, err := svc.Authenticate(ctx, padded); err != nil {
		t.Fatalf("authenticate padded key: %v", err)
	}
	if err := svc.Logout(ctx, padded); err != nil {
		t.Fatalf("logout padded key: %v", err)
	}
	if _, err := svc.Authenticate(ctx, token); !errors.Is(err, ErrUnauthenticated) {
		t.Fatalf("expected ErrUnauthenticated after logout, got %v", err)
	}
	if err := svc.Logout(ctx, "   "); !errors.Is(err, session.ErrNotFound) {
		t.Fatalf("expected session.ErrNotFound for blank key, got %v", err)
	}
}
