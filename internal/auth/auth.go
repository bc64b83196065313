package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/alphabot-ai/hnews/internal/model"
	"github.com/alphabot-ai/hnews/internal/session"
	"github.com/alphabot-ai/hnews/internal/store"
)

var (
	ErrMissingCredentials = errors.New("username and password required")
	ErrInvalidCredentials = errors.New("invalid username or password")
	ErrUnauthenticated    = errors.New("invalid or missing apikey")
)

type Service struct {
	users    store.UserStore
	sessions session.Store
}

func NewService(users store.UserStore, sessions session.Store) *Service {
	return &Service{users: users, sessions: sessions}
}

// Login checks the credentials and issues an API key bound to the user.
func (s *Service) Login(ctx context.Context, username, password string) (string, model.User, error) {
	username = strings.TrimSpace(username)
	if username == "" || password == "" {
		return "", model.User{}, ErrMissingCredentials
	}
	user, err := s.users.Authenticate(ctx, username, password)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) || errors.Is(err, store.ErrBadPassword) {
			return "", model.User{}, ErrInvalidCredentials
		}
		return "", model.User{}, fmt.Errorf("authenticate %s: %w", username, err)
	}
	token, err := s.sessions.Create(ctx, user)
	if err != nil {
		return "", model.User{}, fmt.Errorf("create session: %w", err)
	}
	return token, session.Identity(user), nil
}

// Authenticate resolves an API key to the user that owns it. Surrounding
// whitespace is ignored here and in Logout.
func (s *Service) Authenticate(ctx context.Context, apikey string) (model.User, error) {
	apikey = strings.TrimSpace(apikey)
	if apikey == "" {
		return model.User{}, ErrUnauthenticated
	}
	user, err := s.sessions.Resolve(ctx, apikey)
	if err != nil {
		if errors.Is(err, session.ErrNotFound) {
			return model.User{}, ErrUnauthenticated
		}
		return model.User{}, fmt.Errorf("resolve session: %w", err)
	}
	return user, nil
}

// Logout forgets the API key. Unknown keys yield session.ErrNotFound.
func (s *Service) Logout(ctx context.Context, apikey string) error {
	apikey = strings.TrimSpace(apikey)
	if apikey == "" {
		return session.ErrNotFound
	}
	return s.sessions.Remove(ctx, apikey)
}
