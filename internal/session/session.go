// Package session maps API keys to the user that logged in with them.
package session

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"errors"

	"github.com/alphabot-ai/hnews/internal/model"
)

var ErrNotFound = errors.New("session not found")

// TokenSize is the number of random bytes behind every API key.
const TokenSize = 32

// maxCreateAttempts bounds re-draws when a fresh token is already taken.
const maxCreateAttempts = 5

// Store holds the API key to user mapping. Implementations must be safe for
// concurrent use by many request goroutines.
type Store interface {
	// Create issues a new token for user. The token is never one that is
	// currently in use.
	Create(ctx context.Context, user model.User) (string, error)
	// Resolve returns ErrNotFound for unknown tokens.
	Resolve(ctx context.Context, token string) (model.User, error)
	// Remove returns ErrNotFound for unknown tokens.
	Remove(ctx context.Context, token string) error
}

// NewToken returns a URL-safe random token.
func NewToken() (string, error) {
	b := make([]byte, TokenSize)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}

// Identity strips a user down to what a session carries.
func Identity(user model.User) model.User {
	return model.User{ID: user.ID, Username: user.Username}
}
