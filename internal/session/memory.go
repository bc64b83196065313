package session

import (
	"context"
	"errors"
	"sync"

	"github.com/alphabot-ai/hnews/internal/model"
)

// MemoryStore keeps sessions in process memory. They are lost on restart and
// are not visible to other processes.
type MemoryStore struct {
	mu       sync.RWMutex
	sessions map[string]model.User
	newToken func() (string, error)
}

func NewMemory() *MemoryStore {
	return &MemoryStore{
		sessions: make(map[string]model.User),
		newToken: NewToken,
	}
}

func (m *MemoryStore) Create(ctx context.Context, user model.User) (string, error) {
	for attempt := 0; attempt < maxCreateAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return "", err
		}
		token, err := m.newToken()
		if err != nil {
			return "", err
		}
		m.mu.Lock()
		if _, taken := m.sessions[token]; !taken {
			m.sessions[token] = Identity(user)
			m.mu.Unlock()
			return token, nil
		}
		m.mu.Unlock()
	}
	return "", errors.New("could not allocate a unique session token")
}

func (m *MemoryStore) Resolve(ctx context.Context, token string) (model.User, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	user, ok := m.sessions[token]
	if !ok {
		return model.User{}, ErrNotFound
	}
	return user, nil
}

func (m *MemoryStore) Remove(ctx context.Context, token string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.sessions[token]; !ok {
		return ErrNotFound
	}
	delete(m.sessions, token)
	return nil
}

// Len reports the number of live sessions.
func (m *MemoryStore) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.sessions)
}
