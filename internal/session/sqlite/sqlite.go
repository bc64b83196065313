// Package sqlite stores sessions in a SQLite database so that several
// server processes on one host can share them.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"

	"github.com/alphabot-ai/hnews/internal/model"
	"github.com/alphabot-ai/hnews/internal/session"
	storesqlite "github.com/alphabot-ai/hnews/internal/store/sqlite"

	_ "modernc.org/sqlite"
)

const schema = `
CREATE TABLE IF NOT EXISTS sessions (
	token TEXT PRIMARY KEY,
	user_id INTEGER NOT NULL,
	username TEXT NOT NULL,
	created_at INTEGER NOT NULL
);
`

const maxCreateAttempts = 5

type Store struct {
	db       *sql.DB
	owned    bool
	newToken func() (string, error)
}

// Open opens path and owns the handle; Close releases it.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite", storesqlite.DSN(path))
	if err != nil {
		return nil, err
	}
	st, err := New(db)
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	st.owned = true
	return st, nil
}

// New uses an existing handle, typically the domain store's.
func New(db *sql.DB) (*Store, error) {
	if _, err := db.Exec(schema); err != nil {
		return nil, err
	}
	return &Store{db: db, newToken: session.NewToken}, nil
}

func (s *Store) Close() error {
	if !s.owned {
		return nil
	}
	return s.db.Close()
}

func (s *Store) Create(ctx context.Context, user model.User) (string, error) {
	for attempt := 0; attempt < maxCreateAttempts; attempt++ {
		token, err := s.newToken()
		if err != nil {
			return "", err
		}
		_, err = s.db.ExecContext(ctx, `
INSERT INTO sessions (token, user_id, username, created_at)
VALUES (?, ?, ?, ?)
`, token, user.ID, user.Username, time.Now().Unix())
		if err == nil {
			return token, nil
		}
		if !isUniqueViolation(err) {
			return "", err
		}
	}
	return "", errors.New("could not allocate a unique session token")
}

func (s *Store) Resolve(ctx context.Context, token string) (model.User, error) {
	var user model.User
	err := s.db.QueryRowContext(ctx, `SELECT user_id, username FROM sessions WHERE token = ?`, token).
		Scan(&user.ID, &user.Username)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return model.User{}, session.ErrNotFound
		}
		return model.User{}, err
	}
	return user, nil
}

func (s *Store) Remove(ctx context.Context, token string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM sessions WHERE token = ?`, token)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return session.ErrNotFound
	}
	return nil
}

func isUniqueViolation(err error) bool {
	msg := err.Error()
	return strings.Contains(msg, "UNIQUE constraint failed") || strings.Contains(msg, "PRIMARY KEY")
}
