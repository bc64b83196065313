// Package postgres stores sessions in PostgreSQL for deployments where
// server processes run on several hosts.
package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5/pgconn"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/pressly/goose/v3"

	"github.com/alphabot-ai/hnews/internal/model"
	"github.com/alphabot-ai/hnews/internal/session"
	"github.com/alphabot-ai/hnews/internal/session/postgres/migrations"
)

const (
	maxCreateAttempts   = 5
	uniqueViolationCode = "23505"
)

type Store struct {
	db       *sql.DB
	newToken func() (string, error)
}

// gooseUpContext is a seam for testing goose.UpContext.
var gooseUpContext = func(ctx context.Context, db *sql.DB, dir string, opts ...goose.OptionsFunc) error {
	return goose.UpContext(ctx, db, dir, opts...)
}

// Open connects with the pgx driver and applies the embedded migrations.
func Open(ctx context.Context, dsn string) (*Store, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	if err := RunMigrations(ctx, db); err != nil {
		_ = db.Close()
		return nil, err
	}
	return New(db), nil
}

// RunMigrations brings the sessions schema up to date.
func RunMigrations(ctx context.Context, db *sql.DB) error {
	goose.SetBaseFS(migrations.Migrations)
	if err := goose.SetDialect("pgx"); err != nil {
		return err
	}
	if err := gooseUpContext(ctx, db, "."); err != nil {
		return fmt.Errorf("migrate sessions: %w", err)
	}
	return nil
}

func New(db *sql.DB) *Store {
	return &Store{db: db, newToken: session.NewToken}
}

func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) Create(ctx context.Context, user model.User) (string, error) {
	for attempt := 0; attempt < maxCreateAttempts; attempt++ {
		token, err := s.newToken()
		if err != nil {
			return "", err
		}
		_, err = s.db.ExecContext(ctx,
			`INSERT INTO sessions (token, user_id, username) VALUES ($1, $2, $3)`,
			token, user.ID, user.Username)
		if err == nil {
			return token, nil
		}
		var pgErr *pgconn.PgError
		if !errors.As(err, &pgErr) || pgErr.Code != uniqueViolationCode {
			return "", fmt.Errorf("db error: %w", err)
		}
	}
	return "", errors.New("could not allocate a unique session token")
}

func (s *Store) Resolve(ctx context.Context, token string) (model.User, error) {
	var user model.User
	err := s.db.QueryRowContext(ctx,
		`SELECT user_id, username FROM sessions WHERE token = $1`, token).
		Scan(&user.ID, &user.Username)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return model.User{}, session.ErrNotFound
		}
		return model.User{}, fmt.Errorf("db error: %w", err)
	}
	return user, nil
}

func (s *Store) Remove(ctx context.Context, token string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM sessions WHERE token = $1`, token)
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	if n == 0 {
		return session.ErrNotFound
	}
	return nil
}
