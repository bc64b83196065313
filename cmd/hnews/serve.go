package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"

	"github.com/urfave/cli/v2"

	"github.com/alphabot-ai/hnews/internal/auth"
	"github.com/alphabot-ai/hnews/internal/config"
	httpapp "github.com/alphabot-ai/hnews/internal/http"
	"github.com/alphabot-ai/hnews/internal/logging"
	"github.com/alphabot-ai/hnews/internal/session"
	"github.com/alphabot-ai/hnews/internal/session/postgres"
	sessionsqlite "github.com/alphabot-ai/hnews/internal/session/sqlite"
	"github.com/alphabot-ai/hnews/internal/store/sqlite"
)

// loadConfig reads the environment, then applies any flags set on c.
func loadConfig(c *cli.Context) (config.Config, error) {
	cfg := config.Load()
	if c.IsSet("addr") {
		cfg.Addr = c.String("addr")
	}
	if c.IsSet("db") {
		if cfg.Session.SQLitePath == cfg.DBPath {
			cfg.Session.SQLitePath = c.String("db")
		}
		cfg.DBPath = c.String("db")
	}
	if c.IsSet("session-store") {
		cfg.Session.Backend = c.String("session-store")
	}
	if c.IsSet("session-dsn") {
		cfg.Session.PostgresDSN = c.String("session-dsn")
	}
	if c.IsSet("log-format") {
		cfg.LogFormat = c.String("log-format")
	}
	if c.IsSet("log-level") {
		cfg.LogLevel = c.String("log-level")
	}
	return cfg, cfg.Validate()
}

func cmdServe(c *cli.Context) error {
	cfg, err := loadConfig(c)
	if err != nil {
		return fmt.Errorf("config: %w", err)
	}
	log := logging.New(os.Stderr, cfg.LogFormat, cfg.LogLevel)
	return runServer(c.Context, cfg, log)
}

func runServer(ctx context.Context, cfg config.Config, log logging.Logger) error {
	store, err := sqlite.Open(cfg.DBPath)
	if err != nil {
		return fmt.Errorf("open db: %w", err)
	}
	defer store.Close()

	sessions, closeSessions, err := openSessions(ctx, cfg, store)
	if err != nil {
		return fmt.Errorf("open session store: %w", err)
	}
	defer closeSessions()

	authSvc := auth.NewService(store, sessions)
	server := httpapp.NewServer(store, authSvc, cfg, log)

	httpServer := &http.Server{
		Addr:              cfg.Addr,
		Handler:           server,
		ReadHeaderTimeout: cfg.Timeouts.ReadHeader,
		ReadTimeout:       cfg.Timeouts.Read,
		WriteTimeout:      cfg.Timeouts.Write,
		IdleTimeout:       cfg.Timeouts.Idle,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info(ctx, "hnews listening", "addr", cfg.Addr, "db", cfg.DBPath, "sessions", cfg.Session.Backend)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	log.Info(context.Background(), "shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Timeouts.Shutdown)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	return nil
}

// openSessions builds the configured session backend. The sqlite backend
// shares the content database handle when both point at the same file.
func openSessions(ctx context.Context, cfg config.Config, store *sqlite.Store) (session.Store, func() error, error) {
	noop := func() error { return nil }
	switch cfg.Session.Backend {
	case config.SessionMemory, "":
		return session.NewMemory(), noop, nil
	case config.SessionSQLite:
		if cfg.Session.SQLitePath == cfg.DBPath {
			st, err := sessionsqlite.New(store.DB())
			if err != nil {
				return nil, nil, err
			}
			return st, st.Close, nil
		}
		st, err := sessionsqlite.Open(cfg.Session.SQLitePath)
		if err != nil {
			return nil, nil, err
		}
		return st, st.Close, nil
	case config.SessionPostgres:
		st, err := postgres.Open(ctx, cfg.Session.PostgresDSN)
		if err != nil {
			return nil, nil, err
		}
		return st, st.Close, nil
	default:
		return nil, nil, fmt.Errorf("unknown session store %q", cfg.Session.Backend)
	}
}
