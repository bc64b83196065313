package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"
)

const (
	SessionMemory   = "memory"
	SessionSQLite   = "sqlite"
	SessionPostgres = "postgres"
)

type Config struct {
	Addr      string
	DBPath    string
	LogFormat string
	LogLevel  string
	// NewsLimit caps how many entries GET /v1/news returns.
	NewsLimit int
	Session   SessionConfig
	Timeouts  Timeouts
}

type SessionConfig struct {
	// Backend is one of memory, sqlite or postgres.
	Backend string
	// SQLitePath defaults to DBPath so sessions live next to the content.
	SQLitePath  string
	PostgresDSN string
}

type Timeouts struct {
	ReadHeader time.Duration
	Read       time.Duration
	Write      time.Duration
	Idle       time.Duration
	Shutdown   time.Duration
}

func Load() Config {
	addr := envString("HNEWS_ADDR", "")
	if addr == "" {
		if port := os.Getenv("PORT"); port != "" {
			addr = ":" + port
		} else {
			addr = ":8080"
		}
	}
	dbPath := envString("HNEWS_DB", "hnews.db")
	cfg := Config{
		Addr:      addr,
		DBPath:    dbPath,
		LogFormat: envString("HNEWS_LOG_FORMAT", "text"),
		LogLevel:  envString("HNEWS_LOG_LEVEL", "info"),
		NewsLimit: envInt("HNEWS_NEWS_LIMIT", 30),
		Session: SessionConfig{
			Backend:     envString("HNEWS_SESSION_STORE", SessionMemory),
			SQLitePath:  envString("HNEWS_SESSION_DB", dbPath),
			PostgresDSN: envString("HNEWS_SESSION_DSN", ""),
		},
		Timeouts: Timeouts{
			ReadHeader: envDuration("HNEWS_READ_HEADER_TIMEOUT", 5*time.Second),
			Read:       envDuration("HNEWS_READ_TIMEOUT", 15*time.Second),
			Write:      envDuration("HNEWS_WRITE_TIMEOUT", 15*time.Second),
			Idle:       envDuration("HNEWS_IDLE_TIMEOUT", 60*time.Second),
			Shutdown:   envDuration("HNEWS_SHUTDOWN_TIMEOUT", 5*time.Second),
		},
	}

	return cfg
}

func (c Config) Validate() error {
	if c.Addr == "" {
		return errors.New("listen address is empty")
	}
	if c.DBPath == "" {
		return errors.New("database path is empty")
	}
	if c.NewsLimit <= 0 {
		return errors.New("news limit must be positive")
	}
	switch c.Session.Backend {
	case SessionMemory:
	case SessionSQLite:
		if c.Session.SQLitePath == "" {
			return errors.New("sqlite session store needs HNEWS_SESSION_DB")
		}
	case SessionPostgres:
		if c.Session.PostgresDSN == "" {
			return errors.New("postgres session store needs HNEWS_SESSION_DSN")
		}
	default:
		return fmt.Errorf("unknown session store %q", c.Session.Backend)
	}
	return nil
}

func envString(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func envInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return def
}

func envDuration(key string, def time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return def
}
