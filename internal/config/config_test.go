package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func clearEnv(t *testing.T) {
	t.Helper()
	for _, key := range []string{
		"HNEWS_ADDR", "PORT", "HNEWS_DB", "HNEWS_LOG_FORMAT", "HNEWS_LOG_LEVEL", "HNEWS_NEWS_LIMIT",
		"HNEWS_SESSION_STORE", "HNEWS_SESSION_DB", "HNEWS_SESSION_DSN",
		"HNEWS_READ_HEADER_TIMEOUT", "HNEWS_READ_TIMEOUT", "HNEWS_WRITE_TIMEOUT",
		"HNEWS_IDLE_TIMEOUT", "HNEWS_SHUTDOWN_TIMEOUT",
	} {
		t.Setenv(key, "")
	}
}

func TestLoadDefaults(t *testing.T) {
	clearEnv(t)
	cfg := Load()

	assert.Equal(t, ":8080", cfg.Addr)
	assert.Equal(t, "hnews.db", cfg.DBPath)
	assert.Equal(t, 30, cfg.NewsLimit)
	assert.Equal(t, SessionMemory, cfg.Session.Backend)
	assert.Equal(t, "hnews.db", cfg.Session.SQLitePath)
	assert.Equal(t, 5*time.Second, cfg.Timeouts.ReadHeader)
	assert.Equal(t, 5*time.Second, cfg.Timeouts.Shutdown)
	require.NoError(t, cfg.Validate())
}

func TestLoadFromEnv(t *testing.T) {
	clearEnv(t)
	t.Setenv("PORT", "3000")
	t.Setenv("HNEWS_DB", "/tmp/news.db")
	t.Setenv("HNEWS_SESSION_STORE", "postgres")
	t.Setenv("HNEWS_SESSION_DSN", "postgres://localhost/hnews")
	t.Setenv("HNEWS_NEWS_LIMIT", "10")
	t.Setenv("HNEWS_WRITE_TIMEOUT", "2s")

	cfg := Load()
	assert.Equal(t, ":3000", cfg.Addr)
	assert.Equal(t, "/tmp/news.db", cfg.Session.SQLitePath)
	assert.Equal(t, SessionPostgres, cfg.Session.Backend)
	assert.Equal(t, 10, cfg.NewsLimit)
	assert.Equal(t, 2*time.Second, cfg.Timeouts.Write)
	require.NoError(t, cfg.Validate())
}

func TestAddrWinsOverPort(t *testing.T) {
	clearEnv(t)
	t.Setenv("PORT", "3000")
	t.Setenv("HNEWS_ADDR", "127.0.0.1:9999")
	assert.Equal(t, "127.0.0.1:9999", Load().Addr)
}

func TestBadValuesFallBack(t *testing.T) {
	clearEnv(t)
	t.Setenv("HNEWS_NEWS_LIMIT", "lots")
	t.Setenv("HNEWS_READ_TIMEOUT", "soon")

	cfg := Load()
	assert.Equal(t, 30, cfg.NewsLimit)
	assert.Equal(t, 15*time.Second, cfg.Timeouts.Read)
}

func TestValidate(t *testing.T) {
	clearEnv(t)
	base := Load()

	unknown := base
	unknown.Session.Backend = "redis"
	assert.ErrorContains(t, unknown.Validate(), "unknown session store")

	pg := base
	pg.Session.Backend = SessionPostgres
	assert.ErrorContains(t, pg.Validate(), "HNEWS_SESSION_DSN")

	noLimit := base
	noLimit.NewsLimit = 0
	assert.Error(t, noLimit.Validate())
}
