package main

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alphabot-ai/hnews/internal/config"
	"github.com/alphabot-ai/hnews/internal/model"
	"github.com/alphabot-ai/hnews/internal/session"
	"github.com/alphabot-ai/hnews/internal/store/sqlite"
)

func TestCLIConfigRoundTrip(t *testing.T) {
	t.Setenv("HOME", t.TempDir())

	_, err := loadCLIConfig()
	require.Error(t, err)

	want := CLIConfig{BaseURL: "http://example.com", Username: "alice", APIKey: "k1"}
	require.NoError(t, saveCLIConfig(want))

	got, err := loadCLIConfig()
	require.NoError(t, err)
	assert.Equal(t, want, got)
	assert.Equal(t, filepath.Join(hnewsDir(), "config.json"), cliConfigPath())
}

func TestAdminCommands(t *testing.T) {
	db := filepath.Join(t.TempDir(), "hnews.db")
	t.Setenv("HNEWS_DB", db)

	run := func(args ...string) error {
		return newApp().Run(append([]string{"hnews"}, args...))
	}
	require.NoError(t, run("useradd", "--username", "alice", "--password", "secret"))
	require.Error(t, run("useradd", "--username", "alice", "--password", "other"))
	require.NoError(t, run("entryadd", "--username", "alice", "--title", "Hello", "--url", "https://example.com"))
	require.Error(t, run("entryadd", "--username", "alice", "--title", "Both", "--url", "u", "--text", "t"))
	require.NoError(t, run("seed"))

	st, err := sqlite.Open(db)
	require.NoError(t, err)
	defer st.Close()

	user, err := st.Authenticate(context.Background(), "alice", "secret")
	require.NoError(t, err)
	assert.Equal(t, "alice", user.Username)

	entries, err := st.ListTopEntries(context.Background(), 50)
	require.NoError(t, err)
	assert.Len(t, entries, 1+len(seedEntries))
}

func TestOpenSessions(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	dbPath := filepath.Join(dir, "hnews.db")
	st, err := sqlite.Open(dbPath)
	require.NoError(t, err)
	defer st.Close()

	cfg := config.Config{DBPath: dbPath, Session: config.SessionConfig{Backend: config.SessionMemory}}
	sessions, closeFn, err := openSessions(ctx, cfg, st)
	require.NoError(t, err)
	assert.IsType(t, &session.MemoryStore{}, sessions)
	require.NoError(t, closeFn())

	cfg.Session = config.SessionConfig{Backend: config.SessionSQLite, SQLitePath: dbPath}
	shared, closeShared, err := openSessions(ctx, cfg, st)
	require.NoError(t, err)
	token, err := shared.Create(ctx, model.User{ID: 1, Username: "alice"})
	require.NoError(t, err)
	require.NoError(t, closeShared())

	// Closing a shared store leaves the content handle usable.
	var n int
	require.NoError(t, st.DB().QueryRow(`SELECT COUNT(*) FROM sessions WHERE token = ?`, token).Scan(&n))
	assert.Equal(t, 1, n)

	cfg.Session = config.SessionConfig{Backend: config.SessionSQLite, SQLitePath: filepath.Join(dir, "sessions.db")}
	separate, closeSeparate, err := openSessions(ctx, cfg, st)
	require.NoError(t, err)
	defer closeSeparate()
	_, err = separate.Resolve(ctx, token)
	assert.ErrorIs(t, err, session.ErrNotFound)

	cfg.Session = config.SessionConfig{Backend: "redis"}
	_, _, err = openSessions(ctx, cfg, st)
	assert.Error(t, err)
}

func TestScrapeCommand(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/news", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `<html><body><table>
<tr class="athing submission" id="1"><td class="title"><span class="rank">1.</span></td>
<td class="title"><span class="titleline"><a href="https://example.com/scraped">Scraped story</a></span></td></tr>
<tr><td class="subtext"><span class="score" id="score_1">12 points</span> by <a href="user?id=zed" class="hnuser">zed</a>
<span class="age" title="2024-05-01T12:00:00 1714564800"><a href="item?id=1">1 hour ago</a></span> | <a href="item?id=1">discuss</a></td></tr>
</table></body></html>`)
	})
	ts := httptest.NewServer(mux)
	defer ts.Close()

	db := filepath.Join(t.TempDir(), "hnews.db")
	t.Setenv("HNEWS_DB", db)
	require.NoError(t, newApp().Run([]string{"hnews", "scrape", "--source", ts.URL, "--log-level", "error"}))
	require.NoError(t, newApp().Run([]string{"hnews", "scrape", "--source", ts.URL, "--log-level", "error"}))

	st, err := sqlite.Open(db)
	require.NoError(t, err)
	defer st.Close()

	entries, err := st.ListTopEntries(context.Background(), 10)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "Scraped story", entries[0].Title)
	assert.Equal(t, "zed", entries[0].Username)
	assert.Equal(t, 12, entries[0].Score)
}
