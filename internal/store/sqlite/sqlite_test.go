package sqlite

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/alphabot-ai/hnews/internal/model"
	"github.com/alphabot-ai/hnews/internal/store"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	name := strings.NewReplacer("/", "_").Replace(t.Name())
	st, err := Open(fmt.Sprintf("file:%s?mode=memory&cache=shared", name))
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { _ = st.Close() })
	return st
}

func seedEntry(t *testing.T, st *Store) (model.User, model.Entry) {
	t.Helper()
	ctx := context.Background()
	user, err := st.CreateUser(ctx, "author", "hunter2")
	if err != nil {
		t.Fatalf("create user: %v", err)
	}
	entry := model.Entry{Title: "Show HN: a thing", URL: "https://example.com", UserID: user.ID}
	id, err := st.CreateEntry(ctx, &entry)
	if err != nil {
		t.Fatalf("create entry: %v", err)
	}
	got, err := st.GetEntry(ctx, id)
	if err != nil {
		t.Fatalf("get entry: %v", err)
	}
	return user, got
}

func TestAuthenticate(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()

	created, err := st.CreateUser(ctx, "alice", "secret")
	if err != nil {
		t.Fatalf("create user: %v", err)
	}
	if created.PasswordHash == "secret" {
		t.Fatalf("password stored in clear")
	}

	user, err := st.Authenticate(ctx, "alice", "secret")
	if err != nil {
		t.Fatalf("authenticate: %v", err)
	}
	if user.ID != created.ID {
		t.Fatalf("expected user %d, got %d", created.ID, user.ID)
	}

	if _, err := st.Authenticate(ctx, "alice", "wrong"); !errors.Is(err, store.ErrBadPassword) {
		t.Fatalf("expected ErrBadPassword, got %v", err)
	}
	if _, err := st.Authenticate(ctx, "bob", "secret"); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if _, err := st.CreateUser(ctx, "alice", "other"); !errors.Is(err, store.ErrDuplicateName) {
		t.Fatalf("expected ErrDuplicateName, got %v", err)
	}
}

func TestUpvoteEntry(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()
	author, entry := seedEntry(t, st)

	voter, err := st.CreateUser(ctx, "voter", "pw")
	if err != nil {
		t.Fatalf("create voter: %v", err)
	}

	score, err := st.UpvoteEntry(ctx, entry.ID, voter.ID)
	if err != nil {
		t.Fatalf("upvote: %v", err)
	}
	if score != entry.Score+1 {
		t.Fatalf("expected score %d, got %d", entry.Score+1, score)
	}

	if _, err := st.UpvoteEntry(ctx, entry.ID, voter.ID); !errors.Is(err, store.ErrDuplicateVote) {
		t.Fatalf("expected ErrDuplicateVote, got %v", err)
	}
	got, _ := st.GetEntry(ctx, entry.ID)
	if got.Score != entry.Score+1 {
		t.Fatalf("duplicate vote changed score to %d", got.Score)
	}

	updated, err := st.GetUser(ctx, author.ID)
	if err != nil {
		t.Fatalf("get author: %v", err)
	}
	if updated.Karma != 1 {
		t.Fatalf("expected author karma 1, got %d", updated.Karma)
	}
}

func TestUpvoteMissingTarget(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()
	voter, err := st.CreateUser(ctx, "voter", "pw")
	if err != nil {
		t.Fatalf("create voter: %v", err)
	}

	if _, err := st.UpvoteEntry(ctx, 999, voter.ID); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("expected ErrNotFound for entry, got %v", err)
	}
	if _, err := st.UpvoteComment(ctx, 999, voter.ID); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("expected ErrNotFound for comment, got %v", err)
	}

	var votes int
	if err := st.db.QueryRow(`SELECT COUNT(*) FROM votes`).Scan(&votes); err != nil {
		t.Fatalf("count votes: %v", err)
	}
	if votes != 0 {
		t.Fatalf("expected no votes recorded, got %d", votes)
	}
}

func TestCommentAndReply(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()
	user, entry := seedEntry(t, st)

	comment := model.Comment{EntryID: entry.ID, Text: "First", UserID: user.ID, CreatedAt: time.Now()}
	commentID, err := st.CreateComment(ctx, &comment)
	if err != nil {
		t.Fatalf("create comment: %v", err)
	}

	reply := model.Comment{EntryID: entry.ID, ParentID: &commentID, Text: "Reply", UserID: user.ID}
	if _, err := st.CreateComment(ctx, &reply); err != nil {
		t.Fatalf("create reply: %v", err)
	}

	comments, err := st.ListCommentsByEntry(ctx, entry.ID)
	if err != nil {
		t.Fatalf("list comments: %v", err)
	}
	if len(comments) != 2 {
		t.Fatalf("expected 2 comments, got %d", len(comments))
	}

	got, _ := st.GetEntry(ctx, entry.ID)
	if got.CommentCount != 2 {
		t.Fatalf("expected comment_count 2, got %d", got.CommentCount)
	}

	orphan := model.Comment{EntryID: 12345, Text: "nowhere", UserID: user.ID}
	if _, err := st.CreateComment(ctx, &orphan); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	missingParent := int64(777)
	badReply := model.Comment{EntryID: entry.ID, ParentID: &missingParent, Text: "lost", UserID: user.ID}
	if _, err := st.CreateComment(ctx, &badReply); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("expected ErrNotFound for missing parent, got %v", err)
	}
}

func TestListTopEntries(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()
	user, err := st.CreateUser(ctx, "poster", "pw")
	if err != nil {
		t.Fatalf("create user: %v", err)
	}

	for i, score := range []int{1, 10, 5} {
		entry := model.Entry{Title: fmt.Sprintf("Entry %d", i), Score: score, UserID: user.ID}
		if _, err := st.CreateEntry(ctx, &entry); err != nil {
			t.Fatalf("create entry: %v", err)
		}
	}

	entries, err := st.ListTopEntries(ctx, 2)
	if err != nil {
		t.Fatalf("list entries: %v", err)
	}
	if len(entries) != 2 {
		t.Fatalf("expected 2 entries, got %d", len(entries))
	}
	if entries[0].Score != 10 || entries[1].Score != 5 {
		t.Fatalf("unexpected order: %d, %d", entries[0].Score, entries[1].Score)
	}
	if entries[0].Username != "poster" {
		t.Fatalf("expected username joined, got %q", entries[0].Username)
	}
}

func TestGetEntryByURL(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()
	_, entry := seedEntry(t, st)

	dup := model.Entry{Title: "Same link again", URL: entry.URL, UserID: entry.UserID}
	if _, err := st.CreateEntry(ctx, &dup); err != nil {
		t.Fatalf("create entry: %v", err)
	}

	got, err := st.GetEntryByURL(ctx, entry.URL)
	if err != nil {
		t.Fatalf("get by url: %v", err)
	}
	if got.ID != entry.ID {
		t.Fatalf("expected oldest entry %d, got %d", entry.ID, got.ID)
	}
	if _, err := st.GetEntryByURL(ctx, "https://nowhere.example"); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestDSN(t *testing.T) {
	const pragmas = "_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)"
	if got := DSN("hnews.db"); got != "hnews.db?"+pragmas {
		t.Fatalf("unexpected dsn %q", got)
	}
	if got := DSN("file:x?mode=memory&cache=shared"); got != "file:x?mode=memory&cache=shared&"+pragmas {
		t.Fatalf("unexpected dsn %q", got)
	}
}

func TestPragmasOnEveryConnection(t *testing.T) {
	st, err := Open(filepath.Join(t.TempDir(), "hnews.db"))
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	defer st.Close()
	ctx := context.Background()

	// Hold several connections at once so the pool has to open new ones.
	for i := 0; i < 3; i++ {
		conn, err := st.DB().Conn(ctx)
		if err != nil {
			t.Fatalf("conn: %v", err)
		}
		defer conn.Close()

		var fk, timeout int
		if err := conn.QueryRowContext(ctx, `PRAGMA foreign_keys`).Scan(&fk); err != nil {
			t.Fatalf("foreign_keys: %v", err)
		}
		if err := conn.QueryRowContext(ctx, `PRAGMA busy_timeout`).Scan(&timeout); err != nil {
			t.Fatalf("busy_timeout: %v", err)
		}
		if fk != 1 || timeout != 5000 {
			t.Fatalf("connection %d: foreign_keys=%d busy_timeout=%d", i, fk, timeout)
		}
	}
}
