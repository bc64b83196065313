package httpapp_test

import (
	"context"
	"net"
	"net/http"
	"testing"

	"github.com/alphabot-ai/hnews/internal/auth"
	"github.com/alphabot-ai/hnews/internal/client"
	"github.com/alphabot-ai/hnews/internal/config"
	httpapp "github.com/alphabot-ai/hnews/internal/http"
	"github.com/alphabot-ai/hnews/internal/logging"
	"github.com/alphabot-ai/hnews/internal/model"
	"github.com/alphabot-ai/hnews/internal/session"
	"github.com/alphabot-ai/hnews/internal/store/sqlite"
)

func TestEndToEndServer(t *testing.T) {
	st, err := sqlite.Open("file:e2e_test?mode=memory&cache=shared")
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	defer st.Close()

	ctx := context.Background()
	author, err := st.CreateUser(ctx, "bob", "hunter2")
	if err != nil {
		t.Fatalf("create user: %v", err)
	}
	if _, err := st.CreateUser(ctx, "alice", "secret"); err != nil {
		t.Fatalf("create user: %v", err)
	}
	entryID, err := st.CreateEntry(ctx, &model.Entry{Title: "E2E Entry", URL: "https://example.com", UserID: author.ID})
	if err != nil {
		t.Fatalf("create entry: %v", err)
	}

	cfg := config.Config{Addr: ":0", NewsLimit: 30}
	authSvc := auth.NewService(st, session.NewMemory())
	server := httpapp.NewServer(st, authSvc, cfg, logging.Discard())

	listener, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	defer listener.Close()

	httpServer := &http.Server{Handler: server}
	go func() {
		_ = httpServer.Serve(listener)
	}()
	defer httpServer.Close()

	c := client.New("http://" + listener.Addr().String())
	if _, err := c.Login("alice", "secret"); err != nil {
		t.Fatalf("login: %v", err)
	}

	score, err := c.UpvoteEntry(entryID)
	if err != nil {
		t.Fatalf("upvote: %v", err)
	}
	if score != 1 {
		t.Fatalf("expected score 1, got %d", score)
	}

	comment, err := c.CommentEntry(entryID, "Nice link")
	if err != nil {
		t.Fatalf("comment: %v", err)
	}
	if _, err := c.ReplyComment(comment.ID, "Agreed"); err != nil {
		t.Fatalf("reply: %v", err)
	}

	news, err := c.News()
	if err != nil {
		t.Fatalf("news: %v", err)
	}
	if len(news) != 1 || news[0].CommentCount != 2 {
		t.Fatalf("unexpected news %+v", news)
	}

	key := c.APIKey
	if err := c.Logout(); err != nil {
		t.Fatalf("logout: %v", err)
	}
	c.APIKey = key
	if _, err := c.UpvoteComment(comment.ID); client.StatusOf(err) != http.StatusUnauthorized {
		t.Fatalf("expected 401 after logout, got %v", err)
	}
}
