package client

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestClientNew(t *testing.T) {
	c := New("https://example.com/")

	if c.BaseURL != "https://example.com" {
		t.Errorf("expected base URL 'https://example.com', got '%s'", c.BaseURL)
	}

	if c.HTTPClient == nil {
		t.Error("expected non-nil HTTP client")
	}

	if c.IsAuthenticated() {
		t.Error("expected new client to not be authenticated")
	}
}

func TestLoginStoresKey(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/login" || r.Method != http.MethodPost {
			t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
		}
		if r.FormValue("username") != "alice" || r.FormValue("password") != "secret" {
			w.WriteHeader(http.StatusNotFound)
			_ = json.NewEncoder(w).Encode(map[string]string{"error": "invalid credentials"})
			return
		}
		_ = json.NewEncoder(w).Encode(map[string]string{"apikey": "k1"})
	}))
	defer ts.Close()

	c := New(ts.URL)
	key, err := c.Login("alice", "secret")
	if err != nil {
		t.Fatalf("login: %v", err)
	}
	if key != "k1" || c.APIKey != "k1" {
		t.Fatalf("expected key k1, got %q / %q", key, c.APIKey)
	}

	_, err = New(ts.URL).Login("alice", "wrong")
	if StatusOf(err) != http.StatusNotFound {
		t.Fatalf("expected 404 api error, got %v", err)
	}
	var apiErr *APIError
	if !errors.As(err, &apiErr) || apiErr.Message != "invalid credentials" {
		t.Fatalf("expected server message, got %v", err)
	}
}

func TestUpvoteSendsKeyAndID(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/login/entry/upvote" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		if r.FormValue("apikey") != "k1" || r.FormValue("id") != "42" {
			t.Errorf("unexpected params %v", r.Form)
		}
		_ = json.NewEncoder(w).Encode(map[string]any{"ok": true, "id": 42, "score": 7})
	}))
	defer ts.Close()

	c := New(ts.URL)
	c.APIKey = "k1"
	score, err := c.UpvoteEntry(42)
	if err != nil {
		t.Fatalf("upvote: %v", err)
	}
	if score != 7 {
		t.Fatalf("expected score 7, got %d", score)
	}
}

func TestWritesRequireKey(t *testing.T) {
	c := New("http://127.0.0.1:1")
	if _, err := c.UpvoteComment(1); !errors.Is(err, ErrNotLoggedIn) {
		t.Fatalf("expected ErrNotLoggedIn, got %v", err)
	}
	if _, err := c.ReplyComment(1, "hi"); !errors.Is(err, ErrNotLoggedIn) {
		t.Fatalf("expected ErrNotLoggedIn, got %v", err)
	}
	if err := c.Logout(); !errors.Is(err, ErrNotLoggedIn) {
		t.Fatalf("expected ErrNotLoggedIn, got %v", err)
	}
}

func TestLogoutClearsKey(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]bool{"ok": true})
	}))
	defer ts.Close()

	c := New(ts.URL)
	c.APIKey = "k1"
	if err := c.Logout(); err != nil {
		t.Fatalf("logout: %v", err)
	}
	if c.IsAuthenticated() {
		t.Fatal("expected key to be cleared")
	}
}
