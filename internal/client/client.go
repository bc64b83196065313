// Package client provides a Go client for the hnews API.
package client

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/alphabot-ai/hnews/internal/model"
)

// Client is an hnews API client.
type Client struct {
	BaseURL    string
	HTTPClient *http.Client
	APIKey     string
}

// New creates a new hnews client.
func New(baseURL string) *Client {
	return &Client{
		BaseURL:    strings.TrimRight(baseURL, "/"),
		HTTPClient: &http.Client{Timeout: 30 * time.Second},
	}
}

// Errors
var (
	ErrNotLoggedIn = errors.New("not logged in")
)

// APIError is a non-2xx response from the server.
type APIError struct {
	Status  int
	Message string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("hnews: %d %s", e.Status, e.Message)
}

// StatusOf returns the HTTP status carried by err, or 0.
func StatusOf(err error) int {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.Status
	}
	return 0
}

// IsAuthenticated reports whether the client holds an API key.
func (c *Client) IsAuthenticated() bool {
	return c.APIKey != ""
}

// Login exchanges credentials for an API key and keeps it on the client.
func (c *Client) Login(username, password string) (string, error) {
	var result struct {
		APIKey string `json:"apikey"`
	}
	err := c.post("/v1/login", url.Values{"username": {username}, "password": {password}}, &result)
	if err != nil {
		return "", err
	}
	c.APIKey = result.APIKey
	return result.APIKey, nil
}

// Logout invalidates the client's API key.
func (c *Client) Logout() error {
	if !c.IsAuthenticated() {
		return ErrNotLoggedIn
	}
	if err := c.post("/v1/login/logout", url.Values{"apikey": {c.APIKey}}, nil); err != nil {
		return err
	}
	c.APIKey = ""
	return nil
}

// UpvoteEntry adds a point to an entry and returns its new score.
func (c *Client) UpvoteEntry(id int64) (int, error) {
	return c.upvote("/v1/login/entry/upvote", id)
}

// UpvoteComment adds a point to a comment and returns its new score.
func (c *Client) UpvoteComment(id int64) (int, error) {
	return c.upvote("/v1/login/comment/upvote", id)
}

func (c *Client) upvote(path string, id int64) (int, error) {
	if !c.IsAuthenticated() {
		return 0, ErrNotLoggedIn
	}
	var result struct {
		Score int `json:"score"`
	}
	if err := c.post(path, c.withKey(url.Values{"id": {strconv.FormatInt(id, 10)}}), &result); err != nil {
		return 0, err
	}
	return result.Score, nil
}

// CommentEntry posts a top-level comment on an entry.
func (c *Client) CommentEntry(entryID int64, text string) (*model.Comment, error) {
	if !c.IsAuthenticated() {
		return nil, ErrNotLoggedIn
	}
	var comment model.Comment
	params := url.Values{"id": {strconv.FormatInt(entryID, 10)}, "comment": {text}}
	if err := c.post("/v1/login/entry/comment", c.withKey(params), &comment); err != nil {
		return nil, err
	}
	return &comment, nil
}

// ReplyComment posts a reply under a comment.
func (c *Client) ReplyComment(commentID int64, text string) (*model.Comment, error) {
	if !c.IsAuthenticated() {
		return nil, ErrNotLoggedIn
	}
	var comment model.Comment
	params := url.Values{"id": {strconv.FormatInt(commentID, 10)}, "reply": {text}}
	if err := c.post("/v1/login/comment/reply", c.withKey(params), &comment); err != nil {
		return nil, err
	}
	return &comment, nil
}

// News returns the front page.
func (c *Client) News() ([]model.Entry, error) {
	var result struct {
		Values []model.Entry `json:"values"`
	}
	if err := c.get("/v1/news", nil, &result); err != nil {
		return nil, err
	}
	return result.Values, nil
}

// Comments returns an entry and its comment tree.
func (c *Client) Comments(entryID int64) (*model.Entry, []model.CommentNode, error) {
	var result struct {
		Entry  model.Entry         `json:"entry"`
		Values []model.CommentNode `json:"values"`
	}
	if err := c.get("/v1/comments", url.Values{"id": {strconv.FormatInt(entryID, 10)}}, &result); err != nil {
		return nil, nil, err
	}
	return &result.Entry, result.Values, nil
}

func (c *Client) withKey(params url.Values) url.Values {
	params.Set("apikey", c.APIKey)
	return params
}

func (c *Client) post(path string, params url.Values, out any) error {
	resp, err := c.HTTPClient.PostForm(c.BaseURL+path, params)
	if err != nil {
		return err
	}
	return decode(resp, out)
}

func (c *Client) get(path string, params url.Values, out any) error {
	u := c.BaseURL + path
	if len(params) > 0 {
		u += "?" + params.Encode()
	}
	resp, err := c.HTTPClient.Get(u)
	if err != nil {
		return err
	}
	return decode(resp, out)
}

func decode(resp *http.Response, out any) error {
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		var payload struct {
			Error string `json:"error"`
		}
		msg := strings.TrimSpace(string(body))
		if json.Unmarshal(body, &payload) == nil && payload.Error != "" {
			msg = payload.Error
		}
		return &APIError{Status: resp.StatusCode, Message: msg}
	}
	if out == nil {
		return nil
	}
	return json.Unmarshal(body, out)
}
