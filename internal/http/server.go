package httpapp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/alphabot-ai/hnews/internal/auth"
	"github.com/alphabot-ai/hnews/internal/config"
	"github.com/alphabot-ai/hnews/internal/logging"
	"github.com/alphabot-ai/hnews/internal/model"
	"github.com/alphabot-ai/hnews/internal/session"
	"github.com/alphabot-ai/hnews/internal/store"

	_ "github.com/alphabot-ai/hnews/docs" // swagger docs

	httpSwagger "github.com/swaggo/http-swagger"
	"github.com/swaggo/swag"
)

// Version is stamped at build time with -ldflags.
var Version = "dev"

// maxBodyBytes bounds request bodies; comments are short.
const maxBodyBytes = 64 << 10

type Server struct {
	store store.Store
	auth  *auth.Service
	cfg   config.Config
	log   logging.Logger
}

func NewServer(store store.Store, authSvc *auth.Service, cfg config.Config, log logging.Logger) *Server {
	if log == nil {
		log = logging.Discard()
	}
	return &Server{store: store, auth: authSvc, cfg: cfg, log: log}
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.withRequestLog(s.route).ServeHTTP(w, r)
}

func (s *Server) route(w http.ResponseWriter, r *http.Request) {
	path := r.URL.Path
	if strings.HasPrefix(path, "/swagger/") {
		httpSwagger.WrapHandler.ServeHTTP(w, r)
		return
	}
	segments := splitPath(path)
	if len(segments) == 0 || segments[0] != "v1" {
		notFound(w)
		return
	}
	segments = segments[1:]

	switch {
	case len(segments) == 1 && segments[0] == "login":
		if r.Method == http.MethodPost {
			s.handleLogin(w, r)
			return
		}
	case len(segments) == 2 && segments[0] == "login" && segments[1] == "logout":
		if r.Method == http.MethodPost {
			s.handleLogout(w, r)
			return
		}
	case len(segments) == 3 && segments[0] == "login" && segments[1] == "entry" && segments[2] == "upvote":
		if r.Method == http.MethodPost {
			s.handleUpvote(w, r, model.TargetEntry)
			return
		}
	case len(segments) == 3 && segments[0] == "login" && segments[1] == "comment" && segments[2] == "upvote":
		if r.Method == http.MethodPost {
			s.handleUpvote(w, r, model.TargetComment)
			return
		}
	case len(segments) == 3 && segments[0] == "login" && segments[1] == "entry" && segments[2] == "comment":
		if r.Method == http.MethodPost {
			s.handleEntryComment(w, r)
			return
		}
	case len(segments) == 3 && segments[0] == "login" && segments[1] == "comment" && segments[2] == "reply":
		if r.Method == http.MethodPost {
			s.handleCommentReply(w, r)
			return
		}
	case len(segments) == 1 && segments[0] == "news":
		if r.Method == http.MethodGet {
			s.handleNews(w, r)
			return
		}
	case len(segments) == 1 && segments[0] == "comments":
		if r.Method == http.MethodGet {
			s.handleComments(w, r)
			return
		}
	case len(segments) == 1 && segments[0] == "version":
		if r.Method == http.MethodGet {
			s.handleVersion(w, r)
			return
		}
	case len(segments) == 1 && segments[0] == "openapi.json":
		if r.Method == http.MethodGet {
			s.serveOpenAPIJSON(w, r)
			return
		}
	default:
		notFound(w)
		return
	}

	methodNotAllowed(w)
}

// handleLogin godoc
//
//	@Summary		Log in
//	@Description	Exchange a username and password for an API key.
//	@Tags			Session
//	@Accept			x-www-form-urlencoded
//	@Produce		json
//	@Param			username	formData	string	true	"Username"
//	@Param			password	formData	string	true	"Password"
//	@Success		200			{object}	map[string]string	"API key"
//	@Failure		400			{object}	map[string]string	"Missing credentials"
//	@Failure		404			{object}	map[string]string	"Invalid credentials"
//	@Router			/v1/login [post]
func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	params, ok := readParams(w, r)
	if !ok {
		return
	}
	token, user, err := s.auth.Login(r.Context(), params.Get("username"), params.Get("password"))
	if err != nil {
		switch {
		case errors.Is(err, auth.ErrMissingCredentials):
			writeError(w, http.StatusBadRequest, err)
		case errors.Is(err, auth.ErrInvalidCredentials):
			writeError(w, http.StatusNotFound, err)
		default:
			s.internalError(w, r, err)
		}
		return
	}
	s.log.Info(r.Context(), "login", "user_id", user.ID, "username", user.Username)
	writeJSON(w, http.StatusOK, map[string]string{"apikey": token})
}

// handleLogout godoc
//
//	@Summary		Log out
//	@Description	Invalidate an API key.
//	@Tags			Session
//	@Accept			x-www-form-urlencoded
//	@Produce		json
//	@Param			apikey	formData	string	true	"API key"
//	@Success		200		{object}	map[string]bool		"Logged out"
//	@Failure		404		{object}	map[string]string	"Unknown API key"
//	@Router			/v1/login/logout [post]
func (s *Server) handleLogout(w http.ResponseWriter, r *http.Request) {
	params, ok := readParams(w, r)
	if !ok {
		return
	}
	if err := s.auth.Logout(r.Context(), params.Get("apikey")); err != nil {
		if errors.Is(err, session.ErrNotFound) {
			writeError(w, http.StatusNotFound, errors.New("unknown apikey"))
			return
		}
		s.internalError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"ok": true})
}

// handleUpvote godoc
//
//	@Summary		Upvote an entry or comment
//	@Description	Add one point to the entry (/entry/upvote) or comment (/comment/upvote). One vote per user per target.
//	@Tags			Votes
//	@Accept			x-www-form-urlencoded
//	@Produce		json
//	@Param			apikey	formData	string	true	"API key"
//	@Param			id		formData	int		true	"Entry or comment id"
//	@Success		200		{object}	map[string]interface{}	"New score"
//	@Failure		401		{object}	map[string]string		"Authentication required"
//	@Failure		404		{object}	map[string]string		"Target not found"
//	@Failure		409		{object}	map[string]string		"Already voted"
//	@Router			/v1/login/entry/upvote [post]
//	@Router			/v1/login/comment/upvote [post]
func (s *Server) handleUpvote(w http.ResponseWriter, r *http.Request, target string) {
	params, ok := readParams(w, r)
	if !ok {
		return
	}
	user, ok := s.requireAuth(w, r, params)
	if !ok {
		return
	}
	missing := fmt.Errorf("%s not found", target)
	id, ok := parseID(params.Get("id"))
	if !ok {
		writeError(w, http.StatusNotFound, missing)
		return
	}

	var score int
	var err error
	if target == model.TargetEntry {
		score, err = s.store.UpvoteEntry(r.Context(), id, user.ID)
	} else {
		score, err = s.store.UpvoteComment(r.Context(), id, user.ID)
	}
	if err != nil {
		switch {
		case errors.Is(err, store.ErrNotFound):
			writeError(w, http.StatusNotFound, missing)
		case errors.Is(err, store.ErrDuplicateVote):
			writeError(w, http.StatusConflict, errors.New("already voted"))
		default:
			s.internalError(w, r, err)
		}
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"ok": true, "id": id, "score": score})
}

// handleEntryComment godoc
//
//	@Summary		Comment on an entry
//	@Description	Post a top-level comment. Empty comments are rejected before authentication.
//	@Tags			Comments
//	@Accept			x-www-form-urlencoded
//	@Produce		json
//	@Param			apikey	formData	string	true	"API key"
//	@Param			id		formData	int		true	"Entry id"
//	@Param			comment	formData	string	true	"Comment text"
//	@Success		200		{object}	model.Comment
//	@Failure		400		{object}	map[string]string	"Empty comment"
//	@Failure		401		{object}	map[string]string	"Authentication required"
//	@Failure		404		{object}	map[string]string	"Entry not found"
//	@Router			/v1/login/entry/comment [post]
func (s *Server) handleEntryComment(w http.ResponseWriter, r *http.Request) {
	params, ok := readParams(w, r)
	if !ok {
		return
	}
	text := strings.TrimSpace(params.Get("comment"))
	if text == "" {
		writeError(w, http.StatusBadRequest, errors.New("comment required"))
		return
	}
	user, ok := s.requireAuth(w, r, params)
	if !ok {
		return
	}
	entryID, ok := parseID(params.Get("id"))
	if !ok {
		writeError(w, http.StatusNotFound, errors.New("entry not found"))
		return
	}

	comment := model.Comment{
		EntryID:   entryID,
		Text:      text,
		Score:     1,
		CreatedAt: time.Now(),
		UserID:    user.ID,
		Username:  user.Username,
	}
	s.createComment(w, r, &comment, errors.New("entry not found"))
}

// handleCommentReply godoc
//
//	@Summary		Reply to a comment
//	@Description	Post a reply under an existing comment. Empty replies are rejected before authentication.
//	@Tags			Comments
//	@Accept			x-www-form-urlencoded
//	@Produce		json
//	@Param			apikey	formData	string	true	"API key"
//	@Param			id		formData	int		true	"Comment id"
//	@Param			reply	formData	string	true	"Reply text"
//	@Success		200		{object}	model.Comment
//	@Failure		400		{object}	map[string]string	"Empty reply"
//	@Failure		401		{object}	map[string]string	"Authentication required"
//	@Failure		404		{object}	map[string]string	"Comment not found"
//	@Router			/v1/login/comment/reply [post]
func (s *Server) handleCommentReply(w http.ResponseWriter, r *http.Request) {
	params, ok := readParams(w, r)
	if !ok {
		return
	}
	text := strings.TrimSpace(params.Get("reply"))
	if text == "" {
		writeError(w, http.StatusBadRequest, errors.New("reply required"))
		return
	}
	user, ok := s.requireAuth(w, r, params)
	if !ok {
		return
	}
	missing := errors.New("comment not found")
	parentID, ok := parseID(params.Get("id"))
	if !ok {
		writeError(w, http.StatusNotFound, missing)
		return
	}
	parent, err := s.store.GetComment(r.Context(), parentID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeError(w, http.StatusNotFound, missing)
			return
		}
		s.internalError(w, r, err)
		return
	}

	reply := model.Comment{
		EntryID:   parent.EntryID,
		ParentID:  &parent.ID,
		Text:      text,
		Score:     1,
		CreatedAt: time.Now(),
		UserID:    user.ID,
		Username:  user.Username,
	}
	s.createComment(w, r, &reply, missing)
}

func (s *Server) createComment(w http.ResponseWriter, r *http.Request, comment *model.Comment, missing error) {
	id, err := s.store.CreateComment(r.Context(), comment)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeError(w, http.StatusNotFound, missing)
			return
		}
		s.internalError(w, r, err)
		return
	}
	comment.ID = id
	writeJSON(w, http.StatusOK, comment)
}

// handleNews godoc
//
//	@Summary		Front page
//	@Description	Top entries ranked by score and age.
//	@Tags			Entries
//	@Produce		json
//	@Success		200	{object}	map[string]interface{}	"Entries"
//	@Router			/v1/news [get]
func (s *Server) handleNews(w http.ResponseWriter, r *http.Request) {
	entries, err := s.store.ListTopEntries(r.Context(), s.cfg.NewsLimit)
	if err != nil {
		s.internalError(w, r, err)
		return
	}
	if entries == nil {
		entries = []model.Entry{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"values": entries})
}

// handleComments godoc
//
//	@Summary		Comment thread
//	@Description	All comments on an entry, nested by reply.
//	@Tags			Comments
//	@Produce		json
//	@Param			id		query		int	true	"Entry id"
//	@Param			newsid	query		int	false	"Alias of id"
//	@Success		200	{object}	map[string]interface{}	"Entry and comment tree"
//	@Failure		400	{object}	map[string]string		"Malformed id"
//	@Failure		404	{object}	map[string]string		"Entry not found"
//	@Router			/v1/comments [get]
func (s *Server) handleComments(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	raw := query.Get("id")
	if raw == "" {
		raw = query.Get("newsid")
	}
	entryID, ok := parseID(raw)
	if !ok {
		writeError(w, http.StatusBadRequest, errors.New("not a valid item id"))
		return
	}
	entry, err := s.store.GetEntry(r.Context(), entryID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeError(w, http.StatusNotFound, errors.New("entry not found"))
			return
		}
		s.internalError(w, r, err)
		return
	}
	comments, err := s.store.ListCommentsByEntry(r.Context(), entryID)
	if err != nil {
		s.internalError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"entry":  entry,
		"values": buildCommentTree(comments),
	})
}

func (s *Server) handleVersion(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"version": Version})
}

func (s *Server) serveOpenAPIJSON(w http.ResponseWriter, r *http.Request) {
	doc, err := swag.ReadDoc()
	if err != nil {
		s.internalError(w, r, err)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_, _ = io.WriteString(w, doc)
}

// requireAuth resolves the apikey parameter. On failure it has already
// written a 401 and the caller must stop.
func (s *Server) requireAuth(w http.ResponseWriter, r *http.Request, params url.Values) (model.User, bool) {
	user, err := s.auth.Authenticate(r.Context(), params.Get("apikey"))
	if err != nil {
		if errors.Is(err, auth.ErrUnauthenticated) {
			writeError(w, http.StatusUnauthorized, err)
			return model.User{}, false
		}
		s.internalError(w, r, err)
		return model.User{}, false
	}
	return user, true
}

func (s *Server) internalError(w http.ResponseWriter, r *http.Request, err error) {
	s.log.Error(r.Context(), "request failed",
		"request_id", RequestID(r.Context()),
		"method", r.Method,
		"path", r.URL.Path,
		"err", err,
	)
	writeError(w, http.StatusInternalServerError, errors.New("internal error"))
}

func buildCommentTree(comments []model.Comment) []model.CommentNode {
	byParent := make(map[int64][]model.Comment)
	roots := make([]model.Comment, 0)
	for _, c := range comments {
		if c.ParentID == nil {
			roots = append(roots, c)
			continue
		}
		byParent[*c.ParentID] = append(byParent[*c.ParentID], c)
	}
	var build func(parent model.Comment) model.CommentNode
	build = func(parent model.Comment) model.CommentNode {
		node := model.CommentNode{Comment: parent}
		for _, child := range byParent[parent.ID] {
			node.Children = append(node.Children, build(child))
		}
		return node
	}
	nodes := make([]model.CommentNode, 0, len(roots))
	for _, root := range roots {
		nodes = append(nodes, build(root))
	}
	return nodes
}

// readParams merges the query string with a form or flat JSON object body.
// On a malformed body it writes a 400 and returns false.
func readParams(w http.ResponseWriter, r *http.Request) (url.Values, bool) {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if mediaType != "application/json" {
		if err := r.ParseForm(); err != nil {
			writeError(w, http.StatusBadRequest, err)
			return nil, false
		}
		return r.Form, true
	}

	params := r.URL.Query()
	var body map[string]any
	if err := readJSON(r.Body, &body); err != nil && !errors.Is(err, io.EOF) {
		writeError(w, http.StatusBadRequest, fmt.Errorf("invalid json body: %w", err))
		return nil, false
	}
	for key, value := range body {
		switch v := value.(type) {
		case string:
			params.Set(key, v)
		case json.Number:
			params.Set(key, v.String())
		case bool:
			params.Set(key, strconv.FormatBool(v))
		case nil:
		default:
			writeError(w, http.StatusBadRequest, fmt.Errorf("field %q must be a string or number", key))
			return nil, false
		}
	}
	return params, true
}

func readJSON(body io.ReadCloser, dest any) error {
	defer body.Close()
	dec := json.NewDecoder(body)
	dec.UseNumber()
	return dec.Decode(dest)
}

func parseID(value string) (int64, bool) {
	id, err := strconv.ParseInt(strings.TrimSpace(value), 10, 64)
	if err != nil || id <= 0 {
		return 0, false
	}
	return id, true
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, map[string]any{"error": err.Error()})
}

func notFound(w http.ResponseWriter) {
	writeError(w, http.StatusNotFound, errors.New("not found"))
}

func methodNotAllowed(w http.ResponseWriter) {
	writeError(w, http.StatusMethodNotAllowed, errors.New("method not allowed"))
}

func splitPath(path string) []string {
	path = strings.Trim(path, "/")
	if path == "" {
		return nil
	}
	return strings.Split(path, "/")
}

type ctxKey int

const requestIDKey ctxKey = iota

// RequestID returns the id assigned to the request by the logging middleware.
func RequestID(ctx context.Context) string {
	id, _ := ctx.Value(requestIDKey).(string)
	return id
}
