package store

import (
	"context"
	"errors"

	"github.com/alphabot-ai/hnews/internal/model"
)

var (
	ErrNotFound      = errors.New("not found")
	ErrDuplicateVote = errors.New("duplicate vote")
	ErrDuplicateName = errors.New("duplicate name")
	ErrBadPassword   = errors.New("bad password")
)

// Store bundles the repositories the HTTP layer depends on.
type Store interface {
	UserStore
	EntryStore
	CommentStore
	VoteStore
	Close() error
}

type UserStore interface {
	CreateUser(ctx context.Context, username, password string) (model.User, error)
	GetUser(ctx context.Context, id int64) (model.User, error)
	GetUserByName(ctx context.Context, username string) (model.User, error)
	// Authenticate returns ErrNotFound for an unknown user and ErrBadPassword
	// when the password does not match.
	Authenticate(ctx context.Context, username, password string) (model.User, error)
}

type EntryStore interface {
	CreateEntry(ctx context.Context, entry *model.Entry) (int64, error)
	GetEntry(ctx context.Context, id int64) (model.Entry, error)
	// GetEntryByURL returns the oldest entry linking to url.
	GetEntryByURL(ctx context.Context, url string) (model.Entry, error)
	ListTopEntries(ctx context.Context, limit int) ([]model.Entry, error)
}

type CommentStore interface {
	// CreateComment attaches a comment to an entry, or a reply to a comment
	// when ParentID is set. The entry's comment count is incremented.
	CreateComment(ctx context.Context, comment *model.Comment) (int64, error)
	GetComment(ctx context.Context, id int64) (model.Comment, error)
	ListCommentsByEntry(ctx context.Context, entryID int64) ([]model.Comment, error)
}

type VoteStore interface {
	// UpvoteEntry records the vote and bumps the score in one transaction,
	// returning the new score. ErrNotFound leaves nothing written.
	UpvoteEntry(ctx context.Context, entryID, userID int64) (int, error)
	UpvoteComment(ctx context.Context, commentID, userID int64) (int, error)
}
