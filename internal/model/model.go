package model

import "time"

// User is the identity a session token resolves to. PasswordHash never
// leaves the store layer in responses.
type User struct {
	ID           int64     `json:"id"`
	Username     string    `json:"username"`
	PasswordHash string    `json:"-"`
	Karma        int       `json:"karma"`
	CreatedAt    time.Time `json:"created_at"`
}

type Entry struct {
	ID           int64     `json:"id"`
	Title        string    `json:"title"`
	URL          string    `json:"url,omitempty"`
	Text         string    `json:"text,omitempty"`
	Score        int       `json:"score"`
	CommentCount int       `json:"comment_count"`
	CreatedAt    time.Time `json:"created_at"`
	UserID       int64     `json:"user_id"`
	Username     string    `json:"username"`
}

type Comment struct {
	ID        int64     `json:"id"`
	EntryID   int64     `json:"entry_id"`
	ParentID  *int64    `json:"parent_id,omitempty"`
	Text      string    `json:"text"`
	Score     int       `json:"score"`
	CreatedAt time.Time `json:"created_at"`
	UserID    int64     `json:"user_id"`
	Username  string    `json:"username"`
}

type CommentNode struct {
	Comment  Comment       `json:"comment"`
	Children []CommentNode `json:"children,omitempty"`
}

const (
	TargetEntry   = "entry"
	TargetComment = "comment"
)

type Vote struct {
	ID         int64
	TargetType string
	TargetID   int64
	UserID     int64
	CreatedAt  time.Time
}
