package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"math"
	"sort"
	"strings"
	"time"

	"github.com/alphabot-ai/hnews/internal/model"
	"github.com/alphabot-ai/hnews/internal/store"

	"golang.org/x/crypto/bcrypt"
	_ "modernc.org/sqlite"
)

type Store struct {
	db *sql.DB
}

func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite", DSN(path))
	if err != nil {
		return nil, err
	}
	if err := applySchema(db); err != nil {
		_ = db.Close()
		return nil, err
	}
	return &Store{db: db}, nil
}

// DSN adds the connection pragmas to path. They go in the DSN so every
// connection in the pool gets them, not just the first.
func DSN(path string) string {
	sep := "?"
	if strings.Contains(path, "?") {
		sep = "&"
	}
	return path + sep + "_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)"
}

func (s *Store) Close() error {
	return s.db.Close()
}

// DB exposes the handle so the session store can share the same file.
func (s *Store) DB() *sql.DB {
	return s.db
}

// migrations is an ordered list of SQL migrations.
// Each migration runs exactly once, tracked by schema_version table.
var migrations = []string{
	`
CREATE TABLE IF NOT EXISTS users (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	username TEXT NOT NULL,
	password_hash TEXT NOT NULL,
	karma INTEGER NOT NULL DEFAULT 0,
	created_at INTEGER NOT NULL
);
CREATE UNIQUE INDEX IF NOT EXISTS idx_users_username ON users(username);

CREATE TABLE IF NOT EXISTS entries (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	title TEXT NOT NULL,
	url TEXT,
	text TEXT,
	score INTEGER NOT NULL DEFAULT 0,
	comment_count INTEGER NOT NULL DEFAULT 0,
	created_at INTEGER NOT NULL,
	user_id INTEGER NOT NULL,
	FOREIGN KEY(user_id) REFERENCES users(id)
);
CREATE INDEX IF NOT EXISTS idx_entries_created_at ON entries(created_at DESC);

CREATE TABLE IF NOT EXISTS comments (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	entry_id INTEGER NOT NULL,
	parent_id INTEGER,
	text TEXT NOT NULL,
	score INTEGER NOT NULL DEFAULT 0,
	created_at INTEGER NOT NULL,
	user_id INTEGER NOT NULL,
	FOREIGN KEY(entry_id) REFERENCES entries(id),
	FOREIGN KEY(parent_id) REFERENCES comments(id)
);
CREATE INDEX IF NOT EXISTS idx_comments_entry_id ON comments(entry_id);

CREATE TABLE IF NOT EXISTS votes (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	target_type TEXT NOT NULL,
	target_id INTEGER NOT NULL,
	user_id INTEGER NOT NULL,
	created_at INTEGER NOT NULL
);
CREATE UNIQUE INDEX IF NOT EXISTS idx_votes_unique ON votes(target_type, target_id, user_id);
`,
	`
CREATE INDEX IF NOT EXISTS idx_entries_url ON entries(url);
`,
}

func applySchema(db *sql.DB) error {
	if _, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS schema_version (
			version INTEGER PRIMARY KEY
		)
	`); err != nil {
		return err
	}

	var currentVersion int
	row := db.QueryRow(`SELECT COALESCE(MAX(version), 0) FROM schema_version`)
	if err := row.Scan(&currentVersion); err != nil {
		return err
	}

	for i := currentVersion; i < len(migrations); i++ {
		if _, err := db.Exec(migrations[i]); err != nil {
			return fmt.Errorf("migration %d failed: %w", i+1, err)
		}
		if _, err := db.Exec(`INSERT INTO schema_version (version) VALUES (?)`, i+1); err != nil {
			return fmt.Errorf("failed to record migration %d: %w", i+1, err)
		}
	}

	return nil
}

// dummyHash keeps Authenticate's cost similar for unknown users.
var dummyHash, _ = bcrypt.GenerateFromPassword([]byte("hnews-dummy-password"), bcrypt.DefaultCost)

func (s *Store) CreateUser(ctx context.Context, username, password string) (model.User, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return model.User{}, fmt.Errorf("hash password: %w", err)
	}
	user := model.User{
		Username:     username,
		PasswordHash: string(hash),
		CreatedAt:    time.Now(),
	}
	res, err := s.db.ExecContext(ctx, `
INSERT INTO users (username, password_hash, karma, created_at)
VALUES (?, ?, 0, ?)
`, user.Username, user.PasswordHash, user.CreatedAt.Unix())
	if err != nil {
		if isUniqueViolation(err) {
			return model.User{}, store.ErrDuplicateName
		}
		return model.User{}, err
	}
	user.ID, err = res.LastInsertId()
	if err != nil {
		return model.User{}, err
	}
	return user, nil
}

func (s *Store) GetUser(ctx context.Context, id int64) (model.User, error) {
	row := s.db.QueryRowContext(ctx, `
SELECT id, username, password_hash, karma, created_at FROM users WHERE id = ?
`, id)
	return scanUser(row)
}

func (s *Store) GetUserByName(ctx context.Context, username string) (model.User, error) {
	row := s.db.QueryRowContext(ctx, `
SELECT id, username, password_hash, karma, created_at FROM users WHERE username = ?
`, username)
	return scanUser(row)
}

func (s *Store) Authenticate(ctx context.Context, username, password string) (model.User, error) {
	user, err := s.GetUserByName(ctx, username)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			_ = bcrypt.CompareHashAndPassword(dummyHash, []byte(password))
		}
		return model.User{}, err
	}
	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)); err != nil {
		return model.User{}, store.ErrBadPassword
	}
	return user, nil
}

func (s *Store) CreateEntry(ctx context.Context, entry *model.Entry) (int64, error) {
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now()
	}
	res, err := s.db.ExecContext(ctx, `
INSERT INTO entries (title, url, text, score, comment_count, created_at, user_id)
VALUES (?, ?, ?, ?, 0, ?, ?)
`, entry.Title, nullIfEmpty(entry.URL), nullIfEmpty(entry.Text), entry.Score, entry.CreatedAt.Unix(), entry.UserID)
	if err != nil {
		return 0, err
	}
	return res.LastInsertId()
}

const entryColumns = `e.id, e.title, e.url, e.text, e.score, e.comment_count, e.created_at, e.user_id, u.username`

func (s *Store) GetEntry(ctx context.Context, id int64) (model.Entry, error) {
	row := s.db.QueryRowContext(ctx, `
SELECT `+entryColumns+`
FROM entries e
LEFT JOIN users u ON u.id = e.user_id
WHERE e.id = ?
LIMIT 1
`, id)
	return scanEntry(row)
}

func (s *Store) GetEntryByURL(ctx context.Context, url string) (model.Entry, error) {
	row := s.db.QueryRowContext(ctx, `
SELECT `+entryColumns+`
FROM entries e
LEFT JOIN users u ON u.id = e.user_id
WHERE e.url = ?
ORDER BY e.id
LIMIT 1
`, url)
	return scanEntry(row)
}

// ListTopEntries ranks the most recent entries by score decayed with age.
func (s *Store) ListTopEntries(ctx context.Context, limit int) ([]model.Entry, error) {
	limit = clamp(limit, 1, 50)
	rows, err := s.db.QueryContext(ctx, `
SELECT `+entryColumns+`
FROM entries e
LEFT JOIN users u ON u.id = e.user_id
ORDER BY e.created_at DESC
LIMIT 500
`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []model.Entry
	for rows.Next() {
		entry, err := scanEntry(rows)
		if err != nil {
			return nil, err
		}
		entries = append(entries, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	now := time.Now()
	sort.SliceStable(entries, func(i, j int) bool {
		return rankScore(entries[i], now) > rankScore(entries[j], now)
	})
	if len(entries) > limit {
		entries = entries[:limit]
	}
	return entries, nil
}

func (s *Store) CreateComment(ctx context.Context, comment *model.Comment) (id int64, err error) {
	if comment.CreatedAt.IsZero() {
		comment.CreatedAt = time.Now()
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, err
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	if err = exists(ctx, tx, `SELECT 1 FROM entries WHERE id = ?`, comment.EntryID); err != nil {
		return 0, err
	}
	if comment.ParentID != nil {
		if err = exists(ctx, tx, `SELECT 1 FROM comments WHERE id = ? AND entry_id = ?`, *comment.ParentID, comment.EntryID); err != nil {
			return 0, err
		}
	}

	res, err := tx.ExecContext(ctx, `
INSERT INTO comments (entry_id, parent_id, text, score, created_at, user_id)
VALUES (?, ?, ?, ?, ?, ?)
`, comment.EntryID, nullableInt(comment.ParentID), comment.Text, comment.Score, comment.CreatedAt.Unix(), comment.UserID)
	if err != nil {
		return 0, err
	}
	id, err = res.LastInsertId()
	if err != nil {
		return 0, err
	}
	if _, err = tx.ExecContext(ctx, `UPDATE entries SET comment_count = comment_count + 1 WHERE id = ?`, comment.EntryID); err != nil {
		return 0, err
	}
	if err = tx.Commit(); err != nil {
		return 0, err
	}
	return id, nil
}

const commentColumns = `c.id, c.entry_id, c.parent_id, c.text, c.score, c.created_at, c.user_id, u.username`

func (s *Store) GetComment(ctx context.Context, id int64) (model.Comment, error) {
	row := s.db.QueryRowContext(ctx, `
SELECT `+commentColumns+`
FROM comments c
LEFT JOIN users u ON u.id = c.user_id
WHERE c.id = ?
LIMIT 1
`, id)
	return scanComment(row)
}

func (s *Store) ListCommentsByEntry(ctx context.Context, entryID int64) ([]model.Comment, error) {
	rows, err := s.db.QueryContext(ctx, `
SELECT `+commentColumns+`
FROM comments c
LEFT JOIN users u ON u.id = c.user_id
WHERE c.entry_id = ?
ORDER BY c.score DESC, c.created_at ASC, c.id ASC
`, entryID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var comments []model.Comment
	for rows.Next() {
		c, err := scanComment(rows)
		if err != nil {
			return nil, err
		}
		comments = append(comments, c)
	}
	return comments, rows.Err()
}

func (s *Store) UpvoteEntry(ctx context.Context, entryID, userID int64) (int, error) {
	return s.upvote(ctx, "entries", model.Vote{TargetType: model.TargetEntry, TargetID: entryID, UserID: userID})
}

func (s *Store) UpvoteComment(ctx context.Context, commentID, userID int64) (int, error) {
	return s.upvote(ctx, "comments", model.Vote{TargetType: model.TargetComment, TargetID: commentID, UserID: userID})
}

// upvote records vote against a row of table and credits its author. table
// is one of the two fixed names above, never user input.
func (s *Store) upvote(ctx context.Context, table string, vote model.Vote) (score int, err error) {
	if vote.CreatedAt.IsZero() {
		vote.CreatedAt = time.Now()
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, err
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	var authorID int64
	err = tx.QueryRowContext(ctx, `SELECT user_id FROM `+table+` WHERE id = ?`, vote.TargetID).Scan(&authorID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return 0, store.ErrNotFound
		}
		return 0, err
	}

	_, err = tx.ExecContext(ctx, `
INSERT INTO votes (target_type, target_id, user_id, created_at)
VALUES (?, ?, ?, ?)
`, vote.TargetType, vote.TargetID, vote.UserID, vote.CreatedAt.Unix())
	if err != nil {
		if isUniqueViolation(err) {
			return 0, store.ErrDuplicateVote
		}
		return 0, err
	}

	if _, err = tx.ExecContext(ctx, `UPDATE `+table+` SET score = score + 1 WHERE id = ?`, vote.TargetID); err != nil {
		return 0, err
	}
	if authorID != vote.UserID {
		if _, err = tx.ExecContext(ctx, `UPDATE users SET karma = karma + 1 WHERE id = ?`, authorID); err != nil {
			return 0, err
		}
	}
	if err = tx.QueryRowContext(ctx, `SELECT score FROM `+table+` WHERE id = ?`, vote.TargetID).Scan(&score); err != nil {
		return 0, err
	}
	if err = tx.Commit(); err != nil {
		return 0, err
	}
	return score, nil
}

func exists(ctx context.Context, tx *sql.Tx, query string, args ...any) error {
	var one int
	if err := tx.QueryRowContext(ctx, query, args...).Scan(&one); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return store.ErrNotFound
		}
		return err
	}
	return nil
}

type scanner interface{ Scan(dest ...any) error }

func scanUser(row scanner) (model.User, error) {
	var u model.User
	var created int64
	if err := row.Scan(&u.ID, &u.Username, &u.PasswordHash, &u.Karma, &created); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return model.User{}, store.ErrNotFound
		}
		return model.User{}, err
	}
	u.CreatedAt = time.Unix(created, 0)
	return u, nil
}

func scanEntry(row scanner) (model.Entry, error) {
	var e model.Entry
	var url, text, username sql.NullString
	var created int64
	if err := row.Scan(&e.ID, &e.Title, &url, &text, &e.Score, &e.CommentCount, &created, &e.UserID, &username); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return model.Entry{}, store.ErrNotFound
		}
		return model.Entry{}, err
	}
	e.URL = url.String
	e.Text = text.String
	e.Username = username.String
	e.CreatedAt = time.Unix(created, 0)
	return e, nil
}

func scanComment(row scanner) (model.Comment, error) {
	var c model.Comment
	var parentID sql.NullInt64
	var username sql.NullString
	var created int64
	if err := row.Scan(&c.ID, &c.EntryID, &parentID, &c.Text, &c.Score, &created, &c.UserID, &username); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return model.Comment{}, store.ErrNotFound
		}
		return model.Comment{}, err
	}
	if parentID.Valid {
		pid := parentID.Int64
		c.ParentID = &pid
	}
	c.Username = username.String
	c.CreatedAt = time.Unix(created, 0)
	return c, nil
}

func rankScore(entry model.Entry, now time.Time) float64 {
	hours := now.Sub(entry.CreatedAt).Hours()
	return float64(entry.Score) / math.Pow(hours+2, 1.5)
}

func clamp(v, min, max int) int {
	if v < min {
		return min
	}
	if v > max {
		return max
	}
	return v
}

func nullableInt(v *int64) any {
	if v == nil {
		return nil
	}
	return *v
}

func nullIfEmpty(s string) any {
	if strings.TrimSpace(s) == "" {
		return nil
	}
	return s
}

func isUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	return strings.Contains(msg, "UNIQUE constraint failed") || strings.Contains(msg, "PRIMARY KEY")
}
