package main

import (
	"errors"
	"fmt"
	"math/rand"
	"time"

	"github.com/urfave/cli/v2"

	"github.com/alphabot-ai/hnews/internal/model"
	"github.com/alphabot-ai/hnews/internal/store"
	"github.com/alphabot-ai/hnews/internal/store/sqlite"
)

func openStore(c *cli.Context) (*sqlite.Store, error) {
	cfg, err := loadConfig(c)
	if err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	st, err := sqlite.Open(cfg.DBPath)
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	return st, nil
}

func cmdUserAdd(c *cli.Context) error {
	st, err := openStore(c)
	if err != nil {
		return err
	}
	defer st.Close()

	user, err := st.CreateUser(c.Context, c.String("username"), c.String("password"))
	if err != nil {
		if errors.Is(err, store.ErrDuplicateName) {
			return fmt.Errorf("user %q already exists", c.String("username"))
		}
		return err
	}
	fmt.Printf("✓ Created user '%s' (id %d)\n", user.Username, user.ID)
	return nil
}

func cmdEntryAdd(c *cli.Context) error {
	url, text := c.String("url"), c.String("text")
	if (url == "") == (text == "") {
		return errors.New("provide exactly one of --url or --text")
	}

	st, err := openStore(c)
	if err != nil {
		return err
	}
	defer st.Close()

	user, err := st.GetUserByName(c.Context, c.String("username"))
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return fmt.Errorf("no user %q", c.String("username"))
		}
		return err
	}
	entry := model.Entry{Title: c.String("title"), URL: url, Text: text, UserID: user.ID}
	id, err := st.CreateEntry(c.Context, &entry)
	if err != nil {
		return err
	}
	fmt.Printf("✓ Posted: %s\n", entry.Title)
	fmt.Printf("  ID: %d\n", id)
	return nil
}

var seedUsers = []string{"alice", "bob", "carol", "dave", "erin"}

const seedPassword = "secret"

var seedEntries = []struct {
	title string
	url   string
}{
	{"Show HN: A tiny news aggregator in Go", "https://example.com/tiny-news"},
	{"The unreasonable effectiveness of SQLite", "https://example.com/sqlite"},
	{"Why opaque tokens beat clever tokens", "https://example.com/opaque-tokens"},
	{"Ask HN: What's your favorite algorithm?", ""},
	{"How we scaled a comment tree to a million nodes", "https://example.com/comment-trees"},
	{"A field guide to HTTP status codes", "https://example.com/status-codes"},
}

var seedComments = []string{
	"Great post! This is exactly what I was looking for.",
	"I disagree with the premise here.",
	"Has anyone benchmarked this?",
	"This reminds me of the early days of the web.",
	"Interesting take. I wonder how this scales.",
	"Can you share more details about the implementation?",
	"Not sure I agree, but appreciate the perspective.",
	"Would love to see a follow-up post on this topic.",
}

func cmdSeed(c *cli.Context) error {
	st, err := openStore(c)
	if err != nil {
		return err
	}
	defer st.Close()
	ctx := c.Context
	rng := rand.New(rand.NewSource(time.Now().UnixNano()))

	var users []model.User
	for _, name := range seedUsers {
		user, err := st.CreateUser(ctx, name, seedPassword)
		if errors.Is(err, store.ErrDuplicateName) {
			user, err = st.GetUserByName(ctx, name)
		}
		if err != nil {
			return fmt.Errorf("create user %s: %w", name, err)
		}
		users = append(users, user)
	}
	fmt.Printf("✓ %d users (password %q)\n", len(users), seedPassword)

	var entryIDs []int64
	for i, e := range seedEntries {
		author := users[rng.Intn(len(users))]
		entry := model.Entry{
			Title:     e.title,
			URL:       e.url,
			UserID:    author.ID,
			CreatedAt: time.Now().Add(-time.Duration(len(seedEntries)-i) * time.Hour),
		}
		if e.url == "" {
			entry.Text = "Tell us in the comments."
		}
		id, err := st.CreateEntry(ctx, &entry)
		if err != nil {
			return fmt.Errorf("create entry: %w", err)
		}
		entryIDs = append(entryIDs, id)
	}
	fmt.Printf("✓ %d entries\n", len(entryIDs))

	comments := 0
	for _, entryID := range entryIDs {
		for i := rng.Intn(4) + 1; i > 0; i-- {
			comment := model.Comment{
				EntryID: entryID,
				Text:    seedComments[rng.Intn(len(seedComments))],
				Score:   1,
				UserID:  users[rng.Intn(len(users))].ID,
			}
			id, err := st.CreateComment(ctx, &comment)
			if err != nil {
				return fmt.Errorf("create comment: %w", err)
			}
			comments++
			if rng.Float32() < 0.3 {
				reply := model.Comment{
					EntryID:  entryID,
					ParentID: &id,
					Text:     seedComments[rng.Intn(len(seedComments))],
					Score:    1,
					UserID:   users[rng.Intn(len(users))].ID,
				}
				if _, err := st.CreateComment(ctx, &reply); err != nil {
					return fmt.Errorf("create reply: %w", err)
				}
				comments++
			}
		}
	}
	fmt.Printf("✓ %d comments\n", comments)

	votes := 0
	for _, user := range users {
		for _, entryID := range entryIDs {
			if rng.Float32() >= 0.5 {
				continue
			}
			if _, err := st.UpvoteEntry(ctx, entryID, user.ID); err != nil && !errors.Is(err, store.ErrDuplicateVote) {
				return fmt.Errorf("upvote: %w", err)
			}
			votes++
		}
	}
	fmt.Printf("✓ %d votes\n", votes)
	return nil
}
