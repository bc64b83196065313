package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/urfave/cli/v2"

	"github.com/alphabot-ai/hnews/internal/client"
	"github.com/alphabot-ai/hnews/internal/model"
)

const defaultServerURL = "http://localhost:8080"

// CLIConfig holds the CLI client configuration persisted to disk.
type CLIConfig struct {
	BaseURL  string `json:"base_url"`
	Username string `json:"username"`
	APIKey   string `json:"apikey"`
}

func cmdLogin(c *cli.Context) error {
	cfg, _ := loadCLIConfig()
	cl := client.New(serverURL(c, cfg))
	if _, err := cl.Login(c.String("username"), c.String("password")); err != nil {
		return err
	}

	cfg = CLIConfig{BaseURL: cl.BaseURL, Username: c.String("username"), APIKey: cl.APIKey}
	if err := saveCLIConfig(cfg); err != nil {
		return fmt.Errorf("save config: %w", err)
	}
	fmt.Printf("✓ Logged in as '%s'\n", cfg.Username)
	fmt.Printf("  Config: %s\n", cliConfigPath())
	return nil
}

func cmdLogout(c *cli.Context) error {
	cfg, cl, err := loadAuthenticatedClient(c)
	if err != nil {
		return err
	}
	if err := cl.Logout(); err != nil && client.StatusOf(err) != http.StatusNotFound {
		return err
	}
	cfg.APIKey = ""
	if err := saveCLIConfig(cfg); err != nil {
		return fmt.Errorf("save config: %w", err)
	}
	fmt.Println("✓ Logged out")
	return nil
}

func cmdUpvote(c *cli.Context) error {
	entryID, commentID := c.Int64("entry"), c.Int64("comment")
	if (entryID == 0) == (commentID == 0) {
		return errors.New("provide exactly one of --entry or --comment")
	}
	_, cl, err := loadAuthenticatedClient(c)
	if err != nil {
		return err
	}

	if entryID != 0 {
		score, err := cl.UpvoteEntry(entryID)
		if err != nil {
			return err
		}
		fmt.Printf("✓ Upvoted entry %d (score %d)\n", entryID, score)
		return nil
	}
	score, err := cl.UpvoteComment(commentID)
	if err != nil {
		return err
	}
	fmt.Printf("✓ Upvoted comment %d (score %d)\n", commentID, score)
	return nil
}

func cmdComment(c *cli.Context) error {
	_, cl, err := loadAuthenticatedClient(c)
	if err != nil {
		return err
	}
	comment, err := cl.CommentEntry(c.Int64("entry"), c.String("text"))
	if err != nil {
		return err
	}
	fmt.Printf("✓ Commented on entry %d\n", comment.EntryID)
	fmt.Printf("  ID: %d\n", comment.ID)
	return nil
}

func cmdReply(c *cli.Context) error {
	_, cl, err := loadAuthenticatedClient(c)
	if err != nil {
		return err
	}
	reply, err := cl.ReplyComment(c.Int64("comment"), c.String("text"))
	if err != nil {
		return err
	}
	fmt.Printf("✓ Replied to comment %d\n", c.Int64("comment"))
	fmt.Printf("  ID: %d\n", reply.ID)
	return nil
}

func cmdNews(c *cli.Context) error {
	cfg, _ := loadCLIConfig()
	cl := client.New(serverURL(c, cfg))

	if entryID := c.Int64("entry"); entryID != 0 {
		entry, tree, err := cl.Comments(entryID)
		if err != nil {
			return err
		}
		fmt.Printf("\n%s\n", entry.Title)
		fmt.Printf("  %d points by %s | %d comments\n", entry.Score, entry.Username, entry.CommentCount)
		if entry.URL != "" {
			fmt.Printf("  URL: %s\n", entry.URL)
		}
		if entry.Text != "" {
			fmt.Printf("\n  %s\n", entry.Text)
		}
		if len(tree) > 0 {
			fmt.Println()
			printThread(tree, 1)
		}
		return nil
	}

	entries, err := cl.News()
	if err != nil {
		return err
	}
	fmt.Printf("\nhnews\n\n")
	for i, e := range entries {
		fmt.Printf("%d. %s\n", i+1, e.Title)
		fmt.Printf("   %d points by %s | %d comments | #%d\n\n", e.Score, e.Username, e.CommentCount, e.ID)
	}
	return nil
}

func printThread(nodes []model.CommentNode, depth int) {
	indent := strings.Repeat("  ", depth)
	for _, n := range nodes {
		fmt.Printf("%s[%d] %s: %s\n", indent, n.Comment.ID, n.Comment.Username, n.Comment.Text)
		printThread(n.Children, depth+1)
	}
}

// serverURL prefers --url, then the saved config, then localhost.
func serverURL(c *cli.Context, cfg CLIConfig) string {
	if u := c.String("url"); u != "" {
		return u
	}
	if cfg.BaseURL != "" {
		return cfg.BaseURL
	}
	return defaultServerURL
}

func hnewsDir() string {
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".hnews")
}

func cliConfigPath() string {
	return filepath.Join(hnewsDir(), "config.json")
}

func loadCLIConfig() (CLIConfig, error) {
	data, err := os.ReadFile(cliConfigPath())
	if err != nil {
		return CLIConfig{}, errors.New("not logged in - run 'hnews login'")
	}
	var cfg CLIConfig
	if err := json.Unmarshal(data, &cfg); err != nil {
		return CLIConfig{}, err
	}
	return cfg, nil
}

func saveCLIConfig(cfg CLIConfig) error {
	path := cliConfigPath()
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return err
	}
	data, _ := json.MarshalIndent(cfg, "", "  ")
	return os.WriteFile(path, data, 0600)
}

func loadAuthenticatedClient(c *cli.Context) (CLIConfig, *client.Client, error) {
	cfg, err := loadCLIConfig()
	if err != nil {
		return CLIConfig{}, nil, err
	}
	if cfg.APIKey == "" {
		return CLIConfig{}, nil, errors.New("not logged in - run 'hnews login'")
	}
	cl := client.New(serverURL(c, cfg))
	cl.APIKey = cfg.APIKey
	return cfg, cl, nil
}
