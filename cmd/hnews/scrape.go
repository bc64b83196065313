package main

import (
	"fmt"
	"os"

	"github.com/urfave/cli/v2"

	"github.com/alphabot-ai/hnews/internal/logging"
	"github.com/alphabot-ai/hnews/internal/scraper"
	"github.com/alphabot-ai/hnews/internal/store/sqlite"
)

func cmdScrape(c *cli.Context) error {
	cfg, err := loadConfig(c)
	if err != nil {
		return fmt.Errorf("config: %w", err)
	}
	log := logging.New(os.Stderr, cfg.LogFormat, cfg.LogLevel)

	st, err := sqlite.Open(cfg.DBPath)
	if err != nil {
		return fmt.Errorf("open db: %w", err)
	}
	defer st.Close()

	s, err := scraper.New(st, log, scraper.Options{
		BaseURL:  c.String("source"),
		Pages:    c.Int("pages"),
		Workers:  c.Int("workers"),
		Comments: c.Bool("comments"),
	})
	if err != nil {
		return err
	}
	res, err := s.Run(c.Context)
	if err != nil {
		return fmt.Errorf("scrape: %w", err)
	}
	fmt.Printf("✓ %d entries imported, %d already present\n", res.Entries, res.Skipped)
	fmt.Printf("✓ %d comments, %d new users\n", res.Comments, res.Users)
	return nil
}

func scrapeFlags() []cli.Flag {
	return append(dbFlags(),
		&cli.StringFlag{Name: "source", Usage: "Hacker News base URL", Value: scraper.DefaultBaseURL, EnvVars: []string{"HNEWS_SCRAPE_URL"}},
		&cli.IntFlag{Name: "pages", Usage: "Listing pages to fetch", Value: 1},
		&cli.IntFlag{Name: "workers", Usage: "Concurrent fetches", Value: 4},
		&cli.BoolFlag{Name: "comments", Usage: "Also import comment threads", Value: true},
		&cli.StringFlag{Name: "log-format", Usage: "Log format: text or json", EnvVars: []string{"HNEWS_LOG_FORMAT"}},
		&cli.StringFlag{Name: "log-level", Usage: "Log level: debug, info, warn or error", EnvVars: []string{"HNEWS_LOG_LEVEL"}},
	)
}
