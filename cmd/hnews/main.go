package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/urfave/cli/v2"

	httpapp "github.com/alphabot-ai/hnews/internal/http"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newApp().RunContext(ctx, os.Args); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func newApp() *cli.App {
	return &cli.App{
		Name:    "hnews",
		Usage:   "A small Hacker News style API server and client",
		Version: httpapp.Version,
		// No subcommand runs the server.
		Flags:  serverFlags(),
		Action: cmdServe,
		Commands: []*cli.Command{
			{
				Name:    "serve",
				Aliases: []string{"server"},
				Usage:   "Start the API server",
				Flags:   serverFlags(),
				Action:  cmdServe,
			},
			{
				Name:   "useradd",
				Usage:  "Create a user",
				Flags:  append(dbFlags(), usernameFlag(), passwordFlag()),
				Action: cmdUserAdd,
			},
			{
				Name:  "entryadd",
				Usage: "Submit an entry as an existing user",
				Flags: append(dbFlags(),
					usernameFlag(),
					&cli.StringFlag{Name: "title", Usage: "Entry title", Required: true},
					&cli.StringFlag{Name: "url", Usage: "Link URL"},
					&cli.StringFlag{Name: "text", Usage: "Text body"},
				),
				Action: cmdEntryAdd,
			},
			{
				Name:   "seed",
				Usage:  "Populate the database with demo users, entries and comments",
				Flags:  dbFlags(),
				Action: cmdSeed,
			},
			{
				Name:   "scrape",
				Usage:  "Import front page stories and their comments from Hacker News",
				Flags:  scrapeFlags(),
				Action: cmdScrape,
			},
			{
				Name:   "login",
				Usage:  "Log in to a server and remember the API key",
				Flags:  []cli.Flag{serverURLFlag(), usernameFlag(), passwordFlag()},
				Action: cmdLogin,
			},
			{
				Name:   "logout",
				Usage:  "Invalidate the remembered API key",
				Flags:  []cli.Flag{serverURLFlag()},
				Action: cmdLogout,
			},
			{
				Name:  "upvote",
				Usage: "Upvote an entry or a comment",
				Flags: []cli.Flag{
					serverURLFlag(),
					&cli.Int64Flag{Name: "entry", Usage: "Entry ID"},
					&cli.Int64Flag{Name: "comment", Usage: "Comment ID"},
				},
				Action: cmdUpvote,
			},
			{
				Name:  "comment",
				Usage: "Comment on an entry",
				Flags: []cli.Flag{
					serverURLFlag(),
					&cli.Int64Flag{Name: "entry", Usage: "Entry ID", Required: true},
					&cli.StringFlag{Name: "text", Usage: "Comment text", Required: true},
				},
				Action: cmdComment,
			},
			{
				Name:  "reply",
				Usage: "Reply to a comment",
				Flags: []cli.Flag{
					serverURLFlag(),
					&cli.Int64Flag{Name: "comment", Usage: "Comment ID", Required: true},
					&cli.StringFlag{Name: "text", Usage: "Reply text", Required: true},
				},
				Action: cmdReply,
			},
			{
				Name:    "news",
				Aliases: []string{"read"},
				Usage:   "Show the front page, or one entry with its comments",
				Flags: []cli.Flag{
					serverURLFlag(),
					&cli.Int64Flag{Name: "entry", Usage: "Show this entry with comments"},
				},
				Action: cmdNews,
			},
		},
	}
}

func serverFlags() []cli.Flag {
	return append(dbFlags(),
		&cli.StringFlag{Name: "addr", Usage: "Listen address", EnvVars: []string{"HNEWS_ADDR"}},
		&cli.StringFlag{Name: "session-store", Usage: "Session backend: memory, sqlite or postgres", EnvVars: []string{"HNEWS_SESSION_STORE"}},
		&cli.StringFlag{Name: "session-dsn", Usage: "PostgreSQL DSN for the postgres session backend", EnvVars: []string{"HNEWS_SESSION_DSN"}},
		&cli.StringFlag{Name: "log-format", Usage: "Log format: text or json", EnvVars: []string{"HNEWS_LOG_FORMAT"}},
		&cli.StringFlag{Name: "log-level", Usage: "Log level: debug, info, warn or error", EnvVars: []string{"HNEWS_LOG_LEVEL"}},
	)
}

func dbFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{Name: "db", Usage: "SQLite database path", EnvVars: []string{"HNEWS_DB"}},
	}
}

func usernameFlag() cli.Flag {
	return &cli.StringFlag{Name: "username", Aliases: []string{"u"}, Usage: "Username", Required: true}
}

func passwordFlag() cli.Flag {
	return &cli.StringFlag{Name: "password", Aliases: []string{"p"}, Usage: "Password", Required: true, EnvVars: []string{"HNEWS_PASSWORD"}}
}

func serverURLFlag() cli.Flag {
	return &cli.StringFlag{Name: "url", Usage: "hnews server URL", EnvVars: []string{"HNEWS_URL"}}
}
