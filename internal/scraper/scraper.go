// Package scraper imports stories and comment threads from Hacker News into
// the hnews store.
package scraper

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/sethvargo/go-retry"
	"golang.org/x/sync/errgroup"

	"github.com/alphabot-ai/hnews/internal/logging"
	"github.com/alphabot-ai/hnews/internal/model"
	"github.com/alphabot-ai/hnews/internal/store"
)

const (
	DefaultBaseURL = "https://news.ycombinator.com"

	// fallbackAuthor owns comments whose author is gone.
	fallbackAuthor = "hn"
	maxBodyBytes   = 8 << 20
)

// Importer is the slice of the store the scraper writes to.
type Importer interface {
	store.UserStore
	store.EntryStore
	store.CommentStore
}

type Options struct {
	BaseURL string
	// Pages is how many listing pages to fetch, starting at 1.
	Pages int
	// Workers caps concurrent fetches.
	Workers int
	// Comments also imports the thread of every new entry.
	Comments   bool
	HTTPClient *http.Client
	Retries    uint64
	RetryBase  time.Duration
}

// Result counts what a run wrote.
type Result struct {
	Entries  int
	Skipped  int
	Comments int
	Users    int
}

type Scraper struct {
	st    Importer
	log   logging.Logger
	opts  Options
	base  *url.URL
	users map[string]int64

	createdUsers int
}

func New(st Importer, log logging.Logger, opts Options) (*Scraper, error) {
	if opts.BaseURL == "" {
		opts.BaseURL = DefaultBaseURL
	}
	if opts.Pages <= 0 {
		opts.Pages = 1
	}
	if opts.Workers <= 0 {
		opts.Workers = 4
	}
	if opts.HTTPClient == nil {
		opts.HTTPClient = &http.Client{Timeout: 30 * time.Second}
	}
	if opts.Retries == 0 {
		opts.Retries = 3
	}
	if opts.RetryBase <= 0 {
		opts.RetryBase = 500 * time.Millisecond
	}
	if log == nil {
		log = logging.Discard()
	}
	base, err := url.Parse(opts.BaseURL)
	if err != nil || base.Scheme == "" || base.Host == "" {
		return nil, fmt.Errorf("invalid base url %q", opts.BaseURL)
	}
	return &Scraper{st: st, log: log, opts: opts, base: base, users: map[string]int64{}}, nil
}

type imported struct {
	story   Story
	entryID int64
}

// Run fetches the listing pages concurrently, stores every story whose URL
// is not already present, then imports the threads of the new entries. A
// failed listing page fails the run; a failed thread is logged and skipped.
func (s *Scraper) Run(ctx context.Context) (Result, error) {
	var res Result

	pages := make([][]Story, s.opts.Pages)
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.opts.Workers)
	for i := range pages {
		i := i
		g.Go(func() error {
			stories, err := s.fetchPage(gctx, i+1)
			if err != nil {
				return fmt.Errorf("page %d: %w", i+1, err)
			}
			s.log.Info(gctx, "scraped page", "page", i+1, "stories", len(stories))
			pages[i] = stories
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return res, err
	}

	seen := map[int64]bool{}
	var fresh []imported
	for _, stories := range pages {
		for _, story := range stories {
			if seen[story.HNID] {
				continue
			}
			seen[story.HNID] = true
			id, created, err := s.importStory(ctx, story)
			if err != nil {
				return res, fmt.Errorf("import story %d: %w", story.HNID, err)
			}
			if !created {
				res.Skipped++
				continue
			}
			res.Entries++
			fresh = append(fresh, imported{story: story, entryID: id})
		}
	}

	if s.opts.Comments {
		n, err := s.importThreads(ctx, fresh)
		res.Comments = n
		if err != nil {
			res.Users = s.createdUsers
			return res, err
		}
	}
	res.Users = s.createdUsers
	return res, nil
}

func (s *Scraper) importStory(ctx context.Context, story Story) (int64, bool, error) {
	if _, err := s.st.GetEntryByURL(ctx, story.URL); err == nil {
		return 0, false, nil
	} else if !errors.Is(err, store.ErrNotFound) {
		return 0, false, err
	}
	userID, err := s.ensureUser(ctx, story.Author)
	if err != nil {
		return 0, false, err
	}
	entry := model.Entry{
		Title:     story.Title,
		URL:       story.URL,
		Score:     story.Points,
		CreatedAt: story.CreatedAt,
		UserID:    userID,
	}
	id, err := s.st.CreateEntry(ctx, &entry)
	if err != nil {
		return 0, false, err
	}
	return id, true, nil
}

func (s *Scraper) importThreads(ctx context.Context, fresh []imported) (int, error) {
	threads := make([][]ThreadComment, len(fresh))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.opts.Workers)
	for i, item := range fresh {
		if item.story.Comments == 0 {
			continue
		}
		i, item := i, item
		g.Go(func() error {
			comments, err := s.fetchThread(gctx, item.story.HNID)
			if err != nil {
				if gctx.Err() != nil {
					return gctx.Err()
				}
				s.log.Warn(gctx, "thread skipped", "item", item.story.HNID, "err", err)
				return nil
			}
			threads[i] = comments
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return 0, err
	}

	total := 0
	for i, item := range fresh {
		n, err := s.importThread(ctx, item.entryID, threads[i])
		total += n
		if err != nil {
			return total, fmt.Errorf("import thread %d: %w", item.story.HNID, err)
		}
	}
	return total, nil
}

// importThread writes comments in page order. parents[d] holds the id of the
// latest comment at depth d.
func (s *Scraper) importThread(ctx context.Context, entryID int64, thread []ThreadComment) (int, error) {
	var parents []int64
	n := 0
	for _, tc := range thread {
		// A gap in the indentation hangs off the deepest known comment.
		tc.Depth = max(0, min(tc.Depth, len(parents)))
		author := tc.Author
		if author == "" {
			author = fallbackAuthor
		}
		userID, err := s.ensureUser(ctx, author)
		if err != nil {
			return n, err
		}
		comment := model.Comment{
			EntryID:   entryID,
			Text:      tc.Text,
			Score:     1,
			CreatedAt: tc.CreatedAt,
			UserID:    userID,
		}
		if tc.Depth > 0 {
			parent := parents[tc.Depth-1]
			comment.ParentID = &parent
		}
		id, err := s.st.CreateComment(ctx, &comment)
		if err != nil {
			return n, err
		}
		n++
		parents = append(parents[:tc.Depth], id)
	}
	return n, nil
}

// ensureUser maps an HN username to a local user, creating it with a random
// password on first sight, so imported users cannot log in.
func (s *Scraper) ensureUser(ctx context.Context, name string) (int64, error) {
	if id, ok := s.users[name]; ok {
		return id, nil
	}
	user, err := s.st.GetUserByName(ctx, name)
	if errors.Is(err, store.ErrNotFound) {
		user, err = s.st.CreateUser(ctx, name, uuid.NewString())
		if err == nil {
			s.createdUsers++
		} else if errors.Is(err, store.ErrDuplicateName) {
			user, err = s.st.GetUserByName(ctx, name)
		}
	}
	if err != nil {
		return 0, fmt.Errorf("user %s: %w", name, err)
	}
	s.users[name] = user.ID
	return user.ID, nil
}

func (s *Scraper) fetchPage(ctx context.Context, page int) ([]Story, error) {
	body, err := s.fetch(ctx, "/news", url.Values{"p": {strconv.Itoa(page)}})
	if err != nil {
		return nil, err
	}
	return ParseFrontPage(bytes.NewReader(body), s.base)
}

func (s *Scraper) fetchThread(ctx context.Context, id int64) ([]ThreadComment, error) {
	body, err := s.fetch(ctx, "/item", url.Values{"id": {strconv.FormatInt(id, 10)}})
	if err != nil {
		return nil, err
	}
	return ParseThread(bytes.NewReader(body))
}

// fetch GETs path with exponential backoff. Transport errors, 429 and 5xx
// are retried; any other non-200 status fails at once.
func (s *Scraper) fetch(ctx context.Context, path string, query url.Values) ([]byte, error) {
	u := s.base.JoinPath(path)
	u.RawQuery = query.Encode()
	target := u.String()

	backoff := retry.WithMaxRetries(s.opts.Retries, retry.NewExponential(s.opts.RetryBase))
	return retry.DoValue(ctx, backoff, func(ctx context.Context) ([]byte, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
		if err != nil {
			return nil, err
		}
		req.Header.Set("User-Agent", "hnews-scraper")
		resp, err := s.opts.HTTPClient.Do(req)
		if err != nil {
			return nil, retry.RetryableError(err)
		}
		defer resp.Body.Close()

		switch {
		case resp.StatusCode == http.StatusOK:
		case resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500:
			s.log.Debug(ctx, "fetch retry", "url", target, "status", resp.StatusCode)
			return nil, retry.RetryableError(fmt.Errorf("GET %s: %s", target, resp.Status))
		default:
			return nil, fmt.Errorf("GET %s: %s", target, resp.Status)
		}
		body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
		if err != nil {
			return nil, retry.RetryableError(err)
		}
		return body, nil
	})
}
