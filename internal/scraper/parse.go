package scraper

import (
	"fmt"
	"io"
	"net/url"
	"strconv"
	"strings"
	"time"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

// Story is one row of a Hacker News listing page.
type Story struct {
	HNID      int64
	Rank      int
	Title     string
	URL       string
	Author    string
	Points    int
	Comments  int
	CreatedAt time.Time
}

// ThreadComment is one comment of an item page, in page order. Depth 0 is a
// top-level comment; a comment's parent is the nearest earlier comment one
// level up.
type ThreadComment struct {
	HNID      int64
	Depth     int
	Author    string
	Text      string
	CreatedAt time.Time
}

const deletedText = "[deleted]"

// ParseFrontPage extracts the stories of a listing page. Relative links
// (Ask HN and friends) are resolved against base. Job ads carry neither score
// nor author and are skipped.
func ParseFrontPage(r io.Reader, base *url.URL) ([]Story, error) {
	root, err := html.Parse(r)
	if err != nil {
		return nil, fmt.Errorf("parse listing: %w", err)
	}
	now := time.Now()

	var stories []Story
	for _, row := range findAll(root, func(n *html.Node) bool {
		return n.DataAtom == atom.Tr && hasClass(n, "athing")
	}) {
		story := Story{}
		story.HNID, _ = strconv.ParseInt(attr(row, "id"), 10, 64)
		if rank := findFirst(row, classMatcher(atom.Span, "rank")); rank != nil {
			story.Rank, _ = strconv.Atoi(strings.TrimSuffix(textOf(rank), "."))
		}
		titleline := findFirst(row, classMatcher(atom.Span, "titleline"))
		if titleline == nil {
			continue
		}
		link := findFirst(titleline, func(n *html.Node) bool { return n.DataAtom == atom.A })
		if link == nil {
			continue
		}
		story.Title = textOf(link)
		story.URL = resolve(base, attr(link, "href"))

		subtext := nextRow(row)
		if subtext == nil {
			continue
		}
		score := findFirst(subtext, classMatcher(atom.Span, "score"))
		user := findFirst(subtext, classMatcher(atom.A, "hnuser"))
		if score == nil || user == nil {
			continue
		}
		story.Points = leadingInt(textOf(score))
		story.Author = textOf(user)
		story.CreatedAt = ageOf(subtext, now)
		for _, a := range findAll(subtext, func(n *html.Node) bool {
			return n.DataAtom == atom.A && strings.HasPrefix(attr(n, "href"), "item?id=")
		}) {
			if strings.Contains(textOf(a), "comment") {
				story.Comments = leadingInt(textOf(a))
			}
		}
		stories = append(stories, story)
	}
	return stories, nil
}

// ParseThread extracts the comments of an item page. Deleted and flagged
// comments are kept with placeholder text so their replies stay attached.
func ParseThread(r io.Reader) ([]ThreadComment, error) {
	root, err := html.Parse(r)
	if err != nil {
		return nil, fmt.Errorf("parse thread: %w", err)
	}
	now := time.Now()

	var comments []ThreadComment
	for _, row := range findAll(root, func(n *html.Node) bool {
		return n.DataAtom == atom.Tr && hasClass(n, "comtr")
	}) {
		c := ThreadComment{Depth: depthOf(row), CreatedAt: ageOf(row, now)}
		c.HNID, _ = strconv.ParseInt(attr(row, "id"), 10, 64)
		if user := findFirst(row, classMatcher(atom.A, "hnuser")); user != nil {
			c.Author = textOf(user)
		}
		if body := findFirst(row, func(n *html.Node) bool { return hasClass(n, "commtext") }); body != nil {
			c.Text = paragraphs(body)
		}
		if c.Text == "" {
			c.Text = deletedText
		}
		comments = append(comments, c)
	}
	return comments, nil
}

// depthOf reads the indent attribute of td.ind, falling back to the spacer
// image width which HN draws at 40px per level.
func depthOf(row *html.Node) int {
	ind := findFirst(row, classMatcher(atom.Td, "ind"))
	if ind == nil {
		return 0
	}
	if v, err := strconv.Atoi(attr(ind, "indent")); err == nil {
		return v
	}
	if img := findFirst(ind, func(n *html.Node) bool { return n.DataAtom == atom.Img }); img != nil {
		if w, err := strconv.Atoi(attr(img, "width")); err == nil {
			return w / 40
		}
	}
	return 0
}

// ageOf reads span.age under n. The title attribute carries an ISO time and,
// on current pages, a unix timestamp; the relative text is the last resort.
func ageOf(n *html.Node, now time.Time) time.Time {
	age := findFirst(n, classMatcher(atom.Span, "age"))
	if age == nil {
		return now
	}
	fields := strings.Fields(attr(age, "title"))
	if len(fields) >= 2 {
		if sec, err := strconv.ParseInt(fields[1], 10, 64); err == nil {
			return time.Unix(sec, 0)
		}
	}
	if len(fields) >= 1 {
		if t, err := time.Parse("2006-01-02T15:04:05", fields[0]); err == nil {
			return t
		}
	}
	return parseAge(textOf(age), now)
}

// parseAge turns "3 hours ago" into a time before now. Unknown text yields now.
func parseAge(text string, now time.Time) time.Time {
	words := strings.Fields(text)
	if len(words) < 2 {
		return now
	}
	n, err := strconv.Atoi(words[0])
	if err != nil {
		return now
	}
	var unit time.Duration
	switch strings.TrimSuffix(words[1], "s") {
	case "minute":
		unit = time.Minute
	case "hour":
		unit = time.Hour
	case "day":
		unit = 24 * time.Hour
	case "month":
		unit = 30 * 24 * time.Hour
	case "year":
		unit = 365 * 24 * time.Hour
	default:
		return now
	}
	return now.Add(-time.Duration(n) * unit)
}

func leadingInt(s string) int {
	fields := strings.Fields(s)
	if len(fields) == 0 {
		return 0
	}
	n, _ := strconv.Atoi(fields[0])
	return n
}

func resolve(base *url.URL, href string) string {
	ref, err := url.Parse(href)
	if err != nil || base == nil {
		return href
	}
	return base.ResolveReference(ref).String()
}

func nextRow(n *html.Node) *html.Node {
	for s := n.NextSibling; s != nil; s = s.NextSibling {
		if s.Type == html.ElementNode {
			if s.DataAtom == atom.Tr {
				return s
			}
			return nil
		}
	}
	return nil
}

func attr(n *html.Node, key string) string {
	for _, a := range n.Attr {
		if a.Key == key {
			return a.Val
		}
	}
	return ""
}

func hasClass(n *html.Node, class string) bool {
	if n.Type != html.ElementNode {
		return false
	}
	for _, c := range strings.Fields(attr(n, "class")) {
		if c == class {
			return true
		}
	}
	return false
}

func classMatcher(a atom.Atom, class string) func(*html.Node) bool {
	return func(n *html.Node) bool {
		return n.DataAtom == a && hasClass(n, class)
	}
}

// findAll returns the matching descendants of root in document order. Matched
// nodes are not searched further.
func findAll(root *html.Node, match func(*html.Node) bool) []*html.Node {
	var out []*html.Node
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			if c.Type == html.ElementNode && match(c) {
				out = append(out, c)
				continue
			}
			walk(c)
		}
	}
	walk(root)
	return out
}

func findFirst(root *html.Node, match func(*html.Node) bool) *html.Node {
	for c := root.FirstChild; c != nil; c = c.NextSibling {
		if c.Type == html.ElementNode && match(c) {
			return c
		}
		if found := findFirst(c, match); found != nil {
			return found
		}
	}
	return nil
}

func textOf(n *html.Node) string {
	var b strings.Builder
	collectText(n, &b)
	return strings.Join(strings.Fields(b.String()), " ")
}

func collectText(n *html.Node, b *strings.Builder) {
	if n.Type == html.TextNode {
		b.WriteString(n.Data)
		return
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		collectText(c, b)
	}
}

// paragraphs renders a comment body as plain text, one blank line between
// paragraphs. The reply link lives outside commtext and never shows up here.
func paragraphs(n *html.Node) string {
	var parts []string
	var cur strings.Builder
	flush := func() {
		if s := strings.Join(strings.Fields(cur.String()), " "); s != "" {
			parts = append(parts, s)
		}
		cur.Reset()
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if c.Type == html.ElementNode && c.DataAtom == atom.P {
			flush()
			collectText(c, &cur)
			flush()
			continue
		}
		if c.Type == html.ElementNode && c.DataAtom == atom.Div && hasClass(c, "reply") {
			continue
		}
		collectText(c, &cur)
	}
	flush()
	return strings.Join(parts, "\n\n")
}
