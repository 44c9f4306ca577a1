package browser

import (
	"fmt"
	"io"
	"regexp"
	"strconv"
	"strings"
	"time"

	"golang.org/x/net/html"

	"github.com/kalambet/xreply/internal/candidate"
)

const (
	articleSelector = `article[data-testid="tweet"]`
	replyButton     = `[data-testid="reply"]`
	composerBox     = `[data-testid="tweetTextarea_0"]`
	composerEdit    = `[contenteditable="true"][role="textbox"]`
	submitInline    = `[data-testid="tweetButtonInline"]`
	submitModal     = `[data-testid="tweetButton"]`
)

var (
	statusPathRe  = regexp.MustCompile(`^/([A-Za-z0-9_]+)/status/(\d+)`)
	profilePathRe = regexp.MustCompile(`^/([A-Za-z0-9_]+)$`)
	countRe       = regexp.MustCompile(`^([\d,.]+)([KkMm]?)(?:\s|$)`)
)

func attr(n *html.Node, key string) string {
	for _, a := range n.Attr {
		if a.Key == key {
			return a.Val
		}
	}
	return ""
}

func testID(n *html.Node) string { return attr(n, "data-testid") }

// walk visits n and its descendants in document order until visit returns
// false for a node, which prunes that node's subtree.
func walk(n *html.Node, visit func(*html.Node) bool) {
	if !visit(n) {
		return
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		walk(c, visit)
	}
}

func find(n *html.Node, match func(*html.Node) bool) *html.Node {
	var found *html.Node
	walk(n, func(x *html.Node) bool {
		if found != nil {
			return false
		}
		if x != n && x.Type == html.ElementNode && match(x) {
			found = x
			return false
		}
		return true
	})
	return found
}

func byTestID(id string) func(*html.Node) bool {
	return func(n *html.Node) bool { return testID(n) == id }
}

// text returns the visible text of n. Emoji are rendered as <img alt>, so the
// alt text stands in for them.
func text(n *html.Node) string {
	var b strings.Builder
	walk(n, func(x *html.Node) bool {
		switch {
		case x.Type == html.TextNode:
			b.WriteString(x.Data)
		case x.Type == html.ElementNode && x.Data == "img":
			b.WriteString(attr(x, "alt"))
		case x.Type == html.ElementNode && x.Data == "br":
			b.WriteString("\n")
		}
		return true
	})
	return b.String()
}

// articles returns every post article in document order.
func articles(doc *html.Node) []*html.Node {
	var out []*html.Node
	walk(doc, func(n *html.Node) bool {
		if n.Type == html.ElementNode && n.Data == "article" && testID(n) == "tweet" {
			out = append(out, n)
			return false
		}
		return true
	})
	return out
}

// ParseArticles extracts candidates from a page snapshot, one per post
// article, in page order.
func ParseArticles(r io.Reader) ([]candidate.Candidate, error) {
	doc, err := html.Parse(r)
	if err != nil {
		return nil, fmt.Errorf("parsing page: %w", err)
	}
	arts := articles(doc)
	cands := make([]candidate.Candidate, 0, len(arts))
	for _, a := range arts {
		cands = append(cands, parseArticle(a))
	}
	return cands, nil
}

func parseArticle(a *html.Node) candidate.Candidate {
	var c candidate.Candidate

	// The post's own permalink wraps its <time>; quoted posts carry other
	// status links.
	var permalink string
	walk(a, func(n *html.Node) bool {
		if permalink != "" {
			return false
		}
		if n.Type == html.ElementNode && n.Data == "a" && statusPathRe.MatchString(attr(n, "href")) &&
			find(n, func(x *html.Node) bool { return x.Data == "time" }) != nil {
			permalink = attr(n, "href")
		}
		return true
	})
	if permalink == "" {
		if l := find(a, func(n *html.Node) bool { return n.Data == "a" && statusPathRe.MatchString(attr(n, "href")) }); l != nil {
			permalink = attr(l, "href")
		}
	}
	if m := statusPathRe.FindStringSubmatch(permalink); m != nil {
		c.AuthorHandle = m[1]
		c.ID = m[2]
		c.URL = "https://x.com" + m[0]
	}

	if un := find(a, byTestID("User-Name")); un != nil {
		if l := find(un, func(n *html.Node) bool { return n.Data == "a" && profilePathRe.MatchString(attr(n, "href")) }); l != nil {
			c.AuthorHandle = strings.TrimPrefix(attr(l, "href"), "/")
		}
		if name := strings.TrimSpace(strings.SplitN(text(un), "@", 2)[0]); name != "" {
			c.AuthorName = name
		}
	}

	if t := find(a, func(n *html.Node) bool { return n.Data == "time" }); t != nil {
		if ts, err := time.Parse(time.RFC3339, attr(t, "datetime")); err == nil {
			ts = ts.UTC()
			c.CreatedAt = &ts
		}
	}

	if body := find(a, byTestID("tweetText")); body != nil {
		c.Text = strings.TrimSpace(text(body))
	}

	if sc := find(a, byTestID("socialContext")); sc != nil {
		social := strings.ToLower(text(sc))
		c.IsPinned = strings.Contains(social, "pinned")
		c.IsRepost = strings.Contains(social, "reposted")
	}
	if candidate.IsRepostText(c.Text) {
		c.IsRepost = true
	}

	likes, okL := buttonCount(a, "like", "unlike")
	replies, okR := buttonCount(a, "reply")
	if okL || okR {
		c.Engagement = &candidate.Engagement{Likes: likes, Replies: replies}
	}

	if c.ID == "" && c.AuthorHandle != "" {
		c.ID = candidate.FallbackID(c.AuthorHandle, c.Text)
	}
	return c
}

// buttonCount reads an engagement counter from the aria-label of the first
// button with one of ids, e.g. "12 Likes. Like". A button without a number
// counts as zero.
func buttonCount(a *html.Node, ids ...string) (int, bool) {
	b := find(a, func(n *html.Node) bool {
		id := testID(n)
		for _, want := range ids {
			if id == want {
				return true
			}
		}
		return false
	})
	if b == nil {
		return 0, false
	}
	label := attr(b, "aria-label")
	if label == "" {
		label = strings.TrimSpace(text(b))
	}
	return parseCount(label), true
}

// parseCount turns "1,234", "12", "1.5K" or "2M" into an integer.
func parseCount(s string) int {
	m := countRe.FindStringSubmatch(strings.TrimSpace(s))
	if m == nil {
		return 0
	}
	num := strings.ReplaceAll(m[1], ",", "")
	mult := 1.0
	switch strings.ToUpper(m[2]) {
	case "K":
		mult = 1e3
	case "M":
		mult = 1e6
	}
	f, err := strconv.ParseFloat(num, 64)
	if err != nil {
		return 0
	}
	return int(f * mult)
}

// ProfileHandle returns the handle of the logged-in account from the side
// navigation's profile link, or "" when the page shows no session.
func ProfileHandle(r io.Reader) (string, error) {
	doc, err := html.Parse(r)
	if err != nil {
		return "", fmt.Errorf("parsing page: %w", err)
	}
	l := find(doc, func(n *html.Node) bool {
		return n.Data == "a" && testID(n) == "AppTabBar_Profile_Link"
	})
	if l == nil {
		return "", nil
	}
	if m := profilePathRe.FindStringSubmatch(attr(l, "href")); m != nil {
		return m[1], nil
	}
	return "", nil
}

// targetIndex locates target among the parsed articles of a page: by id
// first, then by the opening of its text.
func targetIndex(cands []candidate.Candidate, target candidate.Candidate) int {
	if target.ID != "" {
		for i, c := range cands {
			if c.ID == target.ID {
				return i
			}
		}
	}
	prefix := candidate.Truncate(strings.TrimSpace(target.Text), 50)
	if prefix == "" {
		return -1
	}
	for i, c := range cands {
		if strings.Contains(c.Text, prefix) {
			return i
		}
	}
	return -1
}
