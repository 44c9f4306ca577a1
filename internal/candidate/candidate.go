// Package candidate defines the normalized record every source produces and
// the text helpers shared by the filter and the reply generator.
package candidate

import (
	"regexp"
	"strings"
	"time"
	"unicode/utf8"
)

// Engagement holds the optional numeric signals a source may provide.
type Engagement struct {
	Likes   int `json:"likes"`
	Replies int `json:"replies"`
}

// Candidate is a fetched item eligible for a reply decision.
type Candidate struct {
	ID              string      `json:"id"`
	AuthorHandle    string      `json:"author_handle"`
	AuthorID        string      `json:"author_id,omitempty"`
	AuthorName      string      `json:"author_name,omitempty"`
	Text            string      `json:"text"`
	URL             string      `json:"url,omitempty"`
	CreatedAt       *time.Time  `json:"created_at,omitempty"`
	Engagement      *Engagement `json:"engagement,omitempty"`
	InReplyToUserID string      `json:"in_reply_to_user_id,omitempty"`
	IsPinned        bool        `json:"is_pinned,omitempty"`
	IsSelfAuthored  bool        `json:"is_self_authored,omitempty"`
	IsRepost        bool        `json:"is_repost,omitempty"`
}

// UnknownAuthor is used when a source gives no handle for an item.
const UnknownAuthor = "unknown"

// Age returns how old the candidate is at now, and false when the creation
// time is unknown.
func (c Candidate) Age(now time.Time) (time.Duration, bool) {
	if c.CreatedAt == nil {
		return 0, false
	}
	return now.Sub(*c.CreatedAt), true
}

// DisplayName returns the author's display name, falling back to the handle.
func (c Candidate) DisplayName() string {
	if c.AuthorName != "" {
		return c.AuthorName
	}
	if c.AuthorHandle != "" {
		return c.AuthorHandle
	}
	return UnknownAuthor
}

// Handle returns the author handle or UnknownAuthor.
func (c Candidate) Handle() string {
	if c.AuthorHandle == "" {
		return UnknownAuthor
	}
	return c.AuthorHandle
}

var (
	mentionRe = regexp.MustCompile(`@\w+\s*`)
	linkRe    = regexp.MustCompile(`https?://\S+`)
	linkOnly  = regexp.MustCompile(`^https?://\S+$`)
)

// StripMentions removes @handle tokens, as replies usually open with them.
func StripMentions(s string) string {
	return strings.TrimSpace(mentionRe.ReplaceAllString(s, ""))
}

// StripLinks removes http(s) URLs.
func StripLinks(s string) string {
	return strings.TrimSpace(linkRe.ReplaceAllString(s, ""))
}

// Clean strips mentions and links, the form handed to the text generator.
func Clean(s string) string {
	return StripLinks(StripMentions(s))
}

// IsLinkOnly reports whether the text consists of nothing but a single URL.
func IsLinkOnly(s string) bool {
	return linkOnly.MatchString(strings.TrimSpace(s))
}

// IsRepostText reports whether the text follows the "RT @user" reshare
// convention.
func IsRepostText(s string) bool {
	return strings.HasPrefix(strings.TrimSpace(s), "RT ")
}

// FallbackID builds a stable identifier for scraped items that lack a status
// link: the handle plus the first 30 characters of the text.
func FallbackID(handle, text string) string {
	return handle + "-" + Truncate(text, 30)
}

// Truncate cuts s to at most n runes without appending anything.
func Truncate(s string, n int) string {
	if n <= 0 {
		return ""
	}
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	r := []rune(s)
	return string(r[:n])
}

// Preview returns a single-line prefix of s suitable for log lines.
func Preview(s string, n int) string {
	return strings.ReplaceAll(Truncate(s, n), "\n", " ")
}
