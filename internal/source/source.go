// Package source fetches the candidates of a run: the replies under the
// account's latest post, or the posts of a set of curated lists.
package source

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"unicode/utf8"

	"golang.org/x/sync/errgroup"

	"github.com/kalambet/xreply/internal/candidate"
	"github.com/kalambet/xreply/internal/config"
)

// Timeline reads posts from X. Both the bird CLI and the browser session
// implement it.
type Timeline interface {
	UserPosts(ctx context.Context, handle string) ([]candidate.Candidate, error)
	Replies(ctx context.Context, postID string) ([]candidate.Candidate, error)
	ListPosts(ctx context.Context, listID string) ([]candidate.Candidate, error)
}

// Batch is what one fetch yields.
type Batch struct {
	// Context is the text of the post the candidates reply to, empty when
	// the candidates are standalone posts.
	Context    string
	ContextID  string
	Candidates []candidate.Candidate
}

// Source produces the candidate batch of a run. An empty source yields an
// empty batch and no error.
type Source interface {
	Fetch(ctx context.Context) (Batch, error)
}

// New returns the source for rc.Mode.
func New(tl Timeline, rc config.RunConfig, logger *slog.Logger) (Source, error) {
	switch rc.Mode {
	case config.ModeThread:
		return NewThread(tl, rc, logger), nil
	case config.ModeWatchList:
		return NewWatchList(tl, rc, logger), nil
	default:
		return nil, fmt.Errorf("no source for mode %q", rc.Mode)
	}
}

// normalize drops reposts, items without an author and items whose text is
// shorter than minLen runes. Items without an id get the fallback id.
func normalize(in []candidate.Candidate, minLen int) []candidate.Candidate {
	out := make([]candidate.Candidate, 0, len(in))
	for _, c := range in {
		if c.IsRepost || candidate.IsRepostText(c.Text) {
			continue
		}
		if c.AuthorHandle == "" || c.AuthorHandle == candidate.UnknownAuthor {
			continue
		}
		c.Text = strings.TrimSpace(c.Text)
		if utf8.RuneCountInString(c.Text) < minLen {
			continue
		}
		if c.ID == "" {
			c.ID = candidate.FallbackID(c.AuthorHandle, c.Text)
		}
		out = append(out, c)
	}
	return out
}

func sameHandle(a, b string) bool {
	return strings.EqualFold(strings.TrimPrefix(a, "@"), strings.TrimPrefix(b, "@"))
}

// ThreadSource yields the replies under the account's latest original post.
type ThreadSource struct {
	tl     Timeline
	rc     config.RunConfig
	logger *slog.Logger
}

func NewThread(tl Timeline, rc config.RunConfig, logger *slog.Logger) *ThreadSource {
	if logger == nil {
		logger = slog.Default()
	}
	return &ThreadSource{tl: tl, rc: rc, logger: logger}
}

func (s *ThreadSource) Fetch(ctx context.Context) (Batch, error) {
	posts, err := s.tl.UserPosts(ctx, s.rc.Handle)
	if err != nil {
		return Batch{}, fmt.Errorf("fetching posts of @%s: %w", s.rc.Handle, err)
	}
	root, ok := s.latestOriginal(posts)
	if !ok {
		s.logger.Info("no recent post found", "handle", s.rc.Handle)
		return Batch{}, nil
	}
	s.logger.Info("latest post", "id", root.ID, "text", candidate.Preview(root.Text, 80))

	replies, err := s.tl.Replies(ctx, root.ID)
	if err != nil {
		return Batch{}, fmt.Errorf("fetching replies to %s: %w", root.ID, err)
	}

	cands := normalize(replies, s.rc.MinTextLength)
	kept := cands[:0]
	for _, c := range cands {
		if c.ID == root.ID {
			continue
		}
		if sameHandle(c.AuthorHandle, s.rc.Handle) || (s.rc.UserID != "" && c.AuthorID == s.rc.UserID) {
			c.IsSelfAuthored = true
		}
		kept = append(kept, c)
	}
	s.logger.Info("found replies", "count", len(kept), "post", root.ID)
	return Batch{Context: root.Text, ContextID: root.ID, Candidates: kept}, nil
}

// latestOriginal picks the first post that is neither a repost, a reply to
// someone else, pinned nor ignored. When none qualifies the first non-ignored
// post is used.
func (s *ThreadSource) latestOriginal(posts []candidate.Candidate) (candidate.Candidate, bool) {
	var fallback *candidate.Candidate
	for i := range posts {
		p := posts[i]
		if p.ID == "" || s.rc.Ignored(p.ID) {
			continue
		}
		if fallback == nil {
			fallback = &posts[i]
		}
		if p.IsRepost || candidate.IsRepostText(p.Text) || p.IsPinned {
			continue
		}
		if p.InReplyToUserID != "" && p.InReplyToUserID != s.rc.UserID {
			continue
		}
		return p, true
	}
	if fallback != nil {
		return *fallback, true
	}
	return candidate.Candidate{}, false
}

// WatchListSource yields the original posts of the configured lists.
type WatchListSource struct {
	tl     Timeline
	rc     config.RunConfig
	logger *slog.Logger
}

func NewWatchList(tl Timeline, rc config.RunConfig, logger *slog.Logger) *WatchListSource {
	if logger == nil {
		logger = slog.Default()
	}
	return &WatchListSource{tl: tl, rc: rc, logger: logger}
}

// Fetch reads all lists concurrently. Results keep the configured list order
// and the first occurrence of a post wins. One failing list fails the fetch.
func (s *WatchListSource) Fetch(ctx context.Context) (Batch, error) {
	results := make([][]candidate.Candidate, len(s.rc.ListIDs))

	g, gctx := errgroup.WithContext(ctx)
	for i, id := range s.rc.ListIDs {
		g.Go(func() error {
			posts, err := s.tl.ListPosts(gctx, id)
			if err != nil {
				return fmt.Errorf("fetching list %s: %w", id, err)
			}
			results[i] = posts
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return Batch{}, err
	}

	seen := make(map[string]bool)
	var merged []candidate.Candidate
	for i, posts := range results {
		kept := normalize(posts, s.rc.MinTextLength)
		s.logger.Debug("list fetched", "list", s.rc.ListIDs[i], "posts", len(posts), "kept", len(kept))
		for _, c := range kept {
			if seen[c.ID] {
				continue
			}
			seen[c.ID] = true
			if sameHandle(c.AuthorHandle, s.rc.Handle) {
				c.IsSelfAuthored = true
			}
			merged = append(merged, c)
		}
	}
	s.logger.Info("found list posts", "count", len(merged), "lists", len(s.rc.ListIDs))
	return Batch{Candidates: merged}, nil
}
