// Package browser reads X timelines and posts replies through a Chrome
// instance driven over the DevTools protocol.
package browser

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/input"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/proto"

	"github.com/kalambet/xreply/internal/candidate"
)

const (
	baseURL       = "https://x.com"
	scrollStep    = 800
	scrollPause   = 1500 * time.Millisecond
	composerWait  = 10 * time.Second
	postSettle    = 3 * time.Second
	defaultScroll = 3
)

// ErrNotFound is returned when the page does not show the element a step
// needs, such as the target post or the reply composer.
var ErrNotFound = errors.New("element not found")

// Options configures a Session.
type Options struct {
	// ControlURL attaches to an already running Chrome. When empty, Chrome is
	// launched with ProfileDir as its user data dir so the X login persists.
	ControlURL string
	ChromeBin  string
	ProfileDir string
	Headless   bool
	NavTimeout time.Duration
	// Settle is how long to wait after navigation for the timeline to render.
	Settle  time.Duration
	Scrolls int
}

// Session owns one browser connection.
type Session struct {
	opts     Options
	browser  *rod.Browser
	launched *launcher.Launcher
	logger   *slog.Logger
}

// Open connects to Chrome, launching it when no control URL is configured.
func Open(ctx context.Context, opts Options, logger *slog.Logger) (*Session, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if opts.NavTimeout <= 0 {
		opts.NavTimeout = 30 * time.Second
	}
	if opts.Scrolls <= 0 {
		opts.Scrolls = defaultScroll
	}

	s := &Session{opts: opts, logger: logger}

	controlURL := opts.ControlURL
	if controlURL == "" {
		l := launcher.New().Headless(opts.Headless)
		if opts.ChromeBin != "" {
			l = l.Bin(opts.ChromeBin)
		}
		if opts.ProfileDir != "" {
			l = l.UserDataDir(opts.ProfileDir)
		}
		u, err := l.Context(ctx).Launch()
		if err != nil {
			return nil, fmt.Errorf("launch chrome: %w", err)
		}
		controlURL = u
		s.launched = l
		logger.Debug("launched chrome", "profile", opts.ProfileDir, "headless", opts.Headless)
	}

	b := rod.New().ControlURL(controlURL).Context(ctx)
	if err := b.Connect(); err != nil {
		s.kill()
		return nil, fmt.Errorf("connect to chrome: %w", err)
	}
	s.browser = b
	return s, nil
}

// Close stops Chrome if this session launched it. An attached Chrome is left
// running. The profile dir is left in place.
func (s *Session) Close() error {
	if s.launched == nil {
		return nil
	}
	var err error
	if s.browser != nil {
		err = s.browser.Close()
	}
	s.kill()
	return err
}

func (s *Session) kill() {
	if s.launched != nil {
		s.launched.Kill()
		s.launched = nil
	}
}

// open navigates a fresh tab to url and waits for it to settle.
func (s *Session) open(ctx context.Context, url string) (*rod.Page, error) {
	page, err := s.browser.Context(ctx).Page(proto.TargetCreateTarget{})
	if err != nil {
		return nil, fmt.Errorf("create tab: %w", err)
	}
	if err := page.Timeout(s.opts.NavTimeout).Navigate(url); err != nil {
		page.Close()
		return nil, fmt.Errorf("navigate to %s: %w", url, err)
	}
	if err := page.Timeout(s.opts.NavTimeout).WaitLoad(); err != nil {
		s.logger.Debug("page load wait", "url", url, "error", err)
	}
	if err := sleep(ctx, s.opts.Settle); err != nil {
		page.Close()
		return nil, err
	}
	return page, nil
}

// snapshot loads url, scrolls to pull in more posts and returns the HTML.
func (s *Session) snapshot(ctx context.Context, url string, scrolls int) (string, error) {
	page, err := s.open(ctx, url)
	if err != nil {
		return "", err
	}
	defer page.Close()

	for i := 0; i < scrolls; i++ {
		if _, err := page.Eval(fmt.Sprintf(`() => window.scrollBy(0, %d)`, scrollStep)); err != nil {
			s.logger.Debug("scroll failed", "url", url, "error", err)
			break
		}
		if err := sleep(ctx, scrollPause); err != nil {
			return "", err
		}
	}

	doc, err := page.HTML()
	if err != nil {
		return "", fmt.Errorf("read %s: %w", url, err)
	}
	return doc, nil
}

func (s *Session) articlesAt(ctx context.Context, url string, scrolls int) ([]candidate.Candidate, error) {
	doc, err := s.snapshot(ctx, url, scrolls)
	if err != nil {
		return nil, err
	}
	return ParseArticles(strings.NewReader(doc))
}

// UserPosts returns the posts on handle's profile page in page order.
func (s *Session) UserPosts(ctx context.Context, handle string) ([]candidate.Candidate, error) {
	return s.articlesAt(ctx, fmt.Sprintf("%s/%s", baseURL, strings.TrimPrefix(handle, "@")), 0)
}

// Replies returns the replies shown on the permalink page of postID. The
// post itself, rendered first, is left out.
func (s *Session) Replies(ctx context.Context, postID string) ([]candidate.Candidate, error) {
	cands, err := s.articlesAt(ctx, fmt.Sprintf("%s/i/status/%s", baseURL, postID), s.opts.Scrolls)
	if err != nil {
		return nil, err
	}
	out := cands[:0]
	for _, c := range cands {
		if c.ID != postID {
			out = append(out, c)
		}
	}
	return out, nil
}

// ListPosts returns the posts of the list timeline with the given id.
func (s *Session) ListPosts(ctx context.Context, listID string) ([]candidate.Candidate, error) {
	return s.articlesAt(ctx, fmt.Sprintf("%s/i/lists/%s", baseURL, listID), s.opts.Scrolls)
}

// Reply opens target's permalink, clicks its reply button, types text into
// the composer and submits it.
func (s *Session) Reply(ctx context.Context, target candidate.Candidate, text string) error {
	url := target.URL
	if url == "" {
		if target.ID == "" {
			return errors.New("browser reply: target has neither url nor id")
		}
		url = fmt.Sprintf("%s/i/status/%s", baseURL, target.ID)
	}

	page, err := s.open(ctx, url)
	if err != nil {
		return err
	}
	defer page.Close()

	if err := s.reply(ctx, page, target, text); err != nil {
		// Leave no half-written modal behind for the next navigation.
		_ = page.Keyboard.Type(input.Escape)
		return err
	}
	return nil
}

func (s *Session) reply(ctx context.Context, page *rod.Page, target candidate.Candidate, text string) error {
	doc, err := page.HTML()
	if err != nil {
		return fmt.Errorf("read page: %w", err)
	}
	cands, err := ParseArticles(strings.NewReader(doc))
	if err != nil {
		return err
	}
	idx := targetIndex(cands, target)
	if idx < 0 {
		return fmt.Errorf("post %s: %w", target.ID, ErrNotFound)
	}

	arts, err := page.Elements(articleSelector)
	if err != nil {
		return fmt.Errorf("list articles: %w", err)
	}
	if idx >= len(arts) {
		return fmt.Errorf("post %s: %w", target.ID, ErrNotFound)
	}

	has, btn, err := arts[idx].Has(replyButton)
	if err != nil || !has {
		return fmt.Errorf("reply button of %s: %w", target.ID, ErrNotFound)
	}
	if err := btn.Click(proto.InputMouseButtonLeft, 1); err != nil {
		return fmt.Errorf("click reply: %w", err)
	}

	composer, err := page.Timeout(composerWait).Race().
		Element(composerBox).
		Element(composerEdit).
		Do()
	if err != nil {
		return fmt.Errorf("reply composer: %w", ErrNotFound)
	}
	composer = composer.CancelTimeout()
	if err := composer.Click(proto.InputMouseButtonLeft, 1); err != nil {
		return fmt.Errorf("focus composer: %w", err)
	}
	if err := composer.Input(text); err != nil {
		return fmt.Errorf("type reply: %w", err)
	}

	submit, err := s.submitButton(page)
	if err != nil {
		return err
	}
	if err := submit.Click(proto.InputMouseButtonLeft, 1); err != nil {
		return fmt.Errorf("submit reply: %w", err)
	}
	s.settle(ctx, target.ID, postSettle)
	return nil
}

// settle waits for a submitted reply to land. The reply is already posted, so
// an interrupted wait is only logged.
func (s *Session) settle(ctx context.Context, id string, d time.Duration) {
	if err := sleep(ctx, d); err != nil {
		s.logger.Warn("interrupted while the reply settled", "target", id, "error", err)
	}
}

func (s *Session) submitButton(page *rod.Page) (*rod.Element, error) {
	for _, sel := range []string{submitInline, submitModal} {
		has, el, err := page.Has(sel)
		if err == nil && has {
			return el, nil
		}
	}
	return nil, fmt.Errorf("submit button: %w", ErrNotFound)
}

// WhoAmI returns the handle of the account logged in to the browser profile.
func (s *Session) WhoAmI(ctx context.Context) (string, error) {
	doc, err := s.snapshot(ctx, baseURL+"/home", 0)
	if err != nil {
		return "", err
	}
	handle, err := ProfileHandle(strings.NewReader(doc))
	if err != nil {
		return "", err
	}
	if handle == "" {
		return "", errors.New("browser profile is not logged in to x.com")
	}
	return handle, nil
}

// Authenticate verifies the browser profile is logged in as handle.
func (s *Session) Authenticate(ctx context.Context, handle string) error {
	who, err := s.WhoAmI(ctx)
	if err != nil {
		return err
	}
	want := strings.TrimPrefix(handle, "@")
	if !strings.EqualFold(who, want) {
		return fmt.Errorf("browser is logged in as @%s, want @%s", who, want)
	}
	return nil
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
