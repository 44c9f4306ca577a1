// Package bird drives the Bird command-line client for X: it reads
// timelines as JSON, posts replies and reports the logged-in account.
package bird

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"strings"
	"time"

	"github.com/kalambet/xreply/internal/candidate"
)

const defaultTimeout = 30 * time.Second

// ErrCommandFailed wraps every non-zero exit of the bird binary.
var ErrCommandFailed = errors.New("bird command failed")

// Result is the captured output of one invocation.
type Result struct {
	Stdout []byte
	Stderr []byte
}

// Runner executes the bird binary. Arguments are passed as argv; no shell is
// involved.
type Runner interface {
	Run(ctx context.Context, binary string, args []string) (Result, error)
}

// execRunner runs commands with os/exec.
type execRunner struct{}

func (execRunner) Run(ctx context.Context, binary string, args []string) (Result, error) {
	cmd := exec.CommandContext(ctx, binary, args...)
	cmd.Env = append(os.Environ(), "NO_COLOR=1")

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err := cmd.Run()
	return Result{Stdout: stdout.Bytes(), Stderr: stderr.Bytes()}, err
}

// Client wraps the bird CLI.
type Client struct {
	binary  string
	timeout time.Duration
	runner  Runner
	logger  *slog.Logger
}

// New creates a Client that runs binary with a per-command timeout.
func New(binary string, timeout time.Duration, logger *slog.Logger) *Client {
	return NewWithRunner(binary, timeout, execRunner{}, logger)
}

// NewWithRunner creates a Client over a custom Runner (for testing).
func NewWithRunner(binary string, timeout time.Duration, runner Runner, logger *slog.Logger) *Client {
	if binary == "" {
		binary = "bird"
	}
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{binary: binary, timeout: timeout, runner: runner, logger: logger}
}

func (c *Client) run(ctx context.Context, args ...string) ([]byte, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	args = append(args, "--plain")
	res, err := c.runner.Run(ctx, c.binary, args)
	if err != nil {
		stderr := strings.TrimSpace(string(res.Stderr))
		if stderr == "" {
			stderr = err.Error()
		}
		return nil, fmt.Errorf("%w: %s: %s", ErrCommandFailed, args[0], candidate.Truncate(stderr, 200))
	}
	return bytes.TrimSpace(res.Stdout), nil
}

func (c *Client) runJSON(ctx context.Context, args ...string) ([]candidate.Candidate, error) {
	out, err := c.run(ctx, append(args, "--json")...)
	if err != nil {
		return nil, err
	}
	tweets, err := decodeTweets(out)
	if err != nil {
		return nil, fmt.Errorf("bird %s: %w", args[0], err)
	}
	cands := make([]candidate.Candidate, 0, len(tweets))
	for _, t := range tweets {
		cands = append(cands, t.candidate())
	}
	return cands, nil
}

// UserPosts returns the recent posts of handle, newest first.
func (c *Client) UserPosts(ctx context.Context, handle string) ([]candidate.Candidate, error) {
	return c.runJSON(ctx, "user-tweets", "@"+strings.TrimPrefix(handle, "@"))
}

// Replies returns the replies to the post with the given id.
func (c *Client) Replies(ctx context.Context, postID string) ([]candidate.Candidate, error) {
	return c.runJSON(ctx, "replies", postID)
}

// ListPosts returns the timeline of the list with the given id.
func (c *Client) ListPosts(ctx context.Context, listID string) ([]candidate.Candidate, error) {
	return c.runJSON(ctx, "list-timeline", listID)
}

// Reply posts text as a reply to target.
func (c *Client) Reply(ctx context.Context, target candidate.Candidate, text string) error {
	if target.ID == "" {
		return errors.New("bird reply: target has no id")
	}
	out, err := c.run(ctx, "reply", target.ID, text)
	if err != nil {
		return err
	}
	c.logger.Debug("bird reply output", "target", target.ID, "output", candidate.Preview(string(out), 200))
	return nil
}

// WhoAmI returns bird's description of the logged-in account.
func (c *Client) WhoAmI(ctx context.Context) (string, error) {
	out, err := c.run(ctx, "whoami")
	if err != nil {
		return "", err
	}
	return string(out), nil
}

// Authenticate verifies that bird is logged in as handle.
func (c *Client) Authenticate(ctx context.Context, handle string) error {
	who, err := c.WhoAmI(ctx)
	if err != nil {
		return err
	}
	want := strings.ToLower(strings.TrimPrefix(handle, "@"))
	if want == "" || !strings.Contains(strings.ToLower(who), want) {
		return fmt.Errorf("bird is logged in as %q, want @%s", candidate.Preview(who, 80), want)
	}
	return nil
}
