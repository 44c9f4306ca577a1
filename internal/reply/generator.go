// Package reply turns a candidate into a reply-or-skip decision by prompting a
// text-generation backend with the account's voice spec.
package reply

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/kalambet/xreply/internal/candidate"
)

const (
	defaultTimeout   = 30 * time.Second
	defaultMaxTokens = 150
	defaultMaxChars  = 280
)

// Chatter is a text-generation backend.
type Chatter interface {
	Complete(ctx context.Context, prompt string, maxTokens int) (string, error)
}

// Options tunes a Generator. Zero values select the defaults.
type Options struct {
	Handle    string
	MaxTokens int
	MaxChars  int
	Timeout   time.Duration
}

// Generator drafts replies. It never returns an error: every failure becomes
// a skip decision so one bad call cannot stop the run.
type Generator struct {
	client Chatter
	opts   Options
}

// NewGenerator creates a Generator over client.
func NewGenerator(client Chatter, opts Options) *Generator {
	if opts.MaxTokens <= 0 {
		opts.MaxTokens = defaultMaxTokens
	}
	if opts.MaxChars <= 0 {
		opts.MaxChars = defaultMaxChars
	}
	if opts.Timeout <= 0 {
		opts.Timeout = defaultTimeout
	}
	return &Generator{client: client, opts: opts}
}

// Generate asks the backend for a reply to c. contextText is the account's
// own post when c is a reply to it, or empty. A panicking backend is
// reported as a failed generation.
func (g *Generator) Generate(ctx context.Context, voice VoiceSpec, contextText string, c candidate.Candidate) (d Decision) {
	defer func() {
		if rec := recover(); rec != nil {
			slog.Error("reply generation panicked", "target", c.ID, "panic", rec)
			d = skip(ReasonGenerationFailed)
		}
	}()

	if g.client == nil {
		slog.Warn("no text generation backend configured", "target", c.ID)
		return skip(ReasonGenerationFailed)
	}

	ctx, cancel := context.WithTimeout(ctx, g.opts.Timeout)
	defer cancel()

	prompt := BuildPrompt(voice, g.opts.Handle, contextText, c)
	raw, err := g.client.Complete(ctx, prompt, g.opts.MaxTokens)
	if err != nil {
		slog.Warn("reply generation failed", "target", c.ID, "error", err)
		return skip(ReasonGenerationFailed)
	}
	if strings.TrimSpace(raw) == "" {
		slog.Warn("reply generation returned no text", "target", c.ID)
		return skip(ReasonGenerationFailed)
	}

	d = Decode(raw, g.opts.MaxChars)
	if !d.IsReply() {
		slog.Debug("generator declined", "target", c.ID, "reason", d.Reason, "response", candidate.Preview(raw, 80))
	}
	return d
}
