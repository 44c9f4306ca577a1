// Package publish posts generated replies, or only logs them in dry-run
// mode.
package publish

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/kalambet/xreply/internal/candidate"
)

const defaultTimeout = 60 * time.Second

// Poster posts text as a reply to target.
type Poster interface {
	Reply(ctx context.Context, target candidate.Candidate, text string) error
}

// Publisher wraps a Poster with dry-run handling and a bounded timeout.
type Publisher struct {
	poster  Poster
	dryRun  bool
	timeout time.Duration
	logger  *slog.Logger
}

// New creates a Publisher. poster may be nil in dry-run mode.
func New(poster Poster, dryRun bool, timeout time.Duration, logger *slog.Logger) *Publisher {
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Publisher{poster: poster, dryRun: dryRun, timeout: timeout, logger: logger}
}

// DryRun reports whether the publisher only logs.
func (p *Publisher) DryRun() bool { return p.dryRun }

// Publish posts text as a reply to c and reports success. Failures are
// logged, never returned.
func (p *Publisher) Publish(ctx context.Context, c candidate.Candidate, text string) (ok bool) {
	if p.dryRun {
		p.logger.Info("[DRY RUN] would reply", "target", c.ID, "author", c.Handle(), "text", text, "dry_run", true)
		return true
	}
	if p.poster == nil {
		p.logger.Error("reply failed", "target", c.ID, "author", c.Handle(), "error", "no poster configured")
		return false
	}

	defer func() {
		if r := recover(); r != nil {
			p.logger.Error("reply failed", "target", c.ID, "author", c.Handle(), "error", fmt.Sprint(r))
			ok = false
		}
	}()

	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	if err := p.poster.Reply(ctx, c, text); err != nil {
		p.logger.Warn("reply failed", "target", c.ID, "author", c.Handle(), "error", err)
		return false
	}
	p.logger.Info("replied", "target", c.ID, "author", c.Handle(), "text", text, "dry_run", false)
	return true
}
