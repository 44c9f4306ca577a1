package config

import (
	"fmt"
	"slices"
	"time"
)

// Mode selects which candidate source a run uses.
type Mode string

const (
	// ModeThread replies to replies under the account's latest post.
	ModeThread Mode = "thread"
	// ModeWatchList replies to original posts from curated lists.
	ModeWatchList Mode = "watchlist"
)

// ParseMode validates a mode name.
func ParseMode(s string) (Mode, error) {
	switch Mode(s) {
	case ModeThread, ModeWatchList:
		return Mode(s), nil
	default:
		return "", fmt.Errorf("unknown mode %q: want %q or %q", s, ModeThread, ModeWatchList)
	}
}

// RunConfig holds the parameters of a single run. It is built once from
// Config and passed by value; nothing mutates it afterwards.
type RunConfig struct {
	Mode          Mode
	Handle        string
	UserID        string
	ListIDs       []string
	IgnorePostIDs []string
	MaxAge        time.Duration
	// MinLikes and MaxReplies only apply to candidates that carry engagement
	// signals; zero disables the rule.
	MinLikes      int
	MaxReplies    int
	MinTextLength int
	MaxCandidates int
	Retention     int
	Pacing        time.Duration
	DryRun        bool
}

// RunConfig derives the immutable per-run parameters for mode.
func (c Config) RunConfig(mode Mode, dryRun bool) (RunConfig, error) {
	if c.Account.Handle == "" {
		return RunConfig{}, fmt.Errorf("missing required config: account.handle (env XREPLY_ACCOUNT_HANDLE)")
	}

	rc := RunConfig{
		Mode:          mode,
		Handle:        c.Account.Handle,
		UserID:        c.Account.UserID,
		IgnorePostIDs: splitList(c.Source.IgnorePostIDs),
		Pacing:        time.Duration(c.Run.PacingMs) * time.Millisecond,
		DryRun:        dryRun,
	}

	switch mode {
	case ModeThread:
		rc.MaxAge = time.Duration(c.Thread.MaxAgeHours) * time.Hour
		rc.MaxCandidates = c.Thread.MaxPerRun
		rc.MinTextLength = c.Thread.MinTextLength
		rc.Retention = c.Thread.Retention
	case ModeWatchList:
		rc.ListIDs = splitList(c.WatchList.ListIDs)
		if len(rc.ListIDs) == 0 {
			return RunConfig{}, fmt.Errorf("missing required config: watchlist.ids (env XREPLY_WATCHLIST_IDS)")
		}
		rc.MaxAge = time.Duration(c.WatchList.MaxAgeHours) * time.Hour
		rc.MinLikes = c.WatchList.MinLikes
		rc.MaxReplies = c.WatchList.MaxReplies
		rc.MaxCandidates = c.WatchList.MaxPerRun
		rc.MinTextLength = c.WatchList.MinTextLength
		rc.Retention = c.WatchList.Retention
	default:
		return RunConfig{}, fmt.Errorf("unknown mode %q", mode)
	}

	if rc.MaxCandidates < 0 {
		return RunConfig{}, fmt.Errorf("max per run must not be negative, got %d", rc.MaxCandidates)
	}
	return rc, nil
}

// Ignored reports whether id is on the ignore list.
func (rc RunConfig) Ignored(id string) bool {
	return slices.Contains(rc.IgnorePostIDs, id)
}
