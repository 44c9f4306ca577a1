package storage

import (
	"errors"
	"time"
)

// ErrNotFound is returned when a requested record does not exist.
var ErrNotFound = errors.New("not found")

// Outcome values of a Decision.
const (
	OutcomePosted  = "posted"
	OutcomeDryRun  = "dry_run"
	OutcomeSkipped = "skipped"
	OutcomeFailed  = "failed"
)

// Run is one invocation of the reply pipeline.
type Run struct {
	ID         string
	Mode       string
	DryRun     bool
	StartedAt  time.Time
	FinishedAt *time.Time
	Candidates int
	Posted     int
	Skipped    int
	Failed     int
	Error      string
}

// Decision records what a run did with one candidate.
type Decision struct {
	RunID         string
	CandidateID   string
	Author        string
	CandidateText string
	ReplyText     string
	Outcome       string // "posted", "dry_run", "skipped", "failed"
	Reason        string
	CreatedAt     time.Time
}
