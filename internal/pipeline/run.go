// Package pipeline runs one reply pass for an account: authenticate, fetch
// candidates, filter them against the persisted history, then draft and post
// replies one at a time.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/kalambet/xreply/internal/candidate"
	"github.com/kalambet/xreply/internal/config"
	"github.com/kalambet/xreply/internal/filter"
	"github.com/kalambet/xreply/internal/reply"
	"github.com/kalambet/xreply/internal/source"
	"github.com/kalambet/xreply/internal/state"
	"github.com/kalambet/xreply/internal/storage"
)

// ErrAuth is returned when the configured account cannot be verified. It is
// the only error Run returns.
var ErrAuth = errors.New("authentication failed")

// Phase is a step of the run state machine.
type Phase string

const (
	PhaseStart         Phase = "START"
	PhaseAuthenticated Phase = "AUTHENTICATED"
	PhaseSourced       Phase = "SOURCED"
	PhaseFiltered      Phase = "FILTERED"
	PhaseProcessing    Phase = "PROCESSING"
	PhaseDone          Phase = "DONE"
	PhaseFailed        Phase = "FAILED"
)

// Authenticator verifies the collaborator is logged in as the account.
type Authenticator interface {
	Authenticate(ctx context.Context, handle string) error
}

// StateStore loads and saves the persisted history.
type StateStore interface {
	Load() *state.RunState
	Save(*state.RunState) error
}

// Generator drafts a reply decision for one candidate.
type Generator interface {
	Generate(ctx context.Context, voice reply.VoiceSpec, contextText string, c candidate.Candidate) reply.Decision
}

// Publisher posts a reply and reports success.
type Publisher interface {
	Publish(ctx context.Context, c candidate.Candidate, text string) bool
}

// Journal keeps an audit trail of runs. Failures are logged, never fatal.
type Journal interface {
	StartRun(mode string, dryRun bool, at time.Time) (storage.Run, error)
	RecordDecision(d storage.Decision) error
	FinishRun(r storage.Run) error
}

// Metrics exports the outcome of a run.
type Metrics interface {
	ObserveRun(mode string, dryRun bool, candidates, posted, skipped, failed int, started, finished time.Time) error
}

// Deps are the collaborators of a Runner. Journal and Metrics are optional.
type Deps struct {
	Auth      Authenticator
	Source    source.Source
	Store     StateStore
	Generator Generator
	Publisher Publisher
	Voice     reply.VoiceSpec
	Journal   Journal
	Metrics   Metrics
	Logger    *slog.Logger

	// Now and Sleep default to the wall clock.
	Now   func() time.Time
	Sleep func(ctx context.Context, d time.Duration) error
}

// Report summarizes a run.
type Report struct {
	RunID      string
	Mode       config.Mode
	DryRun     bool
	Fetched    int
	Candidates int
	Posted     int
	Skipped    int
	Failed     int
	Phases     []Phase
	SourceErr  error
}

// Summary is the closing log line of a run. Everything that was not posted
// counts as skipped.
func (r Report) Summary() string {
	verb := "posted"
	if r.DryRun {
		verb = "(dry run)"
	}
	return fmt.Sprintf("Done: %d replies %s, %d skipped", r.Posted, verb, r.Candidates-r.Posted)
}

// Runner executes runs for one RunConfig.
type Runner struct {
	rc   config.RunConfig
	deps Deps
	log  *slog.Logger
}

// New creates a Runner. rc is copied and never modified.
func New(rc config.RunConfig, deps Deps) *Runner {
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	if deps.Now == nil {
		deps.Now = time.Now
	}
	if deps.Sleep == nil {
		deps.Sleep = sleep
	}
	return &Runner{rc: rc, deps: deps, log: deps.Logger}
}

// Run performs one pass. Only an authentication failure is returned as an
// error (wrapping ErrAuth); every other failure is logged and absorbed. The
// state is saved before Run returns unless authentication failed.
func (r *Runner) Run(ctx context.Context) (rep Report, err error) {
	rep = Report{Mode: r.rc.Mode, DryRun: r.rc.DryRun, Phases: []Phase{PhaseStart}}
	started := r.deps.Now()

	if r.rc.DryRun {
		r.log.Info("mode: DRY RUN (pass --live to post)", "mode", r.rc.Mode)
	} else {
		r.log.Info("mode: LIVE", "mode", r.rc.Mode)
	}

	if r.deps.Auth != nil {
		if err := r.deps.Auth.Authenticate(ctx, r.rc.Handle); err != nil {
			rep.Phases = append(rep.Phases, PhaseFailed)
			r.log.Error("authentication failed", "handle", r.rc.Handle, "error", err)
			return rep, fmt.Errorf("%w: %w", ErrAuth, err)
		}
	}
	rep.Phases = append(rep.Phases, PhaseAuthenticated)
	r.log.Info("authenticated", "handle", r.rc.Handle)

	st := r.deps.Store.Load()
	now := r.deps.Now()
	st.LastRunAt = &now

	run := r.startJournal(started)
	rep.RunID = run.ID

	defer func() {
		if err := r.deps.Store.Save(st); err != nil {
			r.log.Error("saving state failed", "error", err)
		}
		finished := r.deps.Now()
		r.finishJournal(run, rep, finished)
		r.observe(rep, started, finished)
		rep.Phases = append(rep.Phases, PhaseDone)
		r.log.Info(rep.Summary())
	}()

	batch, err := r.deps.Source.Fetch(ctx)
	if err != nil {
		rep.SourceErr = err
		r.log.Error("fetching candidates failed", "error", err)
		return rep, nil
	}
	rep.Fetched = len(batch.Candidates)
	rep.Phases = append(rep.Phases, PhaseSourced)
	if rep.Fetched == 0 {
		r.log.Info("no posts found")
		return rep, nil
	}

	cands, rejected := filter.Explain(batch.Candidates, st, r.rc, r.deps.Now())
	for _, rej := range rejected {
		r.log.Debug("candidate rejected", "id", rej.ID, "rule", rej.Rule)
	}
	rep.Candidates = len(cands)
	rep.Phases = append(rep.Phases, PhaseFiltered)
	r.log.Info("candidates selected", "fetched", rep.Fetched, "selected", rep.Candidates)
	if rep.Candidates == 0 {
		r.log.Info("no candidates to reply to")
		return rep, nil
	}

	for i, c := range cands {
		if ctx.Err() != nil {
			r.log.Warn("run interrupted", "remaining", len(cands)-i)
			break
		}
		rep.Phases = append(rep.Phases, PhaseProcessing)
		r.log.Info(processingLine(c, r.deps.Now()))

		d := r.deps.Generator.Generate(ctx, r.deps.Voice, batch.Context, c)
		if ctx.Err() != nil {
			// The decision was cut short, not made; leave c for the next run.
			r.log.Warn("run interrupted", "target", c.ID, "remaining", len(cands)-i)
			break
		}
		if !d.IsReply() {
			st.Stats.Skipped++
			st.MarkHandled(c.ID)
			rep.Skipped++
			r.log.Info("skipped", "target", c.ID, "reason", d.Reason)
			r.record(run, c, d, storage.OutcomeSkipped)
			continue
		}

		if r.deps.Publisher.Publish(ctx, c, d.Text) {
			st.Stats.Total++
			st.MarkHandled(c.ID)
			rep.Posted++
			outcome := storage.OutcomePosted
			if r.rc.DryRun {
				outcome = storage.OutcomeDryRun
			}
			r.record(run, c, d, outcome)
		} else {
			rep.Failed++
			r.record(run, c, d, storage.OutcomeFailed)
		}

		if i < len(cands)-1 && r.rc.Pacing > 0 {
			if err := r.deps.Sleep(ctx, r.rc.Pacing); err != nil {
				r.log.Warn("run interrupted", "remaining", len(cands)-i-1)
				break
			}
		}
	}
	return rep, nil
}

// processingLine renders the per-candidate progress line, e.g.
//
//	Processing @alice (3h ago, 12♥ 4💬): "text preview..."
func processingLine(c candidate.Candidate, now time.Time) string {
	var meta []string
	if age, ok := c.Age(now); ok {
		meta = append(meta, fmt.Sprintf("%dh ago", int(age.Hours())))
	}
	if c.Engagement != nil {
		meta = append(meta, fmt.Sprintf("%d♥ %d💬", c.Engagement.Likes, c.Engagement.Replies))
	}
	line := "Processing @" + c.Handle()
	if len(meta) > 0 {
		line += " (" + strings.Join(meta, ", ") + ")"
	}
	return fmt.Sprintf(`%s: "%s..."`, line, candidate.Preview(c.Text, 60))
}

func (r *Runner) startJournal(at time.Time) storage.Run {
	if r.deps.Journal == nil {
		return storage.Run{}
	}
	run, err := r.deps.Journal.StartRun(string(r.rc.Mode), r.rc.DryRun, at)
	if err != nil {
		r.log.Warn("journal: starting run failed", "error", err)
		return storage.Run{}
	}
	return run
}

func (r *Runner) record(run storage.Run, c candidate.Candidate, d reply.Decision, outcome string) {
	if r.deps.Journal == nil || run.ID == "" {
		return
	}
	err := r.deps.Journal.RecordDecision(storage.Decision{
		RunID:         run.ID,
		CandidateID:   c.ID,
		Author:        c.Handle(),
		CandidateText: c.Text,
		ReplyText:     d.Text,
		Outcome:       outcome,
		Reason:        d.Reason,
		CreatedAt:     r.deps.Now(),
	})
	if err != nil {
		r.log.Warn("journal: recording decision failed", "target", c.ID, "error", err)
	}
}

func (r *Runner) finishJournal(run storage.Run, rep Report, finished time.Time) {
	if r.deps.Journal == nil || run.ID == "" {
		return
	}
	run.FinishedAt = &finished
	run.Candidates = rep.Candidates
	run.Posted = rep.Posted
	run.Skipped = rep.Skipped
	run.Failed = rep.Failed
	if rep.SourceErr != nil {
		run.Error = rep.SourceErr.Error()
	}
	if err := r.deps.Journal.FinishRun(run); err != nil {
		r.log.Warn("journal: finishing run failed", "run", run.ID, "error", err)
	}
}

func (r *Runner) observe(rep Report, started, finished time.Time) {
	if r.deps.Metrics == nil {
		return
	}
	if err := r.deps.Metrics.ObserveRun(string(rep.Mode), rep.DryRun, rep.Candidates, rep.Posted, rep.Skipped, rep.Failed, started, finished); err != nil {
		r.log.Warn("writing metrics failed", "error", err)
	}
}

func sleep(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
