package pipeline

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/kalambet/xreply/internal/candidate"
	"github.com/kalambet/xreply/internal/config"
	"github.com/kalambet/xreply/internal/publish"
	"github.com/kalambet/xreply/internal/reply"
	"github.com/kalambet/xreply/internal/source"
	"github.com/kalambet/xreply/internal/state"
	"github.com/kalambet/xreply/internal/storage"
)

var testNow = time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)

// --- fakes ---

type fakeAuth struct{ err error }

func (f fakeAuth) Authenticate(context.Context, string) error { return f.err }

type fakeSource struct {
	batch source.Batch
	err   error
	calls int
}

func (f *fakeSource) Fetch(context.Context) (source.Batch, error) {
	f.calls++
	return f.batch, f.err
}

// mockGenerator replies "re: <id>" unless the id is listed in skip.
type mockGenerator struct {
	skip    map[string]bool
	seen    []string
	context []string
}

func (m *mockGenerator) Generate(_ context.Context, _ reply.VoiceSpec, contextText string, c candidate.Candidate) reply.Decision {
	m.seen = append(m.seen, c.ID)
	m.context = append(m.context, contextText)
	if m.skip[c.ID] {
		return reply.Decode(reply.Sentinel, 280)
	}
	return reply.Decode("re: "+c.ID, 280)
}

type mockPoster struct {
	fail  map[string]bool
	calls []string
}

func (m *mockPoster) Reply(_ context.Context, target candidate.Candidate, _ string) error {
	m.calls = append(m.calls, target.ID)
	if m.fail[target.ID] {
		return errors.New("connection reset by peer")
	}
	return nil
}

type recordingSleep struct{ calls []time.Duration }

func (r *recordingSleep) sleep(_ context.Context, d time.Duration) error {
	r.calls = append(r.calls, d)
	return nil
}

type mockMetrics struct {
	called                              bool
	candidates, posted, skipped, failed int
}

func (m *mockMetrics) ObserveRun(_ string, _ bool, candidates, posted, skipped, failed int, _, _ time.Time) error {
	m.called = true
	m.candidates, m.posted, m.skipped, m.failed = candidates, posted, skipped, failed
	return nil
}

// --- helpers ---

func recent(id, handle string) candidate.Candidate {
	at := testNow.Add(-time.Hour)
	return candidate.Candidate{ID: id, AuthorHandle: handle, Text: "a reply worth answering " + id, CreatedAt: &at}
}

func runConfig(dryRun bool) config.RunConfig {
	return config.RunConfig{
		Mode:          config.ModeThread,
		Handle:        "me",
		MaxAge:        24 * time.Hour,
		MinTextLength: 2,
		MaxCandidates: 10,
		Retention:     500,
		Pacing:        3 * time.Second,
		DryRun:        dryRun,
	}
}

type harness struct {
	store  *state.Store
	src    *fakeSource
	gen    *mockGenerator
	poster *mockPoster
	sleep  *recordingSleep
	deps   Deps
}

func newHarness(t *testing.T, dryRun bool, cands ...candidate.Candidate) *harness {
	t.Helper()
	h := &harness{
		store:  state.NewStore(filepath.Join(t.TempDir(), "thread-state.json"), 500),
		src:    &fakeSource{batch: source.Batch{Context: "my post", ContextID: "root", Candidates: cands}},
		gen:    &mockGenerator{skip: map[string]bool{}},
		poster: &mockPoster{fail: map[string]bool{}},
		sleep:  &recordingSleep{},
	}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	h.deps = Deps{
		Auth:      fakeAuth{},
		Source:    h.src,
		Store:     h.store,
		Generator: h.gen,
		Publisher: publish.New(h.poster, dryRun, time.Second, logger),
		Logger:    logger,
		Now:       func() time.Time { return testNow },
		Sleep:     h.sleep.sleep,
	}
	return h
}

func (h *harness) run(t *testing.T, rc config.RunConfig) Report {
	t.Helper()
	rep, err := New(rc, h.deps).Run(context.Background())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	return rep
}

// --- tests ---

func TestRun_PostsAndPersists(t *testing.T) {
	h := newHarness(t, false, recent("1", "alice"), recent("2", "bob"))
	rep := h.run(t, runConfig(false))

	if rep.Posted != 2 || rep.Skipped != 0 || rep.Failed != 0 {
		t.Errorf("report = %+v", rep)
	}
	if diff := cmp.Diff([]string{"1", "2"}, h.poster.calls); diff != "" {
		t.Errorf("poster calls (-want +got):\n%s", diff)
	}
	if h.gen.context[0] != "my post" {
		t.Errorf("context = %q, want the thread's root text", h.gen.context[0])
	}

	st := h.store.Load()
	if diff := cmp.Diff([]string{"1", "2"}, st.HandledIDs); diff != "" {
		t.Errorf("HandledIDs (-want +got):\n%s", diff)
	}
	if st.Stats.Total != 2 || st.LastRunAt == nil || !st.LastRunAt.Equal(testNow) {
		t.Errorf("state = %+v", st)
	}
	wantPhases := []Phase{PhaseStart, PhaseAuthenticated, PhaseSourced, PhaseFiltered, PhaseProcessing, PhaseProcessing, PhaseDone}
	if diff := cmp.Diff(wantPhases, rep.Phases); diff != "" {
		t.Errorf("phases (-want +got):\n%s", diff)
	}
	if got := rep.Summary(); got != "Done: 2 replies posted, 0 skipped" {
		t.Errorf("Summary = %q", got)
	}
}

func TestRun_SkipSentinel(t *testing.T) {
	h := newHarness(t, false, recent("x", "alice"))
	h.gen.skip["x"] = true
	rep := h.run(t, runConfig(false))

	st := h.store.Load()
	if st.Stats.Skipped != 1 || st.Stats.Total != 0 {
		t.Errorf("stats = %+v, want skipped 1 total 0", st.Stats)
	}
	if diff := cmp.Diff([]string{"x"}, st.HandledIDs); diff != "" {
		t.Errorf("HandledIDs (-want +got):\n%s", diff)
	}
	if len(h.poster.calls) != 0 {
		t.Errorf("poster called for a skipped candidate: %v", h.poster.calls)
	}
	if rep.Skipped != 1 {
		t.Errorf("report skipped = %d", rep.Skipped)
	}

	// A second run never sees x again.
	h.gen.seen = nil
	h.run(t, runConfig(false))
	if len(h.gen.seen) != 0 {
		t.Errorf("skipped candidate generated again: %v", h.gen.seen)
	}
	if got := h.store.Load().HandledIDs; len(got) != 1 {
		t.Errorf("HandledIDs = %v, want x exactly once", got)
	}
}

func TestRun_PublishFailureRetriesNextRun(t *testing.T) {
	h := newHarness(t, false, recent("y", "alice"), recent("z", "bob"))
	h.poster.fail["y"] = true
	rep := h.run(t, runConfig(false))

	if rep.Failed != 1 || rep.Posted != 1 {
		t.Errorf("report = %+v, want 1 failed 1 posted", rep)
	}
	st := h.store.Load()
	if st.Handled("y") {
		t.Error("failed candidate y must not be marked handled")
	}
	if !st.Handled("z") || st.Stats.Total != 1 {
		t.Errorf("state = %+v, want z handled and total 1", st)
	}

	h.poster.fail["y"] = false
	h.poster.calls = nil
	h.run(t, runConfig(false))
	if diff := cmp.Diff([]string{"y"}, h.poster.calls); diff != "" {
		t.Errorf("retry poster calls (-want +got):\n%s", diff)
	}
}

func TestRun_PacingNotAfterLast(t *testing.T) {
	h := newHarness(t, false, recent("1", "a"), recent("2", "b"), recent("3", "c"))
	h.gen.skip["2"] = true
	h.run(t, runConfig(false))

	// 1 is published then paced; 2 is skipped (no pacing); 3 is last.
	if diff := cmp.Diff([]time.Duration{3 * time.Second}, h.sleep.calls); diff != "" {
		t.Errorf("sleep calls (-want +got):\n%s", diff)
	}
}

func TestRun_DryRun(t *testing.T) {
	h := newHarness(t, true, recent("1", "alice"), recent("2", "bob"))
	rep := h.run(t, runConfig(true))

	if len(h.poster.calls) != 0 {
		t.Errorf("dry run reached the poster: %v", h.poster.calls)
	}
	st := h.store.Load()
	if diff := cmp.Diff([]string{"1", "2"}, st.HandledIDs); diff != "" {
		t.Errorf("HandledIDs (-want +got):\n%s", diff)
	}
	if got := rep.Summary(); got != "Done: 2 replies (dry run), 0 skipped" {
		t.Errorf("Summary = %q", got)
	}
}

func TestRun_SourceFailureStillSaves(t *testing.T) {
	h := newHarness(t, false)
	h.src.err = errors.New("bird: exit status 1")
	rep, err := New(runConfig(false), h.deps).Run(context.Background())
	if err != nil {
		t.Fatalf("Run returned %v, want nil for a source failure", err)
	}
	if rep.SourceErr == nil || rep.Candidates != 0 {
		t.Errorf("report = %+v", rep)
	}
	if _, err := os.Stat(h.store.Path()); err != nil {
		t.Fatalf("state file not written: %v", err)
	}
	st := h.store.Load()
	if st.LastRunAt == nil || st.Stats != (state.Stats{}) {
		t.Errorf("state = %+v, want lastRun set and no stats change", st)
	}
}

func TestRun_AuthFailure(t *testing.T) {
	h := newHarness(t, false, recent("1", "alice"))
	h.deps.Auth = fakeAuth{err: errors.New("logged in as someone else")}

	rep, err := New(runConfig(false), h.deps).Run(context.Background())
	if !errors.Is(err, ErrAuth) {
		t.Fatalf("err = %v, want ErrAuth", err)
	}
	if h.src.calls != 0 {
		t.Error("source fetched after failed authentication")
	}
	if diff := cmp.Diff([]Phase{PhaseStart, PhaseFailed}, rep.Phases); diff != "" {
		t.Errorf("phases (-want +got):\n%s", diff)
	}
	if _, err := os.Stat(h.store.Path()); !os.IsNotExist(err) {
		t.Errorf("state file written after auth failure (stat err %v)", err)
	}
}

func TestRun_DeletedStateFile(t *testing.T) {
	h := newHarness(t, false, recent("1", "alice"))
	h.run(t, runConfig(false))

	if err := os.Remove(h.store.Path()); err != nil {
		t.Fatal(err)
	}
	h.poster.calls = nil
	h.run(t, runConfig(false))

	if diff := cmp.Diff([]string{"1"}, h.poster.calls); diff != "" {
		t.Errorf("poster calls after state loss (-want +got):\n%s", diff)
	}
	st := h.store.Load()
	if diff := cmp.Diff([]string{"1"}, st.HandledIDs); diff != "" {
		t.Errorf("fresh HandledIDs (-want +got):\n%s", diff)
	}
	if st.Stats.Total != 1 {
		t.Errorf("Stats.Total = %d, want 1 in the fresh file", st.Stats.Total)
	}
}

func TestRun_FilterAppliedWithCap(t *testing.T) {
	old := testNow.Add(-48 * time.Hour)
	stale := recent("old", "carl")
	stale.CreatedAt = &old
	h := newHarness(t, false, recent("1", "a"), recent("self", "ME"), stale, recent("2", "b"), recent("3", "c"))

	rc := runConfig(false)
	rc.MaxCandidates = 2
	rep := h.run(t, rc)

	if diff := cmp.Diff([]string{"1", "2"}, h.gen.seen); diff != "" {
		t.Errorf("generated for (-want +got):\n%s", diff)
	}
	if rep.Fetched != 5 || rep.Candidates != 2 {
		t.Errorf("report = %+v", rep)
	}
}

func TestRun_CancelledDuringPacing(t *testing.T) {
	h := newHarness(t, false, recent("1", "a"), recent("2", "b"))
	h.deps.Sleep = func(ctx context.Context, d time.Duration) error { return context.Canceled }
	rep := h.run(t, runConfig(false))

	if rep.Posted != 1 {
		t.Errorf("posted = %d, want 1 before the interruption", rep.Posted)
	}
	if !h.store.Load().Handled("1") {
		t.Error("state not saved after interruption")
	}
}

func TestRun_JournalAndMetrics(t *testing.T) {
	journal, err := storage.Open(":memory:")
	if err != nil {
		t.Fatalf("storage.Open: %v", err)
	}
	t.Cleanup(func() { journal.Close() })

	h := newHarness(t, false, recent("1", "alice"), recent("2", "bob"), recent("3", "carol"))
	h.gen.skip["2"] = true
	h.poster.fail["3"] = true
	m := &mockMetrics{}
	h.deps.Journal = journal
	h.deps.Metrics = m

	rep := h.run(t, runConfig(false))
	if rep.RunID == "" {
		t.Fatal("RunID empty with a journal configured")
	}

	run, err := journal.GetRun(rep.RunID)
	if err != nil {
		t.Fatalf("GetRun: %v", err)
	}
	if run.Posted != 1 || run.Skipped != 1 || run.Failed != 1 || run.Candidates != 3 || run.FinishedAt == nil {
		t.Errorf("journal run = %+v", run)
	}

	decisions, err := journal.Decisions(rep.RunID)
	if err != nil {
		t.Fatalf("Decisions: %v", err)
	}
	var outcomes []string
	for _, d := range decisions {
		outcomes = append(outcomes, d.CandidateID+":"+d.Outcome)
	}
	want := []string{"1:posted", "2:skipped", "3:failed"}
	if diff := cmp.Diff(want, outcomes); diff != "" {
		t.Errorf("decisions (-want +got):\n%s", diff)
	}
	if decisions[0].ReplyText != "re: 1" {
		t.Errorf("reply text = %q", decisions[0].ReplyText)
	}

	if !m.called || m.posted != 1 || m.skipped != 1 || m.failed != 1 || m.candidates != 3 {
		t.Errorf("metrics = %+v", m)
	}
}

func TestProcessingLine(t *testing.T) {
	c := recent("1", "alice")
	c.AuthorHandle = "alice"
	c.Text = "line one\nline two"
	c.Engagement = &candidate.Engagement{Likes: 12, Replies: 4}

	got := processingLine(c, testNow)
	want := `Processing @alice (1h ago, 12♥ 4💬): "line one line two..."`
	if got != want {
		t.Errorf("processingLine = %q, want %q", got, want)
	}

	c.CreatedAt = nil
	c.Engagement = nil
	if got := processingLine(c, testNow); !strings.HasPrefix(got, `Processing @alice: "`) {
		t.Errorf("processingLine without metadata = %q", got)
	}
}

// funcChatter lets a test decide what the text-generation backend does.
type funcChatter func(ctx context.Context, prompt string) (string, error)

func (f funcChatter) Complete(ctx context.Context, prompt string, _ int) (string, error) {
	return f(ctx, prompt)
}

func TestRun_InterruptedDuringGeneration(t *testing.T) {
	h := newHarness(t, false, recent("1", "alice"), recent("2", "bob"))
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	h.deps.Generator = reply.NewGenerator(funcChatter(func(ctx context.Context, _ string) (string, error) {
		cancel()
		return "", ctx.Err()
	}), reply.Options{Handle: "me"})

	rep, err := New(runConfig(false), h.deps).Run(ctx)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if rep.Skipped != 0 || rep.Posted != 0 {
		t.Errorf("report = %+v, want nothing recorded for the interrupted candidate", rep)
	}
	st := h.store.Load()
	if st.Handled("1") || st.Handled("2") {
		t.Errorf("HandledIDs = %v, want none after an interruption", st.HandledIDs)
	}
	if st.Stats != (state.Stats{}) {
		t.Errorf("stats = %+v, want unchanged", st.Stats)
	}
	if st.LastRunAt == nil {
		t.Error("state not saved after interruption")
	}
}

func TestRun_GenerationTimeoutIsPermanentSkip(t *testing.T) {
	h := newHarness(t, false, recent("1", "alice"))
	h.deps.Generator = reply.NewGenerator(funcChatter(func(ctx context.Context, _ string) (string, error) {
		<-ctx.Done()
		return "", ctx.Err()
	}), reply.Options{Handle: "me", Timeout: 10 * time.Millisecond})

	rep := h.run(t, runConfig(false))
	if rep.Skipped != 1 {
		t.Errorf("report = %+v, want the timed out candidate skipped", rep)
	}
	if st := h.store.Load(); !st.Handled("1") || st.Stats.Skipped != 1 {
		t.Errorf("state = %+v, want 1 handled as skipped", st)
	}
}

func TestRun_PanickingBackendDoesNotStopRun(t *testing.T) {
	h := newHarness(t, false, recent("1", "alice"), recent("2", "bob"))
	h.deps.Generator = reply.NewGenerator(funcChatter(func(_ context.Context, prompt string) (string, error) {
		if strings.Contains(prompt, "answering 1") {
			panic("backend exploded")
		}
		return "thanks bob", nil
	}), reply.Options{Handle: "me"})

	rep := h.run(t, runConfig(false))
	if rep.Skipped != 1 || rep.Posted != 1 {
		t.Errorf("report = %+v, want 1 skipped 1 posted", rep)
	}
	if diff := cmp.Diff([]string{"2"}, h.poster.calls); diff != "" {
		t.Errorf("poster calls (-want +got):\n%s", diff)
	}
	st := h.store.Load()
	if diff := cmp.Diff([]string{"1", "2"}, st.HandledIDs); diff != "" {
		t.Errorf("HandledIDs (-want +got):\n%s", diff)
	}
	if st.LastRunAt == nil || st.Stats.Skipped != 1 || st.Stats.Total != 1 {
		t.Errorf("state = %+v", st)
	}
}
