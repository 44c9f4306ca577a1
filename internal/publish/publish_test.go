package publish

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/kalambet/xreply/internal/candidate"
)

type mockPoster struct {
	calls   int
	target  candidate.Candidate
	text    string
	err     error
	block   bool
	panicky bool
}

func (m *mockPoster) Reply(ctx context.Context, target candidate.Candidate, text string) error {
	m.calls++
	m.target, m.text = target, text
	if m.panicky {
		panic("boom")
	}
	if m.block {
		<-ctx.Done()
		return ctx.Err()
	}
	return m.err
}

func testLogger(buf *bytes.Buffer) *slog.Logger {
	return slog.New(slog.NewTextHandler(buf, &slog.HandlerOptions{Level: slog.LevelDebug}))
}

var target = candidate.Candidate{ID: "42", AuthorHandle: "alice", Text: "hello"}

func TestPublish_DryRun(t *testing.T) {
	var buf bytes.Buffer
	m := &mockPoster{}
	p := New(m, true, 0, testLogger(&buf))

	if !p.Publish(context.Background(), target, "hi there") {
		t.Fatal("dry run should report success")
	}
	if m.calls != 0 {
		t.Errorf("poster called %d times in dry run", m.calls)
	}
	out := buf.String()
	for _, want := range []string{"[DRY RUN] would reply", "target=42", "author=alice", `text="hi there"`, "dry_run=true"} {
		if !strings.Contains(out, want) {
			t.Errorf("log %q missing %q", out, want)
		}
	}
}

func TestPublish_DryRunWithoutPoster(t *testing.T) {
	if !New(nil, true, 0, nil).Publish(context.Background(), target, "x") {
		t.Error("dry run without poster should succeed")
	}
}

func TestPublish_Live(t *testing.T) {
	m := &mockPoster{}
	p := New(m, false, time.Second, testLogger(&bytes.Buffer{}))

	if !p.Publish(context.Background(), target, "hi") {
		t.Fatal("Publish = false, want true")
	}
	if m.calls != 1 || m.target.ID != "42" || m.text != "hi" {
		t.Errorf("poster got %d calls, target %q, text %q", m.calls, m.target.ID, m.text)
	}
}

func TestPublish_Failure(t *testing.T) {
	var buf bytes.Buffer
	m := &mockPoster{err: errors.New("network unreachable")}
	p := New(m, false, time.Second, testLogger(&buf))

	if p.Publish(context.Background(), target, "hi") {
		t.Error("Publish = true, want false on poster error")
	}
	if !strings.Contains(buf.String(), "network unreachable") {
		t.Errorf("log = %q, want the error", buf.String())
	}
}

func TestPublish_Timeout(t *testing.T) {
	m := &mockPoster{block: true}
	p := New(m, false, 20*time.Millisecond, testLogger(&bytes.Buffer{}))

	if p.Publish(context.Background(), target, "hi") {
		t.Error("Publish = true, want false after timeout")
	}
}

func TestPublish_Panic(t *testing.T) {
	m := &mockPoster{panicky: true}
	p := New(m, false, time.Second, testLogger(&bytes.Buffer{}))

	if p.Publish(context.Background(), target, "hi") {
		t.Error("Publish = true, want false after panic")
	}
}

func TestPublish_NoPosterLive(t *testing.T) {
	if New(nil, false, 0, testLogger(&bytes.Buffer{})).Publish(context.Background(), target, "hi") {
		t.Error("live publish without poster should fail")
	}
}
