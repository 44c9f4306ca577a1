package reply

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"
	"unicode/utf8"

	"github.com/kalambet/xreply/internal/candidate"
)

// mockChatter implements Chatter for testing.
type mockChatter struct {
	response string
	err      error
	delay    time.Duration

	calls      int
	lastPrompt string
	maxTokens  int
}

func (m *mockChatter) Complete(ctx context.Context, prompt string, maxTokens int) (string, error) {
	m.calls++
	m.lastPrompt = prompt
	m.maxTokens = maxTokens
	if m.delay > 0 {
		select {
		case <-time.After(m.delay):
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}
	return m.response, m.err
}

func testVoice(t *testing.T) VoiceSpec {
	t.Helper()
	v, err := Preset("thread")
	if err != nil {
		t.Fatalf("Preset(thread): %v", err)
	}
	return v
}

var reply1 = candidate.Candidate{
	ID:           "100",
	AuthorHandle: "jdoe",
	AuthorName:   "Jane Doe",
	Text:         "@Biblicalman this hit home, thanks https://t.co/abc",
}

func TestGenerate_Reply(t *testing.T) {
	mock := &mockChatter{response: `"Appreciate the read, Jane."`}
	g := NewGenerator(mock, Options{Handle: "Biblicalman"})

	d := g.Generate(context.Background(), testVoice(t), "My latest essay", reply1)
	if !d.IsReply() {
		t.Fatalf("Kind = %v, want reply (reason %q)", d.Kind, d.Reason)
	}
	if d.Text != "Appreciate the read, Jane." {
		t.Errorf("Text = %q", d.Text)
	}
	if mock.maxTokens != 150 {
		t.Errorf("maxTokens = %d, want default 150", mock.maxTokens)
	}
}

func TestGenerate_SkipSentinel(t *testing.T) {
	for _, resp := range []string{"SKIP", "  SKIP\n", "I think this is SKIP territory."} {
		g := NewGenerator(&mockChatter{response: resp}, Options{})
		d := g.Generate(context.Background(), testVoice(t), "", reply1)
		if d.Kind != KindSkip || d.Reason != ReasonSentinel {
			t.Errorf("response %q: got %+v, want sentinel skip", resp, d)
		}
	}
}

func TestGenerate_BackendErrorIsSkip(t *testing.T) {
	g := NewGenerator(&mockChatter{err: errors.New("connection refused")}, Options{})
	d := g.Generate(context.Background(), testVoice(t), "", reply1)
	if d.Kind != KindSkip || d.Reason != ReasonGenerationFailed {
		t.Errorf("got %+v, want generation failed skip", d)
	}
}

func TestGenerate_EmptyResponseIsFailure(t *testing.T) {
	g := NewGenerator(&mockChatter{response: "   "}, Options{})
	d := g.Generate(context.Background(), testVoice(t), "", reply1)
	if d.Reason != ReasonGenerationFailed {
		t.Errorf("Reason = %q, want %q", d.Reason, ReasonGenerationFailed)
	}
}

func TestGenerate_NilClient(t *testing.T) {
	g := NewGenerator(nil, Options{})
	d := g.Generate(context.Background(), testVoice(t), "", reply1)
	if d.Reason != ReasonGenerationFailed {
		t.Errorf("Reason = %q, want %q", d.Reason, ReasonGenerationFailed)
	}
}

func TestGenerate_Timeout(t *testing.T) {
	mock := &mockChatter{response: "too late", delay: 5 * time.Second}
	g := NewGenerator(mock, Options{Timeout: 50 * time.Millisecond})

	start := time.Now()
	d := g.Generate(context.Background(), testVoice(t), "", reply1)
	if elapsed := time.Since(start); elapsed > 2*time.Second {
		t.Errorf("Generate took %v, want it bounded by the timeout", elapsed)
	}
	if d.Kind != KindSkip {
		t.Errorf("Kind = %v, want skip", d.Kind)
	}
}

func TestGenerate_PromptShape(t *testing.T) {
	mock := &mockChatter{response: "ok"}
	g := NewGenerator(mock, Options{Handle: "Biblicalman"})

	long := strings.Repeat("x", 400)
	g.Generate(context.Background(), testVoice(t), long, reply1)

	p := mock.lastPrompt
	for _, want := range []string{
		"You are @Biblicalman",
		"ORIGINAL POST (yours):\n\"" + strings.Repeat("x", 300) + "\"",
		"REPLY FROM @jdoe (Jane Doe):\n\"this hit home, thanks\"",
		"BANNED PHRASES",
		"If not worth replying, say SKIP.",
	} {
		if !strings.Contains(p, want) {
			t.Errorf("prompt missing %q\n---\n%s", want, p)
		}
	}
	if strings.Contains(p, strings.Repeat("x", 301)) {
		t.Error("context text was not truncated to 300 characters")
	}
	if strings.Contains(p, "https://t.co") {
		t.Error("links were not stripped from the candidate text")
	}
}

func TestBuildPrompt_WatchList(t *testing.T) {
	v, err := Preset("outbound")
	if err != nil {
		t.Fatal(err)
	}
	c := candidate.Candidate{ID: "1", AuthorHandle: "pastor_k", Text: "Read the long form here https://example.com"}
	p := BuildPrompt(v, "Biblicalman", "", c)

	if !strings.Contains(p, "POST FROM @pastor_k:\n\"Read the long form here\"") {
		t.Errorf("prompt missing candidate block:\n%s", p)
	}
	if strings.Contains(p, "ORIGINAL POST") {
		t.Error("watch-list prompt should not carry a context block")
	}
	if !strings.Contains(p, "(8-25 words)") {
		t.Errorf("prompt missing word-count call to action:\n%s", p)
	}
}

func TestDecode(t *testing.T) {
	tests := []struct {
		name   string
		raw    string
		kind   Kind
		text   string
		reason string
	}{
		{name: "plain", raw: "Amen, brother.", kind: KindReply, text: "Amen, brother."},
		{name: "double quotes", raw: `"Thanks for reading"`, kind: KindReply, text: "Thanks for reading"},
		{name: "single quotes", raw: "'Get in the Bible'", kind: KindReply, text: "Get in the Bible"},
		{name: "inner quotes kept", raw: `He said "no" twice`, kind: KindReply, text: `He said "no" twice`},
		{name: "exact sentinel", raw: "SKIP", kind: KindSkip, reason: ReasonSentinel},
		{name: "embedded sentinel", raw: "SKIP - this is spam", kind: KindSkip, reason: ReasonSentinel},
		{name: "lowercase is text", raw: "skip the small talk", kind: KindReply, text: "skip the small talk"},
		{name: "empty", raw: "  ", kind: KindSkip, reason: ReasonEmpty},
		{name: "only quotes", raw: `""`, kind: KindSkip, reason: ReasonEmpty},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := Decode(tt.raw, 280)
			if d.Kind != tt.kind || d.Text != tt.text || d.Reason != tt.reason {
				t.Errorf("Decode(%q) = %+v, want kind=%v text=%q reason=%q", tt.raw, d, tt.kind, tt.text, tt.reason)
			}
		})
	}
}

func TestDecode_Truncates(t *testing.T) {
	raw := strings.Repeat("é", 300)
	d := Decode(raw, 280)
	if !d.IsReply() {
		t.Fatalf("Kind = %v, want reply", d.Kind)
	}
	if n := utf8.RuneCountInString(d.Text); n != 280 {
		t.Errorf("len = %d runes, want 280", n)
	}
	if !strings.HasSuffix(d.Text, "...") {
		t.Errorf("truncated text should end with an ellipsis: %q", d.Text)
	}

	exact := strings.Repeat("a", 280)
	if d := Decode(exact, 280); d.Text != exact {
		t.Error("text at the limit should not be truncated")
	}
}

type panickingChatter struct{}

func (panickingChatter) Complete(context.Context, string, int) (string, error) {
	panic("nil map write in backend")
}

func TestGenerate_PanicIsSkip(t *testing.T) {
	g := NewGenerator(panickingChatter{}, Options{})
	d := g.Generate(context.Background(), testVoice(t), "", reply1)
	if d.Kind != KindSkip || d.Reason != ReasonGenerationFailed {
		t.Errorf("got %+v, want generation failed skip", d)
	}
}
