package candidate

import (
	"testing"
	"time"
)

func TestClean(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"@Biblicalman Amen brother", "Amen brother"},
		{"@a @b this one https://t.co/xyz", "this one"},
		{"no mentions here", "no mentions here"},
		{"  @only  ", ""},
	}
	for _, tt := range tests {
		if got := Clean(tt.in); got != tt.want {
			t.Errorf("Clean(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestIsLinkOnly(t *testing.T) {
	tests := []struct {
		in   string
		want bool
	}{
		{"https://example.com/post", true},
		{"  http://t.co/abc  ", true},
		{"https://example.com read this", false},
		{"read this https://example.com", false},
		{"", false},
	}
	for _, tt := range tests {
		if got := IsLinkOnly(tt.in); got != tt.want {
			t.Errorf("IsLinkOnly(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestIsRepostText(t *testing.T) {
	if !IsRepostText("RT @someone: hello") {
		t.Error("IsRepostText(RT @someone) = false, want true")
	}
	if IsRepostText("RTFM please") {
		t.Error("IsRepostText(RTFM) = true, want false")
	}
}

func TestTruncate_Runes(t *testing.T) {
	if got := Truncate("héllo wörld", 5); got != "héllo" {
		t.Errorf("Truncate = %q, want %q", got, "héllo")
	}
	if got := Truncate("short", 30); got != "short" {
		t.Errorf("Truncate = %q, want %q", got, "short")
	}
	if got := Truncate("x", 0); got != "" {
		t.Errorf("Truncate(n=0) = %q, want empty", got)
	}
}

func TestFallbackID(t *testing.T) {
	got := FallbackID("alice", "This is a fairly long reply that keeps going")
	want := "alice-This is a fairly long reply th"
	if got != want {
		t.Errorf("FallbackID = %q, want %q", got, want)
	}
}

func TestAge_Unknown(t *testing.T) {
	c := Candidate{ID: "1"}
	if _, ok := c.Age(time.Now()); ok {
		t.Error("Age() ok = true for nil CreatedAt, want false")
	}

	ts := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	c.CreatedAt = &ts
	age, ok := c.Age(ts.Add(2 * time.Hour))
	if !ok || age != 2*time.Hour {
		t.Errorf("Age() = %v, %v, want 2h, true", age, ok)
	}
}

func TestDisplayName(t *testing.T) {
	if got := (Candidate{}).DisplayName(); got != UnknownAuthor {
		t.Errorf("DisplayName() = %q, want %q", got, UnknownAuthor)
	}
	if got := (Candidate{AuthorHandle: "bob"}).DisplayName(); got != "bob" {
		t.Errorf("DisplayName() = %q, want bob", got)
	}
	if got := (Candidate{AuthorHandle: "bob", AuthorName: "Bob"}).DisplayName(); got != "Bob" {
		t.Errorf("DisplayName() = %q, want Bob", got)
	}
}
