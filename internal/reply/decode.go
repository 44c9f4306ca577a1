package reply

import (
	"regexp"
	"strings"
	"unicode/utf8"
)

// Sentinel is the literal token a model returns to decline replying.
const Sentinel = "SKIP"

const ellipsis = "..."

// Kind tags a Decision.
type Kind int

const (
	KindSkip Kind = iota
	KindReply
)

func (k Kind) String() string {
	if k == KindReply {
		return "reply"
	}
	return "skip"
}

// Skip reasons recorded with a KindSkip decision.
const (
	ReasonSentinel         = "skip sentinel"
	ReasonEmpty            = "empty reply"
	ReasonGenerationFailed = "generation failed"
)

// Decision is the generator's verdict for one candidate.
type Decision struct {
	Kind   Kind
	Text   string
	Reason string
}

// IsReply reports whether the decision carries text to post.
func (d Decision) IsReply() bool { return d.Kind == KindReply }

func skip(reason string) Decision { return Decision{Kind: KindSkip, Reason: reason} }

var wrappingQuotes = regexp.MustCompile(`^["']|["']$`)

// Decode interprets raw model output. An exact sentinel, and then any
// case-sensitive occurrence of it, means skip. Surrounding quotes are
// removed and text longer than maxChars runes is cut to maxChars-3 runes
// plus an ellipsis.
func Decode(raw string, maxChars int) Decision {
	text := strings.TrimSpace(raw)
	if text == "" {
		return skip(ReasonEmpty)
	}
	if text == Sentinel || strings.Contains(text, Sentinel) {
		return skip(ReasonSentinel)
	}

	text = strings.TrimSpace(wrappingQuotes.ReplaceAllString(text, ""))
	if text == "" {
		return skip(ReasonEmpty)
	}

	if maxChars > len(ellipsis) && utf8.RuneCountInString(text) > maxChars {
		r := []rune(text)
		text = string(r[:maxChars-len(ellipsis)]) + ellipsis
	}
	return Decision{Kind: KindReply, Text: text}
}
