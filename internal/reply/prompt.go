package reply

import (
	"fmt"
	"strings"

	"github.com/kalambet/xreply/internal/candidate"
)

// contextLimit bounds how much of the original post is quoted back.
const contextLimit = 300

// BuildPrompt combines the rendered voice spec, the optional context post and
// the candidate's cleaned text into a single user prompt. A non-empty
// contextText means the candidate is a reply to the account's own post.
func BuildPrompt(voice VoiceSpec, handle, contextText string, c candidate.Candidate) string {
	var sb strings.Builder
	sb.WriteString(voice.Render(handle))

	text := candidate.Clean(c.Text)
	if contextText != "" {
		fmt.Fprintf(&sb, "\n\nORIGINAL POST (yours):\n\"%s\"", candidate.Truncate(contextText, contextLimit))
		fmt.Fprintf(&sb, "\n\nREPLY FROM @%s (%s):\n\"%s\"", c.Handle(), c.DisplayName(), text)
	} else {
		fmt.Fprintf(&sb, "\n\nPOST FROM @%s:\n\"%s\"", c.Handle(), text)
	}

	fmt.Fprintf(&sb, "\n\n%s", voice.CallToAction())
	return sb.String()
}
