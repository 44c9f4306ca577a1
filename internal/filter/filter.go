// Package filter reduces the raw candidates of a run to the bounded,
// source-ordered list the orchestrator acts on.
package filter

import (
	"strings"
	"time"
	"unicode/utf8"

	"github.com/kalambet/xreply/internal/candidate"
	"github.com/kalambet/xreply/internal/config"
	"github.com/kalambet/xreply/internal/state"
)

// Rule names a filter rule. Rules run in declaration order and the first
// failing rule excludes the candidate.
type Rule string

const (
	RuleHandled      Rule = "already_handled"
	RuleSelf         Rule = "self_authored"
	RuleStale        Rule = "stale"
	RuleUnderEngaged Rule = "under_engaged"
	RuleOverBuried   Rule = "over_buried"
	RuleTooShort     Rule = "too_short"
	RuleCap          Rule = "over_cap"
)

// Rejection records why one candidate was dropped.
type Rejection struct {
	ID   string
	Rule Rule
}

// Filter applies the rules to cands and returns the survivors in source
// order, truncated to rc.MaxCandidates. cands is not modified.
func Filter(cands []candidate.Candidate, st *state.RunState, rc config.RunConfig, now time.Time) []candidate.Candidate {
	kept, _ := Explain(cands, st, rc, now)
	return kept
}

// Explain is Filter plus the reason each dropped candidate was rejected.
// Candidates cut by the per-run cap are reported with RuleCap.
func Explain(cands []candidate.Candidate, st *state.RunState, rc config.RunConfig, now time.Time) ([]candidate.Candidate, []Rejection) {
	var (
		kept     []candidate.Candidate
		rejected []Rejection
	)
	for _, c := range cands {
		if rule, ok := check(c, st, rc, now); !ok {
			rejected = append(rejected, Rejection{ID: c.ID, Rule: rule})
			continue
		}
		if len(kept) >= rc.MaxCandidates {
			rejected = append(rejected, Rejection{ID: c.ID, Rule: RuleCap})
			continue
		}
		kept = append(kept, c)
	}
	return kept, rejected
}

func check(c candidate.Candidate, st *state.RunState, rc config.RunConfig, now time.Time) (Rule, bool) {
	if st != nil && st.Handled(c.ID) {
		return RuleHandled, false
	}
	if isSelf(c, rc) {
		return RuleSelf, false
	}
	if age, known := c.Age(now); known && rc.MaxAge > 0 && age > rc.MaxAge {
		return RuleStale, false
	}
	if c.Engagement != nil {
		if rc.MinLikes > 0 && c.Engagement.Likes < rc.MinLikes {
			return RuleUnderEngaged, false
		}
		if rc.MaxReplies > 0 && c.Engagement.Replies > rc.MaxReplies {
			return RuleOverBuried, false
		}
	}
	text := strings.TrimSpace(c.Text)
	if utf8.RuneCountInString(text) < rc.MinTextLength || candidate.IsLinkOnly(text) {
		return RuleTooShort, false
	}
	return "", true
}

func isSelf(c candidate.Candidate, rc config.RunConfig) bool {
	if c.IsSelfAuthored {
		return true
	}
	if rc.Handle != "" && strings.EqualFold(strings.TrimPrefix(c.AuthorHandle, "@"), strings.TrimPrefix(rc.Handle, "@")) {
		return true
	}
	return rc.UserID != "" && c.AuthorID == rc.UserID
}
