// Package domain contains the core data structures and domain logic for the application.
package domain

// Summary is a single changelog entry: one merged pull request condensed into
// a business-facing sentence plus a single emoji.
// It is the core domain entity of this application.
type Summary struct {
	PullRequest int    `json:"pullRequest"`
	Sentence    string `json:"sentence"`
	Emoji       string `json:"emoji"`
}

// Batch is the set of summaries produced for one release range,
// keyed conceptually by pull request number.
type Batch []Summary

// Numbers returns the set of pull request numbers represented in the batch.
// Duplicate entries collapse into a single set member.
func (b Batch) Numbers() map[int]struct{} {
	set := make(map[int]struct{}, len(b))
	for _, s := range b {
		set[s.PullRequest] = struct{}{}
	}
	return set
}

// Consistent reports whether a reconciled batch still covers exactly the same
// pull requests as the original. The reconciliation step is never allowed to
// silently drop or fabricate an entry, so set inequality is fatal for the run.
// A nil side means that batch is unavailable, which degrades gracefully to
// using whichever batch exists, so it is treated as consistent.
func Consistent(original, reconciled Batch) bool {
	if original == nil || reconciled == nil {
		return true
	}
	want := original.Numbers()
	got := reconciled.Numbers()
	if len(want) != len(got) {
		return false
	}
	for n := range want {
		if _, ok := got[n]; !ok {
			return false
		}
	}
	return true
}
