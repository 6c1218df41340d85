// Package markdown renders a summary batch as Markdown lines.
package markdown

import (
	"fmt"
	"sort"
	"strings"

	"github.com/saito-wk/changemoji/internal/domain"
)

// Render sorts the batch ascending by pull request number and emits one line
// per entry: `- {emoji}  [{sentence}](#{pullRequest})`. No header, no footer.
// The input batch is not modified.
func Render(batch domain.Batch) string {
	sorted := make(domain.Batch, len(batch))
	copy(sorted, batch)
	sort.Slice(sorted, func(i, j int) bool {
		return sorted[i].PullRequest < sorted[j].PullRequest
	})

	lines := make([]string, 0, len(sorted))
	for _, s := range sorted {
		lines = append(lines, fmt.Sprintf("- %s  [%s](#%d)", s.Emoji, s.Sentence, s.PullRequest))
	}
	return strings.Join(lines, "\n")
}
