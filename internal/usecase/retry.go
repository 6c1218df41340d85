// Package usecase contains the business logic of the application: the
// per-PR summarization fan-out, the emoji-uniqueness reconciliation pass,
// and the consistency gate between them.
package usecase

import (
	"context"
	"fmt"
	"log"
	"strings"
)

// maxAttempts bounds every external call sequence. Network failures, bad
// HTTP statuses, unparseable replies, and invalid emoji all spend attempts
// from the same budget.
const maxAttempts = 3

// withRetry drives fn up to maxAttempts times, returning the first success
// or the last failure wrapped with the attempt count. Each call's retry
// counter is independent; nothing here is shared between concurrent units.
func withRetry[T any](ctx context.Context, logger *log.Logger, what string, fn func(ctx context.Context) (T, error)) (T, error) {
	var zero T
	var lastErr error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return zero, err
		}
		v, err := fn(ctx)
		if err == nil {
			return v, nil
		}
		lastErr = err
		logger.Printf("%s: attempt %d/%d failed: %v", what, attempt, maxAttempts, err)
	}
	return zero, fmt.Errorf("%s failed after %d attempts: %w", what, maxAttempts, lastErr)
}

// unfence strips a Markdown code fence from a model reply. Models wrap JSON
// in ```json blocks often enough that refusing to look inside would waste
// retry budget on otherwise valid answers.
func unfence(reply string) string {
	s := strings.TrimSpace(reply)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```")
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		s = s[i+1:] // drop the language tag line
	}
	s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	return strings.TrimSpace(s)
}
