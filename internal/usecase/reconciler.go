package usecase

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log"

	"github.com/saito-wk/changemoji/internal/domain"
	"github.com/saito-wk/changemoji/internal/emoji"
	"github.com/saito-wk/changemoji/internal/gateway"
)

const reconcileSystemPrompt = `You are given a JSON array of changelog entries, each with "pullRequest", "sentence", and "emoji" keys. Return a JSON array containing the same entries where every "emoji" value is unique across the array. Entries whose emoji does not collide with another entry's may be returned unchanged. Never alter the "sentence" or "pullRequest" values, never add entries, and never remove entries. Respond with strictly the JSON array, no prose or code fences.`

// Reconciler restores emoji uniqueness across a whole batch. Uniqueness is a
// cross-record constraint no single-record summarization can decide, so it is
// deferred to this second pass over the full batch in one model call.
type Reconciler struct {
	chat   gateway.ChatCompleter
	logger *log.Logger
}

// NewReconciler creates a new Reconciler instance.
func NewReconciler(chat gateway.ChatCompleter, logger *log.Logger) *Reconciler {
	return &Reconciler{chat: chat, logger: logger}
}

// Reconcile sends the serialized batch to the model and parses the corrected
// array back. Every returned emoji is re-validated; one bad emoji makes the
// whole reply retryable. Exhausting the retry budget returns an error and the
// caller falls back to the unreconciled batch.
func (r *Reconciler) Reconcile(ctx context.Context, batch domain.Batch) (domain.Batch, error) {
	payload, err := encodeBatch(batch)
	if err != nil {
		return nil, fmt.Errorf("serializing batch: %w", err)
	}

	return withRetry(ctx, r.logger, "reconcile emoji", func(ctx context.Context) (domain.Batch, error) {
		reply, err := r.chat.Complete(ctx, reconcileSystemPrompt, payload)
		if err != nil {
			return nil, err
		}

		var reconciled domain.Batch
		if err := json.Unmarshal([]byte(unfence(reply)), &reconciled); err != nil {
			return nil, fmt.Errorf("model reply is not a JSON array: %w", err)
		}
		for _, s := range reconciled {
			if !emoji.IsValid(s.Emoji) {
				return nil, fmt.Errorf("model returned invalid emoji %q for pr #%d", s.Emoji, s.PullRequest)
			}
		}
		return reconciled, nil
	})
}

// encodeBatch serializes the batch without escaping, so emoji and any other
// non-ASCII content reach the model as the characters themselves.
func encodeBatch(batch domain.Batch) (string, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(batch); err != nil {
		return "", err
	}
	return buf.String(), nil
}
