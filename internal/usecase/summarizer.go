package usecase

import (
	"context"
	"encoding/json"
	"fmt"
	"log"

	"github.com/saito-wk/changemoji/internal/domain"
	"github.com/saito-wk/changemoji/internal/emoji"
	"github.com/saito-wk/changemoji/internal/gateway"
)

const summarizeSystemPrompt = `You are a release changelog writer. You will receive the full context of one merged pull request: its description, commits, changed files, comments, and linked issues. Respond with strictly a JSON object containing exactly two keys: "sentence" (one sentence of at most 80 characters describing the business value of the change, with no issue or pull request numbers) and "emoji" (a single relevant unicode emoji). Do not wrap the JSON in prose, explanations, or code fences.`

// Summarizer turns one pull request's context blob into a Summary via a
// language-model call, with validation and retry.
type Summarizer struct {
	chat   gateway.ChatCompleter
	logger *log.Logger
}

// NewSummarizer creates a new Summarizer instance.
func NewSummarizer(chat gateway.ChatCompleter, logger *log.Logger) *Summarizer {
	return &Summarizer{chat: chat, logger: logger}
}

// Summarize asks the model for a sentence+emoji pair describing the pull
// request. The model is never asked for the PR number; it is assigned here
// from the argument so a confused reply cannot mislabel an entry. Parse
// failures and invalid emoji count against the retry budget like network
// errors do; exhaustion returns a terminal error and the caller drops the PR.
func (s *Summarizer) Summarize(ctx context.Context, prNumber int, contextText string) (domain.Summary, error) {
	return withRetry(ctx, s.logger, fmt.Sprintf("summarize pr #%d", prNumber), func(ctx context.Context) (domain.Summary, error) {
		reply, err := s.chat.Complete(ctx, summarizeSystemPrompt, contextText)
		if err != nil {
			return domain.Summary{}, err
		}

		var parsed struct {
			Sentence string `json:"sentence"`
			Emoji    string `json:"emoji"`
		}
		if err := json.Unmarshal([]byte(unfence(reply)), &parsed); err != nil {
			return domain.Summary{}, fmt.Errorf("model reply is not a JSON object: %w", err)
		}
		if !emoji.IsValid(parsed.Emoji) {
			return domain.Summary{}, fmt.Errorf("model returned invalid emoji %q", parsed.Emoji)
		}

		return domain.Summary{
			PullRequest: prNumber,
			Sentence:    parsed.Sentence,
			Emoji:       parsed.Emoji,
		}, nil
	})
}
