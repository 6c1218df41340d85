package usecase

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func newTestPipeline(fetcher *mockFetcher, chat *mockChat) *Pipeline {
	logger := discardLogger()
	return NewPipeline(fetcher, NewSummarizer(chat, logger), NewReconciler(chat, logger), logger, 2)
}

func TestPipeline_Run(t *testing.T) {
	ctx := context.Background()

	t.Run("happy path - summarizes, reconciles, and keeps the reconciled batch", func(t *testing.T) {
		fetcher := new(mockFetcher)
		fetcher.On("PullRequestContext", mock.Anything, "acme", "widgets", 5).Return("context 5", nil).Once()
		fetcher.On("PullRequestContext", mock.Anything, "acme", "widgets", 9).Return("context 9", nil).Once()

		chat := new(mockChat)
		chat.On("Complete", mock.Anything, summarizeSystemPrompt, "context 5").
			Return(`{"sentence":"Adds payments","emoji":"🎉"}`, nil).Once()
		chat.On("Complete", mock.Anything, summarizeSystemPrompt, "context 9").
			Return(`{"sentence":"Fixes login","emoji":"🎉"}`, nil).Once()
		chat.On("Complete", mock.Anything, reconcileSystemPrompt, mock.Anything).
			Return(`[{"pullRequest":5,"sentence":"Adds payments","emoji":"🎉"},{"pullRequest":9,"sentence":"Fixes login","emoji":"✨"}]`, nil).Once()

		batch, err := newTestPipeline(fetcher, chat).Run(ctx, "acme", "widgets", []int{5, 9})

		require.NoError(t, err)
		require.Len(t, batch, 2)
		emojis := map[int]string{}
		for _, s := range batch {
			emojis[s.PullRequest] = s.Emoji
		}
		assert.Equal(t, map[int]string{5: "🎉", 9: "✨"}, emojis)
		fetcher.AssertExpectations(t)
		chat.AssertExpectations(t)
	})

	t.Run("one failing PR is dropped, siblings are unaffected", func(t *testing.T) {
		fetcher := new(mockFetcher)
		fetcher.On("PullRequestContext", mock.Anything, "acme", "widgets", 5).Return("context 5", nil).Once()
		fetcher.On("PullRequestContext", mock.Anything, "acme", "widgets", 9).
			Return("", errors.New("github unavailable")).Times(3)

		chat := new(mockChat)
		chat.On("Complete", mock.Anything, summarizeSystemPrompt, "context 5").
			Return(`{"sentence":"Adds payments","emoji":"🎉"}`, nil).Once()
		chat.On("Complete", mock.Anything, reconcileSystemPrompt, mock.Anything).
			Return(`[{"pullRequest":5,"sentence":"Adds payments","emoji":"🎉"}]`, nil).Once()

		batch, err := newTestPipeline(fetcher, chat).Run(ctx, "acme", "widgets", []int{5, 9})

		require.NoError(t, err)
		require.Len(t, batch, 1)
		assert.Equal(t, 5, batch[0].PullRequest)
		fetcher.AssertExpectations(t)
	})

	t.Run("summarization exhaustion drops only that PR", func(t *testing.T) {
		fetcher := new(mockFetcher)
		fetcher.On("PullRequestContext", mock.Anything, "acme", "widgets", 5).Return("context 5", nil).Once()
		fetcher.On("PullRequestContext", mock.Anything, "acme", "widgets", 9).Return("context 9", nil).Once()

		chat := new(mockChat)
		chat.On("Complete", mock.Anything, summarizeSystemPrompt, "context 5").
			Return("not json", nil).Times(3)
		chat.On("Complete", mock.Anything, summarizeSystemPrompt, "context 9").
			Return(`{"sentence":"Fixes login","emoji":"🔑"}`, nil).Once()
		chat.On("Complete", mock.Anything, reconcileSystemPrompt, mock.Anything).
			Return(`[{"pullRequest":9,"sentence":"Fixes login","emoji":"🔑"}]`, nil).Once()

		batch, err := newTestPipeline(fetcher, chat).Run(ctx, "acme", "widgets", []int{5, 9})

		require.NoError(t, err)
		require.Len(t, batch, 1)
		assert.Equal(t, 9, batch[0].PullRequest)
	})

	t.Run("reconciliation failure falls back to the original batch", func(t *testing.T) {
		fetcher := new(mockFetcher)
		fetcher.On("PullRequestContext", mock.Anything, "acme", "widgets", 5).Return("context 5", nil).Once()

		chat := new(mockChat)
		chat.On("Complete", mock.Anything, summarizeSystemPrompt, "context 5").
			Return(`{"sentence":"Adds payments","emoji":"🎉"}`, nil).Once()
		chat.On("Complete", mock.Anything, reconcileSystemPrompt, mock.Anything).
			Return("garbage", nil).Times(3)

		batch, err := newTestPipeline(fetcher, chat).Run(ctx, "acme", "widgets", []int{5})

		require.NoError(t, err)
		require.Len(t, batch, 1)
		assert.Equal(t, "🎉", batch[0].Emoji)
	})

	t.Run("reconciliation that changes membership aborts the run", func(t *testing.T) {
		fetcher := new(mockFetcher)
		fetcher.On("PullRequestContext", mock.Anything, "acme", "widgets", 5).Return("context 5", nil).Once()
		fetcher.On("PullRequestContext", mock.Anything, "acme", "widgets", 9).Return("context 9", nil).Once()

		chat := new(mockChat)
		chat.On("Complete", mock.Anything, summarizeSystemPrompt, mock.Anything).
			Return(`{"sentence":"Something","emoji":"🎉"}`, nil).Twice()
		// The model dropped PR 9 and invented PR 12.
		chat.On("Complete", mock.Anything, reconcileSystemPrompt, mock.Anything).
			Return(`[{"pullRequest":5,"sentence":"Something","emoji":"🎉"},{"pullRequest":12,"sentence":"Something","emoji":"✨"}]`, nil).Once()

		batch, err := newTestPipeline(fetcher, chat).Run(ctx, "acme", "widgets", []int{5, 9})

		require.ErrorIs(t, err, ErrInconsistentBatch)
		assert.Nil(t, batch)
	})

	t.Run("empty summarized batch skips reconciliation and yields an empty changelog", func(t *testing.T) {
		fetcher := new(mockFetcher)
		fetcher.On("PullRequestContext", mock.Anything, "acme", "widgets", 5).
			Return("", errors.New("boom")).Times(3)

		chat := new(mockChat)

		batch, err := newTestPipeline(fetcher, chat).Run(ctx, "acme", "widgets", []int{5})

		require.NoError(t, err)
		assert.Empty(t, batch)
		chat.AssertNotCalled(t, "Complete", mock.Anything, mock.Anything, mock.Anything)
	})
}
