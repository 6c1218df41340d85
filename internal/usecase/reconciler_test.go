package usecase

import (
	"context"
	"strings"
	"testing"

	"github.com/saito-wk/changemoji/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func TestReconciler_Reconcile(t *testing.T) {
	ctx := context.Background()
	batch := domain.Batch{
		{PullRequest: 5, Sentence: "Adds payments", Emoji: "🎉"},
		{PullRequest: 9, Sentence: "Fixes login", Emoji: "🎉"},
	}

	t.Run("happy path - colliding emoji are reassigned", func(t *testing.T) {
		chat := new(mockChat)
		chat.On("Complete", mock.Anything, reconcileSystemPrompt, mock.Anything).
			Return(`[{"pullRequest":5,"sentence":"Adds payments","emoji":"🎉"},{"pullRequest":9,"sentence":"Fixes login","emoji":"✨"}]`, nil).Once()

		r := NewReconciler(chat, discardLogger())
		got, err := r.Reconcile(ctx, batch)

		require.NoError(t, err)
		require.Len(t, got, 2)
		assert.Equal(t, "🎉", got[0].Emoji)
		assert.Equal(t, "✨", got[1].Emoji)
		assert.Equal(t, "Fixes login", got[1].Sentence)
		assert.True(t, domain.Consistent(batch, got))
		chat.AssertExpectations(t)
	})

	t.Run("batch is serialized with raw emoji bytes", func(t *testing.T) {
		chat := new(mockChat)
		chat.On("Complete", mock.Anything, mock.Anything, mock.MatchedBy(func(payload string) bool {
			// the emoji must reach the model unescaped
			return containsAll(payload, "🎉", `"pullRequest":5`, `"sentence":"Adds payments"`)
		})).Return(`[{"pullRequest":5,"sentence":"Adds payments","emoji":"🎉"},{"pullRequest":9,"sentence":"Fixes login","emoji":"🚀"}]`, nil).Once()

		r := NewReconciler(chat, discardLogger())
		_, err := r.Reconcile(ctx, batch)

		require.NoError(t, err)
		chat.AssertExpectations(t)
	})

	t.Run("one invalid emoji makes the whole reply retryable", func(t *testing.T) {
		chat := new(mockChat)
		chat.On("Complete", mock.Anything, mock.Anything, mock.Anything).
			Return(`[{"pullRequest":5,"sentence":"Adds payments","emoji":"🎉"},{"pullRequest":9,"sentence":"Fixes login","emoji":"nope"}]`, nil).Once()
		chat.On("Complete", mock.Anything, mock.Anything, mock.Anything).
			Return(`[{"pullRequest":5,"sentence":"Adds payments","emoji":"🎉"},{"pullRequest":9,"sentence":"Fixes login","emoji":"✨"}]`, nil).Once()

		r := NewReconciler(chat, discardLogger())
		got, err := r.Reconcile(ctx, batch)

		require.NoError(t, err)
		assert.Equal(t, "✨", got[1].Emoji)
		chat.AssertNumberOfCalls(t, "Complete", 2)
	})

	t.Run("exhausting retries yields an error, not a partial batch", func(t *testing.T) {
		chat := new(mockChat)
		chat.On("Complete", mock.Anything, mock.Anything, mock.Anything).
			Return("sorry, I cannot do that", nil).Times(3)

		r := NewReconciler(chat, discardLogger())
		got, err := r.Reconcile(ctx, batch)

		require.Error(t, err)
		assert.Nil(t, got)
		chat.AssertNumberOfCalls(t, "Complete", 3)
	})
}

func containsAll(s string, subs ...string) bool {
	for _, sub := range subs {
		if !strings.Contains(s, sub) {
			return false
		}
	}
	return true
}
