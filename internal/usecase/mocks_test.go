package usecase

import (
	"context"

	"github.com/stretchr/testify/mock"
)

// mockChat is a mock implementation of the gateway.ChatCompleter interface.
// It lets us script model replies without calling a real endpoint.
type mockChat struct {
	mock.Mock
}

func (m *mockChat) Complete(ctx context.Context, systemPrompt, userPrompt string) (string, error) {
	args := m.Called(ctx, systemPrompt, userPrompt)
	return args.String(0), args.Error(1)
}

// mockFetcher is a mock implementation of the gateway.ContextFetcher interface.
type mockFetcher struct {
	mock.Mock
}

func (m *mockFetcher) PullRequestContext(ctx context.Context, owner, repo string, number int) (string, error) {
	args := m.Called(ctx, owner, repo, number)
	return args.String(0), args.Error(1)
}
