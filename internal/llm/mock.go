package llm

import (
	"context"

	"github.com/cogmem/kos/internal/domain"
)

// MockClient returns configurable extraction results for testing.
type MockClient struct {
	ExtractResponse []domain.ClaimCandidate
	ExtractError    error

	ExtractCalls []string
}

func NewMockClient() *MockClient {
	return &MockClient{}
}

func (c *MockClient) ExtractClaims(_ context.Context, passage string) ([]domain.ClaimCandidate, error) {
	c.ExtractCalls = append(c.ExtractCalls, passage)
	if c.ExtractError != nil {
		return nil, c.ExtractError
	}
	return c.ExtractResponse, nil
}
