package llm

import (
	"context"
	"sync"
)

// MockClient is a test double for Client. Requests are recorded in order.
type MockClient struct {
	ProviderName string
	CompleteFunc func(ctx context.Context, req CompletionRequest) (*CompletionResponse, error)

	mu       sync.Mutex
	requests []CompletionRequest
}

func (m *MockClient) Name() string { return m.ProviderName }

func (m *MockClient) Complete(ctx context.Context, req CompletionRequest) (*CompletionResponse, error) {
	m.mu.Lock()
	m.requests = append(m.requests, req)
	m.mu.Unlock()

	if m.CompleteFunc != nil {
		return m.CompleteFunc(ctx, req)
	}
	return &CompletionResponse{Content: "mock response"}, nil
}

// Requests returns a copy of every request received so far.
func (m *MockClient) Requests() []CompletionRequest {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]CompletionRequest(nil), m.requests...)
}
