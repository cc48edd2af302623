package llmclient

import (
	"context"
	"fmt"
	"sync"

	"github.com/waypointlabs/waypoint/api/schemas"
)

// MockClient is a scripted LLMClient used by tests and by the "mock" provider.
// Responses are consumed in order; when the script runs out it keeps returning
// the final entry.
type MockClient struct {
	mu        sync.Mutex
	responses []schemas.GenerationResult
	errs      []error
	calls     int
	// LastRequest records the most recent request for assertions.
	LastRequest schemas.GenerationRequest
}

// NewMockClient returns an empty mock; queue turns with Enqueue.
func NewMockClient() *MockClient {
	return &MockClient{}
}

// Enqueue appends one scripted turn.
func (m *MockClient) Enqueue(text string, usage schemas.TokenUsage) *MockClient {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.responses = append(m.responses, schemas.GenerationResult{Text: text, Usage: usage})
	m.errs = append(m.errs, nil)
	return m
}

// EnqueueError appends one failing turn.
func (m *MockClient) EnqueueError(err error) *MockClient {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.responses = append(m.responses, schemas.GenerationResult{})
	m.errs = append(m.errs, err)
	return m
}

// Calls reports how many times GenerateResponse ran.
func (m *MockClient) Calls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls
}

func (m *MockClient) GenerateResponse(ctx context.Context, req schemas.GenerationRequest) (schemas.GenerationResult, error) {
	if err := ctx.Err(); err != nil {
		return schemas.GenerationResult{}, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls++
	m.LastRequest = req

	if len(m.responses) == 0 {
		return schemas.GenerationResult{}, fmt.Errorf("mock client has no scripted responses")
	}
	idx := m.calls - 1
	if idx >= len(m.responses) {
		idx = len(m.responses) - 1
	}
	if err := m.errs[idx]; err != nil {
		return schemas.GenerationResult{}, err
	}
	return m.responses[idx], nil
}

var _ schemas.LLMClient = (*MockClient)(nil)
