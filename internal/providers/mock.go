package providers

import (
	"context"
	"fmt"
	"sync"
)

// MockGenerator returns scripted replies in order. Used by orchestration
// tests to observe the exact sequence of calls without a network.
type MockGenerator struct {
	mu      sync.Mutex
	Replies []GenerateResult
	Errs    []error
	Calls   []GenerateRequest
}

func NewMockGenerator(replies ...string) *MockGenerator {
	m := &MockGenerator{}
	for _, r := range replies {
		m.Replies = append(m.Replies, GenerateResult{Text: r})
	}
	return m
}

func (m *MockGenerator) Generate(ctx context.Context, req GenerateRequest) (GenerateResult, error) {
	_ = ctx
	m.mu.Lock()
	defer m.mu.Unlock()
	i := len(m.Calls)
	m.Calls = append(m.Calls, req)
	if i < len(m.Errs) && m.Errs[i] != nil {
		return GenerateResult{}, m.Errs[i]
	}
	if i >= len(m.Replies) {
		return GenerateResult{}, fmt.Errorf("mock generator: unexpected call %d", i+1)
	}
	return m.Replies[i], nil
}

func (m *MockGenerator) CallCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.Calls)
}
