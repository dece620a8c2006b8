// Package testutil provides test doubles shared across packages, chiefly a
// scriptable stand-in for the LLM client.
package testutil

import (
	"context"
	"sync"

	"github.com/firebase/genkit/go/ai"

	"github.com/wardenai/warden/internal/llm"
)

// MockGenerator implements llm.Generator by replaying a queue of canned
// responses. Once the queue is drained the last response repeats, so loops
// that probe repeatedly still terminate. Safe for concurrent use.
type MockGenerator struct {
	mu       sync.Mutex
	queue    []*ai.ModelResponse
	err      error
	requests []*llm.Request
}

// NewMockGenerator creates a mock that replays responses in order.
func NewMockGenerator(responses ...*ai.ModelResponse) *MockGenerator {
	return &MockGenerator{queue: responses}
}

// NewFailingGenerator creates a mock whose every call fails with err.
func NewFailingGenerator(err error) *MockGenerator {
	return &MockGenerator{err: err}
}

// Generate records the request and returns the next queued response.
func (m *MockGenerator) Generate(_ context.Context, req *llm.Request) (*ai.ModelResponse, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.requests = append(m.requests, req)
	if m.err != nil {
		return nil, m.err
	}
	if len(m.queue) == 0 {
		return Text("mock response"), nil
	}
	i := len(m.requests) - 1
	if i >= len(m.queue) {
		i = len(m.queue) - 1
	}
	return m.queue[i], nil
}

// Calls returns how many times Generate was invoked.
func (m *MockGenerator) Calls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.requests)
}

// Requests returns a copy of every request seen so far.
func (m *MockGenerator) Requests() []*llm.Request {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]*llm.Request, len(m.requests))
	copy(out, m.requests)
	return out
}

// Text builds a final text response.
func Text(text string) *ai.ModelResponse {
	return &ai.ModelResponse{Message: ai.NewModelMessage(ai.NewTextPart(text))}
}

// ToolCall builds a response in which the model requests one tool call.
func ToolCall(name string, input map[string]any) *ai.ModelResponse {
	return &ai.ModelResponse{Message: &ai.Message{
		Role: ai.RoleModel,
		Content: []*ai.Part{{
			Kind:        ai.PartToolRequest,
			ToolRequest: &ai.ToolRequest{Name: name, Input: input},
		}},
	}}
}
