// Package llm provides the completion client shared by every component that
// talks to a language model.
//
// The client wraps Genkit model calls with the resilience stack: proactive
// rate limiting, retry with exponential backoff on transient errors, a
// circuit breaker, and primary-to-fallback provider swap when the primary
// is unavailable. Callers express a call as a Request (system prompt,
// messages, tool declarations) so tests can fake the Generator interface
// without a model runtime.
package llm

import (
	"context"
	"errors"

	"github.com/firebase/genkit/go/ai"
)

// Sentinel errors for LLM operations.
var (
	// ErrProviderUnavailable indicates both the primary and fallback
	// providers failed to serve the request.
	ErrProviderUnavailable = errors.New("llm provider unavailable")

	// ErrEmptyResponse indicates the model returned no usable output.
	ErrEmptyResponse = errors.New("empty model response")
)

// Request describes a single completion call.
// It mirrors the narrow contract complete(system, messages, tools) and is
// deliberately independent of any provider SDK except for Genkit's message
// types, which the whole codebase shares.
type Request struct {
	System   string
	Messages []*ai.Message
	Tools    []ai.ToolRef

	// ReturnToolRequests makes the model's tool calls come back to the
	// caller instead of being auto-executed by Genkit. Agents run their
	// own bounded tool loop.
	ReturnToolRequests bool

	// Model overrides the client's primary model when non-empty.
	// Provider-qualified name, e.g. "googleai/gemini-2.5-flash".
	Model string
}

// Generator is the consumer-side completion contract.
// Production code uses *Client; tests substitute fakes.
type Generator interface {
	Generate(ctx context.Context, req *Request) (*ai.ModelResponse, error)
}

// ToolRequests extracts the tool request parts from a model response.
// Returns nil when the model produced a final answer.
func ToolRequests(resp *ai.ModelResponse) []*ai.ToolRequest {
	if resp == nil || resp.Message == nil {
		return nil
	}
	var reqs []*ai.ToolRequest
	for _, part := range resp.Message.Content {
		if part.Kind == ai.PartToolRequest && part.ToolRequest != nil {
			reqs = append(reqs, part.ToolRequest)
		}
	}
	return reqs
}
