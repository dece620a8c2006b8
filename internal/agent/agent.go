// Package agent defines the capability contract every specialist implements
// and the executor that runs the model-driven tool loop on their behalf.
package agent

import (
	"context"

	"github.com/firebase/genkit/go/ai"
	"github.com/google/uuid"

	"github.com/wardenai/warden/internal/memory"
	"github.com/wardenai/warden/internal/rag"
)

// Tool is a typed callable the model may invoke during execution.
type Tool struct {
	Name        string
	Description string
	InputSchema map[string]any
	Handler     func(ctx context.Context, input map[string]any) (any, error)
}

// Task is one inbound request, consumed by exactly one orchestrator run.
type Task struct {
	ID               uuid.UUID
	Query            string
	RequesterContext string

	// Capabilities is the classified agent set for this request, recorded
	// before registry resolution so degraded routing stays observable.
	Capabilities []string
}

// RunContext carries everything an agent may condition on beyond the task:
// retrieved documents, outputs of agents that ran earlier in a dependency
// chain, and the conversation window.
type RunContext struct {
	RetrievedContext string
	PriorResponses   []*Response
	Session          *memory.SessionContext
}

// Response is the result of one agent invocation.
type Response struct {
	AgentName     string
	Output        string
	Confidence    float64
	ToolCallsMade []string
	Errors        []string
}

// Agent is the capability contract. Concrete agents embed *Base, which
// implements Execute; they contribute a name, a system prompt, and tools.
type Agent interface {
	Name() string
	Description() string
	Execute(ctx context.Context, task *Task, run *RunContext) (*Response, error)
}

// Binder registers a tool declaration with the model runtime and returns the
// reference to attach to generate calls. llm.Client satisfies this; tests
// run without one since the executor dispatches handlers by name itself.
type Binder interface {
	DefineTool(name, description string, handler func(ctx context.Context, input map[string]any) (any, error)) ai.ToolRef
}

// Retriever is the slice of the retrieval service agents consume for their
// knowledge-search tools.
type Retriever interface {
	Search(ctx context.Context, query string, topK int, filter map[string]string) ([]rag.Result, error)
}
