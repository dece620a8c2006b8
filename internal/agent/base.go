package agent

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/firebase/genkit/go/ai"

	"github.com/wardenai/warden/internal/llm"
)

// forcedAnswerPrompt ends a tool loop that exhausted its budget.
const forcedAnswerPrompt = "You have used all available tool calls. " +
	"Give your final answer now using only the evidence gathered so far."

// Config assembles a Base executor.
type Config struct {
	Name         string
	Description  string
	SystemPrompt string
	Tools        []Tool

	Generator llm.Generator
	Binder    Binder // nil skips model-side tool registration
	Logger    *slog.Logger

	// MaxToolCalls bounds the tool loop; once exhausted the agent forces
	// a final answer from the evidence gathered so far.
	MaxToolCalls int
}

// Base runs the generate/tool/generate loop shared by every specialist.
//
// The session (system prompt plus tool registrations) is bound once on first
// use and reused across turns, instead of re-registering per call. Provider
// fallback inside the llm client preserves the same system prompt and tool
// declarations, so a mid-task provider swap resumes the task unchanged.
type Base struct {
	name         string
	description  string
	systemPrompt string
	tools        []Tool
	gen          llm.Generator
	binder       Binder
	logger       *slog.Logger
	maxToolCalls int

	initOnce sync.Once
	toolRefs []ai.ToolRef
	handlers map[string]Tool
}

// NewBase creates a Base executor.
func NewBase(cfg Config) (*Base, error) {
	if cfg.Name == "" {
		return nil, fmt.Errorf("agent name is required")
	}
	if cfg.Generator == nil {
		return nil, fmt.Errorf("agent %q: generator is required", cfg.Name)
	}
	if cfg.MaxToolCalls <= 0 {
		cfg.MaxToolCalls = 6
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Base{
		name:         cfg.Name,
		description:  cfg.Description,
		systemPrompt: cfg.SystemPrompt,
		tools:        cfg.Tools,
		gen:          cfg.Generator,
		binder:       cfg.Binder,
		logger:       cfg.Logger,
		maxToolCalls: cfg.MaxToolCalls,
	}, nil
}

func (b *Base) Name() string        { return b.name }
func (b *Base) Description() string { return b.description }

// bindSession registers tools with the runtime exactly once.
func (b *Base) bindSession() {
	b.handlers = make(map[string]Tool, len(b.tools))
	for _, t := range b.tools {
		b.handlers[t.Name] = t
		if b.binder != nil {
			b.toolRefs = append(b.toolRefs, b.binder.DefineTool(t.Name, t.Description, t.Handler))
		}
	}
}

// Execute runs the task. Tool failures are recorded on the response and the
// loop continues; only a model call failing entirely returns an error.
func (b *Base) Execute(ctx context.Context, task *Task, run *RunContext) (*Response, error) {
	b.initOnce.Do(b.bindSession)

	resp := &Response{AgentName: b.name}
	history := []*ai.Message{ai.NewUserMessage(ai.NewTextPart(b.buildPrompt(task, run)))}

	calls := 0
	for {
		out, err := b.gen.Generate(ctx, &llm.Request{
			System:             b.systemPrompt,
			Messages:           history,
			Tools:              b.toolRefs,
			ReturnToolRequests: true,
		})
		if err != nil {
			return nil, fmt.Errorf("agent %s: %w", b.name, err)
		}

		requests := llm.ToolRequests(out)
		if len(requests) == 0 {
			resp.Output = out.Text()
			resp.Confidence = b.confidence(resp, false)
			return resp, nil
		}

		history = append(history, out.Message)
		var results []*ai.Part
		for _, req := range requests {
			calls++
			resp.ToolCallsMade = append(resp.ToolCallsMade, req.Name)
			results = append(results, ai.NewToolResponsePart(&ai.ToolResponse{
				Name:   req.Name,
				Ref:    req.Ref,
				Output: b.callTool(ctx, resp, req),
			}))
		}
		history = append(history, &ai.Message{Role: ai.RoleTool, Content: results})

		if calls >= b.maxToolCalls {
			return b.forceAnswer(ctx, resp, history)
		}
	}
}

// callTool dispatches one tool request. Unknown tools and handler failures
// become error strings fed back to the model and recorded on the response.
func (b *Base) callTool(ctx context.Context, resp *Response, req *ai.ToolRequest) any {
	tool, ok := b.handlers[req.Name]
	if !ok {
		resp.Errors = append(resp.Errors, fmt.Sprintf("unknown tool %q", req.Name))
		return map[string]any{"error": fmt.Sprintf("tool %q is not available", req.Name)}
	}

	input, _ := req.Input.(map[string]any)
	out, err := tool.Handler(ctx, input)
	if err != nil {
		b.logger.Warn("tool call failed", "agent", b.name, "tool", req.Name, "error", err)
		resp.Errors = append(resp.Errors, fmt.Sprintf("tool %s: %v", req.Name, err))
		return map[string]any{"error": err.Error()}
	}
	return out
}

// forceAnswer makes one final tool-free call after the budget is exhausted.
func (b *Base) forceAnswer(ctx context.Context, resp *Response, history []*ai.Message) (*Response, error) {
	history = append(history, ai.NewUserMessage(ai.NewTextPart(forcedAnswerPrompt)))
	out, err := b.gen.Generate(ctx, &llm.Request{
		System:   b.systemPrompt,
		Messages: history,
	})
	if err != nil {
		return nil, fmt.Errorf("agent %s: forcing final answer: %w", b.name, err)
	}
	resp.Output = out.Text()
	resp.Confidence = b.confidence(resp, true)
	b.logger.Debug("tool budget exhausted, forced final answer",
		"agent", b.name, "tool_calls", len(resp.ToolCallsMade))
	return resp, nil
}

// confidence derives a coarse confidence from how cleanly the run went.
func (b *Base) confidence(resp *Response, forced bool) float64 {
	c := 0.9
	if forced {
		c = 0.5
	}
	c -= 0.1 * float64(len(resp.Errors))
	if c < 0.3 {
		c = 0.3
	}
	return c
}

// buildPrompt assembles the user-visible prompt: the query, then any
// retrieved context, prior agent outputs, and the conversation window.
func (b *Base) buildPrompt(task *Task, run *RunContext) string {
	var p strings.Builder
	p.WriteString(task.Query)
	if task.RequesterContext != "" {
		fmt.Fprintf(&p, "\n\nRequester context:\n%s", task.RequesterContext)
	}
	if run == nil {
		return p.String()
	}
	if run.RetrievedContext != "" {
		fmt.Fprintf(&p, "\n\nRelevant documentation:\n%s", run.RetrievedContext)
	}
	for _, prior := range run.PriorResponses {
		fmt.Fprintf(&p, "\n\nOutput from %s agent:\n%s", prior.AgentName, prior.Output)
	}
	if run.Session != nil && len(run.Session.Turns) > 0 {
		fmt.Fprintf(&p, "\n\nRecent conversation:\n%s", run.Session.Transcript())
	}
	return p.String()
}
