// Package orchestrator coordinates a conversation turn end to end:
// classification, routing, agent execution, aggregation, and persistence.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/firebase/genkit/go/ai"
	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/wardenai/warden/internal/agent"
	"github.com/wardenai/warden/internal/classify"
	"github.com/wardenai/warden/internal/llm"
	"github.com/wardenai/warden/internal/memory"
	"github.com/wardenai/warden/internal/rag"
)

const synthesisSystemPrompt = `You merge outputs from several security specialist agents into one answer.
Reconcile disagreements, remove duplicated points, and keep every numeric
score and identifier exactly as the agents produced them.
Respond with JSON only:
{"text": "<the consolidated answer>", "suggested_actions": ["<concrete next step>", ...]}`

type synthesisPayload struct {
	Text             string   `json:"text"`
	SuggestedActions []string `json:"suggested_actions"`
}

// dependencies declares which agents consume another agent's output. A
// depender runs after its dependency with the dependency's response in its
// run context, forcing the chain sequential.
var dependencies = map[string][]string{
	agent.NameCompliance: {agent.NameRisk},
	agent.NameReporting:  {agent.NameRisk, agent.NameCompliance},
}

// ConsolidatedResponse is the unit returned to the caller and persisted to
// conversation history.
type ConsolidatedResponse struct {
	Text             string
	AgentsUsed       []string
	Sources          []string
	SuggestedActions []string
	Urgency          string

	// DegradedRouting reports that a classified agent was unavailable and
	// the general agent was substituted.
	DegradedRouting bool
	// DegradedRetrieval reports the turn ran without RAG context.
	DegradedRetrieval bool
	// NotPersisted reports a persistence failure; the caller may retry.
	NotPersisted bool
}

// Classifier is the intent classification contract.
// classify.Classifier satisfies it; tests mock it to assert routing.
type Classifier interface {
	Classify(ctx context.Context, query string, session *memory.SessionContext, retrieved []rag.Result) *classify.Result
}

// Retriever is the slice of the retrieval service the orchestrator uses for
// the pre-fetch.
type Retriever interface {
	Search(ctx context.Context, query string, topK int, filter map[string]string) ([]rag.Result, error)
}

// Memory is the conversation-state contract.
type Memory interface {
	Context(ctx context.Context, sessionID uuid.UUID) (*memory.SessionContext, error)
	Append(ctx context.Context, turn *memory.Turn) error
}

// Config assembles an Orchestrator.
type Config struct {
	Classifier Classifier
	Registry   *agent.Registry
	Retriever  Retriever
	Memory     Memory
	Generator  llm.Generator // synthesis call
	Logger     *slog.Logger

	TopK               int
	ContextTokenBudget int
	AgentTimeout       time.Duration
	TurnTimeout        time.Duration
}

// Orchestrator runs the turn state machine.
type Orchestrator struct {
	classifier   Classifier
	registry     *agent.Registry
	retriever    Retriever
	memory       Memory
	gen          llm.Generator
	logger       *slog.Logger
	topK         int
	tokenBudget  int
	agentTimeout time.Duration
	turnTimeout  time.Duration
}

// New creates an Orchestrator.
func New(cfg Config) (*Orchestrator, error) {
	if cfg.Classifier == nil || cfg.Registry == nil || cfg.Memory == nil || cfg.Generator == nil {
		return nil, errors.New("classifier, registry, memory, and generator are required")
	}
	if cfg.TopK <= 0 {
		cfg.TopK = 5
	}
	if cfg.ContextTokenBudget <= 0 {
		cfg.ContextTokenBudget = 2000
	}
	if cfg.AgentTimeout <= 0 {
		cfg.AgentTimeout = 60 * time.Second
	}
	if cfg.TurnTimeout <= 0 {
		cfg.TurnTimeout = 180 * time.Second
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Orchestrator{
		classifier:   cfg.Classifier,
		registry:     cfg.Registry,
		retriever:    cfg.Retriever,
		memory:       cfg.Memory,
		gen:          cfg.Generator,
		logger:       cfg.Logger,
		topK:         cfg.TopK,
		tokenBudget:  cfg.ContextTokenBudget,
		agentTimeout: cfg.AgentTimeout,
		turnTimeout:  cfg.TurnTimeout,
	}, nil
}

// HandleTurn runs one conversation turn. Partial failures (retrieval outage,
// an agent timing out, synthesis failure, even a persistence failure) are
// absorbed into a flagged response; only a missing session or the outer
// deadline produce an error.
func (o *Orchestrator) HandleTurn(ctx context.Context, sessionID uuid.UUID, userText string) (*ConsolidatedResponse, error) {
	ctx, cancel := context.WithTimeout(ctx, o.turnTimeout)
	defer cancel()

	state := StateReceived
	start := time.Now()

	session, err := o.memory.Context(ctx, sessionID)
	if err != nil {
		return nil, fmt.Errorf("loading session: %w", err)
	}

	// Pre-fetch retrieval for both classification and agent context.
	// An unreachable index degrades the turn instead of failing it.
	var retrieved []rag.Result
	degradedRetrieval := false
	if o.retriever != nil {
		retrieved, err = o.retriever.Search(ctx, userText, o.topK, map[string]string{"status": "active"})
		if err != nil {
			o.logger.Warn("retrieval unavailable, continuing without context",
				"session_id", sessionID, "error", err)
			degradedRetrieval = true
			retrieved = nil
		}
	}

	intent := o.classifier.Classify(ctx, userText, session, retrieved)
	state = StateClassified

	agents, degradedRouting := o.registry.Resolve(intent.Agents)
	state = StateRouted

	task := &agent.Task{ID: uuid.New(), Query: userText, Capabilities: intent.Agents}
	run := &agent.RunContext{
		RetrievedContext: rag.AssembleContext(retrieved, o.tokenBudget),
		Session:          session,
	}

	state = StateExecuting
	responses := o.execute(ctx, agents, task, run)

	state = StateAggregating
	resp := o.aggregate(ctx, responses)
	resp.Urgency = intent.Urgency
	resp.DegradedRouting = degradedRouting
	resp.DegradedRetrieval = degradedRetrieval
	for _, r := range retrieved {
		resp.Sources = append(resp.Sources, r.Document.ID)
	}

	if err := o.persist(ctx, sessionID, userText, intent, resp, len(retrieved)); err != nil {
		o.logger.Error("turn not persisted", "session_id", sessionID, "error", err)
		resp.NotPersisted = true
		state = StateFailed
	} else {
		state = StatePersisted
	}

	if state != StateFailed {
		state = StateResponded
	}
	o.logger.Info("turn complete",
		"session_id", sessionID, "state", state.String(),
		"agents", resp.AgentsUsed, "duration", time.Since(start))
	return resp, nil
}

// execute runs the selected agents: sequentially when a dependency chain
// links them, concurrently otherwise. Every agent yields a response; errors
// and timeouts become synthetic flagged responses so aggregation always has
// the full set.
func (o *Orchestrator) execute(ctx context.Context, agents []agent.Agent, task *agent.Task, run *agent.RunContext) []*agent.Response {
	if o.hasDependencyChain(agents) {
		return o.executeSequential(ctx, agents, task, run)
	}
	return o.executeConcurrent(ctx, agents, task, run)
}

func (o *Orchestrator) hasDependencyChain(agents []agent.Agent) bool {
	selected := make(map[string]bool, len(agents))
	for _, a := range agents {
		selected[a.Name()] = true
	}
	for _, a := range agents {
		for _, dep := range dependencies[a.Name()] {
			if selected[dep] {
				return true
			}
		}
	}
	return false
}

// executeSequential runs agents in priority order, feeding each agent the
// responses gathered so far.
func (o *Orchestrator) executeSequential(ctx context.Context, agents []agent.Agent, task *agent.Task, run *agent.RunContext) []*agent.Response {
	responses := make([]*agent.Response, 0, len(agents))
	for _, a := range agents {
		chained := *run
		chained.PriorResponses = responses
		responses = append(responses, o.executeOne(ctx, a, task, &chained))
	}
	return responses
}

// executeConcurrent fans the agents out and collects responses in the
// original slot order, so aggregation output is independent of completion
// order.
func (o *Orchestrator) executeConcurrent(ctx context.Context, agents []agent.Agent, task *agent.Task, run *agent.RunContext) []*agent.Response {
	responses := make([]*agent.Response, len(agents))
	var g errgroup.Group
	for i, a := range agents {
		g.Go(func() error {
			responses[i] = o.executeOne(ctx, a, task, run)
			return nil
		})
	}
	_ = g.Wait()
	return responses
}

// executeOne runs a single agent under its timeout. A timeout or error
// produces a synthetic response so the turn tolerates partial results.
func (o *Orchestrator) executeOne(ctx context.Context, a agent.Agent, task *agent.Task, run *agent.RunContext) *agent.Response {
	actx, cancel := context.WithTimeout(ctx, o.agentTimeout)
	defer cancel()

	type outcome struct {
		resp *agent.Response
		err  error
	}
	done := make(chan outcome, 1)
	go func() {
		resp, err := a.Execute(actx, task, run)
		done <- outcome{resp, err}
	}()

	select {
	case out := <-done:
		if out.err != nil {
			o.logger.Warn("agent failed", "agent", a.Name(), "error", out.err)
			return &agent.Response{AgentName: a.Name(), Errors: []string{out.err.Error()}}
		}
		return out.resp
	case <-actx.Done():
		o.logger.Warn("agent timed out", "agent", a.Name(), "timeout", o.agentTimeout)
		return &agent.Response{AgentName: a.Name(), Errors: []string{"timeout"}}
	}
}

// aggregate merges agent responses into the consolidated response. A single
// usable response passes through unchanged; multiple responses are
// reconciled by a synthesis model call, degrading to concatenation when that
// call fails.
func (o *Orchestrator) aggregate(ctx context.Context, responses []*agent.Response) *ConsolidatedResponse {
	resp := &ConsolidatedResponse{}
	var usable []*agent.Response
	for _, r := range responses {
		resp.AgentsUsed = append(resp.AgentsUsed, r.AgentName)
		if r.Output != "" {
			usable = append(usable, r)
		}
	}
	sort.Strings(resp.AgentsUsed)

	switch len(usable) {
	case 0:
		resp.Text = "No agent was able to complete this request."
	case 1:
		resp.Text = usable[0].Output
	default:
		payload, err := llm.GenerateJSON[synthesisPayload](ctx, o.gen, &llm.Request{
			System:   synthesisSystemPrompt,
			Messages: []*ai.Message{ai.NewUserMessage(ai.NewTextPart(synthesisPrompt(usable)))},
		})
		if err != nil {
			o.logger.Warn("synthesis failed, concatenating agent outputs", "error", err)
			resp.Text = concatenate(usable)
		} else {
			resp.Text = payload.Text
			resp.SuggestedActions = payload.SuggestedActions
		}
	}
	return resp
}

func synthesisPrompt(responses []*agent.Response) string {
	var b strings.Builder
	for _, r := range responses {
		fmt.Fprintf(&b, "[%s agent]\n%s\n\n", r.AgentName, r.Output)
		if len(r.Errors) > 0 {
			fmt.Fprintf(&b, "(%s agent reported errors: %s)\n\n", r.AgentName, strings.Join(r.Errors, "; "))
		}
	}
	return b.String()
}

func concatenate(responses []*agent.Response) string {
	parts := make([]string, len(responses))
	for i, r := range responses {
		parts[i] = fmt.Sprintf("%s: %s", r.AgentName, r.Output)
	}
	return strings.Join(parts, "\n\n")
}

// persist writes both sides of the exchange. The user turn carries the
// classified intent and entities; the assistant turn records the agent set
// and retrieval count for auditability.
func (o *Orchestrator) persist(ctx context.Context, sessionID uuid.UUID, userText string, intent *classify.Result, resp *ConsolidatedResponse, retrievedDocs int) error {
	if err := o.memory.Append(ctx, &memory.Turn{
		SessionID: sessionID,
		Role:      "user",
		Content:   userText,
		Intent:    strings.Join(intent.Agents, ","),
		Entities:  intent.Entities,
	}); err != nil {
		return err
	}
	return o.memory.Append(ctx, &memory.Turn{
		SessionID:     sessionID,
		Role:          "assistant",
		Content:       resp.Text,
		AgentsUsed:    resp.AgentsUsed,
		RetrievedDocs: retrievedDocs,
	})
}
