package agent

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/wardenai/warden/internal/gap"
	"github.com/wardenai/warden/internal/llm"
	"github.com/wardenai/warden/internal/rag"
)

// GapReader exposes open findings to the reporting agent.
// gap.Store satisfies this.
type GapReader interface {
	ListOpen(ctx context.Context, limit int) ([]gap.Gap, error)
}

// Deps is everything a specialist needs to be constructed.
type Deps struct {
	Generator    llm.Generator
	Retriever    Retriever
	Binder       Binder
	Gaps         GapReader // used by the reporting agent
	Logger       *slog.Logger
	MaxToolCalls int
}

const (
	generalPrompt = `You are a security operations assistant for a CISO team.
Answer questions about security posture, policies, and operations.
Use the knowledge base tool to ground answers in the organization's own documentation.
When you are not confident, say so rather than guessing.`

	riskPrompt = `You are a security risk analyst.
Assess the risk of the described situation: likelihood, impact, and severity.
Always produce a numeric risk score from 0.0 to 10.0 and a severity level
(low, medium, high, critical), then justify both.
Search the knowledge base for relevant risk assessments and asset documentation before scoring.`

	incidentPrompt = `You are an incident response coordinator.
Given a reported security incident, determine severity, immediate containment
steps, and the escalation path. Prefer concrete, ordered actions over general advice.
Search the knowledge base for applicable playbooks and past incidents.`

	compliancePrompt = `You are a compliance analyst covering ISO 27001, NIST CSF, and SOC 2.
Map the question to the relevant framework controls, state the compliance impact,
and cite control identifiers. If a risk assessment is provided, fold its score
into the compliance impact.
Search the knowledge base with a framework filter to find the governing documents.`

	reportingPrompt = `You are a security reporting analyst.
Produce concise, executive-ready summaries of security posture, open findings,
and remediation progress. Use the open-gaps tool for the current finding list
and the knowledge base for supporting documentation.`
)

// NewGeneral builds the default agent every unresolvable route falls back to.
func NewGeneral(deps Deps) (*Base, error) {
	return newSpecialist(deps, NameGeneral,
		"General security operations assistant for questions that fit no specialist.",
		generalPrompt)
}

// NewRisk builds the risk assessment agent.
func NewRisk(deps Deps) (*Base, error) {
	return newSpecialist(deps, NameRisk,
		"Scores and explains security risk for assets, changes, and findings.",
		riskPrompt)
}

// NewIncident builds the incident response agent.
func NewIncident(deps Deps) (*Base, error) {
	return newSpecialist(deps, NameIncident,
		"Coordinates triage, containment, and escalation of security incidents.",
		incidentPrompt)
}

// NewCompliance builds the compliance mapping agent.
func NewCompliance(deps Deps) (*Base, error) {
	return newSpecialist(deps, NameCompliance,
		"Maps questions to framework controls and states compliance impact.",
		compliancePrompt)
}

// NewReporting builds the reporting agent.
func NewReporting(deps Deps) (*Base, error) {
	var tools []Tool
	if deps.Retriever != nil {
		tools = append(tools, searchTool(deps.Retriever))
	}
	if deps.Gaps != nil {
		tools = append(tools, openGapsTool(deps.Gaps))
	}
	return NewBase(Config{
		Name:         NameReporting,
		Description:  "Summarizes security posture and open findings for leadership.",
		SystemPrompt: reportingPrompt,
		Tools:        tools,
		Generator:    deps.Generator,
		Binder:       deps.Binder,
		Logger:       deps.Logger,
		MaxToolCalls: deps.MaxToolCalls,
	})
}

func newSpecialist(deps Deps, name, description, prompt string) (*Base, error) {
	var tools []Tool
	if deps.Retriever != nil {
		tools = append(tools, searchTool(deps.Retriever))
	}
	return NewBase(Config{
		Name:         name,
		Description:  description,
		SystemPrompt: prompt,
		Tools:        tools,
		Generator:    deps.Generator,
		Binder:       deps.Binder,
		Logger:       deps.Logger,
		MaxToolCalls: deps.MaxToolCalls,
	})
}

// searchTool exposes retrieval to the model.
func searchTool(retriever Retriever) Tool {
	return Tool{
		Name: "search_knowledge_base",
		Description: "Search the organization's security documentation. " +
			"Optionally filter by compliance framework (iso27001, nist-csf, soc2).",
		InputSchema: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"query":     map[string]any{"type": "string", "description": "What to search for"},
				"framework": map[string]any{"type": "string", "description": "Optional framework filter"},
			},
			"required": []string{"query"},
		},
		Handler: func(ctx context.Context, input map[string]any) (any, error) {
			query, _ := input["query"].(string)
			if query == "" {
				return nil, fmt.Errorf("query is required")
			}
			var filter map[string]string
			if fw, _ := input["framework"].(string); fw != "" {
				filter = map[string]string{"framework": fw}
			}
			results, err := retriever.Search(ctx, query, 5, filter)
			if err != nil {
				return nil, err
			}
			out := make([]map[string]any, len(results))
			for i, r := range results {
				out[i] = map[string]any{
					"id":      r.Document.ID,
					"score":   r.FinalScore,
					"content": rag.Snippet(r.Document.Content, 800),
				}
			}
			return out, nil
		},
	}
}

func openGapsTool(gaps GapReader) Tool {
	return Tool{
		Name:        "list_open_gaps",
		Description: "List currently open security gaps ordered by priority score.",
		InputSchema: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"limit": map[string]any{"type": "integer", "description": "Maximum gaps to return"},
			},
		},
		Handler: func(ctx context.Context, input map[string]any) (any, error) {
			limit := 20
			if v, ok := input["limit"].(float64); ok && v > 0 {
				limit = int(v)
			}
			found, err := gaps.ListOpen(ctx, limit)
			if err != nil {
				return nil, err
			}
			out := make([]map[string]any, len(found))
			for i, g := range found {
				out[i] = map[string]any{
					"id":          g.ID,
					"category":    string(g.Category),
					"description": g.Description,
					"framework":   g.FrameworkRef,
					"priority":    string(g.Priority),
					"score":       g.PriorityScore,
				}
			}
			return out, nil
		},
	}
}
