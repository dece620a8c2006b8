// Package classify maps a user query plus conversation context onto target
// agents and an urgency level.
//
// Classifier output is untrusted model JSON: it is schema-validated,
// normalized, and deduplicated before anything routes on it, and every
// failure path degrades to the general agent instead of erroring.
package classify

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"

	"github.com/firebase/genkit/go/ai"

	"github.com/wardenai/warden/internal/agent"
	"github.com/wardenai/warden/internal/llm"
	"github.com/wardenai/warden/internal/memory"
	"github.com/wardenai/warden/internal/rag"
)

// Urgency levels.
const (
	UrgencyLow      = "low"
	UrgencyMedium   = "medium"
	UrgencyHigh     = "high"
	UrgencyCritical = "critical"
)

const systemPrompt = `You classify security operations requests.
Available agents:
- incident: active security incidents, breaches, attacks in progress
- risk: risk assessment and scoring of assets, changes, findings
- compliance: framework controls, audits, certification questions
- reporting: summaries, dashboards, posture reports for leadership
- general: anything that fits no specialist

Respond with JSON only:
{"agents": ["<agent id>", ...], "urgency": "low|medium|high|critical",
 "entities": ["<named asset, system, or threat>", ...], "confidence": <0.0-1.0>}`

const correctiveInstruction = "Your previous reply was not valid JSON. " +
	"Respond again with only the JSON object, no prose and no code fences."

// Result is the validated classification.
type Result struct {
	Agents     []string `json:"agents"`
	Urgency    string   `json:"urgency"`
	Entities   []string `json:"entities"`
	Confidence float64  `json:"confidence"`

	// Fallback is set when classification failed and the default route
	// was substituted.
	Fallback bool `json:"-"`
}

// Classifier wraps the single-call LLM classification with its retry and
// fallback policy.
type Classifier struct {
	gen    llm.Generator
	logger *slog.Logger
}

// New creates a Classifier.
func New(gen llm.Generator, logger *slog.Logger) *Classifier {
	if logger == nil {
		logger = slog.Default()
	}
	return &Classifier{gen: gen, logger: logger}
}

// Classify maps the query onto agents and urgency, conditioning on the
// session window and the documents retrieved for the query. On a malformed
// model reply it retries once with a corrective instruction; if that also
// fails it falls back to the general agent at medium urgency rather than
// erroring.
func (c *Classifier) Classify(ctx context.Context, query string, session *memory.SessionContext, retrieved []rag.Result) *Result {
	messages := []*ai.Message{ai.NewUserMessage(ai.NewTextPart(c.buildPrompt(query, session, retrieved)))}

	result, err := llm.GenerateJSON[Result](ctx, c.gen, &llm.Request{
		System:   systemPrompt,
		Messages: messages,
	})
	if err != nil {
		c.logger.Warn("classification parse failed, retrying with corrective instruction", "error", err)
		messages = append(messages, ai.NewUserMessage(ai.NewTextPart(correctiveInstruction)))
		result, err = llm.GenerateJSON[Result](ctx, c.gen, &llm.Request{
			System:   systemPrompt,
			Messages: messages,
		})
	}
	if err != nil {
		c.logger.Warn("classification failed, routing to general agent", "error", err)
		return fallbackResult()
	}

	normalize(&result)
	if len(result.Agents) == 0 {
		return fallbackResult()
	}
	return &result
}

// docSnippet bounds how much of each retrieved document reaches the
// classification prompt.
const docSnippet = 300

func (c *Classifier) buildPrompt(query string, session *memory.SessionContext, retrieved []rag.Result) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Request: %s\n", query)
	if session != nil {
		if len(session.Entities) > 0 {
			fmt.Fprintf(&b, "\nKnown entities from this conversation: %s\n", strings.Join(session.Entities, ", "))
		}
		if len(session.Turns) > 0 {
			fmt.Fprintf(&b, "\nRecent conversation:\n%s", session.Transcript())
		}
	}
	if len(retrieved) > 0 {
		b.WriteString("\nRetrieved documentation:\n")
		for _, r := range retrieved {
			fmt.Fprintf(&b, "- [%s] %s\n", r.Document.ID, rag.Snippet(r.Document.Content, docSnippet))
		}
	}
	return b.String()
}

func fallbackResult() *Result {
	return &Result{
		Agents:     []string{agent.NameGeneral},
		Urgency:    UrgencyMedium,
		Confidence: 0,
		Fallback:   true,
	}
}

// normalize cleans untrusted model output: lowercases and deduplicates agent
// ids, sorts them by the fixed priority so identical inputs classify
// identically, clamps confidence, and maps unknown urgency to medium.
func normalize(r *Result) {
	seen := make(map[string]bool, len(r.Agents))
	agents := r.Agents[:0]
	for _, id := range r.Agents {
		id = strings.ToLower(strings.TrimSpace(id))
		if id == "" || seen[id] {
			continue
		}
		seen[id] = true
		agents = append(agents, id)
	}
	sort.SliceStable(agents, func(i, j int) bool {
		return agent.PriorityRank(agents[i]) < agent.PriorityRank(agents[j])
	})
	r.Agents = agents

	switch strings.ToLower(r.Urgency) {
	case UrgencyLow, UrgencyMedium, UrgencyHigh, UrgencyCritical:
		r.Urgency = strings.ToLower(r.Urgency)
	default:
		r.Urgency = UrgencyMedium
	}

	if r.Confidence < 0 {
		r.Confidence = 0
	}
	if r.Confidence > 1 {
		r.Confidence = 1
	}
}
