package classify

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/firebase/genkit/go/ai"

	"github.com/wardenai/warden/internal/agent"
	"github.com/wardenai/warden/internal/llm"
	"github.com/wardenai/warden/internal/knowledge"
	"github.com/wardenai/warden/internal/log"
	"github.com/wardenai/warden/internal/memory"
	"github.com/wardenai/warden/internal/rag"
)

type scriptedGenerator struct {
	responses []string
	errs      []error
	requests  []*llm.Request
}

func (s *scriptedGenerator) Generate(_ context.Context, req *llm.Request) (*ai.ModelResponse, error) {
	i := len(s.requests)
	s.requests = append(s.requests, req)
	if i < len(s.errs) && s.errs[i] != nil {
		return nil, s.errs[i]
	}
	text := "{}"
	if i < len(s.responses) {
		text = s.responses[i]
	}
	return &ai.ModelResponse{Message: ai.NewModelMessage(ai.NewTextPart(text))}, nil
}

func TestClassify_SingleCallSuccess(t *testing.T) {
	gen := &scriptedGenerator{responses: []string{
		`{"agents": ["risk"], "urgency": "high", "entities": ["web-01"], "confidence": 0.92}`,
	}}
	c := New(gen, log.NewNop())

	result := c.Classify(context.Background(), "evaluate risk of unpatched critical server", nil, nil)
	if len(result.Agents) != 1 || result.Agents[0] != agent.NameRisk {
		t.Errorf("agents = %v", result.Agents)
	}
	if result.Urgency != UrgencyHigh || result.Confidence != 0.92 || result.Fallback {
		t.Errorf("result = %+v", result)
	}
	if len(gen.requests) != 1 {
		t.Errorf("model calls = %d, want 1", len(gen.requests))
	}
}

func TestClassify_RetriesOnceWithCorrectiveInstruction(t *testing.T) {
	gen := &scriptedGenerator{responses: []string{
		"sorry, I think the right agents are risk and compliance",
		`{"agents": ["compliance", "risk"], "urgency": "medium", "confidence": 0.8}`,
	}}
	c := New(gen, log.NewNop())

	result := c.Classify(context.Background(), "are we SOC 2 compliant?", nil, nil)
	if len(gen.requests) != 2 {
		t.Fatalf("model calls = %d, want 2 (original + corrective retry)", len(gen.requests))
	}

	retry := gen.requests[1]
	last := retry.Messages[len(retry.Messages)-1].Content[0].Text
	if !strings.Contains(last, "not valid JSON") {
		t.Errorf("retry lacks corrective instruction: %q", last)
	}
	// Priority ordering: risk before compliance regardless of model order.
	if len(result.Agents) != 2 || result.Agents[0] != agent.NameRisk || result.Agents[1] != agent.NameCompliance {
		t.Errorf("agents = %v, want [risk compliance]", result.Agents)
	}
	if result.Fallback {
		t.Error("successful retry must not be marked fallback")
	}
}

func TestClassify_FallsBackAfterTwoFailures(t *testing.T) {
	gen := &scriptedGenerator{responses: []string{"not json", "still not json"}}
	c := New(gen, log.NewNop())

	result := c.Classify(context.Background(), "anything", nil, nil)
	if len(gen.requests) != 2 {
		t.Errorf("model calls = %d, want exactly 2", len(gen.requests))
	}
	if !result.Fallback {
		t.Error("fallback flag not set")
	}
	if len(result.Agents) != 1 || result.Agents[0] != agent.NameGeneral {
		t.Errorf("agents = %v, want [general]", result.Agents)
	}
	if result.Urgency != UrgencyMedium {
		t.Errorf("urgency = %q, want medium", result.Urgency)
	}
}

func TestClassify_ProviderErrorFallsBack(t *testing.T) {
	gen := &scriptedGenerator{errs: []error{
		errors.New("provider down"), errors.New("provider down"),
	}}
	c := New(gen, log.NewNop())

	result := c.Classify(context.Background(), "anything", nil, nil)
	if !result.Fallback || result.Agents[0] != agent.NameGeneral {
		t.Errorf("result = %+v, want general fallback", result)
	}
}

func TestClassify_NormalizesUntrustedOutput(t *testing.T) {
	gen := &scriptedGenerator{responses: []string{
		`{"agents": [" Risk ", "risk", "INCIDENT"], "urgency": "PANIC", "confidence": 7}`,
	}}
	c := New(gen, log.NewNop())

	result := c.Classify(context.Background(), "q", nil, nil)
	if len(result.Agents) != 2 || result.Agents[0] != agent.NameIncident || result.Agents[1] != agent.NameRisk {
		t.Errorf("agents = %v, want deduplicated [incident risk]", result.Agents)
	}
	if result.Urgency != UrgencyMedium {
		t.Errorf("unknown urgency mapped to %q, want medium", result.Urgency)
	}
	if result.Confidence != 1 {
		t.Errorf("confidence = %v, want clamped to 1", result.Confidence)
	}
}

func TestClassify_EmptyAgentListFallsBack(t *testing.T) {
	gen := &scriptedGenerator{responses: []string{
		`{"agents": [], "urgency": "low", "confidence": 0.5}`,
	}}
	c := New(gen, log.NewNop())

	result := c.Classify(context.Background(), "q", nil, nil)
	if !result.Fallback || result.Agents[0] != agent.NameGeneral {
		t.Errorf("result = %+v, want general fallback", result)
	}
}

func TestClassify_PromptCarriesSessionContext(t *testing.T) {
	gen := &scriptedGenerator{responses: []string{
		`{"agents": ["general"], "urgency": "low", "confidence": 0.5}`,
	}}
	c := New(gen, log.NewNop())

	session := &memory.SessionContext{
		Entities: []string{"web-01", "phishing"},
		Turns:    []memory.Turn{{Role: "user", Content: "earlier message"}},
	}
	c.Classify(context.Background(), "follow-up question", session, nil)

	prompt := gen.requests[0].Messages[0].Content[0].Text
	for _, want := range []string{"follow-up question", "web-01", "earlier message"} {
		if !strings.Contains(prompt, want) {
			t.Errorf("prompt missing %q", want)
		}
	}
}

func TestClassify_PromptCarriesRetrievedDocuments(t *testing.T) {
	gen := &scriptedGenerator{responses: []string{
		`{"agents": ["compliance"], "urgency": "low", "confidence": 0.7}`,
	}}
	c := New(gen, log.NewNop())

	retrieved := []rag.Result{
		{Document: knowledge.Document{ID: "doc-mfa", Content: "MFA policy requires hardware keys."}},
		{Document: knowledge.Document{ID: "doc-ir", Content: "Incident response plan v3."}},
	}
	c.Classify(context.Background(), "do we enforce MFA?", nil, retrieved)

	prompt := gen.requests[0].Messages[0].Content[0].Text
	for _, want := range []string{"doc-mfa", "MFA policy requires hardware keys.", "doc-ir"} {
		if !strings.Contains(prompt, want) {
			t.Errorf("prompt missing %q", want)
		}
	}
}

func TestClassify_LongDocumentSnippetBounded(t *testing.T) {
	gen := &scriptedGenerator{responses: []string{
		`{"agents": ["general"], "urgency": "low", "confidence": 0.5}`,
	}}
	c := New(gen, log.NewNop())

	long := strings.Repeat("x", 5000)
	c.Classify(context.Background(), "q", nil, []rag.Result{
		{Document: knowledge.Document{ID: "doc-long", Content: long}},
	})

	prompt := gen.requests[0].Messages[0].Content[0].Text
	if strings.Contains(prompt, long) {
		t.Error("full document body leaked into the classification prompt")
	}
	if !strings.Contains(prompt, strings.Repeat("x", docSnippet)) {
		t.Error("document snippet missing from the classification prompt")
	}
}
