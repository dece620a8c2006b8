package gap

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/firebase/genkit/go/ai"
	"golang.org/x/time/rate"

	"github.com/wardenai/warden/internal/knowledge"
	"github.com/wardenai/warden/internal/llm"
)

const proposalSystemPrompt = `You plan remediation work for security gaps.
Given a gap, produce a phased work plan, a resource estimate, and measurable
success criteria. Respond with JSON only:
{"work_plan": [{"name": "...", "description": "...", "duration_days": N}],
 "resource_estimate": "...", "success_criteria": ["..."]}`

type proposalPayload struct {
	WorkPlan         []Phase  `json:"work_plan"`
	ResourceEstimate string   `json:"resource_estimate"`
	SuccessCriteria  []string `json:"success_criteria"`
}

// Inventory enumerates existing artifacts. knowledge.Store satisfies this.
type Inventory interface {
	ListByFilter(ctx context.Context, filter map[string]string, limit int) ([]knowledge.Document, error)
}

// Repository persists findings. Store is the production implementation.
type Repository interface {
	Upsert(ctx context.Context, g *Gap) error
	SaveProposal(ctx context.Context, p *Proposal) error
}

// Scope selects which frameworks an analysis run covers.
type Scope struct {
	// Frameworks to audit; empty means every framework in the catalog.
	Frameworks []string
}

// EngineConfig assembles an Engine.
type EngineConfig struct {
	Inventory Inventory
	Store     Repository
	Generator llm.Generator // nil disables proposal generation
	Logger    *slog.Logger

	Weights Weights
	// Limiter paces proposal-generation model calls.
	Limiter *rate.Limiter
	// Now overrides the clock in tests.
	Now func() time.Time
}

// Engine runs gap analysis: baseline enumeration, inventory diff, freshness
// checks, scoring, and proposal generation.
type Engine struct {
	inventory Inventory
	store     Repository
	gen       llm.Generator
	weights   Weights
	limiter   *rate.Limiter
	now       func() time.Time
	logger    *slog.Logger
}

// NewEngine creates an Engine.
func NewEngine(cfg EngineConfig) (*Engine, error) {
	if cfg.Inventory == nil {
		return nil, errors.New("inventory is required")
	}
	if cfg.Store == nil {
		return nil, errors.New("gap store is required")
	}
	if cfg.Weights == (Weights{}) {
		cfg.Weights = DefaultWeights()
	}
	if cfg.Limiter == nil {
		cfg.Limiter = rate.NewLimiter(rate.Limit(1), 1)
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Engine{
		inventory: cfg.Inventory,
		store:     cfg.Store,
		gen:       cfg.Generator,
		weights:   cfg.Weights,
		limiter:   cfg.Limiter,
		now:       cfg.Now,
		logger:    cfg.Logger,
	}, nil
}

// Analyze audits the scoped frameworks and returns the findings, persisted
// idempotently: the same snapshot always upserts the same fingerprints, so
// repeated runs never duplicate open gaps.
func (e *Engine) Analyze(ctx context.Context, scope Scope) ([]Gap, error) {
	frameworks := scope.Frameworks
	if len(frameworks) == 0 {
		frameworks = Frameworks()
	}
	runTime := e.now().UTC()

	var gaps []Gap
	for _, fw := range frameworks {
		required := Required(fw)
		if required == nil {
			return nil, fmt.Errorf("unknown framework %q", fw)
		}

		existing, err := e.inventory.ListByFilter(ctx, map[string]string{
			"framework":   fw,
			"source_type": string(knowledge.SourceTypeDocument),
			"status":      string(knowledge.StatusActive),
		}, 1000)
		if err != nil {
			return nil, fmt.Errorf("listing artifacts for %s: %w", fw, err)
		}
		// Several active documents may share a doc_type; staleness is
		// judged against the most recently reviewed one.
		byType := make(map[string]knowledge.Document, len(existing))
		for _, doc := range existing {
			prev, ok := byType[doc.Metadata.DocType]
			if !ok || doc.Metadata.LastUpdated.After(prev.Metadata.LastUpdated) {
				byType[doc.Metadata.DocType] = doc
			}
		}

		for _, artifact := range required {
			doc, found := byType[artifact.DocType]
			switch {
			case !found:
				gaps = append(gaps, e.finding(fw, artifact, runTime,
					fmt.Sprintf("Missing %s required by %s %s.", artifact.Name, fw, artifact.ControlID),
					"no active document of type "+artifact.DocType))
			case e.stale(doc, artifact, runTime):
				age := int(runTime.Sub(doc.Metadata.LastUpdated).Hours() / 24)
				gaps = append(gaps, e.finding(fw, artifact, runTime,
					fmt.Sprintf("%s is outdated; last reviewed %d days ago against a %d-day cycle.",
						artifact.Name, age, artifact.ReviewFrequencyDays),
					"document "+doc.ID+" exceeded its review frequency"))
			}
		}
	}

	for i := range gaps {
		if err := e.store.Upsert(ctx, &gaps[i]); err != nil {
			return nil, fmt.Errorf("persisting gap %s: %w", gaps[i].Fingerprint, err)
		}
	}

	e.generateProposals(ctx, gaps)

	e.logger.Info("gap analysis complete",
		"frameworks", frameworks, "findings", len(gaps))
	return gaps, nil
}

func (e *Engine) stale(doc knowledge.Document, artifact RequiredArtifact, now time.Time) bool {
	if doc.Metadata.LastUpdated.IsZero() {
		return false
	}
	ageDays := now.Sub(doc.Metadata.LastUpdated).Hours() / 24
	return ageDays > float64(artifact.ReviewFrequencyDays)
}

func (e *Engine) finding(framework string, artifact RequiredArtifact, runTime time.Time, description, evidence string) Gap {
	factors := Factors{
		RiskImpact:       artifact.RiskImpact,
		ComplianceImpact: artifact.ComplianceImpact,
		BusinessImpact:   artifact.BusinessImpact,
		EffortFactor:     EffortFactorForClass(artifact.EffortClass),
		FrequencyFactor:  artifact.FrequencyFactor,
	}
	score := e.weights.Score(factors)
	priority := PriorityFor(score)

	return Gap{
		Fingerprint:    Fingerprint(artifact.Category, framework, artifact.DocType),
		Category:       artifact.Category,
		Description:    description,
		Evidence:       evidence,
		FrameworkRef:   framework + "/" + artifact.ControlID,
		Target:         artifact.DocType,
		Factors:        factors,
		PriorityScore:  score,
		Priority:       priority,
		EffortClass:    artifact.EffortClass,
		OwnerSuggested: ownerFor(artifact.Category),
		Deadline:       deadlineFor(priority, runTime),
		Status:         StatusOpen,
		DetectedAt:     runTime,
	}
}

// generateProposals produces remediation plans for P1 and P2 findings, paced
// by the rate limiter. Proposal failures are logged, never fatal: the gaps
// themselves are already persisted.
func (e *Engine) generateProposals(ctx context.Context, gaps []Gap) {
	if e.gen == nil {
		return
	}
	for i := range gaps {
		g := &gaps[i]
		if g.Priority != PriorityP1 && g.Priority != PriorityP2 {
			continue
		}
		if err := e.limiter.Wait(ctx); err != nil {
			e.logger.Warn("proposal generation interrupted", "error", err)
			return
		}
		if err := e.propose(ctx, g); err != nil {
			e.logger.Warn("proposal generation failed",
				"fingerprint", g.Fingerprint, "error", err)
		}
	}
}

func (e *Engine) propose(ctx context.Context, g *Gap) error {
	prompt := fmt.Sprintf("Gap: %s\nCategory: %s\nFramework: %s\nEvidence: %s\nEffort class: %s",
		g.Description, g.Category, g.FrameworkRef, g.Evidence, g.EffortClass)
	payload, err := llm.GenerateJSON[proposalPayload](ctx, e.gen, &llm.Request{
		System:   proposalSystemPrompt,
		Messages: []*ai.Message{ai.NewUserMessage(ai.NewTextPart(prompt))},
	})
	if err != nil {
		return err
	}

	return e.store.SaveProposal(ctx, &Proposal{
		GapID:            g.ID,
		WorkPlan:         payload.WorkPlan,
		ResourceEstimate: payload.ResourceEstimate,
		SuccessCriteria:  payload.SuccessCriteria,
		CreatedAt:        e.now().UTC(),
	})
}

func ownerFor(category Category) string {
	switch category {
	case CategoryDocumentation:
		return "security-governance"
	case CategoryControl:
		return "security-engineering"
	case CategoryProcess:
		return "security-operations"
	case CategoryTechnology:
		return "platform-engineering"
	default:
		return "security-operations"
	}
}

func deadlineFor(priority Priority, runTime time.Time) time.Time {
	switch priority {
	case PriorityP1:
		return runTime.AddDate(0, 0, 30)
	case PriorityP2:
		return runTime.AddDate(0, 0, 90)
	case PriorityP3:
		return runTime.AddDate(0, 0, 180)
	default:
		return runTime.AddDate(0, 0, 365)
	}
}
