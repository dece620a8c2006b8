package gap

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"golang.org/x/time/rate"

	"github.com/wardenai/warden/internal/knowledge"
	"github.com/wardenai/warden/internal/llm"
	"github.com/wardenai/warden/internal/log"
	"github.com/wardenai/warden/internal/testutil"
)

type fakeInventory struct {
	docs map[string][]knowledge.Document // keyed by framework
}

func (f *fakeInventory) ListByFilter(_ context.Context, filter map[string]string, _ int) ([]knowledge.Document, error) {
	return f.docs[filter["framework"]], nil
}

// fakeRepo mimics the partial-unique-index upsert: one row per fingerprint
// while not closed.
type fakeRepo struct {
	gaps      map[string]*Gap
	proposals map[uuid.UUID]*Proposal
}

func newFakeRepo() *fakeRepo {
	return &fakeRepo{gaps: make(map[string]*Gap), proposals: make(map[uuid.UUID]*Proposal)}
}

func (f *fakeRepo) Upsert(_ context.Context, g *Gap) error {
	if existing, ok := f.gaps[g.Fingerprint]; ok && existing.Status != StatusClosed {
		g.ID = existing.ID
		g.Status = existing.Status
		g.CreatedAt = existing.CreatedAt
		f.gaps[g.Fingerprint] = g
		return nil
	}
	if g.ID == uuid.Nil {
		g.ID = uuid.New()
	}
	g.CreatedAt = time.Now()
	f.gaps[g.Fingerprint] = g
	return nil
}

func (f *fakeRepo) SaveProposal(_ context.Context, p *Proposal) error {
	f.proposals[p.GapID] = p
	return nil
}

const proposalJSON = `{"work_plan": [{"name": "draft", "description": "write it", "duration_days": 10}],
	"resource_estimate": "one analyst for two weeks", "success_criteria": ["document approved"]}`

func activeDoc(id, docType string, lastUpdated time.Time) knowledge.Document {
	return knowledge.Document{
		ID: id,
		Metadata: knowledge.Metadata{
			SourceType:  knowledge.SourceTypeDocument,
			DocType:     docType,
			Status:      knowledge.StatusActive,
			LastUpdated: lastUpdated,
		},
	}
}

func newTestEngine(t *testing.T, inv Inventory, repo Repository, gen llm.Generator, now time.Time) *Engine {
	t.Helper()
	e, err := NewEngine(EngineConfig{
		Inventory: inv,
		Store:     repo,
		Generator: gen,
		Limiter:   rate.NewLimiter(rate.Inf, 1),
		Now:       func() time.Time { return now },
		Logger:    log.NewNop(),
	})
	if err != nil {
		t.Fatal(err)
	}
	return e
}

func TestAnalyze_DetectsMissingArtifacts(t *testing.T) {
	now := time.Date(2026, 9, 1, 0, 0, 0, 0, time.UTC)
	// Only the security policy exists; everything else in the iso27001
	// baseline is missing.
	inv := &fakeInventory{docs: map[string][]knowledge.Document{
		"iso27001": {activeDoc("doc-1", "security-policy", now.AddDate(0, -1, 0))},
	}}
	repo := newFakeRepo()
	e := newTestEngine(t, inv, repo, nil, now)

	gaps, err := e.Analyze(context.Background(), Scope{Frameworks: []string{"iso27001"}})
	if err != nil {
		t.Fatalf("Analyze() error = %v", err)
	}

	want := len(Required("iso27001")) - 1
	if len(gaps) != want {
		t.Fatalf("found %d gaps, want %d", len(gaps), want)
	}
	for _, g := range gaps {
		if g.Target == "security-policy" {
			t.Errorf("present artifact reported as a gap: %+v", g)
		}
		if g.Status != StatusOpen {
			t.Errorf("new gap status = %v, want open", g.Status)
		}
		if g.DetectedAt != now {
			t.Errorf("gap not stamped with the run time: %v", g.DetectedAt)
		}
		if g.PriorityScore <= 0 {
			t.Errorf("gap has no score: %+v", g)
		}
	}
}

func TestAnalyze_DetectsStaleArtifacts(t *testing.T) {
	now := time.Date(2026, 9, 1, 0, 0, 0, 0, time.UTC)
	inv := &fakeInventory{docs: map[string][]knowledge.Document{"iso27001": {
		// Asset inventory reviews every 90 days; this one is 200 days old.
		activeDoc("doc-stale", "asset-inventory", now.AddDate(0, 0, -200)),
	}}}
	e := newTestEngine(t, inv, newFakeRepo(), nil, now)

	gaps, err := e.Analyze(context.Background(), Scope{Frameworks: []string{"iso27001"}})
	if err != nil {
		t.Fatal(err)
	}

	var stale *Gap
	for i := range gaps {
		if gaps[i].Target == "asset-inventory" {
			stale = &gaps[i]
		}
	}
	if stale == nil {
		t.Fatal("stale asset inventory not reported")
	}
	if stale.Evidence == "" || stale.Description == "" {
		t.Errorf("stale gap missing evidence or description: %+v", stale)
	}
}

func TestAnalyze_FreshArtifactNotStale(t *testing.T) {
	now := time.Date(2026, 9, 1, 0, 0, 0, 0, time.UTC)
	inv := &fakeInventory{docs: map[string][]knowledge.Document{"iso27001": {
		activeDoc("doc-fresh", "asset-inventory", now.AddDate(0, 0, -30)),
	}}}
	e := newTestEngine(t, inv, newFakeRepo(), nil, now)

	gaps, err := e.Analyze(context.Background(), Scope{Frameworks: []string{"iso27001"}})
	if err != nil {
		t.Fatal(err)
	}
	for _, g := range gaps {
		if g.Target == "asset-inventory" {
			t.Errorf("fresh artifact reported as a gap: %+v", g)
		}
	}
}

func TestAnalyze_FreshestDocumentWinsPerType(t *testing.T) {
	now := time.Date(2026, 9, 1, 0, 0, 0, 0, time.UTC)
	// Two active asset inventories; the stale one must not shadow its
	// fresher sibling regardless of listing order.
	inv := &fakeInventory{docs: map[string][]knowledge.Document{"iso27001": {
		activeDoc("doc-fresh", "asset-inventory", now.AddDate(0, 0, -30)),
		activeDoc("doc-stale", "asset-inventory", now.AddDate(0, 0, -200)),
	}}}
	e := newTestEngine(t, inv, newFakeRepo(), nil, now)

	gaps, err := e.Analyze(context.Background(), Scope{Frameworks: []string{"iso27001"}})
	if err != nil {
		t.Fatal(err)
	}
	for _, g := range gaps {
		if g.Target == "asset-inventory" {
			t.Errorf("type with a fresh document reported as a gap: %+v", g)
		}
	}
}

func TestAnalyze_IdempotentAcrossRuns(t *testing.T) {
	now := time.Date(2026, 9, 1, 0, 0, 0, 0, time.UTC)
	inv := &fakeInventory{docs: map[string][]knowledge.Document{}}
	repo := newFakeRepo()
	e := newTestEngine(t, inv, repo, nil, now)

	first, err := e.Analyze(context.Background(), Scope{Frameworks: []string{"soc2"}})
	if err != nil {
		t.Fatal(err)
	}
	firstIDs := make(map[string]uuid.UUID, len(first))
	for _, g := range first {
		firstIDs[g.Fingerprint] = g.ID
	}

	second, err := e.Analyze(context.Background(), Scope{Frameworks: []string{"soc2"}})
	if err != nil {
		t.Fatal(err)
	}

	if len(repo.gaps) != len(first) {
		t.Errorf("store holds %d gaps after two runs, want %d (no duplicates)", len(repo.gaps), len(first))
	}
	for _, g := range second {
		if firstIDs[g.Fingerprint] != g.ID {
			t.Errorf("fingerprint %s changed identity across runs", g.Fingerprint)
		}
	}
}

func TestAnalyze_GeneratesProposalsForHighPriorities(t *testing.T) {
	now := time.Date(2026, 9, 1, 0, 0, 0, 0, time.UTC)
	inv := &fakeInventory{docs: map[string][]knowledge.Document{}}
	repo := newFakeRepo()
	gen := testutil.NewMockGenerator(testutil.Text(proposalJSON))
	e := newTestEngine(t, inv, repo, gen, now)

	gaps, err := e.Analyze(context.Background(), Scope{Frameworks: []string{"iso27001"}})
	if err != nil {
		t.Fatal(err)
	}

	wantProposals := 0
	for _, g := range gaps {
		if g.Priority == PriorityP1 || g.Priority == PriorityP2 {
			wantProposals++
			p, ok := repo.proposals[g.ID]
			if !ok {
				t.Errorf("no proposal for %v gap %s", g.Priority, g.Target)
				continue
			}
			if len(p.WorkPlan) == 0 || p.ResourceEstimate == "" || len(p.SuccessCriteria) == 0 {
				t.Errorf("incomplete proposal: %+v", p)
			}
		} else if _, ok := repo.proposals[g.ID]; ok {
			t.Errorf("proposal generated for %v gap %s", g.Priority, g.Target)
		}
	}
	if wantProposals == 0 {
		t.Fatal("test baseline produced no P1/P2 gaps; catalog defaults changed?")
	}
	if gen.Calls() != wantProposals {
		t.Errorf("model calls = %d, want one per P1/P2 gap (%d)", gen.Calls(), wantProposals)
	}
}

func TestAnalyze_UnknownFramework(t *testing.T) {
	e := newTestEngine(t, &fakeInventory{}, newFakeRepo(), nil, time.Now())

	if _, err := e.Analyze(context.Background(), Scope{Frameworks: []string{"pci-dss"}}); err == nil {
		t.Error("unknown framework should be rejected")
	}
}
