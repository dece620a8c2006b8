package rag

import (
	"math"
	"testing"

	"github.com/wardenai/warden/internal/knowledge"
)

func hit(id string, score float64) knowledge.Result {
	return knowledge.Result{
		Document: knowledge.Document{ID: id, Content: "content of " + id},
		Score:    score,
	}
}

func TestFuse_DocumentInBothListsRanksFirst(t *testing.T) {
	// "both" sits at rank 2 in each list; the rank-1 documents appear in
	// only one list each. RRF must still place "both" first:
	// 2/(60+2) > 1/(60+1).
	vector := []knowledge.Result{hit("vec-only", 0.95), hit("both", 0.90)}
	keyword := []knowledge.Result{hit("kw-only", 12.0), hit("both", 8.0)}

	fused := fuse(vector, keyword)
	if len(fused) != 3 {
		t.Fatalf("fused %d results, want 3", len(fused))
	}

	scores := make(map[string]float64, len(fused))
	for _, r := range fused {
		scores[r.Document.ID] = r.FinalScore
	}
	if scores["both"] <= scores["vec-only"] || scores["both"] <= scores["kw-only"] {
		t.Errorf("document in both lists should outscore single-list documents: %v", scores)
	}

	wantBoth := 2.0 / float64(rrfK+2)
	if math.Abs(scores["both"]-wantBoth) > 1e-12 {
		t.Errorf("score for shared document = %v, want %v", scores["both"], wantBoth)
	}
}

func TestFuse_RanksNotRawScoresDecide(t *testing.T) {
	// The keyword leg's raw scores are on a wildly different scale; fusion
	// must depend only on positions.
	vector := []knowledge.Result{hit("a", 0.9), hit("b", 0.8)}
	keyword := []knowledge.Result{hit("b", 9000.0)}

	fused := fuse(vector, keyword)
	scores := make(map[string]float64, len(fused))
	for _, r := range fused {
		scores[r.Document.ID] = r.FinalScore
	}

	wantA := 1.0 / float64(rrfK+1)
	wantB := 1.0/float64(rrfK+2) + 1.0/float64(rrfK+1)
	if math.Abs(scores["a"]-wantA) > 1e-12 {
		t.Errorf("score(a) = %v, want %v", scores["a"], wantA)
	}
	if math.Abs(scores["b"]-wantB) > 1e-12 {
		t.Errorf("score(b) = %v, want %v", scores["b"], wantB)
	}
}

func TestFuse_EmptyLegs(t *testing.T) {
	if got := fuse(nil, nil); len(got) != 0 {
		t.Errorf("fusing empty lists returned %d results", len(got))
	}

	fused := fuse([]knowledge.Result{hit("solo", 0.5)}, nil)
	if len(fused) != 1 || fused[0].Document.ID != "solo" {
		t.Errorf("single-leg fusion = %+v", fused)
	}
}
