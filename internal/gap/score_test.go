package gap

import (
	"math"
	"testing"
)

func TestScore_AllTensIsP1AllTwosIsP4(t *testing.T) {
	w := DefaultWeights()

	high := w.Score(Factors{RiskImpact: 10, ComplianceImpact: 10, BusinessImpact: 10, EffortFactor: 10, FrequencyFactor: 10})
	if math.Abs(high-10) > 1e-9 {
		t.Errorf("score(all 10s) = %v, want 10", high)
	}
	if PriorityFor(high) != PriorityP1 {
		t.Errorf("priority(all 10s) = %v, want P1", PriorityFor(high))
	}

	low := w.Score(Factors{RiskImpact: 2, ComplianceImpact: 2, BusinessImpact: 2, EffortFactor: 2, FrequencyFactor: 2})
	if math.Abs(low-2) > 1e-9 {
		t.Errorf("score(all 2s) = %v, want 2", low)
	}
	if PriorityFor(low) != PriorityP4 {
		t.Errorf("priority(all 2s) = %v, want P4", PriorityFor(low))
	}
}

func TestScore_Monotonicity(t *testing.T) {
	w := DefaultWeights()
	base := Factors{RiskImpact: 5, ComplianceImpact: 5, BusinessImpact: 5, EffortFactor: 5, FrequencyFactor: 5}
	baseScore := w.Score(base)

	bumps := map[string]Factors{
		"risk":       {RiskImpact: 7, ComplianceImpact: 5, BusinessImpact: 5, EffortFactor: 5, FrequencyFactor: 5},
		"compliance": {RiskImpact: 5, ComplianceImpact: 7, BusinessImpact: 5, EffortFactor: 5, FrequencyFactor: 5},
		"business":   {RiskImpact: 5, ComplianceImpact: 5, BusinessImpact: 7, EffortFactor: 5, FrequencyFactor: 5},
	}
	for name, f := range bumps {
		if got := w.Score(f); got <= baseScore {
			t.Errorf("raising %s impact did not raise the score: %v <= %v", name, got, baseScore)
		}
	}

	// More effort means a lower inverted factor, which must never raise
	// the score.
	lessEffort := base
	lessEffort.EffortFactor = EffortFactorFrom(2)
	moreEffort := base
	moreEffort.EffortFactor = EffortFactorFrom(9)
	if w.Score(moreEffort) > w.Score(lessEffort) {
		t.Error("higher effort produced a higher score")
	}
}

func TestScore_Deterministic(t *testing.T) {
	w := DefaultWeights()
	f := Factors{RiskImpact: 7.3, ComplianceImpact: 6.1, BusinessImpact: 8.9, EffortFactor: 4.4, FrequencyFactor: 2.2}
	first := w.Score(f)
	for i := 0; i < 100; i++ {
		if w.Score(f) != first {
			t.Fatal("score is not deterministic for identical inputs")
		}
	}
}

func TestScore_ClampsOutOfRangeInputs(t *testing.T) {
	w := DefaultWeights()
	if got := w.Score(Factors{RiskImpact: 25, ComplianceImpact: -3}); got > 10 || got < 0 {
		t.Errorf("score with out-of-range inputs = %v, want within [0,10]", got)
	}
}

func TestPriorityFor_Boundaries(t *testing.T) {
	tests := []struct {
		score float64
		want  Priority
	}{
		{10, PriorityP1},
		{8, PriorityP1},
		{7.99, PriorityP2},
		{6, PriorityP2},
		{5.99, PriorityP3},
		{4, PriorityP3},
		{3.99, PriorityP4},
		{0, PriorityP4},
	}
	for _, tt := range tests {
		if got := PriorityFor(tt.score); got != tt.want {
			t.Errorf("PriorityFor(%v) = %v, want %v", tt.score, got, tt.want)
		}
	}
}

func TestEffortFactorFrom(t *testing.T) {
	if got := EffortFactorFrom(0); got != 10 {
		t.Errorf("EffortFactorFrom(0) = %v, want 10", got)
	}
	if got := EffortFactorFrom(10); got != 0 {
		t.Errorf("EffortFactorFrom(10) = %v, want 0", got)
	}
	if EffortFactorFrom(2) <= EffortFactorFrom(8) {
		t.Error("lower effort must yield a higher factor")
	}
}

func TestFingerprint_StableAndDiscriminating(t *testing.T) {
	a := Fingerprint(CategoryDocumentation, "iso27001", "security-policy")
	b := Fingerprint(CategoryDocumentation, "iso27001", "security-policy")
	if a != b {
		t.Error("identical inputs produced different fingerprints")
	}
	if a == Fingerprint(CategoryControl, "iso27001", "security-policy") {
		t.Error("category change did not change the fingerprint")
	}
	if a == Fingerprint(CategoryDocumentation, "soc2", "security-policy") {
		t.Error("framework change did not change the fingerprint")
	}
	if a == Fingerprint(CategoryDocumentation, "iso27001", "access-control-policy") {
		t.Error("target change did not change the fingerprint")
	}
	if len(a) != 64 {
		t.Errorf("fingerprint length = %d, want 64 hex chars", len(a))
	}
}

func TestValidateTransition(t *testing.T) {
	valid := [][2]Status{
		{StatusOpen, StatusProposed},
		{StatusProposed, StatusApproved},
		{StatusApproved, StatusClosed},
		{StatusOpen, StatusClosed},
	}
	for _, tr := range valid {
		if err := ValidateTransition(tr[0], tr[1]); err != nil {
			t.Errorf("ValidateTransition(%s, %s) = %v, want nil", tr[0], tr[1], err)
		}
	}

	invalid := [][2]Status{
		{StatusClosed, StatusOpen},
		{StatusApproved, StatusOpen},
		{StatusOpen, StatusApproved},
		{StatusProposed, StatusOpen},
	}
	for _, tr := range invalid {
		if err := ValidateTransition(tr[0], tr[1]); err == nil {
			t.Errorf("ValidateTransition(%s, %s) accepted an invalid transition", tr[0], tr[1])
		}
	}
}
