package gap

// Weights are the priority-score coefficients. They must sum to 1; the
// config layer validates that before an Engine is built.
type Weights struct {
	Risk       float64
	Compliance float64
	Business   float64
	Effort     float64
	Frequency  float64
}

// DefaultWeights returns the standard weighting.
func DefaultWeights() Weights {
	return Weights{Risk: 0.30, Compliance: 0.25, Business: 0.25, Effort: 0.10, Frequency: 0.10}
}

// Factors are the normalized [0,10] inputs to a priority score.
//
// EffortFactor is already inverted: a quick win carries a high factor.
// Derive it from a raw effort estimate with EffortFactorFrom.
type Factors struct {
	RiskImpact       float64
	ComplianceImpact float64
	BusinessImpact   float64
	EffortFactor     float64
	FrequencyFactor  float64
}

// Score computes the weighted priority score. Pure and deterministic:
// identical inputs always produce the identical score, which makes rankings
// reproducible for a given snapshot.
func (w Weights) Score(f Factors) float64 {
	return w.Risk*clamp(f.RiskImpact) +
		w.Compliance*clamp(f.ComplianceImpact) +
		w.Business*clamp(f.BusinessImpact) +
		w.Effort*clamp(f.EffortFactor) +
		w.Frequency*clamp(f.FrequencyFactor)
}

// PriorityFor buckets a score.
func PriorityFor(score float64) Priority {
	switch {
	case score >= 8:
		return PriorityP1
	case score >= 6:
		return PriorityP2
	case score >= 4:
		return PriorityP3
	default:
		return PriorityP4
	}
}

// EffortFactorFrom inverts a raw [0,10] effort estimate so that low-effort
// findings surface as quick wins.
func EffortFactorFrom(effort float64) float64 {
	return 10 - clamp(effort)
}

// effortFactors maps an effort class to its inverted factor.
var effortFactors = map[string]float64{
	"low":    8,
	"medium": 5,
	"high":   2,
}

// EffortFactorForClass inverts a coarse effort class. Unknown classes get
// the medium factor.
func EffortFactorForClass(class string) float64 {
	if f, ok := effortFactors[class]; ok {
		return f
	}
	return effortFactors["medium"]
}

func clamp(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 10 {
		return 10
	}
	return v
}
