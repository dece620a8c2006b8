package rag

import "github.com/wardenai/warden/internal/knowledge"

// rrfK is the reciprocal rank fusion constant. 60 is the value from the
// original RRF paper and dampens the dominance of top-ranked items.
const rrfK = 60

// fuse merges the vector and keyword result lists with reciprocal rank
// fusion: each document scores the sum of 1/(rrfK+rank) over the lists it
// appears in, ranks being 1-based within each list. A document present in
// both lists outranks one at the same position in only one.
//
// The fused score replaces RawScore; original per-leg scores are discarded
// since they live on incomparable scales.
func fuse(vector, keyword []knowledge.Result) []Result {
	type entry struct {
		doc   knowledge.Document
		score float64
		order int
	}
	merged := make(map[string]*entry, len(vector)+len(keyword))
	next := 0

	accumulate := func(list []knowledge.Result) {
		for rank, hit := range list {
			contribution := 1.0 / float64(rrfK+rank+1)
			if e, ok := merged[hit.Document.ID]; ok {
				e.score += contribution
				continue
			}
			merged[hit.Document.ID] = &entry{doc: hit.Document, score: contribution, order: next}
			next++
		}
	}
	accumulate(vector)
	accumulate(keyword)

	results := make([]Result, next)
	for _, e := range merged {
		results[e.order] = Result{Document: e.doc, RawScore: e.score, FinalScore: e.score}
	}
	return results
}
