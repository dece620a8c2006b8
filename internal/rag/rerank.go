package rag

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/firebase/genkit/go/ai"

	"github.com/wardenai/warden/internal/llm"
)

const rerankSystemPrompt = `You score how relevant documents are to a security operations query.
For each document return an integer relevance score from 1 (irrelevant) to 10 (directly answers the query).
Respond with a JSON array only, no prose: [{"id": "<document id>", "score": <1-10>}, ...]`

// rerankSnippet bounds how much of each document the scoring prompt carries.
const rerankSnippet = 500

type rerankScore struct {
	ID    string `json:"id"`
	Score int    `json:"score"`
}

// Reranker asks the LLM to score candidate relevance and blends that score
// with the retrieval score.
type Reranker struct {
	gen          llm.Generator
	vectorWeight float64
	llmWeight    float64
	logger       *slog.Logger
}

// NewReranker creates a Reranker. Weights are expected to sum to 1; the
// config layer validates that.
func NewReranker(gen llm.Generator, vectorWeight, llmWeight float64, logger *slog.Logger) *Reranker {
	if logger == nil {
		logger = slog.Default()
	}
	return &Reranker{gen: gen, vectorWeight: vectorWeight, llmWeight: llmWeight, logger: logger}
}

// Rerank scores each candidate against the query and recomputes final
// scores as vectorWeight*raw + llmWeight*(llmScore/10). A candidate the
// model failed to score keeps its retrieval score. A failed or unparseable
// model call returns an error; the caller keeps the original ordering.
func (r *Reranker) Rerank(ctx context.Context, query string, results []Result) ([]Result, error) {
	if len(results) == 0 {
		return results, nil
	}

	scores, err := llm.GenerateJSON[[]rerankScore](ctx, r.gen, &llm.Request{
		System: rerankSystemPrompt,
		Messages: []*ai.Message{
			ai.NewUserMessage(ai.NewTextPart(r.buildPrompt(query, results))),
		},
	})
	if err != nil {
		return nil, fmt.Errorf("scoring candidates: %w", err)
	}

	byID := make(map[string]int, len(scores))
	for _, s := range scores {
		if s.Score < 1 {
			s.Score = 1
		}
		if s.Score > 10 {
			s.Score = 10
		}
		byID[s.ID] = s.Score
	}

	reranked := make([]Result, len(results))
	for i, res := range results {
		score, ok := byID[res.Document.ID]
		if !ok {
			r.logger.Debug("candidate not scored by model", "document_id", res.Document.ID)
			reranked[i] = res
			continue
		}
		res.RerankScore = float64(score)
		res.FinalScore = r.vectorWeight*res.RawScore + r.llmWeight*(float64(score)/10)
		reranked[i] = res
	}
	return reranked, nil
}

func (r *Reranker) buildPrompt(query string, results []Result) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Query: %s\n\nDocuments:\n", query)
	for _, res := range results {
		fmt.Fprintf(&b, "[id: %s]\n%s\n\n", res.Document.ID,
			Snippet(res.Document.Content, rerankSnippet))
	}
	return b.String()
}
