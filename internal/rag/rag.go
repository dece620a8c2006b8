// Package rag implements retrieval-augmented generation: hybrid search over
// the knowledge base, reciprocal rank fusion of the vector and keyword legs,
// optional LLM-assisted re-ranking, and token-budgeted context assembly.
package rag

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"

	"github.com/wardenai/warden/internal/knowledge"
)

// ErrRetrieval indicates the index was unreachable. Callers proceed without
// RAG context rather than failing the turn, flagging reduced confidence.
var ErrRetrieval = errors.New("retrieval failed")

// Result is one retrieval hit. Ephemeral: produced per query, never persisted.
type Result struct {
	Document    knowledge.Document
	RawScore    float64 // vector similarity, or fused score after RRF
	RerankScore float64 // LLM relevance on the 1-10 scale (0 = not re-ranked)
	FinalScore  float64 // ranking key
}

// Embedder turns a query into its vector. knowledge.Embedder satisfies this,
// including the provider-fallback behavior.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

// Index is the vector index consumed by the service.
// knowledge.Store is the production implementation.
type Index interface {
	Search(ctx context.Context, vector []float32, topK int, filter map[string]string) ([]knowledge.Result, error)
	KeywordSearch(ctx context.Context, query string, topK int) ([]knowledge.Result, error)
}

// Config contains the service dependencies.
type Config struct {
	Embedder Embedder
	Index    Index
	Logger   *slog.Logger

	// Reranker enables LLM-assisted re-ranking when non-nil.
	Reranker *Reranker

	// KeywordFusion enables the full-text leg fused via RRF.
	KeywordFusion bool
}

// Service orchestrates embedding, vector search, keyword fusion, and
// re-ranking into a single ranked result list.
type Service struct {
	embedder Embedder
	index    Index
	reranker *Reranker
	fusion   bool
	logger   *slog.Logger
}

// New creates a retrieval Service.
func New(cfg Config) (*Service, error) {
	if cfg.Embedder == nil {
		return nil, errors.New("embedder is required")
	}
	if cfg.Index == nil {
		return nil, errors.New("index is required")
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Service{
		embedder: cfg.Embedder,
		index:    cfg.Index,
		reranker: cfg.Reranker,
		fusion:   cfg.KeywordFusion,
		logger:   cfg.Logger,
	}, nil
}

// Search runs the retrieval pipeline for a query and returns at most topK
// results ordered by final score descending.
//
// The candidate pool is fetched at twice topK so that fusion and re-ranking
// have material to work with before truncation.
func (s *Service) Search(ctx context.Context, query string, topK int, filter map[string]string) ([]Result, error) {
	if topK <= 0 {
		return nil, fmt.Errorf("topK must be positive, got %d", topK)
	}

	vec, err := s.embedder.Embed(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("%w: embedding query: %w", ErrRetrieval, err)
	}

	poolSize := 2 * topK
	vectorHits, err := s.index.Search(ctx, vec, poolSize, filter)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrRetrieval, err)
	}

	var results []Result
	if s.fusion {
		keywordHits, kwErr := s.index.KeywordSearch(ctx, query, poolSize)
		if kwErr != nil {
			// The vector leg alone still serves the query.
			s.logger.Warn("keyword leg failed, using vector results only", "error", kwErr)
			results = fromVectorHits(vectorHits)
		} else {
			results = fuse(vectorHits, keywordHits)
		}
	} else {
		results = fromVectorHits(vectorHits)
	}

	if s.reranker != nil {
		reranked, rerankErr := s.reranker.Rerank(ctx, query, results)
		if rerankErr != nil {
			s.logger.Warn("re-ranking failed, keeping original order", "error", rerankErr)
		} else {
			results = reranked
		}
	}

	sort.SliceStable(results, func(i, j int) bool {
		return results[i].FinalScore > results[j].FinalScore
	})
	if len(results) > topK {
		results = results[:topK]
	}

	s.logger.Debug("retrieval complete",
		"query_length", len(query), "candidates", poolSize, "returned", len(results))
	return results, nil
}

func fromVectorHits(hits []knowledge.Result) []Result {
	results := make([]Result, len(hits))
	for i, h := range hits {
		results[i] = Result{Document: h.Document, RawScore: h.Score, FinalScore: h.Score}
	}
	return results
}
