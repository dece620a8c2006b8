package knowledge

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/firebase/genkit/go/ai"
	"google.golang.org/genai"
)

// VectorDimension is the embedding width used across the knowledge base.
// The pgvector schema and the local fallback embedder both depend on it;
// provider embedders are truncated to this width via OutputDimensionality.
const VectorDimension = 768

// Provider turns text into a fixed-length vector.
type Provider interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

// Embedder wraps a primary provider with a fallback.
//
// A primary failure is logged and the fallback (lower quality, locally
// computed) takes over, so a provider outage never fails a whole search.
type Embedder struct {
	primary  Provider
	fallback Provider
	logger   *slog.Logger
}

// NewEmbedder creates an Embedder. fallback may be nil to disable the swap.
func NewEmbedder(primary, fallback Provider, logger *slog.Logger) (*Embedder, error) {
	if primary == nil {
		return nil, errors.New("primary embedding provider is required")
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Embedder{primary: primary, fallback: fallback, logger: logger}, nil
}

// Embed generates a vector for text, swapping to the fallback provider on
// primary failure. The error is returned only when both providers fail.
func (e *Embedder) Embed(ctx context.Context, text string) ([]float32, error) {
	vec, err := e.primary.Embed(ctx, text)
	if err == nil {
		return vec, nil
	}
	if e.fallback == nil {
		return nil, fmt.Errorf("embedding: %w", err)
	}

	e.logger.Warn("primary embedder failed, degrading to local fallback", "error", err)
	vec, fbErr := e.fallback.Embed(ctx, text)
	if fbErr != nil {
		return nil, fmt.Errorf("embedding (fallback after %v): %w", err, fbErr)
	}
	return vec, nil
}

// genkitProvider adapts a Genkit ai.Embedder to the Provider interface,
// truncating output to VectorDimension.
type genkitProvider struct {
	embedder ai.Embedder
}

// NewGenkitProvider wraps a Genkit embedder as a Provider.
func NewGenkitProvider(embedder ai.Embedder) Provider {
	return &genkitProvider{embedder: embedder}
}

func (p *genkitProvider) Embed(ctx context.Context, text string) ([]float32, error) {
	dim := int32(VectorDimension)
	resp, err := p.embedder.Embed(ctx, &ai.EmbedRequest{
		Input:   []*ai.Document{ai.DocumentFromText(text, nil)},
		Options: &genai.EmbedContentConfig{OutputDimensionality: &dim},
	})
	if err != nil {
		return nil, fmt.Errorf("embed request: %w", err)
	}
	if len(resp.Embeddings) == 0 || len(resp.Embeddings[0].Embedding) == 0 {
		return nil, errors.New("empty embedding response")
	}
	return resp.Embeddings[0].Embedding, nil
}
