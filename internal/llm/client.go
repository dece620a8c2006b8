package llm

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/firebase/genkit/go/ai"
	"github.com/firebase/genkit/go/genkit"
	"golang.org/x/time/rate"
)

// Config contains required parameters for the completion client.
type Config struct {
	Genkit *genkit.Genkit
	Logger *slog.Logger

	// PrimaryModel is the provider-qualified default model name.
	PrimaryModel string

	// FallbackModel is used when the primary provider is unavailable.
	// Empty disables the fallback swap.
	FallbackModel string

	// Retry settings (zero-value uses defaults).
	Retry RetryConfig

	// Breaker settings (zero-value uses defaults).
	Breaker BreakerConfig

	// RateLimiter applies proactive rate limiting (nil = default 10 rps, burst 30).
	RateLimiter *rate.Limiter
}

// Client is the production Generator implementation backed by Genkit.
//
// Client is safe for concurrent use by multiple goroutines.
type Client struct {
	g        *genkit.Genkit
	primary  string
	fallback string
	retry    RetryConfig
	breaker  *Breaker
	limiter  *rate.Limiter
	logger   *slog.Logger

	// generate is a seam for tests; defaults to genkit.Generate.
	generate func(ctx context.Context, g *genkit.Genkit, opts ...ai.GenerateOption) (*ai.ModelResponse, error)
}

// NewClient creates a completion client.
func NewClient(cfg Config) (*Client, error) {
	if cfg.Genkit == nil {
		return nil, errors.New("genkit instance is required")
	}
	if cfg.PrimaryModel == "" {
		return nil, errors.New("primary model is required")
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}

	retry := cfg.Retry
	if retry.MaxRetries == 0 {
		retry = DefaultRetryConfig()
	}
	limiter := cfg.RateLimiter
	if limiter == nil {
		limiter = rate.NewLimiter(10, 30)
	}

	return &Client{
		g:        cfg.Genkit,
		primary:  cfg.PrimaryModel,
		fallback: cfg.FallbackModel,
		retry:    retry,
		breaker:  NewBreaker(cfg.Breaker),
		limiter:  limiter,
		logger:   cfg.Logger,
		generate: genkit.Generate,
	}, nil
}

// Generate executes a completion request.
//
// The call goes through the circuit breaker and the retry loop against the
// primary model. When the primary remains unavailable after retries, the
// same request is replayed against the fallback model with the system
// prompt, message history, and tool declarations preserved, so an agent
// resumes mid-task without losing state.
func (c *Client) Generate(ctx context.Context, req *Request) (*ai.ModelResponse, error) {
	if err := c.breaker.Allow(); err != nil {
		c.logger.Warn("circuit breaker rejecting request", "state", c.breaker.State().String())
		return nil, fmt.Errorf("%w: %w", ErrProviderUnavailable, err)
	}

	model := req.Model
	if model == "" {
		model = c.primary
	}

	resp, err := c.attempt(ctx, model, req)
	if err != nil && retryable(err) && c.fallback != "" && model != c.fallback {
		c.logger.Warn("primary provider unavailable, swapping to fallback",
			"primary", model, "fallback", c.fallback, "error", err)
		resp, err = c.attempt(ctx, c.fallback, req)
	}
	if err != nil {
		c.breaker.Failure()
		if retryable(err) {
			return nil, fmt.Errorf("%w: %w", ErrProviderUnavailable, err)
		}
		return nil, err
	}

	c.breaker.Success()
	return resp, nil
}

// attempt runs one model against the request with exponential backoff.
func (c *Client) attempt(ctx context.Context, model string, req *Request) (*ai.ModelResponse, error) {
	opts := buildOptions(model, req)

	var lastErr error
	delay := c.retry.InitialInterval
	start := time.Now()

	for try := 0; try <= c.retry.MaxRetries; try++ {
		// Rate limit each attempt, retries included.
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, fmt.Errorf("rate limit wait: %w", err)
		}

		resp, err := c.generate(ctx, c.g, opts...)
		if err == nil {
			c.logger.Debug("model call succeeded",
				"model", model, "attempts", try+1, "elapsed", time.Since(start))
			return resp, nil
		}
		lastErr = err

		if !retryable(err) {
			return nil, fmt.Errorf("generate: %w", err)
		}
		if try == c.retry.MaxRetries {
			break
		}

		c.logger.Debug("retrying model call", "model", model, "attempt", try+1, "delay", delay, "error", err)
		select {
		case <-ctx.Done():
			return nil, fmt.Errorf("context canceled during retry: %w", ctx.Err())
		case <-time.After(delay):
			delay = min(delay*2, c.retry.MaxInterval)
		}
	}

	return nil, fmt.Errorf("generate after %d retries: %w", c.retry.MaxRetries, lastErr)
}

func buildOptions(model string, req *Request) []ai.GenerateOption {
	opts := []ai.GenerateOption{ai.WithModelName(model)}
	if req.System != "" {
		opts = append(opts, ai.WithSystem(req.System))
	}
	if len(req.Messages) > 0 {
		opts = append(opts, ai.WithMessages(req.Messages...))
	}
	if len(req.Tools) > 0 {
		opts = append(opts, ai.WithTools(req.Tools...))
	}
	if req.ReturnToolRequests {
		opts = append(opts, ai.WithReturnToolRequests(true))
	}
	return opts
}

// DefineTool registers a tool implementation with Genkit and returns a
// reference usable in Request.Tools. Handlers receive the raw input map the
// model produced.
func (c *Client) DefineTool(name, description string, handler func(ctx context.Context, input map[string]any) (any, error)) ai.ToolRef {
	return genkit.DefineTool(c.g, name, description,
		func(toolCtx *ai.ToolContext, input map[string]any) (any, error) {
			return handler(toolCtx.Context, input)
		})
}
