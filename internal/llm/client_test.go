package llm

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/firebase/genkit/go/ai"
	"github.com/firebase/genkit/go/genkit"
	"golang.org/x/time/rate"

	"github.com/wardenai/warden/internal/log"
)

// newTestClient builds a client with a stubbed generate function.
// Retry intervals are shrunk so failure paths stay fast.
func newTestClient(fn func(ctx context.Context, g *genkit.Genkit, opts ...ai.GenerateOption) (*ai.ModelResponse, error)) *Client {
	return &Client{
		primary:  "mock/primary",
		fallback: "mock/fallback",
		retry: RetryConfig{
			MaxRetries:      1,
			InitialInterval: time.Millisecond,
			MaxInterval:     time.Millisecond,
		},
		breaker:  NewBreaker(BreakerConfig{}),
		limiter:  rate.NewLimiter(rate.Inf, 1),
		logger:   log.NewNop(),
		generate: fn,
	}
}

func textResponse(text string) *ai.ModelResponse {
	return &ai.ModelResponse{Message: ai.NewModelMessage(ai.NewTextPart(text))}
}

func TestClient_Generate_Success(t *testing.T) {
	calls := 0
	c := newTestClient(func(_ context.Context, _ *genkit.Genkit, _ ...ai.GenerateOption) (*ai.ModelResponse, error) {
		calls++
		return textResponse("ok"), nil
	})

	resp, err := c.Generate(context.Background(), &Request{System: "sys"})
	if err != nil {
		t.Fatalf("Generate() error: %v", err)
	}
	if resp.Text() != "ok" {
		t.Errorf("Text() = %q, want %q", resp.Text(), "ok")
	}
	if calls != 1 {
		t.Errorf("generate called %d times, want 1", calls)
	}
}

func TestClient_Generate_FallbackSwapOnUnavailable(t *testing.T) {
	calls := 0
	c := newTestClient(func(_ context.Context, _ *genkit.Genkit, _ ...ai.GenerateOption) (*ai.ModelResponse, error) {
		calls++
		// Primary attempts (initial + 1 retry) fail transient; fallback succeeds.
		if calls <= 2 {
			return nil, errors.New("503 service unavailable")
		}
		return textResponse("from fallback"), nil
	})

	resp, err := c.Generate(context.Background(), &Request{})
	if err != nil {
		t.Fatalf("Generate() error: %v", err)
	}
	if resp.Text() != "from fallback" {
		t.Errorf("Text() = %q, want fallback output", resp.Text())
	}
	if calls != 3 {
		t.Errorf("generate called %d times, want 3 (2 primary + 1 fallback)", calls)
	}
}

func TestClient_Generate_NonRetryableNoFallback(t *testing.T) {
	calls := 0
	c := newTestClient(func(_ context.Context, _ *genkit.Genkit, _ ...ai.GenerateOption) (*ai.ModelResponse, error) {
		calls++
		return nil, errors.New("invalid argument: bad schema")
	})

	_, err := c.Generate(context.Background(), &Request{})
	if err == nil {
		t.Fatal("Generate() should fail on non-retryable error")
	}
	if errors.Is(err, ErrProviderUnavailable) {
		t.Error("non-retryable errors must not report provider unavailability")
	}
	if calls != 1 {
		t.Errorf("generate called %d times, want 1 (no retry, no fallback)", calls)
	}
}

func TestClient_Generate_BothProvidersDown(t *testing.T) {
	c := newTestClient(func(_ context.Context, _ *genkit.Genkit, _ ...ai.GenerateOption) (*ai.ModelResponse, error) {
		return nil, errors.New("connection reset by peer")
	})

	_, err := c.Generate(context.Background(), &Request{})
	if !errors.Is(err, ErrProviderUnavailable) {
		t.Errorf("error = %v, want ErrProviderUnavailable", err)
	}
}

func TestClient_Generate_BreakerRejects(t *testing.T) {
	c := newTestClient(func(_ context.Context, _ *genkit.Genkit, _ ...ai.GenerateOption) (*ai.ModelResponse, error) {
		return nil, errors.New("503")
	})
	c.breaker = NewBreaker(BreakerConfig{FailureThreshold: 1, Cooldown: time.Hour})

	// First call trips the breaker (primary and fallback both down).
	if _, err := c.Generate(context.Background(), &Request{}); err == nil {
		t.Fatal("first Generate() should fail")
	}

	_, err := c.Generate(context.Background(), &Request{})
	if !errors.Is(err, ErrBreakerOpen) {
		t.Errorf("error = %v, want ErrBreakerOpen", err)
	}
}

func TestToolRequests(t *testing.T) {
	resp := &ai.ModelResponse{Message: &ai.Message{
		Role: ai.RoleModel,
		Content: []*ai.Part{
			{Kind: ai.PartToolRequest, ToolRequest: &ai.ToolRequest{Name: "search_knowledge"}},
			ai.NewTextPart("thinking"),
		},
	}}

	reqs := ToolRequests(resp)
	if len(reqs) != 1 || reqs[0].Name != "search_knowledge" {
		t.Errorf("ToolRequests() = %+v, want one request for search_knowledge", reqs)
	}

	if got := ToolRequests(textResponse("plain")); got != nil {
		t.Errorf("ToolRequests(text-only) = %+v, want nil", got)
	}
}

func TestDecodeJSON(t *testing.T) {
	var out struct {
		Agents []string `json:"agents"`
	}
	resp := textResponse("```json\n{\"agents\":[\"risk\"]}\n```")
	if err := DecodeJSON(resp, &out); err != nil {
		t.Fatalf("DecodeJSON() error: %v", err)
	}
	if len(out.Agents) != 1 || out.Agents[0] != "risk" {
		t.Errorf("decoded %+v, want agents=[risk]", out)
	}

	if err := DecodeJSON(textResponse("not json"), &out); err == nil {
		t.Error("DecodeJSON() should fail on malformed JSON")
	}
	if err := DecodeJSON(nil, &out); !errors.Is(err, ErrEmptyResponse) {
		t.Errorf("DecodeJSON(nil) = %v, want ErrEmptyResponse", err)
	}
}
