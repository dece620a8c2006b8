package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/firebase/genkit/go/ai"
)

// maxJSONResponseBytes limits response size before JSON parsing (64 KB).
const maxJSONResponseBytes = 64 * 1024

// StripCodeFences removes a surrounding markdown code fence, if present.
// Models frequently wrap JSON output in ```json blocks despite instructions.
func StripCodeFences(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	if idx := strings.IndexByte(s, '\n'); idx >= 0 {
		s = s[idx+1:]
	} else {
		s = strings.TrimPrefix(s, "```")
	}
	s = strings.TrimSpace(s)
	s = strings.TrimSuffix(s, "```")
	return strings.TrimSpace(s)
}

// DecodeJSON parses a model response as JSON into out.
// Strips code fences first and bounds the response size.
func DecodeJSON(resp *ai.ModelResponse, out any) error {
	if resp == nil {
		return ErrEmptyResponse
	}
	text := StripCodeFences(resp.Text())
	if text == "" {
		return ErrEmptyResponse
	}
	if len(text) > maxJSONResponseBytes {
		return fmt.Errorf("response too large for JSON parsing: %d bytes", len(text))
	}
	if err := json.Unmarshal([]byte(text), out); err != nil {
		return fmt.Errorf("parsing model JSON: %w (raw: %q)", err, truncate(text, 200))
	}
	return nil
}

// GenerateJSON runs a request and decodes the response into T.
func GenerateJSON[T any](ctx context.Context, gen Generator, req *Request) (T, error) {
	var out T
	resp, err := gen.Generate(ctx, req)
	if err != nil {
		return out, err
	}
	if err := DecodeJSON(resp, &out); err != nil {
		return out, err
	}
	return out, nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
