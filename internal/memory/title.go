package memory

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/firebase/genkit/go/ai"

	"github.com/wardenai/warden/internal/llm"
)

const (
	titleTimeout       = 10 * time.Second
	titleInputMaxRunes = 500
	titleMaxRunes      = 80

	titleSystemPrompt = `Produce a short title (at most 8 words) summarizing the
user's question. Reply with the title only, no quotes, no trailing period.`
)

// GenerateTitle names a session from its first message. Best effort: any
// failure returns "" and the caller falls back to a truncated message.
func GenerateTitle(ctx context.Context, gen llm.Generator, firstMessage string, logger *slog.Logger) string {
	if logger == nil {
		logger = slog.Default()
	}
	ctx, cancel := context.WithTimeout(ctx, titleTimeout)
	defer cancel()

	input := []rune(firstMessage)
	if len(input) > titleInputMaxRunes {
		firstMessage = string(input[:titleInputMaxRunes]) + "..."
	}

	resp, err := gen.Generate(ctx, &llm.Request{
		System:   titleSystemPrompt,
		Messages: []*ai.Message{ai.NewUserMessage(ai.NewTextPart(firstMessage))},
	})
	if err != nil {
		logger.Debug("title generation failed", "error", err)
		return ""
	}

	title := strings.TrimSpace(resp.Text())
	if runes := []rune(title); len(runes) > titleMaxRunes {
		title = string(runes[:titleMaxRunes-3]) + "..."
	}
	return title
}
