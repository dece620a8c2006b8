package cmd

import (
	"fmt"
	"os"
	"strings"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/wardenai/warden/internal/memory"
)

var askSession string

var askCmd = &cobra.Command{
	Use:   "ask [question]",
	Short: "Ask a security operations question",
	Long: `Ask routes the question through intent classification to the
specialist agents and prints the consolidated answer. Pass --session to
continue an earlier conversation; without it a new session is created and
its id printed, so follow-up questions can reference prior turns.`,
	Args: cobra.MinimumNArgs(1),
	RunE: runAsk,
}

func init() {
	askCmd.Flags().StringVar(&askSession, "session", "", "session id to continue")
	rootCmd.AddCommand(askCmd)
}

func runAsk(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	a, err := setupApp(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = a.Close() }()

	question := strings.TrimSpace(strings.Join(args, " "))
	if question == "" {
		return fmt.Errorf("question is empty")
	}

	var sessionID uuid.UUID
	if askSession != "" {
		sessionID, err = uuid.Parse(askSession)
		if err != nil {
			return fmt.Errorf("invalid session id %q: %w", askSession, err)
		}
	} else {
		title := memory.GenerateTitle(ctx, a.LLM, question, a.Logger)
		if title == "" {
			title = truncateTitle(question)
		}
		sess, createErr := a.Memory.CreateSession(ctx, title)
		if createErr != nil {
			return fmt.Errorf("creating session: %w", createErr)
		}
		sessionID = sess.ID
		fmt.Fprintf(os.Stderr, "session: %s\n", sessionID)
	}

	resp, err := a.Orchestrator.HandleTurn(ctx, sessionID, question)
	if err != nil {
		return fmt.Errorf("handling question: %w", err)
	}

	fmt.Println(resp.Text)

	if len(resp.SuggestedActions) > 0 {
		fmt.Println("\nSuggested actions:")
		for _, action := range resp.SuggestedActions {
			fmt.Printf("  - %s\n", action)
		}
	}
	if len(resp.Sources) > 0 {
		fmt.Println("\nSources:")
		for _, src := range resp.Sources {
			fmt.Printf("  - %s\n", src)
		}
	}
	fmt.Fprintf(os.Stderr, "agents: %s  urgency: %s\n",
		strings.Join(resp.AgentsUsed, ", "), resp.Urgency)

	if resp.DegradedRetrieval {
		fmt.Fprintln(os.Stderr, "warning: answered without knowledge-base context")
	}
	if resp.DegradedRouting {
		fmt.Fprintln(os.Stderr, "warning: a specialist was unavailable, the general agent answered")
	}
	if resp.NotPersisted {
		fmt.Fprintln(os.Stderr, "warning: this turn was not saved to the conversation history")
	}
	return nil
}

// truncateTitle derives a session title from the first question.
func truncateTitle(question string) string {
	const maxTitle = 80
	if len(question) <= maxTitle {
		return question
	}
	return question[:maxTitle]
}
