package cmd

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/wardenai/warden/internal/gap"
)

var (
	gapsFrameworks []string
	gapsLimit      int
)

var gapsCmd = &cobra.Command{
	Use:   "gaps",
	Short: "Analyze and list documentation gaps",
}

var gapsAnalyzeCmd = &cobra.Command{
	Use:   "analyze",
	Short: "Audit the knowledge base against compliance frameworks",
	Long: `Analyze compares the active documents in the knowledge base against
the required artifacts of each framework, records missing and stale
documentation as prioritized gaps, and drafts remediation proposals for
the highest-priority findings.`,
	RunE: runGapsAnalyze,
}

var gapsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List open gaps by priority",
	RunE:  runGapsList,
}

func init() {
	gapsAnalyzeCmd.Flags().StringSliceVar(&gapsFrameworks, "framework", nil,
		fmt.Sprintf("frameworks to audit (default from config; known: %s)",
			strings.Join(gap.Frameworks(), ", ")))
	gapsListCmd.Flags().IntVar(&gapsLimit, "limit", 50, "maximum gaps to list")
	gapsCmd.AddCommand(gapsAnalyzeCmd, gapsListCmd)
	rootCmd.AddCommand(gapsCmd)
}

func runGapsAnalyze(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()

	a, err := setupApp(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = a.Close() }()

	frameworks := gapsFrameworks
	if len(frameworks) == 0 {
		frameworks = a.Config.Frameworks
	}

	gaps, err := a.GapEngine.Analyze(ctx, gap.Scope{Frameworks: frameworks})
	if err != nil {
		return fmt.Errorf("analyzing gaps: %w", err)
	}

	if len(gaps) == 0 {
		fmt.Printf("no gaps found across %s\n", strings.Join(frameworks, ", "))
		return nil
	}

	fmt.Printf("%d gap(s) found:\n\n", len(gaps))
	printGaps(gaps)
	return nil
}

func runGapsList(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()

	a, err := setupApp(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = a.Close() }()

	gaps, err := a.Gaps.ListOpen(ctx, gapsLimit)
	if err != nil {
		return fmt.Errorf("listing gaps: %w", err)
	}
	if len(gaps) == 0 {
		fmt.Println("no open gaps")
		return nil
	}
	printGaps(gaps)
	return nil
}

func printGaps(gaps []gap.Gap) {
	for _, g := range gaps {
		fmt.Printf("%s  %-6s %5.2f  %-10s %s\n",
			g.Priority, g.Status, g.PriorityScore, g.FrameworkRef, g.Description)
		fmt.Printf("    id=%s  owner=%s  deadline=%s\n",
			g.ID, g.OwnerSuggested, g.Deadline.Format("2006-01-02"))
	}
}
