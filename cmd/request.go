package cmd

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/angela-cli/angela/pkg/core"
)

var (
	requestSuggestOnly bool
	requestDryRun      bool
	requestForce       bool
	requestCommand     string
	requestLive        bool
)

var requestCmd = &cobra.Command{
	Use:   "request \"<text>\"",
	Short: "Turn a natural-language request into an executed command",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		text := ""
		if len(args) > 0 {
			text = args[0]
		}
		if text == "" && requestCommand == "" {
			return fmt.Errorf("provide a request or --command")
		}

		c, err := openCore()
		if err != nil {
			return err
		}
		defer c.Close()

		workDir, _ := os.Getwd()
		out, err := c.HandleRequest(cmd.Context(), text, core.RequestOptions{
			SuggestOnly: requestSuggestOnly,
			DryRun:      requestDryRun,
			Force:       requestForce,
			Command:     requestCommand,
			WorkDir:     workDir,
			Live:        requestLive,
		})
		if out != nil {
			printOutcome(out)
		}
		return err
	},
}

func printOutcome(out *core.Outcome) {
	if out.PlanResult != nil {
		for id, step := range out.PlanResult.Steps {
			fmt.Printf("  %s %s: %s\n", stepGlyph(string(step.Status)), id, step.Status)
		}
		if out.PlanResult.TransactionID != "" {
			fmt.Printf("📋 Transaction: %s\n", out.PlanResult.TransactionID)
		}
		return
	}

	if out.Suggestion.Command != "" {
		fmt.Printf("💡 Suggested: %s\n", out.Suggestion.Command)
		if out.Suggestion.Explanation != "" {
			fmt.Printf("   %s\n", out.Suggestion.Explanation)
		}
		if out.Suggestion.Confidence > 0 && out.Suggestion.Confidence < 1 {
			fmt.Printf("   Confidence: %.0f%%\n", out.Suggestion.Confidence*100)
		}
	}
	if out.Classification.Command != "" {
		fmt.Printf("   Risk: %s\n", out.Classification.Risk)
	}

	res := out.ExecResult
	if res == nil {
		return
	}
	if res.Interactive {
		fmt.Printf("⚠️  %s\n", res.Recommendation)
		return
	}
	if res.Stdout != "" {
		fmt.Print(res.Stdout)
	}
	if res.Stderr != "" {
		fmt.Fprint(os.Stderr, res.Stderr)
	}
	if res.Success {
		fmt.Printf("✅ Done in %s\n", res.Duration.Round(time.Millisecond))
	} else if a := res.Analysis; a != nil {
		line := a.Summary
		if a.ProbableCause != "" {
			line += ": " + a.ProbableCause
		}
		fmt.Printf("💡 %s\n", line)
		for _, fix := range a.FixSuggestions {
			fmt.Printf("   • %s\n", fix)
		}
	}
	if out.OperationID != 0 {
		fmt.Printf("   Journal id: %d\n", out.OperationID)
	}
}

func stepGlyph(status string) string {
	switch status {
	case "committed":
		return "✅"
	case "skipped":
		return "⏭️"
	case "failed":
		return "❌"
	default:
		return "🔄"
	}
}

func init() {
	requestCmd.Flags().BoolVar(&requestSuggestOnly, "suggest-only", false, "Show the suggested command without executing it")
	requestCmd.Flags().BoolVar(&requestDryRun, "dry-run", false, "Present what would run without executing")
	requestCmd.Flags().BoolVar(&requestForce, "force", false, "Execute without confirmation prompts (refusals still apply)")
	requestCmd.Flags().StringVar(&requestCommand, "command", "", "Submit this exact command instead of asking the provider")
	requestCmd.Flags().BoolVar(&requestLive, "live", false, "Run the approved command on your terminal (for editors and other interactive programs)")
	rootCmd.AddCommand(requestCmd)
}
