package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/angela-cli/angela/pkg/core"
)

var rootCmd = &cobra.Command{
	Use:   "angela",
	Short: "Angela executes AI-suggested commands with safety rails",
	Long: `Angela turns natural-language requests into shell commands and
multi-step plans, classifies their risk, asks for confirmation where
needed, executes them, and can roll them back.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute runs the CLI.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "❌ %v\n", err)
		os.Exit(1)
	}
}

// openCore builds the execution core for a command invocation.
func openCore() (*core.Core, error) {
	workDir, err := os.Getwd()
	if err != nil {
		return nil, fmt.Errorf("failed to resolve working directory: %w", err)
	}
	return core.Open(core.WithWorkDir(workDir))
}
