package gate

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strings"

	"golang.org/x/term"

	"github.com/angela-cli/angela/pkg/safety"
)

// TerminalPrompter asks for confirmation on the controlling terminal. When
// stdin is not a TTY it declines without blocking, so scripted invocations
// fail closed instead of hanging.
type TerminalPrompter struct {
	In  io.Reader
	Out io.Writer
	// Interactive overrides TTY detection, used by tests.
	Interactive *bool
}

// NewTerminalPrompter returns a prompter on stdin/stdout.
func NewTerminalPrompter() *TerminalPrompter {
	return &TerminalPrompter{In: os.Stdin, Out: os.Stdout}
}

func (p *TerminalPrompter) interactive() bool {
	if p.Interactive != nil {
		return *p.Interactive
	}
	f, ok := p.In.(*os.File)
	return ok && term.IsTerminal(int(f.Fd()))
}

// Confirm presents the action and reads a yes/no answer. Empty input and
// anything other than y/yes declines.
func (p *TerminalPrompter) Confirm(req Request) (bool, error) {
	cls := req.Classification

	fmt.Fprintf(p.Out, "\n📋 Proposed action: %s\n", cls.Command)
	if req.Explanation != "" {
		fmt.Fprintf(p.Out, "   %s\n", req.Explanation)
	}
	if req.Confidence > 0 && req.Confidence < 1 {
		fmt.Fprintf(p.Out, "   Confidence: %.0f%%\n", req.Confidence*100)
	}
	fmt.Fprintf(p.Out, "   Risk: %s", cls.Risk)
	if cls.Reason != "" {
		fmt.Fprintf(p.Out, " (%s)", cls.Reason)
	}
	fmt.Fprintln(p.Out)
	printImpact(p.Out, cls.Impact)
	if cls.StructuralIssue != "" {
		fmt.Fprintf(p.Out, "⚠️  %s\n", cls.StructuralIssue)
	}
	if req.Preview != "" {
		fmt.Fprintln(p.Out, req.Preview)
	}

	if !p.interactive() {
		fmt.Fprintln(p.Out, "❌ Confirmation required but no terminal is attached; declining.")
		return false, nil
	}

	fmt.Fprint(p.Out, "Proceed? [y/N]: ")
	reader := bufio.NewReader(p.In)
	line, err := reader.ReadString('\n')
	if err != nil && line == "" {
		return false, fmt.Errorf("failed to read confirmation: %w", err)
	}
	answer := strings.ToLower(strings.TrimSpace(line))
	return answer == "y" || answer == "yes", nil
}

func printImpact(w io.Writer, impact safety.Impact) {
	if len(impact.AffectedPaths) > 0 {
		fmt.Fprintf(w, "   Affects: %s\n", strings.Join(impact.AffectedPaths, ", "))
	}
	if impact.Destructive {
		fmt.Fprintln(w, "⚠️  This action is destructive.")
	}
}
