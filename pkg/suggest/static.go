package suggest

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"github.com/angela-cli/angela/pkg/plan"
)

// rule maps a request shape to a command template. $1, $2... refer to
// capture groups of the pattern.
type rule struct {
	pattern     *regexp.Regexp
	command     string
	explanation string
	confidence  float64
}

var staticRules = []rule{
	{regexp.MustCompile(`(?i)^(show|list)( all)?( the)? (files|contents)`), "ls -la", "list the current directory including hidden entries", 0.9},
	{regexp.MustCompile(`(?i)disk (space|usage)`), "df -h", "show free space per filesystem", 0.9},
	{regexp.MustCompile(`(?i)(where am i|current (directory|folder|path))`), "pwd", "print the working directory", 0.95},
	{regexp.MustCompile(`(?i)(memory|ram) usage`), "free -h", "show memory usage", 0.9},
	{regexp.MustCompile(`(?i)running processes`), "ps aux", "list running processes", 0.85},
	{regexp.MustCompile(`(?i)find (all )?(\S+) files`), "find . -name '*.$2'", "search the tree for matching files", 0.7},
	{regexp.MustCompile(`(?i)search( for)? ["']?([^"']+)["']? in (files|the code)`), "grep -rn '$2' .", "search file contents recursively", 0.7},
	{regexp.MustCompile(`(?i)git status`), "git status", "show the working tree status", 0.95},
	{regexp.MustCompile(`(?i)what changed|recent commits`), "git log --oneline -10", "show the last ten commits", 0.8},
	{regexp.MustCompile(`(?i)make (a )?(new )?(directory|folder) (called |named )?(\S+)`), "mkdir -p $5", "create the directory", 0.85},
}

// Static is an offline provider driven by a fixed rule table. It backs the
// request flow when no AI collaborator is configured and keeps tests
// hermetic.
type Static struct{}

// NewStatic creates the rule-based provider.
func NewStatic() *Static {
	return &Static{}
}

// Suggest matches the request against the rule table.
func (s *Static) Suggest(_ context.Context, request string) (Suggestion, error) {
	request = strings.TrimSpace(request)
	for _, r := range staticRules {
		m := r.pattern.FindStringSubmatch(request)
		if m == nil {
			continue
		}
		command := r.command
		for i := 1; i < len(m); i++ {
			command = strings.ReplaceAll(command, fmt.Sprintf("$%d", i), m[i])
		}
		return Suggestion{Command: command, Explanation: r.explanation, Confidence: r.confidence}, nil
	}
	return Suggestion{}, fmt.Errorf("no suggestion for request %q; configure an AI provider", request)
}

// SuggestPlan never produces plans; the static table is single-command.
func (s *Static) SuggestPlan(context.Context, string) (plan.Plan, bool, error) {
	return plan.Plan{}, false, nil
}
