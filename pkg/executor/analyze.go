package executor

import (
	"fmt"
	"regexp"
	"strings"
)

// Analysis is a best-effort diagnosis of a failed command. It never blocks
// or fails the execution call that produced it.
type Analysis struct {
	Summary        string   `json:"summary"`
	ProbableCause  string   `json:"probable_cause,omitempty"`
	FileIssues     []string `json:"file_issues,omitempty"`
	FixSuggestions []string `json:"fix_suggestions,omitempty"`
}

// failureHints map recognizable error output to a cause and suggestions.
// First match wins, so more specific patterns come first.
var failureHints = []struct {
	pattern     *regexp.Regexp
	cause       string
	suggestions []string
}{
	{
		regexp.MustCompile(`(?i)command not found|not recognized as`),
		"the program is not installed or not on PATH",
		[]string{"check the spelling of the command", "install the package that provides it"},
	},
	{
		regexp.MustCompile(`(?i)permission denied|operation not permitted`),
		"the current user lacks permission",
		[]string{"check ownership and mode of the target", "avoid elevation unless the path really is system-owned"},
	},
	{
		regexp.MustCompile(`(?i)no such file or directory`),
		"a referenced path does not exist",
		[]string{"check the path for typos", "create the parent directory first"},
	},
	{
		regexp.MustCompile(`(?i)no space left on device`),
		"the filesystem is full",
		[]string{"free disk space before retrying", "check usage with 'df -h'"},
	},
	{
		regexp.MustCompile(`(?i)address already in use`),
		"another process holds the port",
		[]string{"find the holder with 'lsof -i :<port>'", "pick a different port"},
	},
	{
		regexp.MustCompile(`(?i)connection refused|could not resolve|network is unreachable|temporary failure in name resolution`),
		"a network endpoint is unreachable",
		[]string{"check connectivity and the host name", "verify the service is listening"},
	},
	{
		regexp.MustCompile(`(?i)is a directory`),
		"the target is a directory where a file was expected",
		nil,
	},
	{
		regexp.MustCompile(`(?i)file exists`),
		"the target already exists",
		[]string{"remove the target first or use an overwrite flag"},
	},
	{
		regexp.MustCompile(`(?i)unable to lock|could not get lock|resource temporarily unavailable`),
		"another process holds a lock",
		[]string{"wait for the other process to finish and retry"},
	},
	{
		regexp.MustCompile(`(?i)syntax error`),
		"the command has a syntax error",
		[]string{"check quoting and shell metacharacters"},
	},
}

// filePathInError pulls quoted or colon-delimited paths out of common
// tool error formats, e.g. "cat: /etc/missing: No such file".
var filePathInError = regexp.MustCompile(`(?:'([^']+)'|"([^"]+)"|:\s(/[^\s:]+):)`)

// Hint renders the diagnosis as a single line for logs and summaries.
func (a *Analysis) Hint() string {
	if a == nil {
		return ""
	}
	parts := []string{a.Summary}
	if a.ProbableCause != "" {
		parts = append(parts, a.ProbableCause)
	}
	if len(a.FixSuggestions) > 0 {
		parts = append(parts, "try: "+strings.Join(a.FixSuggestions, "; "))
	}
	return strings.Join(parts, ": ")
}

// analyzeFailure derives a diagnosis from a failed command's stderr.
func analyzeFailure(command, stderr string, exitCode int) *Analysis {
	a := &Analysis{Summary: fmt.Sprintf("command exited with status %d", exitCode)}

	for _, h := range failureHints {
		if h.pattern.MatchString(stderr) {
			a.ProbableCause = h.cause
			a.FixSuggestions = h.suggestions
			break
		}
	}
	if a.ProbableCause == "" {
		switch exitCode {
		case 126:
			a.ProbableCause = "the file is not executable"
			a.FixSuggestions = []string{"check its mode with 'ls -l' and add +x if intended"}
		case 127:
			a.ProbableCause = "the program is not installed or not on PATH"
		case 130:
			a.ProbableCause = "the command was interrupted"
		}
	}

	for _, m := range filePathInError.FindAllStringSubmatch(stderr, 3) {
		for _, g := range m[1:] {
			if g != "" {
				a.FileIssues = append(a.FileIssues, g)
			}
		}
	}

	if strings.TrimSpace(stderr) == "" && a.ProbableCause == "" {
		a.ProbableCause = "no error output was produced"
	}
	return a
}
