package safety

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/kballard/go-shellquote"
)

// Impact describes what a command is expected to do to the host, extracted
// best-effort from its argument list.
type Impact struct {
	Operations    []string `json:"operations"`
	Destructive   bool     `json:"destructive"`
	CreatesFiles  bool     `json:"creates_files"`
	ModifiesFiles bool     `json:"modifies_files"`
	AffectedPaths []string `json:"affected_paths"`
}

// operationTags maps leading command names to high-level operation tags.
var operationTags = map[string][]string{
	"cat": {"read"}, "head": {"read"}, "tail": {"read"}, "less": {"read"},
	"ls": {"read"}, "grep": {"read"}, "find": {"read"}, "stat": {"read"},
	"touch": {"create"}, "mkdir": {"create"},
	"cp": {"create"}, "tee": {"create", "modify"},
	"mv":    {"create", "delete"},
	"rm":    {"delete"}, "rmdir": {"delete"}, "shred": {"delete"},
	"sed":   {"modify"}, "chmod": {"modify"}, "chown": {"modify"},
	"ln":    {"create"}, "truncate": {"modify"}, "dd": {"modify"},
	"curl":  {"network"}, "wget": {"network"}, "ssh": {"network"},
	"scp":   {"network"}, "rsync": {"network"}, "ping": {"network"},
	"nc":    {"network"}, "git": {"read", "network"},
	"sudo":  {"privilege"}, "su": {"privilege"}, "pkexec": {"privilege"},
	"apt":   {"privilege", "network"}, "apt-get": {"privilege", "network"},
	"dnf":   {"privilege", "network"}, "yum": {"privilege", "network"},
}

var destructiveCommands = map[string]bool{
	"rm": true, "rmdir": true, "shred": true, "dd": true, "mkfs": true,
	"truncate": true, "wipefs": true,
}

// extractImpact tokenizes the command and enumerates path-like arguments.
// Tokenization is shell-aware via go-shellquote; the caller handles parse
// failures separately.
func extractImpact(tokens []string, workDir string) Impact {
	impact := Impact{}
	if len(tokens) == 0 {
		return impact
	}

	name := filepath.Base(tokens[0])
	if tags, ok := operationTags[name]; ok {
		impact.Operations = append(impact.Operations, tags...)
	}
	if destructiveCommands[name] {
		impact.Destructive = true
	}

	seen := map[string]bool{}
	for _, tok := range tokens[1:] {
		if strings.HasPrefix(tok, "-") || !looksLikePath(tok) {
			continue
		}
		abs := resolvePath(tok, workDir)
		if abs == "" || seen[abs] {
			continue
		}
		seen[abs] = true
		impact.AffectedPaths = append(impact.AffectedPaths, abs)

		// Existence check only; the classifier never reads content.
		if _, err := os.Stat(abs); err == nil {
			if hasTag(impact.Operations, "modify") || hasTag(impact.Operations, "delete") {
				impact.ModifiesFiles = true
			}
			if impact.Destructive {
				impact.ModifiesFiles = true
			}
		} else if hasTag(impact.Operations, "create") {
			impact.CreatesFiles = true
		}
	}

	// Redirection targets count as created/modified even though shellquote
	// keeps them as plain tokens.
	for i, tok := range tokens {
		if tok == ">" || tok == ">>" {
			if i+1 < len(tokens) {
				abs := resolvePath(tokens[i+1], workDir)
				if abs != "" && !seen[abs] {
					seen[abs] = true
					impact.AffectedPaths = append(impact.AffectedPaths, abs)
				}
			}
			if tok == ">" {
				impact.ModifiesFiles = true
			}
			impact.CreatesFiles = true
			impact.Operations = appendTag(impact.Operations, "create")
		}
	}

	return impact
}

// looksLikePath reports whether a token plausibly names a filesystem path.
// Bare words without separators or extensions are treated as non-paths to
// keep the affected set precise.
func looksLikePath(tok string) bool {
	if tok == "" {
		return false
	}
	if strings.ContainsAny(tok, "|&;<>()$`") {
		return false
	}
	if strings.HasPrefix(tok, "/") || strings.HasPrefix(tok, "./") ||
		strings.HasPrefix(tok, "../") || strings.HasPrefix(tok, "~") {
		return true
	}
	return strings.Contains(tok, "/") || strings.Contains(tok, ".")
}

func resolvePath(tok, workDir string) string {
	if strings.HasPrefix(tok, "~") {
		home, err := os.UserHomeDir()
		if err != nil {
			return ""
		}
		tok = filepath.Join(home, strings.TrimPrefix(tok, "~"))
	}
	if filepath.IsAbs(tok) {
		return filepath.Clean(tok)
	}
	if workDir == "" {
		workDir, _ = os.Getwd()
	}
	return filepath.Join(workDir, tok)
}

func hasTag(tags []string, tag string) bool {
	for _, t := range tags {
		if t == tag {
			return true
		}
	}
	return false
}

func appendTag(tags []string, tag string) []string {
	if hasTag(tags, tag) {
		return tags
	}
	return append(tags, tag)
}

// tokenize splits a command shell-style. A non-nil error indicates a
// structural issue such as unbalanced quotes.
func tokenize(command string) ([]string, error) {
	return shellquote.Split(command)
}
