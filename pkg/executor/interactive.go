package executor

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/kballard/go-shellquote"
)

// interactiveCommands are programs that take over the terminal and never
// finish on their own. Spawning them with captured pipes would hang, so the
// executor returns a recommendation instead.
var interactiveCommands = map[string]string{
	"vi":     "opens a full-screen editor",
	"vim":    "opens a full-screen editor",
	"nvim":   "opens a full-screen editor",
	"nano":   "opens a full-screen editor",
	"emacs":  "opens a full-screen editor",
	"less":   "opens a pager",
	"more":   "opens a pager",
	"man":    "opens a pager",
	"top":    "runs a live monitor",
	"htop":   "runs a live monitor",
	"watch":  "repeats a command until interrupted",
	"ssh":    "opens an interactive session",
	"tmux":   "opens a terminal multiplexer",
	"screen": "opens a terminal multiplexer",
}

// interactiveRecommendation reports whether the command would block on a
// terminal, and if so what to tell the user. Some commands are only
// interactive in particular forms, such as ping without a count or tail -f.
func interactiveRecommendation(command string) (string, bool) {
	tokens, err := shellquote.Split(command)
	if err != nil || len(tokens) == 0 {
		return "", false
	}
	name := filepath.Base(tokens[0])
	args := tokens[1:]

	if why, ok := interactiveCommands[name]; ok {
		return fmt.Sprintf("'%s' %s and will not terminate on its own; run it directly in your terminal", name, why), true
	}

	switch name {
	case "ping":
		if !hasFlag(args, "-c") {
			return "'ping' without -c runs forever; add a count such as 'ping -c 4' or run it directly", true
		}
	case "tail":
		if hasFlag(args, "-f") || hasFlag(args, "-F") {
			return "'tail -f' follows the file forever; run it directly in your terminal", true
		}
	case "journalctl":
		if hasFlag(args, "-f") || hasFlag(args, "--follow") {
			return "'journalctl -f' follows the journal forever; run it directly in your terminal", true
		}
	case "git":
		// Bare `git commit` without -m opens the editor.
		if len(args) > 0 && args[0] == "commit" && !hasFlag(args, "-m") && !hasFlag(args, "--message") && !hasFlag(args, "--no-edit") {
			return "'git commit' without -m opens an editor; pass a message with -m instead", true
		}
	}
	return "", false
}

func hasFlag(args []string, flag string) bool {
	for _, a := range args {
		if a == flag || strings.HasPrefix(a, flag+"=") {
			return true
		}
		// Short flags may be bundled, e.g. -fn for tail.
		if len(flag) == 2 && strings.HasPrefix(flag, "-") && len(a) > 1 &&
			strings.HasPrefix(a, "-") && !strings.HasPrefix(a, "--") &&
			strings.ContainsRune(a[1:], rune(flag[1])) {
			return true
		}
	}
	return false
}
