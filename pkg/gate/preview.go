package gate

import (
	"fmt"
	"strings"

	"github.com/sergi/go-diff/diffmatchpatch"
)

// DiffPreview renders a unified-style preview of a pending file change for
// the confirmation prompt.
func DiffPreview(path, before, after string) string {
	if before == after {
		return ""
	}
	dmp := diffmatchpatch.New()
	// Line-mode diff so the prompt shows whole changed lines.
	ca, cb, lineIndex := dmp.DiffLinesToChars(before, after)
	diffs := dmp.DiffCharsToLines(dmp.DiffMain(ca, cb, false), lineIndex)

	var b strings.Builder
	fmt.Fprintf(&b, "--- %s\n", path)
	for _, d := range diffs {
		switch d.Type {
		case diffmatchpatch.DiffInsert:
			writePrefixed(&b, "+", d.Text)
		case diffmatchpatch.DiffDelete:
			writePrefixed(&b, "-", d.Text)
		default:
			writeContext(&b, d.Text)
		}
	}
	return strings.TrimRight(b.String(), "\n")
}

func writePrefixed(b *strings.Builder, prefix, text string) {
	for _, line := range strings.Split(strings.TrimRight(text, "\n"), "\n") {
		fmt.Fprintf(b, "%s %s\n", prefix, line)
	}
}

// writeContext keeps at most two context lines around each hunk so large
// files stay readable in the prompt.
func writeContext(b *strings.Builder, text string) {
	lines := strings.Split(strings.TrimRight(text, "\n"), "\n")
	if len(lines) > 4 {
		head := lines[:2]
		tail := lines[len(lines)-2:]
		lines = append(append(head, "..."), tail...)
	}
	for _, line := range lines {
		fmt.Fprintf(b, "  %s\n", line)
	}
}
