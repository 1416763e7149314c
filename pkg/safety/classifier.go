package safety

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// Classification is the classifier's verdict on a proposed command.
type Classification struct {
	Command         string    `json:"command"`
	Risk            RiskLevel `json:"risk"`
	Reason          string    `json:"reason"`
	Impact          Impact    `json:"impact"`
	Refused         bool      `json:"refused"`
	RefusalMessage  string    `json:"refusal_message,omitempty"`
	StructuralIssue string    `json:"structural_issue,omitempty"`
}

// FileOpRequest is an operation-typed validation request from the
// filesystem executor.
type FileOpRequest struct {
	Kind        string // create_file, write_file, delete_file, ...
	Path        string
	Destination string // copy/move only
}

// Classifier assigns risk levels and refusal verdicts. It never executes
// anything and never touches the filesystem beyond existence checks, so the
// same input always produces the same output.
type Classifier struct {
	workDir    string
	privileged bool
}

// Option configures a Classifier.
type Option func(*Classifier)

// WithWorkDir sets the directory relative paths resolve against.
func WithWorkDir(dir string) Option {
	return func(c *Classifier) { c.workDir = dir }
}

// WithPrivileged overrides the detected process privilege.
func WithPrivileged(privileged bool) Option {
	return func(c *Classifier) { c.privileged = privileged }
}

// NewClassifier creates a classifier for the current process environment.
func NewClassifier(opts ...Option) *Classifier {
	c := &Classifier{privileged: os.Geteuid() == 0}
	for _, opt := range opts {
		opt(c)
	}
	if c.workDir == "" {
		c.workDir, _ = os.Getwd()
	}
	return c
}

// Classify produces the verdict for a shell command.
func (c *Classifier) Classify(command string) Classification {
	cls := Classification{Command: command}

	if strings.TrimSpace(command) == "" {
		cls.Refused = true
		cls.Risk = RiskCritical
		cls.Reason = "empty command"
		cls.RefusalMessage = "empty command"
		return cls
	}

	for _, rp := range refusalPatterns {
		if rp.pattern.MatchString(command) {
			cls.Refused = true
			cls.Risk = RiskCritical
			cls.Reason = rp.message
			cls.RefusalMessage = rp.message
			return cls
		}
	}

	requiresPrivilege := false
	for _, pp := range privilegePatterns {
		if pp.MatchString(command) {
			requiresPrivilege = true
			break
		}
	}
	if requiresPrivilege && !c.privileged {
		cls.Refused = true
		cls.Risk = RiskHigh
		cls.Reason = "command requires elevated privileges, but the current process is unprivileged"
		cls.RefusalMessage = cls.Reason
		return cls
	}

	tokens, err := tokenize(command)
	if err != nil {
		// Unparseable commands cannot be inspected, so the score is
		// escalated one level with a floor of medium.
		cls.StructuralIssue = fmt.Sprintf("command could not be parsed: %v", err)
		cls.Risk = c.scoreRaw(command, nil).Escalate()
		if cls.Risk < RiskMedium {
			cls.Risk = RiskMedium
		}
		cls.Reason = "command has a structural issue and could not be fully inspected"
		return cls
	}

	cls.Impact = extractImpact(tokens, c.workDir)
	cls.Risk, cls.Reason = c.score(command, tokens)
	if requiresPrivilege {
		cls.Impact.Operations = appendTag(cls.Impact.Operations, "privilege")
	}
	return cls
}

func (c *Classifier) score(command string, tokens []string) (RiskLevel, string) {
	for _, p := range criticalPatterns {
		if p.MatchString(command) {
			return RiskCritical, "mass deletion, disk operation, or other irreversible change"
		}
	}
	for _, p := range highPatterns {
		if p.MatchString(command) {
			return RiskHigh, "installs packages or modifies system configuration"
		}
	}
	for _, p := range mediumPatterns {
		if p.MatchString(command) {
			return RiskMedium, "modifies existing files or configuration"
		}
	}
	for _, p := range lowPatterns {
		if p.MatchString(command) {
			return RiskLow, "creates files or fetches data in user paths"
		}
	}
	if len(tokens) > 0 && isSimple(command) && safeCommands[filepath.Base(tokens[0])] {
		return RiskSafe, "read-only introspection command"
	}
	return RiskMedium, "unrecognized command; treated as a modification"
}

// scoreRaw scores without tokens, used on parse failure.
func (c *Classifier) scoreRaw(command string, _ []string) RiskLevel {
	level, _ := c.score(command, nil)
	return level
}

// isSimple reports whether a command is free of compound operators, so the
// leading token actually describes what runs.
func isSimple(command string) bool {
	return !strings.ContainsAny(command, ";|&><`$")
}

// ClassifyFileOp validates a filesystem-executor operation before it runs.
func (c *Classifier) ClassifyFileOp(req FileOpRequest) Classification {
	cls := Classification{Command: fmt.Sprintf("%s %s", req.Kind, req.Path)}
	path := filepath.Clean(req.Path)

	if path == "" || path == "." {
		cls.Refused = true
		cls.Risk = RiskCritical
		cls.Reason = "empty path"
		cls.RefusalMessage = "empty path"
		return cls
	}
	for _, root := range criticalRoots {
		if path == root || strings.HasPrefix(path, root+string(filepath.Separator)) {
			if strings.HasPrefix(req.Kind, "delete") || strings.HasPrefix(req.Kind, "write") {
				cls.Refused = true
				cls.Risk = RiskCritical
				cls.Reason = fmt.Sprintf("mutating %s is not allowed", root)
				cls.RefusalMessage = cls.Reason
				return cls
			}
		}
	}

	cls.Impact.AffectedPaths = []string{path}
	if req.Destination != "" {
		cls.Impact.AffectedPaths = append(cls.Impact.AffectedPaths, filepath.Clean(req.Destination))
	}
	switch req.Kind {
	case "create_file", "create_dir":
		cls.Risk = RiskLow
		cls.Reason = "creates a new file or directory"
		cls.Impact.Operations = []string{"create"}
		cls.Impact.CreatesFiles = true
	case "write_file", "copy_file", "move_file":
		cls.Risk = RiskMedium
		cls.Reason = "modifies existing user files"
		cls.Impact.Operations = []string{"modify"}
		cls.Impact.ModifiesFiles = true
	case "delete_file", "delete_dir":
		cls.Risk = RiskMedium
		cls.Reason = "deletes user files"
		cls.Impact.Operations = []string{"delete"}
		cls.Impact.Destructive = true
	default:
		cls.Risk = RiskMedium
		cls.Reason = "unrecognized filesystem operation"
	}
	return cls
}

// criticalRoots are directories the filesystem executor refuses to mutate.
var criticalRoots = []string{
	"/", "/boot", "/etc", "/bin", "/sbin", "/lib", "/usr", "/var",
	"/dev", "/proc", "/sys",
}
