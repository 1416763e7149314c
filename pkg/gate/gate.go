// Package gate decides whether a classified action runs, prompts, or is
// denied, based on the safety verdict, user preferences, and per-request
// flags. The gate is the only component allowed to approve execution.
package gate

import (
	"github.com/angela-cli/angela/pkg/config"
	"github.com/angela-cli/angela/pkg/safety"
)

// Decision is the gate's verdict on a single action.
type Decision int

const (
	// Deny blocks the action outright. Refusals always deny.
	Deny Decision = iota
	// Allow runs the action without asking.
	Allow
	// Prompt asks the user before running.
	Prompt
	// PresentOnly shows what would happen without running anything.
	PresentOnly
)

func (d Decision) String() string {
	switch d {
	case Deny:
		return "deny"
	case Allow:
		return "allow"
	case Prompt:
		return "prompt"
	case PresentOnly:
		return "present_only"
	}
	return "unknown"
}

// Request carries everything the gate needs to decide one action.
type Request struct {
	Classification safety.Classification
	// DryRun presents the action without executing.
	DryRun bool
	// Force skips prompting for everything short of a refusal.
	Force bool
	// AlwaysPrompt demands confirmation regardless of preferences, used by
	// plan steps flagged requires_confirmation.
	AlwaysPrompt bool
	// Preview is shown to the user when prompting (diff, impact summary).
	Preview string
	// Explanation and Confidence come from the suggestion, when there is
	// one. Confidence is informational and never changes the decision.
	Explanation string
	Confidence  float64
}

// Outcome is the resolved decision, after any prompting.
type Outcome struct {
	Decision Decision
	// Approved is the user's answer when the decision was Prompt.
	Approved bool
	// Reason explains denials and refusals.
	Reason string
}

// Prompter asks the user to approve an action. Implementations must be safe
// to call from a single goroutine at a time; the orchestrator serializes
// prompts across concurrent steps.
type Prompter interface {
	Confirm(req Request) (bool, error)
}

// Gate evaluates requests against the current user preferences.
type Gate struct {
	prefs    func() config.Preferences
	prompter Prompter
}

// New creates a gate. prefs is read on every decision so preference reloads
// take effect immediately.
func New(prefs func() config.Preferences, prompter Prompter) *Gate {
	return &Gate{prefs: prefs, prompter: prompter}
}

// Decide resolves the decision for a request without prompting. The order
// of checks is fixed: refusal, dry-run, force, untrusted, trusted,
// confirm-all, then the per-level auto-execute table.
func (g *Gate) Decide(req Request) (Decision, string) {
	cls := req.Classification

	if cls.Refused {
		reason := cls.RefusalMessage
		if reason == "" {
			reason = cls.Reason
		}
		return Deny, reason
	}
	if req.DryRun {
		return PresentOnly, ""
	}
	if req.Force {
		return Allow, ""
	}
	if req.AlwaysPrompt {
		return Prompt, "step requires explicit confirmation"
	}

	prefs := g.prefs()
	if prefs.IsUntrusted(cls.Command) {
		return Prompt, "command is marked untrusted"
	}
	if prefs.IsTrusted(cls.Command) {
		return Allow, ""
	}
	if prefs.ConfirmAllActions {
		return Prompt, "confirm_all_actions is enabled"
	}
	if prefs.AutoExecuteLevel(cls.Risk) {
		return Allow, ""
	}
	return Prompt, "risk level requires confirmation"
}

// Resolve decides and, when the decision is Prompt, asks the prompter.
// A declined prompt is not an error; Outcome.Approved reports the answer.
func (g *Gate) Resolve(req Request) (Outcome, error) {
	decision, reason := g.Decide(req)
	out := Outcome{Decision: decision, Reason: reason}

	switch decision {
	case Allow:
		out.Approved = true
	case Prompt:
		if g.prompter == nil {
			out.Approved = false
			out.Reason = "confirmation required but no prompter is available"
			return out, nil
		}
		approved, err := g.prompter.Confirm(req)
		if err != nil {
			return out, err
		}
		out.Approved = approved
	}
	return out, nil
}
