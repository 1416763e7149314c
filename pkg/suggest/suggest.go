// Package suggest defines the boundary to the AI collaborator. The core
// only ever sees plain suggestions and plans; prompt construction, model
// selection, and everything else AI-flavored stays on the other side.
package suggest

import (
	"context"
	"fmt"

	"github.com/angela-cli/angela/pkg/plan"
)

// Suggestion is a single proposed command. Confidence is informational
// only; it is shown to the user but never changes gating decisions.
type Suggestion struct {
	Command     string  `json:"command"`
	Explanation string  `json:"explanation"`
	Confidence  float64 `json:"confidence"`
}

// Validate rejects suggestions the core cannot work with.
func (s Suggestion) Validate() error {
	if s.Command == "" {
		return fmt.Errorf("suggestion has no command")
	}
	if s.Confidence < 0 || s.Confidence > 1 {
		return fmt.Errorf("confidence %.2f outside [0,1]", s.Confidence)
	}
	return nil
}

// Provider turns a natural-language request into a suggestion or a plan.
type Provider interface {
	Suggest(ctx context.Context, request string) (Suggestion, error)
	// SuggestPlan returns a multi-step plan for requests that need one,
	// or ok=false when a single command suffices.
	SuggestPlan(ctx context.Context, request string) (plan.Plan, bool, error)
}
