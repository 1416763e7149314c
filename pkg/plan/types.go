// Package plan executes multi-step task plans: dependency ordering,
// per-step risk gating, bounded concurrency for low-risk steps, and
// rollback of the plan's transaction on failure or cancellation.
package plan

import (
	"fmt"
	"os"
	"sync"

	"github.com/angela-cli/angela/pkg/safety"
)

// StepType distinguishes what a step actually does.
type StepType string

const (
	StepCommand        StepType = "command"
	StepFileOp         StepType = "file_op"
	StepAPICall        StepType = "api_call"
	StepCodeGeneration StepType = "code_generation"
	StepDecision       StepType = "decision"
)

// FileOp is the payload of a file_op step.
type FileOp struct {
	Kind        string      `json:"kind"`
	Path        string      `json:"path"`
	Destination string      `json:"destination,omitempty"`
	Content     []byte      `json:"content,omitempty"`
	Perm        os.FileMode `json:"perm,omitempty"`
	// Overwrite lets create_file, copy_file, and move_file replace an
	// existing target; the original is backed up first.
	Overwrite bool `json:"overwrite,omitempty"`
}

// Step is one unit of a plan.
type Step struct {
	ID                   string           `json:"id"`
	Type                 StepType         `json:"type"`
	Command              string           `json:"command,omitempty"`
	FileOp               *FileOp          `json:"file_op,omitempty"`
	Explanation          string           `json:"explanation,omitempty"`
	EstimatedRisk        safety.RiskLevel `json:"estimated_risk"`
	Dependencies         []string         `json:"dependencies,omitempty"`
	Optional             bool             `json:"optional,omitempty"`
	RequiresConfirmation bool             `json:"requires_confirmation,omitempty"`
	// Condition is evaluated against the plan context before the step
	// runs; false skips the step.
	Condition string `json:"condition,omitempty"`
}

// Plan is a goal with a dependency-ordered set of steps.
type Plan struct {
	Goal  string `json:"goal"`
	Steps []Step `json:"steps"`
}

// StepStatus is the lifecycle state of a step within one run.
type StepStatus string

const (
	StepPending   StepStatus = "pending"
	StepRunning   StepStatus = "running"
	StepCommitted StepStatus = "committed"
	StepSkipped   StepStatus = "skipped"
	StepFailed    StepStatus = "failed"
)

// StepResult records what a finished step produced.
type StepResult struct {
	StepID       string     `json:"step_id"`
	Status       StepStatus `json:"status"`
	Stdout       string     `json:"stdout,omitempty"`
	Error        string     `json:"error,omitempty"`
	OperationIDs []uint64   `json:"operation_ids,omitempty"`
	Paths        []string   `json:"paths,omitempty"`
}

// Context accumulates step results during one plan run. It is private to
// that run; concurrent sibling steps read and write it under a lock.
type Context struct {
	mu      sync.RWMutex
	results map[string]StepResult
}

// NewContext creates an empty plan context.
func NewContext() *Context {
	return &Context{results: make(map[string]StepResult)}
}

// Record stores a step result.
func (c *Context) Record(res StepResult) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.results[res.StepID] = res
}

// Result returns the result of a finished step.
func (c *Context) Result(stepID string) (StepResult, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	res, ok := c.results[stepID]
	return res, ok
}

// Results returns a copy of every recorded result.
func (c *Context) Results() map[string]StepResult {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make(map[string]StepResult, len(c.results))
	for k, v := range c.results {
		out[k] = v
	}
	return out
}

// levels partitions steps into dependency layers: every step's dependencies
// live in strictly earlier layers. Returns an error on unknown or cyclic
// dependencies and on duplicate ids.
func levels(steps []Step) ([][]Step, error) {
	byID := make(map[string]Step, len(steps))
	for _, s := range steps {
		if s.ID == "" {
			return nil, fmt.Errorf("step with empty id")
		}
		if _, dup := byID[s.ID]; dup {
			return nil, fmt.Errorf("duplicate step id %q", s.ID)
		}
		byID[s.ID] = s
	}
	for _, s := range steps {
		for _, dep := range s.Dependencies {
			if _, ok := byID[dep]; !ok {
				return nil, fmt.Errorf("step %q depends on unknown step %q", s.ID, dep)
			}
		}
	}

	placed := make(map[string]bool, len(steps))
	remaining := steps
	var layers [][]Step
	for len(remaining) > 0 {
		var layer, next []Step
		for _, s := range remaining {
			ready := true
			for _, dep := range s.Dependencies {
				if !placed[dep] {
					ready = false
					break
				}
			}
			if ready {
				layer = append(layer, s)
			} else {
				next = append(next, s)
			}
		}
		if len(layer) == 0 {
			return nil, fmt.Errorf("dependency cycle involving %d steps", len(next))
		}
		for _, s := range layer {
			placed[s.ID] = true
		}
		layers = append(layers, layer)
		remaining = next
	}
	return layers, nil
}
