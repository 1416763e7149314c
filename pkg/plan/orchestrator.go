package plan

import (
	"context"
	"fmt"
	"os"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/angela-cli/angela/pkg/executor"
	"github.com/angela-cli/angela/pkg/fsops"
	"github.com/angela-cli/angela/pkg/gate"
	"github.com/angela-cli/angela/pkg/journal"
	"github.com/angela-cli/angela/pkg/logging"
	"github.com/angela-cli/angela/pkg/rollback"
	"github.com/angela-cli/angela/pkg/safety"
)

// Handler runs a step type the core does not execute itself, such as
// api_call or code_generation, which belong to the enclosing tool.
type Handler func(ctx context.Context, step Step, pctx *Context) (StepResult, error)

// Options configure one plan run.
type Options struct {
	WorkDir string
	// DryRun presents every step without executing or journaling.
	DryRun bool
	// Force approves every step that is not refused outright.
	Force bool
	// KeepOnFailure leaves committed steps in place after a failure
	// instead of rolling the transaction back.
	KeepOnFailure bool
}

// RunResult summarizes one plan execution.
type RunResult struct {
	TransactionID string                `json:"transaction_id,omitempty"`
	Status        journal.TxStatus      `json:"status"`
	Steps         map[string]StepResult `json:"steps"`
	// HaltedAt names the step whose failure stopped scheduling, if any.
	HaltedAt string `json:"halted_at,omitempty"`
}

// Orchestrator schedules and executes plans.
type Orchestrator struct {
	classifier *safety.Classifier
	gate       *gate.Gate
	exec       *executor.Executor
	fs         *fsops.FS
	journal    *journal.Journal
	rollback   *rollback.Manager
	logger     *logging.Logger
	handlers   map[StepType]Handler

	// promptMu keeps confirmation prompts from interleaving when sibling
	// steps run concurrently.
	promptMu sync.Mutex
}

// NewOrchestrator wires the orchestrator to the execution core.
func NewOrchestrator(classifier *safety.Classifier, g *gate.Gate, exec *executor.Executor,
	fs *fsops.FS, j *journal.Journal, rb *rollback.Manager, logger *logging.Logger) *Orchestrator {
	return &Orchestrator{
		classifier: classifier,
		gate:       g,
		exec:       exec,
		fs:         fs,
		journal:    j,
		rollback:   rb,
		logger:     logger,
		handlers:   make(map[StepType]Handler),
	}
}

// RegisterHandler installs a handler for a non-core step type.
func (o *Orchestrator) RegisterHandler(t StepType, h Handler) {
	o.handlers[t] = h
}

// Run executes a plan. Steps are grouped into dependency levels; within a
// level, steps at or below medium risk run concurrently while higher-risk
// steps run one at a time in declaration order. A failed non-optional step
// halts scheduling and rolls the transaction back unless KeepOnFailure.
func (o *Orchestrator) Run(ctx context.Context, p Plan, opts Options) (RunResult, error) {
	result := RunResult{Steps: make(map[string]StepResult)}

	layers, err := levels(p.Steps)
	if err != nil {
		return result, fmt.Errorf("invalid plan: %w", err)
	}

	var txID string
	if !opts.DryRun {
		txID, err = o.journal.Begin(fmt.Sprintf("plan: %s", p.Goal))
		if err != nil {
			return result, err
		}
		result.TransactionID = txID
	}

	pctx := NewContext()
	o.logger.LogProcessStep(fmt.Sprintf("📋 Executing plan: %s (%d steps)", p.Goal, len(p.Steps)))

	var halted string
	var haltErr error

scheduling:
	for _, layer := range layers {
		if err := ctx.Err(); err != nil {
			haltErr = err
			break
		}

		var concurrent, serial []Step
		for _, s := range layer {
			if s.EstimatedRisk <= safety.RiskMedium && !s.RequiresConfirmation {
				concurrent = append(concurrent, s)
			} else {
				serial = append(serial, s)
			}
		}

		if len(concurrent) > 0 {
			g, gctx := errgroup.WithContext(ctx)
			var mu sync.Mutex
			for _, s := range concurrent {
				step := s
				g.Go(func() error {
					res := o.runStep(gctx, txID, step, pctx, opts)
					pctx.Record(res)
					if res.Status == StepFailed && !step.Optional {
						mu.Lock()
						if halted == "" {
							halted = step.ID
						}
						mu.Unlock()
						return fmt.Errorf("step %s failed: %s", step.ID, res.Error)
					}
					return nil
				})
			}
			if err := g.Wait(); err != nil {
				haltErr = err
				break scheduling
			}
		}

		for _, step := range serial {
			if err := ctx.Err(); err != nil {
				haltErr = err
				break scheduling
			}
			res := o.runStep(ctx, txID, step, pctx, opts)
			pctx.Record(res)
			if res.Status == StepFailed && !step.Optional {
				halted = step.ID
				haltErr = fmt.Errorf("step %s failed: %s", step.ID, res.Error)
				break scheduling
			}
		}
	}

	result.Steps = pctx.Results()
	result.HaltedAt = halted

	if opts.DryRun {
		return result, nil
	}

	if haltErr == nil {
		if err := o.journal.CloseTransaction(txID, journal.TxCommitted); err != nil {
			return result, err
		}
		result.Status = journal.TxCommitted
		o.logger.LogProcessStep("✅ Plan completed.")
		return result, nil
	}

	// Close the partial transaction, then unwind it unless asked not to.
	// Rollback runs on a detached context so cancellation of the plan does
	// not abandon the cleanup.
	if err := o.journal.CloseTransaction(txID, journal.TxFailed); err != nil {
		o.logger.Error("failed to close transaction %s: %v", txID, err)
	}
	result.Status = journal.TxFailed

	if !opts.KeepOnFailure {
		report, rbErr := o.rollback.RollbackTransaction(context.WithoutCancel(ctx), txID, true)
		if rbErr != nil {
			o.logger.Error("rollback of plan transaction %s failed: %v", txID, rbErr)
		}
		if report.Status != "" {
			result.Status = report.Status
		}
	}
	return result, haltErr
}

// runStep applies the per-step protocol: condition, dependency check,
// classification, gate, execution, journal.
func (o *Orchestrator) runStep(ctx context.Context, txID string, step Step, pctx *Context, opts Options) StepResult {
	res := StepResult{StepID: step.ID, Status: StepRunning}

	for _, dep := range step.Dependencies {
		depRes, ok := pctx.Result(dep)
		if !ok || (depRes.Status != StepCommitted && depRes.Status != StepSkipped) {
			res.Status = StepSkipped
			res.Error = fmt.Sprintf("dependency %s did not commit", dep)
			return res
		}
	}

	proceed, err := evalCondition(step.Condition, pctx)
	if err != nil {
		res.Status = StepFailed
		res.Error = fmt.Sprintf("condition error: %v", err)
		return res
	}
	if !proceed {
		res.Status = StepSkipped
		res.Error = "condition evaluated to false"
		return res
	}

	switch step.Type {
	case StepDecision:
		// Decisions only steer conditions of later steps.
		res.Status = StepCommitted
		res.Stdout = "decided"
		return res
	case StepCommand, "":
		return o.runCommandStep(ctx, txID, step, opts)
	case StepFileOp:
		return o.runFileOpStep(txID, step, opts)
	default:
		handler, ok := o.handlers[step.Type]
		if !ok {
			res.Status = StepFailed
			res.Error = fmt.Sprintf("no handler registered for step type %s", step.Type)
			return res
		}
		out, err := handler(ctx, step, pctx)
		if err != nil {
			res.Status = StepFailed
			res.Error = err.Error()
			return res
		}
		out.StepID = step.ID
		if out.Status == "" || out.Status == StepRunning {
			out.Status = StepCommitted
		}
		return out
	}
}

func (o *Orchestrator) runCommandStep(ctx context.Context, txID string, step Step, opts Options) StepResult {
	res := StepResult{StepID: step.ID}

	cls := o.classifier.Classify(step.Command)
	if step.EstimatedRisk > cls.Risk {
		// The planner may know about effects the static classifier cannot
		// see; the stricter estimate wins.
		cls.Risk = step.EstimatedRisk
	}

	outcome, err := o.resolveGate(gate.Request{
		Classification: cls,
		DryRun:         opts.DryRun,
		Force:          opts.Force,
		AlwaysPrompt:   step.RequiresConfirmation,
		Explanation:    step.Explanation,
	})
	if err != nil {
		res.Status = StepFailed
		res.Error = err.Error()
		return res
	}
	switch outcome.Decision {
	case gate.Deny:
		res.Status = StepFailed
		res.Error = fmt.Sprintf("refused: %s", outcome.Reason)
		return res
	case gate.PresentOnly:
		res.Status = StepSkipped
		res.Stdout = fmt.Sprintf("dry run: would execute %q", step.Command)
		o.logger.LogProcessStep(fmt.Sprintf("💡 [dry run] %s: %s", step.ID, step.Command))
		return res
	}
	if !outcome.Approved {
		if step.Optional {
			res.Status = StepSkipped
			res.Error = "confirmation declined"
		} else {
			res.Status = StepFailed
			res.Error = "confirmation declined"
		}
		return res
	}

	opID, err := o.journal.AddOperation(txID, journal.KindShellCommand, step.Command,
		map[string]string{"command": step.Command, "work_dir": opts.WorkDir}, nil)
	if err != nil {
		res.Status = StepFailed
		res.Error = err.Error()
		return res
	}
	res.OperationIDs = append(res.OperationIDs, opID)

	execRes, execErr := o.exec.Run(ctx, executor.Request{Command: step.Command, WorkDir: opts.WorkDir})
	res.Stdout = execRes.Stdout
	res.Paths = cls.Impact.AffectedPaths

	if execRes.Interactive {
		err := fmt.Errorf("interactive command cannot run inside a plan: %s", execRes.Recommendation)
		o.journal.FailOperation(opID, err)
		res.Status = StepFailed
		res.Error = err.Error()
		return res
	}
	if execErr != nil {
		o.journal.FailOperation(opID, execErr)
		res.Status = StepFailed
		res.Error = execErr.Error()
		if hint := execRes.Analysis.Hint(); hint != "" {
			res.Error += "; " + hint
		}
		return res
	}
	if err := o.journal.CommitOperation(opID); err != nil {
		res.Status = StepFailed
		res.Error = err.Error()
		return res
	}
	res.Status = StepCommitted
	return res
}

func (o *Orchestrator) runFileOpStep(txID string, step Step, opts Options) StepResult {
	res := StepResult{StepID: step.ID}
	if step.FileOp == nil {
		res.Status = StepFailed
		res.Error = "file_op step has no payload"
		return res
	}
	op := *step.FileOp

	cls := o.classifier.ClassifyFileOp(safety.FileOpRequest{
		Kind: op.Kind, Path: op.Path, Destination: op.Destination,
	})
	if step.EstimatedRisk > cls.Risk {
		cls.Risk = step.EstimatedRisk
	}

	outcome, err := o.resolveGate(gate.Request{
		Classification: cls,
		DryRun:         opts.DryRun,
		Force:          opts.Force,
		AlwaysPrompt:   step.RequiresConfirmation,
		Explanation:    step.Explanation,
		Preview:        filePreview(op),
	})
	if err != nil {
		res.Status = StepFailed
		res.Error = err.Error()
		return res
	}
	switch outcome.Decision {
	case gate.Deny:
		res.Status = StepFailed
		res.Error = fmt.Sprintf("refused: %s", outcome.Reason)
		return res
	case gate.PresentOnly:
		res.Status = StepSkipped
		res.Stdout = fmt.Sprintf("dry run: would %s %s", op.Kind, op.Path)
		return res
	}
	if !outcome.Approved {
		if step.Optional {
			res.Status = StepSkipped
		} else {
			res.Status = StepFailed
		}
		res.Error = "confirmation declined"
		return res
	}

	perm := op.Perm
	if perm == 0 {
		perm = 0644
	}

	var opID uint64
	var opErr error
	switch op.Kind {
	case "create_file":
		opID, opErr = o.fs.CreateFile(txID, op.Path, op.Content, perm, op.Overwrite)
	case "write_file":
		opID, opErr = o.fs.WriteFile(txID, op.Path, op.Content)
	case "delete_file":
		opID, opErr = o.fs.DeleteFile(txID, op.Path)
	case "create_dir":
		dirPerm := op.Perm
		if dirPerm == 0 {
			dirPerm = 0755
		}
		opID, opErr = o.fs.CreateDir(txID, op.Path, dirPerm)
	case "delete_dir":
		opID, opErr = o.fs.DeleteDir(txID, op.Path)
	case "copy_file":
		opID, opErr = o.fs.CopyFile(txID, op.Path, op.Destination, op.Overwrite)
	case "move_file":
		opID, opErr = o.fs.MoveFile(txID, op.Path, op.Destination, op.Overwrite)
	default:
		opErr = fmt.Errorf("unknown file operation %q", op.Kind)
	}
	if opID != 0 {
		res.OperationIDs = append(res.OperationIDs, opID)
	}
	if opErr != nil {
		res.Status = StepFailed
		res.Error = opErr.Error()
		return res
	}
	res.Status = StepCommitted
	res.Paths = append(res.Paths, op.Path)
	if op.Destination != "" {
		res.Paths = append(res.Paths, op.Destination)
	}
	return res
}

// filePreview builds the diff shown when a content-bearing file operation
// prompts for confirmation.
func filePreview(op FileOp) string {
	switch op.Kind {
	case "write_file", "create_file":
	default:
		return ""
	}
	var current string
	if data, err := os.ReadFile(op.Path); err == nil {
		current = string(data)
	}
	return gate.DiffPreview(op.Path, current, string(op.Content))
}

// resolveGate serializes prompting across concurrent steps.
func (o *Orchestrator) resolveGate(req gate.Request) (gate.Outcome, error) {
	decision, _ := o.gate.Decide(req)
	if decision == gate.Prompt {
		o.promptMu.Lock()
		defer o.promptMu.Unlock()
	}
	return o.gate.Resolve(req)
}
