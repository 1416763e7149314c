// Package core assembles the execution pipeline: suggestion in, classified
// and gated execution out, with every side effect journaled. The cmd layer
// is a thin shell over this package.
package core

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/angela-cli/angela/pkg/config"
	"github.com/angela-cli/angela/pkg/executor"
	"github.com/angela-cli/angela/pkg/fsops"
	"github.com/angela-cli/angela/pkg/gate"
	"github.com/angela-cli/angela/pkg/journal"
	"github.com/angela-cli/angela/pkg/logging"
	"github.com/angela-cli/angela/pkg/plan"
	"github.com/angela-cli/angela/pkg/rollback"
	"github.com/angela-cli/angela/pkg/safety"
	"github.com/angela-cli/angela/pkg/suggest"
)

// Core owns every capability of the execution pipeline.
type Core struct {
	Root         string
	Config       *config.Store
	Logger       *logging.Logger
	Classifier   *safety.Classifier
	Gate         *gate.Gate
	Exec         *executor.Executor
	FS           *fsops.FS
	Journal      *journal.Journal
	Rollback     *rollback.Manager
	Orchestrator *plan.Orchestrator
	Provider     suggest.Provider
}

// Option customizes Core construction.
type Option func(*options)

type options struct {
	root     string
	silent   bool
	provider suggest.Provider
	prompter gate.Prompter
	workDir  string
}

// WithRoot overrides the config root directory.
func WithRoot(dir string) Option { return func(o *options) { o.root = dir } }

// WithSilentLogger suppresses progress mirroring to stdout.
func WithSilentLogger() Option { return func(o *options) { o.silent = true } }

// WithProvider installs the suggestion provider.
func WithProvider(p suggest.Provider) Option { return func(o *options) { o.provider = p } }

// WithPrompter installs the confirmation prompter.
func WithPrompter(p gate.Prompter) Option { return func(o *options) { o.prompter = p } }

// WithWorkDir sets the directory commands run in.
func WithWorkDir(dir string) Option { return func(o *options) { o.workDir = dir } }

// Open builds a fully wired core rooted at the Angela config directory.
func Open(opts ...Option) (*Core, error) {
	var o options
	for _, opt := range opts {
		opt(&o)
	}
	if o.root == "" {
		root, err := config.ConfigRoot()
		if err != nil {
			return nil, err
		}
		o.root = root
	}
	if o.provider == nil {
		o.provider = suggest.NewStatic()
	}
	if o.prompter == nil {
		o.prompter = gate.NewTerminalPrompter()
	}

	var logger *logging.Logger
	if o.silent {
		logger = logging.NewSilentLogger(o.root)
	} else {
		logger = logging.NewLogger(o.root)
	}

	cfg, err := config.Load(o.root)
	if err != nil {
		logger.Close()
		return nil, err
	}

	j, err := journal.Open(filepath.Join(o.root, "journal.db"))
	if err != nil {
		logger.Close()
		return nil, err
	}

	classifierOpts := []safety.Option{}
	if o.workDir != "" {
		classifierOpts = append(classifierOpts, safety.WithWorkDir(o.workDir))
	}
	classifier := safety.NewClassifier(classifierOpts...)
	g := gate.New(cfg.Preferences, o.prompter)
	exec := executor.New(logger)
	fs := fsops.New(j, classifier, filepath.Join(o.root, "backups"), logger)
	rb := rollback.New(j, exec, logger)
	orch := plan.NewOrchestrator(classifier, g, exec, fs, j, rb, logger)

	return &Core{
		Root:         o.root,
		Config:       cfg,
		Logger:       logger,
		Classifier:   classifier,
		Gate:         g,
		Exec:         exec,
		FS:           fs,
		Journal:      j,
		Rollback:     rb,
		Orchestrator: orch,
		Provider:     o.provider,
	}, nil
}

// Close releases the journal and the log file.
func (c *Core) Close() error {
	err := c.Journal.Close()
	if cerr := c.Logger.Close(); err == nil {
		err = cerr
	}
	return err
}

// RequestOptions control one HandleRequest invocation.
type RequestOptions struct {
	// SuggestOnly returns the suggestion without gating or executing.
	SuggestOnly bool
	DryRun      bool
	Force       bool
	// Command bypasses the provider and submits this exact command.
	Command string
	WorkDir string
	// Live runs the approved command on a pseudo-terminal with the user's
	// terminal attached, for commands that genuinely need one. Output is
	// not captured.
	Live bool
}

// Outcome is the result of one handled request.
type Outcome struct {
	Suggestion     suggest.Suggestion    `json:"suggestion"`
	Classification safety.Classification `json:"classification"`
	Decision       gate.Decision         `json:"decision"`
	Executed       bool                  `json:"executed"`
	ExecResult     *executor.Result      `json:"exec_result,omitempty"`
	PlanResult     *plan.RunResult       `json:"plan_result,omitempty"`
	OperationID    uint64                `json:"operation_id,omitempty"`
}

// HandleRequest runs the request pipeline: suggestion, classification,
// gate, execution, journal. Denied or refused requests return an error so
// the CLI exits non-zero.
func (c *Core) HandleRequest(ctx context.Context, text string, opts RequestOptions) (*Outcome, error) {
	out := &Outcome{}

	if opts.Command != "" {
		out.Suggestion = suggest.Suggestion{Command: opts.Command, Confidence: 1}
	} else {
		if p, ok, err := c.planFor(ctx, text); err != nil {
			return out, err
		} else if ok {
			return c.runPlan(ctx, p, opts, out)
		}
		sug, err := c.Provider.Suggest(ctx, text)
		if err != nil {
			return out, err
		}
		if err := sug.Validate(); err != nil {
			return out, fmt.Errorf("provider returned an invalid suggestion: %w", err)
		}
		out.Suggestion = sug
	}

	out.Classification = c.Classifier.Classify(out.Suggestion.Command)
	if opts.SuggestOnly {
		return out, nil
	}

	req := gate.Request{
		Classification: out.Classification,
		DryRun:         opts.DryRun,
		Force:          opts.Force,
		Explanation:    out.Suggestion.Explanation,
		Confidence:     out.Suggestion.Confidence,
	}
	outcome, err := c.Gate.Resolve(req)
	if err != nil {
		return out, err
	}
	out.Decision = outcome.Decision

	switch outcome.Decision {
	case gate.Deny:
		return out, fmt.Errorf("refused: %s", outcome.Reason)
	case gate.PresentOnly:
		return out, nil
	}
	if !outcome.Approved {
		return out, fmt.Errorf("confirmation declined")
	}

	opID, err := c.Journal.AddOperation("", journal.KindShellCommand, out.Suggestion.Command,
		map[string]string{"command": out.Suggestion.Command, "work_dir": opts.WorkDir}, nil)
	if err != nil {
		return out, err
	}
	out.OperationID = opID

	if opts.Live {
		res, execErr := c.Exec.RunLive(ctx, executor.Request{Command: out.Suggestion.Command, WorkDir: opts.WorkDir})
		out.ExecResult = &res
		out.Executed = true
		if execErr != nil {
			c.Journal.FailOperation(opID, execErr)
			return out, fmt.Errorf("command failed: %w", execErr)
		}
		return out, c.Journal.CommitOperation(opID)
	}

	res, execErr := c.Exec.Run(ctx, executor.Request{Command: out.Suggestion.Command, WorkDir: opts.WorkDir})
	out.ExecResult = &res
	out.Executed = !res.Interactive

	if res.Interactive {
		c.Journal.FailOperation(opID, fmt.Errorf("interactive command not spawned"))
		return out, nil
	}
	if execErr != nil {
		c.Journal.FailOperation(opID, execErr)
		return out, fmt.Errorf("command failed: %w", execErr)
	}
	if err := c.Journal.CommitOperation(opID); err != nil {
		return out, err
	}
	return out, nil
}

func (c *Core) planFor(ctx context.Context, text string) (plan.Plan, bool, error) {
	p, ok, err := c.Provider.SuggestPlan(ctx, text)
	if err != nil {
		return plan.Plan{}, false, err
	}
	return p, ok, nil
}

func (c *Core) runPlan(ctx context.Context, p plan.Plan, opts RequestOptions, out *Outcome) (*Outcome, error) {
	res, err := c.Orchestrator.Run(ctx, p, plan.Options{
		WorkDir: opts.WorkDir,
		DryRun:  opts.DryRun,
		Force:   opts.Force,
	})
	out.PlanResult = &res
	out.Executed = !opts.DryRun
	return out, err
}
