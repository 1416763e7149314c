// Package executor runs approved shell commands with captured output,
// timeout enforcement, and cancellation. It never decides whether a command
// should run; the gate does that before anything reaches this package.
package executor

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os/exec"
	"strings"
	"sync"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/angela-cli/angela/pkg/logging"
	"github.com/angela-cli/angela/pkg/safety"
)

// DefaultTimeout bounds commands that do not specify their own.
const DefaultTimeout = 2 * time.Minute

// termGracePeriod is how long a process gets between SIGTERM and SIGKILL.
const termGracePeriod = 3 * time.Second

// Request describes one command execution.
type Request struct {
	Command string
	WorkDir string
	Timeout time.Duration
	Env     []string
	// Stream receives output lines as they are produced; nil disables.
	Stream func(line string)
	// CheckSafety re-classifies the command and refuses refusal-pattern
	// matches before spawning, for callers that bypass the gate (journaled
	// inverse commands, direct invocations).
	CheckSafety bool
}

// Result is the outcome of one command execution.
type Result struct {
	Command  string        `json:"command"`
	Stdout   string        `json:"stdout"`
	Stderr   string        `json:"stderr"`
	ExitCode int           `json:"exit_code"`
	Duration time.Duration `json:"duration"`
	Success  bool          `json:"success"`
	TimedOut bool          `json:"timed_out"`
	// Interactive is set when the command was recognized as needing a
	// terminal and was not spawned; Recommendation explains what to do.
	Interactive    bool   `json:"interactive,omitempty"`
	Recommendation string `json:"recommendation,omitempty"`
	// Analysis is a diagnosis derived from the error output on failure.
	Analysis *Analysis `json:"analysis,omitempty"`
}

// Executor runs shell commands through `sh -c`.
type Executor struct {
	logger *logging.Logger
	shell  string
	safety *safety.Classifier
}

// New creates an executor that logs through the given logger.
func New(logger *logging.Logger) *Executor {
	return &Executor{logger: logger, shell: "sh", safety: safety.NewClassifier()}
}

// Run executes the command and blocks until it exits, times out, or the
// context is cancelled. Cancellation and failures still return a populated
// Result alongside the error.
func (e *Executor) Run(ctx context.Context, req Request) (Result, error) {
	res := Result{Command: req.Command, ExitCode: -1}

	if req.CheckSafety {
		if cls := e.safety.Classify(req.Command); cls.Refused {
			e.logger.Warn("refusing command: %s", req.Command)
			return res, fmt.Errorf("refused: %s", cls.RefusalMessage)
		}
	}

	if rec, ok := interactiveRecommendation(req.Command); ok {
		res.Interactive = true
		res.Recommendation = rec
		e.logger.Info("skipping interactive command: %s", req.Command)
		return res, nil
	}

	timeout := req.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}

	cmd := exec.Command(e.shell, "-c", req.Command)
	cmd.Dir = req.WorkDir
	if len(req.Env) > 0 {
		cmd.Env = req.Env
	}
	// Own process group so the whole pipeline can be signalled at once.
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return res, fmt.Errorf("failed to create stdout pipe: %w", err)
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return res, fmt.Errorf("failed to create stderr pipe: %w", err)
	}

	start := time.Now()
	if err := cmd.Start(); err != nil {
		res.Duration = time.Since(start)
		return res, fmt.Errorf("failed to start command: %w", err)
	}
	e.logger.Debug("started command: %s (pid %d)", req.Command, cmd.Process.Pid)

	var outBuf, errBuf strings.Builder
	var bufMu sync.Mutex
	g := new(errgroup.Group)
	g.Go(func() error { return drain(stdout, &outBuf, &bufMu, req.Stream) })
	g.Go(func() error { return drain(stderr, &errBuf, &bufMu, req.Stream) })

	waitErr := make(chan error, 1)
	go func() {
		g.Wait()
		waitErr <- cmd.Wait()
	}()

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	var runErr error
	select {
	case err := <-waitErr:
		runErr = err
	case <-timer.C:
		res.TimedOut = true
		e.terminate(cmd)
		runErr = <-waitErr
		if runErr == nil {
			runErr = fmt.Errorf("command timed out after %s", timeout)
		} else {
			runErr = fmt.Errorf("command timed out after %s: %w", timeout, runErr)
		}
	case <-ctx.Done():
		e.terminate(cmd)
		<-waitErr
		runErr = ctx.Err()
	}

	res.Duration = time.Since(start)
	bufMu.Lock()
	res.Stdout = outBuf.String()
	res.Stderr = errBuf.String()
	bufMu.Unlock()

	if runErr == nil {
		res.ExitCode = 0
		res.Success = true
		e.logger.Debug("command succeeded in %s: %s", res.Duration, req.Command)
		return res, nil
	}

	var exitErr *exec.ExitError
	if errors.As(runErr, &exitErr) {
		res.ExitCode = exitErr.ExitCode()
	}
	res.Analysis = analyzeFailure(req.Command, res.Stderr, res.ExitCode)
	e.logger.Warn("command failed (exit %d) in %s: %s", res.ExitCode, res.Duration, req.Command)
	return res, runErr
}

// terminate signals the process group with SIGTERM, then SIGKILL after the
// grace period if it is still alive.
func (e *Executor) terminate(cmd *exec.Cmd) {
	if cmd.Process == nil {
		return
	}
	pgid := -cmd.Process.Pid
	syscall.Kill(pgid, syscall.SIGTERM)

	done := make(chan struct{})
	go func() {
		for {
			// Signal 0 probes for liveness without delivering anything.
			if err := syscall.Kill(pgid, syscall.Signal(0)); err != nil {
				close(done)
				return
			}
			time.Sleep(50 * time.Millisecond)
		}
	}()
	select {
	case <-done:
	case <-time.After(termGracePeriod):
		syscall.Kill(pgid, syscall.SIGKILL)
	}
}

func drain(r io.Reader, buf *strings.Builder, mu *sync.Mutex, stream func(string)) error {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := scanner.Text()
		mu.Lock()
		buf.WriteString(line)
		buf.WriteByte('\n')
		mu.Unlock()
		if stream != nil {
			stream(line)
		}
	}
	return scanner.Err()
}
