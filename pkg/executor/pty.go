//go:build !windows

package executor

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/exec"
	"syscall"
	"time"

	"github.com/creack/pty"
	"golang.org/x/term"
)

// RunLive executes the command on a pseudo-terminal with the user's own
// terminal attached, for approved commands that genuinely need one. Output
// is not captured; the result records only exit status and duration.
func (e *Executor) RunLive(ctx context.Context, req Request) (Result, error) {
	res := Result{Command: req.Command, ExitCode: -1}

	cmd := exec.Command(e.shell, "-c", req.Command)
	cmd.Dir = req.WorkDir
	if len(req.Env) > 0 {
		cmd.Env = req.Env
	}

	start := time.Now()
	ptmx, err := pty.Start(cmd)
	if err != nil {
		return res, fmt.Errorf("failed to start pty: %w", err)
	}
	defer ptmx.Close()

	if err := pty.InheritSize(os.Stdin, ptmx); err != nil {
		e.logger.Debug("failed to inherit terminal size: %v", err)
	}

	// Raw mode so keystrokes reach the child unmangled.
	oldState, err := term.MakeRaw(int(os.Stdin.Fd()))
	if err == nil {
		defer term.Restore(int(os.Stdin.Fd()), oldState)
	}

	go io.Copy(ptmx, os.Stdin)
	done := make(chan error, 1)
	go func() {
		io.Copy(os.Stdout, ptmx)
		done <- cmd.Wait()
	}()

	var runErr error
	select {
	case runErr = <-done:
	case <-ctx.Done():
		if cmd.Process != nil {
			cmd.Process.Signal(syscall.SIGTERM)
		}
		<-done
		runErr = ctx.Err()
	}

	res.Duration = time.Since(start)
	if runErr == nil {
		res.ExitCode = 0
		res.Success = true
		return res, nil
	}
	if exitErr, ok := runErr.(*exec.ExitError); ok {
		res.ExitCode = exitErr.ExitCode()
	}
	return res, runErr
}
