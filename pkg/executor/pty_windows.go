//go:build windows

package executor

import (
	"context"
	"fmt"
)

// RunLive requires a pseudo-terminal, which this platform does not provide.
func (e *Executor) RunLive(ctx context.Context, req Request) (Result, error) {
	return Result{Command: req.Command, ExitCode: -1}, fmt.Errorf("live terminal mode is not supported on windows")
}
