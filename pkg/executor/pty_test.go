//go:build !windows

package executor

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRunLiveReportsExitStatus(t *testing.T) {
	e := testExecutor(t)

	res, err := e.RunLive(context.Background(), Request{Command: "true"})
	if err != nil && strings.Contains(err.Error(), "failed to start pty") {
		t.Skipf("no pty available: %v", err)
	}
	require.NoError(t, err)
	assert.True(t, res.Success)
	assert.Equal(t, 0, res.ExitCode)

	res, err = e.RunLive(context.Background(), Request{Command: "exit 7"})
	require.Error(t, err)
	assert.False(t, res.Success)
	assert.Equal(t, 7, res.ExitCode)
}
