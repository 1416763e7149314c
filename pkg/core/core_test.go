package core

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/angela-cli/angela/pkg/gate"
	"github.com/angela-cli/angela/pkg/journal"
	"github.com/angela-cli/angela/pkg/plan"
	"github.com/angela-cli/angela/pkg/safety"
	"github.com/angela-cli/angela/pkg/suggest"
)

type approvingPrompter struct{ answer bool }

func (p approvingPrompter) Confirm(gate.Request) (bool, error) { return p.answer, nil }

type planProvider struct{ p plan.Plan }

func (pp planProvider) Suggest(context.Context, string) (suggest.Suggestion, error) {
	return suggest.Suggestion{}, assert.AnError
}

func (pp planProvider) SuggestPlan(context.Context, string) (plan.Plan, bool, error) {
	return pp.p, true, nil
}

func openCore(t *testing.T, opts ...Option) *Core {
	t.Helper()
	base := []Option{
		WithRoot(t.TempDir()),
		WithSilentLogger(),
		WithPrompter(approvingPrompter{answer: true}),
		WithWorkDir(t.TempDir()),
	}
	c, err := Open(append(base, opts...)...)
	require.NoError(t, err)
	t.Cleanup(func() { c.Close() })
	return c
}

func TestHandleRequestExecutesAndJournals(t *testing.T) {
	c := openCore(t)

	out, err := c.HandleRequest(context.Background(), "where am i", RequestOptions{})
	require.NoError(t, err)
	assert.Equal(t, "pwd", out.Suggestion.Command)
	assert.True(t, out.Executed)
	require.NotNil(t, out.ExecResult)
	assert.True(t, out.ExecResult.Success)

	op, err := c.Journal.Lookup(out.OperationID)
	require.NoError(t, err)
	assert.Equal(t, journal.StatusCommitted, op.Status)
	assert.False(t, op.CanRollback)
}

func TestSuggestOnlySkipsExecution(t *testing.T) {
	c := openCore(t)

	out, err := c.HandleRequest(context.Background(), "where am i", RequestOptions{SuggestOnly: true})
	require.NoError(t, err)
	assert.Equal(t, "pwd", out.Suggestion.Command)
	assert.Equal(t, safety.RiskSafe, out.Classification.Risk)
	assert.False(t, out.Executed)

	ops, err := c.Journal.RecentOperations(5)
	require.NoError(t, err)
	assert.Empty(t, ops)
}

func TestDryRunPresentsWithoutExecuting(t *testing.T) {
	c := openCore(t)

	out, err := c.HandleRequest(context.Background(), "", RequestOptions{
		Command: "rm stale.txt", DryRun: true,
	})
	require.NoError(t, err)
	assert.Equal(t, gate.PresentOnly, out.Decision)
	assert.False(t, out.Executed)
}

func TestRefusedCommandErrors(t *testing.T) {
	c := openCore(t)

	_, err := c.HandleRequest(context.Background(), "", RequestOptions{
		Command: "rm -rf /", Force: true,
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "refused")
}

func TestDeclinedConfirmationErrors(t *testing.T) {
	c := openCore(t, WithPrompter(approvingPrompter{answer: false}))

	_, err := c.HandleRequest(context.Background(), "", RequestOptions{
		Command: "sed -i s/a/b/ somefile",
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "declined")
}

func TestFailedCommandJournaledAsFailed(t *testing.T) {
	c := openCore(t)

	out, err := c.HandleRequest(context.Background(), "", RequestOptions{
		Command: "cat /definitely/not/here",
	})
	require.Error(t, err)
	require.NotZero(t, out.OperationID)

	op, lookupErr := c.Journal.Lookup(out.OperationID)
	require.NoError(t, lookupErr)
	assert.Equal(t, journal.StatusFailed, op.Status)
}

func TestPlanRequestsGoThroughOrchestrator(t *testing.T) {
	work := t.TempDir()
	p := plan.Plan{
		Goal: "two echoes",
		Steps: []plan.Step{
			{ID: "one", Type: plan.StepCommand, Command: "echo one"},
			{ID: "two", Type: plan.StepCommand, Command: "echo two", Dependencies: []string{"one"}},
		},
	}
	c := openCore(t, WithProvider(planProvider{p: p}), WithWorkDir(work))

	out, err := c.HandleRequest(context.Background(), "do two things", RequestOptions{WorkDir: work})
	require.NoError(t, err)
	require.NotNil(t, out.PlanResult)
	assert.Equal(t, journal.TxCommitted, out.PlanResult.Status)
	assert.Len(t, out.PlanResult.Steps, 2)
}

func TestInteractiveCommandReturnsRecommendation(t *testing.T) {
	c := openCore(t)

	out, err := c.HandleRequest(context.Background(), "", RequestOptions{Command: "vim notes.txt", Force: true})
	require.NoError(t, err)
	assert.False(t, out.Executed)
	require.NotNil(t, out.ExecResult)
	assert.True(t, out.ExecResult.Interactive)
	assert.NotEmpty(t, out.ExecResult.Recommendation)
}
