package runner_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/majak-build/majak/internal/core/ports"
	"github.com/majak-build/majak/internal/runner"
)

func TestDryRunReportsEverySuccessInStartOrder(t *testing.T) {
	d := runner.NewDryRun()
	assert.True(t, d.CanRunMore())

	require.NoError(t, d.StartCommand(context.Background(), ports.EdgeHandle(1), "ignored", false))
	require.NoError(t, d.StartCommand(context.Background(), ports.EdgeHandle(2), "ignored", false))

	res, ok := d.WaitForCommand()
	require.True(t, ok)
	assert.Equal(t, ports.EdgeHandle(1), res.Edge)
	assert.Equal(t, ports.ExitSuccess, res.Reason)

	res, ok = d.WaitForCommand()
	require.True(t, ok)
	assert.Equal(t, ports.EdgeHandle(2), res.Edge)

	_, ok = d.WaitForCommand()
	assert.False(t, ok)
}

func TestRealRunsAndCapturesOutput(t *testing.T) {
	r := runner.NewReal(2, 0, nil)
	require.NoError(t, r.StartCommand(context.Background(), ports.EdgeHandle(1), "echo hello", false))

	res, ok := r.WaitForCommand()
	require.True(t, ok)
	assert.Equal(t, ports.ExitSuccess, res.Reason)
	assert.Contains(t, string(res.Output), "hello")
}

func TestRealReportsFailureExitStatus(t *testing.T) {
	r := runner.NewReal(2, 0, nil)
	require.NoError(t, r.StartCommand(context.Background(), ports.EdgeHandle(1), "exit 1", false))

	res, ok := r.WaitForCommand()
	require.True(t, ok)
	assert.Equal(t, ports.ExitFailure, res.Reason)
}

func TestRealCanRunMoreRespectsParallelism(t *testing.T) {
	r := runner.NewReal(1, 0, nil)
	require.NoError(t, r.StartCommand(context.Background(), ports.EdgeHandle(1), "sleep 0.2", false))
	assert.False(t, r.CanRunMore(), "parallelism 1 with one in flight must not admit another")

	_, ok := r.WaitForCommand()
	require.True(t, ok)
}

func TestRealAbortInterruptsRunningCommand(t *testing.T) {
	r := runner.NewReal(2, 0, nil)
	require.NoError(t, r.StartCommand(context.Background(), ports.EdgeHandle(1), "sleep 5", false))
	r.Abort()

	res, ok := r.WaitForCommand()
	require.True(t, ok)
	assert.Equal(t, ports.ExitInterrupted, res.Reason)
}
