package sandbox

import (
	"context"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"gradehouse/internal/metrics"
	"gradehouse/pkg/models"
)

func newTestSandbox(t *testing.T, rt *fakeRuntime) *Sandbox {
	t.Helper()
	cfg := DefaultPoolConfig(models.LangPython)
	handle, err := rt.Create(context.Background(), ContainerSpec{Name: "test"})
	require.NoError(t, err)
	return newSandbox("sb-1", models.LangPython, handle, rt, cfg)
}

func TestPrepareWorkdirStagesEveryFile(t *testing.T) {
	rt := newFakeRuntime()
	var staged []string
	rt.execFn = func(_ string, spec ExecSpec) (ExecResult, error) {
		staged = append(staged, spec.Cmd)
		return ExecResult{ExitCode: 0}, nil
	}

	sb := newTestSandbox(t, rt)
	err := sb.PrepareWorkdir(context.Background(), map[string]string{
		"main.py":       "print('hi')",
		"pkg/helper.py": "x = 1",
	})
	require.NoError(t, err)
	assert.True(t, sb.WorkdirPrepared)
	assert.Len(t, staged, 2)
	for _, cmd := range staged {
		assert.Contains(t, cmd, "base64 -d")
		assert.Contains(t, cmd, "mkdir -p")
	}
}

func TestPrepareWorkdirRejectsEscapingPaths(t *testing.T) {
	rt := newFakeRuntime()
	sb := newTestSandbox(t, rt)

	for _, bad := range []string{"../outside.py", "/etc/passwd", "a/../../b"} {
		err := sb.PrepareWorkdir(context.Background(), map[string]string{bad: "x"})
		var staging *StagingError
		require.ErrorAs(t, err, &staging, "path %q", bad)
	}
}

func TestPrepareWorkdirReportsStagingFailure(t *testing.T) {
	rt := newFakeRuntime()
	rt.execFn = func(string, ExecSpec) (ExecResult, error) {
		return ExecResult{ExitCode: 1, Stderr: "disk full"}, nil
	}
	sb := newTestSandbox(t, rt)

	err := sb.PrepareWorkdir(context.Background(), map[string]string{"main.py": "x"})
	var staging *StagingError
	require.ErrorAs(t, err, &staging)
	assert.Equal(t, "main.py", staging.Path)
	assert.Equal(t, 1, staging.ExitCode)
	assert.False(t, sb.WorkdirPrepared)
}

func TestRunCommandClassifiesOutcome(t *testing.T) {
	rt := newFakeRuntime()
	rt.execFn = func(_ string, spec ExecSpec) (ExecResult, error) {
		return ExecResult{Stderr: "Traceback (most recent call last):", ExitCode: 1}, nil
	}
	sb := newTestSandbox(t, rt)

	out, err := sb.RunCommand(context.Background(), "python3 main.py", 0, "")
	require.NoError(t, err)
	assert.Equal(t, CategoryRuntime, out.Category)
	assert.Equal(t, 1, out.ExitCode)
}

func TestRunCommandTimeoutCategory(t *testing.T) {
	rt := newFakeRuntime()
	rt.execFn = func(string, ExecSpec) (ExecResult, error) {
		return ExecResult{ExitCode: 137, TimedOut: true}, nil
	}
	sb := newTestSandbox(t, rt)

	out, err := sb.RunCommand(context.Background(), "sleep 999", 0, "")
	require.NoError(t, err)
	assert.Equal(t, CategoryTimeout, out.Category)
}

func TestRunWithInputsJoinsLines(t *testing.T) {
	rt := newFakeRuntime()
	var gotStdin string
	rt.execFn = func(_ string, spec ExecSpec) (ExecResult, error) {
		gotStdin = spec.Stdin
		return ExecResult{Stdout: "ok", ExitCode: 0}, nil
	}
	sb := newTestSandbox(t, rt)

	out, err := sb.RunWithInputs(context.Background(), []string{"alice", "42"}, "python3 main.py")
	require.NoError(t, err)
	assert.Equal(t, "alice\n42\n", gotStdin)
	assert.Equal(t, CategorySuccess, out.Category)
	assert.True(t, strings.HasPrefix(out.Stdout, "ok"))
}

func TestRunCommandRecordsMetrics(t *testing.T) {
	rt := newFakeRuntime()
	rt.execFn = func(string, ExecSpec) (ExecResult, error) {
		return ExecResult{ExitCode: 0}, nil
	}
	sb := newTestSandbox(t, rt)

	counter := metrics.Get().CommandsTotal.WithLabelValues(string(models.LangPython), string(CategorySuccess))
	before := testutil.ToFloat64(counter)

	_, err := sb.RunCommand(context.Background(), "true", 0, "")
	require.NoError(t, err)

	assert.Equal(t, before+1, testutil.ToFloat64(counter))
}

func TestMakeRequestWithoutPort(t *testing.T) {
	rt := newFakeRuntime()
	sb := newTestSandbox(t, rt)

	_, err := sb.MakeRequest(context.Background(), "GET", "/", nil, nil, 0)
	assert.ErrorIs(t, err, ErrNoPortConfigured)
}
