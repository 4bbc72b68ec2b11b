package pipeline

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"gradehouse/internal/criteria"
	"gradehouse/internal/sandbox"
	"gradehouse/internal/template"
	"gradehouse/pkg/models"
)

// memRuntime satisfies sandbox.Runtime for pipeline tests.
type memRuntime struct {
	mu         sync.Mutex
	nextID     int
	containers map[string]bool
}

func newMemRuntime() *memRuntime {
	return &memRuntime{containers: make(map[string]bool)}
}

func (m *memRuntime) Create(context.Context, sandbox.ContainerSpec) (sandbox.Handle, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nextID++
	id := fmt.Sprintf("mem-%d", m.nextID)
	m.containers[id] = true
	return sandbox.Handle{ID: id}, nil
}

func (m *memRuntime) Exec(_ context.Context, id string, _ sandbox.ExecSpec) (sandbox.ExecResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.containers[id] {
		return sandbox.ExecResult{}, fmt.Errorf("no such container %s", id)
	}
	return sandbox.ExecResult{ExitCode: 0}, nil
}

func (m *memRuntime) Destroy(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.containers, id)
	return nil
}

func (m *memRuntime) ListLabeled(context.Context, string) ([]string, error) { return nil, nil }
func (m *memRuntime) Close() error                                         { return nil }

type recordingExporter struct {
	exported *Execution
}

func (r *recordingExporter) Export(_ context.Context, ex *Execution) error {
	r.exported = ex
	return nil
}

func newTestManager(t *testing.T) *sandbox.Manager {
	t.Helper()
	cfg := sandbox.DefaultPoolConfig(models.LangPython)
	cfg.PoolSize = 1
	cfg.ScaleLimit = 2
	mgr, err := sandbox.NewManager(context.Background(), sandbox.ManagerConfig{
		MonitorInterval: time.Hour,
		Pools: map[models.Language]sandbox.PoolConfig{
			models.LangPython: cfg,
		},
	}, newMemRuntime())
	require.NoError(t, err)
	t.Cleanup(func() { mgr.Shutdown(context.Background()) })
	return mgr
}

func pythonSubmission(files map[string]string) *models.Submission {
	return &models.Submission{
		ID:       "sub-1",
		Username: "alice",
		Language: models.LangPython,
		Files:    files,
	}
}

func fileContainsRubric() *criteria.Config {
	return &criteria.Config{
		TestLibrary: "io-basic",
		Base: &criteria.CategoryConfig{
			Weight: 100,
			Tests: []criteria.TestConfig{
				{
					Name: "file_contains",
					File: "main.py",
					Parameters: map[string]interface{}{
						"needle": "print",
					},
				},
			},
		},
	}
}

func TestPipelineSucceedsEndToEnd(t *testing.T) {
	mgr := newTestManager(t)
	exporter := &recordingExporter{}
	svc := NewService(template.DefaultRegistry(), mgr, PreflightConfig{}, exporter)

	report := svc.Grade(context.Background(),
		pythonSubmission(map[string]string{"main.py": "print('hi')"}),
		fileContainsRubric())

	assert.Equal(t, StatusSuccess, report.Status)
	assert.Equal(t, 100.0, report.Score)
	assert.Empty(t, report.FailedAtStep)
	assert.NotEmpty(t, report.Feedback)
	require.NotNil(t, exporter.exported)

	require.Len(t, report.Steps, 8)
	for _, step := range report.Steps {
		assert.Equal(t, StatusSuccess, step.Status, step.Step)
	}

	// The run's sandbox must be back out of the active set.
	pool, ok := mgr.Pool(models.LangPython)
	require.True(t, ok)
	assert.Equal(t, 0, pool.Stats().Active)
}

// textOnlyTemplate grades from file contents alone, no container.
type textOnlyTemplate struct{}

func (textOnlyTemplate) Name() string          { return "text-only" }
func (textOnlyTemplate) Description() string   { return "sandbox-free source checks" }
func (textOnlyTemplate) RequiresSandbox() bool { return false }
func (textOnlyTemplate) Stop()                 {}

func (textOnlyTemplate) GetTest(name string) (template.TestFunc, bool) {
	if name != "has_print" {
		return nil, false
	}
	return func(_ context.Context, in template.Input) (template.Result, error) {
		for _, content := range in.Files {
			if strings.Contains(content, "print") {
				return template.Result{Score: 100, Report: "found a print call"}, nil
			}
		}
		return template.Result{Report: "no print call"}, nil
	}, true
}

func TestPipelineGradesWithoutSandboxForLanguageNone(t *testing.T) {
	reg := template.NewRegistry()
	require.NoError(t, reg.Register(textOnlyTemplate{}))
	svc := NewService(reg, nil, PreflightConfig{}, nil)

	rubric := &criteria.Config{
		TestLibrary: "text-only",
		Base: &criteria.CategoryConfig{
			Weight: 100,
			Tests:  []criteria.TestConfig{{Name: "has_print", File: "notes.txt"}},
		},
	}
	sub := &models.Submission{
		ID:       "sub-none",
		Username: "alice",
		Language: models.LangNone,
		Files:    map[string]string{"notes.txt": "print('hi')"},
	}

	report := svc.Grade(context.Background(), sub, rubric)

	assert.Equal(t, StatusSuccess, report.Status, report.Error)
	assert.Equal(t, 100.0, report.Score)
	assert.Empty(t, report.FailedAtStep)
}

func TestPipelineRejectsSandboxTemplateForLanguageNone(t *testing.T) {
	svc := NewService(template.DefaultRegistry(), nil, PreflightConfig{}, nil)

	sub := &models.Submission{
		ID:       "sub-none",
		Username: "alice",
		Language: models.LangNone,
		Files:    map[string]string{"main.py": "print('hi')"},
	}

	report := svc.Grade(context.Background(), sub, fileContainsRubric())

	assert.Equal(t, StatusFailed, report.Status)
	assert.Equal(t, StepPreflight, report.FailedAtStep)
	assert.Contains(t, report.Error, "io-basic")
}

func TestPipelinePreflightMissingFiles(t *testing.T) {
	svc := NewService(template.DefaultRegistry(), nil, PreflightConfig{
		models.LangPython: {RequiredFiles: []string{"main.py"}},
	}, nil)

	report := svc.Grade(context.Background(),
		pythonSubmission(map[string]string{"other.py": "x = 1"}),
		fileContainsRubric())

	assert.Equal(t, StatusFailed, report.Status)
	assert.Equal(t, StepPreflight, report.FailedAtStep)
	assert.Contains(t, report.Error, "main.py")
}

func TestPipelineShortCircuitsAfterFailure(t *testing.T) {
	svc := NewService(template.DefaultRegistry(), nil, PreflightConfig{
		models.LangPython: {RequiredFiles: []string{"main.py"}},
	}, nil)

	report := svc.Grade(context.Background(),
		pythonSubmission(map[string]string{"other.py": "x = 1"}),
		fileContainsRubric())

	// BOOTSTRAP succeeded, PRE_FLIGHT failed, nothing after it ran.
	require.Len(t, report.Steps, 2)
	assert.Equal(t, StepBootstrap, report.Steps[0].Step)
	assert.Equal(t, StatusSuccess, report.Steps[0].Status)
	assert.Equal(t, StepPreflight, report.Steps[1].Step)
	assert.Equal(t, StatusFailed, report.Steps[1].Status)
}

func TestPipelineFailsOnUnknownRubricTest(t *testing.T) {
	mgr := newTestManager(t)
	svc := NewService(template.DefaultRegistry(), mgr, PreflightConfig{}, nil)

	rubric := &criteria.Config{
		Base: &criteria.CategoryConfig{
			Weight: 100,
			Tests:  []criteria.TestConfig{{Name: "no_such_test"}},
		},
	}

	report := svc.Grade(context.Background(),
		pythonSubmission(map[string]string{"main.py": "print('hi')"}),
		rubric)

	assert.Equal(t, StatusFailed, report.Status)
	assert.Equal(t, StepBuildTree, report.FailedAtStep)
	assert.Contains(t, report.Error, "no_such_test")

	pool, ok := mgr.Pool(models.LangPython)
	require.True(t, ok)
	assert.Equal(t, 0, pool.Stats().Active, "sandbox released on failure path")
}

func TestPipelineRejectsInvalidSubmission(t *testing.T) {
	svc := NewService(template.DefaultRegistry(), nil, PreflightConfig{}, nil)

	report := svc.Grade(context.Background(),
		pythonSubmission(map[string]string{}),
		fileContainsRubric())

	assert.Equal(t, StatusFailed, report.Status)
	assert.Equal(t, StepBootstrap, report.FailedAtStep)
}

type panicStep struct{}

func (panicStep) Name() string                          { return "EXPLODE" }
func (panicStep) Run(context.Context, *Execution) error { panic("step bug") }

func TestPipelineContainsStepPanics(t *testing.T) {
	ex := &Execution{
		Submission:   pythonSubmission(map[string]string{"main.py": "x"}),
		RubricConfig: fileContainsRubric(),
	}

	report := Run(context.Background(), []Step{bootstrapStep{}, panicStep{}}, ex, nil)

	assert.Equal(t, StatusFailed, report.Status)
	assert.Equal(t, "EXPLODE", report.FailedAtStep)
	assert.Contains(t, report.Error, "panicked")
}

func TestPipelineInterruptedOnCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	cancelAware := stepFunc{"CANCEL_CHECK", func(ctx context.Context, _ *Execution) error {
		return ctx.Err()
	}}
	ex := &Execution{
		Submission:   pythonSubmission(map[string]string{"main.py": "x"}),
		RubricConfig: fileContainsRubric(),
	}

	report := Run(ctx, []Step{bootstrapStep{}, cancelAware}, ex, nil)
	assert.Equal(t, StatusInterrupted, report.Status)
}

type stepFunc struct {
	name string
	fn   func(context.Context, *Execution) error
}

func (s stepFunc) Name() string { return s.name }

func (s stepFunc) Run(ctx context.Context, ex *Execution) error { return s.fn(ctx, ex) }
