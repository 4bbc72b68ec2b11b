// Package pipeline sequences one grading run as an ordered list of
// steps with an append-only execution log.
package pipeline

import (
	"context"
	"fmt"
	"runtime/debug"
	"time"

	"go.uber.org/zap"

	"gradehouse/internal/criteria"
	"gradehouse/internal/grading"
	"gradehouse/internal/logging"
	"gradehouse/internal/metrics"
	"gradehouse/internal/sandbox"
	"gradehouse/internal/template"
	"gradehouse/pkg/models"
)

// Status of a step or of the whole execution.
type Status string

const (
	StatusPending     Status = ""
	StatusRunning     Status = "running"
	StatusSuccess     Status = "success"
	StatusFailed      Status = "failed"
	StatusInterrupted Status = "interrupted"
)

// StepResult is one entry of the execution log. Entries are appended
// as steps run and never rewritten.
type StepResult struct {
	Step      string        `json:"step"`
	Status    Status        `json:"status"`
	StartedAt time.Time     `json:"started_at"`
	Elapsed   time.Duration `json:"elapsed"`
	Error     string        `json:"error,omitempty"`
}

// Execution is the mutable state threaded through the steps of one
// grading run. Steps read what earlier steps produced and write what
// later steps consume.
type Execution struct {
	Submission   *models.Submission
	RubricConfig *criteria.Config

	Template template.Template
	Tree     *criteria.Tree
	Sandbox  *sandbox.Sandbox

	GradeResult *grading.Result
	Focus       *grading.FocusReport
	Feedback    string

	Steps     []StepResult
	Status    Status
	FailedAt  string
	StartedAt time.Time
}

// Step is one stage of the pipeline. A returned error fails the step
// and short-circuits the run.
type Step interface {
	Name() string
	Run(ctx context.Context, ex *Execution) error
}

// Report is the synthesized outcome returned to callers and persisted.
type Report struct {
	SubmissionID string                `json:"submission_id"`
	Status       Status                `json:"status"`
	Score        float64               `json:"score"`
	Feedback     string                `json:"feedback,omitempty"`
	Focus        *grading.FocusReport  `json:"focus,omitempty"`
	Tests        []*grading.TestResult `json:"tests,omitempty"`
	Steps        []StepResult          `json:"steps"`
	FailedAtStep string                `json:"failed_at_step,omitempty"`
	Error        string                `json:"error,omitempty"`
}

// Run executes the steps in order against a fresh execution. The first
// failing step stops the run; a panic inside a step is recorded as that
// step's failure rather than crashing the process. The sandbox, if one
// was acquired, is always released.
func Run(ctx context.Context, steps []Step, ex *Execution, mgr *sandbox.Manager) *Report {
	ex.Status = StatusRunning
	ex.StartedAt = time.Now()

	m := metrics.Get()
	m.GradingsInFlight.Inc()
	defer m.GradingsInFlight.Dec()

	defer func() {
		if ex.Sandbox != nil && mgr != nil {
			mgr.ReleaseSandbox(context.Background(), ex.Submission.Language, ex.Sandbox)
			ex.Sandbox = nil
		}
	}()

	for _, step := range steps {
		entry := StepResult{Step: step.Name(), Status: StatusRunning, StartedAt: time.Now()}

		err := runStep(ctx, step, ex)

		entry.Elapsed = time.Since(entry.StartedAt)
		m.StepDuration.WithLabelValues(step.Name()).Observe(entry.Elapsed.Seconds())

		if err != nil {
			entry.Error = err.Error()
			if ctx.Err() != nil {
				entry.Status = StatusInterrupted
				ex.Status = StatusInterrupted
			} else {
				entry.Status = StatusFailed
				ex.Status = StatusFailed
			}
			ex.FailedAt = step.Name()
			ex.Steps = append(ex.Steps, entry)
			m.StepFailures.WithLabelValues(step.Name()).Inc()
			logging.L().Warn("pipeline step failed",
				zap.String("submission", ex.Submission.ID),
				zap.String("step", step.Name()),
				zap.Error(err))
			break
		}

		entry.Status = StatusSuccess
		ex.Steps = append(ex.Steps, entry)
	}

	if ex.Status == StatusRunning {
		ex.Status = StatusSuccess
	}

	elapsed := time.Since(ex.StartedAt)
	m.GradingsTotal.WithLabelValues(string(ex.Submission.Language), string(ex.Status)).Inc()
	m.GradingDuration.WithLabelValues(string(ex.Submission.Language)).Observe(elapsed.Seconds())

	return synthesize(ex)
}

// runStep isolates panics so a broken step fails like any other error.
func runStep(ctx context.Context, step Step, ex *Execution) (err error) {
	defer func() {
		if r := recover(); r != nil {
			logging.L().Error("pipeline step panicked",
				zap.String("step", step.Name()),
				zap.Any("panic", r),
				zap.ByteString("stack", debug.Stack()))
			err = fmt.Errorf("step %s panicked: %v", step.Name(), r)
		}
	}()
	return step.Run(ctx, ex)
}

func synthesize(ex *Execution) *Report {
	report := &Report{
		SubmissionID: ex.Submission.ID,
		Status:       ex.Status,
		Steps:        ex.Steps,
		FailedAtStep: ex.FailedAt,
	}
	if ex.GradeResult != nil {
		report.Score = ex.GradeResult.FinalScore
		report.Tests = ex.GradeResult.AllTests()
	}
	report.Feedback = ex.Feedback
	report.Focus = ex.Focus
	if ex.FailedAt != "" {
		for _, step := range ex.Steps {
			if step.Step == ex.FailedAt {
				report.Error = step.Error
			}
		}
	}
	return report
}
