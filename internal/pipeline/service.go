package pipeline

import (
	"context"

	"gradehouse/internal/criteria"
	"gradehouse/internal/feedback"
	"gradehouse/internal/sandbox"
	"gradehouse/internal/template"
	"gradehouse/pkg/models"
)

// Service assembles and runs grading pipelines. One service instance
// serves the whole process; each Grade call gets a fresh execution.
type Service struct {
	Registry  *template.Registry
	Manager   *sandbox.Manager
	Preflight PreflightConfig
	Feedback  feedback.Generator
	Exporter  Exporter
}

// NewService wires a pipeline service with the default plain-text
// feedback renderer.
func NewService(registry *template.Registry, mgr *sandbox.Manager, preflight PreflightConfig, exporter Exporter) *Service {
	return &Service{
		Registry:  registry,
		Manager:   mgr,
		Preflight: preflight,
		Feedback:  &feedback.PlainText{},
		Exporter:  exporter,
	}
}

// Steps builds the standard step sequence.
func (s *Service) Steps() []Step {
	return []Step{
		bootstrapStep{},
		preflightStep{cfg: s.Preflight, mgr: s.Manager, registry: s.Registry},
		loadTemplateStep{registry: s.Registry},
		buildTreeStep{},
		gradeStep{},
		feedbackStep{gen: s.Feedback},
		focusStep{},
		exportStep{sink: s.Exporter},
	}
}

// Grade runs the full pipeline for one submission and rubric.
func (s *Service) Grade(ctx context.Context, sub *models.Submission, rubric *criteria.Config) *Report {
	ex := &Execution{Submission: sub, RubricConfig: rubric}
	return Run(ctx, s.Steps(), ex, s.Manager)
}
