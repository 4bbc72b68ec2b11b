package pipeline

import (
	"context"
	"fmt"

	"gradehouse/internal/criteria"
	"gradehouse/internal/feedback"
	"gradehouse/internal/grading"
	"gradehouse/internal/sandbox"
	"gradehouse/internal/template"
	"gradehouse/pkg/models"
)

// Step names, in execution order.
const (
	StepBootstrap    = "BOOTSTRAP"
	StepPreflight    = "PRE_FLIGHT"
	StepLoadTemplate = "LOAD_TEMPLATE"
	StepBuildTree    = "BUILD_TREE"
	StepGrade        = "GRADE"
	StepFeedback     = "FEEDBACK"
	StepFocus        = "FOCUS"
	StepExport       = "EXPORT"
)

// Exporter persists a finished execution. Wired at the composition
// root; a nil exporter skips the step's work.
type Exporter interface {
	Export(ctx context.Context, ex *Execution) error
}

type bootstrapStep struct{}

func (bootstrapStep) Name() string { return StepBootstrap }

func (bootstrapStep) Run(_ context.Context, ex *Execution) error {
	sub := ex.Submission
	if sub == nil {
		return fmt.Errorf("no submission")
	}
	if sub.ID == "" {
		return fmt.Errorf("submission has no id")
	}
	if len(sub.Files) == 0 {
		return fmt.Errorf("submission %s has no files", sub.ID)
	}
	if _, err := models.ParseLanguage(string(sub.Language)); err != nil {
		return fmt.Errorf("submission %s: %w", sub.ID, err)
	}
	if ex.RubricConfig == nil {
		return fmt.Errorf("submission %s has no rubric", sub.ID)
	}
	return nil
}

type preflightStep struct {
	cfg      PreflightConfig
	mgr      *sandbox.Manager
	registry *template.Registry
}

func (preflightStep) Name() string { return StepPreflight }

// Run checks required files, acquires the run's sandbox, stages the
// submission into it, and runs the language's setup commands. The
// sandbox stays attached to the execution until the pipeline ends.
// Templates that grade from file contents alone get no sandbox, which
// is what lets language "none" submissions through.
func (s preflightStep) Run(ctx context.Context, ex *Execution) error {
	sub := ex.Submission
	checks := s.cfg[sub.Language]

	var missing []string
	for _, name := range checks.RequiredFiles {
		if _, ok := sub.Files[name]; !ok {
			missing = append(missing, name)
		}
	}
	if len(missing) > 0 {
		return &MissingFilesError{Files: missing}
	}

	tmpl, err := resolveTemplate(s.registry, ex.RubricConfig)
	if err != nil {
		// Unknown template; LOAD_TEMPLATE reports it. Nothing to set up.
		return nil
	}
	if !tmpl.RequiresSandbox() {
		return nil
	}
	if sub.Language == models.LangNone {
		return fmt.Errorf("template %q needs a sandbox but submission %s has no language", tmpl.Name(), sub.ID)
	}
	if s.mgr == nil {
		return fmt.Errorf("no sandbox manager configured")
	}

	sb, err := s.mgr.GetSandbox(sub.Language)
	if err != nil {
		return fmt.Errorf("acquire sandbox: %w", err)
	}
	ex.Sandbox = sb

	if err := sb.PrepareWorkdir(ctx, sub.Files); err != nil {
		return err
	}

	for _, cmd := range checks.SetupCommands {
		out, err := sb.RunCommand(ctx, cmd.Command, 0, "")
		if err != nil {
			return fmt.Errorf("setup command %q: %w", cmd.Label(), err)
		}
		if out.Category != sandbox.CategorySuccess {
			return &SetupError{Name: cmd.Name, Command: cmd.Command, Output: out}
		}
	}
	return nil
}

// defaultTemplateName backs rubrics that do not name a test library.
const defaultTemplateName = "io-basic"

func resolveTemplate(reg *template.Registry, cfg *criteria.Config) (template.Template, error) {
	name := cfg.TestLibrary
	if name == "" {
		name = defaultTemplateName
	}
	return reg.Get(name)
}

type loadTemplateStep struct {
	registry *template.Registry
}

func (loadTemplateStep) Name() string { return StepLoadTemplate }

func (s loadTemplateStep) Run(_ context.Context, ex *Execution) error {
	tmpl, err := resolveTemplate(s.registry, ex.RubricConfig)
	if err != nil {
		return err
	}
	ex.Template = tmpl
	return nil
}

type buildTreeStep struct{}

func (buildTreeStep) Name() string { return StepBuildTree }

func (buildTreeStep) Run(_ context.Context, ex *Execution) error {
	tree, err := criteria.Build(ex.RubricConfig, template.Catalog(ex.Template))
	if err != nil {
		return err
	}
	ex.Tree = tree
	return nil
}

type gradeStep struct{}

func (gradeStep) Name() string { return StepGrade }

func (gradeStep) Run(ctx context.Context, ex *Execution) error {
	grader := grading.NewGrader(ex.Template, ex.Sandbox)
	result, err := grader.Grade(ctx, ex.Tree, ex.Submission)
	if err != nil {
		return err
	}
	ex.GradeResult = result
	return nil
}

type feedbackStep struct {
	gen feedback.Generator
}

func (feedbackStep) Name() string { return StepFeedback }

func (s feedbackStep) Run(_ context.Context, ex *Execution) error {
	text, err := s.gen.Render(ex.Submission, ex.GradeResult, ex.Focus)
	if err != nil {
		return err
	}
	ex.Feedback = text
	return nil
}

type focusStep struct{}

func (focusStep) Name() string { return StepFocus }

func (focusStep) Run(_ context.Context, ex *Execution) error {
	ex.Focus = grading.BuildFocus(ex.GradeResult)
	return nil
}

type exportStep struct {
	sink Exporter
}

func (exportStep) Name() string { return StepExport }

func (s exportStep) Run(ctx context.Context, ex *Execution) error {
	if s.sink == nil {
		return nil
	}
	return s.sink.Export(ctx, ex)
}
