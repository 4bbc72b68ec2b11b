package grading

import (
	"context"
	"fmt"
	"runtime/debug"
	"strings"

	"go.uber.org/zap"

	"gradehouse/internal/criteria"
	"gradehouse/internal/logging"
	"gradehouse/internal/sandbox"
	"gradehouse/internal/template"
	"gradehouse/pkg/models"
)

// Grader executes one criteria tree against one submission. It is
// single-use: build it per pipeline run with the sandbox (if any) that
// run acquired.
type Grader struct {
	tmpl template.Template
	sb   *sandbox.Sandbox
}

// NewGrader binds a template and an optional sandbox. Pass a nil
// sandbox when the template does not require one.
func NewGrader(tmpl template.Template, sb *sandbox.Sandbox) *Grader {
	return &Grader{tmpl: tmpl, sb: sb}
}

// Grade runs every test of the tree and aggregates scores bottom-up.
// Individual test failures never abort the run; they grade as zero
// with a report explaining why.
func (g *Grader) Grade(ctx context.Context, tree *criteria.Tree, sub *models.Submission) (*Result, error) {
	if tree == nil || tree.Base == nil {
		return nil, fmt.Errorf("criteria tree has no base category")
	}

	result := &Result{
		Base:    g.gradeHolder(ctx, tree.Base, sub),
		Bonus:   g.gradeHolderMaybe(ctx, tree.Bonus, sub),
		Penalty: g.gradeHolderMaybe(ctx, tree.Penalty, sub),
	}
	result.Base.aggregate()
	if result.Bonus != nil {
		result.Bonus.aggregate()
	}
	if result.Penalty != nil {
		result.Penalty.aggregate()
	}
	result.FinalScore = finalize(tree, result.Base, result.Bonus, result.Penalty)
	return result, nil
}

func (g *Grader) gradeHolderMaybe(ctx context.Context, h *criteria.Holder, sub *models.Submission) *ResultNode {
	if h == nil {
		return nil
	}
	return g.gradeHolder(ctx, h, sub)
}

func (g *Grader) gradeHolder(ctx context.Context, h *criteria.Holder, sub *models.Submission) *ResultNode {
	node := &ResultNode{
		Name:           h.Name,
		Weight:         h.Weight,
		SubjectsWeight: h.SubjectsWeight,
		Mixed:          h.Mixed,
	}
	for _, t := range h.Tests {
		node.Tests = append(node.Tests, g.runTest(ctx, t, sub))
		node.testWeights = append(node.testWeights, t.Weight)
	}
	for _, child := range h.Subjects {
		node.Children = append(node.Children, g.gradeHolder(ctx, child, sub))
	}
	return node
}

// runTest resolves files, executes the test function, and converts
// every failure mode into a zero-score result. Panics inside a test
// are contained here so one broken test cannot take down the pipeline.
func (g *Grader) runTest(ctx context.Context, t *criteria.TestNode, sub *models.Submission) (result *TestResult) {
	result = &TestResult{
		TestName:    t.Name,
		SubjectName: t.SubjectName,
		Parameters:  t.Params,
		Executed:    true,
	}

	defer func() {
		if r := recover(); r != nil {
			logging.L().Error("rubric test panicked",
				zap.String("test", t.Name),
				zap.Any("panic", r),
				zap.ByteString("stack", debug.Stack()))
			result.Score = 0
			result.Report = fmt.Sprintf("test %s crashed: %v", t.Name, r)
		}
	}()

	if err := ctx.Err(); err != nil {
		result.Executed = false
		result.Report = "grading cancelled before this test ran"
		return result
	}

	files, missing := resolveFiles(t.Files, sub)
	if len(missing) > 0 {
		result.Report = fmt.Sprintf("required file(s) not in submission: %s",
			strings.Join(missing, ", "))
		return result
	}

	fn, ok := g.tmpl.GetTest(t.Name)
	if !ok {
		// Build validated names against the template, so a miss here
		// means the registry changed between build and grade.
		result.Report = fmt.Sprintf("test %s disappeared from template %s", t.Name, g.tmpl.Name())
		return result
	}

	var sb *sandbox.Sandbox
	if g.tmpl.RequiresSandbox() {
		sb = g.sb
	}

	out, err := fn(ctx, template.Input{
		Files:    files,
		Sandbox:  sb,
		Params:   t.Params,
		Language: sub.Language,
	})
	if err != nil {
		logging.L().Warn("rubric test errored",
			zap.String("test", t.Name), zap.Error(err))
		result.Report = fmt.Sprintf("test %s failed to execute: %v", t.Name, err)
		return result
	}

	result.Score = clamp(out.Score, 0, 100)
	result.Report = out.Report
	return result
}

// resolveFiles selects the submission files a test targets. Named
// targets that are absent are reported rather than silently dropped.
func resolveFiles(target criteria.FileTarget, sub *models.Submission) (map[string]string, []string) {
	if target.All {
		out := make(map[string]string, len(sub.Files))
		for name, content := range sub.Files {
			out[name] = content
		}
		return out, nil
	}

	out := make(map[string]string, len(target.Names))
	var missing []string
	for _, name := range target.Names {
		content, ok := sub.Files[name]
		if !ok {
			missing = append(missing, name)
			continue
		}
		out[name] = content
	}
	return out, missing
}
