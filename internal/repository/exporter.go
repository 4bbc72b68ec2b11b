package repository

import (
	"context"
	"encoding/json"
	"fmt"

	"gradehouse/internal/pipeline"
	"gradehouse/pkg/models"
)

// ResultExporter persists a finished pipeline execution as the EXPORT
// step. It writes the result record and flips the submission status.
type ResultExporter struct {
	Results     ResultRepository
	Submissions SubmissionRepository
	Cache       *StatusCache
}

// Export satisfies the pipeline's export hook.
func (e *ResultExporter) Export(ctx context.Context, ex *pipeline.Execution) error {
	rec := &models.ResultRecord{
		SubmissionID: ex.Submission.ID,
		FailedStep:   ex.FailedAt,
	}
	if ex.GradeResult != nil {
		rec.FinalScore = ex.GradeResult.FinalScore
		tree, err := json.Marshal(ex.GradeResult)
		if err != nil {
			return fmt.Errorf("serialize result tree: %w", err)
		}
		rec.ResultTree = string(tree)
	}
	rec.Feedback = ex.Feedback
	for _, step := range ex.Steps {
		if step.Step == ex.FailedAt && step.Error != "" {
			rec.Error = step.Error
		}
	}

	if err := e.Results.Create(ctx, rec); err != nil {
		return err
	}

	status := models.StatusGraded
	if ex.FailedAt != "" {
		status = models.StatusFailed
	}
	if err := e.Submissions.UpdateStatus(ctx, ex.Submission.ID, status); err != nil {
		return err
	}
	if e.Cache != nil {
		e.Cache.Set(ctx, ex.Submission.ID, status)
	}
	return nil
}

// ExportFailure records a run that never reached the EXPORT step. The
// grading worker calls this so failed runs are queryable too.
func (e *ResultExporter) ExportFailure(ctx context.Context, submissionID string, report *pipeline.Report) error {
	rec := &models.ResultRecord{
		SubmissionID: submissionID,
		FinalScore:   report.Score,
		Feedback:     report.Feedback,
		FailedStep:   report.FailedAtStep,
		Error:        report.Error,
	}
	if err := e.Results.Create(ctx, rec); err != nil {
		return err
	}
	if err := e.Submissions.UpdateStatus(ctx, submissionID, models.StatusFailed); err != nil {
		return err
	}
	if e.Cache != nil {
		e.Cache.Set(ctx, submissionID, models.StatusFailed)
	}
	return nil
}
