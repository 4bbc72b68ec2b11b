// Package repository persists submissions, rubrics, and grading
// results behind narrow interfaces so handlers and the pipeline never
// touch GORM directly.
package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"gorm.io/gorm"

	"gradehouse/pkg/models"
)

// ErrNotFound is returned when a record does not exist.
var ErrNotFound = errors.New("record not found")

// SubmissionRepository stores student submissions.
type SubmissionRepository interface {
	Create(ctx context.Context, sub *models.Submission) error
	GetByID(ctx context.Context, id string) (*models.Submission, string, error)
	UpdateStatus(ctx context.Context, id, status string) error
	ListForUser(ctx context.Context, username string, limit, offset int) ([]models.SubmissionRecord, error)
}

// RubricRepository stores instructor rubrics keyed by assignment.
type RubricRepository interface {
	Upsert(ctx context.Context, rec *models.RubricRecord) error
	GetByAssignment(ctx context.Context, assignmentID string) (*models.RubricRecord, error)
}

// ResultRepository stores grading outcomes.
type ResultRepository interface {
	Create(ctx context.Context, rec *models.ResultRecord) error
	GetLatest(ctx context.Context, submissionID string) (*models.ResultRecord, error)
}

type submissionRepo struct {
	db *gorm.DB
}

// NewSubmissionRepository builds the GORM-backed submission store.
func NewSubmissionRepository(db *gorm.DB) SubmissionRepository {
	return &submissionRepo{db: db}
}

func (r *submissionRepo) Create(ctx context.Context, sub *models.Submission) error {
	files, err := json.Marshal(sub.Files)
	if err != nil {
		return fmt.Errorf("serialize submission files: %w", err)
	}
	rec := &models.SubmissionRecord{
		ID:           sub.ID,
		Username:     sub.Username,
		UserID:       sub.UserID,
		AssignmentID: sub.AssignmentID,
		Language:     string(sub.Language),
		Files:        string(files),
		Status:       models.StatusQueued,
	}
	return r.db.WithContext(ctx).Create(rec).Error
}

func (r *submissionRepo) GetByID(ctx context.Context, id string) (*models.Submission, string, error) {
	var rec models.SubmissionRecord
	if err := r.db.WithContext(ctx).First(&rec, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, "", ErrNotFound
		}
		return nil, "", err
	}

	files := map[string]string{}
	if rec.Files != "" {
		if err := json.Unmarshal([]byte(rec.Files), &files); err != nil {
			return nil, "", fmt.Errorf("deserialize submission files: %w", err)
		}
	}
	sub := &models.Submission{
		ID:           rec.ID,
		Username:     rec.Username,
		UserID:       rec.UserID,
		AssignmentID: rec.AssignmentID,
		Files:        files,
		Language:     models.Language(rec.Language),
	}
	return sub, rec.Status, nil
}

func (r *submissionRepo) UpdateStatus(ctx context.Context, id, status string) error {
	result := r.db.WithContext(ctx).
		Model(&models.SubmissionRecord{}).
		Where("id = ?", id).
		Update("status", status)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *submissionRepo) ListForUser(ctx context.Context, username string, limit, offset int) ([]models.SubmissionRecord, error) {
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	var recs []models.SubmissionRecord
	err := r.db.WithContext(ctx).
		Where("username = ?", username).
		Order("created_at DESC").
		Limit(limit).Offset(offset).
		Find(&recs).Error
	return recs, err
}

type rubricRepo struct {
	db *gorm.DB
}

// NewRubricRepository builds the GORM-backed rubric store.
func NewRubricRepository(db *gorm.DB) RubricRepository {
	return &rubricRepo{db: db}
}

func (r *rubricRepo) Upsert(ctx context.Context, rec *models.RubricRecord) error {
	var existing models.RubricRecord
	err := r.db.WithContext(ctx).
		First(&existing, "assignment_id = ?", rec.AssignmentID).Error
	switch {
	case err == nil:
		existing.TemplateName = rec.TemplateName
		existing.Config = rec.Config
		existing.Format = rec.Format
		return r.db.WithContext(ctx).Save(&existing).Error
	case errors.Is(err, gorm.ErrRecordNotFound):
		return r.db.WithContext(ctx).Create(rec).Error
	default:
		return err
	}
}

func (r *rubricRepo) GetByAssignment(ctx context.Context, assignmentID string) (*models.RubricRecord, error) {
	var rec models.RubricRecord
	if err := r.db.WithContext(ctx).First(&rec, "assignment_id = ?", assignmentID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &rec, nil
}

type resultRepo struct {
	db *gorm.DB
}

// NewResultRepository builds the GORM-backed result store.
func NewResultRepository(db *gorm.DB) ResultRepository {
	return &resultRepo{db: db}
}

func (r *resultRepo) Create(ctx context.Context, rec *models.ResultRecord) error {
	return r.db.WithContext(ctx).Create(rec).Error
}

func (r *resultRepo) GetLatest(ctx context.Context, submissionID string) (*models.ResultRecord, error) {
	var rec models.ResultRecord
	err := r.db.WithContext(ctx).
		Where("submission_id = ?", submissionID).
		Order("created_at DESC").
		First(&rec).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &rec, nil
}
