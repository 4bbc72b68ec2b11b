// Package handlers exposes the grading service over HTTP.
package handlers

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"gradehouse/internal/criteria"
	"gradehouse/internal/db"
	"gradehouse/internal/logging"
	"gradehouse/internal/pipeline"
	"gradehouse/internal/repository"
	"gradehouse/internal/template"
	"gradehouse/pkg/models"
)

// Handler carries the dependencies of the HTTP API.
type Handler struct {
	Service  *pipeline.Service
	Registry *template.Registry
	Database *db.Database

	Submissions repository.SubmissionRepository
	Rubrics     repository.RubricRepository
	Results     repository.ResultRepository
	Cache       *repository.StatusCache
	Exporter    *repository.ResultExporter

	GradingTimeout time.Duration
}

// Register mounts all routes on the engine.
func (h *Handler) Register(r *gin.Engine) {
	r.GET("/healthz", h.Health)
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	api := r.Group("/api")
	{
		api.POST("/submissions", h.CreateSubmission)
		api.GET("/submissions/:id", h.GetSubmission)
		api.GET("/submissions", h.ListSubmissions)
		api.POST("/rubrics", h.UpsertRubric)
		api.GET("/templates", h.ListTemplates)
	}
}

type submissionRequest struct {
	Username     string            `json:"username" binding:"required"`
	UserID       string            `json:"user_id"`
	AssignmentID string            `json:"assignment_id" binding:"required"`
	Language     string            `json:"language" binding:"required"`
	Files        map[string]string `json:"files" binding:"required"`
}

// CreateSubmission accepts a submission, persists it, and grades it
// asynchronously. Responds 202 with the submission ID to poll.
func (h *Handler) CreateSubmission(c *gin.Context) {
	var req submissionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	lang, err := models.ParseLanguage(req.Language)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if len(req.Files) == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "submission has no files"})
		return
	}

	rubricRec, err := h.Rubrics.GetByAssignment(c.Request.Context(), req.AssignmentID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "no rubric for assignment " + req.AssignmentID})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "rubric lookup failed"})
		return
	}
	rubric, err := criteria.Parse([]byte(rubricRec.Config))
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "stored rubric is invalid: " + err.Error()})
		return
	}

	sub := &models.Submission{
		ID:           uuid.New().String(),
		Username:     req.Username,
		UserID:       req.UserID,
		AssignmentID: req.AssignmentID,
		Files:        req.Files,
		Language:     lang,
	}
	if err := h.Submissions.Create(c.Request.Context(), sub); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to store submission"})
		return
	}
	h.Cache.Set(c.Request.Context(), sub.ID, models.StatusQueued)

	go h.grade(sub, rubric)

	c.JSON(http.StatusAccepted, gin.H{
		"id":     sub.ID,
		"status": models.StatusQueued,
	})
}

// grade runs the pipeline for one submission in the background.
func (h *Handler) grade(sub *models.Submission, rubric *criteria.Config) {
	timeout := h.GradingTimeout
	if timeout <= 0 {
		timeout = 5 * time.Minute
	}
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	h.Cache.Set(ctx, sub.ID, models.StatusGrading)
	if err := h.Submissions.UpdateStatus(ctx, sub.ID, models.StatusGrading); err != nil {
		logging.L().Warn("status update failed",
			zap.String("submission", sub.ID), zap.Error(err))
	}

	report := h.Service.Grade(ctx, sub, rubric)

	if report.Status != pipeline.StatusSuccess {
		// The EXPORT step never ran; persist the failure here.
		if err := h.Exporter.ExportFailure(context.Background(), sub.ID, report); err != nil {
			logging.L().Error("failed to persist grading failure",
				zap.String("submission", sub.ID), zap.Error(err))
		}
	}

	logging.L().Info("grading finished",
		zap.String("submission", sub.ID),
		zap.String("status", string(report.Status)),
		zap.Float64("score", report.Score),
		zap.String("failed_at", report.FailedAtStep))
}

// GetSubmission reports status and, once graded, the result.
func (h *Handler) GetSubmission(c *gin.Context) {
	id := c.Param("id")

	sub, status, err := h.Submissions.GetByID(c.Request.Context(), id)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "submission not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "submission lookup failed"})
		return
	}
	if cached, ok := h.Cache.Get(c.Request.Context(), id); ok {
		status = cached
	}

	body := gin.H{
		"id":            sub.ID,
		"assignment_id": sub.AssignmentID,
		"language":      sub.Language,
		"status":        status,
	}

	if status == models.StatusGraded || status == models.StatusFailed {
		rec, err := h.Results.GetLatest(c.Request.Context(), id)
		if err == nil {
			body["score"] = rec.FinalScore
			body["feedback"] = rec.Feedback
			if rec.FailedStep != "" {
				body["failed_at_step"] = rec.FailedStep
				body["error"] = rec.Error
			}
		}
	}

	c.JSON(http.StatusOK, body)
}

// ListSubmissions returns a user's recent submissions.
func (h *Handler) ListSubmissions(c *gin.Context) {
	username := c.Query("username")
	if username == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "username query parameter is required"})
		return
	}

	recs, err := h.Submissions.ListForUser(c.Request.Context(), username, 20, 0)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "listing failed"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"submissions": recs})
}

type rubricRequest struct {
	AssignmentID string `json:"assignment_id" binding:"required"`
	Template     string `json:"template"`
	Config       string `json:"config" binding:"required"`
}

// UpsertRubric validates and stores a rubric for an assignment. The
// rubric is built against its template immediately so authoring errors
// surface at upload time, not at grading time.
func (h *Handler) UpsertRubric(c *gin.Context) {
	var req rubricRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	cfg, err := criteria.Parse([]byte(req.Config))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	templateName := req.Template
	if templateName == "" {
		templateName = cfg.TestLibrary
	}
	if templateName == "" {
		templateName = "io-basic"
	}
	tmpl, err := h.Registry.Get(templateName)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if _, err := criteria.Build(cfg, template.Catalog(tmpl)); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	rec := &models.RubricRecord{
		ID:           uuid.New().String(),
		AssignmentID: req.AssignmentID,
		TemplateName: templateName,
		Config:       req.Config,
		Format:       detectFormat(req.Config),
	}
	if err := h.Rubrics.Upsert(c.Request.Context(), rec); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to store rubric"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"assignment_id": req.AssignmentID,
		"template":      templateName,
	})
}

// ListTemplates exposes the registered test libraries.
func (h *Handler) ListTemplates(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"templates": h.Registry.Names()})
}

// Health reports readiness of the service's dependencies.
func (h *Handler) Health(c *gin.Context) {
	status := http.StatusOK
	dbStatus := "ok"
	if h.Database != nil {
		if err := h.Database.Health(); err != nil {
			dbStatus = err.Error()
			status = http.StatusServiceUnavailable
		}
	}

	c.JSON(status, gin.H{
		"status":   http.StatusText(status),
		"database": dbStatus,
		"time":     time.Now().UTC(),
	})
}

func detectFormat(config string) string {
	if _, err := criteria.ParseJSON([]byte(config)); err == nil {
		return "json"
	}
	return "yaml"
}
