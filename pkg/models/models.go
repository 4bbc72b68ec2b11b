// Package models defines the domain and persistence types shared across
// the grading service.
package models

import (
	"fmt"
	"strings"
	"time"

	"gorm.io/gorm"
)

// Language identifies the runtime a submission targets.
type Language string

const (
	LangPython Language = "python"
	LangJava   Language = "java"
	LangNode   Language = "node"
	LangCpp    Language = "cpp"
	LangNone   Language = "none"
)

// ParseLanguage normalizes a user-supplied language value.
func ParseLanguage(s string) (Language, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "python", "python3", "py":
		return LangPython, nil
	case "java":
		return LangJava, nil
	case "node", "nodejs", "javascript", "js":
		return LangNode, nil
	case "cpp", "c++":
		return LangCpp, nil
	case "none", "":
		return LangNone, nil
	default:
		return "", fmt.Errorf("unsupported language: %q", s)
	}
}

// Languages lists the runtimes that can be backed by a sandbox pool.
func Languages() []Language {
	return []Language{LangPython, LangJava, LangNode, LangCpp}
}

// Submission is one student upload: a bag of named files plus the target
// language. Immutable once accepted.
type Submission struct {
	ID           string            `json:"id"`
	Username     string            `json:"username"`
	UserID       string            `json:"user_id"`
	AssignmentID string            `json:"assignment_id"`
	Files        map[string]string `json:"files"`
	Language     Language          `json:"language"`
}

// File returns the content of one submitted file.
func (s *Submission) File(name string) (string, bool) {
	content, ok := s.Files[name]
	return content, ok
}

// FileNames returns the submitted file names in no particular order.
func (s *Submission) FileNames() []string {
	names := make([]string, 0, len(s.Files))
	for name := range s.Files {
		names = append(names, name)
	}
	return names
}

// Submission lifecycle statuses persisted alongside the record.
const (
	StatusQueued  = "queued"
	StatusGrading = "grading"
	StatusGraded  = "graded"
	StatusFailed  = "failed"
)

// SubmissionRecord is the persisted form of a submission.
type SubmissionRecord struct {
	ID        string         `json:"id" gorm:"primarykey"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
	DeletedAt gorm.DeletedAt `json:"-" gorm:"index"`

	Username     string `json:"username" gorm:"index;not null"`
	UserID       string `json:"user_id" gorm:"index"`
	AssignmentID string `json:"assignment_id" gorm:"index;not null"`
	Language     string `json:"language" gorm:"not null"`

	// Files is the submission file map serialized as JSON.
	Files string `json:"-" gorm:"type:text"`

	Status string `json:"status" gorm:"index;default:'queued'"`
}

// RubricRecord stores an instructor-authored criteria configuration.
type RubricRecord struct {
	ID        string         `json:"id" gorm:"primarykey"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
	DeletedAt gorm.DeletedAt `json:"-" gorm:"index"`

	AssignmentID string `json:"assignment_id" gorm:"uniqueIndex;not null"`
	TemplateName string `json:"template_name"`

	// Config is the raw criteria document (JSON or YAML) as uploaded.
	Config string `json:"-" gorm:"type:text"`
	Format string `json:"format" gorm:"default:'json'"`
}

// ResultRecord is the persisted outcome of one grading run.
type ResultRecord struct {
	ID        uint      `json:"id" gorm:"primarykey"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	SubmissionID string  `json:"submission_id" gorm:"index;not null"`
	FinalScore   float64 `json:"final_score"`

	// ResultTree is the scored result tree serialized as JSON.
	ResultTree string `json:"-" gorm:"type:text"`
	Feedback   string `json:"feedback" gorm:"type:text"`

	// Failure detail when the pipeline did not complete.
	FailedStep string `json:"failed_step,omitempty"`
	Error      string `json:"error,omitempty" gorm:"type:text"`
}
