package dto

import (
	"time"

	"github.com/noah-isme/batch-intake-api/internal/models"
)

// CreateBatchIntakeRequest is the payload for opening a new batch intake.
type CreateBatchIntakeRequest struct {
	Description              *string    `json:"description" validate:"omitempty,max=2000"`
	StartDate                *time.Time `json:"start_date"`
	EndDate                  *time.Time `json:"end_date"`
	MaxCapacity              int        `json:"max_capacity" validate:"gte=0"`
	CourseID                 *string    `json:"course_id" validate:"omitempty,max=64"`
	SubBatchID               *string    `json:"sub_batch_id" validate:"omitempty,max=64"`
	AcademicYearID           *string    `json:"academic_year_id" validate:"omitempty,max=64"`
	AcademicTermID           *string    `json:"academic_term_id" validate:"omitempty,max=64"`
	EmailNotificationEnabled *bool      `json:"email_notification_enabled"`
	InAppNotificationEnabled *bool      `json:"in_app_notification_enabled"`
}

// UpdateBatchIntakeRequest carries the writable fields of a batch. Nil fields
// are left untouched.
type UpdateBatchIntakeRequest struct {
	Description              *string    `json:"description" validate:"omitempty,max=2000"`
	StartDate                *time.Time `json:"start_date"`
	EndDate                  *time.Time `json:"end_date"`
	MaxCapacity              *int       `json:"max_capacity" validate:"omitempty,gte=0"`
	CourseID                 *string    `json:"course_id" validate:"omitempty,max=64"`
	SubBatchID               *string    `json:"sub_batch_id" validate:"omitempty,max=64"`
	AcademicYearID           *string    `json:"academic_year_id" validate:"omitempty,max=64"`
	AcademicTermID           *string    `json:"academic_term_id" validate:"omitempty,max=64"`
	EmailNotificationEnabled *bool      `json:"email_notification_enabled"`
	InAppNotificationEnabled *bool      `json:"in_app_notification_enabled"`
}

// FileUpload is a roster file received for a batch.
type FileUpload struct {
	Filename string
	Size     int64
	Data     []byte
}

// StageResult reports the outcome of a pipeline stage alongside the batch.
type StageResult struct {
	Message string `json:"message"`
	Level   string `json:"level"`
}

// ProcessSummary counts the outcome of reconciling one file.
type ProcessSummary struct {
	Created  int      `json:"created"`
	Updated  int      `json:"updated"`
	Relinked int      `json:"relinked"`
	Errors   []string `json:"errors,omitempty"`
}

// FileLinkResponse holds a signed download link for the uploaded roster.
type FileLinkResponse struct {
	URL       string    `json:"url"`
	ExpiresAt time.Time `json:"expires_at"`
}

// ProcessResponse is returned by the process endpoint.
type ProcessResponse struct {
	Batch   models.BatchIntakeView `json:"batch"`
	Summary ProcessSummary         `json:"summary"`
}

// CommentRequest posts a free-text comment on a batch feed.
type CommentRequest struct {
	Body string `json:"body" binding:"required"`
}
