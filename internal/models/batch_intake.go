package models

import (
	"errors"
	"fmt"
	"time"
)

// BatchIntakeState is the lifecycle position of a batch intake.
type BatchIntakeState string

const (
	BatchStateDraft     BatchIntakeState = "draft"
	BatchStateUploaded  BatchIntakeState = "uploaded"
	BatchStateMapping   BatchIntakeState = "mapping"
	BatchStateValidated BatchIntakeState = "validated"
	BatchStateProcessed BatchIntakeState = "processed"
	BatchStateOpen      BatchIntakeState = "open"
	BatchStateClosed    BatchIntakeState = "closed"
	BatchStateError     BatchIntakeState = "error"
	BatchStateCancelled BatchIntakeState = "cancelled"
)

// BatchIntakeStates lists every state in lifecycle order.
var BatchIntakeStates = []BatchIntakeState{
	BatchStateDraft,
	BatchStateUploaded,
	BatchStateMapping,
	BatchStateValidated,
	BatchStateProcessed,
	BatchStateOpen,
	BatchStateClosed,
	BatchStateError,
	BatchStateCancelled,
}

var stateProgress = map[BatchIntakeState]float64{
	BatchStateUploaded:  25,
	BatchStateMapping:   50,
	BatchStateValidated: 75,
	BatchStateProcessed: 100,
	BatchStateOpen:      100,
}

var stateLabels = map[BatchIntakeState]string{
	BatchStateDraft:     "Ready to Upload",
	BatchStateUploaded:  "File Uploaded - Ready for Validation",
	BatchStateMapping:   "Column Mapping Required",
	BatchStateValidated: "File Validated - Ready for Processing",
	BatchStateProcessed: "Processing Complete",
	BatchStateOpen:      "Batch Open",
	BatchStateClosed:    "Batch Closed",
	BatchStateError:     "Error Occurred",
	BatchStateCancelled: "Processing Cancelled",
}

// Valid reports whether s is a known state.
func (s BatchIntakeState) Valid() bool {
	_, ok := stateLabels[s]
	return ok
}

// ProgressPercentage is the fixed completion figure for the state.
func (s BatchIntakeState) ProgressPercentage() float64 {
	return stateProgress[s]
}

// Stage is the human readable label for the state.
func (s BatchIntakeState) Stage() string {
	if label, ok := stateLabels[s]; ok {
		return label
	}
	return "Unknown Stage"
}

// NotificationType classifies the last outcome notification of a batch.
type NotificationType string

const (
	NotificationNone    NotificationType = "none"
	NotificationSuccess NotificationType = "success"
	NotificationError   NotificationType = "error"
	NotificationWarning NotificationType = "warning"
	NotificationInfo    NotificationType = "info"
)

// BatchIntake is one upload-and-process workflow stored in batch_intakes.
type BatchIntake struct {
	ID          string  `db:"id" json:"id"`
	Name        string  `db:"name" json:"name"`
	Code        string  `db:"code" json:"code"`
	Description *string `db:"description" json:"description,omitempty"`

	Filename string `db:"filename" json:"filename"`
	FilePath string `db:"file_path" json:"-"`
	FileSize int64  `db:"file_size" json:"file_size"`
	FileType string `db:"file_type" json:"file_type"`

	State              BatchIntakeState `db:"state" json:"state"`
	TotalRecords       int              `db:"total_records" json:"total_records"`
	ProcessedRecords   int              `db:"processed_records" json:"processed_records"`
	ErrorRecords       int              `db:"error_records" json:"error_records"`
	ValidationErrors   string           `db:"validation_errors" json:"validation_errors"`
	ValidationWarnings string           `db:"validation_warnings" json:"validation_warnings"`

	StartDate         *time.Time `db:"start_date" json:"start_date,omitempty"`
	EndDate           *time.Time `db:"end_date" json:"end_date,omitempty"`
	MaxCapacity       int        `db:"max_capacity" json:"max_capacity"`
	CurrentEnrollment int        `db:"current_enrollment" json:"current_enrollment"`

	CourseID       *string `db:"course_id" json:"course_id,omitempty"`
	SubBatchID     *string `db:"sub_batch_id" json:"sub_batch_id,omitempty"`
	AcademicYearID *string `db:"academic_year_id" json:"academic_year_id,omitempty"`
	AcademicTermID *string `db:"academic_term_id" json:"academic_term_id,omitempty"`

	EmailNotificationEnabled bool             `db:"email_notification_enabled" json:"email_notification_enabled"`
	InAppNotificationEnabled bool             `db:"in_app_notification_enabled" json:"in_app_notification_enabled"`
	NotificationSent         bool             `db:"notification_sent" json:"notification_sent"`
	NotificationType         NotificationType `db:"notification_type" json:"notification_type"`

	UploadDate     *time.Time `db:"upload_date" json:"upload_date,omitempty"`
	ValidationDate *time.Time `db:"validation_date" json:"validation_date,omitempty"`
	ProcessingDate *time.Time `db:"processing_date" json:"processing_date,omitempty"`

	CreatedBy *string   `db:"created_by" json:"created_by,omitempty"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
	UpdatedAt time.Time `db:"updated_at" json:"updated_at"`
}

// SuccessRate is processed/total*100, or 0 without records.
func (b *BatchIntake) SuccessRate() float64 {
	if b.TotalRecords <= 0 {
		return 0
	}
	return float64(b.ProcessedRecords) / float64(b.TotalRecords) * 100
}

// AvailableSlots is the remaining capacity, never negative. Batches without a
// capacity report zero.
func (b *BatchIntake) AvailableSlots() int {
	if b.MaxCapacity <= 0 || b.CurrentEnrollment >= b.MaxCapacity {
		return 0
	}
	return b.MaxCapacity - b.CurrentEnrollment
}

// EnrollmentPercentage is current enrollment relative to capacity.
func (b *BatchIntake) EnrollmentPercentage() float64 {
	if b.MaxCapacity <= 0 {
		return 0
	}
	return float64(b.CurrentEnrollment) / float64(b.MaxCapacity) * 100
}

// CheckDates enforces end_date >= start_date when both are set.
func (b *BatchIntake) CheckDates() error {
	if b.StartDate != nil && b.EndDate != nil && b.EndDate.Before(*b.StartDate) {
		return errors.New("End date must be after start date.")
	}
	return nil
}

// CheckCapacity enforces current_enrollment <= max_capacity for capped batches.
func (b *BatchIntake) CheckCapacity() error {
	if b.MaxCapacity > 0 && b.CurrentEnrollment > b.MaxCapacity {
		return fmt.Errorf("Current enrollment (%d) cannot exceed maximum capacity (%d).", b.CurrentEnrollment, b.MaxCapacity)
	}
	return nil
}

// ClearPayload drops the uploaded file and zeroes every counter.
func (b *BatchIntake) ClearPayload() {
	b.Filename = ""
	b.FilePath = ""
	b.FileSize = 0
	b.FileType = ""
	b.TotalRecords = 0
	b.ProcessedRecords = 0
	b.ErrorRecords = 0
	b.ValidationErrors = ""
	b.ValidationWarnings = ""
}

// BatchIntakeView adds the derived figures to a batch for API responses.
type BatchIntakeView struct {
	BatchIntake
	SuccessRate          float64 `json:"success_rate"`
	ProgressPercentage   float64 `json:"progress_percentage"`
	CurrentStage         string  `json:"current_stage"`
	AvailableSlots       int     `json:"available_slots"`
	EnrollmentPercentage float64 `json:"enrollment_percentage"`
}

// View computes the derived fields of b.
func (b *BatchIntake) View() BatchIntakeView {
	return BatchIntakeView{
		BatchIntake:          *b,
		SuccessRate:          b.SuccessRate(),
		ProgressPercentage:   b.State.ProgressPercentage(),
		CurrentStage:         b.State.Stage(),
		AvailableSlots:       b.AvailableSlots(),
		EnrollmentPercentage: b.EnrollmentPercentage(),
	}
}

// BatchIntakeFilter captures list criteria.
type BatchIntakeFilter struct {
	State     BatchIntakeState
	CourseID  string
	Search    string
	Page      int
	PageSize  int
	SortBy    string
	SortOrder string
}

// BatchIntakeStats summarises batches for the dashboard.
type BatchIntakeStats struct {
	Total            int                      `json:"total"`
	ByState          map[BatchIntakeState]int `json:"by_state"`
	TotalRecords     int                      `json:"total_records"`
	ProcessedRecords int                      `json:"processed_records"`
	ErrorRecords     int                      `json:"error_records"`
	SuccessRate      float64                  `json:"success_rate"`
	GeneratedAt      time.Time                `json:"generated_at"`
}

// BatchStateCount is one row of the per-state aggregate query.
type BatchStateCount struct {
	State            BatchIntakeState `db:"state"`
	Count            int              `db:"count"`
	TotalRecords     int              `db:"total_records"`
	ProcessedRecords int              `db:"processed_records"`
	ErrorRecords     int              `db:"error_records"`
}
