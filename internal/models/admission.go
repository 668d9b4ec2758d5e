package models

import "time"

// AdmissionSourceType records where an admission originated.
type AdmissionSourceType string

const (
	AdmissionSourceManual      AdmissionSourceType = "manual"
	AdmissionSourceBatchIntake AdmissionSourceType = "batch_intake"
)

// AdmissionStateSubmit is the state of freshly imported admissions.
const AdmissionStateSubmit = "submit"

// AdmissionRegister is an admission window admissions are filed under.
type AdmissionRegister struct {
	ID        string    `db:"id" json:"id"`
	Name      string    `db:"name" json:"name"`
	CourseID  *string   `db:"course_id" json:"course_id,omitempty"`
	StartDate time.Time `db:"start_date" json:"start_date"`
	EndDate   time.Time `db:"end_date" json:"end_date"`
	Active    bool      `db:"active" json:"active"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
}

// Admission is an application record, possibly imported from a batch intake.
type Admission struct {
	ID                  string              `db:"id" json:"id"`
	ApplicationNumber   string              `db:"application_number" json:"application_number"`
	Name                string              `db:"name" json:"name"`
	FirstName           string              `db:"first_name" json:"first_name"`
	LastName            string              `db:"last_name" json:"last_name"`
	Email               string              `db:"email" json:"email"`
	Phone               string              `db:"phone" json:"phone"`
	Gender              string              `db:"gender" json:"gender"`
	CourseID            string              `db:"course_id" json:"course_id"`
	SubBatchID          *string             `db:"sub_batch_id" json:"sub_batch_id,omitempty"`
	RegisterID          string              `db:"register_id" json:"register_id"`
	SourceType          AdmissionSourceType `db:"source_type" json:"source_type"`
	SourceBatchIntakeID *string             `db:"source_batch_intake_id" json:"source_batch_intake_id,omitempty"`
	IsImported          bool                `db:"is_imported" json:"is_imported"`
	State               string              `db:"state" json:"state"`
	ApplicationDate     time.Time           `db:"application_date" json:"application_date"`
	CreatedAt           time.Time           `db:"created_at" json:"created_at"`
}

// AdmissionBatchResult summarises a create-from-batch run.
type AdmissionBatchResult struct {
	Register AdmissionRegister `json:"register"`
	Created  []Admission       `json:"created"`
	Skipped  int               `json:"skipped"`
	NoCourse int               `json:"no_course"`
	Message  string            `json:"message"`
}
