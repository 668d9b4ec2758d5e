package models

import "time"

// CourseDetailRunning is the state given to enrollment details created by intake.
const CourseDetailRunning = "running"

// Contact is the person record a student is attached to.
type Contact struct {
	ID            string    `db:"id" json:"id"`
	Name          string    `db:"name" json:"name"`
	Email         *string   `db:"email" json:"email,omitempty"`
	Phone         *string   `db:"phone" json:"phone,omitempty"`
	IsCompany     bool      `db:"is_company" json:"is_company"`
	BatchIntakeID *string   `db:"batch_intake_id" json:"batch_intake_id,omitempty"`
	CreatedAt     time.Time `db:"created_at" json:"created_at"`
}

// Student is a learner enrolled through a batch or any other channel.
type Student struct {
	ID            string    `db:"id" json:"id"`
	ContactID     string    `db:"contact_id" json:"contact_id"`
	Name          string    `db:"name" json:"name"`
	FirstName     string    `db:"first_name" json:"first_name"`
	LastName      string    `db:"last_name" json:"last_name"`
	Gender        string    `db:"gender" json:"gender"`
	Email         *string   `db:"email" json:"email,omitempty"`
	Phone         *string   `db:"phone" json:"phone,omitempty"`
	BatchIntakeID *string   `db:"batch_intake_id" json:"batch_intake_id,omitempty"`
	CreatedAt     time.Time `db:"created_at" json:"created_at"`
	UpdatedAt     time.Time `db:"updated_at" json:"updated_at"`
}

// StudentCourseDetail links a student to a course, sub-batch and term.
type StudentCourseDetail struct {
	ID             string    `db:"id" json:"id"`
	StudentID      string    `db:"student_id" json:"student_id"`
	CourseID       string    `db:"course_id" json:"course_id"`
	SubBatchID     *string   `db:"sub_batch_id" json:"sub_batch_id,omitempty"`
	AcademicYearID *string   `db:"academic_year_id" json:"academic_year_id,omitempty"`
	AcademicTermID *string   `db:"academic_term_id" json:"academic_term_id,omitempty"`
	State          string    `db:"state" json:"state"`
	CreatedAt      time.Time `db:"created_at" json:"created_at"`
}

// Matches reports whether the detail covers courseID and, when given, subBatchID.
func (d StudentCourseDetail) Matches(courseID string, subBatchID *string) bool {
	if d.CourseID != courseID {
		return false
	}
	if subBatchID == nil || *subBatchID == "" {
		return true
	}
	return d.SubBatchID != nil && *d.SubBatchID == *subBatchID
}
