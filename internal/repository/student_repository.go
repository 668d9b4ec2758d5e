package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/batch-intake-api/internal/models"
)

const studentColumns = `s.id, s.contact_id, s.name, s.first_name, s.last_name, s.gender,
        c.email, c.phone, s.batch_intake_id, s.created_at, s.updated_at`

// StudentRepository persists students, their contacts and course details.
// Write methods accept an optional executor so callers can group them in a
// transaction.
type StudentRepository struct {
	db *sqlx.DB
}

// NewStudentRepository constructs a StudentRepository.
func NewStudentRepository(db *sqlx.DB) *StudentRepository {
	return &StudentRepository{db: db}
}

func (r *StudentRepository) exec(exec sqlx.ExtContext) sqlx.ExtContext {
	if exec != nil {
		return exec
	}
	return r.db
}

// FindByEmail returns the first student whose contact email equals email, or
// nil when none exists.
func (r *StudentRepository) FindByEmail(ctx context.Context, exec sqlx.ExtContext, email string) (*models.Student, error) {
	query := "SELECT " + studentColumns + " FROM students s JOIN contacts c ON c.id = s.contact_id WHERE c.email = $1 ORDER BY s.created_at ASC LIMIT 1"
	var student models.Student
	if err := sqlx.GetContext(ctx, r.exec(exec), &student, query, email); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("find student by email: %w", err)
	}
	return &student, nil
}

// ListByBatch returns students linked to the batch intake.
func (r *StudentRepository) ListByBatch(ctx context.Context, batchID string) ([]models.Student, error) {
	query := "SELECT " + studentColumns + " FROM students s JOIN contacts c ON c.id = s.contact_id WHERE s.batch_intake_id = $1 ORDER BY s.name ASC"
	var students []models.Student
	if err := r.db.SelectContext(ctx, &students, query, batchID); err != nil {
		return nil, fmt.Errorf("list batch students: %w", err)
	}
	return students, nil
}

// CountByBatch counts students linked to the batch intake.
func (r *StudentRepository) CountByBatch(ctx context.Context, exec sqlx.ExtContext, batchID string) (int, error) {
	var count int
	if err := sqlx.GetContext(ctx, r.exec(exec), &count, "SELECT COUNT(*) FROM students WHERE batch_intake_id = $1", batchID); err != nil {
		return 0, fmt.Errorf("count batch students: %w", err)
	}
	return count, nil
}

// ListCourseDetails returns the enrollment details of a student.
func (r *StudentRepository) ListCourseDetails(ctx context.Context, exec sqlx.ExtContext, studentID string) ([]models.StudentCourseDetail, error) {
	const query = `SELECT id, student_id, course_id, sub_batch_id, academic_year_id, academic_term_id, state, created_at
        FROM student_course_details WHERE student_id = $1 ORDER BY created_at ASC`
	var details []models.StudentCourseDetail
	if err := sqlx.SelectContext(ctx, r.exec(exec), &details, query, studentID); err != nil {
		return nil, fmt.Errorf("list course details: %w", err)
	}
	return details, nil
}

// CreateContact inserts the contact a new student hangs off.
func (r *StudentRepository) CreateContact(ctx context.Context, exec sqlx.ExtContext, contact *models.Contact) error {
	if contact.ID == "" {
		contact.ID = uuid.NewString()
	}
	if contact.CreatedAt.IsZero() {
		contact.CreatedAt = time.Now().UTC()
	}
	const query = `INSERT INTO contacts (id, name, email, phone, is_company, batch_intake_id, created_at)
        VALUES (:id, :name, :email, :phone, :is_company, :batch_intake_id, :created_at)`
	if _, err := sqlx.NamedExecContext(ctx, r.exec(exec), query, contact); err != nil {
		return fmt.Errorf("create contact: %w", err)
	}
	return nil
}

// Create inserts a student row.
func (r *StudentRepository) Create(ctx context.Context, exec sqlx.ExtContext, student *models.Student) error {
	if student.ID == "" {
		student.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	if student.CreatedAt.IsZero() {
		student.CreatedAt = now
	}
	student.UpdatedAt = now
	const query = `INSERT INTO students (id, contact_id, name, first_name, last_name, gender, batch_intake_id, created_at, updated_at)
        VALUES (:id, :contact_id, :name, :first_name, :last_name, :gender, :batch_intake_id, :created_at, :updated_at)`
	if _, err := sqlx.NamedExecContext(ctx, r.exec(exec), query, student); err != nil {
		return fmt.Errorf("create student: %w", err)
	}
	return nil
}

// AddCourseDetail appends an enrollment detail to a student.
func (r *StudentRepository) AddCourseDetail(ctx context.Context, exec sqlx.ExtContext, detail *models.StudentCourseDetail) error {
	if detail.ID == "" {
		detail.ID = uuid.NewString()
	}
	if detail.CreatedAt.IsZero() {
		detail.CreatedAt = time.Now().UTC()
	}
	const query = `INSERT INTO student_course_details (id, student_id, course_id, sub_batch_id, academic_year_id, academic_term_id, state, created_at)
        VALUES (:id, :student_id, :course_id, :sub_batch_id, :academic_year_id, :academic_term_id, :state, :created_at)`
	if _, err := sqlx.NamedExecContext(ctx, r.exec(exec), query, detail); err != nil {
		return fmt.Errorf("add course detail: %w", err)
	}
	return nil
}

// LinkBatch points the student at a batch intake.
func (r *StudentRepository) LinkBatch(ctx context.Context, exec sqlx.ExtContext, studentID, batchID string) error {
	const query = `UPDATE students SET batch_intake_id = $1, updated_at = $2 WHERE id = $3`
	if _, err := r.exec(exec).ExecContext(ctx, query, batchID, time.Now().UTC(), studentID); err != nil {
		return fmt.Errorf("link student to batch: %w", err)
	}
	return nil
}
