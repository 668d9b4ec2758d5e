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

const registerColumns = `id, name, course_id, start_date, end_date, active, created_at`

// AdmissionRepository persists admissions and admission registers.
type AdmissionRepository struct {
	db *sqlx.DB
}

// NewAdmissionRepository constructs an AdmissionRepository.
func NewAdmissionRepository(db *sqlx.DB) *AdmissionRepository {
	return &AdmissionRepository{db: db}
}

// FindActiveRegister returns the active register whose window covers day,
// latest start first. Nil when none matches.
func (r *AdmissionRepository) FindActiveRegister(ctx context.Context, day time.Time) (*models.AdmissionRegister, error) {
	query := "SELECT " + registerColumns + " FROM admission_registers WHERE active = true AND start_date <= $1 AND end_date >= $1 ORDER BY start_date DESC LIMIT 1"
	return r.getRegister(ctx, query, day)
}

// FindLatestActiveRegister returns any active register, latest start first.
func (r *AdmissionRepository) FindLatestActiveRegister(ctx context.Context) (*models.AdmissionRegister, error) {
	query := "SELECT " + registerColumns + " FROM admission_registers WHERE active = true ORDER BY start_date DESC LIMIT 1"
	return r.getRegister(ctx, query)
}

func (r *AdmissionRepository) getRegister(ctx context.Context, query string, args ...interface{}) (*models.AdmissionRegister, error) {
	var register models.AdmissionRegister
	if err := r.db.GetContext(ctx, &register, query, args...); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("find admission register: %w", err)
	}
	return &register, nil
}

// CreateRegister inserts an admission register.
func (r *AdmissionRepository) CreateRegister(ctx context.Context, register *models.AdmissionRegister) error {
	if register.ID == "" {
		register.ID = uuid.NewString()
	}
	if register.CreatedAt.IsZero() {
		register.CreatedAt = time.Now().UTC()
	}
	const query = `INSERT INTO admission_registers (id, name, course_id, start_date, end_date, active, created_at)
        VALUES (:id, :name, :course_id, :start_date, :end_date, :active, :created_at)`
	if _, err := r.db.NamedExecContext(ctx, query, register); err != nil {
		return fmt.Errorf("create admission register: %w", err)
	}
	return nil
}

// ExistsForBatchEmail reports whether the batch already produced an admission for email.
func (r *AdmissionRepository) ExistsForBatchEmail(ctx context.Context, batchID, email string) (bool, error) {
	const query = `SELECT 1 FROM admissions WHERE source_batch_intake_id = $1 AND email = $2 LIMIT 1`
	var exists int
	if err := r.db.GetContext(ctx, &exists, query, batchID, email); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return false, nil
		}
		return false, fmt.Errorf("check admission: %w", err)
	}
	return true, nil
}

// Create inserts an admission.
func (r *AdmissionRepository) Create(ctx context.Context, admission *models.Admission) error {
	if admission.ID == "" {
		admission.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	if admission.CreatedAt.IsZero() {
		admission.CreatedAt = now
	}
	if admission.ApplicationDate.IsZero() {
		admission.ApplicationDate = now
	}
	const query = `INSERT INTO admissions (id, application_number, name, first_name, last_name, email, phone, gender,
        course_id, sub_batch_id, register_id, source_type, source_batch_intake_id, is_imported, state, application_date, created_at)
        VALUES (:id, :application_number, :name, :first_name, :last_name, :email, :phone, :gender,
        :course_id, :sub_batch_id, :register_id, :source_type, :source_batch_intake_id, :is_imported, :state, :application_date, :created_at)`
	if _, err := r.db.NamedExecContext(ctx, query, admission); err != nil {
		return fmt.Errorf("create admission: %w", err)
	}
	return nil
}

// ListByBatch returns admissions imported from the batch.
func (r *AdmissionRepository) ListByBatch(ctx context.Context, batchID string) ([]models.Admission, error) {
	const query = `SELECT id, application_number, name, first_name, last_name, email, phone, gender, course_id, sub_batch_id,
        register_id, source_type, source_batch_intake_id, is_imported, state, application_date, created_at
        FROM admissions WHERE source_batch_intake_id = $1 ORDER BY application_number ASC`
	var admissions []models.Admission
	if err := r.db.SelectContext(ctx, &admissions, query, batchID); err != nil {
		return nil, fmt.Errorf("list batch admissions: %w", err)
	}
	return admissions, nil
}
