package repository

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/batch-intake-api/internal/models"
)

const batchIntakeColumns = `b.id, b.name, b.code, b.description, b.filename, b.file_path, b.file_size, b.file_type,
        b.state, b.total_records, b.processed_records, b.error_records, b.validation_errors, b.validation_warnings,
        b.start_date, b.end_date, b.max_capacity,
        (SELECT COUNT(*) FROM students s WHERE s.batch_intake_id = b.id) AS current_enrollment,
        b.course_id, b.sub_batch_id, b.academic_year_id, b.academic_term_id,
        b.email_notification_enabled, b.in_app_notification_enabled, b.notification_sent, b.notification_type,
        b.upload_date, b.validation_date, b.processing_date, b.created_by, b.created_at, b.updated_at`

// BatchIntakeRepository manages persistence for batch intakes.
type BatchIntakeRepository struct {
	db *sqlx.DB
}

// NewBatchIntakeRepository constructs a BatchIntakeRepository.
func NewBatchIntakeRepository(db *sqlx.DB) *BatchIntakeRepository {
	return &BatchIntakeRepository{db: db}
}

// List returns batch intakes matching the filter along with the total count.
func (r *BatchIntakeRepository) List(ctx context.Context, filter models.BatchIntakeFilter) ([]models.BatchIntake, int, error) {
	base := "FROM batch_intakes b"
	args := []interface{}{}
	conditions := []string{"1=1"}

	if filter.State != "" {
		conditions = append(conditions, fmt.Sprintf("b.state = $%d", len(args)+1))
		args = append(args, filter.State)
	}
	if filter.CourseID != "" {
		conditions = append(conditions, fmt.Sprintf("b.course_id = $%d", len(args)+1))
		args = append(args, filter.CourseID)
	}
	if filter.Search != "" {
		conditions = append(conditions, fmt.Sprintf("(LOWER(b.name) LIKE $%d OR LOWER(b.code) LIKE $%d)", len(args)+1, len(args)+1))
		args = append(args, "%"+strings.ToLower(filter.Search)+"%")
	}
	base = fmt.Sprintf("%s WHERE %s", base, strings.Join(conditions, " AND "))

	allowedSorts := map[string]string{
		"name":       "b.name",
		"code":       "b.code",
		"state":      "b.state",
		"start_date": "b.start_date",
		"created_at": "b.created_at",
	}
	column, ok := allowedSorts[filter.SortBy]
	if !ok {
		column = "b.created_at"
	}
	order := strings.ToUpper(filter.SortOrder)
	if order != "ASC" && order != "DESC" {
		order = "DESC"
	}
	page := filter.Page
	if page < 1 {
		page = 1
	}
	size := filter.PageSize
	if size <= 0 || size > 100 {
		size = 20
	}
	offset := (page - 1) * size

	query := fmt.Sprintf("SELECT %s %s ORDER BY %s %s LIMIT %d OFFSET %d", batchIntakeColumns, base, column, order, size, offset)
	var batches []models.BatchIntake
	if err := r.db.SelectContext(ctx, &batches, query, args...); err != nil {
		return nil, 0, fmt.Errorf("list batch intakes: %w", err)
	}

	var total int
	if err := r.db.GetContext(ctx, &total, "SELECT COUNT(*) "+base, args...); err != nil {
		return nil, 0, fmt.Errorf("count batch intakes: %w", err)
	}
	return batches, total, nil
}

// FindByID fetches a batch intake including its live enrollment count.
func (r *BatchIntakeRepository) FindByID(ctx context.Context, id string) (*models.BatchIntake, error) {
	query := "SELECT " + batchIntakeColumns + " FROM batch_intakes b WHERE b.id = $1"
	var batch models.BatchIntake
	if err := r.db.GetContext(ctx, &batch, query, id); err != nil {
		return nil, err
	}
	return &batch, nil
}

// Create inserts a new batch intake.
func (r *BatchIntakeRepository) Create(ctx context.Context, batch *models.BatchIntake) error {
	if batch.ID == "" {
		batch.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	if batch.CreatedAt.IsZero() {
		batch.CreatedAt = now
	}
	batch.UpdatedAt = now
	const query = `INSERT INTO batch_intakes (id, name, code, description, filename, file_path, file_size, file_type,
        state, total_records, processed_records, error_records, validation_errors, validation_warnings,
        start_date, end_date, max_capacity, course_id, sub_batch_id, academic_year_id, academic_term_id,
        email_notification_enabled, in_app_notification_enabled, notification_sent, notification_type,
        created_by, created_at, updated_at)
        VALUES (:id, :name, :code, :description, :filename, :file_path, :file_size, :file_type,
        :state, :total_records, :processed_records, :error_records, :validation_errors, :validation_warnings,
        :start_date, :end_date, :max_capacity, :course_id, :sub_batch_id, :academic_year_id, :academic_term_id,
        :email_notification_enabled, :in_app_notification_enabled, :notification_sent, :notification_type,
        :created_by, :created_at, :updated_at)`
	if _, err := r.db.NamedExecContext(ctx, query, batch); err != nil {
		return fmt.Errorf("create batch intake: %w", err)
	}
	return nil
}

// Update writes every mutable column of the batch.
func (r *BatchIntakeRepository) Update(ctx context.Context, batch *models.BatchIntake) error {
	batch.UpdatedAt = time.Now().UTC()
	const query = `UPDATE batch_intakes SET description = :description, filename = :filename, file_path = :file_path,
        file_size = :file_size, file_type = :file_type, state = :state, total_records = :total_records,
        processed_records = :processed_records, error_records = :error_records, validation_errors = :validation_errors,
        validation_warnings = :validation_warnings, start_date = :start_date, end_date = :end_date,
        max_capacity = :max_capacity, course_id = :course_id, sub_batch_id = :sub_batch_id,
        academic_year_id = :academic_year_id, academic_term_id = :academic_term_id,
        email_notification_enabled = :email_notification_enabled, in_app_notification_enabled = :in_app_notification_enabled,
        notification_sent = :notification_sent, notification_type = :notification_type,
        upload_date = :upload_date, validation_date = :validation_date, processing_date = :processing_date,
        updated_at = :updated_at WHERE id = :id`
	if _, err := r.db.NamedExecContext(ctx, query, batch); err != nil {
		return fmt.Errorf("update batch intake: %w", err)
	}
	return nil
}

// CountByState aggregates batches and record counters per state.
func (r *BatchIntakeRepository) CountByState(ctx context.Context) ([]models.BatchStateCount, error) {
	const query = `SELECT state, COUNT(*) AS count, COALESCE(SUM(total_records), 0) AS total_records,
        COALESCE(SUM(processed_records), 0) AS processed_records, COALESCE(SUM(error_records), 0) AS error_records
        FROM batch_intakes GROUP BY state`
	var counts []models.BatchStateCount
	if err := r.db.SelectContext(ctx, &counts, query); err != nil {
		return nil, fmt.Errorf("count batch intakes by state: %w", err)
	}
	return counts, nil
}
