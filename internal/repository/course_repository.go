package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/batch-intake-api/internal/models"
)

// CourseRepository reads the course registry.
type CourseRepository struct {
	db *sqlx.DB
}

// NewCourseRepository constructs a CourseRepository.
func NewCourseRepository(db *sqlx.DB) *CourseRepository {
	return &CourseRepository{db: db}
}

// FindByID fetches a course.
func (r *CourseRepository) FindByID(ctx context.Context, id string) (*models.Course, error) {
	const query = `SELECT id, name, code, active, created_at FROM courses WHERE id = $1`
	var course models.Course
	if err := r.db.GetContext(ctx, &course, query, id); err != nil {
		return nil, err
	}
	return &course, nil
}

// FirstActive returns the oldest active course, or nil when none is active.
func (r *CourseRepository) FirstActive(ctx context.Context) (*models.Course, error) {
	const query = `SELECT id, name, code, active, created_at FROM courses WHERE active = true ORDER BY created_at ASC, id ASC LIMIT 1`
	var course models.Course
	if err := r.db.GetContext(ctx, &course, query); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("find first active course: %w", err)
	}
	return &course, nil
}

// FindSubBatch fetches a sub-batch.
func (r *CourseRepository) FindSubBatch(ctx context.Context, id string) (*models.SubBatch, error) {
	const query = `SELECT id, course_id, name, code, start_date, end_date FROM sub_batches WHERE id = $1`
	var sub models.SubBatch
	if err := r.db.GetContext(ctx, &sub, query, id); err != nil {
		return nil, err
	}
	return &sub, nil
}
