package repository

import (
	"context"
	"database/sql"
	"regexp"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCourseRepositoryFirstActive(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewCourseRepository(db)

	mock.ExpectQuery(regexp.QuoteMeta("FROM courses WHERE active = true ORDER BY created_at ASC, id ASC LIMIT 1")).
		WillReturnRows(sqlmock.NewRows([]string{"id", "name", "code", "active", "created_at"}).AddRow("course-1", "Data Science", "DS", true, time.Now()))
	mock.ExpectQuery(regexp.QuoteMeta("FROM courses WHERE active = true")).
		WillReturnError(sql.ErrNoRows)

	course, err := repo.FirstActive(context.Background())
	require.NoError(t, err)
	require.NotNil(t, course)
	assert.Equal(t, "DS", course.Code)

	course, err = repo.FirstActive(context.Background())
	require.NoError(t, err)
	assert.Nil(t, course)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCourseRepositoryFindSubBatch(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewCourseRepository(db)

	mock.ExpectQuery(regexp.QuoteMeta("FROM sub_batches WHERE id = $1")).
		WithArgs("sub-1").
		WillReturnRows(sqlmock.NewRows([]string{"id", "course_id", "name", "code", "start_date", "end_date"}).AddRow("sub-1", "course-1", "Morning", "M1", nil, nil))

	sub, err := repo.FindSubBatch(context.Background(), "sub-1")
	require.NoError(t, err)
	assert.Equal(t, "course-1", sub.CourseID)
	assert.NoError(t, mock.ExpectationsWereMet())
}
