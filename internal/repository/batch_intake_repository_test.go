package repository

import (
	"context"
	"database/sql/driver"
	"regexp"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/batch-intake-api/internal/models"
)

func newRepoMock(t *testing.T) (*sqlx.DB, sqlmock.Sqlmock, func()) {
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	return sqlx.NewDb(db, "sqlmock"), mock, func() { db.Close() }
}

func anyArgs(n int) []driver.Value {
	args := make([]driver.Value, n)
	for i := range args {
		args[i] = sqlmock.AnyArg()
	}
	return args
}

var batchIntakeRowColumns = []string{"id", "name", "code", "description", "filename", "file_path", "file_size", "file_type",
	"state", "total_records", "processed_records", "error_records", "validation_errors", "validation_warnings",
	"start_date", "end_date", "max_capacity", "current_enrollment",
	"course_id", "sub_batch_id", "academic_year_id", "academic_term_id",
	"email_notification_enabled", "in_app_notification_enabled", "notification_sent", "notification_type",
	"upload_date", "validation_date", "processing_date", "created_by", "created_at", "updated_at"}

func batchIntakeRow(id string, state models.BatchIntakeState, enrolled int) []driver.Value {
	now := time.Now()
	return []driver.Value{id, "BATCH/00001", "BI00001", nil, "roster.csv", "intakes/" + id + "/roster.csv", int64(64), "csv",
		string(state), 3, 0, 0, "", "",
		nil, nil, 10, enrolled,
		"course-1", nil, nil, nil,
		true, true, false, "none",
		now, nil, nil, nil, now, now}
}

func TestBatchIntakeRepositoryFindByID(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewBatchIntakeRepository(db)

	mock.ExpectQuery(`(?s)SELECT b\.id, b\.name.*\(SELECT COUNT\(\*\) FROM students s WHERE s\.batch_intake_id = b\.id\) AS current_enrollment.*FROM batch_intakes b WHERE b\.id = \$1`).
		WithArgs("batch-1").
		WillReturnRows(sqlmock.NewRows(batchIntakeRowColumns).AddRow(batchIntakeRow("batch-1", models.BatchStateUploaded, 4)...))

	batch, err := repo.FindByID(context.Background(), "batch-1")
	require.NoError(t, err)
	assert.Equal(t, models.BatchStateUploaded, batch.State)
	assert.Equal(t, 4, batch.CurrentEnrollment)
	require.NotNil(t, batch.CourseID)
	assert.Equal(t, "course-1", *batch.CourseID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestBatchIntakeRepositoryList(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewBatchIntakeRepository(db)

	mock.ExpectQuery(regexp.QuoteMeta("FROM batch_intakes b WHERE 1=1 AND b.state = $1 AND (LOWER(b.name) LIKE $2 OR LOWER(b.code) LIKE $2) ORDER BY b.name ASC LIMIT 10 OFFSET 10")).
		WithArgs(models.BatchStateOpen, "%bi0%").
		WillReturnRows(sqlmock.NewRows(batchIntakeRowColumns).AddRow(batchIntakeRow("batch-1", models.BatchStateOpen, 0)...))
	mock.ExpectQuery(regexp.QuoteMeta("SELECT COUNT(*) FROM batch_intakes b WHERE 1=1 AND b.state = $1 AND (LOWER(b.name) LIKE $2 OR LOWER(b.code) LIKE $2)")).
		WithArgs(models.BatchStateOpen, "%bi0%").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(11))

	batches, total, err := repo.List(context.Background(), models.BatchIntakeFilter{
		State:     models.BatchStateOpen,
		Search:    "BI0",
		Page:      2,
		PageSize:  10,
		SortBy:    "name",
		SortOrder: "asc",
	})
	require.NoError(t, err)
	assert.Len(t, batches, 1)
	assert.Equal(t, 11, total)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestBatchIntakeRepositoryCreateAndUpdate(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewBatchIntakeRepository(db)

	mock.ExpectExec("INSERT INTO batch_intakes").
		WithArgs(anyArgs(28)...).
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectExec(`(?s)UPDATE batch_intakes SET description = \?.*WHERE id = \?`).
		WithArgs(anyArgs(27)...).
		WillReturnResult(sqlmock.NewResult(0, 1))

	batch := &models.BatchIntake{Name: "BATCH/00001", Code: "BI00001", State: models.BatchStateDraft, NotificationType: models.NotificationNone}
	require.NoError(t, repo.Create(context.Background(), batch))
	assert.NotEmpty(t, batch.ID)
	assert.False(t, batch.CreatedAt.IsZero())

	batch.State = models.BatchStateOpen
	require.NoError(t, repo.Update(context.Background(), batch))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestBatchIntakeRepositoryCountByState(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewBatchIntakeRepository(db)

	mock.ExpectQuery(regexp.QuoteMeta("FROM batch_intakes GROUP BY state")).
		WillReturnRows(sqlmock.NewRows([]string{"state", "count", "total_records", "processed_records", "error_records"}).
			AddRow("processed", 2, 10, 7, 3).
			AddRow("draft", 1, 0, 0, 0))

	counts, err := repo.CountByState(context.Background())
	require.NoError(t, err)
	require.Len(t, counts, 2)
	assert.Equal(t, models.BatchStateProcessed, counts[0].State)
	assert.Equal(t, 7, counts[0].ProcessedRecords)
	assert.NoError(t, mock.ExpectationsWereMet())
}
