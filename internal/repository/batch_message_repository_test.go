package repository

import (
	"context"
	"regexp"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/batch-intake-api/internal/models"
)

func TestBatchMessageRepository(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewBatchMessageRepository(db)

	mock.ExpectExec("INSERT INTO batch_intake_messages").
		WithArgs(anyArgs(7)...).
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectQuery(regexp.QuoteMeta("FROM batch_intake_messages WHERE batch_intake_id = $1 ORDER BY created_at DESC LIMIT 50")).
		WithArgs("batch-1").
		WillReturnRows(sqlmock.NewRows([]string{"id", "batch_intake_id", "kind", "level", "body", "author_id", "created_at"}).
			AddRow("msg-1", "batch-1", "notification", "success", "Import completed. 1 students created", nil, time.Now()))

	msg := &models.BatchMessage{BatchIntakeID: "batch-1", Kind: models.BatchMessageNotification, Level: models.NotificationSuccess, Body: "Import completed. 1 students created"}
	require.NoError(t, repo.Create(context.Background(), msg))
	assert.NotEmpty(t, msg.ID)

	messages, err := repo.ListByBatch(context.Background(), "batch-1", 0)
	require.NoError(t, err)
	require.Len(t, messages, 1)
	assert.Equal(t, models.NotificationSuccess, messages[0].Level)
	assert.NoError(t, mock.ExpectationsWereMet())
}
