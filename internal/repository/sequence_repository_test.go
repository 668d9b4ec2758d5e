package repository

import (
	"context"
	"regexp"
	"testing"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSequenceRepositoryNext(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewSequenceRepository(db)

	mock.ExpectQuery(regexp.QuoteMeta("SELECT nextval($1::regclass)")).
		WithArgs(SequenceBatchName).
		WillReturnRows(sqlmock.NewRows([]string{"nextval"}).AddRow(int64(7)))

	value, err := repo.Next(context.Background(), SequenceBatchName)
	require.NoError(t, err)
	assert.Equal(t, int64(7), value)

	_, err = repo.Next(context.Background(), "users; DROP TABLE users")
	require.Error(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}
