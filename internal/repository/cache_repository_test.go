package repository

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	appErrors "github.com/noah-isme/batch-intake-api/pkg/errors"
)

func TestCacheRepositoryWithoutClient(t *testing.T) {
	repo := NewCacheRepository(nil, nil)
	var dest map[string]int

	err := repo.Get(context.Background(), "batch-intake:stats", &dest)
	require.Error(t, err)
	assert.True(t, errors.Is(err, appErrors.ErrCacheMiss))
	assert.NoError(t, repo.Set(context.Background(), "batch-intake:stats", map[string]int{"total": 1}, time.Minute))
	assert.NoError(t, repo.DeleteByPattern(context.Background(), "batch-intake:*"))
	assert.NoError(t, repo.Close())
}
