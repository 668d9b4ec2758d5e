package service

import (
	"context"
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/batch-intake-api/internal/dto"
	"github.com/noah-isme/batch-intake-api/internal/models"
	appErrors "github.com/noah-isme/batch-intake-api/pkg/errors"
)

type memCacheRepo struct {
	values map[string][]byte
}

func (m *memCacheRepo) Get(ctx context.Context, key string, dest interface{}) error {
	raw, ok := m.values[key]
	if !ok {
		return appErrors.ErrCacheMiss
	}
	return json.Unmarshal(raw, dest)
}

func (m *memCacheRepo) Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error {
	raw, err := json.Marshal(value)
	if err != nil {
		return err
	}
	m.values[key] = raw
	return nil
}

func (m *memCacheRepo) DeleteByPattern(ctx context.Context, pattern string) error {
	prefix := strings.TrimSuffix(pattern, "*")
	for key := range m.values {
		if strings.HasPrefix(key, prefix) {
			delete(m.values, key)
		}
	}
	return nil
}

func TestCacheServiceDisabledIsNoop(t *testing.T) {
	var svc *CacheService
	hit, err := svc.Get(context.Background(), "k", &struct{}{})
	require.NoError(t, err)
	assert.False(t, hit)
	assert.NoError(t, svc.Set(context.Background(), "k", 1, 0))
	assert.NoError(t, svc.Invalidate(context.Background(), "k*"))
}

func TestStatsServedFromCacheUntilWrite(t *testing.T) {
	f := newBatchFixture(t)
	repo := &memCacheRepo{values: map[string][]byte{}}
	metrics := NewMetricsService()
	f.svc.cache = NewCacheService(repo, metrics, time.Minute, nil, true)
	f.repo.counts = []models.BatchStateCount{{State: models.BatchStateDraft, Count: 1}}

	first, err := f.svc.Stats(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, first.Total)

	f.repo.counts = []models.BatchStateCount{{State: models.BatchStateDraft, Count: 2}}
	cached, err := f.svc.Stats(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, cached.Total)
	assert.Equal(t, uint64(1), metrics.Snapshot().CacheHits)

	_, err = f.svc.Create(context.Background(), dto.CreateBatchIntakeRequest{}, nil)
	require.NoError(t, err)
	fresh, err := f.svc.Stats(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, fresh.Total)
}

func TestCacheServiceStatsRoundTripAndInvalidate(t *testing.T) {
	repo := &memCacheRepo{values: map[string][]byte{}}
	svc := NewCacheService(repo, NewMetricsService(), time.Minute, nil, true)
	ctx := context.Background()

	assert.Nil(t, svc.LoadStats(ctx))
	svc.StoreStats(ctx, &models.BatchIntakeStats{Total: 3, ProcessedRecords: 9}, 0)
	require.Contains(t, repo.values, "batch-intake:dashboard:stats")

	loaded := svc.LoadStats(ctx)
	require.NotNil(t, loaded)
	assert.Equal(t, 3, loaded.Total)
	assert.Equal(t, 9, loaded.ProcessedRecords)

	svc.InvalidateStats(ctx)
	assert.Nil(t, svc.LoadStats(ctx))

	var disabled *CacheService
	disabled.StoreStats(ctx, loaded, 0)
	disabled.InvalidateStats(ctx)
	assert.Nil(t, disabled.LoadStats(ctx))
}
