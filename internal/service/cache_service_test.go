package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	appErrors "github.com/noah-isme/campus-attendance-api/pkg/errors"
)

type mapCacheRepo struct {
	values  map[string]string
	ttls    map[string]time.Duration
	getErr  error
	deleted []string
}

func newMapCacheRepo() *mapCacheRepo {
	return &mapCacheRepo{values: map[string]string{}, ttls: map[string]time.Duration{}}
}

func (r *mapCacheRepo) Get(_ context.Context, key string, dest interface{}) error {
	if r.getErr != nil {
		return r.getErr
	}
	v, ok := r.values[key]
	if !ok {
		return appErrors.ErrCacheMiss
	}
	*(dest.(*string)) = v
	return nil
}

func (r *mapCacheRepo) Set(_ context.Context, key string, value interface{}, ttl time.Duration) error {
	r.values[key] = value.(string)
	r.ttls[key] = ttl
	return nil
}

func (r *mapCacheRepo) Delete(_ context.Context, keys ...string) error {
	for _, k := range keys {
		delete(r.values, k)
	}
	r.deleted = append(r.deleted, keys...)
	return nil
}

func TestCacheServiceRoundTrip(t *testing.T) {
	repo := newMapCacheRepo()
	metrics := NewMetricsService()
	cache := NewCacheService(repo, metrics, time.Minute, nil, true)

	var got string
	hit, err := cache.Get(context.Background(), "k", &got)
	require.NoError(t, err)
	assert.False(t, hit)

	require.NoError(t, cache.Set(context.Background(), "k", "v", 0))
	assert.Equal(t, time.Minute, repo.ttls["k"])

	hit, err = cache.Get(context.Background(), "k", &got)
	require.NoError(t, err)
	assert.True(t, hit)
	assert.Equal(t, "v", got)

	require.NoError(t, cache.Invalidate(context.Background(), "k"))
	assert.Equal(t, []string{"k"}, repo.deleted)
}

func TestCacheServiceBackendFailureIsAMiss(t *testing.T) {
	repo := newMapCacheRepo()
	repo.getErr = errors.New("connection refused")
	cache := NewCacheService(repo, nil, time.Minute, nil, true)

	var got string
	hit, err := cache.Get(context.Background(), "k", &got)
	assert.Error(t, err)
	assert.False(t, hit)
}

func TestCacheServiceDisabled(t *testing.T) {
	repo := newMapCacheRepo()
	cache := NewCacheService(repo, nil, time.Minute, nil, false)

	require.NoError(t, cache.Set(context.Background(), "k", "v", 0))
	assert.Empty(t, repo.values)

	var nilCache *CacheService
	hit, err := nilCache.Get(context.Background(), "k", new(string))
	require.NoError(t, err)
	assert.False(t, hit)
	assert.NoError(t, nilCache.Invalidate(context.Background(), "k"))
}
