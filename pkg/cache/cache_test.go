package cache

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type payload struct {
	Name  string  `json:"name"`
	Total float64 `json:"total"`
}

func TestMemoryCacheRoundTripStruct(t *testing.T) {
	ctx := context.Background()
	mc := NewMemoryCache()
	defer mc.Close()

	require.NoError(t, mc.Set(ctx, "k", payload{Name: "PET", Total: 12.5}, time.Minute))

	var got payload
	require.NoError(t, mc.Get(ctx, "k", &got))
	assert.Equal(t, payload{Name: "PET", Total: 12.5}, got)

	var s string
	require.NoError(t, mc.Set(ctx, "s", "plain", 0))
	require.NoError(t, mc.Get(ctx, "s", &s))
	assert.Equal(t, "plain", s)
}

func TestMemoryCacheExpiry(t *testing.T) {
	ctx := context.Background()
	mc := NewMemoryCache()
	defer mc.Close()

	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	mc.now = func() time.Time { return now }

	require.NoError(t, mc.Set(ctx, "k", 1, time.Second))
	ok, err := mc.Exists(ctx, "k")
	require.NoError(t, err)
	assert.True(t, ok)

	now = now.Add(2 * time.Second)
	var v int
	assert.ErrorIs(t, mc.Get(ctx, "k", &v), ErrCacheMiss)
}

func TestMemoryCacheEvictsLeastRecentlyUsed(t *testing.T) {
	ctx := context.Background()
	mc := NewMemoryCache(WithMemoryMaxSize(2))
	defer mc.Close()

	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	mc.now = func() time.Time { return now }

	require.NoError(t, mc.Set(ctx, "a", 1, 0))
	now = now.Add(time.Second)
	require.NoError(t, mc.Set(ctx, "b", 2, 0))
	now = now.Add(time.Second)
	var v int
	require.NoError(t, mc.Get(ctx, "a", &v))
	now = now.Add(time.Second)
	require.NoError(t, mc.Set(ctx, "c", 3, 0))

	assert.Equal(t, 2, mc.Len())
	assert.ErrorIs(t, mc.Get(ctx, "b", &v), ErrCacheMiss)
	require.NoError(t, mc.Get(ctx, "a", &v))
	assert.Equal(t, 1, v)
}

func TestMemoryCacheDeleteByPattern(t *testing.T) {
	ctx := context.Background()
	mc := NewMemoryCache()
	defer mc.Close()

	require.NoError(t, mc.Set(ctx, "forecast:market:30", 1, 0))
	require.NoError(t, mc.Set(ctx, "forecast:market:90", 1, 0))
	require.NoError(t, mc.Set(ctx, "other", 1, 0))

	require.NoError(t, mc.DeleteByPattern(ctx, BuildPattern("forecast:")))
	assert.Equal(t, 1, mc.Len())
}

func TestLayeredCachePromotesRemoteHits(t *testing.T) {
	ctx := context.Background()
	remote := NewMemoryCache()
	lc := NewLayeredCache(remote)
	defer lc.Close()

	require.NoError(t, remote.Set(ctx, "k", payload{Name: "HDPE"}, time.Minute))

	var got payload
	require.NoError(t, lc.Get(ctx, "k", &got))
	assert.Equal(t, "HDPE", got.Name)
	assert.Equal(t, 1, lc.memCache.Len())

	require.NoError(t, lc.Delete(ctx, "k"))
	assert.ErrorIs(t, lc.Get(ctx, "k", &got), ErrCacheMiss)
}

func TestGetOrLoad(t *testing.T) {
	ctx := context.Background()
	mc := NewMemoryCache()
	defer mc.Close()

	calls := 0
	load := func(context.Context) (payload, error) {
		calls++
		return payload{Name: "PP", Total: 3}, nil
	}

	v, hit, err := GetOrLoad(ctx, mc, "k", time.Minute, load)
	require.NoError(t, err)
	assert.False(t, hit)
	assert.Equal(t, "PP", v.Name)

	v, hit, err = GetOrLoad(ctx, mc, "k", time.Minute, load)
	require.NoError(t, err)
	assert.True(t, hit)
	assert.Equal(t, 3.0, v.Total)
	assert.Equal(t, 1, calls)

	_, hit, err = GetOrLoad[payload](ctx, nil, "k", time.Minute, load)
	require.NoError(t, err)
	assert.False(t, hit)
	assert.Equal(t, 2, calls)
}

func TestGenerateKeyWithParams(t *testing.T) {
	assert.Equal(t, "forecast:market:30:2026-01-01:3", GenerateKeyWithParams("forecast:market", 30, "2026-01-01", uint64(3)))
}
