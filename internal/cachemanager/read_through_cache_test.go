package cachemanager

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReadThroughCacheLoadsOnMiss(t *testing.T) {
	ctx := context.Background()
	loads := 0
	rtc := NewReadThroughCache(
		NewInMemoryCacheManager[string, int]("test", time.Minute, time.Minute),
		time.Minute,
		func(ctx context.Context, key string) (int, error) {
			loads++
			return len(key), nil
		})

	v, err := rtc.Get(ctx, "abc")
	require.NoError(t, err)
	assert.Equal(t, 3, v)
	assert.Equal(t, 1, loads)

	v, err = rtc.Get(ctx, "abc")
	require.NoError(t, err)
	assert.Equal(t, 3, v)
	assert.Equal(t, 1, loads, "hit must not invoke the loader")
}

func TestReadThroughCacheDoesNotCacheErrors(t *testing.T) {
	ctx := context.Background()
	loads := 0
	rtc := NewReadThroughCache(
		NewInMemoryCacheManager[string, int]("test", time.Minute, time.Minute),
		time.Minute,
		func(ctx context.Context, key string) (int, error) {
			loads++
			return 0, fmt.Errorf("load %d failed", loads)
		})

	_, err := rtc.Get(ctx, "k")
	assert.ErrorContains(t, err, "load 1 failed")
	_, err = rtc.Get(ctx, "k")
	assert.ErrorContains(t, err, "load 2 failed", "failures are retried, not cached")
}

func TestReadThroughCacheFlushForcesReload(t *testing.T) {
	ctx := context.Background()
	loads := 0
	rtc := NewReadThroughCache(
		NewInMemoryCacheManager[string, int]("test", time.Minute, time.Minute),
		time.Minute,
		func(ctx context.Context, key string) (int, error) {
			loads++
			return loads, nil
		})

	_, err := rtc.Get(ctx, "k")
	require.NoError(t, err)
	require.NoError(t, rtc.Flush(ctx))

	v, err := rtc.Get(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, 2, v)
}
