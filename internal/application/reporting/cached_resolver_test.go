package reporting_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/turtacn/FCE-Intelligence/internal/application/reporting"
	"github.com/turtacn/FCE-Intelligence/internal/domain/citation"
	"github.com/turtacn/FCE-Intelligence/internal/testutil"
	"github.com/turtacn/FCE-Intelligence/pkg/errors"
)

type cacheCounts struct {
	mu     sync.Mutex
	hits   int
	misses int
}

func (c *cacheCounts) RecordClassification(string, string)        {}
func (c *cacheCounts) RecordNormInference(string)                 {}
func (c *cacheCounts) RecordReportBuild(string, time.Duration)    {}
func (c *cacheCounts) RecordReportJob(string)                     {}
func (c *cacheCounts) RecordCitationLookup(string, time.Duration) {}
func (c *cacheCounts) RecordCitationCache(hit bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if hit {
		c.hits++
	} else {
		c.misses++
	}
}

func TestCachedResolver_ReadThrough(t *testing.T) {
	ctx := context.Background()
	backend := &testutil.CountingResolver{Next: citation.MustBuiltin()}
	cache := testutil.NewCache()
	counts := &cacheCounts{}
	r := reporting.NewCachedResolver(backend, cache, 10*time.Minute, counts, nil)

	first, err := r.Resolve(ctx, "grip-strength")
	require.NoError(t, err)
	second, err := r.Resolve(ctx, "grip-strength")
	require.NoError(t, err)

	assert.Equal(t, 1, backend.Calls())
	assert.Equal(t, 1, counts.hits)
	assert.Equal(t, 1, counts.misses)

	require.Len(t, second, 2)
	assert.Equal(t, first[0].ID, second[0].ID)
	assert.Equal(t, first[1].String(), second[1].String())
	assert.Equal(t, "grip-strength", second[0].TestID)

	ttl, ok := cache.TTL("citations:grip-strength")
	require.True(t, ok)
	assert.Equal(t, 10*time.Minute, ttl)
}

func TestCachedResolver_CachesEmptyResults(t *testing.T) {
	ctx := context.Background()
	backend := &testutil.CountingResolver{Next: citation.MustBuiltin()}
	r := reporting.NewCachedResolver(backend, testutil.NewCache(), time.Minute, nil, nil)

	for i := 0; i < 3; i++ {
		cites, err := r.Resolve(ctx, "not-catalogued")
		require.NoError(t, err)
		assert.NotNil(t, cites)
		assert.Empty(t, cites)
	}
	assert.Equal(t, 1, backend.Calls())
}

func TestCachedResolver_CacheFailureDegrades(t *testing.T) {
	ctx := context.Background()
	backend := &testutil.CountingResolver{Next: citation.MustBuiltin()}
	cache := testutil.NewCache()
	cache.Err = errors.New(errors.ErrCodeCacheError, "redis down")
	logger := testutil.NewMockLogger()
	r := reporting.NewCachedResolver(backend, cache, time.Minute, nil, logger)

	for i := 0; i < 2; i++ {
		cites, err := r.Resolve(ctx, "bruce-treadmill")
		require.NoError(t, err)
		require.Len(t, cites, 1)
		assert.Equal(t, "bruce-1973", cites[0].ID)
	}
	assert.Equal(t, 2, backend.Calls())
	assert.True(t, logger.HasMessage("warn", "citation cache read failed"))
	assert.True(t, logger.HasMessage("warn", "citation cache write failed"))
}

func TestCachedResolver_BackendErrorIsNotCached(t *testing.T) {
	ctx := context.Background()
	calls := 0
	backend := citation.ResolverFunc(func(context.Context, string) ([]*citation.Citation, error) {
		calls++
		if calls == 1 {
			return nil, errors.New(errors.ErrCodeDatabaseError, "timeout")
		}
		return []*citation.Citation{{ID: "bruce-1973", TestID: "bruce-treadmill"}}, nil
	})
	r := reporting.NewCachedResolver(backend, testutil.NewCache(), time.Minute, nil, nil)

	_, err := r.Resolve(ctx, "bruce-treadmill")
	require.Error(t, err)

	cites, err := r.Resolve(ctx, "bruce-treadmill")
	require.NoError(t, err)
	assert.Len(t, cites, 1)
	assert.Equal(t, 2, calls)
}

func TestCachedResolver_BuilderUsesCache(t *testing.T) {
	backend := &testutil.CountingResolver{Next: citation.MustBuiltin()}
	r := reporting.NewCachedResolver(backend, testutil.NewCache(), time.Minute, nil, nil)
	b := reporting.NewBuilder(r, reporting.WithClock(testutil.FixedClock()))

	for i := 0; i < 3; i++ {
		rep, err := b.Build(context.Background(), testutil.SampleEvaluation(), reporting.ModePreview)
		require.NoError(t, err)
		assert.Len(t, rep.References, 7)
	}
	assert.Equal(t, 6, backend.Calls())
}
