package reporting

import (
	"context"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/turtacn/FCE-Intelligence/internal/domain/citation"
	"github.com/turtacn/FCE-Intelligence/internal/infrastructure/monitoring/logging"
	"github.com/turtacn/FCE-Intelligence/pkg/errors"
)

// Cache is the key/value store in front of citation lookups. Get returns a
// not-found error on a miss.
type Cache interface {
	Get(ctx context.Context, key string, dest interface{}) error
	Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error
}

// CitationKeyPrefix starts every cache key written by CachedResolver.
const CitationKeyPrefix = "citations:"

// CachedResolver is a read-through cache over another Resolver. Empty results
// are cached too, so unknown test ids do not reach the backing store on
// every report. Cache failures degrade to a direct lookup.
type CachedResolver struct {
	next    citation.Resolver
	cache   Cache
	ttl     time.Duration
	metrics Metrics
	logger  logging.Logger
	group   singleflight.Group
}

func NewCachedResolver(next citation.Resolver, cache Cache, ttl time.Duration, metrics Metrics, logger logging.Logger) *CachedResolver {
	if logger == nil {
		logger = logging.NewNopLogger()
	}
	return &CachedResolver{next: next, cache: cache, ttl: ttl, metrics: metrics, logger: logger}
}

func (r *CachedResolver) Resolve(ctx context.Context, testID string) ([]*citation.Citation, error) {
	key := CitationKeyPrefix + testID

	var cached []*citation.Citation
	err := r.cache.Get(ctx, key, &cached)
	switch {
	case err == nil:
		r.record(true)
		for _, c := range cached {
			c.TestID = testID
		}
		return cached, nil
	case !errors.IsNotFound(err):
		r.logger.Warn("citation cache read failed", logging.TestID(testID), logging.Err(err))
	}
	r.record(false)

	v, err, _ := r.group.Do(key, func() (interface{}, error) {
		start := time.Now()
		cites, err := r.next.Resolve(ctx, testID)
		if r.metrics != nil {
			r.metrics.RecordCitationLookup("backend", time.Since(start))
		}
		if err != nil {
			return nil, err
		}
		if cites == nil {
			cites = []*citation.Citation{}
		}
		if err := r.cache.Set(ctx, key, cites, r.ttl); err != nil {
			r.logger.Warn("citation cache write failed", logging.TestID(testID), logging.Err(err))
		}
		return cites, nil
	})
	if err != nil {
		return nil, err
	}
	return v.([]*citation.Citation), nil
}

func (r *CachedResolver) record(hit bool) {
	if r.metrics != nil {
		r.metrics.RecordCitationCache(hit)
	}
}
