// Read-through cache for slow-changing source lookups
package source

import (
	"context"
	"fmt"
	"time"

	"github.com/andrewh/clicktrace/pkg/trace"
	"github.com/dgraph-io/ristretto"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.uber.org/zap"
)

// DefaultCacheTTL bounds how stale cached lookups may be.
const DefaultCacheTTL = 30 * time.Second

// CachedSource caches service lists, operation lists and traces fetched by
// ID. Trace list queries always reach the underlying source.
type CachedSource struct {
	next    Source
	cache   *ristretto.Cache
	ttl     time.Duration
	logger  *zap.Logger
	meter   metric.Meter
	lookups metric.Int64Counter
}

// CacheOption configures a CachedSource.
type CacheOption func(*CachedSource)

// WithCacheMeterProvider sets where hit and miss counts are recorded.
func WithCacheMeterProvider(mp metric.MeterProvider) CacheOption {
	return func(c *CachedSource) {
		if mp != nil {
			c.meter = mp.Meter(instrumentationID)
		}
	}
}

// NewCachedSource wraps next. A non-positive ttl uses DefaultCacheTTL.
func NewCachedSource(next Source, ttl time.Duration, logger *zap.Logger, opts ...CacheOption) (*CachedSource, error) {
	if ttl <= 0 {
		ttl = DefaultCacheTTL
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	cache, err := ristretto.NewCache(&ristretto.Config{
		NumCounters:        1e5,     // keys to track frequency of
		MaxCost:            1 << 16, // roughly one unit per span or name
		BufferItems:        64,
		IgnoreInternalCost: true,
	})
	if err != nil {
		return nil, fmt.Errorf("creating lookup cache: %w", err)
	}
	c := &CachedSource{next: next, cache: cache, ttl: ttl, logger: logger, meter: otel.Meter(instrumentationID)}
	for _, opt := range opts {
		opt(c)
	}
	c.lookups, err = c.meter.Int64Counter("clicktrace.cache.lookups",
		metric.WithDescription("Lookup cache requests by result"))
	if err != nil {
		cache.Close()
		return nil, fmt.Errorf("creating cache lookup counter: %w", err)
	}
	return c, nil
}

// Close stops the cache's background goroutines.
func (c *CachedSource) Close() {
	c.cache.Close()
}

func (c *CachedSource) Services(ctx context.Context) ([]string, error) {
	return cached(ctx, c, "services", "services", func() ([]string, error) {
		return c.next.Services(ctx)
	}, func(v []string) int64 { return int64(len(v)) + 1 })
}

func (c *CachedSource) Operations(ctx context.Context, service string) ([]string, error) {
	return cached(ctx, c, "operations", "operations/"+service, func() ([]string, error) {
		return c.next.Operations(ctx, service)
	}, func(v []string) int64 { return int64(len(v)) + 1 })
}

func (c *CachedSource) Traces(ctx context.Context, q Query) ([]trace.RawTrace, error) {
	return c.next.Traces(ctx, q)
}

func (c *CachedSource) Trace(ctx context.Context, traceID string) (trace.RawTrace, error) {
	return cached(ctx, c, "trace", "trace/"+traceID, func() (trace.RawTrace, error) {
		return c.next.Trace(ctx, traceID)
	}, func(v trace.RawTrace) int64 { return int64(len(v.Spans)) + 1 })
}

// cached returns the value under key, loading and storing it on a miss.
// Errors are not cached.
func cached[T any](ctx context.Context, c *CachedSource, lookup, key string, load func() (T, error), cost func(T) int64) (T, error) {
	if value, found := c.cache.Get(key); found {
		typed, ok := value.(T)
		if ok {
			c.count(ctx, lookup, "hit")
			return typed, nil
		}
		c.logger.Warn("unexpected cached value type", zap.String("key", key), zap.String("type", fmt.Sprintf("%T", value)))
	}

	c.count(ctx, lookup, "miss")
	value, err := load()
	if err != nil {
		var zero T
		return zero, err
	}
	if !c.cache.SetWithTTL(key, value, cost(value), c.ttl) {
		c.logger.Debug("lookup cache rejected entry", zap.String("key", key))
	}
	c.cache.Wait()
	return value, nil
}

func (c *CachedSource) count(ctx context.Context, lookup, result string) {
	c.lookups.Add(ctx, 1, metric.WithAttributes(
		attribute.String("lookup", lookup),
		attribute.String("result", result),
	))
}
