package sources

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"

	"flowgate/internal/flowrequest/models"
	"flowgate/internal/platform/metrics"
	dErrors "flowgate/pkg/domain-errors"
)

const (
	catalogKey  = "flowgate:sources:catalog"
	profilesKey = "flowgate:sources:profiles"
)

// Cached serves the catalog and profile list from redis, falling through to
// the registry on a miss. Redis failures degrade to uncached calls.
type Cached struct {
	next    Registry
	redis   redis.Cmdable
	ttl     time.Duration
	logger  *slog.Logger
	metrics *metrics.Metrics
}

type CacheOption func(*Cached)

func WithCacheLogger(logger *slog.Logger) CacheOption {
	return func(c *Cached) {
		c.logger = logger
	}
}

func WithCacheMetrics(m *metrics.Metrics) CacheOption {
	return func(c *Cached) {
		c.metrics = m
	}
}

func NewCached(next Registry, rdb redis.Cmdable, ttl time.Duration, opts ...CacheOption) *Cached {
	c := &Cached{next: next, redis: rdb, ttl: ttl, logger: slog.Default()}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *Cached) ListSources(ctx context.Context) ([]models.Source, error) {
	var out []models.Source
	if c.load(ctx, catalogKey, &out) {
		return out, nil
	}
	out, err := c.next.ListSources(ctx)
	if err != nil {
		return nil, err
	}
	c.store(ctx, catalogKey, out)
	return out, nil
}

// GetSource answers from the cached catalog when present.
func (c *Cached) GetSource(ctx context.Context, sourceID string) (*models.Source, error) {
	var catalog []models.Source
	if c.load(ctx, catalogKey, &catalog) {
		for i := range catalog {
			if catalog[i].SourceID == sourceID {
				return &catalog[i], nil
			}
		}
		return nil, dErrors.New(dErrors.CodeNotFound, "source not found")
	}
	return c.next.GetSource(ctx, sourceID)
}

func (c *Cached) ListProfiles(ctx context.Context) ([]models.Profile, error) {
	var out []models.Profile
	if c.load(ctx, profilesKey, &out) {
		return out, nil
	}
	out, err := c.next.ListProfiles(ctx)
	if err != nil {
		return nil, err
	}
	c.store(ctx, profilesKey, out)
	return out, nil
}

func (c *Cached) load(ctx context.Context, key string, target any) bool {
	raw, err := c.redis.Get(ctx, key).Bytes()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			c.logger.WarnContext(ctx, "source cache read failed", "key", key, "error", err)
		}
		c.count("miss")
		return false
	}
	if err := json.Unmarshal(raw, target); err != nil {
		c.logger.WarnContext(ctx, "source cache entry corrupt", "key", key, "error", err)
		c.count("miss")
		return false
	}
	c.count("hit")
	return true
}

func (c *Cached) store(ctx context.Context, key string, value any) {
	raw, err := json.Marshal(value)
	if err != nil {
		return
	}
	if err := c.redis.Set(ctx, key, raw, c.ttl).Err(); err != nil {
		c.logger.WarnContext(ctx, "source cache write failed", "key", key, "error", err)
	}
}

func (c *Cached) count(result string) {
	if c.metrics != nil {
		c.metrics.SourceCatalogLookups.WithLabelValues(result).Inc()
	}
}

var _ Registry = (*Cached)(nil)
