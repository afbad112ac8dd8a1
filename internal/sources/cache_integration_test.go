//go:build integration

package sources

import (
	"context"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"

	"flowgate/internal/flowrequest/models"
	"flowgate/internal/platform/metrics"
	dErrors "flowgate/pkg/domain-errors"
	"flowgate/pkg/testutil/containers"
)

type countingRegistry struct {
	sources  []models.Source
	profiles []models.Profile
	calls    int
}

func (c *countingRegistry) ListSources(context.Context) ([]models.Source, error) {
	c.calls++
	return c.sources, nil
}

func (c *countingRegistry) GetSource(_ context.Context, id string) (*models.Source, error) {
	c.calls++
	for i := range c.sources {
		if c.sources[i].SourceID == id {
			return &c.sources[i], nil
		}
	}
	return nil, dErrors.New(dErrors.CodeNotFound, "source not found")
}

func (c *countingRegistry) ListProfiles(context.Context) ([]models.Profile, error) {
	c.calls++
	return c.profiles, nil
}

type CacheSuite struct {
	suite.Suite
	redis   *containers.RedisContainer
	metrics *metrics.Metrics
}

func TestCacheSuite(t *testing.T) {
	suite.Run(t, new(CacheSuite))
}

func (s *CacheSuite) SetupSuite() {
	s.redis = containers.GetManager().GetRedis(s.T())
}

func (s *CacheSuite) SetupTest() {
	s.Require().NoError(s.redis.FlushAll(context.Background()))
	s.metrics = metrics.NewWithRegisterer(prometheus.NewRegistry())
}

func (s *CacheSuite) TestCatalogServedFromCacheAfterFirstCall() {
	ctx := context.Background()
	upstream := &countingRegistry{sources: []models.Source{{SourceID: "src-a", Name: "A"}}}
	cached := NewCached(upstream, s.redis.Client, time.Minute, WithCacheMetrics(s.metrics))

	for range 3 {
		sources, err := cached.ListSources(ctx)
		s.Require().NoError(err)
		s.Len(sources, 1)
	}
	s.Equal(1, upstream.calls)
	s.Equal(float64(2), testutil.ToFloat64(s.metrics.SourceCatalogLookups.WithLabelValues("hit")))

	src, err := cached.GetSource(ctx, "src-a")
	s.Require().NoError(err)
	s.Equal("A", src.Name)
	s.Equal(1, upstream.calls)

	_, err = cached.GetSource(ctx, "src-missing")
	s.True(dErrors.HasCode(err, dErrors.CodeNotFound))
}

func (s *CacheSuite) TestExpiredEntryRefetches() {
	ctx := context.Background()
	upstream := &countingRegistry{profiles: []models.Profile{{Code: "p1", Version: "1", Payload: "{}"}}}
	cached := NewCached(upstream, s.redis.Client, 50*time.Millisecond)

	_, err := cached.ListProfiles(ctx)
	require.NoError(s.T(), err)
	s.Eventually(func() bool {
		_, err := cached.ListProfiles(ctx)
		return err == nil && upstream.calls == 2
	}, 2*time.Second, 20*time.Millisecond)
}
