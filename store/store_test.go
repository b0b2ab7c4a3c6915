package store

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/honeycombio/rebalancer/config"
	"github.com/honeycombio/rebalancer/logger"
	"github.com/honeycombio/rebalancer/redis"
)

func testConfig(ttl time.Duration) *config.MockConfig {
	return &config.MockConfig{
		GetRebalanceConfigVal: config.RebalanceConfig{RateTTL: config.Duration(ttl)},
		GetStoreConfigVal:     config.StoreConfig{Type: "local", CacheCapacity: 2},
	}
}

func sampleRates(project string) ProjectRates {
	return ProjectRates{
		Project:       project,
		ExplicitRates: map[string]float64{"/checkout": 1, "/health": 0.01},
		FallbackRate:  0.2,
		TargetRate:    0.1,
		Strategy:      "min_biased",
		RunID:         "run-1",
		UpdatedAt:     time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC),
	}
}

func assertSameRates(t *testing.T, want, got ProjectRates) {
	t.Helper()
	assert.Equal(t, want.Project, got.Project)
	assert.Equal(t, want.ExplicitRates, got.ExplicitRates)
	assert.Equal(t, want.FallbackRate, got.FallbackRate)
	assert.Equal(t, want.TargetRate, got.TargetRate)
	assert.Equal(t, want.Strategy, got.Strategy)
	assert.Equal(t, want.RunID, got.RunID)
	assert.True(t, want.UpdatedAt.Equal(got.UpdatedAt), "UpdatedAt %v != %v", want.UpdatedAt, got.UpdatedAt)
}

func TestProjectRatesRateFor(t *testing.T) {
	r := sampleRates("web")
	assert.Equal(t, 1.0, r.RateFor("/checkout"))
	assert.Equal(t, 0.01, r.RateFor("/health"))
	assert.Equal(t, 0.2, r.RateFor("/unknown"))
}

func TestLocalStore(t *testing.T) {
	ctx := context.Background()
	s := &LocalStore{Config: testConfig(time.Hour), Logger: &logger.NullLogger{}}
	require.NoError(t, s.Start())
	defer s.Stop()

	_, ok, err := s.Get(ctx, "web")
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, s.Put(ctx, "web", sampleRates("web")))
	got, ok, err := s.Get(ctx, "web")
	require.NoError(t, err)
	require.True(t, ok)
	assertSameRates(t, sampleRates("web"), got)

	// capacity is two projects; the least recently used one goes
	require.NoError(t, s.Put(ctx, "api", sampleRates("api")))
	require.NoError(t, s.Put(ctx, "batch", sampleRates("batch")))
	_, ok, _ = s.Get(ctx, "web")
	assert.False(t, ok)
	_, ok, _ = s.Get(ctx, "batch")
	assert.True(t, ok)
}

func TestLocalStoreExpires(t *testing.T) {
	ctx := context.Background()
	s := &LocalStore{Config: testConfig(50 * time.Millisecond), Logger: &logger.NullLogger{}}
	require.NoError(t, s.Start())
	defer s.Stop()

	require.NoError(t, s.Put(ctx, "web", sampleRates("web")))
	_, ok, _ := s.Get(ctx, "web")
	require.True(t, ok)

	require.Eventually(t, func() bool {
		_, ok, _ := s.Get(ctx, "web")
		return !ok
	}, 2*time.Second, 10*time.Millisecond)
}

func newRedisStore(t *testing.T, ttl time.Duration) (*RedisStore, func(time.Duration)) {
	t.Helper()
	client, server := redis.NewTestClient(t, "test")
	s := &RedisStore{RedisClient: client, Config: testConfig(ttl)}
	require.NoError(t, s.Start())
	t.Cleanup(func() { s.Stop() })
	return s, server.FastForward
}

func TestRedisStore(t *testing.T) {
	ctx := context.Background()
	s, _ := newRedisStore(t, time.Hour)

	_, ok, err := s.Get(ctx, "web")
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, s.Put(ctx, "web", sampleRates("web")))
	got, ok, err := s.Get(ctx, "web")
	require.NoError(t, err)
	require.True(t, ok)
	assertSameRates(t, sampleRates("web"), got)

	// a newer result replaces the old one
	updated := sampleRates("web")
	updated.FallbackRate = 0.5
	updated.RunID = "run-2"
	require.NoError(t, s.Put(ctx, "web", updated))
	got, _, err = s.Get(ctx, "web")
	require.NoError(t, err)
	assertSameRates(t, updated, got)
}

func TestRedisStoreExpires(t *testing.T) {
	ctx := context.Background()
	s, fastForward := newRedisStore(t, time.Minute)

	require.NoError(t, s.Put(ctx, "web", sampleRates("web")))
	fastForward(30 * time.Second)
	_, ok, err := s.Get(ctx, "web")
	require.NoError(t, err)
	assert.True(t, ok)

	fastForward(31 * time.Second)
	_, ok, err = s.Get(ctx, "web")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestRedisStoreCorruptValue(t *testing.T) {
	ctx := context.Background()
	s, _ := newRedisStore(t, time.Minute)
	require.NoError(t, s.RedisClient.Universal().Set(ctx, "test:rates:web", "not zstd", 0).Err())

	_, ok, err := s.Get(ctx, "web")
	assert.Error(t, err)
	assert.False(t, ok)
}

func TestGetStoreImplementation(t *testing.T) {
	assert.IsType(t, &LocalStore{}, GetStoreImplementation(&config.MockConfig{GetStoreConfigVal: config.StoreConfig{Type: "local"}}))
	assert.IsType(t, &RedisStore{}, GetStoreImplementation(&config.MockConfig{GetStoreConfigVal: config.StoreConfig{Type: "redis"}}))
}
