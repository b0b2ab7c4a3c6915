package redis

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/honeycombio/rebalancer/config"
	"github.com/honeycombio/rebalancer/logger"
)

func TestKey(t *testing.T) {
	assert.Equal(t, "rebalancer:volumes:web", Key("rebalancer", "volumes", "web"))
	assert.Equal(t, "volumes:web", Key("", "volumes", "web"))
	assert.Equal(t, "p:", Key("p", ""))
}

func TestClientRoundTrip(t *testing.T) {
	c, server := NewTestClient(t, "test")
	assert.Equal(t, "test", c.Prefix())
	assert.Equal(t, "test:rates:web", c.Key("rates", "web"))

	ctx := context.Background()
	require.NoError(t, c.Universal().Set(ctx, c.Key("k"), "v", 0).Err())
	got, err := server.Get("test:k")
	require.NoError(t, err)
	assert.Equal(t, "v", got)
}

func TestClientAuthCode(t *testing.T) {
	server := miniredis.RunT(t)
	server.RequireAuth("sekrit")

	good := &Client{
		Config: &config.MockConfig{GetRedisConfigVal: config.RedisConfig{Host: server.Addr(), AuthCode: "sekrit"}},
		Logger: &logger.NullLogger{},
	}
	require.NoError(t, good.Start())
	defer good.Stop()

	bad := &Client{
		Config: &config.MockConfig{GetRedisConfigVal: config.RedisConfig{Host: server.Addr(), AuthCode: "wrong"}},
		Logger: &logger.NullLogger{},
	}
	assert.Error(t, bad.Start())
	bad.Stop()
}

func TestClientUnreachable(t *testing.T) {
	server := miniredis.RunT(t)
	addr := server.Addr()
	server.Close()

	c := &Client{
		Config: &config.MockConfig{GetRedisConfigVal: config.RedisConfig{
			Host:    addr,
			Timeout: config.Duration(200 * time.Millisecond),
		}},
		Logger: &logger.NullLogger{},
	}
	err := c.Start()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to reach Redis")
	c.Stop()
}

func TestNewUniversalClientCluster(t *testing.T) {
	c := NewUniversalClient(config.RedisConfig{ClusterHosts: []string{"a:1", "b:2"}, UseTLS: true})
	defer c.Close()
	assert.IsType(t, &goredis.ClusterClient{}, c)

	single := NewUniversalClient(config.RedisConfig{Host: "localhost:6379"})
	defer single.Close()
	assert.IsType(t, &goredis.Client{}, single)
}
