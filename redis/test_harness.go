package redis

import (
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/require"

	"github.com/honeycombio/rebalancer/config"
	"github.com/honeycombio/rebalancer/logger"
)

// NewTestClient starts an in-memory Redis server and returns a started Client
// connected to it, along with the server so tests can inspect keys or move
// its clock. Both are shut down when the test ends.
func NewTestClient(t testing.TB, prefix string) (*Client, *miniredis.Miniredis) {
	t.Helper()

	server := miniredis.RunT(t)
	c := &Client{
		Config: &config.MockConfig{
			GetRedisConfigVal: config.RedisConfig{Host: server.Addr(), Prefix: prefix},
		},
		Logger: &logger.NullLogger{},
	}
	require.NoError(t, c.Start())
	t.Cleanup(func() { c.Stop() })
	return c, server
}
