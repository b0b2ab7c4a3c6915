// Package redis builds the go-redis client shared by every Redis-backed
// component: the volume source, the rate store, and pubsub.
package redis

import (
	"context"
	"crypto/tls"
	"strings"
	"time"

	"github.com/pkg/errors"
	goredis "github.com/redis/go-redis/v9"

	"github.com/honeycombio/rebalancer/config"
	"github.com/honeycombio/rebalancer/logger"
)

const defaultTimeout = 5 * time.Second

// Client owns a go-redis UniversalClient configured from the Redis section of
// the config, and knows how to namespace keys under the configured prefix.
type Client struct {
	Config config.Config `inject:""`
	Logger logger.Logger `inject:""`

	client goredis.UniversalClient
	prefix string
}

// NewUniversalClient returns a client for the hosts in cfg. A cluster client
// is used when ClusterHosts is set.
func NewUniversalClient(cfg config.RedisConfig) goredis.UniversalClient {
	options := &goredis.UniversalOptions{
		Addrs:    []string{cfg.Host},
		Username: cfg.Username,
		Password: cfg.Password,
		DB:       cfg.Database,
	}
	if timeout := time.Duration(cfg.Timeout); timeout > 0 {
		options.DialTimeout = timeout
		options.ReadTimeout = timeout
		options.WriteTimeout = timeout
	}
	if cfg.UseTLS {
		options.TLSConfig = &tls.Config{
			MinVersion:         tls.VersionTLS12,
			InsecureSkipVerify: cfg.UseTLSInsecure,
		}
	}

	if len(cfg.ClusterHosts) > 0 {
		options.Addrs = cfg.ClusterHosts
		return goredis.NewClusterClient(options.Cluster())
	}
	return goredis.NewUniversalClient(options)
}

func (c *Client) Start() error {
	redisCfg := c.Config.GetRedisConfig()
	c.prefix = redisCfg.Prefix

	hosts := []string{redisCfg.Host}
	if len(redisCfg.ClusterHosts) > 0 {
		hosts = redisCfg.ClusterHosts
	}
	c.Logger.Info().WithField("hosts", hosts).WithString("prefix", c.prefix).Logf("connecting to Redis")
	if redisCfg.UseTLS {
		c.Logger.Info().WithField("TLSInsecure", redisCfg.UseTLSInsecure).Logf("Using TLS with Redis")
	}
	c.client = NewUniversalClient(redisCfg)

	timeout := time.Duration(redisCfg.Timeout)
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	// if an authcode was provided, use it to authenticate the connection
	if redisCfg.AuthCode != "" {
		c.Logger.Info().Logf("Using Redis AuthCode to authenticate connection")
		pipe := c.client.Pipeline()
		pipe.Auth(ctx, redisCfg.AuthCode)
		if _, err := pipe.Exec(ctx); err != nil {
			return errors.Wrap(err, "failed to authenticate with Redis")
		}
	}

	if err := c.client.Ping(ctx).Err(); err != nil {
		return errors.Wrapf(err, "failed to reach Redis at %v", hosts)
	}
	return nil
}

func (c *Client) Stop() error {
	if c.client == nil {
		return nil
	}
	return c.client.Close()
}

// Universal returns the underlying go-redis client.
func (c *Client) Universal() goredis.UniversalClient {
	return c.client
}

// Prefix is the namespace every key and channel lives under.
func (c *Client) Prefix() string {
	return c.prefix
}

// Key joins parts with ":" under the configured prefix.
func (c *Client) Key(parts ...string) string {
	return Key(c.prefix, parts...)
}

// Key joins parts with ":" under prefix; an empty prefix is omitted.
func Key(prefix string, parts ...string) string {
	if prefix == "" {
		return strings.Join(parts, ":")
	}
	return prefix + ":" + strings.Join(parts, ":")
}
