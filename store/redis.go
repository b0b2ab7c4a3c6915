package store

import (
	"context"
	"time"

	"github.com/klauspost/compress/zstd"
	"github.com/pkg/errors"
	goredis "github.com/redis/go-redis/v9"
	"github.com/vmihailenco/msgpack/v5"

	"github.com/honeycombio/rebalancer/config"
	"github.com/honeycombio/rebalancer/redis"
)

// RedisStore writes each project's rates to <prefix>:rates:<project> as
// zstd-compressed msgpack, expiring after Rebalance.RateTTL.
type RedisStore struct {
	RedisClient *redis.Client `inject:""`
	Config      config.Config `inject:""`

	encoder *zstd.Encoder
	decoder *zstd.Decoder
}

var _ RateStore = (*RedisStore)(nil)

func (s *RedisStore) Start() error {
	var err error
	s.encoder, err = zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedFastest))
	if err != nil {
		return errors.Wrap(err, "creating zstd encoder")
	}
	s.decoder, err = zstd.NewReader(nil)
	if err != nil {
		return errors.Wrap(err, "creating zstd decoder")
	}
	return nil
}

func (s *RedisStore) Stop() error {
	if s.decoder != nil {
		s.decoder.Close()
	}
	if s.encoder != nil {
		return s.encoder.Close()
	}
	return nil
}

func (s *RedisStore) key(project string) string {
	return s.RedisClient.Key("rates", project)
}

func (s *RedisStore) Put(ctx context.Context, project string, rates ProjectRates) error {
	data, err := msgpack.Marshal(rates)
	if err != nil {
		return errors.Wrapf(err, "encoding rates for %s", project)
	}
	ttl := time.Duration(s.Config.GetRebalanceConfig().RateTTL)
	err = s.RedisClient.Universal().Set(ctx, s.key(project), s.encoder.EncodeAll(data, nil), ttl).Err()
	return errors.Wrapf(err, "storing rates for %s", project)
}

func (s *RedisStore) Get(ctx context.Context, project string) (ProjectRates, bool, error) {
	var rates ProjectRates
	compressed, err := s.RedisClient.Universal().Get(ctx, s.key(project)).Bytes()
	if errors.Is(err, goredis.Nil) {
		return rates, false, nil
	}
	if err != nil {
		return rates, false, errors.Wrapf(err, "reading rates for %s", project)
	}
	data, err := s.decoder.DecodeAll(compressed, nil)
	if err != nil {
		return rates, false, errors.Wrapf(err, "decompressing rates for %s", project)
	}
	if err := msgpack.Unmarshal(data, &rates); err != nil {
		return rates, false, errors.Wrapf(err, "decoding rates for %s", project)
	}
	return rates, true, nil
}
