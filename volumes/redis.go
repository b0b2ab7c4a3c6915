package volumes

import (
	"context"
	"sort"

	"github.com/pkg/errors"
	goredis "github.com/redis/go-redis/v9"

	"github.com/honeycombio/rebalancer/allocator"
	"github.com/honeycombio/rebalancer/config"
	"github.com/honeycombio/rebalancer/logger"
	"github.com/honeycombio/rebalancer/redis"
)

// RedisSource keeps one sorted set per project, scored by count, plus a set
// of every project that has recorded anything.
//
//	<prefix>:volumes:<project>  ZSET  member=transaction name, score=count
//	<prefix>:volumes            SET   project names
type RedisSource struct {
	RedisClient *redis.Client `inject:""`
	Config      config.Config `inject:""`
	Logger      logger.Logger `inject:""`
}

var _ Source = (*RedisSource)(nil)

func (r *RedisSource) Start() error {
	r.Logger.Debug().WithString("key", r.projectsKey()).Logf("reading volumes from Redis")
	return nil
}

func (r *RedisSource) projectsKey() string {
	return r.RedisClient.Key("volumes")
}

func (r *RedisSource) volumesKey(project string) string {
	return r.RedisClient.Key("volumes", project)
}

// Record adds n events to the count for one transaction of project.
func (r *RedisSource) Record(ctx context.Context, project, name string, n uint64) error {
	client := r.RedisClient.Universal()
	// no MULTI here: in cluster mode the two keys may live on different slots
	_, err := client.Pipelined(ctx, func(pipe goredis.Pipeliner) error {
		pipe.ZIncrBy(ctx, r.volumesKey(project), float64(n), name)
		pipe.SAdd(ctx, r.projectsKey(), project)
		return nil
	})
	return errors.Wrapf(err, "recording volume for %s/%s", project, name)
}

// GetVolumes returns the MaxTransactions busiest transactions of project.
func (r *RedisSource) GetVolumes(ctx context.Context, project string) ([]allocator.TransactionVolume, error) {
	limit := int64(r.Config.GetVolumesConfig().MaxTransactions)
	stop := limit - 1
	if limit <= 0 {
		stop = -1
	}
	zs, err := r.RedisClient.Universal().ZRevRangeWithScores(ctx, r.volumesKey(project), 0, stop).Result()
	if err != nil {
		return nil, errors.Wrapf(err, "reading volumes for %s", project)
	}
	vs := make([]allocator.TransactionVolume, 0, len(zs))
	for _, z := range zs {
		name, ok := z.Member.(string)
		if !ok || z.Score < 0 {
			continue
		}
		vs = append(vs, allocator.TransactionVolume{Name: name, Count: uint64(z.Score)})
	}
	return vs, nil
}

func (r *RedisSource) Projects(ctx context.Context) ([]string, error) {
	projects, err := r.RedisClient.Universal().SMembers(ctx, r.projectsKey()).Result()
	if err != nil {
		return nil, errors.Wrap(err, "listing projects")
	}
	sort.Strings(projects)
	return projects, nil
}

// Reset discards every count recorded for project, starting a new window.
func (r *RedisSource) Reset(ctx context.Context, project string) error {
	client := r.RedisClient.Universal()
	_, err := client.Pipelined(ctx, func(pipe goredis.Pipeliner) error {
		pipe.Del(ctx, r.volumesKey(project))
		pipe.SRem(ctx, r.projectsKey(), project)
		return nil
	})
	return errors.Wrapf(err, "resetting volumes for %s", project)
}
