package store

import (
	"context"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"

	"github.com/honeycombio/rebalancer/config"
	"github.com/honeycombio/rebalancer/logger"
)

// LocalStore keeps rates in memory, bounded by Store.CacheCapacity projects.
// The TTL is fixed when the store starts.
type LocalStore struct {
	Config config.Config `inject:""`
	Logger logger.Logger `inject:""`

	cache *expirable.LRU[string, ProjectRates]
}

var _ RateStore = (*LocalStore)(nil)

func (s *LocalStore) Start() error {
	capacity := s.Config.GetStoreConfig().CacheCapacity
	ttl := time.Duration(s.Config.GetRebalanceConfig().RateTTL)
	s.cache = expirable.NewLRU[string, ProjectRates](capacity, func(project string, _ ProjectRates) {
		s.Logger.Debug().WithString("project", project).Logf("evicted stored rates")
	}, ttl)
	return nil
}

func (s *LocalStore) Stop() error {
	s.cache.Purge()
	return nil
}

func (s *LocalStore) Put(_ context.Context, project string, rates ProjectRates) error {
	s.cache.Add(project, rates)
	return nil
}

func (s *LocalStore) Get(_ context.Context, project string) (ProjectRates, bool, error) {
	rates, ok := s.cache.Get(project)
	return rates, ok, nil
}
