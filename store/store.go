// Package store holds the most recent sample rates computed for each project.
package store

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/honeycombio/rebalancer/config"
)

// ProjectRates is the result of one rebalance of a project.
type ProjectRates struct {
	Project       string             `msgpack:"project" json:"project"`
	ExplicitRates map[string]float64 `msgpack:"explicit_rates" json:"explicit_rates"`
	FallbackRate  float64            `msgpack:"fallback_rate" json:"fallback_rate"`
	TargetRate    float64            `msgpack:"target_rate" json:"target_rate"`
	Strategy      string             `msgpack:"strategy" json:"strategy"`
	RunID         string             `msgpack:"run_id" json:"run_id"`
	UpdatedAt     time.Time          `msgpack:"updated_at" json:"updated_at"`
}

// RateFor returns the rate that applies to the named transaction.
func (p ProjectRates) RateFor(name string) float64 {
	if rate, ok := p.ExplicitRates[name]; ok {
		return rate
	}
	return p.FallbackRate
}

// RateStore keeps ProjectRates for the configured RateTTL. Rates that have
// not been refreshed within that time are gone, and callers fall back to
// their own defaults.
type RateStore interface {
	Put(ctx context.Context, project string, rates ProjectRates) error
	// Get returns false if no unexpired rates are stored for project.
	Get(ctx context.Context, project string) (ProjectRates, bool, error)
}

// GetStoreImplementation returns the RateStore named by the Store section of
// the config. Its dependencies are filled in by injection.
func GetStoreImplementation(c config.Config) RateStore {
	var store RateStore
	switch t := c.GetStoreConfig().Type; t {
	case "local":
		store = &LocalStore{}
	case "redis":
		store = &RedisStore{}
	default:
		fmt.Printf("unknown rate store type %s. Exiting.\n", t)
		os.Exit(1)
	}
	return store
}
