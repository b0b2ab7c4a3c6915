// Package volumes supplies the per-project transaction counts that the
// rebalancer allocates rates from.
package volumes

import (
	"cmp"
	"context"
	"fmt"
	"os"
	"slices"

	"github.com/honeycombio/rebalancer/allocator"
	"github.com/honeycombio/rebalancer/config"
)

// Source reports observed transaction volumes.
type Source interface {
	// GetVolumes returns the counts for one project. A project the source has
	// never seen has no volumes and is not an error.
	GetVolumes(ctx context.Context, project string) ([]allocator.TransactionVolume, error)
	// Projects returns every project the source has volumes for, sorted.
	Projects(ctx context.Context) ([]string, error)
}

// GetSourceImplementation returns the Source named by the Volumes section of
// the config. Its dependencies are filled in by injection.
func GetSourceImplementation(c config.Config) Source {
	var source Source
	switch t := c.GetVolumesConfig().Type; t {
	case "file":
		source = &FileSource{}
	case "redis":
		source = &RedisSource{}
	default:
		fmt.Printf("unknown volume source type %s. Exiting.\n", t)
		os.Exit(1)
	}
	return source
}

// topN keeps the n highest-count transactions of vs. Ties keep their input
// order. A non-positive n keeps everything.
func topN(vs []allocator.TransactionVolume, n int) []allocator.TransactionVolume {
	if n <= 0 || len(vs) <= n {
		return vs
	}
	sorted := slices.Clone(vs)
	slices.SortStableFunc(sorted, func(a, b allocator.TransactionVolume) int {
		return cmp.Compare(b.Count, a.Count)
	})
	return sorted[:n]
}
