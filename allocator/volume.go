package allocator

import (
	"cmp"
	"slices"
)

// TransactionVolume is the number of events observed for one transaction name
// during a counting window.
type TransactionVolume struct {
	Name  string `json:"name" yaml:"name" toml:"name"`
	Count uint64 `json:"count" yaml:"count" toml:"count"`
}

// TotalTransactions returns the sum of all counts in vs.
func TotalTransactions(vs []TransactionVolume) uint64 {
	var total uint64
	for _, v := range vs {
		total += v.Count
	}
	return total
}

// sortedByCount returns a copy of vs ordered by ascending count. Equal counts
// keep their input order so that results are reproducible.
func sortedByCount(vs []TransactionVolume) []TransactionVolume {
	sorted := slices.Clone(vs)
	slices.SortStableFunc(sorted, func(a, b TransactionVolume) int {
		return cmp.Compare(a.Count, b.Count)
	})
	return sorted
}

// clampRate pins r into [0, 1]. Float rounding can leave a computed rate a few
// ulps outside the range.
func clampRate(r float64) float64 {
	switch {
	case r < 0:
		return 0
	case r > 1:
		return 1
	default:
		return r
	}
}

// shareOf is budget/total as a rate. A group with no volume keeps everything.
func shareOf(budget float64, total uint64) float64 {
	if total == 0 {
		return 1.0
	}
	return clampRate(budget / float64(total))
}
