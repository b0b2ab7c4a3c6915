// Package allocator computes per-transaction sample rates that meet an overall
// target rate while keeping as much of the low-volume traffic as possible.
//
// The computation is pure: it holds no state between calls and is safe to run
// concurrently from any number of goroutines.
package allocator

import (
	"fmt"
	"math"
)

// Strategy names the allocation pass that produced a result.
type Strategy string

const (
	StrategyNone      Strategy = "none"
	StrategyFull      Strategy = "full"
	StrategyMaxBiased Strategy = "max_biased"
	StrategyMinBiased Strategy = "min_biased"
)

// AllocationRequest describes one allocation. TargetRate is the fraction of
// all events, across every transaction, that should be kept.
// MaxExplicitTypes bounds how many transactions may receive their own rate.
type AllocationRequest struct {
	Transactions     []TransactionVolume
	TargetRate       float64
	MaxExplicitTypes int
}

// AllocationResult holds the explicit per-transaction rates and the rate that
// applies to every transaction not named in ExplicitRates.
type AllocationResult struct {
	ExplicitRates map[string]float64
	FallbackRate  float64
	Strategy      Strategy
}

// RateFor returns the rate that applies to the named transaction.
func (r AllocationResult) RateFor(name string) float64 {
	if rate, ok := r.ExplicitRates[name]; ok {
		return rate
	}
	return r.FallbackRate
}

// ValidationError reports a request that cannot be allocated.
type ValidationError struct {
	Field  string
	Value  any
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s %v: %s", e.Field, e.Value, e.Reason)
}

// Validate checks the request without doing any allocation work.
func (req AllocationRequest) Validate() error {
	if math.IsNaN(req.TargetRate) || req.TargetRate < 0 || req.TargetRate > 1 {
		return &ValidationError{Field: "TargetRate", Value: req.TargetRate, Reason: "must be between 0 and 1"}
	}
	if req.MaxExplicitTypes < 0 {
		return &ValidationError{Field: "MaxExplicitTypes", Value: req.MaxExplicitTypes, Reason: "must not be negative"}
	}
	return nil
}

// AllocateSampleRates computes the sample rates for req.
//
// When every transaction fits in the explicit budget, each one gets its own
// rate. Otherwise two biased allocations are computed, one favoring the
// largest transactions and one favoring the smallest, and the one that keeps
// more events for its most heavily sampled transaction wins. The min-biased
// allocation is kept unless the max-biased one is strictly better.
func AllocateSampleRates(req AllocationRequest) (AllocationResult, error) {
	if err := req.Validate(); err != nil {
		return AllocationResult{}, err
	}

	if len(req.Transactions) == 0 {
		return AllocationResult{
			ExplicitRates: map[string]float64{},
			FallbackRate:  req.TargetRate,
			Strategy:      StrategyNone,
		}, nil
	}

	if len(req.Transactions) <= req.MaxExplicitTypes {
		return AllocationResult{
			ExplicitRates: fullResample(req.Transactions, req.TargetRate),
			FallbackRate:  req.TargetRate,
			Strategy:      StrategyFull,
		}, nil
	}

	sorted := sortedByCount(req.Transactions)
	minBiased := minBiasedAllocation(sorted, req.TargetRate, req.MaxExplicitTypes)
	maxBiased := maxBiasedAllocation(sorted, req.TargetRate, req.MaxExplicitTypes)

	chosen := minBiased
	if minBiased.minSampleSize < maxBiased.minSampleSize {
		chosen = maxBiased
	}
	return AllocationResult{
		ExplicitRates: chosen.explicitRates,
		FallbackRate:  chosen.fallbackRate,
		Strategy:      chosen.strategy,
	}, nil
}
