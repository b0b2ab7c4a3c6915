package allocator

import "math"

// fullResample gives every transaction its own rate. Types are visited from
// smallest to largest; each gets an equal share of the budget that is left,
// and a type too small to use its share keeps everything and leaves the
// unused part for the larger types that follow.
func fullResample(vs []TransactionVolume, targetRate float64) map[string]float64 {
	sorted := sortedByCount(vs)
	rates := make(map[string]float64, len(sorted))
	budget := float64(TotalTransactions(sorted)) * targetRate

	for i, v := range sorted {
		perType := budget / float64(len(sorted)-i)
		count := float64(v.Count)
		if v.Count == 0 || count < perType {
			rates[v.Name] = 1.0
			budget -= count
			continue
		}
		rates[v.Name] = clampRate(perType / count)
		budget -= perType
	}
	return rates
}

// strategyOutcome is what a biased allocation produces. minSampleSize is the
// smallest number of events expected to survive for any sampled type, and is
// only used to choose between strategies.
type strategyOutcome struct {
	strategy      Strategy
	minSampleSize float64
	explicitRates map[string]float64
	fallbackRate  float64
}

// maxBiasedAllocation spends the explicit rates on the highest-volume types.
// sorted must be in ascending count order and longer than maxExplicit.
func maxBiasedAllocation(sorted []TransactionVolume, targetRate float64, maxExplicit int) strategyOutcome {
	budget := float64(TotalTransactions(sorted)) * targetRate
	perType := budget / float64(len(sorted))

	split := len(sorted) - maxExplicit
	small, big := sorted[:split], sorted[split:]
	totalSmall := TotalTransactions(small)

	if len(big) > 0 && float64(totalSmall) < perType*float64(len(small)) {
		// the small types fit under their fair share, so keep all of them and
		// hand what they don't use to the big ones
		bigRate := shareOf(budget-float64(totalSmall), TotalTransactions(big))
		rates := fullResample(big, bigRate)

		minSampleSize := math.Inf(1)
		for _, v := range big {
			if r := rates[v.Name]; r != 1.0 {
				minSampleSize = math.Min(minSampleSize, float64(v.Count)*r)
			}
		}
		if math.IsInf(minSampleSize, 1) {
			minSampleSize = perType
		}
		return strategyOutcome{
			strategy:      StrategyMaxBiased,
			minSampleSize: minSampleSize,
			explicitRates: rates,
			fallbackRate:  1.0,
		}
	}

	rates := make(map[string]float64, len(big))
	for _, v := range big {
		if v.Count == 0 {
			rates[v.Name] = 1.0
		} else {
			rates[v.Name] = clampRate(perType / float64(v.Count))
		}
		budget -= perType
	}
	fallback := shareOf(budget, totalSmall)
	return strategyOutcome{
		strategy:      StrategyMaxBiased,
		minSampleSize: float64(small[0].Count) * fallback,
		explicitRates: rates,
		fallbackRate:  fallback,
	}
}

// minBiasedAllocation spends the explicit rates on the lowest-volume types and
// lets every other type share a single rate. sorted must be in ascending count
// order and longer than maxExplicit.
func minBiasedAllocation(sorted []TransactionVolume, targetRate float64, maxExplicit int) strategyOutcome {
	budget := float64(TotalTransactions(sorted)) * targetRate
	perType := budget / float64(len(sorted))

	explicit, rest := sorted[:maxExplicit], sorted[maxExplicit:]
	rates := make(map[string]float64, len(explicit))
	for i, v := range explicit {
		count := float64(v.Count)
		if v.Count == 0 || count < perType {
			rates[v.Name] = 1.0
			budget -= count
		} else {
			rates[v.Name] = clampRate(perType / count)
			budget -= perType
		}
		perType = budget / float64(len(sorted)-i-1)
	}

	fallback := shareOf(budget, TotalTransactions(rest))
	return strategyOutcome{
		strategy:      StrategyMinBiased,
		minSampleSize: fallback * float64(rest[0].Count),
		explicitRates: rates,
		fallbackRate:  fallback,
	}
}
