package allocator

import (
	"fmt"
	"math"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var volumeFixtures = map[string][]TransactionVolume{
	"single":      vols("only", 500),
	"uniform":     vols("a", 100, "b", 100, "c", 100, "d", 100),
	"long tail":   vols("a", 1, "b", 2, "c", 3, "d", 5, "e", 8, "f", 13, "g", 21, "h", 34, "i", 55, "j", 89),
	"one giant":   vols("a", 5, "b", 5, "c", 5, "d", 1000000),
	"with zeros":  vols("a", 0, "b", 0, "c", 7, "d", 70, "e", 700),
	"all zeros":   vols("a", 0, "b", 0, "c", 0),
	"two giants":  vols("a", 3, "b", 900000, "c", 17, "d", 1200000, "e", 40),
	"near equals": vols("a", 999, "b", 1000, "c", 1001, "d", 1002, "e", 998, "f", 1000),
}

var targetRates = []float64{1.0, 0.9, 0.5, 0.25, 0.1, 0.01, 0.001, 0}

func assertValidRate(t *testing.T, r float64, msgAndArgs ...any) {
	t.Helper()
	assert.False(t, math.IsNaN(r), msgAndArgs...)
	assert.GreaterOrEqual(t, r, 0.0, msgAndArgs...)
	assert.LessOrEqual(t, r, 1.0, msgAndArgs...)
}

func TestAllocationInvariants(t *testing.T) {
	for fixtureName, fixture := range volumeFixtures {
		for _, rate := range targetRates {
			for maxExplicit := 0; maxExplicit <= len(fixture)+1; maxExplicit++ {
				name := fmt.Sprintf("%s/rate=%v/max=%d", fixtureName, rate, maxExplicit)
				t.Run(name, func(t *testing.T) {
					res, err := AllocateSampleRates(AllocationRequest{
						Transactions:     fixture,
						TargetRate:       rate,
						MaxExplicitTypes: maxExplicit,
					})
					require.NoError(t, err)

					assertValidRate(t, res.FallbackRate, "fallback")
					for n, r := range res.ExplicitRates {
						assertValidRate(t, r, "rate for %s", n)
					}
					assert.LessOrEqual(t, len(res.ExplicitRates), max(len(fixture), maxExplicit))

					if rate == 1.0 {
						for _, v := range fixture {
							assert.Equal(t, 1.0, res.RateFor(v.Name), "rate for %s", v.Name)
						}
					}
				})
			}
		}
	}
}

func TestSingleTransactionGetsTargetRate(t *testing.T) {
	for _, rate := range targetRates {
		res, err := AllocateSampleRates(AllocationRequest{
			Transactions:     vols("only", 500),
			TargetRate:       rate,
			MaxExplicitTypes: 1,
		})
		require.NoError(t, err)
		assert.Equal(t, StrategyFull, res.Strategy)
		assert.InDelta(t, rate, res.ExplicitRates["only"], 1e-12)
	}
}

func TestFullResampleIgnoresInputOrder(t *testing.T) {
	rng := rand.New(rand.NewSource(42))
	for fixtureName, fixture := range volumeFixtures {
		t.Run(fixtureName, func(t *testing.T) {
			for _, rate := range targetRates {
				want := fullResample(fixture, rate)
				for i := 0; i < 5; i++ {
					shuffled := sortedByCount(fixture)
					rng.Shuffle(len(shuffled), func(i, j int) {
						shuffled[i], shuffled[j] = shuffled[j], shuffled[i]
					})
					got := fullResample(shuffled, rate)
					require.Len(t, got, len(want))
					for n, r := range want {
						assert.InDelta(t, r, got[n], 1e-12, "rate for %s at %v", n, rate)
					}
				}
			}
		})
	}
}

func TestFullResampleIsMonotoneInTargetRate(t *testing.T) {
	for fixtureName, fixture := range volumeFixtures {
		t.Run(fixtureName, func(t *testing.T) {
			var previous map[string]float64
			// targetRates is in descending order
			for _, rate := range targetRates {
				res, err := AllocateSampleRates(AllocationRequest{
					Transactions:     fixture,
					TargetRate:       rate,
					MaxExplicitTypes: len(fixture),
				})
				require.NoError(t, err)
				require.Equal(t, StrategyFull, res.Strategy)
				if previous != nil {
					for n, r := range res.ExplicitRates {
						assert.LessOrEqual(t, r, previous[n]+1e-12, "rate for %s rose at %v", n, rate)
					}
				}
				previous = res.ExplicitRates
			}
		})
	}
}

func TestFullResampleSpendsTheBudget(t *testing.T) {
	for fixtureName, fixture := range volumeFixtures {
		total := float64(TotalTransactions(fixture))
		if total == 0 {
			continue
		}
		t.Run(fixtureName, func(t *testing.T) {
			for _, rate := range targetRates {
				rates := fullResample(fixture, rate)
				var kept float64
				for _, v := range fixture {
					kept += float64(v.Count) * rates[v.Name]
				}
				assert.InDelta(t, total*rate, kept, 1e-6*total, "kept events at %v", rate)
			}
		})
	}
}
