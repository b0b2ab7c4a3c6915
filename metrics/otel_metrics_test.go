package metrics

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"

	"github.com/honeycombio/rebalancer/config"
	"github.com/honeycombio/rebalancer/logger"
)

func startOTelMetrics(t *testing.T) (*OTelMetrics, *sdkmetric.ManualReader) {
	t.Helper()
	reader := sdkmetric.NewManualReader()
	o := &OTelMetrics{
		Logger: &logger.MockLogger{},
		Config: &config.MockConfig{
			GetOTelMetricsConfigVal: config.OTelMetricsConfig{
				Enabled: true,
				APIHost: "http://localhost:4318",
				Dataset: "rebalancer-metrics",
			},
		},
		Version:    "test",
		testReader: reader,
	}
	require.NoError(t, o.Start())
	t.Cleanup(func() { o.Stop() })
	return o, reader
}

func collect(t *testing.T, reader *sdkmetric.ManualReader) map[string]metricdata.Aggregation {
	t.Helper()
	var rm metricdata.ResourceMetrics
	require.NoError(t, reader.Collect(context.Background(), &rm))
	found := make(map[string]metricdata.Aggregation)
	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			found[m.Name] = m.Data
		}
	}
	return found
}

func TestOTelMetricsRecords(t *testing.T) {
	o, reader := startOTelMetrics(t)

	o.Register(Metadata{Name: "runs", Type: Counter})
	o.Register(Metadata{Name: "fallback_rate", Type: Gauge})
	o.Register(Metadata{Name: "duration_ms", Type: Histogram, Unit: Milliseconds})
	o.Register(Metadata{Name: "in_flight", Type: UpDown})

	o.Increment("runs")
	o.Count("runs", uint64(2))
	o.Gauge("fallback_rate", 12.5)
	o.Histogram("duration_ms", 3)
	o.Histogram("duration_ms", 5)
	o.Up("in_flight")
	o.Up("in_flight")
	o.Down("in_flight")

	found := collect(t, reader)
	require.Contains(t, found, "num_goroutines")

	runs, ok := found["runs"].(metricdata.Sum[float64])
	require.True(t, ok)
	require.Len(t, runs.DataPoints, 1)
	assert.Equal(t, 3.0, runs.DataPoints[0].Value)

	gauge, ok := found["fallback_rate"].(metricdata.Gauge[float64])
	require.True(t, ok)
	require.Len(t, gauge.DataPoints, 1)
	assert.Equal(t, 12.5, gauge.DataPoints[0].Value)

	hist, ok := found["duration_ms"].(metricdata.Histogram[float64])
	require.True(t, ok)
	require.Len(t, hist.DataPoints, 1)
	assert.Equal(t, uint64(2), hist.DataPoints[0].Count)
	assert.Equal(t, 8.0, hist.DataPoints[0].Sum)

	updown, ok := found["in_flight"].(metricdata.Sum[int64])
	require.True(t, ok)
	require.Len(t, updown.DataPoints, 1)
	assert.Equal(t, int64(1), updown.DataPoints[0].Value)

	_, ok = o.Get("runs")
	assert.False(t, ok)
}

func TestOTelMetricsUnregisteredNamesAreCreated(t *testing.T) {
	o, reader := startOTelMetrics(t)
	o.Increment("surprise")
	assert.Contains(t, collect(t, reader), "surprise")
}

func TestOTelMetricsRaciness(t *testing.T) {
	o, _ := startOTelMetrics(t)
	o.Register(Metadata{Name: "race", Type: Counter})

	var wg sync.WaitGroup
	const loopLength = 50
	for i := 0; i < loopLength; i++ {
		wg.Add(2)
		go func(j int) {
			defer wg.Done()
			o.Register(Metadata{Name: fmt.Sprintf("metric%d", j), Type: Counter})
		}(i)
		go func() {
			defer wg.Done()
			o.Increment("race")
		}()
	}
	wg.Wait()

	count := 0
	o.counters.Range(func(_, _ any) bool {
		count++
		return true
	})
	assert.Equal(t, loopLength+1, count)
}
