package metrics

import (
	"testing"

	"github.com/facebookgo/inject"
	"github.com/facebookgo/startstop"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/honeycombio/rebalancer/config"
	"github.com/honeycombio/rebalancer/logger"
)

type testLogger struct {
	t *testing.T
}

func (l testLogger) Debugf(format string, v ...any) { l.t.Logf(format, v...) }
func (l testLogger) Errorf(format string, v ...any) { l.t.Logf(format, v...) }

func getAndStartMultiMetrics(t *testing.T, children ...Metrics) *MultiMetrics {
	mm := NewMultiMetrics()
	objects := []*inject.Object{
		{Value: mm, Name: "metrics"},
		{Value: &config.MockConfig{
			GetPrometheusMetricsConfigVal: config.PrometheusMetricsConfig{Enabled: true, ListenAddr: "127.0.0.1:0"},
		}},
		{Value: &logger.NullLogger{}},
	}
	for _, child := range children {
		mm.AddChild(child)
		objects = append(objects, &inject.Object{Value: child})
	}
	g := inject.Graph{Logger: testLogger{t}}
	require.NoError(t, g.Provide(objects...))
	require.NoError(t, g.Populate())

	require.NoError(t, startstop.Start(g.Objects(), testLogger{t}))
	t.Cleanup(func() { startstop.Stop(g.Objects(), testLogger{t}) })

	return mm
}

func TestMultiMetrics_Register(t *testing.T) {
	// a standalone metrics with no children can register and store values
	mm := getAndStartMultiMetrics(t)
	mm.Register(Metadata{Name: "updown", Type: UpDown})
	mm.Register(Metadata{Name: "counter", Type: Counter})
	mm.Register(Metadata{Name: "gauge", Type: Gauge})

	mm.Count("counter", 1)
	mm.Up("updown")
	mm.Up("updown")
	mm.Up("updown")
	mm.Down("updown")
	mm.Gauge("gauge", 42)

	val, ok := mm.Get("counter")
	assert.True(t, ok)
	assert.Equal(t, 1, int(val))

	val, ok = mm.Get("updown")
	assert.True(t, ok)
	assert.Equal(t, 2, int(val))

	val, ok = mm.Get("gauge")
	assert.True(t, ok)
	assert.Equal(t, 42, int(val))

	// registering again doesn't reset the value
	mm.Register(Metadata{Name: "gauge", Type: Gauge})
	val, _ = mm.Get("gauge")
	assert.Equal(t, 42, int(val))

	// non-existent metric should not be ok
	_, ok = mm.Get("non-existent")
	assert.False(t, ok)
}

func TestMultiMetrics_FansOut(t *testing.T) {
	mock := &MockMetrics{}
	mock.Start()
	prom := &PromMetrics{}
	mm := getAndStartMultiMetrics(t, mock, prom)

	mm.Register(Metadata{Name: "runs", Type: Counter})
	mm.Register(Metadata{Name: "duration_ms", Type: Histogram, Unit: Milliseconds})
	mm.Increment("runs")
	mm.Histogram("duration_ms", 12.5)
	mm.Store("interval_seconds", 60)

	assert.Equal(t, 1, mock.CounterIncrements["runs"])
	assert.Equal(t, []float64{12.5}, mock.HistogramValues("duration_ms"))
	// Store is intercepted and not forwarded
	_, ok := mock.Constants["interval_seconds"]
	assert.False(t, ok)
	val, ok := mm.Get("interval_seconds")
	assert.True(t, ok)
	assert.Equal(t, 60.0, val)

	assert.Contains(t, scrape(t, prom), "runs 1")
}

func TestGetMetricsImplementation(t *testing.T) {
	mm, children := GetMetricsImplementation(&config.MockConfig{})
	assert.NotNil(t, mm)
	assert.Empty(t, children)

	mm, children = GetMetricsImplementation(&config.MockConfig{
		GetPrometheusMetricsConfigVal: config.PrometheusMetricsConfig{Enabled: true},
	})
	assert.NotNil(t, mm)
	require.Len(t, children, 1)
	assert.IsType(t, &PromMetrics{}, children[0])

	_, children = GetMetricsImplementation(&config.MockConfig{
		GetPrometheusMetricsConfigVal: config.PrometheusMetricsConfig{Enabled: true},
		GetOTelMetricsConfigVal:       config.OTelMetricsConfig{Enabled: true},
	})
	require.Len(t, children, 2)
	assert.IsType(t, &OTelMetrics{}, children[1])
}
