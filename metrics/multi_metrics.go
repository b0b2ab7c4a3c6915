package metrics

import (
	"sync"

	"github.com/honeycombio/rebalancer/config"
)

// MultiMetrics is a metrics provider that sends metrics to zero or more other
// metrics providers.
//
// It implements and intercepts the Store method since the children don't need
// to know about it, and also records the values that Get returns. Even if there
// are no metrics providers configured, this allows us to use the metrics
// package to store values that can be retrieved later.
type MultiMetrics struct {
	children []Metrics
	// values keeps a map of all the non-histogram metrics and their current
	// value so that we can retrieve them with Get()
	values map[string]float64
	lock   sync.RWMutex
}

var _ Metrics = (*MultiMetrics)(nil)

func NewMultiMetrics() *MultiMetrics {
	return &MultiMetrics{
		values: make(map[string]float64),
	}
}

// GetMetricsImplementation returns a MultiMetrics along with the child
// backends the config enables. The children still need their dependencies
// injected and must be started before use.
func GetMetricsImplementation(c config.Config) (*MultiMetrics, []Metrics) {
	m := NewMultiMetrics()
	if c.GetPrometheusMetricsConfig().Enabled {
		m.AddChild(&PromMetrics{})
	}
	if c.GetOTelMetricsConfig().Enabled {
		m.AddChild(&OTelMetrics{})
	}
	return m, m.Children()
}

func (m *MultiMetrics) AddChild(met Metrics) {
	m.lock.Lock()
	defer m.lock.Unlock()
	m.children = append(m.children, met)
}

func (m *MultiMetrics) Children() []Metrics {
	m.lock.RLock()
	defer m.lock.RUnlock()
	return append([]Metrics(nil), m.children...)
}

func (m *MultiMetrics) Register(metadata Metadata) {
	for _, ch := range m.Children() {
		ch.Register(metadata)
	}
	m.lock.Lock()
	defer m.lock.Unlock()
	if _, ok := m.values[metadata.Name]; !ok {
		m.values[metadata.Name] = 0
	}
}

func (m *MultiMetrics) Increment(name string) { // for counters
	for _, ch := range m.Children() {
		ch.Increment(name)
	}
	m.lock.Lock()
	defer m.lock.Unlock()
	m.values[name]++
}

func (m *MultiMetrics) Gauge(name string, val any) { // for gauges
	for _, ch := range m.Children() {
		ch.Gauge(name, val)
	}
	m.lock.Lock()
	defer m.lock.Unlock()
	m.values[name] = ConvertNumeric(val)
}

func (m *MultiMetrics) Count(name string, n any) { // for counters
	for _, ch := range m.Children() {
		ch.Count(name, n)
	}
	m.lock.Lock()
	defer m.lock.Unlock()
	m.values[name] += ConvertNumeric(n)
}

func (m *MultiMetrics) Histogram(name string, obs any) { // for histogram
	for _, ch := range m.Children() {
		ch.Histogram(name, obs)
	}
}

func (m *MultiMetrics) Up(name string) { // for updown
	for _, ch := range m.Children() {
		ch.Up(name)
	}
	m.lock.Lock()
	defer m.lock.Unlock()
	m.values[name]++
}

func (m *MultiMetrics) Down(name string) { // for updown
	for _, ch := range m.Children() {
		ch.Down(name)
	}
	m.lock.Lock()
	defer m.lock.Unlock()
	m.values[name]--
}

func (m *MultiMetrics) Get(name string) (float64, bool) { // for reading back a counter or a gauge
	m.lock.RLock()
	defer m.lock.RUnlock()
	v, ok := m.values[name]
	return v, ok
}

func (m *MultiMetrics) Store(name string, val float64) { // for storing a rarely-changing value not sent as a metric
	m.lock.Lock()
	defer m.lock.Unlock()
	m.values[name] = val
}
