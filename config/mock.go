package config

import (
	"sort"
	"sync"
)

// MockConfig will respond with whatever config it's set to do during
// initialization
type MockConfig struct {
	Callbacks                     []ConfigReloadCallback
	Hash                          string
	GetGeneralConfigVal           GeneralConfig
	GetRebalanceConfigVal         RebalanceConfig
	GetProjectsVal                map[string]ProjectConfig
	GetVolumesConfigVal           VolumesConfig
	GetStoreConfigVal             StoreConfig
	GetPubSubConfigVal            PubSubConfig
	GetRedisConfigVal             RedisConfig
	GetLoggerTypeVal              string
	GetLoggerLevelVal             Level
	GetStdoutLoggerConfigVal      StdoutLoggerConfig
	GetHoneycombLoggerConfigVal   HoneycombLoggerConfig
	GetPrometheusMetricsConfigVal PrometheusMetricsConfig
	GetOTelMetricsConfigVal       OTelMetricsConfig
	GetOTelTracingConfigVal       OTelTracingConfig

	Mux sync.RWMutex
}

var _ Config = (*MockConfig)(nil)

// Reload calls every registered callback with the current hash.
func (m *MockConfig) Reload() {
	m.Mux.RLock()
	callbacks := m.Callbacks
	hash := m.Hash
	m.Mux.RUnlock()

	for _, callback := range callbacks {
		callback(hash)
	}
}

func (m *MockConfig) RegisterReloadCallback(callback ConfigReloadCallback) {
	m.Mux.Lock()
	m.Callbacks = append(m.Callbacks, callback)
	m.Mux.Unlock()
}

func (m *MockConfig) GetHash() string {
	m.Mux.RLock()
	defer m.Mux.RUnlock()

	return m.Hash
}

func (m *MockConfig) GetGeneralConfig() GeneralConfig {
	m.Mux.RLock()
	defer m.Mux.RUnlock()

	return m.GetGeneralConfigVal
}

func (m *MockConfig) GetRebalanceConfig() RebalanceConfig {
	m.Mux.RLock()
	defer m.Mux.RUnlock()

	return m.GetRebalanceConfigVal
}

func (m *MockConfig) GetProjects() []string {
	m.Mux.RLock()
	defer m.Mux.RUnlock()

	projects := make([]string, 0, len(m.GetProjectsVal))
	for name := range m.GetProjectsVal {
		projects = append(projects, name)
	}
	sort.Strings(projects)
	return projects
}

func (m *MockConfig) GetRebalanceTarget(project string) (float64, int) {
	m.Mux.RLock()
	defer m.Mux.RUnlock()

	c := configContents{Rebalance: m.GetRebalanceConfigVal, Projects: m.GetProjectsVal}
	return c.rebalanceTarget(project)
}

func (m *MockConfig) GetVolumesConfig() VolumesConfig {
	m.Mux.RLock()
	defer m.Mux.RUnlock()

	return m.GetVolumesConfigVal
}

func (m *MockConfig) GetStoreConfig() StoreConfig {
	m.Mux.RLock()
	defer m.Mux.RUnlock()

	return m.GetStoreConfigVal
}

func (m *MockConfig) GetPubSubConfig() PubSubConfig {
	m.Mux.RLock()
	defer m.Mux.RUnlock()

	return m.GetPubSubConfigVal
}

func (m *MockConfig) GetRedisConfig() RedisConfig {
	m.Mux.RLock()
	defer m.Mux.RUnlock()

	return m.GetRedisConfigVal
}

func (m *MockConfig) GetLoggerType() string {
	m.Mux.RLock()
	defer m.Mux.RUnlock()

	return m.GetLoggerTypeVal
}

func (m *MockConfig) GetLoggerLevel() Level {
	m.Mux.RLock()
	defer m.Mux.RUnlock()

	return m.GetLoggerLevelVal
}

func (m *MockConfig) GetStdoutLoggerConfig() StdoutLoggerConfig {
	m.Mux.RLock()
	defer m.Mux.RUnlock()

	return m.GetStdoutLoggerConfigVal
}

func (m *MockConfig) GetHoneycombLoggerConfig() HoneycombLoggerConfig {
	m.Mux.RLock()
	defer m.Mux.RUnlock()

	return m.GetHoneycombLoggerConfigVal
}

func (m *MockConfig) GetPrometheusMetricsConfig() PrometheusMetricsConfig {
	m.Mux.RLock()
	defer m.Mux.RUnlock()

	return m.GetPrometheusMetricsConfigVal
}

func (m *MockConfig) GetOTelMetricsConfig() OTelMetricsConfig {
	m.Mux.RLock()
	defer m.Mux.RUnlock()

	return m.GetOTelMetricsConfigVal
}

func (m *MockConfig) GetOTelTracingConfig() OTelTracingConfig {
	m.Mux.RLock()
	defer m.Mux.RUnlock()

	return m.GetOTelTracingConfigVal
}
