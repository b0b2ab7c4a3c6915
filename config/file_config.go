package config

import (
	"fmt"
	"reflect"
	"sort"
	"sync"
	"time"
)

// In order to be able to unmarshal "15s" etc. into time.Duration, we use the
// Duration type in these structs.

type configContents struct {
	General           GeneralConfig            `yaml:"General"`
	Rebalance         RebalanceConfig          `yaml:"Rebalance"`
	Projects          map[string]ProjectConfig `yaml:"Projects"`
	Volumes           VolumesConfig            `yaml:"Volumes"`
	Store             StoreConfig              `yaml:"Store"`
	PubSub            PubSubConfig             `yaml:"PubSub"`
	Redis             RedisConfig              `yaml:"Redis"`
	Logger            LoggerConfig             `yaml:"Logger"`
	StdoutLogger      StdoutLoggerConfig       `yaml:"StdoutLogger"`
	HoneycombLogger   HoneycombLoggerConfig    `yaml:"HoneycombLogger"`
	PrometheusMetrics PrometheusMetricsConfig  `yaml:"PrometheusMetrics"`
	OTelMetrics       OTelMetricsConfig        `yaml:"OTelMetrics"`
	OTelTracing       OTelTracingConfig        `yaml:"OTelTracing"`
}

type GeneralConfig struct {
	ConfigReloadInterval Duration `yaml:"ConfigReloadInterval" default:"5m"`
}

type RebalanceConfig struct {
	Interval                Duration     `yaml:"Interval" default:"1m" cmdenv:"Interval"`
	Concurrency             int          `yaml:"Concurrency" default:"8"`
	DefaultTargetRate       float64      `yaml:"DefaultTargetRate" default:"0.1"`
	MaxExplicitTransactions int          `yaml:"MaxExplicitTransactions" default:"30"`
	RateTTL                 Duration     `yaml:"RateTTL" default:"24h"`
	DiscoverProjects        *DefaultTrue `yaml:"DiscoverProjects" default:"true"`
}

// ProjectConfig overrides the rebalance defaults for one project. Nil fields
// fall back to the Rebalance section.
type ProjectConfig struct {
	TargetRate              *float64 `yaml:"TargetRate"`
	MaxExplicitTransactions *int     `yaml:"MaxExplicitTransactions"`
}

type VolumesConfig struct {
	Type            string `yaml:"Type" default:"file"`
	Path            string `yaml:"Path" cmdenv:"VolumesPath"`
	MaxTransactions int    `yaml:"MaxTransactions" default:"1000"`
}

type StoreConfig struct {
	Type          string `yaml:"Type" default:"local"`
	CacheCapacity int    `yaml:"CacheCapacity" default:"10000"`
}

type PubSubConfig struct {
	Type string `yaml:"Type" default:"local"`
}

type RedisConfig struct {
	Host           string   `yaml:"Host" cmdenv:"RedisHost"`
	ClusterHosts   []string `yaml:"ClusterHosts"`
	Username       string   `yaml:"Username" cmdenv:"RedisUsername"`
	Password       string   `yaml:"Password" cmdenv:"RedisPassword"`
	AuthCode       string   `yaml:"AuthCode" cmdenv:"RedisAuthCode"`
	Database       int      `yaml:"Database"`
	Prefix         string   `yaml:"Prefix" default:"rebalancer"`
	UseTLS         bool     `yaml:"UseTLS"`
	UseTLSInsecure bool     `yaml:"UseTLSInsecure"`
	Timeout        Duration `yaml:"Timeout" default:"5s"`
}

type LoggerConfig struct {
	Type  string `yaml:"Type" default:"stdout"`
	Level Level  `yaml:"Level" default:"warn" cmdenv:"LogLevel"`
}

type StdoutLoggerConfig struct {
	Structured        bool `yaml:"Structured" default:"false"`
	SamplerEnabled    bool `yaml:"SamplerEnabled" default:"false"`
	SamplerThroughput int  `yaml:"SamplerThroughput" default:"10"`
}

type HoneycombLoggerConfig struct {
	APIHost           string       `yaml:"APIHost" default:"https://api.honeycomb.io"`
	APIKey            string       `yaml:"APIKey" cmdenv:"HoneycombLoggerAPIKey,HoneycombAPIKey"`
	Dataset           string       `yaml:"Dataset" default:"Rebalancer Logs"`
	SamplerEnabled    *DefaultTrue `yaml:"SamplerEnabled" default:"true"`
	SamplerThroughput int          `yaml:"SamplerThroughput" default:"10"`
}

type PrometheusMetricsConfig struct {
	Enabled    bool   `yaml:"Enabled" default:"false"`
	ListenAddr string `yaml:"ListenAddr" default:"localhost:2112" cmdenv:"PrometheusMetricsListenAddr"`
}

type OTelMetricsConfig struct {
	Enabled           bool     `yaml:"Enabled" default:"false"`
	APIHost           string   `yaml:"APIHost" default:"https://api.honeycomb.io"`
	APIKey            string   `yaml:"APIKey" cmdenv:"OTelMetricsAPIKey,HoneycombAPIKey"`
	Dataset           string   `yaml:"Dataset" default:"Rebalancer Metrics"`
	ReportingInterval Duration `yaml:"ReportingInterval" default:"30s"`
}

type OTelTracingConfig struct {
	Enabled    bool   `yaml:"Enabled" default:"false"`
	APIHost    string `yaml:"APIHost" default:"https://api.honeycomb.io"`
	APIKey     string `yaml:"APIKey" cmdenv:"OTelTracesAPIKey,HoneycombAPIKey"`
	Dataset    string `yaml:"Dataset" default:"Rebalancer Traces"`
	SampleRate uint64 `yaml:"SampleRate" default:"100"`
}

type fileConfig struct {
	mainConfig    *configContents
	mainHash      string
	opts          *CmdEnv
	callbacks     []ConfigReloadCallback
	errorCallback func(error)
	done          chan struct{}
	ticker        *time.Ticker
	mux           sync.RWMutex
}

var _ Config = (*fileConfig)(nil)

func newFileConfig(opts *CmdEnv) (*fileConfig, error) {
	mainconf := &configContents{}
	mainhash, err := readConfigInto(mainconf, opts.ConfigLocations, opts)
	if err != nil {
		return nil, err
	}

	cfg := &fileConfig{
		mainConfig: mainconf,
		mainHash:   mainhash,
		opts:       opts,
	}

	return cfg, nil
}

// NewConfig loads, defaults, and validates the config named by opts. If the
// config asks for it, a goroutine polls the config locations for changes;
// errorCallback is told about any reload that fails.
func NewConfig(opts *CmdEnv, errorCallback func(error)) (Config, error) {
	cfg, err := newFileConfig(opts)
	if err != nil {
		return nil, err
	}

	if failures := cfg.mainConfig.validate(); len(failures) > 0 {
		return nil, fmt.Errorf("validation failed for config: %v", failures)
	}
	if failures, err := validateSections(opts.ConfigLocations); err != nil {
		return nil, err
	} else if len(failures) > 0 {
		return nil, fmt.Errorf("validation failed for config: %v", failures)
	}

	cfg.errorCallback = errorCallback

	if interval := cfg.mainConfig.General.ConfigReloadInterval; interval > 0 {
		cfg.done = make(chan struct{})
		cfg.ticker = time.NewTicker(time.Duration(interval))
		go cfg.monitor(cfg.done, cfg.ticker)
	}

	return cfg, nil
}

// monitor polls the config locations and reloads when their contents change.
func (f *fileConfig) monitor(done chan struct{}, ticker *time.Ticker) {
	for {
		select {
		case <-done:
			return
		case <-ticker.C:
			f.Reload()
		}
	}
}

// Stop halts the monitor goroutine
func (f *fileConfig) Stop() error {
	if f.ticker != nil {
		f.ticker.Stop()
	}
	if f.done != nil {
		close(f.done)
		f.done = nil
	}
	return nil
}

func (f *fileConfig) Reload() {
	newConfig, err := newFileConfig(f.opts)
	if err != nil {
		if f.errorCallback != nil {
			f.errorCallback(err)
		}
		return
	}
	if failures := newConfig.mainConfig.validate(); len(failures) > 0 {
		if f.errorCallback != nil {
			f.errorCallback(fmt.Errorf("validation failed for reloaded config: %v", failures))
		}
		return
	}

	f.mux.Lock()
	if f.mainHash == newConfig.mainHash {
		f.mux.Unlock()
		return
	}
	f.mainConfig = newConfig.mainConfig
	f.mainHash = newConfig.mainHash
	callbacks := f.callbacks
	hash := f.mainHash
	f.mux.Unlock()

	for _, cb := range callbacks {
		cb(hash)
	}
}

func (f *fileConfig) RegisterReloadCallback(cb ConfigReloadCallback) {
	f.mux.Lock()
	defer f.mux.Unlock()

	f.callbacks = append(f.callbacks, cb)
}

func (f *fileConfig) GetHash() string {
	f.mux.RLock()
	defer f.mux.RUnlock()

	return f.mainHash
}

func (f *fileConfig) GetGeneralConfig() GeneralConfig {
	f.mux.RLock()
	defer f.mux.RUnlock()

	return f.mainConfig.General
}

func (f *fileConfig) GetRebalanceConfig() RebalanceConfig {
	f.mux.RLock()
	defer f.mux.RUnlock()

	return f.mainConfig.Rebalance
}

func (f *fileConfig) GetProjects() []string {
	f.mux.RLock()
	defer f.mux.RUnlock()

	projects := make([]string, 0, len(f.mainConfig.Projects))
	for name := range f.mainConfig.Projects {
		projects = append(projects, name)
	}
	sort.Strings(projects)
	return projects
}

func (f *fileConfig) GetRebalanceTarget(project string) (float64, int) {
	f.mux.RLock()
	defer f.mux.RUnlock()

	return f.mainConfig.rebalanceTarget(project)
}

func (c *configContents) rebalanceTarget(project string) (float64, int) {
	targetRate := c.Rebalance.DefaultTargetRate
	maxExplicit := c.Rebalance.MaxExplicitTransactions
	if override, ok := c.Projects[project]; ok {
		if override.TargetRate != nil {
			targetRate = *override.TargetRate
		}
		if override.MaxExplicitTransactions != nil {
			maxExplicit = *override.MaxExplicitTransactions
		}
	}
	return targetRate, maxExplicit
}

func (f *fileConfig) GetVolumesConfig() VolumesConfig {
	f.mux.RLock()
	defer f.mux.RUnlock()

	return f.mainConfig.Volumes
}

func (f *fileConfig) GetStoreConfig() StoreConfig {
	f.mux.RLock()
	defer f.mux.RUnlock()

	return f.mainConfig.Store
}

func (f *fileConfig) GetPubSubConfig() PubSubConfig {
	f.mux.RLock()
	defer f.mux.RUnlock()

	return f.mainConfig.PubSub
}

func (f *fileConfig) GetRedisConfig() RedisConfig {
	f.mux.RLock()
	defer f.mux.RUnlock()

	return f.mainConfig.Redis
}

func (f *fileConfig) GetLoggerType() string {
	f.mux.RLock()
	defer f.mux.RUnlock()

	return f.mainConfig.Logger.Type
}

func (f *fileConfig) GetLoggerLevel() Level {
	f.mux.RLock()
	defer f.mux.RUnlock()

	return f.mainConfig.Logger.Level
}

func (f *fileConfig) GetStdoutLoggerConfig() StdoutLoggerConfig {
	f.mux.RLock()
	defer f.mux.RUnlock()

	return f.mainConfig.StdoutLogger
}

func (f *fileConfig) GetHoneycombLoggerConfig() HoneycombLoggerConfig {
	f.mux.RLock()
	defer f.mux.RUnlock()

	return f.mainConfig.HoneycombLogger
}

func (f *fileConfig) GetPrometheusMetricsConfig() PrometheusMetricsConfig {
	f.mux.RLock()
	defer f.mux.RUnlock()

	return f.mainConfig.PrometheusMetrics
}

func (f *fileConfig) GetOTelMetricsConfig() OTelMetricsConfig {
	f.mux.RLock()
	defer f.mux.RUnlock()

	return f.mainConfig.OTelMetrics
}

func (f *fileConfig) GetOTelTracingConfig() OTelTracingConfig {
	f.mux.RLock()
	defer f.mux.RUnlock()

	return f.mainConfig.OTelTracing
}

// sectionNames returns the yaml names of the top-level config sections.
func sectionNames() []string {
	t := reflect.TypeOf(configContents{})
	names := make([]string, 0, t.NumField())
	for i := 0; i < t.NumField(); i++ {
		names = append(names, t.Field(i).Tag.Get("yaml"))
	}
	return names
}
