package config

// Config defines the interface the rest of the code uses to get items from the
// config. There are different implementations of the config using different
// backends to store the config.
type Config interface {
	// RegisterReloadCallback takes a function that will be called whenever the
	// configuration is reloaded and its hash has changed. Consumers that set
	// things up from config values at startup should check whether the values
	// they use have changed and restart whatever depends on them.
	RegisterReloadCallback(callback ConfigReloadCallback)

	// Reload forces the config to attempt to reload its values. If the config
	// checksum has changed, the reload callbacks will be called.
	Reload()

	// GetHash returns the hash of the currently loaded config
	GetHash() string

	GetGeneralConfig() GeneralConfig

	GetRebalanceConfig() RebalanceConfig

	// GetProjects returns the names of the projects listed in the config, in
	// sorted order.
	GetProjects() []string

	// GetRebalanceTarget returns the target sample rate and the maximum number
	// of explicitly-rated transactions for a project, applying any
	// per-project override on top of the Rebalance defaults.
	GetRebalanceTarget(project string) (targetRate float64, maxExplicit int)

	GetVolumesConfig() VolumesConfig

	GetStoreConfig() StoreConfig

	GetPubSubConfig() PubSubConfig

	GetRedisConfig() RedisConfig

	// GetLoggerType returns the type of the logger to use. Valid types are in
	// the logger package
	GetLoggerType() string

	// GetLoggerLevel returns the level of the logger to use.
	GetLoggerLevel() Level

	GetStdoutLoggerConfig() StdoutLoggerConfig

	GetHoneycombLoggerConfig() HoneycombLoggerConfig

	GetPrometheusMetricsConfig() PrometheusMetricsConfig

	GetOTelMetricsConfig() OTelMetricsConfig

	GetOTelTracingConfig() OTelTracingConfig
}

type ConfigReloadCallback func(configHash string)
