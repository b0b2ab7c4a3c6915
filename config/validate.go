package config

import (
	"fmt"
	"math"
	"slices"
	"sort"
	"time"

	"github.com/agnivade/levenshtein"
)

var (
	validVolumeTypes = []string{"file", "redis"}
	validStoreTypes  = []string{"local", "redis"}
	validPubSubTypes = []string{"local", "redis"}
	validLoggerTypes = []string{"stdout", "honeycomb", "none"}
)

func validRate(r float64) bool {
	return !math.IsNaN(r) && r >= 0 && r <= 1
}

func oneOf(failures []string, field, value string, choices []string) []string {
	if !slices.Contains(choices, value) {
		failures = append(failures, fmt.Sprintf("%s is %q; must be one of %v", field, value, choices))
	}
	return failures
}

// validate checks the values of a fully loaded and defaulted config. It
// returns a list of failures; if the list is empty, the config is valid.
func (c *configContents) validate() []string {
	var failures []string

	r := c.Rebalance
	if r.Interval <= 0 {
		failures = append(failures, "Rebalance.Interval must be positive")
	}
	if r.Concurrency < 1 {
		failures = append(failures, "Rebalance.Concurrency must be at least 1")
	}
	if !validRate(r.DefaultTargetRate) {
		failures = append(failures, fmt.Sprintf("Rebalance.DefaultTargetRate %v must be between 0 and 1", r.DefaultTargetRate))
	}
	if r.MaxExplicitTransactions < 0 {
		failures = append(failures, "Rebalance.MaxExplicitTransactions must not be negative")
	}
	if r.RateTTL <= 0 {
		failures = append(failures, "Rebalance.RateTTL must be positive")
	}

	projects := make([]string, 0, len(c.Projects))
	for name := range c.Projects {
		projects = append(projects, name)
	}
	sort.Strings(projects)
	for _, name := range projects {
		p := c.Projects[name]
		if name == "" {
			failures = append(failures, "Projects must not contain an empty project name")
		}
		if p.TargetRate != nil && !validRate(*p.TargetRate) {
			failures = append(failures, fmt.Sprintf("Projects.%s.TargetRate %v must be between 0 and 1", name, *p.TargetRate))
		}
		if p.MaxExplicitTransactions != nil && *p.MaxExplicitTransactions < 0 {
			failures = append(failures, fmt.Sprintf("Projects.%s.MaxExplicitTransactions must not be negative", name))
		}
	}

	failures = oneOf(failures, "Volumes.Type", c.Volumes.Type, validVolumeTypes)
	if c.Volumes.Type == "file" && c.Volumes.Path == "" {
		failures = append(failures, "Volumes.Path is required when Volumes.Type is file")
	}
	if c.Volumes.MaxTransactions < 1 {
		failures = append(failures, "Volumes.MaxTransactions must be at least 1")
	}
	failures = oneOf(failures, "Store.Type", c.Store.Type, validStoreTypes)
	if c.Store.Type == "local" && c.Store.CacheCapacity < 1 {
		failures = append(failures, "Store.CacheCapacity must be at least 1")
	}
	failures = oneOf(failures, "PubSub.Type", c.PubSub.Type, validPubSubTypes)

	usesRedis := c.Volumes.Type == "redis" || c.Store.Type == "redis" || c.PubSub.Type == "redis"
	if usesRedis && c.Redis.Host == "" && len(c.Redis.ClusterHosts) == 0 {
		failures = append(failures, "Redis.Host or Redis.ClusterHosts is required when any component uses redis")
	}

	failures = oneOf(failures, "Logger.Type", c.Logger.Type, validLoggerTypes)
	if c.Logger.Level == UnknownLevel {
		failures = append(failures, "Logger.Level is not a known level")
	}
	if c.Logger.Type == "honeycomb" && c.HoneycombLogger.APIKey == "" {
		failures = append(failures, "HoneycombLogger.APIKey is required when Logger.Type is honeycomb")
	}
	if c.StdoutLogger.SamplerEnabled && c.StdoutLogger.SamplerThroughput < 1 {
		failures = append(failures, "StdoutLogger.SamplerThroughput must be at least 1")
	}
	if c.PrometheusMetrics.Enabled && c.PrometheusMetrics.ListenAddr == "" {
		failures = append(failures, "PrometheusMetrics.ListenAddr is required when PrometheusMetrics is enabled")
	}
	if c.OTelMetrics.Enabled && c.OTelMetrics.ReportingInterval < Duration(time.Second) {
		failures = append(failures, "OTelMetrics.ReportingInterval must be at least 1s")
	}

	return failures
}

// validateSections reports top-level sections in the config files that this
// program doesn't know about, with a suggestion when one is close.
func validateSections(locations []string) ([]string, error) {
	userData := make(map[string]any)
	if err := loadConfigsIntoMap(userData, locations); err != nil {
		return nil, err
	}

	known := sectionNames()
	keys := make([]string, 0, len(userData))
	for k := range userData {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var failures []string
	for _, k := range keys {
		if slices.Contains(known, k) {
			continue
		}
		msg := fmt.Sprintf("unknown config section %q", k)
		if suggestion := closest(k, known); suggestion != "" {
			msg += fmt.Sprintf("; did you mean %q?", suggestion)
		}
		failures = append(failures, msg)
	}
	return failures, nil
}

// closest returns the candidate with the smallest edit distance from s, if it
// is close enough to be a plausible typo.
func closest(s string, candidates []string) string {
	best := ""
	bestDistance := math.MaxInt
	for _, c := range candidates {
		if d := levenshtein.ComputeDistance(s, c); d < bestDistance {
			best, bestDistance = c, d
		}
	}
	if bestDistance > len(s)/2 {
		return ""
	}
	return best
}
