package config

import (
	"reflect"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type TestFielder struct {
	S  string
	S2 string
	I  int
	F  float64
}

// implement getFielder
func (t *TestFielder) GetField(name string) reflect.Value {
	return reflect.ValueOf(t).Elem().FieldByName(name)
}

type TestConfig struct {
	St string  `cmdenv:"S"`
	It int     `cmdenv:"I"`
	Fl float64 `cmdenv:"F"`
	No string
}

type NestedConfig struct {
	Inner TestConfig
	Ptr   *TestConfig
}

type FallbackConfig struct {
	St string `cmdenv:"S,S2"`
}

type BadTestConfig1 struct {
	It int `cmdenv:"Q"`
}
type BadTestConfig2 struct {
	It int `cmdenv:"S"`
}

func TestApplyCmdEnvTags(t *testing.T) {
	tests := []struct {
		name    string
		fielder getFielder
		cfg     any
		want    any
		wantErr bool
	}{
		{"normal", &TestFielder{"foo", "bar", 1, 2.3}, &TestConfig{}, &TestConfig{"foo", 1, 2.3, ""}, false},
		{"zero values don't overwrite", &TestFielder{"", "", 0, 0}, &TestConfig{"keep", 5, 1.5, "x"}, &TestConfig{"keep", 5, 1.5, "x"}, false},
		{"nested", &TestFielder{"foo", "bar", 1, 2.3}, &NestedConfig{Ptr: &TestConfig{}}, &NestedConfig{TestConfig{"foo", 1, 2.3, ""}, &TestConfig{"foo", 1, 2.3, ""}}, false},
		{"bad", &TestFielder{"foo", "bar", 1, 2.3}, &BadTestConfig1{}, &BadTestConfig1{}, true},
		{"type mismatch", &TestFielder{"foo", "bar", 1, 2.3}, &BadTestConfig2{17}, &BadTestConfig2{17}, true},
		{"fallback1", &TestFielder{"foo", "bar", 1, 2.3}, &FallbackConfig{}, &FallbackConfig{"foo"}, false},
		{"fallback2", &TestFielder{"", "bar", 1, 2.3}, &FallbackConfig{}, &FallbackConfig{"bar"}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := tt.cfg
			err := applyCmdEnvTags(reflect.ValueOf(cfg), tt.fielder)

			if (err != nil) != tt.wantErr {
				t.Errorf("ApplyCmdEnvTags() error = %v, wantErr %v", err, tt.wantErr)
				return
			}

			if !reflect.DeepEqual(cfg, tt.want) {
				t.Errorf("ApplyCmdEnvTags() = %v, want %v", cfg, tt.want)
			}
		})
	}
}

// Every cmdenv tag on the real config must name a CmdEnv field of the same type.
func TestConfigCmdEnvTagsAreValid(t *testing.T) {
	opts := &CmdEnv{
		Interval:                    Duration(1),
		VolumesPath:                 "v",
		RedisHost:                   "h",
		RedisUsername:               "u",
		RedisPassword:               "p",
		RedisAuthCode:               "a",
		HoneycombAPIKey:             "k",
		PrometheusMetricsListenAddr: "l",
		LogLevel:                    InfoLevel,
	}
	var c configContents
	require.NoError(t, opts.ApplyTags(reflect.ValueOf(&c)))
	assert.Equal(t, "h", c.Redis.Host)
	assert.Equal(t, "k", c.HoneycombLogger.APIKey)
	assert.Equal(t, "k", c.OTelTracing.APIKey)
	assert.Equal(t, "k", c.OTelMetrics.APIKey)
	assert.Equal(t, InfoLevel, c.Logger.Level)
	assert.Equal(t, Duration(1), c.Rebalance.Interval)
}

func TestNewCmdEnvOptions(t *testing.T) {
	opts, err := NewCmdEnvOptions([]string{"rebalancer", "-c", "a.yaml", "-c", "b.toml", "--log-level", "debug", "--interval", "90s", "--once"})
	require.NoError(t, err)
	assert.Equal(t, []string{"a.yaml", "b.toml"}, opts.ConfigLocations)
	assert.Equal(t, DebugLevel, opts.LogLevel)
	assert.Equal(t, "1m30s", opts.Interval.String())
	assert.True(t, opts.Once)

	_, err = NewCmdEnvOptions([]string{"rebalancer", "--log-level", "loud"})
	assert.Error(t, err)
}
