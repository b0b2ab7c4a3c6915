package config

import (
	"fmt"
	"os"
	"reflect"
	"strings"

	"github.com/jessevdk/go-flags"
)

// CmdEnv is a struct that contains all the command line options; it's
// separate from the config struct so that we can apply the command line options
// and env vars after loading the config, and so they don't have to be tied to
// the config struct. Command line options override env vars, and both of them
// override values already in the struct when ApplyTags is called.
// Default values specified in this struct are shown in the help output, but
// most default values should be specified in the config so that the defaults
// system works.
// Note that this system uses reflection to establish the relationship between
// the config struct and the command line options.
type CmdEnv struct {
	ConfigLocations             []string `short:"c" long:"config" env:"REBALANCER_CONFIG" env-delim:"," default:"/etc/rebalancer/config.yaml" description:"config file or URL to load; may be repeated"`
	Interval                    Duration `long:"interval" env:"REBALANCER_INTERVAL" description:"how often to rebalance every project"`
	VolumesPath                 string   `long:"volumes-path" env:"REBALANCER_VOLUMES_PATH" description:"file to read transaction volumes from"`
	RedisHost                   string   `long:"redis-host" env:"REBALANCER_REDIS_HOST" description:"Redis host address"`
	RedisUsername               string   `long:"redis-username" env:"REBALANCER_REDIS_USERNAME" description:"Redis username"`
	RedisPassword               string   `long:"redis-password" env:"REBALANCER_REDIS_PASSWORD" description:"Redis password"`
	RedisAuthCode               string   `long:"redis-auth-code" env:"REBALANCER_REDIS_AUTH_CODE" description:"Redis AUTH code"`
	HoneycombAPIKey             string   `long:"honeycomb-api-key" env:"REBALANCER_HONEYCOMB_API_KEY" description:"Honeycomb API key used for logs and traces unless a more specific key is set"`
	HoneycombLoggerAPIKey       string   `long:"logger-api-key" env:"REBALANCER_HONEYCOMB_LOGGER_API_KEY" description:"Honeycomb API key for the Honeycomb logger"`
	OTelTracesAPIKey            string   `long:"otel-traces-api-key" env:"REBALANCER_OTEL_TRACES_API_KEY" description:"API key for OTel traces"`
	OTelMetricsAPIKey           string   `long:"otel-metrics-api-key" env:"REBALANCER_OTEL_METRICS_API_KEY" description:"API key for OTel metrics"`
	PrometheusMetricsListenAddr string   `long:"prometheus-listen-addr" env:"REBALANCER_PROMETHEUS_LISTEN_ADDR" description:"address for the Prometheus /metrics listener"`
	LogLevel                    Level    `long:"log-level" env:"REBALANCER_LOG_LEVEL" description:"logging level (debug, info, warn, error)"`
	Once                        bool     `long:"once" description:"run a single rebalance pass over every project, then exit"`
	Debug                       bool     `short:"d" long:"debug" description:"log dependency injection while starting up"`
	Version                     bool     `short:"v" long:"version" description:"print version number and exit"`
	Validate                    bool     `short:"V" long:"validate" description:"validate the configuration and exit"`
}

func NewCmdEnvOptions(args []string) (*CmdEnv, error) {
	opts := &CmdEnv{}

	if _, err := flags.ParseArgs(opts, args[1:]); err != nil {
		switch flagsErr := err.(type) {
		case *flags.Error:
			if flagsErr.Type == flags.ErrHelp {
				os.Exit(0)
			}
			return nil, err
		default:
			return nil, err
		}
	}

	return opts, nil
}

// GetField returns the reflect.Value for the field with the given name in the CmdEnv struct.
func (c *CmdEnv) GetField(name string) reflect.Value {
	return reflect.ValueOf(c).Elem().FieldByName(name)
}

// ApplyTags uses reflection to apply the values from the CmdEnv struct to the given struct.
// Any field in the struct that wants to be set from the command line must have a `cmdenv` tag on it that names
// the field in the CmdEnv struct that should be used to set the value. The types must match. If the
// named field in CmdEnv is the zero value, then it will not be applied.
// A tag may name several fields separated by commas; the first non-zero one wins.
func (c *CmdEnv) ApplyTags(s reflect.Value) error {
	return applyCmdEnvTags(s, c)
}

type getFielder interface {
	GetField(name string) reflect.Value
}

// applyCmdEnvTags is a helper function that applies the values from the given GetFielder to the given struct.
// We do it this way to make it easier to test.
func applyCmdEnvTags(s reflect.Value, fielder getFielder) error {
	switch s.Kind() {
	case reflect.Struct:
		t := s.Type()

		for i := 0; i < s.NumField(); i++ {
			field := s.Field(i)
			fieldType := t.Field(i)

			if tag := fieldType.Tag.Get("cmdenv"); tag != "" {
				for _, name := range strings.Split(tag, ",") {
					value := fielder.GetField(strings.TrimSpace(name))
					if !value.IsValid() {
						// if you get this error, you didn't specify cmdenv tags
						// correctly -- its value must be the name of a field in the struct
						return fmt.Errorf("programming error -- invalid field name: %s", name)
					}
					if !field.CanSet() {
						return fmt.Errorf("programming error -- cannot set new value for: %s", fieldType.Name)
					}
					if value.IsZero() {
						continue
					}
					if fieldType.Type != value.Type() {
						return fmt.Errorf("programming error -- types don't match for field: %s (%v and %v)",
							fieldType.Name, fieldType.Type, value.Type())
					}
					field.Set(value)
					break
				}
			}

			// recurse into any nested structs
			if err := applyCmdEnvTags(field, fielder); err != nil {
				return err
			}
		}

	case reflect.Ptr:
		if !s.IsNil() {
			return applyCmdEnvTags(s.Elem(), fielder)
		}
	}
	return nil
}
