package logger

import (
	"fmt"
	"os"
	"time"

	"github.com/honeycombio/dynsampler-go"

	"github.com/honeycombio/rebalancer/config"
)

type Logger interface {
	Debug() Entry
	Info() Entry
	Warn() Entry
	Error() Entry
	// SetLevel sets the logging level (debug, info, warn, error)
	SetLevel(level string) error
}

type Entry interface {
	WithField(key string, value any) Entry

	// WithString does the same thing as WithField, but is more efficient for
	// disabled log levels. (Because the value parameter doesn't escape.)
	WithString(key string, value string) Entry

	WithFields(fields map[string]any) Entry
	Logf(f string, args ...any)
}

func GetLoggerImplementation(c config.Config) Logger {
	var logger Logger
	switch loggerType := c.GetLoggerType(); loggerType {
	case "honeycomb":
		logger = &HoneycombLogger{}
	case "stdout":
		logger = &StdoutLogger{}
	case "none":
		logger = &NullLogger{}
	default:
		fmt.Printf("unknown logger type %s. Exiting.\n", loggerType)
		os.Exit(1)
	}
	return logger
}

// newLogSampler returns a started per-key throughput sampler, or nil if
// sampling is disabled. Keys are log message formats, so a noisy log line is
// throttled without hiding rare ones.
func newLogSampler(enabled bool, throughput int) (dynsampler.Sampler, error) {
	if !enabled {
		return nil, nil
	}
	sampler := &dynsampler.PerKeyThroughput{
		ClearFrequencyDuration: 10 * time.Second,
		PerKeyThroughputPerSec: throughput,
		MaxKeys:                1000,
	}
	if err := sampler.Start(); err != nil {
		return nil, err
	}
	return sampler, nil
}
