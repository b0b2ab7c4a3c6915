package logger

import (
	"io"
	"math/rand/v2"
	"strings"

	"github.com/honeycombio/dynsampler-go"
	"github.com/sirupsen/logrus"

	"github.com/honeycombio/rebalancer/config"
)

// StdoutLogger is a Logger implementation that sends all logs to stdout using
// the Logrus package to get nice formatting
type StdoutLogger struct {
	Config config.Config `inject:""`

	logger  *logrus.Logger
	level   logrus.Level
	sampler dynsampler.Sampler
	output  io.Writer
}

var _ Logger = (*StdoutLogger)(nil)

type LogrusEntry struct {
	entry   *logrus.Entry
	level   logrus.Level
	sampler dynsampler.Sampler
}

func (l *StdoutLogger) Start() error {
	cfg := l.Config.GetStdoutLoggerConfig()

	l.logger = logrus.New()
	if l.output != nil {
		l.logger.SetOutput(l.output)
	}
	l.level = toLogrusLevel(l.Config.GetLoggerLevel())
	l.logger.SetLevel(l.level)
	if cfg.Structured {
		l.logger.SetFormatter(&logrus.JSONFormatter{})
	}

	sampler, err := newLogSampler(cfg.SamplerEnabled, cfg.SamplerThroughput)
	if err != nil {
		return err
	}
	l.sampler = sampler

	l.Config.RegisterReloadCallback(func(string) {
		l.SetLevel(l.Config.GetLoggerLevel().String())
	})
	return nil
}

func (l *StdoutLogger) Stop() error {
	if l.sampler != nil {
		return l.sampler.Stop()
	}
	return nil
}

func (l *StdoutLogger) newEntry(level logrus.Level) Entry {
	if !l.logger.IsLevelEnabled(level) {
		return nullEntry
	}
	return &LogrusEntry{
		entry:   logrus.NewEntry(l.logger),
		level:   level,
		sampler: l.sampler,
	}
}

func (l *StdoutLogger) Debug() Entry { return l.newEntry(logrus.DebugLevel) }
func (l *StdoutLogger) Info() Entry  { return l.newEntry(logrus.InfoLevel) }
func (l *StdoutLogger) Warn() Entry  { return l.newEntry(logrus.WarnLevel) }
func (l *StdoutLogger) Error() Entry { return l.newEntry(logrus.ErrorLevel) }

func (l *StdoutLogger) SetLevel(level string) error {
	logrusLevel, err := logrus.ParseLevel(strings.TrimSpace(level))
	if err != nil {
		return err
	}
	// record the choice and set it if we're already initialized
	l.level = logrusLevel
	if l.logger != nil {
		l.logger.SetLevel(logrusLevel)
	}
	return nil
}

func toLogrusLevel(level config.Level) logrus.Level {
	switch level {
	case config.DebugLevel:
		return logrus.DebugLevel
	case config.InfoLevel:
		return logrus.InfoLevel
	case config.WarnLevel:
		return logrus.WarnLevel
	case config.ErrorLevel:
		return logrus.ErrorLevel
	case config.PanicLevel:
		return logrus.PanicLevel
	default:
		return logrus.InfoLevel
	}
}

func (l *LogrusEntry) WithField(key string, value any) Entry {
	return &LogrusEntry{
		entry:   l.entry.WithField(key, value),
		level:   l.level,
		sampler: l.sampler,
	}
}

func (l *LogrusEntry) WithString(key string, value string) Entry {
	return l.WithField(key, value)
}

func (l *LogrusEntry) WithFields(fields map[string]any) Entry {
	return &LogrusEntry{
		entry:   l.entry.WithFields(fields),
		level:   l.level,
		sampler: l.sampler,
	}
}

func (l *LogrusEntry) Logf(f string, args ...any) {
	entry := l.entry
	if l.sampler != nil {
		// use the format string as the key so every call site gets its own budget
		rate := l.sampler.GetSampleRate(f)
		if rate > 1 && rand.IntN(rate) != 0 {
			return
		}
		entry = entry.WithField("SampleRate", rate)
	}
	switch l.level {
	case logrus.DebugLevel:
		entry.Debugf(f, args...)
	case logrus.InfoLevel:
		entry.Infof(f, args...)
	case logrus.WarnLevel:
		entry.Warnf(f, args...)
	default:
		entry.Errorf(f, args...)
	}
}
