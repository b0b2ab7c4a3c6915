package logger

import (
	"fmt"
	"maps"
	"sync"

	"github.com/honeycombio/rebalancer/config"
)

// MockLogger records every logged event so tests can assert on them.
type MockLogger struct {
	Events []*MockLoggerEvent
	mutex  sync.Mutex
}

var _ Logger = (*MockLogger)(nil)

type MockLoggerEvent struct {
	l       *MockLogger
	Level   config.Level
	Message string
	Fields  map[string]any
}

func (l *MockLogger) newEvent(level config.Level) Entry {
	return &MockLoggerEvent{
		l:      l,
		Level:  level,
		Fields: make(map[string]any),
	}
}

func (l *MockLogger) Debug() Entry { return l.newEvent(config.DebugLevel) }
func (l *MockLogger) Info() Entry  { return l.newEvent(config.InfoLevel) }
func (l *MockLogger) Warn() Entry  { return l.newEvent(config.WarnLevel) }
func (l *MockLogger) Error() Entry { return l.newEvent(config.ErrorLevel) }

func (l *MockLogger) SetLevel(level string) error {
	return nil
}

// EventsAt returns a copy of the events logged at the given level, in order.
func (l *MockLogger) EventsAt(level config.Level) []*MockLoggerEvent {
	l.mutex.Lock()
	defer l.mutex.Unlock()

	var events []*MockLoggerEvent
	for _, e := range l.Events {
		if e.Level == level {
			events = append(events, e)
		}
	}
	return events
}

func (e *MockLoggerEvent) WithField(key string, value any) Entry {
	e.Fields[key] = value

	return e
}

func (e *MockLoggerEvent) WithString(key string, value string) Entry {
	return e.WithField(key, value)
}

func (e *MockLoggerEvent) WithFields(fields map[string]any) Entry {
	maps.Copy(e.Fields, fields)

	return e
}

func (e *MockLoggerEvent) Logf(f string, args ...any) {
	e.Message = fmt.Sprintf(f, args...)
	switch e.Level {
	case config.DebugLevel, config.InfoLevel, config.WarnLevel, config.ErrorLevel:
		e.WithField(e.Level.String(), e.Message)
	default:
		panic("unexpected log level")
	}
	e.l.mutex.Lock()
	e.l.Events = append(e.l.Events, e)
	e.l.mutex.Unlock()
}
