package logger

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"

	"github.com/honeycombio/libhoney-go/transmission"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/honeycombio/rebalancer/config"
)

func decodeLines(t *testing.T, buf *bytes.Buffer) []map[string]any {
	t.Helper()
	var lines []map[string]any
	for _, line := range strings.Split(strings.TrimSpace(buf.String()), "\n") {
		if line == "" {
			continue
		}
		m := make(map[string]any)
		require.NoError(t, json.Unmarshal([]byte(line), &m))
		lines = append(lines, m)
	}
	return lines
}

func TestGetLoggerImplementation(t *testing.T) {
	tests := []struct {
		loggerType string
		want       Logger
	}{
		{"stdout", &StdoutLogger{}},
		{"honeycomb", &HoneycombLogger{}},
		{"none", &NullLogger{}},
	}
	for _, tt := range tests {
		t.Run(tt.loggerType, func(t *testing.T) {
			c := &config.MockConfig{GetLoggerTypeVal: tt.loggerType}
			assert.IsType(t, tt.want, GetLoggerImplementation(c))
		})
	}
}

func TestStdoutLoggerStructured(t *testing.T) {
	buf := &bytes.Buffer{}
	cfg := &config.MockConfig{
		GetLoggerLevelVal:        config.InfoLevel,
		GetStdoutLoggerConfigVal: config.StdoutLoggerConfig{Structured: true},
	}
	l := &StdoutLogger{Config: cfg, output: buf}
	require.NoError(t, l.Start())
	defer l.Stop()

	l.Debug().Logf("hidden")
	l.Info().WithField("project", "web").WithString("run_id", "abc").Logf("rebalanced %d transactions", 12)
	l.Error().WithFields(map[string]any{"error": "boom"}).Logf("failed")

	lines := decodeLines(t, buf)
	require.Len(t, lines, 2)
	assert.Equal(t, "info", lines[0]["level"])
	assert.Equal(t, "rebalanced 12 transactions", lines[0]["msg"])
	assert.Equal(t, "web", lines[0]["project"])
	assert.Equal(t, "abc", lines[0]["run_id"])
	assert.Equal(t, "error", lines[1]["level"])
	assert.Equal(t, "boom", lines[1]["error"])
}

func TestStdoutLoggerLevelFollowsReload(t *testing.T) {
	buf := &bytes.Buffer{}
	cfg := &config.MockConfig{
		GetLoggerLevelVal:        config.ErrorLevel,
		GetStdoutLoggerConfigVal: config.StdoutLoggerConfig{Structured: true},
	}
	l := &StdoutLogger{Config: cfg, output: buf}
	require.NoError(t, l.Start())

	l.Warn().Logf("not yet")
	assert.Empty(t, decodeLines(t, buf))

	cfg.Mux.Lock()
	cfg.GetLoggerLevelVal = config.WarnLevel
	cfg.Mux.Unlock()
	cfg.Reload()

	l.Warn().Logf("now visible")
	lines := decodeLines(t, buf)
	require.Len(t, lines, 1)
	assert.Equal(t, "warning", lines[0]["level"])

	require.NoError(t, l.SetLevel("debug"))
	l.Debug().Logf("debugging")
	assert.Len(t, decodeLines(t, buf), 2)

	assert.Error(t, l.SetLevel("chatty"))
}

func TestStdoutLoggerSampling(t *testing.T) {
	buf := &bytes.Buffer{}
	cfg := &config.MockConfig{
		GetLoggerLevelVal: config.InfoLevel,
		GetStdoutLoggerConfigVal: config.StdoutLoggerConfig{
			Structured:        true,
			SamplerEnabled:    true,
			SamplerThroughput: 5,
		},
	}
	l := &StdoutLogger{Config: cfg, output: buf}
	require.NoError(t, l.Start())
	defer l.Stop()
	require.NotNil(t, l.sampler)

	// until the sampler has seen a full interval every key is kept at rate 1
	l.Info().Logf("project %s updated", "web")
	lines := decodeLines(t, buf)
	require.Len(t, lines, 1)
	assert.EqualValues(t, 1, lines[0]["SampleRate"])
}

func TestHoneycombLogger(t *testing.T) {
	sender := &transmission.MockSender{}
	cfg := &config.MockConfig{
		GetLoggerLevelVal: config.InfoLevel,
		GetHoneycombLoggerConfigVal: config.HoneycombLoggerConfig{
			APIHost: "http://localhost:8080",
			APIKey:  "test-key",
			Dataset: "rebalancer-logs",
		},
	}
	disabled := config.DefaultTrue(false)
	cfg.GetHoneycombLoggerConfigVal.SamplerEnabled = &disabled

	h := &HoneycombLogger{Config: cfg, Version: "test", sender: sender}
	require.NoError(t, h.Start())
	defer h.Stop()
	assert.Nil(t, h.sampler)

	h.Debug().Logf("hidden")
	h.Info().WithField("project", "web").Logf("stored %d rates", 3)
	h.Warn().WithFields(map[string]any{"attempt": 2}).Logf("retrying")

	events := sender.Events()
	require.Len(t, events, 2)
	assert.Equal(t, "info", events[0].Data["level"])
	assert.Equal(t, "stored 3 rates", events[0].Data["msg"])
	assert.Equal(t, "web", events[0].Data["project"])
	assert.Equal(t, "rebalancer-logs", events[0].Dataset)
	assert.Equal(t, "warn", events[1].Data["level"])
	assert.Equal(t, 2, events[1].Data["attempt"])

	require.NoError(t, h.SetLevel("error"))
	h.Warn().Logf("suppressed")
	assert.Len(t, sender.Events(), 2)
	assert.Error(t, h.SetLevel("loud"))
}

func TestHoneycombLoggerReload(t *testing.T) {
	sender := &transmission.MockSender{}
	cfg := &config.MockConfig{
		GetLoggerLevelVal: config.WarnLevel,
		GetHoneycombLoggerConfigVal: config.HoneycombLoggerConfig{
			APIHost: "http://localhost:8080",
			APIKey:  "test-key",
			Dataset: "before",
		},
	}
	h := &HoneycombLogger{Config: cfg, sender: sender}
	require.NoError(t, h.Start())
	defer h.Stop()
	assert.NotNil(t, h.sampler, "sampling is on unless explicitly disabled")

	cfg.Mux.Lock()
	cfg.GetLoggerLevelVal = config.DebugLevel
	cfg.GetHoneycombLoggerConfigVal.Dataset = "after"
	cfg.Mux.Unlock()
	cfg.Reload()

	h.Debug().Logf("after reload")
	events := sender.Events()
	require.NotEmpty(t, events)
	last := events[len(events)-1]
	assert.Equal(t, "after reload", last.Data["msg"])
	assert.Equal(t, "after", last.Dataset)
}

func TestMockLogger(t *testing.T) {
	l := &MockLogger{}
	l.Info().WithString("k", "v").Logf("hello %s", "there")
	l.Error().Logf("bad")

	require.Len(t, l.Events, 2)
	assert.Equal(t, "hello there", l.Events[0].Message)
	assert.Equal(t, "v", l.Events[0].Fields["k"])
	errs := l.EventsAt(config.ErrorLevel)
	require.Len(t, errs, 1)
	assert.Equal(t, "bad", errs[0].Fields["error"])
}

func TestNullLogger(t *testing.T) {
	var l Logger = &NullLogger{}
	l.Error().WithField("a", 1).WithString("b", "c").WithFields(map[string]any{"d": 2}).Logf("ignored")
	assert.NoError(t, l.SetLevel("debug"))
}
