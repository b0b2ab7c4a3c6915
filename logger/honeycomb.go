package logger

import (
	"fmt"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/honeycombio/dynsampler-go"
	libhoney "github.com/honeycombio/libhoney-go"
	"github.com/honeycombio/libhoney-go/transmission"

	"github.com/honeycombio/rebalancer/config"
)

// HoneycombLogger is a Logger implementation that sends all logs to a Honeycomb
// dataset. It reads the HoneycombLogger section of the config.
type HoneycombLogger struct {
	Config  config.Config `inject:""`
	Version string        `inject:"version"`

	loggerConfig config.HoneycombLoggerConfig
	level        config.Level
	libhClient   *libhoney.Client
	builder      *libhoney.Builder
	sampler      dynsampler.Sampler
	sender       transmission.Sender
	mut          sync.RWMutex
}

var _ Logger = (*HoneycombLogger)(nil)

type HoneycombEntry struct {
	builder *libhoney.Builder
	sampler dynsampler.Sampler
}

func (h *HoneycombLogger) Start() error {
	h.loggerConfig = h.Config.GetHoneycombLoggerConfig()
	h.level = h.Config.GetLoggerLevel()

	loggerTx := h.sender
	switch {
	case loggerTx != nil:
	case h.loggerConfig.APIKey == "":
		loggerTx = &transmission.DiscardSender{}
	default:
		loggerTx = &transmission.Honeycomb{
			// logs are often sent in flurries; flush every half second
			MaxBatchSize:        100,
			BatchTimeout:        500 * time.Millisecond,
			UserAgentAddition:   "rebalancer/" + h.Version + " (logs)",
			PendingWorkCapacity: libhoney.DefaultPendingWorkCapacity,
		}
	}

	sampler, err := newLogSampler(h.loggerConfig.SamplerEnabled.Get(), h.loggerConfig.SamplerThroughput)
	if err != nil {
		return err
	}
	h.sampler = sampler

	libhClient, err := libhoney.NewClient(libhoney.ClientConfig{
		APIHost:      h.loggerConfig.APIHost,
		APIKey:       h.loggerConfig.APIKey,
		Dataset:      h.loggerConfig.Dataset,
		Transmission: loggerTx,
	})
	if err != nil {
		return err
	}
	h.libhClient = libhClient

	if hostname, err := os.Hostname(); err == nil {
		h.libhClient.AddField("hostname", hostname)
	}
	startTime := time.Now()
	h.libhClient.AddDynamicField("process_uptime_seconds", func() any {
		return time.Since(startTime) / time.Second
	})

	h.builder = h.libhClient.NewBuilder()

	// listen for responses from honeycomb, log to STDOUT if something unusual
	// comes back
	go h.readResponses()

	// listen for config reloads
	h.Config.RegisterReloadCallback(h.reloadBuilder)

	fmt.Printf("Starting Honeycomb Logger - see Honeycomb %s dataset for service logs\n", h.loggerConfig.Dataset)

	return nil
}

func (h *HoneycombLogger) readResponses() {
	resps := h.libhClient.TxResponses()
	for resp := range resps {
		respString := fmt.Sprintf("Response: status: %d, duration: %s", resp.StatusCode, resp.Duration)
		// read response, log if there's an error
		switch {
		case resp.StatusCode == 0: // log message dropped due to sampling
			continue
		case resp.Err != nil:
			fmt.Fprintf(os.Stderr, "Honeycomb Logger got an error back from Honeycomb while trying to send a log line: %s, error: %s, body: %s\n", respString, resp.Err.Error(), string(resp.Body))
		case resp.StatusCode > 202:
			fmt.Fprintf(os.Stderr, "Honeycomb Logger got an unexpected status code back from Honeycomb while trying to send a log line: %s, %s\n", respString, string(resp.Body))
		}
	}
}

func (h *HoneycombLogger) reloadBuilder(configHash string) {
	h.Debug().WithString("hash", configHash).Logf("reloading config for Honeycomb logger")
	loggerConfig := h.Config.GetHoneycombLoggerConfig()

	h.mut.Lock()
	defer h.mut.Unlock()
	h.loggerConfig = loggerConfig
	h.level = h.Config.GetLoggerLevel()
	h.builder.APIHost = loggerConfig.APIHost
	h.builder.WriteKey = loggerConfig.APIKey
	h.builder.Dataset = loggerConfig.Dataset
}

func (h *HoneycombLogger) Stop() error {
	fmt.Printf("stopping honey logger\n")
	if h.sampler != nil {
		h.sampler.Stop()
	}
	if h.libhClient != nil {
		h.libhClient.Close()
	}
	return nil
}

func (h *HoneycombLogger) newEntry(level config.Level) Entry {
	h.mut.RLock()
	defer h.mut.RUnlock()

	if h.level > level {
		return nullEntry
	}

	ev := &HoneycombEntry{
		builder: h.builder.Clone(),
		sampler: h.sampler,
	}
	ev.builder.AddField("level", level.String())

	return ev
}

func (h *HoneycombLogger) Debug() Entry { return h.newEntry(config.DebugLevel) }
func (h *HoneycombLogger) Info() Entry  { return h.newEntry(config.InfoLevel) }
func (h *HoneycombLogger) Warn() Entry  { return h.newEntry(config.WarnLevel) }
func (h *HoneycombLogger) Error() Entry { return h.newEntry(config.ErrorLevel) }

func (h *HoneycombLogger) SetLevel(level string) error {
	lvl := config.ParseLevel(level)
	if lvl == config.UnknownLevel {
		return fmt.Errorf("unrecognized logging level: %s", strings.TrimSpace(level))
	}

	h.mut.Lock()
	defer h.mut.Unlock()
	h.level = lvl
	return nil
}

func (h *HoneycombEntry) WithField(key string, value any) Entry {
	h.builder.AddField(key, value)
	return h
}

func (h *HoneycombEntry) WithString(key string, value string) Entry {
	return h.WithField(key, value)
}

func (h *HoneycombEntry) WithFields(fields map[string]any) Entry {
	h.builder.Add(fields)
	return h
}

func (h *HoneycombEntry) Logf(f string, args ...any) {
	ev := h.builder.NewEvent()
	msg := fmt.Sprintf(f, args...)
	ev.AddField("msg", msg)
	ev.Metadata = map[string]string{
		"api_host": ev.APIHost,
		"dataset":  ev.Dataset,
	}
	level, ok := ev.Fields()["level"].(string)
	if !ok {
		level = "unknown"
	}
	if h.sampler != nil {
		rate := h.sampler.GetSampleRate(fmt.Sprintf(`%s:%s`, level, f))
		ev.SampleRate = uint(rate)
	}
	ev.Send()
}
