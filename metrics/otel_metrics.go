package metrics

import (
	"context"
	"net/url"
	"os"
	"runtime"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetrichttp"
	"go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
	"go.opentelemetry.io/otel/sdk/resource"

	"github.com/honeycombio/rebalancer/config"
	"github.com/honeycombio/rebalancer/logger"
)

var _ Metrics = (*OTelMetrics)(nil)

// OTelMetrics pushes metrics over OTLP/HTTP. Histograms are sent raw and
// aggregated on ingest.
type OTelMetrics struct {
	Config  config.Config `inject:""`
	Logger  logger.Logger `inject:""`
	Version string        `inject:"version"`

	meter        metric.Meter
	shutdownFunc func(ctx context.Context) error
	testReader   sdkmetric.Reader

	counters   sync.Map // map[string]metric.Float64Counter
	gauges     sync.Map // map[string]metric.Float64Gauge
	histograms sync.Map // map[string]metric.Float64Histogram
	updowns    sync.Map // map[string]metric.Int64UpDownCounter
}

func (o *OTelMetrics) Start() error {
	cfg := o.Config.GetOTelMetricsConfig()
	ctx := context.Background()

	// the exporter wants a bare host, not a URL
	host, err := url.Parse(cfg.APIHost)
	if err != nil {
		o.Logger.Error().WithString("apihost", cfg.APIHost).Logf("failed to parse metrics apihost")
		return err
	}

	options := []otlpmetrichttp.Option{
		otlpmetrichttp.WithEndpoint(host.Host),
		otlpmetrichttp.WithCompression(otlpmetrichttp.GzipCompression),
		// counters and histograms reset after each export; updowns and gauges carry over
		otlpmetrichttp.WithTemporalitySelector(func(ik sdkmetric.InstrumentKind) metricdata.Temporality {
			switch ik {
			case sdkmetric.InstrumentKindCounter, sdkmetric.InstrumentKindHistogram:
				return metricdata.DeltaTemporality
			default:
				return metricdata.CumulativeTemporality
			}
		}),
	}
	hdrs := make(map[string]string)
	if cfg.APIKey != "" {
		hdrs["x-honeycomb-team"] = cfg.APIKey
	}
	if cfg.Dataset != "" {
		hdrs["x-honeycomb-dataset"] = cfg.Dataset
	}
	if len(hdrs) > 0 {
		options = append(options, otlpmetrichttp.WithHeaders(hdrs))
	}
	if host.Scheme == "http" {
		options = append(options, otlpmetrichttp.WithInsecure())
	}

	hostname, err := os.Hostname()
	if err != nil {
		hostname = "unknown: " + err.Error()
	}
	res, err := resource.New(ctx,
		resource.WithAttributes(resource.Default().Attributes()...),
		resource.WithAttributes(
			attribute.String("service.name", "rebalancer"),
			attribute.String("service.version", o.Version),
			attribute.String("host.name", hostname),
		),
	)
	if err != nil {
		return err
	}

	reader := o.testReader
	if reader == nil {
		exporter, err := otlpmetrichttp.New(ctx, options...)
		if err != nil {
			return err
		}
		reader = sdkmetric.NewPeriodicReader(exporter,
			sdkmetric.WithInterval(time.Duration(cfg.ReportingInterval)),
		)
	}

	provider := sdkmetric.NewMeterProvider(
		sdkmetric.WithReader(reader),
		sdkmetric.WithResource(res),
	)
	o.meter = provider.Meter("rebalancer")
	o.shutdownFunc = provider.Shutdown

	_, err = o.meter.Int64ObservableGauge("num_goroutines",
		metric.WithInt64Callback(func(_ context.Context, result metric.Int64Observer) error {
			result.Observe(int64(runtime.NumGoroutine()))
			return nil
		}))
	return err
}

func (o *OTelMetrics) Stop() error {
	if o.shutdownFunc == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return o.shutdownFunc(ctx)
}

func (o *OTelMetrics) Register(metadata Metadata) {
	var err error
	switch metadata.Type {
	case Counter:
		_, err = o.getOrInitCounter(metadata)
	case Gauge:
		_, err = o.getOrInitGauge(metadata)
	case Histogram:
		_, err = o.getOrInitHistogram(metadata)
	case UpDown:
		_, err = o.getOrInitUpDown(metadata)
	default:
		o.Logger.Error().WithString("type", metadata.Type.String()).Logf("unknown metric type")
		return
	}
	if err != nil {
		o.Logger.Error().
			WithString("name", metadata.Name).
			WithString("type", metadata.Type.String()).
			WithField("error", err.Error()).
			Logf("failed to create otel instrument")
	}
}

func (o *OTelMetrics) Increment(name string) {
	o.Count(name, 1)
}

func (o *OTelMetrics) Count(name string, n any) {
	if ctr, err := o.getOrInitCounter(Metadata{Name: name}); err == nil {
		ctr.Add(context.Background(), ConvertNumeric(n))
	}
}

func (o *OTelMetrics) Gauge(name string, val any) {
	if g, err := o.getOrInitGauge(Metadata{Name: name}); err == nil {
		g.Record(context.Background(), ConvertNumeric(val))
	}
}

func (o *OTelMetrics) Histogram(name string, obs any) {
	if h, err := o.getOrInitHistogram(Metadata{Name: name}); err == nil {
		h.Record(context.Background(), ConvertNumeric(obs))
	}
}

func (o *OTelMetrics) Up(name string) {
	if ud, err := o.getOrInitUpDown(Metadata{Name: name}); err == nil {
		ud.Add(context.Background(), 1)
	}
}

func (o *OTelMetrics) Down(name string) {
	if ud, err := o.getOrInitUpDown(Metadata{Name: name}); err == nil {
		ud.Add(context.Background(), -1)
	}
}

// OTel instruments are write-only; values are read back through MultiMetrics.
func (o *OTelMetrics) Get(name string) (float64, bool) { return 0, false }
func (o *OTelMetrics) Store(name string, val float64)  {}

func (o *OTelMetrics) getOrInitCounter(metadata Metadata) (metric.Float64Counter, error) {
	if val, ok := o.counters.Load(metadata.Name); ok {
		return val.(metric.Float64Counter), nil
	}
	ctr, err := o.meter.Float64Counter(metadata.Name,
		metric.WithUnit(string(metadata.Unit)),
		metric.WithDescription(metadata.Description),
	)
	if err != nil {
		return nil, err
	}
	// a zero add makes the counter show up before its first event
	ctr.Add(context.Background(), 0)
	actual, _ := o.counters.LoadOrStore(metadata.Name, ctr)
	return actual.(metric.Float64Counter), nil
}

func (o *OTelMetrics) getOrInitGauge(metadata Metadata) (metric.Float64Gauge, error) {
	if val, ok := o.gauges.Load(metadata.Name); ok {
		return val.(metric.Float64Gauge), nil
	}
	g, err := o.meter.Float64Gauge(metadata.Name,
		metric.WithUnit(string(metadata.Unit)),
		metric.WithDescription(metadata.Description),
	)
	if err != nil {
		return nil, err
	}
	actual, _ := o.gauges.LoadOrStore(metadata.Name, g)
	return actual.(metric.Float64Gauge), nil
}

func (o *OTelMetrics) getOrInitHistogram(metadata Metadata) (metric.Float64Histogram, error) {
	if val, ok := o.histograms.Load(metadata.Name); ok {
		return val.(metric.Float64Histogram), nil
	}
	h, err := o.meter.Float64Histogram(metadata.Name,
		metric.WithUnit(string(metadata.Unit)),
		metric.WithDescription(metadata.Description),
	)
	if err != nil {
		return nil, err
	}
	actual, _ := o.histograms.LoadOrStore(metadata.Name, h)
	return actual.(metric.Float64Histogram), nil
}

func (o *OTelMetrics) getOrInitUpDown(metadata Metadata) (metric.Int64UpDownCounter, error) {
	if val, ok := o.updowns.Load(metadata.Name); ok {
		return val.(metric.Int64UpDownCounter), nil
	}
	ud, err := o.meter.Int64UpDownCounter(metadata.Name,
		metric.WithUnit(string(metadata.Unit)),
		metric.WithDescription(metadata.Description),
	)
	if err != nil {
		return nil, err
	}
	ud.Add(context.Background(), 0)
	actual, _ := o.updowns.LoadOrStore(metadata.Name, ud)
	return actual.(metric.Int64UpDownCounter), nil
}
