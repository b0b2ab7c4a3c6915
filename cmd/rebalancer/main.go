package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/facebookgo/inject"
	"github.com/facebookgo/startstop"
	"github.com/jonboulle/clockwork"
	"github.com/sirupsen/logrus"
	_ "go.uber.org/automaxprocs"

	"github.com/honeycombio/rebalancer/app"
	"github.com/honeycombio/rebalancer/config"
	"github.com/honeycombio/rebalancer/internal/configwatcher"
	"github.com/honeycombio/rebalancer/internal/otelutil"
	"github.com/honeycombio/rebalancer/logger"
	"github.com/honeycombio/rebalancer/metrics"
	"github.com/honeycombio/rebalancer/pubsub"
	"github.com/honeycombio/rebalancer/rebalance"
	"github.com/honeycombio/rebalancer/redis"
	"github.com/honeycombio/rebalancer/store"
	"github.com/honeycombio/rebalancer/volumes"
)

// set by the build
var BuildID string
var version string

type graphLogger struct {
}

func (g graphLogger) Debugf(format string, v ...any) {
	fmt.Printf(format, v...)
	fmt.Println()
}

func main() {
	opts, err := config.NewCmdEnvOptions(os.Args)
	if err != nil {
		fmt.Printf("Command line parsing error '%s' -- call with --help for usage.\n", err)
		os.Exit(1)
	}

	if BuildID == "" {
		version = "dev"
	} else {
		version = BuildID
	}

	if opts.Version {
		fmt.Println("Version: " + version)
		os.Exit(0)
	}

	if opts.Validate {
		failures, err := config.ValidateConfig(opts)
		if err != nil {
			fmt.Printf("%+v\n", err)
			os.Exit(1)
		}
		if len(failures) > 0 {
			for _, f := range failures {
				fmt.Println(f)
			}
			os.Exit(1)
		}
		fmt.Println("Config validated successfully.")
		os.Exit(0)
	}

	a := app.App{}

	c, err := config.NewConfig(opts, func(err error) {
		if a.Logger != nil {
			a.Logger.Error().WithField("error", err.Error()).Logf("error loading config")
		}
	})
	if err != nil {
		fmt.Printf("%+v\n", err)
		os.Exit(1)
	}

	// get desired implementation for each dependency to inject
	lgr := logger.GetLoggerImplementation(c)
	source := volumes.GetSourceImplementation(c)
	rateStore := store.GetStoreImplementation(c)
	metricsSingleton, metricsChildren := metrics.GetMetricsImplementation(c)

	// set log level
	logLevel := c.GetLoggerLevel().String()
	if err := lgr.SetLevel(logLevel); err != nil {
		fmt.Printf("unable to set logging level: %v\n", err)
		os.Exit(1)
	}

	var pubsubber pubsub.PubSub
	switch c.GetPubSubConfig().Type {
	case "redis":
		pubsubber = &pubsub.GoRedisPubSub{}
	default:
		// a lone rebalancer; requests can only come from inside the process
		pubsubber = &pubsub.LocalPubSub{}
	}

	tracer, shutdown, err := otelutil.SetupTracing(c.GetOTelTracingConfig(), "rebalancer", version)
	if err != nil {
		fmt.Printf("unable to set up tracing: %v\n", err)
		os.Exit(1)
	}
	defer shutdown()

	var g inject.Graph
	if opts.Debug {
		g.Logger = graphLogger{}
	}
	objects := []*inject.Object{
		{Value: c},
		{Value: lgr},
		{Value: source},
		{Value: rateStore},
		{Value: pubsubber},
		{Value: tracer, Name: "tracer"}, // we need to use a named injection here because trace.Tracer's struct fields are all private
		{Value: clockwork.NewRealClock()},
		{Value: metricsSingleton, Name: "metrics"},
		{Value: metrics.NewMetricsPrefixer("rebalance"), Name: "rebalanceMetrics"},
		{Value: version, Name: "version"},
		{Value: &rebalance.Rebalancer{Once: opts.Once}},
		{Value: &configwatcher.ConfigWatcher{}},
		{Value: &a},
	}
	for _, child := range metricsChildren {
		objects = append(objects, &inject.Object{Value: child})
	}
	// only connect to Redis when something is going to use it
	if usesRedis(c) {
		objects = append(objects, &inject.Object{Value: &redis.Client{}})
	}
	if err := g.Provide(objects...); err != nil {
		fmt.Printf("failed to provide injection graph. error: %+v\n", err)
		os.Exit(1)
	}

	if err := g.Populate(); err != nil {
		fmt.Printf("failed to populate injection graph. error: %+v\n", err)
		os.Exit(1)
	}

	// the logger provided to startstop must be valid before any service is
	// started, meaning it can't rely on injected configs. make a custom logger
	// just for this step
	ststLogger := logrus.New()
	ststLogger.SetLevel(logrus.DebugLevel)

	defer startstop.Stop(g.Objects(), ststLogger)
	if err := startstop.Start(g.Objects(), ststLogger); err != nil {
		fmt.Printf("failed to start injected dependencies. error: %+v\n", err)
		os.Exit(1)
	}

	if opts.Once {
		if err := a.RunOnce(context.Background(), os.Stdout); err != nil {
			a.Logger.Error().WithField("error", err.Error()).Logf("rebalance failed")
		}
		return
	}

	// set up signal channel to exit
	sigsToExit := make(chan os.Signal, 1)
	signal.Notify(sigsToExit, syscall.SIGINT, syscall.SIGTERM)

	// block on our signal handler to exit
	sig := <-sigsToExit
	a.Logger.Error().Logf("Caught signal \"%s\"", sig)
}

func usesRedis(c config.Config) bool {
	return c.GetVolumesConfig().Type == "redis" ||
		c.GetStoreConfig().Type == "redis" ||
		c.GetPubSubConfig().Type == "redis"
}
