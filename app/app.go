package app

import (
	"context"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	jsoniter "github.com/json-iterator/go"

	"github.com/honeycombio/rebalancer/config"
	"github.com/honeycombio/rebalancer/logger"
	"github.com/honeycombio/rebalancer/metrics"
	"github.com/honeycombio/rebalancer/rebalance"
)

type App struct {
	Config     config.Config         `inject:""`
	Logger     logger.Logger         `inject:""`
	Rebalancer *rebalance.Rebalancer `inject:""`
	Metrics    metrics.Metrics       `inject:"metrics"`

	// Version is the build ID for the rebalancer so that the running process
	// may answer requests for the version
	Version string `inject:"version"`

	sigsToReload chan os.Signal
	done         chan struct{}
}

// Start returns once reload signals are being handled; the rebalance loop
// itself is run by the Rebalancer. main blocks on the exit signals.
func (a *App) Start() error {
	a.Logger.Debug().Logf("Starting up App...")

	a.Metrics.Register(metrics.Metadata{
		Name:        "config_reloads",
		Type:        metrics.Counter,
		Unit:        metrics.Dimensionless,
		Description: "number of times a changed config was loaded",
	})
	a.Metrics.Store("rebalance_interval_seconds", float64(a.intervalSeconds()))
	a.Config.RegisterReloadCallback(func(hash string) {
		a.Logger.Info().WithString("hash", hash).Logf("loaded new config")
		a.Metrics.Increment("config_reloads")
		a.Metrics.Store("rebalance_interval_seconds", float64(a.intervalSeconds()))
	})

	// set up signal channel to reload configs on USR1
	a.done = make(chan struct{})
	a.sigsToReload = make(chan os.Signal, 1)
	signal.Notify(a.sigsToReload, syscall.SIGUSR1)
	go a.listenForReload(a.sigsToReload, a.done)

	a.Logger.Info().WithString("version", a.Version).Logf("rebalancer started")
	return nil
}

func (a *App) intervalSeconds() int64 {
	return int64(time.Duration(a.Config.GetRebalanceConfig().Interval).Seconds())
}

func (a *App) listenForReload(sigs chan os.Signal, done chan struct{}) {
	for {
		select {
		case <-done:
			return
		case sig := <-sigs:
			a.Logger.Info().WithString("signal", sig.String()).Logf("Caught signal; reloading config")
			a.Config.Reload()
		}
	}
}

// RunOnce rebalances every project a single time and writes the resulting
// rates to w, one JSON document per project.
func (a *App) RunOnce(ctx context.Context, w io.Writer) error {
	runErr := a.Rebalancer.RunOnce(ctx)

	projects, err := a.Rebalancer.Projects(ctx)
	if err != nil {
		return err
	}
	enc := jsoniter.ConfigCompatibleWithStandardLibrary.NewEncoder(w)
	for _, project := range projects {
		rates, ok, err := a.Rebalancer.Rates(ctx, project)
		if err != nil {
			return err
		}
		if !ok {
			continue
		}
		if err := enc.Encode(rates); err != nil {
			return err
		}
	}
	return runErr
}

func (a *App) Stop() error {
	a.Logger.Debug().Logf("Shutting down App...")
	if a.sigsToReload != nil {
		signal.Stop(a.sigsToReload)
	}
	if a.done != nil {
		close(a.done)
		a.done = nil
	}
	return nil
}
