// Package rebalance periodically recomputes every project's sample rates from
// its observed transaction volumes and stores the result.
package rebalance

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/pkg/errors"
	"github.com/sourcegraph/conc/pool"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/singleflight"

	"github.com/honeycombio/rebalancer/allocator"
	"github.com/honeycombio/rebalancer/config"
	"github.com/honeycombio/rebalancer/generics"
	"github.com/honeycombio/rebalancer/internal/otelutil"
	"github.com/honeycombio/rebalancer/logger"
	"github.com/honeycombio/rebalancer/metrics"
	"github.com/honeycombio/rebalancer/pubsub"
	"github.com/honeycombio/rebalancer/store"
	"github.com/honeycombio/rebalancer/volumes"
)

// Rebalancer runs the allocator for every project on a fixed interval, and
// for single projects on request. Each result is stored and then announced
// on the rates_updated topic with the project name as the message.
type Rebalancer struct {
	Config  config.Config   `inject:""`
	Logger  logger.Logger   `inject:""`
	Metrics metrics.Metrics `inject:"rebalanceMetrics"`
	Tracer  trace.Tracer    `inject:"tracer"`
	Clock   clockwork.Clock `inject:""`
	Source  volumes.Source  `inject:""`
	Store   store.RateStore `inject:""`
	PubSub  pubsub.PubSub   `inject:""`

	// Once stops the interval loop from starting; RunOnce is still usable.
	Once bool

	group        singleflight.Group
	sub          pubsub.Subscription
	interval     time.Duration
	reset        chan time.Duration
	lastProjects generics.Set[string]
	cancel       context.CancelFunc
	wg           sync.WaitGroup
	mut          sync.Mutex
}

var rebalanceMetrics = []metrics.Metadata{
	{Name: "runs", Type: metrics.Counter, Unit: metrics.Dimensionless, Description: "number of rebalance passes over all projects"},
	{Name: "requests", Type: metrics.Counter, Unit: metrics.Dimensionless, Description: "number of single-project rebalances requested over pubsub"},
	{Name: "project_errors", Type: metrics.Counter, Unit: metrics.Dimensionless, Description: "number of project rebalances that failed"},
	{Name: "projects_updated", Type: metrics.Counter, Unit: metrics.Dimensionless, Description: "number of project rate sets stored"},
	{Name: "explicit_rates", Type: metrics.Histogram, Unit: metrics.Dimensionless, Description: "number of explicit transaction rates per project"},
	{Name: "transactions", Type: metrics.Histogram, Unit: metrics.Dimensionless, Description: "number of transactions considered per project"},
	{Name: "fallback_rate", Type: metrics.Gauge, Unit: metrics.Dimensionless, Description: "fallback rate of the most recently rebalanced project"},
	{Name: "duration_ms", Type: metrics.Histogram, Unit: metrics.Milliseconds, Description: "time taken by a rebalance pass over all projects"},
}

func (r *Rebalancer) Start() error {
	r.Logger.Debug().Logf("Starting Rebalancer")
	defer func() { r.Logger.Debug().Logf("Finished starting Rebalancer") }()

	for _, metric := range rebalanceMetrics {
		r.Metrics.Register(metric)
	}

	r.sub = r.PubSub.Subscribe(context.Background(), pubsub.TopicRebalanceRequests, r.onRebalanceRequest)

	if r.Once {
		return nil
	}

	r.interval = time.Duration(r.Config.GetRebalanceConfig().Interval)
	r.reset = make(chan time.Duration, 1)
	r.Config.RegisterReloadCallback(r.reloadInterval)

	ctx, cancel := context.WithCancel(context.Background())
	r.cancel = cancel
	r.wg.Add(1)
	go r.loop(ctx)
	return nil
}

func (r *Rebalancer) Stop() error {
	if r.cancel != nil {
		r.cancel()
	}
	r.wg.Wait()
	if r.sub != nil {
		r.sub.Close()
	}
	return nil
}

// reloadInterval passes a changed interval to the loop.
func (r *Rebalancer) reloadInterval(string) {
	interval := time.Duration(r.Config.GetRebalanceConfig().Interval)
	r.mut.Lock()
	defer r.mut.Unlock()
	if interval == r.interval || interval <= 0 {
		return
	}
	r.interval = interval
	// keep only the newest value
	select {
	case <-r.reset:
	default:
	}
	r.reset <- interval
}

func (r *Rebalancer) loop(ctx context.Context) {
	defer r.wg.Done()

	r.mut.Lock()
	ticker := r.Clock.NewTicker(r.interval)
	r.mut.Unlock()
	defer ticker.Stop()

	r.runAndLog(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case interval := <-r.reset:
			r.Logger.Info().WithString("interval", interval.String()).Logf("rebalance interval changed")
			ticker.Reset(interval)
		case <-ticker.Chan():
			r.runAndLog(ctx)
		}
	}
}

func (r *Rebalancer) runAndLog(ctx context.Context) {
	if err := r.RunOnce(ctx); err != nil && ctx.Err() == nil {
		r.Logger.Warn().WithField("error", err.Error()).Logf("rebalance pass finished with errors")
	}
}

func newRunID() string {
	// v7 IDs sort by creation time, which makes runs easy to order in logs
	if id, err := uuid.NewV7(); err == nil {
		return id.String()
	}
	return uuid.NewString()
}

// Projects returns the configured projects plus, unless discovery is turned
// off, every project the volume source knows about.
func (r *Rebalancer) Projects(ctx context.Context) ([]string, error) {
	projects := generics.NewSet(r.Config.GetProjects()...)
	if r.Config.GetRebalanceConfig().DiscoverProjects.Get() {
		discovered, err := r.Source.Projects(ctx)
		if err != nil {
			return nil, errors.Wrap(err, "discovering projects")
		}
		projects.Add(discovered...)
	}
	return generics.Sorted(projects), nil
}

// RunOnce rebalances every project, at most Rebalance.Concurrency at a time.
// A failed project doesn't stop the others; the returned error joins every
// failure.
func (r *Rebalancer) RunOnce(ctx context.Context) error {
	runID := newRunID()
	ctx, span := otelutil.StartSpanWith(ctx, r.Tracer, "Rebalancer.RunOnce", "run_id", runID)
	defer span.End()

	start := r.Clock.Now()
	r.Metrics.Increment("runs")
	defer func() {
		r.Metrics.Histogram("duration_ms", float64(r.Clock.Since(start).Milliseconds()))
	}()

	projects, err := r.Projects(ctx)
	if err != nil {
		otelutil.AddException(span, err)
		return err
	}
	otelutil.AddSpanField(span, "projects", len(projects))
	r.noteDroppedProjects(runID, projects)

	concurrency := r.Config.GetRebalanceConfig().Concurrency
	if concurrency < 1 {
		concurrency = 1
	}
	p := pool.New().WithErrors().WithMaxGoroutines(concurrency)
	for _, project := range projects {
		p.Go(func() error {
			_, err := r.rebalance(ctx, project, runID)
			return err
		})
	}
	err = p.Wait()

	r.Logger.Info().WithFields(map[string]any{
		"run_id":      runID,
		"projects":    len(projects),
		"duration_ms": r.Clock.Since(start).Milliseconds(),
	}).Logf("rebalance pass complete")
	if err != nil {
		otelutil.AddException(span, err)
	}
	return err
}

// noteDroppedProjects logs projects that were rebalanced last time but are no
// longer configured or reported. Their stored rates expire after RateTTL.
func (r *Rebalancer) noteDroppedProjects(runID string, projects []string) {
	current := generics.NewSet(projects...)
	r.mut.Lock()
	previous := r.lastProjects
	r.lastProjects = current
	r.mut.Unlock()
	if previous == nil {
		return
	}
	if dropped := generics.Sorted(previous.Difference(current)); len(dropped) > 0 {
		r.Logger.Info().WithString("run_id", runID).WithField("projects", dropped).Logf("projects dropped out of rebalancing")
	}
}

// RebalanceProject recomputes, stores, and announces the rates for one
// project. Concurrent calls for the same project share a single computation.
func (r *Rebalancer) RebalanceProject(ctx context.Context, project string) (store.ProjectRates, error) {
	return r.rebalance(ctx, project, newRunID())
}

func (r *Rebalancer) rebalance(ctx context.Context, project, runID string) (store.ProjectRates, error) {
	v, err, _ := r.group.Do(project, func() (any, error) {
		return r.rebalanceProject(ctx, project, runID)
	})
	if err != nil {
		return store.ProjectRates{}, err
	}
	return v.(store.ProjectRates), nil
}

func (r *Rebalancer) rebalanceProject(ctx context.Context, project, runID string) (rates store.ProjectRates, err error) {
	ctx, span := otelutil.StartSpanMulti(ctx, r.Tracer, "Rebalancer.RebalanceProject", map[string]any{
		"project": project,
		"run_id":  runID,
	})
	defer span.End()

	defer func() {
		if err != nil {
			otelutil.AddException(span, err)
			r.Metrics.Increment("project_errors")
			r.Logger.Error().WithFields(map[string]any{
				"project": project,
				"run_id":  runID,
				"error":   err.Error(),
			}).Logf("failed to rebalance project")
		}
	}()

	vs, err := r.Source.GetVolumes(ctx, project)
	if err != nil {
		return rates, errors.Wrapf(err, "getting volumes for %s", project)
	}

	targetRate, maxExplicit := r.Config.GetRebalanceTarget(project)
	result, err := allocator.AllocateSampleRates(allocator.AllocationRequest{
		Transactions:     vs,
		TargetRate:       targetRate,
		MaxExplicitTypes: maxExplicit,
	})
	if err != nil {
		return rates, errors.Wrapf(err, "allocating rates for %s", project)
	}

	rates = store.ProjectRates{
		Project:       project,
		ExplicitRates: result.ExplicitRates,
		FallbackRate:  result.FallbackRate,
		TargetRate:    targetRate,
		Strategy:      string(result.Strategy),
		RunID:         runID,
		UpdatedAt:     r.Clock.Now(),
	}
	if err := r.Store.Put(ctx, project, rates); err != nil {
		return rates, errors.Wrapf(err, "storing rates for %s", project)
	}

	r.Metrics.Increment("projects_updated")
	r.Metrics.Histogram("transactions", len(vs))
	r.Metrics.Histogram("explicit_rates", len(result.ExplicitRates))
	r.Metrics.Gauge("fallback_rate", result.FallbackRate)
	otelutil.AddSpanFields(span, map[string]any{
		"transactions":   len(vs),
		"explicit_rates": len(result.ExplicitRates),
		"fallback_rate":  result.FallbackRate,
		"strategy":       string(result.Strategy),
	})
	r.Logger.Debug().WithFields(map[string]any{
		"project":        project,
		"run_id":         runID,
		"strategy":       string(result.Strategy),
		"explicit_rates": len(result.ExplicitRates),
		"fallback_rate":  result.FallbackRate,
	}).Logf("rebalanced project")

	// the rates are stored either way; subscribers will pick them up on their next read
	if err := r.PubSub.Publish(ctx, pubsub.TopicRatesUpdated, project); err != nil {
		r.Logger.Warn().WithString("project", project).WithField("error", err.Error()).Logf("failed to announce updated rates")
	}
	return rates, nil
}

// onRebalanceRequest handles a message on the rebalance_requests topic.
func (r *Rebalancer) onRebalanceRequest(ctx context.Context, msg string) {
	project := strings.TrimSpace(msg)
	if project == "" {
		return
	}
	r.Metrics.Increment("requests")
	r.Logger.Debug().WithString("project", project).Logf("rebalance requested")
	// errors are logged and counted by rebalanceProject
	r.RebalanceProject(ctx, project)
}

// Rates returns the stored rates for project, if any are current.
func (r *Rebalancer) Rates(ctx context.Context, project string) (store.ProjectRates, bool, error) {
	return r.Store.Get(ctx, project)
}
