package pubsub

import (
	"context"
	"sync"

	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"

	"github.com/honeycombio/rebalancer/internal/otelutil"
	"github.com/honeycombio/rebalancer/metrics"
)

// LocalPubSub is a PubSub implementation that uses local channels to send messages; it does
// not communicate with any external processes.
// subs are individual channels for each subscription
type LocalPubSub struct {
	Metrics metrics.Metrics `inject:"metrics"`
	Tracer  trace.Tracer    `inject:"tracer"`
	topics  map[string][]*LocalSubscription
	mut     sync.RWMutex
}

// Ensure that LocalPubSub implements PubSub
var _ PubSub = (*LocalPubSub)(nil)

type LocalSubscription struct {
	ps    *LocalPubSub
	topic string
	cb    SubscriptionCallback
	mut   sync.RWMutex
}

// Ensure that LocalSubscription implements Subscription
var _ Subscription = (*LocalSubscription)(nil)

var localPubSubMetrics = []metrics.Metadata{
	{Name: "local_pubsub_published", Type: metrics.Counter, Unit: metrics.Dimensionless, Description: "The total number of messages sent via the local pubsub implementation"},
	{Name: "local_pubsub_received", Type: metrics.Counter, Unit: metrics.Dimensionless, Description: "The total number of messages received via the local pubsub implementation"},
}

// Start initializes the LocalPubSub
func (ps *LocalPubSub) Start() error {
	ps.topics = make(map[string][]*LocalSubscription)
	if ps.Metrics == nil {
		ps.Metrics = &metrics.NullMetrics{}
	}
	if ps.Tracer == nil {
		ps.Tracer = noopTracer()
	}

	for _, metric := range localPubSubMetrics {
		ps.Metrics.Register(metric)
	}
	return nil
}

// Stop shuts down the LocalPubSub
func (ps *LocalPubSub) Stop() error {
	ps.Close()
	return nil
}

func (ps *LocalPubSub) Close() {
	ps.mut.Lock()
	defer ps.mut.Unlock()
	for _, subs := range ps.topics {
		for i := range subs {
			subs[i].mut.Lock()
			subs[i].cb = nil
			subs[i].mut.Unlock()
		}
	}
	ps.topics = make(map[string][]*LocalSubscription)
}

func (ps *LocalPubSub) ensureTopic(topic string) {
	if _, ok := ps.topics[topic]; !ok {
		ps.topics[topic] = make([]*LocalSubscription, 0)
	}
}

func (ps *LocalPubSub) Publish(ctx context.Context, topic, message string) error {
	ctx, span := otelutil.StartSpanMulti(ctx, ps.Tracer, "LocalPubSub.Publish", map[string]any{
		"topic":   topic,
		"message": message,
	})
	defer span.End()

	ps.mut.Lock()
	ps.ensureTopic(topic)
	subs := append([]*LocalSubscription(nil), ps.topics[topic]...)
	ps.mut.Unlock()

	ps.Metrics.Count("local_pubsub_published", 1)
	for _, sub := range subs {
		// don't wait around for slow consumers
		sub.mut.RLock()
		if sub.cb != nil {
			ps.Metrics.Count("local_pubsub_received", 1)
			go func(cb SubscriptionCallback) { cb(ctx, message) }(sub.cb)
		}
		sub.mut.RUnlock()
	}
	return nil
}

func (ps *LocalPubSub) Subscribe(ctx context.Context, topic string, callback SubscriptionCallback) Subscription {
	ps.mut.Lock()
	defer ps.mut.Unlock()
	ps.ensureTopic(topic)
	sub := &LocalSubscription{ps: ps, topic: topic, cb: callback}
	ps.topics[topic] = append(ps.topics[topic], sub)
	return sub
}

func (s *LocalSubscription) Close() {
	s.ps.mut.Lock()
	defer s.ps.mut.Unlock()
	subs := s.ps.topics[s.topic]
	for i, sub := range subs {
		if sub == s {
			s.ps.topics[s.topic] = append(subs[:i], subs[i+1:]...)
			break
		}
	}
	s.mut.Lock()
	s.cb = nil
	s.mut.Unlock()
}

func noopTracer() trace.Tracer {
	return noop.NewTracerProvider().Tracer("pubsub")
}
