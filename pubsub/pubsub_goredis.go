package pubsub

import (
	"context"
	"sync"

	goredis "github.com/redis/go-redis/v9"
	"go.opentelemetry.io/otel/trace"

	"github.com/honeycombio/rebalancer/internal/otelutil"
	"github.com/honeycombio/rebalancer/logger"
	"github.com/honeycombio/rebalancer/metrics"
	"github.com/honeycombio/rebalancer/redis"
)

// GoRedisPubSub is a PubSub implementation that uses Redis as the message broker
// and the go-redis library to interact with Redis. Channels are namespaced
// under the configured Redis prefix so several deployments can share a server.
type GoRedisPubSub struct {
	RedisClient *redis.Client   `inject:""`
	Logger      logger.Logger   `inject:""`
	Metrics     metrics.Metrics `inject:"metrics"`
	Tracer      trace.Tracer    `inject:"tracer"`
	client      goredis.UniversalClient
	subs        []*GoRedisSubscription
	mut         sync.RWMutex
}

// Ensure that GoRedisPubSub implements PubSub
var _ PubSub = (*GoRedisPubSub)(nil)

type GoRedisSubscription struct {
	topic  string
	pubsub *goredis.PubSub
	cb     SubscriptionCallback
	done   chan struct{}
	once   sync.Once
}

// Ensure that GoRedisSubscription implements Subscription
var _ Subscription = (*GoRedisSubscription)(nil)

var goredisPubSubMetrics = []metrics.Metadata{
	{Name: "redis_pubsub_published", Type: metrics.Counter, Unit: metrics.Dimensionless, Description: "Number of messages published to Redis PubSub"},
	{Name: "redis_pubsub_received", Type: metrics.Counter, Unit: metrics.Dimensionless, Description: "Number of messages received from Redis PubSub"},
}

// channel returns the Redis channel name for a topic.
func (ps *GoRedisPubSub) channel(topic string) string {
	return ps.RedisClient.Key("pubsub", topic)
}

func (ps *GoRedisPubSub) Start() error {
	if ps.Metrics == nil {
		ps.Metrics = &metrics.NullMetrics{}
	}
	if ps.Tracer == nil {
		ps.Tracer = noopTracer()
	}
	for _, metric := range goredisPubSubMetrics {
		ps.Metrics.Register(metric)
	}

	ps.client = ps.RedisClient.Universal()
	ps.subs = make([]*GoRedisSubscription, 0)
	return nil
}

func (ps *GoRedisPubSub) Stop() error {
	ps.Close()
	return nil
}

// Close ends every subscription. The Redis connection belongs to the shared
// client and is closed when that stops.
func (ps *GoRedisPubSub) Close() {
	ps.mut.Lock()
	defer ps.mut.Unlock()
	for _, sub := range ps.subs {
		sub.Close()
	}
	ps.subs = nil
}

func (ps *GoRedisPubSub) Publish(ctx context.Context, topic, message string) error {
	ctx, span := otelutil.StartSpanMulti(ctx, ps.Tracer, "GoRedisPubSub.Publish", map[string]any{
		"topic":   topic,
		"message": message,
	})
	defer span.End()

	if err := ps.client.Publish(ctx, ps.channel(topic), message).Err(); err != nil {
		otelutil.AddException(span, err)
		return err
	}
	ps.Metrics.Count("redis_pubsub_published", 1)
	return nil
}

// Subscribe creates a new Subscription to the given topic, and calls the provided callback
// whenever a message is received on that topic.
// Note that the same topic is Subscribed to multiple times, this will incur a separate
// connection to Redis for each Subscription.
func (ps *GoRedisPubSub) Subscribe(ctx context.Context, topic string, callback SubscriptionCallback) Subscription {
	ctx, span := otelutil.StartSpanWith(ctx, ps.Tracer, "GoRedisPubSub.Subscribe", "topic", topic)
	defer span.End()

	sub := &GoRedisSubscription{
		topic:  topic,
		pubsub: ps.client.Subscribe(ctx, ps.channel(topic)),
		cb:     callback,
		done:   make(chan struct{}),
	}
	// wait for the subscription to be confirmed so that messages published
	// right after Subscribe returns aren't lost
	if _, err := sub.pubsub.Receive(ctx); err != nil {
		ps.Logger.Error().WithString("topic", topic).WithField("error", err.Error()).Logf("failed to confirm Redis subscription")
	}

	ps.mut.Lock()
	ps.subs = append(ps.subs, sub)
	ps.mut.Unlock()
	go func() {
		receiveRootCtx := context.Background()
		redisch := sub.pubsub.Channel()
		for {
			select {
			case <-sub.done:
				sub.pubsub.Close()
				return
			case msg, ok := <-redisch:
				if !ok {
					return
				}
				if msg == nil {
					continue
				}
				receiveCtx, span := otelutil.StartSpanMulti(receiveRootCtx, ps.Tracer, "GoRedisPubSub.Receive", map[string]any{
					"topic":              topic,
					"message_queue_size": len(redisch),
					"message":            msg.Payload,
				})
				ps.Metrics.Count("redis_pubsub_received", 1)

				go func(cbCtx context.Context, span trace.Span, payload string) {
					defer span.End()

					sub.cb(cbCtx, payload)
				}(receiveCtx, span, msg.Payload)
			}
		}
	}()
	return sub
}

func (s *GoRedisSubscription) Close() {
	s.once.Do(func() {
		close(s.done)
	})
}
