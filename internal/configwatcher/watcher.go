package configwatcher

import (
	"context"
	"sync"

	"go.opentelemetry.io/otel/trace"

	"github.com/honeycombio/rebalancer/config"
	"github.com/honeycombio/rebalancer/internal/otelutil"
	"github.com/honeycombio/rebalancer/pubsub"
)

const ConfigPubsubTopic = "cfg_update"

// This lives in internal because it depends on both config and pubsub, and
// pubsub depends on config.

// ConfigWatcher tells the other rebalancers sharing a pubsub that this one
// loaded a new config, so that a SIGUSR1 to any of them reloads all of them.
// It avoids echoing a message back by remembering the last hash it heard.
type ConfigWatcher struct {
	Config config.Config `inject:""`
	PubSub pubsub.PubSub `inject:""`
	Tracer trace.Tracer  `inject:"tracer"`

	subscr  pubsub.Subscription
	lastmsg string
	mut     sync.Mutex
}

// ReloadCallback publishes the new hash unless it came from the subscription.
func (cw *ConfigWatcher) ReloadCallback(cfgHash string) {
	ctx, span := otelutil.StartSpanWith(context.Background(), cw.Tracer, "ConfigWatcher.ReloadCallback", "new_config_hash", cfgHash)
	defer span.End()

	cw.mut.Lock()
	heard := cfgHash == cw.lastmsg
	cw.mut.Unlock()
	if !heard {
		cw.PubSub.Publish(ctx, ConfigPubsubTopic, cfgHash)
	}
}

// SubscriptionListener reloads the config when another instance announces a
// hash different from ours.
func (cw *ConfigWatcher) SubscriptionListener(ctx context.Context, msg string) {
	_, span := otelutil.StartSpanWith(ctx, cw.Tracer, "ConfigWatcher.SubscriptionListener", "message", msg)
	defer span.End()

	cw.mut.Lock()
	cw.lastmsg = msg
	cw.mut.Unlock()

	if msg == "" || msg == cw.Config.GetHash() {
		otelutil.AddSpanField(span, "loading_config", false)
		return
	}
	otelutil.AddSpanField(span, "loading_config", true)
	cw.Config.Reload()
}

func (cw *ConfigWatcher) Start() error {
	cw.subscr = cw.PubSub.Subscribe(context.Background(), ConfigPubsubTopic, cw.SubscriptionListener)
	cw.Config.RegisterReloadCallback(cw.ReloadCallback)
	return nil
}

func (cw *ConfigWatcher) Stop() error {
	if cw.subscr != nil {
		cw.subscr.Close()
	}
	return nil
}
