package daemon

import (
	"context"

	"github.com/mkranta/relink/internal/log"
	"github.com/mkranta/relink/internal/notify"
)

// LogNotices subscribes to the telemetry broker and renders each notice
// through the logger. The core components publish notices but never
// format them; this is the one place they become log lines. Blocks until
// ctx is canceled or the broker closes.
func LogNotices(ctx context.Context, broker *notify.Broker) {
	for ev := range broker.Subscribe(ctx) {
		n := ev.Payload
		switch ev.Type {
		case notify.LinkCreated:
			log.Info(log.CatReconcile, "link created",
				"rule", n.Rule, "source", n.Source, "sink", n.Sink)
		case notify.LinkDestroyed:
			log.Info(log.CatReconcile, "link destroyed",
				"rule", n.Rule, "source", n.Source, "sink", n.Sink)
		case notify.LinkLingered:
			log.Info(log.CatReconcile, "link released to linger",
				"rule", n.Rule, "source", n.Source, "sink", n.Sink)
		case notify.LinkRejected:
			log.Warn(log.CatReconcile, "link rejected",
				"rule", n.Rule, "source", n.Source, "sink", n.Sink, "error", n.Err)
		case notify.RuleActivated:
			log.Info(log.CatRules, "rule active", "rule", n.Rule)
		case notify.RuleDeactivated:
			log.Info(log.CatRules, "rule inactive", "rule", n.Rule)
		case notify.Connected:
			log.Info(log.CatPW, "server connected")
		case notify.Disconnected:
			log.Warn(log.CatPW, "server disconnected")
		case notify.Reconnecting:
			log.Warn(log.CatPW, "reconnecting", "attempt", n.Attempt, "error", n.Err)
		case notify.ConfigReloaded:
			log.Info(log.CatConfig, "configuration reloaded")
		case notify.ConfigRejected:
			log.Warn(log.CatConfig, "configuration rejected", "error", n.Err)
		}
	}
}
