// Package daemon runs the coordinator: a single event loop that owns the
// graph mirror, the compiled rule set, and the reconciler, and feeds them
// from two inputs (the server's registry stream and config file changes).
// Everything that mutates shared state happens on this one goroutine, so
// none of the owned components need their own locking.
package daemon

import (
	"context"
	"time"

	"github.com/mkranta/relink/internal/config"
	"github.com/mkranta/relink/internal/graph"
	"github.com/mkranta/relink/internal/log"
	"github.com/mkranta/relink/internal/notify"
	"github.com/mkranta/relink/internal/pw"
	"github.com/mkranta/relink/internal/reconcile"
	"github.com/mkranta/relink/internal/rules"
	"github.com/mkranta/relink/internal/watcher"
)

const (
	initialBackoff = time.Second
	maxBackoff     = 30 * time.Second
)

// Daemon holds the coordinator state. Construct with New, drive with Run.
type Daemon struct {
	cfgPath string
	cfg     config.Config
	set     *rules.Set

	model  *graph.Model
	rec    *reconcile.Reconciler
	broker *notify.Broker

	watch *watcher.Watcher

	// snapshotPending is set between (re)connecting and the first batch,
	// which is the full registry snapshot. After applying it the daemon
	// reconciles every rule once; later batches reconcile incrementally.
	snapshotPending bool
}

// New loads the config (creating a commented default when none exists),
// compiles the rule set, and wires the reconciler. Rule compilation
// failures at startup are fatal; during reload they only reject the new
// config.
func New(cfgPath string, broker *notify.Broker) (*Daemon, error) {
	cfg, err := config.LoadOrCreate(cfgPath)
	if err != nil {
		return nil, err
	}
	set, err := rules.CompileSet(cfg.Links)
	if err != nil {
		return nil, err
	}

	model := graph.NewModel()
	rec := reconcile.New(model, pw.NewLinker(), &notify.Sink{Broker: broker})
	rec.SetLinger(cfg.General.LingerLinks)

	return &Daemon{
		cfgPath: cfgPath,
		cfg:     cfg,
		set:     set,
		model:   model,
		rec:     rec,
		broker:  broker,
	}, nil
}

// Config returns the currently active configuration.
func (d *Daemon) Config() config.Config {
	return d.cfg
}

// Rules returns the currently active compiled rule set.
func (d *Daemon) Rules() *rules.Set {
	return d.set
}

// Run connects to the server and processes events until ctx is canceled.
// Lost connections are retried with capped exponential backoff; while
// disconnected no link commands are issued and the mirror stays empty.
func (d *Daemon) Run(ctx context.Context) error {
	log.Info(log.CatDaemon, "starting", "config", d.cfgPath, "rules", d.set.Len(),
		"linger", d.cfg.General.LingerLinks)

	if d.cfg.General.HotreloadConfig {
		if err := d.startWatcher(ctx); err != nil {
			return err
		}
	}
	defer d.stopWatcher()

	backoff := initialBackoff
	attempt := 0
	for {
		if ctx.Err() != nil {
			return ctx.Err()
		}

		mon, err := pw.StartMonitor(ctx)
		if err != nil {
			attempt++
			d.publish(notify.Reconnecting, notify.Notice{Attempt: attempt, Err: err.Error()})
			log.Warn(log.CatDaemon, "server connection failed",
				"attempt", attempt, "retry_in", backoff, "error", err)
			if !sleepCtx(ctx, backoff) {
				return ctx.Err()
			}
			backoff = min(backoff*2, maxBackoff)
			continue
		}

		backoff = initialBackoff
		attempt = 0
		d.snapshotPending = true
		d.publish(notify.Connected, notify.Notice{})
		log.Info(log.CatDaemon, "connected to server")

		d.serve(ctx, mon)
		mon.Close()

		if ctx.Err() != nil {
			return ctx.Err()
		}
		d.publish(notify.Disconnected, notify.Notice{})
		log.Warn(log.CatDaemon, "server connection lost")
		d.model.Clear()
		d.rec.Reset()
	}
}

// serve is the inner loop for one server connection. Returns when the
// monitor stream ends or ctx is canceled.
func (d *Daemon) serve(ctx context.Context, mon *pw.Monitor) {
	for {
		select {
		case <-ctx.Done():
			return

		case batch, ok := <-mon.Events():
			if !ok {
				return
			}
			d.applyBatch(ctx, batch)

		case <-d.watchChanges():
			d.reload(ctx)
		}
	}
}

// applyBatch folds one registry update into the mirror, then reconciles:
// every rule after the initial snapshot, only the affected rules after
// incremental updates.
func (d *Daemon) applyBatch(ctx context.Context, batch []pw.Event) {
	affected := newRuleQueue()

	for _, ev := range batch {
		if ev.Removed {
			d.applyRemoval(ev.ID, affected)
			continue
		}
		switch ev.Kind {
		case pw.KindClient:
			d.model.AddClient(ev.Client)
		case pw.KindNode:
			d.model.AddNode(ev.Node)
		case pw.KindPort:
			port := d.model.AddPort(ev.Port)
			d.markRulesFor(port, affected)
		case pw.KindLink:
			d.model.AddLink(ev.Link)
			d.rec.ObserveLink(ev.Link, d.set)
		}
	}

	if d.snapshotPending {
		d.snapshotPending = false
		clients, nodes, ports, links := d.model.Stats()
		log.Info(log.CatDaemon, "snapshot applied",
			"clients", clients, "nodes", nodes, "ports", ports, "links", links)
		d.rec.ReconcileAll(ctx, d.set)
		return
	}

	for _, name := range affected.names {
		if rule, ok := d.set.Get(name); ok {
			d.rec.ReconcileRule(ctx, rule)
		}
	}
}

func (d *Daemon) applyRemoval(id graph.ID, affected *ruleQueue) {
	removal := d.model.Remove(id)
	switch removal.Kind {
	case graph.KindPort:
		for _, name := range d.rec.PortRemoved(removal.Severed) {
			affected.add(name)
		}
		// The vanished port may have been blocking a single-pair rule's
		// lowest-id choice or a channel pairing; every rule matching it
		// needs another look.
		d.markRulesFor(removal.Port, affected)
	case graph.KindLink:
		if name, ok := d.rec.LinkRemoved(removal.Link); ok {
			affected.add(name)
		}
	}
}

func (d *Daemon) markRulesFor(port graph.Port, affected *ruleQueue) {
	for _, name := range d.set.Names() {
		rule, _ := d.set.Get(name)
		if rule.AppliesTo(port) {
			affected.add(name)
		}
	}
}

// reload swaps in a changed config file. A file that fails to parse,
// validate, or compile is rejected as a whole and the previous config
// stays active.
func (d *Daemon) reload(ctx context.Context) {
	log.Info(log.CatConfig, "config change detected, reloading", "path", d.cfgPath)

	cfg, err := config.Load(d.cfgPath)
	if err != nil {
		log.ErrorErr(log.CatConfig, "config rejected, keeping previous", err)
		d.publish(notify.ConfigRejected, notify.Notice{Err: err.Error()})
		return
	}
	next, err := rules.CompileSet(cfg.Links)
	if err != nil {
		log.ErrorErr(log.CatConfig, "config rejected, keeping previous", err)
		d.publish(notify.ConfigRejected, notify.Notice{Err: err.Error()})
		return
	}

	diff := rules.DiffSets(d.set, next)
	log.Info(log.CatConfig, "config accepted",
		"added", len(diff.Added), "removed", len(diff.Removed),
		"changed", len(diff.Changed), "unchanged", len(diff.Unchanged))

	if lvl, err := log.ParseLevel(cfg.Log.Level); err == nil {
		log.SetMinLevel(lvl)
	}
	d.rec.SetLinger(cfg.General.LingerLinks)
	d.applyWatcherSetting(ctx, cfg.General.HotreloadConfig)

	// While disconnected there is nothing on the server to converge; the
	// next snapshot reconcile covers the new set.
	if !d.snapshotPending {
		d.rec.Apply(ctx, diff, next)
	}

	d.cfg = cfg
	d.set = next
	d.publish(notify.ConfigReloaded, notify.Notice{})
}

func (d *Daemon) startWatcher(ctx context.Context) error {
	w, err := watcher.New(ctx, d.cfgPath)
	if err != nil {
		return err
	}
	d.watch = w
	return nil
}

func (d *Daemon) stopWatcher() {
	if d.watch != nil {
		d.watch.Close()
		d.watch = nil
	}
}

// applyWatcherSetting reacts to hotreload_config flipping in a reload.
// Turning it off stops the watcher, so that the edit disabling hot
// reload is itself the last one honored.
func (d *Daemon) applyWatcherSetting(ctx context.Context, enabled bool) {
	switch {
	case enabled && d.watch == nil:
		if err := d.startWatcher(ctx); err != nil {
			log.ErrorErr(log.CatWatcher, "failed to start config watcher", err)
		}
	case !enabled && d.watch != nil:
		d.stopWatcher()
		log.Info(log.CatWatcher, "config hot reload disabled")
	}
}

// watchChanges returns the watcher channel, or nil (blocking forever in
// select) when hot reload is off.
func (d *Daemon) watchChanges() <-chan struct{} {
	if d.watch == nil {
		return nil
	}
	return d.watch.Changes()
}

func (d *Daemon) publish(t notify.EventType, n notify.Notice) {
	if d.broker != nil {
		d.broker.Publish(t, n)
	}
}

// ruleQueue collects affected rule names in first-marked order without
// duplicates.
type ruleQueue struct {
	seen  map[string]struct{}
	names []string
}

func newRuleQueue() *ruleQueue {
	return &ruleQueue{seen: make(map[string]struct{})}
}

func (q *ruleQueue) add(name string) {
	if _, ok := q.seen[name]; ok {
		return
	}
	q.seen[name] = struct{}{}
	q.names = append(q.names, name)
}

func sleepCtx(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
