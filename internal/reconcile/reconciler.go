// Package reconcile keeps the set of server links converged on what the
// active rules describe. It owns the only record of which links this
// daemon created, keyed by port pair, and never touches links it does
// not own.
package reconcile

import (
	"context"

	"github.com/mkranta/relink/internal/graph"
	"github.com/mkranta/relink/internal/log"
	"github.com/mkranta/relink/internal/notify"
	"github.com/mkranta/relink/internal/pw"
	"github.com/mkranta/relink/internal/rules"
)

// LinkController is the slice of the server the reconciler drives.
// Satisfied by pw.Linker in production and by fakes in tests.
type LinkController interface {
	CreateLink(ctx context.Context, source, sink graph.Port, rule string) error
	DestroyLink(ctx context.Context, source, sink graph.Port) error
}

// pairKey identifies a link by its port endpoints, source first.
type pairKey [2]graph.ID

// ManagedLink records one link the daemon created and still considers
// its own. Aliases are kept so telemetry stays readable after the ports
// themselves have vanished from the mirror.
type ManagedLink struct {
	Source      graph.ID
	Sink        graph.ID
	Rule        string
	SourceAlias string
	SinkAlias   string
}

// Reconciler converges server links on rule-derived desired pairs. Not
// safe for concurrent use; the daemon's event loop serializes calls.
type Reconciler struct {
	model   *graph.Model
	ctrl    LinkController
	emitter notify.Emitter
	linger  bool

	managed map[pairKey]ManagedLink
	byRule  map[string]map[pairKey]struct{}
}

func New(model *graph.Model, ctrl LinkController, emitter notify.Emitter) *Reconciler {
	return &Reconciler{
		model:   model,
		ctrl:    ctrl,
		emitter: emitter,
		managed: make(map[pairKey]ManagedLink),
		byRule:  make(map[string]map[pairKey]struct{}),
	}
}

// SetLinger selects what happens to links a rule no longer wants: linger
// leaves them on the server and merely forgets them, otherwise they are
// destroyed.
func (r *Reconciler) SetLinger(linger bool) {
	r.linger = linger
}

// Managed returns a copy of the current bookkeeping, for inspection.
func (r *Reconciler) Managed() []ManagedLink {
	out := make([]ManagedLink, 0, len(r.managed))
	for _, ml := range r.managed {
		out = append(out, ml)
	}
	return out
}

// ManagedCount returns the number of links currently owned by rule.
func (r *Reconciler) ManagedCount(rule string) int {
	return len(r.byRule[rule])
}

// Reset drops all bookkeeping. Called when the server connection is
// lost: ids from the dead session mean nothing in the next one, and
// surviving links are re-adopted from the fresh snapshot via their rule
// property.
func (r *Reconciler) Reset() {
	r.managed = make(map[pairKey]ManagedLink)
	r.byRule = make(map[string]map[pairKey]struct{})
}

// ReconcileRule brings one rule's links in line with the current graph.
// Missing desired links are created, managed links the rule no longer
// wants are released. Per-pair failures are logged and absorbed so one
// bad pair cannot stall the rest.
func (r *Reconciler) ReconcileRule(ctx context.Context, rule *rules.Rule) {
	wasActive := len(r.byRule[rule.Name]) > 0

	desired := rule.DesiredPairs(r.model.SourcePorts(), r.model.SinkPorts())
	want := make(map[pairKey]struct{}, len(desired))
	for _, pair := range desired {
		want[pairKey{pair.Source.ID, pair.Sink.ID}] = struct{}{}
	}

	for _, pair := range desired {
		r.ensureLink(ctx, rule.Name, pair)
	}

	for key := range r.byRule[rule.Name] {
		if _, ok := want[key]; !ok {
			r.releaseLink(ctx, key)
		}
	}

	isActive := len(r.byRule[rule.Name]) > 0
	switch {
	case isActive && !wasActive:
		r.emit(notify.RuleActivated, notify.Notice{Rule: rule.Name})
	case !isActive && wasActive:
		r.emit(notify.RuleDeactivated, notify.Notice{Rule: rule.Name})
	}
}

// ReconcileAll reconciles every rule in the set, in stable name order.
func (r *Reconciler) ReconcileAll(ctx context.Context, set *rules.Set) {
	for _, name := range set.Names() {
		rule, _ := set.Get(name)
		r.ReconcileRule(ctx, rule)
	}
}

// ensureLink makes one desired pair exist, creating a server link only
// when neither the bookkeeping nor the mirror already has one.
func (r *Reconciler) ensureLink(ctx context.Context, ruleName string, pair rules.Pair) {
	key := pairKey{pair.Source.ID, pair.Sink.ID}
	if _, owned := r.managed[key]; owned {
		return
	}
	if link, exists := r.model.LinkBetween(pair.Source.ID, pair.Sink.ID); exists {
		// The pair is already connected. Adopt it if it carries our
		// rule's property, otherwise leave the foreign link alone.
		if link.Rule == ruleName {
			r.track(ManagedLink{
				Source:      pair.Source.ID,
				Sink:        pair.Sink.ID,
				Rule:        ruleName,
				SourceAlias: pair.Source.Alias(),
				SinkAlias:   pair.Sink.Alias(),
			})
		}
		return
	}

	err := r.ctrl.CreateLink(ctx, pair.Source, pair.Sink, ruleName)
	switch {
	case err == nil, err == pw.ErrAlreadyLinked:
		r.track(ManagedLink{
			Source:      pair.Source.ID,
			Sink:        pair.Sink.ID,
			Rule:        ruleName,
			SourceAlias: pair.Source.Alias(),
			SinkAlias:   pair.Sink.Alias(),
		})
		r.emit(notify.LinkCreated, notify.Notice{
			Rule: ruleName, Source: pair.Source.Alias(), Sink: pair.Sink.Alias(),
		})
	case pw.IsRejected(err):
		log.Warn(log.CatReconcile, "link rejected by server",
			"rule", ruleName, "source", pair.Source.Alias(), "sink", pair.Sink.Alias(),
			"error", err)
		r.emit(notify.LinkRejected, notify.Notice{
			Rule: ruleName, Source: pair.Source.Alias(), Sink: pair.Sink.Alias(),
			Err: err.Error(),
		})
	default:
		log.ErrorErr(log.CatReconcile, "link creation failed", err,
			"rule", ruleName, "source", pair.Source.Alias(), "sink", pair.Sink.Alias())
		r.emit(notify.LinkRejected, notify.Notice{
			Rule: ruleName, Source: pair.Source.Alias(), Sink: pair.Sink.Alias(),
			Err: err.Error(),
		})
	}
}

// releaseLink lets go of one managed link: destroy it, or with linger
// enabled just forget it and leave it standing.
func (r *Reconciler) releaseLink(ctx context.Context, key pairKey) {
	ml, ok := r.managed[key]
	if !ok {
		return
	}
	r.untrack(key)

	if r.linger {
		r.emit(notify.LinkLingered, notify.Notice{
			Rule: ml.Rule, Source: ml.SourceAlias, Sink: ml.SinkAlias,
		})
		return
	}

	source, sok := r.model.Port(ml.Source)
	sink, kok := r.model.Port(ml.Sink)
	if !sok || !kok {
		// Endpoint already gone; the server removed the link with it.
		log.Debug(log.CatReconcile, "managed link endpoint gone, dropping entry",
			"rule", ml.Rule, "source", ml.SourceAlias, "sink", ml.SinkAlias)
		return
	}
	if err := r.ctrl.DestroyLink(ctx, source, sink); err != nil {
		log.ErrorErr(log.CatReconcile, "link destruction failed", err,
			"rule", ml.Rule, "source", ml.SourceAlias, "sink", ml.SinkAlias)
		return
	}
	r.emit(notify.LinkDestroyed, notify.Notice{
		Rule: ml.Rule, Source: ml.SourceAlias, Sink: ml.SinkAlias,
	})
}

// ObserveLink inspects a link announcement. Links carrying the rule
// property of a still-configured rule are adopted into the bookkeeping;
// this is how links created before a restart come back under management.
func (r *Reconciler) ObserveLink(link graph.Link, set *rules.Set) {
	if link.Rule == "" {
		return
	}
	if _, ok := set.Get(link.Rule); !ok {
		return
	}
	key := pairKey{link.Source, link.Sink}
	if _, owned := r.managed[key]; owned {
		return
	}
	ml := ManagedLink{Source: link.Source, Sink: link.Sink, Rule: link.Rule}
	if p, ok := r.model.Port(link.Source); ok {
		ml.SourceAlias = p.Alias()
	}
	if p, ok := r.model.Port(link.Sink); ok {
		ml.SinkAlias = p.Alias()
	}
	r.track(ml)
	log.Debug(log.CatReconcile, "adopted existing link",
		"rule", link.Rule, "source", ml.SourceAlias, "sink", ml.SinkAlias)
}

// LinkRemoved handles a link disappearing from the server. If it was
// managed, the entry is dropped and the owning rule's name returned so
// the caller can re-reconcile it, which recreates the link while its
// ports remain.
func (r *Reconciler) LinkRemoved(link graph.Link) (string, bool) {
	key := pairKey{link.Source, link.Sink}
	ml, ok := r.managed[key]
	if !ok {
		return "", false
	}
	r.untrack(key)
	log.Debug(log.CatReconcile, "managed link removed externally",
		"rule", ml.Rule, "source", ml.SourceAlias, "sink", ml.SinkAlias)
	return ml.Rule, true
}

// PortRemoved drops bookkeeping for every managed link severed along
// with a port. Returns the affected rule names.
func (r *Reconciler) PortRemoved(severed []graph.Link) []string {
	var affected []string
	seen := make(map[string]struct{})
	for _, link := range severed {
		key := pairKey{link.Source, link.Sink}
		ml, ok := r.managed[key]
		if !ok {
			continue
		}
		r.untrack(key)
		if _, dup := seen[ml.Rule]; !dup {
			seen[ml.Rule] = struct{}{}
			affected = append(affected, ml.Rule)
		}
	}
	return affected
}

// Apply transitions from one rule set to the next. Unchanged rules are
// untouched. Removed and changed rules first release all their links,
// then changed and added rules are reconciled against the current graph.
func (r *Reconciler) Apply(ctx context.Context, diff rules.Diff, next *rules.Set) {
	for _, name := range diff.Removed {
		r.TeardownRule(ctx, name)
	}
	for _, name := range diff.Changed {
		r.TeardownRule(ctx, name)
	}
	for _, name := range diff.Changed {
		if rule, ok := next.Get(name); ok {
			r.ReconcileRule(ctx, rule)
		}
	}
	for _, name := range diff.Added {
		if rule, ok := next.Get(name); ok {
			r.ReconcileRule(ctx, rule)
		}
	}
}

// TeardownRule releases every link a rule owns, honoring linger.
func (r *Reconciler) TeardownRule(ctx context.Context, name string) {
	keys := make([]pairKey, 0, len(r.byRule[name]))
	for key := range r.byRule[name] {
		keys = append(keys, key)
	}
	for _, key := range keys {
		r.releaseLink(ctx, key)
	}
	if len(keys) > 0 {
		r.emit(notify.RuleDeactivated, notify.Notice{Rule: name})
	}
}

func (r *Reconciler) track(ml ManagedLink) {
	key := pairKey{ml.Source, ml.Sink}
	r.managed[key] = ml
	set, ok := r.byRule[ml.Rule]
	if !ok {
		set = make(map[pairKey]struct{})
		r.byRule[ml.Rule] = set
	}
	set[key] = struct{}{}
}

func (r *Reconciler) untrack(key pairKey) {
	ml, ok := r.managed[key]
	if !ok {
		return
	}
	delete(r.managed, key)
	if set, ok := r.byRule[ml.Rule]; ok {
		delete(set, key)
		if len(set) == 0 {
			delete(r.byRule, ml.Rule)
		}
	}
}

func (r *Reconciler) emit(t notify.EventType, n notify.Notice) {
	if r.emitter != nil {
		r.emitter.Publish(t, n)
	}
}
