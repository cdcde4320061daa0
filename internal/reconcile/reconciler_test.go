package reconcile

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mkranta/relink/internal/config"
	"github.com/mkranta/relink/internal/graph"
	"github.com/mkranta/relink/internal/notify"
	"github.com/mkranta/relink/internal/pw"
	"github.com/mkranta/relink/internal/rules"
	"github.com/mkranta/relink/internal/testutil"
)

// fakeController records link commands instead of talking to a server.
type fakeController struct {
	created   []string
	destroyed []string
	fail      map[[2]graph.ID]error
}

func newFakeController() *fakeController {
	return &fakeController{fail: make(map[[2]graph.ID]error)}
}

func (f *fakeController) CreateLink(_ context.Context, source, sink graph.Port, rule string) error {
	if err, ok := f.fail[[2]graph.ID{source.ID, sink.ID}]; ok {
		return err
	}
	f.created = append(f.created, fmt.Sprintf("%s->%s[%s]", source.Alias(), sink.Alias(), rule))
	return nil
}

func (f *fakeController) DestroyLink(_ context.Context, source, sink graph.Port) error {
	f.destroyed = append(f.destroyed, fmt.Sprintf("%s->%s", source.Alias(), sink.Alias()))
	return nil
}

// captureEmitter records published telemetry event types.
type captureEmitter struct {
	types []notify.EventType
}

func (c *captureEmitter) Publish(t notify.EventType, _ notify.Notice) {
	c.types = append(c.types, t)
}

func (c *captureEmitter) count(t notify.EventType) int {
	n := 0
	for _, got := range c.types {
		if got == t {
			n++
		}
	}
	return n
}

func strptr(s string) *string { return &s }

func stereoRuleSet(t *testing.T) *rules.Set {
	t.Helper()
	set, err := rules.CompileSet(map[string]config.LinkRule{
		"stereo": {
			Out: config.Endpoint{Node: strptr(`music\.player`)},
			In:  config.Endpoint{Node: strptr(`alsa\.speakers`)},
		},
	})
	require.NoError(t, err)
	return set
}

func mustRule(t *testing.T, set *rules.Set, name string) *rules.Rule {
	t.Helper()
	rule, ok := set.Get(name)
	require.True(t, ok)
	return rule
}

func TestReconcileRuleCreatesStereoPairs(t *testing.T) {
	model := testutil.StereoScenario(t).Build()
	ctrl := newFakeController()
	emitter := &captureEmitter{}
	rec := New(model, ctrl, emitter)
	set := stereoRuleSet(t)

	rec.ReconcileRule(context.Background(), mustRule(t, set, "stereo"))

	assert.Equal(t, []string{
		"music.player:output_FL->alsa.speakers:playback_FL[stereo]",
		"music.player:output_FR->alsa.speakers:playback_FR[stereo]",
	}, ctrl.created)
	assert.Equal(t, 2, rec.ManagedCount("stereo"))
	assert.Equal(t, 2, emitter.count(notify.LinkCreated))
	assert.Equal(t, 1, emitter.count(notify.RuleActivated))
}

func TestReconcileRuleIsIdempotent(t *testing.T) {
	model := testutil.StereoScenario(t).Build()
	ctrl := newFakeController()
	rec := New(model, ctrl, nil)
	set := stereoRuleSet(t)
	rule := mustRule(t, set, "stereo")

	rec.ReconcileRule(context.Background(), rule)
	rec.ReconcileRule(context.Background(), rule)
	rec.ReconcileRule(context.Background(), rule)

	assert.Len(t, ctrl.created, 2, "repeated reconciliation must not issue duplicate commands")
	assert.Empty(t, ctrl.destroyed)
}

func TestReconcileRuleSkipsForeignLinks(t *testing.T) {
	b := testutil.StereoScenario(t).
		WithLink("music.player:output_FL", "alsa.speakers:playback_FL", "")
	model := b.Build()
	ctrl := newFakeController()
	rec := New(model, ctrl, nil)
	set := stereoRuleSet(t)

	rec.ReconcileRule(context.Background(), mustRule(t, set, "stereo"))

	require.Len(t, ctrl.created, 1, "the pair a foreign link already covers is left alone")
	assert.Contains(t, ctrl.created[0], "output_FR")
	assert.Equal(t, 1, rec.ManagedCount("stereo"), "foreign links are not adopted")
}

func TestReconcileRuleAdoptsOwnTaggedLinks(t *testing.T) {
	b := testutil.StereoScenario(t).
		WithLink("music.player:output_FL", "alsa.speakers:playback_FL", "stereo").
		WithLink("music.player:output_FR", "alsa.speakers:playback_FR", "stereo")
	model := b.Build()
	ctrl := newFakeController()
	rec := New(model, ctrl, nil)
	set := stereoRuleSet(t)

	rec.ReconcileRule(context.Background(), mustRule(t, set, "stereo"))

	assert.Empty(t, ctrl.created, "links carrying the rule's own tag are adopted, not recreated")
	assert.Equal(t, 2, rec.ManagedCount("stereo"))
}

func TestReconcileRuleAbsorbsRejections(t *testing.T) {
	b := testutil.StereoScenario(t)
	model := b.Build()
	ctrl := newFakeController()
	ctrl.fail[[2]graph.ID{b.PortID("music.player:output_FL"), b.PortID("alsa.speakers:playback_FL")}] =
		&pw.LinkRejectedError{Reason: "format mismatch"}
	emitter := &captureEmitter{}
	rec := New(model, ctrl, emitter)
	set := stereoRuleSet(t)

	rec.ReconcileRule(context.Background(), mustRule(t, set, "stereo"))

	assert.Len(t, ctrl.created, 1, "one rejected pair must not stall the others")
	assert.Equal(t, 1, rec.ManagedCount("stereo"))
	assert.Equal(t, 1, emitter.count(notify.LinkRejected))
}

func TestReconcileRuleTreatsAlreadyLinkedAsSuccess(t *testing.T) {
	b := testutil.StereoScenario(t)
	model := b.Build()
	ctrl := newFakeController()
	ctrl.fail[[2]graph.ID{b.PortID("music.player:output_FL"), b.PortID("alsa.speakers:playback_FL")}] =
		pw.ErrAlreadyLinked
	rec := New(model, ctrl, nil)
	set := stereoRuleSet(t)

	rec.ReconcileRule(context.Background(), mustRule(t, set, "stereo"))

	assert.Equal(t, 2, rec.ManagedCount("stereo"),
		"a racing create still counts as a managed link")
}

func TestPortRemovedDropsSeveredBookkeeping(t *testing.T) {
	b := testutil.StereoScenario(t)
	model := b.Build()
	ctrl := newFakeController()
	rec := New(model, ctrl, nil)
	set := stereoRuleSet(t)
	rule := mustRule(t, set, "stereo")

	rec.ReconcileRule(context.Background(), rule)
	require.Equal(t, 2, rec.ManagedCount("stereo"))

	// The server announces the links the reconciler asked for.
	model.AddLink(graph.Link{ID: 100,
		Source: b.PortID("music.player:output_FL"),
		Sink:   b.PortID("alsa.speakers:playback_FL"), Rule: "stereo"})
	model.AddLink(graph.Link{ID: 101,
		Source: b.PortID("music.player:output_FR"),
		Sink:   b.PortID("alsa.speakers:playback_FR"), Rule: "stereo"})

	// The right source port disappears, taking its link with it.
	_, severed, ok := model.RemovePort(b.PortID("music.player:output_FR"))
	require.True(t, ok)
	require.Len(t, severed, 1)

	affected := rec.PortRemoved(severed)
	assert.Equal(t, []string{"stereo"}, affected)
	assert.Equal(t, 1, rec.ManagedCount("stereo"))

	creates := len(ctrl.created)
	rec.ReconcileRule(context.Background(), rule)
	assert.Len(t, ctrl.created, creates, "the surviving pair needs no new command")
	assert.Empty(t, ctrl.destroyed, "the server already removed the severed link")
}

func TestStaleEntryWithVanishedEndpointDroppedQuietly(t *testing.T) {
	b := testutil.StereoScenario(t)
	model := b.Build()
	ctrl := newFakeController()
	rec := New(model, ctrl, nil)
	set := stereoRuleSet(t)
	rule := mustRule(t, set, "stereo")

	rec.ReconcileRule(context.Background(), rule)
	require.Equal(t, 2, rec.ManagedCount("stereo"))

	// The port vanishes without the bookkeeping being told, leaving a
	// stale managed entry. Reconciling must shed it without a command.
	_, _, ok := model.RemovePort(b.PortID("music.player:output_FR"))
	require.True(t, ok)
	rec.ReconcileRule(context.Background(), rule)

	assert.Equal(t, 1, rec.ManagedCount("stereo"))
	assert.Empty(t, ctrl.destroyed)
}

func TestLingerLeavesLinksStanding(t *testing.T) {
	model := testutil.StereoScenario(t).Build()
	ctrl := newFakeController()
	emitter := &captureEmitter{}
	rec := New(model, ctrl, emitter)
	rec.SetLinger(true)
	set := stereoRuleSet(t)

	rec.ReconcileRule(context.Background(), mustRule(t, set, "stereo"))
	rec.TeardownRule(context.Background(), "stereo")

	assert.Empty(t, ctrl.destroyed, "linger releases bookkeeping without destroying")
	assert.Equal(t, 0, rec.ManagedCount("stereo"))
	assert.Equal(t, 2, emitter.count(notify.LinkLingered))
}

func TestApplyTouchesOnlyChangedRules(t *testing.T) {
	b := testutil.StereoScenario(t).
		WithClient("pipewire-alsa").
		WithNode("alsa.microphone").
		WithSource("capture_MONO").
		WithClient("recorder").
		WithNode("app.recorder").
		WithSink("input_MONO")
	model := b.Build()
	ctrl := newFakeController()
	rec := New(model, ctrl, nil)

	micRule := config.LinkRule{
		Out: config.Endpoint{Node: strptr(`alsa\.microphone`)},
		In:  config.Endpoint{Node: strptr(`app\.recorder`)},
	}
	oldSet, err := rules.CompileSet(map[string]config.LinkRule{
		"stereo": {
			Out: config.Endpoint{Node: strptr(`music\.player`)},
			In:  config.Endpoint{Node: strptr(`alsa\.speakers`)},
		},
		"mic": micRule,
	})
	require.NoError(t, err)
	rec.ReconcileAll(context.Background(), oldSet)
	require.Len(t, ctrl.created, 3)

	// stereo changes its sink pattern, mic stays byte-identical.
	newSet, err := rules.CompileSet(map[string]config.LinkRule{
		"stereo": {
			Out: config.Endpoint{Node: strptr(`music\.player`)},
			In:  config.Endpoint{Node: strptr(`alsa\..*`)},
		},
		"mic": micRule,
	})
	require.NoError(t, err)

	created := len(ctrl.created)
	rec.Apply(context.Background(), rules.DiffSets(oldSet, newSet), newSet)

	assert.Len(t, ctrl.destroyed, 2, "only the changed rule's links are torn down")
	for _, d := range ctrl.destroyed {
		assert.Contains(t, d, "music.player", "the unchanged rule's links stay untouched")
	}
	assert.Greater(t, len(ctrl.created), created, "the changed rule is re-evaluated")
	assert.Equal(t, 1, rec.ManagedCount("mic"))
}

func TestApplyRemovedRuleTearsDown(t *testing.T) {
	model := testutil.StereoScenario(t).Build()
	ctrl := newFakeController()
	rec := New(model, ctrl, nil)
	oldSet := stereoRuleSet(t)

	rec.ReconcileAll(context.Background(), oldSet)
	rec.Apply(context.Background(), rules.DiffSets(oldSet, rules.EmptySet()), rules.EmptySet())

	assert.Len(t, ctrl.destroyed, 2)
	assert.Equal(t, 0, rec.ManagedCount("stereo"))
}

func TestLinkRemovedReturnsOwningRule(t *testing.T) {
	b := testutil.StereoScenario(t)
	model := b.Build()
	ctrl := newFakeController()
	rec := New(model, ctrl, nil)
	set := stereoRuleSet(t)
	rec.ReconcileRule(context.Background(), mustRule(t, set, "stereo"))

	link := graph.Link{
		Source: b.PortID("music.player:output_FL"),
		Sink:   b.PortID("alsa.speakers:playback_FL"),
	}
	name, ok := rec.LinkRemoved(link)
	require.True(t, ok)
	assert.Equal(t, "stereo", name)
	assert.Equal(t, 1, rec.ManagedCount("stereo"))

	_, ok = rec.LinkRemoved(graph.Link{Source: 1000, Sink: 1001})
	assert.False(t, ok, "unmanaged links are not ours to react to")
}

func TestExternallyRemovedLinkIsRecreated(t *testing.T) {
	b := testutil.StereoScenario(t)
	model := b.Build()
	ctrl := newFakeController()
	rec := New(model, ctrl, nil)
	set := stereoRuleSet(t)
	rule := mustRule(t, set, "stereo")
	rec.ReconcileRule(context.Background(), rule)

	link := graph.Link{
		Source: b.PortID("music.player:output_FL"),
		Sink:   b.PortID("alsa.speakers:playback_FL"),
	}
	name, ok := rec.LinkRemoved(link)
	require.True(t, ok)
	rec.ReconcileRule(context.Background(), mustRule(t, set, name))

	assert.Len(t, ctrl.created, 3, "the severed pair is created again while its ports remain")
	assert.Equal(t, 2, rec.ManagedCount("stereo"))
}

func TestObserveLinkAdoptsAcrossRestart(t *testing.T) {
	b := testutil.StereoScenario(t)
	model := b.Build()
	ctrl := newFakeController()
	rec := New(model, ctrl, nil)
	set := stereoRuleSet(t)

	// Snapshot after a restart: the link from the previous run carries
	// the rule tag.
	tagged := graph.Link{
		ID:     100,
		Source: b.PortID("music.player:output_FL"),
		Sink:   b.PortID("alsa.speakers:playback_FL"),
		Rule:   "stereo",
	}
	model.AddLink(tagged)
	rec.ObserveLink(tagged, set)
	assert.Equal(t, 1, rec.ManagedCount("stereo"))

	// A tag for a rule that no longer exists is ignored.
	stale := graph.Link{ID: 101, Source: 1, Sink: 2, Rule: "gone"}
	rec.ObserveLink(stale, set)
	assert.Equal(t, 0, rec.ManagedCount("gone"))
}

func TestResetDropsBookkeeping(t *testing.T) {
	model := testutil.StereoScenario(t).Build()
	ctrl := newFakeController()
	rec := New(model, ctrl, nil)
	set := stereoRuleSet(t)
	rec.ReconcileRule(context.Background(), mustRule(t, set, "stereo"))

	rec.Reset()

	assert.Equal(t, 0, rec.ManagedCount("stereo"))
	assert.Empty(t, rec.Managed())
}
