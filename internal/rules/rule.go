package rules

import (
	"fmt"
	"sort"

	"github.com/mkranta/relink/internal/config"
	"github.com/mkranta/relink/internal/graph"
)

// Rule is a compiled link rule. The compiled matchers are never mutated;
// a changed definition compiles to a fresh Rule.
type Rule struct {
	Name   string
	Source Matcher // matches source (output) ports, "out" in the config
	Sink   Matcher // matches sink (input) ports, "in" in the config

	// SpecialEmptyPorts enables channel pairing when neither side sets
	// a port slot.
	SpecialEmptyPorts bool

	// Raw is the uncompiled definition, kept for reload comparison.
	Raw config.LinkRule
}

// Compile builds a Rule from its config definition.
func Compile(name string, cfg config.LinkRule) (*Rule, error) {
	source, err := compileEndpoint(cfg.Out)
	if err != nil {
		return nil, fmt.Errorf("link %q: out: %w", name, err)
	}
	sink, err := compileEndpoint(cfg.In)
	if err != nil {
		return nil, fmt.Errorf("link %q: in: %w", name, err)
	}
	return &Rule{
		Name:              name,
		Source:            source,
		Sink:              sink,
		SpecialEmptyPorts: cfg.SpecialEmpty(),
		Raw:               cfg,
	}, nil
}

// AppliesTo reports whether the port is relevant to this rule: source ports
// are checked against the source matcher, sink ports against the sink
// matcher. Used to limit incremental reconciliation to affected rules.
func (r *Rule) AppliesTo(p graph.Port) bool {
	if p.Direction == graph.DirSource {
		return r.Source.Matches(p)
	}
	return r.Sink.Matches(p)
}

// Set is an immutable compiled rule set keyed by rule name.
type Set struct {
	rules map[string]*Rule
	names []string // sorted
}

// CompileSet compiles every rule in the config. Any bad pattern fails the
// whole set so a reload never applies a partially-compiled result.
func CompileSet(links map[string]config.LinkRule) (*Set, error) {
	s := &Set{rules: make(map[string]*Rule, len(links))}
	for name, cfg := range links {
		rule, err := Compile(name, cfg)
		if err != nil {
			return nil, err
		}
		s.rules[name] = rule
		s.names = append(s.names, name)
	}
	sort.Strings(s.names)
	return s, nil
}

// EmptySet returns a set with no rules.
func EmptySet() *Set {
	return &Set{rules: map[string]*Rule{}}
}

// Get returns the named rule.
func (s *Set) Get(name string) (*Rule, bool) {
	r, ok := s.rules[name]
	return r, ok
}

// Names returns all rule names in sorted order.
func (s *Set) Names() []string {
	return s.names
}

// Len returns the number of rules.
func (s *Set) Len() int {
	return len(s.rules)
}

// Diff describes how a new rule set relates to the old one, by rule name.
// A changed rule is treated downstream as removed-then-added.
type Diff struct {
	Added     []string
	Removed   []string
	Changed   []string
	Unchanged []string
}

// DiffSets compares two compiled sets by name and raw definition.
func DiffSets(old, new *Set) Diff {
	var d Diff
	for _, name := range new.names {
		oldRule, existed := old.rules[name]
		switch {
		case !existed:
			d.Added = append(d.Added, name)
		case oldRule.Raw.Equal(new.rules[name].Raw):
			d.Unchanged = append(d.Unchanged, name)
		default:
			d.Changed = append(d.Changed, name)
		}
	}
	for _, name := range old.names {
		if _, exists := new.rules[name]; !exists {
			d.Removed = append(d.Removed, name)
		}
	}
	return d
}
