// Package rules implements the matcher language: compiling link rules from
// configuration, evaluating matchers against port identities, and deriving
// the desired source/sink pairs for a rule, including stereo channel pairing.
package rules

import (
	"fmt"
	"regexp"

	"github.com/mkranta/relink/internal/config"
	"github.com/mkranta/relink/internal/graph"
)

// Matcher is a compiled endpoint matcher. Each slot, when non-nil, must
// match the whole target string; an unset slot is vacuously true. Patterns
// are case-insensitive, matching the original pipeswitch behavior.
type Matcher struct {
	Client *regexp.Regexp
	Node   *regexp.Regexp
	Port   *regexp.Regexp
}

// HasPort reports whether the port slot is set. Rules where both sides
// leave it unset participate in channel pairing.
func (m Matcher) HasPort() bool {
	return m.Port != nil
}

// Matches evaluates the matcher against a port identity. All set slots must
// match; a set node or client slot fails when the port's owner could not be
// resolved.
func (m Matcher) Matches(p graph.Port) bool {
	if m.Port != nil && !m.Port.MatchString(p.Name) {
		return false
	}
	if m.Node != nil {
		if p.Node == "" || !m.Node.MatchString(p.Node) {
			return false
		}
	}
	if m.Client != nil {
		if p.Client == "" || !m.Client.MatchString(p.Client) {
			return false
		}
	}
	return true
}

// compileSlot builds the anchored, case-insensitive regex for one slot.
// Literal slots (the plain-string config shorthand) are escaped first, so
// shorthand is exact-match sugar rather than a pattern.
func compileSlot(pattern string, literal bool) (*regexp.Regexp, error) {
	if literal {
		pattern = regexp.QuoteMeta(pattern)
	}
	return regexp.Compile(`(?i)\A(?:` + pattern + `)\z`)
}

func compileEndpoint(e config.Endpoint) (Matcher, error) {
	var m Matcher
	var err error
	if e.Client != nil {
		if m.Client, err = compileSlot(*e.Client, e.Literal); err != nil {
			return Matcher{}, fmt.Errorf("client pattern %q: %w", *e.Client, err)
		}
	}
	if e.Node != nil {
		if m.Node, err = compileSlot(*e.Node, e.Literal); err != nil {
			return Matcher{}, fmt.Errorf("node pattern %q: %w", *e.Node, err)
		}
	}
	if e.Port != nil {
		if m.Port, err = compileSlot(*e.Port, e.Literal); err != nil {
			return Matcher{}, fmt.Errorf("port pattern %q: %w", *e.Port, err)
		}
	}
	return m, nil
}
