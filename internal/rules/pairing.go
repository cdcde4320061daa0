package rules

import (
	"github.com/mkranta/relink/internal/graph"
)

// Pair is one desired link: a source port and a sink port.
type Pair struct {
	Source graph.Port
	Sink   graph.Port
}

// DesiredPairs computes the links this rule wants, given the model's source
// and sink ports in discovery order.
//
// Port-slot combinations select the pairing mode:
//   - both sides set a port slot: every matching source links to every
//     matching sink (the slots have already narrowed the candidates);
//   - exactly one side sets a port slot: a single link, taking the
//     lowest-id matching port on each side (the declared tie-break for
//     this inherently ambiguous mode);
//   - neither side sets a port slot: stereo channel pairing when
//     SpecialEmptyPorts is on, full product otherwise.
func (r *Rule) DesiredPairs(sources, sinks []graph.Port) []Pair {
	srcs := matching(r.Source, sources)
	snks := matching(r.Sink, sinks)
	if len(srcs) == 0 || len(snks) == 0 {
		return nil
	}

	switch {
	case r.Source.HasPort() && r.Sink.HasPort():
		return product(srcs, snks)
	case r.Source.HasPort() || r.Sink.HasPort():
		return []Pair{{Source: lowestID(srcs), Sink: lowestID(snks)}}
	default:
		if r.SpecialEmptyPorts {
			return ChannelPairs(srcs, snks)
		}
		return product(srcs, snks)
	}
}

// ChannelPairs pairs source and sink candidates by channel tag. Within a
// tag, ports pair one-to-one in discovery order; surplus ports on either
// side stay unpaired. Tags are walked in a fixed order (left, right, mono,
// then other-labels in source discovery order) so the result depends only
// on the candidate sets, never on map iteration.
func ChannelPairs(sources, sinks []graph.Port) []Pair {
	var pairs []Pair
	for _, tag := range []graph.ChannelTag{graph.ChannelLeft, graph.ChannelRight, graph.ChannelMono} {
		pairs = append(pairs, zipByChannel(sources, sinks, graph.Channel{Tag: tag})...)
	}

	// other(label) pairs only on byte-equal labels.
	seen := map[string]bool{}
	for _, src := range sources {
		if src.Channel.Tag != graph.ChannelOther || seen[src.Channel.Raw] {
			continue
		}
		seen[src.Channel.Raw] = true
		pairs = append(pairs, zipByChannel(sources, sinks, src.Channel)...)
	}
	return pairs
}

// zipByChannel pairs the sources and sinks whose channel pairs with want,
// one-to-one in the order given.
func zipByChannel(sources, sinks []graph.Port, want graph.Channel) []Pair {
	var srcs, snks []graph.Port
	for _, p := range sources {
		if p.Channel.PairsWith(want) {
			srcs = append(srcs, p)
		}
	}
	for _, p := range sinks {
		if p.Channel.PairsWith(want) {
			snks = append(snks, p)
		}
	}

	n := len(srcs)
	if len(snks) < n {
		n = len(snks)
	}
	pairs := make([]Pair, 0, n)
	for i := 0; i < n; i++ {
		pairs = append(pairs, Pair{Source: srcs[i], Sink: snks[i]})
	}
	return pairs
}

func matching(m Matcher, ports []graph.Port) []graph.Port {
	var out []graph.Port
	for _, p := range ports {
		if m.Matches(p) {
			out = append(out, p)
		}
	}
	return out
}

func product(sources, sinks []graph.Port) []Pair {
	pairs := make([]Pair, 0, len(sources)*len(sinks))
	for _, src := range sources {
		for _, snk := range sinks {
			pairs = append(pairs, Pair{Source: src, Sink: snk})
		}
	}
	return pairs
}

func lowestID(ports []graph.Port) graph.Port {
	best := ports[0]
	for _, p := range ports[1:] {
		if p.ID < best.ID {
			best = p
		}
	}
	return best
}
