// Package testutil provides a fluent builder for assembling graph
// mirrors in tests, so each test reads as the scenario it exercises
// instead of a wall of AddClient/AddNode/AddPort calls.
package testutil

import (
	"testing"

	"github.com/mkranta/relink/internal/graph"
)

// Builder accumulates graph objects and applies them in announcement
// order: clients, then nodes, then ports, then links. Ids are assigned
// sequentially unless set explicitly.
type Builder struct {
	t      *testing.T
	nextID graph.ID

	clients []graph.Client
	nodes   []graph.Node
	ports   []graph.PortInfo
	links   []graph.Link

	nodeIDs map[string]graph.ID
	portIDs map[string]graph.ID
}

// NewBuilder creates a builder. Ids start at 1.
func NewBuilder(t *testing.T) *Builder {
	t.Helper()
	return &Builder{
		t:       t,
		nextID:  1,
		nodeIDs: make(map[string]graph.ID),
		portIDs: make(map[string]graph.ID),
	}
}

func (b *Builder) id() graph.ID {
	id := b.nextID
	b.nextID++
	return id
}

// WithClient adds a client and returns its id.
func (b *Builder) WithClient(name string) *Builder {
	b.clients = append(b.clients, graph.Client{ID: b.id(), Name: name})
	return b
}

// WithNode adds a node owned by the most recently added client, or no
// client when none exists yet.
func (b *Builder) WithNode(name string) *Builder {
	var clientID graph.ID
	if len(b.clients) > 0 {
		clientID = b.clients[len(b.clients)-1].ID
	}
	id := b.id()
	b.nodes = append(b.nodes, graph.Node{ID: id, Name: name, ClientID: clientID})
	b.nodeIDs[name] = id
	return b
}

// WithSource adds a source-direction port on the most recently added node.
func (b *Builder) WithSource(portName string) *Builder {
	return b.withPort(portName, graph.DirSource)
}

// WithSink adds a sink-direction port on the most recently added node.
func (b *Builder) WithSink(portName string) *Builder {
	return b.withPort(portName, graph.DirSink)
}

func (b *Builder) withPort(portName string, dir graph.Direction) *Builder {
	b.t.Helper()
	if len(b.nodes) == 0 {
		b.t.Fatalf("port %q added before any node", portName)
	}
	node := b.nodes[len(b.nodes)-1]
	id := b.id()
	b.ports = append(b.ports, graph.PortInfo{
		ID:        id,
		Name:      portName,
		Direction: dir,
		NodeID:    node.ID,
	})
	b.portIDs[node.Name+":"+portName] = id
	return b
}

// WithLink adds a link between two ports named by "node:port" alias.
// Rule may be empty for a foreign link.
func (b *Builder) WithLink(sourceAlias, sinkAlias, rule string) *Builder {
	b.t.Helper()
	src, ok := b.portIDs[sourceAlias]
	if !ok {
		b.t.Fatalf("unknown source port %q", sourceAlias)
	}
	snk, ok := b.portIDs[sinkAlias]
	if !ok {
		b.t.Fatalf("unknown sink port %q", sinkAlias)
	}
	b.links = append(b.links, graph.Link{ID: b.id(), Source: src, Sink: snk, Rule: rule})
	return b
}

// PortID returns the id assigned to a "node:port" alias.
func (b *Builder) PortID(alias string) graph.ID {
	b.t.Helper()
	id, ok := b.portIDs[alias]
	if !ok {
		b.t.Fatalf("unknown port %q", alias)
	}
	return id
}

// Build applies the accumulated objects to a fresh model.
func (b *Builder) Build() *graph.Model {
	m := graph.NewModel()
	b.Apply(m)
	return m
}

// Apply announces the accumulated objects into an existing model.
func (b *Builder) Apply(m *graph.Model) {
	for _, c := range b.clients {
		m.AddClient(c)
	}
	for _, n := range b.nodes {
		m.AddNode(n)
	}
	for _, p := range b.ports {
		m.AddPort(p)
	}
	for _, l := range b.links {
		m.AddLink(l)
	}
}
