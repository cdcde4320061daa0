package graph

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestModel(t *testing.T) *Model {
	t.Helper()
	m := NewModel()
	m.AddClient(Client{ID: 1, Name: "music-player"})
	m.AddNode(Node{ID: 2, Name: "music.player", ClientID: 1})
	m.AddPort(PortInfo{ID: 3, Name: "output_FL", Direction: DirSource, NodeID: 2})
	m.AddPort(PortInfo{ID: 4, Name: "output_FR", Direction: DirSource, NodeID: 2})
	m.AddNode(Node{ID: 5, Name: "alsa.speakers", ClientID: 1})
	m.AddPort(PortInfo{ID: 6, Name: "playback_FL", Direction: DirSink, NodeID: 5})
	return m
}

func TestAddPortResolvesOwnerNames(t *testing.T) {
	m := newTestModel(t)

	p, ok := m.Port(3)
	require.True(t, ok)
	assert.Equal(t, "music.player", p.Node)
	assert.Equal(t, "music-player", p.Client)
	assert.Equal(t, ChannelLeft, p.Channel.Tag)
}

func TestAddPortUnknownNodeLeavesNamesEmpty(t *testing.T) {
	m := NewModel()
	p := m.AddPort(PortInfo{ID: 10, Name: "out_L", Direction: DirSource, NodeID: 99})

	assert.Empty(t, p.Node)
	assert.Empty(t, p.Client)
}

func TestPortDiscoveryOrder(t *testing.T) {
	m := newTestModel(t)

	sources := m.SourcePorts()
	require.Len(t, sources, 2)
	assert.Equal(t, ID(3), sources[0].ID)
	assert.Equal(t, ID(4), sources[1].ID)

	// Re-announcing a live port keeps its slot in the order.
	m.AddPort(PortInfo{ID: 3, Name: "output_FL", Direction: DirSource, NodeID: 2})
	sources = m.SourcePorts()
	require.Len(t, sources, 2)
	assert.Equal(t, ID(3), sources[0].ID)
}

func TestRemovePortSeversLinks(t *testing.T) {
	m := newTestModel(t)
	m.AddLink(Link{ID: 7, Source: 3, Sink: 6, Rule: "stereo"})

	port, severed, ok := m.RemovePort(3)
	require.True(t, ok)
	assert.Equal(t, ID(3), port.ID)
	require.Len(t, severed, 1)
	assert.Equal(t, ID(7), severed[0].ID)

	_, ok = m.LinkBetween(3, 6)
	assert.False(t, ok)
	assert.Len(t, m.SourcePorts(), 1)
}

func TestRemoveDispatchesByKind(t *testing.T) {
	m := newTestModel(t)
	m.AddLink(Link{ID: 7, Source: 3, Sink: 6})

	assert.Equal(t, KindLink, m.Remove(7).Kind)
	assert.Equal(t, KindPort, m.Remove(4).Kind)
	assert.Equal(t, KindNode, m.Remove(5).Kind)
	assert.Equal(t, KindClient, m.Remove(1).Kind)
	assert.Equal(t, KindUnknown, m.Remove(999).Kind)
}

func TestClearDropsEverything(t *testing.T) {
	m := newTestModel(t)
	m.AddLink(Link{ID: 7, Source: 3, Sink: 6})

	m.Clear()

	clients, nodes, ports, links := m.Stats()
	assert.Zero(t, clients)
	assert.Zero(t, nodes)
	assert.Zero(t, ports)
	assert.Zero(t, links)
	assert.Empty(t, m.SourcePorts())
	assert.Empty(t, m.SinkPorts())
}
