package graph

import (
	"github.com/mkranta/relink/internal/log"
)

// PortInfo is the raw port announcement from the server, before the owning
// node and client names are resolved.
type PortInfo struct {
	ID        ID
	Name      string
	Direction Direction
	NodeID    ID
}

// Model mirrors the server's registry. It is not safe for concurrent use;
// the coordinator serializes all access.
type Model struct {
	clients map[ID]Client
	nodes   map[ID]Node
	ports   map[ID]Port

	// Discovery order per direction. Channel pairing is defined over
	// insertion order, so these are append-only until a port is removed.
	sourceOrder []ID
	sinkOrder   []ID

	links      map[ID]Link
	linkByPair map[[2]ID]ID
}

// NewModel returns an empty graph mirror.
func NewModel() *Model {
	m := &Model{}
	m.Clear()
	return m
}

// Clear drops every object. Called when the server connection is lost: ids
// from the old registry session must not survive into the next.
func (m *Model) Clear() {
	m.clients = make(map[ID]Client)
	m.nodes = make(map[ID]Node)
	m.ports = make(map[ID]Port)
	m.sourceOrder = nil
	m.sinkOrder = nil
	m.links = make(map[ID]Link)
	m.linkByPair = make(map[[2]ID]ID)
}

// AddClient records a client announcement.
func (m *Model) AddClient(c Client) {
	m.clients[c.ID] = c
}

// RemoveClient forgets a client.
func (m *Model) RemoveClient(id ID) {
	delete(m.clients, id)
}

// AddNode records a node announcement.
func (m *Model) AddNode(n Node) {
	m.nodes[n.ID] = n
}

// RemoveNode forgets a node. Ports are removed by their own removal events.
func (m *Model) RemoveNode(id ID) {
	delete(m.nodes, id)
}

// AddPort resolves a port announcement into an identity snapshot and indexes
// it by direction. If the owning node (or its client) is unknown, the
// respective name is left empty; matchers with a node or client slot then
// simply fail to match, as in the original implementation.
func (m *Model) AddPort(info PortInfo) Port {
	port := Port{
		ID:        info.ID,
		Name:      info.Name,
		Direction: info.Direction,
		Channel:   ChannelFromPortName(info.Name),
	}
	if node, ok := m.nodes[info.NodeID]; ok {
		port.Node = node.Name
		if client, ok := m.clients[node.ClientID]; ok {
			port.Client = client.Name
		}
	}

	if _, exists := m.ports[port.ID]; exists {
		// Re-announcement of a live id: replace in place, keep order.
		m.ports[port.ID] = port
		return port
	}

	m.ports[port.ID] = port
	if port.Direction == DirSource {
		m.sourceOrder = append(m.sourceOrder, port.ID)
	} else {
		m.sinkOrder = append(m.sinkOrder, port.ID)
	}
	log.Trace(log.CatGraph, "port added",
		"id", port.ID, "alias", port.Alias(),
		"direction", port.Direction, "channel", port.Channel)
	return port
}

// RemovePort forgets a port. Any links still referencing it are removed from
// the mirror and returned so the reconciler can invalidate its bookkeeping
// before the port is gone. The second return is false for unknown ids.
func (m *Model) RemovePort(id ID) (Port, []Link, bool) {
	port, ok := m.ports[id]
	if !ok {
		return Port{}, nil, false
	}

	var severed []Link
	for linkID, link := range m.links {
		if link.Source == id || link.Sink == id {
			severed = append(severed, link)
			delete(m.links, linkID)
			delete(m.linkByPair, [2]ID{link.Source, link.Sink})
		}
	}

	delete(m.ports, id)
	if port.Direction == DirSource {
		m.sourceOrder = removeID(m.sourceOrder, id)
	} else {
		m.sinkOrder = removeID(m.sinkOrder, id)
	}
	log.Trace(log.CatGraph, "port removed", "id", id, "alias", port.Alias())
	return port, severed, true
}

// AddLink records a link, whether daemon-made or foreign. Tracking foreign
// links is what prevents duplicate creation attempts.
func (m *Model) AddLink(l Link) {
	m.links[l.ID] = l
	m.linkByPair[[2]ID{l.Source, l.Sink}] = l.ID
}

// RemoveLink forgets a link. Returns the link and whether it was known.
func (m *Model) RemoveLink(id ID) (Link, bool) {
	link, ok := m.links[id]
	if !ok {
		return Link{}, false
	}
	delete(m.links, id)
	delete(m.linkByPair, [2]ID{link.Source, link.Sink})
	return link, true
}

// Removal reports what a bare removal id turned out to be. Exactly one of
// the object fields is meaningful, per Kind.
type Removal struct {
	Kind    Kind
	Port    Port
	Severed []Link
	Link    Link
}

// Kind classifies a removed object.
type Kind int

const (
	KindUnknown Kind = iota
	KindClient
	KindNode
	KindPort
	KindLink
)

// Remove handles a removal event, which names only an id. The mirror
// knows which kind of object the id belongs to and dispatches to the
// matching removal. Unknown ids return Kind KindUnknown.
func (m *Model) Remove(id ID) Removal {
	if port, severed, ok := m.RemovePort(id); ok {
		return Removal{Kind: KindPort, Port: port, Severed: severed}
	}
	if link, ok := m.RemoveLink(id); ok {
		return Removal{Kind: KindLink, Link: link}
	}
	if _, ok := m.nodes[id]; ok {
		m.RemoveNode(id)
		return Removal{Kind: KindNode}
	}
	if _, ok := m.clients[id]; ok {
		m.RemoveClient(id)
		return Removal{Kind: KindClient}
	}
	return Removal{}
}

// Port returns the identity snapshot for a live port id.
func (m *Model) Port(id ID) (Port, bool) {
	p, ok := m.ports[id]
	return p, ok
}

// SourcePorts returns all source-direction ports in discovery order.
func (m *Model) SourcePorts() []Port {
	return m.portsInOrder(m.sourceOrder)
}

// SinkPorts returns all sink-direction ports in discovery order.
func (m *Model) SinkPorts() []Port {
	return m.portsInOrder(m.sinkOrder)
}

func (m *Model) portsInOrder(order []ID) []Port {
	out := make([]Port, 0, len(order))
	for _, id := range order {
		if p, ok := m.ports[id]; ok {
			out = append(out, p)
		}
	}
	return out
}

// LinkBetween returns the link connecting the given port pair, if any.
func (m *Model) LinkBetween(source, sink ID) (Link, bool) {
	id, ok := m.linkByPair[[2]ID{source, sink}]
	if !ok {
		return Link{}, false
	}
	return m.links[id], true
}

// Links returns every tracked link. Order is unspecified.
func (m *Model) Links() []Link {
	out := make([]Link, 0, len(m.links))
	for _, l := range m.links {
		out = append(out, l)
	}
	return out
}

// Stats summarizes the mirror for logging.
func (m *Model) Stats() (clients, nodes, ports, links int) {
	return len(m.clients), len(m.nodes), len(m.ports), len(m.links)
}

func removeID(ids []ID, id ID) []ID {
	for i, v := range ids {
		if v == id {
			return append(ids[:i], ids[i+1:]...)
		}
	}
	return ids
}
