package pw

import (
	"encoding/json"
	"strconv"

	"github.com/mkranta/relink/internal/graph"
)

// Registry interface names as printed by pw-dump.
const (
	typeClient = "PipeWire:Interface:Client"
	typeNode   = "PipeWire:Interface:Node"
	typePort   = "PipeWire:Interface:Port"
	typeLink   = "PipeWire:Interface:Link"
)

// Kind identifies which registry object an Event carries.
type Kind int

const (
	KindOther Kind = iota
	KindClient
	KindNode
	KindPort
	KindLink
)

// Event is one registry change decoded from the pw-dump stream. Removed
// events carry only the ID; the receiver resolves the object kind from
// its own bookkeeping.
type Event struct {
	Removed bool
	ID      graph.ID
	Kind    Kind
	Client  graph.Client
	Node    graph.Node
	Port    graph.PortInfo
	Link    graph.Link
}

// dumpObject mirrors one element of a pw-dump JSON array. A null info
// field marks a removal.
type dumpObject struct {
	ID   uint32    `json:"id"`
	Type string    `json:"type"`
	Info *dumpInfo `json:"info"`
}

type dumpInfo struct {
	Direction    string                     `json:"direction"`
	OutputPortID *uint32                    `json:"output-port-id"`
	InputPortID  *uint32                    `json:"input-port-id"`
	Props        map[string]json.RawMessage `json:"props"`
}

// propString reads a string-valued property, tolerating the numeric
// values pw-dump uses for ids.
func (i *dumpInfo) propString(key string) string {
	raw, ok := i.Props[key]
	if !ok {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	var n json.Number
	if err := json.Unmarshal(raw, &n); err == nil {
		return n.String()
	}
	return ""
}

func (i *dumpInfo) propID(key string) (graph.ID, bool) {
	raw, ok := i.Props[key]
	if !ok {
		return 0, false
	}
	var n uint32
	if err := json.Unmarshal(raw, &n); err == nil {
		return graph.ID(n), true
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		v, perr := strconv.ParseUint(s, 10, 32)
		if perr == nil {
			return graph.ID(v), true
		}
	}
	return 0, false
}

// decodeObject turns one dump element into an Event. Objects of types the
// daemon does not track come back with ok=false and are dropped.
func decodeObject(obj dumpObject) (Event, bool) {
	id := graph.ID(obj.ID)
	if obj.Info == nil {
		return Event{Removed: true, ID: id}, true
	}
	info := obj.Info
	switch obj.Type {
	case typeClient:
		name := info.propString("application.name")
		if name == "" {
			name = info.propString("application.process.binary")
		}
		return Event{ID: id, Kind: KindClient, Client: graph.Client{ID: id, Name: name}}, true
	case typeNode:
		clientID, _ := info.propID("client.id")
		return Event{ID: id, Kind: KindNode, Node: graph.Node{
			ID:       id,
			Name:     info.propString("node.name"),
			ClientID: clientID,
		}}, true
	case typePort:
		dir, ok := portDirection(info)
		if !ok {
			return Event{}, false
		}
		nodeID, _ := info.propID("node.id")
		return Event{ID: id, Kind: KindPort, Port: graph.PortInfo{
			ID:        id,
			Name:      info.propString("port.name"),
			Direction: dir,
			NodeID:    nodeID,
		}}, true
	case typeLink:
		if info.OutputPortID == nil || info.InputPortID == nil {
			return Event{}, false
		}
		return Event{ID: id, Kind: KindLink, Link: graph.Link{
			ID:     id,
			Source: graph.ID(*info.OutputPortID),
			Sink:   graph.ID(*info.InputPortID),
			Rule:   info.propString(RuleProperty),
		}}, true
	default:
		return Event{}, false
	}
}

func portDirection(info *dumpInfo) (graph.Direction, bool) {
	dir := info.Direction
	if dir == "" {
		dir = info.propString("port.direction")
	}
	switch dir {
	case "output", "out":
		return graph.DirSource, true
	case "input", "in":
		return graph.DirSink, true
	default:
		return 0, false
	}
}

// decodeBatch parses one pw-dump JSON array into events, skipping object
// types the daemon does not track.
func decodeBatch(objs []dumpObject) []Event {
	events := make([]Event, 0, len(objs))
	for _, obj := range objs {
		if ev, ok := decodeObject(obj); ok {
			events = append(events, ev)
		}
	}
	return events
}
