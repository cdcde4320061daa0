// Package graph holds an in-memory mirror of the PipeWire object graph:
// the clients, nodes, and ports relevant to link management, plus the links
// currently connecting ports. The mirror is updated only through the event
// contract (Add*/Remove*); it never queries the server itself.
package graph

import "strings"

// ID is a PipeWire global object id. IDs are scoped to a single registry
// session: after a reconnect, the same numeric value may name a different
// object, so the model is cleared and rebuilt on every connection.
type ID uint32

// Direction classifies a port as a signal source (output) or sink (input).
type Direction int

const (
	DirSource Direction = iota
	DirSink
)

func (d Direction) String() string {
	if d == DirSink {
		return "sink"
	}
	return "source"
}

// ChannelTag classifies a port for stereo pairing.
type ChannelTag int

const (
	// ChannelOther covers anything the recognition table doesn't know;
	// the raw label still pairs against byte-equal labels.
	ChannelOther ChannelTag = iota
	ChannelLeft
	ChannelRight
	ChannelMono
)

func (t ChannelTag) String() string {
	switch t {
	case ChannelLeft:
		return "left"
	case ChannelRight:
		return "right"
	case ChannelMono:
		return "mono"
	default:
		return "other"
	}
}

// Channel is a port's inferred channel: a tag plus the raw label the tag was
// derived from. Two channels pair when their tags match, except ChannelOther
// which additionally requires byte-equal raw labels.
type Channel struct {
	Tag ChannelTag
	Raw string
}

// PairsWith reports whether a source channel and a sink channel belong to
// the same stereo position.
func (c Channel) PairsWith(other Channel) bool {
	if c.Tag != other.Tag {
		return false
	}
	if c.Tag == ChannelOther {
		return c.Raw == other.Raw
	}
	return true
}

func (c Channel) String() string {
	if c.Tag == ChannelOther {
		return "other(" + c.Raw + ")"
	}
	return c.Tag.String()
}

// channelTable maps the uppercased final name token to a channel tag.
// Covers the position labels PipeWire's ALSA and DSP ports use.
var channelTable = map[string]ChannelTag{
	"L":      ChannelLeft,
	"FL":     ChannelLeft,
	"LEFT":   ChannelLeft,
	"SL":     ChannelLeft,
	"RL":     ChannelLeft,
	"TFL":    ChannelLeft,
	"R":      ChannelRight,
	"FR":     ChannelRight,
	"RIGHT":  ChannelRight,
	"SR":     ChannelRight,
	"RR":     ChannelRight,
	"TFR":    ChannelRight,
	"M":      ChannelMono,
	"C":      ChannelMono,
	"MONO":   ChannelMono,
	"CENTER": ChannelMono,
}

// ChannelFromPortName infers a channel from a port name like "playback_FL"
// or "output_1". The token after the final underscore is looked up in a
// fixed recognition table; a name without an underscore classifies as a
// whole. Unrecognized tokens become ChannelOther with the token preserved.
func ChannelFromPortName(name string) Channel {
	token := name
	if i := strings.LastIndexByte(name, '_'); i >= 0 {
		token = name[i+1:]
	}
	if tag, ok := channelTable[strings.ToUpper(token)]; ok {
		return Channel{Tag: tag, Raw: token}
	}
	return Channel{Tag: ChannelOther, Raw: token}
}

// Client is a connected PipeWire client (an application or service).
type Client struct {
	ID   ID
	Name string
}

// Node is a processing node owned by a client.
type Node struct {
	ID       ID
	Name     string
	ClientID ID
}

// Port is an immutable identity snapshot of a single signal endpoint,
// resolved against the owning node and client at the time the port was
// announced. A removed port's identity is never resurrected; a new port
// with the same id after reconnect gets a fresh snapshot.
type Port struct {
	ID        ID
	Name      string
	Node      string
	Client    string
	Direction Direction
	Channel   Channel
}

// Alias returns the conventional "node:port" display form.
func (p Port) Alias() string {
	return p.Node + ":" + p.Name
}

// Link is a connection between a source port and a sink port. Rule carries
// the owning rule name when the link was tagged by this daemon (present in
// the link's properties), empty for links made by other software.
type Link struct {
	ID     ID
	Source ID
	Sink   ID
	Rule   string
}
