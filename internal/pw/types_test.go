package pw

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mkranta/relink/internal/graph"
)

const sampleDump = `[
  {
    "id": 32,
    "type": "PipeWire:Interface:Client",
    "version": 3,
    "info": {
      "props": { "application.name": "music-player", "pipewire.protocol": "protocol-native" }
    }
  },
  {
    "id": 41,
    "type": "PipeWire:Interface:Node",
    "version": 3,
    "info": {
      "props": { "node.name": "music.player", "client.id": 32, "media.class": "Stream/Output/Audio" }
    }
  },
  {
    "id": 50,
    "type": "PipeWire:Interface:Port",
    "version": 3,
    "info": {
      "direction": "output",
      "props": { "port.name": "output_FL", "node.id": 41, "port.id": 0 }
    }
  },
  {
    "id": 51,
    "type": "PipeWire:Interface:Port",
    "version": 3,
    "info": {
      "props": { "port.name": "playback_FL", "port.direction": "in", "node.id": "41" }
    }
  },
  {
    "id": 60,
    "type": "PipeWire:Interface:Link",
    "version": 3,
    "info": {
      "output-node-id": 41,
      "output-port-id": 50,
      "input-node-id": 41,
      "input-port-id": 51,
      "props": { "relink.rule": "stereo" }
    }
  },
  {
    "id": 7,
    "type": "PipeWire:Interface:Module",
    "version": 3,
    "info": { "props": { "module.name": "libpipewire-module-rt" } }
  },
  { "id": 50, "info": null }
]`

func decodeSample(t *testing.T) []Event {
	t.Helper()
	var objs []dumpObject
	require.NoError(t, json.Unmarshal([]byte(sampleDump), &objs))
	return decodeBatch(objs)
}

func TestDecodeBatch(t *testing.T) {
	events := decodeSample(t)
	require.Len(t, events, 6, "modules and other untracked types are dropped")

	client := events[0]
	assert.Equal(t, KindClient, client.Kind)
	assert.Equal(t, graph.Client{ID: 32, Name: "music-player"}, client.Client)

	node := events[1]
	assert.Equal(t, KindNode, node.Kind)
	assert.Equal(t, graph.Node{ID: 41, Name: "music.player", ClientID: 32}, node.Node)

	outPort := events[2]
	assert.Equal(t, KindPort, outPort.Kind)
	assert.Equal(t, graph.PortInfo{
		ID: 50, Name: "output_FL", Direction: graph.DirSource, NodeID: 41,
	}, outPort.Port)

	inPort := events[3]
	assert.Equal(t, graph.DirSink, inPort.Port.Direction,
		"direction falls back to the port.direction prop")
	assert.Equal(t, graph.ID(41), inPort.Port.NodeID,
		"string-typed node.id still resolves")

	link := events[4]
	assert.Equal(t, KindLink, link.Kind)
	assert.Equal(t, graph.Link{ID: 60, Source: 50, Sink: 51, Rule: "stereo"}, link.Link)

	removal := events[5]
	assert.True(t, removal.Removed)
	assert.Equal(t, graph.ID(50), removal.ID)
}

func TestDecodeClientNameFallsBackToBinary(t *testing.T) {
	raw := `[{
    "id": 9,
    "type": "PipeWire:Interface:Client",
    "info": { "props": { "application.process.binary": "ffplay" } }
  }]`
	var objs []dumpObject
	require.NoError(t, json.Unmarshal([]byte(raw), &objs))

	events := decodeBatch(objs)
	require.Len(t, events, 1)
	assert.Equal(t, "ffplay", events[0].Client.Name)
}

func TestDecodePortWithoutDirectionDropped(t *testing.T) {
	raw := `[{
    "id": 9,
    "type": "PipeWire:Interface:Port",
    "info": { "props": { "port.name": "weird" } }
  }]`
	var objs []dumpObject
	require.NoError(t, json.Unmarshal([]byte(raw), &objs))

	assert.Empty(t, decodeBatch(objs))
}

func TestIsRejected(t *testing.T) {
	err := &LinkRejectedError{Source: "a:out", Sink: "b:in", Reason: "format mismatch"}
	assert.True(t, IsRejected(err))
	assert.False(t, IsRejected(ErrAlreadyLinked))
	assert.Contains(t, err.Error(), "format mismatch")
}
