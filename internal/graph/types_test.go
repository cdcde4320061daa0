package graph

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestChannelFromPortName(t *testing.T) {
	tests := []struct {
		name string
		port string
		want Channel
	}{
		{"front left", "playback_FL", Channel{Tag: ChannelLeft, Raw: "FL"}},
		{"plain left", "output_L", Channel{Tag: ChannelLeft, Raw: "L"}},
		{"spelled out left", "out_left", Channel{Tag: ChannelLeft, Raw: "left"}},
		{"surround left", "playback_SL", Channel{Tag: ChannelLeft, Raw: "SL"}},
		{"rear left", "playback_RL", Channel{Tag: ChannelLeft, Raw: "RL"}},
		{"top front left", "playback_TFL", Channel{Tag: ChannelLeft, Raw: "TFL"}},
		{"front right", "playback_FR", Channel{Tag: ChannelRight, Raw: "FR"}},
		{"plain right", "output_R", Channel{Tag: ChannelRight, Raw: "R"}},
		{"spelled out right", "out_RIGHT", Channel{Tag: ChannelRight, Raw: "RIGHT"}},
		{"mono", "capture_MONO", Channel{Tag: ChannelMono, Raw: "MONO"}},
		{"center", "playback_C", Channel{Tag: ChannelMono, Raw: "C"}},
		{"mono m", "out_M", Channel{Tag: ChannelMono, Raw: "M"}},
		{"unrecognized token", "playback_AUX0", Channel{Tag: ChannelOther, Raw: "AUX0"}},
		{"no separator", "monitor", Channel{Tag: ChannelOther, Raw: "monitor"}},
		{"trailing separator", "output_", Channel{Tag: ChannelOther, Raw: ""}},
		{"case insensitive lookup", "playback_fl", Channel{Tag: ChannelLeft, Raw: "fl"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ChannelFromPortName(tt.port))
		})
	}
}

func TestChannelPairsWith(t *testing.T) {
	left := Channel{Tag: ChannelLeft}
	right := Channel{Tag: ChannelRight}
	aux0 := Channel{Tag: ChannelOther, Raw: "AUX0"}
	aux1 := Channel{Tag: ChannelOther, Raw: "AUX1"}

	assert.True(t, left.PairsWith(left))
	assert.False(t, left.PairsWith(right))
	assert.True(t, aux0.PairsWith(aux0))
	assert.False(t, aux0.PairsWith(aux1), "other-labeled channels need identical labels")
}

func TestPortAlias(t *testing.T) {
	p := Port{Name: "playback_FL", Node: "alsa.speakers"}
	assert.Equal(t, "alsa.speakers:playback_FL", p.Alias())
}
