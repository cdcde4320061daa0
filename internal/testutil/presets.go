package testutil

import "testing"

// StereoScenario builds the common fixture used across pairing and
// reconciliation tests: a music player with stereo outputs and a
// speaker sink with stereo inputs.
func StereoScenario(t *testing.T) *Builder {
	t.Helper()
	return NewBuilder(t).
		WithClient("music-player").
		WithNode("music.player").
		WithSource("output_FL").
		WithSource("output_FR").
		WithClient("pipewire-alsa").
		WithNode("alsa.speakers").
		WithSink("playback_FL").
		WithSink("playback_FR")
}

// MonoMicScenario builds a mono microphone source and a recorder with a
// single input.
func MonoMicScenario(t *testing.T) *Builder {
	t.Helper()
	return NewBuilder(t).
		WithClient("pipewire-alsa").
		WithNode("alsa.microphone").
		WithSource("capture_MONO").
		WithClient("recorder").
		WithNode("app.recorder").
		WithSink("input_MONO")
}
