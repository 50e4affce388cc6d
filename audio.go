// Package regentheme holds the data model of the regenmon background theme:
// pitches, musical time, the theme itself and its audio and MIDI exports.
package regentheme

import "context"

type (
	// AudioBuffer is a buffer of stereo audio samples of variable length,
	// each sample represented by [2]float32. [0] is left channel, [1] is
	// right.
	AudioBuffer [][2]float32

	// AudioContext represents the low-level audio drivers. There should be at
	// most one AudioContext at a time. The interface is implemented at least
	// by oto.OtoContext.
	AudioContext interface {
		// Play starts pulling audio from the source in the audio goroutine.
		// The source fills the whole buffer it is given.
		Play(source AudioSource) CloserWaiter

		// Unlock blocks until the platform allows audio to be produced, e.g.
		// until a user gesture has resumed a browser audio context.
		Unlock(ctx context.Context) error
	}

	// AudioSource is called with a buffer it should fill with audio.
	AudioSource func(buf AudioBuffer) error

	// CloserWaiter wraps Close and Wait methods for closing a sound source
	// and waiting for it to actually close.
	CloserWaiter interface {
		Close() error
		Wait() error
	}

	// RandomSource picks an int uniformly from [0, n). *rand.Rand of
	// math/rand/v2 satisfies it.
	RandomSource interface {
		IntN(n int) int
	}
)

// SampleRate is the sample rate of all audio produced, in Hz.
const SampleRate = 44100

// Fill fills the whole buffer with zeros.
func (b AudioBuffer) Fill() {
	for i := range b {
		b[i] = [2]float32{}
	}
}
