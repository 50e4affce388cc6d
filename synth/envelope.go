package synth

import (
	"fmt"
	"math"

	"github.com/regenmon/regentheme"
)

// envelope is a linear ADSR with all times converted to frames.
type envelope struct {
	attack, decay, release float64
	sustain                float32
}

func newEnvelope(e regentheme.Envelope, sampleRate int) (envelope, error) {
	if e.Attack < 0 || e.Decay < 0 || e.Release < 0 {
		return envelope{}, fmt.Errorf("envelope times cannot be negative: %+v", e)
	}
	if e.Sustain < 0 || e.Sustain > 1 {
		return envelope{}, fmt.Errorf("envelope sustain must be in [0, 1], got %v", e.Sustain)
	}
	sr := float64(sampleRate)
	return envelope{
		attack:  e.Attack * sr,
		decay:   e.Decay * sr,
		release: e.Release * sr,
		sustain: float32(e.Sustain),
	}, nil
}

// held returns the level t frames after note on, ignoring release.
func (e envelope) held(t float64) float32 {
	switch {
	case t < e.attack:
		return float32(t / e.attack)
	case t < e.attack+e.decay:
		return 1 - (1-e.sustain)*float32((t-e.attack)/e.decay)
	}
	return e.sustain
}

func (e envelope) level(n note, frame int64) float32 {
	if frame < n.start {
		return 0
	}
	if frame < n.release {
		return e.held(float64(frame - n.start))
	}
	from := e.held(float64(n.release - n.start))
	if e.release <= 0 {
		return 0
	}
	t := float64(frame - n.release)
	l := from * float32(1-t/e.release)
	return float32(math.Max(0, float64(l)))
}

// finished reports whether the note is silent from frame on.
func (e envelope) finished(n note, frame int64) bool {
	return frame >= n.release && float64(frame-n.release) >= e.release
}
