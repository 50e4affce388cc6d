// Package synth is a small pure Go polyphonic synthesizer: each voice has a
// fixed oscillator, a linear ADSR envelope and a volume in dB.
package synth

import (
	"fmt"
	"math"
	"sync"

	"github.com/regenmon/regentheme"
	"github.com/viterin/vek/vek32"
)

type (
	// Voice is a polyphonic synth voice. It is safe for concurrent use: the
	// audio goroutine renders while the scheduler triggers notes.
	Voice struct {
		mu         sync.Mutex
		osc        oscillator
		env        envelope
		gain       float32
		polyphony  int
		sampleRate int
		notes      []note
		disposed   bool
		mix, tmp   []float32
	}

	// Synther builds Voices at a fixed sample rate.
	Synther struct {
		SampleRate int
	}

	note struct {
		freq    float64
		phase   float64
		start   int64 // frame of note on
		release int64 // frame of note off
	}
)

const DefaultPolyphony = 32

var _ regentheme.Voice = (*Voice)(nil)
var _ regentheme.Synther = Synther{}

func (s Synther) Name() string { return "Go" }

func (s Synther) Voice(cfg regentheme.VoiceConfig) (regentheme.Voice, error) {
	rate := s.SampleRate
	if rate <= 0 {
		rate = regentheme.SampleRate
	}
	return New(cfg, rate)
}

// New creates a silent voice. Nothing sounds until TriggerAttackRelease.
func New(cfg regentheme.VoiceConfig, sampleRate int) (*Voice, error) {
	osc, ok := oscillators[cfg.Oscillator]
	if !ok {
		return nil, fmt.Errorf("unknown oscillator type %q", cfg.Oscillator)
	}
	env, err := newEnvelope(cfg.Envelope, sampleRate)
	if err != nil {
		return nil, err
	}
	poly := cfg.Polyphony
	if poly <= 0 {
		poly = DefaultPolyphony
	}
	return &Voice{
		osc:        osc,
		env:        env,
		gain:       float32(DecibelToGain(cfg.Volume)),
		polyphony:  poly,
		sampleRate: sampleRate,
	}, nil
}

// DecibelToGain converts a volume in dB to a linear amplitude factor.
func DecibelToGain(db float64) float64 {
	return math.Pow(10, db/20)
}

// TriggerAttackRelease schedules every pitch of the chord to start at frame
// at and release length frames later. When the polyphony is exhausted, the
// oldest notes are dropped. Ignored after Dispose.
func (v *Voice) TriggerAttackRelease(chord regentheme.Chord, length int, at int64) {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.disposed {
		return
	}
	if length < 0 {
		length = 0
	}
	for _, p := range chord {
		v.notes = append(v.notes, note{freq: p.Frequency(), start: at, release: at + int64(length)})
	}
	if over := len(v.notes) - v.polyphony; over > 0 {
		v.notes = append(v.notes[:0], v.notes[over:]...)
	}
}

// Render adds the output for frames [frame, frame+len(buf)) into buf. Notes
// whose release has fully decayed are forgotten.
func (v *Voice) Render(buf regentheme.AudioBuffer, frame int64) {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.disposed || len(buf) == 0 {
		return
	}
	if cap(v.mix) < len(buf) {
		v.mix = make([]float32, len(buf))
		v.tmp = make([]float32, len(buf))
	}
	v.mix = vek32.Zeros_Into(v.mix, len(buf))
	tmp := v.tmp[:len(buf)]
	end := frame + int64(len(buf))
	alive := v.notes[:0]
	for _, n := range v.notes {
		if n.start < end {
			v.renderNote(&n, tmp, frame)
			vek32.Add_Inplace(v.mix, tmp)
		}
		if !v.env.finished(n, end) {
			alive = append(alive, n)
		}
	}
	v.notes = alive
	vek32.MulNumber_Inplace(v.mix, v.gain)
	for i, s := range v.mix {
		buf[i][0] += s
		buf[i][1] += s
	}
}

func (v *Voice) renderNote(n *note, out []float32, frame int64) {
	step := n.freq / float64(v.sampleRate)
	for i := range out {
		f := frame + int64(i)
		if f < n.start {
			out[i] = 0
			continue
		}
		out[i] = v.osc(n.phase) * v.env.level(*n, f)
		n.phase += step
		n.phase -= math.Floor(n.phase)
	}
}

// Active returns the number of notes scheduled or still sounding.
func (v *Voice) Active() int {
	v.mu.Lock()
	defer v.mu.Unlock()
	return len(v.notes)
}

// Dispose silences the voice for good. Calling it again is a no-op.
func (v *Voice) Dispose() {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.disposed = true
	v.notes = nil
	v.mix, v.tmp = nil, nil
}

func (v *Voice) Disposed() bool {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.disposed
}
