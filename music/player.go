package music

import (
	"slices"
	"sync"

	"github.com/regenmon/regentheme"
	"github.com/viterin/vek/vek32"
)

type (
	// Player is the audio output node. Its Process method is the AudioSource
	// run by the audio goroutine: it advances the clock, which fires the
	// scheduled note callbacks, and then renders every connected voice into
	// the buffer.
	Player struct {
		mu     sync.Mutex
		clock  FrameClock
		voices []regentheme.Voice
		level  float32
		tmp    []float32
	}

	// FrameClock is a clock driven by sample frames, like
	// transport.Transport.
	FrameClock interface {
		Frame() int64
		Advance(frames int)
	}

	// Destination is where the controller connects its voices.
	Destination interface {
		Connect(v regentheme.Voice)
		Disconnect(v regentheme.Voice)
	}
)

var _ Destination = (*Player)(nil)

// NewPlayer returns a player with no voices, driving clock.
func NewPlayer(clock FrameClock) *Player {
	return &Player{clock: clock}
}

// Connect adds the voice to the mix. Connecting twice does nothing.
func (p *Player) Connect(v regentheme.Voice) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !slices.Contains(p.voices, v) {
		p.voices = append(p.voices, v)
	}
}

// Disconnect removes the voice from the mix.
func (p *Player) Disconnect(v regentheme.Voice) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.voices = slices.DeleteFunc(p.voices, func(w regentheme.Voice) bool { return w == v })
}

// Connected returns the number of voices in the mix.
func (p *Player) Connected() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.voices)
}

// Process renders the next len(buf) frames into buf, overwriting it.
func (p *Player) Process(buf regentheme.AudioBuffer) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	buf.Fill()
	frame := p.clock.Frame()
	p.clock.Advance(len(buf))
	for _, v := range p.voices {
		v.Render(buf, frame)
	}
	p.level = p.peak(buf)
	return nil
}

// Level returns the peak amplitude of the last processed buffer.
func (p *Player) Level() float32 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.level
}

// Output starts playing the player on the audio context.
func (p *Player) Output(ac regentheme.AudioContext) regentheme.CloserWaiter {
	return ac.Play(p.Process)
}

func (p *Player) peak(buf regentheme.AudioBuffer) float32 {
	if len(buf) == 0 {
		return 0
	}
	n := len(buf) * 2
	if cap(p.tmp) < n {
		p.tmp = make([]float32, n)
	}
	p.tmp = p.tmp[:n]
	for i, s := range buf {
		p.tmp[2*i], p.tmp[2*i+1] = s[0], s[1]
	}
	vek32.Abs_Inplace(p.tmp)
	return vek32.Max(p.tmp)
}
