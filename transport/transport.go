// Package transport implements the shared musical clock: tempo, start and
// stop, and the schedule of callbacks that Parts and Loops put on it.
//
// The clock does not run on its own. The audio goroutine calls Advance for
// every buffer it renders, and the due callbacks are invoked with the exact
// sample frame of their tick, so voices can start notes sample-accurately
// inside the buffer.
package transport

import (
	"math"
	"sync"

	"github.com/regenmon/regentheme"
)

type (
	// Transport is the clock. All methods are safe for concurrent use.
	// Callbacks are invoked with the transport lock held: a callback must
	// not call back into the Transport, and once CancelAll or Clear has
	// returned, the cancelled callbacks will never be invoked.
	Transport struct {
		mu         sync.Mutex
		bpm        float64
		sampleRate int
		running    bool
		position   float64 // in ticks, fractional
		frame      int64   // frames advanced since creation
		queue      eventQueue
		nextID     ID
		signature  regentheme.Signature
	}

	// Callback is called at the sample frame where its tick falls.
	Callback func(frame int64)

	// ID identifies a scheduled callback.
	ID int64

	// Scheduler is the part of the transport that Parts and Loops need.
	Scheduler interface {
		Schedule(cb Callback, at regentheme.Ticks) ID
		ScheduleRepeat(cb Callback, interval, at regentheme.Ticks) ID
		Clear(id ID)
		Signature() regentheme.Signature
	}
)

// DefaultBPM is the tempo of a new transport.
const DefaultBPM = 120

// New returns a stopped transport at position 0.
func New(sampleRate int) *Transport {
	return &Transport{
		bpm:        DefaultBPM,
		sampleRate: sampleRate,
		signature:  regentheme.DefaultSignature,
	}
}

// SetBPM sets the tempo. Only the ticks advanced after the call are
// affected; nothing already fired is moved.
func (t *Transport) SetBPM(bpm float64) {
	if bpm <= 0 {
		return
	}
	t.mu.Lock()
	t.bpm = bpm
	t.mu.Unlock()
}

// BPM returns the current tempo.
func (t *Transport) BPM() float64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.bpm
}

// SetSignature sets the time signature used to resolve measures.
func (t *Transport) SetSignature(sig regentheme.Signature) {
	t.mu.Lock()
	t.signature = sig
	t.mu.Unlock()
}

// Signature returns the current time signature.
func (t *Transport) Signature() regentheme.Signature {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.signature
}

// Start begins advancing from the current position. No-op if running.
func (t *Transport) Start() {
	t.mu.Lock()
	t.running = true
	t.mu.Unlock()
}

// Stop halts advancement. The position and the scheduled callbacks are
// kept.
func (t *Transport) Stop() {
	t.mu.Lock()
	t.running = false
	t.mu.Unlock()
}

// Running reports whether the clock advances its position.
func (t *Transport) Running() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.running
}

// CancelAll removes every scheduled callback. The Parts and Loops that
// scheduled them are not disposed.
func (t *Transport) CancelAll() {
	t.mu.Lock()
	t.queue = t.queue[:0]
	t.mu.Unlock()
}

// Pending returns the number of scheduled callbacks.
func (t *Transport) Pending() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.queue)
}

// Position returns the current position, rounded down to whole ticks.
func (t *Transport) Position() regentheme.Ticks {
	t.mu.Lock()
	defer t.mu.Unlock()
	return regentheme.Ticks(t.position)
}

// Frame returns how many frames the clock has been advanced, whether or not
// it was running. This is the audio time given to callbacks.
func (t *Transport) Frame() int64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.frame
}

// FramesFor converts a duration in ticks to frames at the current tempo.
func (t *Transport) FramesFor(ticks regentheme.Ticks) int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return int(math.Round(float64(ticks) / t.ticksPerFrame()))
}

// Schedule invokes cb once, when the clock reaches tick at. If at is already
// behind the position, the callback is dropped and the returned ID refers
// to nothing.
func (t *Transport) Schedule(cb Callback, at regentheme.Ticks) ID {
	return t.ScheduleRepeat(cb, 0, at)
}

// ScheduleRepeat invokes cb at tick at and then every interval ticks. If at
// is behind the position, the first invocation is the first repetition
// that is not.
func (t *Transport) ScheduleRepeat(cb Callback, interval, at regentheme.Ticks) ID {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.nextID++
	id := t.nextID
	pos := regentheme.Ticks(math.Ceil(t.position))
	if at < pos {
		if interval <= 0 {
			return id
		}
		k := (pos - at + interval - 1) / interval
		at += k * interval
	}
	t.queue.push(&event{id: id, tick: at, interval: interval, cb: cb})
	return id
}

// Clear removes the scheduled callback with the given ID, if any.
func (t *Transport) Clear(id ID) {
	t.mu.Lock()
	t.queue.remove(id)
	t.mu.Unlock()
}

// Advance moves the audio time forward by frames. If the clock is running,
// the musical position moves too, and every callback whose tick falls in
// the advanced range is invoked in order of (tick, scheduling order).
func (t *Transport) Advance(frames int) {
	if frames <= 0 {
		return
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	start := t.frame
	t.frame += int64(frames)
	if !t.running {
		return
	}
	tpf := t.ticksPerFrame()
	end := t.position + float64(frames)*tpf
	for len(t.queue) > 0 && float64(t.queue[0].tick) < end {
		e := t.queue.pop()
		offset := int64(math.Ceil((float64(e.tick) - t.position) / tpf))
		if offset < 0 {
			offset = 0
		}
		e.cb(start + offset)
		if e.interval > 0 {
			e.tick += e.interval
			t.queue.push(e)
		}
	}
	t.position = end
}

func (t *Transport) ticksPerFrame() float64 {
	return t.bpm / 60 * float64(regentheme.PPQ) / float64(t.sampleRate)
}
