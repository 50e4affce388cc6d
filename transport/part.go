package transport

import (
	"sync"

	"github.com/regenmon/regentheme"
)

type (
	// Part plays a fixed list of melody events on the transport, optionally
	// looping. The callback gets each event at its scheduled frame; events
	// sharing an offset arrive as one event, so their pitches start together.
	Part struct {
		mu        sync.Mutex
		scheduler Scheduler
		events    []regentheme.MelodyEvent
		callback  PartCallback
		loop      bool
		loopEnd   regentheme.Ticks
		started   bool
		startAt   regentheme.Ticks
		ids       []ID
		disposed  bool
	}

	// PartCallback receives each event at the frame it falls on.
	PartCallback func(frame int64, event regentheme.MelodyEvent)
)

// NewPart binds the events to the scheduler. Nothing is scheduled until
// Start. The events are copied.
func NewPart(scheduler Scheduler, events []regentheme.MelodyEvent, callback PartCallback) *Part {
	evs := make([]regentheme.MelodyEvent, len(events))
	for i, e := range events {
		evs[i] = regentheme.MelodyEvent{Time: e.Time, Chord: e.Chord.Copy()}
	}
	return &Part{scheduler: scheduler, events: evs, callback: callback}
}

// SetLoop enables or disables looping. A started part is rescheduled.
func (p *Part) SetLoop(loop bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.loop = loop
	p.reschedule()
}

// SetLoopEnd sets the loop length, measured from the start of the part.
// While looping, events at or after the loop end are not played.
func (p *Part) SetLoopEnd(end regentheme.Ticks) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.loopEnd = end
	p.reschedule()
}

// Start arms the part to play from transport tick at. Starting an already
// started or a disposed part does nothing.
func (p *Part) Start(at regentheme.Ticks) *Part {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.started || p.disposed {
		return p
	}
	p.started = true
	p.startAt = at
	p.schedule()
	return p
}

// Stop unschedules the part without disposing it.
func (p *Part) Stop() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.clear()
	p.started = false
}

// Dispose detaches the part from the transport. Calling it again is a no-op.
func (p *Part) Dispose() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.disposed {
		return
	}
	p.clear()
	p.started = false
	p.disposed = true
	p.events = nil
}

// Disposed reports whether Dispose has been called.
func (p *Part) Disposed() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.disposed
}

func (p *Part) reschedule() {
	if !p.started || p.disposed {
		return
	}
	p.clear()
	p.schedule()
}

func (p *Part) schedule() {
	sig := p.scheduler.Signature()
	looping := p.loop && p.loopEnd > 0
	for _, e := range p.events {
		offset := e.Time.Ticks(sig)
		cb := p.eventCallback(e)
		if looping {
			if offset >= p.loopEnd {
				continue
			}
			p.ids = append(p.ids, p.scheduler.ScheduleRepeat(cb, p.loopEnd, p.startAt+offset))
		} else {
			p.ids = append(p.ids, p.scheduler.Schedule(cb, p.startAt+offset))
		}
	}
}

func (p *Part) eventCallback(e regentheme.MelodyEvent) Callback {
	return func(frame int64) {
		p.callback(frame, e)
	}
}

func (p *Part) clear() {
	for _, id := range p.ids {
		p.scheduler.Clear(id)
	}
	p.ids = p.ids[:0]
}
