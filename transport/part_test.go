package transport_test

import (
	"testing"

	"github.com/regenmon/regentheme"
	"github.com/regenmon/regentheme/transport"
)

type firedEvent struct {
	frame int64
	time  regentheme.TimeOffset
	chord regentheme.Chord
}

func TestPartLoopsTheMelody(t *testing.T) {
	theme := regentheme.DefaultTheme()
	tr := newRunning(theme.BPM)
	var fired []firedEvent
	part := transport.NewPart(tr, theme.Melody, func(frame int64, e regentheme.MelodyEvent) {
		fired = append(fired, firedEvent{frame, e.Time, e.Chord})
	})
	part.SetLoop(true)
	part.SetLoopEnd(theme.LoopTicks())
	part.Start(0)
	const cycles = 3
	const framesPerCycle = 8 * framesPerBeat // two 4/4 measures
	for f := 256; f <= cycles*framesPerCycle-100; f += 256 {
		tr.Advance(256)
	}
	if len(fired) != cycles*16 {
		t.Fatalf("got %d events in %d cycles, want %d", len(fired), cycles, cycles*16)
	}
	for i, e := range fired {
		want := theme.Melody[i%16]
		if e.time != want.Time {
			t.Fatalf("event %d at %v, want %v", i, e.time, want.Time)
		}
		if e.chord.String() != want.Chord.String() {
			t.Errorf("event %d chord %v, want %v", i, e.chord, want.Chord)
		}
		if i == 0 {
			continue
		}
		// every event is an eighth note after the previous, wraparound
		// included: 1:3:2 is followed by 0:0:0 without a gap
		if d := e.frame - fired[i-1].frame; d < framesPerBeat/2-1 || d > framesPerBeat/2+1 {
			t.Fatalf("event %d (%v) came %d frames after the previous, want %d", i, e.time, d, framesPerBeat/2)
		}
	}
	if fired[15].time != regentheme.MustParseTimeOffset("1:3:2") || fired[16].time != (regentheme.TimeOffset{}) {
		t.Fatalf("wraparound went from %v to %v", fired[15].time, fired[16].time)
	}
}

func TestPartWithoutLoopPlaysOnce(t *testing.T) {
	theme := regentheme.DefaultTheme()
	tr := newRunning(theme.BPM)
	count := 0
	transport.NewPart(tr, theme.Melody, func(int64, regentheme.MelodyEvent) { count++ }).Start(0)
	tr.Advance(40 * framesPerBeat)
	if count != 16 {
		t.Fatalf("got %d events, want 16", count)
	}
	if tr.Pending() != 0 {
		t.Fatalf("pending = %d, want 0", tr.Pending())
	}
}

func TestPartIgnoresEventsPastLoopEnd(t *testing.T) {
	theme := regentheme.DefaultTheme()
	tr := newRunning(theme.BPM)
	count := 0
	part := transport.NewPart(tr, theme.Melody, func(int64, regentheme.MelodyEvent) { count++ })
	part.Start(0)
	part.SetLoop(true)
	part.SetLoopEnd(theme.Signature.Measure()) // only the first measure loops
	if tr.Pending() != 8 {
		t.Fatalf("pending = %d, want 8", tr.Pending())
	}
	tr.Advance(8*framesPerBeat - 100)
	if count != 16 {
		t.Fatalf("got %d events in two loops of one measure, want 16", count)
	}
}

func TestPartDispose(t *testing.T) {
	theme := regentheme.DefaultTheme()
	tr := newRunning(theme.BPM)
	count := 0
	part := transport.NewPart(tr, theme.Melody, func(int64, regentheme.MelodyEvent) { count++ })
	part.SetLoop(true)
	part.SetLoopEnd(theme.LoopTicks())
	part.Start(0)
	tr.Advance(framesPerBeat)
	part.Dispose()
	part.Dispose()
	part.Start(0) // disposed parts cannot be restarted
	if !part.Disposed() {
		t.Fatal("part should be disposed")
	}
	if tr.Pending() != 0 {
		t.Fatalf("pending after dispose = %d, want 0", tr.Pending())
	}
	before := count
	tr.Advance(16 * framesPerBeat)
	if count != before {
		t.Fatalf("disposed part fired %d more events", count-before)
	}
	never := transport.NewPart(tr, nil, nil)
	never.Dispose() // never started
}

func TestPartJoinsInPhase(t *testing.T) {
	theme := regentheme.DefaultTheme()
	tr := newRunning(theme.BPM)
	tr.Advance(3*framesPerBeat - 50) // a measure that is already under way
	var first regentheme.TimeOffset
	n := 0
	part := transport.NewPart(tr, theme.Melody, func(_ int64, e regentheme.MelodyEvent) {
		if n == 0 {
			first = e.Time
		}
		n++
	})
	part.SetLoop(true)
	part.SetLoopEnd(theme.LoopTicks())
	part.Start(0)
	tr.Advance(framesPerBeat)
	if want := regentheme.MustParseTimeOffset("0:3:0"); first != want {
		t.Fatalf("first event after joining = %v, want %v", first, want)
	}
}
