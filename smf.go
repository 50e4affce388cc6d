package regentheme

import (
	"cmp"
	"fmt"
	"io"
	"slices"

	"gitlab.com/gomidi/midi/v2"
	"gitlab.com/gomidi/midi/v2/smf"
)

const (
	smfVelocity    = 100
	melodyChannel  = 0
	ambientChannel = 1
)

// SMF arranges loops repetitions of the theme into a standard MIDI file: a
// tempo track, the melody on channel 1 and, if rand is not nil, a rendition
// of the ambient texture on channel 2. The file uses PPQ ticks per quarter
// note, so ticks map one to one.
func (t Theme) SMF(loops int, rand RandomSource) (*smf.SMF, error) {
	if err := t.Validate(); err != nil {
		return nil, err
	}
	if loops < 1 {
		loops = 1
	}
	s := smf.New()
	s.TimeFormat = smf.MetricTicks(PPQ)
	loopTicks := t.LoopTicks()
	total := loopTicks * Ticks(loops)

	var tempo smf.Track
	tempo.Add(0, smf.MetaMeter(uint8(t.Signature.beats()), 4))
	tempo.Add(0, smf.MetaTempo(t.BPM))
	tempo.Close(uint32(total))
	if err := s.Add(tempo); err != nil {
		return nil, fmt.Errorf("error adding tempo track: %w", err)
	}

	var notes []smfNote
	length := t.Duration(t.NoteLength)
	for l := 0; l < loops; l++ {
		for _, e := range t.Melody {
			start := loopTicks*Ticks(l) + e.Time.Ticks(t.Signature)
			for _, p := range e.Chord {
				notes = append(notes, smfNote{start: start, length: length, key: p.Key(), channel: melodyChannel})
			}
		}
	}
	if err := s.Add(notesTrack("melody", notes, total)); err != nil {
		return nil, fmt.Errorf("error adding melody track: %w", err)
	}

	if rand != nil {
		notes = notes[:0]
		interval := t.Duration(t.Ambient.Interval)
		length := t.Duration(t.Ambient.NoteLength)
		for start := Ticks(0); start < total; start += interval {
			p := t.Ambient.Scale[rand.IntN(len(t.Ambient.Scale))]
			notes = append(notes, smfNote{start: start, length: length, key: p.Key(), channel: ambientChannel})
		}
		if err := s.Add(notesTrack("ambient", notes, total)); err != nil {
			return nil, fmt.Errorf("error adding ambient track: %w", err)
		}
	}
	return s, nil
}

// WriteSMF writes the file produced by SMF to w.
func (t Theme) WriteSMF(w io.Writer, loops int, rand RandomSource) error {
	s, err := t.SMF(loops, rand)
	if err != nil {
		return err
	}
	if _, err := s.WriteTo(w); err != nil {
		return fmt.Errorf("could not write MIDI file: %w", err)
	}
	return nil
}

type smfNote struct {
	start, length Ticks
	key           int
	channel       uint8
}

type smfEvent struct {
	tick Ticks
	on   bool
	note smfNote
}

// notesTrack turns absolute note times into a delta-timed track.
func notesTrack(name string, notes []smfNote, total Ticks) smf.Track {
	events := make([]smfEvent, 0, len(notes)*2)
	for _, n := range notes {
		end := n.start + n.length
		if end > total {
			end = total
		}
		events = append(events, smfEvent{tick: n.start, on: true, note: n}, smfEvent{tick: end, note: n})
	}
	slices.SortStableFunc(events, func(a, b smfEvent) int {
		if a.tick != b.tick {
			return cmp.Compare(a.tick, b.tick)
		}
		// note offs first at the same tick
		return cmp.Compare(boolInt(a.on), boolInt(b.on))
	})
	var track smf.Track
	track.Add(0, smf.MetaTrackSequenceName(name))
	var last Ticks
	for _, e := range events {
		key := uint8(clamp(e.note.key, 0, 127))
		if e.on {
			track.Add(uint32(e.tick-last), midi.NoteOn(e.note.channel, key, smfVelocity))
		} else {
			track.Add(uint32(e.tick-last), midi.NoteOff(e.note.channel, key))
		}
		last = e.tick
	}
	track.Close(uint32(total - last))
	return track
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
