package regentheme

import (
	"bytes"
	_ "embed"
	"errors"
	"fmt"
	"io"
	"slices"

	"gopkg.in/yaml.v3"
)

type (
	// Theme is everything needed to play the background theme: the tempo,
	// the looping melody, the scale for the ambient texture and the two
	// voices. It is static data; the engine never modifies it.
	Theme struct {
		BPM        float64       `yaml:"bpm"`
		Signature  Signature     `yaml:"signature"`
		Melody     []MelodyEvent `yaml:"melody"`
		NoteLength Notation      `yaml:"noteLength"` // length of each melody chord
		LoopEnd    Notation      `yaml:"loopEnd"`
		Ambient    Ambient       `yaml:"ambient"`
		Voices     Voices        `yaml:"voices"`
	}

	// MelodyEvent is one chord of the melody at a fixed offset.
	MelodyEvent struct {
		Time  TimeOffset `yaml:"time"`
		Chord Chord      `yaml:"chord,flow"`
	}

	// Ambient configures the randomized background notes: every Interval,
	// one pitch of Scale is picked uniformly and played for NoteLength.
	Ambient struct {
		Scale      []Pitch  `yaml:"scale,flow"`
		Interval   Notation `yaml:"interval"`
		NoteLength Notation `yaml:"noteLength"`
	}

	Voices struct {
		Melody  VoiceConfig `yaml:"melody"`
		Ambient VoiceConfig `yaml:"ambient"`
	}

	// VoiceConfig describes the timbre of a synth voice.
	VoiceConfig struct {
		Oscillator string   `yaml:"oscillator"`
		Envelope   Envelope `yaml:"envelope"`
		Volume     float64  `yaml:"volume"` // in dB
		Polyphony  int      `yaml:"polyphony,omitempty"`
	}

	// Envelope is a linear attack-decay-sustain-release envelope. Times are
	// in seconds; Sustain is a level between 0 and 1.
	Envelope struct {
		Attack  float64 `yaml:"attack"`
		Decay   float64 `yaml:"decay"`
		Sustain float64 `yaml:"sustain"`
		Release float64 `yaml:"release"`
	}
)

var ErrInvalidTheme = errors.New("invalid theme")

//go:embed theme.yml
var defaultThemeYaml []byte

// DefaultTheme returns the built-in theme. The returned value is a fresh
// copy every time.
func DefaultTheme() Theme {
	t, err := ReadTheme(bytes.NewReader(defaultThemeYaml))
	if err != nil {
		panic(fmt.Errorf("failed to read the embedded theme: %w", err))
	}
	return t
}

// ReadTheme decodes and validates a theme. Unknown fields are rejected.
func ReadTheme(r io.Reader) (Theme, error) {
	var t Theme
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&t); err != nil {
		return Theme{}, fmt.Errorf("could not decode theme: %w", err)
	}
	if err := t.Validate(); err != nil {
		return Theme{}, err
	}
	return t, nil
}

// WriteTheme encodes the theme as YAML.
func WriteTheme(w io.Writer, t Theme) error {
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(t); err != nil {
		return fmt.Errorf("could not encode theme: %w", err)
	}
	return enc.Close()
}

// Validate checks that the theme can be played: the melody is sorted, every
// event has a chord and lies inside the loop, and all durations resolve.
func (t Theme) Validate() error {
	if t.BPM <= 0 {
		return fmt.Errorf("%w: bpm must be positive, got %v", ErrInvalidTheme, t.BPM)
	}
	if len(t.Melody) == 0 {
		return fmt.Errorf("%w: empty melody", ErrInvalidTheme)
	}
	loopEnd, err := t.LoopEnd.Ticks(t.Signature)
	if err != nil {
		return fmt.Errorf("%w: loopEnd: %w", ErrInvalidTheme, err)
	}
	for _, n := range []Notation{t.NoteLength, t.Ambient.Interval, t.Ambient.NoteLength} {
		if d, err := n.Ticks(t.Signature); err != nil || d <= 0 {
			return fmt.Errorf("%w: bad duration %q", ErrInvalidTheme, n)
		}
	}
	for i, e := range t.Melody {
		if len(e.Chord) == 0 {
			return fmt.Errorf("%w: melody event %d (%v) has no pitches", ErrInvalidTheme, i, e.Time)
		}
		if i > 0 && e.Time.Less(t.Melody[i-1].Time) {
			return fmt.Errorf("%w: melody event %d (%v) is before event %d (%v)", ErrInvalidTheme, i, e.Time, i-1, t.Melody[i-1].Time)
		}
		if e.Time.Ticks(t.Signature) >= loopEnd {
			return fmt.Errorf("%w: melody event %d (%v) is outside the loop", ErrInvalidTheme, i, e.Time)
		}
	}
	if len(t.Ambient.Scale) == 0 {
		return fmt.Errorf("%w: empty ambient scale", ErrInvalidTheme)
	}
	return nil
}

// Copy makes a deep copy of the theme.
func (t Theme) Copy() Theme {
	ret := t
	ret.Melody = make([]MelodyEvent, len(t.Melody))
	for i, e := range t.Melody {
		ret.Melody[i] = MelodyEvent{Time: e.Time, Chord: e.Chord.Copy()}
	}
	ret.Ambient.Scale = slices.Clone(t.Ambient.Scale)
	return ret
}

// LoopTicks returns the loop length in ticks. The theme is assumed to be
// valid.
func (t Theme) LoopTicks() Ticks {
	l, _ := t.LoopEnd.Ticks(t.Signature)
	return l
}

// Duration resolves a notation using the theme's signature, returning 0 for
// invalid notations.
func (t Theme) Duration(n Notation) Ticks {
	d, _ := n.Ticks(t.Signature)
	return d
}
