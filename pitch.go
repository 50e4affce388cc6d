package regentheme

import (
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

type (
	// Pitch is a note name with an octave, e.g. Eb4. The zero value is C-1,
	// i.e. MIDI key 0. Pitches are values and never change once parsed.
	Pitch struct {
		Letter     byte // one of 'C', 'D', 'E', 'F', 'G', 'A', 'B'
		Accidental int  // positive for sharps, negative for flats
		Octave     int
	}

	// Chord is a non-empty ordered list of pitches sounded simultaneously.
	Chord []Pitch
)

var ErrInvalidPitch = errors.New("invalid pitch")

// semitones of the natural letters, relative to C
var letterClass = map[byte]int{
	'C': 0,
	'D': 2,
	'E': 4,
	'F': 5,
	'G': 7,
	'A': 9,
	'B': 11,
}

// ParsePitch parses scientific pitch notation: a letter, any number of '#' or
// 'b' accidentals and an integer octave ("C4", "Eb4", "F#-1").
func ParsePitch(s string) (Pitch, error) {
	s = strings.TrimSpace(s)
	if len(s) < 2 {
		return Pitch{}, fmt.Errorf("%w: %q", ErrInvalidPitch, s)
	}
	letter := s[0]
	if letter >= 'a' && letter <= 'g' {
		letter -= 'a' - 'A'
	}
	if _, ok := letterClass[letter]; !ok {
		return Pitch{}, fmt.Errorf("%w: %q has no note letter", ErrInvalidPitch, s)
	}
	i := 1
	accidental := 0
loop:
	for ; i < len(s); i++ {
		switch s[i] {
		case '#':
			accidental++
		case 'b':
			accidental--
		default:
			break loop
		}
	}
	octave, err := strconv.Atoi(s[i:])
	if err != nil {
		return Pitch{}, fmt.Errorf("%w: %q has no octave", ErrInvalidPitch, s)
	}
	return Pitch{Letter: letter, Accidental: accidental, Octave: octave}, nil
}

// MustParsePitch is like ParsePitch but panics on error. Meant for static
// tables.
func MustParsePitch(s string) Pitch {
	p, err := ParsePitch(s)
	if err != nil {
		panic(err)
	}
	return p
}

func (p Pitch) String() string {
	letter := p.Letter
	if letter == 0 {
		letter = 'C'
	}
	acc := ""
	if p.Accidental > 0 {
		acc = strings.Repeat("#", p.Accidental)
	} else if p.Accidental < 0 {
		acc = strings.Repeat("b", -p.Accidental)
	}
	return fmt.Sprintf("%c%s%d", letter, acc, p.Octave)
}

// Key returns the MIDI key number of the pitch; C4 is 60. Enharmonic
// spellings (D#4, Eb4) map to the same key.
func (p Pitch) Key() int {
	return (p.Octave+1)*12 + letterClass[p.letter()] + p.Accidental
}

// Frequency returns the equal-tempered frequency in Hz, tuned to A4 = 440 Hz.
func (p Pitch) Frequency() float64 {
	return 440 * math.Exp2(float64(p.Key()-69)/12)
}

func (p Pitch) letter() byte {
	if p.Letter == 0 {
		return 'C'
	}
	return p.Letter
}

func (p Pitch) MarshalYAML() (interface{}, error) {
	return p.String(), nil
}

func (p *Pitch) UnmarshalYAML(value *yaml.Node) error {
	var s string
	if err := value.Decode(&s); err != nil {
		return err
	}
	parsed, err := ParsePitch(s)
	if err != nil {
		return err
	}
	*p = parsed
	return nil
}

// ParseChord parses a list of pitch names.
func ParseChord(names ...string) (Chord, error) {
	if len(names) == 0 {
		return nil, fmt.Errorf("%w: empty chord", ErrInvalidPitch)
	}
	ret := make(Chord, len(names))
	for i, n := range names {
		p, err := ParsePitch(n)
		if err != nil {
			return nil, err
		}
		ret[i] = p
	}
	return ret, nil
}

func (c Chord) String() string {
	names := make([]string, len(c))
	for i, p := range c {
		names[i] = p.String()
	}
	return "[" + strings.Join(names, " ") + "]"
}

// Copy makes a copy of the chord, so the melody data never aliases the
// caller's slices.
func (c Chord) Copy() Chord {
	ret := make(Chord, len(c))
	copy(ret, c)
	return ret
}
