package regentheme

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

type (
	// Ticks is the unit of musical time of the transport. There are PPQ ticks
	// in a quarter note, independent of tempo.
	Ticks int64

	// Signature tells how many beats (quarter notes) make a measure. Each beat
	// is divided into four subdivisions (sixteenth notes).
	Signature struct {
		BeatsPerMeasure int `yaml:"beatsPerMeasure"`
	}

	// TimeOffset is a quantized position (measure, beat, subdivision)
	// relative to the start of a sequence. The text form is "m:b:s".
	TimeOffset struct {
		Measure     int
		Beat        int
		Subdivision int
	}

	// Notation is a musical duration in text, e.g. "16n" (a sixteenth note),
	// "8n", "2m" (two measures) or "1:0:2" (a TimeOffset).
	Notation string
)

// PPQ is the number of ticks in a quarter note.
const PPQ Ticks = 192

const SubdivisionsPerBeat = 4

var ErrInvalidTime = errors.New("invalid time")

var DefaultSignature = Signature{BeatsPerMeasure: 4}

func (s Signature) beats() int {
	if s.BeatsPerMeasure <= 0 {
		return DefaultSignature.BeatsPerMeasure
	}
	return s.BeatsPerMeasure
}

// Measure returns the length of one measure in ticks.
func (s Signature) Measure() Ticks {
	return Ticks(s.beats()) * PPQ
}

// ParseTimeOffset parses "m:b:s". Missing trailing fields are zero, so "1"
// and "1:0" both mean the start of the second measure.
func ParseTimeOffset(s string) (TimeOffset, error) {
	parts := strings.Split(strings.TrimSpace(s), ":")
	if len(parts) > 3 {
		return TimeOffset{}, fmt.Errorf("%w: %q has too many fields", ErrInvalidTime, s)
	}
	var vals [3]int
	for i, p := range parts {
		v, err := strconv.Atoi(p)
		if err != nil || v < 0 {
			return TimeOffset{}, fmt.Errorf("%w: %q", ErrInvalidTime, s)
		}
		vals[i] = v
	}
	return TimeOffset{Measure: vals[0], Beat: vals[1], Subdivision: vals[2]}, nil
}

func MustParseTimeOffset(s string) TimeOffset {
	t, err := ParseTimeOffset(s)
	if err != nil {
		panic(err)
	}
	return t
}

func (t TimeOffset) String() string {
	return fmt.Sprintf("%d:%d:%d", t.Measure, t.Beat, t.Subdivision)
}

// Less orders offsets lexicographically on (measure, beat, subdivision).
func (t TimeOffset) Less(o TimeOffset) bool {
	if t.Measure != o.Measure {
		return t.Measure < o.Measure
	}
	if t.Beat != o.Beat {
		return t.Beat < o.Beat
	}
	return t.Subdivision < o.Subdivision
}

// Ticks converts the offset to transport ticks for the given signature.
func (t TimeOffset) Ticks(sig Signature) Ticks {
	beats := Ticks(t.Measure*sig.beats() + t.Beat)
	return beats*PPQ + Ticks(t.Subdivision)*PPQ/SubdivisionsPerBeat
}

func (t TimeOffset) MarshalYAML() (interface{}, error) {
	return t.String(), nil
}

func (t *TimeOffset) UnmarshalYAML(value *yaml.Node) error {
	var s string
	if err := value.Decode(&s); err != nil {
		return err
	}
	parsed, err := ParseTimeOffset(s)
	if err != nil {
		return err
	}
	*t = parsed
	return nil
}

// Ticks resolves the notation. "Nn" is a 1/N note, "Nt" a 1/N triplet, "Nm"
// N measures and anything with a colon a TimeOffset.
func (n Notation) Ticks(sig Signature) (Ticks, error) {
	s := strings.TrimSpace(string(n))
	if strings.Contains(s, ":") {
		t, err := ParseTimeOffset(s)
		if err != nil {
			return 0, err
		}
		return t.Ticks(sig), nil
	}
	if len(s) < 2 {
		return 0, fmt.Errorf("%w: %q", ErrInvalidTime, s)
	}
	v, err := strconv.Atoi(s[:len(s)-1])
	if err != nil || v <= 0 {
		return 0, fmt.Errorf("%w: %q", ErrInvalidTime, s)
	}
	switch s[len(s)-1] {
	case 'n':
		return PPQ * 4 / Ticks(v), nil
	case 't':
		return PPQ * 8 / Ticks(3*v), nil
	case 'm':
		return sig.Measure() * Ticks(v), nil
	}
	return 0, fmt.Errorf("%w: %q has unknown unit", ErrInvalidTime, s)
}
