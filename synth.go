package regentheme

type (
	// Voice is a polyphonic sound source with a fixed timbre. All times are
	// in sample frames on the audio clock.
	Voice interface {
		// TriggerAttackRelease schedules the chord to start at frame at and
		// to be released length frames later.
		TriggerAttackRelease(chord Chord, length int, at int64)
		// Render adds the voice's output for frames [frame, frame+len(buf))
		// into buf.
		Render(buf AudioBuffer, frame int64)
		// Dispose releases the voice. It is safe to call many times; after
		// the first call, triggers and renders are ignored.
		Dispose()
	}

	// Synther constructs voices.
	Synther interface {
		Name() string
		Voice(cfg VoiceConfig) (Voice, error)
	}
)
