package synth

// oscillator maps a phase in [0, 1) to a sample in [-1, 1].
type oscillator func(phase float64) float32

var oscillators = map[string]oscillator{
	"square": func(phase float64) float32 {
		if phase < 0.5 {
			return 1
		}
		return -1
	},
	"sawtooth": func(phase float64) float32 {
		return float32(2*phase - 1)
	},
	"triangle": func(phase float64) float32 {
		if phase < 0.5 {
			return float32(4*phase - 1)
		}
		return float32(3 - 4*phase)
	},
}
