package music

type (
	Bool struct {
		BoolData
	}

	BoolData interface {
		Value() bool
		Enabled() bool
		setValue(bool)
	}

	// PlayingToggle is the on/off toggle of the music as a Bool.
	PlayingToggle Controller
)

func (v Bool) Toggle() {
	v.Set(!v.Value())
}

func (v Bool) Set(value bool) {
	if v.Enabled() && v.Value() != value {
		v.setValue(value)
	}
}

func (c *Controller) Playing() *PlayingToggle { return (*PlayingToggle)(c) }

// PlayingToggle methods

func (m *PlayingToggle) Bool() Bool  { return Bool{m} }
func (m *PlayingToggle) Value() bool { return (*Controller)(m).IsPlaying() }
func (m *PlayingToggle) setValue(val bool) {
	if val {
		(*Controller)(m).TurnOn()
	} else {
		(*Controller)(m).Stop()
	}
}
func (m *PlayingToggle) Enabled() bool { return (*Controller)(m).State() != Disposed }
