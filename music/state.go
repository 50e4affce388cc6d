package music

// EngineState is the lifecycle state of the controller. Disposed is
// terminal; every other state can be left.
type EngineState int

const (
	Stopped EngineState = iota
	Starting
	Playing
	Disposed
)

func (s EngineState) String() string {
	switch s {
	case Stopped:
		return "stopped"
	case Starting:
		return "starting"
	case Playing:
		return "playing"
	case Disposed:
		return "disposed"
	}
	return "unknown"
}
