package music

import (
	"time"
)

type (
	// Broker carries messages from the controller to whoever draws the
	// toggle. For closing the UI goroutine, CloseUI has a capacity of 1 so a
	// close request never blocks; FinishedUI is closed by the UI goroutine
	// once it has returned. Wait for it with a timeout:
	//    select {
	//      case <-FinishedUI:
	//      case <-time.After(3 * time.Second):
	//    }
	Broker struct {
		ToUI chan MsgToUI

		CloseUI    chan struct{}
		FinishedUI chan struct{}
	}

	// MsgToUI is sent on every state change of the controller. HasAlert is
	// set when the change carries a message for the user, typically a start
	// failure.
	MsgToUI struct {
		State     EngineState
		IsPlaying bool

		HasAlert bool
		Alert    Alert
	}

	// Alert is a message for the user with a priority and display time.
	Alert struct {
		Message  string
		Priority AlertPriority
		Duration time.Duration
	}

	AlertPriority int
)

const (
	None AlertPriority = iota
	Info
	Warning
	Error
)

// NewBroker returns a broker with buffered channels.
func NewBroker() *Broker {
	return &Broker{
		ToUI:       make(chan MsgToUI, 64),
		CloseUI:    make(chan struct{}, 1),
		FinishedUI: make(chan struct{}),
	}
}

// TrySend is a helper function to send a value to a channel if it is not
// full. It is guaranteed to be non-blocking. Return true if the value was
// sent, false otherwise.
func TrySend[T any](c chan<- T, v T) bool {
	select {
	case c <- v:
	default:
		return false
	}
	return true
}

// TimeoutReceive is a helper function to block until a value is received
// from a channel, or timing out after t. ok will be false if the timeout
// occurred or if the channel is closed.
func TimeoutReceive[T any](c <-chan T, t time.Duration) (v T, ok bool) {
	select {
	case v, ok = <-c:
		return v, ok
	case <-time.After(t):
		return v, false
	}
}
