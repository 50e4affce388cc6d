package music

import (
	"maps"
	"slices"
	"sync"
)

type (
	// Interaction is a kind of user input that counts as a gesture for
	// audio permission purposes.
	Interaction int

	// ListenerID identifies a registered listener.
	ListenerID int

	// EventTarget is where the controller listens for the first gesture.
	EventTarget interface {
		AddEventListener(kind Interaction, fn func(Interaction)) ListenerID
		RemoveEventListener(id ListenerID)
	}

	// Document is an in-process EventTarget. Listeners are called from the
	// goroutine calling Dispatch, without any lock held, so a listener may
	// remove itself or others.
	Document struct {
		mu        sync.Mutex
		next      ListenerID
		listeners map[ListenerID]listener
	}

	listener struct {
		kind Interaction
		fn   func(Interaction)
	}
)

const (
	Click Interaction = iota
	TouchStart
	KeyDown
)

// Gestures are the interactions that may start audio.
var Gestures = []Interaction{Click, TouchStart, KeyDown}

func (i Interaction) String() string {
	switch i {
	case Click:
		return "click"
	case TouchStart:
		return "touchstart"
	case KeyDown:
		return "keydown"
	}
	return "unknown"
}

// NewDocument returns a document without listeners.
func NewDocument() *Document {
	return &Document{listeners: map[ListenerID]listener{}}
}

// AddEventListener registers fn for interactions of the kind.
func (d *Document) AddEventListener(kind Interaction, fn func(Interaction)) ListenerID {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.next++
	d.listeners[d.next] = listener{kind: kind, fn: fn}
	return d.next
}

// RemoveEventListener unregisters a listener. Unknown IDs are ignored.
func (d *Document) RemoveEventListener(id ListenerID) {
	d.mu.Lock()
	delete(d.listeners, id)
	d.mu.Unlock()
}

// Dispatch calls every listener of the kind in registration order and
// returns how many were called. A listener removed by an earlier one in
// the same dispatch is skipped.
func (d *Document) Dispatch(kind Interaction) int {
	d.mu.Lock()
	ids := slices.Sorted(maps.Keys(d.listeners))
	d.mu.Unlock()
	n := 0
	for _, id := range ids {
		d.mu.Lock()
		l, ok := d.listeners[id]
		d.mu.Unlock()
		if !ok || l.kind != kind {
			continue
		}
		l.fn(kind)
		n++
	}
	return n
}

// Listeners returns the number of registered listeners.
func (d *Document) Listeners() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.listeners)
}
