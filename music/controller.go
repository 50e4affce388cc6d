// Package music runs the regenmon background theme: a controller that
// builds the voices and sequences on the shared transport when the user
// allows audio, and tears them down again on toggle-off or unmount.
package music

import (
	"context"
	"errors"
	"fmt"
	"log"
	"math/rand/v2"
	"sync"
	"time"

	"github.com/regenmon/regentheme"
	"github.com/regenmon/regentheme/storage"
	"github.com/regenmon/regentheme/transport"
)

type (
	// Controller owns the playback lifecycle. All methods are safe for
	// concurrent use. Only Start blocks, and only while waiting for the
	// Unlocker.
	Controller struct {
		mu      sync.Mutex
		cfg     Config
		state   EngineState
		started bool // guards against duplicate starts
		gen     int
		cancel  context.CancelFunc

		baseCtx    context.Context
		baseCancel context.CancelFunc
		wg         sync.WaitGroup

		melody  regentheme.Voice
		ambient regentheme.Voice
		part    *transport.Part
		loop    *transport.Loop

		target    EventTarget
		listeners []ListenerID

		playingSince time.Time
		played       time.Duration
	}

	// Config holds the collaborators of a Controller. Clock, Destination and
	// Synther are required; the rest have defaults.
	Config struct {
		Clock       Clock
		Destination Destination
		Synther     regentheme.Synther
		Unlocker    Unlocker
		Preferences storage.Store
		Rand        regentheme.RandomSource
		Theme       regentheme.Theme
		Broker      *Broker
	}

	// Clock is the shared transport the controller schedules on.
	Clock interface {
		transport.Scheduler
		SetBPM(bpm float64)
		SetSignature(sig regentheme.Signature)
		Start()
		Stop()
		CancelAll()
		FramesFor(ticks regentheme.Ticks) int
	}

	// Unlocker blocks until the platform allows audio, e.g. until the user
	// has interacted with the page. regentheme.AudioContext implementations
	// satisfy it.
	Unlocker interface {
		Unlock(ctx context.Context) error
	}

	// UnlockFunc adapts a function to an Unlocker.
	UnlockFunc func(ctx context.Context) error
)

const (
	// PreferenceKey is the storage key of the mute preference.
	PreferenceKey = "regenmon-music"
	mutedValue    = "off"
)

// ErrAborted is returned by Start when the start was stopped or the
// controller closed while waiting for the unlock.
var ErrAborted = errors.New("music start aborted")

// AlwaysUnlocked is an Unlocker for platforms without a gesture
// requirement.
var AlwaysUnlocked Unlocker = UnlockFunc(func(context.Context) error { return nil })

// Unlock calls f.
func (f UnlockFunc) Unlock(ctx context.Context) error { return f(ctx) }

// NewController returns a stopped controller. Nothing is constructed until
// the first successful start.
func NewController(cfg Config) *Controller {
	if cfg.Unlocker == nil {
		cfg.Unlocker = AlwaysUnlocked
	}
	if cfg.Preferences == nil {
		cfg.Preferences = storage.NewMemory()
	}
	if cfg.Rand == nil {
		cfg.Rand = rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64()))
	}
	if cfg.Theme.BPM == 0 {
		cfg.Theme = regentheme.DefaultTheme()
	} else {
		cfg.Theme = cfg.Theme.Copy()
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Controller{cfg: cfg, baseCtx: ctx, baseCancel: cancel}
}

// State returns the current lifecycle state.
func (c *Controller) State() EngineState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// IsPlaying reports whether the music is audible, i.e. the state is Playing.
func (c *Controller) IsPlaying() bool {
	return c.State() == Playing
}

// Muted reports whether the user has turned the music off in this or an
// earlier session.
func (c *Controller) Muted() bool {
	v, ok := c.cfg.Preferences.Get(PreferenceKey)
	return ok && v == mutedValue
}

// PlayTime returns the total time spent in the Playing state.
func (c *Controller) PlayTime() time.Duration {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state == Playing {
		return c.played + time.Since(c.playingSince)
	}
	return c.played
}

// Start waits for the Unlocker and then builds the voices, the melody part
// and the ambient loop and starts the clock. Calling Start while starting
// or playing does nothing. On failure the controller is back in Stopped
// and the error is logged, so callers may ignore the returned error. A
// failed build also sends an alert.
func (c *Controller) Start(ctx context.Context) error {
	c.mu.Lock()
	if c.state == Disposed || c.started {
		c.mu.Unlock()
		return nil
	}
	c.started = true
	c.gen++
	gen := c.gen
	ctx, cancel := context.WithCancel(ctx)
	c.cancel = cancel
	c.setState(Starting)
	c.mu.Unlock()

	err := c.cfg.Unlocker.Unlock(ctx)

	c.mu.Lock()
	defer c.mu.Unlock()
	cancel()
	if gen != c.gen || c.state != Starting {
		return ErrAborted
	}
	c.cancel = nil
	if err != nil {
		// a denied unlock is retried on the next gesture; the user only
		// sees the toggle staying off
		return c.fail(fmt.Errorf("could not unlock audio: %w", err), false)
	}
	if err := c.build(); err != nil {
		c.teardown()
		return c.fail(err, true)
	}
	c.playingSince = time.Now()
	c.setState(Playing)
	return nil
}

// Stop is the user turning the music off: everything is torn down and the
// muted preference is stored.
func (c *Controller) Stop() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state == Disposed {
		return
	}
	c.teardown()
	c.setState(Stopped)
	if err := c.cfg.Preferences.Set(PreferenceKey, mutedValue); err != nil {
		log.Printf("could not store music preference: %v", err)
	}
}

// TurnOn is the user turning the music on: the muted preference is
// cleared and the music starts in the background.
func (c *Controller) TurnOn() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state == Disposed {
		return
	}
	c.removeListeners()
	if err := c.cfg.Preferences.Remove(PreferenceKey); err != nil {
		log.Printf("could not clear music preference: %v", err)
	}
	c.startAsync()
}

// Toggle turns the music off if it is playing or starting, on otherwise.
func (c *Controller) Toggle() {
	switch c.State() {
	case Playing, Starting:
		c.Stop()
	case Stopped:
		c.TurnOn()
	}
}

// Mount attaches the controller to the target. Unless the user has muted
// the music, the first gesture on the target starts it. The listeners are
// removed after that first gesture, whether or not the start succeeds.
func (c *Controller) Mount(target EventTarget) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state == Disposed || c.target != nil {
		return
	}
	c.target = target
	if c.Muted() {
		return
	}
	for _, kind := range Gestures {
		c.listeners = append(c.listeners, target.AddEventListener(kind, c.onGesture))
	}
}

// Close tears everything down without touching the preference. The
// controller cannot be used afterwards. Close waits for background starts
// to return.
func (c *Controller) Close() {
	c.mu.Lock()
	if c.state == Disposed {
		c.mu.Unlock()
		return
	}
	c.removeListeners()
	c.baseCancel()
	c.teardown()
	c.setState(Disposed)
	c.mu.Unlock()
	c.wg.Wait()
}

// Wait blocks until all background starts have returned.
func (c *Controller) Wait() {
	c.wg.Wait()
}

func (c *Controller) onGesture(Interaction) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.listeners) == 0 || c.state == Disposed {
		return
	}
	c.removeListeners()
	c.startAsync()
}

func (c *Controller) startAsync() {
	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		c.Start(c.baseCtx)
	}()
}

func (c *Controller) removeListeners() {
	for _, id := range c.listeners {
		c.target.RemoveEventListener(id)
	}
	c.listeners = nil
}

func (c *Controller) build() error {
	theme := c.cfg.Theme
	clock := c.cfg.Clock
	if err := theme.Validate(); err != nil {
		return err
	}
	melody, err := c.cfg.Synther.Voice(theme.Voices.Melody)
	if err != nil {
		return fmt.Errorf("could not create melody voice: %w", err)
	}
	c.melody = melody
	ambient, err := c.cfg.Synther.Voice(theme.Voices.Ambient)
	if err != nil {
		return fmt.Errorf("could not create ambient voice: %w", err)
	}
	c.ambient = ambient
	c.cfg.Destination.Connect(melody)
	c.cfg.Destination.Connect(ambient)

	clock.SetBPM(theme.BPM)
	clock.SetSignature(theme.Signature)

	melodyLength := clock.FramesFor(theme.Duration(theme.NoteLength))
	c.part = transport.NewPart(clock, theme.Melody, func(frame int64, e regentheme.MelodyEvent) {
		melody.TriggerAttackRelease(e.Chord, melodyLength, frame)
	})
	c.part.SetLoop(true)
	c.part.SetLoopEnd(theme.LoopTicks())

	scale := theme.Ambient.Scale
	rnd := c.cfg.Rand
	ambientLength := clock.FramesFor(theme.Duration(theme.Ambient.NoteLength))
	c.loop = transport.NewLoop(clock, theme.Duration(theme.Ambient.Interval), func(frame int64) {
		p := scale[rnd.IntN(len(scale))]
		ambient.TriggerAttackRelease(regentheme.Chord{p}, ambientLength, frame)
	})

	c.part.Start(0)
	c.loop.Start(0)
	clock.Start()
	return nil
}

// teardown stops the clock before disposing anything, so no callback can
// reach a disposed voice. It is safe to call on a partial build.
func (c *Controller) teardown() {
	if c.cancel != nil {
		c.cancel()
		c.cancel = nil
	}
	c.cfg.Clock.Stop()
	c.cfg.Clock.CancelAll()
	if c.part != nil {
		c.part.Dispose()
		c.part = nil
	}
	if c.loop != nil {
		c.loop.Dispose()
		c.loop = nil
	}
	for _, v := range []*regentheme.Voice{&c.melody, &c.ambient} {
		if *v != nil {
			(*v).Dispose()
			c.cfg.Destination.Disconnect(*v)
			*v = nil
		}
	}
	if c.state == Playing {
		c.played += time.Since(c.playingSince)
	}
	c.started = false
}

func (c *Controller) fail(err error, alert bool) error {
	log.Printf("could not start music: %v", err)
	c.started = false
	c.state = Stopped
	msg := MsgToUI{State: Stopped}
	if alert {
		msg.HasAlert = true
		msg.Alert = Alert{Message: err.Error(), Priority: Warning, Duration: 3 * time.Second}
	}
	c.publish(msg)
	return err
}

func (c *Controller) setState(s EngineState) {
	if c.state == s {
		return
	}
	c.state = s
	c.publish(MsgToUI{State: s, IsPlaying: s == Playing})
}

func (c *Controller) publish(msg MsgToUI) {
	if c.cfg.Broker != nil {
		TrySend(c.cfg.Broker.ToUI, msg)
	}
}
