package music_test

import (
	"context"
	"errors"
	"math/rand/v2"
	"path/filepath"
	"slices"
	"sync"
	"testing"
	"time"

	"github.com/regenmon/regentheme"
	"github.com/regenmon/regentheme/music"
	"github.com/regenmon/regentheme/storage"
	"github.com/regenmon/regentheme/transport"
)

type (
	trigger struct {
		chord  regentheme.Chord
		length int
		at     int64
	}

	fakeVoice struct {
		mu           sync.Mutex
		triggers     []trigger
		disposed     bool
		afterDispose int
	}

	fakeSynther struct {
		mu     sync.Mutex
		voices []*fakeVoice
		fail   bool
	}

	// gate is an Unlocker that blocks until opened.
	gate chan struct{}

	rig struct {
		clock   *transport.Transport
		player  *music.Player
		synther *fakeSynther
		prefs   storage.Store
		broker  *music.Broker
		c       *music.Controller
	}
)

const framesPerCycle = 151200 // two measures at 140 BPM

func (v *fakeVoice) TriggerAttackRelease(chord regentheme.Chord, length int, at int64) {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.disposed {
		v.afterDispose++
		return
	}
	v.triggers = append(v.triggers, trigger{chord, length, at})
}

func (v *fakeVoice) Render(regentheme.AudioBuffer, int64) {}

func (v *fakeVoice) Dispose() {
	v.mu.Lock()
	v.disposed = true
	v.mu.Unlock()
}

func (v *fakeVoice) snapshot() ([]trigger, bool, int) {
	v.mu.Lock()
	defer v.mu.Unlock()
	return append([]trigger(nil), v.triggers...), v.disposed, v.afterDispose
}

func (s *fakeSynther) Name() string { return "fake" }

func (s *fakeSynther) Voice(regentheme.VoiceConfig) (regentheme.Voice, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.fail {
		return nil, errors.New("no voices today")
	}
	v := &fakeVoice{}
	s.voices = append(s.voices, v)
	return v, nil
}

func (s *fakeSynther) created() []*fakeVoice {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]*fakeVoice(nil), s.voices...)
}

func (g gate) Unlock(ctx context.Context) error {
	select {
	case <-g:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func newRig(unlocker music.Unlocker, prefs storage.Store) *rig {
	clock := transport.New(regentheme.SampleRate)
	r := &rig{
		clock:   clock,
		player:  music.NewPlayer(clock),
		synther: &fakeSynther{},
		prefs:   prefs,
		broker:  music.NewBroker(),
	}
	r.c = music.NewController(music.Config{
		Clock:       clock,
		Destination: r.player,
		Synther:     r.synther,
		Unlocker:    unlocker,
		Preferences: prefs,
		Rand:        rand.New(rand.NewPCG(1, 2)),
		Broker:      r.broker,
	})
	return r
}

func (r *rig) process(frames int) {
	buf := make(regentheme.AudioBuffer, 4096)
	for frames > 0 {
		n := min(frames, len(buf))
		r.player.Process(buf[:n])
		frames -= n
	}
}

func (r *rig) states() []music.EngineState {
	var ret []music.EngineState
	for {
		select {
		case msg := <-r.broker.ToUI:
			ret = append(ret, msg.State)
		default:
			return ret
		}
	}
}

func waitState(t *testing.T, c *music.Controller, want music.EngineState) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for c.State() != want {
		if time.Now().After(deadline) {
			t.Fatalf("state = %v, want %v", c.State(), want)
		}
		time.Sleep(time.Millisecond)
	}
}

func TestStartIsIdempotent(t *testing.T) {
	g := make(gate)
	r := newRig(g, storage.NewMemory())
	defer r.c.Close()
	errs := make(chan error, 1)
	go func() { errs <- r.c.Start(context.Background()) }()
	waitState(t, r.c, music.Starting)
	if err := r.c.Start(context.Background()); err != nil {
		t.Fatalf("second Start while starting: %v", err)
	}
	close(g)
	if err := <-errs; err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	if err := r.c.Start(context.Background()); err != nil {
		t.Fatalf("Start while playing: %v", err)
	}
	if !r.c.IsPlaying() {
		t.Fatal("controller should be playing")
	}
	if n := len(r.synther.created()); n != 2 {
		t.Fatalf("created %d voices, want 2", n)
	}
	if n := r.player.Connected(); n != 2 {
		t.Fatalf("connected %d voices, want 2", n)
	}
	// 16 melody events and one ambient loop
	if n := r.clock.Pending(); n != 17 {
		t.Fatalf("pending = %d, want 17", n)
	}
	want := []music.EngineState{music.Starting, music.Playing}
	if got := r.states(); !slices.Equal(got, want) {
		t.Fatalf("published states %v, want %v", got, want)
	}
}

func TestStopTearsDownAndPersists(t *testing.T) {
	r := newRig(music.AlwaysUnlocked, storage.NewMemory())
	if err := r.c.Start(context.Background()); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	r.process(framesPerCycle / 2)
	r.c.Stop()
	if r.c.State() != music.Stopped || r.c.IsPlaying() {
		t.Fatalf("state after Stop = %v", r.c.State())
	}
	if v, ok := r.prefs.Get(music.PreferenceKey); !ok || v != "off" {
		t.Fatalf("preference = %q, %v; want off", v, ok)
	}
	if r.clock.Running() || r.clock.Pending() != 0 {
		t.Fatalf("clock running = %v with %d pending", r.clock.Running(), r.clock.Pending())
	}
	if r.player.Connected() != 0 {
		t.Fatalf("%d voices still connected", r.player.Connected())
	}
	// nothing cancelled may reach a disposed voice, even if the clock runs
	r.clock.Start()
	r.process(2 * framesPerCycle)
	for i, v := range r.synther.created() {
		_, disposed, after := v.snapshot()
		if !disposed {
			t.Errorf("voice %d not disposed", i)
		}
		if after != 0 {
			t.Errorf("voice %d got %d triggers after dispose", i, after)
		}
	}
	r.c.Stop() // stopping twice is fine
	r.c.Close()
}

func TestRestartAfterStop(t *testing.T) {
	r := newRig(music.AlwaysUnlocked, storage.NewMemory())
	defer r.c.Close()
	if err := r.c.Start(context.Background()); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	// stop just before the second measure
	r.process(framesPerCycle/2 - 1000)
	r.c.Stop()
	first := r.synther.created()
	before := make([]int, len(first))
	for i, v := range first {
		tr, _, _ := v.snapshot()
		before[i] = len(tr)
	}
	r.c.TurnOn()
	r.c.Wait()
	if !r.c.IsPlaying() {
		t.Fatalf("state after restart = %v, want playing", r.c.State())
	}
	if r.c.Muted() {
		t.Fatal("turning on should clear the preference")
	}
	r.process(framesPerCycle)
	voices := r.synther.created()
	if len(voices) != 4 {
		t.Fatalf("created %d voices, want 4", len(voices))
	}
	for i, v := range voices[:2] {
		tr, disposed, after := v.snapshot()
		if !disposed || len(tr) != before[i] || after != 0 {
			t.Errorf("stopped voice %d: disposed %v, %d new triggers, %d after dispose", i, disposed, len(tr)-before[i], after)
		}
	}
	melody, _, _ := voices[2].snapshot()
	ambient, _, _ := voices[3].snapshot()
	if len(melody) != 16 {
		t.Fatalf("melody got %d chords in a cycle after restart, want 16", len(melody))
	}
	if len(ambient) != 32 {
		t.Fatalf("ambient got %d notes in a cycle after restart, want 32", len(ambient))
	}
	// the stopped clock kept its position, so the loop resumes at the second measure
	if want := regentheme.DefaultTheme().Melody[8].Chord.String(); melody[0].chord.String() != want {
		t.Fatalf("first chord after restart = %v, want %v", melody[0].chord, want)
	}
}

func TestCloseKeepsPreference(t *testing.T) {
	r := newRig(music.AlwaysUnlocked, storage.NewMemory())
	if err := r.c.Start(context.Background()); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	r.c.Close()
	r.c.Close()
	if r.c.State() != music.Disposed {
		t.Fatalf("state after Close = %v", r.c.State())
	}
	if _, ok := r.prefs.Get(music.PreferenceKey); ok {
		t.Fatal("Close should not touch the preference")
	}
	for i, v := range r.synther.created() {
		if _, disposed, _ := v.snapshot(); !disposed {
			t.Errorf("voice %d not disposed", i)
		}
	}
	r.c.Start(context.Background())
	r.c.Toggle()
	r.c.Stop()
	if r.c.State() != music.Disposed {
		t.Fatalf("closed controller left Disposed: %v", r.c.State())
	}
	if _, ok := r.prefs.Get(music.PreferenceKey); ok {
		t.Fatal("closed controller changed the preference")
	}
	if n := len(r.synther.created()); n != 2 {
		t.Fatalf("created %d voices, want 2", n)
	}
}

func TestCloseNeverStarted(t *testing.T) {
	r := newRig(music.AlwaysUnlocked, storage.NewMemory())
	r.c.Close()
	if n := len(r.synther.created()); n != 0 {
		t.Fatalf("created %d voices, want 0", n)
	}
}

func TestStartFailureResetsToStopped(t *testing.T) {
	r := newRig(music.AlwaysUnlocked, storage.NewMemory())
	defer r.c.Close()
	r.synther.fail = true
	if err := r.c.Start(context.Background()); err == nil {
		t.Fatal("Start should fail without voices")
	}
	if r.c.State() != music.Stopped {
		t.Fatalf("state after failure = %v", r.c.State())
	}
	if r.clock.Running() || r.clock.Pending() != 0 {
		t.Fatal("failed start left the clock scheduled")
	}
	alerted := false
	for {
		msg, ok := music.TimeoutReceive(r.broker.ToUI, 10*time.Millisecond)
		if !ok {
			break
		}
		alerted = alerted || (msg.HasAlert && msg.Alert.Priority == music.Warning)
	}
	if !alerted {
		t.Fatal("failure was not alerted")
	}
	r.synther.fail = false
	if err := r.c.Start(context.Background()); err != nil {
		t.Fatalf("retry failed: %v", err)
	}
	if !r.c.IsPlaying() {
		t.Fatal("retry should play")
	}
}

func TestUnlockFailureResetsToStopped(t *testing.T) {
	denied := music.UnlockFunc(func(context.Context) error { return errors.New("not allowed") })
	r := newRig(denied, storage.NewMemory())
	defer r.c.Close()
	if err := r.c.Start(context.Background()); err == nil {
		t.Fatal("Start should fail when audio is not allowed")
	}
	if r.c.State() != music.Stopped {
		t.Fatalf("state = %v, want stopped", r.c.State())
	}
	if n := len(r.synther.created()); n != 0 {
		t.Fatalf("created %d voices, want 0", n)
	}
	for {
		msg, ok := music.TimeoutReceive(r.broker.ToUI, 10*time.Millisecond)
		if !ok {
			break
		}
		if msg.HasAlert {
			t.Fatalf("denied unlock raised an alert: %v", msg.Alert.Message)
		}
	}
}

func TestStopWhileStarting(t *testing.T) {
	g := make(gate)
	r := newRig(g, storage.NewMemory())
	defer r.c.Close()
	errs := make(chan error, 1)
	go func() { errs <- r.c.Start(context.Background()) }()
	waitState(t, r.c, music.Starting)
	r.c.Stop()
	if err := <-errs; !errors.Is(err, music.ErrAborted) {
		t.Fatalf("Start returned %v, want ErrAborted", err)
	}
	if r.c.State() != music.Stopped {
		t.Fatalf("state = %v, want stopped", r.c.State())
	}
	if n := len(r.synther.created()); n != 0 {
		t.Fatalf("created %d voices, want 0", n)
	}
}

func TestCloseCancelsPendingUnlock(t *testing.T) {
	r := newRig(make(gate), storage.NewMemory())
	doc := music.NewDocument()
	r.c.Mount(doc)
	doc.Dispatch(music.KeyDown)
	waitState(t, r.c, music.Starting)
	done := make(chan struct{})
	go func() {
		r.c.Close()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("Close did not return while unlock was pending")
	}
	if r.c.State() != music.Disposed {
		t.Fatalf("state = %v, want disposed", r.c.State())
	}
}

func TestMelodyAndAmbientScheduling(t *testing.T) {
	r := newRig(music.AlwaysUnlocked, storage.NewMemory())
	defer r.c.Close()
	if err := r.c.Start(context.Background()); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	r.process(2*framesPerCycle - 100)
	voices := r.synther.created()
	melody, _, _ := voices[0].snapshot()
	ambient, _, _ := voices[1].snapshot()
	if len(melody) != 32 {
		t.Fatalf("melody got %d chords in two cycles, want 32", len(melody))
	}
	theme := regentheme.DefaultTheme()
	for i, tr := range melody {
		if want := theme.Melody[i%16].Chord.String(); tr.chord.String() != want {
			t.Errorf("chord %d = %v, want %v", i, tr.chord, want)
		}
		if tr.length != 4725 {
			t.Errorf("chord %d lasts %d frames, want a sixteenth (4725)", i, tr.length)
		}
	}
	if len(ambient) != 64 {
		t.Fatalf("ambient got %d notes in two cycles, want 64", len(ambient))
	}
	for i, tr := range ambient {
		if len(tr.chord) != 1 {
			t.Fatalf("ambient note %d has %d pitches", i, len(tr.chord))
		}
	}
}

func TestAmbientPicksUniformly(t *testing.T) {
	r := newRig(music.AlwaysUnlocked, storage.NewMemory())
	defer r.c.Close()
	if err := r.c.Start(context.Background()); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	const ticks = 4000
	r.process(ticks*4725 - 100)
	ambient, _, _ := r.synther.created()[1].snapshot()
	if len(ambient) != ticks {
		t.Fatalf("got %d ambient notes, want %d", len(ambient), ticks)
	}
	counts := map[string]int{}
	for _, tr := range ambient {
		counts[tr.chord[0].String()]++
	}
	scale := regentheme.DefaultTheme().Ambient.Scale
	if len(counts) != len(scale) {
		t.Fatalf("picked %d distinct pitches, want %d", len(counts), len(scale))
	}
	want := ticks / len(scale)
	for _, p := range scale {
		if n := counts[p.String()]; n < want-100 || n > want+100 {
			t.Errorf("%v picked %d times, want about %d", p, n, want)
		}
	}
}

func TestEndToEnd(t *testing.T) {
	path := filepath.Join(t.TempDir(), "storage.yml")

	// fresh load: the first click anywhere starts the music
	r := newRig(music.AlwaysUnlocked, storage.NewFile(path))
	doc := music.NewDocument()
	r.c.Mount(doc)
	if doc.Listeners() != len(music.Gestures) {
		t.Fatalf("%d listeners after mount, want %d", doc.Listeners(), len(music.Gestures))
	}
	doc.Dispatch(music.Click)
	r.c.Wait()
	if !r.c.IsPlaying() {
		t.Fatalf("state after first click = %v, want playing", r.c.State())
	}
	if doc.Listeners() != 0 {
		t.Fatalf("%d listeners left after the first gesture", doc.Listeners())
	}
	// toggle off
	r.c.Toggle()
	if r.c.State() != music.Stopped {
		t.Fatalf("state after toggle = %v, want stopped", r.c.State())
	}
	want := []music.EngineState{music.Starting, music.Playing, music.Stopped}
	if got := r.states(); !slices.Equal(got, want) {
		t.Fatalf("published states %v, want %v", got, want)
	}
	r.c.Close()

	// reload: the click does not start anything
	r = newRig(music.AlwaysUnlocked, storage.NewFile(path))
	defer r.c.Close()
	doc = music.NewDocument()
	r.c.Mount(doc)
	if doc.Dispatch(music.Click) != 0 {
		t.Fatal("muted controller listened for gestures")
	}
	r.c.Wait()
	if r.c.State() != music.Stopped {
		t.Fatalf("state after click when muted = %v, want stopped", r.c.State())
	}
	// explicit toggle on
	r.c.Toggle()
	r.c.Wait()
	if !r.c.IsPlaying() {
		t.Fatalf("state after toggle on = %v, want playing", r.c.State())
	}
	if _, ok := storage.NewFile(path).Get(music.PreferenceKey); ok {
		t.Fatal("toggling on should clear the preference")
	}
}

func TestFailedGestureStartRemovesListeners(t *testing.T) {
	r := newRig(music.AlwaysUnlocked, storage.NewMemory())
	defer r.c.Close()
	r.synther.fail = true
	doc := music.NewDocument()
	r.c.Mount(doc)
	doc.Dispatch(music.TouchStart)
	r.c.Wait()
	if r.c.State() != music.Stopped {
		t.Fatalf("state = %v, want stopped", r.c.State())
	}
	if doc.Listeners() != 0 || doc.Dispatch(music.Click) != 0 {
		t.Fatal("listeners survived the first gesture")
	}
}

func TestPlayingBool(t *testing.T) {
	r := newRig(music.AlwaysUnlocked, storage.NewMemory())
	b := r.c.Playing().Bool()
	b.Toggle()
	r.c.Wait()
	if !b.Value() {
		t.Fatal("toggle on did not start the music")
	}
	b.Toggle()
	if b.Value() || !r.c.Muted() {
		t.Fatal("toggle off did not stop and mute the music")
	}
	r.c.Close()
	if b.Enabled() {
		t.Fatal("closed controller should disable the toggle")
	}
	b.Set(true)
	if r.c.State() != music.Disposed {
		t.Fatal("disabled toggle changed the state")
	}
}

func TestPlayTime(t *testing.T) {
	r := newRig(music.AlwaysUnlocked, storage.NewMemory())
	defer r.c.Close()
	if r.c.PlayTime() != 0 {
		t.Fatal("play time should start at 0")
	}
	r.c.Start(context.Background())
	time.Sleep(10 * time.Millisecond)
	r.c.Stop()
	played := r.c.PlayTime()
	if played < 10*time.Millisecond {
		t.Fatalf("play time = %v, want at least 10ms", played)
	}
	time.Sleep(5 * time.Millisecond)
	if r.c.PlayTime() != played {
		t.Fatal("play time grew while stopped")
	}
}
