package synth

import (
	"fmt"
	"sync"
	"time"

	"go-tonegen/audio"
	"go-tonegen/debug"
	"go-tonegen/midi"
	"go-tonegen/music"

	"github.com/cwbudde/algo-dsp/dsp/core"
)

const (
	pollInterval = 10 * time.Millisecond
	uiFPS        = 30
	ledFPS       = 30

	// MinVolumeDB and below is silence
	MinVolumeDB = -60.0
	MaxVolumeDB = 0.0

	volumeRamp = 0.1 // seconds
	padColumns = 8
)

type eventKind int

const (
	evKeyDown eventKind = iota
	evKeyUp
	evNoteOn
	evNoteOff
	evPadDown
	evPadUp
	evReleaseAll
	evOctave
	evSourceGone
)

type event struct {
	kind  eventKind
	value int    // key id, note, or octave delta
	src   string // controller id for MIDI input
}

// heldKey is one note or pad a controller is holding down
type heldKey struct {
	src string
	pad bool
	id  int // MIDI note or key id
}

// KeyState is one key as shown to the UI
type KeyState struct {
	Key       int
	Note      int
	Frequency float64 // what a press would play now
	Stage     Stage
	Gain      float64
}

// State is a snapshot of the engine for the UI
type State struct {
	Keys     []KeyState
	BaseNote int
	Active   int
	Retired  int
	Policy   RetriggerPolicy
	VolumeDB float64
	Tuning   float64
	Time     float64
}

// Engine owns the voice table and runs the single event loop that every
// voice transition happens on. Input goroutines only enqueue events.
type Engine struct {
	ctx    *audio.Context
	table  *VoiceTable
	tuning *music.TuningConfig

	events   chan event
	stopChan chan struct{}
	done     chan struct{}
	held     map[heldKey]int // -> key id it pressed

	mu       sync.RWMutex
	state    State
	volumeDB float64

	// LED feedback
	controller  midi.Controller
	ledColor    func(Stage) [3]uint8
	ledDirty    bool
	prevLEDs    map[[2]int]midi.LEDUpdate
	ledStopChan chan struct{}

	// Notify TUI of updates
	UpdateChan chan struct{}
}

// NewEngine creates an engine playing into ctx's destination
func NewEngine(ctx *audio.Context, opts TableOptions) *Engine {
	if opts.Tuning == nil {
		opts.Tuning = music.NewTuningConfig(music.DefaultReference)
	}
	e := &Engine{
		ctx:        ctx,
		table:      NewVoiceTable(ctx, ctx.Destination(), opts),
		tuning:     opts.Tuning,
		events:     make(chan event, 64),
		held:       make(map[heldKey]int),
		volumeDB:   MinVolumeDB,
		ledColor:   defaultLEDColor,
		prevLEDs:   make(map[[2]int]midi.LEDUpdate),
		UpdateChan: make(chan struct{}, 1),
	}
	e.publish()
	return e
}

// Start launches the event loop and the LED loop
func (e *Engine) Start() {
	e.mu.Lock()
	if e.stopChan != nil {
		e.mu.Unlock()
		return
	}
	e.stopChan = make(chan struct{})
	e.done = make(chan struct{})
	e.ledStopChan = make(chan struct{})
	e.mu.Unlock()

	go e.loop(e.stopChan, e.done)
	go e.ledLoop(e.ledStopChan)
}

// Stop releases every voice and ends the loops
func (e *Engine) Stop() {
	e.mu.Lock()
	if e.stopChan == nil {
		e.mu.Unlock()
		return
	}
	stop, done, ledStop := e.stopChan, e.done, e.ledStopChan
	e.stopChan = nil
	e.mu.Unlock()

	close(stop)
	close(ledStop)
	<-done
}

func (e *Engine) loop(stop <-chan struct{}, done chan<- struct{}) {
	defer close(done)

	ticker := time.NewTicker(pollInterval)
	uiTicker := time.NewTicker(time.Second / uiFPS)
	defer ticker.Stop()
	defer uiTicker.Stop()

	for {
		select {
		case <-stop:
			e.table.ReleaseAll()
			e.publish()
			return
		case ev := <-e.events:
			e.handle(ev)
			e.publish()
		case <-e.ctx.Ended():
			e.table.Poll()
		case <-ticker.C:
			e.table.Poll()
		case <-uiTicker.C:
			e.publish()
		}
	}
}

func (e *Engine) handle(ev event) {
	switch ev.kind {
	case evKeyDown:
		e.keyDown(ev.value)
	case evKeyUp:
		e.table.OnKeyUp(ev.value)
	case evNoteOn:
		key := ev.value - e.table.BaseNote()
		if key < 0 || key >= e.table.Keys() {
			return
		}
		hk := heldKey{src: ev.src, id: ev.value}
		if prev, ok := e.held[hk]; ok {
			e.table.OnKeyUp(prev)
		}
		e.held[hk] = key
		e.keyDown(key)
	case evNoteOff:
		// the key the note pressed, even if the octave moved since
		hk := heldKey{src: ev.src, id: ev.value}
		if key, ok := e.held[hk]; ok {
			delete(e.held, hk)
			e.table.OnKeyUp(key)
		}
	case evPadDown:
		e.held[heldKey{src: ev.src, pad: true, id: ev.value}] = ev.value
		e.keyDown(ev.value)
	case evPadUp:
		delete(e.held, heldKey{src: ev.src, pad: true, id: ev.value})
		e.table.OnKeyUp(ev.value)
	case evSourceGone:
		for hk, key := range e.held {
			if hk.src == ev.src {
				delete(e.held, hk)
				e.table.OnKeyUp(key)
			}
		}
	case evReleaseAll:
		e.table.ReleaseAll()
		clear(e.held)
	case evOctave:
		base := e.table.BaseNote() + 12*ev.value
		if base < 0 || base+e.table.Keys()-1 > 127 {
			return
		}
		e.table.SetBaseNote(base)
		debug.Log("engine", "base note %d (%s)", base, music.NoteName(base))
	}
}

func (e *Engine) keyDown(key int) {
	if err := e.table.OnKeyDown(key); err != nil {
		debug.Log("engine", "key down %d: %v", key, err)
		return
	}
	debug.Log("engine", "key down %d: %.2f Hz", key, e.table.FrequencyFor(key))
}

func (e *Engine) send(ev event) {
	select {
	case e.events <- ev:
	default:
		debug.Log("engine", "event queue full, dropped kind=%d value=%d", ev.kind, ev.value)
	}
}

// KeyDown presses key id
func (e *Engine) KeyDown(key int) {
	e.send(event{kind: evKeyDown, value: key})
}

// KeyUp releases key id
func (e *Engine) KeyUp(key int) {
	e.send(event{kind: evKeyUp, value: key})
}

// ReleaseAll releases every key
func (e *Engine) ReleaseAll() {
	e.send(event{kind: evReleaseAll})
}

// ShiftOctave moves the keyboard by delta octaves
func (e *Engine) ShiftOctave(delta int) {
	e.send(event{kind: evOctave, value: delta})
}

// HandleNote routes a note from controller src to the key it falls on
func (e *Engine) HandleNote(src string, n midi.NoteEvent) {
	kind := evNoteOff
	if n.On {
		kind = evNoteOn
	}
	e.send(event{kind: kind, value: int(n.Note), src: src})
}

// HandlePad routes a grid pad from controller src to key id row*8+col
func (e *Engine) HandlePad(src string, p midi.PadEvent) {
	key := PadKey(p.Row, p.Col)
	if key < 0 {
		return
	}
	kind := evPadUp
	if p.On {
		kind = evPadDown
	}
	e.send(event{kind: kind, value: key, src: src})
}

// SourceGone releases every note and pad controller src still holds
func (e *Engine) SourceGone(src string) {
	select {
	case e.events <- event{kind: evSourceGone, src: src}:
	case <-time.After(time.Second):
		debug.Log("engine", "%s: release of held notes timed out", src)
	}
}

// PadKey maps a grid position to a key id, or -1 for the control row/column
func PadKey(row, col int) int {
	if row < 0 || row >= 8 || col < 0 || col >= padColumns {
		return -1
	}
	return row*padColumns + col
}

// SetVolumeDB ramps the master gain to db over 100ms
func (e *Engine) SetVolumeDB(db float64) {
	db = core.Clamp(db, MinVolumeDB, MaxVolumeDB)
	amp := music.DBToAmplitude(db)
	if db <= MinVolumeDB {
		amp = 0
	}

	now := e.ctx.CurrentTime()
	e.ctx.Destination().Gain().Reschedule(now, audio.Ramp{Value: amp, Time: now + volumeRamp})

	e.mu.Lock()
	e.volumeDB = db
	e.mu.Unlock()
	e.notify()
}

// VolumeDB returns the master level in dBFS
func (e *Engine) VolumeDB() float64 {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.volumeDB
}

// SetTuning changes the reference for voices started from now on
func (e *Engine) SetTuning(hz float64) error {
	if err := e.tuning.SetReference(hz); err != nil {
		return fmt.Errorf("set tuning %v: %w", hz, err)
	}
	debug.Log("engine", "tuning reference %.2f Hz", hz)
	e.notify()
	return nil
}

// Tuning returns the current reference in Hz
func (e *Engine) Tuning() float64 {
	return e.tuning.Load().Reference
}

// Snapshot returns the latest published state
func (e *Engine) Snapshot() State {
	e.mu.RLock()
	defer e.mu.RUnlock()
	s := e.state
	s.Keys = append([]KeyState(nil), e.state.Keys...)
	s.VolumeDB = e.volumeDB
	s.Tuning = e.tuning.Load().Reference
	return s
}

// publish rebuilds the snapshot; called from the loop goroutine only
func (e *Engine) publish() {
	keys := make([]KeyState, e.table.Keys())
	changed := false

	e.mu.RLock()
	prev := e.state.Keys
	e.mu.RUnlock()

	for k := range keys {
		ks := KeyState{
			Key:       k,
			Note:      e.table.NoteFor(k),
			Frequency: e.table.FrequencyFor(k),
			Stage:     StageIdle,
		}
		if v := e.table.Voice(k); v != nil {
			ks.Stage = v.Stage()
			ks.Gain = v.Gain()
		}
		keys[k] = ks
		if k >= len(prev) || prev[k] != ks {
			changed = true
		}
	}

	e.mu.Lock()
	e.state = State{
		Keys:     keys,
		BaseNote: e.table.BaseNote(),
		Active:   e.table.Active(),
		Retired:  e.table.Retired(),
		Policy:   e.table.Policy(),
		Time:     e.ctx.CurrentTime(),
	}
	if changed {
		e.ledDirty = true
	}
	e.mu.Unlock()

	if changed {
		e.notify()
	}
}

func (e *Engine) notify() {
	select {
	case e.UpdateChan <- struct{}{}:
	default:
	}
}

// SetController sets the grid controller used for LED feedback
func (e *Engine) SetController(c midi.Controller) {
	debug.Log("ctrl", "SetController called, resetting diff state")
	e.mu.Lock()
	e.controller = c
	e.prevLEDs = make(map[[2]int]midi.LEDUpdate)
	e.ledDirty = true
	e.mu.Unlock()
}

// SetLEDColors replaces the stage -> pad colour mapping
func (e *Engine) SetLEDColors(f func(Stage) [3]uint8) {
	e.mu.Lock()
	e.ledColor = f
	e.ledDirty = true
	e.mu.Unlock()
}

// Attach consumes a controller's note and pad events until it closes.
// Whatever it still holds is released once either stream ends.
func (e *Engine) Attach(c midi.Controller) {
	if c.Type() == midi.ControllerLaunchpad {
		e.SetController(c)
	}
	id := c.ID()
	go func() {
		for n := range c.NoteEvents() {
			e.HandleNote(id, n)
		}
		e.SourceGone(id)
	}()
	go func() {
		for p := range c.PadEvents() {
			e.HandlePad(id, p)
		}
		e.SourceGone(id)
	}()
}

// Detach releases the controller's held notes and drops its LED feedback
func (e *Engine) Detach(id string) {
	e.mu.Lock()
	if e.controller != nil && e.controller.ID() == id {
		e.controller = nil
	}
	e.mu.Unlock()
	go e.SourceGone(id)
}

// ledLoop runs at fixed FPS and flushes LED updates
func (e *Engine) ledLoop(stop <-chan struct{}) {
	ticker := time.NewTicker(time.Second / ledFPS)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			e.mu.Lock()
			dirty := e.ledDirty
			e.ledDirty = false
			e.mu.Unlock()

			if dirty {
				e.flushLEDs()
			}
		}
	}
}

// renderLEDs lays the keys out on the grid, bottom row first
func (e *Engine) renderLEDs() []midi.LEDUpdate {
	e.mu.RLock()
	defer e.mu.RUnlock()

	leds := make([]midi.LEDUpdate, 0, len(e.state.Keys))
	for _, k := range e.state.Keys {
		row, col := k.Key/padColumns, k.Key%padColumns
		if row >= 8 {
			break
		}
		ch := midi.ChannelStatic
		if k.Stage == StageReleasing {
			ch = midi.ChannelPulse
		}
		leds = append(leds, midi.LEDUpdate{Row: row, Col: col, Color: e.ledColor(k.Stage), Channel: ch})
	}
	return leds
}

// flushLEDs sends only changed LEDs to the controller (diffing + batching)
func (e *Engine) flushLEDs() {
	e.mu.RLock()
	ctrl, prevLEDs := e.controller, e.prevLEDs
	e.mu.RUnlock()
	if ctrl == nil {
		return
	}

	newLEDs := e.renderLEDs()
	newMap := make(map[[2]int]midi.LEDUpdate, len(newLEDs))

	var updates []midi.LEDUpdate
	for _, led := range newLEDs {
		key := [2]int{led.Row, led.Col}
		newMap[key] = led
		if prev, ok := prevLEDs[key]; !ok || prev != led {
			updates = append(updates, led)
		}
	}

	// Clear LEDs that are no longer present
	for key := range prevLEDs {
		if _, ok := newMap[key]; !ok {
			updates = append(updates, midi.LEDUpdate{Row: key[0], Col: key[1]})
		}
	}

	if len(updates) > 0 {
		debug.Log("led", "flushLEDs: batch=%d prev=%d", len(updates), len(prevLEDs))
		if err := ctrl.SetLEDBatch(updates); err != nil {
			debug.Log("led", "send failed: %v", err)
		}
	}

	e.mu.Lock()
	e.prevLEDs = newMap
	e.mu.Unlock()
}

func defaultLEDColor(s Stage) [3]uint8 {
	switch s {
	case StageAttacking:
		return [3]uint8{255, 255, 255}
	case StageDecaying:
		return [3]uint8{255, 200, 0}
	case StageSustaining:
		return [3]uint8{0, 255, 0}
	case StageReleasing:
		return [3]uint8{0, 100, 255}
	}
	return [3]uint8{40, 60, 120}
}
