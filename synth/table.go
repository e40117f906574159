package synth

import (
	"errors"
	"fmt"
	"strings"

	"go-tonegen/audio"
	"go-tonegen/debug"
	"go-tonegen/music"
)

var ErrKeyOutOfRange = errors.New("key id out of range")

// RetriggerPolicy decides what a key press does when its slot still holds a live voice
type RetriggerPolicy int

const (
	// RetireAndReplace releases the old voice, lets it finish on its own clock
	// outside the slot, and puts a fresh voice in the slot.
	RetireAndReplace RetriggerPolicy = iota
	// ReuseVoice retriggers the voice already in the slot, keeping its oscillator.
	ReuseVoice
)

func (p RetriggerPolicy) String() string {
	switch p {
	case RetireAndReplace:
		return "retire"
	case ReuseVoice:
		return "reuse"
	}
	return fmt.Sprintf("policy(%d)", int(p))
}

// ParsePolicy accepts "retire" or "reuse"
func ParsePolicy(s string) (RetriggerPolicy, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "retire", "replace":
		return RetireAndReplace, nil
	case "reuse", "retrigger":
		return ReuseVoice, nil
	}
	return RetireAndReplace, fmt.Errorf("unknown retrigger policy %q", s)
}

// TableOptions configures a VoiceTable
type TableOptions struct {
	Keys     int // key ids are 0..Keys-1
	BaseNote int // note index of key 0
	Envelope Envelope
	Policy   RetriggerPolicy
	Tuning   *music.TuningConfig
}

// VoiceTable maps each key id to at most one live voice. Voices pushed out
// of their slot by RetireAndReplace are kept on a retired list and polled
// until they terminate.
type VoiceTable struct {
	g       Graph
	dest    *audio.Gain
	opts    TableOptions
	slots   []*Voice
	retired []*Voice
}

func NewVoiceTable(g Graph, dest *audio.Gain, opts TableOptions) *VoiceTable {
	if opts.Keys <= 0 {
		opts.Keys = 13
	}
	if opts.Tuning == nil {
		opts.Tuning = music.NewTuningConfig(music.DefaultReference)
	}
	return &VoiceTable{
		g:     g,
		dest:  dest,
		opts:  opts,
		slots: make([]*Voice, opts.Keys),
	}
}

// Keys returns the number of key ids
func (vt *VoiceTable) Keys() int {
	return len(vt.slots)
}

func (vt *VoiceTable) Policy() RetriggerPolicy {
	return vt.opts.Policy
}

func (vt *VoiceTable) BaseNote() int {
	return vt.opts.BaseNote
}

// SetBaseNote moves the keyboard; only voices allocated afterwards are affected
func (vt *VoiceTable) SetBaseNote(note int) {
	vt.opts.BaseNote = note
}

// NoteFor returns the note index a key id plays
func (vt *VoiceTable) NoteFor(key int) int {
	return vt.opts.BaseNote + key
}

// FrequencyFor returns the frequency a key id plays under the current tuning
func (vt *VoiceTable) FrequencyFor(key int) float64 {
	return music.NoteToFrequency(float64(vt.NoteFor(key)), vt.opts.Tuning.Load())
}

// OnKeyDown starts a voice for key. On failure the slot is left empty.
func (vt *VoiceTable) OnKeyDown(key int) error {
	if key < 0 || key >= len(vt.slots) {
		return ErrKeyOutOfRange
	}

	if v := vt.live(key); v != nil {
		if vt.opts.Policy == ReuseVoice {
			err := v.Trigger()
			if err == nil {
				return nil
			}
			if !errors.Is(err, ErrVoiceTerminated) {
				return err
			}
			// ended under us; fall through to a fresh voice
		} else {
			v.Release()
			vt.retired = append(vt.retired, v)
			debug.Log("voice", "key %d: retired voice (%s), %d aging", key, v.Stage(), len(vt.retired))
		}
		vt.slots[key] = nil
	}

	v, err := NewVoice(vt.g, vt.dest, vt.FrequencyFor(key), vt.opts.Envelope)
	if err != nil {
		return fmt.Errorf("key %d: %w", key, err)
	}
	if err := v.Trigger(); err != nil {
		v.terminate()
		return fmt.Errorf("key %d: %w", key, err)
	}
	vt.slots[key] = v
	return nil
}

// OnKeyUp releases the voice in key's slot. Empty slots and unknown keys are ignored.
func (vt *VoiceTable) OnKeyUp(key int) {
	if v := vt.live(key); v != nil {
		v.Release()
	}
}

// ReleaseAll releases every voice in the table
func (vt *VoiceTable) ReleaseAll() {
	for key := range vt.slots {
		vt.OnKeyUp(key)
	}
}

// Poll advances every voice and drops the ones that have terminated
func (vt *VoiceTable) Poll() {
	for key, v := range vt.slots {
		if v != nil && v.Poll() == StageTerminated {
			vt.slots[key] = nil
		}
	}

	kept := vt.retired[:0]
	for _, v := range vt.retired {
		if v.Poll() != StageTerminated {
			kept = append(kept, v)
		}
	}
	for i := len(kept); i < len(vt.retired); i++ {
		vt.retired[i] = nil
	}
	vt.retired = kept
}

// Voice returns the voice in key's slot, or nil
func (vt *VoiceTable) Voice(key int) *Voice {
	if key < 0 || key >= len(vt.slots) {
		return nil
	}
	return vt.slots[key]
}

// Stage returns the stage of key's slot voice, StageIdle when empty
func (vt *VoiceTable) Stage(key int) Stage {
	if v := vt.Voice(key); v != nil {
		return v.Stage()
	}
	return StageIdle
}

// Active counts slot and retired voices that have not terminated
func (vt *VoiceTable) Active() int {
	n := len(vt.retired)
	for _, v := range vt.slots {
		if v != nil && v.Stage() != StageTerminated {
			n++
		}
	}
	return n
}

// Retired returns how many voices are aging outside their slot
func (vt *VoiceTable) Retired() int {
	return len(vt.retired)
}

// live returns the slot voice if it has not terminated, clearing dead slots
func (vt *VoiceTable) live(key int) *Voice {
	v := vt.Voice(key)
	if v == nil {
		return nil
	}
	if v.Poll() == StageTerminated {
		vt.slots[key] = nil
		return nil
	}
	return v
}
