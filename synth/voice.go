package synth

import (
	"errors"
	"fmt"

	"go-tonegen/audio"
	"go-tonegen/debug"
)

// StopGuard is how long after the release ramp reaches zero the oscillator stops
const StopGuard = 0.01

var ErrVoiceTerminated = errors.New("voice terminated")

// Stage is where a voice is in its envelope
type Stage int

const (
	StageIdle Stage = iota
	StageAttacking
	StageDecaying
	StageSustaining
	StageReleasing
	StageTerminated
)

func (s Stage) String() string {
	switch s {
	case StageIdle:
		return "idle"
	case StageAttacking:
		return "attack"
	case StageDecaying:
		return "decay"
	case StageSustaining:
		return "sustain"
	case StageReleasing:
		return "release"
	case StageTerminated:
		return "done"
	}
	return fmt.Sprintf("stage(%d)", int(s))
}

// Sounding reports whether the stage produces (or may produce) output
func (s Stage) Sounding() bool {
	return s >= StageAttacking && s <= StageReleasing
}

// Graph is the part of the audio context a voice needs
type Graph interface {
	CurrentTime() float64
	NewOscillator(freq float64) (*audio.Oscillator, error)
	NewGain(v float64) *audio.Gain
	Connect(src audio.Node, dst *audio.Gain)
	Disconnect(src audio.Node)
}

// Voice is one sounding note: an oscillator feeding its own envelope gain.
// Not safe for concurrent use; the Engine loop owns every voice.
type Voice struct {
	g     Graph
	osc   *audio.Oscillator
	amp   *audio.Gain
	freq  float64
	env   Envelope
	stage Stage
	t0    float64 // clock time the current schedule was laid from
}

// NewVoice allocates and connects a voice at freq Hz. It starts Idle.
func NewVoice(g Graph, dest *audio.Gain, freq float64, env Envelope) (*Voice, error) {
	osc, err := g.NewOscillator(freq)
	if err != nil {
		return nil, fmt.Errorf("voice at %.2f Hz: %w", freq, err)
	}
	amp := g.NewGain(0)
	g.Connect(osc, amp)
	g.Connect(amp, dest)

	return &Voice{
		g:     g,
		osc:   osc,
		amp:   amp,
		freq:  freq,
		env:   env,
		stage: StageIdle,
	}, nil
}

// Trigger starts the attack from whatever gain the voice has right now.
// From Idle it also starts the oscillator; from Releasing it cancels the
// pending stop and keeps the same oscillator.
func (v *Voice) Trigger() error {
	v.Poll()

	now := v.g.CurrentTime()
	switch v.stage {
	case StageTerminated:
		return ErrVoiceTerminated
	case StageIdle:
		if err := v.osc.Start(now); err != nil {
			return fmt.Errorf("start oscillator: %w", err)
		}
	case StageReleasing:
		if !v.osc.CancelStop() {
			// stop landed between Poll and here
			v.terminate()
			return ErrVoiceTerminated
		}
	}

	v.amp.Gain().Reschedule(now,
		audio.Ramp{Value: 1, Time: now + v.env.Attack},
		audio.Ramp{Value: v.env.Sustain, Time: now + v.env.Attack + v.env.Decay},
	)
	v.stage = StageAttacking
	v.t0 = now
	return nil
}

// Release ramps from the current gain to silence and schedules the stop.
// No-op unless the voice is attacking, decaying or sustaining.
func (v *Voice) Release() {
	v.Poll()

	switch v.stage {
	case StageAttacking, StageDecaying, StageSustaining:
	default:
		return
	}

	now := v.g.CurrentTime()
	if err := v.osc.Stop(now + v.env.Release + StopGuard); err != nil {
		// an oscillator that never ran cannot end on its own
		debug.Log("voice", "%.2f Hz: stop: %v", v.freq, err)
		v.terminate()
		return
	}
	v.amp.Gain().Reschedule(now, audio.Ramp{Value: 0, Time: now + v.env.Release})
	v.stage = StageReleasing
	v.t0 = now
}

// Poll advances time-driven transitions and picks up the oscillator's end.
// The event loop calls it on ticks and on the context's ended notification.
func (v *Voice) Poll() Stage {
	switch v.stage {
	case StageAttacking, StageDecaying:
		now := v.g.CurrentTime()
		switch {
		case now >= v.t0+v.env.Attack+v.env.Decay:
			v.stage = StageSustaining
		case now >= v.t0+v.env.Attack:
			v.stage = StageDecaying
		}
	case StageReleasing:
		if v.osc.Ended() {
			v.terminate()
		}
	}
	return v.stage
}

// terminate disconnects both nodes and hands the oscillator back
func (v *Voice) terminate() {
	v.g.Disconnect(v.amp)
	v.osc.Dispose()
	v.stage = StageTerminated
}

// Stage returns the stage as of the last Poll, Trigger or Release
func (v *Voice) Stage() Stage {
	return v.stage
}

func (v *Voice) Frequency() float64 {
	return v.freq
}

func (v *Voice) Envelope() Envelope {
	return v.env
}

// Gain samples the envelope gain at the current time
func (v *Voice) Gain() float64 {
	return v.amp.Gain().Value()
}

// GainParam exposes the envelope automation
func (v *Voice) GainParam() *audio.Param {
	return v.amp.Gain()
}
