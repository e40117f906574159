package synth

import (
	"errors"
	"testing"

	"github.com/cwbudde/algo-dsp/dsp/core"

	"go-tonegen/audio"
)

// binary-exact times keep stage boundaries off rounding edges
var testEnvelope = Envelope{Attack: 0.25, Decay: 0.125, Sustain: 0.5, Release: 0.5}

func newTestContext(maxOsc int) *audio.Context {
	return audio.NewContext(maxOsc, core.WithSampleRate(1000), core.WithBlockSize(50))
}

func newTestVoice(t *testing.T, ctx *audio.Context) *Voice {
	t.Helper()
	v, err := NewVoice(ctx, ctx.Destination(), 440, testEnvelope)
	if err != nil {
		t.Fatalf("NewVoice: %v", err)
	}
	return v
}

// holdAt finds the value the timeline was pinned to at t
func holdAt(t *testing.T, p *audio.Param, at float64) float64 {
	t.Helper()
	for _, e := range p.Events() {
		if e.Kind == audio.EventSetValue && e.Time == at {
			return e.Value
		}
	}
	t.Fatalf("no hold event at %v in %+v", at, p.Events())
	return 0
}

func TestVoiceReachesSustain(t *testing.T) {
	ctx := newTestContext(0)
	v := newTestVoice(t, ctx)

	if v.Stage() != StageIdle {
		t.Fatalf("fresh voice stage = %v, want idle", v.Stage())
	}
	if err := v.Trigger(); err != nil {
		t.Fatal(err)
	}
	if v.Stage() != StageAttacking {
		t.Fatalf("after Trigger stage = %v, want attack", v.Stage())
	}

	ctx.Advance(0.1)
	if got := v.Poll(); got != StageAttacking {
		t.Fatalf("stage at 0.1s = %v, want attack", got)
	}
	ctx.Advance(0.2)
	if got := v.Poll(); got != StageDecaying {
		t.Fatalf("stage at 0.3s = %v, want decay", got)
	}
	ctx.Advance(0.2)
	if got := v.Poll(); got != StageSustaining {
		t.Fatalf("stage at 0.5s = %v, want sustain", got)
	}
	if g := v.Gain(); !core.NearlyEqual(g, testEnvelope.Sustain, 1e-12) {
		t.Fatalf("sustain gain = %v, want %v", g, testEnvelope.Sustain)
	}

	// holds until released
	ctx.Advance(3)
	if got := v.Poll(); got != StageSustaining {
		t.Fatalf("stage after 3s hold = %v, want sustain", got)
	}
}

func TestVoiceSchedulesFromOneTimestamp(t *testing.T) {
	ctx := newTestContext(0)
	ctx.Advance(0.3)
	v := newTestVoice(t, ctx)
	now := ctx.CurrentTime()
	v.Trigger()

	var ramps []audio.Event
	for _, e := range v.GainParam().Events() {
		if e.Kind == audio.EventLinearRamp {
			ramps = append(ramps, e)
		}
	}
	if len(ramps) != 2 {
		t.Fatalf("ramps = %+v, want attack and decay", ramps)
	}
	if ramps[0].Value != 1 || ramps[0].Time != now+testEnvelope.Attack {
		t.Fatalf("attack ramp = %+v", ramps[0])
	}
	if ramps[1].Value != testEnvelope.Sustain || ramps[1].Time != now+testEnvelope.Attack+testEnvelope.Decay {
		t.Fatalf("decay ramp = %+v", ramps[1])
	}
}

func TestVoiceReleaseDuringAttackStartsFromActualGain(t *testing.T) {
	ctx := newTestContext(0)
	v := newTestVoice(t, ctx)
	v.Trigger()
	ctx.Advance(0.1)

	sampled := v.Gain()
	now := ctx.CurrentTime()
	v.Release()

	if v.Stage() != StageReleasing {
		t.Fatalf("stage = %v, want release", v.Stage())
	}
	start := holdAt(t, v.GainParam(), now)
	if start >= 1 {
		t.Fatalf("release ramp starts at %v, want < 1", start)
	}
	if !core.NearlyEqual(start, sampled, 1e-12) || !core.NearlyEqual(start, 0.4, 1e-9) {
		t.Fatalf("release ramp starts at %v, sampled %v, want 0.4", start, sampled)
	}

	ctx.Advance(0.25)
	if g := v.Gain(); !core.NearlyEqual(g, 0.2, 1e-9) {
		t.Fatalf("gain half way through release = %v, want 0.2", g)
	}
}

func TestVoiceRetriggerDuringRelease(t *testing.T) {
	ctx := newTestContext(0)
	v := newTestVoice(t, ctx)
	v.Trigger()
	ctx.Advance(0.5)
	v.Release()
	ctx.Advance(0.2)

	sampled := v.Gain()
	now := ctx.CurrentTime()
	if err := v.Trigger(); err != nil {
		t.Fatalf("retrigger: %v", err)
	}
	if v.Stage() != StageAttacking {
		t.Fatalf("stage = %v, want attack", v.Stage())
	}

	resumed := holdAt(t, v.GainParam(), now)
	if resumed == 0 || resumed == 1 {
		t.Fatalf("retrigger snapped gain to %v", resumed)
	}
	if !core.NearlyEqual(resumed, sampled, 1e-12) || !core.NearlyEqual(resumed, 0.3, 1e-9) {
		t.Fatalf("retrigger resumed from %v, sampled %v, want 0.3", resumed, sampled)
	}

	// the pending stop was cancelled, so the voice keeps sounding
	ctx.Advance(1)
	if got := v.Poll(); got != StageSustaining {
		t.Fatalf("stage after retrigger = %v, want sustain", got)
	}
	if ctx.Oscillators() != 1 {
		t.Fatalf("oscillators = %d, want 1", ctx.Oscillators())
	}
}

func TestVoiceTerminatesAndFreesResources(t *testing.T) {
	ctx := newTestContext(0)
	v := newTestVoice(t, ctx)
	v.Trigger()
	ctx.Advance(0.1)
	v.Release()

	ctx.Advance(testEnvelope.Release)
	if got := v.Poll(); got != StageReleasing {
		t.Fatalf("stage inside stop guard = %v, want release", got)
	}

	ctx.Advance(StopGuard + 0.01)
	if got := v.Poll(); got != StageTerminated {
		t.Fatalf("stage after stop = %v, want done", got)
	}
	if n := ctx.Oscillators(); n != 0 {
		t.Fatalf("oscillators after terminate = %d, want 0", n)
	}
	if n := ctx.Destination().Inputs(); n != 0 {
		t.Fatalf("destination inputs after terminate = %d, want 0", n)
	}
}

func TestVoiceReleaseWithUnstartedOscillatorTerminates(t *testing.T) {
	ctx := newTestContext(0)
	v := newTestVoice(t, ctx)
	v.stage = StageSustaining // never triggered, so Stop fails

	v.Release()
	if v.Stage() != StageTerminated {
		t.Fatalf("stage = %v, want done", v.Stage())
	}
	if ctx.Oscillators() != 0 || ctx.Destination().Inputs() != 0 {
		t.Fatalf("leaked: oscillators=%d inputs=%d", ctx.Oscillators(), ctx.Destination().Inputs())
	}
}

func TestVoiceRedundantEvents(t *testing.T) {
	ctx := newTestContext(0)
	v := newTestVoice(t, ctx)

	v.Release()
	if v.Stage() != StageIdle {
		t.Fatalf("Release on idle moved to %v", v.Stage())
	}

	v.Trigger()
	v.Release()
	ctx.Advance(1)
	v.Poll()
	if v.Stage() != StageTerminated {
		t.Fatalf("stage = %v, want done", v.Stage())
	}

	v.Release()
	if v.Stage() != StageTerminated {
		t.Fatalf("Release on terminated moved to %v", v.Stage())
	}
	if err := v.Trigger(); !errors.Is(err, ErrVoiceTerminated) {
		t.Fatalf("Trigger on terminated = %v, want ErrVoiceTerminated", err)
	}
}

func TestNewVoiceExhausted(t *testing.T) {
	ctx := newTestContext(1)
	newTestVoice(t, ctx)

	_, err := NewVoice(ctx, ctx.Destination(), 220, testEnvelope)
	if !errors.Is(err, audio.ErrTooManyOscillators) {
		t.Fatalf("err = %v, want ErrTooManyOscillators", err)
	}
	if n := ctx.Destination().Inputs(); n != 1 {
		t.Fatalf("destination inputs = %d, want 1", n)
	}
}

func TestEnvelopeValidate(t *testing.T) {
	e := Envelope{Attack: 0.1, Decay: 0.1, Sustain: 1.5, Release: 1}
	if err := e.Validate(); err != nil {
		t.Fatal(err)
	}
	if e.Sustain != 1 {
		t.Fatalf("sustain not clamped: %v", e.Sustain)
	}

	bad := Envelope{Attack: -1, Sustain: 0.5}
	if err := bad.Validate(); err == nil {
		t.Fatal("negative attack accepted")
	}
}

func TestZeroAttackJumpsToPeak(t *testing.T) {
	ctx := newTestContext(0)
	v, _ := NewVoice(ctx, ctx.Destination(), 440, Envelope{Attack: 0, Decay: 0.5, Sustain: 0.5, Release: 0.1})
	v.Trigger()
	if g := v.Gain(); g != 1 {
		t.Fatalf("gain with zero attack = %v, want 1", g)
	}
	if got := v.Poll(); got != StageDecaying {
		t.Fatalf("stage = %v, want decay", got)
	}
}
