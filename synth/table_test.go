package synth

import (
	"errors"
	"testing"

	"github.com/cwbudde/algo-dsp/dsp/core"

	"go-tonegen/audio"
	"go-tonegen/music"
)

func newTestTable(ctx *audio.Context, policy RetriggerPolicy) *VoiceTable {
	return NewVoiceTable(ctx, ctx.Destination(), TableOptions{
		Keys:     13,
		BaseNote: 60,
		Envelope: testEnvelope,
		Policy:   policy,
		Tuning:   music.NewTuningConfig(440),
	})
}

// drain runs the clock long enough for every release to finish
func drain(ctx *audio.Context, vt *VoiceTable) {
	for i := 0; i < 20; i++ {
		ctx.Advance(0.1)
		vt.Poll()
	}
}

func TestTableKeyMapsToPitch(t *testing.T) {
	ctx := newTestContext(0)
	vt := newTestTable(ctx, RetireAndReplace)

	if err := vt.OnKeyDown(9); err != nil {
		t.Fatal(err)
	}
	v := vt.Voice(9)
	if v == nil {
		t.Fatal("slot 9 empty after key down")
	}
	if !core.NearlyEqual(v.Frequency(), 440, 1e-12) {
		t.Fatalf("key 9 frequency = %v, want 440", v.Frequency())
	}
	if !core.NearlyEqual(vt.FrequencyFor(0), 261.6255653005986, 1e-12) {
		t.Fatalf("key 0 frequency = %v, want middle C", vt.FrequencyFor(0))
	}
	if vt.Stage(9) != StageAttacking {
		t.Fatalf("stage = %v, want attack", vt.Stage(9))
	}
}

func TestTableRetireAndReplace(t *testing.T) {
	ctx := newTestContext(0)
	vt := newTestTable(ctx, RetireAndReplace)

	vt.OnKeyDown(0)
	first := vt.Voice(0)
	ctx.Advance(0.05)
	vt.OnKeyUp(0) // before attack completes
	ctx.Advance(0.05)

	if err := vt.OnKeyDown(0); err != nil {
		t.Fatal(err)
	}
	second := vt.Voice(0)
	if second == first {
		t.Fatal("slot kept the old voice")
	}
	if first.Stage() != StageReleasing {
		t.Fatalf("retired voice stage = %v, want release", first.Stage())
	}
	if second.Stage() != StageAttacking {
		t.Fatalf("new voice stage = %v, want attack", second.Stage())
	}
	if vt.Retired() != 1 || vt.Active() != 2 || ctx.Oscillators() != 2 {
		t.Fatalf("retired=%d active=%d oscillators=%d, want 1/2/2", vt.Retired(), vt.Active(), ctx.Oscillators())
	}

	vt.OnKeyUp(0)
	drain(ctx, vt)

	if first.Stage() != StageTerminated || second.Stage() != StageTerminated {
		t.Fatalf("stages after drain = %v/%v, want done", first.Stage(), second.Stage())
	}
	if vt.Active() != 0 || vt.Retired() != 0 || vt.Voice(0) != nil {
		t.Fatalf("table not empty: active=%d retired=%d", vt.Active(), vt.Retired())
	}
	if ctx.Oscillators() != 0 || ctx.Destination().Inputs() != 0 {
		t.Fatalf("leaked: oscillators=%d inputs=%d", ctx.Oscillators(), ctx.Destination().Inputs())
	}
}

func TestTableReuseVoice(t *testing.T) {
	ctx := newTestContext(0)
	vt := newTestTable(ctx, ReuseVoice)

	vt.OnKeyDown(0)
	first := vt.Voice(0)
	ctx.Advance(0.05)
	vt.OnKeyUp(0)
	ctx.Advance(0.05)

	sampled := first.Gain()
	now := ctx.CurrentTime()
	if err := vt.OnKeyDown(0); err != nil {
		t.Fatal(err)
	}
	if vt.Voice(0) != first {
		t.Fatal("reuse policy replaced the voice")
	}
	if first.Stage() != StageAttacking {
		t.Fatalf("stage = %v, want attack", first.Stage())
	}
	if got := holdAt(t, first.GainParam(), now); !core.NearlyEqual(got, sampled, 1e-12) {
		t.Fatalf("retrigger resumed from %v, want %v", got, sampled)
	}
	if vt.Retired() != 0 || ctx.Oscillators() != 1 {
		t.Fatalf("retired=%d oscillators=%d, want 0/1", vt.Retired(), ctx.Oscillators())
	}

	vt.OnKeyUp(0)
	drain(ctx, vt)
	if ctx.Oscillators() != 0 || vt.Active() != 0 {
		t.Fatalf("leaked: oscillators=%d active=%d", ctx.Oscillators(), vt.Active())
	}
}

func TestTableReuseAfterTerminatedAllocatesFresh(t *testing.T) {
	ctx := newTestContext(0)
	vt := newTestTable(ctx, ReuseVoice)

	vt.OnKeyDown(3)
	first := vt.Voice(3)
	vt.OnKeyUp(3)
	ctx.Advance(1) // stop passes, nobody polled yet

	if err := vt.OnKeyDown(3); err != nil {
		t.Fatal(err)
	}
	if vt.Voice(3) == first {
		t.Fatal("terminated voice reused")
	}
	if first.Stage() != StageTerminated || ctx.Oscillators() != 1 {
		t.Fatalf("old stage=%v oscillators=%d", first.Stage(), ctx.Oscillators())
	}
}

func TestTableRepeatedKeyDownRetiresHeldVoice(t *testing.T) {
	ctx := newTestContext(0)
	vt := newTestTable(ctx, RetireAndReplace)

	vt.OnKeyDown(2)
	ctx.Advance(0.5)
	held := vt.Voice(2)
	vt.OnKeyDown(2) // key-up was lost

	if held.Stage() != StageReleasing {
		t.Fatalf("displaced voice stage = %v, want release", held.Stage())
	}
	if vt.Retired() != 1 {
		t.Fatalf("retired = %d, want 1", vt.Retired())
	}
}

func TestTableKeyUpWithoutKeyDown(t *testing.T) {
	ctx := newTestContext(0)
	vt := newTestTable(ctx, RetireAndReplace)

	vt.OnKeyUp(5)
	vt.OnKeyUp(-1)
	vt.OnKeyUp(100)

	if vt.Stage(5) != StageIdle || vt.Active() != 0 || ctx.Oscillators() != 0 {
		t.Fatal("key up on empty slot changed the table")
	}
}

func TestTableKeyOutOfRange(t *testing.T) {
	ctx := newTestContext(0)
	vt := newTestTable(ctx, RetireAndReplace)

	for _, key := range []int{-1, 13, 64} {
		if err := vt.OnKeyDown(key); !errors.Is(err, ErrKeyOutOfRange) {
			t.Fatalf("OnKeyDown(%d) = %v, want ErrKeyOutOfRange", key, err)
		}
	}
}

func TestTableExhaustionLeavesSlotEmpty(t *testing.T) {
	ctx := newTestContext(1)
	vt := newTestTable(ctx, RetireAndReplace)

	if err := vt.OnKeyDown(0); err != nil {
		t.Fatal(err)
	}
	err := vt.OnKeyDown(1)
	if !errors.Is(err, audio.ErrTooManyOscillators) {
		t.Fatalf("err = %v, want ErrTooManyOscillators", err)
	}
	if vt.Voice(1) != nil {
		t.Fatal("failed key down occupied the slot")
	}

	// retriggering key 0 retires the only oscillator's voice, then cannot allocate
	vt.OnKeyUp(0)
	if err := vt.OnKeyDown(0); !errors.Is(err, audio.ErrTooManyOscillators) {
		t.Fatalf("replace err = %v, want ErrTooManyOscillators", err)
	}
	if vt.Voice(0) != nil || vt.Retired() != 1 {
		t.Fatalf("slot=%v retired=%d, want empty slot and one aging voice", vt.Voice(0), vt.Retired())
	}

	drain(ctx, vt)
	if err := vt.OnKeyDown(0); err != nil {
		t.Fatalf("key down after release finished: %v", err)
	}
}

func TestTableSetBaseNoteAffectsNewVoicesOnly(t *testing.T) {
	ctx := newTestContext(0)
	vt := newTestTable(ctx, RetireAndReplace)

	vt.OnKeyDown(9)
	vt.SetBaseNote(72)
	if f := vt.Voice(9).Frequency(); !core.NearlyEqual(f, 440, 1e-12) {
		t.Fatalf("held voice retuned to %v", f)
	}
	vt.OnKeyDown(0)
	if f := vt.Voice(0).Frequency(); !core.NearlyEqual(f, 523.2511306011972, 1e-12) {
		t.Fatalf("key 0 after octave up = %v, want C5", f)
	}
}

func TestTableReleaseAll(t *testing.T) {
	ctx := newTestContext(0)
	vt := newTestTable(ctx, RetireAndReplace)
	for k := 0; k < 4; k++ {
		vt.OnKeyDown(k)
	}
	vt.ReleaseAll()
	for k := 0; k < 4; k++ {
		if vt.Stage(k) != StageReleasing {
			t.Fatalf("key %d stage = %v, want release", k, vt.Stage(k))
		}
	}
	drain(ctx, vt)
	if ctx.Oscillators() != 0 {
		t.Fatalf("oscillators = %d after release all", ctx.Oscillators())
	}
}

func TestParsePolicy(t *testing.T) {
	tests := []struct {
		in      string
		want    RetriggerPolicy
		wantErr bool
	}{
		{"retire", RetireAndReplace, false},
		{"", RetireAndReplace, false},
		{"Reuse", ReuseVoice, false},
		{"steal", RetireAndReplace, true},
	}
	for _, tt := range tests {
		got, err := ParsePolicy(tt.in)
		if (err != nil) != tt.wantErr || got != tt.want {
			t.Errorf("ParsePolicy(%q) = %v, %v", tt.in, got, err)
		}
	}
	if ReuseVoice.String() != "reuse" || RetireAndReplace.String() != "retire" {
		t.Fatal("policy names do not round trip")
	}
}
