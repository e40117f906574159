package audio

import (
	"math"
	"testing"

	"github.com/cwbudde/algo-dsp/dsp/core"
)

const testRate = 1000

func newTestContext(maxOsc int) *Context {
	return NewContext(maxOsc, core.WithSampleRate(testRate), core.WithBlockSize(64))
}

func TestParamLinearRamp(t *testing.T) {
	c := newTestContext(0)
	p := c.NewGain(0).Gain()
	p.SetValueAtTime(0, 1)
	p.LinearRampToValueAtTime(1, 2)
	p.LinearRampToValueAtTime(0.5, 3)

	tests := []struct {
		t    float64
		want float64
	}{
		{0.5, 0},
		{1, 0},
		{1.25, 0.25},
		{2, 1},
		{2.5, 0.75},
		{3, 0.5},
		{10, 0.5},
	}
	for _, tt := range tests {
		if got := p.ValueAt(tt.t); !core.NearlyEqual(got, tt.want, 1e-12) {
			t.Errorf("ValueAt(%v) = %v, want %v", tt.t, got, tt.want)
		}
	}
}

func TestParamHoldAtMidRamp(t *testing.T) {
	c := newTestContext(0)
	p := c.NewGain(0).Gain()
	p.SetValueAtTime(0, 0)
	p.LinearRampToValueAtTime(1, 1)

	got := p.HoldAt(0.4)
	if !core.NearlyEqual(got, 0.4, 1e-12) {
		t.Fatalf("HoldAt(0.4) = %v, want 0.4", got)
	}
	if v := p.ValueAt(5); !core.NearlyEqual(v, 0.4, 1e-12) {
		t.Fatalf("value after hold = %v, want 0.4", v)
	}
	events := p.Events()
	last := events[len(events)-1]
	if last.Kind != EventSetValue || last.Time != 0.4 {
		t.Fatalf("last event = %+v, want set at 0.4", last)
	}
}

func TestParamCancelScheduledValues(t *testing.T) {
	c := newTestContext(0)
	p := c.NewGain(0.3).Gain()
	p.SetValueAtTime(0.3, 0)
	p.LinearRampToValueAtTime(1, 1)
	p.SetValueAtTime(0.2, 2)
	p.CancelScheduledValues(1)

	if n := len(p.Events()); n != 1 {
		t.Fatalf("events after cancel = %d, want 1", n)
	}
	if v := p.ValueAt(3); v != 0.3 {
		t.Fatalf("value after cancel = %v, want 0.3", v)
	}
}

func TestParamPruneKeepsRampAnchor(t *testing.T) {
	c := newTestContext(0)
	g := c.NewGain(0)
	c.Connect(g, c.Destination())
	p := g.Gain()
	p.SetValueAtTime(0, 0)
	p.LinearRampToValueAtTime(1, 0.1)
	p.LinearRampToValueAtTime(0, 1)

	c.Advance(0.5)
	if v := p.Value(); !core.NearlyEqual(v, 1-0.4/0.9, 1e-9) {
		t.Fatalf("value mid ramp after prune = %v", v)
	}
	c.Advance(1)
	if n := len(p.Events()); n != 0 {
		t.Fatalf("elapsed events not folded: %d left", n)
	}
	if v := p.Value(); v != 0 {
		t.Fatalf("final value = %v, want 0", v)
	}
}

func TestOscillatorLifecycle(t *testing.T) {
	c := newTestContext(0)
	c.Destination().Gain().SetValueAtTime(1, 0)
	o, err := c.NewOscillator(100)
	if err != nil {
		t.Fatal(err)
	}
	c.Connect(o, c.Destination())

	if err := o.Stop(1); err != ErrNotStarted {
		t.Fatalf("Stop before Start = %v, want ErrNotStarted", err)
	}
	if err := o.Start(0.1); err != nil {
		t.Fatal(err)
	}
	if err := o.Start(0.2); err != ErrAlreadyStarted {
		t.Fatalf("second Start = %v, want ErrAlreadyStarted", err)
	}
	if err := o.Stop(0.5); err != nil {
		t.Fatal(err)
	}

	buf := make([]float32, 100)
	c.Render(buf)
	for i, s := range buf {
		if s != 0 {
			t.Fatalf("sample %d = %v before start", i, s)
		}
	}

	buf = make([]float32, 300)
	c.Render(buf)
	peak := 0.0
	for _, s := range buf {
		peak = math.Max(peak, math.Abs(float64(s)))
	}
	if peak < 0.9 {
		t.Fatalf("peak while running = %v, want ~1", peak)
	}
	if o.Ended() {
		t.Fatal("ended before stop time")
	}

	c.Advance(0.2)
	if !o.Ended() {
		t.Fatal("not ended after stop time")
	}
	select {
	case <-c.Ended():
	default:
		t.Fatal("no ended notification")
	}
	if o.CancelStop() {
		t.Fatal("CancelStop succeeded after end")
	}
}

func TestOscillatorCancelStop(t *testing.T) {
	c := newTestContext(0)
	o, _ := c.NewOscillator(100)
	c.Connect(o, c.Destination())
	o.Start(0)
	o.Stop(0.2)
	c.Advance(0.1)
	if !o.CancelStop() {
		t.Fatal("CancelStop failed before end")
	}
	c.Advance(0.5)
	if o.Ended() {
		t.Fatal("ended despite cancelled stop")
	}
}

func TestOscillatorLimit(t *testing.T) {
	c := newTestContext(2)
	a, err := c.NewOscillator(100)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := c.NewOscillator(200); err != nil {
		t.Fatal(err)
	}
	if _, err := c.NewOscillator(300); err != ErrTooManyOscillators {
		t.Fatalf("third oscillator err = %v, want ErrTooManyOscillators", err)
	}
	a.Dispose()
	a.Dispose()
	if n := c.Oscillators(); n != 1 {
		t.Fatalf("allocated = %d after dispose, want 1", n)
	}
	if _, err := c.NewOscillator(300); err != nil {
		t.Fatalf("allocation after dispose: %v", err)
	}
}

func TestConnectReplacesOutput(t *testing.T) {
	c := newTestContext(0)
	g1, g2 := c.NewGain(1), c.NewGain(1)
	o, _ := c.NewOscillator(100)
	c.Connect(o, g1)
	c.Connect(o, g2)
	if g1.Inputs() != 0 || g2.Inputs() != 1 {
		t.Fatalf("inputs g1=%d g2=%d, want 0 and 1", g1.Inputs(), g2.Inputs())
	}
	c.Disconnect(o)
	if g2.Inputs() != 0 {
		t.Fatal("disconnect left input attached")
	}
}

func TestRenderClampsAndAdvancesClock(t *testing.T) {
	c := newTestContext(0)
	c.Destination().Gain().SetValueAtTime(1, 0)
	for i := 0; i < 4; i++ {
		o, _ := c.NewOscillator(50)
		o.Start(0)
		c.Connect(o, c.Destination())
	}
	buf := make([]float32, 250)
	c.Render(buf)
	for i, s := range buf {
		if s > 1 || s < -1 {
			t.Fatalf("sample %d = %v outside [-1,1]", i, s)
		}
	}
	if got := c.CurrentTime(); !core.NearlyEqual(got, 0.25, 1e-12) {
		t.Fatalf("CurrentTime = %v, want 0.25", got)
	}
}
