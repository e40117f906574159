package synth

import (
	"fmt"
	"math"

	"github.com/cwbudde/algo-dsp/dsp/core"
)

// Envelope holds ADSR parameters. Times are seconds, Sustain is a linear gain fraction.
type Envelope struct {
	Attack  float64 `json:"attack"`
	Decay   float64 `json:"decay"`
	Sustain float64 `json:"sustain"`
	Release float64 `json:"release"`
}

// DefaultEnvelope is a slow-release organ-ish shape
var DefaultEnvelope = Envelope{
	Attack:  0.2,
	Decay:   0.1,
	Sustain: 0.5,
	Release: 5,
}

// Validate checks the times and clamps Sustain into [0,1]
func (e *Envelope) Validate() error {
	for _, f := range []struct {
		name string
		v    float64
	}{
		{"attack", e.Attack},
		{"decay", e.Decay},
		{"release", e.Release},
	} {
		if f.v < 0 || math.IsNaN(f.v) || math.IsInf(f.v, 0) {
			return fmt.Errorf("envelope %s: invalid time %v", f.name, f.v)
		}
	}
	if math.IsNaN(e.Sustain) {
		return fmt.Errorf("envelope sustain: invalid level %v", e.Sustain)
	}
	e.Sustain = core.Clamp(e.Sustain, 0, 1)
	return nil
}
