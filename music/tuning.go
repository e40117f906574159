package music

import (
	"errors"
	"math"
	"sync/atomic"
)

// DefaultReference is concert pitch for A4
const DefaultReference = 440.0

var ErrInvalidReference = errors.New("tuning reference must be a positive finite frequency")

// Tuning is an immutable tuning snapshot
type Tuning struct {
	Reference float64 // Hz at ReferenceNote
}

// DefaultTuning returns A4 = 440 Hz
func DefaultTuning() Tuning {
	return Tuning{Reference: DefaultReference}
}

// NoteToFrequency is shorthand for NoteToFrequency(note, t)
func (t Tuning) NoteToFrequency(note float64) float64 {
	return NoteToFrequency(note, t)
}

// FrequencyToNote is shorthand for FrequencyToNote(freq, t)
func (t Tuning) FrequencyToNote(freq float64) float64 {
	return FrequencyToNote(freq, t)
}

// TuningConfig holds the shared tuning. Writes swap in a new snapshot,
// so Load is safe from any goroutine.
type TuningConfig struct {
	current atomic.Pointer[Tuning]
}

// NewTuningConfig creates a config at the given reference, falling back to
// DefaultReference when ref is not usable.
func NewTuningConfig(ref float64) *TuningConfig {
	tc := &TuningConfig{}
	if !validReference(ref) {
		ref = DefaultReference
	}
	tc.current.Store(&Tuning{Reference: ref})
	return tc
}

// Load returns the current tuning
func (tc *TuningConfig) Load() Tuning {
	return *tc.current.Load()
}

// SetReference replaces the reference frequency
func (tc *TuningConfig) SetReference(hz float64) error {
	if !validReference(hz) {
		return ErrInvalidReference
	}
	tc.current.Store(&Tuning{Reference: hz})
	return nil
}

func validReference(hz float64) bool {
	return hz > 0 && !math.IsInf(hz, 0) && !math.IsNaN(hz)
}
